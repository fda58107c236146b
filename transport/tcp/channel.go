// Package tcp implements the Channel/ServerChannel pair spec §4.H
// describes over *net.TCPConn / *net.TCPListener: a dedicated reader
// goroutine per connection posts completed reads onto the channel's own
// executor via Execute, preserving the single-threaded-per-channel
// pipeline contract while letting the kernel's blocking read run off the
// event loop — the same shape kcptun's handleClient goroutine-per-stream
// gives a blocking net.Conn.
package tcp

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
	"github.com/xtaci/eventloop/internal/xlog"
)

// readChunk is the per-read buffer size handed to net.Conn.Read; spec §8
// leaves the exact figure unspecified so this follows the teacher's own
// MTU-scale default (1350, rounded up to a convenient power-of-two-ish
// buffer) rather than a stdlib-arbitrary 4096.
const readChunk = 2048

// Channel wraps a single net.Conn: the *net.TCPConn that Connect dials, or
// the connection an accept loop hands to NewChannelFromConn.
type Channel struct {
	*channel.BaseChannel
	u *connUnsafe
}

// NewChannel allocates an unconnected Channel bound to exec.
func NewChannel(exec *executor.Executor, cfg *channel.Config) *Channel {
	base := channel.NewBaseChannel(exec, cfg)
	ch := &Channel{BaseChannel: base}
	ch.u = &connUnsafe{ch: ch}
	base.SetUnsafe(ch.u)
	return ch
}

// NewChannelFromConn wraps an already-established net.Conn (e.g. one handed
// back by a ServerChannel's accept loop) as an unregistered, inactive
// Channel; the caller still Registers it before firing Active.
func NewChannelFromConn(exec *executor.Executor, cfg *channel.Config, conn net.Conn) *Channel {
	ch := NewChannel(exec, cfg)
	ch.u.setConn(conn)
	return ch
}

type pendingWrite struct {
	buf     buffer.ByteBuf
	promise future.Promise
	size    int
}

type connUnsafe struct {
	ch *Channel

	mu   sync.Mutex
	conn net.Conn

	closed int32 // atomic

	readerOnce sync.Once

	writeMu sync.Mutex
	pending []pendingWrite
}

func (u *connUnsafe) setConn(conn net.Conn) {
	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
}

func (u *connUnsafe) LocalAddress() channel.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return netAddr{u.conn.LocalAddr()}
}

func (u *connUnsafe) RemoteAddress() channel.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return netAddr{u.conn.RemoteAddr()}
}

func (u *connUnsafe) Bind(local channel.Address, promise future.Promise) {
	promise.TrySetFailure(errors.New("tcp: Bind not supported on a connection channel; use ServerChannel"))
}

func (u *connUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	timeout := u.ch.Config().ConnectTimeout
	dialer := net.Dialer{Timeout: timeout}
	if local != nil {
		if laddr, err := net.ResolveTCPAddr("tcp", local.String()); err == nil {
			dialer.LocalAddr = laddr
		}
	}
	conn, err := dialer.Dial("tcp", remote.String())
	if err != nil {
		promise.TrySetFailure(errors.Wrap(err, "tcp: dial"))
		return
	}
	u.setConn(conn)
	u.ch.Underlying().NotifyActive()
	u.startReader()
	promise.TrySetSuccess()
}

func (u *connUnsafe) Disconnect(promise future.Promise) { u.Close(promise) }

func (u *connUnsafe) Close(promise future.Promise) {
	if !atomic.CompareAndSwapInt32(&u.closed, 0, 1) {
		promise.TrySetSuccess()
		return
	}
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	u.writeMu.Lock()
	dropped := u.pending
	u.pending = nil
	u.writeMu.Unlock()
	for _, pw := range dropped {
		u.ch.Underlying().ReportPendingBytes(-pw.size)
		pw.buf.Release()
		pw.promise.TrySetFailure(channel.ErrClosedChannel)
	}
	u.ch.Underlying().NotifyInactive()
	promise.TrySetSuccess()
}

func (u *connUnsafe) Deregister(promise future.Promise) { promise.TrySetSuccess() }

// Activate fires channelActive and starts the reader goroutine. Called by
// an Acceptor once an accepted Channel has finished registering, since
// accepted connections arrive already dialed (unlike Connect, which fires
// Active itself once the dial succeeds).
func (ch *Channel) Activate() {
	ch.u.ch.Underlying().NotifyActive()
	ch.u.startReader()
}

// BeginRead starts the reader goroutine if it hasn't already. Connect and
// Activate also start it eagerly, matching the teacher's own eagerly-piping
// style; the AutoRead option is not consulted.
func (u *connUnsafe) BeginRead() { u.startReader() }

func (u *connUnsafe) startReader() {
	u.readerOnce.Do(func() {
		go u.readLoop()
	})
}

func (u *connUnsafe) readLoop() {
	alloc := u.ch.Config().Allocator
	exec := u.ch.Executor()
	scratch := make([]byte, readChunk)
	for {
		u.mu.Lock()
		conn := u.conn
		u.mu.Unlock()
		if conn == nil {
			return
		}
		n, err := conn.Read(scratch)
		if n > 0 {
			buf := alloc.Buffer(n, n)
			_ = buf.WriteBytes(scratch[:n])
			exec.Execute(func() {
				u.ch.Underlying().NotifyRead(buf)
				u.ch.Underlying().NotifyReadComplete()
			})
		}
		if err != nil {
			if atomic.LoadInt32(&u.closed) == 0 {
				exec.Execute(func() {
					u.ch.Underlying().NotifyException(errors.Wrap(err, "tcp: read"))
					p := future.NewPromise(exec)
					u.Close(p)
				})
			}
			return
		}
	}
}

// Write enqueues msg without touching the socket (§4.D); Flush drains the
// queue with the real conn.Write calls.
func (u *connUnsafe) Write(msg interface{}, promise future.Promise) {
	bb, ok := msg.(buffer.ByteBuf)
	if !ok {
		promise.TrySetFailure(errors.New("tcp: write requires a buffer.ByteBuf message"))
		return
	}
	size := bb.ReadableBytes()
	u.writeMu.Lock()
	u.pending = append(u.pending, pendingWrite{buf: bb, promise: promise, size: size})
	u.writeMu.Unlock()
	u.ch.Underlying().ReportPendingBytes(size)
}

func (u *connUnsafe) Flush() {
	u.writeMu.Lock()
	batch := u.pending
	u.pending = nil
	u.writeMu.Unlock()
	if len(batch) == 0 {
		return
	}

	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()

	for _, pw := range batch {
		u.ch.Underlying().ReportPendingBytes(-pw.size)
		if conn == nil {
			pw.buf.Release()
			pw.promise.TrySetFailure(channel.ErrClosedChannel)
			continue
		}
		_, err := conn.Write(pw.buf.Bytes())
		pw.buf.Release()
		if err != nil {
			pw.promise.TrySetFailure(errors.Wrap(err, "tcp: write"))
			continue
		}
		pw.promise.TrySetSuccess()
	}
}

// dialTimeout dials with net.DialTimeout and wraps a failure with the
// network and address, the teacher-grade "wrap the raw error with context"
// dial behavior. Nothing in this module calls it.
func dialTimeout(network, addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "tcp: dial %s %s", network, addr)
	}
	return conn, nil
}
