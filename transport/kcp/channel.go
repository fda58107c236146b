// Package kcp adapts github.com/xtaci/kcp-go/v5 sessions onto the Channel
// contract. A *kcp.UDPSession already satisfies net.Conn, so the reader
// goroutine / write / close shape mirrors transport/tcp's Channel almost
// exactly; what's specific here is dialing/listening through kcp-go and
// applying the KCP tuning knobs SPEC_FULL §6 adds (KCP_NODELAY, KCP_SNDWND,
// KCP_RCVWND, KCP_DATASHARD, KCP_PARITYSHARD).
package kcp

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

const readChunk = 4096

// Channel wraps a single *kcp.UDPSession.
type Channel struct {
	*channel.BaseChannel
	u *sessionUnsafe
}

// NewChannel allocates an unconnected Channel bound to exec.
func NewChannel(exec *executor.Executor, cfg *channel.Config) *Channel {
	base := channel.NewBaseChannel(exec, cfg)
	ch := &Channel{BaseChannel: base}
	ch.u = &sessionUnsafe{ch: ch}
	base.SetUnsafe(ch.u)
	return ch
}

// NewChannelFromSession wraps an already-established session, e.g. one a
// ServerChannel's accept loop just took off its listener.
func NewChannelFromSession(exec *executor.Executor, cfg *channel.Config, sess *kcpgo.UDPSession) *Channel {
	ch := NewChannel(exec, cfg)
	ch.u.setSession(sess)
	return ch
}

type pendingWrite struct {
	buf     buffer.ByteBuf
	promise future.Promise
	size    int
}

type sessionUnsafe struct {
	ch *Channel

	mu   sync.Mutex
	sess *kcpgo.UDPSession

	closed     int32
	readerOnce sync.Once

	writeMu sync.Mutex
	pending []pendingWrite
}

func (u *sessionUnsafe) setSession(s *kcpgo.UDPSession) {
	u.mu.Lock()
	u.sess = s
	u.mu.Unlock()
}

func shardCounts(cfg *channel.Config) (data, parity int) {
	if v, ok := cfg.Option(channel.OptKCPDataShard); ok {
		data, _ = v.(int)
	}
	if v, ok := cfg.Option(channel.OptKCPParityShard); ok {
		parity, _ = v.(int)
	}
	return
}

func tune(sess *kcpgo.UDPSession, cfg *channel.Config) {
	nodelay := 0
	if v, ok := cfg.Option(channel.OptKCPNoDelay); ok {
		if b, ok := v.(bool); ok && b {
			nodelay = 1
		}
	}
	interval := 40
	if v, ok := cfg.Option(channel.OptKCPInterval); ok {
		if n, ok := v.(int); ok {
			interval = n
		}
	}
	sess.SetNoDelay(nodelay, interval, 2, 1)

	sndWnd, rcvWnd := 128, 512
	if v, ok := cfg.Option(channel.OptKCPSndWnd); ok {
		if n, ok := v.(int); ok {
			sndWnd = n
		}
	}
	if v, ok := cfg.Option(channel.OptKCPRcvWnd); ok {
		if n, ok := v.(int); ok {
			rcvWnd = n
		}
	}
	sess.SetWindowSize(sndWnd, rcvWnd)
	sess.SetStreamMode(true)
}

func (u *sessionUnsafe) LocalAddress() channel.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sess == nil {
		return nil
	}
	return netAddr{u.sess.LocalAddr()}
}

func (u *sessionUnsafe) RemoteAddress() channel.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sess == nil {
		return nil
	}
	return netAddr{u.sess.RemoteAddr()}
}

func (u *sessionUnsafe) Bind(local channel.Address, promise future.Promise) {
	promise.TrySetFailure(errors.New("kcp: Bind not supported on a session channel; use ServerChannel"))
}

func (u *sessionUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	data, parity := shardCounts(u.ch.Config())
	sess, err := kcpgo.DialWithOptions(remote.String(), nil, data, parity)
	if err != nil {
		promise.TrySetFailure(errors.Wrap(err, "kcp: dial"))
		return
	}
	tune(sess, u.ch.Config())
	u.setSession(sess)
	u.ch.Underlying().NotifyActive()
	u.startReader()
	promise.TrySetSuccess()
}

func (u *sessionUnsafe) Disconnect(promise future.Promise) { u.Close(promise) }

func (u *sessionUnsafe) Close(promise future.Promise) {
	if !atomic.CompareAndSwapInt32(&u.closed, 0, 1) {
		promise.TrySetSuccess()
		return
	}
	u.mu.Lock()
	sess := u.sess
	u.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
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

func (u *sessionUnsafe) Deregister(promise future.Promise) { promise.TrySetSuccess() }

// Activate fires channelActive and starts the reader goroutine for a
// session that arrived already established (an accepted child); used by
// bootstrap.Acceptor after registration completes.
func (ch *Channel) Activate() {
	ch.u.ch.Underlying().NotifyActive()
	ch.u.startReader()
}

func (u *sessionUnsafe) BeginRead() { u.startReader() }

func (u *sessionUnsafe) startReader() {
	u.readerOnce.Do(func() { go u.readLoop() })
}

func (u *sessionUnsafe) readLoop() {
	alloc := u.ch.Config().Allocator
	exec := u.ch.Executor()
	scratch := make([]byte, readChunk)
	for {
		u.mu.Lock()
		sess := u.sess
		u.mu.Unlock()
		if sess == nil {
			return
		}
		n, err := sess.Read(scratch)
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
					u.ch.Underlying().NotifyException(errors.Wrap(err, "kcp: read"))
					p := future.NewPromise(exec)
					u.Close(p)
				})
			}
			return
		}
	}
}

// Write enqueues msg without touching the session (§4.D); Flush drains the
// queue with the real sess.Write calls.
func (u *sessionUnsafe) Write(msg interface{}, promise future.Promise) {
	bb, ok := msg.(buffer.ByteBuf)
	if !ok {
		promise.TrySetFailure(errors.New("kcp: write requires a buffer.ByteBuf message"))
		return
	}
	size := bb.ReadableBytes()
	u.writeMu.Lock()
	u.pending = append(u.pending, pendingWrite{buf: bb, promise: promise, size: size})
	u.writeMu.Unlock()
	u.ch.Underlying().ReportPendingBytes(size)
}

func (u *sessionUnsafe) Flush() {
	u.writeMu.Lock()
	batch := u.pending
	u.pending = nil
	u.writeMu.Unlock()
	if len(batch) == 0 {
		return
	}

	u.mu.Lock()
	sess := u.sess
	u.mu.Unlock()

	for _, pw := range batch {
		u.ch.Underlying().ReportPendingBytes(-pw.size)
		if sess == nil {
			pw.buf.Release()
			pw.promise.TrySetFailure(channel.ErrClosedChannel)
			continue
		}
		_, err := sess.Write(pw.buf.Bytes())
		pw.buf.Release()
		if err != nil {
			pw.promise.TrySetFailure(errors.Wrap(err, "kcp: write"))
			continue
		}
		pw.promise.TrySetSuccess()
	}
}

type netAddr struct{ a net.Addr }

func (n netAddr) Network() string { return n.a.Network() }
func (n netAddr) String() string  { return n.a.String() }

// Addr wraps a "host:port" string as a channel.Address, for callers (cmd/
// bootstraps) that only have a flag-supplied endpoint and no net.Addr yet.
type Addr string

func (a Addr) Network() string { return "udp" }
func (a Addr) String() string  { return string(a) }
