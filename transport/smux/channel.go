package smux

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	smuxgo "github.com/xtaci/smux"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

const readChunk = 4096

// Channel wraps a single *smux.Stream. Unlike tcp/kcp it never dials or
// listens itself — streams only come from Session.OpenChannel (client) or
// a ServerChannel's accept loop (server) — so its Unsafe.Connect/Bind
// always fail; the stream is already open by construction.
type Channel struct {
	*channel.BaseChannel
	u *streamUnsafe
}

func newChannel(exec *executor.Executor, cfg *channel.Config, stream *smuxgo.Stream) *Channel {
	base := channel.NewBaseChannel(exec, cfg)
	ch := &Channel{BaseChannel: base}
	ch.u = &streamUnsafe{ch: ch, stream: stream}
	base.SetUnsafe(ch.u)
	return ch
}

// OpenChannel opens a new client-initiated stream on session, bound to
// exec, and registers+activates it.
func OpenChannel(session *Session, exec *executor.Executor, cfg *channel.Config) (*Channel, future.Future) {
	p := future.NewPromise(exec)
	stream, err := session.raw.OpenStream()
	if err != nil {
		p.TrySetFailure(errors.Wrap(err, "smux: open stream"))
		return nil, p
	}
	ch := newChannel(exec, cfg, stream)
	regP := future.NewPromise(exec)
	ch.Underlying().Register(regP)
	regP.AddListener(func(f future.Future) {
		if !f.IsSuccess() {
			p.TrySetFailure(f.Cause())
			return
		}
		ch.Activate()
		p.TrySetSuccess()
	})
	return ch, p
}

type streamUnsafe struct {
	ch *Channel

	mu     sync.Mutex
	stream *smuxgo.Stream

	closed     int32
	readerOnce sync.Once
}

func (u *streamUnsafe) LocalAddress() channel.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stream == nil {
		return nil
	}
	return netAddr{u.stream.LocalAddr()}
}

func (u *streamUnsafe) RemoteAddress() channel.Address {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stream == nil {
		return nil
	}
	return netAddr{u.stream.RemoteAddr()}
}

func (u *streamUnsafe) Bind(local channel.Address, promise future.Promise) {
	promise.TrySetFailure(errors.New("smux: Bind not supported on a stream channel"))
}

func (u *streamUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	promise.TrySetFailure(errors.New("smux: Connect not supported; use OpenChannel"))
}

func (u *streamUnsafe) Disconnect(promise future.Promise) { u.Close(promise) }

func (u *streamUnsafe) Close(promise future.Promise) {
	if !atomic.CompareAndSwapInt32(&u.closed, 0, 1) {
		promise.TrySetSuccess()
		return
	}
	u.mu.Lock()
	stream := u.stream
	u.mu.Unlock()
	if stream != nil {
		_ = stream.Close()
	}
	u.ch.Underlying().NotifyInactive()
	promise.TrySetSuccess()
}

func (u *streamUnsafe) Deregister(promise future.Promise) { promise.TrySetSuccess() }

// Activate fires channelActive and starts the reader goroutine.
func (ch *Channel) Activate() {
	ch.u.ch.Underlying().NotifyActive()
	ch.u.startReader()
}

func (u *streamUnsafe) BeginRead() { u.startReader() }

func (u *streamUnsafe) startReader() {
	u.readerOnce.Do(func() { go u.readLoop() })
}

func (u *streamUnsafe) readLoop() {
	alloc := u.ch.Config().Allocator
	exec := u.ch.Executor()
	scratch := make([]byte, readChunk)
	for {
		u.mu.Lock()
		stream := u.stream
		u.mu.Unlock()
		if stream == nil {
			return
		}
		n, err := stream.Read(scratch)
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
					u.ch.Underlying().NotifyException(errors.Wrap(err, "smux: read"))
					p := future.NewPromise(exec)
					u.Close(p)
				})
			}
			return
		}
	}
}

func (u *streamUnsafe) Write(msg interface{}, promise future.Promise) {
	bb, ok := msg.(buffer.ByteBuf)
	if !ok {
		promise.TrySetFailure(errors.New("smux: write requires a buffer.ByteBuf message"))
		return
	}
	size := bb.ReadableBytes()
	u.ch.Underlying().ReportPendingBytes(size)
	u.mu.Lock()
	stream := u.stream
	u.mu.Unlock()
	if stream == nil {
		bb.Release()
		u.ch.Underlying().ReportPendingBytes(-size)
		promise.TrySetFailure(channel.ErrClosedChannel)
		return
	}
	_, err := stream.Write(bb.Bytes())
	bb.Release()
	u.ch.Underlying().ReportPendingBytes(-size)
	if err != nil {
		promise.TrySetFailure(errors.Wrap(err, "smux: write"))
		return
	}
	promise.TrySetSuccess()
}

func (u *streamUnsafe) Flush() {}
