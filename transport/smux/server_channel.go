package smux

import (
	"sync/atomic"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
	"github.com/xtaci/eventloop/internal/xlog"
)

// ServerChannel accepts streams the remote side opens on an already
// negotiated server Session, delivering each as a channelRead message for
// a bootstrap.Acceptor — the smux-level analogue of tcp/kcp's listening
// ServerChannel, except there is no listen socket: the "listening" is
// AcceptStream on a Session that itself rides atop one already-accepted
// tcp/kcp connection.
type ServerChannel struct {
	*channel.BaseChannel
	session *Session
	closed  int32

	ChildExecutor func() *executor.Executor
	ChildConfig   *channel.Config
}

// NewServerChannel wraps session, ready to accept streams once Bind is
// called (Bind here is address-less — it just starts the accept loop).
func NewServerChannel(exec *executor.Executor, cfg *channel.Config, session *Session) *ServerChannel {
	base := channel.NewBaseChannel(exec, cfg)
	sc := &ServerChannel{BaseChannel: base, session: session, ChildConfig: channel.NewConfig()}
	base.SetUnsafe(&sessionListenerUnsafe{sc: sc})
	return sc
}

func (sc *ServerChannel) UseWorkerGroup(next func() *executor.Executor) {
	sc.ChildExecutor = next
}

type sessionListenerUnsafe struct{ sc *ServerChannel }

func (u *sessionListenerUnsafe) LocalAddress() channel.Address  { return nil }
func (u *sessionListenerUnsafe) RemoteAddress() channel.Address { return nil }

func (u *sessionListenerUnsafe) Bind(local channel.Address, promise future.Promise) {
	u.sc.Underlying().NotifyActive()
	go u.acceptLoop()
	promise.TrySetSuccess()
}

func (u *sessionListenerUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	promise.TrySetFailure(channel.ErrNotRegistered)
}
func (u *sessionListenerUnsafe) Disconnect(promise future.Promise) { promise.TrySetSuccess() }
func (u *sessionListenerUnsafe) Close(promise future.Promise) {
	if atomic.CompareAndSwapInt32(&u.sc.closed, 0, 1) {
		_ = u.sc.session.Close()
		u.sc.Underlying().NotifyInactive()
	}
	promise.TrySetSuccess()
}
func (u *sessionListenerUnsafe) Deregister(promise future.Promise) { promise.TrySetSuccess() }
func (u *sessionListenerUnsafe) BeginRead()                        {}
func (u *sessionListenerUnsafe) Write(msg interface{}, promise future.Promise) {
	promise.TrySetFailure(channel.ErrWriteRejected)
}
func (u *sessionListenerUnsafe) Flush() {}

func (u *sessionListenerUnsafe) acceptLoop() {
	sc := u.sc
	for {
		stream, err := sc.session.raw.AcceptStream()
		if err != nil {
			if atomic.LoadInt32(&sc.closed) == 1 {
				return
			}
			xlog.Errorf("smux: accept stream: %v", err)
			return
		}
		childExec := sc.Executor()
		if sc.ChildExecutor != nil {
			childExec = sc.ChildExecutor()
		}
		child := newChannel(childExec, sc.ChildConfig, stream)
		sc.Executor().Execute(func() {
			sc.Underlying().NotifyRead(child)
			sc.Underlying().NotifyReadComplete()
		})
	}
}
