package kcp

import (
	"sync/atomic"

	"github.com/pkg/errors"
	kcpgo "github.com/xtaci/kcp-go/v5"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
	"github.com/xtaci/eventloop/internal/xlog"
)

// ServerChannel owns a *kcp.Listener, handing each accepted session to its
// own pipeline as a channelRead message for a bootstrap.Acceptor to pick
// up, exactly like transport/tcp.ServerChannel.
type ServerChannel struct {
	*channel.BaseChannel
	u *listenerUnsafe

	ChildExecutor func() *executor.Executor
	ChildConfig   *channel.Config
}

func NewServerChannel(exec *executor.Executor, cfg *channel.Config) *ServerChannel {
	base := channel.NewBaseChannel(exec, cfg)
	sc := &ServerChannel{BaseChannel: base, ChildConfig: channel.NewConfig()}
	sc.u = &listenerUnsafe{sc: sc}
	base.SetUnsafe(sc.u)
	return sc
}

// UseWorkerGroup wires next as the executor picker for accepted children;
// bootstrap.ServerBootstrap calls this automatically.
func (sc *ServerChannel) UseWorkerGroup(next func() *executor.Executor) {
	sc.ChildExecutor = next
}

type listenerUnsafe struct {
	sc       *ServerChannel
	listener *kcpgo.Listener
	closed   int32
}

func (u *listenerUnsafe) LocalAddress() channel.Address {
	if u.listener == nil {
		return nil
	}
	return netAddr{u.listener.Addr()}
}
func (u *listenerUnsafe) RemoteAddress() channel.Address { return nil }

func (u *listenerUnsafe) Bind(local channel.Address, promise future.Promise) {
	data, parity := shardCounts(u.sc.Config())
	lis, err := kcpgo.ListenWithOptions(local.String(), nil, data, parity)
	if err != nil {
		promise.TrySetFailure(errors.Wrap(err, "kcp: listen"))
		return
	}
	u.listener = lis
	u.sc.Underlying().NotifyActive()
	go u.acceptLoop()
	promise.TrySetSuccess()
}

func (u *listenerUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	promise.TrySetFailure(errors.New("kcp: Connect not supported on ServerChannel"))
}

func (u *listenerUnsafe) Disconnect(promise future.Promise) { promise.TrySetSuccess() }

func (u *listenerUnsafe) Close(promise future.Promise) {
	if !atomic.CompareAndSwapInt32(&u.closed, 0, 1) {
		promise.TrySetSuccess()
		return
	}
	if u.listener != nil {
		_ = u.listener.Close()
	}
	u.sc.Underlying().NotifyInactive()
	promise.TrySetSuccess()
}

func (u *listenerUnsafe) Deregister(promise future.Promise) { promise.TrySetSuccess() }
func (u *listenerUnsafe) BeginRead()                        {}
func (u *listenerUnsafe) Write(msg interface{}, promise future.Promise) {
	promise.TrySetFailure(channel.ErrWriteRejected)
}
func (u *listenerUnsafe) Flush() {}

func (u *listenerUnsafe) acceptLoop() {
	for {
		sess, err := u.listener.AcceptKCP()
		if err != nil {
			if atomic.LoadInt32(&u.closed) == 1 {
				return
			}
			xlog.Errorf("kcp: accept on %s: %v", u.listener.Addr(), err)
			return
		}
		tune(sess, u.sc.ChildConfig)

		childExec := u.sc.Executor()
		if u.sc.ChildExecutor != nil {
			childExec = u.sc.ChildExecutor()
		}
		child := NewChannelFromSession(childExec, u.sc.ChildConfig, sess)
		boss := u.sc
		boss.Executor().Execute(func() {
			boss.Underlying().NotifyRead(child)
			boss.Underlying().NotifyReadComplete()
		})
	}
}
