package tcp

import (
	"net"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
	"github.com/xtaci/eventloop/internal/xlog"
)

// ServerChannel owns a *net.TCPListener. Each accepted connection is wrapped
// as a Channel on ChildExecutor() and delivered to ServerChannel's own
// pipeline as a channelRead message, for a bootstrap.Acceptor (or any
// handler playing that role) to register and initialize — the same
// boss/worker split spec §4.F calls for.
type ServerChannel struct {
	*channel.BaseChannel
	u *listenerUnsafe

	// ChildExecutor picks the executor each accepted Channel registers on.
	// Defaults to the boss channel's own executor if nil.
	ChildExecutor func() *executor.Executor
	// ChildConfig is the Config newly accepted channels are built with.
	ChildConfig *channel.Config
}

// UseWorkerGroup wires next (typically a worker eventloop.Group's Next) as
// the executor picker for accepted children; bootstrap.ServerBootstrap
// calls this automatically via a type assertion after building the boss
// channel.
func (sc *ServerChannel) UseWorkerGroup(next func() *executor.Executor) {
	sc.ChildExecutor = next
}

// NewServerChannel allocates a ServerChannel on exec.
func NewServerChannel(exec *executor.Executor, cfg *channel.Config) *ServerChannel {
	base := channel.NewBaseChannel(exec, cfg)
	sc := &ServerChannel{BaseChannel: base, ChildConfig: channel.NewConfig()}
	sc.u = &listenerUnsafe{sc: sc}
	base.SetUnsafe(sc.u)
	return sc
}

type listenerUnsafe struct {
	sc       *ServerChannel
	listener *net.TCPListener
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
	addr, err := net.ResolveTCPAddr("tcp", local.String())
	if err != nil {
		promise.TrySetFailure(errors.Wrap(err, "tcp: resolve listen address"))
		return
	}
	lis, err := net.ListenTCP("tcp", addr)
	if err != nil {
		promise.TrySetFailure(errors.Wrap(err, "tcp: listen"))
		return
	}
	u.listener = lis
	u.sc.Underlying().NotifyActive()
	go u.acceptLoop()
	promise.TrySetSuccess()
}

func (u *listenerUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	promise.TrySetFailure(errors.New("tcp: Connect not supported on ServerChannel"))
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
		conn, err := u.listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&u.closed) == 1 {
				return
			}
			xlog.Errorf("tcp: accept on %s: %v", u.listener.Addr(), err)
			return
		}
		childExec := u.sc.Executor()
		if u.sc.ChildExecutor != nil {
			childExec = u.sc.ChildExecutor()
		}
		childCfg := u.sc.ChildConfig
		child := NewChannelFromConn(childExec, childCfg, conn)
		boss := u.sc
		boss.Executor().Execute(func() {
			boss.Underlying().NotifyRead(child)
			boss.Underlying().NotifyReadComplete()
		})
	}
}
