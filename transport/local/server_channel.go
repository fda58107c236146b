package local

import (
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// ServerChannel is bound to an address in the process-wide registry;
// clients connecting to that address are paired with a freshly created
// child channel, which Connect registers and activates and then hands to
// ServerChannel's own pipeline as a channelRead message, so a handler there
// can install the child's handlers —
// mirroring the boss-channel acceptor pattern of spec §4.F, simplified
// here since local transport needs no listen-socket accept loop.
type ServerChannel struct {
	*channel.BaseChannel
	addr string

	// ChildExecutor picks the executor a newly accepted child channel
	// registers on (typically a worker Group's Next()).
	ChildExecutor func() *executor.Executor
	// ChildConfig is the Config newly accepted child channels are built
	// with.
	ChildConfig *channel.Config
}

// NewServerChannel allocates a ServerChannel on exec. Bind (via its
// Pipeline) claims an address in the registry.
func NewServerChannel(exec *executor.Executor, cfg *channel.Config) *ServerChannel {
	base := channel.NewBaseChannel(exec, cfg)
	sc := &ServerChannel{BaseChannel: base, ChildConfig: channel.NewConfig()}
	base.SetUnsafe(&serverUnsafe{sc: sc})
	return sc
}

type serverUnsafe struct {
	sc *ServerChannel
}

func (u *serverUnsafe) LocalAddress() channel.Address  { return Addr(u.sc.addr) }
func (u *serverUnsafe) RemoteAddress() channel.Address { return nil }

func (u *serverUnsafe) Bind(local channel.Address, promise future.Promise) {
	requested := Any
	if local != nil {
		requested = local.String()
	}
	addr, err := registerServer(requested, u.sc)
	if err != nil {
		promise.TrySetFailure(err)
		return
	}
	u.sc.addr = addr
	u.sc.Underlying().NotifyActive()
	promise.TrySetSuccess()
}

func (u *serverUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	promise.TrySetFailure(channel.ErrNotRegistered)
}

func (u *serverUnsafe) Disconnect(promise future.Promise) { promise.TrySetSuccess() }

func (u *serverUnsafe) Close(promise future.Promise) {
	if u.sc.addr != "" {
		unregisterServer(u.sc.addr)
	}
	u.sc.Underlying().NotifyInactive()
	promise.TrySetSuccess()
}

func (u *serverUnsafe) Deregister(promise future.Promise) { promise.TrySetSuccess() }
func (u *serverUnsafe) BeginRead()                        {}
func (u *serverUnsafe) Write(msg interface{}, promise future.Promise) {
	promise.TrySetFailure(channel.ErrWriteRejected)
}
func (u *serverUnsafe) Flush() {}

// acceptChild is called by a connecting client Channel (in package local
// only) to hand the server its half of a newly created pair.
func (sc *ServerChannel) acceptChild(child channel.Channel) {
	sc.Underlying().NotifyRead(child)
	sc.Underlying().NotifyReadComplete()
}
