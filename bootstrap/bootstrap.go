// Package bootstrap provides the fluent assembly of groups, channel
// factory, options, and an initializer handler that spec §4.F describes:
// Bootstrap for clients, ServerBootstrap for listening transports.
package bootstrap

import (
	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/eventloop"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// ChannelFactory constructs a fresh, unregistered Channel bound to exec,
// configured with cfg. Each transport (local, tcp, kcp, smux) supplies its
// own factory.
type ChannelFactory func(exec *executor.Executor, cfg *channel.Config) channel.Channel

// Bootstrap assembles a single event-loop group, a channel factory, a set
// of options, and an initializer, and drives Connect/Bind for that single
// channel — the client-side / connectionless case.
type Bootstrap struct {
	group   *eventloop.Group
	factory ChannelFactory
	cfg     *channel.Config
	init    func(p *channel.Pipeline)
}

// NewBootstrap returns a Bootstrap using group for its one channel and
// factory to construct it.
func NewBootstrap(group *eventloop.Group, factory ChannelFactory) *Bootstrap {
	return &Bootstrap{group: group, factory: factory, cfg: channel.NewConfig()}
}

// Option sets a recognized channel option (spec §6); returns b for
// chaining, matching the teacher's own fluent CLI-flag-into-config style.
func (b *Bootstrap) Option(opt channel.Option, value interface{}) *Bootstrap {
	if err := b.cfg.SetOption(opt, value); err != nil {
		panic(errors.Wrap(err, "bootstrap: option"))
	}
	return b
}

// Handler installs the initializer run once the channel registers.
func (b *Bootstrap) Handler(init func(p *channel.Pipeline)) *Bootstrap {
	b.init = init
	return b
}

func (b *Bootstrap) newChannel() channel.Channel {
	exec := b.group.Next()
	ch := b.factory(exec, b.cfg)
	if b.init != nil {
		init := b.init
		_ = ch.Pipeline().AddLast("bootstrap-init", &channel.Initializer{Init: init})
	}
	return ch
}

func (b *Bootstrap) register(ch channel.Channel) future.Future {
	p := future.NewPromise(ch.Executor())
	if registerer, ok := ch.(interface{ Register(future.Promise) }); ok {
		registerer.Register(p)
	} else {
		p.TrySetSuccess()
	}
	return p
}

// Connect constructs a channel, registers it, runs the initializer, and
// connects to remote.
func (b *Bootstrap) Connect(remote channel.Address) (channel.Channel, future.Future) {
	return b.ConnectLocal(remote, nil)
}

// ConnectLocal is Connect with an explicit local bind address.
func (b *Bootstrap) ConnectLocal(remote, local channel.Address) (channel.Channel, future.Future) {
	ch := b.newChannel()
	regFuture := b.register(ch)
	resultPromise := future.NewPromise(ch.Executor())
	regFuture.AddListener(func(f future.Future) {
		if !f.IsSuccess() {
			resultPromise.TrySetFailure(f.Cause())
			return
		}
		ch.ConnectLocal(remote, local).AddListener(func(cf future.Future) {
			if cf.IsSuccess() {
				resultPromise.TrySetSuccess()
			} else {
				resultPromise.TrySetFailure(cf.Cause())
			}
		})
	})
	return ch, resultPromise
}

// Bind constructs a channel, registers it, runs the initializer, and binds
// to local — used for connectionless/local-transport listeners that don't
// need the boss/worker split of ServerBootstrap.
func (b *Bootstrap) Bind(local channel.Address) (channel.Channel, future.Future) {
	ch := b.newChannel()
	regFuture := b.register(ch)
	resultPromise := future.NewPromise(ch.Executor())
	regFuture.AddListener(func(f future.Future) {
		if !f.IsSuccess() {
			resultPromise.TrySetFailure(f.Cause())
			return
		}
		ch.Bind(local).AddListener(func(bf future.Future) {
			if bf.IsSuccess() {
				resultPromise.TrySetSuccess()
			} else {
				resultPromise.TrySetFailure(bf.Cause())
			}
		})
	})
	return ch, resultPromise
}
