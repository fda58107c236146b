package bootstrap

import (
	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/eventloop"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// ServerBootstrap assembles the boss/worker split of spec §4.F: a boss
// group owns the listening channel, a worker group owns every accepted
// child. The boss pipeline always ends in an Acceptor that registers each
// accepted child on the worker group and runs the child initializer.
type ServerBootstrap struct {
	bossGroup   *eventloop.Group
	workerGroup *eventloop.Group
	factory     ChannelFactory
	cfg         *channel.Config
	childCfg    *channel.Config
	childInit   func(p *channel.Pipeline)
}

// NewServerBootstrap returns a ServerBootstrap using boss for the listening
// channel and worker for accepted children, built via factory.
func NewServerBootstrap(boss, worker *eventloop.Group, factory ChannelFactory) *ServerBootstrap {
	return &ServerBootstrap{
		bossGroup:   boss,
		workerGroup: worker,
		factory:     factory,
		cfg:         channel.NewConfig(),
		childCfg:    channel.NewConfig(),
	}
}

// Option sets an option on the listening (boss) channel.
func (b *ServerBootstrap) Option(opt channel.Option, value interface{}) *ServerBootstrap {
	if err := b.cfg.SetOption(opt, value); err != nil {
		panic(errors.Wrap(err, "server bootstrap: option"))
	}
	return b
}

// ChildOption records an option in the child config passed to the Acceptor
// as ChildConfig. The Acceptor does not read that config, and the transports
// build accepted children from their own ServerChannel.ChildConfig, so the
// option is not applied to accepted child channels.
func (b *ServerBootstrap) ChildOption(opt channel.Option, value interface{}) *ServerBootstrap {
	if err := b.childCfg.SetOption(opt, value); err != nil {
		panic(errors.Wrap(err, "server bootstrap: child option"))
	}
	return b
}

// ChildHandler installs the initializer run on each accepted child once it
// registers on the worker group.
func (b *ServerBootstrap) ChildHandler(init func(p *channel.Pipeline)) *ServerBootstrap {
	b.childInit = init
	return b
}

// Bind constructs the boss (listening) channel, registers it, installs the
// Acceptor, and binds to local.
func (b *ServerBootstrap) Bind(local channel.Address) (channel.Channel, future.Future) {
	exec := b.bossGroup.Next()
	boss := b.factory(exec, b.cfg)

	if wired, ok := boss.(interface{ UseWorkerGroup(func() *executor.Executor) }); ok {
		wired.UseWorkerGroup(b.workerGroup.Next)
	}

	_ = boss.Pipeline().AddLast("acceptor", &Acceptor{
		WorkerGroup: b.workerGroup,
		ChildConfig: b.childCfg,
		ChildInit:   b.childInit,
	})

	regPromise := future.NewPromise(exec)
	if registerer, ok := boss.(interface{ Register(future.Promise) }); ok {
		registerer.Register(regPromise)
	} else {
		regPromise.TrySetSuccess()
	}

	result := future.NewPromise(exec)
	regPromise.AddListener(func(f future.Future) {
		if !f.IsSuccess() {
			result.TrySetFailure(f.Cause())
			return
		}
		boss.Bind(local).AddListener(func(bf future.Future) {
			if bf.IsSuccess() {
				result.TrySetSuccess()
			} else {
				result.TrySetFailure(bf.Cause())
			}
		})
	})
	return boss, result
}

// ChildExecutorFunc exposes the worker group's round robin as a
// bootstrap.ChannelFactory-compatible accessor, used by transports (e.g.
// local.ServerChannel.ChildExecutor) that need to pick an executor for
// newly accepted children independent of the full Acceptor handler.
func ChildExecutorFunc(g *eventloop.Group) func() *executor.Executor {
	return g.Next
}
