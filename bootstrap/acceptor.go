package bootstrap

import (
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/eventloop"
	"github.com/xtaci/eventloop/future"
	"github.com/xtaci/eventloop/internal/xlog"
)

// Acceptor sits at the tail of a boss (listening) channel's pipeline. Each
// transport's accept loop (local.ServerChannel.acceptChild, tcp's listener
// goroutine, ...) constructs the child channel already bound to an
// executor — typically WorkerGroup.Next() — and delivers it as a
// channelRead message on the boss pipeline; Acceptor runs ChildInit on it
// and registers it, matching spec §4.F's "accepted sockets registered on
// the worker group, running the child handler initializer."
type Acceptor struct {
	channel.HandlerBase

	WorkerGroup *eventloop.Group
	ChildConfig *channel.Config
	ChildInit   func(p *channel.Pipeline)
}

func (a *Acceptor) ChannelRead(ctx channel.Context, msg interface{}) {
	child, ok := msg.(channel.Channel)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	if a.ChildInit != nil {
		init := a.ChildInit
		if err := child.Pipeline().AddLast("acceptor-init", &channel.Initializer{Init: init}); err != nil {
			xlog.Errorf("acceptor: init child %s: %v", child.ID(), err)
			child.Close()
			return
		}
	}
	if registerer, ok := child.(interface{ Register(future.Promise) }); ok {
		p := future.NewPromise(child.Executor())
		registerer.Register(p)
		p.AddListener(func(f future.Future) {
			if !f.IsSuccess() {
				xlog.Errorf("acceptor: register child %s: %v", child.ID(), f.Cause())
				return
			}
			// Transports whose accepted connections arrive already dialed
			// (tcp, kcp) expose Activate to fire channelActive and start
			// pumping reads once registration has completed.
			if activator, ok := child.(interface{ Activate() }); ok {
				activator.Activate()
			}
		})
	}
}

func (a *Acceptor) ExceptionCaught(ctx channel.Context, cause error) {
	xlog.Errorf("acceptor: exception on %s: %v", ctx.Channel().ID(), cause)
}
