package tcp

import (
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
)

// ChannelFactory builds an unconnected Channel; it has the shape
// bootstrap.ChannelFactory expects.
func ChannelFactory(exec *executor.Executor, cfg *channel.Config) channel.Channel {
	return NewChannel(exec, cfg)
}

// ServerChannelFactory builds a ServerChannel; it has the shape
// bootstrap.ChannelFactory expects (the ServerBootstrap only ever calls it
// once, for the boss channel).
func ServerChannelFactory(exec *executor.Executor, cfg *channel.Config) channel.Channel {
	return NewServerChannel(exec, cfg)
}
