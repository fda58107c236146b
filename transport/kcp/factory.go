package kcp

import (
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
)

// ChannelFactory builds an unconnected Channel; shaped for
// bootstrap.ChannelFactory.
func ChannelFactory(exec *executor.Executor, cfg *channel.Config) channel.Channel {
	return NewChannel(exec, cfg)
}

// ServerChannelFactory builds a ServerChannel; shaped for
// bootstrap.ChannelFactory.
func ServerChannelFactory(exec *executor.Executor, cfg *channel.Config) channel.Channel {
	return NewServerChannel(exec, cfg)
}
