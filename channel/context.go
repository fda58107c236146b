package channel

import (
	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// Context is the per (handler, pipeline) node handlers use to propagate
// events onward and to issue outbound operations. Its lifetime equals its
// residency in the pipeline.
type Context interface {
	Name() string
	Handler() Handler
	Channel() Channel
	Pipeline() *Pipeline
	Executor() *executor.Executor
	Allocator() *buffer.Allocator

	FireChannelRegistered() Context
	FireChannelUnregistered() Context
	FireChannelActive() Context
	FireChannelInactive() Context
	FireChannelRead(msg interface{}) Context
	FireChannelReadComplete() Context
	FireUserEventTriggered(evt interface{}) Context
	FireChannelWritabilityChanged() Context
	FireExceptionCaught(cause error) Context

	Bind(local Address) future.Future
	Connect(remote, local Address) future.Future
	Disconnect() future.Future
	Close() future.Future
	Deregister() future.Future
	Read() Context
	Write(msg interface{}) future.Future
	// WritePromise is like Write but completes the caller-supplied promise
	// instead of allocating a new one — the chaining primitive codec
	// handlers use to forward a transformed message without losing the
	// original caller's completion signal.
	WritePromise(msg interface{}, promise future.Promise)
	WriteAndFlush(msg interface{}) future.Future
	Flush() Context
}

// hctx is the concrete doubly-linked handler context. Contexts live in an
// arena-like intrusive list owned by the Pipeline; prev/next are plain
// pointers (not weak refs — Go's GC handles the cycle fine since the
// pipeline and its channel share one lifetime), matching Design Notes'
// guidance to avoid raw cyclic references by keeping residency explicit
// (added/removed) rather than by pointer shape.
type hctx struct {
	name    string
	handler Handler
	pipe    *Pipeline

	prev, next *hctx

	inboundMask  uint32
	outboundMask uint32
}

func (c *hctx) Name() string               { return c.name }
func (c *hctx) Handler() Handler           { return c.handler }
func (c *hctx) Channel() Channel           { return c.pipe.channel }
func (c *hctx) Pipeline() *Pipeline        { return c.pipe }
func (c *hctx) Executor() *executor.Executor { return c.pipe.channel.Executor() }
func (c *hctx) Allocator() *buffer.Allocator { return c.pipe.channel.Config().Allocator }

func (c *hctx) FireChannelRegistered() Context {
	n := c.pipe.nextInbound(c, maskChannelRegistered)
	c.pipe.invoke(n, func() {
		n.handler.(ChannelRegisteredHandler).ChannelRegistered(n)
	})
	return c
}

func (c *hctx) FireChannelUnregistered() Context {
	n := c.pipe.nextInbound(c, maskChannelUnregistered)
	c.pipe.invoke(n, func() {
		n.handler.(ChannelUnregisteredHandler).ChannelUnregistered(n)
	})
	return c
}

func (c *hctx) FireChannelActive() Context {
	n := c.pipe.nextInbound(c, maskChannelActive)
	c.pipe.invoke(n, func() {
		n.handler.(ChannelActiveHandler).ChannelActive(n)
	})
	return c
}

func (c *hctx) FireChannelInactive() Context {
	n := c.pipe.nextInbound(c, maskChannelInactive)
	c.pipe.invoke(n, func() {
		n.handler.(ChannelInactiveHandler).ChannelInactive(n)
	})
	return c
}

func (c *hctx) FireChannelRead(msg interface{}) Context {
	n := c.pipe.nextInbound(c, maskChannelRead)
	c.pipe.invoke(n, func() {
		n.handler.(ChannelReadHandler).ChannelRead(n, msg)
	})
	return c
}

func (c *hctx) FireChannelReadComplete() Context {
	n := c.pipe.nextInbound(c, maskChannelReadComplete)
	c.pipe.invoke(n, func() {
		n.handler.(ChannelReadCompleteHandler).ChannelReadComplete(n)
	})
	return c
}

func (c *hctx) FireUserEventTriggered(evt interface{}) Context {
	n := c.pipe.nextInbound(c, maskUserEvent)
	c.pipe.invoke(n, func() {
		n.handler.(UserEventHandler).UserEventTriggered(n, evt)
	})
	return c
}

func (c *hctx) FireChannelWritabilityChanged() Context {
	n := c.pipe.nextInbound(c, maskWritabilityChanged)
	c.pipe.invoke(n, func() {
		n.handler.(WritabilityChangedHandler).ChannelWritabilityChanged(n)
	})
	return c
}

func (c *hctx) FireExceptionCaught(cause error) Context {
	n := c.pipe.nextInbound(c, maskException)
	c.pipe.invoke(n, func() {
		n.handler.(ExceptionHandler).ExceptionCaught(n, cause)
	})
	return c
}

func (c *hctx) Bind(local Address) future.Future {
	p := future.NewPromise(c.Executor())
	n := c.pipe.nextOutbound(c, maskBind)
	c.pipe.invoke(n, func() {
		n.handler.(BindHandler).Bind(n, local, p)
	})
	return p
}

func (c *hctx) Connect(remote, local Address) future.Future {
	p := future.NewPromise(c.Executor())
	n := c.pipe.nextOutbound(c, maskConnect)
	c.pipe.invoke(n, func() {
		n.handler.(ConnectHandler).Connect(n, remote, local, p)
	})
	return p
}

func (c *hctx) Disconnect() future.Future {
	p := future.NewPromise(c.Executor())
	n := c.pipe.nextOutbound(c, maskDisconnect)
	c.pipe.invoke(n, func() {
		n.handler.(DisconnectHandler).Disconnect(n, p)
	})
	return p
}

func (c *hctx) Close() future.Future {
	p := future.NewPromise(c.Executor())
	n := c.pipe.nextOutbound(c, maskClose)
	c.pipe.invoke(n, func() {
		n.handler.(CloseHandler).Close(n, p)
	})
	return p
}

func (c *hctx) Deregister() future.Future {
	p := future.NewPromise(c.Executor())
	n := c.pipe.nextOutbound(c, maskDeregister)
	c.pipe.invoke(n, func() {
		n.handler.(DeregisterHandler).Deregister(n, p)
	})
	return p
}

func (c *hctx) Read() Context {
	n := c.pipe.nextOutbound(c, maskReadRequest)
	c.pipe.invoke(n, func() {
		n.handler.(ReadRequestHandler).Read(n)
	})
	return c
}

func (c *hctx) Write(msg interface{}) future.Future {
	p := future.NewPromise(c.Executor())
	n := c.pipe.nextOutbound(c, maskWrite)
	c.pipe.invoke(n, func() {
		n.handler.(WriteHandler).Write(n, msg, p)
	})
	return p
}

func (c *hctx) WritePromise(msg interface{}, promise future.Promise) {
	n := c.pipe.nextOutbound(c, maskWrite)
	c.pipe.invoke(n, func() {
		n.handler.(WriteHandler).Write(n, msg, promise)
	})
}

func (c *hctx) WriteAndFlush(msg interface{}) future.Future {
	f := c.Write(msg)
	c.Flush()
	return f
}

func (c *hctx) Flush() Context {
	n := c.pipe.nextOutbound(c, maskFlush)
	c.pipe.invoke(n, func() {
		n.handler.(FlushHandler).Flush(n)
	})
	return c
}
