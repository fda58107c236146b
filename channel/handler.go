package channel

import "github.com/xtaci/eventloop/future"

// Handler is the minimal contract every pipeline node satisfies: the
// lifecycle callbacks fired exactly once as the handler enters and leaves
// residency in a pipeline. Everything else (which inbound/outbound events
// a handler cares about) is expressed as one of the small single-method
// interfaces below and probed for via a type assertion when the handler is
// added — the idiomatic-Go substitute for "any subset of methods",
// avoiding forcing every handler to stub out events it never needs.
type Handler interface {
	HandlerAdded(ctx Context)
	HandlerRemoved(ctx Context)
}

// Sharable marks a Handler instance as safe to attach to more than one
// pipeline at once (its own state, if any, must be synchronized by the
// implementation). Pipeline.AddLast et al. do not require this interface;
// absent it, callers should construct a fresh Handler per channel — the
// default and the safe choice.
type Sharable interface {
	Sharable() bool
}

// Inbound event capability interfaces (spec §4.E, tail-ward).
type (
	ChannelRegisteredHandler interface {
		ChannelRegistered(ctx Context)
	}
	ChannelUnregisteredHandler interface {
		ChannelUnregistered(ctx Context)
	}
	ChannelActiveHandler interface {
		ChannelActive(ctx Context)
	}
	ChannelInactiveHandler interface {
		ChannelInactive(ctx Context)
	}
	ChannelReadHandler interface {
		ChannelRead(ctx Context, msg interface{})
	}
	ChannelReadCompleteHandler interface {
		ChannelReadComplete(ctx Context)
	}
	UserEventHandler interface {
		UserEventTriggered(ctx Context, evt interface{})
	}
	WritabilityChangedHandler interface {
		ChannelWritabilityChanged(ctx Context)
	}
	ExceptionHandler interface {
		ExceptionCaught(ctx Context, cause error)
	}
)

// Outbound operation capability interfaces (spec §4.E, head-ward).
type (
	BindHandler interface {
		Bind(ctx Context, local Address, promise future.Promise)
	}
	ConnectHandler interface {
		Connect(ctx Context, remote, local Address, promise future.Promise)
	}
	DisconnectHandler interface {
		Disconnect(ctx Context, promise future.Promise)
	}
	CloseHandler interface {
		Close(ctx Context, promise future.Promise)
	}
	DeregisterHandler interface {
		Deregister(ctx Context, promise future.Promise)
	}
	ReadRequestHandler interface {
		Read(ctx Context)
	}
	WriteHandler interface {
		Write(ctx Context, msg interface{}, promise future.Promise)
	}
	FlushHandler interface {
		Flush(ctx Context)
	}
)

// mask bits, one per capability interface, computed once when a handler is
// added so traversal can skip straight past contexts that don't implement
// a given event rather than paying a virtual-dispatch/type-assertion cost
// on every hop (spec §4.E / Design Notes "skip mask").
const (
	maskChannelRegistered uint32 = 1 << iota
	maskChannelUnregistered
	maskChannelActive
	maskChannelInactive
	maskChannelRead
	maskChannelReadComplete
	maskUserEvent
	maskWritabilityChanged
	maskException

	maskBind
	maskConnect
	maskDisconnect
	maskClose
	maskDeregister
	maskReadRequest
	maskWrite
	maskFlush
)

func computeMask(h Handler) (inbound, outbound uint32) {
	if _, ok := h.(ChannelRegisteredHandler); ok {
		inbound |= maskChannelRegistered
	}
	if _, ok := h.(ChannelUnregisteredHandler); ok {
		inbound |= maskChannelUnregistered
	}
	if _, ok := h.(ChannelActiveHandler); ok {
		inbound |= maskChannelActive
	}
	if _, ok := h.(ChannelInactiveHandler); ok {
		inbound |= maskChannelInactive
	}
	if _, ok := h.(ChannelReadHandler); ok {
		inbound |= maskChannelRead
	}
	if _, ok := h.(ChannelReadCompleteHandler); ok {
		inbound |= maskChannelReadComplete
	}
	if _, ok := h.(UserEventHandler); ok {
		inbound |= maskUserEvent
	}
	if _, ok := h.(WritabilityChangedHandler); ok {
		inbound |= maskWritabilityChanged
	}
	if _, ok := h.(ExceptionHandler); ok {
		inbound |= maskException
	}
	if _, ok := h.(BindHandler); ok {
		outbound |= maskBind
	}
	if _, ok := h.(ConnectHandler); ok {
		outbound |= maskConnect
	}
	if _, ok := h.(DisconnectHandler); ok {
		outbound |= maskDisconnect
	}
	if _, ok := h.(CloseHandler); ok {
		outbound |= maskClose
	}
	if _, ok := h.(DeregisterHandler); ok {
		outbound |= maskDeregister
	}
	if _, ok := h.(ReadRequestHandler); ok {
		outbound |= maskReadRequest
	}
	if _, ok := h.(WriteHandler); ok {
		outbound |= maskWrite
	}
	if _, ok := h.(FlushHandler); ok {
		outbound |= maskFlush
	}
	return
}

// HandlerBase gives a concrete handler type no-op HandlerAdded/HandlerRemoved
// for free via embedding, so it only has to declare the specific event
// methods it cares about.
type HandlerBase struct{}

func (HandlerBase) HandlerAdded(ctx Context)   {}
func (HandlerBase) HandlerRemoved(ctx Context) {}
