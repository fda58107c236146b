package channel

import (
	"sync"

	"github.com/xtaci/eventloop/future"
	"github.com/xtaci/eventloop/internal/xlog"
)

// Pipeline is the doubly-linked handler chain for one Channel, with fixed
// sentinel Head and Tail contexts. Head converts outbound operations into
// calls on the channel's Unsafe; Tail is the default inbound terminator.
type Pipeline struct {
	channel *channelImpl

	mu    sync.Mutex
	names map[string]*hctx

	head *hctx
	tail *hctx
}

func newPipeline(ch *channelImpl) *Pipeline {
	p := &Pipeline{channel: ch, names: make(map[string]*hctx)}
	headHandler := &headHandler{channel: ch}
	tailHandler := &tailHandler{}
	p.head = &hctx{name: "head", handler: headHandler, pipe: p}
	p.tail = &hctx{name: "tail", handler: tailHandler, pipe: p}
	p.head.inboundMask, p.head.outboundMask = computeMask(headHandler)
	p.tail.inboundMask, p.tail.outboundMask = computeMask(tailHandler)
	p.head.next = p.tail
	p.tail.prev = p.head
	return p
}

// invoke runs fn on ctx's executor: inline if the caller is already on the
// loop, trampolined via Execute otherwise (spec §5, "direct calls outside
// the loop are trampolined").
func (p *Pipeline) invoke(ctx *hctx, fn func()) {
	ctx.Executor().Execute(fn)
}

func (p *Pipeline) nextInbound(from *hctx, bit uint32) *hctx {
	n := from.next
	for n.inboundMask&bit == 0 && n != p.tail {
		n = n.next
	}
	return n
}

func (p *Pipeline) nextOutbound(from *hctx, bit uint32) *hctx {
	n := from.prev
	for n.outboundMask&bit == 0 && n != p.head {
		n = n.prev
	}
	return n
}

// addGeneric builds a new context for name/handler, links it into place by
// calling insert with it, and runs HandlerAdded. Duplicate names fail
// with ErrDuplicate. The whole link-then-HandlerAdded sequence runs as one
// task on the channel's executor so no inbound event can interleave with a
// handler's own addition — the ordering guarantee initializers rely on.
func (p *Pipeline) addGeneric(name string, handler Handler, insert func(newCtx *hctx)) error {
	resultCh := make(chan error, 1)
	p.channel.Executor().Execute(func() {
		p.mu.Lock()
		if _, exists := p.names[name]; exists {
			p.mu.Unlock()
			resultCh <- ErrDuplicate
			return
		}
		ctx := &hctx{name: name, handler: handler, pipe: p}
		ctx.inboundMask, ctx.outboundMask = computeMask(handler)
		insert(ctx)
		p.names[name] = ctx
		p.mu.Unlock()

		handler.HandlerAdded(ctx)
		resultCh <- nil
	})
	return <-resultCh
}

// AddFirst inserts handler immediately after Head.
func (p *Pipeline) AddFirst(name string, handler Handler) error {
	return p.addGeneric(name, handler, func(ctx *hctx) {
		ctx.prev = p.head
		ctx.next = p.head.next
		p.head.next.prev = ctx
		p.head.next = ctx
	})
}

// AddLast inserts handler immediately before Tail.
func (p *Pipeline) AddLast(name string, handler Handler) error {
	return p.addGeneric(name, handler, func(ctx *hctx) {
		ctx.prev = p.tail.prev
		ctx.next = p.tail
		p.tail.prev.next = ctx
		p.tail.prev = ctx
	})
}

// AddBefore inserts handler immediately before the handler named baseName.
func (p *Pipeline) AddBefore(baseName, name string, handler Handler) error {
	return p.addGeneric(name, handler, func(ctx *hctx) {
		base := p.names[baseName]
		if base == nil {
			base = p.tail
		}
		ctx.prev = base.prev
		ctx.next = base
		base.prev.next = ctx
		base.prev = ctx
	})
}

// AddAfter inserts handler immediately after the handler named baseName.
func (p *Pipeline) AddAfter(baseName, name string, handler Handler) error {
	return p.addGeneric(name, handler, func(ctx *hctx) {
		base := p.names[baseName]
		if base == nil {
			base = p.head
		}
		ctx.prev = base
		ctx.next = base.next
		base.next.prev = ctx
		base.next = ctx
	})
}

// Remove unlinks the handler named name, firing HandlerRemoved once it is
// out of the chain. Returns ErrNotFound if no such handler is present.
func (p *Pipeline) Remove(name string) error {
	resultCh := make(chan error, 1)
	p.channel.Executor().Execute(func() {
		p.mu.Lock()
		ctx, ok := p.names[name]
		if !ok {
			p.mu.Unlock()
			resultCh <- ErrNotFound
			return
		}
		delete(p.names, name)
		ctx.prev.next = ctx.next
		ctx.next.prev = ctx.prev
		p.mu.Unlock()

		ctx.handler.HandlerRemoved(ctx)
		resultCh <- nil
	})
	return <-resultCh
}

// Get returns the Context for a named handler, or nil if absent.
func (p *Pipeline) Get(name string) Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx, ok := p.names[name]; ok {
		return ctx
	}
	return nil
}

// Inbound entry points, invoked by the channel/unsafe at the head of the
// chain, matching Pipeline.fireXxx in the teacher framework this ports.
func (p *Pipeline) FireChannelRegistered()          { p.head.FireChannelRegistered() }
func (p *Pipeline) FireChannelUnregistered()        { p.head.FireChannelUnregistered() }
func (p *Pipeline) FireChannelActive()              { p.head.FireChannelActive() }
func (p *Pipeline) FireChannelInactive()            { p.head.FireChannelInactive() }
func (p *Pipeline) FireChannelRead(msg interface{}) { p.head.FireChannelRead(msg) }
func (p *Pipeline) FireChannelReadComplete()        { p.head.FireChannelReadComplete() }
func (p *Pipeline) FireUserEventTriggered(evt interface{}) {
	p.head.FireUserEventTriggered(evt)
}
func (p *Pipeline) FireChannelWritabilityChanged() { p.head.FireChannelWritabilityChanged() }
func (p *Pipeline) FireExceptionCaught(cause error) { p.head.FireExceptionCaught(cause) }

// Outbound entry points, invoked by user code or Channel's own
// convenience methods, starting traversal at Tail and heading toward Head.
func (p *Pipeline) Bind(local Address) future.Future        { return p.tail.Bind(local) }
func (p *Pipeline) Connect(remote, local Address) future.Future {
	return p.tail.Connect(remote, local)
}
func (p *Pipeline) Disconnect() future.Future          { return p.tail.Disconnect() }
func (p *Pipeline) Close() future.Future               { return p.tail.Close() }
func (p *Pipeline) Deregister() future.Future          { return p.tail.Deregister() }
func (p *Pipeline) Read()                              { p.tail.Read() }
func (p *Pipeline) Write(msg interface{}) future.Future { return p.tail.Write(msg) }
func (p *Pipeline) WriteAndFlush(msg interface{}) future.Future {
	return p.tail.WriteAndFlush(msg)
}
func (p *Pipeline) Flush() { p.tail.Flush() }

// headHandler is the fixed Head context's handler: every outbound
// operation bottoms out here and is converted into a call on the
// channel's Unsafe.
type headHandler struct {
	HandlerBase
	channel *channelImpl
}

func (h *headHandler) Bind(ctx Context, local Address, promise future.Promise) {
	h.channel.unsafeBind(local, promise)
}
func (h *headHandler) Connect(ctx Context, remote, local Address, promise future.Promise) {
	h.channel.unsafeConnect(remote, local, promise)
}
func (h *headHandler) Disconnect(ctx Context, promise future.Promise) {
	h.channel.unsafeDisconnect(promise)
}
func (h *headHandler) Close(ctx Context, promise future.Promise) {
	h.channel.unsafeClose(promise)
}
func (h *headHandler) Deregister(ctx Context, promise future.Promise) {
	h.channel.unsafeDeregister(promise)
}
func (h *headHandler) Read(ctx Context) {
	h.channel.unsafeBeginRead()
}
func (h *headHandler) Write(ctx Context, msg interface{}, promise future.Promise) {
	h.channel.unsafeWrite(msg, promise)
}
func (h *headHandler) Flush(ctx Context) {
	h.channel.unsafeFlush()
}

// tailHandler is the fixed Tail context's handler: the default inbound
// terminator. It logs exceptions and releases unconsumed inbound messages
// (spec §5 resource policy: "The pipeline Tail releases unconsumed inbound
// messages").
type tailHandler struct{ HandlerBase }

func (t *tailHandler) ChannelRegistered(ctx Context)   {}
func (t *tailHandler) ChannelUnregistered(ctx Context) {}
func (t *tailHandler) ChannelActive(ctx Context)       {}
func (t *tailHandler) ChannelInactive(ctx Context)     {}
func (t *tailHandler) ChannelReadComplete(ctx Context)  {}
func (t *tailHandler) UserEventTriggered(ctx Context, evt interface{}) {}
func (t *tailHandler) ChannelWritabilityChanged(ctx Context)           {}

func (t *tailHandler) ChannelRead(ctx Context, msg interface{}) {
	if releasable, ok := msg.(interface{ Release() bool }); ok {
		releasable.Release()
	}
	xlog.Warnf("discarded inbound message reaching pipeline tail on channel %s: %T", ctx.Channel().ID(), msg)
}

func (t *tailHandler) ExceptionCaught(ctx Context, cause error) {
	xlog.Errorf("unhandled exception reaching pipeline tail on channel %s: %+v", ctx.Channel().ID(), cause)
}
