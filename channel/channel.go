package channel

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// Unsafe exposes the raw I/O primitives a transport implements and that
// only the pipeline's Head context is allowed to call (spec §3: "an
// 'unsafe' inner object exposing raw I/O primitives used only by the
// pipeline head"). Every method here executes on the channel's own
// executor; BaseChannel guarantees that by only ever invoking Unsafe from
// within a head-handler callback, which the pipeline already dispatches
// through the executor.
type Unsafe interface {
	LocalAddress() Address
	RemoteAddress() Address

	Bind(local Address, promise future.Promise)
	Connect(remote, local Address, promise future.Promise)
	Disconnect(promise future.Promise)
	Close(promise future.Promise)
	Deregister(promise future.Promise)
	BeginRead()
	Write(msg interface{}, promise future.Promise)
	Flush()
}

// Notifier is the upward-facing half of the contract: a transport's Unsafe
// implementation calls these on its BaseChannel to push lifecycle and data
// events into the pipeline and to report outbound backpressure. Kept
// separate from Unsafe (the downward half) so the two directions of the
// channel/transport contract read as distinct interfaces.
type Notifier interface {
	NotifyRegistered()
	NotifyUnregistered()
	NotifyActive()
	NotifyInactive()
	NotifyRead(msg interface{})
	NotifyReadComplete()
	NotifyUserEvent(evt interface{})
	NotifyException(cause error)

	// ReportPendingBytes informs the channel of a change (positive when
	// queueing, negative when draining) in outbound bytes pending on the
	// wire, driving the writability watermark crossing in spec §8
	// invariant 5.
	ReportPendingBytes(delta int)
}

// Channel is a per-connection (or per in-VM-peer) state machine bound to
// one executor, exposing bind/connect/read/write/flush/close through its
// Pipeline.
type Channel interface {
	ID() string
	Pipeline() *Pipeline
	Config() *Config
	Executor() *executor.Executor

	LocalAddress() Address
	RemoteAddress() Address
	State() State
	IsOpen() bool
	IsActive() bool
	IsWritable() bool

	Attr(key string) (interface{}, bool)
	SetAttr(key string, value interface{})

	Bind(local Address) future.Future
	Connect(remote Address) future.Future
	ConnectLocal(remote, local Address) future.Future
	Disconnect() future.Future
	Close() future.Future
	Deregister() future.Future
	Read() Channel
	Write(msg interface{}) future.Future
	Flush() Channel
	WriteAndFlush(msg interface{}) future.Future

	CloseFuture() future.Future
}

var channelSeq int64

// channelImpl is the concrete Channel plus Notifier implementation shared
// by every transport; transports embed *channelImpl (via BaseChannel) and
// supply their own Unsafe.
type channelImpl struct {
	id   string
	exec *executor.Executor
	cfg  *Config
	pipe *Pipeline
	u    Unsafe

	state int32 // State, atomic

	attrMu sync.RWMutex
	attrs  map[string]interface{}

	pendingBytes int32 // atomic
	writable     int32 // atomic, 1/0

	closePromise future.Promise
}

// BaseChannel is embedded by concrete transport channel types. Construct
// with NewBaseChannel, then call SetUnsafe once the transport's Unsafe
// implementation (which typically needs a back-reference to the
// BaseChannel) has been built.
type BaseChannel struct {
	*channelImpl
}

// NewBaseChannel allocates a channel bound to exec with the given config.
// The channel starts in StateOpen; callers (a Bootstrap, an acceptor, or
// the local transport registry) subsequently call Register then Bind
// and/or Connect through its Pipeline.
func NewBaseChannel(exec *executor.Executor, cfg *Config) *BaseChannel {
	if cfg == nil {
		cfg = NewConfig()
	}
	seq := atomic.AddInt64(&channelSeq, 1)
	ci := &channelImpl{
		id:    "ch-" + strconv.FormatInt(seq, 10),
		exec:  exec,
		cfg:   cfg,
		attrs: make(map[string]interface{}),
		state: int32(StateOpen),
	}
	ci.closePromise = future.NewPromise(exec)
	ci.writable = 1
	ci.pipe = newPipeline(ci)
	return &BaseChannel{channelImpl: ci}
}

// SetUnsafe wires the transport's raw-I/O implementation into the
// channel. Must be called before the channel is registered.
func (b *BaseChannel) SetUnsafe(u Unsafe) { b.channelImpl.u = u }

// Underlying exposes the concrete channelImpl for transport packages that
// need Notifier in addition to the public Channel surface (Go interfaces
// can't express "implements A and B" as a single embeddable return type
// without this accessor).
func (b *BaseChannel) Underlying() *channelImpl { return b.channelImpl }

func (c *channelImpl) ID() string                { return c.id }
func (c *channelImpl) Pipeline() *Pipeline        { return c.pipe }
func (c *channelImpl) Config() *Config            { return c.cfg }
func (c *channelImpl) Executor() *executor.Executor { return c.exec }

func (c *channelImpl) LocalAddress() Address {
	if c.u == nil {
		return nil
	}
	return c.u.LocalAddress()
}
func (c *channelImpl) RemoteAddress() Address {
	if c.u == nil {
		return nil
	}
	return c.u.RemoteAddress()
}

func (c *channelImpl) State() State { return State(atomic.LoadInt32(&c.state)) }
func (c *channelImpl) IsOpen() bool  { return c.State() != StateClosed }
func (c *channelImpl) IsActive() bool { return c.State() == StateActive }
func (c *channelImpl) IsWritable() bool { return atomic.LoadInt32(&c.writable) == 1 }

func (c *channelImpl) Attr(key string) (interface{}, bool) {
	c.attrMu.RLock()
	defer c.attrMu.RUnlock()
	v, ok := c.attrs[key]
	return v, ok
}

func (c *channelImpl) SetAttr(key string, value interface{}) {
	c.attrMu.Lock()
	defer c.attrMu.Unlock()
	c.attrs[key] = value
}

func (c *channelImpl) CloseFuture() future.Future { return c.closePromise }

// Register transitions Open -> Registered on exec and fires
// channelRegistered; it never fires channelActive, and a call on a channel
// that has left StateOpen fails the promise with ErrAlreadyBound. Bootstrap
// and the local transport's registry call this once per channel, exactly
// once.
func (c *channelImpl) Register(promise future.Promise) {
	c.exec.Execute(func() {
		if !atomic.CompareAndSwapInt32(&c.state, int32(StateOpen), int32(StateRegistered)) {
			promise.TrySetFailure(ErrAlreadyBound)
			return
		}
		c.pipe.FireChannelRegistered()
		promise.TrySetSuccess()
	})
}

func (c *channelImpl) Bind(local Address) future.Future { return c.pipe.Bind(local) }
func (c *channelImpl) Connect(remote Address) future.Future {
	return c.pipe.Connect(remote, nil)
}
func (c *channelImpl) ConnectLocal(remote, local Address) future.Future {
	return c.pipe.Connect(remote, local)
}
func (c *channelImpl) Disconnect() future.Future { return c.pipe.Disconnect() }
func (c *channelImpl) Close() future.Future       { return c.pipe.Close() }
func (c *channelImpl) Deregister() future.Future  { return c.pipe.Deregister() }
func (c *channelImpl) Read() Channel {
	c.pipe.Read()
	return c
}
func (c *channelImpl) Write(msg interface{}) future.Future { return c.pipe.Write(msg) }
func (c *channelImpl) Flush() Channel {
	c.pipe.Flush()
	return c
}
func (c *channelImpl) WriteAndFlush(msg interface{}) future.Future {
	return c.pipe.WriteAndFlush(msg)
}

// unsafe* methods are called only by the pipeline's headHandler, itself
// only ever invoked on this channel's executor.
func (c *channelImpl) unsafeBind(local Address, promise future.Promise) {
	if c.State() > StateRegistered {
		promise.TrySetFailure(ErrAlreadyBound)
		return
	}
	c.u.Bind(local, promise)
}

func (c *channelImpl) unsafeConnect(remote, local Address, promise future.Promise) {
	if c.State() < StateRegistered {
		promise.TrySetFailure(ErrNotRegistered)
		return
	}
	c.u.Connect(remote, local, promise)
}

func (c *channelImpl) unsafeDisconnect(promise future.Promise) {
	c.u.Disconnect(promise)
}

func (c *channelImpl) unsafeClose(promise future.Promise) {
	c.u.Close(promise)
}

func (c *channelImpl) unsafeDeregister(promise future.Promise) {
	c.u.Deregister(promise)
}

func (c *channelImpl) unsafeBeginRead() {
	c.u.BeginRead()
}

func (c *channelImpl) unsafeWrite(msg interface{}, promise future.Promise) {
	if c.State() == StateClosed {
		promise.TrySetFailure(ErrClosedChannel)
		if releasable, ok := msg.(interface{ Release() bool }); ok {
			releasable.Release()
		}
		return
	}
	c.u.Write(msg, promise)
}

func (c *channelImpl) unsafeFlush() {
	c.u.Flush()
}

// Notifier implementation: called by a transport's Unsafe to push
// lifecycle/data events up into the pipeline.

func (c *channelImpl) NotifyRegistered() {
	atomic.StoreInt32(&c.state, int32(StateRegistered))
	c.pipe.FireChannelRegistered()
}

func (c *channelImpl) NotifyUnregistered() {
	c.pipe.FireChannelUnregistered()
}

func (c *channelImpl) NotifyActive() {
	atomic.StoreInt32(&c.state, int32(StateActive))
	c.pipe.FireChannelActive()
}

func (c *channelImpl) NotifyInactive() {
	if atomic.SwapInt32(&c.state, int32(StateClosed)) != int32(StateClosed) {
		c.pipe.FireChannelInactive()
		c.closePromise.TrySetSuccess()
	}
}

func (c *channelImpl) NotifyRead(msg interface{}) { c.pipe.FireChannelRead(msg) }
func (c *channelImpl) NotifyReadComplete()        { c.pipe.FireChannelReadComplete() }
func (c *channelImpl) NotifyUserEvent(evt interface{}) {
	c.pipe.FireUserEventTriggered(evt)
}
func (c *channelImpl) NotifyException(cause error) { c.pipe.FireExceptionCaught(cause) }

// ReportPendingBytes implements the writability watermark crossing (spec
// §8 invariant 5): crossing the high mark while writable fires
// channelWritabilityChanged(false) exactly once; draining below the low
// mark fires it again exactly once per crossing.
func (c *channelImpl) ReportPendingBytes(delta int) {
	pending := atomic.AddInt32(&c.pendingBytes, int32(delta))
	high := int32(c.cfg.WriteBufferHighWaterMark)
	low := int32(c.cfg.WriteBufferLowWaterMark)

	if pending >= high {
		if atomic.CompareAndSwapInt32(&c.writable, 1, 0) {
			c.pipe.FireChannelWritabilityChanged()
		}
	} else if pending <= low {
		if atomic.CompareAndSwapInt32(&c.writable, 0, 1) {
			c.pipe.FireChannelWritabilityChanged()
		}
	}
}
