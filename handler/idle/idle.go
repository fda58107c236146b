// Package idle implements the read/write idle-state handler SPEC_FULL §11
// supplements: it schedules itself on the channel's own executor (via
// executor.ScheduleAtFixedRate, the same primitive transport/tcp's
// keepalive-free design otherwise doesn't need) and fires a UserEvent when
// no inbound or outbound traffic has crossed the channel within the
// configured window — mirroring Netty's IdleStateHandler, which kcptun
// itself reimplements ad hoc via its own KeepAliveInterval/Timeout fields
// in smux.Config.
package idle

import (
	"sync/atomic"
	"time"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// State identifies which direction went idle.
type State int

const (
	ReaderIdle State = iota
	WriterIdle
	AllIdle
)

// Event is fired via ctx.FireUserEventTriggered when Handler detects an
// idle crossing.
type Event struct {
	State State
}

// Handler tracks the last read/write timestamps (time.Now().UnixNano(),
// stored atomically) and fires Event once a
// configured idle window elapses without activity in that direction.
type Handler struct {
	channel.HandlerBase

	ReaderIdleTimeout time.Duration
	WriterIdleTimeout time.Duration
	AllIdleTimeout    time.Duration

	lastRead  int64 // unix nano, atomic
	lastWrite int64 // unix nano, atomic

	task executor.ScheduledTask
}

func (h *Handler) HandlerAdded(ctx channel.Context) {
	now := time.Now().UnixNano()
	atomic.StoreInt64(&h.lastRead, now)
	atomic.StoreInt64(&h.lastWrite, now)

	period := h.shortestTimeout()
	if period <= 0 {
		return
	}
	exec := ctx.Executor()
	h.task = exec.ScheduleAtFixedRate(func() { h.checkIdle(ctx) }, period, period)
}

func (h *Handler) HandlerRemoved(ctx channel.Context) {
	if h.task != nil {
		h.task.Cancel()
	}
}

func (h *Handler) shortestTimeout() time.Duration {
	shortest := time.Duration(0)
	for _, d := range []time.Duration{h.ReaderIdleTimeout, h.WriterIdleTimeout, h.AllIdleTimeout} {
		if d <= 0 {
			continue
		}
		if shortest == 0 || d < shortest {
			shortest = d
		}
	}
	return shortest
}

func (h *Handler) checkIdle(ctx channel.Context) {
	now := time.Now()
	lastRead := time.Unix(0, atomic.LoadInt64(&h.lastRead))
	lastWrite := time.Unix(0, atomic.LoadInt64(&h.lastWrite))

	if h.ReaderIdleTimeout > 0 && now.Sub(lastRead) >= h.ReaderIdleTimeout {
		ctx.FireUserEventTriggered(Event{State: ReaderIdle})
	}
	if h.WriterIdleTimeout > 0 && now.Sub(lastWrite) >= h.WriterIdleTimeout {
		ctx.FireUserEventTriggered(Event{State: WriterIdle})
	}
	if h.AllIdleTimeout > 0 && now.Sub(lastRead) >= h.AllIdleTimeout && now.Sub(lastWrite) >= h.AllIdleTimeout {
		ctx.FireUserEventTriggered(Event{State: AllIdle})
	}
}

func (h *Handler) ChannelRead(ctx channel.Context, msg interface{}) {
	atomic.StoreInt64(&h.lastRead, time.Now().UnixNano())
	ctx.FireChannelRead(msg)
}

func (h *Handler) Write(ctx channel.Context, msg interface{}, promise future.Promise) {
	atomic.StoreInt64(&h.lastWrite, time.Now().UnixNano())
	ctx.WritePromise(msg, promise)
}
