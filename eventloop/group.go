// Package eventloop implements the event-loop group: a fixed set of
// single-thread executors with a round-robin dispatcher, the unit
// bootstrap and channels register onto.
package eventloop

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// Group holds N executors and hands one out at a time, round-robin, to
// callers that register a channel. A boss group for accepting connections
// is conventionally sized 1; a worker group defaults to hardware
// parallelism.
type Group struct {
	executors []*executor.Executor
	next      uint64
}

// NewGroup starts n executors named "<prefix>-i". n<=0 defaults to
// runtime.GOMAXPROCS(0).
func NewGroup(prefix string, n int) *Group {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	g := &Group{executors: make([]*executor.Executor, n)}
	for i := 0; i < n; i++ {
		g.executors[i] = executor.New(nameFor(prefix, i))
	}
	return g
}

func nameFor(prefix string, i int) string {
	if prefix == "" {
		prefix = "eventloop"
	}
	return prefix + "-" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// Next returns the next executor, round-robin.
func (g *Group) Next() *executor.Executor {
	idx := atomic.AddUint64(&g.next, 1) - 1
	return g.executors[idx%uint64(len(g.executors))]
}

// Len returns the number of executors in the group.
func (g *Group) Len() int { return len(g.executors) }

// ShutdownGracefully fans shutdown out to every executor and returns a
// future completing once all of them have terminated.
func (g *Group) ShutdownGracefully(quietPeriod, timeout time.Duration) future.Future {
	futures := make([]future.Future, len(g.executors))
	for i, ex := range g.executors {
		futures[i] = ex.ShutdownGracefully(quietPeriod, timeout)
	}
	return newAggregateFuture(futures)
}

// newAggregateFuture returns a future that completes once every
// constituent future has.
func newAggregateFuture(futures []future.Future) future.Future {
	p := future.NewPromise(nil)
	remaining := int32(len(futures))
	if remaining == 0 {
		p.TrySetSuccess()
		return p
	}
	for _, f := range futures {
		f.AddListener(func(f future.Future) {
			if atomic.AddInt32(&remaining, -1) == 0 {
				p.TrySetSuccess()
			}
		})
	}
	return p
}
