// Package executor implements the single-threaded event executor: one
// dedicated goroutine drains a task queue and a delay-ordered timer heap,
// with a graceful-shutdown lifecycle modeled after the teacher's own
// worker-goroutine-plus-channel idiom (client/dial.go's scavenger loop).
package executor

import (
	"bytes"
	"container/heap"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/future"
)

// ErrRejected is the failure a Submit future completes with, and the panic
// Execute avoids raising, once the executor has entered ShuttingDown.
var ErrRejected = errors.New("executor: rejected, shutting down")

// Task is a unit of work run on the executor's single goroutine.
type Task func()

type timerTask struct {
	deadline  time.Time
	task      Task
	index     int
	cancelled bool
}

type timerHeap []*timerTask

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x interface{}) {
	tt := x.(*timerTask)
	tt.index = len(*h)
	*h = append(*h, tt)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	tt := old[n-1]
	old[n-1] = nil
	tt.index = -1
	*h = old[:n-1]
	return tt
}

// ScheduledTask is a handle to a task enqueued via Schedule or
// ScheduleAtFixedRate; Cancel prevents a not-yet-fired occurrence.
type ScheduledTask interface {
	Cancel() bool
}

// Executor is a single dedicated goroutine draining a FIFO task queue and a
// delay-ordered timer queue, the contract §4.B describes.
type Executor struct {
	name string

	taskCh    chan Task
	wakeTimer chan struct{}

	state int32 // State, accessed atomically

	mu         sync.Mutex
	timers     timerHeap
	shutdownAt time.Time
	quietUntil time.Time

	termination future.Promise

	// loopGoroutineID is the runtime id of this Executor's own dedicated
	// loop goroutine, captured once when run() starts. InEventLoop
	// compares the calling goroutine's id against it; per-Executor rather
	// than a shared global, since each Executor has its own loop
	// goroutine and N of them run concurrently.
	loopGoroutineID uint64
}

const taskQueueSize = 4096

// New starts a new Executor's loop goroutine and returns immediately.
func New(name string) *Executor {
	e := &Executor{
		name:      name,
		taskCh:    make(chan Task, taskQueueSize),
		wakeTimer: make(chan struct{}, 1),
	}
	e.termination = future.NewPromise(e)
	atomic.StoreInt32(&e.state, int32(NotStarted))
	go e.run()
	return e
}

// Name returns the executor's diagnostic name.
func (e *Executor) Name() string { return e.name }

// State returns the current lifecycle state.
func (e *Executor) State() State { return State(atomic.LoadInt32(&e.state)) }

// goroutineID returns the calling goroutine's runtime-assigned id, parsed
// from the header line runtime.Stack always writes ("goroutine NNN
// [running]:"). Go deliberately has no public goroutine-identity API; this
// is the standard workaround when a true per-goroutine identity is
// unavoidable, as it is here: each Executor's loop runs on one dedicated
// goroutine for its whole life, and InEventLoop must tell whether the
// calling goroutine is that one, not merely "is some Executor mid-task".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

// InEventLoop reports whether the calling goroutine is this Executor's own
// dedicated loop goroutine.
func (e *Executor) InEventLoop() bool {
	return goroutineID() == atomic.LoadUint64(&e.loopGoroutineID)
}

func (e *Executor) run() {
	atomic.StoreUint64(&e.loopGoroutineID, goroutineID())
	atomic.StoreInt32(&e.state, int32(Started))

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	finish := func() {
		e.drainOnce()
		atomic.StoreInt32(&e.state, int32(Terminated))
		e.termination.TrySetSuccess()
	}

	for {
		var fireCh <-chan time.Time
		next, ok := e.nextTimerDeadline()
		if e.State() == ShuttingDown {
			// Wake again when the quiet period or the shutdown timeout
			// runs out, so an idle loop still re-checks maybeFinishShutdown.
			e.mu.Lock()
			sd := e.shutdownAt
			if time.Now().Before(e.quietUntil) && e.quietUntil.Before(sd) {
				sd = e.quietUntil
			}
			e.mu.Unlock()
			if !ok || sd.Before(next) {
				next, ok = sd, true
			}
		}
		if ok {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			if timer == nil {
				timer = time.NewTimer(d)
			} else {
				timer.Reset(d)
			}
			fireCh = timer.C
		}

		select {
		case t, open := <-e.taskCh:
			if !open {
				finish()
				return
			}
			e.safeRun(t)
			e.drainOnce()
			if e.maybeFinishShutdown() {
				finish()
				return
			}
		case <-fireCh:
			e.popAndRunDueTimers()
			if e.maybeFinishShutdown() {
				finish()
				return
			}
		case <-e.wakeTimer:
			// A new, earlier-firing timer may have been scheduled; loop
			// back around to recompute fireCh.
		}
	}
}

// safeRun runs t directly: the caller is always this Executor's own loop
// goroutine, whose identity run() already recorded once in loopGoroutineID.
func (e *Executor) safeRun(t Task) { t() }

func (e *Executor) drainOnce() {
	for {
		select {
		case t := <-e.taskCh:
			e.safeRun(t)
		default:
			return
		}
	}
}

func (e *Executor) nextTimerDeadline() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.timers) == 0 {
		return time.Time{}, false
	}
	return e.timers[0].deadline, true
}

func (e *Executor) popAndRunDueTimers() {
	now := time.Now()
	for {
		e.mu.Lock()
		if len(e.timers) == 0 || e.timers[0].deadline.After(now) {
			e.mu.Unlock()
			return
		}
		tt := heap.Pop(&e.timers).(*timerTask)
		e.mu.Unlock()
		if !tt.cancelled {
			e.safeRun(tt.task)
		}
	}
}

// Execute submits a task for FIFO execution. It is thread-safe and never
// blocks the caller indefinitely in practice; if called while already on
// the loop goroutine the task runs inline (reentrancy per §4.B). Tasks
// submitted once the executor is ShuttingDown or beyond are silently
// dropped — callers that need to observe rejection should use Submit.
func (e *Executor) Execute(t Task) {
	if e.InEventLoop() {
		t()
		return
	}
	if e.State() >= ShuttingDown {
		return
	}
	e.taskCh <- t
}

// Submit is like Execute but returns a future completed once the task
// runs, failing with ErrRejected if the executor was already shutting down
// and with the recovered panic, wrapped, if the task itself panicked.
func (e *Executor) Submit(t Task) future.Future {
	p := future.NewPromise(e)
	if e.State() >= ShuttingDown {
		p.TrySetFailure(ErrRejected)
		return p
	}
	e.Execute(func() {
		defer func() {
			if r := recover(); r != nil {
				p.TrySetFailure(errors.Errorf("executor: task panicked: %v", r))
				return
			}
			p.TrySetSuccess()
		}()
		t()
	})
	return p
}

// Schedule enqueues t to run once, after delay, ordered in the timer
// min-heap.
func (e *Executor) Schedule(t Task, delay time.Duration) ScheduledTask {
	tt := &timerTask{deadline: time.Now().Add(delay), task: t}
	e.mu.Lock()
	heap.Push(&e.timers, tt)
	earliest := e.timers[0] == tt
	e.mu.Unlock()
	if earliest {
		select {
		case e.wakeTimer <- struct{}{}:
		default:
		}
	}
	return &scheduledTask{e: e, tt: tt}
}

type scheduledTask struct {
	e  *Executor
	tt *timerTask
}

func (s *scheduledTask) Cancel() bool {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.tt.index < 0 {
		return false
	}
	s.tt.cancelled = true
	heap.Remove(&s.e.timers, s.tt.index)
	return true
}

// ScheduleAtFixedRate reschedules task after every run, period apart, until
// Cancel is called on the returned handle. Used by the idle-state handler
// (§4.O) to poll for read/write inactivity.
func (e *Executor) ScheduleAtFixedRate(task Task, initialDelay, period time.Duration) ScheduledTask {
	handle := &repeatingTask{e: e, task: task, period: period}
	handle.current = e.Schedule(handle.run, initialDelay)
	return handle
}

type repeatingTask struct {
	e       *Executor
	task    Task
	period  time.Duration
	current ScheduledTask
	stopped int32
}

func (r *repeatingTask) run() {
	if atomic.LoadInt32(&r.stopped) == 1 {
		return
	}
	r.task()
	if atomic.LoadInt32(&r.stopped) == 1 {
		return
	}
	r.current = r.e.Schedule(r.run, r.period)
}

func (r *repeatingTask) Cancel() bool {
	atomic.StoreInt32(&r.stopped, 1)
	if r.current != nil {
		return r.current.Cancel()
	}
	return true
}

// TerminationFuture completes once the executor reaches Terminated.
func (e *Executor) TerminationFuture() future.Future { return e.termination }

// ShutdownGracefully requests a graceful shutdown: no further arbitrary
// tasks are accepted, pending work continues draining until quietPeriod of
// idleness elapses or timeout expires, then the loop exits and the
// termination future completes.
func (e *Executor) ShutdownGracefully(quietPeriod, timeout time.Duration) future.Future {
	now := time.Now()
	e.mu.Lock()
	e.quietUntil = now.Add(quietPeriod)
	e.shutdownAt = now.Add(timeout)
	e.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&e.state, int32(Started), int32(ShuttingDown)) {
		atomic.CompareAndSwapInt32(&e.state, int32(NotStarted), int32(ShuttingDown))
	}
	// Wake the loop so it re-evaluates maybeFinishShutdown even if idle.
	select {
	case e.taskCh <- func() {}:
	default:
	}
	return e.termination
}

func (e *Executor) maybeFinishShutdown() bool {
	if e.State() != ShuttingDown {
		return false
	}
	now := time.Now()
	e.mu.Lock()
	timedOut := !e.shutdownAt.IsZero() && !now.Before(e.shutdownAt)
	quiet := !e.quietUntil.IsZero() && !now.Before(e.quietUntil)
	empty := len(e.taskCh) == 0 && len(e.timers) == 0
	e.mu.Unlock()
	return timedOut || (quiet && empty)
}

// IsShuttingDown reports whether the executor is in or past ShuttingDown.
func (e *Executor) IsShuttingDown() bool { return e.State() >= ShuttingDown }
