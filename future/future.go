// Package future implements the promise/future pair used throughout this
// module to report the outcome of an asynchronous channel or executor
// operation. A Future's continuations always run on the executor that owns
// the Promise unless explicitly redirected, mirroring the coroutine-style
// completion chains of the original framework.
package future

import "sync"

// Executor is the minimal surface a Promise needs from its owning
// executor: the ability to run a continuation on the loop thread.
type Executor interface {
	Execute(task func())
	InEventLoop() bool
}

// listener is a continuation queued against a Promise.
type listener func(Future)

// Future is the read side of a Promise: observers attach listeners and can
// block for completion.
type Future interface {
	// IsDone reports whether the operation has completed, successfully or
	// not.
	IsDone() bool
	// IsSuccess reports whether the operation completed without error.
	IsSuccess() bool
	// Cause returns the failure, or nil if still pending or successful.
	Cause() error
	// AddListener schedules fn to run on the owning executor once the
	// future completes; if it is already complete, fn is scheduled
	// immediately.
	AddListener(fn func(Future))
	// Await blocks the calling goroutine until the future completes and
	// returns its failure, if any. Must not be called from the owning
	// executor's own goroutine (it would deadlock a single-thread loop).
	Await() error
	// Cancel completes the future with ErrCancelled if it is not already
	// done, and returns whether it did so. It does not stop an operation
	// that is already running.
	Cancel() bool
	// Cancelled reports whether Cancel previously succeeded.
	Cancelled() bool
}

// Promise is the write side: exactly one of SetSuccess/SetFailure may be
// called, exactly once.
type Promise interface {
	Future
	SetSuccess()
	SetFailure(err error)
	// TrySetSuccess/TrySetFailure are the non-panicking forms, returning
	// false if the promise was already completed.
	TrySetSuccess() bool
	TrySetFailure(err error) bool
}

type promise struct {
	exec Executor

	mu        sync.Mutex
	done      bool
	cancelled bool
	err       error
	listeners []listener
	waiters   chan struct{}
}

// NewPromise creates a Promise whose listener continuations are dispatched
// on exec.
func NewPromise(exec Executor) Promise {
	return &promise{exec: exec, waiters: make(chan struct{})}
}

func (p *promise) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *promise) IsSuccess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done && p.err == nil
}

func (p *promise) Cause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *promise) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *promise) Cancel() bool {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return false
	}
	p.cancelled = true
	p.mu.Unlock()
	return p.TrySetFailure(ErrCancelled)
}

func (p *promise) complete(err error) bool {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return false
	}
	p.done = true
	p.err = err
	ls := p.listeners
	p.listeners = nil
	close(p.waiters)
	p.mu.Unlock()

	for _, fn := range ls {
		fn := fn
		if p.exec != nil && !p.exec.InEventLoop() {
			p.exec.Execute(func() { fn(p) })
		} else {
			fn(p)
		}
	}
	return true
}

func (p *promise) SetSuccess() {
	if !p.complete(nil) {
		panic("future: promise already completed")
	}
}

func (p *promise) SetFailure(err error) {
	if !p.complete(err) {
		panic("future: promise already completed")
	}
}

func (p *promise) TrySetSuccess() bool { return p.complete(nil) }
func (p *promise) TrySetFailure(err error) bool {
	return p.complete(err)
}

func (p *promise) AddListener(fn func(Future)) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		if p.exec != nil && !p.exec.InEventLoop() {
			p.exec.Execute(func() { fn(p) })
		} else {
			fn(p)
		}
		return
	}
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *promise) Await() error {
	<-p.waiters
	return p.Cause()
}
