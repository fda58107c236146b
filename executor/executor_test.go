package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRunsFIFO(t *testing.T) {
	e := New("test")
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		i := i
		e.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestInEventLoop(t *testing.T) {
	e := New("test")
	done := make(chan bool, 1)
	e.Execute(func() {
		done <- e.InEventLoop()
	})
	assert.True(t, <-done)
	assert.False(t, e.InEventLoop())
}

func TestScheduleFiresAfterDelay(t *testing.T) {
	e := New("test")
	start := time.Now()
	done := make(chan time.Time, 1)
	e.Schedule(func() { done <- time.Now() }, 30*time.Millisecond)
	fired := <-done
	assert.GreaterOrEqual(t, fired.Sub(start), 25*time.Millisecond)
}

func TestScheduleCancelPreventsExecution(t *testing.T) {
	e := New("test")
	ran := false
	handle := e.Schedule(func() { ran = true }, 20*time.Millisecond)
	assert.True(t, handle.Cancel())
	time.Sleep(40 * time.Millisecond)
	assert.False(t, ran)
}

func TestShutdownGracefullyRejectsLateTasks(t *testing.T) {
	e := New("test")
	for i := 0; i < 10; i++ {
		e.Execute(func() {})
	}
	term := e.ShutdownGracefully(10*time.Millisecond, time.Second)
	require.NoError(t, term.Await())
	assert.Equal(t, Terminated, e.State())

	f := e.Submit(func() {})
	assert.Error(t, f.Await())
	assert.ErrorIs(t, f.Cause(), ErrRejected)
}

func TestShutdownGracefullyRespectsTimeout(t *testing.T) {
	e := New("test")
	start := time.Now()
	term := e.ShutdownGracefully(time.Hour, 50*time.Millisecond)
	require.NoError(t, term.Await())
	assert.Less(t, time.Since(start), time.Second)
}
