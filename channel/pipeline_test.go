package channel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

type noopUnsafe struct{}

func (noopUnsafe) LocalAddress() Address  { return nil }
func (noopUnsafe) RemoteAddress() Address { return nil }
func (noopUnsafe) Bind(local Address, promise future.Promise)              { promise.TrySetSuccess() }
func (noopUnsafe) Connect(remote, local Address, promise future.Promise)   { promise.TrySetSuccess() }
func (noopUnsafe) Disconnect(promise future.Promise)                       { promise.TrySetSuccess() }
func (noopUnsafe) Close(promise future.Promise)                            { promise.TrySetSuccess() }
func (noopUnsafe) Deregister(promise future.Promise)                       { promise.TrySetSuccess() }
func (noopUnsafe) BeginRead()                                              {}
func (noopUnsafe) Write(msg interface{}, promise future.Promise)           { promise.TrySetSuccess() }
func (noopUnsafe) Flush()                                                  {}

func newTestChannel(t *testing.T) (*BaseChannel, *executor.Executor) {
	exec := executor.New("test")
	ch := NewBaseChannel(exec, NewConfig())
	ch.SetUnsafe(noopUnsafe{})
	return ch, exec
}

type recorder struct {
	HandlerBase
	name   string
	events *[]string
}

func (r *recorder) ChannelRead(ctx Context, msg interface{}) {
	*r.events = append(*r.events, r.name+":"+msg.(string))
	ctx.FireChannelRead(msg)
}

func TestPipelineOrderingHeadToTail(t *testing.T) {
	ch, exec := newTestChannel(t)
	var events []string
	require.NoError(t, ch.Pipeline().AddLast("a", &recorder{name: "a", events: &events}))
	require.NoError(t, ch.Pipeline().AddLast("b", &recorder{name: "b", events: &events}))

	done := make(chan struct{})
	exec.Execute(func() {
		ch.Pipeline().FireChannelRead("x")
		close(done)
	})
	<-done
	assert.Equal(t, []string{"a:x", "b:x"}, events)
}

func TestPipelineDuplicateNameRejected(t *testing.T) {
	ch, _ := newTestChannel(t)
	require.NoError(t, ch.Pipeline().AddLast("a", &HandlerBase{}))
	err := ch.Pipeline().AddLast("a", &HandlerBase{})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPipelineRemoveNotFound(t *testing.T) {
	ch, _ := newTestChannel(t)
	err := ch.Pipeline().Remove("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

type initRecorder struct {
	HandlerBase
	name   string
	events *[]string
}

func (r *initRecorder) ChannelRegistered(ctx Context) {
	*r.events = append(*r.events, r.name)
	ctx.FireChannelRegistered()
}

func TestInitializerSplicesHandlersBeforeFirstEvent(t *testing.T) {
	ch, exec := newTestChannel(t)
	var events []string

	init := &Initializer{Init: func(p *Pipeline) {
		_ = p.AddLast("h1", &initRecorder{name: "h1", events: &events})
		_ = p.AddLast("h2", &initRecorder{name: "h2", events: &events})
	}}
	require.NoError(t, ch.Pipeline().AddLast("init", init))

	p := future.NewPromise(exec)
	ch.Underlying().Register(p)
	require.NoError(t, p.Await())

	assert.Equal(t, []string{"h1", "h2"}, events)
	assert.Nil(t, ch.Pipeline().Get("init"))
}

func TestChannelSerializationNoConcurrentHandlerInvocations(t *testing.T) {
	ch, exec := newTestChannel(t)
	inside := make(chan struct{}, 1)
	concurrent := false
	h := &funcHandler{onRead: func(ctx Context, msg interface{}) {
		select {
		case inside <- struct{}{}:
			time.Sleep(5 * time.Millisecond)
			<-inside
		default:
			concurrent = true
		}
	}}
	require.NoError(t, ch.Pipeline().AddLast("h", h))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exec.Execute(func() { ch.Pipeline().FireChannelRead("x") })
		}()
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)
	assert.False(t, concurrent)
}

type funcHandler struct {
	HandlerBase
	onRead func(ctx Context, msg interface{})
}

func (f *funcHandler) ChannelRead(ctx Context, msg interface{}) { f.onRead(ctx, msg) }
