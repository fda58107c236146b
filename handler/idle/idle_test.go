package idle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

type noopUnsafe struct{}

func (noopUnsafe) LocalAddress() channel.Address  { return nil }
func (noopUnsafe) RemoteAddress() channel.Address { return nil }
func (noopUnsafe) Bind(local channel.Address, promise future.Promise)            { promise.TrySetSuccess() }
func (noopUnsafe) Connect(remote, local channel.Address, promise future.Promise) { promise.TrySetSuccess() }
func (noopUnsafe) Disconnect(promise future.Promise)                            { promise.TrySetSuccess() }
func (noopUnsafe) Close(promise future.Promise)                                 { promise.TrySetSuccess() }
func (noopUnsafe) Deregister(promise future.Promise)                            { promise.TrySetSuccess() }
func (noopUnsafe) BeginRead()                                                   {}
func (noopUnsafe) Write(msg interface{}, promise future.Promise)                { promise.TrySetSuccess() }
func (noopUnsafe) Flush()                                                       {}

type eventRecorder struct {
	channel.HandlerBase
	events chan Event
}

func (r *eventRecorder) UserEventTriggered(ctx channel.Context, evt interface{}) {
	if e, ok := evt.(Event); ok {
		r.events <- e
	}
}

func TestReaderIdleFiresAfterTimeout(t *testing.T) {
	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	ch.SetUnsafe(noopUnsafe{})

	rec := &eventRecorder{events: make(chan Event, 4)}
	require.NoError(t, ch.Pipeline().AddLast("idle", &Handler{ReaderIdleTimeout: 30 * time.Millisecond}))
	require.NoError(t, ch.Pipeline().AddLast("recorder", rec))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	select {
	case e := <-rec.events:
		require.Equal(t, ReaderIdle, e.State)
	case <-time.After(time.Second):
		t.Fatal("reader idle event never fired")
	}
}

func TestReadResetsIdleTimer(t *testing.T) {
	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	ch.SetUnsafe(noopUnsafe{})

	rec := &eventRecorder{events: make(chan Event, 4)}
	require.NoError(t, ch.Pipeline().AddLast("idle", &Handler{ReaderIdleTimeout: 60 * time.Millisecond}))
	require.NoError(t, ch.Pipeline().AddLast("recorder", rec))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	stop := time.After(50 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		default:
			exec.Execute(func() { ch.Pipeline().FireChannelRead("x") })
			time.Sleep(10 * time.Millisecond)
		}
	}

	select {
	case <-rec.events:
		t.Fatal("idle event fired despite continuous reads")
	default:
	}
}
