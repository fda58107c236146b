package local

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

type captureHandler struct {
	channel.HandlerBase
	active chan struct{}
	read   chan interface{}
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{active: make(chan struct{}, 1), read: make(chan interface{}, 8)}
}

func (c *captureHandler) ChannelActive(ctx channel.Context) { c.active <- struct{}{} }
func (c *captureHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	c.read <- msg
}

type acceptorHandler struct {
	channel.HandlerBase
	onChild func(channel.Channel)
}

func (a *acceptorHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	if child, ok := msg.(channel.Channel); ok {
		a.onChild(child)
	}
}

func TestLocalTransportPairedEcho(t *testing.T) {
	serverExec := executor.New("server")
	workerExec := executor.New("worker")
	clientExec := executor.New("client")

	serverHandler := newCaptureHandler()
	serverChild := newCaptureHandler()

	sc := NewServerChannel(serverExec, channel.NewConfig())
	sc.ChildExecutor = func() *executor.Executor { return workerExec }
	require.NoError(t, sc.Pipeline().AddLast("acceptor", &acceptorHandler{
		onChild: func(child channel.Channel) {
			_ = child.Pipeline().AddLast("capture", serverChild)
		},
	}))
	srvRegP := future.NewPromise(serverExec)
	sc.Underlying().Register(srvRegP)
	require.NoError(t, srvRegP.Await())
	require.NoError(t, sc.Bind(Addr("srv")).Await())

	client := NewLocalChannel(clientExec, channel.NewConfig())
	require.NoError(t, client.Pipeline().AddLast("capture", serverHandler))
	clientRegP := future.NewPromise(clientExec)
	client.Underlying().Register(clientRegP)
	require.NoError(t, clientRegP.Await())
	require.NoError(t, client.ConnectLocal(Addr("srv"), nil).Await())

	select {
	case <-serverHandler.active:
	case <-time.After(time.Second):
		t.Fatal("client channel never became active")
	}

	alloc := channel.NewConfig().Allocator
	buf := alloc.Buffer(4, 4)
	require.NoError(t, buf.WriteBytes([]byte{0x01, 0x02}))
	require.NoError(t, client.WriteAndFlush(buf).Await())

	select {
	case msg := <-serverChild.read:
		bb := msg.(interface{ Bytes() []byte })
		assert.Equal(t, []byte{0x01, 0x02}, bb.Bytes())
	case <-time.After(time.Second):
		t.Fatal("server child never observed the write")
	}
}
