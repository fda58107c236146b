package tcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtaci/eventloop/bootstrap"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

type captureHandler struct {
	channel.HandlerBase
	active chan struct{}
	read   chan []byte
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{active: make(chan struct{}, 1), read: make(chan []byte, 8)}
}

func (c *captureHandler) ChannelActive(ctx channel.Context) { c.active <- struct{}{} }
func (c *captureHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	bb := msg.(interface{ Bytes() []byte })
	out := make([]byte, len(bb.Bytes()))
	copy(out, bb.Bytes())
	c.read <- out
	if r, ok := msg.(interface{ Release() bool }); ok {
		r.Release()
	}
}

type echoHandler struct {
	channel.HandlerBase
}

func (e *echoHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	ctx.WriteAndFlush(msg)
}

func TestTCPEchoRoundTrip(t *testing.T) {
	serverExec := executor.New("server")
	workerExec := executor.New("worker")
	clientExec := executor.New("client")

	sc := NewServerChannel(serverExec, channel.NewConfig())
	sc.ChildExecutor = func() *executor.Executor { return workerExec }
	require.NoError(t, sc.Pipeline().AddLast("acceptor", &bootstrap.Acceptor{
		ChildInit: func(p *channel.Pipeline) { _ = p.AddLast("echo", &echoHandler{}) },
	}))

	srvRegP := future.NewPromise(serverExec)
	sc.Underlying().Register(srvRegP)
	require.NoError(t, srvRegP.Await())
	require.NoError(t, sc.Bind(localAddrT("127.0.0.1:0")).Await())

	lsAddr := sc.LocalAddress()
	require.NotNil(t, lsAddr)

	client := NewChannel(clientExec, channel.NewConfig())
	capt := newCaptureHandler()
	require.NoError(t, client.Pipeline().AddLast("capture", capt))

	clientRegP := future.NewPromise(clientExec)
	client.Underlying().Register(clientRegP)
	require.NoError(t, clientRegP.Await())
	require.NoError(t, client.Connect(localAddrT(lsAddr.String())).Await())

	select {
	case <-capt.active:
	case <-time.After(2 * time.Second):
		t.Fatal("client channel never became active")
	}

	alloc := channel.NewConfig().Allocator
	buf := alloc.Buffer(4, 4)
	require.NoError(t, buf.WriteBytes([]byte{0xAA, 0xBB}))
	require.NoError(t, client.WriteAndFlush(buf).Await())

	select {
	case got := <-capt.read:
		assert.Equal(t, []byte{0xAA, 0xBB}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed the echoed write")
	}
}

type localAddrT string

func (a localAddrT) Network() string { return "tcp" }
func (a localAddrT) String() string  { return string(a) }
