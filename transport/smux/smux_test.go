package smux

import (
	"net"
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

type echoHandler struct{ channel.HandlerBase }

func (e *echoHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	ctx.WriteAndFlush(msg)
}

// TestSmuxStreamRoundTrip negotiates a client/server session pair over an
// in-process net.Pipe, opens one client stream, and confirms a write comes
// back echoed through the server's accepted stream channel.
func TestSmuxStreamRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	clientSession, err := NewClientSession(clientConn, channel.NewConfig())
	require.NoError(t, err)
	serverSession, err := NewServerSession(serverConn, channel.NewConfig())
	require.NoError(t, err)

	serverExec := executor.New("server")
	workerExec := executor.New("worker")
	clientExec := executor.New("client")

	sc := NewServerChannel(serverExec, channel.NewConfig(), serverSession)
	sc.ChildExecutor = func() *executor.Executor { return workerExec }
	require.NoError(t, sc.Pipeline().AddLast("acceptor", &testAcceptor{}))

	srvRegP := future.NewPromise(serverExec)
	sc.Underlying().Register(srvRegP)
	require.NoError(t, srvRegP.Await())
	require.NoError(t, sc.Bind(nil).Await())

	client, openF := OpenChannel(clientSession, clientExec, channel.NewConfig())
	capt := newCaptureHandler()
	require.NoError(t, client.Pipeline().AddLast("capture", capt))
	require.NoError(t, openF.Await())

	select {
	case <-capt.active:
	case <-time.After(2 * time.Second):
		t.Fatal("client stream never became active")
	}

	alloc := channel.NewConfig().Allocator
	buf := alloc.Buffer(4, 4)
	require.NoError(t, buf.WriteBytes([]byte{0x09, 0x08}))
	require.NoError(t, client.WriteAndFlush(buf).Await())

	select {
	case got := <-capt.read:
		assert.Equal(t, []byte{0x09, 0x08}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed the echoed write")
	}
}

// testAcceptor is the minimal bootstrap.Acceptor-equivalent needed here:
// register and activate each accepted stream channel and splice in the
// echo handler before any read arrives.
type testAcceptor struct{ channel.HandlerBase }

func (a *testAcceptor) ChannelRead(ctx channel.Context, msg interface{}) {
	child, ok := msg.(*Channel)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	_ = child.Pipeline().AddLast("echo", &echoHandler{})
	p := future.NewPromise(child.Executor())
	child.Underlying().Register(p)
	p.AddListener(func(f future.Future) {
		if f.IsSuccess() {
			child.Activate()
		}
	})
}
