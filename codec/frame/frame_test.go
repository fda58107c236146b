package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

type noopUnsafe struct{}

func (noopUnsafe) LocalAddress() channel.Address  { return nil }
func (noopUnsafe) RemoteAddress() channel.Address { return nil }
func (noopUnsafe) Bind(local channel.Address, promise future.Promise)            { promise.TrySetSuccess() }
func (noopUnsafe) Connect(remote, local channel.Address, promise future.Promise) { promise.TrySetSuccess() }
func (noopUnsafe) Disconnect(promise future.Promise)                             { promise.TrySetSuccess() }
func (noopUnsafe) Close(promise future.Promise)                                  { promise.TrySetSuccess() }
func (noopUnsafe) Deregister(promise future.Promise)                             { promise.TrySetSuccess() }
func (noopUnsafe) BeginRead()                                                    {}
func (noopUnsafe) Write(msg interface{}, promise future.Promise) {
	if r, ok := msg.(interface{ Release() bool }); ok {
		r.Release()
	}
	promise.TrySetSuccess()
}
func (noopUnsafe) Flush() {}

func newTestChannel() *channel.BaseChannel {
	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	ch.SetUnsafe(noopUnsafe{})
	return ch
}

// TestDecoderReassemblesFrame feeds a hand-built wire frame through the
// decoder and checks the payload comes out unwrapped.
func TestDecoderReassemblesFrame(t *testing.T) {
	ch := newTestChannel()
	exec := ch.Executor()

	var decoded []byte
	done := make(chan struct{})
	require.NoError(t, ch.Pipeline().AddLast("decoder", NewDecoder()))
	require.NoError(t, ch.Pipeline().AddLast("capture", &captureHandler{decoded: &decoded, done: done}))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	alloc := channel.NewConfig().Allocator
	wire := alloc.Buffer(9, 9)
	require.NoError(t, wire.WriteByte(Magic))
	require.NoError(t, wire.WriteUint32(4))
	require.NoError(t, wire.WriteBytes([]byte{1, 2, 3, 4}))

	exec.Execute(func() { ch.Pipeline().FireChannelRead(wire) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decoder never produced a message")
	}
	assert.Equal(t, []byte{1, 2, 3, 4}, decoded)
}

// TestDecoderWaitsForFullFrame feeds the header and payload in two separate
// reads and confirms nothing is emitted until the payload is complete.
func TestDecoderWaitsForFullFrame(t *testing.T) {
	ch := newTestChannel()
	exec := ch.Executor()

	var decoded []byte
	done := make(chan struct{})
	require.NoError(t, ch.Pipeline().AddLast("decoder", NewDecoder()))
	require.NoError(t, ch.Pipeline().AddLast("capture", &captureHandler{decoded: &decoded, done: done}))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	alloc := channel.NewConfig().Allocator
	header := alloc.Buffer(5, 5)
	require.NoError(t, header.WriteByte(Magic))
	require.NoError(t, header.WriteUint32(3))

	exec.Execute(func() { ch.Pipeline().FireChannelRead(header) })
	select {
	case <-done:
		t.Fatal("decoder fired before the payload arrived")
	case <-time.After(50 * time.Millisecond):
	}

	payload := alloc.Buffer(3, 3)
	require.NoError(t, payload.WriteBytes([]byte{9, 8, 7}))
	exec.Execute(func() { ch.Pipeline().FireChannelRead(payload) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("decoder never produced a message once the payload arrived")
	}
	assert.Equal(t, []byte{9, 8, 7}, decoded)
}

// TestEncoderWritesWireFormat checks the encoder's magic/length/payload
// envelope directly, capturing the outbound buffer via a recording unsafe.
func TestEncoderWritesWireFormat(t *testing.T) {
	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	rec := &recordingUnsafe{}
	ch.SetUnsafe(rec)
	require.NoError(t, ch.Pipeline().AddLast("encoder", NewEncoder()))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	alloc := channel.NewConfig().Allocator
	payload := alloc.Buffer(2, 2)
	require.NoError(t, payload.WriteBytes([]byte{0xAA, 0xBB}))

	require.NoError(t, ch.WriteAndFlush(payload).Await())

	require.NotNil(t, rec.got)
	bb := rec.got.(buffer.ByteBuf)
	wire := bb.Bytes()
	assert.Equal(t, Magic, wire[0])
	assert.Equal(t, []byte{0xAA, 0xBB}, wire[5:])
}

type recordingUnsafe struct{ got interface{} }

func (u *recordingUnsafe) LocalAddress() channel.Address  { return nil }
func (u *recordingUnsafe) RemoteAddress() channel.Address { return nil }
func (u *recordingUnsafe) Bind(local channel.Address, promise future.Promise)            { promise.TrySetSuccess() }
func (u *recordingUnsafe) Connect(remote, local channel.Address, promise future.Promise) { promise.TrySetSuccess() }
func (u *recordingUnsafe) Disconnect(promise future.Promise)                             { promise.TrySetSuccess() }
func (u *recordingUnsafe) Close(promise future.Promise)                                  { promise.TrySetSuccess() }
func (u *recordingUnsafe) Deregister(promise future.Promise)                             { promise.TrySetSuccess() }
func (u *recordingUnsafe) BeginRead()                                                    {}
func (u *recordingUnsafe) Write(msg interface{}, promise future.Promise) {
	u.got = msg
	promise.TrySetSuccess()
}
func (u *recordingUnsafe) Flush() {}

type captureHandler struct {
	channel.HandlerBase
	decoded *[]byte
	done    chan struct{}
}

func (c *captureHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	bb := msg.(interface{ Bytes() []byte })
	*c.decoded = append([]byte{}, bb.Bytes()...)
	if r, ok := msg.(interface{ Release() bool }); ok {
		r.Release()
	}
	close(c.done)
}
