package compress

import (
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

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

func TestEncoderCompressesPayload(t *testing.T) {
	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	rec := &recordingUnsafe{}
	ch.SetUnsafe(rec)
	require.NoError(t, ch.Pipeline().AddLast("compress", NewEncoder()))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	src := make([]byte, 256)
	for i := range src {
		src[i] = byte(i % 7)
	}
	alloc := channel.NewConfig().Allocator
	payload := alloc.Buffer(len(src), len(src))
	require.NoError(t, payload.WriteBytes(src))

	require.NoError(t, ch.WriteAndFlush(payload).Await())

	bb := rec.got.(buffer.ByteBuf)
	decoded, err := snappy.Decode(nil, bb.Bytes())
	require.NoError(t, err)
	assert.Equal(t, src, decoded)
}

type capturingHandler struct {
	channel.HandlerBase
	got []byte
	done chan struct{}
}

func (c *capturingHandler) ChannelRead(ctx channel.Context, msg interface{}) {
	bb := msg.(interface{ Bytes() []byte })
	c.got = append([]byte{}, bb.Bytes()...)
	if r, ok := msg.(interface{ Release() bool }); ok {
		r.Release()
	}
	close(c.done)
}

type noopUnsafe struct{}

func (noopUnsafe) LocalAddress() channel.Address  { return nil }
func (noopUnsafe) RemoteAddress() channel.Address { return nil }
func (noopUnsafe) Bind(local channel.Address, promise future.Promise)            { promise.TrySetSuccess() }
func (noopUnsafe) Connect(remote, local channel.Address, promise future.Promise) { promise.TrySetSuccess() }
func (noopUnsafe) Disconnect(promise future.Promise)                            { promise.TrySetSuccess() }
func (noopUnsafe) Close(promise future.Promise)                                 { promise.TrySetSuccess() }
func (noopUnsafe) Deregister(promise future.Promise)                            { promise.TrySetSuccess() }
func (noopUnsafe) BeginRead()                                                   {}
func (noopUnsafe) Write(msg interface{}, promise future.Promise) {
	if r, ok := msg.(interface{ Release() bool }); ok {
		r.Release()
	}
	promise.TrySetSuccess()
}
func (noopUnsafe) Flush() {}

func TestDecoderRoundTripsEncoderOutput(t *testing.T) {
	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	ch.SetUnsafe(noopUnsafe{})

	done := make(chan struct{})
	capture := &capturingHandler{done: done}
	require.NoError(t, ch.Pipeline().AddLast("decoder", NewDecoder()))
	require.NoError(t, ch.Pipeline().AddLast("capture", capture))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	src := []byte("hello compress world, hello compress world")
	compressed := snappy.Encode(nil, src)
	alloc := channel.NewConfig().Allocator
	buf := alloc.Buffer(len(compressed), len(compressed))
	require.NoError(t, buf.WriteBytes(compressed))

	exec.Execute(func() { ch.Pipeline().FireChannelRead(buf) })
	<-done
	assert.Equal(t, src, capture.got)
}
