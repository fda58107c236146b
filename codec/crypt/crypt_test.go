package crypt

import (
	"testing"

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

func TestSalsa20EncryptThenDecryptRoundTrips(t *testing.T) {
	key := DeriveKey(MethodSalsa20, "pre-shared secret", 4096)

	encoder, err := NewEncoder(MethodSalsa20, key)
	require.NoError(t, err)
	decoder, err := NewDecoder(MethodSalsa20, key)
	require.NoError(t, err)

	exec := executor.New("test")
	ch := channel.NewBaseChannel(exec, channel.NewConfig())
	rec := &recordingUnsafe{}
	ch.SetUnsafe(rec)
	require.NoError(t, ch.Pipeline().AddLast("crypt", encoder))

	regP := future.NewPromise(exec)
	ch.Register(regP)
	require.NoError(t, regP.Await())

	src := []byte("a secret message over kcp")
	alloc := channel.NewConfig().Allocator
	payload := alloc.Buffer(len(src), len(src))
	require.NoError(t, payload.WriteBytes(src))
	require.NoError(t, ch.WriteAndFlush(payload).Await())

	encrypted := rec.got.(buffer.ByteBuf)
	assert.NotEqual(t, src, encrypted.Bytes())

	decExec := executor.New("dec")
	decCh := channel.NewBaseChannel(decExec, channel.NewConfig())
	decCh.SetUnsafe(noopUnsafe{})
	done := make(chan struct{})
	capture := &capturingHandler{done: done}
	require.NoError(t, decCh.Pipeline().AddLast("crypt", decoder))
	require.NoError(t, decCh.Pipeline().AddLast("capture", capture))

	decRegP := future.NewPromise(decExec)
	decCh.Register(decRegP)
	require.NoError(t, decRegP.Await())

	decExec.Execute(func() { decCh.Pipeline().FireChannelRead(encrypted) })
	<-done
	assert.Equal(t, src, capture.got)
}

type capturingHandler struct {
	channel.HandlerBase
	got  []byte
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
