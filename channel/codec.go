package channel

import (
	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/future"
)

// ByteToMessageDecoder is the base for decoders that turn a stream of
// inbound ByteBufs into zero or more application messages, retaining
// undecoded bytes across invocations in an internal cumulation buffer
// (spec §6, §8 invariant 7). Embed it and set Decode.
type ByteToMessageDecoder struct {
	HandlerBase
	// Decode is called repeatedly with the cumulation buffer until a call
	// consumes no bytes (leaves the reader index where it was), whether or
	// not it appended to out; it is responsible for resetting the buffer's reader index (via
	// in.MarkReaderIndex/in.ResetReaderIndex) when there aren't yet enough
	// bytes for a full message, so cumulation retains them for the next
	// read.
	Decode func(ctx Context, in buffer.ByteBuf, out *[]interface{}) error

	cumulation buffer.ByteBuf
}

func (d *ByteToMessageDecoder) HandlerRemoved(ctx Context) {
	if d.cumulation != nil {
		d.cumulation.Release()
		d.cumulation = nil
	}
}

func (d *ByteToMessageDecoder) ChannelRead(ctx Context, msg interface{}) {
	in, ok := msg.(buffer.ByteBuf)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	defer in.Release()

	if d.cumulation == nil {
		d.cumulation = ctx.Allocator().Buffer(in.ReadableBytes(), buffer.DefaultMaxCapacity)
	}
	if err := d.cumulation.WriteBytes(in.Bytes()); err != nil {
		ctx.FireExceptionCaught(errors.Wrap(err, "codec: cumulation overflow"))
		return
	}

	var out []interface{}
	for {
		before := d.cumulation.ReaderIndex()
		if err := d.Decode(ctx, d.cumulation, &out); err != nil {
			ctx.FireExceptionCaught(errors.Wrap(err, "codec: decode"))
			break
		}
		if d.cumulation.ReaderIndex() == before {
			break
		}
	}
	for _, o := range out {
		ctx.FireChannelRead(o)
	}
	if d.cumulation != nil && d.cumulation.ReadableBytes() == 0 {
		d.cumulation.Release()
		d.cumulation = nil
	}
}

// MessageToMessageEncoder is the base for outbound codecs that accept only
// messages of type T (tested via a type assertion, the acceptOutboundMessage
// of spec §6) and transform each into zero or more downstream messages.
type MessageToMessageEncoder[T any] struct {
	HandlerBase
	Encode func(ctx Context, msg T, out *[]interface{}) error
}

func (e *MessageToMessageEncoder[T]) Write(ctx Context, msg interface{}, promise future.Promise) {
	typed, ok := msg.(T)
	if !ok {
		ctx.WritePromise(msg, promise)
		return
	}
	var out []interface{}
	if err := e.Encode(ctx, typed, &out); err != nil {
		promise.TrySetFailure(errors.Wrap(err, "codec: encode"))
		return
	}
	if len(out) == 0 {
		promise.TrySetSuccess()
		return
	}
	for i, o := range out {
		if i == len(out)-1 {
			ctx.WritePromise(o, promise)
		} else {
			ctx.Write(o)
		}
	}
}

// MessageToMessageDecoder is the inbound counterpart: accepts only
// messages of type T, transforming each into zero or more outputs fired
// onward.
type MessageToMessageDecoder[T any] struct {
	HandlerBase
	Decode func(ctx Context, msg T, out *[]interface{}) error
}

func (d *MessageToMessageDecoder[T]) ChannelRead(ctx Context, msg interface{}) {
	typed, ok := msg.(T)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	var out []interface{}
	if err := d.Decode(ctx, typed, &out); err != nil {
		ctx.FireExceptionCaught(errors.Wrap(err, "codec: decode"))
		return
	}
	for _, o := range out {
		ctx.FireChannelRead(o)
	}
}
