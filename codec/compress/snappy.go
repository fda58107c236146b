// Package compress wraps github.com/golang/snappy as a pair of
// MessageToMessageEncoder/Decoder handlers operating on buffer.ByteBuf
// payloads, the same "codec sits between frame codec and application" slot
// kcptun's own std.Pipe-adjacent compressors occupy.
package compress

import (
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
)

// NewEncoder returns a handler that snappy-compresses each outbound
// buffer.ByteBuf.
func NewEncoder() channel.Handler {
	return &channel.MessageToMessageEncoder[buffer.ByteBuf]{
		Encode: func(ctx channel.Context, msg buffer.ByteBuf, out *[]interface{}) error {
			defer msg.Release()
			src := msg.Bytes()
			compressed := snappy.Encode(nil, src)
			buf := ctx.Allocator().Buffer(len(compressed), len(compressed))
			if err := buf.WriteBytes(compressed); err != nil {
				return errors.Wrap(err, "compress: write")
			}
			*out = append(*out, buf)
			return nil
		},
	}
}

// NewDecoder returns a handler that snappy-decompresses each inbound
// buffer.ByteBuf.
func NewDecoder() channel.Handler {
	return &channel.MessageToMessageDecoder[buffer.ByteBuf]{
		Decode: func(ctx channel.Context, msg buffer.ByteBuf, out *[]interface{}) error {
			defer msg.Release()
			decompressed, err := snappy.Decode(nil, msg.Bytes())
			if err != nil {
				return errors.Wrap(err, "compress: decode")
			}
			buf := ctx.Allocator().Buffer(len(decompressed), len(decompressed))
			if err := buf.WriteBytes(decompressed); err != nil {
				return errors.Wrap(err, "compress: write")
			}
			*out = append(*out, buf)
			return nil
		},
	}
}
