// Package frame implements the length-prefixed framing scenario spec §9
// (S2) describes: a magic byte 'F' (0x46), a big-endian uint32 payload
// length, then the payload itself. Encoder/Decoder are thin
// MessageToMessageEncoder/ByteToMessageDecoder wirings, matching the
// teacher's "std" package's own small single-purpose io helpers in shape.
package frame

import (
	"github.com/pkg/errors"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
)

// Magic is the single byte every frame starts with.
const Magic byte = 'F'

// headerSize is Magic (1) + length (4).
const headerSize = 5

// ErrBadMagic is raised when a frame's leading byte isn't Magic.
var ErrBadMagic = errors.New("frame: bad magic byte")

// NewEncoder returns a handler that wraps each outbound buffer.ByteBuf in
// a framed envelope.
func NewEncoder() channel.Handler {
	return &channel.MessageToMessageEncoder[buffer.ByteBuf]{
		Encode: func(ctx channel.Context, msg buffer.ByteBuf, out *[]interface{}) error {
			defer msg.Release()
			payloadLen := msg.ReadableBytes()
			framed := ctx.Allocator().Buffer(headerSize+payloadLen, headerSize+payloadLen)
			if err := framed.WriteByte(Magic); err != nil {
				return errors.Wrap(err, "frame: write magic")
			}
			if err := framed.WriteUint32(uint32(payloadLen)); err != nil {
				return errors.Wrap(err, "frame: write length")
			}
			if err := framed.WriteBytes(msg.Bytes()); err != nil {
				return errors.Wrap(err, "frame: write payload")
			}
			*out = append(*out, framed)
			return nil
		},
	}
}

// NewDecoder returns a handler that reassembles framed envelopes back into
// payload buffer.ByteBufs, retaining undecoded bytes across reads via the
// embedded ByteToMessageDecoder's cumulation buffer.
func NewDecoder() channel.Handler {
	return &channel.ByteToMessageDecoder{
		Decode: func(ctx channel.Context, in buffer.ByteBuf, out *[]interface{}) error {
			if in.ReadableBytes() < headerSize {
				return nil
			}
			in.MarkReaderIndex()
			magic, err := in.ReadByte()
			if err != nil {
				return errors.Wrap(err, "frame: read magic")
			}
			if magic != Magic {
				return errors.WithStack(ErrBadMagic)
			}
			length, err := in.ReadUint32()
			if err != nil {
				return errors.Wrap(err, "frame: read length")
			}
			if in.ReadableBytes() < int(length) {
				if resetErr := in.ResetReaderIndex(); resetErr != nil {
					return errors.Wrap(resetErr, "frame: reset reader index")
				}
				return nil
			}
			payload, err := in.ReadBytes(int(length))
			if err != nil {
				return errors.Wrap(err, "frame: read payload")
			}
			buf := ctx.Allocator().Buffer(len(payload), len(payload))
			if err := buf.WriteBytes(payload); err != nil {
				return errors.Wrap(err, "frame: copy payload")
			}
			*out = append(*out, buf)
			return nil
		},
	}
}
