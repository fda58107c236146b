package channel

import "github.com/pkg/errors"

// Sentinel errors from the taxonomy in spec §7. Every returned error is
// wrapped with github.com/pkg/errors at the point it is raised so %+v
// formatting yields a stack trace, matching the teacher's own
// errors.Wrap/errors.WithStack usage.
var (
	ErrAlreadyBound   = errors.New("channel: already bound")
	ErrNotRegistered  = errors.New("channel: not registered")
	ErrConnectTimeout = errors.New("channel: connect timeout")
	ErrConnectRefused = errors.New("channel: connect refused")
	ErrClosedChannel  = errors.New("channel: closed")
	ErrWriteRejected  = errors.New("channel: write rejected")
	ErrUnknownOption  = errors.New("channel: unknown option")
	ErrDuplicate      = errors.New("pipeline: duplicate handler name")
	ErrNotFound       = errors.New("pipeline: handler not found")
	ErrDecoder        = errors.New("codec: decoder exception")
	ErrEncoder        = errors.New("codec: encoder exception")
	ErrCodec          = errors.New("codec: exception")
)
