package channel

import (
	"time"

	"github.com/xtaci/eventloop/buffer"
)

// Option identifies one of the recognized channel options (spec §6).
// Config.SetOption fails with ErrUnknownOption for an option outside the
// recognized set.
type Option string

const (
	OptSOBacklog               Option = "SO_BACKLOG"
	OptSOBroadcast             Option = "SO_BROADCAST"
	OptSOReuseAddr             Option = "SO_REUSEADDR"
	OptTCPNoDelay              Option = "TCP_NODELAY"
	OptSOKeepAlive             Option = "SO_KEEPALIVE"
	OptSOLinger                Option = "SO_LINGER"
	OptSORcvBuf                Option = "SO_RCVBUF"
	OptSOSndBuf                Option = "SO_SNDBUF"
	OptConnectTimeoutMillis    Option = "CONNECT_TIMEOUT_MILLIS"
	OptWriteBufferHighWaterMark Option = "WRITE_BUFFER_HIGH_WATER_MARK"
	OptWriteBufferLowWaterMark  Option = "WRITE_BUFFER_LOW_WATER_MARK"
	OptAutoRead                Option = "AUTO_READ"
	OptAllocator               Option = "ALLOCATOR"
	OptMaxMessagesPerRead      Option = "MAX_MESSAGES_PER_READ"

	// KCP and smux transports extend the recognized set per SPEC_FULL §6.
	OptKCPDataShard           Option = "KCP_DATASHARD"
	OptKCPParityShard         Option = "KCP_PARITYSHARD"
	OptKCPNoDelay             Option = "KCP_NODELAY"
	OptKCPInterval            Option = "KCP_INTERVAL"
	OptKCPSndWnd              Option = "KCP_SNDWND"
	OptKCPRcvWnd              Option = "KCP_RCVWND"
	OptSmuxMaxFrameSize       Option = "SMUX_MAX_FRAME_SIZE"
	OptSmuxKeepaliveInterval  Option = "SMUX_KEEPALIVE_INTERVAL"
)

// knownOptions is every option this module itself recognizes (regardless of
// whether a given transport acts on it); SetOption reports ErrUnknownOption for
// anything outside this set.
var knownOptions = map[Option]bool{
	OptSOBacklog: true, OptSOBroadcast: true, OptSOReuseAddr: true,
	OptTCPNoDelay: true, OptSOKeepAlive: true, OptSOLinger: true,
	OptSORcvBuf: true, OptSOSndBuf: true, OptConnectTimeoutMillis: true,
	OptWriteBufferHighWaterMark: true, OptWriteBufferLowWaterMark: true,
	OptAutoRead: true, OptAllocator: true, OptMaxMessagesPerRead: true,
	OptKCPDataShard: true, OptKCPParityShard: true, OptKCPNoDelay: true,
	OptKCPInterval: true, OptKCPSndWnd: true, OptKCPRcvWnd: true,
	OptSmuxMaxFrameSize: true, OptSmuxKeepaliveInterval: true,
}

// Config holds a channel's options and timeouts. Concrete transports read
// from it at bind/connect/register time to configure the underlying
// socket; the fields here are transport-agnostic.
type Config struct {
	values map[Option]interface{}

	Allocator *buffer.Allocator

	AutoRead               bool
	WriteBufferHighWaterMark int
	WriteBufferLowWaterMark  int
	ConnectTimeout         time.Duration
	MaxMessagesPerRead     int
}

// NewConfig returns a Config with the teacher-sensible defaults: auto-read
// on, a 64KiB/32KiB high/low water mark pair (kcptun's own default socket
// buffer scale), a 3s connect timeout, and a heap pooled allocator.
func NewConfig() *Config {
	return &Config{
		values:                   make(map[Option]interface{}),
		Allocator:                buffer.NewPooledAllocator(),
		AutoRead:                 true,
		WriteBufferHighWaterMark: 64 * 1024,
		WriteBufferLowWaterMark:  32 * 1024,
		ConnectTimeout:           3 * time.Second,
		MaxMessagesPerRead:       16,
	}
}

// SetOption validates and stores an option's value; it also special-cases
// the handful of options this module interprets directly (allocator,
// auto-read, watermarks, connect timeout). Transport-specific options
// (SO_*, KCP_*, SMUX_*) are simply recorded for the transport to read back
// via Option.
func (c *Config) SetOption(opt Option, value interface{}) error {
	if !knownOptions[opt] {
		return ErrUnknownOption
	}
	switch opt {
	case OptAllocator:
		if a, ok := value.(*buffer.Allocator); ok {
			c.Allocator = a
		}
	case OptAutoRead:
		if b, ok := value.(bool); ok {
			c.AutoRead = b
		}
	case OptWriteBufferHighWaterMark:
		if n, ok := value.(int); ok {
			c.WriteBufferHighWaterMark = n
		}
	case OptWriteBufferLowWaterMark:
		if n, ok := value.(int); ok {
			c.WriteBufferLowWaterMark = n
		}
	case OptConnectTimeoutMillis:
		if n, ok := value.(int); ok {
			c.ConnectTimeout = time.Duration(n) * time.Millisecond
		}
	case OptMaxMessagesPerRead:
		if n, ok := value.(int); ok {
			c.MaxMessagesPerRead = n
		}
	}
	c.values[opt] = value
	return nil
}

// Option returns a transport-specific option's raw stored value.
func (c *Config) Option(opt Option) (interface{}, bool) {
	v, ok := c.values[opt]
	return v, ok
}
