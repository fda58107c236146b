// Package smux layers github.com/xtaci/smux stream multiplexing over any
// already-connected io.ReadWriteCloser (a net.Conn or a kcp session, for
// example), matching spec §4.J:
// Session wraps a *smux.Session bound to one underlying connection;
// OpenChannel opens a new client stream, ServerChannel accepts streams the
// remote side opens, each delivered up the pipeline the same way
// transport/tcp.ServerChannel delivers accepted connections.
package smux

import (
	"io"
	"time"

	"github.com/pkg/errors"
	smuxgo "github.com/xtaci/smux"

	"github.com/xtaci/eventloop/channel"
)

// Session wraps a *smux.Session negotiated over conn.
type Session struct {
	raw *smuxgo.Session
}

func buildConfig(cfg *channel.Config) *smuxgo.Config {
	c := smuxgo.DefaultConfig()
	if v, ok := cfg.Option(channel.OptSmuxMaxFrameSize); ok {
		if n, ok := v.(int); ok {
			c.MaxFrameSize = n
		}
	}
	if v, ok := cfg.Option(channel.OptSmuxKeepaliveInterval); ok {
		if n, ok := v.(int); ok {
			c.KeepAliveInterval = time.Duration(n) * time.Second
		}
	}
	return c
}

// NewClientSession negotiates the client side of smux over conn.
func NewClientSession(conn io.ReadWriteCloser, cfg *channel.Config) (*Session, error) {
	raw, err := smuxgo.Client(conn, buildConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "smux: client handshake")
	}
	return &Session{raw: raw}, nil
}

// NewServerSession negotiates the server side of smux over conn.
func NewServerSession(conn io.ReadWriteCloser, cfg *channel.Config) (*Session, error) {
	raw, err := smuxgo.Server(conn, buildConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, "smux: server handshake")
	}
	return &Session{raw: raw}, nil
}

// Close tears down every stream and the underlying connection.
func (s *Session) Close() error { return s.raw.Close() }

// NumStreams reports live streams, mirroring *smux.Session.NumStreams.
func (s *Session) NumStreams() int { return s.raw.NumStreams() }
