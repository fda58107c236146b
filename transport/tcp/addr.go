package tcp

import "net"

// netAddr adapts a net.Addr to channel.Address without pulling the channel
// package's Address type into every call site that already has a net.Addr.
type netAddr struct{ a net.Addr }

func (n netAddr) Network() string { return n.a.Network() }
func (n netAddr) String() string  { return n.a.String() }

// Addr wraps a "host:port" string as a channel.Address, for callers (cmd/
// bootstraps) that only have a flag-supplied endpoint and no net.Addr yet.
type Addr string

func (a Addr) Network() string { return "tcp" }
func (a Addr) String() string  { return string(a) }
