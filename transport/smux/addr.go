package smux

import "net"

type netAddr struct{ a net.Addr }

func (n netAddr) Network() string { return n.a.Network() }
func (n netAddr) String() string  { return n.a.String() }
