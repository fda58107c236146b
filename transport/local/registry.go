// Package local implements the in-VM reference transport (spec §4.G): a
// process-wide registry mapping addresses to server channels, and paired
// client/child channels that hand bytes directly to each other's inbound
// queue rather than through a socket. It exists to exercise the core
// channel/pipeline contract in tests without touching the network.
package local

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/xtaci/eventloop/channel"
)

// Any is the reserved address that instructs Bind to mint a unique
// address rather than claim a caller-chosen one.
const Any = ""

// registry is the single process-scoped address -> server-channel
// structure (Design Notes: "model it as a single process-scoped structure
// with atomic insert/remove, initialized lazily"). sync.Map gives us
// exactly that without a package-level init function.
var registry sync.Map // string -> *ServerChannel

var addrSeq int64

func mintAddress() string {
	return fmt.Sprintf("local:%d", atomic.AddInt64(&addrSeq, 1))
}

func registerServer(addr string, sc *ServerChannel) (string, error) {
	if addr == Any {
		for {
			addr = mintAddress()
			if _, loaded := registry.LoadOrStore(addr, sc); !loaded {
				return addr, nil
			}
		}
	}
	if _, loaded := registry.LoadOrStore(addr, sc); loaded {
		return "", channel.ErrAlreadyBound
	}
	return addr, nil
}

func lookupServer(addr string) (*ServerChannel, bool) {
	v, ok := registry.Load(addr)
	if !ok {
		return nil, false
	}
	return v.(*ServerChannel), true
}

func unregisterServer(addr string) {
	registry.Delete(addr)
}

// Addr is the opaque address identifier this transport's registry keys on.
type Addr string

func (a Addr) Network() string { return "local" }
func (a Addr) String() string  { return string(a) }
