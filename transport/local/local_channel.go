package local

import (
	"sync"
	"sync/atomic"

	"github.com/xtaci/eventloop/buffer"
	"github.com/xtaci/eventloop/channel"
	"github.com/xtaci/eventloop/executor"
	"github.com/xtaci/eventloop/future"
)

// LocalChannel is used on both sides of a pair: the client-initiated
// channel and the child channel ServerChannel hands off on accept. Writes
// enqueue locally (tracked for backpressure); Flush dispatches them as
// tasks on the peer's own executor, which is the MPSC inbound queue the
// contract calls for — multiple producer goroutines (any writer) each
// Execute one delivery task, drained one at a time by the single
// goroutine that owns the peer's executor.
type LocalChannel struct {
	*channel.BaseChannel
	u *localUnsafe
}

// NewLocalChannel allocates an unconnected LocalChannel on exec.
func NewLocalChannel(exec *executor.Executor, cfg *channel.Config) *LocalChannel {
	base := channel.NewBaseChannel(exec, cfg)
	lc := &LocalChannel{BaseChannel: base}
	lc.u = &localUnsafe{lc: lc}
	base.SetUnsafe(lc.u)
	return lc
}

type pendingWrite struct {
	msg     interface{}
	promise future.Promise
	size    int
}

type localUnsafe struct {
	lc   *LocalChannel
	peer *localUnsafe

	localAddr, remoteAddr Addr

	mu      sync.Mutex
	pending []pendingWrite
	closed  int32
}

func sizeOf(msg interface{}) int {
	if bb, ok := msg.(buffer.ByteBuf); ok {
		return bb.ReadableBytes()
	}
	return 1
}

func (u *localUnsafe) LocalAddress() channel.Address  { return u.localAddr }
func (u *localUnsafe) RemoteAddress() channel.Address { return u.remoteAddr }

func (u *localUnsafe) Bind(local channel.Address, promise future.Promise) {
	if local != nil {
		u.localAddr = Addr(local.String())
	}
	promise.TrySetSuccess()
}

func (u *localUnsafe) Connect(remote, local channel.Address, promise future.Promise) {
	sc, ok := lookupServer(remote.String())
	if !ok {
		promise.TrySetFailure(channel.ErrConnectRefused)
		return
	}
	peerExec := u.lc.Executor()
	peerCfg := sc.ChildConfig
	if sc.ChildExecutor != nil {
		peerExec = sc.ChildExecutor()
	}
	child := NewLocalChannel(peerExec, peerCfg)

	localAddr := Addr(mintAddress())
	if local != nil {
		localAddr = Addr(local.String())
	}
	u.localAddr = localAddr
	u.remoteAddr = Addr(remote.String())
	child.u.remoteAddr = u.localAddr
	child.u.localAddr = Addr(remote.String())
	u.peer = child.u
	child.u.peer = u

	regPromise := future.NewPromise(peerExec)
	child.Underlying().Register(regPromise)
	regPromise.AddListener(func(f future.Future) {
		if f.IsSuccess() {
			child.Underlying().NotifyActive()
			sc.acceptChild(child)
		}
	})

	u.lc.Underlying().NotifyActive()
	promise.TrySetSuccess()
}

func (u *localUnsafe) Disconnect(promise future.Promise) {
	u.Close(promise)
}

func (u *localUnsafe) Close(promise future.Promise) {
	if !atomic.CompareAndSwapInt32(&u.closed, 0, 1) {
		promise.TrySetSuccess()
		return
	}
	u.mu.Lock()
	dropped := u.pending
	u.pending = nil
	u.mu.Unlock()
	for _, pw := range dropped {
		if releasable, ok := pw.msg.(interface{ Release() bool }); ok {
			releasable.Release()
		}
		pw.promise.TrySetFailure(channel.ErrClosedChannel)
	}
	if peer := u.peer; peer != nil {
		u.peer = nil
		peer.peer = nil
	}
	u.lc.Underlying().NotifyInactive()
	promise.TrySetSuccess()
}

func (u *localUnsafe) Deregister(promise future.Promise) {
	u.lc.Underlying().NotifyUnregistered()
	promise.TrySetSuccess()
}

func (u *localUnsafe) BeginRead() {}

func (u *localUnsafe) Write(msg interface{}, promise future.Promise) {
	if atomic.LoadInt32(&u.closed) == 1 {
		if releasable, ok := msg.(interface{ Release() bool }); ok {
			releasable.Release()
		}
		promise.TrySetFailure(channel.ErrClosedChannel)
		return
	}
	size := sizeOf(msg)
	u.mu.Lock()
	u.pending = append(u.pending, pendingWrite{msg: msg, promise: promise, size: size})
	u.mu.Unlock()
	u.lc.Underlying().ReportPendingBytes(size)
}

func (u *localUnsafe) Flush() {
	u.mu.Lock()
	batch := u.pending
	u.pending = nil
	u.mu.Unlock()

	peer := u.peer
	for _, pw := range batch {
		pw := pw
		u.lc.Underlying().ReportPendingBytes(-pw.size)
		if peer == nil {
			if releasable, ok := pw.msg.(interface{ Release() bool }); ok {
				releasable.Release()
			}
			pw.promise.TrySetFailure(channel.ErrClosedChannel)
			continue
		}
		peerExec := peer.lc.Executor()
		peerExec.Execute(func() {
			peer.lc.Underlying().NotifyRead(pw.msg)
			peer.lc.Underlying().NotifyReadComplete()
		})
		pw.promise.TrySetSuccess()
	}
}
