package buffer

import "sync"

// DefaultMaxCapacity is used when a caller does not care to bound growth.
const DefaultMaxCapacity = 1 << 20 // 1 MiB

// sizeClasses are the slab sizes the pooled allocator recycles into,
// mirroring the "size-classed arena" rationale from the buffer contract:
// a handful of fixed buckets keeps recycling O(1) without the bookkeeping
// of a general-purpose slab allocator.
var sizeClasses = []int{512, 1024, 4096, 16384, 65536, 262144}

// Allocator produces ByteBufs, heap-backed only (this port targets network
// buffers, which Go's GC already treats as ordinary heap values; no
// "direct" memory distinction is drawn the way the JVM original needs one).
// Pooled mode recycles backing slices through per-size-class sync.Pools,
// which is the idiomatic Go substitute for the per-thread arena caches the
// contract describes as "an optimization, not a contract".
type Allocator struct {
	pooled bool
	pools  []*sync.Pool
}

// NewUnpooledAllocator returns an allocator whose buffers are always backed
// by a freshly made() slice, recycled to the GC on release.
func NewUnpooledAllocator() *Allocator {
	return &Allocator{pooled: false}
}

// NewPooledAllocator returns an allocator that recycles backing slices
// through size-classed sync.Pools.
func NewPooledAllocator() *Allocator {
	a := &Allocator{pooled: true, pools: make([]*sync.Pool, len(sizeClasses))}
	for i, sz := range sizeClasses {
		sz := sz
		a.pools[i] = &sync.Pool{New: func() interface{} { return make([]byte, sz) }}
	}
	return a
}

func (a *Allocator) classFor(n int) int {
	for i, sz := range sizeClasses {
		if n <= sz {
			return i
		}
	}
	return -1
}

func (a *Allocator) take(initial int) []byte {
	if !a.pooled {
		return make([]byte, 0, initial)
	}
	idx := a.classFor(initial)
	if idx < 0 {
		return make([]byte, 0, initial)
	}
	buf := a.pools[idx].Get().([]byte)
	return buf[:0]
}

func (a *Allocator) recycle(buf []byte) {
	if !a.pooled || buf == nil {
		return
	}
	idx := a.classFor(cap(buf))
	if idx < 0 {
		return
	}
	// Reslice to the class's full capacity so the next Get sees a
	// ready-to-use slab rather than the trimmed view left by ensureWritable.
	if cap(buf) != sizeClasses[idx] {
		return
	}
	a.pools[idx].Put(buf[:sizeClasses[idx]])
}

// Buffer returns a new ByteBuf with refcount 1, empty contents, and the
// given initial and max capacities.
func (a *Allocator) Buffer(initial, maxCapacity int) ByteBuf {
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	if initial > maxCapacity {
		initial = maxCapacity
	}
	buf := a.take(initial)
	return newByteBuf(a, buf, maxCapacity)
}

// WrapBytes returns a ByteBuf view over p without copying; releasing it
// never returns storage to this allocator's pools since p was not drawn
// from them.
func (a *Allocator) WrapBytes(p []byte) ByteBuf {
	b := newByteBuf(nil, p, len(p))
	b.writerIndex = len(p)
	return b
}
