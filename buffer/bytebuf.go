// Package buffer implements the reference-counted, dual-index byte buffer
// that is the universal currency between pipeline handlers.
package buffer

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Sentinel errors returned by buffer operations. Callers compare with
// errors.Is/errors.Cause since every returned error is wrapped with a stack
// trace via github.com/pkg/errors at the point it is raised.
var (
	ErrReleased        = errors.New("buffer: already released")
	ErrIndexOutOfBounds = errors.New("buffer: index out of bounds")
	ErrCapacityExceeded = errors.New("buffer: capacity exceeded")
)

// ByteBuf is a contiguous or composite byte region with independent
// reader/writer indices and a reference count. It is never safe for
// concurrent use by two goroutines at once; ownership passes along with the
// refcount as buffers move through a pipeline.
type ByteBuf interface {
	// Capacity returns the number of bytes this buffer can currently hold
	// without reallocation.
	Capacity() int
	// MaxCapacity returns the ceiling Capacity will grow to.
	MaxCapacity() int

	ReaderIndex() int
	WriterIndex() int
	SetReaderIndex(i int) error
	SetWriterIndex(i int) error

	// ReadableBytes is WriterIndex - ReaderIndex.
	ReadableBytes() int
	// WritableBytes is MaxCapacity - WriterIndex, the room left to write.
	WritableBytes() int

	MarkReaderIndex()
	ResetReaderIndex() error
	MarkWriterIndex()
	ResetWriterIndex() error

	ReadByte() (byte, error)
	ReadBytes(n int) ([]byte, error)
	ReadUint16() (uint16, error)
	ReadUint32() (uint32, error)
	ReadUint64() (uint64, error)
	ReadUint16LE() (uint16, error)
	ReadUint32LE() (uint32, error)
	ReadUint64LE() (uint64, error)

	WriteByte(b byte) error
	WriteBytes(p []byte) error
	WriteUint16(v uint16) error
	WriteUint32(v uint32) error
	WriteUint64(v uint64) error
	WriteUint16LE(v uint16) error
	WriteUint32LE(v uint32) error
	WriteUint64LE(v uint64) error

	// Bytes returns the readable region as a slice sharing storage with the
	// buffer. Callers must not retain it past the buffer's lifetime.
	Bytes() []byte

	// Slice returns a view over [index, index+length) of the readable
	// region. It shares storage and does not bump the refcount on its own;
	// call Retain on the result to share ownership.
	Slice(index, length int) (ByteBuf, error)
	// Duplicate shares storage and indices' starting point but has its own
	// independent reader/writer indices going forward... actually indices
	// are independent copies seeded from this buffer's current indices.
	Duplicate() ByteBuf

	// RefCnt returns the current reference count.
	RefCnt() int32
	// Retain increments the refcount and returns the same buffer for
	// chaining.
	Retain() ByteBuf
	// Release decrements the refcount; when it reaches zero the backing
	// storage is returned to its allocator. Returns true when this call
	// brought the count to zero.
	Release() bool
}

const minGrowth = 64

// byteBuf is the concrete heap-backed implementation used by both the
// pooled and unpooled allocators; pooling only changes how the backing
// slice is obtained and recycled (see allocator.go).
type byteBuf struct {
	alloc *Allocator
	buf   []byte

	readerIndex int
	writerIndex int
	maxCapacity int

	markedReaderIndex int
	markedWriterIndex int

	refCnt int32

	// parent is non-nil for a buffer returned by Slice: it shares the
	// parent's refcount and backing array rather than owning an
	// independent one, so RefCnt/Retain/Release all delegate to it.
	parent *byteBuf
}

func newByteBuf(alloc *Allocator, initial []byte, maxCapacity int) *byteBuf {
	return &byteBuf{
		alloc:       alloc,
		buf:         initial,
		maxCapacity: maxCapacity,
		refCnt:      1,
	}
}

func (b *byteBuf) checkAlive() error {
	if b.RefCnt() <= 0 {
		return errors.WithStack(ErrReleased)
	}
	return nil
}

func (b *byteBuf) Capacity() int    { return len(b.buf) }
func (b *byteBuf) MaxCapacity() int { return b.maxCapacity }

func (b *byteBuf) ReaderIndex() int { return b.readerIndex }
func (b *byteBuf) WriterIndex() int { return b.writerIndex }

func (b *byteBuf) SetReaderIndex(i int) error {
	if i < 0 || i > b.writerIndex {
		return errors.WithStack(ErrIndexOutOfBounds)
	}
	b.readerIndex = i
	return nil
}

func (b *byteBuf) SetWriterIndex(i int) error {
	if i < b.readerIndex || i > b.Capacity() {
		return errors.WithStack(ErrIndexOutOfBounds)
	}
	b.writerIndex = i
	return nil
}

func (b *byteBuf) ReadableBytes() int { return b.writerIndex - b.readerIndex }
func (b *byteBuf) WritableBytes() int { return b.maxCapacity - b.writerIndex }

func (b *byteBuf) MarkReaderIndex() { b.markedReaderIndex = b.readerIndex }
func (b *byteBuf) ResetReaderIndex() error {
	return b.SetReaderIndex(b.markedReaderIndex)
}

func (b *byteBuf) MarkWriterIndex() { b.markedWriterIndex = b.writerIndex }
func (b *byteBuf) ResetWriterIndex() error {
	return b.SetWriterIndex(b.markedWriterIndex)
}

func (b *byteBuf) ensureWritable(n int) error {
	if err := b.checkAlive(); err != nil {
		return err
	}
	need := b.writerIndex + n
	if need > b.maxCapacity {
		return errors.WithStack(ErrCapacityExceeded)
	}
	if need <= len(b.buf) {
		return nil
	}
	// The pooled allocator hands back a slab with a full-sized backing
	// array but len 0 (buf[:0]); reslice within it before ever falling
	// back to make, so a pooled buffer's first writes actually use the
	// slab instead of abandoning it.
	if need <= cap(b.buf) {
		b.buf = b.buf[:need]
		return nil
	}
	newCap := cap(b.buf)
	if newCap == 0 {
		newCap = minGrowth
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > b.maxCapacity {
		newCap = b.maxCapacity
	}
	grown := make([]byte, newCap)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *byteBuf) ReadByte() (byte, error) {
	if err := b.checkAlive(); err != nil {
		return 0, err
	}
	if b.readerIndex+1 > b.writerIndex {
		return 0, errors.WithStack(ErrIndexOutOfBounds)
	}
	v := b.buf[b.readerIndex]
	b.readerIndex++
	return v, nil
}

func (b *byteBuf) ReadBytes(n int) ([]byte, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if n < 0 || b.readerIndex+n > b.writerIndex {
		return nil, errors.WithStack(ErrIndexOutOfBounds)
	}
	out := make([]byte, n)
	copy(out, b.buf[b.readerIndex:b.readerIndex+n])
	b.readerIndex += n
	return out, nil
}

func (b *byteBuf) readFixed(width int) ([]byte, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if b.readerIndex+width > b.writerIndex {
		return nil, errors.WithStack(ErrIndexOutOfBounds)
	}
	p := b.buf[b.readerIndex : b.readerIndex+width]
	b.readerIndex += width
	return p, nil
}

func (b *byteBuf) ReadUint16() (uint16, error) {
	p, err := b.readFixed(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *byteBuf) ReadUint32() (uint32, error) {
	p, err := b.readFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *byteBuf) ReadUint64() (uint64, error) {
	p, err := b.readFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (b *byteBuf) ReadUint16LE() (uint16, error) {
	p, err := b.readFixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (b *byteBuf) ReadUint32LE() (uint32, error) {
	p, err := b.readFixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (b *byteBuf) ReadUint64LE() (uint64, error) {
	p, err := b.readFixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (b *byteBuf) WriteByte(v byte) error {
	if err := b.ensureWritable(1); err != nil {
		return err
	}
	b.buf[b.writerIndex] = v
	b.writerIndex++
	return nil
}

func (b *byteBuf) WriteBytes(p []byte) error {
	if err := b.ensureWritable(len(p)); err != nil {
		return err
	}
	copy(b.buf[b.writerIndex:], p)
	b.writerIndex += len(p)
	return nil
}

func (b *byteBuf) WriteUint16(v uint16) error {
	if err := b.ensureWritable(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b.buf[b.writerIndex:], v)
	b.writerIndex += 2
	return nil
}

func (b *byteBuf) WriteUint32(v uint32) error {
	if err := b.ensureWritable(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.buf[b.writerIndex:], v)
	b.writerIndex += 4
	return nil
}

func (b *byteBuf) WriteUint64(v uint64) error {
	if err := b.ensureWritable(8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b.buf[b.writerIndex:], v)
	b.writerIndex += 8
	return nil
}

func (b *byteBuf) WriteUint16LE(v uint16) error {
	if err := b.ensureWritable(2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b.buf[b.writerIndex:], v)
	b.writerIndex += 2
	return nil
}

func (b *byteBuf) WriteUint32LE(v uint32) error {
	if err := b.ensureWritable(4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b.buf[b.writerIndex:], v)
	b.writerIndex += 4
	return nil
}

func (b *byteBuf) WriteUint64LE(v uint64) error {
	if err := b.ensureWritable(8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b.buf[b.writerIndex:], v)
	b.writerIndex += 8
	return nil
}

func (b *byteBuf) Bytes() []byte {
	return b.buf[b.readerIndex:b.writerIndex]
}

func (b *byteBuf) Slice(index, length int) (ByteBuf, error) {
	if err := b.checkAlive(); err != nil {
		return nil, err
	}
	if index < 0 || length < 0 || b.readerIndex+index+length > b.writerIndex {
		return nil, errors.WithStack(ErrIndexOutOfBounds)
	}
	start := b.readerIndex + index
	root := b
	if b.parent != nil {
		root = b.parent
	}
	s := &byteBuf{
		alloc:       b.alloc,
		buf:         b.buf[start : start+length],
		maxCapacity: length,
		writerIndex: length,
		parent:      root,
	}
	return s, nil
}

func (b *byteBuf) Duplicate() ByteBuf {
	return &byteBuf{
		alloc:             b.alloc,
		buf:               b.buf,
		maxCapacity:       b.maxCapacity,
		readerIndex:       b.readerIndex,
		writerIndex:       b.writerIndex,
		markedReaderIndex: b.markedReaderIndex,
		markedWriterIndex: b.markedWriterIndex,
		refCnt:            1,
	}
}

func (b *byteBuf) RefCnt() int32 {
	if b.parent != nil {
		return b.parent.RefCnt()
	}
	return b.refCnt
}

func (b *byteBuf) Retain() ByteBuf {
	if b.parent != nil {
		b.parent.Retain()
		return b
	}
	b.refCnt++
	return b
}

func (b *byteBuf) Release() bool {
	if b.parent != nil {
		return b.parent.Release()
	}
	if b.refCnt <= 0 {
		return true
	}
	b.refCnt--
	if b.refCnt == 0 {
		if b.alloc != nil {
			b.alloc.recycle(b.buf)
		}
		b.buf = nil
		return true
	}
	return false
}
