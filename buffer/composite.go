package buffer

import "github.com/pkg/errors"

// CompositeByteBuf presents a single logical ByteBuf over several component
// buffers without copying them together; reads cross component boundaries
// transparently. It takes ownership (one retain's worth) of each component
// added to it and releases every component on its own Release.
type CompositeByteBuf struct {
	alloc       *Allocator
	components  []ByteBuf
	offsets     []int // cumulative readable-byte offset at which each component starts
	readerIndex int
	writerIndex int
	maxCapacity int
	refCnt      int32

	markedReaderIndex int
	markedWriterIndex int
}

// NewCompositeByteBuf builds a composite view over components, in order.
// Each component is retained once; the caller's own reference to each is
// untouched (release it yourself if you no longer need it independently).
func NewCompositeByteBuf(alloc *Allocator, components ...ByteBuf) *CompositeByteBuf {
	c := &CompositeByteBuf{alloc: alloc, refCnt: 1}
	for _, comp := range components {
		c.addComponent(comp)
	}
	return c
}

func (c *CompositeByteBuf) addComponent(comp ByteBuf) {
	comp.Retain()
	c.offsets = append(c.offsets, c.writerIndex)
	c.components = append(c.components, comp)
	n := comp.ReadableBytes()
	c.writerIndex += n
	c.maxCapacity += n
}

func (c *CompositeByteBuf) checkAlive() error {
	if c.refCnt <= 0 {
		return errors.WithStack(ErrReleased)
	}
	return nil
}

func (c *CompositeByteBuf) Capacity() int    { return c.writerIndex }
func (c *CompositeByteBuf) MaxCapacity() int { return c.maxCapacity }
func (c *CompositeByteBuf) ReaderIndex() int { return c.readerIndex }
func (c *CompositeByteBuf) WriterIndex() int { return c.writerIndex }

func (c *CompositeByteBuf) SetReaderIndex(i int) error {
	if i < 0 || i > c.writerIndex {
		return errors.WithStack(ErrIndexOutOfBounds)
	}
	c.readerIndex = i
	return nil
}

func (c *CompositeByteBuf) SetWriterIndex(i int) error {
	if i < c.readerIndex || i > c.Capacity() {
		return errors.WithStack(ErrIndexOutOfBounds)
	}
	c.writerIndex = i
	return nil
}

func (c *CompositeByteBuf) ReadableBytes() int { return c.writerIndex - c.readerIndex }
func (c *CompositeByteBuf) WritableBytes() int { return c.maxCapacity - c.writerIndex }

func (c *CompositeByteBuf) MarkReaderIndex() { c.markedReaderIndex = c.readerIndex }
func (c *CompositeByteBuf) ResetReaderIndex() error {
	return c.SetReaderIndex(c.markedReaderIndex)
}
func (c *CompositeByteBuf) MarkWriterIndex() { c.markedWriterIndex = c.writerIndex }
func (c *CompositeByteBuf) ResetWriterIndex() error {
	return c.SetWriterIndex(c.markedWriterIndex)
}

// componentAt locates the component containing logical offset pos and the
// offset within that component.
func (c *CompositeByteBuf) componentAt(pos int) (int, int) {
	for i := len(c.components) - 1; i >= 0; i-- {
		if pos >= c.offsets[i] {
			return i, pos - c.offsets[i]
		}
	}
	return 0, pos
}

func (c *CompositeByteBuf) ReadByte() (byte, error) {
	if err := c.checkAlive(); err != nil {
		return 0, err
	}
	if c.readerIndex+1 > c.writerIndex {
		return 0, errors.WithStack(ErrIndexOutOfBounds)
	}
	idx, off := c.componentAt(c.readerIndex)
	comp := c.components[idx]
	b := comp.Bytes()[off]
	c.readerIndex++
	return b, nil
}

func (c *CompositeByteBuf) ReadBytes(n int) ([]byte, error) {
	if err := c.checkAlive(); err != nil {
		return nil, err
	}
	if n < 0 || c.readerIndex+n > c.writerIndex {
		return nil, errors.WithStack(ErrIndexOutOfBounds)
	}
	out := make([]byte, 0, n)
	pos := c.readerIndex
	remaining := n
	for remaining > 0 {
		idx, off := c.componentAt(pos)
		comp := c.components[idx]
		avail := comp.ReadableBytes() - off
		take := remaining
		if take > avail {
			take = avail
		}
		out = append(out, comp.Bytes()[off:off+take]...)
		pos += take
		remaining -= take
	}
	c.readerIndex += n
	return out, nil
}

func (c *CompositeByteBuf) readFixed(width int) (uint64, error) {
	p, err := c.ReadBytes(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, b := range p {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func (c *CompositeByteBuf) ReadUint16() (uint16, error) {
	v, err := c.readFixed(2)
	return uint16(v), err
}
func (c *CompositeByteBuf) ReadUint32() (uint32, error) {
	v, err := c.readFixed(4)
	return uint32(v), err
}
func (c *CompositeByteBuf) ReadUint64() (uint64, error) {
	return c.readFixed(8)
}

func (c *CompositeByteBuf) readFixedLE(width int) (uint64, error) {
	p, err := c.ReadBytes(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := len(p) - 1; i >= 0; i-- {
		v = v<<8 | uint64(p[i])
	}
	return v, nil
}

func (c *CompositeByteBuf) ReadUint16LE() (uint16, error) {
	v, err := c.readFixedLE(2)
	return uint16(v), err
}
func (c *CompositeByteBuf) ReadUint32LE() (uint32, error) {
	v, err := c.readFixedLE(4)
	return uint32(v), err
}
func (c *CompositeByteBuf) ReadUint64LE() (uint64, error) {
	return c.readFixedLE(8)
}

// WriteByte and its siblings append a new single-byte/fixed-width component
// built from the composite's own allocator; composites are primarily a read
// side (cumulation) construct, so writes are supported but unexciting.
func (c *CompositeByteBuf) WriteByte(b byte) error {
	return c.WriteBytes([]byte{b})
}

func (c *CompositeByteBuf) WriteBytes(p []byte) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	buf := c.alloc.Buffer(len(p), len(p))
	if err := buf.WriteBytes(p); err != nil {
		return err
	}
	c.addComponent(buf)
	buf.Release() // composite now owns the sole retain from addComponent
	return nil
}

func (c *CompositeByteBuf) WriteUint16(v uint16) error {
	return c.WriteBytes([]byte{byte(v >> 8), byte(v)})
}
func (c *CompositeByteBuf) WriteUint32(v uint32) error {
	return c.WriteBytes([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
func (c *CompositeByteBuf) WriteUint64(v uint64) error {
	p := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		p[i] = byte(v)
		v >>= 8
	}
	return c.WriteBytes(p)
}
func (c *CompositeByteBuf) WriteUint16LE(v uint16) error {
	return c.WriteBytes([]byte{byte(v), byte(v >> 8)})
}
func (c *CompositeByteBuf) WriteUint32LE(v uint32) error {
	return c.WriteBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}
func (c *CompositeByteBuf) WriteUint64LE(v uint64) error {
	p := make([]byte, 8)
	for i := 0; i < 8; i++ {
		p[i] = byte(v)
		v >>= 8
	}
	return c.WriteBytes(p)
}

func (c *CompositeByteBuf) Bytes() []byte {
	b, _ := c.ReadBytes(c.ReadableBytes())
	// restore reader index: Bytes() must not consume.
	c.readerIndex -= len(b)
	return b
}

func (c *CompositeByteBuf) Slice(index, length int) (ByteBuf, error) {
	if index < 0 || length < 0 || c.readerIndex+index+length > c.writerIndex {
		return nil, errors.WithStack(ErrIndexOutOfBounds)
	}
	saved := c.readerIndex
	c.readerIndex += index
	p, err := c.ReadBytes(length)
	c.readerIndex = saved
	if err != nil {
		return nil, err
	}
	return c.alloc.WrapBytes(p), nil
}

func (c *CompositeByteBuf) Duplicate() ByteBuf {
	d := &CompositeByteBuf{
		alloc:       c.alloc,
		components:  append([]ByteBuf(nil), c.components...),
		offsets:     append([]int(nil), c.offsets...),
		readerIndex: c.readerIndex,
		writerIndex: c.writerIndex,
		maxCapacity: c.maxCapacity,
		refCnt:      1,
	}
	for _, comp := range d.components {
		comp.Retain()
	}
	return d
}

func (c *CompositeByteBuf) RefCnt() int32 { return c.refCnt }

func (c *CompositeByteBuf) Retain() ByteBuf {
	c.refCnt++
	return c
}

func (c *CompositeByteBuf) Release() bool {
	if c.refCnt <= 0 {
		return true
	}
	c.refCnt--
	if c.refCnt == 0 {
		for _, comp := range c.components {
			comp.Release()
		}
		c.components = nil
		return true
	}
	return false
}
