package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteBufReadWrite(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(16, 1024)
	require.NoError(t, buf.WriteBytes([]byte("hello")))
	require.Equal(t, 5, buf.ReadableBytes())

	p, err := buf.ReadBytes(5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(p))
	assert.Equal(t, 0, buf.ReadableBytes())
}

func TestByteBufGrowthClampsToMaxCapacity(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(4, 8)
	require.NoError(t, buf.WriteBytes([]byte("12345678")))
	err := buf.WriteByte('9')
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestByteBufReadPastWriterIndexFails(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(4, 16)
	_, err := buf.ReadByte()
	assert.ErrorIs(t, err, ErrIndexOutOfBounds)
}

func TestByteBufRefcountAndRelease(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(4, 16)
	assert.EqualValues(t, 1, buf.RefCnt())
	buf.Retain()
	assert.EqualValues(t, 2, buf.RefCnt())
	assert.False(t, buf.Release())
	assert.True(t, buf.Release())

	_, err := buf.ReadByte()
	assert.ErrorIs(t, err, ErrReleased)
}

func TestByteBufBigEndianDefault(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(8, 8)
	require.NoError(t, buf.WriteUint32(0x2a))
	v, err := buf.ReadUint32()
	require.NoError(t, err)
	assert.EqualValues(t, 0x2a, v)
}

func TestByteBufMarkAndResetReaderIndex(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(8, 8)
	require.NoError(t, buf.WriteBytes([]byte("abcd")))
	buf.MarkReaderIndex()
	_, _ = buf.ReadBytes(2)
	require.NoError(t, buf.ResetReaderIndex())
	assert.Equal(t, 0, buf.ReaderIndex())
}

func TestByteBufSliceSharesStorage(t *testing.T) {
	alloc := NewUnpooledAllocator()
	buf := alloc.Buffer(8, 8)
	require.NoError(t, buf.WriteBytes([]byte("abcd")))
	s, err := buf.Slice(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(s.Bytes()))
}

func TestCompositeByteBufReadsAcrossComponents(t *testing.T) {
	alloc := NewUnpooledAllocator()
	a := alloc.Buffer(4, 4)
	_ = a.WriteBytes([]byte("ab"))
	b := alloc.Buffer(4, 4)
	_ = b.WriteBytes([]byte("cd"))

	composite := NewCompositeByteBuf(alloc, a, b)
	defer composite.Release()
	a.Release()
	b.Release()

	p, err := composite.ReadBytes(4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p))
}
