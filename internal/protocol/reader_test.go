package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.WriteByte(0x42)
	w.WriteUint16(1234)
	w.WriteUint32(567890)
	w.WriteString("hello lobby")
	w.WriteBytes([]byte{1, 2, 3, 4})
	w.WriteUint32Slice([]uint32{10, 20, 30})

	r := NewReader(w.Bytes())

	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)

	u16, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), u16)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(567890), u32)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello lobby", s)

	raw, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, raw)

	slice, err := r.ReadUint32Slice()
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20, 30}, slice)

	assert.Equal(t, 0, r.Remaining())
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.ReadUint32()
	assert.ErrorIs(t, err, ErrShortBuffer)

	r2 := NewReader(nil)
	_, err = r2.ReadByte()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestReaderStringShortBuffer(t *testing.T) {
	w := NewWriter(8)
	w.WriteUint16(10)
	w.buf.WriteString("abc")
	r := NewReader(w.Bytes())
	_, err := r.ReadString()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestWriterPoolReuse(t *testing.T) {
	w := GetWriter()
	w.WriteByte(1)
	assert.Equal(t, 1, len(w.Bytes()))
	w.Put()

	w2 := GetWriter()
	assert.Equal(t, 0, len(w2.Bytes()))
	w2.Put()
}
