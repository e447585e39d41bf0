package protocol

import (
	"bytes"
	"encoding/binary"
	"sync"
)

// Writer provides methods for writing packet fields.
// Uses little-endian byte order for all multi-byte values, matching the
// framing used by Reader.
type Writer struct {
	buf *bytes.Buffer
}

// writerPool reduces allocations on the steady-state encode path.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{buf: bytes.NewBuffer(make([]byte, 0, 256))}
	},
}

// GetWriter returns a reset Writer from the pool.
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.buf.Reset()
	return w
}

// Put returns w to the pool. Do not use w after calling Put.
func (w *Writer) Put() {
	writerPool.Put(w)
}

// NewWriter creates a standalone Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: bytes.NewBuffer(make([]byte, 0, capacity))}
}

// Bytes returns the encoded bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Reset clears the writer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) {
	w.buf.WriteByte(b)
}

// WriteUint16 writes a uint16 (2 bytes, LE).
func (w *Writer) WriteUint16(val uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], val)
	w.buf.Write(b[:])
}

// WriteUint32 writes a uint32 (4 bytes, LE).
func (w *Writer) WriteUint32(val uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	w.buf.Write(b[:])
}

// WriteString writes a length-prefixed (uint16 byte count) UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.WriteUint16(uint16(len(s)))
	w.buf.WriteString(s)
}

// WriteBytes writes a length-prefixed (uint32 byte count) opaque payload.
// Used for the game-configuration blob, whose shape is outside this package's
// concern.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteUint32Slice writes a length-prefixed slice of uint32 (e.g. player id lists).
func (w *Writer) WriteUint32Slice(vals []uint32) {
	w.WriteUint16(uint16(len(vals)))
	for _, v := range vals {
		w.WriteUint32(v)
	}
}
