package sender

import "sync"

// BytePool reuses outbound write buffers so the steady-state send path
// does not allocate per packet.
type BytePool struct {
	pool      sync.Pool
	defaultCap int
}

// NewBytePool creates a pool whose buffers start at defaultCap.
func NewBytePool(defaultCap int) *BytePool {
	p := &BytePool{defaultCap: defaultCap}
	p.pool.New = func() any {
		return make([]byte, 0, defaultCap)
	}
	return p
}

// Get returns a buffer of exactly size bytes, zeroed, reusing pooled
// backing storage when it is large enough.
func (p *BytePool) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		b = make([]byte, size)
	} else {
		b = b[:size]
	}
	clear(b)
	return b
}

// Put returns b to the pool. Do not use b after calling Put.
func (p *BytePool) Put(b []byte) {
	p.pool.Put(b[:0])
}
