// File: pool/bytepool.go
//
// Package pool provides the byte-buffer pool behind the bridge's
// completion-model operations. When a cancellation is in flight a buffer
// outlives its operation's caller, since the OS may still write into it
// until the abort is confirmed. Buffers are therefore returned to the pool
// only after the completion (or abort) has been observed.
package pool

import "sync"

// BytePool hands out fixed-capacity buffers backed by a sync.Pool.
type BytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	p := &BytePool{size: size}
	p.pool.New = func() any {
		return make([]byte, size)
	}
	return p
}

// Size returns the capacity of every buffer the pool hands out.
func (p *BytePool) Size() int { return p.size }

// Get returns a buffer of the pool's full size.
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a buffer for reuse. Buffers of foreign capacity are dropped
// rather than poisoning the size class.
func (p *BytePool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	p.pool.Put(buf[:p.size])
}
