// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-size scratch buffers shared by worker jobs.

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool hands out buffers of one size. Buffers of any other capacity
// are dropped on PutBuffer so a caller cannot shrink the pool's buffers.
type BytePool struct {
	size   int
	p      sync.Pool
	allocs atomic.Int64
}

// NewBytePool creates a pool of size-byte buffers.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = 4096
	}
	b := &BytePool{size: size}
	b.p.New = func() any {
		b.allocs.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	return b
}

// GetBuffer returns a buffer of full length.
func (b *BytePool) GetBuffer() *[]byte {
	bp := b.p.Get().(*[]byte)
	*bp = (*bp)[:b.size]
	return bp
}

// PutBuffer returns a buffer to the pool.
func (b *BytePool) PutBuffer(bp *[]byte) {
	if bp == nil || cap(*bp) != b.size {
		return
	}
	b.p.Put(bp)
}

// Size returns the buffer size.
func (b *BytePool) Size() int { return b.size }

// Allocs returns how many buffers have been allocated so far.
func (b *BytePool) Allocs() int64 { return b.allocs.Load() }
