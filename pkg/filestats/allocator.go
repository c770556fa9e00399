package filestats

import (
	"fmt"
	"sync"
)

// DefaultExportBufferLimit caps a single export buffer at 64 MiB.
const DefaultExportBufferLimit = 64 << 20

// Allocator supplies the buffers exports are encoded into. Allocate must
// return a slice of exactly size bytes or an error wrapping ErrAllocationFailed.
type Allocator interface {
	Allocate(size int) ([]byte, error)
}

// AllocatorFunc adapts a function to the Allocator interface.
type AllocatorFunc func(size int) ([]byte, error)

func (f AllocatorFunc) Allocate(size int) ([]byte, error) {
	return f(size)
}

// releaser is implemented by allocators that take buffers back.
type releaser interface {
	Release(buf []byte)
}

// BufferPool hands out export buffers from power-of-two size classes and
// refuses requests above its limit.
type BufferPool struct {
	limit int
	pools []*sync.Pool
	sizes []int
}

// NewBufferPool creates a pool whose largest buffer is limit bytes.
// A limit <= 0 means DefaultExportBufferLimit.
func NewBufferPool(limit int) *BufferPool {
	if limit <= 0 {
		limit = DefaultExportBufferLimit
	}

	sizes := []int{
		4 * 1024,    // a few hundred blocks
		64 * 1024,   // default geometry
		1024 * 1024, // large block counts
	}

	var classes []int
	for _, size := range sizes {
		if size <= limit {
			classes = append(classes, size)
		}
	}

	pools := make([]*sync.Pool, len(classes))
	for i, size := range classes {
		size := size
		pools[i] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return &BufferPool{
		limit: limit,
		pools: pools,
		sizes: classes,
	}
}

// Limit returns the largest size the pool will allocate.
func (p *BufferPool) Limit() int {
	return p.limit
}

// Allocate returns a buffer of exactly size bytes. The contents are not zeroed.
func (p *BufferPool) Allocate(size int) ([]byte, error) {
	if size < 0 || size > p.limit {
		return nil, fmt.Errorf("%w: %d bytes requested, limit is %d", ErrAllocationFailed, size, p.limit)
	}

	for i, classSize := range p.sizes {
		if size <= classSize {
			bufPtr := p.pools[i].Get().(*[]byte)
			return (*bufPtr)[:size], nil
		}
	}

	// Larger than every class, not pooled
	return make([]byte, size), nil
}

// Release returns buf to its size class. Buffers of other capacities are
// left to the garbage collector.
func (p *BufferPool) Release(buf []byte) {
	capacity := cap(buf)
	for i, size := range p.sizes {
		if capacity == size {
			full := buf[:capacity]
			p.pools[i].Put(&full)
			return
		}
	}
}
