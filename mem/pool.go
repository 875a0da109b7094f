// Package mem pools the byte slices that hold frame bodies while they are
// decoded.
package mem

import (
	"math/bits"
	"sync"
)

const (
	minShift = 8  // 256B
	maxShift = 22 // 4MB
)

// BufferPool hands out byte slices of at least the requested length.
type BufferPool interface {
	// Get returns a buffer of length size.
	Get(size int) *[]byte
	// Put gives a buffer obtained from Get back to the pool.
	Put(buf *[]byte)
}

// tieredPool keeps one sync.Pool per power of two between 256B and 4MB.
// Larger requests are allocated and dropped on Put.
type tieredPool struct {
	tiers [maxShift - minShift + 1]sync.Pool
}

var defaultPool = newTieredPool()

// DefaultBufferPool returns the process wide pool.
func DefaultBufferPool() BufferPool { return defaultPool }

func newTieredPool() *tieredPool {
	p := &tieredPool{}
	for i := range p.tiers {
		size := 1 << (minShift + i)
		p.tiers[i].New = func() any {
			buf := make([]byte, 0, size)
			return &buf
		}
	}
	return p
}

// tier returns the index of the smallest tier that fits size, or -1.
func tier(size int) int {
	shift := bits.Len(uint(size - 1))
	if shift < minShift {
		shift = minShift
	}
	if shift > maxShift {
		return -1
	}
	return shift - minShift
}

func (p *tieredPool) Get(size int) *[]byte {
	if size <= 0 {
		return &[]byte{}
	}
	i := tier(size)
	if i < 0 {
		buf := make([]byte, size)
		return &buf
	}
	buf := p.tiers[i].Get().(*[]byte)
	*buf = (*buf)[:size]
	return buf
}

func (p *tieredPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	c := cap(*buf)
	i := tier(c)
	// Only slices whose capacity is exactly a tier size came from the pool.
	if i < 0 || c != 1<<(minShift+i) {
		return
	}
	*buf = (*buf)[:0]
	p.tiers[i].Put(buf)
}
