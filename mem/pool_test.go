package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTier(t *testing.T) {
	assert.Equal(t, 0, tier(1))
	assert.Equal(t, 0, tier(256))
	assert.Equal(t, 1, tier(257))
	assert.Equal(t, maxShift-minShift, tier(4<<20))
	assert.Equal(t, -1, tier(4<<20+1))
}

func TestGetPut(t *testing.T) {
	p := newTieredPool()

	buf := p.Get(300)
	assert.Len(t, *buf, 300)
	assert.Equal(t, 512, cap(*buf))
	p.Put(buf)

	big := p.Get(5 << 20)
	assert.Len(t, *big, 5<<20)
	p.Put(big)

	odd := make([]byte, 10, 300)
	p.Put(&odd)
	assert.Len(t, odd, 10, "foreign slices are left alone")

	assert.Empty(t, *p.Get(0))
}
