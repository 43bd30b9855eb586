package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocReturnsZeroedDistinctSlices(t *testing.T) {
	a := New()

	first := a.Alloc(16)
	require.Len(t, first, 16)
	for _, b := range first {
		assert.Zero(t, b)
	}

	copy(first, "0123456789abcdef")
	second := a.Alloc(16)
	for _, b := range second {
		assert.Zero(t, b, "a later allocation must not alias an earlier one")
	}
}

func TestAllocGrowsPastInitialRegion(t *testing.T) {
	a := New()

	// larger than any single region's remaining capacity forces a new
	// doubled (or size-fitted) region; contents must still be usable.
	big := a.Alloc(initialRegionSize * 3)
	require.Len(t, big, initialRegionSize*3)
	big[0] = 0xAA
	big[len(big)-1] = 0xBB

	small := a.Alloc(8)
	require.Len(t, small, 8)
	assert.Equal(t, byte(0xAA), big[0])
	assert.Equal(t, byte(0xBB), big[len(big)-1])
}

func TestStringCopiesContents(t *testing.T) {
	a := New()

	src := []byte("hello")
	s := a.String(string(src))
	src[0] = 'X'
	assert.Equal(t, "hello", s)
}

func TestVectorPushAtSet(t *testing.T) {
	v := NewVector[int](2)
	assert.Equal(t, 0, v.Len())

	i0 := v.Push(10)
	i1 := v.Push(20)
	i2 := v.Push(30) // grows past the capacity hint
	assert.Equal(t, []int{0, 1, 2}, []int{i0, i1, i2})
	assert.Equal(t, 3, v.Len())
	assert.Equal(t, 20, v.At(1))

	v.Set(1, 99)
	assert.Equal(t, 99, v.At(1))
	assert.Equal(t, []int{10, 99, 30}, v.Slice())
}
