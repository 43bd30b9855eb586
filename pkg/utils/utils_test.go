package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitViewReadAcrossByteBoundary(t *testing.T) {
	// bits [4, 10) of a 16-bit value span the first and second byte
	raw := uint64(0b0000001111110000)
	view := CreateBitView(&raw)
	assert.Equal(t, uint64(0b111111), view.Read(4, 6))
}

func TestBitViewWriteThenRead(t *testing.T) {
	raw := uint64(0)
	view := CreateBitView(&raw)
	view.Write(0b101, 3, 3)
	assert.Equal(t, uint64(0b101), view.Read(3, 3))
	assert.Equal(t, uint64(0b101000), raw)
}

func TestAllOnes(t *testing.T) {
	assert.Equal(t, uint8(0b111), AllOnes[uint8](3))
	assert.Equal(t, uint64(0), AllOnes[uint64](0))
}

func TestMapAndIndices(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, Indices(3))
	assert.Equal(t, []int{0, 2, 4}, Map(Indices(3), func(i int) int { return i * 2 }))
}

func TestFormatUintHex(t *testing.T) {
	assert.Equal(t, "0xff", FormatUintHex(0xff, 0))
	assert.Equal(t, "0x00ff", FormatUintHex(0xff, 4))
}

func TestMakeErrorWraps(t *testing.T) {
	sentinel := errors.New("base")
	err := MakeError(sentinel, "context %d", 42)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "context 42")
}
