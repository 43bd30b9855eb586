package dwarfranges

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestDecodeBaseAddressAndOffsetPair(t *testing.T) {
	var data []byte
	data = append(data, rleBaseAddress)
	data = append(data, le64(0x1000)...)
	data = append(data, rleOffsetPair, 0x10, 0x20) // [0x1010, 0x1020)
	data = append(data, rleEndOfList)

	ranges, err := Decode(data, 0, nil)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, PCRange{0x1010, 0x1020}, ranges[0])
}

func TestDecodeStartEndAndStartLength(t *testing.T) {
	var data []byte
	data = append(data, rleStart_End)
	data = append(data, le64(0x2000)...)
	data = append(data, le64(0x2040)...)
	data = append(data, rleStartLength)
	data = append(data, le64(0x1000)...)
	data = append(data, 0x40)
	data = append(data, rleEndOfList)

	ranges, err := Decode(data, 0, nil)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	// output is sorted by start address
	assert.Equal(t, PCRange{0x1000, 0x1040}, ranges[0])
	assert.Equal(t, PCRange{0x2000, 0x2040}, ranges[1])
}

func TestDecodeIndexedForms(t *testing.T) {
	addrs := []uint64{0x5000, 0x5100, 0x5200}
	resolve := func(i uint64) (uint64, error) { return addrs[i], nil }

	var data []byte
	data = append(data, rleBaseAddressx, 0)
	data = append(data, rleOffsetPair, 0x08, 0x10) // [0x5008, 0x5010)
	data = append(data, rleStartxEndx, 1, 2)       // [0x5100, 0x5200)
	data = append(data, rleStartxLength, 2, 0x20)  // [0x5200, 0x5220)
	data = append(data, rleEndOfList)

	ranges, err := Decode(data, 0, resolve)
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, PCRange{0x5008, 0x5010}, ranges[0])
	assert.Equal(t, PCRange{0x5100, 0x5200}, ranges[1])
	assert.Equal(t, PCRange{0x5200, 0x5220}, ranges[2])
}

func TestDecodeOffsetPairWithoutBaseFails(t *testing.T) {
	data := []byte{rleOffsetPair, 0x10, 0x20, rleEndOfList}

	_, err := Decode(data, 0, nil)
	assert.Error(t, err)
}

func TestDecodeUnknownKindStopsList(t *testing.T) {
	var data []byte
	data = append(data, rleStart_End)
	data = append(data, le64(0x1000)...)
	data = append(data, le64(0x1010)...)
	data = append(data, 0xfe) // unknown entry kind

	ranges, err := Decode(data, 0, nil)
	require.Error(t, err)
	// ranges decoded before the unknown entry are kept
	require.Len(t, ranges, 1)
	assert.Equal(t, PCRange{0x1000, 0x1010}, ranges[0])
}

func TestContains(t *testing.T) {
	ranges := []PCRange{{0x1000, 0x2000}, {0x3000, 0x3100}}
	assert.True(t, Contains(ranges, 0x1000))
	assert.True(t, Contains(ranges, 0x30ff))
	assert.False(t, Contains(ranges, 0x2000))
	assert.False(t, Contains(ranges, 0x2fff))
}
