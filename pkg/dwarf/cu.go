package dwarf

import (
	"encoding/binary"
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/leb128"
)

const unitTypeCompile = 0x01

// parseCUHeader reads a DWARF v5 compile-unit header starting at off,
// returning the cuContext and the offset of the first DIE.
func parseCUHeader(img []byte, off uint64) (*cuContext, uint64, uint64, error) {
	pos := off

	initialLen := binary.LittleEndian.Uint32(img[pos:])
	is64 := initialLen == 0xFFFFFFFF
	pos += 4
	var unitLength uint64
	if is64 {
		unitLength = binary.LittleEndian.Uint64(img[pos:])
		pos += 8
	} else {
		unitLength = uint64(initialLen)
	}
	nextCU := pos + unitLength

	version := binary.LittleEndian.Uint16(img[pos:])
	pos += 2
	if version != 5 {
		return nil, 0, nextCU, fmt.Errorf("dwarf: unsupported DWARF version %d (only v5 is supported)", version)
	}

	unitType := img[pos]
	pos++
	if unitType != unitTypeCompile {
		return nil, 0, nextCU, fmt.Errorf("dwarf: unsupported unit type 0x%x (only DW_UT_compile is supported)", unitType)
	}

	addrSize := int(img[pos])
	pos++
	if addrSize != 8 {
		return nil, 0, nextCU, fmt.Errorf("dwarf: unsupported address size %d (only 8-byte addresses are supported)", addrSize)
	}

	var abbrevOffset uint64
	if is64 {
		abbrevOffset = binary.LittleEndian.Uint64(img[pos:])
		pos += 8
	} else {
		abbrevOffset = uint64(binary.LittleEndian.Uint32(img[pos:]))
		pos += 4
	}

	cu := &cuContext{
		cuStart:    off,
		is64:       is64,
		addrSize:   addrSize,
		offsetSize: leb128.OffsetSize(is64),
	}

	return cu, abbrevOffset, pos, nil
}
