package dwarf

import (
	"encoding/binary"
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/elfimage"
	"github.com/uprintf-go/uprintf/pkg/leb128"
)

// cuContext carries everything needed to interpret one compile unit's
// attribute values: its header geometry and the shared image sections.
type cuContext struct {
	img *elfimage.Image

	cuStart    uint64 // offset of this CU's header in .debug_info
	is64       bool
	addrSize   int
	offsetSize int

	addrBase       uint64 // DW_AT_addr_base for addrx forms, once seen
	strOffsetsBase uint64 // DW_AT_str_offsets_base for strx forms
	rngListsBase   uint64 // DW_AT_rnglists_base for rnglistx forms
	haveAddrBase   bool
	haveStrOffBase bool
	haveRngListsBase bool
}

func (c *cuContext) resolveAddrx(index uint64) (uint64, error) {
	if !c.haveAddrBase {
		return 0, fmt.Errorf("addrx used before DW_AT_addr_base was seen")
	}
	off := c.addrBase + index*uint64(c.addrSize)
	if off+uint64(c.addrSize) > uint64(len(c.img.DebugAddr)) {
		return 0, fmt.Errorf("addrx index %d out of range", index)
	}
	return leb128.Address(c.img.DebugAddr[off:]), nil
}

func (c *cuContext) resolveStrx(index uint64) (string, error) {
	if !c.haveStrOffBase {
		return "", fmt.Errorf("strx used before DW_AT_str_offsets_base was seen")
	}
	entrySize := leb128.OffsetSize(c.is64)
	off := c.strOffsetsBase + index*uint64(entrySize)
	if off+uint64(entrySize) > uint64(len(c.img.DebugStrOffsets)) {
		return "", fmt.Errorf("strx index %d out of range", index)
	}
	strOff := leb128.Offset(c.img.DebugStrOffsets[off:], c.is64)
	return cString(c.img.DebugStr, strOff)
}

// resolveRngListx turns a DW_FORM_rnglistx index into an absolute offset
// into .debug_rnglists, via the per-CU offsets array anchored at
// DW_AT_rnglists_base.
func (c *cuContext) resolveRngListx(index uint64) (uint64, error) {
	if !c.haveRngListsBase {
		return 0, fmt.Errorf("rnglistx used before DW_AT_rnglists_base was seen")
	}
	entrySize := leb128.OffsetSize(c.is64)
	entryOff := c.rngListsBase + index*uint64(entrySize)
	if entryOff+uint64(entrySize) > uint64(len(c.img.DebugRngLists)) {
		return 0, fmt.Errorf("rnglistx index %d out of range", index)
	}
	rel := leb128.Offset(c.img.DebugRngLists[entryOff:], c.is64)
	return c.rngListsBase + rel, nil
}

func (c *cuContext) resolveStrp(off uint64) (string, error) {
	return cString(c.img.DebugStr, off)
}

func (c *cuContext) resolveLineStrp(off uint64) (string, error) {
	return cString(c.img.DebugLineStr, off)
}

func cString(section []byte, off uint64) (string, error) {
	if off >= uint64(len(section)) {
		return "", fmt.Errorf("string offset %d out of range", off)
	}
	end := off
	for end < uint64(len(section)) && section[end] != 0 {
		end++
	}
	return string(section[off:end]), nil
}

// absoluteRef turns a CU-relative reference form (ref1/2/4/8/udata) into an
// absolute .debug_info offset. ref_addr (inter-CU references) is rejected
// per spec.md §9 "Single compilation unit references only".
func (c *cuContext) absoluteRef(cuRelative uint64) uint64 {
	return c.cuStart + cuRelative
}

func readUint(data []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(data))
	case 3:
		return uint64(data[0]) | uint64(data[1])<<8 | uint64(data[2])<<16
	case 4:
		return uint64(binary.LittleEndian.Uint32(data))
	case 8:
		return binary.LittleEndian.Uint64(data)
	default:
		panic("dwarf: unsupported integer width")
	}
}
