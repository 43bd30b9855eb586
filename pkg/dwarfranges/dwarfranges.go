// Package dwarfranges decodes DWARF v5 .debug_rnglists range lists into
// half-open PC-range slices (spec.md §4.D "Range-list decoding").
package dwarfranges

import (
	"encoding/binary"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/uprintf-go/uprintf/pkg/leb128"
)

// PCRange is a half-open [Start, End) instruction-address interval.
type PCRange struct {
	Start, End uint64
}

// AddrxResolver resolves an index into .debug_addr into an absolute
// address, relative to a CU's DW_AT_addr_base.
type AddrxResolver func(index uint64) (uint64, error)

// DWARF v5 .debug_rnglists entry kinds (DW_RLE_*).
const (
	rleEndOfList     = 0x00
	rleBaseAddressx  = 0x01
	rleStartxEndx    = 0x02
	rleStartxLength  = 0x03
	rleOffsetPair    = 0x04
	rleBaseAddress   = 0x05
	rleStart_End     = 0x06
	rleStartLength   = 0x07
)

// Decode parses a single range list starting at data[offset:], consulting
// resolveAddrx for the indexed forms. Unknown entry kinds emit an error and
// stop the current list per spec.md: "Unknown kinds emit a warning and stop
// the current list" — the caller is expected to log the returned error as a
// warning and use whatever ranges were decoded so far.
func Decode(data []byte, offset int, resolveAddrx AddrxResolver) ([]PCRange, error) {
	var ranges []PCRange
	var base uint64
	haveBase := false

	pos := offset
	for pos < len(data) {
		kind := data[pos]
		pos++

		switch kind {
		case rleEndOfList:
			return mergeSorted(ranges), nil

		case rleBaseAddressx:
			idx, n := leb128.Uint(data[pos:])
			pos += n
			addr, err := resolveAddrx(idx)
			if err != nil {
				return mergeSorted(ranges), fmt.Errorf("dwarfranges: base_addressx: %w", err)
			}
			base, haveBase = addr, true

		case rleStartxEndx:
			sIdx, n := leb128.Uint(data[pos:])
			pos += n
			eIdx, n := leb128.Uint(data[pos:])
			pos += n
			s, err1 := resolveAddrx(sIdx)
			e, err2 := resolveAddrx(eIdx)
			if err1 != nil || err2 != nil {
				return mergeSorted(ranges), fmt.Errorf("dwarfranges: startx_endx: resolve failed")
			}
			ranges = append(ranges, PCRange{s, e})

		case rleStartxLength:
			sIdx, n := leb128.Uint(data[pos:])
			pos += n
			length, n := leb128.Uint(data[pos:])
			pos += n
			s, err := resolveAddrx(sIdx)
			if err != nil {
				return mergeSorted(ranges), fmt.Errorf("dwarfranges: startx_length: %w", err)
			}
			ranges = append(ranges, PCRange{s, s + length})

		case rleOffsetPair:
			s, n := leb128.Uint(data[pos:])
			pos += n
			e, n := leb128.Uint(data[pos:])
			pos += n
			if !haveBase {
				return mergeSorted(ranges), fmt.Errorf("dwarfranges: offset_pair without base address")
			}
			ranges = append(ranges, PCRange{base + s, base + e})

		case rleBaseAddress:
			base = binary.LittleEndian.Uint64(data[pos:])
			haveBase = true
			pos += 8

		case rleStart_End:
			s := binary.LittleEndian.Uint64(data[pos:])
			pos += 8
			e := binary.LittleEndian.Uint64(data[pos:])
			pos += 8
			ranges = append(ranges, PCRange{s, e})

		case rleStartLength:
			s := binary.LittleEndian.Uint64(data[pos:])
			pos += 8
			length, n := leb128.Uint(data[pos:])
			pos += n
			ranges = append(ranges, PCRange{s, s + length})

		default:
			return mergeSorted(ranges), fmt.Errorf("dwarfranges: unknown range list entry kind 0x%x", kind)
		}
	}

	return mergeSorted(ranges), fmt.Errorf("dwarfranges: range list runs past end of section without end-of-list marker")
}

// Contains reports whether addr lies in any of ranges.
func Contains(ranges []PCRange, addr uint64) bool {
	for _, r := range ranges {
		if addr >= r.Start && addr < r.End {
			return true
		}
	}
	return false
}

func mergeSorted(ranges []PCRange) []PCRange {
	out := slices.Clone(ranges)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
