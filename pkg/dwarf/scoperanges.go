package dwarf

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/dwarfranges"
	"github.com/uprintf-go/uprintf/pkg/leb128"
)

// dieRanges computes the PC ranges a DIE covers, from either low_pc/high_pc
// (absolute or length-encoded) or a DW_AT_ranges reference into
// .debug_rnglists (spec.md §4.D).
func dieRanges(d *die, cu *cuContext) ([]dwarfranges.PCRange, error) {
	lowVal, hasLow := d.Attrs[AttrLowpc]
	if rangesVal, hasRanges := d.Attrs[AttrRanges]; hasRanges {
		offset, err := rangesOffset(d, cu, rangesVal)
		if err != nil {
			return nil, err
		}
		return dwarfranges.Decode(cu.img.DebugRngLists, int(offset), cu.resolveAddrx)
	}

	if !hasLow {
		return nil, nil
	}
	low, ok := lowVal.(uint64)
	if !ok {
		return nil, fmt.Errorf("low_pc has unexpected value type")
	}

	highVal, hasHigh := d.Attrs[AttrHighpc]
	if !hasHigh {
		return []dwarfranges.PCRange{{Start: low, End: low}}, nil
	}

	if isAddrForm(d.Forms[AttrHighpc]) {
		high, ok := highVal.(uint64)
		if !ok {
			return nil, fmt.Errorf("high_pc has unexpected value type")
		}
		return []dwarfranges.PCRange{{Start: low, End: high}}, nil
	}

	// high_pc is an offset from low_pc, encoded as a constant-class form.
	var offset uint64
	switch v := highVal.(type) {
	case uint64:
		offset = v
	case int64:
		offset = uint64(v)
	default:
		return nil, fmt.Errorf("high_pc has unexpected value type %T", highVal)
	}
	return []dwarfranges.PCRange{{Start: low, End: low + offset}}, nil
}

func rangesOffset(d *die, cu *cuContext, value any) (uint64, error) {
	form := d.Forms[AttrRanges]
	if form == leb128.FormRnglistx {
		idx, ok := value.(uint64)
		if !ok {
			return 0, fmt.Errorf("ranges(rnglistx) has unexpected value type")
		}
		return cu.resolveRngListx(idx)
	}
	// sec_offset: already an absolute section offset.
	off, ok := value.(uint64)
	if !ok {
		return 0, fmt.Errorf("ranges has unexpected value type")
	}
	return off, nil
}
