package dwarf

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/leb128"
)

// die is one decoded Debugging Information Entry: its tag, whether it
// introduces children, its offset in .debug_info, and its attribute values
// keyed by DW_AT_ code.
type die struct {
	Offset      uint64
	Tag         Tag
	HasChildren bool
	Attrs       map[Attr]any
	Forms       map[Attr]leb128.Form
}

// dieReader walks .debug_info sequentially from a starting offset,
// decoding one DIE (or a null entry, reported as Tag==0) per call to next.
type dieReader struct {
	data  []byte
	pos   uint64
	abbr  *abbrevTable
	cu    *cuContext
}

func newDIEReader(data []byte, start uint64, abbr *abbrevTable, cu *cuContext) *dieReader {
	return &dieReader{data: data, pos: start, abbr: abbr, cu: cu}
}

func (r *dieReader) done() bool { return r.pos >= uint64(len(r.data)) }

// next decodes the DIE at the current position and advances past it.
// A null entry (abbreviation code 0, i.e. end-of-children marker) is
// reported as a *die with Tag == 0 and no attributes.
func (r *dieReader) next() (*die, error) {
	offset := r.pos
	code, n := leb128.Uint(r.data[r.pos:])
	r.pos += uint64(n)

	if code == 0 {
		return &die{Offset: offset, Tag: 0}, nil
	}

	entry, ok := r.abbr.get(code)
	if !ok {
		return nil, fmt.Errorf("dwarf: unknown abbreviation code %d at offset 0x%x", code, offset)
	}

	d := &die{
		Offset:      offset,
		Tag:         entry.Tag,
		HasChildren: entry.HasChildren,
		Attrs:       make(map[Attr]any, len(entry.Attrs)),
		Forms:       make(map[Attr]leb128.Form, len(entry.Attrs)),
	}

	for _, a := range entry.Attrs {
		value, n, err := r.readAttr(a)
		if err != nil {
			return nil, fmt.Errorf("dwarf: DIE 0x%x attr %d: %w", offset, a.Attr, err)
		}
		r.pos += uint64(n)
		d.Attrs[a.Attr] = value
		d.Forms[a.Attr] = a.Form

		// Bases must be captured as soon as seen: later attributes in
		// this very DIE (and all following DIEs until the next CU) may
		// depend on them.
		switch a.Attr {
		case AttrAddrBase:
			if v, ok := value.(uint64); ok {
				r.cu.addrBase, r.cu.haveAddrBase = v, true
			}
		case AttrStrOffsetsBase:
			if v, ok := value.(uint64); ok {
				r.cu.strOffsetsBase, r.cu.haveStrOffBase = v, true
			}
		case AttrRnglistsBase:
			if v, ok := value.(uint64); ok {
				r.cu.rngListsBase, r.cu.haveRngListsBase = v, true
			}
		}
	}

	return d, nil
}

func isAddrForm(f leb128.Form) bool {
	switch f {
	case leb128.FormAddr, leb128.FormAddrx, leb128.FormAddrx1, leb128.FormAddrx2, leb128.FormAddrx3, leb128.FormAddrx4:
		return true
	default:
		return false
	}
}

// readAttr decodes the raw bytes at the reader's current position for
// attribute a, returning a Go value (string, uint64, int64, []byte, bool,
// or nil) and the number of bytes consumed.
func (r *dieReader) readAttr(a abbrevAttr) (any, int, error) {
	data := r.data[r.pos:]
	cu := r.cu

	switch a.Form {
	case leb128.FormAddr:
		return leb128.Address(data), cu.addrSize, nil
	case leb128.FormAddrx, leb128.FormAddrx1, leb128.FormAddrx2, leb128.FormAddrx3, leb128.FormAddrx4:
		idx, n := readIndexForm(a.Form, data)
		addr, err := cu.resolveAddrx(idx)
		return addr, n, err

	case leb128.FormStrp:
		off := leb128.Offset(data, cu.is64)
		s, err := cu.resolveStrp(off)
		return s, leb128.OffsetSize(cu.is64), err
	case leb128.FormLineStrp:
		off := leb128.Offset(data, cu.is64)
		s, err := cu.resolveLineStrp(off)
		return s, leb128.OffsetSize(cu.is64), err
	case leb128.FormString:
		i := 0
		for data[i] != 0 {
			i++
		}
		return string(data[:i]), i + 1, nil
	case leb128.FormStrx, leb128.FormStrx1, leb128.FormStrx2, leb128.FormStrx3, leb128.FormStrx4:
		idx, n := readIndexForm(a.Form, data)
		s, err := cu.resolveStrx(idx)
		return s, n, err

	case leb128.FormData1:
		return uint64(data[0]), 1, nil
	case leb128.FormData2:
		return uint64(readUint(data, 2)), 2, nil
	case leb128.FormData4:
		return uint64(readUint(data, 4)), 4, nil
	case leb128.FormData8:
		return uint64(readUint(data, 8)), 8, nil
	case leb128.FormData16:
		// 16-byte integers are an unsupported encoding (spec.md §4.D);
		// still consumed so the reader stays in sync.
		return nil, 16, nil
	case leb128.FormSdata:
		v, n := leb128.Int(data)
		return v, n, nil
	case leb128.FormUdata:
		v, n := leb128.Uint(data)
		return v, n, nil

	case leb128.FormRef1:
		return cu.absoluteRef(readUint(data, 1)), 1, nil
	case leb128.FormRef2:
		return cu.absoluteRef(readUint(data, 2)), 2, nil
	case leb128.FormRef4:
		return cu.absoluteRef(readUint(data, 4)), 4, nil
	case leb128.FormRef8:
		return cu.absoluteRef(readUint(data, 8)), 8, nil
	case leb128.FormRefUdata:
		v, n := leb128.Uint(data)
		return cu.absoluteRef(v), n, nil
	case leb128.FormRefAddr:
		// Inter-CU reference: rejected per spec.md §9. Still consumed.
		return nil, leb128.OffsetSize(cu.is64), fmt.Errorf("ref_addr (inter-CU reference) is not supported")

	case leb128.FormSecOffset:
		return leb128.Offset(data, cu.is64), leb128.OffsetSize(cu.is64), nil
	case leb128.FormExprloc, leb128.FormBlock:
		length, n := leb128.Uint(data)
		total := n + int(length)
		return append([]byte(nil), data[n:total]...), total, nil
	case leb128.FormBlock1:
		length := int(data[0])
		return append([]byte(nil), data[1:1+length]...), 1 + length, nil
	case leb128.FormBlock2:
		length := int(readUint(data, 2))
		return append([]byte(nil), data[2:2+length]...), 2 + length, nil
	case leb128.FormBlock4:
		length := int(readUint(data, 4))
		return append([]byte(nil), data[4:4+length]...), 4 + length, nil

	case leb128.FormFlag:
		return data[0] != 0, 1, nil
	case leb128.FormFlagPresent:
		return true, 0, nil
	case leb128.FormImplicitConst:
		return a.ImplicitConst, 0, nil

	case leb128.FormLoclistx, leb128.FormRnglistx:
		v, n := leb128.Uint(data)
		return v, n, nil

	default:
		n := leb128.SkipSize(a.Form, data, cu.addrSize, leb128.OffsetSize(cu.is64))
		if n < 0 {
			return nil, 0, fmt.Errorf("unsupported/indirect form 0x%x", a.Form)
		}
		return nil, n, nil
	}
}

func readIndexForm(form leb128.Form, data []byte) (uint64, int) {
	switch form {
	case leb128.FormAddrx1, leb128.FormStrx1:
		return uint64(data[0]), 1
	case leb128.FormAddrx2, leb128.FormStrx2:
		return readUint(data, 2), 2
	case leb128.FormAddrx3, leb128.FormStrx3:
		return readUint(data, 3), 3
	case leb128.FormAddrx4, leb128.FormStrx4:
		return readUint(data, 4), 4
	default: // Addrx / Strx: ULEB128 index
		return leb128.Uint(data)
	}
}
