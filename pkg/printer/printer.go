package printer

import (
	"strings"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
)

// FunctionLookup resolves a runtime function-pointer value to a rendered
// C-ish signature, used to print function pointers (spec.md §4.H "Function
// pointers are matched against the Function Table by entry PC ... and
// printed with their reconstructed C signature"). Implementations are
// expected to have already corrected for the PC-base discovery of spec.md
// §4.I/§9 before comparing addr against a Function Table entry.
type FunctionLookup func(addr uint64) (signature string, ok bool)

// Printer renders values under a dwarf.Catalogue against a Memory view,
// per spec.md §4.H.
type Printer struct {
	cat    *dwarf.Catalogue
	mem    Memory
	cfg    Config
	lookup FunctionLookup
}

// New builds a Printer. lookup may be nil, in which case function pointers
// print their raw address without a reconstructed signature.
func New(cat *dwarf.Catalogue, mem Memory, cfg Config, lookup FunctionLookup) *Printer {
	return &Printer{cat: cat, mem: mem, cfg: cfg, lookup: lookup}
}

// nodeKey identifies one (data pointer, type) pair for cycle detection
// (spec.md §3 "Indexed-struct entry").
type nodeKey struct {
	Addr uint64
	Type dwarf.TypeRef
}

// cycleState is the bookkeeping spec.md §4.H's two-phase pass builds:
// seen records every struct/union node visited once; circular promotes an
// entry the moment it is visited a second time via a different ancestor
// path.
type cycleState struct {
	seen     map[nodeKey]bool
	circular map[nodeKey]bool
	// ids assigns a stable <#N> id the first time a circular node is
	// actually emitted during the print pass, in print order (spec.md §9
	// "the first visit of a cycle root already knows its back-reference
	// id" — ids are allocated lazily here because the collect pass alone
	// does not know print order for nodes reachable via multiple paths).
	ids      map[nodeKey]int
	nextID   int
	printed  map[nodeKey]bool
}

// Print renders the value at addr under ref as spec.md §4.H describes,
// returning the complete formatted text for one %S argument.
func (p *Printer) Print(addr uint64, ref dwarf.TypeRef) (string, error) {
	cs := &cycleState{
		seen:     map[nodeKey]bool{},
		circular: map[nodeKey]bool{},
		ids:      map[nodeKey]int{},
		printed:  map[nodeKey]bool{},
	}
	p.collectCycles(addr, ref, cs, 0)

	var b strings.Builder
	p.print(&b, addr, ref, cs, 0)
	return b.String(), nil
}

// collectCycles is phase one: a DFS over the reachable struct/union graph,
// following pointers and arrays, that discovers every back-edge before any
// output is produced (spec.md §4.H, §9).
func (p *Printer) collectCycles(addr uint64, ref dwarf.TypeRef, cs *cycleState, depth int) {
	if depth > p.cfg.MaxDepth {
		return
	}
	t := p.cat.Get(ref)
	if t == nil {
		return
	}

	switch t.Kind {
	case dwarf.KindStruct, dwarf.KindUnion:
		key := nodeKey{addr, ref}
		if cs.seen[key] {
			cs.circular[key] = true
			return
		}
		cs.seen[key] = true
		for _, m := range t.Members {
			if m.IsBitField() {
				continue
			}
			mt := p.cat.Get(m.Type)
			if mt == nil {
				continue
			}
			switch mt.Kind {
			case dwarf.KindStruct, dwarf.KindUnion, dwarf.KindPointer, dwarf.KindArray:
				p.collectCycles(addr+m.ByteOffset, m.Type, cs, depth+1)
			}
		}
	case dwarf.KindPointer:
		val, ok := p.readPointerValue(addr)
		if !ok || val == 0 {
			return
		}
		pointee := p.cat.Get(t.Pointee)
		if pointee == nil {
			return
		}
		switch pointee.Kind {
		case dwarf.KindStruct, dwarf.KindUnion, dwarf.KindPointer, dwarf.KindArray:
			p.collectCycles(val, t.Pointee, cs, depth+1)
		}
	case dwarf.KindArray:
		elem := p.cat.Get(t.Array.Element)
		if elem == nil || len(t.Array.Dimensions) == 0 {
			return
		}
		n := t.Array.Dimensions[0]
		stride, ok := elementStride(p.cat, t)
		if !ok {
			return
		}
		for i := uint64(0); i < n; i++ {
			p.collectCycles(addr+i*stride, t.Array.Element, cs, depth+1)
		}
	}
}

// readPointerValue reads the 8-byte little-endian pointer stored at addr,
// without the out-of-bounds-on-the-slot-itself check applying to the
// *pointee*: a pointer slot that is itself unreadable simply cannot be
// followed for cycle discovery (it will print <out-of-bounds> in the main
// pass once the outer struct's bytes are re-read there).
func (p *Printer) readPointerValue(addr uint64) (uint64, bool) {
	b, ok := p.mem.Read(addr, 8)
	if !ok {
		return 0, false
	}
	return leUint64(b), true
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// elementStride returns the byte size of one array element, including any
// inner dimensions beyond the first (spec.md §4.D array size formula).
func elementStride(cat *dwarf.Catalogue, t *dwarf.Type) (uint64, bool) {
	if len(t.Array.Dimensions) <= 1 {
		elem := cat.Get(t.Array.Element)
		if elem == nil || elem.Size == dwarf.SizeUnknown {
			return 0, false
		}
		return uint64(elem.Size), true
	}
	elem := cat.Get(t.Array.Element)
	if elem == nil || elem.Size == dwarf.SizeUnknown {
		return 0, false
	}
	stride := uint64(elem.Size)
	for _, d := range t.Array.Dimensions[1:] {
		stride *= d
	}
	return stride, true
}
