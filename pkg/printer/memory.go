package printer

import (
	"unsafe"

	"github.com/uprintf-go/uprintf/pkg/procmaps"
)

// Memory abstracts reading the bytes at a raw address, bounds-checked
// against the address-range provider (spec.md §4.E, §4.H "Every pointer
// dereference first consults the address-range provider"). It is an
// interface rather than a concrete dependency on unsafe/procmaps so
// pkg/printer's own tests can exercise cycle detection and formatting
// against a synthetic in-memory byte buffer without any unsafe pointer
// arithmetic at all.
type Memory interface {
	// Read returns the n bytes starting at addr, or ok=false if any part
	// of [addr, addr+n) is not covered by a readable range.
	Read(addr uint64, n int) (data []byte, ok bool)
}

// ProcessMemory implements Memory by dereferencing unsafe.Pointer directly
// in the current process — the printer always runs in the same process
// as the data it prints (spec.md §1: this is not a remote debugger), so
// "the memory buffer" is just this process's own address space. Ranges
// comes from procmaps.Read(), re-read per call per spec.md §4.I ("obtains
// the address ranges" at the start of each call), since mappings can grow
// between calls (e.g. a fresh mmap or stack growth).
type ProcessMemory struct {
	Ranges *procmaps.Table
}

// Read implements Memory.
func (m *ProcessMemory) Read(addr uint64, n int) ([]byte, bool) {
	if addr == 0 {
		return nil, false
	}
	if n == 0 {
		return []byte{}, true
	}
	if !m.Ranges.Contains(addr) || !m.Ranges.Contains(addr+uint64(n)-1) {
		return nil, false
	}
	buf := make([]byte, n)
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
	copy(buf, src)
	return buf, true
}

// bytesMemory is a trivial Memory backed by a flat []byte starting at a
// fixed base address, used by pkg/printer's own tests to exercise
// formatting and cycle detection deterministically (spec.md §8's
// synthetic-fixture testing strategy, SPEC_FULL.md §5).
type bytesMemory struct {
	base uint64
	data []byte
}

// NewBytesMemory returns a Memory view of data as if it were mapped
// starting at base; any address outside [base, base+len(data)) reads as
// out-of-bounds.
func NewBytesMemory(base uint64, data []byte) Memory {
	return &bytesMemory{base: base, data: data}
}

func (m *bytesMemory) Read(addr uint64, n int) ([]byte, bool) {
	if addr < m.base {
		return nil, false
	}
	off := addr - m.base
	if off+uint64(n) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[off : off+uint64(n)], true
}
