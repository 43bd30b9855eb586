// Package arena implements a bump allocator used while ingesting DWARF
// debug information. Only the type catalogue's type-name strings are copied
// into it (through String); the scope tree, the function table and the
// other slice payloads are ordinary Go allocations. Everything allocated
// here is freed in one shot when the process tears the debug session down;
// nothing in this package ever frees a single allocation.
package arena

// Arena is a chained bump allocator. Each region doubles the capacity of
// the one before it, mirroring the growth policy of the C original's
// _upf_arena_alloc: start small, double on overflow, never shrink.
type Arena struct {
	head *region
	tail *region
}

type region struct {
	data []byte
	next *region
}

const initialRegionSize = 4096

// New creates an empty arena with one initial region.
func New() *Arena {
	r := &region{data: make([]byte, 0, initialRegionSize)}
	return &Arena{head: r, tail: r}
}

// Alloc reserves size bytes and returns a zeroed slice backed by the arena.
// Unlike the C arena, it hands out byte slices only and does no alignment;
// String below is the one helper built on it.
func (a *Arena) Alloc(size int) []byte {
	if cap(a.head.data)-len(a.head.data) < size {
		capacity := cap(a.head.data) * 2
		if capacity < size {
			capacity = size
		}
		r := &region{data: make([]byte, 0, capacity)}
		a.head.next = r
		a.head = r
	}

	start := len(a.head.data)
	a.head.data = a.head.data[:start+size]
	return a.head.data[start : start+size : start+size]
}

// String copies s into arena-owned storage and returns it. Used when a DIE
// attribute's string form points into a section we intend to release, or
// when a derived name (e.g. a modifier-copy type's synthesized name) must
// outlive the DWARF section buffers.
func (a *Arena) String(s string) string {
	buf := a.Alloc(len(s))
	copy(buf, s)
	return string(buf)
}

// Reset walks the chain freeing every region. Safe only once nothing else
// still references arena-backed memory, i.e. at process teardown.
func (a *Arena) Reset() {
	a.head = nil
	a.tail = nil
}
