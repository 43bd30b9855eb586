// Package printer is component H of spec.md §4.H: it renders a byte
// buffer under a resolved dwarf.TypeRef into a pretty-printed, human
// readable dump, detecting pointer cycles and out-of-bounds dereferences
// along the way. Grounded on the two-phase (collect-then-print) design
// spec.md §9 calls out, and on original_source/src/uprintf.h's
// _upf_print_struct/_upf_print_array family, ported to Go's stdlib
// strings.Builder instead of a manual growable char buffer (the latter is
// what pkg/arena's vector already models for the DWARF ingest side; the
// printer's per-call buffer has no cross-call lifetime to manage, so each
// Print call declares a fresh strings.Builder, not an arena allocation; no
// buffer is reused across calls).
package printer

// Config holds the compile-time constants spec.md §6 lists as "Configuration
// knobs": indentation width, max recursion depth, the ignore-FILE* flag,
// the array run-length compression threshold and the maximum C-string
// length scanned.
type Config struct {
	IndentWidth       int
	MaxDepth          int
	IgnoreFilePtr     bool
	ArrayRunThreshold int
	MaxStringLen      int
}

// DefaultConfig matches the values spec.md §8's worked examples imply:
// 4-space indent, a compression threshold of 3 (the `[9 <repeats 3
// times>]` example).
func DefaultConfig() Config {
	return Config{
		IndentWidth:       4,
		MaxDepth:          32,
		IgnoreFilePtr:     true,
		ArrayRunThreshold: 3,
		MaxStringLen:      200,
	}
}

// Option mutates a Config; used for uprintf.Config's functional-option
// constructors (SPEC_FULL.md §1).
type Option func(*Config)

func WithIndentWidth(n int) Option       { return func(c *Config) { c.IndentWidth = n } }
func WithMaxDepth(n int) Option          { return func(c *Config) { c.MaxDepth = n } }
func WithIgnoreFilePtr(v bool) Option    { return func(c *Config) { c.IgnoreFilePtr = v } }
func WithArrayRunThreshold(n int) Option { return func(c *Config) { c.ArrayRunThreshold = n } }
func WithMaxStringLen(n int) Option      { return func(c *Config) { c.MaxStringLen = n } }

// Apply builds a Config starting from DefaultConfig and applying opts in
// order.
func Apply(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
