// Package dwarf ingests DWARF v5 debug information from a memory-mapped
// ELF image into an in-memory Type Catalogue, Scope Tree and Function Table
// (spec.md §4.D). It parses .debug_info directly against the abbreviation
// tables in .debug_abbrev rather than going through the standard library's
// higher-level debug/dwarf reader: the catalogue's append-only, cycle-safe
// indexing and the PC-scoped variable lookup spec.md §3 and §4.G need are
// not something debug/dwarf exposes, so this package re-derives them from
// the raw DIE stream the way github.com/theSprog/uprintf's C implementation
// does (see original_source/src/uprintf.h, ported from C to Go).
package dwarf

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/arena"
	"github.com/uprintf-go/uprintf/pkg/dwarfranges"
)

// Kind tags the shape of a Type's payload.
type Kind int

const (
	KindStruct Kind = iota
	KindUnion
	KindEnum
	KindArray
	KindPointer
	KindFunction
	KindU1
	KindU2
	KindU4
	KindU8
	KindS1
	KindS2
	KindS4
	KindS8
	KindF4
	KindF8
	KindBool
	KindSChar
	KindUChar
	KindVoid
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindPointer:
		return "pointer"
	case KindFunction:
		return "function"
	case KindU1, KindU2, KindU4, KindU8:
		return "unsigned"
	case KindS1, KindS2, KindS4, KindS8:
		return "signed"
	case KindF4, KindF8:
		return "float"
	case KindBool:
		return "bool"
	case KindSChar:
		return "schar"
	case KindUChar:
		return "uchar"
	case KindVoid:
		return "void"
	default:
		return "unknown"
	}
}

// IsInteger reports whether k is one of the fixed-width integer kinds.
func (k Kind) IsInteger() bool {
	switch k {
	case KindU1, KindU2, KindU4, KindU8, KindS1, KindS2, KindS4, KindS8, KindBool, KindSChar, KindUChar:
		return true
	default:
		return false
	}
}

// IsSigned reports whether k's integer representation is signed.
func (k Kind) IsSigned() bool {
	switch k {
	case KindS1, KindS2, KindS4, KindS8, KindSChar:
		return true
	default:
		return false
	}
}

// Modifier is a bitset of DW_TAG_{const,volatile,restrict,atomic}_type
// qualifiers composed onto a copied underlying type (spec.md §3, §4.D).
type Modifier uint8

const (
	ModConst Modifier = 1 << iota
	ModVolatile
	ModRestrict
	ModAtomic
)

// TypeRef is an index into a Catalogue. InvalidRef marks "no type"
// (e.g. a bare pointer or function with no declared pointee/return type,
// meaning void).
type TypeRef int

const InvalidRef TypeRef = -1

// Member is one field of a struct or union.
type Member struct {
	Name       string
	Type       TypeRef
	ByteOffset uint64
	// BitOffset/BitSize describe a bit-field; BitSize == 0 means this
	// member is not a bit-field and ByteOffset is a plain byte offset.
	BitOffset uint64
	BitSize   uint64
}

// IsBitField reports whether m is a bit-field member.
func (m Member) IsBitField() bool { return m.BitSize != 0 }

// Enumerator is one (name, value) pair of an enum type.
type Enumerator struct {
	Name  string
	Value int64
}

// Array describes the kind-specific payload of an array type. Dimensions is
// empty when any dimension length is non-constant (spec.md §4.D).
type Array struct {
	Element    TypeRef
	Dimensions []uint64
}

// FunctionSignature describes the kind-specific payload of a subroutine_type, i.e. a
// function *type* (as opposed to FunctionInfo, a concrete defined function
// used for the Function Table).
type FunctionSignature struct {
	Return   TypeRef
	Params   []TypeRef
	Variadic bool
}

// Type is the tagged record spec.md §3 describes: every parsed DIE that
// denotes a type becomes exactly one Type in the Catalogue.
type Type struct {
	Name      string
	Kind      Kind
	Modifiers Modifier
	// Size is the size in bytes; SizeUnknown means the DIE carried no
	// (or a non-constant) byte_size attribute.
	Size int64

	// struct/union
	Members []Member
	// enum
	EnumUnderlying TypeRef
	Enumerators    []Enumerator
	// array
	Array Array
	// pointer
	Pointee TypeRef
	// function
	Signature FunctionSignature
}

const SizeUnknown int64 = -1

// HasModifier reports whether m is set on t.
func (t *Type) HasModifier(m Modifier) bool { return t.Modifiers&m != 0 }

// String renders a Type's C-ish declarator name, used by the printer for
// function-pointer signatures and diagnostic messages.
func (t *Type) String(cat *Catalogue) string {
	return renderTypeName(cat, TypeRef(-1), t)
}

// Variable is a (name, declared-type DIE reference) pair recorded for a
// scope, either a local variable or a formal parameter. Type holds a raw
// .debug_info DIE offset, not yet a Catalogue index — it is resolved lazily
// by CompileUnit.ParseType the first time an expression needs it, exactly
// as NamedTypes defers resolution of top-level type names. InvalidRef means
// the DIE carried no DW_AT_type (e.g. a void-returning context).
type Variable struct {
	Name string
	Type TypeRef
}

// Scope is one node of the per-CU scope tree (spec.md §3). The root scope
// of a CU covers the entire compile unit.
type Scope struct {
	Ranges    []dwarfranges.PCRange
	Variables []Variable
	Children  []*Scope
	Parent    *Scope
}

// Contains reports whether pc falls within any of the scope's ranges.
func (s *Scope) Contains(pc uint64) bool {
	return dwarfranges.Contains(s.Ranges, pc)
}

// FunctionInfo is a concrete function definition (spec.md §3 "Function").
// Return, like Variable.Type, is an unresolved DIE offset until ParseType
// is called on it (InvalidRef means the function returns void).
type FunctionInfo struct {
	Name      string
	Return    TypeRef
	Params    []Variable
	Variadic  bool
	EntryPC   uint64
	HighPC    uint64
	HasPC     bool
}

// CompileUnit groups everything ingested from one DW_TAG_compile_unit.
type CompileUnit struct {
	Name      string
	// NamedTypes maps a top-level type name to the .debug_info offset of
	// its defining DIE; parse_type is invoked against it lazily, on the
	// first lookup (spec.md §4.D "it is recorded in the CU's named-type
	// list").
	NamedTypes map[string]uint64
	Functions  []*FunctionInfo
	ScopeRoot  *Scope
	Language   int64

	// data/abbrev/ctx retain enough of the raw ingest state to decode a
	// DIE at an arbitrary .debug_info offset after the initial traversal
	// has finished, which is what lets ParseType stay lazy: a member's or
	// variable's declared type is recorded as a DIE offset during
	// traversal (spec.md §3's "(name, type-DIE)") and is only actually
	// parsed into a Catalogue entry the first time something needs it.
	data   []byte
	abbrev *abbrevTable
	ctx    *cuContext
}

// LookupFunction returns the named function defined in this CU, if any.
func (c *CompileUnit) LookupFunction(name string) (*FunctionInfo, bool) {
	for _, fn := range c.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Catalogue is the de-duplicated, append-only Type Catalogue (spec.md
// §4.A "arena-backed storage for all parse-time data; freed wholesale at
// teardown"). Entries live in an arena.Vector rather than a plain Go
// slice, and every DIE-derived display string is copied into the
// catalogue's own arena with arena.String so that names outlive the
// .debug_str/.debug_line_str byte slices the ELF mapping backs (spec.md
// §5: "arena-backed storage is only freed at process exit"). Looking up
// an already-parsed DIE offset returns its existing index; pointer types
// are inserted before their pointee is parsed so self- and
// mutually-referential structs terminate (spec.md §3, §9).
type Catalogue struct {
	arena *arena.Arena
	types *arena.Vector[Type]
	byDIE map[uint64]TypeRef
}

// NewCatalogue creates an empty catalogue backed by a fresh arena.
func NewCatalogue() *Catalogue {
	return &Catalogue{
		arena: arena.New(),
		types: arena.NewVector[Type](256),
		byDIE: make(map[uint64]TypeRef),
	}
}

// Lookup returns the catalogue index already assigned to the DIE at
// dieOffset, if any.
func (c *Catalogue) Lookup(dieOffset uint64) (TypeRef, bool) {
	ref, ok := c.byDIE[dieOffset]
	return ref, ok
}

// Reserve inserts a placeholder Type for dieOffset and returns its index,
// used to break pointer/struct cycles before the pointee/members are
// parsed.
func (c *Catalogue) Reserve(dieOffset uint64, t Type) TypeRef {
	t.Name = c.arena.String(t.Name)
	ref := TypeRef(c.types.Push(t))
	c.byDIE[dieOffset] = ref
	return ref
}

// Append adds t as a new entry not tied to a DIE offset (used for
// synthesized types, e.g. a stripped array-dimension type in expression
// resolution).
func (c *Catalogue) Append(t Type) TypeRef {
	t.Name = c.arena.String(t.Name)
	return TypeRef(c.types.Push(t))
}

// Update overwrites an already-reserved entry (used once a pointer's
// pointee index is known).
func (c *Catalogue) Update(ref TypeRef, t Type) {
	c.types.Set(int(ref), t)
}

// Get returns the Type at ref. Panics on an out-of-range ref: per spec.md
// §8 invariant 1, every TypeRef handed out by this package always indexes
// a live catalogue entry.
func (c *Catalogue) Get(ref TypeRef) *Type {
	if ref == InvalidRef {
		return nil
	}
	t := c.types.At(int(ref))
	return &t
}

// Len returns the number of catalogued types.
func (c *Catalogue) Len() int { return c.types.Len() }

func renderTypeName(cat *Catalogue, _ TypeRef, t *Type) string {
	if t == nil {
		return "void"
	}
	prefix := ""
	if t.HasModifier(ModConst) {
		prefix += "const "
	}
	if t.HasModifier(ModVolatile) {
		prefix += "volatile "
	}
	switch t.Kind {
	case KindPointer:
		pointee := cat.Get(t.Pointee)
		return prefix + renderTypeName(cat, t.Pointee, pointee) + "*"
	case KindStruct:
		return prefix + structName("struct", t.Name)
	case KindUnion:
		return prefix + structName("union", t.Name)
	case KindEnum:
		return prefix + structName("enum", t.Name)
	case KindFunction:
		return prefix + functionSignatureString(cat, t)
	default:
		if t.Name != "" {
			return prefix + t.Name
		}
		return prefix + t.Kind.String()
	}
}

func structName(keyword, name string) string {
	if name == "" {
		return fmt.Sprintf("%s {...}", keyword)
	}
	return fmt.Sprintf("%s %s", keyword, name)
}

func functionSignatureString(cat *Catalogue, t *Type) string {
	ret := "void"
	if r := cat.Get(t.Signature.Return); r != nil {
		ret = renderTypeName(cat, t.Signature.Return, r)
	}
	params := ""
	for i, p := range t.Signature.Params {
		if i > 0 {
			params += ", "
		}
		params += renderTypeName(cat, p, cat.Get(p))
	}
	if t.Signature.Variadic {
		if params != "" {
			params += ", "
		}
		params += "..."
	}
	return fmt.Sprintf("%s (%s)", ret, params)
}
