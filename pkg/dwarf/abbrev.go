package dwarf

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/leb128"
)

// Tag is a DWARF DW_TAG_* code.
type Tag uint64

const (
	TagArrayType        Tag = 0x01
	TagEnumerationType  Tag = 0x04
	TagFormalParameter  Tag = 0x05
	TagLexicalBlock     Tag = 0x0b
	TagMember           Tag = 0x0d
	TagPointerType      Tag = 0x0f
	TagCompileUnit      Tag = 0x11
	TagStructureType    Tag = 0x13
	TagSubroutineType   Tag = 0x15
	TagTypedef          Tag = 0x16
	TagUnionType        Tag = 0x17
	TagUnspecifiedParams Tag = 0x18
	TagVariant          Tag = 0x19
	TagInlinedSubroutine Tag = 0x1d
	TagSubrangeType     Tag = 0x21
	TagBaseType         Tag = 0x24
	TagConstType        Tag = 0x26
	TagEnumerator       Tag = 0x28
	TagSubprogram       Tag = 0x2e
	TagVariable         Tag = 0x34
	TagVolatileType     Tag = 0x35
	TagRestrictType     Tag = 0x37
	TagAtomicType       Tag = 0x47
)

// Attr is a DWARF DW_AT_* code.
type Attr uint64

const (
	AttrLocation     Attr = 0x02
	AttrName         Attr = 0x03
	AttrByteSize     Attr = 0x0b
	AttrBitOffset    Attr = 0x0c // old-form, legacy, always refused
	AttrBitSize      Attr = 0x0d
	AttrStmtList     Attr = 0x10
	AttrLowpc        Attr = 0x11
	AttrHighpc       Attr = 0x12
	AttrLanguage     Attr = 0x13
	AttrComprDir     Attr = 0x1b
	AttrProducer     Attr = 0x25
	AttrPrototyped   Attr = 0x27
	AttrUpperBound   Attr = 0x2f
	AttrCount        Attr = 0x37
	AttrDataMemberLoc Attr = 0x38
	AttrDeclFile     Attr = 0x3a
	AttrDeclLine     Attr = 0x3b
	AttrEncoding     Attr = 0x3e
	AttrExternal     Attr = 0x3f
	AttrConstValue   Attr = 0x1c
	AttrRanges       Attr = 0x55
	AttrType         Attr = 0x49
	AttrVariableParameters Attr = 0x4b
	AttrAddrBase     Attr = 0x73
	AttrStrOffsetsBase Attr = 0x72
	AttrRnglistsBase Attr = 0x74
	AttrDataBitOffset Attr = 0x6b
)

// Encoding is a DW_ATE_* base-type encoding.
type Encoding int64

const (
	EncAddress       Encoding = 0x1
	EncBoolean       Encoding = 0x2
	EncComplexFloat  Encoding = 0x3
	EncFloat         Encoding = 0x4
	EncSigned        Encoding = 0x5
	EncSignedChar    Encoding = 0x6
	EncUnsigned      Encoding = 0x7
	EncUnsignedChar  Encoding = 0x8
)

type abbrevAttr struct {
	Attr          Attr
	Form          leb128.Form
	ImplicitConst int64
}

type abbrevEntry struct {
	Tag         Tag
	HasChildren bool
	Attrs       []abbrevAttr
}

// abbrevTable maps abbreviation code -> entry, indexed by code-1
// (spec.md §4.D).
type abbrevTable struct {
	entries []abbrevEntry
}

func (t *abbrevTable) get(code uint64) (*abbrevEntry, bool) {
	if code == 0 || int(code) > len(t.entries) {
		return nil, false
	}
	return &t.entries[code-1], true
}

// parseAbbrevTable parses one compilation unit's abbreviation table out of
// .debug_abbrev, starting at byte offset off.
func parseAbbrevTable(debugAbbrev []byte, off uint64) (*abbrevTable, error) {
	table := &abbrevTable{}
	pos := int(off)

	for pos < len(debugAbbrev) {
		code, n := leb128.Uint(debugAbbrev[pos:])
		pos += n
		if code == 0 {
			break // end of this CU's abbreviation table
		}
		if int(code) != len(table.entries)+1 {
			// Abbreviation codes are expected to be dense and
			// monotonically increasing starting at 1, per every
			// compiler this module targets. A gap means something
			// we do not understand; bail out rather than guess.
			return nil, fmt.Errorf("dwarf: abbreviation code %d out of sequence", code)
		}

		tag, n := leb128.Uint(debugAbbrev[pos:])
		pos += n
		hasChildren := debugAbbrev[pos] != 0
		pos++

		var attrs []abbrevAttr
		for {
			attrCode, n := leb128.Uint(debugAbbrev[pos:])
			pos += n
			formCode, n := leb128.Uint(debugAbbrev[pos:])
			pos += n

			var implicitConst int64
			if leb128.Form(formCode) == leb128.FormImplicitConst {
				implicitConst, n = leb128.Int(debugAbbrev[pos:])
				pos += n
			}

			if attrCode == 0 && formCode == 0 {
				break
			}
			attrs = append(attrs, abbrevAttr{Attr(attrCode), leb128.Form(formCode), implicitConst})
		}

		table.entries = append(table.entries, abbrevEntry{Tag: Tag(tag), HasChildren: hasChildren, Attrs: attrs})
	}

	return table, nil
}
