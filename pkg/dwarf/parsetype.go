package dwarf

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/ulog"
)

// pointerSize is fixed at 8 bytes for this target (spec.md Non-goals:
// "architectures other than 64-bit little-endian with 8-byte pointers").
const pointerSize = 8

// ParseType is component D's parse_type(CU, DIE), memoized on DIE offset
// (spec.md §4.D): repeated calls for the same offset return the same
// Catalogue index without re-decoding anything. offset must name a DIE
// inside cu's own compile unit — inter-CU references are rejected at the
// attribute-decode layer (spec.md §9 "Single compilation unit references
// only") before they would ever reach here.
func (cu *CompileUnit) ParseType(cat *Catalogue, offset uint64) (TypeRef, error) {
	if ref, ok := cat.Lookup(offset); ok {
		return ref, nil
	}

	r := newDIEReader(cu.data, offset, cu.abbrev, cu.ctx)
	d, err := r.next()
	if err != nil {
		return InvalidRef, fmt.Errorf("dwarf: parsing type at 0x%x: %w", offset, err)
	}
	return cu.parseTypeDIE(cat, d, r)
}

// parseTypeOrVoid resolves an optional DW_AT_type reference, returning
// InvalidRef ("void") when present is false.
func (cu *CompileUnit) parseTypeOrVoid(cat *Catalogue, d *die) (TypeRef, error) {
	off, ok := d.Attrs[AttrType].(uint64)
	if !ok {
		return InvalidRef, nil
	}
	return cu.ParseType(cat, off)
}

func (cu *CompileUnit) parseTypeDIE(cat *Catalogue, d *die, r *dieReader) (TypeRef, error) {
	name, _ := d.Attrs[AttrName].(string)

	switch d.Tag {
	case TagBaseType:
		return cu.parseBaseType(cat, d, name)

	case TagPointerType:
		return cu.parsePointerType(cat, d)

	case TagStructureType:
		return cu.parseStructOrUnion(cat, d, r, name, KindStruct)
	case TagUnionType:
		return cu.parseStructOrUnion(cat, d, r, name, KindUnion)

	case TagEnumerationType:
		return cu.parseEnum(cat, d, r, name)

	case TagArrayType:
		return cu.parseArray(cat, d, r, name)

	case TagSubroutineType:
		return cu.parseSubroutineType(cat, d, r, name)

	case TagTypedef:
		return cu.parseTypedef(cat, d, name)

	case TagConstType:
		return cu.parseModifier(cat, d, ModConst)
	case TagVolatileType:
		return cu.parseModifier(cat, d, ModVolatile)
	case TagRestrictType:
		return cu.parseModifier(cat, d, ModRestrict)
	case TagAtomicType:
		return cu.parseModifier(cat, d, ModAtomic)

	default:
		return InvalidRef, fmt.Errorf("dwarf: DIE at 0x%x (tag 0x%x) is not a type", d.Offset, d.Tag)
	}
}

// parseBaseType maps (encoding x size) to a primitive Kind per spec.md
// §4.D's table. Unsupported encodings (16-byte integers, complex,
// fixed-point, non-C character encodings) warn and still create a catalogue
// entry with KindUnknown so printers can display "<unknown>".
func (cu *CompileUnit) parseBaseType(cat *Catalogue, d *die, name string) (TypeRef, error) {
	size, _ := d.Attrs[AttrByteSize].(int64)
	if size == 0 {
		if v, ok := d.Attrs[AttrByteSize].(uint64); ok {
			size = int64(v)
		}
	}
	encoding := Encoding(attrInt64(d.Attrs[AttrEncoding]))

	kind := KindUnknown
	switch encoding {
	case EncUnsigned:
		switch size {
		case 1:
			kind = KindU1
		case 2:
			kind = KindU2
		case 4:
			kind = KindU4
		case 8:
			kind = KindU8
		}
	case EncSigned:
		switch size {
		case 1:
			kind = KindS1
		case 2:
			kind = KindS2
		case 4:
			kind = KindS4
		case 8:
			kind = KindS8
		}
	case EncFloat:
		switch size {
		case 4:
			kind = KindF4
		case 8:
			kind = KindF8
		}
	case EncBoolean:
		if size == 1 {
			kind = KindBool
		}
	case EncSignedChar:
		if size == 1 {
			kind = KindSChar
		}
	case EncUnsignedChar:
		if size == 1 {
			kind = KindUChar
		}
	}

	if kind == KindUnknown {
		ulog.Warn("dwarf: unsupported base type %q (encoding 0x%x, size %d)", name, encoding, size)
	}

	return cat.Reserve(d.Offset, Type{Name: name, Kind: kind, Size: size}), nil
}

// parsePointerType inserts the pointer into the catalogue *before* parsing
// its pointee so self- and mutually-referential structs terminate
// (spec.md §3, §9). A pointer with no DW_AT_type is void*.
func (cu *CompileUnit) parsePointerType(cat *Catalogue, d *die) (TypeRef, error) {
	ref := cat.Reserve(d.Offset, Type{Kind: KindPointer, Size: pointerSize, Pointee: InvalidRef})

	pointee, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return InvalidRef, err
	}

	t := *cat.Get(ref)
	t.Pointee = pointee
	cat.Update(ref, t)
	return ref, nil
}

// parseStructOrUnion collects members by walking the DIE's children until
// the sibling terminator. Members with non-constant offsets are warned and
// skipped; the legacy DW_AT_bit_offset form is refused outright (spec.md
// §4.D, §9 "Bit-field old form").
func (cu *CompileUnit) parseStructOrUnion(cat *Catalogue, d *die, r *dieReader, name string, kind Kind) (TypeRef, error) {
	ref := cat.Reserve(d.Offset, Type{Name: name, Kind: kind, Size: sizeOrUnknown(d, AttrByteSize)})

	var members []Member
	if d.HasChildren {
		children, err := collectChildren(r)
		if err != nil {
			return InvalidRef, err
		}
		for _, c := range children {
			if c.Tag != TagMember {
				continue
			}
			m, ok, err := cu.parseMember(cat, c)
			if err != nil {
				return InvalidRef, err
			}
			if ok {
				members = append(members, m)
			}
		}
	}

	t := *cat.Get(ref)
	t.Members = members
	cat.Update(ref, t)
	return ref, nil
}

func (cu *CompileUnit) parseMember(cat *Catalogue, d *die) (Member, bool, error) {
	name, _ := d.Attrs[AttrName].(string)
	memberType, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return Member{}, false, err
	}

	if _, hasOldForm := d.Attrs[AttrBitOffset]; hasOldForm {
		ulog.Warn("dwarf: member %q uses the legacy DW_AT_bit_offset form, which is endianness-dependent and refused; skipping", name)
		return Member{}, false, nil
	}

	m := Member{Name: name, Type: memberType}

	if bitSize, ok := asInt64(d.Attrs[AttrBitSize]); ok {
		m.BitSize = uint64(bitSize)
	}

	if off, ok := d.Attrs[AttrDataBitOffset]; ok {
		v, okInt := asInt64(off)
		if !okInt {
			ulog.Warn("dwarf: member %q has a non-constant bit offset; skipping", name)
			return Member{}, false, nil
		}
		m.BitOffset = uint64(v)
		return m, true, nil
	}

	if off, present := d.Attrs[AttrDataMemberLoc]; present {
		v, ok := asInt64(off)
		if !ok {
			ulog.Warn("dwarf: member %q has a non-constant byte offset; skipping", name)
			return Member{}, false, nil
		}
		m.ByteOffset = uint64(v)
	}

	return m, true, nil
}

// parseEnum parses the underlying integer type and collects enumerators
// with signed 64-bit values; a non-constant enumerator value invalidates
// the whole enum, falling through to KindUnknown (spec.md §4.D).
func (cu *CompileUnit) parseEnum(cat *Catalogue, d *die, r *dieReader, name string) (TypeRef, error) {
	underlying, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return InvalidRef, err
	}

	ref := cat.Reserve(d.Offset, Type{Name: name, Kind: KindEnum, Size: sizeOrUnknown(d, AttrByteSize), EnumUnderlying: underlying})

	var enumerators []Enumerator
	ok := true
	if d.HasChildren {
		children, cerr := collectChildren(r)
		if cerr != nil {
			return InvalidRef, cerr
		}
		for _, c := range children {
			if c.Tag != TagEnumerator {
				continue
			}
			ename, _ := c.Attrs[AttrName].(string)
			v, vok := asInt64(c.Attrs[AttrConstValue])
			if !vok {
				ok = false
				continue
			}
			enumerators = append(enumerators, Enumerator{Name: ename, Value: v})
		}
	}

	t := *cat.Get(ref)
	if !ok {
		ulog.Warn("dwarf: enum %q has a non-constant enumerator value; degrading to unknown", name)
		t.Kind = KindUnknown
		t.Enumerators = nil
	} else {
		t.Enumerators = enumerators
	}
	cat.Update(ref, t)
	return ref, nil
}

// parseArray parses the element type and the dimension lengths from
// subrange children (DW_AT_count, or DW_AT_upper_bound + 1). A non-constant
// dimension makes the whole array non-static (empty Dimensions). Total size
// is element.size times the product of dimensions, when all are known.
func (cu *CompileUnit) parseArray(cat *Catalogue, d *die, r *dieReader, name string) (TypeRef, error) {
	element, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return InvalidRef, err
	}

	ref := cat.Reserve(d.Offset, Type{Name: name, Kind: KindArray, Array: Array{Element: element}})

	var dims []uint64
	allConstant := true
	if d.HasChildren {
		children, cerr := collectChildren(r)
		if cerr != nil {
			return InvalidRef, cerr
		}
		for _, c := range children {
			if c.Tag != TagSubrangeType {
				continue
			}
			if count, ok := asInt64(c.Attrs[AttrCount]); ok {
				dims = append(dims, uint64(count))
				continue
			}
			if upper, ok := asInt64(c.Attrs[AttrUpperBound]); ok {
				dims = append(dims, uint64(upper+1))
				continue
			}
			allConstant = false
		}
	}

	t := *cat.Get(ref)
	if allConstant {
		t.Array.Dimensions = dims
		elemType := cat.Get(element)
		if elemType != nil && elemType.Size != SizeUnknown {
			total := elemType.Size
			for _, n := range dims {
				total *= int64(n)
			}
			t.Size = total
		} else {
			t.Size = SizeUnknown
		}
	} else {
		ulog.Warn("dwarf: array %q has a non-constant dimension; treating as non-static", name)
		t.Size = SizeUnknown
	}
	cat.Update(ref, t)
	return ref, nil
}

// parseSubroutineType parses a function *type* (as opposed to a concrete
// FunctionInfo): return type, ordered parameter types, and the variadic
// flag from a trailing DW_TAG_unspecified_parameters child.
func (cu *CompileUnit) parseSubroutineType(cat *Catalogue, d *die, r *dieReader, name string) (TypeRef, error) {
	ret, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return InvalidRef, err
	}

	ref := cat.Reserve(d.Offset, Type{Name: name, Kind: KindFunction, Size: pointerSize, Signature: FunctionSignature{Return: ret}})

	var params []TypeRef
	variadic := false
	if d.HasChildren {
		children, cerr := collectChildren(r)
		if cerr != nil {
			return InvalidRef, cerr
		}
		for _, c := range children {
			switch c.Tag {
			case TagFormalParameter:
				pt, perr := cu.parseTypeOrVoid(cat, c)
				if perr != nil {
					return InvalidRef, perr
				}
				params = append(params, pt)
			case TagUnspecifiedParams:
				variadic = true
			}
		}
	}

	t := *cat.Get(ref)
	t.Signature.Params = params
	t.Signature.Variadic = variadic
	cat.Update(ref, t)
	return ref, nil
}

// parseTypedef inherits every field from the underlying type except Name.
// Special-case (spec.md §4.D): typedefs named int8_t/uint8_t replace a
// schar/uchar base with s1/u1 so they print as numbers, not characters.
func (cu *CompileUnit) parseTypedef(cat *Catalogue, d *die, name string) (TypeRef, error) {
	underlying, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return InvalidRef, err
	}

	var t Type
	if base := cat.Get(underlying); base != nil {
		t = *base
	} else {
		t = Type{Kind: KindVoid, Size: pointerSize}
	}
	t.Name = name

	if name == "int8_t" && t.Kind == KindSChar {
		t.Kind = KindS1
	} else if name == "uint8_t" && t.Kind == KindUChar {
		t.Kind = KindU1
	}

	return cat.Reserve(d.Offset, t), nil
}

// parseModifier copies the underlying type and ORs in mod, entering the
// copy at the modifier DIE's own offset so repeated references share it
// (spec.md §4.D). A modifier with no DW_AT_type degenerates to a
// void*-sized void (the Open Question recorded in DESIGN.md).
func (cu *CompileUnit) parseModifier(cat *Catalogue, d *die, mod Modifier) (TypeRef, error) {
	underlying, err := cu.parseTypeOrVoid(cat, d)
	if err != nil {
		return InvalidRef, err
	}

	var t Type
	if base := cat.Get(underlying); base != nil {
		t = *base
	} else {
		t = Type{Kind: KindVoid, Size: pointerSize}
	}
	t.Modifiers |= mod

	return cat.Reserve(d.Offset, t), nil
}

func sizeOrUnknown(d *die, attr Attr) int64 {
	if v, ok := asInt64(d.Attrs[attr]); ok {
		return v
	}
	return SizeUnknown
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

// collectChildren reads the flat list of direct children of the DIE whose
// children are currently positioned at r, skipping (but not discarding the
// position of) any grandchildren subtrees. Used for struct/union members,
// enum enumerators, array subranges, and subroutine formal parameters —
// none of which are themselves expected to carry children in any compiler
// this module targets, but a subtree is skipped defensively rather than
// assumed absent.
func collectChildren(r *dieReader) ([]*die, error) {
	var children []*die
	for {
		d, err := r.next()
		if err != nil {
			return nil, err
		}
		if d.Tag == 0 {
			return children, nil
		}
		children = append(children, d)
		if d.HasChildren {
			if err := skipSubtree(r); err != nil {
				return nil, err
			}
		}
	}
}

func skipSubtree(r *dieReader) error {
	for {
		d, err := r.next()
		if err != nil {
			return err
		}
		if d.Tag == 0 {
			return nil
		}
		if d.HasChildren {
			if err := skipSubtree(r); err != nil {
				return err
			}
		}
	}
}
