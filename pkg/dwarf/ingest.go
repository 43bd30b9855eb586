package dwarf

import (
	"debug/elf"
	"fmt"

	"go.uber.org/multierr"

	"github.com/uprintf-go/uprintf/pkg/dwarfranges"
	"github.com/uprintf-go/uprintf/pkg/elfimage"
	"github.com/uprintf-go/uprintf/pkg/ulog"
)

func logWarning(format string, args ...any) { ulog.Warn(format, args...) }

// Session is the result of ingesting every compile unit in an Image: the
// Type Catalogue shared across all of them, the per-CU scope trees and
// function tables, and the PC ranges of the library's own entry function
// (used for PC-base discovery, spec.md §4.D/§9).
type Session struct {
	Catalogue *Catalogue
	CUs       []*CompileUnit

	// EntryFuncRanges holds the PC ranges of the function named
	// entryFuncName passed to Ingest, if it was found during traversal.
	EntryFuncRanges []dwarfranges.PCRange

	img *elfimage.Image
}

// typeTags is the set of DW_TAG_* codes that introduce a named type and so
// get recorded in a CU's named-type list (spec.md §4.D).
var typeTags = map[Tag]bool{
	TagStructureType:  true,
	TagUnionType:      true,
	TagEnumerationType: true,
	TagArrayType:      true,
	TagPointerType:    true,
	TagSubroutineType: true,
	TagTypedef:        true,
	TagBaseType:       true,
	TagConstType:      true,
	TagVolatileType:   true,
	TagRestrictType:   true,
	TagAtomicType:     true,
}

// Language codes this module accepts as "C-flavored" (spec.md §1 Non-goals:
// "support for languages whose compilation unit declares a non-C language
// code"). Zero (no DW_AT_language attribute) is accepted permissively so
// hand-built synthetic test fixtures need not set one.
var cLanguages = map[int64]bool{
	0:    true,
	0x01: true, // DW_LANG_C89
	0x02: true, // DW_LANG_C
	0x0c: true, // DW_LANG_C99
	0x1d: true, // DW_LANG_C11
	0x2d: true, // DW_LANG_C17
}

// Ingest parses every compile unit in img's .debug_info, producing a
// Session. entryFuncName names the function whose own PC range is recorded
// for the absolute-vs-load-base-relative PC heuristic (spec.md §9): in this
// module that is the exported Printf entry point itself.
func Ingest(img *elfimage.Image, entryFuncName string) (*Session, error) {
	sess := &Session{Catalogue: NewCatalogue(), img: img}

	data := img.DebugInfo
	var pos uint64
	var warnings error

	for pos < uint64(len(data)) {
		cu, abbrevOff, firstDIE, nextCU, err := headerAt(data, pos)
		if err != nil {
			return nil, fmt.Errorf("dwarf: %w", err)
		}
		cu.img = img

		abbrev, err := parseAbbrevTable(img.DebugAbbrev, abbrevOff)
		if err != nil {
			return nil, fmt.Errorf("dwarf: %w", err)
		}

		compileUnit, entryRanges, warn, err := ingestCU(data, firstDIE, nextCU, abbrev, cu, entryFuncName)
		if err != nil {
			return nil, fmt.Errorf("dwarf: %w", err)
		}
		warnings = multierr.Append(warnings, warn)
		if compileUnit != nil {
			sess.CUs = append(sess.CUs, compileUnit)
		}
		if entryRanges != nil {
			sess.EntryFuncRanges = entryRanges
		}

		pos = nextCU
	}

	if syms, err := img.Symbols(); err == nil && len(syms) > 0 {
		applySymbolPCs(sess.CUs, syms)
	}

	if warnings != nil {
		for _, w := range multierr.Errors(warnings) {
			logWarning("%v", w)
		}
	}

	return sess, nil
}

// applySymbolPCs cross-checks the Function Table against the ELF symbol
// table: a subprogram recorded without DW_AT_low_pc (a declaration whose
// definition was emitted elsewhere) still gets an entry PC when the
// linker knows one, so the printer can match function pointers into it.
// DWARF-provided PCs always win; symbols only fill gaps.
func applySymbolPCs(cus []*CompileUnit, syms []elf.Symbol) {
	byName := make(map[string]elf.Symbol, len(syms))
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Name == "" || s.Value == 0 {
			continue
		}
		byName[s.Name] = s
	}
	for _, cu := range cus {
		for _, fn := range cu.Functions {
			if fn.HasPC || fn.Name == "" {
				continue
			}
			s, ok := byName[fn.Name]
			if !ok {
				continue
			}
			fn.EntryPC, fn.HighPC, fn.HasPC = s.Value, s.Value+s.Size, true
		}
	}
}

// headerAt wraps parseCUHeader, also returning the offset of the unit
// following this one.
func headerAt(data []byte, off uint64) (*cuContext, uint64, uint64, uint64, error) {
	cu, abbrevOff, firstDIE, err := parseCUHeader(data, off)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	nextCU := nextCUOffset(data, off)
	return cu, abbrevOff, firstDIE, nextCU, nil
}

func nextCUOffset(data []byte, off uint64) uint64 {
	initialLen := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
	if initialLen == 0xFFFFFFFF {
		lo := off + 12
		unitLength := uint64(data[off+4]) | uint64(data[off+5])<<8 | uint64(data[off+6])<<16 | uint64(data[off+7])<<24 |
			uint64(data[off+8])<<32 | uint64(data[off+9])<<40 | uint64(data[off+10])<<48 | uint64(data[off+11])<<56
		return lo + unitLength
	}
	return off + 4 + uint64(initialLen)
}

type frameKind int

const (
	frameScope frameKind = iota
	frameOpaque
)

type frame struct {
	kind            frameKind
	scope           *Scope
	isFunctionScope bool
}

// ingestCU walks one compile unit's DIE stream, building its scope tree and
// function table and recording named top-level types (spec.md §4.D).
func ingestCU(data []byte, firstDIE, nextCU uint64, abbrev *abbrevTable, cu *cuContext, entryFuncName string) (*CompileUnit, []dwarfranges.PCRange, error, error) {
	reader := newDIEReader(data, firstDIE, abbrev, cu)

	root, err := reader.next()
	if err != nil {
		return nil, nil, nil, err
	}

	lang := attrInt64(root.Attrs[AttrLanguage])
	name, _ := root.Attrs[AttrName].(string)

	compileUnit := &CompileUnit{Name: name, NamedTypes: map[string]uint64{}, Language: lang, data: data, abbrev: abbrev, ctx: cu}

	if !cLanguages[lang] {
		// Non-C compile unit (e.g. the Go runtime's own DW_LANG_Go
		// units): out of scope per spec.md §1 — no types, scopes or
		// functions are recorded from it. The one exception is the
		// library's own entry function: Printf is plain Go code, so its
		// subprogram DIE lives in exactly this kind of unit, and the
		// PC-base discovery of spec.md §4.D/§9 needs its ranges.
		return compileUnit, scanEntryFunc(reader, nextCU, entryFuncName), nil, nil
	}

	rootRanges, rerr := dieRanges(root, cu)
	var warnings error
	if rerr != nil {
		warnings = multierr.Append(warnings, fmt.Errorf("CU %q root ranges: %w", name, rerr))
	}
	if len(rootRanges) == 0 {
		rootRanges = []dwarfranges.PCRange{{Start: 0, End: ^uint64(0)}}
	}

	rootScope := &Scope{Ranges: rootRanges}
	compileUnit.ScopeRoot = rootScope

	var entryRanges []dwarfranges.PCRange
	var currentFunc *FunctionInfo
	stack := []*frame{{kind: frameScope, scope: rootScope}}

	for reader.pos < nextCU && len(stack) > 0 {
		d, err := reader.next()
		if err != nil {
			warnings = multierr.Append(warnings, err)
			break
		}

		if d.Tag == 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top.kind == frameScope && top.scope != rootScope && len(stack) > 0 {
				parent := stack[len(stack)-1]
				if parent.kind == frameScope {
					parent.scope.Children = append(parent.scope.Children, top.scope)
				}
			}
			if top.isFunctionScope {
				currentFunc = nil
			}
			continue
		}

		top := stack[len(stack)-1]

		switch d.Tag {
		case TagSubprogram:
			fnName, _ := d.Attrs[AttrName].(string)
			fn := &FunctionInfo{Name: fnName, Return: InvalidRef}
			if retOff, ok := d.Attrs[AttrType].(uint64); ok {
				fn.Return = TypeRef(retOff)
			}
			ranges, rerr := dieRanges(d, cu)
			if rerr != nil {
				warnings = multierr.Append(warnings, fmt.Errorf("function %q: %w", fnName, rerr))
			}
			if len(ranges) > 0 {
				fn.EntryPC, fn.HighPC, fn.HasPC = ranges[0].Start, ranges[0].End, true
			}
			compileUnit.Functions = append(compileUnit.Functions, fn)

			if fnName != "" && fnName == entryFuncName {
				entryRanges = ranges
			}

			if d.HasChildren {
				scope := &Scope{Parent: top.scope, Ranges: ranges}
				if len(ranges) == 0 {
					scope.Ranges = top.scope.Ranges
				}
				stack = append(stack, &frame{kind: frameScope, scope: scope, isFunctionScope: true})
				currentFunc = fn
			}

		case TagLexicalBlock, TagInlinedSubroutine:
			if d.HasChildren {
				ranges, rerr := dieRanges(d, cu)
				if rerr != nil {
					warnings = multierr.Append(warnings, fmt.Errorf("lexical block: %w", rerr))
				}
				if len(ranges) == 0 {
					ranges = top.scope.Ranges
				}
				scope := &Scope{Parent: top.scope, Ranges: ranges}
				stack = append(stack, &frame{kind: frameScope, scope: scope})
			}

		case TagFormalParameter:
			if v, ok := variableOf(d); ok && top.kind == frameScope {
				top.scope.Variables = append(top.scope.Variables, v)
				if currentFunc != nil {
					currentFunc.Params = append(currentFunc.Params, v)
				}
			}
			if d.HasChildren {
				stack = append(stack, &frame{kind: frameOpaque})
			}

		case TagVariable:
			if v, ok := variableOf(d); ok && top.kind == frameScope {
				top.scope.Variables = append(top.scope.Variables, v)
			}
			if d.HasChildren {
				stack = append(stack, &frame{kind: frameOpaque})
			}

		case TagUnspecifiedParams:
			if currentFunc != nil {
				currentFunc.Variadic = true
			}

		default:
			if typeTags[d.Tag] {
				if tname, ok := d.Attrs[AttrName].(string); ok && tname != "" {
					if _, exists := compileUnit.NamedTypes[tname]; !exists {
						compileUnit.NamedTypes[tname] = d.Offset
					}
				}
			}
			if d.HasChildren {
				stack = append(stack, &frame{kind: frameOpaque})
			}
		}
	}

	return compileUnit, entryRanges, warnings, nil
}

// scanEntryFunc walks the remainder of a skipped (non-C) compile unit
// looking only for the subprogram named entryFuncName, returning its PC
// ranges. Best-effort: a unit using attribute forms this reader cannot
// decode just yields no ranges, and resolvePC falls back to the load-base
// heuristic.
func scanEntryFunc(reader *dieReader, nextCU uint64, entryFuncName string) []dwarfranges.PCRange {
	if entryFuncName == "" {
		return nil
	}
	for reader.pos < nextCU {
		d, err := reader.next()
		if err != nil {
			return nil
		}
		if d.Tag != TagSubprogram {
			continue
		}
		name, _ := d.Attrs[AttrName].(string)
		if name != entryFuncName {
			continue
		}
		ranges, err := dieRanges(d, reader.cu)
		if err != nil || len(ranges) == 0 {
			return nil
		}
		return ranges
	}
	return nil
}

func variableOf(d *die) (Variable, bool) {
	name, ok := d.Attrs[AttrName].(string)
	if !ok || name == "" {
		return Variable{}, false
	}
	typeOff, ok := d.Attrs[AttrType].(uint64)
	if !ok {
		return Variable{Name: name, Type: InvalidRef}, true
	}
	return Variable{Name: name, Type: TypeRef(typeOff)}, true
}

func attrInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case uint64:
		return int64(x)
	default:
		return 0
	}
}
