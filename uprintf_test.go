package uprintf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/dwarfranges"
	"github.com/uprintf-go/uprintf/pkg/elfimage"
	"github.com/uprintf-go/uprintf/pkg/exprtype"
	"github.com/uprintf-go/uprintf/pkg/uprintfstate"
)

func TestContainsPC(t *testing.T) {
	ranges := []dwarfranges.PCRange{{Start: 0x1000, End: 0x2000}}
	require.True(t, containsPC(ranges, 0x1500))
	require.False(t, containsPC(ranges, 0x2000))
	require.False(t, containsPC(ranges, 0xff))
}

func TestConfigureAppliesOptions(t *testing.T) {
	Configure(WithIndentWidth(2), WithArrayRunThreshold(5))
	cfgMu.Lock()
	got := cfg
	cfgMu.Unlock()
	require.Equal(t, 2, got.IndentWidth)
	require.Equal(t, 5, got.ArrayRunThreshold)

	// restore defaults so other tests in this package aren't order-dependent
	Configure(WithIndentWidth(4), WithArrayRunThreshold(3))
}

func TestFunctionSignatureRendersCSignature(t *testing.T) {
	cat := dwarf.NewCatalogue()

	cu := &dwarf.CompileUnit{Name: "test.c", NamedTypes: map[string]uint64{}}
	fn := &dwarf.FunctionInfo{
		Name:    "add",
		Return:  dwarf.TypeRef(0xAA),
		Params:  []dwarf.Variable{{Name: "a", Type: dwarf.TypeRef(0xAA)}, {Name: "b", Type: dwarf.TypeRef(0xAA)}},
		EntryPC: 0x400000,
		HighPC:  0x400010,
		HasPC:   true,
	}
	cat.Reserve(0xAA, dwarf.Type{Name: "int", Kind: dwarf.KindS4, Size: 4})

	sess := &dwarf.Session{Catalogue: cat, CUs: []*dwarf.CompileUnit{cu}}
	globalSes = &session{sess: sess, resolve: exprtype.NewResolver(sess)}
	defer func() { globalSes = nil }()

	sig := functionSignature(cu, fn)
	require.Equal(t, "int add(int, int)", sig)
}

func TestMakeFunctionLookupFindsByEntryPC(t *testing.T) {
	cat := dwarf.NewCatalogue()
	cu := &dwarf.CompileUnit{Name: "test.c", NamedTypes: map[string]uint64{}}
	fn := &dwarf.FunctionInfo{Name: "f", Return: dwarf.InvalidRef, EntryPC: 0x1000, HighPC: 0x1010, HasPC: true}
	cu.Functions = []*dwarf.FunctionInfo{fn}

	sess := &dwarf.Session{Catalogue: cat, CUs: []*dwarf.CompileUnit{cu}}
	globalSes = &session{sess: sess, resolve: exprtype.NewResolver(sess)}
	defer func() { globalSes = nil }()

	lookup := makeFunctionLookup()
	sig, ok := lookup(0x1004)
	require.True(t, ok)
	require.Equal(t, "void f()", sig)

	_, ok = lookup(0x9999)
	require.False(t, ok)
}

// goUnitImage assembles a one-CU .debug_info stream the way the Go
// compiler shapes it for this library's own code: a DW_LANG_Go compile
// unit holding fnName's subprogram DIE at [0x1200, 0x1240).
func goUnitImage(t *testing.T, fnName string) *elfimage.Image {
	t.Helper()

	abbrev := []byte{
		// 1: compile_unit, children; name(string) language(data1) low_pc(addr) high_pc(data8)
		1, 0x11, 1, 0x03, 0x08, 0x13, 0x0b, 0x11, 0x01, 0x12, 0x07, 0, 0,
		// 2: subprogram, no children; name(string) low_pc(addr) high_pc(data8)
		2, 0x2e, 0, 0x03, 0x08, 0x11, 0x01, 0x12, 0x07, 0, 0,
		0,
	}

	le64 := func(v uint64) []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return b
	}

	info := make([]byte, 12) // header stamped below
	info = append(info, 1)
	info = append(info, "uprintf.go"...)
	info = append(info, 0)
	info = append(info, 0x16) // DW_LANG_Go
	info = append(info, le64(0x1000)...)
	info = append(info, le64(0x1000)...)
	info = append(info, 2)
	info = append(info, fnName...)
	info = append(info, 0)
	info = append(info, le64(0x1200)...)
	info = append(info, le64(0x40)...)
	info = append(info, 0) // end of CU children

	binary.LittleEndian.PutUint32(info[0:], uint32(len(info)-4))
	binary.LittleEndian.PutUint16(info[4:], 5)
	info[6] = 1 // DW_UT_compile
	info[7] = 8 // address size
	binary.LittleEndian.PutUint32(info[8:], 0)

	return &elfimage.Image{DebugInfo: info, DebugAbbrev: abbrev}
}

func TestResolvePCAbsoluteViaGoUnitSelfRecognition(t *testing.T) {
	img := goUnitImage(t, entryFuncName)

	// the real ingest path: the Go unit's types and scopes are skipped,
	// but Printf's own ranges must still be recovered from it.
	sess, err := dwarf.Ingest(img, entryFuncName)
	require.NoError(t, err)
	require.Len(t, sess.EntryFuncRanges, 1)

	globalSes = &session{sess: sess, resolve: exprtype.NewResolver(sess)}
	defer func() { globalSes = nil }()
	uprintfstate.Reset()
	defer uprintfstate.Reset()

	// a return address inside the entry function's own range means PCs
	// are already absolute: no load-base delta is applied.
	pc := uint64(0x1210)
	assert.Equal(t, pc, resolvePC(pc))
	assert.True(t, uprintfstate.Resolved())
	assert.Equal(t, uint64(0), uprintfstate.Delta())

	// later calls reuse the recorded answer
	assert.Equal(t, uint64(0x1230), resolvePC(0x1230))
}
