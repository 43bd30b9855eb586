package exprtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/dwarfranges"
	"github.com/uprintf-go/uprintf/pkg/exprlex"
)

// fixture offsets stand in for .debug_info DIE offsets; a zero-value
// CompileUnit has no real DIE bytes behind it, so every offset used here is
// pre-seeded into the Catalogue with Reserve, making CompileUnit.ParseType
// hit its memoization cache (dwarf.Catalogue.Lookup) before it would ever
// need to decode a DIE (spec.md §5 "synthetic catalogues built directly").
const (
	offInt       = 0x10
	offCharPtr   = 0x20
	offChar      = 0x21
	offStructP    = 0x30
	offStructPPtr = 0x31
)

func newFixtureSession(t *testing.T) (*dwarf.Session, *dwarf.CompileUnit) {
	t.Helper()
	cat := dwarf.NewCatalogue()

	intRef := cat.Reserve(offInt, dwarf.Type{Name: "int", Kind: dwarf.KindS4, Size: 4})
	charRef := cat.Reserve(offChar, dwarf.Type{Name: "char", Kind: dwarf.KindSChar, Size: 1})
	cat.Reserve(offCharPtr, dwarf.Type{Kind: dwarf.KindPointer, Size: 8, Pointee: charRef})

	structRef := cat.Reserve(offStructP, dwarf.Type{
		Name: "P", Kind: dwarf.KindStruct, Size: 8,
		Members: []dwarf.Member{
			{Name: "x", Type: intRef, ByteOffset: 0},
		},
	})
	structPtrRef := cat.Append(dwarf.Type{Kind: dwarf.KindPointer, Size: 8, Pointee: structRef}) // struct P*
	cat.Reserve(offStructPPtr, dwarf.Type{Kind: dwarf.KindPointer, Size: 8, Pointee: structPtrRef}) // struct P**

	cu := &dwarf.CompileUnit{
		Name:       "test.c",
		NamedTypes: map[string]uint64{"int": offInt, "P": offStructP},
		ScopeRoot:  &dwarf.Scope{Ranges: []dwarfranges.PCRange{{Start: 0, End: 0xFFFF}}},
	}
	cu.ScopeRoot.Variables = []dwarf.Variable{
		{Name: "p", Type: dwarf.TypeRef(offStructP)},
		{Name: "ptr", Type: dwarf.TypeRef(offCharPtr)},
		{Name: "pp", Type: dwarf.TypeRef(offStructPPtr)},
	}

	sess := &dwarf.Session{Catalogue: cat, CUs: []*dwarf.CompileUnit{cu}}
	return sess, cu
}

func TestResolveVariableWithAddressOf(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	ref, err := r.ResolveText(0, "&p")
	require.NoError(t, err)
	typ := sess.Catalogue.Get(ref)
	require.NotNil(t, typ)
	assert.Equal(t, dwarf.KindStruct, typ.Kind)
	assert.Equal(t, "P", typ.Name)
}

func TestResolveBarePointerVariable(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	// "ptr" alone (char*, no & in the text): the implicit +1 strips one
	// pointer layer, landing on char (spec.md §4.G step 6).
	ref, err := r.ResolveText(0, "ptr")
	require.NoError(t, err)
	typ := sess.Catalogue.Get(ref)
	require.NotNil(t, typ)
	assert.Equal(t, dwarf.KindSChar, typ.Kind)
}

func TestResolveMemberAccess(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	ref, err := r.ResolveText(0, "&p.x")
	require.NoError(t, err)
	typ := sess.Catalogue.Get(ref)
	require.NotNil(t, typ)
	assert.Equal(t, dwarf.KindS4, typ.Kind)
}

func TestResolveDerefOfPointerToPointer(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	// pp: struct P**. "*pp" used directly (no &): text dereference=+1, net
	// = 1+1 = 2, strips both pointer layers down to struct P.
	ref, err := r.ResolveText(0, "*pp")
	require.NoError(t, err)
	typ := sess.Catalogue.Get(ref)
	require.NotNil(t, typ)
	assert.Equal(t, dwarf.KindStruct, typ.Kind)
	assert.Equal(t, "P", typ.Name)
}

func TestResolveCastToPointer(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	ref, err := r.ResolveText(0, "(struct P*)ptr")
	require.NoError(t, err)
	typ := sess.Catalogue.Get(ref)
	require.NotNil(t, typ)
	assert.Equal(t, dwarf.KindStruct, typ.Kind)
	assert.Equal(t, "P", typ.Name)
}

func TestResolveUnknownIdentifierErrors(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	_, err := r.ResolveText(0, "&nope")
	assert.Error(t, err)
}

func TestResolveOverDereferenceErrors(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	// p is a plain struct (not a pointer); "**p" asks to strip two pointer
	// layers off something with none.
	_, err := r.ResolveText(0, "**p")
	assert.Error(t, err)
}

func TestParseArgumentShapes(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want State
	}{
		{
			name: "address of variable",
			expr: "&p",
			want: State{Dereference: -1, Base: "p", BaseKind: BaseVariable},
		},
		{
			name: "member chain",
			expr: "p.x",
			want: State{Base: "p", BaseKind: BaseVariable, Steps: []Step{{Kind: StepMember, Name: "x"}}},
		},
		{
			name: "arrow chain",
			expr: "p->x",
			want: State{Base: "p", BaseKind: BaseVariable, Steps: []Step{{Kind: StepMember, Name: "x"}}},
		},
		{
			name: "array subscript",
			expr: "arr[0]",
			want: State{Dereference: 1, Base: "arr", BaseKind: BaseVariable},
		},
		{
			name: "call",
			expr: "f()",
			want: State{Base: "f", BaseKind: BaseVariable, Steps: []Step{{Kind: StepCall}}},
		},
		{
			name: "pointer cast",
			expr: "(struct Foo*)x",
			want: State{Base: "Foo", BaseKind: BaseTypename, CastDepth: 1},
		},
		{
			name: "primitive cast",
			expr: "(unsigned long)x",
			want: State{Base: "unsigned long", BaseKind: BaseTypename},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st, err := Parse(exprlex.Tokenize(tc.expr))
			require.NoError(t, err)
			assert.Equal(t, tc.want, *st)
		})
	}
}

func TestResolveFunctionCallUsesReturnType(t *testing.T) {
	sess, cu := newFixtureSession(t)
	cu.Functions = []*dwarf.FunctionInfo{{
		Name:   "make_p",
		Return: dwarf.TypeRef(offStructP),
	}}
	r := NewResolver(sess)

	// make_p is not bound by any scope, so resolution falls back to the
	// Function Table; the trailing call substitutes the return type.
	ref, err := r.ResolveText(0, "&make_p()")
	require.NoError(t, err)
	typ := sess.Catalogue.Get(ref)
	require.NotNil(t, typ)
	assert.Equal(t, dwarf.KindStruct, typ.Kind)
	assert.Equal(t, "P", typ.Name)
}

func TestResolveCallOfNonFunctionErrors(t *testing.T) {
	sess, _ := newFixtureSession(t)
	r := NewResolver(sess)

	_, err := r.ResolveText(0, "&p()")
	assert.Error(t, err)
}
