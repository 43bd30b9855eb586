package exprtype

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/exprlex"
)

// Resolver binds a parsed State against one dwarf.Session's Scope Tree,
// Type Catalogue and Function Table (spec.md §4.G's six-step resolution
// algorithm).
type Resolver struct {
	sess *dwarf.Session
	cat  *dwarf.Catalogue
}

func NewResolver(sess *dwarf.Session) *Resolver {
	return &Resolver{sess: sess, cat: sess.Catalogue}
}

// ResolveText tokenizes, parses and resolves one argument expression's
// static type as observed at pc, returning the Catalogue index of the
// value the %S argument's pointer ultimately points to.
func (r *Resolver) ResolveText(pc uint64, text string) (dwarf.TypeRef, error) {
	toks := exprlex.Tokenize(text)
	st, err := Parse(toks)
	if err != nil {
		return dwarf.InvalidRef, fmt.Errorf("exprtype: %q: %w", text, err)
	}
	ref, err := r.Resolve(pc, st)
	if err != nil {
		return dwarf.InvalidRef, fmt.Errorf("exprtype: %q: %w", text, err)
	}
	return ref, nil
}

// Resolve runs spec.md §4.G's resolution algorithm over an already-parsed
// State.
func (r *Resolver) Resolve(pc uint64, st *State) (dwarf.TypeRef, error) {
	cus := r.candidateCUs(pc)
	if len(cus) == 0 {
		return dwarf.InvalidRef, fmt.Errorf("no compile unit covers pc 0x%x", pc)
	}

	var ref dwarf.TypeRef
	var err error

	switch st.BaseKind {
	case BaseTypename:
		ref, _, err = r.resolveTypename(cus, st.Base)
	default:
		ref, _, err = r.resolveVariable(cus, pc, st.Base)
	}
	if err != nil {
		return dwarf.InvalidRef, err
	}

	for i := 0; i < st.CastDepth; i++ {
		ref = wrapPointer(r.cat, ref)
	}

	for _, step := range st.Steps {
		switch step.Kind {
		case StepMember:
			ref, err = descendMember(r.cat, ref, step.Name)
		case StepCall:
			ref, err = applyCall(r.cat, ref)
		}
		if err != nil {
			return dwarf.InvalidRef, err
		}
	}

	// The +1 accounts for the fact that whatever the expression evaluates
	// to is itself the pointer value handed to Printf: resolution needs
	// that pointer's pointee type, one level of indirection short of the
	// expression's own static type (spec.md §4.G step 6).
	return applyDereference(r.cat, ref, st.Dereference+1)
}

// candidateCUs returns every CU whose root scope contains pc (spec.md §4.G
// steps 1-2: "every CU whose root-scope range contains PC").
func (r *Resolver) candidateCUs(pc uint64) []*dwarf.CompileUnit {
	var out []*dwarf.CompileUnit
	for _, cu := range r.sess.CUs {
		if cu.ScopeRoot != nil && cu.ScopeRoot.Contains(pc) {
			out = append(out, cu)
		}
	}
	return out
}

func (r *Resolver) resolveTypename(cus []*dwarf.CompileUnit, name string) (dwarf.TypeRef, *dwarf.CompileUnit, error) {
	for _, cu := range cus {
		if off, ok := cu.NamedTypes[name]; ok {
			ref, err := cu.ParseType(r.cat, off)
			return ref, cu, err
		}
	}
	return dwarf.InvalidRef, nil, fmt.Errorf("unknown type name %q", name)
}

// resolveVariable walks each candidate CU's scope chain from innermost to
// outermost first (spec.md §4.G step 2); if no scope anywhere binds the
// name, it falls back to the Function Table, producing a synthetic
// KindFunction Type for the named function (spec.md §4.G "try functions
// and return a function type").
func (r *Resolver) resolveVariable(cus []*dwarf.CompileUnit, pc uint64, name string) (dwarf.TypeRef, *dwarf.CompileUnit, error) {
	for _, cu := range cus {
		for _, sc := range scopeChain(cu.ScopeRoot, pc) {
			for _, v := range sc.Variables {
				if v.Name != name {
					continue
				}
				if v.Type == dwarf.InvalidRef {
					return dwarf.InvalidRef, cu, fmt.Errorf("variable %q has no declared type", name)
				}
				ref, err := cu.ParseType(r.cat, uint64(v.Type))
				return ref, cu, err
			}
		}
	}
	for _, cu := range cus {
		if fn, ok := cu.LookupFunction(name); ok {
			ref, err := functionType(cu, r.cat, fn)
			return ref, cu, err
		}
	}
	return dwarf.InvalidRef, nil, fmt.Errorf("unknown identifier %q", name)
}

// scopeChain returns the scopes enclosing pc within s's subtree, innermost
// first.
func scopeChain(s *dwarf.Scope, pc uint64) []*dwarf.Scope {
	if s == nil || !s.Contains(pc) {
		return nil
	}
	for _, child := range s.Children {
		if inner := scopeChain(child, pc); inner != nil {
			return append(inner, s)
		}
	}
	return []*dwarf.Scope{s}
}

// functionType materialises a FunctionInfo (a concrete, defined function)
// as a one-off KindFunction Catalogue entry, so a named function used as a
// base resolves exactly like a variable holding a function pointer would
// (spec.md §4.G step 2/3 collapse into the same Steps/StepCall handling).
func functionType(cu *dwarf.CompileUnit, cat *dwarf.Catalogue, fn *dwarf.FunctionInfo) (dwarf.TypeRef, error) {
	ret := dwarf.InvalidRef
	if fn.Return != dwarf.InvalidRef {
		r, err := cu.ParseType(cat, uint64(fn.Return))
		if err != nil {
			return dwarf.InvalidRef, err
		}
		ret = r
	}
	params := make([]dwarf.TypeRef, 0, len(fn.Params))
	for _, p := range fn.Params {
		if p.Type == dwarf.InvalidRef {
			continue
		}
		pr, err := cu.ParseType(cat, uint64(p.Type))
		if err != nil {
			return dwarf.InvalidRef, err
		}
		params = append(params, pr)
	}
	return cat.Append(dwarf.Type{
		Kind: dwarf.KindFunction,
		Size: pointerSize,
		Signature: dwarf.FunctionSignature{
			Return:   ret,
			Params:   params,
			Variadic: fn.Variadic,
		},
	}), nil
}

// pointerSize mirrors dwarf's (unexported) constant; kept local since this
// package only ever needs it to size synthetic pointer/function Types.
const pointerSize = 8

func wrapPointer(cat *dwarf.Catalogue, ref dwarf.TypeRef) dwarf.TypeRef {
	return cat.Append(dwarf.Type{Kind: dwarf.KindPointer, Size: pointerSize, Pointee: ref})
}

// derefThroughPointer follows every consecutive pointer layer of ref,
// "looking through pointer types transparently" (spec.md §4.G step 4).
func derefThroughPointer(cat *dwarf.Catalogue, ref dwarf.TypeRef) (dwarf.TypeRef, *dwarf.Type) {
	t := cat.Get(ref)
	for t != nil && t.Kind == dwarf.KindPointer {
		ref = t.Pointee
		t = cat.Get(ref)
	}
	return ref, t
}

func descendMember(cat *dwarf.Catalogue, ref dwarf.TypeRef, name string) (dwarf.TypeRef, error) {
	_, t := derefThroughPointer(cat, ref)
	if t == nil {
		return dwarf.InvalidRef, fmt.Errorf("dereferencing void* while looking for member %q", name)
	}
	if t.Kind != dwarf.KindStruct && t.Kind != dwarf.KindUnion {
		return dwarf.InvalidRef, fmt.Errorf("%q is not a member of a struct or union (type is %s)", name, t.Kind)
	}
	for _, m := range t.Members {
		if m.Name == name {
			return m.Type, nil
		}
	}
	return dwarf.InvalidRef, fmt.Errorf("no member named %q", name)
}

func applyCall(cat *dwarf.Catalogue, ref dwarf.TypeRef) (dwarf.TypeRef, error) {
	_, t := derefThroughPointer(cat, ref)
	if t == nil || t.Kind != dwarf.KindFunction {
		return dwarf.InvalidRef, fmt.Errorf("attempted to call a non-function type")
	}
	return t.Signature.Return, nil
}

// applyDereference applies net's strip-or-wrap to ref: net > 0 strips net
// pointer/array layers (spec.md §4.G step 6's "array indexing reduces the
// dimension count or descends into the element type"); net < 0 wraps ref
// in |net| additional pointer layers (mirroring unary &).
func applyDereference(cat *dwarf.Catalogue, ref dwarf.TypeRef, net int) (dwarf.TypeRef, error) {
	for net > 0 {
		t := cat.Get(ref)
		if t == nil {
			return dwarf.InvalidRef, fmt.Errorf("void* left after stripping pointer layers")
		}
		switch t.Kind {
		case dwarf.KindPointer:
			if t.Pointee == dwarf.InvalidRef {
				return dwarf.InvalidRef, fmt.Errorf("void* left after stripping pointer layers")
			}
			ref = t.Pointee
		case dwarf.KindArray:
			ref = stripArrayDimension(cat, t)
		default:
			return dwarf.InvalidRef, fmt.Errorf("attempted to dereference a non-pointer, non-array type %q", t.String(cat))
		}
		net--
	}
	for net < 0 {
		ref = wrapPointer(cat, ref)
		net++
	}
	return ref, nil
}

func stripArrayDimension(cat *dwarf.Catalogue, t *dwarf.Type) dwarf.TypeRef {
	if len(t.Array.Dimensions) <= 1 {
		return t.Array.Element
	}
	nt := dwarf.Type{
		Kind: dwarf.KindArray,
		Size: dwarf.SizeUnknown,
		Array: dwarf.Array{
			Element:    t.Array.Element,
			Dimensions: append([]uint64(nil), t.Array.Dimensions[1:]...),
		},
	}
	if elem := cat.Get(t.Array.Element); elem != nil && elem.Size != dwarf.SizeUnknown {
		total := elem.Size
		for _, d := range nt.Array.Dimensions {
			total *= int64(d)
		}
		nt.Size = total
	}
	return cat.Append(nt)
}
