// Package exprtype is the expression recogniser and type inferencer,
// component G of spec.md §4: a recursive-descent parser over a subset of C
// expressions (casts are told apart from parenthesised expressions by
// lookahead; it never backtracks), producing a parser State (spec.md's
// "dereference, suffix_calls, base, base_type, members") which Resolve then
// binds against a dwarf.Session's Scope Tree, Type Catalogue and Function
// Table.
//
// The grammar never evaluates anything — it only tracks the handful of
// shape-changing operations spec.md §9 calls out (*, &, [], ., ->, ()); every
// other C operator (arithmetic, comparison, assignment, the ternary, the
// comma operator) is parsed only far enough to stay balanced and is
// otherwise a pass-through: its representative operand's State is kept,
// the other operand(s) are parsed (for correct token consumption) and
// discarded.
package exprtype

import (
	"fmt"

	"github.com/uprintf-go/uprintf/pkg/exprlex"
)

// BaseKind classifies how State.Base should be resolved. Unlike spec.md
// §4.G's three-way {typename, variable, function} split, this parser only
// ever emits Typename or Variable: a bare identifier immediately called
// (`foo(...)`) is still BaseVariable — resolution's scope-then-function
// fallback (spec.md §4.G step 2) and the uniform Steps/call-application
// loop below already produce the same result as a dedicated "function"
// base classification would, without a special "decrement the trailing
// call counter" carve-out.
type BaseKind int

const (
	BaseVariable BaseKind = iota
	BaseTypename
)

// StepKind tags one element of a State's postfix chain.
type StepKind int

const (
	StepMember StepKind = iota // . or -> by Name
	StepCall                   // (...)
)

// Step is one postfix operation applied, in source order, after Base (and
// after any cast's implicit pointer wrapping). Interleaving member access
// and calls in one ordered list (rather than spec.md's separate "members"
// list plus a single trailing "suffix_calls" count) is what lets
// resolution handle "a function in the middle of the chain" (spec.md §4.G
// step 4) uniformly instead of as a special case.
type Step struct {
	Kind StepKind
	Name string // set when Kind == StepMember
}

// State is the parser's output: enough information to resolve the static
// type of the expression without ever evaluating it.
type State struct {
	// Dereference is the net pointer adjustment from unary * (+1), unary &
	// (-1) and postfix [] (+1) applied directly around Base/Steps — NOT
	// including any pointer layers a leading cast introduces (those live
	// in CastDepth, see Resolver.Resolve).
	Dereference int
	// CastDepth counts trailing '*' inside a recognised `(typename*...)`
	// cast immediately preceding Base; 0 when Base was not introduced by
	// a cast.
	CastDepth int
	Base      string
	BaseKind  BaseKind
	Steps     []Step
}

type parser struct {
	toks []exprlex.Token
	pos  int
}

// Parse tokenizes nothing itself — callers pass already-lexed tokens (see
// ResolveText, which calls exprlex.Tokenize first) — and runs the recognizer
// over them, returning the inferred shape or an error if the input isn't a
// legal argument expression.
func Parse(toks []exprlex.Token) (*State, error) {
	p := &parser{toks: toks}
	st, err := p.parseComma()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("unexpected trailing token %q", p.toks[p.pos].Text)
	}
	return st, nil
}

func (p *parser) peek() exprlex.Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return exprlex.Token{Kind: exprlex.EOF}
}

func (p *parser) peekN(n int) exprlex.Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return exprlex.Token{Kind: exprlex.EOF}
}

func (p *parser) advance() exprlex.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expect(k exprlex.Kind) (exprlex.Token, error) {
	t := p.peek()
	if t.Kind != k {
		return t, fmt.Errorf("expected %v, got %v %q", k, t.Kind, t.Text)
	}
	return p.advance(), nil
}

// parseComma handles the comma operator: the value (and here, the type) of
// a comma expression is its rightmost operand.
func (p *parser) parseComma() (*State, error) {
	st, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	for p.peek().Kind == exprlex.Comma {
		p.advance()
		st, err = p.parseAssign()
		if err != nil {
			return nil, err
		}
	}
	return st, nil
}

var assignOps = map[exprlex.Kind]bool{
	exprlex.Assign: true, exprlex.PlusEq: true, exprlex.MinusEq: true,
	exprlex.StarEq: true, exprlex.SlashEq: true, exprlex.PercentEq: true,
	exprlex.AmpEq: true, exprlex.PipeEq: true, exprlex.CaretEq: true,
	exprlex.ShlEq: true, exprlex.ShrEq: true,
}

// parseAssign: assignment's type is its left-hand side's (the lvalue being
// assigned into); the right-hand side is parsed (right-associatively) only
// to stay balanced.
func (p *parser) parseAssign() (*State, error) {
	lhs, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if assignOps[p.peek().Kind] {
		p.advance()
		if _, err := p.parseAssign(); err != nil {
			return nil, err
		}
	}
	return lhs, nil
}

// parseTernary: `cond ? a : b`'s representative type is `a`'s (the
// true-branch), matching the usual-arithmetic-conversions spirit without
// actually computing a common type.
func (p *parser) parseTernary() (*State, error) {
	cond, err := p.parseBinaryChain()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind == exprlex.Question {
		p.advance()
		trueBranch, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(exprlex.Colon); err != nil {
			return nil, err
		}
		if _, err := p.parseAssign(); err != nil {
			return nil, err
		}
		return trueBranch, nil
	}
	return cond, nil
}

var binaryOps = map[exprlex.Kind]bool{
	exprlex.Star: true, exprlex.Slash: true, exprlex.Percent: true,
	exprlex.Plus: true, exprlex.Minus: true,
	exprlex.Shl: true, exprlex.Shr: true,
	exprlex.Lt: true, exprlex.Gt: true, exprlex.Le: true, exprlex.Ge: true,
	exprlex.Eq: true, exprlex.Ne: true,
	exprlex.Amp: true, exprlex.Caret: true, exprlex.Pipe: true,
	exprlex.AndAnd: true, exprlex.OrOr: true,
}

// parseBinaryChain parses a left-to-right run of binary operators without
// precedence climbing (pass-through operands never need correct grouping,
// only correct token consumption) and keeps the leftmost operand's State.
// Note unary Star/Amp are only binary here when they follow a completed
// operand rather than starting a new unary-expression — parseUnary already
// consumed any prefix Star/Amp, so a Star/Amp seen here is necessarily the
// binary multiply/bitwise-and operator.
func (p *parser) parseBinaryChain() (*State, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for binaryOps[p.peek().Kind] {
		p.advance()
		if _, err := p.parseUnary(); err != nil {
			return nil, err
		}
	}
	return lhs, nil
}

var prefixShapeOps = map[exprlex.Kind]bool{exprlex.Star: true, exprlex.Amp: true}
var prefixPassThroughOps = map[exprlex.Kind]bool{
	exprlex.Plus: true, exprlex.Minus: true, exprlex.Bang: true, exprlex.Tilde: true,
	exprlex.Inc: true, exprlex.Dec: true,
}

// parseUnary recognises unary prefix operators, sizeof/alignof, and casts,
// then falls through to parsePostfix for the underlying primary/postfix
// chain (spec.md §4.G).
func (p *parser) parseUnary() (*State, error) {
	t := p.peek()

	if prefixShapeOps[t.Kind] {
		p.advance()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if t.Kind == exprlex.Star {
			inner.Dereference++
		} else {
			inner.Dereference--
		}
		return inner, nil
	}

	if prefixPassThroughOps[t.Kind] {
		p.advance()
		return p.parseUnary()
	}

	if t.Kind == exprlex.Ident && (t.Text == "sizeof" || t.Text == "alignof" || t.Text == "_Alignof") {
		p.advance()
		if p.peek().Kind == exprlex.LParen {
			if _, isCast := peekIsCast(p.toks, p.pos); isCast {
				if err := p.skipParenGroup(); err != nil {
					return nil, err
				}
				return &State{Base: "unsigned long", BaseKind: BaseTypename}, nil
			}
		}
		if _, err := p.parseUnary(); err != nil {
			return nil, err
		}
		return &State{Base: "unsigned long", BaseKind: BaseTypename}, nil
	}

	if t.Kind == exprlex.LParen {
		if closeIdx, isCast := peekIsCast(p.toks, p.pos); isCast {
			typeName, stars := parseCastTypeName(p.toks[p.pos+1 : closeIdx])
			p.pos = closeIdx + 1
			if _, err := p.parseUnary(); err != nil { // consume the cast's operand, discard its shape
				return nil, err
			}
			return &State{Base: typeName, BaseKind: BaseTypename, CastDepth: stars}, nil
		}
	}

	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any run of [],
// (...), ., ->, postfix ++/-- (spec.md §4.G).
func (p *parser) parsePostfix() (*State, error) {
	st, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().Kind {
		case exprlex.LBracket:
			p.advance()
			if p.peek().Kind != exprlex.RBracket {
				if _, err := p.parseComma(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(exprlex.RBracket); err != nil {
				return nil, err
			}
			st.Dereference++

		case exprlex.LParen:
			if err := p.skipCallArgs(); err != nil {
				return nil, err
			}
			st.Steps = append(st.Steps, Step{Kind: StepCall})

		case exprlex.Dot:
			p.advance()
			name, err := p.expect(exprlex.Ident)
			if err != nil {
				return nil, err
			}
			st.Steps = append(st.Steps, Step{Kind: StepMember, Name: name.Text})

		case exprlex.Arrow:
			p.advance()
			name, err := p.expect(exprlex.Ident)
			if err != nil {
				return nil, err
			}
			st.Steps = append(st.Steps, Step{Kind: StepMember, Name: name.Text})

		case exprlex.Inc, exprlex.Dec:
			p.advance()

		default:
			return st, nil
		}
	}
}

func (p *parser) skipCallArgs() error {
	p.advance() // (
	if p.peek().Kind == exprlex.RParen {
		p.advance()
		return nil
	}
	for {
		if _, err := p.parseAssign(); err != nil {
			return err
		}
		if p.peek().Kind == exprlex.Comma {
			p.advance()
			continue
		}
		break
	}
	_, err := p.expect(exprlex.RParen)
	return err
}

func (p *parser) skipParenGroup() error {
	if _, err := p.expect(exprlex.LParen); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		t := p.advance()
		switch t.Kind {
		case exprlex.EOF:
			return fmt.Errorf("unterminated parenthesised group")
		case exprlex.LParen:
			depth++
		case exprlex.RParen:
			depth--
		}
	}
	return nil
}

// parsePrimary recognises an identifier, a number/string literal, or a
// parenthesised sub-expression (plain grouping, not a cast — parseUnary
// already intercepted casts before calling here).
func (p *parser) parsePrimary() (*State, error) {
	t := p.peek()
	switch t.Kind {
	case exprlex.Ident:
		p.advance()
		return &State{Base: t.Text, BaseKind: BaseVariable}, nil

	case exprlex.Number, exprlex.String:
		p.advance()
		return &State{Base: "", BaseKind: BaseVariable}, nil

	case exprlex.LParen:
		p.advance()
		st, err := p.parseComma()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(exprlex.RParen); err != nil {
			return nil, err
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unexpected token %v %q", t.Kind, t.Text)
	}
}

var primitiveKeywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"unsigned": true, "signed": true, "float": true, "double": true,
	"_Bool": true, "bool": true,
}

// peekIsCast decides whether the parenthesised group starting at
// toks[lparenIdx] is a `(typename)` cast, applying the disambiguation
// rules spec.md §4.G leaves to "typename recognition": an explicit
// specifier/qualifier/primitive keyword at the head, a trailing '*' right
// before the close paren, or (for a bare single identifier) a following
// token that can only start a new unary-expression rather than continue a
// binary one. `(ident)(args)` is deliberately NOT treated as a cast: it is
// far more often a call through a parenthesised function-pointer name.
func peekIsCast(toks []exprlex.Token, lparenIdx int) (closeIdx int, isCast bool) {
	closeIdx = matchingParen(toks, lparenIdx)
	if closeIdx < 0 || closeIdx == lparenIdx+1 {
		return closeIdx, false
	}
	inner := toks[lparenIdx+1 : closeIdx]

	if inner[0].Kind == exprlex.TypeSpecifier || inner[0].Kind == exprlex.TypeQualifier {
		return closeIdx, true
	}
	if inner[0].Kind == exprlex.Ident && primitiveKeywords[inner[0].Text] {
		return closeIdx, true
	}
	if len(inner) >= 2 && inner[len(inner)-1].Kind == exprlex.Star {
		return closeIdx, true
	}
	if len(inner) == 1 && inner[0].Kind == exprlex.Ident {
		if closeIdx+1 >= len(toks) {
			return closeIdx, false
		}
		switch toks[closeIdx+1].Kind {
		case exprlex.LParen:
			return closeIdx, false
		case exprlex.Ident, exprlex.Number, exprlex.String, exprlex.Star,
			exprlex.Amp, exprlex.Bang, exprlex.Tilde, exprlex.Plus, exprlex.Minus,
			exprlex.Inc, exprlex.Dec:
			return closeIdx, true
		}
	}
	return closeIdx, false
}

func matchingParen(toks []exprlex.Token, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(toks); i++ {
		switch toks[i].Kind {
		case exprlex.LParen:
			depth++
		case exprlex.RParen:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// primitiveCombos assembles C's base-type keyword combinations into the
// canonical name this module's synthetic/parsed Type Catalogue entries use
// (spec.md §4.G "Typename recognition assembles base-type combinations
// ... into the matching stdint-style primitive name"). Order within a cast
// doesn't matter in C ("unsigned long long" == "long long unsigned"), so
// combos are looked up by a sorted, space-joined key.
var primitiveCombos = map[string]string{
	"void":     "void",
	"char":     "char",
	"char signed": "signed char",
	"char unsigned": "unsigned char",
	"short":                  "short",
	"int short":              "short",
	"short signed":           "short",
	"int short signed":       "short",
	"short unsigned":         "unsigned short",
	"int short unsigned":     "unsigned short",
	"int":                    "int",
	"signed":                 "int",
	"int signed":             "int",
	"unsigned":               "unsigned int",
	"int unsigned":           "unsigned int",
	"long":                   "long",
	"int long":               "long",
	"long signed":            "long",
	"int long signed":        "long",
	"long unsigned":          "unsigned long",
	"int long unsigned":      "unsigned long",
	"long long":              "long long",
	"int long long":          "long long",
	"long long signed":       "long long",
	"int long long signed":   "long long",
	"long long unsigned":     "unsigned long long",
	"int long long unsigned": "unsigned long long",
	"double":                 "double",
	"double long":            "long double",
	"float":                  "float",
	"_Bool":                  "_Bool",
	"bool":                   "_Bool",
}

// parseCastTypeName assembles the typename portion of a recognised cast,
// returning the canonical name to resolve and the number of trailing
// pointer stars (e.g. `(struct Foo * *)` -> ("Foo", 2)).
func parseCastTypeName(inner []exprlex.Token) (name string, stars int) {
	for len(inner) > 0 && inner[len(inner)-1].Kind == exprlex.Star {
		stars++
		inner = inner[:len(inner)-1]
	}

	if len(inner) >= 1 && inner[0].Kind == exprlex.TypeSpecifier {
		// struct/union/enum Name
		if len(inner) >= 2 {
			return inner[1].Text, stars
		}
		return "", stars
	}

	var words []string
	for _, t := range inner {
		if t.Kind == exprlex.TypeQualifier {
			continue // qualifiers don't change which base_type DIE to resolve
		}
		words = append(words, t.Text)
	}
	if len(words) == 1 {
		return words[0], stars // a typedef'd name
	}
	if canon, ok := primitiveCombos[sortedJoin(words)]; ok {
		return canon, stars
	}
	return joinWords(words), stars
}

func sortedJoin(words []string) string {
	cp := append([]string(nil), words...)
	for i := 1; i < len(cp); i++ {
		for j := i; j > 0 && cp[j-1] > cp[j]; j-- {
			cp[j-1], cp[j] = cp[j], cp[j-1]
		}
	}
	return joinWords(cp)
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}
