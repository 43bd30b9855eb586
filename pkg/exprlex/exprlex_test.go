package exprlex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		kinds []Kind
	}{
		{name: "bare identifier", expr: "p", kinds: []Kind{Ident}},
		{name: "address of", expr: "&p", kinds: []Kind{Amp, Ident}},
		{name: "member access", expr: "p.field", kinds: []Kind{Ident, Dot, Ident}},
		{name: "arrow access", expr: "p->field", kinds: []Kind{Ident, Arrow, Ident}},
		{name: "array index", expr: "arr[0]", kinds: []Kind{Ident, LBracket, Number, RBracket}},
		{name: "cast", expr: "(struct Foo*)x", kinds: []Kind{LParen, TypeSpecifier, Ident, Star, RParen, Ident}},
		{name: "qualifier", expr: "(const int*)x", kinds: []Kind{LParen, TypeQualifier, Ident, Star, RParen, Ident}},
		{name: "call", expr: "f(1,2)", kinds: []Kind{Ident, LParen, Number, Comma, Number, RParen}},
		{name: "string literal", expr: `"hi\n"`, kinds: []Kind{String}},
		{name: "leading dot number", expr: "x.5", kinds: []Kind{Ident, Number}},
		{name: "arrow then dot merge stays distinct", expr: "x->y.5", kinds: []Kind{Ident, Arrow, Ident, Number}},
		{name: "multi char before single char", expr: "a->b", kinds: []Kind{Ident, Arrow, Ident}},
		{name: "shift vs less-than", expr: "a<<b", kinds: []Kind{Ident, Shl, Ident}},
		{name: "compound assign not confused with assign", expr: "a+=b", kinds: []Kind{Ident, PlusEq, Ident}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			toks := Tokenize(tc.expr)
			assert.Equal(t, tc.kinds, kinds(toks))
		})
	}
}

func TestTokenizeStringEscapes(t *testing.T) {
	toks := Tokenize(`"a\tb"`)
	if assert.Len(t, toks, 1) {
		assert.Equal(t, "a\tb", toks[0].Text)
	}
}

func TestTokenizeLeadingDotMergesPriorDot(t *testing.T) {
	// "x." followed immediately by digits re-merges into one number token
	// that absorbs the preceding Dot (spec.md §4.F).
	toks := Tokenize("x.5")
	if assert.Len(t, toks, 2) {
		assert.Equal(t, Ident, toks[0].Kind)
		assert.Equal(t, Number, toks[1].Kind)
		assert.Equal(t, ".5", toks[1].Text)
	}
}

func TestSplitTopLevelArgs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "simple", in: "a, b, c", want: []string{"a", "b", "c"}},
		{name: "nested call", in: "f(a, b), c", want: []string{"f(a, b)", "c"}},
		{name: "nested brackets", in: "arr[a,b], x", want: []string{"arr[a,b]", "x"}},
		{name: "string with comma", in: `"a, b", c`, want: []string{`"a, b"`, "c"}},
		{name: "single", in: "&p", want: []string{"&p"}},
		{name: "empty", in: "", want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitTopLevelArgs(tc.in))
		})
	}
}
