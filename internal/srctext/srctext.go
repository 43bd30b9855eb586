// Package srctext is the Go-native replacement for spec.md §6's "build-time
// macro that captures ... the stringified argument list" (see
// SPEC_FULL.md §0). Go has no preprocessor, so instead of stringifying
// arguments at compile time, this package re-parses the call-site source
// line with go/parser the first time a given (file, line) is seen and
// caches the rendered source text of each `uprintf.Printf(...)` pointer
// argument, in order. That cached slice of strings is exactly spec.md's
// `args_string`, split at top-level commas, for component F to tokenize.
package srctext

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sync"
)

type cacheKey struct {
	file string
	line int
}

var (
	mu    sync.Mutex
	cache = map[cacheKey][]string{}
	files = map[string]*ast.File{}
	fset  = token.NewFileSet()
)

// ArgsAt returns the source text of every argument (after the format
// string) passed to the Printf call whose opening paren is on (file, line),
// memoized per call site so a call inside a loop only pays for one parse
// (spec.md §4.I "memoized on DIE address" is the DWARF analogue of this
// same idea applied to source text).
func ArgsAt(file string, line int) ([]string, error) {
	mu.Lock()
	defer mu.Unlock()

	key := cacheKey{file, line}
	if args, ok := cache[key]; ok {
		return args, nil
	}

	f, err := parsedFile(file)
	if err != nil {
		return nil, fmt.Errorf("srctext: %w", err)
	}

	call, err := findCallAtLine(f, line)
	if err != nil {
		return nil, err
	}

	var args []string
	// args[0] is the format string; every argument after it is one %S
	// pointer expression in source order (spec.md §6's args_string,
	// already split per-argument — no comma-splitting needed here since
	// go/ast already gave us distinct expression nodes).
	for _, a := range call.Args[1:] {
		var buf bytes.Buffer
		if err := printer.Fprint(&buf, fset, stripUnsafePointer(a)); err != nil {
			return nil, fmt.Errorf("srctext: rendering argument: %w", err)
		}
		args = append(args, buf.String())
	}

	cache[key] = args
	return args, nil
}

func parsedFile(file string) (*ast.File, error) {
	if f, ok := files[file]; ok {
		return f, nil
	}
	f, err := parser.ParseFile(fset, file, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	files[file] = f
	return f, nil
}

// findCallAtLine locates the call expression whose invoked function is
// named Printf (matching a plain call or a qualified uprintf.Printf one)
// starting on source line line.
func findCallAtLine(f *ast.File, line int) (*ast.CallExpr, error) {
	var found *ast.CallExpr
	ast.Inspect(f, func(n ast.Node) bool {
		if found != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if fset.Position(call.Pos()).Line != line {
			return true
		}
		if !isPrintfCall(call.Fun) {
			return true
		}
		found = call
		return false
	})
	if found == nil {
		return nil, fmt.Errorf("srctext: no Printf call found at line %d", line)
	}
	return found, nil
}

// stripUnsafePointer unwraps the unsafe.Pointer(...) conversion every
// Printf call site is forced to write by the ...unsafe.Pointer signature.
// spec.md §6's args_string carries the caller's own argument expression
// ("&x"), not the Go-specific conversion wrapping it — the C-expression
// recognizer downstream has no notion of an identifier named "unsafe".
// An argument that is not such a conversion (e.g. a variable that already
// holds an unsafe.Pointer) is rendered as written.
func stripUnsafePointer(e ast.Expr) ast.Expr {
	call, ok := e.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return e
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Pointer" {
		return e
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || pkg.Name != "unsafe" {
		return e
	}
	return call.Args[0]
}

func isPrintfCall(fun ast.Expr) bool {
	switch e := fun.(type) {
	case *ast.Ident:
		return e.Name == "Printf"
	case *ast.SelectorExpr:
		return e.Sel.Name == "Printf"
	default:
		return false
	}
}

// Reset clears the memoization cache; test-only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cache = map[cacheKey][]string{}
	files = map[string]*ast.File{}
	fset = token.NewFileSet()
}
