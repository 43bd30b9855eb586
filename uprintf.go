// Package uprintf is component I of spec.md §4.I: process-start
// initialization (ELF load + DWARF ingest, once) and the per-call
// orchestration F -> G -> H that spec.md §2's control-flow paragraph
// describes, reframed onto Go's calling conventions as SPEC_FULL.md §0
// lays out (runtime.Caller instead of a `__FILE__`/`__LINE__` macro,
// internal/srctext instead of a stringified-argument-list macro).
package uprintf

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	"github.com/uprintf-go/uprintf/internal/srctext"
	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/dwarfranges"
	"github.com/uprintf-go/uprintf/pkg/elfimage"
	"github.com/uprintf-go/uprintf/pkg/exprtype"
	"github.com/uprintf-go/uprintf/pkg/printer"
	"github.com/uprintf-go/uprintf/pkg/procmaps"
	"github.com/uprintf-go/uprintf/pkg/ulog"
	"github.com/uprintf-go/uprintf/pkg/uprintfstate"
)

// entryFuncName is the symbol Ingest watches for during DIE traversal
// (spec.md §4.D "Recognising the function _upf_uprintf itself") — here,
// this package's own exported entry point, under the full name the Go
// compiler records in its DW_LANG_Go compile unit's subprogram DIE.
const entryFuncName = "github.com/uprintf-go/uprintf.Printf"

// Config is SPEC_FULL.md §1's functional-option wrapper around printer.Config.
type Config = printer.Config
type Option = printer.Option

var (
	WithIndentWidth       = printer.WithIndentWidth
	WithMaxDepth          = printer.WithMaxDepth
	WithIgnoreFilePtr     = printer.WithIgnoreFilePtr
	WithArrayRunThreshold = printer.WithArrayRunThreshold
	WithMaxStringLen      = printer.WithMaxStringLen
)

// session is the process-global state built once by Init (spec.md §5:
// "Type Catalogue, Scope Tree, Function Table are built once at process
// start ... and never mutated afterwards").
type session struct {
	img     *elfimage.Image
	sess    *dwarf.Session
	resolve *exprtype.Resolver
	self    string // readlink("/proc/self/exe") target, for LoadBase matching
}

var (
	initOnce  sync.Once
	initErr   error
	globalSes *session
	cfg       = printer.DefaultConfig()
	cfgMu     sync.Mutex
)

// Configure applies opts to the process-wide printer configuration;
// intended to be called once at program start, before the first Printf.
func Configure(opts ...Option) {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	for _, o := range opts {
		o(&cfg)
	}
}

// Init performs spec.md §4.I's once-per-process setup: verifying
// /proc/self/{exe,maps} are readable, mmapping the binary, and ingesting
// its DWARF. It is safe to call explicitly (e.g. from a CLI's doctor
// subcommand to surface errors early) or to leave to the first Printf
// call, which calls it lazily.
func Init() error {
	initOnce.Do(func() {
		globalSes, initErr = initSession()
	})
	return initErr
}

func initSession() (*session, error) {
	self, err := procmaps.SelfTarget()
	if err != nil {
		return nil, fmt.Errorf("uprintf: %w", err)
	}
	if _, err := procmaps.Read(); err != nil {
		return nil, fmt.Errorf("uprintf: %w", err)
	}

	img, err := elfimage.Load("/proc/self/exe")
	if err != nil {
		return nil, fmt.Errorf("uprintf: %w", err)
	}

	dsess, err := dwarf.Ingest(img, entryFuncName)
	if err != nil {
		_ = img.Close()
		return nil, fmt.Errorf("uprintf: %w", err)
	}

	return &session{
		img:     img,
		sess:    dsess,
		resolve: exprtype.NewResolver(dsess),
		self:    self,
	}, nil
}

// Teardown releases the mapped binary (spec.md §4.I). Tests and short-lived
// tools may call this; a long-running process normally never does, since
// the OS reclaims the mapping at exit anyway.
func Teardown() error {
	if globalSes == nil {
		return nil
	}
	err := globalSes.img.Close()
	globalSes = nil
	initOnce = sync.Once{}
	return err
}

// Printf is the Go-native `uprintf(format, ...pointers)` of spec.md §1:
// %S consumes one unsafe.Pointer and prints its pointee as a structured,
// typed dump; %% emits a literal %; any other %<letter> or a trailing
// unfinished % is a fatal error for this call (spec.md §4.I, §7).
func Printf(format string, ptrs ...unsafe.Pointer) {
	if err := Init(); err != nil {
		fatal(format, 0, err)
		return
	}

	pc, file, line, ok := runtime.Caller(1)
	if !ok {
		fatal(format, 0, fmt.Errorf("uprintf: could not recover caller PC"))
		return
	}

	args, err := srctext.ArgsAt(file, line)
	if err != nil {
		fatal(format, line, err)
		return
	}
	if len(args) != len(ptrs) {
		fatal(format, line, fmt.Errorf("uprintf: %d argument expression(s) parsed but %d pointer(s) passed", len(args), len(ptrs)))
		return
	}

	resolvedPC := resolvePC(uint64(pc))

	mem := &printer.ProcessMemory{}
	rangesTable, err := procmaps.Read()
	if err != nil {
		fatal(format, line, fmt.Errorf("uprintf: %w", err))
		return
	}
	mem.Ranges = rangesTable

	cfgMu.Lock()
	localCfg := cfg
	cfgMu.Unlock()

	p := printer.New(globalSes.sess.Catalogue, mem, localCfg, makeFunctionLookup())

	var out strings.Builder
	argIdx := 0
	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(format) {
			fatal(format, line, fmt.Errorf("uprintf: trailing unfinished %%"))
			return
		}
		spec := format[i+1]
		switch spec {
		case '%':
			out.WriteByte('%')
		case 'S':
			if argIdx >= len(args) {
				fatal(format, line, fmt.Errorf("uprintf: more %%S specifiers than arguments"))
				return
			}
			text := args[argIdx]
			ptr := ptrs[argIdx]
			argIdx++

			ref, err := globalSes.resolve.ResolveText(resolvedPC, text)
			if err != nil {
				fatal(format, line, fmt.Errorf("uprintf: %s:%d: unable to find type of %s: %w", file, line, text, err))
				return
			}
			rendered, err := p.Print(uint64(uintptr(ptr)), ref)
			if err != nil {
				fatal(format, line, err)
				return
			}
			out.WriteString(rendered)
		default:
			fatal(format, line, fmt.Errorf("uprintf: unknown format specifier %%%c", spec))
			return
		}
		i += 2
	}

	if argIdx != len(args) {
		fatal(format, line, fmt.Errorf("uprintf: %d argument(s) passed but only %d %%S specifier(s) in format", len(args), argIdx))
		return
	}

	fmt.Fprint(os.Stdout, out.String())
}

// resolvePC implements spec.md §9's PC-base discovery: the first call
// decides whether return addresses are absolute or load-base-relative by
// checking whether the observed pc already falls inside this package's own
// recorded entry-function range.
func resolvePC(pc uint64) uint64 {
	if !uprintfstate.Resolved() {
		if containsPC(globalSes.sess.EntryFuncRanges, pc) {
			uprintfstate.Resolve(0)
		} else if base, ok := loadBase(); ok {
			uprintfstate.Resolve(base)
		} else {
			uprintfstate.Resolve(0)
		}
	}
	return pc - uprintfstate.Delta()
}

func loadBase() (uint64, bool) {
	t, err := procmaps.Read()
	if err != nil {
		return 0, false
	}
	return t.LoadBase(globalSes.self)
}

func containsPC(ranges []dwarfranges.PCRange, pc uint64) bool {
	for _, r := range ranges {
		if pc >= r.Start && pc < r.End {
			return true
		}
	}
	return false
}

func fatal(format string, line int, err error) {
	ulog.Error("%v", err)
}

func makeFunctionLookup() printer.FunctionLookup {
	return func(addr uint64) (string, bool) {
		if globalSes == nil {
			return "", false
		}
		pc := addr - uprintfstate.Delta()
		for _, cu := range globalSes.sess.CUs {
			for _, fn := range cu.Functions {
				if !fn.HasPC || pc < fn.EntryPC || pc >= fn.HighPC {
					continue
				}
				return functionSignature(cu, fn), true
			}
		}
		return "", false
	}
}

func functionSignature(cu *dwarf.CompileUnit, fn *dwarf.FunctionInfo) string {
	cat := globalSes.sess.Catalogue
	ret := "void"
	if fn.Return != dwarf.InvalidRef {
		if r, err := cu.ParseType(cat, uint64(fn.Return)); err == nil {
			if t := cat.Get(r); t != nil {
				ret = t.String(cat)
			}
		}
	}
	params := make([]string, 0, len(fn.Params))
	for _, prm := range fn.Params {
		if prm.Type == dwarf.InvalidRef {
			continue
		}
		if r, err := cu.ParseType(cat, uint64(prm.Type)); err == nil {
			if t := cat.Get(r); t != nil {
				params = append(params, t.String(cat))
			}
		}
	}
	return fmt.Sprintf("%s %s(%s)", ret, fn.Name, strings.Join(params, ", "))
}
