package uprintfgo

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/exprlex"
	"github.com/uprintf-go/uprintf/pkg/exprtype"
)

var explorePC uint64

// exploreCmd is an interactive front end onto components F/G (the
// tokenizer and expression recognizer/type inferencer), grounded in the
// teacher's pkg/hw/cpu/debugger package: the same readline-driven
// "type an expression, see what the system makes of it" loop, here
// pointed at a type question instead of a register/memory evaluation
// question. It never dereferences memory (there is no live target
// process to read), so it stops at printing the inferred static type.
var exploreCmd = &cobra.Command{
	Use:   "explore <binary>",
	Short: "Interactively type %S-style expressions and see the inferred static type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, sess, err := loadTarget(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		resolver := exprtype.NewResolver(sess)
		pc := explorePC
		if pc == 0 {
			pc = firstKnownPC(sess)
		}

		rl, err := readline.New(color.GreenString("uprintfgo> "))
		if err != nil {
			return fmt.Errorf("uprintfgo: %w", err)
		}
		defer rl.Close()

		for {
			line, err := rl.Readline()
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			if err != nil {
				return err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			// a line holds one or more expressions, split at top-level
			// commas the way a C macro's stringified argument list is split
			exprs := exprlex.SplitTopLevelArgs(line)
			for _, expr := range exprs {
				ref, err := resolver.ResolveText(pc, expr)
				if err != nil {
					color.Red("error: %v", err)
					continue
				}
				rendered := "void"
				if t := sess.Catalogue.Get(ref); t != nil {
					rendered = t.String(sess.Catalogue)
				}
				if len(exprs) > 1 {
					fmt.Printf("%s: %s\n", expr, rendered)
				} else {
					fmt.Println(rendered)
				}
			}
		}
	},
}

func init() {
	exploreCmd.Flags().Uint64Var(&explorePC, "pc", 0, "PC to resolve scope against (defaults to the first function found)")
}

func firstKnownPC(sess *dwarf.Session) uint64 {
	for _, cu := range sess.CUs {
		for _, fn := range cu.Functions {
			if fn.HasPC {
				return fn.EntryPC
			}
		}
		if cu.ScopeRoot != nil && len(cu.ScopeRoot.Ranges) > 0 {
			return cu.ScopeRoot.Ranges[0].Start
		}
	}
	return 0
}
