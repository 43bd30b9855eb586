package uprintfgo

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor <binary>",
	Short: "Sanity-check a binary's ELF/DWARF v5 debug sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, sess, err := loadTarget(args[0])
		if err != nil {
			color.Red("FAIL: %v", err)
			return err
		}
		defer img.Close()

		color.Green("OK: ELF64/x86-64 with required debug sections present")
		fmt.Printf("compile units: %d\n", len(sess.CUs))

		cUnits := 0
		for _, cu := range sess.CUs {
			if cu.ScopeRoot != nil {
				cUnits++
			}
		}
		fmt.Printf("C-flavored compile units ingested: %d\n", cUnits)
		if cUnits == 0 {
			color.Yellow("WARN: no C-flavored compile unit found (spec.md §1 Non-goals excludes non-C DW_AT_language units) -- uprintf.Printf will never resolve a type against this binary")
		}
		return nil
	},
}
