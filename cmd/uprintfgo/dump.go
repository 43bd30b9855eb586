package uprintfgo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <binary> <typename>",
	Short: "Print the static shape of a named type (members, enumerators, size) without a live value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, sess, err := loadTarget(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		name := args[1]
		for _, cu := range sess.CUs {
			off, ok := cu.NamedTypes[name]
			if !ok {
				continue
			}
			ref, err := cu.ParseType(sess.Catalogue, off)
			if err != nil {
				return fmt.Errorf("uprintfgo: %w", err)
			}
			printShape(sess.Catalogue, ref, 0)
			return nil
		}
		return fmt.Errorf("uprintfgo: no type named %q found in any compile unit", name)
	},
}

func printShape(cat *dwarf.Catalogue, ref dwarf.TypeRef, indent int) {
	t := cat.Get(ref)
	if t == nil {
		fmt.Println("void")
		return
	}
	pad := func(n int) string {
		s := ""
		for i := 0; i < n; i++ {
			s += "  "
		}
		return s
	}

	fmt.Printf("%s%s (size=%d)\n", pad(indent), t.String(cat), t.Size)
	switch t.Kind {
	case dwarf.KindStruct, dwarf.KindUnion:
		for _, m := range t.Members {
			if m.IsBitField() {
				fmt.Printf("%s  %s : %d bits @ bit %d\n", pad(indent), m.Name, m.BitSize, m.BitOffset)
				continue
			}
			mt := cat.Get(m.Type)
			decl := "void"
			if mt != nil {
				decl = mt.String(cat)
			}
			fmt.Printf("%s  %s %s @ offset %d\n", pad(indent), decl, m.Name, m.ByteOffset)
		}
	case dwarf.KindEnum:
		for _, e := range t.Enumerators {
			fmt.Printf("%s  %s = %d\n", pad(indent), e.Name, e.Value)
		}
	case dwarf.KindArray:
		fmt.Printf("%s  dimensions: %v\n", pad(indent), t.Array.Dimensions)
	}
}
