package uprintfgo

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/utils"
)

var typesFormat string

var typesCmd = &cobra.Command{
	Use:   "types <binary>",
	Short: "List the Type Catalogue recovered from a binary's DWARF v5 debug info",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, sess, err := loadTarget(args[0])
		if err != nil {
			return err
		}
		defer img.Close()

		entries := catalogueEntries(sess.Catalogue)

		if typesFormat == "yaml" {
			enc := yaml.NewEncoder(os.Stdout)
			defer enc.Close()
			return enc.Encode(entries)
		}

		for _, e := range entries {
			fmt.Printf("%s %s\n", color.CyanString("#%d", e.Index), e.Rendered)
		}
		return nil
	},
}

func init() {
	typesCmd.Flags().StringVar(&typesFormat, "format", "text", "output format: text or yaml")
}

// typeEntry is the yaml-serializable projection of one Type Catalogue slot
// (SPEC_FULL.md §1: "uprintfgo types --format yaml: Type Catalogue export").
type typeEntry struct {
	Index    int    `yaml:"index"`
	Kind     string `yaml:"kind"`
	Rendered string `yaml:"rendered"`
	Size     int64  `yaml:"size"`
}

func catalogueEntries(cat *dwarf.Catalogue) []typeEntry {
	return utils.Map(utils.Indices(cat.Len()), func(i int) typeEntry {
		t := cat.Get(dwarf.TypeRef(i))
		return typeEntry{
			Index:    i,
			Kind:     t.Kind.String(),
			Rendered: t.String(cat),
			Size:     t.Size,
		}
	})
}
