// Package uprintfgo is the ambient CLI SPEC_FULL.md §1 adds around the
// uprintf core: a cobra/viper command tree in the same shape as the
// teacher's cmd/root.go (home-dir YAML config, AutomaticEnv, a --config
// flag), giving DWARF-catalogue inspection (`types`), debug-section
// sanity checks (`doctor`) and an interactive expression explorer
// (`explore`) onto the same Type Catalogue / Scope Tree / Function Table
// components/printer dump uses at runtime.
package uprintfgo

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd is the base `uprintfgo` command.
var RootCmd = &cobra.Command{
	Use:   "uprintfgo",
	Short: "DWARF-driven structural value printer toolkit",
	Long: `uprintfgo reads a C-shaped ELF/DWARF v5 binary's own debug
information to print values whose type the caller never names at the
call site. This CLI inspects the same Type Catalogue, Scope Tree and
Function Table the library builds at process start: list recovered
types, sanity-check a binary's debug sections, or explore expressions
interactively against a binary's static type information.`,
}

// Execute runs the root command; called once from main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.uprintfgo.yaml)")
	RootCmd.AddCommand(typesCmd, doctorCmd, exploreCmd, dumpCmd)
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".uprintfgo")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
