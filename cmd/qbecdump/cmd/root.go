// Package cmd implements the debug dump surface (spec §6): a small
// cobra command tree that prints intermediate compiler state — the AST,
// the resolved symbol table, the CFG, or the final IL — for inspection.
// It is tooling, not the compiler driver; compiler.Compile remains the
// library entry point real callers use.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	verbose bool
	format  string
)

var rootCmd = &cobra.Command{
	Use:   "qbecdump",
	Short: "Inspect intermediate state of the BASIC-to-QBE compiler core",
	Long: "qbecdump runs the compiler core's pipeline stages against a built-in\n" +
		"smoke-test program and prints the requested stage's intermediate\n" +
		"state. It has no front end of its own (spec's \"no lexer/parser\" " +
		"non-goal) — it exists for inspecting the core, not for compiling\n" +
		"real BASIC source files.",
}

// Execute runs the root command, exiting the process on error the way a
// standalone cobra-based tool is expected to.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format: text or json")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))

	viper.SetEnvPrefix("QBECDUMP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(astCmd, symbolsCmd, cfgCmd, ilCmd)
}

// dumpLogger returns a zap SugaredLogger at Debug level when -v/--verbose
// (or QBECDUMP_VERBOSE) is set, otherwise a silent one — the same default
// the library API itself uses (SPEC_FULL.md's ambient-stack logging
// note).
func dumpLogger() *zap.SugaredLogger {
	if !viper.GetBool("verbose") {
		return zap.NewNop().Sugar()
	}
	cfg := zap.NewDevelopmentConfig()
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}
