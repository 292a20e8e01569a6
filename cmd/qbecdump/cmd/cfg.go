package cmd

import (
	"fmt"

	qcfg "github.com/albanread/fbcqbe/internal/cfg"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/semantic"
	"github.com/spf13/cobra"
)

var cfgCmd = &cobra.Command{
	Use:   "cfg",
	Short: "Build the smoke-test program's control-flow graphs and print their blocks",
	Run: func(cmd *cobra.Command, args []string) {
		prog := sampleProgram()
		diags := diag.NewBag(dumpLogger())
		sym := semantic.New(diags, dumpLogger()).Analyze(prog)
		if diags.HasErrors() {
			printDiags(diags)
			return
		}
		pc := qcfg.NewBuilder(sym, diags).BuildProgram(prog)

		fmt.Println("main:")
		dumpCFG(pc.Main)
		for name, g := range pc.Procs {
			fmt.Printf("%s:\n", name)
			dumpCFG(g)
		}
		if diags.HasErrors() {
			printDiags(diags)
		}
	},
}

func dumpCFG(g *qcfg.CFG) {
	for _, b := range g.Blocks {
		fmt.Printf("  %s (%d stmt(s))\n", b.ID, len(b.Stmts))
		for _, e := range b.Out {
			fmt.Printf("    -%s-> %s\n", e.Kind, e.To)
		}
	}
}

func printDiags(diags *diag.Bag) {
	for _, d := range diags.All() {
		fmt.Println(d.Error())
	}
}
