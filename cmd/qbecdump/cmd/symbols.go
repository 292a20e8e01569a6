package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/semantic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Run the semantic analyzer and print the resolved symbol table",
	Run: func(cmd *cobra.Command, args []string) {
		diags := diag.NewBag(dumpLogger())
		sym := semantic.New(diags, dumpLogger()).Analyze(sampleProgram())

		if viper.GetString("format") == "json" {
			enc, err := json.MarshalIndent(sym, "", "  ")
			if err != nil {
				fmt.Println("error:", err)
				return
			}
			fmt.Println(string(enc))
			return
		}

		var varKeys []string
		for k := range sym.Variables {
			varKeys = append(varKeys, k)
		}
		sort.Strings(varKeys)
		fmt.Println("variables:")
		for _, k := range varKeys {
			v := sym.Variables[k]
			fmt.Printf("  %s: %s\n", k, v.Type.QBEScalar())
		}

		var procKeys []string
		for k := range sym.Procedures {
			procKeys = append(procKeys, k)
		}
		sort.Strings(procKeys)
		fmt.Println("procedures:")
		for _, k := range procKeys {
			p := sym.Procedures[k]
			fmt.Printf("  %s (%d param(s), function=%v)\n", p.Name, len(p.Params), p.IsFunction)
		}

		if diags.HasErrors() {
			fmt.Println("diagnostics:")
			for _, d := range diags.All() {
				fmt.Printf("  %s\n", d.Error())
			}
		}
	},
}
