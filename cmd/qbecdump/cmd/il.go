package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/albanread/fbcqbe/compiler"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ilCmd = &cobra.Command{
	Use:   "il",
	Short: "Run the full pipeline and print the smoke-test program's QBE IL",
	Run: func(cmd *cobra.Command, args []string) {
		res, err := compiler.Compile(sampleProgram(), compiler.Options{Log: dumpLogger()})
		if err != nil {
			fmt.Println("compile error:", err)
			for _, d := range res.Diags {
				fmt.Println(" ", d.Error())
			}
			return
		}

		if viper.GetString("format") == "json" {
			enc, _ := json.MarshalIndent(map[string]string{"il": res.IL}, "", "  ")
			fmt.Println(string(enc))
			return
		}
		fmt.Print(res.IL)
	},
}
