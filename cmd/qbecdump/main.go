// Command qbecdump is the debug dump surface from spec §6: a small CLI
// for inspecting the compiler core's intermediate state. It is not a
// BASIC compiler driver — the lexer/parser/runtime it would need for
// that are explicitly out of scope.
package main

import "github.com/albanread/fbcqbe/cmd/qbecdump/cmd"

func main() {
	cmd.Execute()
}
