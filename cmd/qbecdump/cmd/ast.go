package cmd

import (
	"fmt"
	"strings"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/spf13/cobra"
)

var astCmd = &cobra.Command{
	Use:   "ast",
	Short: "Print the smoke-test program's AST",
	Run: func(cmd *cobra.Command, args []string) {
		prog := sampleProgram()
		fmt.Println("main:")
		for _, s := range prog.Main {
			printStmt(s, 1)
		}
		for _, p := range prog.Procs {
			kind := "SUB"
			if p.IsFunction {
				kind = "FUNCTION"
			}
			fmt.Printf("%s %s:\n", kind, p.Name)
			for _, s := range p.Body {
				printStmt(s, 1)
			}
		}
	},
}

func printStmt(s ast.Stmt, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := s.(type) {
	case *ast.LetStmt:
		fmt.Printf("%sLET %s\n", indent, exprStr(n.Target))
	case *ast.DimStmt:
		fmt.Printf("%sDIM %s AS %s\n", indent, n.Name, n.Type.BaseName)
	case *ast.PrintStmt:
		fmt.Printf("%sPRINT %d arg(s)\n", indent, len(n.Args))
	case *ast.ForStmt:
		fmt.Printf("%sFOR %s\n", indent, n.Var)
		for _, b := range n.Body {
			printStmt(b, depth+1)
		}
	case *ast.IfStmt:
		fmt.Printf("%sIF\n", indent)
		for _, b := range n.Then {
			printStmt(b, depth+1)
		}
	case *ast.ReturnStmt:
		fmt.Printf("%sRETURN %s\n", indent, exprStr(n.Value))
	default:
		fmt.Printf("%s%T\n", indent, n)
	}
}

func exprStr(x ast.Expr) string {
	switch n := x.(type) {
	case nil:
		return "<none>"
	case *ast.Ident:
		return n.Name
	case *ast.IntLit:
		return fmt.Sprintf("%d", n.Val)
	case *ast.BinaryExpr:
		return fmt.Sprintf("(%s %s %s)", exprStr(n.X), n.Op, exprStr(n.Y))
	case *ast.CallExpr:
		return fmt.Sprintf("%s(...)", n.Callee)
	default:
		return fmt.Sprintf("%T", n)
	}
}
