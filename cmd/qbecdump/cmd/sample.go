package cmd

import "github.com/albanread/fbcqbe/internal/ast"

// sampleProgram builds a small but illustrative program tree in place of
// a real front end. The lexer/parser that would normally hand this
// package an *ast.Program is out of scope (spec §1's "no front end"
// non-goal), so the dump surface exercises the pipeline against this
// fixed smoke-test tree instead of reading BASIC source from disk.
//
//	DIM total AS INTEGER
//	total = 0
//	FOR i = 1 TO 10
//	    total = total + i
//	NEXT i
//	PRINT total
//	PRINT Double(total)
//
//	FUNCTION Double(n AS INTEGER) AS INTEGER
//	    RETURN n * 2
//	END FUNCTION
func sampleProgram() *ast.Program {
	intType := &ast.TypeSpec{BaseName: "INTEGER"}

	main := []ast.Stmt{
		&ast.DimStmt{Name: "total", Type: intType},
		&ast.LetStmt{Target: &ast.Ident{Name: "total"}, Value: &ast.IntLit{Val: 0}},
		&ast.ForStmt{
			Var:   "i",
			Start: &ast.IntLit{Val: 1},
			Stop:  &ast.IntLit{Val: 10},
			Body: []ast.Stmt{
				&ast.LetStmt{
					Target: &ast.Ident{Name: "total"},
					Value: &ast.BinaryExpr{
						Op: "+",
						X:  &ast.Ident{Name: "total"},
						Y:  &ast.Ident{Name: "i"},
					},
				},
			},
		},
		&ast.PrintStmt{Args: []ast.Expr{&ast.Ident{Name: "total"}}},
		&ast.PrintStmt{Args: []ast.Expr{&ast.CallExpr{Callee: "Double", Args: []ast.Expr{&ast.Ident{Name: "total"}}}}},
	}

	double := &ast.ProcDecl{
		Name:       "Double",
		IsFunction: true,
		RetType:    intType,
		Params:     []ast.ParamSpec{{Name: "n", Type: intType}},
		Body: []ast.Stmt{
			&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "*", X: &ast.Ident{Name: "n"}, Y: &ast.IntLit{Val: 2}}},
		},
	}

	return &ast.Program{Main: main, Procs: []*ast.ProcDecl{double}}
}
