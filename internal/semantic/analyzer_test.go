package semantic

import (
	"testing"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intSpec() *ast.TypeSpec  { return &ast.TypeSpec{BaseName: "INTEGER"} }
func strSpec() *ast.TypeSpec  { return &ast.TypeSpec{BaseName: "STRING"} }

func newAnalyzer() (*Analyzer, *diag.Bag) {
	bag := diag.NewBag(nil)
	return New(bag, nil), bag
}

// Factorial-shaped program (spec §8 scenario 1): FUNCTION F(N) must
// type-check with no diagnostics, F's return variable is declared, and
// N is visible as a local inside F.
func TestAnalyze_RecursiveFunctionSignature(t *testing.T) {
	a, bag := newAnalyzer()
	fn := &ast.ProcDecl{
		Name:       "F",
		IsFunction: true,
		RetType:    intSpec(),
		Params:     []ast.ParamSpec{{Name: "N", Type: intSpec()}},
		Body: []ast.Stmt{
			&ast.IfStmt{
				Cond:       &ast.BinaryExpr{Op: "<=", X: &ast.Ident{Name: "N"}, Y: &ast.IntLit{Val: 1}},
				SingleLine: true,
				Then:       []ast.Stmt{&ast.ReturnStmt{Value: &ast.IntLit{Val: 1}}},
			},
			&ast.ReturnStmt{Value: &ast.BinaryExpr{
				Op: "*",
				X:  &ast.Ident{Name: "N"},
				Y:  &ast.CallExpr{Callee: "F", Args: []ast.Expr{&ast.BinaryExpr{Op: "-", X: &ast.Ident{Name: "N"}, Y: &ast.IntLit{Val: 1}}}},
			}},
		},
	}
	prog := &ast.Program{
		Procs: []*ast.ProcDecl{fn},
		Main:  []ast.Stmt{&ast.CallStmt{Call: &ast.CallExpr{Callee: "F", Args: []ast.Expr{&ast.IntLit{Val: 5}}}}},
	}

	sym := a.Analyze(prog)
	require.False(t, bag.HasErrors(), "%v", bag.All())

	v, ok := sym.LookupVariable(symtab.FuncScope("F"), "N")
	require.True(t, ok, "parameter N must be visible as a variable in F's scope")
	assert.Equal(t, typesys.INTEGER, v.Type.Base)

	retVar, ok := sym.LookupVariable(symtab.FuncScope("F"), "F")
	require.True(t, ok, "function's own name must be a variable in its own scope")
	assert.Equal(t, typesys.INTEGER, retVar.Type.Base)
}

func TestAnalyze_UndefinedIdentifierIsError(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.LetStmt{Target: &ast.Ident{Name: "X"}, Value: &ast.Ident{Name: "Y"}},
		},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_DimDeclaredBeforeUse(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.DimStmt{Name: "X", Type: intSpec()},
			&ast.LetStmt{Target: &ast.Ident{Name: "X"}, Value: &ast.IntLit{Val: 5}},
		},
	}
	_ = a.Analyze(prog)
	assert.False(t, bag.HasErrors(), "%v", bag.All())
}

func TestAnalyze_TypeMismatchOnAssignment(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.DimStmt{Name: "X", Type: intSpec()},
			&ast.LetStmt{Target: &ast.Ident{Name: "X"}, Value: &ast.StringLit{Val: "hi"}},
		},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_LossyNarrowingWarnsNotErrors(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.DimStmt{Name: "L", Type: &ast.TypeSpec{BaseName: "LONG"}},
			&ast.DimStmt{Name: "I", Type: intSpec()},
			&ast.LetStmt{Target: &ast.Ident{Name: "I"}, Value: &ast.Ident{Name: "L"}},
		},
	}
	_ = a.Analyze(prog)
	require.False(t, bag.HasErrors())
	found := false
	for _, d := range bag.All() {
		if d.Severity == diag.Warning {
			found = true
		}
	}
	assert.True(t, found, "narrowing LONG->INTEGER must warn")
}

func TestAnalyze_DuplicateRecordDeclarationErrors(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.TypeDeclStmt{Name: "Point", Fields: []ast.FieldSpec{{Name: "X", Type: intSpec()}}},
			&ast.TypeDeclStmt{Name: "Point", Fields: []ast.FieldSpec{{Name: "Y", Type: intSpec()}}},
		},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_MemberAccessResolvesFieldType(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.TypeDeclStmt{Name: "Point", Fields: []ast.FieldSpec{
				{Name: "X", Type: intSpec()},
				{Name: "Name", Type: strSpec()},
			}},
			&ast.DimStmt{Name: "P", Type: &ast.TypeSpec{BaseName: "Point"}},
			&ast.LetStmt{
				Target: &ast.MemberAccess{X: &ast.Ident{Name: "P"}, Field: "Name"},
				Value:  &ast.StringLit{Val: "origin"},
			},
		},
	}
	_ = a.Analyze(prog)
	assert.False(t, bag.HasErrors(), "%v", bag.All())
}

func TestAnalyze_UnknownFieldErrors(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.TypeDeclStmt{Name: "Point", Fields: []ast.FieldSpec{{Name: "X", Type: intSpec()}}},
			&ast.DimStmt{Name: "P", Type: &ast.TypeSpec{BaseName: "Point"}},
			&ast.LetStmt{Target: &ast.MemberAccess{X: &ast.Ident{Name: "P"}, Field: "Z"}, Value: &ast.IntLit{Val: 1}},
		},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_WrongArgCountErrors(t *testing.T) {
	a, bag := newAnalyzer()
	fn := &ast.ProcDecl{Name: "Add", IsFunction: true, RetType: intSpec(), Params: []ast.ParamSpec{{Name: "A", Type: intSpec()}, {Name: "B", Type: intSpec()}},
		Body: []ast.Stmt{&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "+", X: &ast.Ident{Name: "A"}, Y: &ast.Ident{Name: "B"}}}}}
	prog := &ast.Program{
		Procs: []*ast.ProcDecl{fn},
		Main:  []ast.Stmt{&ast.CallStmt{Call: &ast.CallExpr{Callee: "Add", Args: []ast.Expr{&ast.IntLit{Val: 1}}}}},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_BuiltinCallsTypeCheckWithoutProcedureDeclaration(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.DimStmt{Name: "S", Type: strSpec()},
			&ast.LetStmt{Target: &ast.Ident{Name: "S"}, Value: &ast.StringLit{Val: "hello"}},
			&ast.DimStmt{Name: "N", Type: intSpec()},
			&ast.LetStmt{Target: &ast.Ident{Name: "N"}, Value: &ast.CallExpr{Callee: "LEN", Args: []ast.Expr{&ast.Ident{Name: "S"}}}},
			&ast.PrintStmt{Args: []ast.Expr{
				&ast.CallExpr{Callee: "MID$", Args: []ast.Expr{&ast.Ident{Name: "S"}, &ast.IntLit{Val: 1}, &ast.IntLit{Val: 2}}},
				&ast.CallExpr{Callee: "ERR"},
			}},
		},
	}
	_ = a.Analyze(prog)
	assert.False(t, bag.HasErrors(), "%v", bag.All())
}

func TestAnalyze_UnknownCallIsStillAnError(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.CallStmt{Call: &ast.CallExpr{Callee: "NOT_A_BUILTIN_OR_PROC"}},
		},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_GotoUndefinedTargetErrors(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{&ast.GotoStmt{Target: "100"}},
	}
	_ = a.Analyze(prog)
	require.True(t, bag.HasErrors())
}

func TestAnalyze_GotoDefinedTargetOK(t *testing.T) {
	a, bag := newAnalyzer()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.GotoStmt{Target: "100"},
			&ast.LabelStmt{Name: "100", Line: 100},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "hi"}}},
		},
	}
	_ = a.Analyze(prog)
	assert.False(t, bag.HasErrors(), "%v", bag.All())
}

func TestAnalyze_GlobalsAndLocalsDoNotShadowIncorrectly(t *testing.T) {
	a, bag := newAnalyzer()
	fn := &ast.ProcDecl{Name: "F", Body: []ast.Stmt{
		&ast.DimStmt{Name: "X", Type: strSpec()},
		&ast.LetStmt{Target: &ast.Ident{Name: "X"}, Value: &ast.StringLit{Val: "local"}},
	}}
	prog := &ast.Program{
		Procs: []*ast.ProcDecl{fn},
		Main: []ast.Stmt{
			&ast.GlobalStmt{Name: "X", Type: intSpec()},
			&ast.LetStmt{Target: &ast.Ident{Name: "X"}, Value: &ast.IntLit{Val: 1}},
		},
	}
	sym := a.Analyze(prog)
	require.False(t, bag.HasErrors(), "%v", bag.All())
	g, ok := sym.LookupVariable(symtab.GlobalScope, "X")
	require.True(t, ok)
	assert.Equal(t, typesys.INTEGER, g.Type.Base)
	l, ok := sym.LookupVariable(symtab.FuncScope("F"), "X")
	require.True(t, ok)
	assert.Equal(t, typesys.STRING, l.Type.Base)
}
