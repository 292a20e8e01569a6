package emit

import (
	"strings"
	"testing"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/cfg"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIL runs the CFG Builder then the Emitter over prog against a
// symbol table the caller has already populated (as the Semantic
// Analyzer would have), the same split TestBuildIf_* in internal/cfg
// uses to exercise the builder without a full analyzer pass.
func buildIL(t *testing.T, sym *symtab.Table, prog *ast.Program) (string, *diag.Bag) {
	t.Helper()
	diags := diag.NewBag(nil)
	pc := cfg.NewBuilder(sym, diags).BuildProgram(prog)
	require.False(t, diags.HasErrors())
	il, err := New(sym, diags, nil).Emit(pc, nil)
	require.NoError(t, err)
	return il, diags
}

func TestEmit_LetAndPrint_EmitsRuntimeCalls(t *testing.T) {
	sym := symtab.New()
	_, err := sym.DeclareVariable(symtab.MainScope, "X", typesys.New(typesys.INTEGER))
	require.NoError(t, err)

	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.LetStmt{Target: &ast.Ident{Name: "X"}, Value: &ast.IntLit{Val: 42}},
			&ast.PrintStmt{Args: []ast.Expr{&ast.Ident{Name: "X"}}},
		},
	}
	il, _ := buildIL(t, sym, prog)

	assert.Contains(t, il, "export function w $main()")
	assert.Contains(t, il, "call $basic_runtime_init()")
	assert.Contains(t, il, "call $basic_main()")
	assert.Contains(t, il, "call $basic_print_int")
	assert.Contains(t, il, "storew 42")
}

func TestEmit_StringLet_ReleasesOldValue(t *testing.T) {
	sym := symtab.New()
	_, err := sym.DeclareVariable(symtab.MainScope, "S", typesys.New(typesys.STRING))
	require.NoError(t, err)

	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.LetStmt{Target: &ast.Ident{Name: "S"}, Value: &ast.StringLit{Val: "hi"}},
		},
	}
	il, _ := buildIL(t, sym, prog)

	assert.Contains(t, il, `data $str_0 = align 8 { b "hi", b 0 }`)
	assert.Contains(t, il, "call $string_release")
}

func TestEmit_StringLiteralAssignment_ConstructsDescriptor(t *testing.T) {
	sym := symtab.New()
	_, err := sym.DeclareVariable(symtab.MainScope, "S", typesys.New(typesys.STRING))
	require.NoError(t, err)

	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.LetStmt{Target: &ast.Ident{Name: "S"}, Value: &ast.StringLit{Val: "hi"}},
			&ast.PrintStmt{Args: []ast.Expr{&ast.Ident{Name: "S"}}},
		},
	}
	il, _ := buildIL(t, sym, prog)

	assert.Contains(t, il, "call $string_new_utf8(l $str_0)")
	// A literal is a freshly constructed descriptor: no retain needed on
	// the new value, only a release of S's prior (uninitialized) one.
	assert.Equal(t, 1, strings.Count(il, "call $string_release"))
	assert.Equal(t, 0, strings.Count(il, "call $string_retain"))
	assert.Contains(t, il, "call $basic_print_string_desc")
}

func TestEmit_StringVariableAssignment_RetainsAliasedValue(t *testing.T) {
	sym := symtab.New()
	strT := typesys.New(typesys.STRING)
	_, err := sym.DeclareVariable(symtab.MainScope, "A", strT)
	require.NoError(t, err)
	_, err = sym.DeclareVariable(symtab.MainScope, "B", strT)
	require.NoError(t, err)

	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.LetStmt{Target: &ast.Ident{Name: "B"}, Value: &ast.Ident{Name: "A"}},
		},
	}
	il, _ := buildIL(t, sym, prog)

	// B = A aliases A's live descriptor: the new value must be retained,
	// not just stored, to keep the refcount balanced once A is reassigned.
	assert.Contains(t, il, "call $string_retain")
}

func TestEmit_Function_ReturnsStoredValue(t *testing.T) {
	sym := symtab.New()
	scope := symtab.FuncScope("Double")
	intT := typesys.New(typesys.INTEGER)
	_, err := sym.DeclareVariable(scope, "n", intT)
	require.NoError(t, err)
	_, err = sym.DeclareVariable(scope, "Double", intT)
	require.NoError(t, err)
	require.NoError(t, sym.DeclareProcedure(&symtab.ProcSymbol{
		Name:       "Double",
		IsFunction: true,
		RetType:    intT,
		Params:     []symtab.ParamInfo{{Name: "n", Type: intT}},
	}))

	prog := &ast.Program{
		Procs: []*ast.ProcDecl{{
			Name:       "Double",
			IsFunction: true,
			Params:     []ast.ParamSpec{{Name: "n", Type: &ast.TypeSpec{BaseName: "INTEGER"}}},
			Body: []ast.Stmt{
				&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "*", X: &ast.Ident{Name: "n"}, Y: &ast.IntLit{Val: 2}}},
			},
		}},
	}
	il, _ := buildIL(t, sym, prog)

	assert.Contains(t, il, "function w $Double(w %n)")
	assert.True(t, strings.Contains(il, "mul"))
	assert.Contains(t, il, "ret %")
}

func TestCmpMnemonic_SignedVsUnsignedVsFloat(t *testing.T) {
	signedInt := typesys.New(typesys.INTEGER)
	unsignedInt := typesys.New(typesys.INTEGER).WithAttr(typesys.AttrUnsigned)
	double := typesys.New(typesys.DOUBLE)

	assert.Equal(t, "csltw", cmpMnemonic("<", signedInt))
	assert.Equal(t, "cultw", cmpMnemonic("<", unsignedInt))
	assert.Equal(t, "cltd", cmpMnemonic("<", double))
	assert.Equal(t, "ceqw", cmpMnemonic("=", signedInt))
	assert.Equal(t, "cned", cmpMnemonic("<>", double))
}

func TestEmit_OnGosub_PushesReturnID(t *testing.T) {
	sym := symtab.New()
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.OnGotoStmt{Selector: &ast.IntLit{Val: 1}, Targets: []string{"10"}, IsGosub: true},
			&ast.LabelStmt{Name: "10", Line: 10},
			&ast.ReturnStmt{},
		},
	}
	il, diags := buildIL(t, sym, prog)
	require.False(t, diags.HasErrors())
	assert.Contains(t, il, "$gosub_return_sp")
	assert.Contains(t, il, "$gosub_return_stack")
}
