package cfg

import (
	"testing"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countEdgeKind(blocks []*BasicBlock, k EdgeKind) int {
	n := 0
	for _, b := range blocks {
		for _, e := range b.Out {
			if e.Kind == k {
				n++
			}
		}
	}
	return n
}

// Every block, once built, has exactly one terminator group: either a
// single Jump/Fallthrough/Return/Exception/Call edge, a CondTrue+
// CondFalse pair, or a Case*+Default group (spec §8 invariant 3).
func assertSingleTerminatorPerBlock(t *testing.T, blocks []*BasicBlock) {
	for _, b := range blocks {
		if len(b.Out) == 0 {
			continue // dead/unreachable block the builder allocated but never wired; acceptable
		}
		hasCond := false
		hasCase := false
		hasDefault := false
		plain := 0
		for _, e := range b.Out {
			switch e.Kind {
			case CondTrue, CondFalse:
				hasCond = true
			case Case:
				hasCase = true
			case Default:
				hasDefault = true
			default:
				plain++
			}
		}
		if hasCond {
			assert.Len(t, b.Out, 2, "block %d: CondTrue/CondFalse must be a pair", b.ID)
		} else if hasCase || hasDefault {
			assert.True(t, hasDefault, "block %d: a Case group must have a Default", b.ID)
		} else {
			assert.LessOrEqual(t, plain, 2, "block %d: at most Call+Fallthrough for a GOSUB site", b.ID)
		}
	}
}

func TestBuildIf_BothBranchesMerge(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.IfStmt{
				Cond: &ast.BinaryExpr{Op: "=", X: &ast.Ident{Name: "X"}, Y: &ast.IntLit{Val: 1}},
				Then: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "one"}}}},
				Else: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "other"}}}},
			},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "after"}}},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())
	assert.Equal(t, 1, countEdgeKind(pc.Main.Blocks, CondTrue))
	assertSingleTerminatorPerBlock(t, pc.Main.Blocks)
}

func TestBuildIf_BothBranchesTerminated_MergeUnreachable(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.IfStmt{
				Cond: &ast.BinaryExpr{Op: "=", X: &ast.Ident{Name: "X"}, Y: &ast.IntLit{Val: 1}},
				Then: []ast.Stmt{&ast.EndStmt{}},
				Else: []ast.Stmt{&ast.EndStmt{}},
			},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())
	// Both branches END, so the merge block is entered only from the dead
	// blocks after each END; it still gets buildOne's trailing Jump to
	// cfg.Exit, but the blocks reachable from entry are just entry, then,
	// else and exit.
	assertSingleTerminatorPerBlock(t, pc.Main.Blocks)
	assert.Equal(t, uint(4), pc.Main.ReachableBlocks().Count())
}

func TestBuildWhile_UntilSwapsEdges(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.WhileStmt{
				Cond:  &ast.BinaryExpr{Op: "=", X: &ast.Ident{Name: "X"}, Y: &ast.IntLit{Val: 0}},
				Body:  []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "x"}}}},
				Until: true,
			},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())

	var header *BasicBlock
	for _, blk := range pc.Main.Blocks {
		if blk.CondExpr != nil {
			header = blk
			break
		}
	}
	require.NotNil(t, header)
	require.Len(t, header.Out, 2)
	// UNTIL: CondTrue must point at the exit (loop stops when cond
	// becomes true), not the body.
	var trueTarget, falseTarget BlockID
	for _, e := range header.Out {
		if e.Kind == CondTrue {
			trueTarget = e.To
		} else {
			falseTarget = e.To
		}
	}
	assert.NotEqual(t, trueTarget, falseTarget)
	assert.Len(t, pc.Main.Block(falseTarget).Stmts, 1, "CondFalse leads into the loop body")
	assert.Empty(t, pc.Main.Block(trueTarget).Stmts, "CondTrue leads to the loop exit")
}

func TestBuildGoto_ForwardReferenceResolves(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.GotoStmt{Target: "100"},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "skipped"}}},
			&ast.LabelStmt{Name: "100", Line: 100},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "landed"}}},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors(), "%v", diags.All())

	target, ok := pc.Main.LineBlocks[100]
	require.True(t, ok)

	found := false
	for _, blk := range pc.Main.Blocks {
		for _, e := range blk.Out {
			if e.Kind == Jump && e.To == target {
				found = true
			}
		}
	}
	assert.True(t, found, "GOTO 100 must resolve to an edge pointing at line 100's block")
}

func TestBuildGoto_UndefinedTargetIsCFGError(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{&ast.GotoStmt{Target: "999"}},
	}
	b.BuildProgram(prog)
	require.True(t, diags.HasErrors())
}

// GOSUB past END (spec §8 scenario 2): the subroutine's block must still
// be part of the graph and reachable via the Call edge even though it is
// sequentially unreachable after an unconditional END.
func TestBuildGosub_ReachablePastEnd(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.GosubStmt{Target: "100"},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "After"}}},
			&ast.EndStmt{},
			&ast.LabelStmt{Name: "100", Line: 100},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "Inside"}}},
			&ast.ReturnStmt{},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors(), "%v", diags.All())

	reachable := pc.Main.ReachableBlocks()
	subEntry, ok := pc.Main.LineBlocks[100]
	require.True(t, ok)
	assert.True(t, reachable.Test(uint(subEntry)), "line 100's block must be reachable via the Call edge")
	assert.Len(t, pc.Main.ReturnPoints, 1)
	assert.Contains(t, pc.Main.CallSites[subEntry], BlockID(0))
}

func TestBuildSelectCase_ChainAndExit(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.SelectCaseStmt{
				Selector: &ast.Ident{Name: "X"},
				Cases: []ast.CaseClause{
					{Values: []ast.Expr{&ast.IntLit{Val: 1}}, Body: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "one"}}}}},
					{Values: []ast.Expr{&ast.IntLit{Val: 2}}, Body: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "two"}}}}},
				},
				Else: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "other"}}}},
			},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())

	whenChecks := 0
	for _, blk := range pc.Main.Blocks {
		if blk.HasSelectInit {
			whenChecks++
		}
	}
	assert.Equal(t, 2, whenChecks)
	assertSingleTerminatorPerBlock(t, pc.Main.Blocks)
}

func TestBuildTryCatchFinally(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.TryStmt{
				Body:    []ast.Stmt{&ast.ThrowStmt{Code: &ast.IntLit{Val: 42}}},
				Catches: []ast.CatchClause{{ErrCode: &ast.IntLit{Val: 42}, Body: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "caught"}}}}}},
				Finally: []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "cleanup"}}}},
			},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "after"}}},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())

	setjmpBlocks := 0
	exceptionEdges := 0
	for _, blk := range pc.Main.Blocks {
		if blk.SetjmpHere {
			setjmpBlocks++
		}
		for _, e := range blk.Out {
			if e.Kind == Exception {
				exceptionEdges++
			}
		}
	}
	assert.Equal(t, 1, setjmpBlocks)
	assert.GreaterOrEqual(t, exceptionEdges, 2, "one Exception edge from TRY to the dispatch block, one from THROW")
}

func TestBuildFor_Structure(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.ForStmt{
				Var:   "I",
				Start: &ast.IntLit{Val: 1},
				Stop:  &ast.IntLit{Val: 10},
				Body:  []ast.Stmt{&ast.PrintStmt{Args: []ast.Expr{&ast.Ident{Name: "I"}}}},
			},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())
	assert.Equal(t, 1, countEdgeKind(pc.Main.Blocks, CondTrue))
}

func TestBuildExitFor_JumpsToLoopExit(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.ForStmt{
				Var:   "I",
				Start: &ast.IntLit{Val: 1},
				Stop:  &ast.IntLit{Val: 10},
				Body: []ast.Stmt{
					&ast.IfStmt{
						Cond:       &ast.BinaryExpr{Op: "=", X: &ast.Ident{Name: "I"}, Y: &ast.IntLit{Val: 5}},
						SingleLine: true,
						Then:       []ast.Stmt{&ast.ExitStmt{Kind: ast.ExitFor}},
					},
				},
			},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors(), "%v", diags.All())
}

func TestBuildExit_OutsideLoopIsError(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{&ast.ExitStmt{Kind: ast.ExitFor}},
	}
	b.BuildProgram(prog)
	require.True(t, diags.HasErrors())
}

func TestBuildOnGosub_OutOfRangeFallsThrough(t *testing.T) {
	diags := diag.NewBag(nil)
	b := NewBuilder(symtab.New(), diags)
	prog := &ast.Program{
		Main: []ast.Stmt{
			&ast.OnGotoStmt{Selector: &ast.Ident{Name: "X"}, Targets: []string{"100", "200"}, IsGosub: true},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "done"}}},
			&ast.EndStmt{},
			&ast.LabelStmt{Name: "100", Line: 100},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "a"}}},
			&ast.ReturnStmt{},
			&ast.LabelStmt{Name: "200", Line: 200},
			&ast.PrintStmt{Args: []ast.Expr{&ast.StringLit{Val: "b"}}},
			&ast.ReturnStmt{},
		},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors(), "%v", diags.All())
	assert.Equal(t, 2, countEdgeKind(pc.Main.Blocks, Case))
	assert.Equal(t, 1, countEdgeKind(pc.Main.Blocks, Default))
	assert.Len(t, pc.Main.ReturnPoints, 1)
}

func TestBuildProgram_ProcedureGetsOwnCFG(t *testing.T) {
	sym := symtab.New()
	sym.DeclareProcedure(&symtab.ProcSymbol{Name: "F", IsFunction: true})
	diags := diag.NewBag(nil)
	b := NewBuilder(sym, diags)
	prog := &ast.Program{
		Procs: []*ast.ProcDecl{{
			Name:       "F",
			IsFunction: true,
			Body:       []ast.Stmt{&ast.ReturnStmt{Value: &ast.IntLit{Val: 1}}},
		}},
	}
	pc := b.BuildProgram(prog)
	require.False(t, diags.HasErrors())
	require.Contains(t, pc.Procs, "F")
	assert.Equal(t, 1, countEdgeKind(pc.Procs["F"].Blocks, Return))
}
