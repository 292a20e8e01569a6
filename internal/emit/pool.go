package emit

import (
	"fmt"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/cfg"
)

// stringPool collects every string literal reachable from a program's
// CFGs and assigns each a stable module-scope label. Spec §4.5: string
// literals are interned in a first walk and emitted as data outside
// functions; a function body may only refer to the label, never to
// literal text.
type stringPool struct {
	labels map[string]string
	order  []string
}

func newStringPool() *stringPool {
	return &stringPool{labels: make(map[string]string)}
}

func (p *stringPool) intern(s string) string {
	if lbl, ok := p.labels[s]; ok {
		return lbl
	}
	lbl := fmt.Sprintf("$str_%d", len(p.order))
	p.labels[s] = lbl
	p.order = append(p.order, s)
	return lbl
}

// collect walks every statement and control expression of every CFG
// block, registering each StringLit it finds. It must run before any
// function body is emitted (spec §9: "the string pool must be collected
// before any function is emitted").
func (e *Emitter) collect(pc *cfg.ProgramCFG) {
	walkCFG := func(g *cfg.CFG) {
		for _, b := range g.Blocks {
			for _, s := range b.Stmts {
				e.collectStmt(s)
			}
			e.collectExprMaybe(b.CondExpr)
			e.collectExprMaybe(b.Selector)
			for _, v := range b.CaseValues {
				e.collectExprMaybe(v)
			}
			e.collectExprMaybe(b.ThrowCode)
			e.collectExprMaybe(b.ThrowMessage)
		}
	}
	walkCFG(pc.Main)
	for _, g := range pc.Procs {
		walkCFG(g)
	}
}

func (e *Emitter) collectExprMaybe(x ast.Expr) {
	if x != nil {
		e.collectExpr(x)
	}
}

func (e *Emitter) collectExpr(x ast.Expr) {
	switch n := x.(type) {
	case *ast.StringLit:
		e.pool.intern(n.Val)
	case *ast.ArrayAccess:
		e.collectExpr(n.Array)
		for _, idx := range n.Indices {
			e.collectExpr(idx)
		}
	case *ast.MemberAccess:
		e.collectExpr(n.X)
	case *ast.CallExpr:
		for _, a := range n.Args {
			e.collectExpr(a)
		}
	case *ast.UnaryExpr:
		e.collectExpr(n.X)
	case *ast.BinaryExpr:
		e.collectExpr(n.X)
		e.collectExpr(n.Y)
	}
}

func (e *Emitter) collectStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.LetStmt:
		e.collectExpr(n.Target)
		e.collectExpr(n.Value)
	case *ast.PrintStmt:
		for _, a := range n.Args {
			e.collectExpr(a)
		}
	case *ast.PrintUsingStmt:
		e.collectExpr(n.Format)
		for _, a := range n.Args {
			e.collectExpr(a)
		}
	case *ast.InputStmt:
		for _, t := range n.Targets {
			e.collectExpr(t)
		}
	case *ast.ReadStmt:
		for _, t := range n.Targets {
			e.collectExpr(t)
		}
	case *ast.CallStmt:
		e.collectExpr(n.Call)
	case *ast.RedimStmt:
		for _, d := range n.Dims {
			e.collectExprMaybe(d.Lower)
			e.collectExprMaybe(d.Upper)
		}
	}
}
