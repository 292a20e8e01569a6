package semantic

import (
	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// validateProgram runs pass 2 over the main program and every procedure.
func (a *Analyzer) validateProgram(prog *ast.Program) {
	a.curScope = symtab.MainScope
	a.inProc = false
	a.validateStmts(prog.Main, "")

	for _, p := range prog.Procs {
		a.curScope = symtab.FuncScope(p.Name)
		a.inProc = true
		a.validateStmts(p.Body, p.Name)
	}
}

// validateStmts type-checks one statement list in a.curScope. procName
// is "" for the main program, used for GOTO/GOSUB/label lookups, which
// are per-procedure (spec §4.3: every GOTO/GOSUB target must resolve
// within the same procedure, main program included).
func (a *Analyzer) validateStmts(stmts []ast.Stmt, procName string) {
	for _, s := range stmts {
		a.validateStmt(s, procName)
	}
}

func (a *Analyzer) validateStmt(s ast.Stmt, procName string) {
	switch n := s.(type) {
	case *ast.LetStmt:
		a.validateLet(n)

	case *ast.DimStmt, *ast.GlobalStmt, *ast.ConstStmt, *ast.TypeDeclStmt, *ast.LabelStmt:
		// Declarations: fully handled in pass 1; nothing to type-check.

	case *ast.RedimStmt:
		arr, ok := a.Sym.LookupArray(a.curScope, n.Name)
		if !ok {
			arr, ok = a.Sym.LookupArray(symtab.GlobalScope, n.Name)
		}
		if !ok {
			a.Diags.Errorf(categorySemantic, n.Pos(), "REDIM of undeclared array %q", n.Name)
		}
		for _, d := range n.Dims {
			if d.Upper != nil {
				a.InferExpression(d.Upper, a.curScope)
			}
			if d.Lower != nil {
				a.InferExpression(d.Lower, a.curScope)
			}
		}
		_ = arr

	case *ast.EraseStmt:
		if _, ok := a.Sym.LookupArray(a.curScope, n.Name); !ok {
			if _, ok := a.Sym.LookupArray(symtab.GlobalScope, n.Name); !ok {
				a.Diags.Errorf(categorySemantic, n.Pos(), "ERASE of undeclared array %q", n.Name)
			}
		}

	case *ast.PrintStmt:
		for _, arg := range n.Args {
			a.InferExpression(arg, a.curScope)
		}

	case *ast.PrintUsingStmt:
		ft := a.InferExpression(n.Format, a.curScope)
		if !ft.IsString() && ft.Base != typesys.UNKNOWN {
			a.Diags.Errorf(categorySemantic, n.Format.Pos(), "PRINT USING format must be a string, got %s", ft)
		}
		for _, arg := range n.Args {
			a.InferExpression(arg, a.curScope)
		}

	case *ast.InputStmt:
		for _, t := range n.Targets {
			a.InferExpression(t, a.curScope)
		}

	case *ast.ReadStmt:
		for _, t := range n.Targets {
			a.InferExpression(t, a.curScope)
		}

	case *ast.RestoreStmt:
		// target existence is a DATA-preprocessor concern (out of scope).

	case *ast.IfStmt:
		a.checkBool(n.Cond)
		a.validateStmts(n.Then, procName)
		for _, ei := range n.ElseIfs {
			a.checkBool(ei.Cond)
			a.validateStmts(ei.Body, procName)
		}
		a.validateStmts(n.Else, procName)

	case *ast.WhileStmt:
		a.checkBool(n.Cond)
		a.validateStmts(n.Body, procName)

	case *ast.DoLoopStmt:
		a.checkBool(n.Cond)
		a.validateStmts(n.Body, procName)

	case *ast.ForStmt:
		a.validateFor(n, procName)

	case *ast.SelectCaseStmt:
		a.InferExpression(n.Selector, a.curScope)
		for _, c := range n.Cases {
			for _, v := range c.Values {
				a.InferExpression(v, a.curScope)
			}
			a.validateStmts(c.Body, procName)
		}
		a.validateStmts(n.Else, procName)

	case *ast.TryStmt:
		a.validateStmts(n.Body, procName)
		for _, c := range n.Catches {
			if c.ErrCode != nil {
				a.InferExpression(c.ErrCode, a.curScope)
			}
			a.validateStmts(c.Body, procName)
		}
		a.validateStmts(n.Finally, procName)

	case *ast.GotoStmt:
		a.checkLabel(n.Target, procName, n.Pos())

	case *ast.GosubStmt:
		a.checkLabel(n.Target, procName, n.Pos())

	case *ast.OnGotoStmt:
		a.InferExpression(n.Selector, a.curScope)
		for _, t := range n.Targets {
			a.checkLabel(t, procName, n.Pos())
		}

	case *ast.ReturnStmt:
		a.validateReturn(n, procName)

	case *ast.ExitStmt:
		// Loop-context validity is a CFG Builder concern (spec §4.3: EXIT
		// resolves via "current loop"); nothing to type-check here.

	case *ast.EndStmt:
		// no-op

	case *ast.ThrowStmt:
		if n.Code != nil {
			ct := a.InferExpression(n.Code, a.curScope)
			if !ct.IsInteger() && ct.Base != typesys.UNKNOWN {
				a.Diags.Errorf(categorySemantic, n.Code.Pos(), "THROW code must be an integer, got %s", ct)
			}
		}
		if n.Message != nil {
			a.InferExpression(n.Message, a.curScope)
		}

	case *ast.CallStmt:
		a.InferExpression(n.Call, a.curScope)

	default:
		a.Diags.Errorf(categorySemantic, s.Pos(), "internal error: unknown statement node %T", s)
	}
}

func (a *Analyzer) checkBool(cond ast.Expr) {
	ct := a.InferExpression(cond, a.curScope)
	if !ct.IsNumeric() && ct.Base != typesys.UNKNOWN {
		a.Diags.Errorf(categorySemantic, cond.Pos(), "condition must be numeric, got %s", ct)
	}
}

func (a *Analyzer) checkLabel(target, procName string, loc ast.Location) {
	if !a.Sym.HasLabel(procName, target) {
		a.Diags.Errorf(categorySemantic, loc, "GOTO/GOSUB target %q not found", target)
	}
}

func (a *Analyzer) validateFor(n *ast.ForStmt, procName string) {
	v, ok := a.Sym.LookupVariable(a.curScope, n.Var)
	if !ok {
		v, ok = a.Sym.LookupVariable(symtab.GlobalScope, n.Var)
	}
	if !ok {
		a.Diags.Errorf(categorySemantic, n.Pos(), "FOR loop variable %q is not declared", n.Var)
	} else if !v.Type.IsInteger() && !v.Type.IsFloat() {
		a.Diags.Errorf(categorySemantic, n.Pos(), "FOR loop variable %q must be numeric, got %s", n.Var, v.Type)
	}
	a.InferExpression(n.Start, a.curScope)
	a.InferExpression(n.Stop, a.curScope)
	if n.Step != nil {
		a.InferExpression(n.Step, a.curScope)
	}
	a.validateStmts(n.Body, procName)
}

func (a *Analyzer) validateReturn(n *ast.ReturnStmt, procName string) {
	if !a.inProc {
		// A bare RETURN at main-program scope is a GOSUB return, not a
		// function return (spec §4.3): no value, nothing to type-check.
		return
	}
	proc, ok := a.Sym.LookupProcedure(procName)
	if !ok {
		return
	}
	if !proc.IsFunction {
		if n.Value != nil {
			a.Diags.Errorf(categorySemantic, n.Pos(), "RETURN with a value is not allowed inside a SUB")
		}
		return
	}
	if n.Value == nil {
		// RETURN with no value inside a FUNCTION is treated as a
		// GOSUB-style return site: nothing to type-check here, and the
		// CFG Builder does not flag it either.
		return
	}
	vt := a.InferExpression(n.Value, a.curScope)
	ok2, kind := typesys.ValidateAssignment(proc.RetType, vt)
	if !ok2 {
		a.Diags.Errorf(categorySemantic, n.Value.Pos(), "cannot RETURN %s from function %s declared AS %s", vt, procName, proc.RetType)
	} else if kind == typesys.ImplicitLossy {
		a.Diags.Warnf(categorySemantic, n.Value.Pos(), "RETURN value implicitly narrows %s -> %s in function %s", vt, proc.RetType, procName)
	}
}

// validateLet checks a LET/assignment statement: the target must be an
// lvalue shape (Ident, ArrayAccess, or MemberAccess) and the coercion
// from the value's type to the target's type must not be Incompatible or
// ExplicitRequired (spec §4.1's three coercion sites; this is the
// assignment site).
func (a *Analyzer) validateLet(n *ast.LetStmt) {
	lhsType := a.InferExpression(n.Target, a.curScope)
	switch n.Target.(type) {
	case *ast.Ident, *ast.ArrayAccess, *ast.MemberAccess:
	default:
		a.Diags.Errorf(categorySemantic, n.Target.Pos(), "invalid assignment target")
	}
	rhsType := a.InferExpression(n.Value, a.curScope)
	if lhsType.Base == typesys.UNKNOWN || rhsType.Base == typesys.UNKNOWN {
		return
	}
	ok, kind := typesys.ValidateAssignment(lhsType, rhsType)
	if !ok {
		a.Diags.Errorf(categorySemantic, n.Pos(), "cannot assign %s to %s", rhsType, lhsType)
		return
	}
	if kind == typesys.ImplicitLossy {
		a.Diags.Warnf(categorySemantic, n.Pos(), "implicit lossy conversion %s -> %s", rhsType, lhsType)
	}
}
