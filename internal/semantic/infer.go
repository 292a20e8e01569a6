package semantic

import (
	"strings"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

var binaryOpIsIntegerOnly = map[string]bool{
	"MOD": true, "AND": true, "OR": true, "XOR": true,
}

var binaryOpIsComparison = map[string]bool{
	"=": true, "<>": true, "<": true, ">": true, "<=": true, ">=": true,
}

// InferExpression resolves the type of any expression node against the
// symbol table in the given scope (spec §4.1's public operation of the
// same name). It never returns nil; on failure it returns an UNKNOWN
// descriptor and records a diagnostic, per spec §8 invariant 1.
func (a *Analyzer) InferExpression(e ast.Expr, scope symtab.Scope) *typesys.Descriptor {
	switch n := e.(type) {
	case *ast.IntLit:
		return typesys.InferIntLiteral(n.Val)
	case *ast.FloatLit:
		return typesys.InferFloatLiteral()
	case *ast.StringLit:
		return typesys.New(typesys.STRING)
	case *ast.BoolLit:
		return typesys.New(typesys.INTEGER)

	case *ast.Ident:
		return a.inferIdent(n, scope)

	case *ast.ArrayAccess:
		return a.inferArrayAccess(n, scope)

	case *ast.MemberAccess:
		return a.inferMemberAccess(n, scope)

	case *ast.CallExpr:
		return a.inferCall(n, scope)

	case *ast.UnaryExpr:
		return a.inferUnary(n, scope)

	case *ast.BinaryExpr:
		return a.inferBinary(n, scope)

	default:
		a.Diags.Errorf(categorySemantic, e.Pos(), "internal error: unknown expression node %T", e)
		return typesys.New(typesys.UNKNOWN)
	}
}

func (a *Analyzer) inferIdent(n *ast.Ident, scope symtab.Scope) *typesys.Descriptor {
	if v, ok := a.Sym.LookupVariable(scope, n.Name); ok {
		return v.Type
	}
	if arr, ok := a.Sym.LookupArray(scope, n.Name); ok {
		return arr.Descriptor()
	}
	if scope != symtab.GlobalScope {
		if v, ok := a.Sym.LookupVariable(symtab.GlobalScope, n.Name); ok {
			return v.Type
		}
		if arr, ok := a.Sym.LookupArray(symtab.GlobalScope, n.Name); ok {
			return arr.Descriptor()
		}
	}
	if c, ok := a.Sym.LookupConstant(n.Name); ok {
		return c.Type
	}
	a.Diags.Errorf(categorySemantic, n.Pos(), "undefined identifier %q", n.Name)
	return typesys.New(typesys.UNKNOWN)
}

func (a *Analyzer) inferArrayAccess(n *ast.ArrayAccess, scope symtab.Scope) *typesys.Descriptor {
	arrType := a.InferExpression(n.Array, scope)
	for _, idx := range n.Indices {
		it := a.InferExpression(idx, scope)
		if !it.IsInteger() && it.Base != typesys.UNKNOWN {
			a.Diags.Errorf(categorySemantic, idx.Pos(), "array index must be an integer, got %s", it)
		}
	}
	if !arrType.IsArray() {
		if arrType.Base != typesys.UNKNOWN {
			a.Diags.Errorf(categorySemantic, n.Pos(), "cannot index non-array type %s", arrType)
		}
		return typesys.New(typesys.UNKNOWN)
	}
	return arrType.Element
}

func (a *Analyzer) inferMemberAccess(n *ast.MemberAccess, scope symtab.Scope) *typesys.Descriptor {
	baseType := a.InferExpression(n.X, scope)
	target := baseType
	if target.IsPointer() {
		target = target.Element
	}
	if !target.IsRecord() {
		if target.Base != typesys.UNKNOWN {
			a.Diags.Errorf(categorySemantic, n.Pos(), "cannot access field %q on non-record type %s", n.Field, target)
		}
		return typesys.New(typesys.UNKNOWN)
	}
	rt, ok := a.Sym.LookupRecordByID(target.RecordID)
	if !ok {
		a.Diags.Errorf(categorySemantic, n.Pos(), "internal error: unknown record_id %d", target.RecordID)
		return typesys.New(typesys.UNKNOWN)
	}
	f := rt.FieldByName(n.Field)
	if f == nil {
		a.Diags.Errorf(categorySemantic, n.Pos(), "unknown field %q on record %s", n.Field, rt.Name)
		return typesys.New(typesys.UNKNOWN)
	}
	return f.Type
}

func (a *Analyzer) inferUnary(n *ast.UnaryExpr, scope symtab.Scope) *typesys.Descriptor {
	xt := a.InferExpression(n.X, scope)
	switch strings.ToUpper(n.Op) {
	case "NOT":
		if !xt.IsInteger() && xt.Base != typesys.UNKNOWN {
			a.Diags.Errorf(categorySemantic, n.Pos(), "NOT requires an integer operand, got %s", xt)
		}
		return typesys.PromoteIntegerOnly(xt, xt)
	case "-":
		if !xt.IsNumeric() && xt.Base != typesys.UNKNOWN {
			a.Diags.Errorf(categorySemantic, n.Pos(), "unary - requires a numeric operand, got %s", xt)
		}
		return xt
	default:
		return xt
	}
}

func (a *Analyzer) inferBinary(n *ast.BinaryExpr, scope symtab.Scope) *typesys.Descriptor {
	lt := a.InferExpression(n.X, scope)
	rt := a.InferExpression(n.Y, scope)
	op := strings.ToUpper(n.Op)

	if lt.Base == typesys.UNKNOWN || rt.Base == typesys.UNKNOWN {
		return typesys.New(typesys.UNKNOWN)
	}

	if op == "+" && lt.IsString() && rt.IsString() {
		return typesys.New(typesys.STRING)
	}

	if binaryOpIsIntegerOnly[op] {
		if !lt.IsInteger() || !rt.IsInteger() {
			a.Diags.Errorf(categorySemantic, n.Pos(), "operator %s requires integer operands, got %s and %s", n.Op, lt, rt)
		}
		return typesys.PromoteIntegerOnly(lt, rt)
	}

	if binaryOpIsComparison[op] {
		if lt.IsString() != rt.IsString() {
			a.Diags.Errorf(categorySemantic, n.Pos(), "cannot compare %s with %s", lt, rt)
		}
		return typesys.ComparisonResult()
	}

	if op == "\\" {
		if !lt.IsNumeric() || !rt.IsNumeric() {
			a.Diags.Errorf(categorySemantic, n.Pos(), "operator \\ requires numeric operands, got %s and %s", lt, rt)
		}
		return typesys.PromoteTypes(lt, rt)
	}
	if op == "/" {
		if !lt.IsNumeric() || !rt.IsNumeric() {
			a.Diags.Errorf(categorySemantic, n.Pos(), "operator / requires numeric operands, got %s and %s", lt, rt)
		}
		return typesys.DivisionResult(lt, rt)
	}

	if !lt.IsNumeric() || !rt.IsNumeric() {
		a.Diags.Errorf(categorySemantic, n.Pos(), "operator %s requires numeric operands, got %s and %s", n.Op, lt, rt)
		return typesys.New(typesys.UNKNOWN)
	}
	return typesys.PromoteTypes(lt, rt)
}

// inferCall infers the result type of a function call expression. A
// name in the builtin registry (spec §4.1's "builtin-registry calls"
// case) resolves against runtimeabi.BuiltinReturnType — the same table
// the emitter's builtin dispatch consults, so a call that type-checks
// here is guaranteed to be one the emitter knows how to lower — before
// falling back to a user-procedure lookup, which also validates
// argument count and types against the declared signature (spec §4.2).
func (a *Analyzer) inferCall(n *ast.CallExpr, scope symtab.Scope) *typesys.Descriptor {
	if rt, ok := runtimeabi.BuiltinReturnType(strings.ToUpper(n.Callee)); ok {
		for _, arg := range n.Args {
			a.InferExpression(arg, scope)
		}
		return rt
	}

	proc, ok := a.Sym.LookupProcedure(n.Callee)
	if !ok {
		a.Diags.Errorf(categorySemantic, n.Pos(), "undefined function %q", n.Callee)
		for _, arg := range n.Args {
			a.InferExpression(arg, scope)
		}
		return typesys.New(typesys.UNKNOWN)
	}
	a.checkCallArgs(n, proc, scope)
	return proc.RetType
}

func (a *Analyzer) checkCallArgs(n *ast.CallExpr, proc *symtab.ProcSymbol, scope symtab.Scope) {
	if len(n.Args) != len(proc.Params) {
		a.Diags.Errorf(categorySemantic, n.Pos(), "%s expects %d argument(s), got %d", n.Callee, len(proc.Params), len(n.Args))
	}
	for i, arg := range n.Args {
		at := a.InferExpression(arg, scope)
		if i >= len(proc.Params) {
			continue
		}
		pt := proc.Params[i].Type
		ok, kind := typesys.ValidateAssignment(pt, at)
		if !ok {
			a.Diags.Errorf(categorySemantic, arg.Pos(), "argument %d to %s: cannot convert %s to %s", i+1, n.Callee, at, pt)
		} else if kind == typesys.ImplicitLossy {
			a.Diags.Warnf(categorySemantic, arg.Pos(), "argument %d to %s: implicit lossy conversion %s -> %s", i+1, n.Callee, at, pt)
		}
	}
}
