package emit

import (
	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// inferType resolves the type of an already-validated expression against
// the read-only symbol table. The semantic analyzer has already rejected
// any program for which this would disagree with its own inference, so
// this walk never records diagnostics — it exists only because the CFG
// and its blocks carry raw ast.Expr nodes, not a typed IR, and the
// emitter needs a type to pick the right QBE instruction width.
func (e *Emitter) inferType(x ast.Expr, scope symtab.Scope) *typesys.Descriptor {
	switch n := x.(type) {
	case *ast.IntLit:
		return typesys.InferIntLiteral(n.Val)
	case *ast.FloatLit:
		return typesys.InferFloatLiteral()
	case *ast.StringLit:
		return typesys.New(typesys.STRING)
	case *ast.BoolLit:
		return typesys.New(typesys.INTEGER)
	case *ast.Ident:
		return e.inferIdentType(n, scope)
	case *ast.ArrayAccess:
		arrType := e.inferType(n.Array, scope)
		if arrType.IsArray() {
			return arrType.Element
		}
		return typesys.New(typesys.UNKNOWN)
	case *ast.MemberAccess:
		base := e.inferType(n.X, scope)
		target := base
		if target.IsPointer() {
			target = target.Element
		}
		if !target.IsRecord() {
			return typesys.New(typesys.UNKNOWN)
		}
		rt, ok := e.sym.LookupRecordByID(target.RecordID)
		if !ok {
			return typesys.New(typesys.UNKNOWN)
		}
		f := rt.FieldByName(n.Field)
		if f == nil {
			return typesys.New(typesys.UNKNOWN)
		}
		return f.Type
	case *ast.CallExpr:
		if rt, ok := builtinReturnType(n.Callee); ok {
			return rt
		}
		if proc, ok := e.sym.LookupProcedure(n.Callee); ok {
			return proc.RetType
		}
		return typesys.New(typesys.UNKNOWN)
	case *ast.UnaryExpr:
		xt := e.inferType(n.X, scope)
		if n.Op == "NOT" {
			return typesys.PromoteIntegerOnly(xt, xt)
		}
		return xt
	case *ast.BinaryExpr:
		return e.inferBinaryType(n, scope)
	default:
		return typesys.New(typesys.UNKNOWN)
	}
}

func (e *Emitter) inferIdentType(n *ast.Ident, scope symtab.Scope) *typesys.Descriptor {
	if v, ok := e.sym.LookupVariable(scope, n.Name); ok {
		return v.Type
	}
	if arr, ok := e.sym.LookupArray(scope, n.Name); ok {
		return arr.Descriptor()
	}
	if v, ok := e.sym.LookupVariable(symtab.GlobalScope, n.Name); ok {
		return v.Type
	}
	if arr, ok := e.sym.LookupArray(symtab.GlobalScope, n.Name); ok {
		return arr.Descriptor()
	}
	if c, ok := e.sym.LookupConstant(n.Name); ok {
		return c.Type
	}
	return typesys.New(typesys.UNKNOWN)
}

func (e *Emitter) inferBinaryType(n *ast.BinaryExpr, scope symtab.Scope) *typesys.Descriptor {
	lt := e.inferType(n.X, scope)
	rt := e.inferType(n.Y, scope)
	switch n.Op {
	case "=", "<>", "<", ">", "<=", ">=":
		return typesys.ComparisonResult()
	case "MOD", "AND", "OR", "XOR":
		return typesys.PromoteIntegerOnly(lt, rt)
	case "+":
		if lt.IsString() && rt.IsString() {
			return typesys.New(typesys.STRING)
		}
		return typesys.PromoteTypes(lt, rt)
	case "\\":
		return typesys.PromoteTypes(lt, rt)
	case "/":
		return typesys.DivisionResult(lt, rt)
	default:
		return typesys.PromoteTypes(lt, rt)
	}
}

// builtinReturnType names the result type of the fixed builtin functions
// the emitter lowers directly to a runtime call instead of a user
// procedure lookup (spec §6's runtime contract). This is a thin alias
// over runtimeabi.BuiltinReturnType, the single table the semantic
// analyzer's inferCall consults too — kept as a local name since every
// call site here predates the shared table.
func builtinReturnType(name string) (*typesys.Descriptor, bool) {
	return runtimeabi.BuiltinReturnType(name)
}
