package emit

import (
	"fmt"
	"strings"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// emitExpr evaluates x and returns the QBE temp holding its value plus
// its type, the AST Emitter half of spec §4.5.
func (fe *funcEmitter) emitExpr(x ast.Expr) (string, *typesys.Descriptor) {
	switch n := x.(type) {
	case *ast.IntLit:
		return fmt.Sprintf("%d", n.Val), typesys.InferIntLiteral(n.Val)
	case *ast.FloatLit:
		return fmt.Sprintf("d_%v", n.Val), typesys.InferFloatLiteral()
	case *ast.BoolLit:
		if n.Val {
			return "1", typesys.New(typesys.INTEGER)
		}
		return "0", typesys.New(typesys.INTEGER)
	case *ast.StringLit:
		return fe.internString(n.Val), typesys.New(typesys.STRING)
	case *ast.Ident:
		return fe.emitIdent(n)
	case *ast.ArrayAccess:
		addr, t := fe.arrayElemAddr(n)
		return fe.load(addr, t), t
	case *ast.MemberAccess:
		addr, t := fe.memberAddr(n)
		return fe.load(addr, t), t
	case *ast.UnaryExpr:
		return fe.emitUnary(n)
	case *ast.BinaryExpr:
		return fe.emitBinary(n)
	case *ast.CallExpr:
		return fe.emitCall(n)
	default:
		fe.diags.Errorf(catEmission, x.Pos(), "internal error: unknown expression node %T reached emission", x)
		return "0", typesys.New(typesys.UNKNOWN)
	}
}

func (fe *funcEmitter) emitIdent(n *ast.Ident) (string, *typesys.Descriptor) {
	if c, ok := fe.sym.LookupConstant(n.Name); ok {
		switch c.Kind {
		case 0:
			return fmt.Sprintf("%d", c.IVal), c.Type
		case 1:
			return fmt.Sprintf("d_%v", c.FVal), c.Type
		default:
			return fe.internString(c.SVal), c.Type
		}
	}
	addr, t := fe.identAddr(n.Name)
	return fe.load(addr, t), t
}

// internString interns s into the string pool's data section and wraps
// its raw C-string label in a string_new_utf8 construction, producing
// the 40-byte runtime descriptor every STRING consumer — print, concat,
// compare, assignment — actually expects (spec §4.5). The interned
// label itself must never leak out as "the value" of a string literal.
func (fe *funcEmitter) internString(s string) string {
	lbl := fe.pool.intern(s)
	out := fe.newTemp()
	fe.writeln("\t%s =l call $%s(l %s)", out, runtimeabi.StringNewUTF8, lbl)
	return out
}

// isOwnedStringExpr reports whether x evaluates to a freshly
// constructed string descriptor whose refcount already accounts for
// the temp holding it — a literal, a builtin/user call result, or a
// concatenation — as opposed to one loaded from an existing variable,
// array element, or field, which is a shared reference that must be
// retained before it can be stored into another location (spec §5,
// §8 invariant 7: retain+ctor - release = 0).
func isOwnedStringExpr(x ast.Expr) bool {
	switch x.(type) {
	case *ast.StringLit, *ast.CallExpr, *ast.BinaryExpr:
		return true
	default:
		return false
	}
}

// castTo inserts the QBE conversion instruction CastOp names, or returns
// val unchanged when no instruction is needed.
func (fe *funcEmitter) castTo(val string, from, to *typesys.Descriptor) string {
	op := typesys.CastOp(from, to)
	if op == "" {
		return val
	}
	out := fe.newTemp()
	fe.writeln("\t%s =%s %s %s", out, to.QBEScalar(), op, val)
	return out
}

func (fe *funcEmitter) emitUnary(n *ast.UnaryExpr) (string, *typesys.Descriptor) {
	xv, xt := fe.emitExpr(n.X)
	switch strings.ToUpper(n.Op) {
	case "NOT":
		rt := typesys.PromoteIntegerOnly(xt, xt)
		out := fe.newTemp()
		fe.writeln("\t%s =%s xor %s, -1", out, rt.QBEScalar(), xv)
		return out, rt
	case "-":
		out := fe.newTemp()
		fe.writeln("\t%s =%s neg %s", out, xt.QBEScalar(), xv)
		return out, xt
	default:
		return xv, xt
	}
}

var qbeBinOp = map[string]string{
	"+": "add", "-": "sub", "*": "mul",
	"AND": "and", "OR": "or", "XOR": "xor",
}

// cmpMnemonic names the QBE comparison instruction for op against a
// value of class t: signed/unsigned integer compares diverge for
// ordering (slt vs ult), float compares use the plain ordered mnemonic,
// and eq/ne are shared across all three families (spec §4.1).
func cmpMnemonic(op string, t *typesys.Descriptor) string {
	cls := t.QBEScalar()
	float := cls == "s" || cls == "d"
	unsigned := t.IsUnsigned()
	var frag string
	switch op {
	case "=":
		frag = "eq"
	case "<>":
		frag = "ne"
	case "<":
		frag = "lt"
	case "<=":
		frag = "le"
	case ">":
		frag = "gt"
	case ">=":
		frag = "ge"
	}
	if !float && frag != "eq" && frag != "ne" {
		if unsigned {
			frag = "u" + frag
		} else {
			frag = "s" + frag
		}
	}
	return "c" + frag + cls
}

func (fe *funcEmitter) emitBinary(n *ast.BinaryExpr) (string, *typesys.Descriptor) {
	op := strings.ToUpper(n.Op)

	if op == "+" {
		lv, lt := fe.emitExpr(n.X)
		rv, rt := fe.emitExpr(n.Y)
		if lt.IsString() && rt.IsString() {
			out := fe.newTemp()
			fe.writeln("\t%s =l call $%s(l %s, l %s)", out, runtimeabi.StringConcat, lv, rv)
			return out, typesys.New(typesys.STRING)
		}
		rest := typesys.PromoteTypes(lt, rt)
		lv2 := fe.castTo(lv, lt, rest)
		rv2 := fe.castTo(rv, rt, rest)
		out := fe.newTemp()
		fe.writeln("\t%s =%s add %s, %s", out, rest.QBEScalar(), lv2, rv2)
		return out, rest
	}

	if op == "MOD" || op == "AND" || op == "OR" || op == "XOR" {
		lv, lt := fe.emitExpr(n.X)
		rv, rt := fe.emitExpr(n.Y)
		rest := typesys.PromoteIntegerOnly(lt, rt)
		lv2 := fe.castTo(lv, lt, rest)
		rv2 := fe.castTo(rv, rt, rest)
		out := fe.newTemp()
		if op == "MOD" {
			fe.writeln("\t%s =%s rem %s, %s", out, rest.QBEScalar(), lv2, rv2)
		} else {
			fe.writeln("\t%s =%s %s %s, %s", out, rest.QBEScalar(), qbeBinOp[op], lv2, rv2)
		}
		return out, rest
	}

	if op == "=" || op == "<>" || op == "<" || op == ">" || op == "<=" || op == ">=" {
		lv, lt := fe.emitExpr(n.X)
		rv, rt := fe.emitExpr(n.Y)
		if lt.IsString() && rt.IsString() {
			cmp := fe.newTemp()
			fe.writeln("\t%s =w call $%s(l %s, l %s)", cmp, runtimeabi.StringCompare, lv, rv)
			out := fe.newTemp()
			fe.writeln("\t%s =w %s %s, 0", out, cmpMnemonic(op, typesys.New(typesys.INTEGER)), cmp)
			return out, typesys.ComparisonResult()
		}
		rest := typesys.PromoteTypes(lt, rt)
		lv2 := fe.castTo(lv, lt, rest)
		rv2 := fe.castTo(rv, rt, rest)
		out := fe.newTemp()
		fe.writeln("\t%s =w %s %s, %s", out, cmpMnemonic(op, rest), lv2, rv2)
		return out, typesys.ComparisonResult()
	}

	if op == "\\" {
		lv, lt := fe.emitExpr(n.X)
		rv, rt := fe.emitExpr(n.Y)
		rest := typesys.PromoteTypes(lt, rt)
		lv2 := fe.castTo(lv, lt, rest)
		rv2 := fe.castTo(rv, rt, rest)
		out := fe.newTemp()
		fe.writeln("\t%s =%s div %s, %s", out, rest.QBEScalar(), lv2, rv2)
		return out, rest
	}
	if op == "/" {
		lv, lt := fe.emitExpr(n.X)
		rv, rt := fe.emitExpr(n.Y)
		rest := typesys.DivisionResult(lt, rt)
		lv2 := fe.castTo(lv, lt, rest)
		rv2 := fe.castTo(rv, rt, rest)
		out := fe.newTemp()
		fe.writeln("\t%s =%s div %s, %s", out, rest.QBEScalar(), lv2, rv2)
		return out, rest
	}

	// "-" and "*" share the straightforward numeric path.
	lv, lt := fe.emitExpr(n.X)
	rv, rt := fe.emitExpr(n.Y)
	rest := typesys.PromoteTypes(lt, rt)
	lv2 := fe.castTo(lv, lt, rest)
	rv2 := fe.castTo(rv, rt, rest)
	out := fe.newTemp()
	fe.writeln("\t%s =%s %s %s, %s", out, rest.QBEScalar(), qbeBinOp[op], lv2, rv2)
	return out, rest
}

// builtinRuntimeName names the runtime entry point a compiler builtin
// lowers to directly, bypassing user-procedure call resolution (spec
// §6).
var builtinRuntimeName = map[string]string{
	"MID$":   runtimeabi.StringMid,
	"LEFT$":  runtimeabi.StringLeft,
	"RIGHT$": runtimeabi.StringRight,
	"INSTR":  runtimeabi.StringInstr,
	"UCASE$": runtimeabi.StringUpper,
	"LCASE$": runtimeabi.StringLower,
	"TRIM$":  runtimeabi.StringTrim,
	"LEN":    runtimeabi.StringLength,
	"ASC":    runtimeabi.StringCharAt,
}

func (fe *funcEmitter) emitCall(n *ast.CallExpr) (string, *typesys.Descriptor) {
	name := strings.ToUpper(n.Callee)

	if name == "ERR" {
		out := fe.newTemp()
		fe.writeln("\t%s =w call $%s()", out, runtimeabi.ErrCurrentCode)
		return out, typesys.New(typesys.INTEGER)
	}

	if name == "STR$" {
		argv, argt := fe.emitExpr(n.Args[0])
		out := fe.newTemp()
		if argt.IsFloat() {
			fe.writeln("\t%s =l call $%s(d %s)", out, runtimeabi.StringFromDouble, fe.castTo(argv, argt, typesys.New(typesys.DOUBLE)))
		} else {
			fe.writeln("\t%s =l call $%s(w %s)", out, runtimeabi.StringFromInt, fe.castTo(argv, argt, typesys.New(typesys.INTEGER)))
		}
		return out, typesys.New(typesys.STRING)
	}

	if name == "CHR$" {
		argv, argt := fe.emitExpr(n.Args[0])
		out := fe.newTemp()
		fe.writeln("\t%s =l call $%s(w %s)", out, runtimeabi.StringChr, fe.castTo(argv, argt, typesys.New(typesys.INTEGER)))
		return out, typesys.New(typesys.STRING)
	}

	if name == "VAL" {
		argv, _ := fe.emitExpr(n.Args[0])
		out := fe.newTemp()
		fe.writeln("\t%s =d call $%s(l %s)", out, runtimeabi.StringToDouble, argv)
		return out, typesys.New(typesys.DOUBLE)
	}

	if rtName, ok := builtinRuntimeName[name]; ok {
		var args []string
		for _, a := range n.Args {
			av, at := fe.emitExpr(a)
			args = append(args, fmt.Sprintf("%s %s", at.QBEScalar(), av))
		}
		out := fe.newTemp()
		retT, _ := builtinReturnType(name)
		fe.writeln("\t%s =%s call $%s(%s)", out, retT.QBEScalar(), rtName, strings.Join(args, ", "))
		return out, retT
	}

	proc, ok := fe.sym.LookupProcedure(n.Callee)
	if !ok {
		fe.diags.Errorf(catEmission, n.Pos(), "internal error: undefined procedure %q reached emission", n.Callee)
		return "0", typesys.New(typesys.UNKNOWN)
	}
	var args []string
	for i, a := range n.Args {
		av, at := fe.emitExpr(a)
		pt := at
		if i < len(proc.Params) {
			pt = proc.Params[i].Type
			av = fe.castTo(av, at, pt)
		}
		if pt.IsString() && !isOwnedStringExpr(a) {
			fe.writeln("\tcall $%s(l %s)", runtimeabi.StringRetain, av)
		}
		args = append(args, fmt.Sprintf("%s %s", pt.QBEScalar(), av))
	}
	if proc.RetType == nil || proc.RetType.Base == typesys.VOID {
		fe.writeln("\tcall $%s(%s)", qbeFuncName(n.Callee), strings.Join(args, ", "))
		return "0", typesys.New(typesys.VOID)
	}
	out := fe.newTemp()
	fe.writeln("\t%s =%s call $%s(%s)", out, proc.RetType.QBEScalar(), qbeFuncName(n.Callee), strings.Join(args, ", "))
	return out, proc.RetType
}
