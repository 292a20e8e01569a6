package emit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// emitStmt lowers one non-terminator statement. RETURN/GOTO/EXIT/THROW/
// ON...GOTO/GOSUB/END never reach here: the CFG builder carries their
// operands on block fields instead (spec §4.4 point 3).
func (fe *funcEmitter) emitStmt(s ast.Stmt) {
	switch n := s.(type) {
	case *ast.LetStmt:
		fe.emitLet(n)
	case *ast.DimStmt, *ast.GlobalStmt, *ast.ConstStmt, *ast.TypeDeclStmt:
		// Storage was already allocated in the function prologue.
	case *ast.RedimStmt:
		fe.emitRedim(n)
	case *ast.EraseStmt:
		fe.emitErase(n)
	case *ast.PrintStmt:
		fe.emitPrint(n)
	case *ast.PrintUsingStmt:
		fe.emitPrintUsing(n)
	case *ast.InputStmt:
		fe.emitInput(n)
	case *ast.ReadStmt:
		fe.emitRead(n)
	case *ast.RestoreStmt:
		fe.emitRestore(n)
	case *ast.CallStmt:
		fe.emitExpr(n.Call)
	default:
		fe.diags.Errorf(catEmission, s.Pos(), "internal error: unexpected statement kind %T in block body", s)
	}
}

func (fe *funcEmitter) emitLet(n *ast.LetStmt) {
	addr, lt := fe.emitAddr(n.Target)
	rv, rt := fe.emitExpr(n.Value)
	rv = fe.castTo(rv, rt, lt)
	if lt.IsString() {
		old := fe.load(addr, lt)
		fe.writeln("\tcall $%s(l %s)", runtimeabi.StringRelease, old)
		if !isOwnedStringExpr(n.Value) {
			fe.writeln("\tcall $%s(l %s)", runtimeabi.StringRetain, rv)
		}
	}
	fe.store(rv, addr, lt)
}

func (fe *funcEmitter) emitRedim(n *ast.RedimStmt) {
	addr, t := fe.identAddr(n.Name)
	old := fe.load(addr, t)
	var dims []string
	for _, d := range n.Dims {
		var lo, hi string = "0", "0"
		if d.Lower != nil {
			lo, _ = fe.emitExpr(d.Lower)
		}
		if d.Upper != nil {
			hi, _ = fe.emitExpr(d.Upper)
		}
		dims = append(dims, fmt.Sprintf("w %s, w %s", lo, hi))
	}
	preserve := "0"
	if n.Preserve {
		preserve = "1"
	}
	out := fe.newTemp()
	fe.writeln("\t%s =l call $%s(l %s, w %s, %s)", out, runtimeabi.ArrayRedim, old, preserve, strings.Join(dims, ", "))
	fe.store(out, addr, t)
}

func (fe *funcEmitter) emitErase(n *ast.EraseStmt) {
	addr, t := fe.identAddr(n.Name)
	handle := fe.load(addr, t)
	fe.writeln("\tcall $%s(l %s)", runtimeabi.ArrayErase, handle)
}

func (fe *funcEmitter) emitPrint(n *ast.PrintStmt) {
	for _, a := range n.Args {
		av, at := fe.emitExpr(a)
		switch {
		case at.IsString():
			fe.writeln("\tcall $%s(l %s)", runtimeabi.PrintStringDesc, av)
		case at.IsFloat():
			fe.writeln("\tcall $%s(d %s)", runtimeabi.PrintDouble, fe.castTo(av, at, typesys.New(typesys.DOUBLE)))
		default:
			fe.writeln("\tcall $%s(w %s)", runtimeabi.PrintInt, fe.castTo(av, at, typesys.New(typesys.INTEGER)))
		}
	}
}

func (fe *funcEmitter) emitPrintUsing(n *ast.PrintUsingStmt) {
	fv, _ := fe.emitExpr(n.Format)
	for _, a := range n.Args {
		av, at := fe.emitExpr(a)
		if at.IsFloat() {
			fe.writeln("\tcall $%s(l %s, d %s)", runtimeabi.PrintUsing, fv, fe.castTo(av, at, typesys.New(typesys.DOUBLE)))
		} else {
			fe.writeln("\tcall $%s(l %s, w %s)", runtimeabi.PrintUsing, fv, fe.castTo(av, at, typesys.New(typesys.INTEGER)))
		}
	}
}

func (fe *funcEmitter) emitInput(n *ast.InputStmt) {
	for _, target := range n.Targets {
		addr, t := fe.emitAddr(target)
		out := fe.newTemp()
		switch {
		case t.IsString():
			fe.writeln("\t%s =l call $%s()", out, runtimeabi.ReadString)
		case t.IsFloat():
			fe.writeln("\t%s =d call $%s()", out, runtimeabi.ReadDouble)
		default:
			fe.writeln("\t%s =w call $%s()", out, runtimeabi.ReadInt)
		}
		fe.store(out, addr, t)
	}
}

func (fe *funcEmitter) emitRead(n *ast.ReadStmt) {
	for _, target := range n.Targets {
		addr, t := fe.emitAddr(target)
		out := fe.newTemp()
		switch {
		case t.IsString():
			fe.writeln("\t%s =l call $%s()", out, runtimeabi.ReadString)
		case t.IsFloat():
			fe.writeln("\t%s =d call $%s()", out, runtimeabi.ReadDouble)
		default:
			fe.writeln("\t%s =w call $%s()", out, runtimeabi.ReadInt)
		}
		fe.store(out, addr, t)
	}
}

func (fe *funcEmitter) emitRestore(n *ast.RestoreStmt) {
	switch {
	case n.Target == "":
		fe.writeln("\tcall $%s()", runtimeabi.Restore)
	default:
		if line, err := strconv.Atoi(n.Target); err == nil {
			fe.writeln("\tcall $%s(w %d)", runtimeabi.RestoreToLine, line)
		} else {
			lbl := fe.pool.intern(n.Target)
			fe.writeln("\tcall $%s(l %s)", runtimeabi.RestoreToLabel, lbl)
		}
	}
}
