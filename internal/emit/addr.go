package emit

import (
	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// emitAddr evaluates x as an lvalue and returns a pointer temp to its
// storage plus its type. Every mutable location the front end recognizes
// (spec §4.5: Ident, ArrayAccess, MemberAccess) resolves to a plain
// memory address here, so LetStmt and compound accesses share one code
// path for "where do I store/load".
func (fe *funcEmitter) emitAddr(x ast.Expr) (string, *typesys.Descriptor) {
	switch n := x.(type) {
	case *ast.Ident:
		return fe.identAddr(n.Name)
	case *ast.ArrayAccess:
		return fe.arrayElemAddr(n)
	case *ast.MemberAccess:
		return fe.memberAddr(n)
	default:
		fe.diags.Errorf(catEmission, x.Pos(), "internal error: %T is not an lvalue", x)
		return "0", typesys.New(typesys.UNKNOWN)
	}
}

// identAddr resolves a bare name to a memory address: a local's own
// alloca, or the runtime global vector slot for a GLOBAL (spec §4.6:
// "global access is never treated as an SSA scalar").
func (fe *funcEmitter) identAddr(name string) (string, *typesys.Descriptor) {
	if addr, ok := fe.localAddr[name]; ok {
		v, _ := fe.sym.LookupVariable(fe.scope, name)
		return addr, v.Type
	}
	if arrAddr, ok := fe.localArrayAddr[name]; ok {
		a, _ := fe.sym.LookupArray(fe.scope, name)
		return arrAddr, a.Descriptor()
	}
	if v, ok := fe.sym.LookupVariable(symtab.GlobalScope, name); ok {
		return fe.globalAddr(name), v.Type
	}
	if a, ok := fe.sym.LookupArray(symtab.GlobalScope, name); ok {
		return fe.globalAddr(name), a.Descriptor()
	}
	fe.diags.Errorf(catEmission, ast.Location{}, "internal error: undeclared identifier %q reached emission", name)
	return "0", typesys.New(typesys.UNKNOWN)
}

// globalAddr computes basic_global_base() + 8*slot, the fixed-contract
// way every GLOBAL is reached (spec §4.6).
func (fe *funcEmitter) globalAddr(name string) string {
	slot := fe.globalSlot[symtab.GlobalScope.Key(name)]
	base := fe.newTemp()
	fe.writeln("\t%s =l call $%s()", base, runtimeabi.GlobalBase)
	addr := fe.newTemp()
	fe.writeln("\t%s =l add %s, %d", addr, base, 8*slot)
	return addr
}

// arrayElemAddr flattens a multi-dimensional index against the array's
// declared bounds and asks the runtime for the element's address (spec
// §3.4: arrays are opaque runtime handles, never raw pointers the front
// end computes strides into directly — only the flattened index is ours
// to compute, at compile time when bounds are constant).
func (fe *funcEmitter) arrayElemAddr(n *ast.ArrayAccess) (string, *typesys.Descriptor) {
	handleAddr, arrType := fe.emitAddr(n.Array)
	handle := fe.newTemp()
	fe.writeln("\t%s =l loadl %s", handle, handleAddr)

	dims := arrType.Dims
	idx := fe.newTemp()
	fe.writeln("\t%s =l copy 0", idx)
	for i, dim := range dims {
		if i >= len(n.Indices) {
			break
		}
		stride := 1
		for j := i + 1; j < len(dims); j++ {
			stride *= dims[j].Upper - dims[j].Lower + 1
		}
		iv, _ := fe.emitExpr(n.Indices[i])
		ivL := fe.widen(iv, "l")
		rel := fe.newTemp()
		fe.writeln("\t%s =l sub %s, %d", rel, ivL, dim.Lower)
		term := rel
		if stride != 1 {
			term = fe.newTemp()
			fe.writeln("\t%s =l mul %s, %d", term, rel, stride)
		}
		next := fe.newTemp()
		fe.writeln("\t%s =l add %s, %s", next, idx, term)
		idx = next
	}

	addr := fe.newTemp()
	fe.writeln("\t%s =l call $%s(l %s, l %s)", addr, runtimeabi.ArrayGetAddress, handle, idx)
	return addr, arrType.Element
}

// memberAddr walks one hop of a record member chain: a struct local's
// own address plus the field's precomputed byte offset, dereferencing
// once first if the base is a pointer-to-record.
func (fe *funcEmitter) memberAddr(n *ast.MemberAccess) (string, *typesys.Descriptor) {
	baseAddr, baseType := fe.emitAddr(n.X)
	target := baseType
	addr := baseAddr
	if target.IsPointer() {
		deref := fe.newTemp()
		fe.writeln("\t%s =l loadl %s", deref, baseAddr)
		addr = deref
		target = target.Element
	}
	rt, ok := fe.sym.LookupRecordByID(target.RecordID)
	if !ok {
		fe.diags.Errorf(catEmission, n.Pos(), "internal error: unknown record_id %d", target.RecordID)
		return addr, typesys.New(typesys.UNKNOWN)
	}
	f := rt.FieldByName(n.Field)
	if f == nil {
		fe.diags.Errorf(catEmission, n.Pos(), "internal error: unknown field %q", n.Field)
		return addr, typesys.New(typesys.UNKNOWN)
	}
	if f.Offset == 0 {
		return addr, f.Type
	}
	out := fe.newTemp()
	fe.writeln("\t%s =l add %s, %d", out, addr, f.Offset)
	return out, f.Type
}

func (fe *funcEmitter) load(addr string, t *typesys.Descriptor) string {
	tmp := fe.newTemp()
	fe.writeln("\t%s =%s %s %s", tmp, t.QBEScalar(), t.LoadOp(), addr)
	return tmp
}

func (fe *funcEmitter) store(val string, addr string, t *typesys.Descriptor) {
	fe.writeln("\t%s %s, %s", t.StoreOp(), val, addr)
}

// widen casts val (already loaded into a QBE scalar class) up to width,
// used where a computed index or offset needs to be a QBE "l" before
// pointer arithmetic.
func (fe *funcEmitter) widen(val, width string) string {
	if width == "l" {
		out := fe.newTemp()
		fe.writeln("\t%s =l extsw %s", out, val)
		return out
	}
	return val
}
