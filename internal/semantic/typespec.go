// Package semantic implements the two-pass semantic analyzer from spec
// §4.2: pass 1 declares every record, global, DIM, and procedure
// signature; pass 2 walks statement bodies, inferring and checking every
// expression against the symbol table pass 1 built.
package semantic

import (
	"strings"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

var baseNameKind = map[string]typesys.BaseKind{
	"BYTE": typesys.BYTE, "SHORT": typesys.SHORT, "INTEGER": typesys.INTEGER, "LONG": typesys.LONG,
	"UBYTE": typesys.UBYTE, "USHORT": typesys.USHORT, "UINTEGER": typesys.UINTEGER, "ULONG": typesys.ULONG,
	"SINGLE": typesys.SINGLE, "DOUBLE": typesys.DOUBLE,
	"STRING": typesys.STRING, "UNICODE": typesys.UNICODE,
}

// resolveTypeSpec resolves a syntactic TypeSpec to a typesys.Descriptor,
// looking up record names in sym. Array bounds that are not constant
// int literals fall back to [0,0] with a diagnostic — REDIM exists
// precisely because most BASIC arrays are sized at runtime, but a DIM's
// declared bounds (when present) must be compile-time constants.
func (a *Analyzer) resolveTypeSpec(spec *ast.TypeSpec) *typesys.Descriptor {
	if spec == nil {
		return typesys.New(typesys.VOID)
	}
	name := strings.ToUpper(spec.BaseName)

	var elem *typesys.Descriptor
	if base, ok := baseNameKind[name]; ok {
		elem = typesys.New(base)
	} else if rt, ok := a.Sym.LookupRecord(spec.BaseName); ok {
		elem = typesys.NewRecord(rt.ID, rt.Name)
	} else {
		a.Diags.Errorf(categorySemantic, spec.Pos(), "unknown type %q", spec.BaseName)
		elem = typesys.New(typesys.UNKNOWN)
	}

	if spec.IsPtr {
		elem = typesys.NewPointer(elem)
	}

	if spec.IsArray {
		dims := make([]typesys.DimRange, 0, len(spec.Dims))
		for _, d := range spec.Dims {
			lower := 0
			upper := 0
			if d.Lower != nil {
				lower = a.evalConstInt(d.Lower)
			}
			if d.Upper != nil {
				upper = a.evalConstInt(d.Upper)
			}
			dims = append(dims, typesys.DimRange{Lower: lower, Upper: upper})
		}
		return typesys.NewArray(elem, dims)
	}
	return elem
}

// evalConstInt folds a compile-time-constant integer expression (literal
// or CONSTANT reference) used in array bounds. Anything else is flagged
// and treated as 0 — the emitter never sees an unresolved bound because
// DIM bounds that aren't constant are a semantic error, not a runtime one.
func (a *Analyzer) evalConstInt(e ast.Expr) int {
	switch n := e.(type) {
	case *ast.IntLit:
		return int(n.Val)
	case *ast.UnaryExpr:
		if n.Op == "-" {
			return -a.evalConstInt(n.X)
		}
		return a.evalConstInt(n.X)
	case *ast.Ident:
		if c, ok := a.Sym.LookupConstant(n.Name); ok && c.Kind == symtab.ConstInt {
			return int(c.IVal)
		}
		a.Diags.Errorf(categorySemantic, e.Pos(), "array bound %q is not a compile-time integer constant", n.Name)
		return 0
	default:
		a.Diags.Errorf(categorySemantic, e.Pos(), "array bound must be a compile-time integer constant")
		return 0
	}
}
