package ast

// TypeSpec is the syntactic type annotation attached to a DIM, GLOBAL,
// parameter, return type, or field declaration, before semantic analysis
// resolves it to a typesys.Descriptor.
type TypeSpec struct {
	Loc      Location
	BaseName string // "INTEGER", "STRING", "LONG", or a record type name
	IsArray  bool
	Dims     []DimSpec
	Elem     *TypeSpec // element type when IsArray
	IsPtr    bool
}

func (t *TypeSpec) Pos() Location { return t.Loc }

// DimSpec is one (lower, upper) array bound pair. Bounds are expressions
// because BASIC allows constant expressions, not just literals.
type DimSpec struct {
	Lower Expr // nil means default lower bound (0)
	Upper Expr
}

// FieldSpec is one field of a TYPE...END TYPE declaration.
type FieldSpec struct {
	Loc  Location
	Name string
	Type *TypeSpec
}

// ParamSpec is one SUB/FUNCTION parameter.
type ParamSpec struct {
	Loc   Location
	Name  string
	Type  *TypeSpec
	ByRef bool
}
