package ast

// IntLit is an integer literal.
type IntLit struct {
	base
	Val int64
}

// FloatLit is a floating-point literal (always parsed as a double by the
// external lexer; the front end default-types it as DOUBLE per spec §4.1).
type FloatLit struct {
	base
	Val float64
}

// StringLit is a string literal.
type StringLit struct {
	base
	Val string
}

// BoolLit is a boolean literal (BASIC has no literal syntax for these in
// most dialects, but relational/ logical sub-expressions fold to one).
type BoolLit struct {
	base
	Val bool
}

// Ident is a bare identifier: a variable, constant, or parameter name.
type Ident struct {
	base
	Name string
}

// ArrayAccess indexes into an array variable.
type ArrayAccess struct {
	base
	Array   Expr
	Indices []Expr
}

// MemberAccess walks one hop of a record member chain (a.b.c parses as
// nested MemberAccess nodes).
type MemberAccess struct {
	base
	X     Expr
	Field string
}

// CallExpr is a function call or builtin invocation used as an expression.
type CallExpr struct {
	base
	Callee string
	Args   []Expr
}

// UnaryExpr applies a prefix operator: "-", "NOT".
type UnaryExpr struct {
	base
	Op string
	X  Expr
}

// BinaryExpr applies an infix operator.
type BinaryExpr struct {
	base
	Op   string
	X, Y Expr
}

func (*IntLit) exprNode()       {}
func (*FloatLit) exprNode()     {}
func (*StringLit) exprNode()    {}
func (*BoolLit) exprNode()      {}
func (*Ident) exprNode()        {}
func (*ArrayAccess) exprNode()  {}
func (*MemberAccess) exprNode() {}
func (*CallExpr) exprNode()     {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}
