// Package ast defines the external AST contract this compiler core
// consumes. Per spec §6, the lexer and parser are out of scope — this
// package only fixes the shape of the tree they hand to SemanticAnalyzer,
// the way go/ast fixes a shape for go/parser without implementing one
// itself. No part of the core ever looks at source text directly.
package ast

// Location is a source position, carried by every node for diagnostics.
type Location struct {
	File string
	Line int
	Col  int
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return l.File
}

// Node is the root of the AST interface hierarchy.
type Node interface {
	Pos() Location
}

// Expr is any expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is any statement node.
type Stmt interface {
	Node
	stmtNode()
}

// base embeds a Location and supplies Pos() for every concrete node.
type base struct {
	Loc Location
}

func (b base) Pos() Location { return b.Loc }
