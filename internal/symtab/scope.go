package symtab

import "fmt"

// ScopeKind distinguishes module-level bindings from procedure-local ones.
type ScopeKind int

const (
	Global ScopeKind = iota
	Function
)

func (k ScopeKind) String() string {
	if k == Global {
		return "global"
	}
	return "function"
}

// Scope identifies where a symbol lives: globally, or inside one
// procedure's activation. No pass sets Block, so it stays 0; Key does
// not include it.
type Scope struct {
	Kind  ScopeKind
	Name  string // procedure name when Kind==Function, "" when Global
	Block int
}

// Key returns the scope-qualified symbol table key described in the
// glossary: "<kind>:<scopename>::<varname>". Globals and function locals
// with the same name hash to different keys, so there is never a
// shadowing collision (spec §3.2 invariant).
func (s Scope) Key(name string) string {
	return fmt.Sprintf("%s:%s::%s", s.Kind, s.Name, name)
}

// GlobalScope is the single module-wide scope, used only for GLOBAL
// declarations.
var GlobalScope = Scope{Kind: Global}

// MainScope is the implicit top-level procedure's scope: a DIM that
// lexically sits outside any SUB/FUNCTION is local to the main program,
// not a GLOBAL (spec §4.2 pass 1 distinguishes the two).
var MainScope = Scope{Kind: Function, Name: ""}

// FuncScope returns the scope for the named procedure's locals.
func FuncScope(name string) Scope {
	return Scope{Kind: Function, Name: name}
}
