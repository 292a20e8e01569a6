// Package symtab implements the scoped symbol table described in spec
// §3.2: separate maps for variables, arrays, procedures, record types,
// constants, and per-procedure jump labels. It is mutated only during
// semantic analysis (spec §5's shared-resource policy) and is read-only
// from CFG construction onward.
package symtab

import (
	"strings"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// VarSymbol is a scalar (non-array) variable binding.
type VarSymbol struct {
	Name  string
	Scope Scope
	Type  *typesys.Descriptor
}

// ArraySymbol is an array variable binding. Kept in its own map per
// spec §3.2 even though the key space does not overlap with Variables,
// so callers never have to guess which map to probe.
type ArraySymbol struct {
	Name    string
	Scope   Scope
	Element *typesys.Descriptor
	Dims    []typesys.DimRange
}

// Descriptor returns the full ARRAY_DESC type of this array.
func (a *ArraySymbol) Descriptor() *typesys.Descriptor {
	return typesys.NewArray(a.Element, a.Dims)
}

// ParamInfo is one formal parameter of a procedure, recorded both on the
// ProcSymbol's signature and — per spec §3.2 — as a VarSymbol in that
// procedure's own scope so the emitter can look it up by name.
type ParamInfo struct {
	Name  string
	Type  *typesys.Descriptor
	ByRef bool
}

// ProcSymbol is a SUB or FUNCTION declaration. Procedures are always
// global (BASIC has no nested procedures).
type ProcSymbol struct {
	Name       string
	Params     []ParamInfo
	IsFunction bool
	RetType    *typesys.Descriptor // VOID for a SUB
	Decl       *ast.ProcDecl
}

// FieldInfo is one field of a record type, with its precomputed
// byte offset within the record.
type FieldInfo struct {
	Name   string
	Type   *typesys.Descriptor
	Offset int
}

// RecordType is a user-defined TYPE...END TYPE declaration. Identity is
// by ID, never by name or structure (spec §3.1 invariant).
type RecordType struct {
	ID     int
	Name   string
	Fields []FieldInfo
	Size   int
}

// FieldByName returns the field descriptor for name, or nil.
func (r *RecordType) FieldByName(name string) *FieldInfo {
	for i := range r.Fields {
		if strings.EqualFold(r.Fields[i].Name, name) {
			return &r.Fields[i]
		}
	}
	return nil
}

// ConstKind tags which payload field of ConstSymbol is live.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
)

// ConstSymbol is a compile-time constant; CONSTANT statements are
// inlined at every use site rather than given storage (spec §4.5).
type ConstSymbol struct {
	Name  string
	Kind  ConstKind
	Type  *typesys.Descriptor
	IVal  int64
	FVal  float64
	SVal  string
}

// Table is the full symbol table for one compilation unit.
type Table struct {
	Variables  map[string]*VarSymbol  // key: Scope.Key(name)
	Arrays     map[string]*ArraySymbol // key: Scope.Key(name)
	Procedures map[string]*ProcSymbol  // key: name (case-insensitive, global)
	Records    map[string]*RecordType  // key: name (case-insensitive)
	Constants  map[string]*ConstSymbol // key: name (case-insensitive, global)
	Labels     map[string]map[string]bool // key: procedure name ("" = main) -> declared label/line set

	nextRecordID int
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{
		Variables:    make(map[string]*VarSymbol),
		Arrays:       make(map[string]*ArraySymbol),
		Procedures:   make(map[string]*ProcSymbol),
		Records:      make(map[string]*RecordType),
		Constants:    make(map[string]*ConstSymbol),
		Labels:       make(map[string]map[string]bool),
		nextRecordID: 1,
	}
}

func ciKey(name string) string { return strings.ToUpper(name) }

// DeclareRecord registers a new record type and assigns it a unique,
// stable record_id. Returns an error if the name is already declared.
func (t *Table) DeclareRecord(name string) (*RecordType, error) {
	key := ciKey(name)
	if _, exists := t.Records[key]; exists {
		return nil, DuplicateDeclErr{Kind: "record type", Name: name}
	}
	rt := &RecordType{ID: t.nextRecordID, Name: name}
	t.nextRecordID++
	t.Records[key] = rt
	return rt, nil
}

// LookupRecord finds a record type by name.
func (t *Table) LookupRecord(name string) (*RecordType, bool) {
	rt, ok := t.Records[ciKey(name)]
	return rt, ok
}

// LookupRecordByID finds a record type by its unique record_id, the
// identity the type system itself uses (spec §3.1).
func (t *Table) LookupRecordByID(id int) (*RecordType, bool) {
	return t.recordByID(id)
}

// DeclareVariable registers a scalar variable in scope. Returns an error
// if already declared in the same scope.
func (t *Table) DeclareVariable(scope Scope, name string, typ *typesys.Descriptor) (*VarSymbol, error) {
	key := scope.Key(name)
	if _, exists := t.Variables[key]; exists {
		return nil, DuplicateDeclErr{Kind: "variable", Name: name}
	}
	v := &VarSymbol{Name: name, Scope: scope, Type: typ}
	t.Variables[key] = v
	return v, nil
}

// LookupVariable resolves name in exactly the given scope; it does not
// fall back to GlobalScope. Callers that make globals visible inside a
// procedure (the analyzer's identifier inference, the emitter's address
// resolution) look in GlobalScope themselves.
func (t *Table) LookupVariable(scope Scope, name string) (*VarSymbol, bool) {
	v, ok := t.Variables[scope.Key(name)]
	return v, ok
}

// DeclareArray registers an array variable in scope.
func (t *Table) DeclareArray(scope Scope, name string, elem *typesys.Descriptor, dims []typesys.DimRange) (*ArraySymbol, error) {
	key := scope.Key(name)
	if _, exists := t.Arrays[key]; exists {
		return nil, DuplicateDeclErr{Kind: "array", Name: name}
	}
	a := &ArraySymbol{Name: name, Scope: scope, Element: elem, Dims: dims}
	t.Arrays[key] = a
	return a, nil
}

// LookupArray resolves an array by scope and name.
func (t *Table) LookupArray(scope Scope, name string) (*ArraySymbol, bool) {
	a, ok := t.Arrays[scope.Key(name)]
	return a, ok
}

// DeclareProcedure registers a SUB/FUNCTION signature globally.
func (t *Table) DeclareProcedure(p *ProcSymbol) error {
	key := ciKey(p.Name)
	if _, exists := t.Procedures[key]; exists {
		return DuplicateDeclErr{Kind: "procedure", Name: p.Name}
	}
	t.Procedures[key] = p
	return nil
}

// LookupProcedure finds a procedure by name.
func (t *Table) LookupProcedure(name string) (*ProcSymbol, bool) {
	p, ok := t.Procedures[ciKey(name)]
	return p, ok
}

// DeclareConstant registers a global constant.
func (t *Table) DeclareConstant(c *ConstSymbol) error {
	key := ciKey(c.Name)
	if _, exists := t.Constants[key]; exists {
		return DuplicateDeclErr{Kind: "constant", Name: c.Name}
	}
	t.Constants[key] = c
	return nil
}

// LookupConstant finds a constant by name.
func (t *Table) LookupConstant(name string) (*ConstSymbol, bool) {
	c, ok := t.Constants[ciKey(name)]
	return c, ok
}

// DeclareLabel records a jump target (label or line number) for a
// procedure ("" denotes the implicit main program), used by the
// semantic analyzer to validate GOTO/GOSUB/ON...GOTO targets before CFG
// construction ever runs.
func (t *Table) DeclareLabel(proc, name string) {
	set, ok := t.Labels[proc]
	if !ok {
		set = make(map[string]bool)
		t.Labels[proc] = set
	}
	set[name] = true
}

// HasLabel reports whether name was declared as a jump target in proc.
func (t *Table) HasLabel(proc, name string) bool {
	set, ok := t.Labels[proc]
	if !ok {
		return false
	}
	return set[name]
}

// DuplicateDeclErr reports a name collision during declaration (spec
// §3.1 invariant: "Name collisions during declaration are an error").
type DuplicateDeclErr struct {
	Kind string
	Name string
}

func (e DuplicateDeclErr) Error() string {
	return "duplicate " + e.Kind + " declaration: " + e.Name
}
