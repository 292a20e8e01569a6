package semantic

import (
	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/symtab"
	"go.uber.org/zap"
)

const categorySemantic = diag.CatSemantic

// Analyzer walks an ast.Program, declaring and then validating every
// symbol, the way spec §4.2 describes. The symbol table it builds is
// read-only from CFG construction onward (spec §5).
type Analyzer struct {
	Sym   *symtab.Table
	Diags *diag.Bag
	log   *zap.SugaredLogger

	// curScope is the scope pass 2 resolves identifiers in (the
	// procedure whose body it is walking, or the main program's), and
	// inProc tells RETURN validation whether it is inside a procedure.
	curScope symtab.Scope
	inProc   bool
}

// New returns an Analyzer with a fresh symbol table.
func New(diags *diag.Bag, log *zap.SugaredLogger) *Analyzer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Analyzer{Sym: symtab.New(), Diags: diags, log: log}
}

// Analyze runs pass 1 and, if pass 1 recorded no errors, pass 2 over
// prog, and returns the populated symbol table. Neither pass stops at
// its first error, so each reports every error it finds in one compile.
// Per spec §7, the caller must check Diags.HasErrors() before
// proceeding to CFG construction.
func (a *Analyzer) Analyze(prog *ast.Program) *symtab.Table {
	a.log.Debug("semantic: pass 1 (declarations)")
	a.declareConsts(prog)
	a.declareRecords(prog)
	a.declareGlobals(prog)
	a.declareDims(prog)
	a.declareProcSignatures(prog)
	a.collectLabels(prog)

	if a.Diags.HasErrors() {
		// Pass 1 failures (e.g. a duplicate record name) make pass 2's
		// lookups meaningless; spec §7 says the first error aborts
		// before CFG construction, and malformed pass-1 state would
		// just produce a flood of spurious pass-2 errors.
		return a.Sym
	}

	a.log.Debug("semantic: pass 2 (validation)")
	a.validateProgram(prog)
	return a.Sym
}
