// Package compiler is the top-level driver tying the pipeline stages
// together: Semantic Analyzer → CFG Builder → CFG/AST Emitter, producing
// QBE IL text from a parsed program (spec §6's external interface). The
// parser and DATA preprocessor that feed this entry point are out of
// scope; Compile accepts their output directly.
package compiler

import (
	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/cfg"
	"github.com/albanread/fbcqbe/internal/dataprep"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/emit"
	"github.com/albanread/fbcqbe/internal/semantic"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// Options configures one Compile call. The zero value is a valid,
// silent, strict-off configuration (spec's "silent narrowing coercion"
// default, SPEC_FULL.md's Open Question 2 decision).
type Options struct {
	// Log receives structured tracing of pass boundaries, emitter
	// progress, and each recorded diagnostic (SPEC_FULL.md ambient-stack
	// logging note). Nil means silent.
	Log *zap.SugaredLogger

	// Data is the DATA preprocessor's output; nil for a program with no
	// DATA statements.
	Data *dataprep.Result

	// StrictOverflow, when true, would surface narrowing-coercion
	// warnings at Warn level instead of staying silent. Not yet wired to
	// any diagnostic site — a hook for the ambient logging stack to grow
	// into, per SPEC_FULL.md's Open Question 2 decision.
	StrictOverflow bool
}

// Result is everything a caller of Compile might want back: the
// generated IL plus the intermediate state the debug dump surface
// (cmd/qbecdump) also needs.
type Result struct {
	IL    string
	Sym   *ast.Program
	CFG   *cfg.ProgramCFG
	Diags []diag.Diagnostic
}

// Compile runs the full pipeline on prog and returns the QBE IL text. An
// error aborts before the next stage runs (spec §7: "the first such
// error aborts before CFG construction"); the error-severity diagnostics
// recorded up to that point are attached to the returned error via
// pkgerrors.Wrap, and Result.Diags holds every diagnostic, warnings
// included.
func Compile(prog *ast.Program, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	diags := diag.NewBag(log)

	log.Debug("compile: semantic analysis")
	analyzer := semantic.New(diags, log)
	sym := analyzer.Analyze(prog)
	if diags.HasErrors() {
		return &Result{Sym: prog, Diags: diags.All()}, diag.Wrap(diags.Err(), "semantic analysis")
	}

	log.Debug("compile: cfg construction")
	builder := cfg.NewBuilder(sym, diags)
	pc := builder.BuildProgram(prog)
	if diags.HasErrors() {
		return &Result{Sym: prog, CFG: pc, Diags: diags.All()}, diag.Wrap(diags.Err(), "cfg construction")
	}

	log.Debug("compile: emission")
	emitter := emit.New(sym, diags, log)
	il, err := emitter.Emit(pc, opts.Data)
	if err != nil {
		return &Result{Sym: prog, CFG: pc, Diags: diags.All()}, pkgerrors.Wrap(err, "emission")
	}

	return &Result{IL: il, Sym: prog, CFG: pc, Diags: diags.All()}, nil
}
