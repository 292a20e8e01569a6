// Package diag implements the compile-time diagnostic collection
// described in spec §7: semantic and CFG errors abort before the next
// stage runs, lossy-coercion warnings are recorded but never abort, and
// every diagnostic prints as "file:line:col: kind: message".
package diag

import (
	"fmt"

	"github.com/albanread/fbcqbe/internal/ast"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Severity distinguishes a fatal diagnostic from an advisory one.
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Warning {
		return "warning"
	}
	return "error"
}

// Category is the error taxonomy from spec §7.
type Category int

const (
	CatParse Category = iota
	CatSemantic
	CatCFG
	CatEmission
	CatRuntime
)

func (c Category) String() string {
	switch c {
	case CatParse:
		return "parse"
	case CatSemantic:
		return "semantic"
	case CatCFG:
		return "cfg"
	case CatEmission:
		return "emission"
	default:
		return "runtime"
	}
}

// Diagnostic is one compile-time message.
type Diagnostic struct {
	Severity Severity
	Category Category
	Loc      ast.Location
	Message  string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", locFile(d.Loc), d.Loc.Line, d.Loc.Col, d.Severity, d.Message)
}

func locFile(l ast.Location) string {
	if l.File == "" {
		return "<input>"
	}
	return l.File
}

// Bag accumulates diagnostics across a compilation, the way the
// Semantic Analyzer and CFG Builder are required to (spec §7: "the
// first such error aborts before CFG construction"). It uses
// go.uber.org/multierr so callers combine many independent diagnostics
// without hand-rolling nil-checks, and github.com/pkg/errors to wrap
// diagnostics that bubble up across a package boundary with caller
// context.
type Bag struct {
	items  []Diagnostic
	log    *zap.SugaredLogger
	errAgg error
}

// NewBag returns an empty diagnostic bag. A nil logger is replaced with
// a no-op logger so library consumers get silence by default (see
// SPEC_FULL.md's ambient-stack logging note).
func NewBag(log *zap.SugaredLogger) *Bag {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Bag{log: log}
}

// Errorf records a fatal diagnostic.
func (b *Bag) Errorf(cat Category, loc ast.Location, format string, args ...any) {
	d := Diagnostic{Severity: Error, Category: cat, Loc: loc, Message: fmt.Sprintf(format, args...)}
	b.items = append(b.items, d)
	b.errAgg = multierr.Append(b.errAgg, d)
	b.log.Errorw(d.Message, "category", cat.String(), "loc", loc.String())
}

// Warnf records a non-fatal diagnostic (e.g. ImplicitLossy coercion).
func (b *Bag) Warnf(cat Category, loc ast.Location, format string, args ...any) {
	d := Diagnostic{Severity: Warning, Category: cat, Loc: loc, Message: fmt.Sprintf(format, args...)}
	b.items = append(b.items, d)
	b.log.Warnw(d.Message, "category", cat.String(), "loc", loc.String())
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns every recorded diagnostic, in recording order.
func (b *Bag) All() []Diagnostic { return b.items }

// Merge appends other's diagnostics onto b, in other's recording order.
// Used to fold back per-goroutine bags after a parallel build stage (spec
// SPEC_FULL.md's errgroup-parallel CFG construction): each worker gets its
// own Bag so concurrent Errorf/Warnf calls never race, and the caller
// merges them back in a fixed, deterministic order once the group joins.
func (b *Bag) Merge(other *Bag) {
	for _, d := range other.items {
		b.items = append(b.items, d)
		if d.Severity == Error {
			b.errAgg = multierr.Append(b.errAgg, d)
		}
	}
}

// Err returns the aggregated error (nil if there are no Error-severity
// diagnostics), suitable for a caller that just wants a go error value
// to wrap with pkgerrors.Wrap at a package boundary.
func (b *Bag) Err() error {
	if !b.HasErrors() {
		return nil
	}
	return b.errAgg
}

// Wrap annotates err with a stage name using github.com/pkg/errors, the
// way a CFG-construction failure is wrapped before it's returned from
// the top-level Compile entry point.
func Wrap(err error, stage string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, stage)
}
