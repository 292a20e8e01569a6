// Package emit implements the two emitters spec §4.4/§4.5 describe as
// one stage: the CFG Emitter walks block order and emits terminators,
// delegating every non-control statement and every expression to the
// AST Emitter. Together they produce a single QBE IL translation unit
// (spec §6).
package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/albanread/fbcqbe/internal/cfg"
	"github.com/albanread/fbcqbe/internal/dataprep"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
	"go.uber.org/zap"
)

// Emitter holds all state threaded through one compilation's IL
// generation: the symbol table (read-only from here on, per spec §5),
// the running output buffer, the string pool, and per-function temp/
// block-id counters reset at the start of each procedure.
type Emitter struct {
	sym   *symtab.Table
	diags *diag.Bag
	log   *zap.SugaredLogger

	out  strings.Builder
	pool *stringPool

	tempN int

	// globalSlot assigns each GLOBAL variable and array a dense slot
	// index into the runtime global vector (spec §4.6), keyed by
	// symtab.GlobalScope.Key(name): variables first, then arrays, each
	// group in sorted key order.
	globalSlot map[string]int
}

// New returns an Emitter. A nil logger is replaced with a no-op one.
func New(sym *symtab.Table, diags *diag.Bag, log *zap.SugaredLogger) *Emitter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Emitter{sym: sym, diags: diags, log: log, pool: newStringPool(), globalSlot: make(map[string]int)}
}

func (e *Emitter) writeln(format string, args ...any) {
	fmt.Fprintf(&e.out, format, args...)
	e.out.WriteByte('\n')
}

func (e *Emitter) newTemp() string {
	e.tempN++
	return fmt.Sprintf("%%t%d", e.tempN)
}

func blockLabel(id cfg.BlockID) string { return fmt.Sprintf("@block_%d", int(id)) }

// Emit produces the complete QBE IL text for one compiled program. data
// is the DATA preprocessor's output (spec §6's external interface);
// nil is accepted for programs with no DATA statements.
func (e *Emitter) Emit(pc *cfg.ProgramCFG, data *dataprep.Result) (string, error) {
	e.log.Debug("emit: collecting string pool")
	e.collect(pc)
	e.assignGlobalSlots()

	e.emitRecordTypes()
	e.emitDataSection(data)

	e.log.Debug("emit: main")
	e.emitFunction("main", pc.Main)
	e.emitEntryPoint()

	var procNames []string
	for name := range pc.Procs {
		procNames = append(procNames, name)
	}
	sort.Strings(procNames)
	for _, name := range procNames {
		e.log.Debugw("emit: procedure", "name", name)
		e.emitFunction(name, pc.Procs[name])
	}

	if e.diags.HasErrors() {
		return "", diag.Wrap(e.diags.Err(), "emit")
	}
	return e.out.String(), nil
}

func (e *Emitter) assignGlobalSlots() {
	var varKeys, arrKeys []string
	for key, v := range e.sym.Variables {
		if v.Scope == symtab.GlobalScope {
			varKeys = append(varKeys, key)
		}
	}
	for key, a := range e.sym.Arrays {
		if a.Scope == symtab.GlobalScope {
			arrKeys = append(arrKeys, key)
		}
	}
	sort.Strings(varKeys)
	sort.Strings(arrKeys)
	i := 0
	for _, key := range append(varKeys, arrKeys...) {
		if _, ok := e.globalSlot[key]; ok {
			continue
		}
		e.globalSlot[key] = i
		i++
	}
}

func (e *Emitter) emitRecordTypes() {
	var names []string
	for name := range e.sym.Records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rt := e.sym.Records[name]
		var fields []string
		for _, f := range rt.Fields {
			fields = append(fields, f.Type.QBEScalar())
		}
		e.writeln("type :%s = { %s }", rt.Name, strings.Join(fields, ", "))
	}
}

func (e *Emitter) emitDataSection(data *dataprep.Result) {
	for i, s := range e.pool.order {
		e.writeln("data $str_%d = align 8 { b \"%s\", b 0 }", i, escapeQBEString(s))
	}

	if data != nil && len(data.Values) > 0 {
		var vals []string
		var tags []string
		for _, v := range data.Values {
			switch v.Kind {
			case dataprep.KindInt:
				vals = append(vals, fmt.Sprintf("l %d", v.I))
				tags = append(tags, "w 0")
			case dataprep.KindDouble:
				vals = append(vals, fmt.Sprintf("d_%v", v.D))
				tags = append(tags, "w 1")
			case dataprep.KindString:
				lbl := e.pool.intern(v.S)
				vals = append(vals, fmt.Sprintf("l %s", lbl))
				tags = append(tags, "w 2")
			}
		}
		e.writeln("data $data_values = align 8 { %s }", strings.Join(vals, ", "))
		e.writeln("data $data_tags = align 4 { %s }", strings.Join(tags, ", "))
	}

	nGlobals := len(e.globalSlot)
	e.writeln("data %s = align 8 { l %d }", runtimeabi.GlobalVector, nGlobals)
	e.writeln("data %s = align 8 { z %d }", runtimeabi.GosubReturnStack, runtimeabi.GosubStackDepth*8)
	e.writeln("data %s = align 8 { l 0 }", runtimeabi.GosubReturnSP)
}

func escapeQBEString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// emitFunction emits one SUB/FUNCTION (or main) as a QBE function,
// walking its CFG in block order (spec §4.4).
func (e *Emitter) emitFunction(name string, g *cfg.CFG) {
	e.tempN = 0
	retQBE := "w"
	if g.RetType != nil && g.RetType.Base != typesys.VOID {
		retQBE = g.RetType.QBEScalar()
	}
	var params []string
	scope := symtab.FuncScope(name)
	if name == "main" {
		scope = symtab.MainScope
		params = nil
	}
	for _, p := range g.Params {
		pt := typesys.New(typesys.INTEGER)
		if v, ok := e.sym.LookupVariable(scope, p); ok {
			pt = v.Type
		}
		params = append(params, fmt.Sprintf("%s %%%s", pt.QBEScalar(), p))
	}

	if g.RetType == nil || g.RetType.Base == typesys.VOID {
		e.writeln("export function $%s(%s) {", qbeFuncName(name), strings.Join(params, ", "))
	} else {
		e.writeln("export function %s $%s(%s) {", retQBE, qbeFuncName(name), strings.Join(params, ", "))
	}
	e.writeln("@start")

	fe := newFuncEmitter(e, g, scope, retQBE)
	fe.emitPrologue(g.Params, name == "main")
	e.writeln("\tjmp %s", blockLabel(g.Entry))

	for _, b := range g.Blocks {
		fe.emitBlock(b)
	}
	e.writeln("}")
	e.writeln("")
}

func qbeFuncName(name string) string {
	if name == "" || name == "main" {
		return "basic_main"
	}
	return name
}

// emitEntryPoint emits the real process entry point: it brings the
// runtime up, runs the BASIC program's top-level statements, and tears
// the runtime down (spec §4.6's fixed startup/shutdown sequence).
func (e *Emitter) emitEntryPoint() {
	nGlobals := len(e.globalSlot)
	e.writeln("export function w $main() {")
	e.writeln("@start")
	e.writeln("\tcall $%s()", runtimeabi.Init)
	e.writeln("\tcall $%s(w %d)", runtimeabi.GlobalInit, nGlobals)
	e.writeln("\tcall $basic_main()")
	e.writeln("\tcall $%s()", runtimeabi.GlobalCleanup)
	e.writeln("\tcall $%s()", runtimeabi.Cleanup)
	e.writeln("\tret 0")
	e.writeln("}")
	e.writeln("")
}
