package emit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/albanread/fbcqbe/internal/cfg"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/runtimeabi"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

const catEmission = diag.CatEmission

// funcEmitter holds the state local to emitting one procedure: its CFG,
// its scope, and the address of every local's storage. Splitting this
// out of Emitter keeps the string pool and global slot map — state that
// spans the whole program — from being reset every function (spec §4.4:
// "per-function temp/block-id counters reset at the start of each
// procedure", everything else is shared).
type funcEmitter struct {
	*Emitter
	cfg    *cfg.CFG
	scope  symtab.Scope
	retQBE string

	localAddr      map[string]string
	localArrayAddr map[string]string
	jmpbufAddr     map[cfg.BlockID]string

	// catchTargetToTry maps a TRY's catch-dispatch block back to the
	// SetjmpHere block that owns its jmp_buf, so a THROW or an unmatched
	// CATCH rethrow — which only know the catch-dispatch block — can
	// find the right buffer to longjmp into (spec §4.6's setjmp/longjmp
	// ABI).
	catchTargetToTry map[cfg.BlockID]cfg.BlockID
}

func newFuncEmitter(e *Emitter, g *cfg.CFG, scope symtab.Scope, retQBE string) *funcEmitter {
	fe := &funcEmitter{
		Emitter:          e,
		cfg:              g,
		scope:            scope,
		retQBE:           retQBE,
		localAddr:        make(map[string]string),
		localArrayAddr:   make(map[string]string),
		jmpbufAddr:       make(map[cfg.BlockID]string),
		catchTargetToTry: make(map[cfg.BlockID]cfg.BlockID),
	}
	for _, b := range g.Blocks {
		if !b.SetjmpHere {
			continue
		}
		for _, e := range b.Out {
			if e.Kind == cfg.Exception {
				fe.catchTargetToTry[e.To] = b.ID
			}
		}
	}
	return fe
}

// emitPrologue allocates stack storage for every local scalar, record,
// and array this procedure declares, plus one jmp_buf per TRY block, and
// copies incoming parameters into their slots. It must run inside the
// @start block, before the jmp into Entry (spec's ABI caveat: allocs
// come first so every later block can assume its locals already exist).
func (fe *funcEmitter) emitPrologue(params []string, isMain bool) {
	var names []string
	for key, v := range fe.sym.Variables {
		if v.Scope == fe.scope {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	for _, key := range names {
		v := fe.sym.Variables[key]
		size := fe.localSize(v.Type)
		addr := fe.newTemp()
		fe.writeln("\t%s =l alloc8 %d", addr, size)
		fe.localAddr[v.Name] = addr
	}

	var arrNames []string
	for key, a := range fe.sym.Arrays {
		if a.Scope == fe.scope {
			arrNames = append(arrNames, key)
		}
	}
	sort.Strings(arrNames)
	for _, key := range arrNames {
		a := fe.sym.Arrays[key]
		addr := fe.newTemp()
		fe.writeln("\t%s =l alloc8 8", addr)
		fe.localArrayAddr[a.Name] = addr
		handle := fe.newTemp()
		var dimArgs []string
		for _, d := range a.Dims {
			dimArgs = append(dimArgs, fmt.Sprintf("w %d, w %d", d.Lower, d.Upper))
		}
		elemSize := runtimeabi.ArrayElemSizeSuffix(a.Element.BitWidth()/8, a.Element.IsString() || a.Element.IsRecord())
		fe.writeln("\t%s =l call $%s(w %d, %s)", handle, runtimeabi.ArrayNew, elemSize, strings.Join(dimArgs, ", "))
		fe.writeln("\tstorel %s, %s", handle, addr)
	}

	if isMain {
		var globalArrNames []string
		for key, a := range fe.sym.Arrays {
			if a.Scope == symtab.GlobalScope {
				globalArrNames = append(globalArrNames, key)
			}
		}
		sort.Strings(globalArrNames)
		for _, key := range globalArrNames {
			a := fe.sym.Arrays[key]
			addr := fe.globalAddr(a.Name)
			handle := fe.newTemp()
			var dimArgs []string
			for _, d := range a.Dims {
				dimArgs = append(dimArgs, fmt.Sprintf("w %d, w %d", d.Lower, d.Upper))
			}
			elemSize := runtimeabi.ArrayElemSizeSuffix(a.Element.BitWidth()/8, a.Element.IsString() || a.Element.IsRecord())
			fe.writeln("\t%s =l call $%s(w %d, %s)", handle, runtimeabi.ArrayNew, elemSize, strings.Join(dimArgs, ", "))
			fe.writeln("\tstorel %s, %s", handle, addr)
		}
	}

	for _, pname := range params {
		addr, ok := fe.localAddr[pname]
		if !ok {
			continue
		}
		v, _ := fe.sym.LookupVariable(fe.scope, pname)
		fe.writeln("\t%s %%%s, %s", v.Type.StoreOp(), pname, addr)
	}

	// jmpBufSize is sized generously for a setjmp/longjmp save area across
	// supported targets; the runtime's actual jmp_buf layout is opaque to
	// the emitter (spec §4.6).
	const jmpBufSize = 200
	for _, b := range fe.cfg.Blocks {
		if !b.SetjmpHere {
			continue
		}
		addr := fe.newTemp()
		fe.writeln("\t%s =l alloc16 %d", addr, jmpBufSize)
		fe.jmpbufAddr[b.ID] = addr
	}
}

func (fe *funcEmitter) localSize(t *typesys.Descriptor) int {
	if t.IsRecord() {
		if rt, ok := fe.sym.LookupRecordByID(t.RecordID); ok && rt.Size > 0 {
			return rt.Size
		}
		return 8
	}
	w := t.BitWidth() / 8
	if w < 1 {
		w = 8
	}
	return w
}

func blockLabelName(id cfg.BlockID) string { return strings.TrimPrefix(blockLabel(id), "@") }

// emitBlock emits one block's label, its body, and its terminator. A
// SetjmpHere block needs setjmp as its very first instruction with
// nothing between it and the dispatching jnz (spec's ABI caveat), so its
// statements are emitted after a synthetic inner label instead of
// directly under the block's own.
func (fe *funcEmitter) emitBlock(b *cfg.BasicBlock) {
	fe.writeln("%s", blockLabel(b.ID))

	if b.SetjmpHere {
		buf := fe.jmpbufAddr[b.ID]
		sj := fe.newTemp()
		fe.writeln("\t%s =w call $%s(l %s)", sj, runtimeabi.SetJmp, buf)
		bodyLbl := fmt.Sprintf("@%s_body", blockLabelName(b.ID))
		catchTo := fe.cfg.Exit
		for _, e := range b.Out {
			if e.Kind == cfg.Exception {
				catchTo = e.To
			}
		}
		fe.writeln("\tjnz %s, %s, %s", sj, blockLabel(catchTo), bodyLbl)
		fe.writeln("%s", bodyLbl)
	}

	for _, s := range b.Stmts {
		fe.emitStmt(s)
	}

	fe.emitTerminator(b)
}

// emitTerminator lowers one block's outgoing edge set to a QBE
// terminator instruction, dispatching on the edge-kind combination the
// CFG builder produced (spec §4.4).
func (fe *funcEmitter) emitTerminator(b *cfg.BasicBlock) {
	kinds := make(map[cfg.EdgeKind]cfg.Edge)
	for _, e := range b.Out {
		if e.Kind != cfg.Exception || !b.SetjmpHere {
			kinds[e.Kind] = e
		}
	}

	switch {
	case len(b.Out) == 1 && b.Out[0].Kind == cfg.Exception:
		fe.emitThrow(b, b.Out[0].To)

	case hasKind(kinds, cfg.CondTrue, cfg.CondFalse):
		fe.emitCondBranch(b, kinds[cfg.CondTrue].To, kinds[cfg.CondFalse].To)

	case hasKind(kinds, cfg.Call, cfg.Fallthrough):
		fe.emitGosubCall(kinds[cfg.Call].To, kinds[cfg.Fallthrough].To)

	case containsCase(b.Out):
		fe.emitSwitch(b)

	case len(kinds) == 1 && (singleKind(kinds) == cfg.Jump || singleKind(kinds) == cfg.Fallthrough):
		fe.writeln("\tjmp %s", blockLabel(b.Out[0].To))

	case len(kinds) == 1 && singleKind(kinds) == cfg.Return:
		fe.emitReturn(b, kinds[cfg.Return].To)

	default:
		if len(b.Out) == 0 {
			fe.emitExit()
			return
		}
		fe.writeln("\tjmp %s", blockLabel(b.Out[0].To))
	}
}

// emitExit lowers the procedure's tidy_exit block (spec §5): a FUNCTION
// returns the value RETURN stored in its own-name variable, a SUB or the
// main program just returns.
func (fe *funcEmitter) emitExit() {
	if !fe.cfg.IsFunction {
		fe.writeln("\tret")
		return
	}
	addr, t := fe.identAddr(fe.cfg.ProcName)
	fe.writeln("\tret %s", fe.load(addr, t))
}

func hasKind(kinds map[cfg.EdgeKind]cfg.Edge, a, c cfg.EdgeKind) bool {
	_, ok1 := kinds[a]
	_, ok2 := kinds[c]
	return ok1 && ok2
}

func singleKind(kinds map[cfg.EdgeKind]cfg.Edge) cfg.EdgeKind {
	for k := range kinds {
		return k
	}
	return cfg.Jump
}

func containsCase(out []cfg.Edge) bool {
	for _, e := range out {
		if e.Kind == cfg.Case {
			return true
		}
	}
	return false
}

// emitCondBranch evaluates the block's condition (CondExpr directly, or
// a SELECT CASE When_Check comparing the shared selector against this
// arm's values) and branches.
func (fe *funcEmitter) emitCondBranch(b *cfg.BasicBlock, whenTrue, whenFalse cfg.BlockID) {
	var condVal string
	if b.HasSelectInit && len(b.CaseValues) > 0 {
		condVal = fe.emitCaseMatch(b)
	} else {
		cv, ct := fe.emitExpr(b.CondExpr)
		condVal = fe.castTo(cv, ct, typesysINTEGER())
	}
	fe.writeln("\tjnz %s, %s, %s", condVal, blockLabel(whenTrue), blockLabel(whenFalse))
}

func typesysINTEGER() *typesys.Descriptor { return typesys.New(typesys.INTEGER) }

// emitCaseMatch evaluates the selector owned by b.SelectInit once per
// When_Check block (re-reading the same expression would re-evaluate any
// side effect it has — spec §4.3 requires exactly one evaluation) and
// ORs together an equality test against each of this arm's values.
func (fe *funcEmitter) emitCaseMatch(b *cfg.BasicBlock) string {
	owner := fe.cfg.Block(b.SelectInit)
	selVal, selType := fe.emitExpr(owner.Selector)

	var acc string
	for i, v := range b.CaseValues {
		vv, vt := fe.emitExpr(v)
		rest := typesys.PromoteTypes(selType, vt)
		lv := fe.castTo(selVal, selType, rest)
		rv := fe.castTo(vv, vt, rest)
		cmp := fe.newTemp()
		fe.writeln("\t%s =w %s %s, %s", cmp, cmpMnemonic("=", rest), lv, rv)
		if i == 0 {
			acc = cmp
		} else {
			next := fe.newTemp()
			fe.writeln("\t%s =w or %s, %s", next, acc, cmp)
			acc = next
		}
	}
	return acc
}

// emitGosubCall pushes the return-site id onto the runtime GOSUB stack
// and jumps to the subroutine entry; control reaches returnPoint again
// only via the matching RETURN's dispatch (spec §4.6's ID-stack
// mechanism).
func (fe *funcEmitter) emitGosubCall(subEntry, returnPoint cfg.BlockID) {
	id := fe.returnPointIndex(returnPoint)
	sp := fe.newTemp()
	fe.writeln("\t%s =l loadl %s", sp, runtimeabi.GosubReturnSP)
	slotAddr := fe.newTemp()
	fe.writeln("\t%s =l add %s, 0", slotAddr, runtimeabi.GosubReturnStack)
	elemAddr := fe.newTemp()
	fe.writeln("\t%s =l add %s, %s", elemAddr, slotAddr, fe.scaled(sp, 8))
	fe.writeln("\tstorel %d, %s", id, elemAddr)
	nsp := fe.newTemp()
	fe.writeln("\t%s =l add %s, 1", nsp, sp)
	fe.writeln("\tstorel %s, %s", nsp, runtimeabi.GosubReturnSP)
	fe.writeln("\tjmp %s", blockLabel(subEntry))
}

func (fe *funcEmitter) scaled(val string, width int) string {
	out := fe.newTemp()
	fe.writeln("\t%s =l mul %s, %d", out, val, width)
	return out
}

func (fe *funcEmitter) returnPointIndex(id cfg.BlockID) int {
	for i, rp := range fe.cfg.ReturnPoints {
		if rp == id {
			return i
		}
	}
	return -1
}

// emitReturn pops the GOSUB return-stack; if it held an entry, dispatch
// to the matching return point via a comparison chain (QBE has no
// native jump table), otherwise take the procedure's real exit (spec
// §4.3: "looks up the return site from the GOSUB context stack or, if
// absent, via the runtime return stack").
func (fe *funcEmitter) emitReturn(b *cfg.BasicBlock, exit cfg.BlockID) {
	if b.ReturnValue != nil && fe.cfg.IsFunction {
		addr, lt := fe.identAddr(fe.cfg.ProcName)
		rv, rt := fe.emitExpr(b.ReturnValue)
		rv = fe.castTo(rv, rt, lt)
		if lt.IsString() {
			old := fe.load(addr, lt)
			fe.writeln("\tcall $%s(l %s)", runtimeabi.StringRelease, old)
			if !isOwnedStringExpr(b.ReturnValue) {
				fe.writeln("\tcall $%s(l %s)", runtimeabi.StringRetain, rv)
			}
		}
		fe.store(rv, addr, lt)
	}

	sp := fe.newTemp()
	fe.writeln("\t%s =l loadl %s", sp, runtimeabi.GosubReturnSP)
	empty := fe.newTemp()
	fe.writeln("\t%s =w ceql %s, 0", empty, sp)
	realExitLbl := fmt.Sprintf("@%s_realexit", blockLabelName(exit))
	dispatchLbl := fmt.Sprintf("@%s_dispatch", blockLabelName(exit))
	fe.writeln("\tjnz %s, %s, %s", empty, realExitLbl, dispatchLbl)

	fe.writeln("%s", dispatchLbl)
	nsp := fe.newTemp()
	fe.writeln("\t%s =l sub %s, 1", nsp, sp)
	fe.writeln("\tstorel %s, %s", nsp, runtimeabi.GosubReturnSP)
	base := fe.newTemp()
	fe.writeln("\t%s =l add %s, 0", base, runtimeabi.GosubReturnStack)
	elemAddr := fe.newTemp()
	fe.writeln("\t%s =l add %s, %s", elemAddr, base, fe.scaled(nsp, 8))
	id := fe.newTemp()
	fe.writeln("\t%s =l loadl %s", id, elemAddr)
	fe.emitIDChain(id, fe.cfg.ReturnPoints, realExitLbl)

	fe.writeln("%s", realExitLbl)
	fe.writeln("\tjmp %s", blockLabel(exit))
}

// emitIDChain walks targets as a comparison chain against id, jumping to
// the matching block; falls through to fallback if none match. This is
// the same "no native switch in QBE" pattern used for ON...GOTO/GOSUB
// (emitSwitch) and for GOSUB return dispatch.
func (fe *funcEmitter) emitIDChain(id string, targets []cfg.BlockID, fallback string) {
	for i, t := range targets {
		cmp := fe.newTemp()
		fe.writeln("\t%s =w ceql %s, %d", cmp, id, i)
		nextLbl := fmt.Sprintf("@%s_idchain_%d", id[1:], i)
		fe.writeln("\tjnz %s, %s, %s", cmp, blockLabel(t), nextLbl)
		fe.writeln("%s", nextLbl)
	}
	fe.writeln("\tjmp %s", fallback)
}

// emitSwitch lowers an ON...GOTO/GOSUB selector block: one comparison
// per Case edge against its 1-based CaseIndex, falling through to
// Default on no match (spec §4.3: an out-of-range selector falls
// through to the next statement). A GOSUB-flavored switch pushes a
// return-site id before each case jump instead of jumping directly.
func (fe *funcEmitter) emitSwitch(b *cfg.BasicBlock) {
	selVal, selType := fe.emitExpr(b.Selector)
	selVal = fe.castTo(selVal, selType, typesysINTEGER())

	var defaultTo cfg.BlockID
	var cases []cfg.Edge
	for _, e := range b.Out {
		switch e.Kind {
		case cfg.Case:
			cases = append(cases, e)
		case cfg.Default:
			defaultTo = e.To
		}
	}

	for i, c := range cases {
		cmp := fe.newTemp()
		fe.writeln("\t%s =w ceqw %s, %d", cmp, selVal, c.CaseIndex)
		nextLbl := fmt.Sprintf("@%s_case_%d", blockLabelName(b.ID), i)
		if b.SwitchIsGosub {
			takeLbl := fmt.Sprintf("@%s_take_%d", blockLabelName(b.ID), i)
			fe.writeln("\tjnz %s, %s, %s", cmp, takeLbl, nextLbl)
			fe.writeln("%s", takeLbl)
			fe.emitGosubCall(c.To, defaultTo)
			fe.writeln("%s", nextLbl)
		} else {
			fe.writeln("\tjnz %s, %s, %s", cmp, blockLabel(c.To), nextLbl)
			fe.writeln("%s", nextLbl)
		}
	}
	fe.writeln("\tjmp %s", blockLabel(defaultTo))
}

// emitThrow sets the runtime error state (when this edge came from a
// THROW rather than an unmatched CATCH rethrow, which carries no new
// code/message) and longjmps into the owning TRY's buffer, or — if
// nothing is left to catch it — jumps to the procedure exit as an
// unhandled exception (spec §5).
func (fe *funcEmitter) emitThrow(b *cfg.BasicBlock, target cfg.BlockID) {
	if b.ThrowCode != nil {
		cv, ct := fe.emitExpr(b.ThrowCode)
		cv = fe.castTo(cv, ct, typesysINTEGER())
		fe.writeln("\tcall $%s(w %s)", runtimeabi.ErrSetCode, cv)
	}
	if b.ThrowMessage != nil {
		mv, _ := fe.emitExpr(b.ThrowMessage)
		fe.writeln("\tcall $%s(l %s)", runtimeabi.PrintStringDesc, mv)
	}

	if tryEntry, ok := fe.catchTargetToTry[target]; ok {
		buf := fe.jmpbufAddr[tryEntry]
		fe.writeln("\tcall $%s(l %s, w 1)", runtimeabi.LongJmp, buf)
		return
	}
	fe.writeln("\tjmp %s", blockLabel(fe.cfg.Exit))
}
