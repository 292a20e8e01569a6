package cfg

import (
	"strconv"

	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/diag"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
	"golang.org/x/sync/errgroup"
)

// loopCtx is an immutable, singly-linked context frame for the nearest
// enclosing loop of each kind, threaded as an explicit recursion
// argument (spec §9's "context passing vs stacks" note: a prior global
// loop stack implementation lost context across nesting boundaries).
type loopCtx struct {
	parent *loopCtx
	kind   ast.ExitKind
	exit   BlockID
}

func (l *loopCtx) find(kind ast.ExitKind) (BlockID, bool) {
	for c := l; c != nil; c = c.parent {
		if c.kind == kind {
			return c.exit, true
		}
	}
	return 0, false
}

// tryFrame is the equivalent immutable context for the nearest enclosing
// TRY, used by THROW to find where an exception dispatches to.
type tryFrame struct {
	parent     *tryFrame
	catchEntry BlockID
}

// deferredEdge records a jump/call/case edge whose target wasn't yet
// known during the single forward pass (spec §4.3's pre-pass note:
// "Forward references record a deferred edge and are resolved in a
// brief post-pass").
type deferredEdge struct {
	from    BlockID
	kind    EdgeKind
	target  string
	caseIdx int
	gosub   bool
	loc     ast.Location
}

// Builder constructs one CFG per procedure (and one for the implicit
// main program) from its statement list. It never looks forward in the
// AST; every per-structure routine follows the fixed contract from spec
// §4.3: given an incoming block, wire all internal edges and return the
// exit block the next lexical statement should continue into.
type Builder struct {
	sym   *symtab.Table
	diags *diag.Bag

	cfg      *CFG
	deferred []deferredEdge
}

// NewBuilder returns a Builder reading symbol information from sym and
// reporting structural errors (unresolved jump targets, EXIT outside a
// loop) to diags.
func NewBuilder(sym *symtab.Table, diags *diag.Bag) *Builder {
	return &Builder{sym: sym, diags: diags}
}

// BuildProgram builds the main program's CFG, then every procedure's CFG.
// Per-procedure construction is embarrassingly parallel (each procedure's
// CFG depends only on its own statement list, and by the time CFG
// construction runs the symbol table is read-only),
// so each procedure gets its own Builder and its own diagnostic bag,
// fanned out with an errgroup and merged back in declaration order once
// every worker has joined — that merge point is also where a single
// procedure's structural errors (unresolved GOTO target, EXIT outside a
// loop) become visible on b.diags without two goroutines ever writing to
// the same Bag concurrently.
func (b *Builder) BuildProgram(prog *ast.Program) *ProgramCFG {
	pc := &ProgramCFG{Procs: make(map[string]*CFG)}
	pc.Main = b.buildOne("", false, typesys.New(typesys.VOID), nil, prog.Main)

	results := make([]*CFG, len(prog.Procs))
	bags := make([]*diag.Bag, len(prog.Procs))
	var wg errgroup.Group
	for i, p := range prog.Procs {
		i, p := i, p
		wg.Go(func() error {
			var retType *typesys.Descriptor
			var params []string
			if proc, ok := b.sym.LookupProcedure(p.Name); ok {
				retType = proc.RetType
				for _, pp := range proc.Params {
					params = append(params, pp.Name)
				}
			} else {
				retType = typesys.New(typesys.VOID)
			}
			localDiags := diag.NewBag(nil)
			worker := NewBuilder(b.sym, localDiags)
			built := worker.buildOne(p.Name, p.IsFunction, retType, params, p.Body)

			results[i] = built
			bags[i] = localDiags
			return nil
		})
	}
	_ = wg.Wait() // workers never return an error; the group only buys the fan-out/join

	for i, p := range prog.Procs {
		b.diags.Merge(bags[i])
		pc.Procs[p.Name] = results[i]
	}
	return pc
}

func (b *Builder) buildOne(name string, isFunc bool, ret *typesys.Descriptor, params []string, body []ast.Stmt) *CFG {
	b.cfg = newCFG(name)
	b.cfg.IsFunction = isFunc
	b.cfg.RetType = ret
	b.cfg.Params = params
	b.deferred = nil

	entry := b.cfg.NewBlock()
	exit := b.cfg.NewBlock()
	b.cfg.Entry = entry.ID
	b.cfg.Exit = exit.ID

	bodyExit := b.buildStmts(body, entry.ID, nil, nil)
	b.cfg.Terminate(bodyExit, Jump, exit.ID)

	b.resolvePending()
	return b.cfg
}

func (b *Builder) resolveTarget(target string) (BlockID, bool) {
	if n, err := strconv.Atoi(target); err == nil {
		id, ok := b.cfg.LineBlocks[n]
		return id, ok
	}
	id, ok := b.cfg.LabelBlocks[target]
	return id, ok
}

func (b *Builder) resolvePending() {
	for _, d := range b.deferred {
		id, ok := b.resolveTarget(d.target)
		if !ok {
			b.diags.Errorf(diag.CatCFG, d.loc, "undefined GOTO/GOSUB target %q", d.target)
			continue
		}
		switch d.kind {
		case Jump:
			b.cfg.addEdge(Edge{Kind: Jump, From: d.from, To: id})
		case Call:
			b.cfg.addEdge(Edge{Kind: Call, From: d.from, To: id})
			b.cfg.CallSites[id] = append(b.cfg.CallSites[id], d.from)
		case Case:
			b.cfg.addEdge(Edge{Kind: Case, From: d.from, To: id, CaseIndex: d.caseIdx})
			if d.gosub {
				b.cfg.CallSites[id] = append(b.cfg.CallSites[id], d.from)
			}
		}
	}
}

// buildStmts folds buildStmt over a statement list, threading the exit
// block of each statement into the entry of the next.
func (b *Builder) buildStmts(stmts []ast.Stmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	for _, s := range stmts {
		cur = b.buildStmt(s, cur, loop, try)
	}
	return cur
}

func (b *Builder) buildStmt(s ast.Stmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	switch n := s.(type) {
	case *ast.LetStmt, *ast.DimStmt, *ast.RedimStmt, *ast.EraseStmt,
		*ast.PrintStmt, *ast.PrintUsingStmt, *ast.InputStmt, *ast.ReadStmt,
		*ast.RestoreStmt, *ast.ConstStmt, *ast.TypeDeclStmt, *ast.GlobalStmt,
		*ast.CallStmt:
		b.cfg.Block(cur).append(s)
		return cur

	case *ast.LabelStmt:
		return b.buildLabel(n, cur)

	case *ast.IfStmt:
		return b.buildIf(n, cur, loop, try)

	case *ast.WhileStmt:
		return b.buildWhile(n, cur, loop, try)

	case *ast.DoLoopStmt:
		return b.buildDoLoop(n, cur, loop, try)

	case *ast.ForStmt:
		return b.buildFor(n, cur, loop, try)

	case *ast.SelectCaseStmt:
		return b.buildSelect(n, cur, loop, try)

	case *ast.TryStmt:
		return b.buildTry(n, cur, loop, try)

	case *ast.GotoStmt:
		b.terminateJump(cur, n.Target, n.Pos())
		return b.cfg.NewBlock().ID

	case *ast.GosubStmt:
		return b.buildGosub(n.Target, cur, n.Pos())

	case *ast.ReturnStmt:
		// A RETURN always attempts the GOSUB-style ID-stack dispatch
		// first; Exit is the fallback the emitter takes when the return
		// stack is empty (spec §4.3: "looks up the return site from the
		// GOSUB context stack or, if absent, via the runtime return
		// stack"). A FUNCTION's RETURN <value> reaches the same exit,
		// where tidy_exit reads the value that the terminator emitter
		// (emitReturn) stored into the function's own-name variable
		// (spec §4.5/§5).
		if n.Value != nil {
			b.cfg.Block(cur).ReturnValue = n.Value
		}
		b.cfg.Terminate(cur, Return, b.cfg.Exit)
		return b.cfg.NewBlock().ID

	case *ast.OnGotoStmt:
		return b.buildOnGoto(n, cur)

	case *ast.ExitStmt:
		target, ok := loop.find(n.Kind)
		if !ok {
			b.diags.Errorf(diag.CatCFG, n.Pos(), "EXIT used outside of a matching loop")
			return b.cfg.NewBlock().ID
		}
		b.cfg.Terminate(cur, Jump, target)
		return b.cfg.NewBlock().ID

	case *ast.EndStmt:
		// A Jump edge, not a bare terminated flag: downstream code
		// generation relies on the edge being present (spec §4.3).
		b.cfg.Terminate(cur, Jump, b.cfg.Exit)
		return b.cfg.NewBlock().ID

	case *ast.ThrowStmt:
		blk := b.cfg.Block(cur)
		blk.ThrowCode = n.Code
		blk.ThrowMessage = n.Message
		target := b.cfg.Exit
		if try != nil {
			target = try.catchEntry
		}
		b.cfg.Terminate(cur, Exception, target)
		return b.cfg.NewBlock().ID

	default:
		b.diags.Errorf(diag.CatCFG, s.Pos(), "internal error: unknown statement kind %T reached the CFG builder", s)
		return cur
	}
}

func (b *Builder) buildLabel(n *ast.LabelStmt, cur BlockID) BlockID {
	target := cur
	if b.cfg.Block(cur).terminated {
		nb := b.cfg.NewBlock()
		b.cfg.addEdge(Edge{Kind: Fallthrough, From: cur, To: nb.ID})
		target = nb.ID
	}
	blk := b.cfg.Block(target)
	blk.Label = n.Name
	if n.Line != 0 {
		b.cfg.LineBlocks[n.Line] = target
	} else {
		b.cfg.LabelBlocks[n.Name] = target
	}
	return target
}

func (b *Builder) terminateJump(cur BlockID, target string, loc ast.Location) {
	blk := b.cfg.Block(cur)
	if blk.terminated {
		return
	}
	if id, ok := b.resolveTarget(target); ok {
		b.cfg.addEdge(Edge{Kind: Jump, From: cur, To: id})
	} else {
		b.deferred = append(b.deferred, deferredEdge{from: cur, kind: Jump, target: target, loc: loc})
	}
	blk.terminated = true
}

func (b *Builder) buildGosub(target string, cur BlockID, loc ast.Location) BlockID {
	returnPoint := b.cfg.NewBlock()
	blk := b.cfg.Block(cur)
	if blk.terminated {
		return returnPoint.ID
	}
	if id, ok := b.resolveTarget(target); ok {
		b.cfg.addEdge(Edge{Kind: Call, From: cur, To: id})
		b.cfg.CallSites[id] = append(b.cfg.CallSites[id], cur)
	} else {
		b.deferred = append(b.deferred, deferredEdge{from: cur, kind: Call, target: target, loc: loc})
	}
	b.cfg.addEdge(Edge{Kind: Fallthrough, From: cur, To: returnPoint.ID})
	blk.terminated = true
	b.cfg.ReturnPoints = append(b.cfg.ReturnPoints, returnPoint.ID)
	return returnPoint.ID
}

// buildIf handles both the multi-line IF/ELSEIF/ELSE and single-line
// "IF cond THEN stmt" forms identically: the Then statements always go
// into their own block, entered only by the CondTrue edge, so the
// single-line form's Then statements are never hoisted into the header
// (spec §4.3's landmark regression note).
func (b *Builder) buildIf(n *ast.IfStmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	header := b.cfg.Block(cur)
	header.CondExpr = n.Cond

	thenEntry := b.cfg.NewBlock()
	merge := b.cfg.NewBlock()

	var falseTarget BlockID
	var elseEntryID BlockID
	hasElse := len(n.ElseIfs) > 0 || len(n.Else) > 0
	if hasElse {
		elseEntry := b.cfg.NewBlock()
		elseEntryID = elseEntry.ID
		falseTarget = elseEntryID
	} else {
		falseTarget = merge.ID
	}
	b.cfg.TerminateCond(cur, thenEntry.ID, falseTarget)

	thenExit := b.buildStmts(n.Then, thenEntry.ID, loop, try)
	b.cfg.Terminate(thenExit, Jump, merge.ID)

	if hasElse {
		var chainExit BlockID
		if len(n.ElseIfs) > 0 {
			chainExit = b.buildElseIfChain(n.ElseIfs, n.Else, elseEntryID, loop, try)
		} else {
			chainExit = b.buildStmts(n.Else, elseEntryID, loop, try)
		}
		b.cfg.Terminate(chainExit, Jump, merge.ID)
	}
	// If both branches were terminated (e.g. both end in RETURN), merge
	// is unreachable; the caller still gets it back, per spec §4.3.
	return merge.ID
}

func (b *Builder) buildElseIfChain(elseifs []ast.ElseIfClause, finalElse []ast.Stmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	ei := elseifs[0]
	rest := elseifs[1:]

	header := b.cfg.Block(cur)
	header.CondExpr = ei.Cond

	thenEntry := b.cfg.NewBlock()
	exit := b.cfg.NewBlock()

	hasMore := len(rest) > 0 || len(finalElse) > 0
	var falseTarget BlockID
	var falseEntryID BlockID
	if hasMore {
		falseEntry := b.cfg.NewBlock()
		falseEntryID = falseEntry.ID
		falseTarget = falseEntryID
	} else {
		falseTarget = exit.ID
	}
	b.cfg.TerminateCond(cur, thenEntry.ID, falseTarget)

	thenExit := b.buildStmts(ei.Body, thenEntry.ID, loop, try)
	b.cfg.Terminate(thenExit, Jump, exit.ID)

	if hasMore {
		var chainExit BlockID
		if len(rest) > 0 {
			chainExit = b.buildElseIfChain(rest, finalElse, falseEntryID, loop, try)
		} else {
			chainExit = b.buildStmts(finalElse, falseEntryID, loop, try)
		}
		b.cfg.Terminate(chainExit, Jump, exit.ID)
	}
	return exit.ID
}

// buildWhile handles the pre-test WHILE/UNTIL form: the raw condition is
// always stored as CondExpr; UNTIL is implemented by swapping the two
// conditional edges rather than negating the expression (spec §4.3).
func (b *Builder) buildWhile(n *ast.WhileStmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	header := b.cfg.NewBlock()
	b.cfg.Terminate(cur, Jump, header.ID)
	header.CondExpr = n.Cond

	body := b.cfg.NewBlock()
	exit := b.cfg.NewBlock()
	if n.Until {
		b.cfg.TerminateCond(header.ID, exit.ID, body.ID)
	} else {
		b.cfg.TerminateCond(header.ID, body.ID, exit.ID)
	}

	innerLoop := &loopCtx{parent: loop, kind: ast.ExitWhile, exit: exit.ID}
	bodyExit := b.buildStmts(n.Body, body.ID, innerLoop, try)
	b.cfg.Terminate(bodyExit, Jump, header.ID)
	return exit.ID
}

// buildDoLoop handles the post-test DO...LOOP WHILE/UNTIL form: the body
// runs first, the condition lives in a separate block at the tail.
func (b *Builder) buildDoLoop(n *ast.DoLoopStmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	body := b.cfg.NewBlock()
	b.cfg.Terminate(cur, Jump, body.ID)

	exit := b.cfg.NewBlock()
	innerLoop := &loopCtx{parent: loop, kind: ast.ExitDo, exit: exit.ID}
	bodyExit := b.buildStmts(n.Body, body.ID, innerLoop, try)

	cond := b.cfg.Block(bodyExit)
	condID := bodyExit
	if cond.terminated {
		nb := b.cfg.NewBlock()
		b.cfg.addEdge(Edge{Kind: Jump, From: bodyExit, To: nb.ID})
		cond = nb
		condID = nb.ID
	}
	cond.CondExpr = n.Cond
	if n.Until {
		b.cfg.TerminateCond(condID, exit.ID, body.ID)
	} else {
		b.cfg.TerminateCond(condID, body.ID, exit.ID)
	}
	return exit.ID
}

// forCondOp picks the loop-continuation comparison for a FOR header. A
// literal negative STEP iterates downward (">="); every other case,
// including a runtime-computed STEP, uses the ascending form. Mixed-sign
// runtime STEP is a known BASIC footgun the front end does not attempt
// to resolve at compile time.
func forCondOp(step ast.Expr) string {
	if lit, ok := step.(*ast.IntLit); ok && lit.Val < 0 {
		return ">="
	}
	return "<="
}

// buildFor handles the counted FOR loop: init -> header -> body ->
// increment -> header | exit (spec §4.3). The loop variable's promotion
// to integer, when declared otherwise, is an emission-time concern.
func (b *Builder) buildFor(n *ast.ForStmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	step := n.Step
	if step == nil {
		step = &ast.IntLit{Val: 1}
	}

	initBlk := b.cfg.Block(cur)
	initBlk.append(&ast.LetStmt{Target: &ast.Ident{Name: n.Var}, Value: n.Start})

	header := b.cfg.NewBlock()
	b.cfg.Terminate(cur, Jump, header.ID)
	header.CondExpr = &ast.BinaryExpr{Op: forCondOp(step), X: &ast.Ident{Name: n.Var}, Y: n.Stop}

	body := b.cfg.NewBlock()
	increment := b.cfg.NewBlock()
	exit := b.cfg.NewBlock()
	b.cfg.TerminateCond(header.ID, body.ID, exit.ID)

	innerLoop := &loopCtx{parent: loop, kind: ast.ExitFor, exit: exit.ID}
	bodyExit := b.buildStmts(n.Body, body.ID, innerLoop, try)
	b.cfg.Terminate(bodyExit, Jump, increment.ID)

	increment.append(&ast.LetStmt{
		Target: &ast.Ident{Name: n.Var},
		Value:  &ast.BinaryExpr{Op: "+", X: &ast.Ident{Name: n.Var}, Y: step},
	})
	b.cfg.Terminate(increment.ID, Jump, header.ID)

	return exit.ID
}

// buildSelect handles SELECT CASE: the selector is evaluated once in the
// block the caller handed in, then a chain of When_Check blocks tests it
// (spec §4.3). Each When_body ends with an unconditional Jump straight
// to Select_Exit — no fallthrough between arms.
func (b *Builder) buildSelect(n *ast.SelectCaseStmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	initBlk := b.cfg.Block(cur)
	initBlk.Selector = n.Selector

	exit := b.cfg.NewBlock()
	b.buildCaseChain(n.Cases, n.Else, cur, cur, exit.ID, loop, try)
	return exit.ID
}

func (b *Builder) buildCaseChain(cases []ast.CaseClause, elseBody []ast.Stmt, checkBlk, selectInit, exit BlockID, loop *loopCtx, try *tryFrame) {
	if len(cases) == 0 {
		if len(elseBody) == 0 {
			b.cfg.Terminate(checkBlk, Jump, exit)
			return
		}
		elseExit := b.buildStmts(elseBody, checkBlk, loop, try)
		b.cfg.Terminate(elseExit, Jump, exit)
		return
	}

	c := cases[0]
	blk := b.cfg.Block(checkBlk)
	blk.CaseValues = c.Values
	blk.SelectInit = selectInit
	blk.HasSelectInit = true

	bodyEntry := b.cfg.NewBlock()
	nextCheck := b.cfg.NewBlock()
	b.cfg.TerminateCond(checkBlk, bodyEntry.ID, nextCheck.ID)

	bodyExit := b.buildStmts(c.Body, bodyEntry.ID, loop, try)
	b.cfg.Terminate(bodyExit, Jump, exit)

	b.buildCaseChain(cases[1:], elseBody, nextCheck.ID, selectInit, exit, loop, try)
}

// buildTry handles TRY/CATCH/FINALLY via the setjmp/longjmp ABI
// described in spec §4.6: the TRY block's setjmp must sit directly at
// its entry, with no intervening instruction before the dispatching
// jnz, because longjmp restores the frame it was called from.
func (b *Builder) buildTry(n *ast.TryStmt, cur BlockID, loop *loopCtx, try *tryFrame) BlockID {
	tryEntry := b.cfg.NewBlock()
	b.cfg.Terminate(cur, Jump, tryEntry.ID)
	tryEntry.SetjmpHere = true

	exit := b.cfg.NewBlock()
	var finallyID BlockID
	hasFinally := len(n.Finally) > 0
	normalTarget := exit.ID
	if hasFinally {
		finallyBlk := b.cfg.NewBlock()
		finallyID = finallyBlk.ID
		normalTarget = finallyID
	}

	catchDispatch := b.cfg.NewBlock()
	b.cfg.addEdge(Edge{Kind: Exception, From: tryEntry.ID, To: catchDispatch.ID})

	innerTry := &tryFrame{parent: try, catchEntry: catchDispatch.ID}
	tryExit := b.buildStmts(n.Body, tryEntry.ID, loop, innerTry)
	b.cfg.Terminate(tryExit, Jump, normalTarget)

	catchExitTarget := normalTarget
	b.buildCatchChain(n.Catches, catchDispatch.ID, catchExitTarget, loop, try)

	if hasFinally {
		finallyExit := b.buildStmts(n.Finally, finallyID, loop, try)
		b.cfg.Terminate(finallyExit, Jump, exit.ID)
	}
	return exit.ID
}

func (b *Builder) buildCatchChain(catches []ast.CatchClause, checkBlk, exit BlockID, loop *loopCtx, try *tryFrame) {
	if len(catches) == 0 {
		// No catch matched: rethrow to the next enclosing TRY, or to the
		// procedure exit (an unhandled THROW longjmps to the top-level
		// handler per spec §5).
		if try != nil {
			b.cfg.Terminate(checkBlk, Exception, try.catchEntry)
		} else {
			b.cfg.Terminate(checkBlk, Exception, b.cfg.Exit)
		}
		return
	}
	c := catches[0]
	if c.ErrCode == nil {
		bodyExit := b.buildStmts(c.Body, checkBlk, loop, try)
		b.cfg.Terminate(bodyExit, Jump, exit)
		return
	}

	blk := b.cfg.Block(checkBlk)
	blk.CondExpr = &ast.BinaryExpr{Op: "=", X: &ast.CallExpr{Callee: "ERR"}, Y: c.ErrCode}

	bodyEntry := b.cfg.NewBlock()
	nextCheck := b.cfg.NewBlock()
	b.cfg.TerminateCond(checkBlk, bodyEntry.ID, nextCheck.ID)

	bodyExit := b.buildStmts(c.Body, bodyEntry.ID, loop, try)
	b.cfg.Terminate(bodyExit, Jump, exit)

	b.buildCatchChain(catches[1:], nextCheck.ID, exit, loop, try)
}

// buildOnGoto handles both ON x GOTO and ON x GOSUB: a single block
// evaluates the selector once, Case(1..k) edges dispatch to the
// resolved targets, and Default covers an out-of-range/zero/negative
// selector by falling through to the next statement. For the GOSUB
// form the fallthrough/default block doubles as the single shared
// return-point every Case edge's subroutine eventually returns to.
func (b *Builder) buildOnGoto(n *ast.OnGotoStmt, cur BlockID) BlockID {
	blk := b.cfg.Block(cur)
	blk.Selector = n.Selector
	blk.SwitchIsGosub = n.IsGosub
	blk.terminated = true

	cont := b.cfg.NewBlock()
	b.cfg.addEdge(Edge{Kind: Default, From: cur, To: cont.ID})

	for i, t := range n.Targets {
		caseIdx := i + 1
		if id, ok := b.resolveTarget(t); ok {
			b.cfg.addEdge(Edge{Kind: Case, From: cur, To: id, CaseIndex: caseIdx})
			if n.IsGosub {
				b.cfg.CallSites[id] = append(b.cfg.CallSites[id], cur)
			}
		} else {
			b.deferred = append(b.deferred, deferredEdge{from: cur, kind: Case, target: t, caseIdx: caseIdx, gosub: n.IsGosub, loc: n.Pos()})
		}
	}
	if n.IsGosub {
		b.cfg.ReturnPoints = append(b.cfg.ReturnPoints, cont.ID)
	}
	return cont.ID
}
