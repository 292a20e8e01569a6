package semantic

import (
	"github.com/albanread/fbcqbe/internal/ast"
	"github.com/albanread/fbcqbe/internal/symtab"
	"github.com/albanread/fbcqbe/internal/typesys"
)

// walkStmts invokes visit on every statement in stmts, recursing into
// every nested statement list a control structure can own. visit is
// called on the way down (pre-order), before children are visited.
func walkStmts(stmts []ast.Stmt, visit func(ast.Stmt)) {
	for _, s := range stmts {
		visit(s)
		switch n := s.(type) {
		case *ast.IfStmt:
			walkStmts(n.Then, visit)
			for _, ei := range n.ElseIfs {
				walkStmts(ei.Body, visit)
			}
			walkStmts(n.Else, visit)
		case *ast.WhileStmt:
			walkStmts(n.Body, visit)
		case *ast.DoLoopStmt:
			walkStmts(n.Body, visit)
		case *ast.ForStmt:
			walkStmts(n.Body, visit)
		case *ast.SelectCaseStmt:
			for _, c := range n.Cases {
				walkStmts(c.Body, visit)
			}
			walkStmts(n.Else, visit)
		case *ast.TryStmt:
			walkStmts(n.Body, visit)
			for _, c := range n.Catches {
				walkStmts(c.Body, visit)
			}
			walkStmts(n.Finally, visit)
		}
	}
}

// declareRecords implements spec §4.2 pass 1 step 1: collect every
// TYPE...END TYPE declaration, assign record_id, and lay out fields with
// 8-byte alignment. Two-pass internally because a field may reference a
// record type declared later in the source.
func (a *Analyzer) declareRecords(prog *ast.Program) {
	var decls []*ast.TypeDeclStmt
	walkStmts(prog.Main, func(s ast.Stmt) {
		if td, ok := s.(*ast.TypeDeclStmt); ok {
			decls = append(decls, td)
		}
	})

	for _, td := range decls {
		if _, err := a.Sym.DeclareRecord(td.Name); err != nil {
			a.Diags.Errorf(categorySemantic, td.Pos(), "%s", err)
		}
	}
	for _, td := range decls {
		rt, ok := a.Sym.LookupRecord(td.Name)
		if !ok {
			continue
		}
		fields := make([]struct {
			Name string
			Type *typesys.Descriptor
		}, 0, len(td.Fields))
		for _, f := range td.Fields {
			fields = append(fields, struct {
				Name string
				Type *typesys.Descriptor
			}{f.Name, a.resolveTypeSpec(f.Type)})
		}
		a.Sym.LayoutRecord(rt, fields)
	}
}

// declareGlobals implements pass 1 step 2: each GLOBAL statement
// declares its variables in GlobalScope. The slot each global occupies
// in the runtime global vector is assigned by the emitter
// (assignGlobalSlots), not here.
func (a *Analyzer) declareGlobals(prog *ast.Program) {
	slot := 0
	walkStmts(prog.Main, func(s ast.Stmt) {
		g, ok := s.(*ast.GlobalStmt)
		if !ok {
			return
		}
		typ := a.resolveTypeSpec(g.Type)
		if typ.IsArray() {
			if _, err := a.Sym.DeclareArray(symtab.GlobalScope, g.Name, typ.Element, typ.Dims); err != nil {
				a.Diags.Errorf(categorySemantic, g.Pos(), "%s", err)
				return
			}
		} else {
			if _, err := a.Sym.DeclareVariable(symtab.GlobalScope, g.Name, typ); err != nil {
				a.Diags.Errorf(categorySemantic, g.Pos(), "%s", err)
				return
			}
		}
		_ = slot
		slot++
	})
}

// declareDims implements pass 1 step 3: DIM statements, scoped by where
// they lexically sit (top-level -> MainScope, inside a SUB/FUNCTION ->
// that procedure's scope), not by execution order.
func (a *Analyzer) declareDims(prog *ast.Program) {
	declareIn := func(scope symtab.Scope, stmts []ast.Stmt) {
		walkStmts(stmts, func(s ast.Stmt) {
			d, ok := s.(*ast.DimStmt)
			if !ok {
				return
			}
			typ := a.resolveTypeSpec(d.Type)
			if typ.IsArray() {
				if _, err := a.Sym.DeclareArray(scope, d.Name, typ.Element, typ.Dims); err != nil {
					a.Diags.Errorf(categorySemantic, d.Pos(), "%s", err)
				}
			} else {
				if _, err := a.Sym.DeclareVariable(scope, d.Name, typ); err != nil {
					a.Diags.Errorf(categorySemantic, d.Pos(), "%s", err)
				}
			}
		})
	}
	declareIn(symtab.MainScope, prog.Main)
	for _, p := range prog.Procs {
		declareIn(symtab.FuncScope(p.Name), p.Body)
	}
}

// declareConsts implements CONSTANT declarations: global, case-insensitive,
// inlined at every use (spec §4.5), never given storage.
func (a *Analyzer) declareConsts(prog *ast.Program) {
	walkStmts(prog.Main, func(s ast.Stmt) {
		c, ok := s.(*ast.ConstStmt)
		if !ok {
			return
		}
		sym := constSymbolFromLiteral(c.Name, c.Value)
		if sym == nil {
			a.Diags.Errorf(categorySemantic, c.Pos(), "CONSTANT %s must be a literal expression", c.Name)
			return
		}
		if err := a.Sym.DeclareConstant(sym); err != nil {
			a.Diags.Errorf(categorySemantic, c.Pos(), "%s", err)
		}
	})
}

func constSymbolFromLiteral(name string, e ast.Expr) *symtab.ConstSymbol {
	switch n := e.(type) {
	case *ast.IntLit:
		return &symtab.ConstSymbol{Name: name, Kind: symtab.ConstInt, Type: typesys.InferIntLiteral(n.Val), IVal: n.Val}
	case *ast.FloatLit:
		return &symtab.ConstSymbol{Name: name, Kind: symtab.ConstFloat, Type: typesys.InferFloatLiteral(), FVal: n.Val}
	case *ast.StringLit:
		return &symtab.ConstSymbol{Name: name, Kind: symtab.ConstString, Type: typesys.New(typesys.STRING), SVal: n.Val}
	case *ast.UnaryExpr:
		if n.Op == "-" {
			inner := constSymbolFromLiteral(name, n.X)
			if inner == nil {
				return nil
			}
			if inner.Kind == symtab.ConstInt {
				inner.IVal = -inner.IVal
			} else if inner.Kind == symtab.ConstFloat {
				inner.FVal = -inner.FVal
			}
			return inner
		}
	}
	return nil
}

// declareProcSignatures implements pass 1 step 4: every SUB/FUNCTION
// signature, with parameters entered both on the signature and as
// variables in the procedure's own scope (spec §3.2).
func (a *Analyzer) declareProcSignatures(prog *ast.Program) {
	for _, p := range prog.Procs {
		scope := symtab.FuncScope(p.Name)
		params := make([]symtab.ParamInfo, 0, len(p.Params))
		for _, ps := range p.Params {
			pt := a.resolveTypeSpec(ps.Type)
			params = append(params, symtab.ParamInfo{Name: ps.Name, Type: pt, ByRef: ps.ByRef})
			if _, err := a.Sym.DeclareVariable(scope, ps.Name, pt); err != nil {
				a.Diags.Errorf(categorySemantic, ps.Pos(), "%s", err)
			}
		}
		retType := typesys.New(typesys.VOID)
		if p.IsFunction {
			retType = a.resolveTypeSpec(p.RetType)
			// The function's own name is also a variable in its scope —
			// RETURN/implicit-assignment targets it (spec §4.2).
			if _, err := a.Sym.DeclareVariable(scope, p.Name, retType); err != nil {
				a.Diags.Errorf(categorySemantic, p.Pos(), "%s", err)
			}
		}
		proc := &symtab.ProcSymbol{Name: p.Name, Params: params, IsFunction: p.IsFunction, RetType: retType, Decl: p}
		if err := a.Sym.DeclareProcedure(proc); err != nil {
			a.Diags.Errorf(categorySemantic, p.Pos(), "%s", err)
		}
	}
}

// collectLabels gathers every jump target (textual label or line number)
// declared in the main program and in each procedure, so pass 2 can
// validate GOTO/GOSUB/ON...GOTO targets without depending on the CFG.
func (a *Analyzer) collectLabels(prog *ast.Program) {
	collect := func(proc string, stmts []ast.Stmt) {
		walkStmts(stmts, func(s ast.Stmt) {
			lbl, ok := s.(*ast.LabelStmt)
			if !ok {
				return
			}
			a.Sym.DeclareLabel(proc, lbl.Name)
		})
	}
	collect("", prog.Main)
	for _, p := range prog.Procs {
		collect(p.Name, p.Body)
	}
}
