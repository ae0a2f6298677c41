package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

func (l *Lowerer) stmts(body []tree.Stmt) {
	for _, s := range body {
		l.stmt(s)
	}
}

func (l *Lowerer) stmt(s tree.Stmt) {
	if p := s.Position(); p.Line > 0 && p.Line != l.line {
		l.line = p.Line
		l.emit(ir.SourceLine{Line: p.Line})
	}

	switch s := s.(type) {
	case *tree.Assign:
		l.assign(s)
	case *tree.CallStmt:
		l.effect(s.Call)
	case *tree.If:
		l.ifStmt(s)
	case *tree.While:
		l.while(s)
	case *tree.Do:
		l.do(s)
	case *tree.For:
		l.forStmt(s)
	case *tree.ForC:
		l.forC(s)
	case *tree.Switch:
		l.switchStmt(s)
	case *tree.Break:
		lp := l.target(s.Target, "break")
		l.leaveTries(lp.tries)
		l.emit(ir.Goto{Target: lp.brk})
	case *tree.Continue:
		lp := l.target(s.Target, "continue")
		if lp.cont == "" {
			l.fatalf("continue targets a switch")
		}
		l.leaveTries(lp.tries)
		l.emit(ir.Goto{Target: lp.cont})
	case *tree.Return:
		l.returnStmt(s)
	case *tree.Try:
		l.try(s)
	case *tree.Throw:
		l.throw(s)
	case *tree.Free:
		p := l.varValue(s.Ptr, types.WordSize)
		l.emit(ir.Free{Ptr: p})
	default:
		l.fatalf("unexpected statement %T", s)
	}
}

func (l *Lowerer) ifStmt(s *tree.If) {
	yes := l.newLabel()
	no := l.newLabel()

	l.into(nil, yes, no, s.Cond)
	l.label(yes)
	l.stmts(s.Then)

	if len(s.Else) == 0 {
		l.label(no)
		return
	}

	end := l.newLabel()
	l.emit(ir.Goto{Target: end})
	l.label(no)
	l.stmts(s.Else)
	l.label(end)
}

func (l *Lowerer) while(s *tree.While) {
	top := l.newLabel()
	body := l.newLabel()
	exit := l.newLabel()

	l.label(top)
	l.into(nil, body, exit, s.Cond)
	l.label(body)
	l.loopBody(s.ID, exit, top, s.Body)
	l.emit(ir.Goto{Target: top})
	l.label(exit)
}

func (l *Lowerer) do(s *tree.Do) {
	top := l.newLabel()
	cont := l.newLabel()
	exit := l.newLabel()

	l.label(top)
	l.loopBody(s.ID, exit, cont, s.Body)
	l.label(cont)
	l.into(nil, exit, top, s.Until)
	l.label(exit)
}

// forStmt evaluates start, stop and step once, before the first test.
// A negative literal step counts down.
func (l *Lowerer) forStmt(s *tree.For) {
	v, direct := l.loopVar(s.Var)

	start := l.value(s.Start, types.WordSize)
	l.setLoopVar(v, direct, start)

	stop := l.once(s.Stop)

	var step storage.Operand = storage.IntConst{Value: 1}
	if s.Step != nil {
		step = l.once(s.Step)
	}

	cond := ir.Gt
	if c, ok := step.(storage.IntConst); ok && c.Value < 0 {
		cond = ir.Lt
	}

	top := l.newLabel()
	cont := l.newLabel()
	exit := l.newLabel()

	l.label(top)
	l.emit(ir.IntCmpGoto{Cond: cond, L: l.getLoopVar(v, direct), R: stop, Size: types.WordSize, Target: exit})
	l.loopBody(s.ID, exit, cont, s.Body)
	l.label(cont)

	cur := l.getLoopVar(v, direct)
	next := cur.(*storage.Var)
	if !direct {
		next = l.temp(types.WordSize)
	}

	l.emit(ir.IntOp{Op: ir.Add, Dest: next, L: cur, R: step})
	l.setLoopVar(v, direct, next)
	l.emit(ir.Goto{Target: top})
	l.label(exit)
}

// loopVar returns the loop variable itself when it is a plain variable,
// otherwise a temporary holding its address.
func (l *Lowerer) loopVar(e tree.Expr) (*storage.Var, bool) {
	if r, ok := e.(*tree.VarRef); ok {
		l.useVar(r.Var)
		return r.Var, true
	}

	return l.addr(e), false
}

func (l *Lowerer) getLoopVar(v *storage.Var, direct bool) storage.Operand {
	if direct {
		return v
	}

	t := l.temp(types.WordSize)
	l.emit(ir.LoadIndirect{Dest: t, Ptr: v, Size: types.WordSize})

	return t
}

func (l *Lowerer) setLoopVar(v *storage.Var, direct bool, src storage.Operand) {
	if direct {
		l.move(v, src, types.WordSize)
		return
	}

	l.emit(ir.StoreIndirect{Ptr: v, Src: src, Size: types.WordSize})
}

// once evaluates a non constant word into its own temporary
func (l *Lowerer) once(e tree.Expr) storage.Operand {
	op := l.value(e, types.WordSize)
	if storage.IsConst(op) {
		return op
	}

	t := l.temp(types.WordSize)
	l.emit(ir.Move{Dest: t, Src: op, Size: types.WordSize})

	return t
}

func (l *Lowerer) forC(s *tree.ForC) {
	l.stmts(s.Init)

	top := l.newLabel()
	cont := l.newLabel()
	exit := l.newLabel()

	l.label(top)

	if s.Cond != nil {
		body := l.newLabel()
		l.into(nil, body, exit, s.Cond)
		l.label(body)
	}

	l.loopBody(s.ID, exit, cont, s.Body)
	l.label(cont)
	l.stmts(s.Incr)
	l.emit(ir.Goto{Target: top})
	l.label(exit)
}

// loopBody lowers body with break and continue of loop id bound
func (l *Lowerer) loopBody(id tree.NodeID, brk, cont ir.Label, body []tree.Stmt) {
	l.loops[id] = &loop{brk: brk, cont: cont, tries: len(l.tries)}
	l.stmts(body)
	delete(l.loops, id)
}

func (l *Lowerer) target(id tree.NodeID, what string) *loop {
	lp, ok := l.loops[id]
	if !ok {
		l.fatalf("%s target %d not enclosing", what, id)
	}

	return lp
}

// leaveTries resets the catch stack when a jump leaves try statements
// entered after the target loop.
func (l *Lowerer) leaveTries(depth int) {
	if len(l.tries) > depth {
		l.emit(ir.RestoreCatchStack{Src: l.tries[depth]})
	}
}

func (l *Lowerer) returnStmt(s *tree.Return) {
	var v storage.Operand

	if s.Value != nil {
		v = l.value(s.Value, l.r.Sig.ResultSize)
	}

	l.returnSeq(v)
}
