package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

var intOps = map[tree.PrimOp]ir.IntOpKind{
	tree.IntAdd: ir.Add,
	tree.IntSub: ir.Sub,
	tree.IntMul: ir.Mul,
	tree.IntDiv: ir.Div,
	tree.IntRem: ir.Rem,
	tree.IntSll: ir.Sll,
	tree.IntSra: ir.Sra,
	tree.IntSrl: ir.Srl,
	tree.IntAnd: ir.And,
	tree.IntOr:  ir.Or,
	tree.IntXor: ir.Xor,
}

var floatOps = map[tree.PrimOp]ir.FloatOpKind{
	tree.DoubleAdd: ir.FAdd,
	tree.DoubleSub: ir.FSub,
	tree.DoubleMul: ir.FMul,
	tree.DoubleDiv: ir.FDiv,
}

var intConds = map[tree.PrimOp]ir.Cond{
	tree.IntEq:  ir.Eq,
	tree.IntNe:  ir.Ne,
	tree.IntLt:  ir.Lt,
	tree.IntLe:  ir.Le,
	tree.IntGt:  ir.Gt,
	tree.IntGe:  ir.Ge,
	tree.BoolEq: ir.Eq,
	tree.BoolNe: ir.Ne,
	tree.PtrEq:  ir.Eq,
	tree.PtrNe:  ir.Ne,
}

var floatConds = map[tree.PrimOp]ir.Cond{
	tree.DoubleEq: ir.Eq,
	tree.DoubleNe: ir.Ne,
	tree.DoubleLt: ir.Lt,
	tree.DoubleLe: ir.Le,
	tree.DoubleGt: ir.Gt,
	tree.DoubleGe: ir.Ge,
}

// prim lowers a send the machine implements directly
func (l *Lowerer) prim(dest *storage.Var, t, f ir.Label, e *tree.Send) {
	op := e.Prim
	x := e.Receiver

	var y tree.Expr
	if len(e.Args) != 0 {
		y = e.Args[0]
	}

	if k, ok := intOps[op]; ok {
		l.needDest(dest, e)
		a := l.value(x, types.WordSize)
		b := l.value(y, types.WordSize)
		l.emit(ir.IntOp{Op: k, Dest: dest, L: a, R: b})
		return
	}

	if k, ok := floatOps[op]; ok {
		l.needDest(dest, e)
		a := l.value(x, types.DoubleSize)
		b := l.value(y, types.DoubleSize)
		l.emit(ir.FloatOp{Op: k, Dest: dest, L: a, R: b})
		return
	}

	if c, ok := intConds[op]; ok {
		if dest != nil {
			l.materialize(dest, e)
			return
		}

		size := tree.SizeOf(x)
		if size != 1 {
			size = types.WordSize
		}

		a := l.value(x, size)
		b := l.value(y, size)
		l.emit(ir.IntCmpGoto{Cond: c, L: a, R: b, Size: size, Target: t})
		l.emit(ir.Goto{Target: f})
		return
	}

	if c, ok := floatConds[op]; ok {
		if dest != nil {
			l.materialize(dest, e)
			return
		}

		a := l.value(x, types.DoubleSize)
		b := l.value(y, types.DoubleSize)
		l.emit(ir.FloatCmpGoto{Cond: c, L: a, R: b, Target: t})
		l.emit(ir.Goto{Target: f})
		return
	}

	switch op {
	case tree.BoolAnd:
		if dest != nil {
			l.materialize(dest, e)
			return
		}

		mid := l.newLabel()
		l.into(nil, mid, f, x)
		l.label(mid)
		l.into(nil, t, f, y)
	case tree.BoolOr:
		if dest != nil {
			l.materialize(dest, e)
			return
		}

		mid := l.newLabel()
		l.into(nil, t, mid, x)
		l.label(mid)
		l.into(nil, t, f, y)
	case tree.BoolNot:
		if dest == nil {
			l.into(nil, f, t, x)
			return
		}

		l.emit(ir.BoolNot{Dest: dest, Src: l.value(x, 1)})
	case tree.IntNeg:
		l.needDest(dest, e)
		l.emit(ir.IntNeg{Dest: dest, Src: l.value(x, types.WordSize)})
	case tree.IntNot:
		l.needDest(dest, e)
		l.emit(ir.IntNot{Dest: dest, Src: l.value(x, types.WordSize)})
	case tree.DoubleNeg:
		l.needDest(dest, e)
		l.emit(ir.FloatNeg{Dest: dest, Src: l.value(x, types.DoubleSize)})
	case tree.Deref:
		p := l.addr(e)
		l.loadThrough(dest, t, f, p, tree.SizeOf(e))
	case tree.AddrOf:
		l.needDest(dest, e)
		l.emit(ir.Move{Dest: dest, Src: l.addr(x), Size: types.WordSize})
	case tree.IntToDouble:
		l.needDest(dest, e)
		l.emit(ir.IntToDouble{Dest: dest, Src: l.value(x, types.WordSize)})
	case tree.DoubleToInt:
		l.needDest(dest, e)
		l.emit(ir.DoubleToInt{Dest: dest, Src: l.value(x, types.DoubleSize)})
	case tree.IntToChar:
		l.needDest(dest, e)
		l.emit(ir.IntToChar{Dest: dest, Src: l.value(x, types.WordSize)})
	case tree.CharToInt:
		l.needDest(dest, e)
		l.emit(ir.CharToInt{Dest: dest, Src: l.value(x, 1)})
	default:
		l.fatalf("unknown primitive %v", op)
	}
}

// materialize stores the outcome of condition e as a bool
func (l *Lowerer) materialize(dest *storage.Var, e tree.Expr) {
	yes := l.newLabel()
	no := l.newLabel()
	end := l.newLabel()

	l.into(nil, yes, no, e)
	l.label(yes)
	l.emit(ir.Move{Dest: dest, Src: storage.BoolConst{Value: true}, Size: 1})
	l.emit(ir.Goto{Target: end})
	l.label(no)
	l.emit(ir.Move{Dest: dest, Src: storage.BoolConst{Value: false}, Size: 1})
	l.label(end)
}
