package lower

import (
	"sort"

	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// construct builds an array, record or object. NEW builds it in dest;
// ALLOC builds it in fresh heap memory and stores the pointer in dest.
func (l *Lowerer) construct(dest *storage.Var, c *tree.Constructor) {
	var counts []storage.Operand
	var total storage.Operand

	if c.Kind == tree.ArrayCons {
		counts, total = l.arrayCounts(c)
	}

	var p *storage.Var

	if c.Alloc {
		p = l.temp(types.WordSize)
		l.emit(ir.Alloc{Dest: p, Size: l.allocSize(c, total)})
	} else {
		p = l.addrOfVar(dest)
	}

	switch c.Kind {
	case tree.ArrayCons:
		l.fillArray(p, c, counts, total)
	default:
		l.fillFields(p, c)
	}

	if c.Alloc {
		l.emit(ir.Move{Dest: dest, Src: p, Size: types.WordSize})
	}
}

// arrayCounts evaluates every "count of" once and sums them. The total is
// a constant when every count is.
func (l *Lowerer) arrayCounts(c *tree.Constructor) ([]storage.Operand, storage.Operand) {
	counts := make([]storage.Operand, len(c.Elems))
	static := true
	sum := 0

	for i, el := range c.Elems {
		if el.Count == nil {
			counts[i] = storage.IntConst{Value: 1}
			sum++
			continue
		}

		op := l.once(el.Count)
		if k, ok := op.(storage.IntConst); ok {
			if k.Value <= 0 {
				l.fatalf("array count %d is not positive", k.Value)
			}
			sum += int(k.Value)
		} else {
			l.emit(ir.CheckArrayCount{Count: op})
			static = false
		}

		counts[i] = op
	}

	if static {
		if !c.Alloc && c.DeclaredCount != types.Dynamic && sum != c.DeclaredCount {
			l.fatalf("array constructor has %d elements, array holds %d", sum, c.DeclaredCount)
		}

		return counts, storage.IntConst{Value: int32(sum)}
	}

	t := l.temp(types.WordSize)
	l.emit(ir.Move{Dest: t, Src: storage.IntConst{Value: 0}, Size: types.WordSize})

	for _, n := range counts {
		l.emit(ir.IntOp{Op: ir.Add, Dest: t, L: t, R: n})
	}

	if !c.Alloc && c.DeclaredCount != types.Dynamic {
		ok := l.newLabel()
		l.emit(ir.IntCmpGoto{Cond: ir.Eq, L: t, R: storage.IntConst{Value: int32(c.DeclaredCount)}, Size: types.WordSize, Target: ok})
		l.emit(ir.RuntimeError{Handler: ir.ErrDifferentArraySizes})
		l.label(ok)
	}

	return counts, t
}

// allocSize is the heap block size of c
func (l *Lowerer) allocSize(c *tree.Constructor, total storage.Operand) storage.Operand {
	if c.Kind != tree.ArrayCons {
		return storage.IntConst{Value: int32(c.Size)}
	}

	if k, ok := total.(storage.IntConst); ok {
		return storage.IntConst{Value: int32(types.ArraySize(int(k.Value), c.ElemSize))}
	}

	t := l.temp(types.WordSize)
	l.emit(ir.IntOp{Op: ir.Mul, Dest: t, L: total, R: storage.IntConst{Value: int32(c.ElemSize)}})
	l.emit(ir.IntOp{Op: ir.Add, Dest: t, L: t, R: storage.IntConst{Value: types.WordSize + types.WordSize - 1}})
	l.emit(ir.IntOp{Op: ir.And, Dest: t, L: t, R: storage.IntConst{Value: -types.WordSize}})

	return t
}

// fillArray writes the count word and then the elements in order,
// through a cursor that advances one element at a time.
func (l *Lowerer) fillArray(p *storage.Var, c *tree.Constructor, counts []storage.Operand, total storage.Operand) {
	l.emit(ir.SetArrayCount{Array: p, Count: total})

	cur := l.temp(types.WordSize)
	l.emit(ir.AddOffset{Dest: cur, Ptr: p, Offset: types.WordSize})

	for i, el := range c.Elems {
		v := l.value(el.Value, c.ElemSize)

		if el.Count == nil {
			l.storeThrough(cur, v, c.ElemSize)
			l.emit(ir.AddOffset{Dest: cur, Ptr: cur, Offset: c.ElemSize})
			continue
		}

		n := l.temp(types.WordSize)
		top := l.newLabel()

		l.emit(ir.Move{Dest: n, Src: counts[i], Size: types.WordSize})
		l.label(top)
		l.storeThrough(cur, v, c.ElemSize)
		l.emit(ir.AddOffset{Dest: cur, Ptr: cur, Offset: c.ElemSize})
		l.emit(ir.IntOp{Op: ir.Sub, Dest: n, L: n, R: storage.IntConst{Value: 1}})
		l.emit(ir.IntCmpGoto{Cond: ir.Gt, L: n, R: storage.IntConst{Value: 0}, Size: types.WordSize, Target: top})
	}
}

// fillFields initializes a record or object. Without an initializer for
// every field the whole value is cleared first; objects get their
// dispatch table before any field is stored.
func (l *Lowerer) fillFields(p *storage.Var, c *tree.Constructor) {
	if len(c.Fields) < c.FieldCount {
		l.emit(ir.ZeroBytes{Ptr: p, Size: c.Size, Loop: l.newLabel()})
	}

	if c.Kind == tree.ClassCons {
		l.emit(ir.SetDispatch{Obj: p, Table: l.dispatchRef(c.Class)})
	}

	for _, f := range sortedFields(c.Fields) {
		v := l.value(f.Value, f.Size)

		fp := l.temp(types.WordSize)
		l.emit(ir.AddOffset{Dest: fp, Ptr: p, Offset: f.Offset})
		l.storeThrough(fp, v, f.Size)
	}
}

func sortedFields(fields []tree.FieldInit) []tree.FieldInit {
	out := append([]tree.FieldInit(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })

	return out
}
