package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// Expression lowering works through three entry points:
//
//	value  returns an operand holding the value of e
//	into   stores e into dest, or, with a nil dest, branches to t or f
//	addr   returns a temporary holding the address of e
//
// Every form is reduced to one of these three.

// value returns e as an operand. Constants and variables are returned as
// is; everything else is evaluated into a fresh temporary of size bytes.
func (l *Lowerer) value(e tree.Expr, size int) storage.Operand {
	switch e := e.(type) {
	case tree.IntLit:
		return storage.IntConst{Value: e.Value}
	case tree.CharLit:
		return storage.CharConst{Value: e.Value}
	case tree.BoolLit:
		return storage.BoolConst{Value: e.Value}
	case tree.NullLit:
		return storage.NullConst{}
	case tree.DoubleLit:
		return l.doubleConst(e.Value)
	case tree.StringLit:
		return l.stringConst(e.Value)
	case *tree.VarRef:
		l.useVar(e.Var)
		return e.Var
	case *tree.Cast:
		if tree.SizeOf(e.X) == size {
			return l.value(e.X, size)
		}
	}

	if size <= 0 {
		size = tree.SizeOf(e)
	}

	t := l.temp(size)
	l.into(t, "", "", e)

	return t
}

// varValue is value for instructions that need a variable operand
func (l *Lowerer) varValue(e tree.Expr, size int) *storage.Var {
	op := l.value(e, size)
	if v, ok := op.(*storage.Var); ok {
		return v
	}

	t := l.temp(size)
	l.emit(ir.Move{Dest: t, Src: op, Size: size})

	return t
}

// into lowers e in target form. With dest set the value is stored there;
// otherwise e is a condition and control goes to t when it holds and to
// f when it does not.
func (l *Lowerer) into(dest *storage.Var, t, f ir.Label, e tree.Expr) {
	if dest == nil && t == "" {
		l.fatalf("%T evaluated without a target", e)
	}

	switch e := e.(type) {
	case tree.BoolLit:
		switch {
		case dest != nil:
			l.move(dest, storage.BoolConst{Value: e.Value}, 1)
		case e.Value:
			l.emit(ir.Goto{Target: t})
		default:
			l.emit(ir.Goto{Target: f})
		}
	case tree.IntLit, tree.CharLit, tree.NullLit, tree.DoubleLit, tree.StringLit:
		l.needDest(dest, e)
		l.move(dest, l.value(e, dest.Size), dest.Size)
	case *tree.VarRef:
		l.useVar(e.Var)
		l.deliver(dest, t, f, e.Var, e.Var.Size)
	case *tree.FieldAccess, *tree.ArrayIndex:
		p := l.addr(e)
		l.loadThrough(dest, t, f, p, tree.SizeOf(e))
	case *tree.Send:
		if e.Prim != tree.PrimNone {
			l.prim(dest, t, f, e)
		} else {
			l.send(dest, t, f, e)
		}
	case *tree.Call:
		l.call(dest, t, f, e)
	case *tree.CallPtr:
		l.callPtr(dest, t, f, e)
	case *tree.ClosureRef:
		l.needDest(dest, e)
		l.emit(ir.LoadLabelAddr{Dest: dest, Label: l.routineRef(e.Routine)})
	case *tree.Constructor:
		l.needDest(dest, e)
		l.construct(dest, e)
	case *tree.IsKindOf:
		l.isKindOf(dest, t, f, e)
	case *tree.IsInstanceOf:
		l.isInstanceOf(dest, t, f, e)
	case *tree.Cast:
		l.into(dest, t, f, e.X)
	case *tree.ArraySizeOf:
		l.needDest(dest, e)
		l.emit(ir.ArraySize{Dest: dest, Array: l.baseAddr(e.X)})
	default:
		l.fatalf("unexpected expression %T", e)
	}
}

// addr returns a temporary holding the address of e. Dereferences yield
// the pointer itself after a null check; values without storage are first
// evaluated into a temporary.
func (l *Lowerer) addr(e tree.Expr) *storage.Var {
	switch e := e.(type) {
	case *tree.VarRef:
		l.useVar(e.Var)
		return l.addrOfVar(e.Var)
	case *tree.FieldAccess:
		base := l.baseAddr(e.X)
		t := l.temp(types.WordSize)
		l.emit(ir.AddOffset{Dest: t, Ptr: base, Offset: e.Field.Offset})
		return t
	case *tree.ArrayIndex:
		base := l.baseAddr(e.X)
		idx := l.value(e.Index, types.WordSize)
		t := l.temp(types.WordSize)
		l.emit(ir.ArrayElemAddr{Dest: t, Array: base, Index: idx, ElemSize: e.ElemSize})
		return t
	case *tree.Send:
		if e.Prim == tree.Deref {
			p := l.varValue(e.Receiver, types.WordSize)
			l.emit(ir.CheckNull{Ptr: p})
			return p
		}
	case *tree.Cast:
		return l.addr(e.X)
	}

	size := tree.SizeOf(e)
	if size <= 0 {
		l.fatalf("address of %T without a size", e)
	}

	t := l.temp(size)
	l.into(t, "", "", e)

	return l.addrOfVar(t)
}

// baseAddr is the address of the record, object or array x refers to,
// following x when it is a pointer.
func (l *Lowerer) baseAddr(x tree.Expr) *storage.Var {
	if types.IsPtr(tree.TypeOf(x)) {
		p := l.varValue(x, types.WordSize)
		l.emit(ir.CheckNull{Ptr: p})
		return p
	}

	return l.addr(x)
}

func (l *Lowerer) addrOfVar(v *storage.Var) *storage.Var {
	t := l.temp(types.WordSize)
	l.emit(ir.LoadAddr{Dest: t, Src: v})

	return t
}

func (l *Lowerer) needDest(dest *storage.Var, e tree.Expr) {
	if dest == nil {
		l.fatalf("%T used as a condition", e)
	}
}

// deliver hands an already computed value to the target of into
func (l *Lowerer) deliver(dest *storage.Var, t, f ir.Label, src storage.Operand, size int) {
	if dest != nil {
		l.move(dest, src, size)
		return
	}

	l.emit(ir.BoolTest{Src: src, True: t, False: f})
}

// move copies size bytes of src into dest, block by block when the size
// is not a scalar one.
func (l *Lowerer) move(dest *storage.Var, src storage.Operand, size int) {
	if v, ok := src.(*storage.Var); ok && v == dest {
		return
	}

	if isScalar(size) {
		l.emit(ir.Move{Dest: dest, Src: src, Size: size})
		return
	}

	sv, ok := src.(*storage.Var)
	if !ok {
		l.fatalf("constant %v of size %d", src, size)
	}

	l.emit(ir.CopyBytes{Dest: l.addrOfVar(dest), Src: l.addrOfVar(sv), Size: size, Loop: l.newLabel()})
}

// loadThrough reads size bytes at the address held in p
func (l *Lowerer) loadThrough(dest *storage.Var, t, f ir.Label, p *storage.Var, size int) {
	if dest == nil {
		b := l.temp(1)
		l.emit(ir.LoadIndirect{Dest: b, Ptr: p, Size: 1})
		l.emit(ir.BoolTest{Src: b, True: t, False: f})
		return
	}

	if isScalar(size) {
		l.emit(ir.LoadIndirect{Dest: dest, Ptr: p, Size: size})
		return
	}

	l.emit(ir.CopyBytes{Dest: l.addrOfVar(dest), Src: p, Size: size, Loop: l.newLabel()})
}

// storeThrough writes src to the address held in p
func (l *Lowerer) storeThrough(p *storage.Var, src storage.Operand, size int) {
	if isScalar(size) {
		l.emit(ir.StoreIndirect{Ptr: p, Src: src, Size: size})
		return
	}

	sv, ok := src.(*storage.Var)
	if !ok {
		l.fatalf("constant %v of size %d", src, size)
	}

	l.emit(ir.CopyBytes{Dest: p, Src: l.addrOfVar(sv), Size: size, Loop: l.newLabel()})
}

// objPtr is a pointer to the object x denotes: x itself when it holds a
// pointer, its address when x is an object variable.
func (l *Lowerer) objPtr(x tree.Expr) *storage.Var {
	if types.IsPtr(tree.TypeOf(x)) {
		return l.varValue(x, types.WordSize)
	}

	return l.addr(x)
}

func (l *Lowerer) isKindOf(dest *storage.Var, t, f ir.Label, e *tree.IsKindOf) {
	obj := l.objPtr(e.X)
	l.emit(ir.CheckNull{Ptr: obj})

	var desc ir.Label
	if e.Interface != tree.None {
		desc = l.interfaceDescriptorRef(e.Interface)
	} else {
		desc = l.classDescriptorRef(e.Class)
	}

	d := dest
	if d == nil {
		d = l.temp(1)
	}

	l.emit(ir.IsKindOf{Dest: d, Obj: obj, Descriptor: desc})

	if dest == nil {
		l.emit(ir.BoolTest{Src: d, True: t, False: f})
	}
}

func (l *Lowerer) isInstanceOf(dest *storage.Var, t, f ir.Label, e *tree.IsInstanceOf) {
	obj := l.objPtr(e.X)
	l.emit(ir.CheckNull{Ptr: obj})

	d := dest
	if d == nil {
		d = l.temp(1)
	}

	l.emit(ir.IsInstanceOf{Dest: d, Obj: obj, Descriptor: l.classDescriptorRef(e.Class)})

	if dest == nil {
		l.emit(ir.BoolTest{Src: d, True: t, False: f})
	}
}
