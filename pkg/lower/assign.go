package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// assign lowers "Dest = Src". Objects and arrays whose exact size is only
// known at runtime are copied after a dynamic check selected by s.Check.
func (l *Lowerer) assign(s *tree.Assign) {
	if s.Check == tree.CheckNone {
		l.plainAssign(s)
		return
	}

	dp := l.addr(s.Dest)
	sp := l.addr(s.Src)

	switch s.Check {
	case tree.CheckObjectObject:
		l.emit(ir.CheckSameDispatch{Dest: dp, Src: sp})
		size := l.temp(types.WordSize)
		l.emit(ir.ObjectSize{Dest: size, Obj: sp})
		l.emit(ir.CopyBytesVar{Dest: dp, Src: sp, Size: size, Loop: l.newLabel()})
	case tree.CheckObjectDest:
		c := l.pkg.Class(s.Class)
		l.emit(ir.CheckDispatch{Obj: dp, Table: l.dispatchRef(s.Class)})
		l.emit(ir.CopyBytes{Dest: dp, Src: sp, Size: c.Size, Loop: l.newLabel()})
	case tree.CheckObjectSrc:
		c := l.pkg.Class(s.Class)
		l.emit(ir.CheckDispatch{Obj: sp, Table: l.dispatchRef(s.Class)})
		l.emit(ir.CopyBytes{Dest: dp, Src: sp, Size: c.Size, Loop: l.newLabel()})
	case tree.CheckFixedFixed, tree.CheckFixedDynamic, tree.CheckDynamicFixed:
		if s.Count <= 0 {
			l.fatalf("array assignment with count %d", s.Count)
		}
		l.emit(ir.CheckArraySize{Array: dp, Expected: s.Count})
		l.emit(ir.CheckArraySize{Array: sp, Expected: s.Count})
		l.emit(ir.CopyBytes{Dest: dp, Src: sp, Size: types.ArraySize(s.Count, s.ElemSize), Loop: l.newLabel()})
	case tree.CheckDynamicDynamic:
		l.emit(ir.CheckArraySizesEqual{Dest: dp, Src: sp})
		l.emit(ir.CopyArray{Dest: dp, Src: sp, ElemSize: s.ElemSize, Loop: l.newLabel()})
	default:
		l.fatalf("unknown assignment check %d", s.Check)
	}
}

func (l *Lowerer) plainAssign(s *tree.Assign) {
	if r, ok := s.Dest.(*tree.VarRef); ok {
		l.useVar(r.Var)
		l.into(r.Var, "", "", s.Src)
		return
	}

	size := tree.SizeOf(s.Dest)
	p := l.addr(s.Dest)
	v := l.value(s.Src, size)

	l.storeThrough(p, v, size)
}
