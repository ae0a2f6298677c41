package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// Calling convention: the caller stores arguments into its outgoing area
// at [sp+0...], where they become the callee's [fp+8...] parameters. The
// receiver of a send is the first argument. Results come back in r1 or f0.

// send lowers a dynamically dispatched message, or a direct call of the
// overridden method for a super send.
func (l *Lowerer) send(dest *storage.Var, t, f ir.Label, e *tree.Send) {
	recv := l.objPtr(e.Receiver)
	args := l.args(e.Sig.Params, e.Args)

	l.outgoing(e.Sig.ParamSize)
	l.emit(ir.PrepareArg{Offset: 0, Src: recv, Size: types.WordSize})
	l.prepare(e.Sig.Params, args)

	if e.Super {
		l.emit(ir.Call{Label: l.routineRef(e.Target)})
	} else {
		l.emit(ir.Send{Slot: e.Slot})
	}

	l.result(dest, t, f, e.Sig.ResultSize)
}

func (l *Lowerer) call(dest *storage.Var, t, f ir.Label, e *tree.Call) {
	r := l.pkg.Routine(e.Routine)
	args := l.args(r.Sig.Params, e.Args)

	l.outgoing(r.Sig.ParamSize)
	l.prepare(r.Sig.Params, args)
	l.emit(ir.Call{Label: l.routineRef(e.Routine)})

	l.result(dest, t, f, r.Sig.ResultSize)
}

func (l *Lowerer) callPtr(dest *storage.Var, t, f ir.Label, e *tree.CallPtr) {
	fn := l.varValue(e.Fn, types.WordSize)
	l.emit(ir.CheckNull{Ptr: fn})

	args := l.args(e.Sig.Params, e.Args)

	l.outgoing(e.Sig.ParamSize)
	l.prepare(e.Sig.Params, args)
	l.emit(ir.CallIndirect{Fn: fn})

	l.result(dest, t, f, e.Sig.ResultSize)
}

// args evaluates the arguments left to right before any is stored,
// so nested calls cannot clobber the outgoing area.
func (l *Lowerer) args(params []*storage.Var, exprs []tree.Expr) []storage.Operand {
	if len(params) != len(exprs) {
		l.fatalf("%d arguments for %d parameters", len(exprs), len(params))
	}

	ops := make([]storage.Operand, len(exprs))
	for i, e := range exprs {
		ops[i] = l.value(e, params[i].Size)
	}

	return ops
}

func (l *Lowerer) prepare(params []*storage.Var, args []storage.Operand) {
	for i, p := range params {
		l.emit(ir.PrepareArg{Offset: p.Offset - storage.FirstParamOffset, Src: args[i], Size: p.Size})
	}
}

// result hands the value in the result register to the target
func (l *Lowerer) result(dest *storage.Var, t, f ir.Label, size int) {
	switch {
	case dest != nil:
		if !isScalar(size) {
			l.fatalf("call result of size %d", size)
		}

		l.emit(ir.RetrieveResult{Dest: dest, Size: size})
	case t != "":
		b := l.temp(1)
		l.emit(ir.RetrieveResult{Dest: b, Size: 1})
		l.emit(ir.BoolTest{Src: b, True: t, False: f})
	}
}

// effect evaluates e for its side effects only
func (l *Lowerer) effect(e tree.Expr) {
	switch e := e.(type) {
	case *tree.Send:
		if e.Prim == tree.PrimNone {
			l.send(nil, "", "", e)
			return
		}
	case *tree.Call:
		l.call(nil, "", "", e)
		return
	case *tree.CallPtr:
		l.callPtr(nil, "", "", e)
		return
	}

	l.value(e, 0)
}
