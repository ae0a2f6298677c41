package lower

import (
	"context"
	"fmt"

	"tlog.app/go/tlog"

	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// lowerRoutine emits the descriptor, the body and the frame size of r.
//
// Frame layout, growing down from the frame pointer:
//
//	[fp+8...]   parameters, self first for methods
//	[fp+4]      return address
//	[fp+0]      saved frame pointer
//	[fp-4]      routine descriptor
//	[fp-8...]   declared locals, then temporaries
//	[sp+0...]   outgoing arguments
func (l *Lowerer) lowerRoutine(ctx context.Context, r *tree.Routine) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "lower routine", "label", r.Label)
	defer tr.Finish()

	l.r = r
	l.frame = r.FrameSize
	if l.frame < -storage.DescriptorOffset {
		l.frame = -storage.DescriptorOffset
	}
	l.outArgs = 0
	l.snapshot = nil
	l.loops = map[tree.NodeID]*loop{}
	l.tries = l.tries[:0]
	l.line = 0

	vars := l.routineVars(r)

	l.comment("%s %s", kindName(r.Kind), r.Name)
	l.routineDescriptor(r, vars)

	lbl := ir.Label(r.Label)
	frameSize := frameSizeLabel(r.Label)

	l.label(lbl)
	l.emit(ir.RoutineEntry{
		Label:      lbl,
		Descriptor: routineDescriptorLabel(r.Label),
		FrameSize:  frameSize,
	})

	if tree.ContainsTry(r.Body) {
		l.snapshot = l.temp(types.WordSize)
		l.emit(ir.SaveCatchStack{Dest: l.snapshot})
	}

	l.stmts(r.Body)

	if !endsInReturn(r.Body) {
		l.returnSeq(nil)
	}

	size := types.AlignUp(l.frame, types.WordSize) + l.outArgs
	l.emit(ir.Equate{Label: frameSize, Value: size})

	l.varDescriptors(vars)

	if tr.If("frame") {
		tr.Printw("frame", "label", r.Label, "declared", r.FrameSize, "size", size, "out_args", l.outArgs)
	}

	l.r = nil
}

// returnSeq leaves the current routine. A routine with a try resets the
// catch stack to its entry snapshot first.
func (l *Lowerer) returnSeq(v storage.Operand) {
	if l.snapshot != nil {
		l.emit(ir.RestoreCatchStack{Src: l.snapshot})
	}

	if v != nil {
		size := l.r.Sig.ResultSize
		if !isScalar(size) {
			l.fatalf("result of size %d", size)
		}

		l.emit(ir.ReturnResult{Src: v, Size: size})
	}

	l.emit(ir.RoutineExit{})
}

func endsInReturn(body []tree.Stmt) bool {
	if len(body) == 0 {
		return false
	}

	_, ok := body[len(body)-1].(*tree.Return)

	return ok
}

func kindName(k tree.RoutineKind) string {
	switch k {
	case tree.MethodRoutine:
		return "method"
	case tree.Closure:
		return "closure"
	}

	return "function"
}

// routineVars lists the named parameters and locals recorded in the
// routine descriptor, and assigns their descriptor labels.
func (l *Lowerer) routineVars(r *tree.Routine) []*storage.Var {
	var vars []*storage.Var

	for _, list := range [][]*storage.Var{r.Sig.Params, r.Locals} {
		for _, v := range list {
			if v.IsTemp() {
				continue
			}

			l.varDescs++
			v.Descriptor = fmt.Sprintf("_VD_%d", l.varDescs)

			vars = append(vars, v)
		}
	}

	return vars
}

// routineDescriptor records the routine for the runtime's error reports
// and debugger: name, file, parameter and frame sizes, and its variables.
func (l *Lowerer) routineDescriptor(r *tree.Routine, vars []*storage.Var) {
	l.emit(ir.Align{})
	l.label(routineDescriptorLabel(r.Label))
	l.emit(ir.Word{Value: ir.RoutineMagic})
	l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(l.pkg.File).Label)})
	l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(r.Name).Label)})
	l.emit(ir.Word{Value: int32(r.Sig.ParamSize)})
	l.emit(ir.WordLabel{Label: frameSizeLabel(r.Label)})

	if r.Kind == tree.MethodRoutine {
		l.emit(ir.Word{Value: storage.SelfOffset})
		l.emit(ir.Word{Value: types.WordSize})
		l.emit(ir.WordLabel{Label: ir.Label(l.stringConst("self").Label)})
		l.emit(ir.Word{Value: 'P'})
	}

	for _, v := range vars {
		l.emit(ir.WordLabel{Label: ir.Label(v.Descriptor)})
	}

	l.emit(ir.Word{Value: 0})
}

func (l *Lowerer) varDescriptors(vars []*storage.Var) {
	for _, v := range vars {
		l.emit(ir.Align{})
		l.label(ir.Label(v.Descriptor))
		l.emit(ir.Word{Value: ir.VarMagic})
		l.emit(ir.Word{Value: int32(v.Offset)})
		l.emit(ir.Word{Value: int32(v.Size)})
		l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(v.Name).Label)})
		l.emit(ir.Word{Value: int32(types.KindTag(v.Type))})
	}
}
