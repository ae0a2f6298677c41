package lower

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

func withError(p *tree.Package, params ...*storage.Var) *tree.Package {
	size := 0
	for _, v := range params {
		size = max(size, v.Offset+v.Size-storage.FirstParamOffset)
	}

	p.Errors = append(p.Errors, &tree.ErrorDecl{Name: "Oops", Label: "_Error_Test_Oops", Params: params, ParamSize: size})

	return p
}

func TestTry_RestoresBeforeEveryReturn(t *testing.T) {
	x := local("x", -8, types.IntType)
	f := function("f", 8, []*storage.Var{x},
		&tree.Try{
			Body:    []tree.Stmt{&tree.Return{}},
			Catches: []tree.Catch{{Error: 0, Body: []tree.Stmt{assign(ref(x), tree.IntLit{Value: 1})}}},
		},
		&tree.If{Cond: tree.BoolLit{Value: true}, Then: []tree.Stmt{&tree.Return{}}},
	)

	insts := routineCode(t, lowerOK(t, withError(testPackage(f)), nil), "_P_Test_f")

	save, ok := insts[1].(ir.SaveCatchStack)
	require.True(t, ok, "routine snapshot right after entry")

	exits := 0
	for i, inst := range insts {
		if _, ok := inst.(ir.RoutineExit); ok {
			exits++
			assert.Equal(t, ir.RestoreCatchStack{Src: save.Dest}, insts[i-1], "exit %d", exits)
		}
	}
	assert.Equal(t, 3, exits, "two returns and the end of the body")
}

func TestTry_Layout(t *testing.T) {
	e := local("e", -8, types.IntType)
	arg := param("code", 8, types.IntType)

	f := function("f", 8, []*storage.Var{e},
		&tree.Try{
			Body:    []tree.Stmt{&tree.Throw{Error: 0, Args: []tree.Expr{tree.IntLit{Value: 42}}}},
			Catches: []tree.Catch{{Error: 0, Params: []*storage.Var{e}}},
			Pos:     tree.Pos{Line: 12},
		},
	)

	insts := routineCode(t, lowerOK(t, withError(testPackage(f), arg), nil), "_P_Test_f")

	i := indexOf[ir.PushCatch](insts, 0)
	require.True(t, i > 0)

	save := insts[i-1].(ir.SaveCatchStack)
	push := insts[i].(ir.PushCatch)
	assert.Equal(t, ir.Label("_Error_Test_Oops"), push.Error)
	assert.Equal(t, 12, push.Line)

	assert.Equal(t, ir.PrepareArg{Offset: 0, Src: storage.IntConst{Value: 42}, Size: 4}, insts[i+1])
	assert.Equal(t, ir.Throw{Error: "_Error_Test_Oops"}, insts[i+2])
	assert.Equal(t, ir.RestoreCatchStack{Src: save.Dest}, insts[i+3])

	exit := insts[i+4].(ir.Goto)

	assert.Equal(t, ir.LabelDef{Label: push.Catch}, insts[i+5])
	assert.Equal(t, ir.CatchParam{ThrowOffset: 0, Dest: e, Size: 4}, insts[i+6])
	assert.Equal(t, ir.ResetStack{}, insts[i+7])
	assert.Equal(t, ir.RestoreCatchStack{Src: save.Dest}, insts[i+8])
	assert.Equal(t, exit, insts[i+9])
	assert.Equal(t, ir.LabelDef{Label: exit.Target}, insts[i+10])
}

func TestTry_BreakRestoresSnapshot(t *testing.T) {
	f := function("f", 4, nil,
		&tree.While{ID: 1, Cond: tree.BoolLit{Value: true}, Body: []tree.Stmt{
			&tree.Try{
				Body:    []tree.Stmt{&tree.Break{Target: 1}},
				Catches: []tree.Catch{{Error: 0}},
			},
		}},
	)

	insts := routineCode(t, lowerOK(t, withError(testPackage(f)), nil), "_P_Test_f")

	saves := []ir.SaveCatchStack{}
	for _, inst := range insts {
		if s, ok := inst.(ir.SaveCatchStack); ok {
			saves = append(saves, s)
		}
	}
	require.Len(t, saves, 2, "routine and try snapshots")

	i := indexOf[ir.PushCatch](insts, 0)
	assert.Equal(t, ir.RestoreCatchStack{Src: saves[1].Dest}, insts[i+1])

	brk := insts[i+2].(ir.Goto)

	back, exit := -1, -1
	for j, inst := range insts {
		if _, ok := inst.(ir.Goto); ok {
			back = j
		}
		if inst == (ir.LabelDef{Label: brk.Target}) {
			exit = j
		}
	}
	assert.Equal(t, back+1, exit, "break target follows the jump back to the loop top")
}

func TestLoops(t *testing.T) {
	i := local("i", -8, types.IntType)
	n := local("n", -12, types.IntType)
	sum := local("sum", -16, types.IntType)

	t.Run("for", func(t *testing.T) {
		f := function("f", 16, []*storage.Var{i, n, sum},
			&tree.For{ID: 1, Var: ref(i), Start: tree.IntLit{Value: 1}, Stop: ref(n), Body: []tree.Stmt{
				assign(ref(sum), binop(tree.IntAdd, ref(sum), ref(i), types.IntType)),
			}},
		)

		insts := routineCode(t, lowerOK(t, testPackage(f), nil), "_P_Test_f")

		assert.Equal(t, ir.Move{Dest: i, Src: storage.IntConst{Value: 1}, Size: 4}, insts[1])

		stop := insts[2].(ir.Move)
		assert.Same(t, n, stop.Src, "stop evaluated once")

		top := insts[3].(ir.LabelDef)
		assert.Equal(t, ir.IntCmpGoto{Cond: ir.Gt, L: i, R: stop.Dest, Size: 4, Target: insts[len(insts)-2].(ir.LabelDef).Label}, insts[4])
		assert.Contains(t, insts, ir.IntOp{Op: ir.Add, Dest: i, L: i, R: storage.IntConst{Value: 1}})
		assert.Contains(t, insts, ir.Goto{Target: top.Label})
	})

	t.Run("for down", func(t *testing.T) {
		f := function("f", 16, []*storage.Var{i, n, sum},
			&tree.For{ID: 1, Var: ref(i), Start: tree.IntLit{Value: 10}, Stop: tree.IntLit{Value: 1}, Step: tree.IntLit{Value: -1}},
		)

		cmp := only[ir.IntCmpGoto](lowerOK(t, testPackage(f), nil))
		require.Len(t, cmp, 1)
		assert.Equal(t, ir.Lt, cmp[0].Cond)
	})

	t.Run("do until", func(t *testing.T) {
		f := function("f", 16, []*storage.Var{i, n, sum},
			&tree.Do{ID: 1, Body: []tree.Stmt{
				&tree.Continue{Target: 1},
			}, Until: binop(tree.IntEq, ref(i), ref(n), types.BoolType)},
		)

		insts := routineCode(t, lowerOK(t, testPackage(f), nil), "_P_Test_f")

		top := insts[1].(ir.LabelDef)
		cont := insts[2].(ir.Goto)
		assert.Equal(t, ir.LabelDef{Label: cont.Target}, insts[3])

		cmp := insts[4].(ir.IntCmpGoto)
		assert.Equal(t, ir.Goto{Target: top.Label}, insts[5])
		assert.Equal(t, ir.LabelDef{Label: cmp.Target}, insts[6], "until true leaves the loop")
	})

	t.Run("c style", func(t *testing.T) {
		f := function("f", 16, []*storage.Var{i, n, sum},
			&tree.ForC{
				ID:   1,
				Init: []tree.Stmt{assign(ref(i), tree.IntLit{Value: 0})},
				Cond: binop(tree.IntLt, ref(i), ref(n), types.BoolType),
				Incr: []tree.Stmt{assign(ref(i), binop(tree.IntAdd, ref(i), tree.IntLit{Value: 1}, types.IntType))},
				Body: []tree.Stmt{&tree.Continue{Target: 1}},
			},
		)

		insts := routineCode(t, lowerOK(t, testPackage(f), nil), "_P_Test_f")

		cont := insts[indexOf[ir.Goto](insts, indexOf[ir.IntCmpGoto](insts, 0)+2)].(ir.Goto)
		j := 0
		for ; j < len(insts); j++ {
			if insts[j] == (ir.LabelDef{Label: cont.Target}) {
				break
			}
		}
		require.Less(t, j, len(insts))
		assert.Equal(t, ir.IntOp{Op: ir.Add, Dest: i, L: i, R: storage.IntConst{Value: 1}}, insts[j+1], "continue runs the increment")
	})
}

func TestSourceLines(t *testing.T) {
	x := local("x", -8, types.IntType)

	f := function("f", 8, []*storage.Var{x},
		&tree.Assign{Dest: ref(x), Src: tree.IntLit{Value: 1}, Pos: tree.Pos{Line: 3}},
		&tree.Assign{Dest: ref(x), Src: tree.IntLit{Value: 2}, Pos: tree.Pos{Line: 3}},
		&tree.Assign{Dest: ref(x), Src: tree.IntLit{Value: 3}, Pos: tree.Pos{Line: 4}},
	)

	lines := only[ir.SourceLine](lowerOK(t, testPackage(f), nil))
	assert.Equal(t, []ir.SourceLine{{Line: 3}, {Line: 4}}, lines)
}

func TestFreeAndClosures(t *testing.T) {
	p := local("p", -8, types.Ptr{Elem: types.IntType})
	fn := local("fn", -12, types.Func{Result: types.VoidType})

	target := function("g", 4, nil)
	target.Kind = tree.Closure

	f := function("f", 12, []*storage.Var{p, fn},
		&tree.Free{Ptr: ref(p)},
		assign(ref(fn), &tree.ClosureRef{Routine: 0, Type: fn.Type}),
		&tree.CallStmt{Call: &tree.CallPtr{Fn: ref(fn), Result: types.VoidType}},
	)

	code := lowerOK(t, testPackage(target, f), nil)

	assert.Equal(t, []ir.Free{{Ptr: p}}, only[ir.Free](code))
	assert.Equal(t, []ir.LoadLabelAddr{{Dest: fn, Label: "_C_Test_0"}}, only[ir.LoadLabelAddr](code))
	assert.Equal(t, []ir.CallIndirect{{Fn: fn}}, only[ir.CallIndirect](code))
	assert.Contains(t, only[ir.CheckNull](code), ir.CheckNull{Ptr: fn})
}
