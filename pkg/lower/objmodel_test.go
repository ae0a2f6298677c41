package lower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

func method(class tree.ClassID, sel string) *tree.Routine {
	return &tree.Routine{
		Kind:      tree.MethodRoutine,
		Name:      sel,
		Class:     class,
		FrameSize: 4,
		Sig:       tree.Signature{ParamSize: 4},
	}
}

// shapes: Shape{area, name}, Circle extends Shape overriding area and
// adding radius:, and an interface Printable implemented by Shape.
func shapes() *tree.Package {
	p := testPackage(
		method(0, "area"),
		method(0, "name"),
		method(1, "area"),
		method(1, "radius:"),
	)
	p.Interfaces = []*tree.Interface{{Name: "Printable"}}
	p.Classes = []*tree.Class{
		{Name: "Shape", Super: tree.None, Interfaces: []tree.InterfaceID{0}, Size: 4, Methods: []tree.Method{
			{Selector: "area", Slot: 4, Routine: 0},
			{Selector: "name", Slot: 8, Routine: 1},
		}, Pos: tree.Pos{Line: 3}},
		{Name: "Circle", Super: 0, Size: 8, Methods: []tree.Method{
			{Selector: "area", Slot: 4, Routine: 2},
			{Selector: "radius:", Slot: 16, Routine: 3},
		}, Pos: tree.Pos{Line: 9}},
	}
	return p
}

// dataAfter returns the data words following the definition of label
func dataAfter(t *testing.T, code *ir.Code, label ir.Label) []ir.Instruction {
	t.Helper()

	insts := code.Instructions()
	for i, inst := range insts {
		if inst != (ir.LabelDef{Label: label}) {
			continue
		}

		var out []ir.Instruction
		for _, d := range insts[i+1:] {
			switch d.(type) {
			case ir.Word, ir.WordLabel:
				out = append(out, d)
				continue
			}
			break
		}
		return out
	}

	require.Fail(t, "label not defined", label)
	return nil
}

func TestDispatchTables(t *testing.T) {
	code := lowerOK(t, shapes(), nil)

	assert.Equal(t, []ir.Instruction{
		ir.WordLabel{Label: "_TD_Shape"},
		ir.WordLabel{Label: "_M_Shape_area"},
		ir.WordLabel{Label: "_M_Shape_name"},
	}, dataAfter(t, code, "_DT_Shape"))

	assert.Equal(t, []ir.Instruction{
		ir.WordLabel{Label: "_TD_Circle"},
		ir.WordLabel{Label: "_M_Circle_area"},
		ir.WordLabel{Label: "_M_Shape_name"},
		ir.Word{Value: 0},
		ir.WordLabel{Label: "_M_Circle_radius_"},
	}, dataAfter(t, code, "_DT_Circle"), "inherited slots keep their position")
}

func TestClassDescriptors(t *testing.T) {
	code := lowerOK(t, shapes(), nil)

	circle := dataAfter(t, code, "_TD_Circle")
	require.Len(t, circle, 8)
	assert.Equal(t, ir.Word{Value: ir.ClassMagic}, circle[0])
	assert.Equal(t, ir.Word{Value: 9}, circle[3])
	assert.Equal(t, ir.Word{Value: 8}, circle[4], "instance size")
	assert.Equal(t, ir.WordLabel{Label: "_TD_Shape"}, circle[5])
	assert.Equal(t, ir.WordLabel{Label: "_TD_Printable"}, circle[6])
	assert.Equal(t, ir.Word{Value: 0}, circle[7])

	iface := dataAfter(t, code, "_TD_Printable")
	assert.Equal(t, ir.Word{Value: ir.InterfaceMagic}, iface[0])
	assert.Equal(t, ir.Word{Value: 0}, iface[len(iface)-1])
}

func TestSendLowering(t *testing.T) {
	p := shapes()

	s := local("s", -8, types.Ptr{Elem: types.Class{Name: "Shape", Size: 4}})
	r := local("r", -12, types.IntType)
	arg := param("x", 12, types.IntType)

	p.Routines = append(p.Routines, function("f", 12, []*storage.Var{s, r},
		assign(ref(r), &tree.Send{
			Receiver: ref(s),
			Selector: "radius:",
			Sig:      tree.Signature{Params: []*storage.Var{arg}, Result: types.IntType, ResultSize: 4, ParamSize: 8},
			Slot:     16,
			Args:     []tree.Expr{tree.IntLit{Value: 2}},
			Result:   types.IntType,
		}),
	))

	insts := routineCode(t, lowerOK(t, p, nil), "_P_Test_f")

	assert.Equal(t, []ir.Instruction{
		ir.PrepareArg{Offset: 0, Src: s, Size: 4},
		ir.PrepareArg{Offset: 4, Src: storage.IntConst{Value: 2}, Size: 4},
		ir.Send{Slot: 16},
		ir.RetrieveResult{Dest: r, Size: 4},
	}, insts[1:5])
}

func TestSuperSend(t *testing.T) {
	p := shapes()

	self := &storage.Var{Class: storage.Param, Name: "self", Offset: storage.SelfOffset, Size: 4, Type: types.Ptr{Elem: types.Class{Name: "Circle", Size: 8}}}
	p.Routines[2].Body = []tree.Stmt{&tree.CallStmt{Call: &tree.Send{
		Receiver: ref(self),
		Selector: "area",
		Sig:      tree.Signature{ParamSize: 4},
		Slot:     4,
		Super:    true,
		Target:   0,
	}}}

	insts := routineCode(t, lowerOK(t, p, nil), "_M_Circle_area")
	assert.Equal(t, ir.PrepareArg{Offset: 0, Src: self, Size: 4}, insts[1])
	assert.Equal(t, ir.Call{Label: "_M_Shape_area"}, insts[2])
}

func TestIsKindOf(t *testing.T) {
	p := shapes()

	s := local("s", -8, types.Ptr{Elem: types.Class{Name: "Shape", Size: 4}})
	b := local("b", -9, types.BoolType)

	p.Routines = append(p.Routines, function("f", 12, []*storage.Var{s, b},
		assign(ref(b), &tree.IsKindOf{X: ref(s), Class: tree.None, Interface: 0}),
		assign(ref(b), &tree.IsInstanceOf{X: ref(s), Class: 1}),
	))

	code := lowerOK(t, p, nil)

	assert.Equal(t, []ir.IsKindOf{{Dest: b, Obj: s, Descriptor: "_TD_Printable"}}, only[ir.IsKindOf](code))
	assert.Equal(t, []ir.IsInstanceOf{{Dest: b, Obj: s, Descriptor: "_TD_Circle"}}, only[ir.IsInstanceOf](code))
}

func TestMethodDescriptor(t *testing.T) {
	code := lowerOK(t, shapes(), nil)

	rd := dataAfter(t, code, "_RD__M_Shape_name")
	require.Len(t, rd, 10)
	assert.Equal(t, ir.Word{Value: ir.RoutineMagic}, rd[0])
	assert.Equal(t, ir.Word{Value: 4}, rd[3], "parameter size")
	assert.Equal(t, ir.WordLabel{Label: "_M_Shape_name_frameSize"}, rd[4])
	assert.Equal(t, ir.Word{Value: storage.SelfOffset}, rd[5])
	assert.Equal(t, ir.Word{Value: 'P'}, rd[8])
	assert.Equal(t, ir.Word{Value: 0}, rd[9])
}

func TestMangle(t *testing.T) {
	assert.Equal(t, "at_put_", mangle("at:put:"))
	assert.Equal(t, "_43_", mangle("+"))
	assert.Equal(t, "foo", mangle("foo"))
	assert.False(t, strings.ContainsAny(mangle("<= x"), "<= "))

	assert.Equal(t, "a_95_b", mangle("a_b"))
	assert.NotEqual(t, mangle("a:b"), mangle("a_b"))
	assert.NotEqual(t, mangle("+"), mangle("_43_"))
	assert.NotEqual(t, mangle("set:"), mangle("set_"))
}
