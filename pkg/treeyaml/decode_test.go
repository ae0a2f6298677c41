package treeyaml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/kplc/pkg/lower"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

const geo = `
package: Geo
file: Geo.k
hash: 99
records:
  - name: Pair
    fields:
      - {name: tag, type: char}
      - {name: val, type: double}
interfaces:
  - name: Printable
    messages:
      - name: print
        params: [{name: n, type: int}]
classes:
  - name: Shape
    fields:
      - {name: id, type: int}
      - {name: next, type: ptr to Shape}
    methods:
      - name: area
        returns: int
        body:
          - return: id
  - name: Square
    super: Shape
    fields:
      - {name: side, type: int}
    methods:
      - name: area
        returns: int
        body:
          - return: {mul: [side, side]}
      - name: "scale:"
        params: [{name: k, type: int}]
        body:
          - assign: [side, {mul: [side, k]}]
closures:
  - name: cb
    params: [{name: x, type: int}]
functions:
  - name: main
    locals:
      - {name: s, type: ptr to Shape}
      - {name: c, type: char}
      - {name: n, type: int}
      - {name: p, type: Pair}
      - {name: q, type: ptr to Printable}
      - {name: fn, type: "function (int)"}
    body:
      - assign: [s, {alloc: {type: Square, fields: {side: 3}}}]
        line: 4
      - assign: [n, {send: {to: s, sel: area}}]
      - while: {lt: [n, 10]}
        do:
          - if: {eq: [n, 5]}
            then: [break]
          - assign: [n, {add: [n, 1]}]
          - continue
      - send: {to: q, sel: print, args: [n]}
      - assign: [fn, {closure: cb}]
      - call: {fn: fn, args: [2]}
      - assign: [{field: [p, val]}, 1.5]
      - assign: [c, {char: "z"}]
main: main
`

func decodeOK(t *testing.T, src string) *tree.Package {
	t.Helper()

	p, err := Decode(context.Background(), []byte(src))
	require.NoError(t, err)

	return p
}

func TestDecode_Layout(t *testing.T) {
	p := decodeOK(t, geo)

	assert.Equal(t, "Geo", p.Name)
	assert.Equal(t, int32(99), p.Hash)
	assert.Equal(t, tree.RoutineID(0), p.Main)

	shape, square := p.Classes[0], p.Classes[1]
	assert.Equal(t, 12, shape.Size)
	assert.Equal(t, 16, square.Size)
	assert.Equal(t, tree.ClassID(0), square.Super)
	assert.Equal(t, 4, shape.Fields[0].Offset)
	assert.Equal(t, 8, shape.Fields[1].Offset)
	assert.Equal(t, 12, square.Fields[0].Offset)
	assert.Equal(t, types.Ptr{Elem: types.Class{Name: "Shape", Size: 12}}, shape.Fields[1].Type, "self reference through a pointer")

	assert.Equal(t, []tree.Method{
		{Selector: "area", Slot: 4, Routine: 3},
		{Selector: "scale:", Slot: 8, Routine: 4},
	}, square.Methods)

	scale := p.Routines[4]
	assert.Equal(t, tree.MethodRoutine, scale.Kind)
	assert.Equal(t, 12, scale.Sig.Params[0].Offset, "after self")
	assert.Equal(t, 8, scale.Sig.ParamSize)

	main := p.Routines[0]
	var offs []int
	for _, v := range main.Locals {
		offs = append(offs, v.Offset)
	}
	assert.Equal(t, []int{-8, -9, -16, -28, -32, -36}, offs)
	assert.Equal(t, 36, main.FrameSize)
}

func TestDecode_Resolution(t *testing.T) {
	p := decodeOK(t, geo)
	body := p.Routines[0].Body

	assert.Equal(t, 4, body[0].Position().Line)

	send := body[1].(*tree.Assign).Src.(*tree.Send)
	assert.Equal(t, tree.PrimNone, send.Prim)
	assert.Equal(t, 4, send.Slot)
	assert.Equal(t, types.IntType, send.Result)

	w := body[2].(*tree.While)
	assert.Equal(t, tree.IntLt, w.Cond.(*tree.Send).Prim)
	assert.Equal(t, w.ID, w.Body[0].(*tree.If).Then[0].(*tree.Break).Target)
	assert.Equal(t, w.ID, w.Body[2].(*tree.Continue).Target)

	msg := body[3].(*tree.CallStmt).Call.(*tree.Send)
	assert.Equal(t, 12, msg.Slot, "interface selectors follow class selectors")
	assert.Equal(t, 8, msg.Sig.ParamSize)

	ptr := body[5].(*tree.CallStmt).Call.(*tree.CallPtr)
	assert.Equal(t, 4, ptr.Sig.ParamSize)
	assert.Equal(t, tree.RoutineID(1), body[4].(*tree.Assign).Src.(*tree.ClosureRef).Routine)

	fa := body[6].(*tree.Assign).Dest.(*tree.FieldAccess)
	assert.Equal(t, 4, fa.Field.Offset, "double after a char is word aligned")
	assert.Equal(t, tree.DoubleLit{Value: 1.5}, body[6].(*tree.Assign).Src)

	area := p.Routines[3].Body[0].(*tree.Return).Value.(*tree.Send)
	assert.Equal(t, tree.IntMul, area.Prim)
	side := area.Receiver.(*tree.VarRef).Var
	assert.Equal(t, storage.ClassField, side.Class)
	assert.Equal(t, 12, side.Offset)
}

func TestDecode_Lowers(t *testing.T) {
	p := decodeOK(t, geo)

	code, err := lower.LowerPackage(context.Background(), p, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code.Instructions())
}

func TestDecode_AssignChecks(t *testing.T) {
	p := decodeOK(t, `
package: A
classes:
  - name: C
    fields: [{name: x, type: int}]
functions:
  - name: f
    locals:
      - {name: a, type: C}
      - {name: b, type: C}
      - {name: p, type: ptr to C}
      - name: fixed
        type: "array [3] of int"
      - name: dyn
        type: "ptr to array [*] of int"
    body:
      - assign: [a, b]
      - assign: [a, {deref: p}]
      - assign: [{deref: p}, a]
      - assign: [{deref: p}, {deref: p}]
      - assign: [fixed, fixed]
      - assign: [fixed, {deref: dyn}]
      - assign: [{deref: dyn}, fixed]
      - assign: [{deref: dyn}, {deref: dyn}]
`)

	want := []struct {
		check tree.DynamicCheck
		class tree.ClassID
		count int
	}{
		{tree.CheckNone, tree.None, 0},
		{tree.CheckObjectSrc, 0, 0},
		{tree.CheckObjectDest, 0, 0},
		{tree.CheckObjectObject, tree.None, 0},
		{tree.CheckFixedFixed, tree.None, 3},
		{tree.CheckFixedDynamic, tree.None, 3},
		{tree.CheckDynamicFixed, tree.None, 3},
		{tree.CheckDynamicDynamic, tree.None, 0},
	}

	body := p.Routines[0].Body
	require.Len(t, body, len(want))

	for i, w := range want {
		a := body[i].(*tree.Assign)
		assert.Equal(t, w.check, a.Check, "assign %d", i)
		assert.Equal(t, w.class, a.Class, "assign %d", i)
		assert.Equal(t, w.count, a.Count, "assign %d", i)
	}
}

func TestDecode_Index(t *testing.T) {
	p := decodeOK(t, `
package: A
functions:
  - name: f
    locals:
      - name: arr
        type: "array [3] of int"
      - name: dyn
        type: "ptr to array [*] of char"
    body:
      - assign: [{index: [arr, 1]}, 5]
      - assign: [{index: [dyn, 0]}, {index: [dyn, 1]}]
`)

	body := p.Routines[0].Body
	require.Len(t, body, 2)

	ix, ok := body[0].(*tree.Assign).Dest.(*tree.ArrayIndex)
	require.True(t, ok)
	assert.Equal(t, 4, ix.ElemSize)
	assert.Equal(t, types.IntType, ix.Elem)

	ref, ok := ix.X.(*tree.VarRef)
	require.True(t, ok)
	assert.Equal(t, "arr", ref.Var.Name)

	ix, ok = body[1].(*tree.Assign).Src.(*tree.ArrayIndex)
	require.True(t, ok)
	assert.Equal(t, 1, ix.ElemSize)
	assert.Equal(t, types.CharType, ix.Elem)

	_, err := Decode(context.Background(), []byte(`
package: A
functions:
  - name: f
    locals: [{name: n, type: int}]
    body:
      - assign: [{index: [n, 0]}, 1]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index of")
}

func TestDecode_SwitchAndTry(t *testing.T) {
	p := decodeOK(t, `
package: S
errors:
  - name: Bad
    params: [{name: code, type: int}]
functions:
  - name: f
    params: [{name: k, type: char}]
    returns: int
    body:
      - switch: k
        cases:
          - value: {char: a}
            do: [{return: 1}]
          - value: 7
            do: [break]
        default: [{return: 2}]
      - try:
          - throw: Bad
            args: [3]
        catch:
          - error: Bad
            params: [{name: c, type: int}]
            line: 9
            do: [{return: c}]
      - return: 0
`)

	r := p.Routines[0]

	s := r.Body[0].(*tree.Switch)
	assert.True(t, s.HasDefault)
	assert.Equal(t, int32('a'), s.Cases[0].Value)
	assert.Equal(t, s.ID, s.Cases[1].Body[0].(*tree.Break).Target)

	try := r.Body[1].(*tree.Try)
	require.Len(t, try.Catches, 1)
	c := try.Catches[0]
	assert.Equal(t, 9, c.Line)
	require.Len(t, c.Params, 1)
	assert.Equal(t, storage.Local, c.Params[0].Class)
	assert.Contains(t, r.Locals, c.Params[0], "catch parameters are routine locals")
	assert.Same(t, c.Params[0], c.Body[0].(*tree.Return).Value.(*tree.VarRef).Var)

	assert.Equal(t, 4, p.Errors[0].ParamSize)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown variable", `
package: E
functions:
  - name: f
    body:
      - assign: [x, 1]
`, `line 6: unknown variable "x"`},
		{"break outside loop", `
package: E
functions:
  - name: f
    body: [break]
`, "break outside"},
		{"recursive record", `
package: E
records:
  - name: R
    fields: [{name: r, type: R}]
globals:
  - {name: g, type: R}
`, "contains itself"},
		{"void return value", `
package: E
functions:
  - name: f
    body: [{return: 1}]
`, "returns no value"},
		{"argument count", `
package: E
functions:
  - name: g
    params: [{name: a, type: int}]
  - name: f
    body: [{call: {fn: g}}]
`, "takes 1 arguments, got 0"},
		{"unknown type", `
package: E
globals:
  - {name: g, type: Nope}
`, `unknown type "Nope"`},
		{"no package", `file: x.k`, "missing package name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(context.Background(), []byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTokenizeType(t *testing.T) {
	assert.Equal(t, []string{"array", "[", "*", "]", "of", "ptr", "to", "int"}, tokenizeType("array [*] of ptr to int"))
	assert.Equal(t, []string{"function", "(", "int", ",", "char", ")", "returns", "bool"}, tokenizeType("function (int, char) returns bool"))
}
