package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/types"
)

func hierarchy() *Package {
	return &Package{
		Name: "Shapes",
		Interfaces: []*Interface{
			{Name: "Printable", Extends: []InterfaceID{1}},
			{Name: "Object"},
			{Name: "Comparable"},
		},
		Classes: []*Class{
			{Name: "Shape", Super: None, Interfaces: []InterfaceID{0}, Size: 4},
			{Name: "Circle", Super: 0, Size: 8},
			{Name: "Ring", Super: 1, Interfaces: []InterfaceID{2, 1}, Size: 12},
		},
		Main: None,
	}
}

func TestAncestors(t *testing.T) {
	p := hierarchy()
	assert.Equal(t, []ClassID{0}, p.Ancestors(0))
	assert.Equal(t, []ClassID{0, 1, 2}, p.Ancestors(2))
}

func TestAllInterfaces(t *testing.T) {
	p := hierarchy()
	assert.Equal(t, []InterfaceID{0, 1}, p.AllInterfaces(1))
	assert.Equal(t, []InterfaceID{0, 1, 2}, p.AllInterfaces(2))
}

func TestContainsTry(t *testing.T) {
	try := &Try{Body: []Stmt{&Return{}}}
	assert.False(t, ContainsTry([]Stmt{&Return{}, &Break{Target: 1}}))
	assert.True(t, ContainsTry([]Stmt{try}))
	assert.True(t, ContainsTry([]Stmt{&While{ID: 1, Cond: BoolLit{Value: true}, Body: []Stmt{
		&If{Cond: BoolLit{Value: true}, Else: []Stmt{try}},
	}}}))
	assert.True(t, ContainsTry([]Stmt{&Switch{ID: 2, Cases: []Case{{Value: 1, Body: []Stmt{try}}}}}))
}

func TestTypeOf(t *testing.T) {
	x := &storage.Var{Class: storage.Local, Name: "x", Offset: -8, Size: 4, Type: types.IntType}
	arr := types.Array{Elem: types.CharType, Count: 10, ElemSize: 1}

	assert.Equal(t, types.Type(types.IntType), TypeOf(&VarRef{Var: x}))
	assert.Equal(t, types.Type(types.BoolType), TypeOf(&IsKindOf{X: &VarRef{Var: x}, Class: 0, Interface: None}))
	assert.Equal(t, types.Type(types.Ptr{Elem: arr}), TypeOf(&Constructor{Alloc: true, Kind: ArrayCons, Type: arr}))
	assert.Equal(t, StringType, TypeOf(StringLit{Value: "hi"}))

	assert.Equal(t, 4, SizeOf(&VarRef{Var: x}))
	assert.Equal(t, 1, SizeOf(BoolLit{}))
	assert.Equal(t, 8, SizeOf(DoubleLit{}))
	assert.Equal(t, 4, SizeOf(&Constructor{Alloc: true, Size: 16}))
	assert.Equal(t, 16, SizeOf(&Constructor{Size: 16}))
	assert.Equal(t, 8, SizeOf(&Send{Prim: PrimNone, Sig: Signature{ResultSize: 8}}))
	assert.Equal(t, 4, SizeOf(&Send{Prim: IntAdd, Result: types.IntType}))
}

func TestPrimOpString(t *testing.T) {
	assert.Equal(t, "int+", IntAdd.String())
	assert.Equal(t, "&&", BoolAnd.String())
	assert.Equal(t, "prim(999)", PrimOp(999).String())
}
