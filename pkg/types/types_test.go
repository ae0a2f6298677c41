package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeOf(t *testing.T) {
	tests := []struct {
		typ  Type
		want int
	}{
		{IntType, 4},
		{CharType, 1},
		{BoolType, 1},
		{DoubleType, 8},
		{VoidType, 0},
		{Ptr{Elem: IntType}, 4},
		{Func{Params: []Type{IntType}, Result: IntType}, 4},
		{Array{Elem: IntType, Count: 5, ElemSize: 4}, 24},
		{Array{Elem: CharType, Count: 3, ElemSize: 1}, 8},
		{Array{Elem: IntType, Count: Dynamic, ElemSize: 4}, -1},
		{Record{Name: "R", Size: 12}, 12},
		{Class{Name: "C", Size: 16}, 16},
		{Interface{Name: "I"}, -1},
		{TypeParam{Name: "T", Size: 8}, 8},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SizeOf(tt.typ))
		})
	}
}

func TestKindTag(t *testing.T) {
	assert.Equal(t, byte('I'), KindTag(IntType))
	assert.Equal(t, byte('C'), KindTag(CharType))
	assert.Equal(t, byte('B'), KindTag(BoolType))
	assert.Equal(t, byte('D'), KindTag(DoubleType))
	assert.Equal(t, byte('P'), KindTag(Ptr{Elem: CharType}))
	assert.Equal(t, byte('A'), KindTag(Array{Elem: IntType, Count: 2, ElemSize: 4}))
	assert.Equal(t, byte('R'), KindTag(Record{Name: "R"}))
	assert.Equal(t, byte('O'), KindTag(Class{Name: "C"}))
	assert.Equal(t, byte('O'), KindTag(Interface{Name: "I"}))
}

func TestString(t *testing.T) {
	assert.Equal(t, "ptr to array [*] of char",
		Ptr{Elem: Array{Elem: CharType, Count: Dynamic, ElemSize: 1}}.String())
	assert.Equal(t, "array [10] of int", Array{Elem: IntType, Count: 10, ElemSize: 4}.String())
	assert.Equal(t, "function (int, ptr to int) returns bool",
		Func{Params: []Type{IntType, Ptr{Elem: IntType}}, Result: BoolType}.String())
	assert.Equal(t, "function ()", Func{Result: VoidType}.String())
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsObject(Class{Name: "C"}))
	assert.True(t, IsObject(Interface{Name: "I"}))
	assert.False(t, IsObject(Ptr{Elem: Class{Name: "C"}}))

	assert.True(t, IsPtr(NullType))
	assert.True(t, IsPtr(Ptr{Elem: IntType}))
	assert.False(t, IsPtr(IntType))

	assert.Equal(t, Type(IntType), Deref(Ptr{Elem: IntType}))
	assert.Nil(t, Deref(IntType))

	assert.Equal(t, 8, AlignUp(5, 4))
	assert.Equal(t, 8, AlignUp(8, 4))
	assert.Equal(t, 5, AlignUp(5, 1))
}
