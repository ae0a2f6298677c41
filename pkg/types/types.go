// Package types defines the resolved type model consumed by the back end.
// Every type that reaches lowering already carries its byte size; nothing
// here computes layout beyond the fixed sizes of the basic types.
package types

import (
	"fmt"
	"strings"
)

// Type is a resolved source type.
type Type interface {
	implType()
	String() string
}

// BasicKind enumerates the built-in scalar types
type BasicKind int

const (
	Int BasicKind = iota
	Char
	Bool
	Double
	Void
	Null // type of the nil literal, assignable to any pointer
)

// Basic is a built-in scalar type
type Basic struct {
	Kind BasicKind
}

// Ptr is "ptr to Elem"
type Ptr struct {
	Elem Type
}

// Array is "array [Count] of Elem", Count is Dynamic for "array [*] of Elem".
type Array struct {
	Elem     Type
	Count    int
	ElemSize int
}

// Dynamic marks an array whose element count is only known at runtime.
const Dynamic = -1

// Record is a named record type
type Record struct {
	Name string
	Size int
}

// Class is a named class type; values of this type are objects.
type Class struct {
	Name string
	Size int
}

// Interface is a named interface type. Its values are objects of
// unknown concrete class and unknown size.
type Interface struct {
	Name string
}

// Func is a function type, the type of closures and function pointers.
type Func struct {
	Params []Type
	Result Type
}

// TypeParam is a generic type parameter erased to its constraint size.
type TypeParam struct {
	Name string
	Size int
}

func (Basic) implType()     {}
func (Ptr) implType()       {}
func (Array) implType()     {}
func (Record) implType()    {}
func (Class) implType()     {}
func (Interface) implType() {}
func (Func) implType()      {}
func (TypeParam) implType() {}

// Shared basic types
var (
	IntType    = Basic{Kind: Int}
	CharType   = Basic{Kind: Char}
	BoolType   = Basic{Kind: Bool}
	DoubleType = Basic{Kind: Double}
	VoidType   = Basic{Kind: Void}
	NullType   = Basic{Kind: Null}
)

// Sizes of the scalar types
const (
	WordSize   = 4
	DoubleSize = 8
)

func (b Basic) String() string {
	switch b.Kind {
	case Int:
		return "int"
	case Char:
		return "char"
	case Bool:
		return "bool"
	case Double:
		return "double"
	case Void:
		return "void"
	case Null:
		return "typeOfNull"
	}
	return fmt.Sprintf("basic(%d)", int(b.Kind))
}

func (p Ptr) String() string { return "ptr to " + p.Elem.String() }

func (a Array) String() string {
	if a.Count == Dynamic {
		return "array [*] of " + a.Elem.String()
	}
	return fmt.Sprintf("array [%d] of %s", a.Count, a.Elem)
}

func (r Record) String() string    { return r.Name }
func (c Class) String() string     { return c.Name }
func (i Interface) String() string { return i.Name }
func (t TypeParam) String() string { return t.Name }

func (f Func) String() string {
	var sb strings.Builder
	sb.WriteString("function (")
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")")
	if f.Result != nil && !IsVoid(f.Result) {
		sb.WriteString(" returns ")
		sb.WriteString(f.Result.String())
	}
	return sb.String()
}

// SizeOf returns the byte size of a value of type t.
// Dynamic arrays and interfaces have no static size and report -1.
func SizeOf(t Type) int {
	switch t := t.(type) {
	case Basic:
		switch t.Kind {
		case Int, Null:
			return WordSize
		case Char, Bool:
			return 1
		case Double:
			return DoubleSize
		}
		return 0
	case Ptr, Func:
		return WordSize
	case Array:
		if t.Count == Dynamic {
			return -1
		}
		return ArraySize(t.Count, t.ElemSize)
	case Record:
		return t.Size
	case Class:
		return t.Size
	case TypeParam:
		return t.Size
	}
	return -1
}

// ArraySize is the byte size of an array holding count elements:
// one count word followed by the elements, padded to a word.
func ArraySize(count, elemSize int) int {
	return AlignUp(WordSize+count*elemSize, WordSize)
}

// AlignUp rounds n up to a multiple of align.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// KindTag is the one-character tag recorded in variable descriptors.
func KindTag(t Type) byte {
	switch t := t.(type) {
	case Basic:
		switch t.Kind {
		case Int:
			return 'I'
		case Char:
			return 'C'
		case Bool:
			return 'B'
		case Double:
			return 'D'
		}
		return 'P'
	case Ptr, Func:
		return 'P'
	case Array:
		return 'A'
	case Record:
		return 'R'
	case Class, Interface:
		return 'O'
	case TypeParam:
		switch t.Size {
		case 1:
			return 'C'
		case DoubleSize:
			return 'D'
		}
		return 'I'
	}
	return '?'
}

// IsVoid reports whether t is void.
func IsVoid(t Type) bool {
	b, ok := t.(Basic)
	return ok && b.Kind == Void
}

// IsDouble reports whether t is double.
func IsDouble(t Type) bool {
	b, ok := t.(Basic)
	return ok && b.Kind == Double
}

// IsObject reports whether values of t are objects (class or interface instances).
func IsObject(t Type) bool {
	switch t.(type) {
	case Class, Interface:
		return true
	}
	return false
}

// IsPtr reports whether t is a pointer (including the nil type).
func IsPtr(t Type) bool {
	switch t := t.(type) {
	case Ptr:
		return true
	case Basic:
		return t.Kind == Null
	}
	return false
}

// Deref returns the pointee type of a pointer, or nil.
func Deref(t Type) Type {
	if p, ok := t.(Ptr); ok {
		return p.Elem
	}
	return nil
}
