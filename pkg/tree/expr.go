package tree

import (
	"fmt"

	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/types"
)

// Expr is an expression
type Expr interface {
	implExpr()
}

// Literals
type (
	IntLit    struct{ Value int32 }
	CharLit   struct{ Value byte }
	BoolLit   struct{ Value bool }
	DoubleLit struct{ Value float64 }
	StringLit struct{ Value string }
	NullLit   struct{}
)

// VarRef names a variable of any storage class
type VarRef struct {
	Var *storage.Var
}

// FieldAccess is X.Field where X is an object, a record or a pointer to one.
// Field is a ClassField location whose offset is relative to X.
type FieldAccess struct {
	X     Expr
	Field *storage.Var
}

// ArrayIndex is X[Index] where X is an array or a pointer to one
type ArrayIndex struct {
	X        Expr
	Index    Expr
	ElemSize int
	Elem     types.Type
}

// PrimOp tags a send that the machine implements directly
type PrimOp int

const (
	PrimNone PrimOp = iota

	IntAdd
	IntSub
	IntMul
	IntDiv
	IntRem
	IntSll
	IntSra
	IntSrl
	IntAnd
	IntOr
	IntXor
	IntNeg
	IntNot

	IntEq
	IntNe
	IntLt
	IntLe
	IntGt
	IntGe

	DoubleAdd
	DoubleSub
	DoubleMul
	DoubleDiv
	DoubleNeg

	DoubleEq
	DoubleNe
	DoubleLt
	DoubleLe
	DoubleGt
	DoubleGe

	BoolAnd
	BoolOr
	BoolNot
	BoolEq
	BoolNe

	PtrEq
	PtrNe

	Deref
	AddrOf

	IntToDouble
	DoubleToInt
	IntToChar
	CharToInt
)

var primNames = map[PrimOp]string{
	IntAdd: "int+", IntSub: "int-", IntMul: "int*", IntDiv: "int/", IntRem: "int%",
	IntSll: "int<<", IntSra: "int>>", IntSrl: "int>>>",
	IntAnd: "int&", IntOr: "int|", IntXor: "int^", IntNeg: "int-neg", IntNot: "int~",
	IntEq: "int==", IntNe: "int!=", IntLt: "int<", IntLe: "int<=", IntGt: "int>", IntGe: "int>=",
	DoubleAdd: "double+", DoubleSub: "double-", DoubleMul: "double*", DoubleDiv: "double/", DoubleNeg: "double-neg",
	DoubleEq: "double==", DoubleNe: "double!=", DoubleLt: "double<", DoubleLe: "double<=", DoubleGt: "double>", DoubleGe: "double>=",
	BoolAnd: "&&", BoolOr: "||", BoolNot: "!", BoolEq: "bool==", BoolNe: "bool!=",
	PtrEq: "ptr==", PtrNe: "ptr!=",
	Deref: "deref", AddrOf: "addr",
	IntToDouble: "intToDouble", DoubleToInt: "doubleToInt", IntToChar: "intToChar", CharToInt: "charToInt",
}

func (op PrimOp) String() string {
	if n, ok := primNames[op]; ok {
		return n
	}
	return fmt.Sprintf("prim(%d)", int(op))
}

// Send is a message send. A primitive send (Prim != PrimNone) has its first
// operand in Receiver and the second, if any, in Args[0]. Other sends
// dispatch through Slot, or call Target directly when Super is set.
type Send struct {
	Receiver Expr
	Selector string
	Prim     PrimOp
	Sig      Signature
	Slot     int
	Super    bool
	Target   RoutineID
	Args     []Expr
	Result   types.Type
}

// Call calls a function directly
type Call struct {
	Routine RoutineID
	Args    []Expr
	Result  types.Type
}

// CallPtr calls through a function valued expression
type CallPtr struct {
	Fn     Expr
	Sig    Signature
	Args   []Expr
	Result types.Type
}

// ClosureRef is the value of a closure: the entry point of its routine
type ClosureRef struct {
	Routine RoutineID
	Type    types.Type
}

// ConsKind is what a constructor builds
type ConsKind int

const (
	ArrayCons ConsKind = iota
	RecordCons
	ClassCons
)

// Constructor is "new" (a value) or "alloc" (a heap pointer) of an array,
// record or object.
type Constructor struct {
	Alloc bool
	Kind  ConsKind
	Class ClassID
	Type  types.Type

	// Size is the byte size of the constructed value, -1 when an array
	// size is only known at runtime.
	Size int

	// Fields are the explicit initializers; FieldCount is the number of
	// fields of the record or class.
	Fields     []FieldInit
	FieldCount int

	Elems         []ElemInit
	ElemSize      int
	DeclaredCount int // types.Dynamic for array [*]
}

// FieldInit initializes one field
type FieldInit struct {
	Offset int
	Size   int
	Value  Expr
}

// ElemInit is "Count of Value"; Count is nil when absent, meaning one.
type ElemInit struct {
	Count Expr
	Value Expr
}

// IsKindOf tests class membership. Exactly one of Class or Interface is set.
type IsKindOf struct {
	X         Expr
	Class     ClassID
	Interface InterfaceID
}

// IsInstanceOf tests for an exact class
type IsInstanceOf struct {
	X     Expr
	Class ClassID
}

// Cast reinterprets X as Type without conversion
type Cast struct {
	X    Expr
	Type types.Type
}

// ArraySizeOf is the element count of an array
type ArraySizeOf struct {
	X Expr
}

func (IntLit) implExpr()        {}
func (CharLit) implExpr()       {}
func (BoolLit) implExpr()       {}
func (DoubleLit) implExpr()     {}
func (StringLit) implExpr()     {}
func (NullLit) implExpr()       {}
func (*VarRef) implExpr()       {}
func (*FieldAccess) implExpr()  {}
func (*ArrayIndex) implExpr()   {}
func (*Send) implExpr()         {}
func (*Call) implExpr()         {}
func (*CallPtr) implExpr()      {}
func (*ClosureRef) implExpr()   {}
func (*Constructor) implExpr()  {}
func (*IsKindOf) implExpr()     {}
func (*IsInstanceOf) implExpr() {}
func (*Cast) implExpr()         {}
func (*ArraySizeOf) implExpr()  {}

// StringType is the type of string literals
var StringType = types.Ptr{Elem: types.Array{Elem: types.CharType, Count: types.Dynamic, ElemSize: 1}}

// TypeOf returns the resolved type of an expression
func TypeOf(e Expr) types.Type {
	switch e := e.(type) {
	case IntLit:
		return types.IntType
	case CharLit:
		return types.CharType
	case BoolLit:
		return types.BoolType
	case DoubleLit:
		return types.DoubleType
	case StringLit:
		return StringType
	case NullLit:
		return types.NullType
	case *VarRef:
		return e.Var.Type
	case *FieldAccess:
		return e.Field.Type
	case *ArrayIndex:
		return e.Elem
	case *Send:
		return e.Result
	case *Call:
		return e.Result
	case *CallPtr:
		return e.Result
	case *ClosureRef:
		return e.Type
	case *Constructor:
		if e.Alloc {
			return types.Ptr{Elem: e.Type}
		}
		return e.Type
	case *IsKindOf, *IsInstanceOf:
		return types.BoolType
	case *Cast:
		return e.Type
	case *ArraySizeOf:
		return types.IntType
	}
	return nil
}

// SizeOf returns the byte size of the value of e, -1 if not static
func SizeOf(e Expr) int {
	switch e := e.(type) {
	case *VarRef:
		return e.Var.Size
	case *FieldAccess:
		return e.Field.Size
	case *ArrayIndex:
		return e.ElemSize
	case *Send:
		if e.Prim == PrimNone {
			return e.Sig.ResultSize
		}
	case *Constructor:
		if e.Alloc {
			return types.WordSize
		}
		return e.Size
	}
	t := TypeOf(e)
	if t == nil {
		return -1
	}
	return types.SizeOf(t)
}
