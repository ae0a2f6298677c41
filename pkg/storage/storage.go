// Package storage defines the storage locations and constants that
// instructions may reference. An instruction operand is always one of
// these, never a syntax tree expression.
package storage

import (
	"fmt"
	"strconv"

	"tlog.app/go/tlog/tlwire"

	"github.com/raymyers/kplc/pkg/types"
)

// Class is the addressing class of a variable.
type Class int

const (
	Global     Class = iota // symbolic address
	Local                   // negative offset from the frame pointer
	Param                   // positive offset from the frame pointer
	ClassField              // offset from self, which is read from SelfOffset
)

// SelfOffset is the frame offset of the receiver in every method frame.
const SelfOffset = 8

// FirstParamOffset is the frame offset of the first parameter.
// Below it are the saved frame pointer and the return address.
const FirstParamOffset = 8

// DescriptorOffset is the frame slot holding the routine descriptor pointer.
const DescriptorOffset = -4

func (c Class) String() string {
	switch c {
	case Global:
		return "global"
	case Local:
		return "local"
	case Param:
		return "param"
	case ClassField:
		return "field"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Operand is anything an instruction may read: a variable or a constant.
type Operand interface {
	implOperand()
	String() string
}

// Var is a storage location. Name is empty for compiler temporaries,
// which also have no Type.
type Var struct {
	Class  Class
	Name   string
	Label  string // symbolic address of a Global
	Offset int
	Size   int
	Type   types.Type

	// Descriptor is the variable descriptor label, assigned when the
	// enclosing routine's descriptor is emitted.
	Descriptor string
}

// IsTemp reports whether v was introduced by the compiler.
func (v *Var) IsTemp() bool { return v.Name == "" }

func (v *Var) String() string {
	name := v.Name
	if name == "" {
		name = "temp"
	}
	switch v.Class {
	case Global:
		return name + "@" + v.Label
	case ClassField:
		return "self." + name + "@" + strconv.Itoa(v.Offset)
	}
	return name + "@" + strconv.Itoa(v.Offset)
}

func (v *Var) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 4)

	b = e.AppendString(b, "name")
	b = e.AppendString(b, v.Name)
	b = e.AppendString(b, "class")
	b = e.AppendString(b, v.Class.String())
	b = e.AppendKeyInt(b, "off", v.Offset)
	b = e.AppendKeyInt(b, "size", v.Size)

	return b
}

// IntConst is a compile time int
type IntConst struct {
	Value int32
}

// CharConst is a compile time char
type CharConst struct {
	Value byte
}

// BoolConst is a compile time bool
type BoolConst struct {
	Value bool
}

// NullConst is the nil pointer
type NullConst struct{}

// DoubleConst is a pooled double constant. Label addresses the pooled copy.
type DoubleConst struct {
	Value float64
	Label string
}

// StringConst is a pooled string. As an operand it denotes the address
// of the pooled bytes, which are preceded by a count word.
type StringConst struct {
	Value string
	Label string
}

func (*Var) implOperand()         {}
func (IntConst) implOperand()     {}
func (CharConst) implOperand()    {}
func (BoolConst) implOperand()    {}
func (NullConst) implOperand()    {}
func (*DoubleConst) implOperand() {}
func (*StringConst) implOperand() {}

func (c IntConst) String() string  { return strconv.FormatInt(int64(c.Value), 10) }
func (c CharConst) String() string { return strconv.QuoteRune(rune(c.Value)) }
func (c BoolConst) String() string { return strconv.FormatBool(c.Value) }
func (NullConst) String() string   { return "null" }

func (c *DoubleConst) String() string { return strconv.FormatFloat(c.Value, 'g', -1, 64) }
func (c *StringConst) String() string { return strconv.Quote(c.Value) }

// IsConst reports whether op is a compile time constant.
func IsConst(op Operand) bool {
	_, ok := op.(*Var)
	return !ok
}

// WordValue returns the integer bits of a word or byte sized constant.
func WordValue(op Operand) (int32, bool) {
	switch c := op.(type) {
	case IntConst:
		return c.Value, true
	case CharConst:
		return int32(c.Value), true
	case BoolConst:
		if c.Value {
			return 1, true
		}
		return 0, true
	case NullConst:
		return 0, true
	}
	return 0, false
}
