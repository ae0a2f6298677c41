// Package tree defines the resolved syntax tree consumed by lowering.
//
// Every variable, field and parameter reference already carries its size
// and storage offset, every class its instance size and dispatch slots.
// Declarations live in the per-package arenas (Classes, Interfaces, Errors,
// Routines) and refer to one another by index.
package tree

import (
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/types"
)

// Arena indices. The zero value of NodeID means "unresolved".
type (
	ClassID     int
	InterfaceID int
	ErrorID     int
	RoutineID   int
	NodeID      int
)

// None is the absent index for every arena.
const None = -1

// Pos is a source position
type Pos struct {
	Line int
}

func (p Pos) Position() Pos { return p }

// Package is one compilation unit together with the declarations it uses
// from other packages (marked Imported).
type Package struct {
	Name    string
	File    string
	Hash    int32
	Imports []Import

	Globals    []*Global
	Errors     []*ErrorDecl
	Classes    []*Class
	Interfaces []*Interface
	Routines   []*Routine

	// Main is the program entry routine, or None
	Main RoutineID
}

// Import is a package this one was compiled against
type Import struct {
	Name string
	Hash int32
}

// Global is a package level variable with an optional static initializer
type Global struct {
	Var      *storage.Var
	Init     Expr
	Imported bool
	Exported bool
}

// ErrorDecl is a declared error kind. Label is its globally unique
// synthesized name, whose address identifies the error at runtime.
type ErrorDecl struct {
	Name      string
	Label     string
	Params    []*storage.Var
	ParamSize int
	Imported  bool
	Exported  bool
	Pos
}

// Class is a class declaration
type Class struct {
	Name       string
	Package    string
	Super      ClassID
	Interfaces []InterfaceID
	Size       int
	Fields     []*storage.Var
	Methods    []Method
	Imported   bool
	Exported   bool
	Pos
}

// Method binds a selector to its dispatch slot (a byte offset into the
// dispatch table) and its implementing routine.
type Method struct {
	Selector string
	Slot     int
	Routine  RoutineID
}

// Interface is an interface declaration
type Interface struct {
	Name     string
	Package  string
	Extends  []InterfaceID
	Imported bool
	Exported bool
	Pos
}

// RoutineKind distinguishes functions, methods and closures
type RoutineKind int

const (
	Function RoutineKind = iota
	MethodRoutine
	Closure
)

// Signature describes parameters and result as seen by a caller.
// ParamSize is the total size of the parameter area.
type Signature struct {
	Params     []*storage.Var
	Result     types.Type
	ResultSize int
	ParamSize  int
}

// Routine is a function, method or closure
type Routine struct {
	Kind    RoutineKind
	Name    string // function name or method selector
	Package string // defining package
	Class   ClassID
	Sig     Signature
	Locals  []*storage.Var

	// FrameSize is the size of the declared locals area below the frame
	// pointer, including the routine descriptor slot.
	FrameSize int

	Body     []Stmt
	Imported bool
	Exported bool

	// Label is the generated entry point name, assigned by lowering when empty
	Label string
	Pos
}

// Class returns the class with the given id
func (p *Package) Class(id ClassID) *Class { return p.Classes[id] }

// Interface returns the interface with the given id
func (p *Package) Interface(id InterfaceID) *Interface { return p.Interfaces[id] }

// Error returns the error declaration with the given id
func (p *Package) Error(id ErrorID) *ErrorDecl { return p.Errors[id] }

// Routine returns the routine with the given id
func (p *Package) Routine(id RoutineID) *Routine { return p.Routines[id] }

// Ancestors returns the class and all its superclasses, root first.
func (p *Package) Ancestors(id ClassID) []ClassID {
	var chain []ClassID
	for c := id; c != None; c = p.Class(c).Super {
		chain = append(chain, c)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AllInterfaces returns every interface implemented by a class, directly,
// through a superclass or through interface extension, in first-seen order.
func (p *Package) AllInterfaces(id ClassID) []InterfaceID {
	seen := map[InterfaceID]bool{}
	var out []InterfaceID
	var visit func(InterfaceID)
	visit = func(i InterfaceID) {
		if seen[i] {
			return
		}
		seen[i] = true
		out = append(out, i)
		for _, e := range p.Interface(i).Extends {
			visit(e)
		}
	}
	for _, c := range p.Ancestors(id) {
		for _, i := range p.Class(c).Interfaces {
			visit(i)
		}
	}
	return out
}
