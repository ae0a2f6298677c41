package tree

import "github.com/raymyers/kplc/pkg/storage"

// Stmt is a statement
type Stmt interface {
	implStmt()
	Position() Pos
}

// If is "if Cond Then else Else"
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
	Pos
}

// While is "while Cond Body"
type While struct {
	ID   NodeID
	Cond Expr
	Body []Stmt
	Pos
}

// Do is "do Body until Cond"; the body runs until Cond becomes true.
type Do struct {
	ID    NodeID
	Body  []Stmt
	Until Expr
	Pos
}

// For is "for Var = Start to Stop by Step". Step is nil when absent.
type For struct {
	ID    NodeID
	Var   Expr
	Start Expr
	Stop  Expr
	Step  Expr
	Body  []Stmt
	Pos
}

// ForC is "for (Init; Cond; Incr)". Cond is nil for an endless loop.
type ForC struct {
	ID   NodeID
	Init []Stmt
	Cond Expr
	Incr []Stmt
	Body []Stmt
	Pos
}

// Switch selects among integer cases. Bodies fall through in order.
type Switch struct {
	ID         NodeID
	Selector   Expr
	Cases      []Case
	Default    []Stmt
	HasDefault bool
	Pos
}

// Case is one switch arm
type Case struct {
	Value int32
	Body  []Stmt
}

// Break leaves the loop or switch Target
type Break struct {
	Target NodeID
	Pos
}

// Continue starts the next iteration of the loop Target
type Continue struct {
	Target NodeID
	Pos
}

// Return leaves the routine; Value is nil for void routines
type Return struct {
	Value Expr
	Pos
}

// Try runs Body with the catch clauses active
type Try struct {
	Body    []Stmt
	Catches []Catch
	Pos
}

// Catch handles one error kind. Params are ordinary locals of the routine.
type Catch struct {
	Error  ErrorID
	Params []*storage.Var
	Body   []Stmt
	Pos
}

// Throw raises Error with Args
type Throw struct {
	Error ErrorID
	Args  []Expr
	Pos
}

// DynamicCheck selects the assignment lowering, see Assign
type DynamicCheck int

const (
	CheckNone                 DynamicCheck = iota // 0: plain assignment
	CheckObjectObject                             // 1: object := object
	CheckObjectDest                               // 2: check dest against a known source class
	CheckObjectSrc                                // 3: check source against a known dest class
	CheckFixedFixed                               // 4: array[N] := array[N]
	CheckFixedDynamic                             // 5: array[N] := array[*]
	CheckDynamicFixed                             // 6: array[*] := array[N]
	CheckDynamicDynamic                           // 7: array[*] := array[*]
)

// Assign is "Dest = Src". Class is the statically known class for checks
// 2 and 3, Count the literal element count for 4 to 6.
type Assign struct {
	Dest     Expr
	Src      Expr
	Check    DynamicCheck
	Class    ClassID
	Count    int
	ElemSize int
	Pos
}

// CallStmt evaluates a call for its effect
type CallStmt struct {
	Call Expr
	Pos
}

// Free releases heap memory
type Free struct {
	Ptr Expr
	Pos
}

func (*If) implStmt()       {}
func (*While) implStmt()    {}
func (*Do) implStmt()       {}
func (*For) implStmt()      {}
func (*ForC) implStmt()     {}
func (*Switch) implStmt()   {}
func (*Break) implStmt()    {}
func (*Continue) implStmt() {}
func (*Return) implStmt()   {}
func (*Try) implStmt()      {}
func (*Throw) implStmt()    {}
func (*Assign) implStmt()   {}
func (*CallStmt) implStmt() {}
func (*Free) implStmt()     {}

// ContainsTry reports whether any statement in body is, or contains, a try.
func ContainsTry(body []Stmt) bool {
	for _, s := range body {
		switch s := s.(type) {
		case *Try:
			return true
		case *If:
			if ContainsTry(s.Then) || ContainsTry(s.Else) {
				return true
			}
		case *While:
			if ContainsTry(s.Body) {
				return true
			}
		case *Do:
			if ContainsTry(s.Body) {
				return true
			}
		case *For:
			if ContainsTry(s.Body) {
				return true
			}
		case *ForC:
			if ContainsTry(s.Init) || ContainsTry(s.Incr) || ContainsTry(s.Body) {
				return true
			}
		case *Switch:
			for _, c := range s.Cases {
				if ContainsTry(c.Body) {
					return true
				}
			}
			if ContainsTry(s.Default) {
				return true
			}
		}
	}
	return false
}
