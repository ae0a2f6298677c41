// Package ir defines the instruction catalog emitted by lowering.
// Instructions are flat records whose operands are storage locations or
// constants, arranged in one append-only list per package with labels
// marking branch targets.
package ir

import (
	"github.com/raymyers/kplc/pkg/storage"
)

type (
	Var     = storage.Var
	Operand = storage.Operand
)

// Label is a symbolic name: a branch target or the address of emitted data.
type Label string

// Instruction is the interface for IR instructions
type Instruction interface {
	implInstruction()
}

// --- Directives and data ---

// Comment is emitted as an assembler comment
type Comment struct {
	Text string
}

// LabelDef defines a label at the current position
type LabelDef struct {
	Label Label
}

// Export makes a label visible to other packages
type Export struct {
	Label Label
}

// Import declares a label defined by another package or the runtime
type Import struct {
	Label Label
}

// TextSection switches to the code region
type TextSection struct{}

// DataSection switches to the data region
type DataSection struct{}

// Align pads to the next word boundary
type Align struct{}

// Word is one word of literal data
type Word struct {
	Value int32
}

// WordLabel is one word holding the address of a label
type WordLabel struct {
	Label Label
}

// Byte is one byte of literal data
type Byte struct {
	Value byte
}

// Ascii is the raw bytes of a string, without terminator
type Ascii struct {
	Value string
}

// Skip reserves N zero bytes
type Skip struct {
	N int
}

// DoubleWord is an eight byte float
type DoubleWord struct {
	Value float64
}

// Equate binds a label to an integer value
type Equate struct {
	Label Label
	Value int
}

// --- Routine framing ---

// RoutineEntry builds the frame of a routine. FrameSize names an Equate
// emitted after the body, once all temporaries are known.
type RoutineEntry struct {
	Label      Label
	Descriptor Label
	FrameSize  Label
}

// RoutineExit tears down the frame and returns to the caller
type RoutineExit struct{}

// MainEntry runs the version check of the package and jumps to main
type MainEntry struct {
	CheckVersion Label
	Hash         int32
	Main         Label
}

// CheckVersionStart begins the version check routine of a package.
// The caller passes the hash it was compiled against.
type CheckVersionStart struct {
	Label  Label
	Hash   int32
	Done   Label // byte flag set after the first successful check
	Return Label
}

// CheckVersionCall checks one imported package against Hash
type CheckVersionCall struct {
	Label Label
	Hash  int32
}

// CheckVersionEnd returns from the version check routine
type CheckVersionEnd struct {
	Return Label
}

// --- Moves and memory ---

// Move copies Size (1, 4 or 8) bytes from Src into Dest
type Move struct {
	Dest *Var
	Src  Operand
	Size int
}

// LoadAddr stores the address of Src into Dest
type LoadAddr struct {
	Dest *Var
	Src  *Var
}

// LoadLabelAddr stores the address of Label into Dest
type LoadLabelAddr struct {
	Dest  *Var
	Label Label
}

// LoadIndirect copies Size bytes from the address held in Ptr into Dest
type LoadIndirect struct {
	Dest *Var
	Ptr  *Var
	Size int
}

// StoreIndirect copies Size bytes from Src to the address held in Ptr
type StoreIndirect struct {
	Ptr  *Var
	Src  Operand
	Size int
}

// AddOffset stores Ptr+Offset into Dest
type AddOffset struct {
	Dest   *Var
	Ptr    *Var
	Offset int
}

// CopyBytes copies a block of Size bytes between the addresses held in
// Dest and Src. Loop is the label of the copy loop.
type CopyBytes struct {
	Dest *Var
	Src  *Var
	Size int
	Loop Label
}

// CopyBytesVar is CopyBytes with the byte count read from Size
type CopyBytesVar struct {
	Dest *Var
	Src  *Var
	Size *Var
	Loop Label
}

// ZeroBytes clears Size bytes at the address held in Ptr
type ZeroBytes struct {
	Ptr  *Var
	Size int
	Loop Label
}

// --- Arithmetic ---

// IntOpKind is an integer operation
type IntOpKind int

const (
	Add IntOpKind = iota
	Sub
	Mul
	Div
	Rem
	Sll
	Sra
	Srl
	And
	Or
	Xor
)

// IntOp computes Dest = L op R. Add, Sub and Mul trap on overflow;
// Div and Rem trap on a zero divisor.
type IntOp struct {
	Op   IntOpKind
	Dest *Var
	L, R Operand
}

// IntNeg computes Dest = -Src, trapping on overflow
type IntNeg struct {
	Dest *Var
	Src  Operand
}

// IntNot computes the bitwise complement
type IntNot struct {
	Dest *Var
	Src  Operand
}

// FloatOpKind is a double operation
type FloatOpKind int

const (
	FAdd FloatOpKind = iota
	FSub
	FMul
	FDiv
)

// FloatOp computes Dest = L op R on doubles
type FloatOp struct {
	Op   FloatOpKind
	Dest *Var
	L, R Operand
}

// FloatNeg computes Dest = -Src on doubles
type FloatNeg struct {
	Dest *Var
	Src  Operand
}

// BoolNot stores the negation of a bool
type BoolNot struct {
	Dest *Var
	Src  Operand
}

// IntToDouble converts an int to a double
type IntToDouble struct {
	Dest *Var
	Src  Operand
}

// DoubleToInt truncates a double to an int
type DoubleToInt struct {
	Dest *Var
	Src  Operand
}

// IntToChar keeps the low byte of an int
type IntToChar struct {
	Dest *Var
	Src  Operand
}

// CharToInt widens a char to an int
type CharToInt struct {
	Dest *Var
	Src  Operand
}

// --- Branches ---

// Cond is a comparison
type Cond int

const (
	Eq Cond = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Goto is an unconditional jump
type Goto struct {
	Target Label
}

// IntCmpGoto jumps to Target if L cond R. Size is 1 for bytes, 4 for words.
type IntCmpGoto struct {
	Cond   Cond
	L, R   Operand
	Size   int
	Target Label
}

// FloatCmpGoto jumps to Target if L cond R on doubles
type FloatCmpGoto struct {
	Cond   Cond
	L, R   Operand
	Target Label
}

// BoolTest jumps to True if Src is non-zero and to False otherwise
type BoolTest struct {
	Src   Operand
	True  Label
	False Label
}

// SwitchTable is a bounds checked indirect jump through the word table at
// Table, which holds Hi-Lo+1 entries.
type SwitchTable struct {
	Sel     Operand
	Lo, Hi  int32
	Table   Label
	Default Label
}

// SwitchHash probes the open addressing table at Table, which holds Size
// (value, label) word pairs, with the hash function of HashSlot. An entry
// whose label word is zero is empty.
type SwitchHash struct {
	Sel     Operand
	Table   Label
	Size    int
	Default Label

	NonNeg, Probe, Found Label
}

// --- Calls ---

// PrepareArg stores an argument into the outgoing argument area at Offset
// from the stack pointer
type PrepareArg struct {
	Offset int
	Src    Operand
	Size   int
}

// Call calls a routine by label
type Call struct {
	Label Label
}

// CallIndirect calls the routine whose address is held in Fn
type CallIndirect struct {
	Fn *Var
}

// Send dispatches through the table of the receiver, which the caller has
// already stored as the first argument. Slot is a byte offset into the table.
type Send struct {
	Slot int
}

// RetrieveResult stores the result of the last call into Dest
type RetrieveResult struct {
	Dest *Var
	Size int
}

// ReturnResult places Src in the result register
type ReturnResult struct {
	Src  Operand
	Size int
}

// --- Runtime checks ---

// CheckNull traps if Ptr is nil
type CheckNull struct {
	Ptr *Var
}

// ArrayElemAddr stores the address of element Index of the array at Array
// into Dest, trapping on an uninitialized array or an index out of bounds
type ArrayElemAddr struct {
	Dest     *Var
	Array    *Var
	Index    Operand
	ElemSize int
}

// ArraySize stores the element count of the array at Array
type ArraySize struct {
	Dest  *Var
	Array *Var
}

// SetArrayCount writes the count word of the array at Array
type SetArrayCount struct {
	Array *Var
	Count Operand
}

// CheckArrayCount traps if Count is not positive
type CheckArrayCount struct {
	Count Operand
}

// CheckArraySize traps unless the array at Array holds Expected elements
type CheckArraySize struct {
	Array    *Var
	Expected int
}

// CheckArraySizesEqual traps unless both arrays hold the same number of elements
type CheckArraySizesEqual struct {
	Dest, Src *Var
}

// CopyArray copies the array at Src, count word included, to Dest
type CopyArray struct {
	Dest, Src *Var
	ElemSize  int
	Loop      Label
}

// CheckDispatch traps unless the object at Obj has dispatch table Table
type CheckDispatch struct {
	Obj   *Var
	Table Label
}

// CheckSameDispatch traps unless both objects have the same dispatch table
type CheckSameDispatch struct {
	Dest, Src *Var
}

// ObjectSize stores the size recorded in the class descriptor of the object at Obj
type ObjectSize struct {
	Dest *Var
	Obj  *Var
}

// --- Object model ---

// SetDispatch writes the dispatch table pointer of a new object
type SetDispatch struct {
	Obj   *Var
	Table Label
}

// IsKindOf tests whether the object at Obj is an instance of the class or
// interface with descriptor Descriptor, or of a subclass
type IsKindOf struct {
	Dest       *Var
	Obj        *Var
	Descriptor Label
}

// IsInstanceOf tests whether the object at Obj is exactly of the class
// with descriptor Descriptor
type IsInstanceOf struct {
	Dest       *Var
	Obj        *Var
	Descriptor Label
}

// Alloc calls the heap allocator
type Alloc struct {
	Dest *Var
	Size Operand
}

// Free returns the block at Ptr to the heap
type Free struct {
	Ptr *Var
}

// --- Exceptions ---

// SaveCatchStack stores the current catch stack top into Dest
type SaveCatchStack struct {
	Dest *Var
}

// RestoreCatchStack resets the catch stack top to a saved snapshot
type RestoreCatchStack struct {
	Src *Var
}

// PushCatch pushes a catch record for Error, handled at Catch
type PushCatch struct {
	Error Label
	Catch Label
	Line  int
}

// Throw passes control to the runtime catch search. Arguments are already
// in the outgoing argument area.
type Throw struct {
	Error Label
}

// CatchParam copies a thrown argument from the thrower's argument area
type CatchParam struct {
	ThrowOffset int
	Dest        *Var
	Size        int
}

// ResetStack restores the stack pointer saved in the catch record
type ResetStack struct{}

// --- Misc ---

// RuntimeError calls a runtime error handler, which does not return
type RuntimeError struct {
	Handler Label
}

// SourceLine records the current source line for runtime error reports
type SourceLine struct {
	Line int
}

// Marker methods for Instruction interface
func (Comment) implInstruction()              {}
func (LabelDef) implInstruction()             {}
func (Export) implInstruction()               {}
func (Import) implInstruction()               {}
func (TextSection) implInstruction()          {}
func (DataSection) implInstruction()          {}
func (Align) implInstruction()                {}
func (Word) implInstruction()                 {}
func (WordLabel) implInstruction()            {}
func (Byte) implInstruction()                 {}
func (Ascii) implInstruction()                {}
func (Skip) implInstruction()                 {}
func (DoubleWord) implInstruction()           {}
func (Equate) implInstruction()               {}
func (RoutineEntry) implInstruction()         {}
func (RoutineExit) implInstruction()          {}
func (MainEntry) implInstruction()            {}
func (CheckVersionStart) implInstruction()    {}
func (CheckVersionCall) implInstruction()     {}
func (CheckVersionEnd) implInstruction()      {}
func (Move) implInstruction()                 {}
func (LoadAddr) implInstruction()             {}
func (LoadLabelAddr) implInstruction()        {}
func (LoadIndirect) implInstruction()         {}
func (StoreIndirect) implInstruction()        {}
func (AddOffset) implInstruction()            {}
func (CopyBytes) implInstruction()            {}
func (CopyBytesVar) implInstruction()         {}
func (ZeroBytes) implInstruction()            {}
func (IntOp) implInstruction()                {}
func (IntNeg) implInstruction()               {}
func (IntNot) implInstruction()               {}
func (FloatOp) implInstruction()              {}
func (FloatNeg) implInstruction()             {}
func (BoolNot) implInstruction()              {}
func (IntToDouble) implInstruction()          {}
func (DoubleToInt) implInstruction()          {}
func (IntToChar) implInstruction()            {}
func (CharToInt) implInstruction()            {}
func (Goto) implInstruction()                 {}
func (IntCmpGoto) implInstruction()           {}
func (FloatCmpGoto) implInstruction()         {}
func (BoolTest) implInstruction()             {}
func (SwitchTable) implInstruction()          {}
func (SwitchHash) implInstruction()           {}
func (PrepareArg) implInstruction()           {}
func (Call) implInstruction()                 {}
func (CallIndirect) implInstruction()         {}
func (Send) implInstruction()                 {}
func (RetrieveResult) implInstruction()       {}
func (ReturnResult) implInstruction()         {}
func (CheckNull) implInstruction()            {}
func (ArrayElemAddr) implInstruction()        {}
func (ArraySize) implInstruction()            {}
func (SetArrayCount) implInstruction()        {}
func (CheckArrayCount) implInstruction()      {}
func (CheckArraySize) implInstruction()       {}
func (CheckArraySizesEqual) implInstruction() {}
func (CopyArray) implInstruction()            {}
func (CheckDispatch) implInstruction()        {}
func (CheckSameDispatch) implInstruction()    {}
func (ObjectSize) implInstruction()           {}
func (SetDispatch) implInstruction()          {}
func (IsKindOf) implInstruction()             {}
func (IsInstanceOf) implInstruction()         {}
func (Alloc) implInstruction()                {}
func (Free) implInstruction()                 {}
func (SaveCatchStack) implInstruction()       {}
func (RestoreCatchStack) implInstruction()    {}
func (PushCatch) implInstruction()            {}
func (Throw) implInstruction()                {}
func (CatchParam) implInstruction()           {}
func (ResetStack) implInstruction()           {}
func (RuntimeError) implInstruction()         {}
func (SourceLine) implInstruction()           {}

// HashSlot is the home slot of v in a switch hash table of size entries.
// The generated probe code computes the same value with a signed 32-bit
// remainder, so this must stay in int32 arithmetic.
func HashSlot(v int32, size int) int {
	h := v % int32(size)
	if h < 0 {
		h += int32(size)
	}
	return int(h)
}
