package ir

import (
	"io"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/raymyers/kplc/pkg/storage"
)

// Register conventions of the target machine
const (
	regFP   = 14 // frame pointer
	regSP   = 15 // stack pointer
	regAddr = 12 // address scratch, used only inside one operand access
	regTmp  = 11 // second scratch for large immediates
	regLine = 13 // current source line
)

// Immediate operand range of mov, add, sub and cmp
const (
	ImmMin = -32768
	ImmMax = 32767
)

// Printer outputs IR as BLITZ style assembly
type Printer struct {
	w   io.Writer
	b   []byte
	err error
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintCode prints every instruction of code. It stops at the first write
// error or instruction it cannot print and returns it.
func (p *Printer) PrintCode(code *Code) error {
	for n := code.First(); n != nil && p.err == nil; n = n.Next() {
		p.PrintInstruction(n.Instr)
	}
	return p.err
}

// Dump prints one line per instruction with its kind and fields
func (p *Printer) Dump(code *Code) error {
	i := 0
	for n := code.First(); n != nil; n = n.Next() {
		p.b = hfmt.Appendf(p.b[:0], "%5d  %T %+v\n", i, n.Instr, n.Instr)
		p.flush()
		i++
	}
	return p.err
}

// PrintInstruction prints the assembly of a single instruction
func (p *Printer) PrintInstruction(inst Instruction) {
	p.b = p.b[:0]
	p.printInstruction(inst)
	p.flush()
}

// fail records the first error; nothing is written after it
func (p *Printer) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *Printer) flush() {
	if p.err != nil {
		return
	}
	_, p.err = p.w.Write(p.b)
}

func (p *Printer) emit(op, format string, args ...any) {
	p.b = append(p.b, '\t')
	p.b = append(p.b, op...)
	if format != "" {
		p.b = append(p.b, '\t')
		p.b = hfmt.Appendf(p.b, format, args...)
	}
	p.b = append(p.b, '\n')
}

func (p *Printer) label(l Label) {
	p.b = append(p.b, l...)
	p.b = append(p.b, ":\n"...)
}

func (p *Printer) printInstruction(inst Instruction) {
	switch i := inst.(type) {
	case Comment:
		p.b = hfmt.Appendf(p.b, "! %s\n", i.Text)
	case LabelDef:
		p.label(i.Label)
	case Export:
		p.emit(".export", "%s", i.Label)
	case Import:
		p.emit(".import", "%s", i.Label)
	case TextSection:
		p.emit(".text", "")
	case DataSection:
		p.emit(".data", "")
	case Align:
		p.emit(".align", "")
	case Word:
		p.emit(".word", "%d", i.Value)
	case WordLabel:
		p.emit(".word", "%s", i.Label)
	case Byte:
		p.emit(".byte", "%d", i.Value)
	case Ascii:
		p.emit(".ascii", "\"%s\"", escapeASCII(i.Value))
	case Skip:
		p.emit(".skip", "%d", i.N)
	case DoubleWord:
		p.emit(".double", "%v", i.Value)
	case Equate:
		p.b = hfmt.Appendf(p.b, "%s\t=\t%d\n", i.Label, i.Value)

	case RoutineEntry:
		p.emit("push", "r%d", regFP)
		p.emit("mov", "r%d,r%d", regSP, regFP)
		p.emit("set", "%s,r1", i.FrameSize)
		p.emit("sub", "r%d,r1,r%d", regSP, regSP)
		p.emit("set", "%s,r1", i.Descriptor)
		p.emit("store", "r1,[r%d+%d]", regFP, storage.DescriptorOffset)
	case RoutineExit:
		p.emit("mov", "r%d,r%d", regFP, regSP)
		p.emit("pop", "r%d", regFP)
		p.emit("ret", "")
	case MainEntry:
		p.imm(i.Hash, 2)
		p.emit("call", "%s", i.CheckVersion)
		p.emit("jmp", "%s", i.Main)
	case CheckVersionStart:
		p.label(i.Label)
		p.imm(i.Hash, 3)
		p.emit("cmp", "r2,r3")
		p.emit("bne", "%s", ErrVersionMismatch)
		p.emit("set", "%s,r1", i.Done)
		p.emit("loadb", "[r1],r3")
		p.emit("cmp", "r3,0")
		p.emit("bne", "%s", i.Return)
		p.emit("mov", "1,r3")
		p.emit("storeb", "r3,[r1]")
	case CheckVersionCall:
		p.imm(i.Hash, 2)
		p.emit("call", "%s", i.Label)
	case CheckVersionEnd:
		p.label(i.Return)
		p.emit("ret", "")

	case Move:
		p.load(i.Src, i.Size, 1)
		p.store(i.Dest, i.Size, 1)
	case LoadAddr:
		p.addrOf(i.Src, 1)
		p.store(i.Dest, 4, 1)
	case LoadLabelAddr:
		p.emit("set", "%s,r1", i.Label)
		p.store(i.Dest, 4, 1)
	case LoadIndirect:
		p.load(i.Ptr, 4, 2)
		p.emit(loadOp(i.Size), "[r2],%s", reg(i.Size, 1))
		p.store(i.Dest, i.Size, 1)
	case StoreIndirect:
		p.load(i.Src, i.Size, 1)
		p.load(i.Ptr, 4, 2)
		p.emit(storeOp(i.Size), "%s,[r2]", reg(i.Size, 1))
	case AddOffset:
		p.load(i.Ptr, 4, 1)
		p.addImm(1, i.Offset)
		p.store(i.Dest, 4, 1)
	case CopyBytes:
		if i.Size <= 0 {
			return
		}
		p.load(i.Dest, 4, 1)
		p.load(i.Src, 4, 2)
		p.imm(int32(i.Size), 3)
		p.copyLoop(i.Loop, i.Size%4 == 0)
	case CopyBytesVar:
		p.load(i.Dest, 4, 1)
		p.load(i.Src, 4, 2)
		p.load(i.Size, 4, 3)
		p.copyLoop(i.Loop, false)
	case ZeroBytes:
		if i.Size <= 0 {
			return
		}
		step, op := 1, "storeb"
		if i.Size%4 == 0 {
			step, op = 4, "store"
		}
		p.load(i.Ptr, 4, 1)
		p.imm(int32(i.Size), 3)
		p.emit("mov", "0,r4")
		p.label(i.Loop)
		p.emit(op, "r4,[r1]")
		p.emit("add", "r1,%d,r1", step)
		p.emit("sub", "r3,%d,r3", step)
		p.emit("bg", "%s", i.Loop)

	case IntOp:
		p.load(i.L, 4, 1)
		p.load(i.R, 4, 2)
		if i.Op == Div || i.Op == Rem {
			p.emit("cmp", "r2,0")
			p.emit("be", "%s", ErrZeroDivide)
		}
		p.emit(intOpName(i.Op), "r1,r2,r1")
		if i.Op == Add || i.Op == Sub || i.Op == Mul {
			p.emit("bvs", "%s", ErrOverflow)
		}
		p.store(i.Dest, 4, 1)
	case IntNeg:
		p.load(i.Src, 4, 1)
		p.emit("neg", "r1,r1")
		p.emit("bvs", "%s", ErrOverflow)
		p.store(i.Dest, 4, 1)
	case IntNot:
		p.load(i.Src, 4, 1)
		p.emit("not", "r1,r1")
		p.store(i.Dest, 4, 1)
	case FloatOp:
		p.load(i.L, 8, 1)
		p.load(i.R, 8, 2)
		p.emit(floatOpName(i.Op), "f1,f2,f1")
		p.store(i.Dest, 8, 1)
	case FloatNeg:
		p.load(i.Src, 8, 1)
		p.emit("fneg", "f1,f1")
		p.store(i.Dest, 8, 1)
	case BoolNot:
		p.load(i.Src, 1, 1)
		p.emit("btog", "1,r1")
		p.store(i.Dest, 1, 1)
	case IntToDouble:
		p.load(i.Src, 4, 1)
		p.emit("itof", "r1,f1")
		p.store(i.Dest, 8, 1)
	case DoubleToInt:
		p.load(i.Src, 8, 1)
		p.emit("ftoi", "f1,r1")
		p.store(i.Dest, 4, 1)
	case IntToChar:
		p.load(i.Src, 4, 1)
		p.store(i.Dest, 1, 1)
	case CharToInt:
		p.load(i.Src, 1, 1)
		p.store(i.Dest, 4, 1)

	case Goto:
		p.emit("jmp", "%s", i.Target)
	case IntCmpGoto:
		p.load(i.L, i.Size, 1)
		p.load(i.R, i.Size, 2)
		p.emit("cmp", "r1,r2")
		p.emit(branchOp(i.Cond), "%s", i.Target)
	case FloatCmpGoto:
		p.load(i.L, 8, 1)
		p.load(i.R, 8, 2)
		p.emit("fcmp", "f1,f2")
		p.emit(branchOp(i.Cond), "%s", i.Target)
	case BoolTest:
		p.load(i.Src, 1, 1)
		p.emit("cmp", "r1,0")
		p.emit("be", "%s", i.False)
		p.emit("jmp", "%s", i.True)
	case SwitchTable:
		p.load(i.Sel, 4, 1)
		p.imm(i.Lo, 2)
		p.emit("cmp", "r1,r2")
		p.emit("bl", "%s", i.Default)
		p.imm(i.Hi, 3)
		p.emit("cmp", "r1,r3")
		p.emit("bg", "%s", i.Default)
		p.emit("sub", "r1,r2,r1")
		p.emit("sll", "r1,2,r1")
		p.emit("set", "%s,r2", i.Table)
		p.emit("add", "r1,r2,r1")
		p.emit("load", "[r1],r1")
		p.emit("jmp", "r1")
	case SwitchHash:
		p.load(i.Sel, 4, 1)
		p.imm(int32(i.Size), 2)
		p.emit("rem", "r1,r2,r3")
		p.emit("cmp", "r3,0")
		p.emit("bge", "%s", i.NonNeg)
		p.emit("add", "r3,r2,r3")
		p.label(i.NonNeg)
		p.emit("set", "%s,r4", i.Table)
		p.label(i.Probe)
		p.emit("sll", "r3,3,r6")
		p.emit("add", "r4,r6,r6")
		p.emit("load", "[r6+4],r7")
		p.emit("cmp", "r7,0")
		p.emit("be", "%s", i.Default)
		p.emit("load", "[r6],r7")
		p.emit("cmp", "r7,r1")
		p.emit("be", "%s", i.Found)
		p.emit("add", "r3,1,r3")
		p.emit("cmp", "r3,r2")
		p.emit("bl", "%s", i.Probe)
		p.emit("mov", "0,r3")
		p.emit("jmp", "%s", i.Probe)
		p.label(i.Found)
		p.emit("load", "[r6+4],r7")
		p.emit("jmp", "r7")

	case PrepareArg:
		if isScalarSize(i.Size) {
			p.load(i.Src, i.Size, 1)
			p.emit(storeOp(i.Size), "%s,[r%d+%d]", reg(i.Size, 1), regSP, i.Offset)
			return
		}
		v, ok := i.Src.(*Var)
		if !ok {
			p.fail(errors.New("argument of size %d is not a variable: %v", i.Size, i.Src))
			return
		}
		p.addrOf(v, 2)
		p.copyUnrolled(2, 0, regSP, i.Offset, i.Size)
	case Call:
		p.emit("call", "%s", i.Label)
	case CallIndirect:
		p.load(i.Fn, 4, 1)
		p.emit("call", "r1")
	case Send:
		p.emit("load", "[r%d],r1", regSP)
		p.emit("cmp", "r1,0")
		p.emit("be", "%s", ErrNullPointer)
		p.emit("load", "[r1],r2")
		p.emit("cmp", "r2,0")
		p.emit("be", "%s", ErrUninitializedObject)
		p.emit("load", "[r2+%d],r2", i.Slot)
		p.emit("call", "r2")
	case RetrieveResult:
		p.store(i.Dest, i.Size, resultReg(i.Size))
	case ReturnResult:
		p.load(i.Src, i.Size, resultReg(i.Size))

	case CheckNull:
		p.load(i.Ptr, 4, 1)
		p.emit("cmp", "r1,0")
		p.emit("be", "%s", ErrNullPointer)
	case ArrayElemAddr:
		p.load(i.Array, 4, 1)
		p.load(i.Index, 4, 2)
		p.emit("load", "[r1],r3")
		p.emit("cmp", "r3,0")
		p.emit("be", "%s", ErrUninitializedArray)
		p.emit("cmp", "r2,0")
		p.emit("bl", "%s", ErrBadArrayIndex)
		p.emit("cmp", "r2,r3")
		p.emit("bge", "%s", ErrBadArrayIndex)
		if i.ElemSize != 1 {
			p.emit("mul", "r2,%d,r2", i.ElemSize)
		}
		p.emit("add", "r1,r2,r1")
		p.emit("add", "r1,4,r1")
		p.store(i.Dest, 4, 1)
	case ArraySize:
		p.load(i.Array, 4, 1)
		p.emit("load", "[r1],r1")
		p.store(i.Dest, 4, 1)
	case SetArrayCount:
		p.load(i.Count, 4, 1)
		p.load(i.Array, 4, 2)
		p.emit("store", "r1,[r2]")
	case CheckArrayCount:
		p.load(i.Count, 4, 1)
		p.emit("cmp", "r1,0")
		p.emit("ble", "%s", ErrNonPositiveArrayCount)
	case CheckArraySize:
		p.load(i.Array, 4, 1)
		p.emit("load", "[r1],r1")
		p.imm(int32(i.Expected), 2)
		p.emit("cmp", "r1,r2")
		p.emit("bne", "%s", ErrDifferentArraySizes)
	case CheckArraySizesEqual:
		p.load(i.Dest, 4, 1)
		p.emit("load", "[r1],r1")
		p.load(i.Src, 4, 2)
		p.emit("load", "[r2],r2")
		p.emit("cmp", "r1,r2")
		p.emit("bne", "%s", ErrDifferentArraySizes)
	case CopyArray:
		p.load(i.Src, 4, 2)
		p.emit("load", "[r2],r3")
		if i.ElemSize != 1 {
			p.emit("mul", "r3,%d,r3", i.ElemSize)
		}
		p.emit("add", "r3,4,r3")
		p.load(i.Dest, 4, 1)
		p.copyLoop(i.Loop, false)
	case CheckDispatch:
		p.load(i.Obj, 4, 1)
		p.emit("load", "[r1],r1")
		p.emit("set", "%s,r2", i.Table)
		p.emit("cmp", "r1,r2")
		p.emit("bne", "%s", ErrWrongObject)
	case CheckSameDispatch:
		p.load(i.Dest, 4, 1)
		p.emit("load", "[r1],r1")
		p.load(i.Src, 4, 2)
		p.emit("load", "[r2],r2")
		p.emit("cmp", "r2,0")
		p.emit("be", "%s", ErrUninitializedObject)
		p.emit("cmp", "r1,r2")
		p.emit("bne", "%s", ErrWrongObject)
	case ObjectSize:
		p.load(i.Obj, 4, 1)
		p.emit("load", "[r1],r1")
		p.emit("load", "[r1],r1")
		p.emit("load", "[r1+%d],r1", DescriptorSizeOffset)
		p.emit("cmp", "r1,0")
		p.emit("ble", "%s", ErrBadObjectSize)
		p.store(i.Dest, 4, 1)

	case SetDispatch:
		p.load(i.Obj, 4, 1)
		p.emit("set", "%s,r2", i.Table)
		p.emit("store", "r2,[r1]")
	case IsKindOf:
		p.load(i.Obj, 4, 1)
		p.emit("set", "%s,r2", i.Descriptor)
		p.emit("call", "%s", IsKindOfFn)
		p.store(i.Dest, 1, 1)
	case IsInstanceOf:
		p.load(i.Obj, 4, 1)
		p.emit("set", "%s,r2", i.Descriptor)
		p.emit("call", "%s", IsInstanceOfFn)
		p.store(i.Dest, 1, 1)
	case Alloc:
		p.load(i.Size, 4, 1)
		p.emit("call", "%s", HeapAlloc)
		p.store(i.Dest, 4, 1)
	case Free:
		p.load(i.Ptr, 4, 1)
		p.emit("call", "%s", HeapFree)

	case SaveCatchStack:
		p.emit("call", "%s", GetCatchStack)
		p.store(i.Dest, 4, 1)
	case RestoreCatchStack:
		p.load(i.Src, 4, 1)
		p.emit("call", "%s", RestoreCatchStackFn)
		p.emit("cmp", "r1,0")
		p.emit("bl", "%s", ErrBadCatchStack)
	case PushCatch:
		p.emit("set", "%s,r1", i.Error)
		p.emit("set", "%s,r2", i.Catch)
		p.emit("mov", "r%d,r3", regSP)
		p.imm(int32(i.Line), 4)
		p.emit("call", "%s", PushCatchRecord)
	case Throw:
		p.emit("set", "%s,r1", i.Error)
		p.emit("mov", "r%d,r2", regSP)
		p.emit("call", "%s", ThrowError)
	case CatchParam:
		if isScalarSize(i.Size) {
			p.emit(loadOp(i.Size), "[r4+%d],%s", i.ThrowOffset, reg(i.Size, 1))
			p.store(i.Dest, i.Size, 1)
			return
		}
		p.addrOf(i.Dest, 2)
		p.copyUnrolled(4, i.ThrowOffset, 2, 0, i.Size)
	case ResetStack:
		p.emit("mov", "r5,r%d", regSP)

	case RuntimeError:
		p.emit("call", "%s", i.Handler)
	case SourceLine:
		p.imm(int32(i.Line), regLine)

	default:
		p.fail(errors.New("unknown instruction %T", inst))
	}
}

// load brings an operand into register n, an f register for doubles
func (p *Printer) load(op Operand, size, n int) {
	switch op := op.(type) {
	case *Var:
		addr := p.varAddr(op, 0)
		p.emit(loadOp(size), "%s,%s", addr, reg(size, n))
	case *storage.DoubleConst:
		p.emit("set", "%s,r%d", op.Label, regAddr)
		p.emit("fload", "[r%d],f%d", regAddr, n)
	case *storage.StringConst:
		p.emit("set", "%s,r%d", op.Label, n)
	default:
		v, _ := storage.WordValue(op)
		p.imm(v, n)
	}
}

// store writes register n to a variable
func (p *Printer) store(v *Var, size, n int) {
	addr := p.varAddr(v, 0)
	p.emit(storeOp(size), "%s,%s", reg(size, n), addr)
}

// varAddr returns the memory operand of v plus k bytes, loading r12 first
// when v is not frame relative
func (p *Printer) varAddr(v *Var, k int) string {
	switch v.Class {
	case storage.Global:
		p.emit("set", "%s,r%d", v.Label, regAddr)
		if k == 0 {
			return "[r12]"
		}
		return string(hfmt.Appendf(nil, "[r%d+%d]", regAddr, k))
	case storage.ClassField:
		p.emit("load", "[r%d+%d],r%d", regFP, storage.SelfOffset, regAddr)
		return string(hfmt.Appendf(nil, "[r%d+%d]", regAddr, v.Offset+k))
	}
	return string(hfmt.Appendf(nil, "[r%d+%d]", regFP, v.Offset+k))
}

// addrOf puts the address of v into register n
func (p *Printer) addrOf(v *Var, n int) {
	switch v.Class {
	case storage.Global:
		p.emit("set", "%s,r%d", v.Label, n)
	case storage.ClassField:
		p.emit("load", "[r%d+%d],r%d", regFP, storage.SelfOffset, n)
		p.addImm(n, v.Offset)
	default:
		p.emit("mov", "r%d,r%d", regFP, n)
		p.addImm(n, v.Offset)
	}
}

func (p *Printer) imm(v int32, n int) {
	if v >= ImmMin && v <= ImmMax {
		p.emit("mov", "%d,r%d", v, n)
		return
	}
	p.emit("set", "%d,r%d", v, n)
}

func (p *Printer) addImm(n, v int) {
	switch {
	case v == 0:
	case v >= ImmMin && v <= ImmMax:
		p.emit("add", "r%d,%d,r%d", n, v, n)
	default:
		p.emit("set", "%d,r%d", v, regTmp)
		p.emit("add", "r%d,r%d,r%d", n, regTmp, n)
	}
}

// copyLoop copies r3 bytes from [r2] to [r1]. r3 must be positive.
func (p *Printer) copyLoop(loop Label, words bool) {
	step, ld, st := 1, "loadb", "storeb"
	if words {
		step, ld, st = 4, "load", "store"
	}
	p.label(loop)
	p.emit(ld, "[r2],r4")
	p.emit(st, "r4,[r1]")
	p.emit("add", "r1,%d,r1", step)
	p.emit("add", "r2,%d,r2", step)
	p.emit("sub", "r3,%d,r3", step)
	p.emit("bg", "%s", loop)
}

// copyUnrolled copies size bytes from [rsrc+soff] to [rdst+doff]
func (p *Printer) copyUnrolled(src, soff, dst, doff, size int) {
	k := 0
	for ; k+4 <= size; k += 4 {
		p.emit("load", "[r%d+%d],r1", src, soff+k)
		p.emit("store", "r1,[r%d+%d]", dst, doff+k)
	}
	for ; k < size; k++ {
		p.emit("loadb", "[r%d+%d],r1", src, soff+k)
		p.emit("storeb", "r1,[r%d+%d]", dst, doff+k)
	}
}

func isScalarSize(size int) bool {
	return size == 1 || size == 4 || size == 8
}

func reg(size, n int) string {
	if size == 8 {
		return string(hfmt.Appendf(nil, "f%d", n))
	}
	return string(hfmt.Appendf(nil, "r%d", n))
}

// resultReg is r1 for words and f0 for doubles
func resultReg(size int) int {
	if size == 8 {
		return 0
	}
	return 1
}

func loadOp(size int) string {
	switch size {
	case 1:
		return "loadb"
	case 8:
		return "fload"
	}
	return "load"
}

func storeOp(size int) string {
	switch size {
	case 1:
		return "storeb"
	case 8:
		return "fstore"
	}
	return "store"
}

func intOpName(op IntOpKind) string {
	switch op {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	case Rem:
		return "rem"
	case Sll:
		return "sll"
	case Sra:
		return "sra"
	case Srl:
		return "srl"
	case And:
		return "and"
	case Or:
		return "or"
	case Xor:
		return "xor"
	}
	return "?"
}

func floatOpName(op FloatOpKind) string {
	switch op {
	case FAdd:
		return "fadd"
	case FSub:
		return "fsub"
	case FMul:
		return "fmul"
	case FDiv:
		return "fdiv"
	}
	return "?"
}

func branchOp(c Cond) string {
	switch c {
	case Eq:
		return "be"
	case Ne:
		return "bne"
	case Lt:
		return "bl"
	case Le:
		return "ble"
	case Gt:
		return "bg"
	case Ge:
		return "bge"
	}
	return "?"
}

func escapeASCII(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == 0:
			sb.WriteString(`\0`)
		case c < 0x20 || c >= 0x7f:
			sb.WriteString(string(hfmt.Appendf(nil, `\x%02x`, c)))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
