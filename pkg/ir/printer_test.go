package ir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymyers/kplc/pkg/storage"
)

var (
	local  = &storage.Var{Class: storage.Local, Name: "i", Offset: -12, Size: 4}
	param  = &storage.Var{Class: storage.Param, Name: "n", Offset: 8, Size: 4}
	global = &storage.Var{Class: storage.Global, Name: "g", Label: "_G_Main_g", Size: 4}
	field  = &storage.Var{Class: storage.ClassField, Name: "x", Offset: 4, Size: 4}
	flag   = &storage.Var{Class: storage.Local, Name: "b", Offset: -13, Size: 1}
	dbl    = &storage.Var{Class: storage.Local, Name: "d", Offset: -24, Size: 8}
)

func printOne(t *testing.T, inst Instruction) string {
	t.Helper()
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.PrintInstruction(inst)
	return buf.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestPrinterMove(t *testing.T) {
	tests := []struct {
		name string
		inst Instruction
		want []string
	}{
		{"local from param", Move{Dest: local, Src: param, Size: 4}, []string{
			"\tload\t[r14+8],r1",
			"\tstore\tr1,[r14+-12]",
		}},
		{"global from const", Move{Dest: global, Src: storage.IntConst{Value: 7}, Size: 4}, []string{
			"\tmov\t7,r1",
			"\tset\t_G_Main_g,r12",
			"\tstore\tr1,[r12]",
		}},
		{"field from big const", Move{Dest: field, Src: storage.IntConst{Value: 100000}, Size: 4}, []string{
			"\tset\t100000,r1",
			"\tload\t[r14+8],r12",
			"\tstore\tr1,[r12+4]",
		}},
		{"byte", Move{Dest: flag, Src: storage.BoolConst{Value: true}, Size: 1}, []string{
			"\tmov\t1,r1",
			"\tstoreb\tr1,[r14+-13]",
		}},
		{"double", Move{Dest: dbl, Src: &storage.DoubleConst{Value: 1.5, Label: "_DoubleConst_1"}, Size: 8}, []string{
			"\tset\t_DoubleConst_1,r12",
			"\tfload\t[r12],f1",
			"\tfstore\tf1,[r14+-24]",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lines(printOne(t, tt.inst)))
		})
	}
}

func TestPrinterChecks(t *testing.T) {
	out := printOne(t, IntOp{Op: Div, Dest: local, L: param, R: local})
	assert.Contains(t, out, "\tbe\t_runtimeErrorZeroDivide\n")
	assert.Contains(t, out, "\tdiv\tr1,r2,r1\n")
	assert.NotContains(t, out, "bvs")

	out = printOne(t, IntOp{Op: Add, Dest: local, L: param, R: storage.IntConst{Value: 1}})
	assert.Contains(t, out, "\tbvs\t_runtimeErrorOverflow\n")

	out = printOne(t, CheckNull{Ptr: local})
	assert.Equal(t, []string{
		"\tload\t[r14+-12],r1",
		"\tcmp\tr1,0",
		"\tbe\t_runtimeErrorNullPointer",
	}, lines(out))

	out = printOne(t, ArrayElemAddr{Dest: local, Array: param, Index: storage.IntConst{Value: 2}, ElemSize: 4})
	assert.Contains(t, out, "_runtimeErrorUninitializedArray")
	assert.Contains(t, out, "\tbge\t_runtimeErrorBadArrayIndex\n")
	assert.Contains(t, out, "\tmul\tr2,4,r2\n")

	out = printOne(t, CheckSameDispatch{Dest: local, Src: param})
	assert.Contains(t, out, "\tbne\t_runtimeErrorWrongObject\n")

	out = printOne(t, CheckArraySize{Array: local, Expected: 5})
	assert.Contains(t, out, "\tmov\t5,r2\n")
	assert.Contains(t, out, "\tbne\t_runtimeErrorDifferentArraySizes\n")
}

func TestPrinterFrame(t *testing.T) {
	out := printOne(t, RoutineEntry{Label: "_P_Main_foo", Descriptor: "_RD__P_Main_foo", FrameSize: "_P_Main_foo_frameSize"})
	assert.Equal(t, []string{
		"\tpush\tr14",
		"\tmov\tr15,r14",
		"\tset\t_P_Main_foo_frameSize,r1",
		"\tsub\tr15,r1,r15",
		"\tset\t_RD__P_Main_foo,r1",
		"\tstore\tr1,[r14+-4]",
	}, lines(out))

	out = printOne(t, RoutineExit{})
	assert.Equal(t, []string{"\tmov\tr14,r15", "\tpop\tr14", "\tret"}, lines(out))

	out = printOne(t, ReturnResult{Src: dbl, Size: 8})
	assert.Equal(t, "\tfload\t[r14+-24],f0\n", out)

	out = printOne(t, PrepareArg{Offset: 4, Src: local, Size: 4})
	assert.Equal(t, []string{"\tload\t[r14+-12],r1", "\tstore\tr1,[r15+4]"}, lines(out))
}

func TestPrinterLargeArgument(t *testing.T) {
	rec := &storage.Var{Class: storage.Local, Name: "r", Offset: -32, Size: 6}
	out := printOne(t, PrepareArg{Offset: 0, Src: rec, Size: 6})
	assert.Equal(t, []string{
		"\tmov\tr14,r2",
		"\tadd\tr2,-32,r2",
		"\tload\t[r2+0],r1",
		"\tstore\tr1,[r15+0]",
		"\tloadb\t[r2+4],r1",
		"\tstoreb\tr1,[r15+4]",
		"\tloadb\t[r2+5],r1",
		"\tstoreb\tr1,[r15+5]",
	}, lines(out))
}

func TestPrinterSwitchHash(t *testing.T) {
	out := printOne(t, SwitchHash{
		Sel: local, Table: "_Label_9", Size: 37, Default: "_Label_2",
		NonNeg: "_Label_3", Probe: "_Label_4", Found: "_Label_5",
	})
	ls := lines(out)
	assert.Equal(t, "\trem\tr1,r2,r3", ls[2])
	assert.Contains(t, ls, "_Label_3:")
	assert.Contains(t, ls, "_Label_4:")
	assert.Contains(t, ls, "_Label_5:")
	assert.Equal(t, "\tjmp\tr7", ls[len(ls)-1])
}

func TestPrinterData(t *testing.T) {
	var c Code
	c.Append(DataSection{})
	c.Append(LabelDef{Label: "_StringConst_1"})
	c.Append(Word{Value: 6})
	c.Append(Ascii{Value: "hi \"x\"\n"})
	c.Append(Align{})
	c.Append(Equate{Label: "_P_Main_main_frameSize", Value: 16})
	c.Append(Comment{Text: "end"})

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).PrintCode(&c))
	assert.Equal(t, []string{
		"\t.data",
		"_StringConst_1:",
		"\t.word\t6",
		"\t.ascii\t\"hi \\\"x\\\"\\n\"",
		"\t.align",
		"_P_Main_main_frameSize\t=\t16",
		"! end",
	}, lines(buf.String()))
}

func TestPrinterDump(t *testing.T) {
	var c Code
	c.Append(Goto{Target: "_Label_1"})

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf).Dump(&c))
	assert.Contains(t, buf.String(), "ir.Goto")
	assert.Contains(t, buf.String(), "_Label_1")
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, assert.AnError }

func TestPrinterWriteError(t *testing.T) {
	var c Code
	c.Append(TextSection{})
	c.Append(RoutineExit{})
	err := NewPrinter(failWriter{}).PrintCode(&c)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPrinterRestoreCatchStack(t *testing.T) {
	got := lines(printOne(t, RestoreCatchStack{Src: local}))
	require.GreaterOrEqual(t, len(got), 3)

	n := len(got)
	assert.Equal(t, []string{
		"\tcall\t_RestoreCatchStack",
		"\tcmp\tr1,0",
		"\tbl\t_runtimeErrorBadCatchStack",
	}, got[n-3:])
}

// bogus is an instruction the printer has no case for
type bogus struct{}

func (bogus) implInstruction() {}

func TestPrinterUnknownInstruction(t *testing.T) {
	var c Code
	c.Append(TextSection{})
	c.Append(bogus{})
	c.Append(RoutineExit{})

	var buf bytes.Buffer
	err := NewPrinter(&buf).PrintCode(&c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown instruction ir.bogus")
	assert.NotContains(t, buf.String(), "ret")
}

func TestPrinterBadArgument(t *testing.T) {
	var c Code
	c.Append(PrepareArg{Src: storage.IntConst{Value: 1}, Size: 12, Offset: 0})

	err := NewPrinter(&bytes.Buffer{}).PrintCode(&c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a variable")
}
