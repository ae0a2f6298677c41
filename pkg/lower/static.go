package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// globals emits the storage of every package variable. Initializers must
// be static; they are laid down as data and need no code.
func (l *Lowerer) globals() {
	for _, g := range l.pkg.Globals {
		if g.Imported {
			continue
		}

		v := g.Var

		l.emit(ir.Align{})
		l.label(ir.Label(v.Label))

		if g.Init == nil {
			l.emit(ir.Skip{N: v.Size})
			continue
		}

		l.static(g.Init, v.Size)
	}
}

// static emits the data image of a constant expression occupying size bytes
func (l *Lowerer) static(e tree.Expr, size int) {
	switch e := e.(type) {
	case tree.IntLit:
		l.emit(ir.Word{Value: e.Value})
	case tree.CharLit:
		l.emit(ir.Byte{Value: e.Value})
	case tree.BoolLit:
		var b byte
		if e.Value {
			b = 1
		}
		l.emit(ir.Byte{Value: b})
	case tree.DoubleLit:
		l.emit(ir.DoubleWord{Value: e.Value})
	case tree.NullLit:
		l.emit(ir.Word{Value: 0})
	case tree.StringLit:
		l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(e.Value).Label)})
	case *tree.ClosureRef:
		l.emit(ir.WordLabel{Label: l.routineRef(e.Routine)})
	case *tree.Cast:
		l.static(e.X, size)
	case *tree.Constructor:
		if e.Alloc {
			l.fatalf("alloc in a static initializer")
		}

		if e.Kind == tree.ArrayCons {
			l.staticArray(e, size)
		} else {
			l.staticFields(e, size)
		}
	default:
		l.fatalf("initializer %T is not static", e)
	}
}

func (l *Lowerer) staticFields(c *tree.Constructor, size int) {
	off := 0

	if c.Kind == tree.ClassCons {
		l.emit(ir.WordLabel{Label: l.dispatchRef(c.Class)})
		off = types.WordSize
	}

	for _, f := range sortedFields(c.Fields) {
		if f.Offset < off {
			l.fatalf("field at offset %d overlaps", f.Offset)
		}

		l.pad(f.Offset - off)
		l.static(f.Value, f.Size)
		off = f.Offset + f.Size
	}

	l.pad(size - off)
}

func (l *Lowerer) staticArray(c *tree.Constructor, size int) {
	total := 0

	for _, el := range c.Elems {
		n := 1

		if el.Count != nil {
			k, ok := el.Count.(tree.IntLit)
			if !ok {
				l.fatalf("array count in a static initializer is not a literal")
			}
			if k.Value <= 0 {
				l.fatalf("array count %d is not positive", k.Value)
			}

			n = int(k.Value)
		}

		total += n
	}

	if c.DeclaredCount != types.Dynamic && total != c.DeclaredCount {
		l.fatalf("array constructor has %d elements, array holds %d", total, c.DeclaredCount)
	}

	l.emit(ir.Word{Value: int32(total)})

	for _, el := range c.Elems {
		n := 1
		if el.Count != nil {
			n = int(el.Count.(tree.IntLit).Value)
		}

		for i := 0; i < n; i++ {
			l.static(el.Value, c.ElemSize)
		}
	}

	l.pad(size - (types.WordSize + total*c.ElemSize))
}

func (l *Lowerer) pad(n int) {
	if n > 0 {
		l.emit(ir.Skip{N: n})
	}
}
