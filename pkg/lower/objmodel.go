package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// objectModel emits the dispatch table and descriptor of every class
// defined here, and the descriptor of every interface. Interfaces have no
// dispatch table: sends use the global slot numbering of the class table.
func (l *Lowerer) objectModel() {
	for i, c := range l.pkg.Classes {
		if c.Imported {
			continue
		}

		l.dispatchTable(tree.ClassID(i))
		l.classDescriptor(tree.ClassID(i))
	}

	for i, x := range l.pkg.Interfaces {
		if x.Imported {
			continue
		}

		l.interfaceDescriptor(tree.InterfaceID(i))
	}
}

// dispatchTable emits the table shared by all instances of a class. Word 0
// points at the class descriptor; each method occupies the word at its
// slot, inherited entries overridden by the nearest definition.
func (l *Lowerer) dispatchTable(id tree.ClassID) {
	c := l.pkg.Class(id)

	slots := map[int]ir.Label{}
	last := 0

	for _, a := range l.pkg.Ancestors(id) {
		for _, m := range l.pkg.Class(a).Methods {
			if m.Slot < types.WordSize || m.Slot%types.WordSize != 0 {
				l.fatalf("method %v.%v has bad slot %d", l.pkg.Class(a).Name, m.Selector, m.Slot)
			}

			slots[m.Slot] = l.routineRef(m.Routine)
			last = max(last, m.Slot)
		}
	}

	l.comment("dispatch table of %s", c.Name)
	l.emit(ir.Align{})
	l.label(dispatchLabel(c.Name))
	l.emit(ir.WordLabel{Label: descriptorLabel(c.Name)})

	for off := types.WordSize; off <= last; off += types.WordSize {
		if lbl, ok := slots[off]; ok {
			l.emit(ir.WordLabel{Label: lbl})
		} else {
			l.emit(ir.Word{Value: 0})
		}
	}
}

// classDescriptor is laid out as magic, name, file, line, instance size,
// then the descriptors of all superclasses and implemented interfaces,
// zero terminated.
func (l *Lowerer) classDescriptor(id tree.ClassID) {
	c := l.pkg.Class(id)

	l.emit(ir.Align{})
	l.label(descriptorLabel(c.Name))
	l.emit(ir.Word{Value: ir.ClassMagic})
	l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(c.Name).Label)})
	l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(l.pkg.File).Label)})
	l.emit(ir.Word{Value: int32(c.Line)})
	l.emit(ir.Word{Value: int32(c.Size)})

	for _, a := range l.pkg.Ancestors(id) {
		if a != id {
			l.emit(ir.WordLabel{Label: l.classDescriptorRef(a)})
		}
	}

	for _, i := range l.pkg.AllInterfaces(id) {
		l.emit(ir.WordLabel{Label: l.interfaceDescriptorRef(i)})
	}

	l.emit(ir.Word{Value: 0})
}

func (l *Lowerer) interfaceDescriptor(id tree.InterfaceID) {
	x := l.pkg.Interface(id)

	l.emit(ir.Align{})
	l.label(descriptorLabel(x.Name))
	l.emit(ir.Word{Value: ir.InterfaceMagic})
	l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(x.Name).Label)})
	l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(l.pkg.File).Label)})
	l.emit(ir.Word{Value: int32(x.Line)})
	l.emit(ir.Word{Value: 0})

	for _, e := range l.extended(id) {
		l.emit(ir.WordLabel{Label: l.interfaceDescriptorRef(e)})
	}

	l.emit(ir.Word{Value: 0})
}

// extended lists the interfaces id extends, transitively, first seen first
func (l *Lowerer) extended(id tree.InterfaceID) []tree.InterfaceID {
	seen := map[tree.InterfaceID]bool{id: true}
	var out []tree.InterfaceID

	var visit func(tree.InterfaceID)
	visit = func(i tree.InterfaceID) {
		for _, e := range l.pkg.Interface(i).Extends {
			if seen[e] {
				continue
			}

			seen[e] = true
			out = append(out, e)
			visit(e)
		}
	}

	visit(id)

	return out
}
