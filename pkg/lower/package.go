package lower

import (
	"context"
	"sort"

	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/tree"
)

// lowerPackage emits the whole package:
//
//	header, exports, version check, main entry, routines,
//	dispatch tables and descriptors, globals, errors, constant pools, imports.
func (l *Lowerer) lowerPackage(ctx context.Context) {
	p := l.pkg

	l.assignLabels()

	l.comment("package %s (%s)", p.Name, p.File)
	l.emit(ir.TextSection{})

	l.exports()
	l.versionCheck()

	if p.Main != tree.None {
		l.mainEntry()
	}

	for _, r := range p.Routines {
		if r.Imported {
			continue
		}

		l.lowerRoutine(ctx, r)
	}

	l.emit(ir.DataSection{})

	l.objectModel()
	l.globals()
	l.errorIDs()

	l.emit(ir.Align{})
	l.label(versionDoneLabel(p.Name))
	l.emit(ir.Word{Value: 0})

	l.pools()
	l.importList()

	if l.tr.If("lower") {
		l.tr.Printw("package lowered", "name", p.Name, "instructions", l.code.Len(), "strings", len(l.strings), "imports", len(l.imports))
	}
}

func (l *Lowerer) exports() {
	p := l.pkg

	l.emit(ir.Export{Label: versionLabel(p.Name)})

	if p.Main != tree.None {
		l.emit(ir.Export{Label: MainEntryLabel})
	}

	for _, r := range p.Routines {
		if r.Exported && !r.Imported {
			l.emit(ir.Export{Label: ir.Label(r.Label)})
		}
	}

	for _, g := range p.Globals {
		if g.Exported && !g.Imported {
			l.emit(ir.Export{Label: ir.Label(g.Var.Label)})
		}
	}

	for _, e := range p.Errors {
		if e.Exported && !e.Imported {
			l.emit(ir.Export{Label: ir.Label(e.Label)})
		}
	}

	for _, c := range p.Classes {
		if c.Exported && !c.Imported {
			l.emit(ir.Export{Label: dispatchLabel(c.Name)})
			l.emit(ir.Export{Label: descriptorLabel(c.Name)})
		}
	}

	for _, i := range p.Interfaces {
		if i.Exported && !i.Imported {
			l.emit(ir.Export{Label: descriptorLabel(i.Name)})
		}
	}
}

// versionCheck emits the routine that checks this package and, once, all
// packages it imports against the hashes they were compiled with.
func (l *Lowerer) versionCheck() {
	p := l.pkg

	l.comment("version check")

	ret := l.newLabel()

	l.emit(ir.CheckVersionStart{
		Label:  versionLabel(p.Name),
		Hash:   p.Hash,
		Done:   versionDoneLabel(p.Name),
		Return: ret,
	})

	for _, imp := range p.Imports {
		lbl := l.ref(versionLabel(imp.Name), true)

		l.emit(ir.CheckVersionCall{Label: lbl, Hash: imp.Hash})
	}

	l.emit(ir.CheckVersionEnd{Return: ret})
}

func (l *Lowerer) mainEntry() {
	p := l.pkg

	l.comment("program entry")
	l.label(MainEntryLabel)
	l.emit(ir.MainEntry{
		CheckVersion: versionLabel(p.Name),
		Hash:         p.Hash,
		Main:         l.routineRef(p.Main),
	})
}

func (l *Lowerer) errorIDs() {
	for _, e := range l.pkg.Errors {
		if e.Imported {
			continue
		}

		l.emit(ir.Align{})
		l.label(ir.Label(e.Label))
		l.emit(ir.WordLabel{Label: ir.Label(l.stringConst(e.Name).Label)})
	}
}

func (l *Lowerer) pools() {
	for _, s := range l.strings {
		l.emit(ir.Align{})
		l.label(ir.Label(s.Label))
		l.emit(ir.Word{Value: int32(len(s.Value))})
		l.emit(ir.Ascii{Value: s.Value})
	}

	for _, d := range l.doubles {
		l.emit(ir.Align{})
		l.label(ir.Label(d.Label))
		l.emit(ir.DoubleWord{Value: d.Value})
	}
}

// importList declares the runtime and every label of another package
// this one refers to, sorted.
func (l *Lowerer) importList() {
	all := map[ir.Label]bool{}

	for _, lbl := range ir.RuntimeLabels() {
		all[lbl] = true
	}
	for lbl := range l.imports {
		all[lbl] = true
	}

	list := make([]ir.Label, 0, len(all))
	for lbl := range all {
		list = append(list, lbl)
	}

	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })

	for _, lbl := range list {
		l.emit(ir.Import{Label: lbl})
	}
}
