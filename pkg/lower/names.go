package lower

import (
	"strconv"
	"strings"

	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
)

// Label naming. Everything a package exports is prefixed with a tag and
// the package or class name, so labels of different packages never clash.

func functionLabel(pkg, name string) string { return "_P_" + pkg + "_" + name }

func methodLabel(class, selector string) string { return "_M_" + class + "_" + mangle(selector) }

func closureLabel(pkg string, id tree.RoutineID) string {
	return "_C_" + pkg + "_" + strconv.Itoa(int(id))
}

func globalLabel(pkg, name string) string { return "_G_" + pkg + "_" + name }

func dispatchLabel(class string) ir.Label { return ir.Label("_DT_" + class) }

func descriptorLabel(name string) ir.Label { return ir.Label("_TD_" + name) }

func routineDescriptorLabel(routine string) ir.Label { return ir.Label("_RD_" + routine) }

func frameSizeLabel(routine string) ir.Label { return ir.Label(routine + "_frameSize") }

func versionLabel(pkg string) ir.Label { return ir.Label("_CheckVersion_" + pkg) }

func versionDoneLabel(pkg string) ir.Label { return ir.Label("_CheckVersion_" + pkg + "_done") }

// MainEntryLabel is the program entry point defined by the main package
const MainEntryLabel ir.Label = "_mainEntry"

// mangle turns a selector into label characters.
// Keyword parts "at:put:" become "at_put_", any other character
// "_<code>_", underscore included. A code always starts with a digit and a
// keyword part never does, so distinct selectors get distinct labels.
func mangle(sel string) string {
	var b strings.Builder

	for i := 0; i < len(sel); i++ {
		c := sel[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == ':':
			b.WriteByte('_')
		default:
			b.WriteByte('_')
			b.WriteString(strconv.Itoa(int(c)))
			b.WriteByte('_')
		}
	}

	return b.String()
}

// assignLabels fills in the labels the front end left empty
func (l *Lowerer) assignLabels() {
	p := l.pkg

	for i, r := range p.Routines {
		if r.Label != "" {
			continue
		}

		pkg := r.Package
		if pkg == "" {
			pkg = p.Name
		}

		switch r.Kind {
		case tree.MethodRoutine:
			r.Label = methodLabel(p.Class(r.Class).Name, r.Name)
		case tree.Closure:
			r.Label = closureLabel(pkg, tree.RoutineID(i))
		default:
			r.Label = functionLabel(pkg, r.Name)
		}
	}

	for _, g := range p.Globals {
		if g.Var.Label == "" {
			g.Var.Label = globalLabel(p.Name, g.Var.Name)
		}
		if g.Imported {
			l.importedVars[g.Var] = true
		}
	}

	for _, e := range p.Errors {
		if e.Label == "" {
			e.Label = "_Error_" + p.Name + "_" + e.Name
		}
	}
}

// Reference helpers. Referring to a declaration of another package
// records its label for the import list.

func (l *Lowerer) routineRef(id tree.RoutineID) ir.Label {
	r := l.pkg.Routine(id)

	return l.ref(ir.Label(r.Label), r.Imported)
}

func (l *Lowerer) dispatchRef(id tree.ClassID) ir.Label {
	c := l.pkg.Class(id)

	return l.ref(dispatchLabel(c.Name), c.Imported)
}

func (l *Lowerer) classDescriptorRef(id tree.ClassID) ir.Label {
	c := l.pkg.Class(id)

	return l.ref(descriptorLabel(c.Name), c.Imported)
}

func (l *Lowerer) interfaceDescriptorRef(id tree.InterfaceID) ir.Label {
	i := l.pkg.Interface(id)

	return l.ref(descriptorLabel(i.Name), i.Imported)
}

func (l *Lowerer) errorRef(id tree.ErrorID) ir.Label {
	e := l.pkg.Error(id)

	return l.ref(ir.Label(e.Label), e.Imported)
}

func (l *Lowerer) useVar(v *storage.Var) {
	if l.importedVars[v] {
		l.imports[ir.Label(v.Label)] = true
	}
}

func (l *Lowerer) ref(lbl ir.Label, imported bool) ir.Label {
	if imported {
		l.imports[lbl] = true
	}

	return lbl
}
