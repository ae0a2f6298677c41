package treeyaml

import (
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// fieldAlign is the alignment of a field or local of the given size.
// Bytes pack, everything else is word aligned.
func fieldAlign(size int) int {
	if size == 1 {
		return 1
	}

	return types.WordSize
}

func (d *decoder) known(name string) bool {
	_, r := d.records[name]
	_, c := d.classes[name]
	_, i := d.interfaces[name]

	return r || c || i
}

func (d *decoder) namedType(name string, n *yaml.Node) types.Type {
	if _, ok := d.records[name]; ok {
		return types.Record{Name: name, Size: d.size(name)}
	}

	if _, ok := d.classes[name]; ok {
		return types.Class{Name: name, Size: d.size(name)}
	}

	if _, ok := d.interfaces[name]; ok {
		return types.Interface{Name: name}
	}

	d.failf(n, "unknown type %q", name)

	return nil
}

func (d *decoder) classType(id tree.ClassID) types.Class {
	c := d.pkg.Classes[id]

	return types.Class{Name: c.Name, Size: c.Size}
}

// size lays out a record or class once and remembers its size.
// Objects start with the dispatch table pointer, or the superclass fields.
func (d *decoder) size(name string) int {
	if s, ok := d.sizes[name]; ok {
		return s
	}

	if d.sizing[name] {
		d.failf(nil, "type %v contains itself", name)
	}

	d.sizing[name] = true
	defer delete(d.sizing, name)

	var fields []varDoc
	start := 0

	if rd, ok := d.records[name]; ok {
		fields = rd.Fields
	} else {
		cd := d.classDocs[name]
		fields = cd.Fields
		start = types.WordSize

		if cd.Super != "" {
			if _, ok := d.classDocs[cd.Super]; !ok {
				d.failf(nil, "class %v extends unknown class %q", name, cd.Super)
			}

			start = d.size(cd.Super)
		}
	}

	_, end := d.layout(fields, start, true)

	s := types.AlignUp(end, types.WordSize)
	d.sizes[name] = s

	return s
}

// layout places fields upward from start, each aligned by its size
func (d *decoder) layout(fields []varDoc, start int, lazy bool) ([]*storage.Var, int) {
	var vars []*storage.Var

	seen := map[string]bool{}
	off := start

	for _, f := range fields {
		if seen[f.Name] {
			d.failf(nil, "field %q declared twice", f.Name)
		}
		seen[f.Name] = true

		t := d.parseTypeMode(f.Type, nil, lazy)
		size := d.staticSize(t, f.Name)

		off = types.AlignUp(off, fieldAlign(size))

		vars = append(vars, &storage.Var{Class: storage.ClassField, Name: f.Name, Offset: off, Size: size, Type: t})

		off += size
	}

	return vars, off
}

// fieldsOf returns the fields of a record, or of a class and its superclasses
func (d *decoder) fieldsOf(t types.Type, n *yaml.Node) []*storage.Var {
	switch t := t.(type) {
	case types.Record:
		fs, ok := d.recordFields[t.Name]
		if !ok {
			fs, _ = d.layout(d.records[t.Name].Fields, 0, false)
			d.recordFields[t.Name] = fs
		}

		return fs
	case types.Class:
		var fs []*storage.Var
		for _, c := range d.pkg.Ancestors(d.classes[t.Name]) {
			fs = append(fs, d.classFields[c]...)
		}

		return fs
	}

	d.failf(n, "%v has no fields", t)

	return nil
}

func findField(fs []*storage.Var, name string) *storage.Var {
	for i := len(fs) - 1; i >= 0; i-- {
		if fs[i].Name == name {
			return fs[i]
		}
	}

	return nil
}

// params places parameters upward from start, a word slot at least each.
// It returns them with the size of the area from the first parameter slot.
func (d *decoder) params(ps []varDoc, start int) ([]*storage.Var, int) {
	names := make([]string, len(ps))
	ts := make([]types.Type, len(ps))

	for i, p := range ps {
		names[i] = p.Name
		ts[i] = d.parseType(p.Type, nil)
	}

	return d.paramVars(names, ts, start)
}

func (d *decoder) paramVars(names []string, ts []types.Type, start int) ([]*storage.Var, int) {
	var vars []*storage.Var

	off := start

	for i, t := range ts {
		size := d.staticSize(t, names[i])

		vars = append(vars, &storage.Var{Class: storage.Param, Name: names[i], Offset: off, Size: size, Type: t})

		off += types.AlignUp(size, types.WordSize)
	}

	return vars, off - storage.FirstParamOffset
}

// signature of a routine. Methods take self in the first slot.
func (d *decoder) signature(doc *routineDoc, method bool) tree.Signature {
	start := storage.FirstParamOffset
	if method {
		start += types.WordSize
	}

	var sig tree.Signature
	sig.Params, sig.ParamSize = d.params(doc.Params, start)

	sig.Result = types.VoidType
	if doc.Returns != "" {
		sig.Result = d.parseType(doc.Returns, nil)
		sig.ResultSize = d.staticSize(sig.Result, doc.Name)
	}

	return sig
}

// funcSignature is the calling convention of a function pointer
func (d *decoder) funcSignature(ft types.Func) tree.Signature {
	names := make([]string, len(ft.Params))
	for i := range names {
		names[i] = "arg" + strconv.Itoa(i)
	}

	var sig tree.Signature
	sig.Params, sig.ParamSize = d.paramVars(names, ft.Params, storage.FirstParamOffset)

	sig.Result = ft.Result
	if !types.IsVoid(ft.Result) {
		sig.ResultSize = d.staticSize(ft.Result, "result")
	}

	return sig
}

func funcType(sig tree.Signature) types.Func {
	f := types.Func{Result: sig.Result}
	for _, p := range sig.Params {
		f.Params = append(f.Params, p.Type)
	}

	return f
}

// local allocates a named local below the frame pointer, in the
// innermost scope.
func (d *decoder) local(name string, t types.Type, n *yaml.Node) *storage.Var {
	scope := d.scopes[len(d.scopes)-1]
	if _, ok := scope[name]; ok {
		d.failf(n, "%q declared twice", name)
	}

	size := d.staticSize(t, name)
	d.frame = types.AlignUp(d.frame+size, fieldAlign(size))

	v := &storage.Var{Class: storage.Local, Name: name, Offset: -d.frame, Size: size, Type: t}

	d.r.Locals = append(d.r.Locals, v)
	scope[name] = v

	return v
}

// lookup resolves a variable name: locals and parameters, then fields of
// self, then globals.
func (d *decoder) lookup(name string, n *yaml.Node) *storage.Var {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if v, ok := d.scopes[i][name]; ok {
			return v
		}
	}

	if d.class != tree.None {
		if f := findField(d.fieldsOf(d.classType(d.class), n), name); f != nil {
			return f
		}
	}

	if v, ok := d.globals[name]; ok {
		return v
	}

	d.failf(n, "unknown variable %q", name)

	return nil
}

func (d *decoder) routineBody(r *tree.Routine, doc *routineDoc) {
	if r.Imported {
		if len(doc.Body) != 0 {
			d.failf(&doc.Body[0], "imported routine %v has a body", r.Name)
		}

		return
	}

	d.r = r
	d.class = tree.None
	d.frame = -storage.DescriptorOffset
	d.scopes = []map[string]*storage.Var{{}}
	d.nodes = 0
	d.targets = nil

	defer func() {
		d.r = nil
		d.class = tree.None
		d.scopes = nil
	}()

	scope := d.scopes[0]

	if r.Kind == tree.MethodRoutine {
		d.class = r.Class

		scope["self"] = &storage.Var{
			Class:  storage.Param,
			Name:   "self",
			Offset: storage.SelfOffset,
			Size:   types.WordSize,
			Type:   types.Ptr{Elem: d.classType(r.Class)},
		}
	}

	for _, p := range r.Sig.Params {
		scope[p.Name] = p
	}

	for _, l := range doc.Locals {
		d.local(l.Name, d.parseType(l.Type, nil), nil)
	}

	r.Body = d.stmts(doc.Body)
	r.FrameSize = types.AlignUp(d.frame, types.WordSize)
}
