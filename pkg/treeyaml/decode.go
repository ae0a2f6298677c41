// Package treeyaml reads a resolved package tree from YAML.
//
// The document names declarations; the decoder does the resolution a
// front end would: it lays out records and objects, numbers dispatch
// slots, assigns parameter and local offsets, picks primitive operators
// by operand type and binds every name to its storage location.
package treeyaml

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

type (
	fileDoc struct {
		Package    string         `yaml:"package"`
		File       string         `yaml:"file"`
		Hash       int32          `yaml:"hash"`
		Imports    []importDoc    `yaml:"imports"`
		Records    []recordDoc    `yaml:"records"`
		Interfaces []interfaceDoc `yaml:"interfaces"`
		Classes    []classDoc     `yaml:"classes"`
		Errors     []errorDoc     `yaml:"errors"`
		Globals    []globalDoc    `yaml:"globals"`
		Functions  []routineDoc   `yaml:"functions"`
		Closures   []routineDoc   `yaml:"closures"`
		Main       string         `yaml:"main"`
	}

	importDoc struct {
		Name string `yaml:"name"`
		Hash int32  `yaml:"hash"`
	}

	// varDoc is a field, parameter or local
	varDoc struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	}

	recordDoc struct {
		Name   string   `yaml:"name"`
		Fields []varDoc `yaml:"fields"`
	}

	interfaceDoc struct {
		Name     string       `yaml:"name"`
		Package  string       `yaml:"package"`
		Extends  []string     `yaml:"extends"`
		Messages []routineDoc `yaml:"messages"`
		Imported bool         `yaml:"imported"`
		Exported bool         `yaml:"exported"`
		Line     int          `yaml:"line"`
	}

	classDoc struct {
		Name       string       `yaml:"name"`
		Package    string       `yaml:"package"`
		Super      string       `yaml:"super"`
		Implements []string     `yaml:"implements"`
		Fields     []varDoc     `yaml:"fields"`
		Methods    []routineDoc `yaml:"methods"`
		Imported   bool         `yaml:"imported"`
		Exported   bool         `yaml:"exported"`
		Line       int          `yaml:"line"`
	}

	errorDoc struct {
		Name     string   `yaml:"name"`
		Package  string   `yaml:"package"`
		Params   []varDoc `yaml:"params"`
		Imported bool     `yaml:"imported"`
		Exported bool     `yaml:"exported"`
		Line     int      `yaml:"line"`
	}

	globalDoc struct {
		Name     string    `yaml:"name"`
		Type     string    `yaml:"type"`
		Package  string    `yaml:"package"`
		Init     yaml.Node `yaml:"init"`
		Imported bool      `yaml:"imported"`
		Exported bool      `yaml:"exported"`
	}

	// routineDoc is a function, closure, method or interface message.
	// For methods and messages Name is the selector.
	routineDoc struct {
		Name     string      `yaml:"name"`
		Package  string      `yaml:"package"`
		Params   []varDoc    `yaml:"params"`
		Returns  string      `yaml:"returns"`
		Locals   []varDoc    `yaml:"locals"`
		Body     []yaml.Node `yaml:"body"`
		Imported bool        `yaml:"imported"`
		Exported bool        `yaml:"exported"`
		Line     int         `yaml:"line"`
	}

	// Error is a malformed or unresolvable document
	Error struct {
		Line int
		Msg  string
	}

	decoder struct {
		doc *fileDoc
		pkg *tree.Package

		records    map[string]*recordDoc
		classDocs  map[string]*classDoc
		classes    map[string]tree.ClassID
		interfaces map[string]tree.InterfaceID
		errs       map[string]tree.ErrorID
		globals    map[string]*storage.Var
		functions  map[string]tree.RoutineID
		closures   map[string]tree.RoutineID

		sizes  map[string]int
		sizing map[string]bool

		recordFields map[string][]*storage.Var
		classFields  map[tree.ClassID][]*storage.Var
		slots        map[string]int
		messages     map[tree.InterfaceID]map[string]tree.Signature

		// current routine
		r       *tree.Routine
		class   tree.ClassID
		frame   int
		scopes  []map[string]*storage.Var
		nodes   tree.NodeID
		targets []target
	}

	target struct {
		id   tree.NodeID
		loop bool
	}
)

// ReadFile decodes the package tree in the file at path
func ReadFile(ctx context.Context, path string) (*tree.Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read tree")
	}

	p, err := Decode(ctx, data)
	if err != nil {
		return nil, errors.Wrap(err, "%v", path)
	}

	return p, nil
}

// Decode resolves a YAML package document into a package tree
func Decode(ctx context.Context, data []byte) (p *tree.Package, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "decode tree")
	defer tr.Finish("err", &err)

	var doc fileDoc

	err = yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, errors.Wrap(err, "parse yaml")
	}

	if doc.Package == "" {
		return nil, errors.New("missing package name")
	}

	d := newDecoder(&doc)

	defer func() {
		perr := recover()
		if perr == nil {
			return
		}

		de, ok := perr.(*Error)
		if !ok {
			panic(perr)
		}

		p = nil
		err = errors.Wrap(de, "package %v", doc.Package)
	}()

	d.decode()

	if tr.If("tree") {
		tr.Printw("decoded", "routines", len(d.pkg.Routines), "classes", len(d.pkg.Classes), "globals", len(d.pkg.Globals))
	}

	return d.pkg, nil
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return e.Msg
	}

	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func newDecoder(doc *fileDoc) *decoder {
	file := doc.File
	if file == "" {
		file = doc.Package + ".k"
	}

	return &decoder{
		doc: doc,
		pkg: &tree.Package{
			Name: doc.Package,
			File: file,
			Hash: doc.Hash,
			Main: tree.None,
		},
		records:      map[string]*recordDoc{},
		classDocs:    map[string]*classDoc{},
		classes:      map[string]tree.ClassID{},
		interfaces:   map[string]tree.InterfaceID{},
		errs:         map[string]tree.ErrorID{},
		globals:      map[string]*storage.Var{},
		functions:    map[string]tree.RoutineID{},
		closures:     map[string]tree.RoutineID{},
		sizes:        map[string]int{},
		sizing:       map[string]bool{},
		recordFields: map[string][]*storage.Var{},
		classFields:  map[tree.ClassID][]*storage.Var{},
		slots:        map[string]int{},
		messages:     map[tree.InterfaceID]map[string]tree.Signature{},
		class:        tree.None,
	}
}

func (d *decoder) failf(n *yaml.Node, format string, args ...any) {
	e := &Error{Msg: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Line = n.Line
	}

	panic(e)
}

func (d *decoder) decode() {
	doc := d.doc

	for _, imp := range doc.Imports {
		d.pkg.Imports = append(d.pkg.Imports, tree.Import{Name: imp.Name, Hash: imp.Hash})
	}

	d.indexDecls()
	d.numberSlots()

	for i := range doc.Interfaces {
		d.declareInterface(tree.InterfaceID(i), &doc.Interfaces[i])
	}

	for i := range doc.Classes {
		d.declareClass(tree.ClassID(i), &doc.Classes[i])
	}

	for i := range doc.Errors {
		d.declareError(&doc.Errors[i])
	}

	for i := range doc.Globals {
		d.declareGlobal(&doc.Globals[i])
	}

	var bodies []*routineDoc

	for i := range doc.Functions {
		rd := &doc.Functions[i]
		d.functions[rd.Name] = d.declareRoutine(rd, tree.Function, tree.None)
		bodies = append(bodies, rd)
	}

	for i := range doc.Closures {
		rd := &doc.Closures[i]
		d.closures[rd.Name] = d.declareRoutine(rd, tree.Closure, tree.None)
		bodies = append(bodies, rd)
	}

	for ci := range doc.Classes {
		c := d.pkg.Classes[ci]

		for mi := range doc.Classes[ci].Methods {
			rd := &doc.Classes[ci].Methods[mi]
			id := d.declareRoutine(rd, tree.MethodRoutine, tree.ClassID(ci))
			c.Methods = append(c.Methods, tree.Method{Selector: rd.Name, Slot: d.slots[rd.Name], Routine: id})
			bodies = append(bodies, rd)
		}
	}

	for i := range doc.Globals {
		gd := &doc.Globals[i]
		if gd.Init.Kind != 0 {
			d.pkg.Globals[i].Init = d.expr(&gd.Init)
		}
	}

	for i, rd := range bodies {
		d.routineBody(d.pkg.Routines[i], rd)
	}

	if doc.Main != "" {
		id, ok := d.functions[doc.Main]
		if !ok {
			d.failf(nil, "main routine %q is not a function", doc.Main)
		}

		d.pkg.Main = id
	}
}

// indexDecls registers every declared name before any type is resolved
func (d *decoder) indexDecls() {
	doc := d.doc

	seen := map[string]bool{}
	typeName := func(name string) {
		if seen[name] {
			d.failf(nil, "type %q declared twice", name)
		}
		seen[name] = true
	}

	for i := range doc.Records {
		typeName(doc.Records[i].Name)
		d.records[doc.Records[i].Name] = &doc.Records[i]
	}

	for i := range doc.Classes {
		typeName(doc.Classes[i].Name)
		d.classes[doc.Classes[i].Name] = tree.ClassID(i)
		d.classDocs[doc.Classes[i].Name] = &doc.Classes[i]
	}

	for i := range doc.Interfaces {
		typeName(doc.Interfaces[i].Name)
		d.interfaces[doc.Interfaces[i].Name] = tree.InterfaceID(i)
	}

	for i := range doc.Errors {
		d.errs[doc.Errors[i].Name] = tree.ErrorID(i)
	}
}

// numberSlots gives every selector one dispatch slot, shared by all
// classes and interfaces, in order of first appearance.
func (d *decoder) numberSlots() {
	next := types.WordSize

	number := func(sel string) {
		if _, ok := d.slots[sel]; ok {
			return
		}

		d.slots[sel] = next
		next += types.WordSize
	}

	for _, c := range d.doc.Classes {
		for _, m := range c.Methods {
			number(m.Name)
		}
	}

	for _, i := range d.doc.Interfaces {
		for _, m := range i.Messages {
			number(m.Name)
		}
	}
}

func (d *decoder) declareInterface(id tree.InterfaceID, doc *interfaceDoc) {
	it := &tree.Interface{
		Name:     doc.Name,
		Package:  doc.Package,
		Imported: doc.Imported,
		Exported: doc.Exported,
		Pos:      tree.Pos{Line: doc.Line},
	}

	for _, e := range doc.Extends {
		ext, ok := d.interfaces[e]
		if !ok {
			d.failf(nil, "interface %v extends unknown interface %q", doc.Name, e)
		}

		it.Extends = append(it.Extends, ext)
	}

	d.pkg.Interfaces = append(d.pkg.Interfaces, it)

	sigs := map[string]tree.Signature{}
	for i := range doc.Messages {
		m := &doc.Messages[i]
		sigs[m.Name] = d.signature(m, true)
	}

	d.messages[id] = sigs
}

func (d *decoder) declareClass(id tree.ClassID, doc *classDoc) {
	c := &tree.Class{
		Name:     doc.Name,
		Package:  doc.Package,
		Super:    tree.None,
		Size:     d.size(doc.Name),
		Imported: doc.Imported,
		Exported: doc.Exported,
		Pos:      tree.Pos{Line: doc.Line},
	}

	if doc.Super != "" {
		super, ok := d.classes[doc.Super]
		if !ok {
			d.failf(nil, "class %v extends unknown class %q", doc.Name, doc.Super)
		}
		if super >= id {
			d.failf(nil, "class %v must follow its superclass %v", doc.Name, doc.Super)
		}

		c.Super = super
	}

	for _, name := range doc.Implements {
		i, ok := d.interfaces[name]
		if !ok {
			d.failf(nil, "class %v implements unknown interface %q", doc.Name, name)
		}

		c.Interfaces = append(c.Interfaces, i)
	}

	start := types.WordSize
	if c.Super != tree.None {
		start = d.pkg.Classes[c.Super].Size
	}

	c.Fields, _ = d.layout(doc.Fields, start, false)

	d.pkg.Classes = append(d.pkg.Classes, c)
	d.classFields[id] = c.Fields
}

func (d *decoder) declareError(doc *errorDoc) {
	e := &tree.ErrorDecl{
		Name:     doc.Name,
		Imported: doc.Imported,
		Exported: doc.Exported,
		Pos:      tree.Pos{Line: doc.Line},
	}

	if doc.Imported {
		e.Label = "_Error_" + doc.Package + "_" + doc.Name
	}

	e.Params, e.ParamSize = d.params(doc.Params, storage.FirstParamOffset)

	d.pkg.Errors = append(d.pkg.Errors, e)
}

func (d *decoder) declareGlobal(doc *globalDoc) {
	if _, ok := d.globals[doc.Name]; ok {
		d.failf(&doc.Init, "global %q declared twice", doc.Name)
	}

	t := d.parseType(doc.Type, nil)

	v := &storage.Var{
		Class: storage.Global,
		Name:  doc.Name,
		Size:  d.staticSize(t, doc.Name),
		Type:  t,
	}

	if doc.Imported {
		v.Label = "_G_" + doc.Package + "_" + doc.Name
	}

	d.globals[doc.Name] = v
	d.pkg.Globals = append(d.pkg.Globals, &tree.Global{Var: v, Imported: doc.Imported, Exported: doc.Exported})
}

func (d *decoder) declareRoutine(doc *routineDoc, kind tree.RoutineKind, class tree.ClassID) tree.RoutineID {
	r := &tree.Routine{
		Kind:     kind,
		Name:     doc.Name,
		Package:  doc.Package,
		Class:    class,
		Sig:      d.signature(doc, kind == tree.MethodRoutine),
		Imported: doc.Imported,
		Exported: doc.Exported,
		Pos:      tree.Pos{Line: doc.Line},
	}

	if kind == tree.Function {
		if _, ok := d.functions[doc.Name]; ok {
			d.failf(nil, "function %q declared twice", doc.Name)
		}
	}

	id := tree.RoutineID(len(d.pkg.Routines))
	d.pkg.Routines = append(d.pkg.Routines, r)

	return id
}

// staticSize is the size of a variable of type t, which must be known
func (d *decoder) staticSize(t types.Type, name string) int {
	size := types.SizeOf(t)
	if size <= 0 {
		d.failf(nil, "%v: type %v has no static size", name, t)
	}

	return size
}
