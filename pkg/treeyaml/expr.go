package treeyaml

import (
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// binaryPrim picks the operator by the type of the left operand
type binaryPrim struct {
	int, double, bool, ptr tree.PrimOp

	cmp bool
}

var binaryPrims = map[string]binaryPrim{
	"add":  {int: tree.IntAdd, double: tree.DoubleAdd},
	"sub":  {int: tree.IntSub, double: tree.DoubleSub},
	"mul":  {int: tree.IntMul, double: tree.DoubleMul},
	"div":  {int: tree.IntDiv, double: tree.DoubleDiv},
	"rem":  {int: tree.IntRem},
	"sll":  {int: tree.IntSll},
	"sra":  {int: tree.IntSra},
	"srl":  {int: tree.IntSrl},
	"band": {int: tree.IntAnd},
	"bor":  {int: tree.IntOr},
	"bxor": {int: tree.IntXor},
	"eq":   {int: tree.IntEq, double: tree.DoubleEq, bool: tree.BoolEq, ptr: tree.PtrEq, cmp: true},
	"ne":   {int: tree.IntNe, double: tree.DoubleNe, bool: tree.BoolNe, ptr: tree.PtrNe, cmp: true},
	"lt":   {int: tree.IntLt, double: tree.DoubleLt, cmp: true},
	"le":   {int: tree.IntLe, double: tree.DoubleLe, cmp: true},
	"gt":   {int: tree.IntGt, double: tree.DoubleGt, cmp: true},
	"ge":   {int: tree.IntGe, double: tree.DoubleGe, cmp: true},
	"and":  {bool: tree.BoolAnd, cmp: true},
	"or":   {bool: tree.BoolOr, cmp: true},
}

// unaryPrim maps an operand kind to the operator and its result type
type unaryPrim struct {
	from   types.BasicKind
	op     tree.PrimOp
	result types.Type
}

var unaryPrims = map[string][]unaryPrim{
	"neg": {
		{from: types.Int, op: tree.IntNeg, result: types.IntType},
		{from: types.Double, op: tree.DoubleNeg, result: types.DoubleType},
	},
	"bnot":      {{from: types.Int, op: tree.IntNot, result: types.IntType}},
	"not":       {{from: types.Bool, op: tree.BoolNot, result: types.BoolType}},
	"toDouble":  {{from: types.Int, op: tree.IntToDouble, result: types.DoubleType}},
	"toInt":     {{from: types.Double, op: tree.DoubleToInt, result: types.IntType}},
	"toChar":    {{from: types.Int, op: tree.IntToChar, result: types.CharType}},
	"charToInt": {{from: types.Char, op: tree.CharToInt, result: types.IntType}},
}

// expr decodes an expression. Scalars are literals, or variable names
// when they are strings; mappings have a single operator key.
func (d *decoder) expr(n *yaml.Node) tree.Expr {
	switch n.Kind {
	case yaml.ScalarNode:
		return d.scalar(n)
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			d.failf(n, "expression needs exactly one operator key")
		}

		return d.operator(n.Content[0].Value, n.Content[1])
	}

	d.failf(n, "bad expression")

	return nil
}

func (d *decoder) exprs(n *yaml.Node) []tree.Expr {
	if n == nil {
		return nil
	}

	if n.Kind != yaml.SequenceNode {
		d.failf(n, "expected a list")
	}

	out := make([]tree.Expr, len(n.Content))
	for i, c := range n.Content {
		out[i] = d.expr(c)
	}

	return out
}

func (d *decoder) scalar(n *yaml.Node) tree.Expr {
	switch n.ShortTag() {
	case "!!int":
		return tree.IntLit{Value: d.intValue(n)}
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			d.failf(n, "bad double %q", n.Value)
		}

		return tree.DoubleLit{Value: v}
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			d.failf(n, "bad bool %q", n.Value)
		}

		return tree.BoolLit{Value: v}
	case "!!null":
		return tree.NullLit{}
	}

	return &tree.VarRef{Var: d.lookup(n.Value, n)}
}

func (d *decoder) intValue(n *yaml.Node) int32 {
	v, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil || v < math.MinInt32 || v > math.MaxUint32 {
		d.failf(n, "bad int %q", n.Value)
	}

	return int32(v)
}

// pair decodes a two element list
func (d *decoder) pair(n *yaml.Node) (*yaml.Node, *yaml.Node) {
	if n.Kind != yaml.SequenceNode || len(n.Content) != 2 {
		d.failf(n, "expected a two element list")
	}

	return n.Content[0], n.Content[1]
}

// fields returns the keys of a mapping node
func (d *decoder) fields(n *yaml.Node) map[string]*yaml.Node {
	if n.Kind != yaml.MappingNode {
		d.failf(n, "expected a mapping")
	}

	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i < len(n.Content); i += 2 {
		m[n.Content[i].Value] = n.Content[i+1]
	}

	return m
}

func (d *decoder) operator(op string, v *yaml.Node) tree.Expr {
	if bp, ok := binaryPrims[op]; ok {
		l, r := d.pair(v)
		return d.binary(op, bp, d.expr(l), d.expr(r), v)
	}

	if ups, ok := unaryPrims[op]; ok {
		return d.unary(op, ups, d.expr(v), v)
	}

	switch op {
	case "int":
		return tree.IntLit{Value: d.intValue(v)}
	case "char":
		if len(v.Value) != 1 {
			d.failf(v, "char literal %q is not one byte", v.Value)
		}

		return tree.CharLit{Value: v.Value[0]}
	case "string":
		return tree.StringLit{Value: v.Value}
	case "double":
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			d.failf(v, "bad double %q", v.Value)
		}

		return tree.DoubleLit{Value: f}
	case "bool":
		return d.scalar(v)
	case "null":
		return tree.NullLit{}
	case "var":
		return &tree.VarRef{Var: d.lookup(v.Value, v)}
	case "field":
		return d.field(v)
	case "index":
		return d.index(v)
	case "deref":
		x := d.expr(v)

		elem := types.Deref(tree.TypeOf(x))
		if elem == nil {
			d.failf(v, "deref of %v", tree.TypeOf(x))
		}

		return &tree.Send{Receiver: x, Selector: op, Prim: tree.Deref, Result: elem}
	case "addr":
		x := d.expr(v)

		return &tree.Send{Receiver: x, Selector: op, Prim: tree.AddrOf, Result: types.Ptr{Elem: tree.TypeOf(x)}}
	case "call":
		return d.call(v)
	case "send":
		return d.send(v)
	case "closure":
		id, ok := d.closures[v.Value]
		if !ok {
			d.failf(v, "unknown closure %q", v.Value)
		}

		return &tree.ClosureRef{Routine: id, Type: funcType(d.pkg.Routines[id].Sig)}
	case "new", "alloc":
		return d.constructor(v, op == "alloc")
	case "iskindof":
		x, name := d.pair(v)

		if c, ok := d.classes[name.Value]; ok {
			return &tree.IsKindOf{X: d.expr(x), Class: c, Interface: tree.None}
		}

		if i, ok := d.interfaces[name.Value]; ok {
			return &tree.IsKindOf{X: d.expr(x), Class: tree.None, Interface: i}
		}

		d.failf(name, "unknown class or interface %q", name.Value)
	case "isinstanceof":
		x, name := d.pair(v)

		c, ok := d.classes[name.Value]
		if !ok {
			d.failf(name, "unknown class %q", name.Value)
		}

		return &tree.IsInstanceOf{X: d.expr(x), Class: c}
	case "cast":
		x, t := d.pair(v)
		return &tree.Cast{X: d.expr(x), Type: d.parseType(t.Value, t)}
	case "arraysize":
		return &tree.ArraySizeOf{X: d.expr(v)}
	}

	d.failf(v, "unknown operator %q", op)

	return nil
}

func (d *decoder) binary(op string, bp binaryPrim, l, r tree.Expr, n *yaml.Node) tree.Expr {
	lt := tree.TypeOf(l)

	var prim tree.PrimOp
	var result types.Type = lt

	b, basic := lt.(types.Basic)

	switch {
	case types.IsPtr(lt), types.IsObject(lt):
		prim = bp.ptr
	case !basic:
		if _, ok := lt.(types.Func); ok {
			prim = bp.ptr
		}
	case b.Kind == types.Double:
		prim = bp.double
	case b.Kind == types.Bool:
		prim = bp.bool
	case b.Kind == types.Int, b.Kind == types.Char:
		prim = bp.int
	}

	if prim == tree.PrimNone {
		d.failf(n, "%v is not defined on %v", op, lt)
	}

	if bp.cmp {
		result = types.BoolType
	}

	return &tree.Send{Receiver: l, Selector: op, Prim: prim, Args: []tree.Expr{r}, Result: result}
}

func (d *decoder) unary(op string, ups []unaryPrim, x tree.Expr, n *yaml.Node) tree.Expr {
	b, ok := tree.TypeOf(x).(types.Basic)

	for _, u := range ups {
		if ok && b.Kind == u.from {
			return &tree.Send{Receiver: x, Selector: op, Prim: u.op, Result: u.result}
		}
	}

	d.failf(n, "%v is not defined on %v", op, tree.TypeOf(x))

	return nil
}

// aggregate strips one pointer level, as field and element access do
func aggregate(t types.Type) types.Type {
	if e := types.Deref(t); e != nil {
		return e
	}

	return t
}

func (d *decoder) field(v *yaml.Node) tree.Expr {
	xn, name := d.pair(v)
	x := d.expr(xn)

	f := findField(d.fieldsOf(aggregate(tree.TypeOf(x)), xn), name.Value)
	if f == nil {
		d.failf(name, "%v has no field %q", tree.TypeOf(x), name.Value)
	}

	return &tree.FieldAccess{X: x, Field: f}
}

func (d *decoder) index(v *yaml.Node) tree.Expr {
	xn, in := d.pair(v)
	x := d.expr(xn)

	a, ok := aggregate(tree.TypeOf(x)).(types.Array)
	if !ok {
		d.failf(xn, "index of %v", tree.TypeOf(x))
	}

	return &tree.ArrayIndex{X: x, Index: d.expr(in), ElemSize: a.ElemSize, Elem: a.Elem}
}

func (d *decoder) args(n *yaml.Node, sig tree.Signature, what string) []tree.Expr {
	args := d.exprs(n)
	if len(args) != len(sig.Params) {
		d.failf(n, "%v takes %d arguments, got %d", what, len(sig.Params), len(args))
	}

	return args
}

// call is {fn: name, args: [...]}: a function, or a function pointer variable
func (d *decoder) call(v *yaml.Node) tree.Expr {
	m := d.fields(v)

	fn := m["fn"]
	if fn == nil {
		d.failf(v, "call without fn")
	}

	if id, ok := d.functions[fn.Value]; ok {
		r := d.pkg.Routines[id]
		return &tree.Call{Routine: id, Args: d.args(m["args"], r.Sig, fn.Value), Result: r.Sig.Result}
	}

	x := d.expr(fn)

	ft, ok := tree.TypeOf(x).(types.Func)
	if !ok {
		d.failf(fn, "call of %v", tree.TypeOf(x))
	}

	sig := d.funcSignature(ft)

	return &tree.CallPtr{Fn: x, Sig: sig, Args: d.args(m["args"], sig, fn.Value), Result: ft.Result}
}

// send is {to: receiver, sel: selector, args: [...]} or
// {super: selector, args: [...]} inside a method.
func (d *decoder) send(v *yaml.Node) tree.Expr {
	m := d.fields(v)

	if sup := m["super"]; sup != nil {
		return d.superSend(sup, m["args"])
	}

	to, sel := m["to"], m["sel"]
	if to == nil || sel == nil {
		d.failf(v, "send needs to and sel")
	}

	x := d.expr(to)
	rt := aggregate(tree.TypeOf(x))

	s := &tree.Send{Receiver: x, Selector: sel.Value, Target: tree.None}

	switch rt := rt.(type) {
	case types.Class:
		id := d.method(d.classes[rt.Name], sel)
		s.Sig = d.pkg.Routines[id].Sig
	case types.Interface:
		sig, ok := d.message(d.interfaces[rt.Name], sel.Value)
		if !ok {
			d.failf(sel, "%v does not understand %q", rt.Name, sel.Value)
		}

		s.Sig = sig
	default:
		d.failf(to, "send to %v", tree.TypeOf(x))
	}

	s.Slot = d.slots[sel.Value]
	s.Args = d.args(m["args"], s.Sig, sel.Value)
	s.Result = s.Sig.Result

	return s
}

func (d *decoder) superSend(sel, args *yaml.Node) tree.Expr {
	if d.class == tree.None || d.pkg.Classes[d.class].Super == tree.None {
		d.failf(sel, "super send outside a subclass method")
	}

	id := d.method(d.pkg.Classes[d.class].Super, sel)
	sig := d.pkg.Routines[id].Sig

	return &tree.Send{
		Receiver: &tree.VarRef{Var: d.lookup("self", sel)},
		Selector: sel.Value,
		Sig:      sig,
		Slot:     d.slots[sel.Value],
		Super:    true,
		Target:   id,
		Args:     d.args(args, sig, sel.Value),
		Result:   sig.Result,
	}
}

// method finds the routine implementing sel for class c, searching up
// the superclass chain.
func (d *decoder) method(c tree.ClassID, sel *yaml.Node) tree.RoutineID {
	for id := c; id != tree.None; id = d.pkg.Classes[id].Super {
		for _, m := range d.pkg.Classes[id].Methods {
			if m.Selector == sel.Value {
				return m.Routine
			}
		}
	}

	d.failf(sel, "%v does not understand %q", d.pkg.Classes[c].Name, sel.Value)

	return tree.None
}

func (d *decoder) message(i tree.InterfaceID, sel string) (tree.Signature, bool) {
	if sig, ok := d.messages[i][sel]; ok {
		return sig, true
	}

	for _, e := range d.pkg.Interfaces[i].Extends {
		if sig, ok := d.message(e, sel); ok {
			return sig, true
		}
	}

	return tree.Signature{}, false
}

// constructor is {type: T, fields: {name: value}, elems: [...]}. An element
// is a value, or {count: n, value: v}.
func (d *decoder) constructor(v *yaml.Node, alloc bool) tree.Expr {
	m := d.fields(v)

	tn := m["type"]
	if tn == nil {
		d.failf(v, "constructor without type")
	}

	c := &tree.Constructor{Alloc: alloc, Class: tree.None, Type: d.parseType(tn.Value, tn)}

	switch t := c.Type.(type) {
	case types.Array:
		c.Kind = tree.ArrayCons
		c.ElemSize = t.ElemSize
		c.DeclaredCount = t.Count
		c.Size = types.SizeOf(t)

		if el := m["elems"]; el != nil {
			c.Elems = d.elems(el)
		}

		return c
	case types.Record:
		c.Kind = tree.RecordCons
		c.Size = t.Size
	case types.Class:
		c.Kind = tree.ClassCons
		c.Class = d.classes[t.Name]
		c.Size = t.Size
	default:
		d.failf(tn, "cannot construct %v", t)
	}

	fs := d.fieldsOf(c.Type, tn)
	c.FieldCount = len(fs)

	if fn := m["fields"]; fn != nil {
		if fn.Kind != yaml.MappingNode {
			d.failf(fn, "fields must be a mapping")
		}

		for i := 0; i < len(fn.Content); i += 2 {
			name := fn.Content[i]

			f := findField(fs, name.Value)
			if f == nil {
				d.failf(name, "%v has no field %q", c.Type, name.Value)
			}

			c.Fields = append(c.Fields, tree.FieldInit{Offset: f.Offset, Size: f.Size, Value: d.expr(fn.Content[i+1])})
		}
	}

	return c
}

func (d *decoder) elems(n *yaml.Node) []tree.ElemInit {
	if n.Kind != yaml.SequenceNode {
		d.failf(n, "elems must be a list")
	}

	var out []tree.ElemInit

	for _, e := range n.Content {
		if e.Kind == yaml.MappingNode {
			m := d.fields(e)
			if val, ok := m["value"]; ok {
				el := tree.ElemInit{Value: d.expr(val)}
				if cnt := m["count"]; cnt != nil {
					el.Count = d.expr(cnt)
				}

				out = append(out, el)
				continue
			}
		}

		out = append(out, tree.ElemInit{Value: d.expr(e)})
	}

	return out
}
