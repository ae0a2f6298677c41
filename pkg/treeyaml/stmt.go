package treeyaml

import (
	"gopkg.in/yaml.v3"

	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// stmtKinds are the keys naming a statement. A statement mapping holds one
// of them plus its clauses and an optional line. Loops are matched before
// "do", which is also their body clause.
var stmtKinds = []string{
	"assign",
	"if",
	"while",
	"forc",
	"for",
	"do",
	"switch",
	"break",
	"continue",
	"return",
	"try",
	"throw",
	"call",
	"send",
	"free",
}

func (d *decoder) stmts(ns []yaml.Node) []tree.Stmt {
	out := make([]tree.Stmt, 0, len(ns))
	for i := range ns {
		out = append(out, d.stmt(&ns[i]))
	}

	return out
}

// block decodes an optional statement list
func (d *decoder) block(n *yaml.Node) []tree.Stmt {
	if n == nil || n.ShortTag() == "!!null" {
		return nil
	}

	if n.Kind != yaml.SequenceNode {
		d.failf(n, "expected a statement list")
	}

	out := make([]tree.Stmt, 0, len(n.Content))
	for _, c := range n.Content {
		out = append(out, d.stmt(c))
	}

	return out
}

func (d *decoder) stmt(n *yaml.Node) tree.Stmt {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "break":
			return &tree.Break{Target: d.jumpTarget(false, n)}
		case "continue":
			return &tree.Continue{Target: d.jumpTarget(true, n)}
		case "return":
			return d.ret(nil, tree.Pos{}, n)
		}

		d.failf(n, "unknown statement %q", n.Value)
	}

	m := d.fields(n)

	var pos tree.Pos
	if l := m["line"]; l != nil {
		pos.Line = int(d.intValue(l))
	}

	for _, k := range stmtKinds {
		if v, ok := m[k]; ok {
			return d.stmtKind(k, v, m, pos)
		}
	}

	d.failf(n, "unknown statement")

	return nil
}

func (d *decoder) stmtKind(kind string, v *yaml.Node, m map[string]*yaml.Node, pos tree.Pos) tree.Stmt {
	switch kind {
	case "assign":
		l, r := d.pair(v)
		return d.assign(d.expr(l), d.expr(r), pos, v)
	case "if":
		return &tree.If{Cond: d.expr(v), Then: d.block(m["then"]), Else: d.block(m["else"]), Pos: pos}
	case "while":
		s := &tree.While{Cond: d.expr(v), Pos: pos}

		s.ID = d.open(true)
		s.Body = d.block(m["do"])
		d.close()

		return s
	case "do":
		until := m["until"]
		if until == nil {
			d.failf(v, "do without until")
		}

		s := &tree.Do{Pos: pos}

		s.ID = d.open(true)
		s.Body = d.block(v)
		d.close()

		s.Until = d.expr(until)

		return s
	case "for":
		return d.forStmt(v, m, pos)
	case "forc":
		return d.forC(v, m, pos)
	case "switch":
		return d.switchStmt(v, m, pos)
	case "break":
		return &tree.Break{Target: d.jumpTarget(false, v), Pos: pos}
	case "continue":
		return &tree.Continue{Target: d.jumpTarget(true, v), Pos: pos}
	case "return":
		if v.ShortTag() == "!!null" {
			return d.ret(nil, pos, v)
		}

		return d.ret(d.expr(v), pos, v)
	case "try":
		return d.try(v, m, pos)
	case "throw":
		id := d.errorID(v)
		return &tree.Throw{Error: id, Args: d.args(m["args"], d.errorSig(id), v.Value), Pos: pos}
	case "call", "send":
		return &tree.CallStmt{Call: d.operator(kind, v), Pos: pos}
	case "free":
		return &tree.Free{Ptr: d.expr(v), Pos: pos}
	}

	d.failf(v, "unknown statement %q", kind)

	return nil
}

func (d *decoder) open(loop bool) tree.NodeID {
	d.nodes++
	d.targets = append(d.targets, target{id: d.nodes, loop: loop})

	return d.nodes
}

func (d *decoder) close() {
	d.targets = d.targets[:len(d.targets)-1]
}

// jumpTarget is the innermost enclosing loop, or loop or switch for break
func (d *decoder) jumpTarget(loop bool, n *yaml.Node) tree.NodeID {
	for i := len(d.targets) - 1; i >= 0; i-- {
		if !loop || d.targets[i].loop {
			return d.targets[i].id
		}
	}

	if loop {
		d.failf(n, "continue outside a loop")
	}

	d.failf(n, "break outside a loop or switch")

	return 0
}

func (d *decoder) ret(x tree.Expr, pos tree.Pos, n *yaml.Node) tree.Stmt {
	void := types.IsVoid(d.r.Sig.Result)

	switch {
	case x == nil && !void:
		d.failf(n, "%v must return %v", d.r.Name, d.r.Sig.Result)
	case x != nil && void:
		d.failf(n, "%v returns no value", d.r.Name)
	}

	return &tree.Return{Value: x, Pos: pos}
}

// forStmt is {for: var, from: start, to: stop, by: step, do: [...]}
func (d *decoder) forStmt(v *yaml.Node, m map[string]*yaml.Node, pos tree.Pos) tree.Stmt {
	from, to := m["from"], m["to"]
	if from == nil || to == nil {
		d.failf(v, "for needs from and to")
	}

	s := &tree.For{Var: d.expr(v), Start: d.expr(from), Stop: d.expr(to), Pos: pos}

	if b, ok := tree.TypeOf(s.Var).(types.Basic); !ok || b.Kind != types.Int {
		d.failf(v, "for variable must be an int")
	}

	if by := m["by"]; by != nil {
		s.Step = d.expr(by)
	}

	s.ID = d.open(true)
	s.Body = d.block(m["do"])
	d.close()

	return s
}

// forC is {forc: {init: [...], cond: c, incr: [...]}, do: [...]}
func (d *decoder) forC(v *yaml.Node, m map[string]*yaml.Node, pos tree.Pos) tree.Stmt {
	h := d.fields(v)

	s := &tree.ForC{Init: d.block(h["init"]), Pos: pos}

	if c := h["cond"]; c != nil {
		s.Cond = d.expr(c)
	}

	s.ID = d.open(true)
	s.Body = d.block(m["do"])
	s.Incr = d.block(h["incr"])
	d.close()

	return s
}

// switchStmt is {switch: sel, cases: [{value: v, do: [...]}], default: [...]}
func (d *decoder) switchStmt(v *yaml.Node, m map[string]*yaml.Node, pos tree.Pos) tree.Stmt {
	s := &tree.Switch{Selector: d.expr(v), Pos: pos}

	b, ok := tree.TypeOf(s.Selector).(types.Basic)
	if !ok || b.Kind != types.Int && b.Kind != types.Char {
		d.failf(v, "switch on %v", tree.TypeOf(s.Selector))
	}

	s.ID = d.open(false)
	defer d.close()

	if cs := m["cases"]; cs != nil {
		if cs.Kind != yaml.SequenceNode {
			d.failf(cs, "cases must be a list")
		}

		for _, cn := range cs.Content {
			c := d.fields(cn)

			val := c["value"]
			if val == nil {
				d.failf(cn, "case without value")
			}

			s.Cases = append(s.Cases, tree.Case{Value: d.caseValue(val), Body: d.block(c["do"])})
		}
	}

	if def, ok := m["default"]; ok {
		s.HasDefault = true
		s.Default = d.block(def)
	}

	return s
}

func (d *decoder) caseValue(n *yaml.Node) int32 {
	switch x := d.expr(n).(type) {
	case tree.IntLit:
		return x.Value
	case tree.CharLit:
		return int32(x.Value)
	}

	d.failf(n, "case value must be an int or char literal")

	return 0
}

// try is {try: [...], catch: [{error: E, params: [...], do: [...]}]}.
// Catch parameters become locals of the routine, visible in the handler.
func (d *decoder) try(v *yaml.Node, m map[string]*yaml.Node, pos tree.Pos) tree.Stmt {
	s := &tree.Try{Body: d.block(v), Pos: pos}

	cs := m["catch"]
	if cs == nil || cs.Kind != yaml.SequenceNode {
		d.failf(v, "try needs a catch list")
	}

	for _, cn := range cs.Content {
		s.Catches = append(s.Catches, d.catch(cn))
	}

	return s
}

func (d *decoder) catch(n *yaml.Node) tree.Catch {
	m := d.fields(n)

	en := m["error"]
	if en == nil {
		d.failf(n, "catch without error")
	}

	c := tree.Catch{Error: d.errorID(en)}

	if l := m["line"]; l != nil {
		c.Line = int(d.intValue(l))
	}

	d.scopes = append(d.scopes, map[string]*storage.Var{})
	defer func() { d.scopes = d.scopes[:len(d.scopes)-1] }()

	if ps := m["params"]; ps != nil {
		var docs []varDoc
		if err := ps.Decode(&docs); err != nil {
			d.failf(ps, "bad catch params: %v", err)
		}

		for _, p := range docs {
			c.Params = append(c.Params, d.local(p.Name, d.parseType(p.Type, ps), ps))
		}
	}

	if want := len(d.pkg.Errors[c.Error].Params); len(c.Params) != want {
		d.failf(n, "catch of %v takes %d parameters, got %d", en.Value, want, len(c.Params))
	}

	c.Body = d.block(m["do"])

	return c
}

func (d *decoder) errorID(n *yaml.Node) tree.ErrorID {
	id, ok := d.errs[n.Value]
	if !ok {
		d.failf(n, "unknown error %q", n.Value)
	}

	return id
}

func (d *decoder) errorSig(id tree.ErrorID) tree.Signature {
	e := d.pkg.Errors[id]

	return tree.Signature{Params: e.Params, Result: types.VoidType, ParamSize: e.ParamSize}
}

// exact reports whether the class of the object e denotes is known
// statically: anything but an object reached through a pointer.
func exact(e tree.Expr) bool {
	s, ok := e.(*tree.Send)

	return !ok || s.Prim != tree.Deref
}

// assign picks the dynamic check an assignment of objects or arrays needs
func (d *decoder) assign(dest, src tree.Expr, pos tree.Pos, n *yaml.Node) tree.Stmt {
	a := &tree.Assign{Dest: dest, Src: src, Class: tree.None, Pos: pos}

	if _, ok := src.(*tree.Constructor); ok {
		return a
	}

	dt, st := tree.TypeOf(dest), tree.TypeOf(src)

	switch dt := dt.(type) {
	case types.Class, types.Interface:
		if !types.IsObject(st) {
			d.failf(n, "assign %v to %v", st, dt)
		}

		dc, dok := dt.(types.Class)
		sc, sok := st.(types.Class)
		dok = dok && exact(dest)
		sok = sok && exact(src)

		switch {
		case dok && sok:
			if dc.Name != sc.Name {
				d.failf(n, "assign %v to %v", sc, dc)
			}
		case dok:
			a.Check = tree.CheckObjectSrc
			a.Class = d.classes[dc.Name]
		case sok:
			a.Check = tree.CheckObjectDest
			a.Class = d.classes[sc.Name]
		default:
			a.Check = tree.CheckObjectObject
		}
	case types.Array:
		sa, ok := st.(types.Array)
		if !ok {
			d.failf(n, "assign %v to %v", st, dt)
		}

		a.ElemSize = dt.ElemSize

		switch {
		case dt.Count != types.Dynamic && sa.Count != types.Dynamic:
			if dt.Count != sa.Count {
				d.failf(n, "assign %v to %v", sa, dt)
			}

			a.Check = tree.CheckFixedFixed
			a.Count = dt.Count
		case dt.Count != types.Dynamic:
			a.Check = tree.CheckFixedDynamic
			a.Count = dt.Count
		case sa.Count != types.Dynamic:
			a.Check = tree.CheckDynamicFixed
			a.Count = sa.Count
		default:
			a.Check = tree.CheckDynamicDynamic
		}
	}

	return a
}
