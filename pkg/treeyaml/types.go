package treeyaml

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/kplc/pkg/types"
)

// typeParser reads type expressions:
//
//	int | char | bool | double | void
//	ptr to T
//	array [N] of T | array [*] of T
//	function (T, ...) returns T
//	Name (a record, class or interface)
//
// A lazy parser, used while computing sizes, does not resolve names behind
// a pointer, so self-referential types lay out without recursion.
type typeParser struct {
	d    *decoder
	n    *yaml.Node
	toks []string
	pos  int

	lazy  bool
	inPtr int
}

func (d *decoder) parseType(s string, n *yaml.Node) types.Type {
	return d.parseTypeMode(s, n, false)
}

func (d *decoder) parseTypeMode(s string, n *yaml.Node, lazy bool) types.Type {
	if s == "" {
		d.failf(n, "missing type")
	}

	p := &typeParser{d: d, n: n, toks: tokenizeType(s), lazy: lazy}

	t := p.parse()
	if p.pos != len(p.toks) {
		d.failf(n, "trailing %q in type %q", p.toks[p.pos], s)
	}

	return t
}

func tokenizeType(s string) []string {
	var toks []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() != 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch r {
		case ' ', '\t':
			flush()
		case '(', ')', '[', ']', ',':
			flush()
			toks = append(toks, string(r))
		default:
			cur.WriteRune(r)
		}
	}

	flush()

	return toks
}

func (p *typeParser) next() string {
	if p.pos == len(p.toks) {
		p.d.failf(p.n, "unexpected end of type")
	}

	t := p.toks[p.pos]
	p.pos++

	return t
}

func (p *typeParser) peek() string {
	if p.pos == len(p.toks) {
		return ""
	}

	return p.toks[p.pos]
}

func (p *typeParser) expect(tok string) {
	if got := p.next(); got != tok {
		p.d.failf(p.n, "expected %q in type, got %q", tok, got)
	}
}

func (p *typeParser) parse() types.Type {
	tok := p.next()

	switch tok {
	case "int":
		return types.IntType
	case "char":
		return types.CharType
	case "bool":
		return types.BoolType
	case "double":
		return types.DoubleType
	case "void":
		return types.VoidType
	case "typeOfNull":
		return types.NullType
	case "ptr":
		p.expect("to")

		p.inPtr++
		defer func() { p.inPtr-- }()

		return types.Ptr{Elem: p.parse()}
	case "array":
		return p.array()
	case "function":
		p.inPtr++
		defer func() { p.inPtr-- }()

		return p.function()
	}

	if p.lazy && p.inPtr != 0 {
		if !p.d.known(tok) {
			p.d.failf(p.n, "unknown type %q", tok)
		}

		return types.Interface{Name: tok}
	}

	return p.d.namedType(tok, p.n)
}

func (p *typeParser) array() types.Type {
	p.expect("[")

	count := types.Dynamic
	if c := p.next(); c != "*" {
		n, err := strconv.Atoi(c)
		if err != nil || n <= 0 {
			p.d.failf(p.n, "bad array count %q", c)
		}
		count = n
	}

	p.expect("]")
	p.expect("of")

	elem := p.parse()

	size := types.SizeOf(elem)
	if size <= 0 && !(p.lazy && p.inPtr != 0) {
		p.d.failf(p.n, "array of %v has no fixed element size", elem)
	}

	return types.Array{Elem: elem, Count: count, ElemSize: size}
}

func (p *typeParser) function() types.Type {
	var f types.Func

	p.expect("(")

	for p.peek() != ")" {
		f.Params = append(f.Params, p.parse())

		if p.peek() == "," {
			p.next()
		}
	}

	p.expect(")")

	f.Result = types.VoidType
	if p.peek() == "returns" {
		p.next()
		f.Result = p.parse()
	}

	return f
}
