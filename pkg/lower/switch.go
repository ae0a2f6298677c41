package lower

import (
	"math"
	"sort"

	"github.com/raymyers/kplc/pkg/config"
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// hashPrimes are the sizes a switch hash table may take
var hashPrimes = []int{17, 37, 73, 149, 307, 613, 1229, 2459, 4919, 9839, 19681, 30011}

// switchStmt lowers a switch with one of three dispatch strategies: a
// compare chain, a bounds checked jump table, or an open addressing hash
// table. Case bodies follow the dispatch code in written order, the
// default body last.
func (l *Lowerer) switchStmt(s *tree.Switch) {
	seen := map[int32]bool{}
	for _, c := range s.Cases {
		if seen[c.Value] {
			l.fatalf("duplicate case value %d", c.Value)
		}
		seen[c.Value] = true
	}

	sel := l.selector(s.Selector)

	bodies := make([]ir.Label, len(s.Cases))
	for i := range bodies {
		bodies[i] = l.newLabel()
	}

	def := l.newLabel()
	exit := l.newLabel()

	st := l.strategy(s.Cases)

	if l.tr.If("switch") {
		l.tr.Printw("switch strategy", "routine", l.routineName(), "cases", len(s.Cases), "strategy", st)
	}

	switch st {
	case config.Linear:
		l.switchLinear(sel, s.Cases, bodies, def)
	case config.Table:
		l.switchTable(sel, s.Cases, bodies, def)
	case config.Hash:
		l.switchHash(sel, s.Cases, bodies, def)
	}

	l.loops[s.ID] = &loop{brk: exit, tries: len(l.tries)}

	for i, c := range s.Cases {
		l.label(bodies[i])
		l.stmts(c.Body)
	}

	if s.HasDefault {
		l.label(def)
		l.stmts(s.Default)
	} else {
		l.emit(ir.Goto{Target: exit})
		l.label(def)
		l.emit(ir.RuntimeError{Handler: ir.ErrNoDefaultCase})
	}

	delete(l.loops, s.ID)

	l.label(exit)
}

// selector evaluates the switch selector once as a word
func (l *Lowerer) selector(e tree.Expr) storage.Operand {
	if tree.SizeOf(e) == 1 {
		t := l.temp(types.WordSize)
		l.emit(ir.CharToInt{Dest: t, Src: l.value(e, 1)})
		return t
	}

	return l.once(e)
}

// strategy picks the dispatch code for cases
func (l *Lowerer) strategy(cases []tree.Case) config.Strategy {
	cfg := l.cfg.Switch
	n := len(cases)

	if n == 0 {
		return config.Linear
	}

	lo, hi := caseBounds(cases)
	span := int64(hi) - int64(lo) + 1

	switch cfg.Strategy {
	case config.Linear, config.Hash:
		return cfg.Strategy
	case config.Table:
		if span > int64(cfg.HashCapacity) {
			l.fatalf("jump table of %d entries", span)
		}
		return config.Table
	}

	if n <= cfg.LinearMax {
		return config.Linear
	}

	density := float64(n) / float64(span)

	if (density > cfg.DensityMin || span <= int64(cfg.RangeMax)) && lo >= cfg.ImmMin && hi <= cfg.ImmMax {
		return config.Table
	}

	return config.Hash
}

func caseBounds(cases []tree.Case) (lo, hi int32) {
	lo, hi = math.MaxInt32, math.MinInt32

	for _, c := range cases {
		lo = min(lo, c.Value)
		hi = max(hi, c.Value)
	}

	return lo, hi
}

func (l *Lowerer) switchLinear(sel storage.Operand, cases []tree.Case, bodies []ir.Label, def ir.Label) {
	for i, c := range cases {
		l.emit(ir.IntCmpGoto{Cond: ir.Eq, L: sel, R: storage.IntConst{Value: c.Value}, Size: types.WordSize, Target: bodies[i]})
	}

	l.emit(ir.Goto{Target: def})
}

// switchTable emits the jump and then the table itself, one label per
// value in [lo, hi]. The table is never reached by fall through.
func (l *Lowerer) switchTable(sel storage.Operand, cases []tree.Case, bodies []ir.Label, def ir.Label) {
	lo, hi := caseBounds(cases)

	byValue := make(map[int32]ir.Label, len(cases))
	for i, c := range cases {
		byValue[c.Value] = bodies[i]
	}

	table := l.newLabel()

	l.emit(ir.SwitchTable{Sel: sel, Lo: lo, Hi: hi, Table: table, Default: def})
	l.label(table)

	for v := int64(lo); v <= int64(hi); v++ {
		target, ok := byValue[int32(v)]
		if !ok {
			target = def
		}

		l.emit(ir.WordLabel{Label: target})
	}
}

// switchHash emits the probe code and a table of (value, label) pairs
// placed by ir.HashSlot with linear probing. Empty entries are zero.
func (l *Lowerer) switchHash(sel storage.Operand, cases []tree.Case, bodies []ir.Label, def ir.Label) {
	size := l.hashSize(len(cases))
	slots := hashSlots(cases, size)

	table := l.newLabel()

	l.emit(ir.SwitchHash{
		Sel:     sel,
		Table:   table,
		Size:    size,
		Default: def,
		NonNeg:  l.newLabel(),
		Probe:   l.newLabel(),
		Found:   l.newLabel(),
	})
	l.label(table)

	for _, i := range slots {
		if i < 0 {
			l.emit(ir.Word{Value: 0})
			l.emit(ir.Word{Value: 0})
			continue
		}

		l.emit(ir.Word{Value: cases[i].Value})
		l.emit(ir.WordLabel{Label: bodies[i]})
	}
}

// hashSize is the smallest table size with a load factor of at most one half
func (l *Lowerer) hashSize(n int) int {
	limit := l.cfg.Switch.HashCapacity

	i := sort.SearchInts(hashPrimes, 2*n)
	if i == len(hashPrimes) || hashPrimes[i] > limit {
		l.fatalf("switch with %d cases exceeds the hash table capacity %d", n, limit)
	}

	return hashPrimes[i]
}

// hashSlots places every case, returning the case index per slot or -1
func hashSlots(cases []tree.Case, size int) []int {
	slots := make([]int, size)
	for i := range slots {
		slots[i] = -1
	}

	for i, c := range cases {
		h := ir.HashSlot(c.Value, size)
		for slots[h] >= 0 {
			h = (h + 1) % size
		}

		slots[h] = i
	}

	return slots
}
