// Package lower translates a resolved package tree into IR.
//
// Lowering is a single sequential pass: every routine body is walked once
// and instructions are appended to one list, never revisited. Expressions
// bottom out into storage locations through the triad value, into and
// addr (see expr.go).
package lower

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/raymyers/kplc/pkg/config"
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

type (
	// Lowerer holds all state of lowering one package.
	Lowerer struct {
		pkg  *tree.Package
		cfg  *config.Config
		code *ir.Code
		tr   tlog.Span

		labels   int
		varDescs int

		strings   []*storage.StringConst
		stringIdx map[string]*storage.StringConst
		doubles   []*storage.DoubleConst
		doubleIdx map[uint64]*storage.DoubleConst

		importedVars map[*storage.Var]bool
		imports      map[ir.Label]bool

		// current routine
		r        *tree.Routine
		frame    int
		outArgs  int
		snapshot *storage.Var
		loops    map[tree.NodeID]*loop
		tries    []*storage.Var
		line     int
	}

	// loop holds the jump targets of a loop or switch
	loop struct {
		brk, cont ir.Label
		tries     int
	}

	// Error is an internal inconsistency found while lowering. It aborts
	// the whole package.
	Error struct {
		Routine string
		Msg     string
		PC      loc.PC
	}
)

// New creates a Lowerer for pkg. A nil cfg means config.Default().
func New(pkg *tree.Package, cfg *config.Config) *Lowerer {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Lowerer{
		pkg:          pkg,
		cfg:          cfg,
		code:         &ir.Code{},
		stringIdx:    map[string]*storage.StringConst{},
		doubleIdx:    map[uint64]*storage.DoubleConst{},
		importedVars: map[*storage.Var]bool{},
		imports:      map[ir.Label]bool{},
	}
}

// LowerPackage lowers pkg into a single instruction list.
// No partial code is returned on error.
func LowerPackage(ctx context.Context, pkg *tree.Package, cfg *config.Config) (code *ir.Code, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower package", "name", pkg.Name)
	defer tr.Finish("err", &err)

	l := New(pkg, cfg)
	l.tr = tr

	defer func() {
		p := recover()
		if p == nil {
			return
		}

		le, ok := p.(*Error)
		if !ok {
			panic(p)
		}

		code = nil
		err = errors.Wrap(le, "lower package %v", pkg.Name)
	}()

	l.lowerPackage(ctx)

	return l.code, nil
}

func (e *Error) Error() string {
	if e.Routine == "" {
		return e.Msg
	}

	return e.Routine + ": " + e.Msg
}

// Location is the place in the lowering pass that detected the error.
func (e *Error) Location() string {
	_, file, line := e.PC.NameFileLine()

	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *Lowerer) fatalf(format string, args ...any) {
	panic(&Error{
		Routine: l.routineName(),
		Msg:     fmt.Sprintf(format, args...),
		PC:      loc.Caller(1),
	})
}

func (l *Lowerer) routineName() string {
	if l.r == nil {
		return ""
	}
	if l.r.Label != "" {
		return l.r.Label
	}

	return l.r.Name
}

func (l *Lowerer) emit(inst ir.Instruction) {
	l.code.Append(inst)
}

func (l *Lowerer) label(lbl ir.Label) {
	l.emit(ir.LabelDef{Label: lbl})
}

func (l *Lowerer) comment(format string, args ...any) {
	if !l.cfg.Comments {
		return
	}

	l.emit(ir.Comment{Text: fmt.Sprintf(format, args...)})
}

func (l *Lowerer) newLabel() ir.Label {
	l.labels++

	return ir.Label(fmt.Sprintf("_Label_%d", l.labels))
}

// temp allocates a fresh frame slot below everything allocated so far.
// Temporaries are never reused.
func (l *Lowerer) temp(size int) *storage.Var {
	if l.r == nil {
		l.fatalf("temporary outside of a routine")
	}
	if size <= 0 {
		l.fatalf("temporary of size %d", size)
	}

	align := types.WordSize
	switch {
	case size == 1:
		align = 1
	case size >= types.DoubleSize:
		align = types.DoubleSize
	}

	l.frame = types.AlignUp(l.frame+size, align)

	return &storage.Var{Class: storage.Local, Offset: -l.frame, Size: size}
}

// outgoing reserves the argument area needed by a call or throw
func (l *Lowerer) outgoing(size int) {
	if size > l.outArgs {
		l.outArgs = size
	}
}

func (l *Lowerer) stringConst(s string) *storage.StringConst {
	if c, ok := l.stringIdx[s]; ok {
		return c
	}

	c := &storage.StringConst{Value: s, Label: fmt.Sprintf("_StringConst_%d", len(l.strings)+1)}
	l.strings = append(l.strings, c)
	l.stringIdx[s] = c

	return c
}

func (l *Lowerer) doubleConst(v float64) *storage.DoubleConst {
	bits := math.Float64bits(v)
	if c, ok := l.doubleIdx[bits]; ok {
		return c
	}

	c := &storage.DoubleConst{Value: v, Label: fmt.Sprintf("_DoubleConst_%d", len(l.doubles)+1)}
	l.doubles = append(l.doubles, c)
	l.doubleIdx[bits] = c

	return c
}

func isScalar(size int) bool {
	return size == 1 || size == types.WordSize || size == types.DoubleSize
}
