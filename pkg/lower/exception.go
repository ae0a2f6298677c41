package lower

import (
	"github.com/raymyers/kplc/pkg/ir"
	"github.com/raymyers/kplc/pkg/storage"
	"github.com/raymyers/kplc/pkg/tree"
	"github.com/raymyers/kplc/pkg/types"
)

// try snapshots the catch stack, pushes one record per catch clause and
// runs the body. Every way out of the try, normal completion, a catch,
// break, continue or return, restores a snapshot first.
func (l *Lowerer) try(s *tree.Try) {
	snap := l.temp(types.WordSize)
	l.emit(ir.SaveCatchStack{Dest: snap})

	handlers := make([]ir.Label, len(s.Catches))
	for i, c := range s.Catches {
		handlers[i] = l.newLabel()
		l.emit(ir.PushCatch{Error: l.errorRef(c.Error), Catch: handlers[i], Line: s.Line})
	}

	exit := l.newLabel()

	l.tries = append(l.tries, snap)
	l.stmts(s.Body)
	l.tries = l.tries[:len(l.tries)-1]

	l.emit(ir.RestoreCatchStack{Src: snap})
	l.emit(ir.Goto{Target: exit})

	for i, c := range s.Catches {
		decl := l.pkg.Error(c.Error)
		if len(c.Params) != len(decl.Params) {
			l.fatalf("catch of %v has %d parameters, error has %d", decl.Name, len(c.Params), len(decl.Params))
		}

		l.label(handlers[i])

		for j, p := range c.Params {
			l.emit(ir.CatchParam{
				ThrowOffset: decl.Params[j].Offset - storage.FirstParamOffset,
				Dest:        p,
				Size:        p.Size,
			})
		}

		l.emit(ir.ResetStack{})
		l.emit(ir.RestoreCatchStack{Src: snap})

		if c.Line > 0 {
			l.line = c.Line
			l.emit(ir.SourceLine{Line: c.Line})
		} else {
			l.line = 0
		}

		l.stmts(c.Body)
		l.emit(ir.Goto{Target: exit})
	}

	l.label(exit)
}

// throw stores the arguments where the error's parameters live and hands
// over to the runtime, which does not return.
func (l *Lowerer) throw(s *tree.Throw) {
	decl := l.pkg.Error(s.Error)
	args := l.args(decl.Params, s.Args)

	l.outgoing(decl.ParamSize)
	l.prepare(decl.Params, args)
	l.emit(ir.Throw{Error: l.errorRef(s.Error)})
}
