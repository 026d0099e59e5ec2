// Completion: 90% - Inline expansion complete, no cost model
package codegen

import (
	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
)

// activation is one entry of the inline stack. Non-inlined calls push a
// pass-through entry with inlining unset.
type activation struct {
	inlining bool
	fn       *ast.Function
	callee   asm.Operand // where returns store the result, nil until the first one
	exit     string      // shared exit label, empty until the first return
	jumps    int         // jumps to exit still in the stream

	bind   map[*ast.Variable]asm.Operand // parameters bound to caller operands
	locals map[*ast.Variable]int         // relocated frame offsets of callee locals
}

func (g *Generator) popActivation() {
	g.acts = g.acts[:len(g.acts)-1]
}

// inlining returns the innermost activation when it is an inline expansion
func (g *Generator) inlining() *activation {
	if len(g.acts) == 0 {
		return nil
	}
	if a := g.acts[len(g.acts)-1]; a.inlining {
		return a
	}
	return nil
}

// shouldInline decides whether a call to fn is expanded in place. Direct
// and mutual recursion stop at the first repeated function.
func (g *Generator) shouldInline(fn *ast.Function) bool {
	if !fn.Is(ast.Inline) || fn.Body == nil {
		return false
	}
	expanding := lo.Filter(g.acts, func(a *activation, _ int) bool { return a.inlining })
	if lo.ContainsBy(expanding, func(a *activation) bool { return a.fn == fn }) {
		g.logf("inline: %s is already being expanded, emitting a call", fn.LinkName())
		return false
	}
	if len(expanding) >= g.Options.InlineDepth {
		g.logf("inline: depth limit %d reached at %s", g.Options.InlineDepth, fn.LinkName())
		return false
	}
	return true
}

// passedByRef reports whether the body hands v to a by-reference parameter
func passedByRef(body ast.Node, v *ast.Variable) bool {
	found := false
	ast.Inspect(body, func(n ast.Node) bool {
		c, ok := n.(*ast.Call)
		if !ok {
			return !found
		}
		for i, a := range c.Args {
			if r, ok := a.(*ast.VarRef); ok && r.Var == v && i < len(c.Fn.Params) && c.Fn.Params[i].ByRef {
				found = true
			}
		}
		return !found
	})
	return found
}

// expand substitutes the body of fn at the call site. Parameters bind to
// the argument operands; a parameter the body writes gets a private copy,
// and so does a memory argument when fn also has reference parameters,
// which could alias it.
func (g *Generator) expand(fn *ast.Function, ops []asm.Operand) asm.Operand {
	g.reserveIfBusy()
	wasLocked := lo.Map(ops, func(op asm.Operand, _ int) bool { return g.ra.Locked(op) })
	locked := g.ra.LockLive()

	act := &activation{
		inlining: true,
		fn:       fn,
		bind:     make(map[*ast.Variable]asm.Operand),
		locals:   make(map[*ast.Variable]int),
	}
	hasRef := lo.ContainsBy(fn.Params, func(v *ast.Variable) bool { return v.ByRef })
	var copies []asm.Operand
	for i, v := range fn.Args() {
		op := ops[i]
		_, isPtr := op.(asm.Pointer)
		if !v.ByRef && (ast.Writes(fn.Body, v) || (hasRef && isPtr)) {
			size := varSize(v)
			var dst asm.Operand
			if passedByRef(fn.Body, v) {
				dst = g.stackTemp(size)
			} else {
				dst = g.stable(size)
			}
			g.move(dst, op, v.Type.Signed(), lowFirst)
			g.ra.Lock(dst)
			copies = append(copies, dst)
			op = dst
		}
		act.bind[v] = op
	}
	base := g.frame.stackSize
	for _, v := range fn.Locals {
		act.locals[v] = v.Offset - base
	}
	g.frame.stackSize += fn.FrameSize
	g.logf("inline: expanding %s at depth %d", fn.LinkName(), len(g.acts)+1)

	loops := g.loops
	g.loops = nil
	g.acts = append(g.acts, act)
	g.block(fn.Body)
	g.popActivation()
	g.loops = loops

	if act.exit != "" {
		if g.jumpsTo(act.exit) {
			g.text.RemoveLast()
			act.jumps--
			g.logf("inline: dropped the jump to %s before its label", act.exit)
		}
		if act.jumps > 0 {
			g.label(act.exit)
		}
	}

	for i, op := range ops {
		if !wasLocked[i] {
			g.ra.Free(op, true)
		}
	}
	for _, op := range copies {
		g.ra.Free(op, true)
	}
	for _, r := range locked {
		g.ra.Unlock(r)
	}

	if fn.Return.AsmSize() == asm.SizeNone {
		return nil
	}
	switch r := act.callee.(type) {
	case nil:
		g.report(diag.Backendf("inline function %s can end without returning a value", fn.Signature()))
		return asm.Int(0)
	case asm.Register:
		g.ra.Settle(r)
	}
	return act.callee
}

// inlineReturn stores the result in the expansion's destination and jumps
// to the shared exit label. The destination is picked at the first return
// so that a single-return body can leave its value where it already is.
func (g *Generator) inlineReturn(act *activation, r *ast.Return) {
	if r.Value != nil {
		val := g.expr(r.Value)
		size := act.fn.Return.AsmSize()
		switch {
		case act.callee != nil:
			g.store(act.callee, val, r.Value.Type().Signed(), lowFirst)
		case g.keepable(val, size):
			act.callee = val
			g.ra.Lock(val)
		default:
			act.callee = g.stable(size)
			g.ra.Lock(act.callee)
			g.store(act.callee, val, r.Value.Type().Signed(), lowFirst)
		}
	}
	if act.exit == "" {
		act.exit = g.newLabel()
	}
	g.emit(asm.Branch(asm.JMP, act.exit))
	act.jumps++
}

// keepable reports whether a returned temp can serve as the expansion's
// result as is. Slot 0 is excluded since a call on another path would
// evacuate it.
func (g *Generator) keepable(val asm.Operand, size asm.Size) bool {
	reg, ok := val.(asm.Register)
	return ok && g.temp(reg) && reg.Size == size && g.Program.Bindings.Current(reg.Handle) != asm.RAX
}
