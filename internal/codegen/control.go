// Completion: 95% - Statements and short-circuit branching complete
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
	"github.com/xyproto/x64c/internal/regalloc"
)

// loop holds the targets of break and continue
type loop struct {
	brk, cont string
}

// block generates statements. Temporaries never outlive a statement.
func (g *Generator) block(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Stmts {
		g.statement(s)
		g.ra.FreeAll(false)
	}
}

func (g *Generator) statement(s ast.Statement) {
	switch x := s.(type) {
	case *ast.Block:
		g.block(x)
	case *ast.ExprStmt:
		g.release(g.expr(x.X))
	case *ast.Assign:
		g.assign(x)
	case *ast.Return:
		g.ret(x)
	case *ast.If:
		g.ifStmt(x)
	case *ast.While:
		g.whileStmt(x)
	case *ast.For:
		g.forStmt(x)
	case *ast.Break:
		g.jumpOut(x, func(l loop) string { return l.brk })
	case *ast.Continue:
		g.jumpOut(x, func(l loop) string { return l.cont })
	default:
		diag.Faultf("unexpected statement %T", s)
	}
}

func (g *Generator) jumpOut(s ast.Statement, target func(loop) string) {
	if len(g.loops) == 0 {
		g.report(diag.Backendf("%s outside of a loop", s))
		return
	}
	g.emit(asm.Branch(asm.JMP, target(g.loops[len(g.loops)-1])))
}

// store writes a value to a variable or field
func (g *Generator) store(dst, val asm.Operand, signed bool, order chunkOrder) {
	if g.fuseStore(dst, val) {
		return
	}
	g.move(dst, val, signed, order)
	g.release(val)
}

func (g *Generator) assign(a *ast.Assign) {
	order := lowFirst
	if _, ok := a.Target.(*ast.FieldRef); ok {
		order = highFirst
	}
	val := g.expr(a.Value)
	dst := g.lvalue(a.Target)
	g.store(dst, val, a.Value.Type().Signed(), order)
	g.release(dst)
}

// ret stores the result in rax and jumps to the epilogue. Inside an inline
// expansion the result goes to the expansion's destination instead.
func (g *Generator) ret(r *ast.Return) {
	if act := g.inlining(); act != nil {
		g.inlineReturn(act, r)
		return
	}
	f := g.frame
	if r.Value != nil {
		val := g.expr(r.Value)
		size := f.fn.Return.AsmSize()
		if size == asm.SizeNone {
			g.report(diag.Backendf("%s returns no value", f.fn.Signature()))
			g.release(val)
		} else {
			g.store(asm.Fix(g.CC.IntegerReturnReg(), size), val, r.Value.Type().Signed(), lowFirst)
		}
	}
	g.emit(asm.Branch(asm.JMP, f.exit))
	f.jumps++
}

func (g *Generator) ifStmt(s *ast.If) {
	if lit, ok := s.Cond.(*ast.Lit); ok {
		if truth(lit.Value) {
			g.block(s.Then)
		} else if s.Else != nil {
			g.statement(s.Else)
		}
		return
	}
	elseLabel := g.newLabel()
	g.branch(s.Cond, elseLabel, false)
	g.ra.FreeAll(false)
	g.block(s.Then)
	if s.Else == nil {
		g.label(elseLabel)
		return
	}
	end := g.newLabel()
	if !g.endsInJump() {
		g.emit(asm.Branch(asm.JMP, end))
	}
	g.label(elseLabel)
	g.statement(s.Else)
	g.ra.FreeAll(false)
	g.label(end)
}

func (g *Generator) whileStmt(s *ast.While) {
	if lit, ok := s.Cond.(*ast.Lit); ok && !truth(lit.Value) {
		return
	}
	top, end := g.newLabel(), g.newLabel()
	g.label(top)
	g.branch(s.Cond, end, false)
	g.ra.FreeAll(false)
	g.loops = append(g.loops, loop{brk: end, cont: top})
	g.block(s.Body)
	g.loops = g.loops[:len(g.loops)-1]
	g.emit(asm.Branch(asm.JMP, top))
	g.label(end)
}

func (g *Generator) forStmt(s *ast.For) {
	if s.Init != nil {
		g.statement(s.Init)
		g.ra.FreeAll(false)
	}
	top, cont, end := g.newLabel(), g.newLabel(), g.newLabel()
	g.label(top)
	if s.Cond != nil {
		g.branch(s.Cond, end, false)
		g.ra.FreeAll(false)
	}
	g.loops = append(g.loops, loop{brk: end, cont: cont})
	g.block(s.Body)
	g.loops = g.loops[:len(g.loops)-1]
	g.label(cont)
	if s.Post != nil {
		g.statement(s.Post)
		g.ra.FreeAll(false)
	}
	g.emit(asm.Branch(asm.JMP, top))
	g.label(end)
}

// branch jumps to label when e evaluates to when. && and || are lowered
// to jumps without materializing a value, and a literal side decides the
// outcome at compile time.
func (g *Generator) branch(e ast.Expression, label string, when bool) {
	switch x := e.(type) {
	case *ast.Logical:
		and := x.Op == "&&"
		// the value that decides the whole expression on its own
		decisive := !and
		if l, ok := x.Left.(*ast.Lit); ok {
			if v := truth(l.Value); v == decisive {
				if v == when {
					g.emit(asm.Branch(asm.JMP, label))
				}
				return
			}
			g.branch(x.Right, label, when)
			return
		}
		if r, ok := x.Right.(*ast.Lit); ok {
			if v := truth(r.Value); v == decisive {
				// the left side still runs for its effects
				g.release(g.expr(x.Left))
				if v == when {
					g.emit(asm.Branch(asm.JMP, label))
				}
				return
			}
			g.branch(x.Left, label, when)
			return
		}
		if when == decisive {
			g.branch(x.Left, label, when)
			g.branch(x.Right, label, when)
			return
		}
		skip := g.newLabel()
		g.branch(x.Left, skip, !when)
		g.branch(x.Right, label, when)
		g.label(skip)
	case *ast.Unary:
		if x.Op == "!" {
			g.branch(x.X, label, !when)
			return
		}
		g.testAndBranch(g.expr(e), label, when)
	default:
		g.testAndBranch(g.expr(e), label, when)
	}
}

// logicalValue materializes && or || as 0 or 1 in a byte register
func (g *Generator) logicalValue(e *ast.Logical) asm.Operand {
	decisive := e.Op == "||"
	if l, ok := e.Left.(*ast.Lit); ok {
		if truth(l.Value) == decisive {
			return asm.Bool(decisive)
		}
		return g.expr(e.Right)
	}
	// values live across the branches below must not be moved on one path only
	g.reserveIfBusy()
	dst := g.stable(asm.S8)
	g.ra.Lock(dst)
	falseLabel, end := g.newLabel(), g.newLabel()
	g.branch(e, falseLabel, false)
	g.emit(
		asm.Binary{Op: asm.MOV, Dst: dst, Src: asm.Int(1)},
		asm.Branch(asm.JMP, end),
		asm.Label{Name: falseLabel},
		asm.Binary{Op: asm.MOV, Dst: dst, Src: asm.Int(0)},
		asm.Label{Name: end},
	)
	if r, ok := dst.(asm.Register); ok {
		g.ra.Settle(r)
	}
	return dst
}

// reserveIfBusy clears the accumulator ahead of code with branches. A
// value moved out of rax inside one branch would be looked for in the new
// register on the other path too.
func (g *Generator) reserveIfBusy() {
	if state, _, _ := g.ra.SlotState(0); state != regalloc.Free && g.ra.FreeCount() > 0 {
		g.ra.Reserve()
	}
}

// stable returns storage for a value that lives across branches: a
// callee-saved pool register, or a stack slot when none is free
func (g *Generator) stable(size asm.Size) asm.Operand {
	for i := 1; i < regalloc.NumSlots; i++ {
		if state, _, _ := g.ra.SlotState(i); state == regalloc.Free {
			return g.ra.NextRegister(size)
		}
	}
	g.logf("no free callee-saved register, using a stack slot")
	return g.stackTemp(size)
}
