// Completion: 100% - Compare and branch fusion complete
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
)

// lastSet returns the condition of the most recent instruction when it is
// a setcc writing op
func (g *Generator) lastSet(op asm.Operand) (asm.Cond, bool) {
	last, ok := g.text.Last()
	if !ok {
		return 0, false
	}
	u, ok := last.(asm.Unary)
	if !ok {
		return 0, false
	}
	c, ok := u.Op.SetCond()
	if !ok || !asm.SameLocation(u.Operand, op) {
		return 0, false
	}
	return c, true
}

// testAndBranch jumps to label when the truth of op equals when. A
// comparison result that was just produced is branched on directly: a
// temporary's setcc is replaced by the jump, a setcc into a variable is
// kept and followed by the jump.
func (g *Generator) testAndBranch(op asm.Operand, label string, when bool) {
	if lit, ok := op.(asm.Literal); ok {
		if truth(lit) == when {
			g.emit(asm.Branch(asm.JMP, label))
		}
		return
	}
	if set, ok := g.lastSet(op); ok {
		c := set
		if !when {
			c = c.Negate()
		}
		if g.temp(op) {
			g.text.ReplaceLast(asm.Branch(asm.Jump(c), label))
			g.logf("fusion: set%s replaced by j%s %s", set.Suffix(), c.Suffix(), label)
		} else {
			g.emit(asm.Branch(asm.Jump(c), label))
		}
		g.release(op)
		return
	}
	g.test(op)
	g.release(op)
	c := asm.CondE
	if when {
		c = asm.CondNE
	}
	g.emit(asm.Branch(asm.Jump(c), label))
}

// fuseStore retargets the setcc that produced a temporary straight at a
// byte-wide destination. It reports whether it did.
func (g *Generator) fuseStore(dst, val asm.Operand) bool {
	if asm.SizeOfOperand(dst).Bytes() != 1 || !g.temp(val) {
		return false
	}
	c, ok := g.lastSet(val)
	if !ok {
		return false
	}
	g.text.ReplaceLast(asm.Unary{Op: asm.Set(c), Operand: dst})
	g.release(val)
	g.logf("fusion: set%s stored directly into %v", c.Suffix(), dst)
	return true
}
