// Completion: 95% - Two-pass prologue and epilogue complete
package codegen

import (
	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
)

// frame is the bookkeeping for the function being generated. The prologue
// depends on what the body turned out to need, so it is inserted at start
// once the body is done.
type frame struct {
	fn        *ast.Function
	start     int    // stream index where the prologue goes
	leaf      bool   // no call emitted so far
	stackSize int    // bytes below rbp: locals, inlined locals and temporaries
	exit      string // label of the epilogue
	jumps     int    // jumps to exit still in the stream
	leaked    int    // stack argument bytes left for the epilogue to reclaim
}

var (
	rbp = asm.Fix(asm.RBP, asm.S64)
	rsp = asm.Fix(asm.RSP, asm.S64)
)

func align16(n int) int {
	return (n + 15) &^ 15
}

// function emits one procedure
func (g *Generator) function(fn *ast.Function) {
	g.ra.BeginFunction()
	g.stack.Reset()
	g.acts = g.acts[:0]
	g.loops = g.loops[:0]
	g.emit(asm.Label{Name: fn.LinkName(), Procedure: true})
	g.frame = &frame{
		fn:        fn,
		start:     g.text.Len(),
		leaf:      true,
		stackSize: fn.FrameSize,
		exit:      g.newLabel(),
	}
	g.logf("function %s: frame %d bytes", fn.LinkName(), fn.FrameSize)

	// register arguments are kept in their frame slots
	for i, v := range fn.Args() {
		reg := g.CC.IntegerArgReg(i)
		if reg == asm.NoPhys {
			break
		}
		size := varSize(v)
		g.emit(asm.Binary{Op: asm.MOV, Dst: asm.At(rbp, int32(v.Offset), size), Src: asm.Fix(reg, size)})
	}

	g.block(fn.Body)
	g.finish()
}

// jumpsTo reports whether the last instruction is an unconditional jump to label
func (g *Generator) jumpsTo(label string) bool {
	last, ok := g.text.Last()
	if !ok {
		return false
	}
	u, ok := last.(asm.Unary)
	if !ok || u.Op != asm.JMP {
		return false
	}
	target, ok := asm.Target(u)
	return ok && target == label
}

// endsInJump reports whether the last instruction is an unconditional jump
func (g *Generator) endsInJump() bool {
	last, ok := g.text.Last()
	if !ok {
		return false
	}
	u, ok := last.(asm.Unary)
	return ok && u.Op == asm.JMP
}

// finish emits the epilogue and inserts the prologue. The frame pointer is
// only set up when the function has locals, stack arguments or makes calls.
// A leaf function whose locals fit in the red zone does not move rsp.
func (g *Generator) finish() {
	f := g.frame
	if g.jumpsTo(f.exit) {
		g.text.RemoveLast()
		f.jumps--
	}
	if f.jumps > 0 {
		g.label(f.exit)
	}
	if depth := g.stack.Depth(); depth != f.leaked {
		diag.Faultf("%s leaves %d bytes on the stack, expected %d", f.fn.LinkName(), depth, f.leaked)
	}

	saved := g.ra.UsedCalleeSaved()
	n := len(saved)
	stackArgs := len(f.fn.Args()) > g.CC.IntegerArgRegs()
	hasFrame := f.stackSize > 0 || stackArgs || !f.leaf
	sub := 0
	if hasFrame {
		sub = align16(f.stackSize)
		if n%2 == 1 {
			sub += 8
		}
		if f.leaf && f.stackSize <= g.Options.RedZone && n == 0 {
			sub = 0
		}
	}
	g.logf("function %s: leaf=%v stack=%d saved=%v sub=%d pressure=%d",
		f.fn.LinkName(), f.leaf, f.stackSize, saved, sub, g.ra.MaxPressure())

	var prologue []asm.Instruction
	if hasFrame {
		prologue = append(prologue,
			asm.Unary{Op: asm.PUSH, Operand: rbp},
			asm.Binary{Op: asm.MOV, Dst: rbp, Src: rsp})
		if sub > 0 {
			prologue = append(prologue, asm.Binary{Op: asm.SUB, Dst: rsp, Src: asm.Int(int64(sub))})
		}
	}
	prologue = append(prologue, lo.Map(saved, func(p asm.Phys, _ int) asm.Instruction {
		return asm.Unary{Op: asm.PUSH, Operand: asm.Fix(p, asm.S64)}
	})...)

	if hasFrame && n > 0 {
		g.emit(asm.Binary{Op: asm.LEA, Dst: rsp, Src: asm.At(rbp, int32(-sub-8*n), asm.SizeNone)})
	}
	for i := n - 1; i >= 0; i-- {
		g.emit(asm.Unary{Op: asm.POP, Operand: asm.Fix(saved[i], asm.S64)})
	}
	if hasFrame {
		if sub > 0 || !f.leaf {
			g.emit(asm.Binary{Op: asm.MOV, Dst: rsp, Src: rbp})
		}
		g.emit(asm.Unary{Op: asm.POP, Operand: rbp})
	}
	g.emit(asm.Zero{Op: asm.RET})

	g.text.Insert(f.start, prologue...)
}

// stackTemp reserves a slot below the frame for a value that cannot live
// in a register
func (g *Generator) stackTemp(size asm.Size) asm.Pointer {
	g.frame.stackSize += 8
	return asm.At(rbp, int32(-g.frame.stackSize), size)
}

// dataSection emits string literals and vtables
func (g *Generator) dataSection() {
	var vtables []asm.Instruction
	for _, c := range g.prog.Classes {
		if !c.HasVTable() {
			continue
		}
		vtables = append(vtables, asm.Data{
			Label:     c.VTableLabel(),
			Directive: ".quad",
			Values:    lo.Map(c.Virtual, func(fn *ast.Function, _ int) string { return fn.LinkName() }),
		})
	}
	if g.data.Len() == 0 && len(vtables) == 0 {
		return
	}
	g.data.Insert(0, asm.Section{Name: ".data"})
	g.data.Append(vtables...)
}
