// Completion: 95% - System V calling convention and call lowering complete
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
)

// CallingConvention describes how arguments and results cross a call
type CallingConvention interface {
	// IntegerArgReg returns the register for integer argument index,
	// or NoPhys when the argument goes on the stack
	IntegerArgReg(index int) asm.Phys
	// IntegerArgRegs returns the number of register arguments
	IntegerArgRegs() int
	IntegerReturnReg() asm.Phys
	// CalleeSavedRegs returns registers the callee must save and restore
	CalleeSavedRegs() []asm.Phys
	// StackAlignment is the required rsp alignment at a call
	StackAlignment() int
	// RedZone is the area below rsp a leaf function may use without adjusting rsp
	RedZone() int
}

// SystemVAMD64 implements the System V AMD64 calling convention (Linux)
type SystemVAMD64 struct{}

var sysvArgRegs = []asm.Phys{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}

func (cc *SystemVAMD64) IntegerArgReg(index int) asm.Phys {
	if index < len(sysvArgRegs) {
		return sysvArgRegs[index]
	}
	return asm.NoPhys // Overflow to stack
}

func (cc *SystemVAMD64) IntegerArgRegs() int {
	return len(sysvArgRegs)
}

func (cc *SystemVAMD64) IntegerReturnReg() asm.Phys {
	return asm.RAX
}

func (cc *SystemVAMD64) CalleeSavedRegs() []asm.Phys {
	return []asm.Phys{asm.RBX, asm.RBP, asm.R12, asm.R13, asm.R14, asm.R15}
}

func (cc *SystemVAMD64) StackAlignment() int {
	return 16
}

func (cc *SystemVAMD64) RedZone() int {
	return 128
}

// callSite is a call before its arguments are evaluated. recvOp is set when
// the receiver has already been produced, as for constructors.
type callSite struct {
	fn      *ast.Function
	recv    ast.Expression
	recvOp  asm.Operand
	args    []ast.Expression
	virtual bool
}

func (g *Generator) call(c *ast.Call) asm.Operand {
	return g.invoke(callSite{fn: c.Fn, recv: c.Receiver, args: c.Args, virtual: c.Virtual})
}

// invoke evaluates the arguments, then either expands the callee in place
// or emits a real call
func (g *Generator) invoke(cs callSite) asm.Operand {
	if !cs.virtual && g.shouldInline(cs.fn) {
		return g.expand(cs.fn, g.arguments(cs))
	}
	// a pass-through frame: the arguments and the call itself are not part
	// of the enclosing expansion's return protocol
	g.acts = append(g.acts, &activation{fn: cs.fn})
	defer g.popActivation()
	return g.emitCall(cs.fn, g.arguments(cs), cs.virtual)
}

// arguments evaluates the receiver and arguments left to right. Reference
// parameters get the address of their argument.
func (g *Generator) arguments(cs callSite) []asm.Operand {
	params := cs.fn.Args()
	exprs := cs.args
	var ops []asm.Operand
	if cs.fn.Receiver != nil {
		switch {
		case cs.recvOp != nil:
			ops = append(ops, cs.recvOp)
		case cs.recv != nil:
			ops = append(ops, g.expr(cs.recv))
		default:
			diag.Faultf("method %s called without a receiver", cs.fn.Signature())
		}
	}
	if len(exprs)+len(ops) != len(params) {
		diag.Faultf("%s takes %d arguments, got %d", cs.fn.Signature(), len(params), len(exprs)+len(ops))
	}
	for _, e := range exprs {
		p := params[len(ops)]
		if p.ByRef {
			ops = append(ops, g.address(e))
			continue
		}
		ops = append(ops, g.expr(e))
	}
	return ops
}

// emitCall lowers a call with evaluated arguments: stack arguments are
// pushed right to left, register arguments moved into place, the
// accumulator cleared and the call emitted
func (g *Generator) emitCall(fn *ast.Function, ops []asm.Operand, virtual bool) asm.Operand {
	params := fn.Args()
	nregs := min(len(ops), g.CC.IntegerArgRegs())
	stackOps := ops[nregs:]
	pad := len(stackOps) % 2
	if pad == 1 {
		g.emit(asm.Binary{Op: asm.SUB, Dst: asm.Fix(asm.RSP, asm.S64), Src: asm.Int(8)})
		g.stack.Sub(8)
	}
	for i := len(stackOps) - 1; i >= 0; i-- {
		g.pushArg(stackOps[i], params[nregs+i])
	}
	for i := 0; i < nregs; i++ {
		g.passInRegister(ops[i], params[i], g.CC.IntegerArgReg(i))
	}
	g.release(ops...)

	wasLeaf := g.frame.leaf
	g.ra.Reserve()
	var result asm.Operand
	if size := fn.Return.AsmSize(); size != asm.SizeNone {
		result = g.ra.CallAlloc(size)
	}
	target := fn.LinkName()
	g.stack.CheckCall(target)
	if virtual {
		r11 := asm.Fix(asm.R11, asm.S64)
		g.emit(
			asm.Binary{Op: asm.MOV, Dst: r11, Src: asm.At(asm.Fix(asm.RDI, asm.S64), 0, asm.S64)},
			asm.Unary{Op: asm.CALL, Operand: asm.At(r11, int32(8*fn.VIndex), asm.S64)},
		)
	} else {
		g.emit(asm.Branch(asm.CALL, target))
	}
	g.frame.leaf = false

	if n := len(stackOps) + pad; n > 0 {
		if wasLeaf {
			g.emit(asm.Binary{Op: asm.ADD, Dst: asm.Fix(asm.RSP, asm.S64), Src: asm.Int(int64(8 * n))})
			g.stack.Add(8 * n)
		} else {
			// reclaimed by the epilogue
			g.frame.leaked += 8 * n
		}
	}
	return result
}

// pushArg pushes one stack argument. push only takes 64-bit operands and
// sign-extended 32-bit immediates.
func (g *Generator) pushArg(op asm.Operand, p *ast.Variable) {
	if p.ByRef {
		ptr, ok := op.(asm.Pointer)
		if !ok {
			diag.Faultf("argument for ref parameter %s is not addressable", p.Name)
		}
		r := g.ra.NextRegister(asm.S64)
		g.emit(asm.Binary{Op: asm.LEA, Dst: r, Src: ptr.Resize(asm.SizeNone)})
		op = r
	}
	switch x := op.(type) {
	case asm.Literal:
		if !x.FitsImm32() {
			op = g.load(x, asm.S64, false)
		}
	case asm.Register:
		op = x.Resize(asm.S64)
	case asm.Pointer:
		if x.Size != asm.S64 {
			op = g.load(x, asm.S64, p.Type.Signed())
		}
	}
	g.emit(asm.Unary{Op: asm.PUSH, Operand: op})
	g.stack.Push(p.Name)
	g.release(op)
}

// passInRegister moves one argument into its argument register
func (g *Generator) passInRegister(op asm.Operand, p *ast.Variable, reg asm.Phys) {
	if p.ByRef {
		ptr, ok := op.(asm.Pointer)
		if !ok {
			diag.Faultf("argument for ref parameter %s is not addressable", p.Name)
		}
		g.emit(asm.Binary{Op: asm.LEA, Dst: asm.Fix(reg, asm.S64), Src: ptr.Resize(asm.SizeNone)})
		return
	}
	g.move(asm.Fix(reg, varSize(p)), op, p.Type.Signed(), lowFirst)
}

// address returns the memory operand an expression denotes, for by-reference
// arguments
func (g *Generator) address(e ast.Expression) asm.Pointer {
	op := g.lvalue(e)
	ptr, ok := op.(asm.Pointer)
	if !ok {
		diag.Faultf("%s is not addressable", e)
	}
	return ptr
}
