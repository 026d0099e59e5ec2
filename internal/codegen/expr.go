// Completion: 95% - Expression lowering complete, integers only
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
)

// expr lowers an expression and returns where its value is: a literal,
// a register or a memory operand. Nothing is emitted for literals and
// plain variable reads.
func (g *Generator) expr(e ast.Expression) asm.Operand {
	switch x := e.(type) {
	case *ast.Lit:
		return g.literal(x)
	case *ast.VarRef:
		return g.variable(x.Var)
	case *ast.FieldRef:
		return g.field(x)
	case *ast.Binary:
		return g.binary(x)
	case *ast.Unary:
		return g.unary(x)
	case *ast.Logical:
		return g.logicalValue(x)
	case *ast.Call:
		return g.call(x)
	case *ast.New:
		return g.newObject(x)
	case *ast.Asm:
		return g.asmBlock(x)
	}
	diag.Faultf("unexpected expression %T", e)
	return nil
}

// variable returns the operand a variable denotes. Inside an inline
// expansion parameters resolve to the caller's operands and locals to
// their relocated slots. A by-reference variable is read through its
// stored address.
func (g *Generator) variable(v *ast.Variable) asm.Operand {
	disp := v.Offset
	for i := len(g.acts) - 1; i >= 0; i-- {
		a := g.acts[i]
		if op, ok := a.bind[v]; ok {
			return op
		}
		if off, ok := a.locals[v]; ok {
			disp = off
			break
		}
	}
	if v.ByRef {
		ptr := g.ra.NextRegister(asm.S64)
		g.emit(asm.Binary{Op: asm.MOV, Dst: ptr, Src: asm.At(rbp, int32(disp), asm.S64)})
		return asm.At(ptr, 0, v.Type.AsmSize())
	}
	return asm.At(rbp, int32(disp), v.Type.AsmSize())
}

// base returns a register holding an object reference
func (g *Generator) base(op asm.Operand) asm.Register {
	if r, ok := op.(asm.Register); ok {
		return r.Resize(asm.S64)
	}
	return g.load(op, asm.S64, false)
}

func (g *Generator) field(f *ast.FieldRef) asm.Operand {
	obj := g.base(g.expr(f.Object))
	return asm.At(obj, int32(f.Field.Offset), f.Field.Type.AsmSize())
}

// lvalue returns the storage an assignment target denotes
func (g *Generator) lvalue(e ast.Expression) asm.Operand {
	switch x := e.(type) {
	case *ast.VarRef:
		return g.variable(x.Var)
	case *ast.FieldRef:
		return g.field(x)
	}
	diag.Faultf("%s cannot be assigned to", e)
	return nil
}

func (g *Generator) binary(b *ast.Binary) asm.Operand {
	if b.Overload != nil {
		return g.invoke(callSite{fn: b.Overload, args: []ast.Expression{b.Left, b.Right}})
	}
	if b.IsComparison() {
		return g.compare(b)
	}
	return g.arith(b)
}

var arithOps = map[string]asm.Op{
	"+": asm.ADD,
	"-": asm.SUB,
	"*": asm.IMUL,
	"&": asm.AND,
	"|": asm.OR,
	"^": asm.XOR,
}

func commutative(op string) bool {
	return op != "-"
}

func (g *Generator) arith(b *ast.Binary) asm.Operand {
	size := b.Typ.AsmSize()
	signed := b.Typ.Signed()
	l := g.expr(b.Left)
	r := g.expr(b.Right)
	if ll, ok := l.(asm.Literal); ok {
		if rl, ok := r.(asm.Literal); ok {
			if v, ok := g.fold(b.Op, ll, rl, size, signed); ok {
				return v
			}
		}
	}
	switch b.Op {
	case "/", "%":
		return g.divide(l, r, size, signed, b.Op == "%")
	case "<<", ">>":
		return g.shift(b.Op, l, r, size, signed)
	}
	op, ok := arithOps[b.Op]
	if !ok {
		diag.Faultf("unknown operator %s", b.Op)
	}
	if _, lit := l.(asm.Literal); (lit || !g.temp(l)) && g.temp(r) && commutative(b.Op) {
		l, r = r, l
	}
	dst := g.load(l, size, signed)
	src := g.operandFor(r, size, signed)
	if op == asm.IMUL && size == asm.S8 {
		// imul has no 8-bit two-operand form
		wide := g.load(src, asm.S32, signed)
		g.widen(dst.Resize(asm.S32), dst, signed)
		g.emit(asm.Binary{Op: op, Dst: dst.Resize(asm.S32), Src: wide})
		g.release(wide)
		return dst
	}
	g.emit(asm.Binary{Op: op, Dst: dst, Src: src})
	g.release(src)
	return dst
}

// divide emits a 64-bit signed or unsigned division. The dividend goes in
// rax, the divisor in rcx unless it is already a 64-bit memory operand.
func (g *Generator) divide(l, r asm.Operand, size asm.Size, signed, mod bool) asm.Operand {
	if lit, ok := r.(asm.Literal); ok {
		if v, err := lit.Bits(); err == nil && v == 0 {
			g.report(diag.Backendf("division by zero"))
			g.release(l)
			return asm.Int(0)
		}
	}
	g.ra.Reserve()
	var divisor asm.Operand = asm.Fix(asm.RCX, asm.S64)
	if p, ok := r.(asm.Pointer); ok && p.Size == asm.S64 {
		divisor = p
	} else {
		g.move(divisor, r, signed, lowFirst)
	}
	g.move(asm.Fix(asm.RAX, asm.S64), l, signed, lowFirst)
	res := g.ra.CallAlloc(asm.S64)
	if signed {
		g.emit(asm.Zero{Op: asm.CQO}, asm.Unary{Op: asm.IDIV, Operand: divisor})
	} else {
		edx := asm.Fix(asm.RDX, asm.S32)
		g.emit(asm.Binary{Op: asm.XOR, Dst: edx, Src: edx}, asm.Unary{Op: asm.DIV, Operand: divisor})
	}
	g.release(l, r)
	if mod {
		g.emit(asm.Binary{Op: asm.MOV, Dst: res, Src: asm.Fix(asm.RDX, asm.S64)})
	}
	return res.Resize(size)
}

// shift emits shl, sar or shr. A variable count goes through cl.
func (g *Generator) shift(op string, l, r asm.Operand, size asm.Size, signed bool) asm.Operand {
	ins := asm.SHL
	if op == ">>" {
		ins = asm.SHR
		if signed {
			ins = asm.SAR
		}
	}
	dst := g.load(l, size, signed)
	if lit, ok := r.(asm.Literal); ok {
		if v, err := lit.Bits(); err != nil || v > 63 {
			g.report(diag.Backendf("shift count %s out of range", lit))
			return dst
		}
		g.emit(asm.Binary{Op: ins, Dst: dst, Src: lit})
		return dst
	}
	g.move(asm.Fix(asm.RCX, asm.S64), r, false, lowFirst)
	g.release(r)
	g.emit(asm.Binary{Op: ins, Dst: dst, Src: asm.Fix(asm.RCX, asm.S8)})
	return dst
}

func (g *Generator) unary(u *ast.Unary) asm.Operand {
	size := u.Typ.AsmSize()
	signed := u.Typ.Signed()
	x := g.expr(u.X)
	if lit, ok := x.(asm.Literal); ok {
		if v, ok := g.foldUnary(u.Op, lit, size, signed); ok {
			return v
		}
	}
	switch u.Op {
	case "-", "~":
		op := asm.NEG
		if u.Op == "~" {
			op = asm.NOT
		}
		dst := g.load(x, size, signed)
		g.emit(asm.Unary{Op: op, Operand: dst})
		return dst
	case "!":
		// a fresh comparison result is inverted in place
		if c, ok := g.lastSet(x); ok && g.temp(x) {
			g.text.ReplaceLast(asm.Unary{Op: asm.Set(c.Negate()), Operand: x})
			return x
		}
		g.test(x)
		g.release(x)
		dst := g.ra.NextRegister(asm.S8)
		g.emit(asm.Unary{Op: asm.Set(asm.CondE), Operand: dst})
		return dst
	}
	diag.Faultf("unknown unary operator %s", u.Op)
	return nil
}

// test sets the flags from a value: test for registers, cmp with 0 for memory
func (g *Generator) test(op asm.Operand) {
	switch x := op.(type) {
	case asm.Register:
		g.emit(asm.Binary{Op: asm.TEST, Dst: x, Src: x})
	case asm.Pointer:
		g.emit(asm.Binary{Op: asm.CMP, Dst: x, Src: asm.Int(0)})
	default:
		diag.Faultf("cannot test %v", op)
	}
}

// condition maps a comparison operator to a condition code
func condition(op string, signed bool) asm.Cond {
	switch op {
	case "==":
		return asm.CondE
	case "!=":
		return asm.CondNE
	case "<":
		if signed {
			return asm.CondL
		}
		return asm.CondB
	case "<=":
		if signed {
			return asm.CondLE
		}
		return asm.CondBE
	case ">":
		if signed {
			return asm.CondG
		}
		return asm.CondA
	case ">=":
		if signed {
			return asm.CondGE
		}
		return asm.CondAE
	}
	diag.Faultf("unknown comparison %s", op)
	return asm.CondE
}

// compare emits cmp and a setcc into a fresh byte register
func (g *Generator) compare(b *ast.Binary) asm.Operand {
	signed := b.Left.Type().Signed()
	size := b.Left.Type().AsmSize()
	if rs := b.Right.Type().AsmSize(); rs.Bytes() > size.Bytes() {
		size = rs
	}
	l := g.expr(b.Left)
	r := g.expr(b.Right)
	if ll, ok := l.(asm.Literal); ok {
		if rl, ok := r.(asm.Literal); ok {
			if v, ok := g.fold(b.Op, ll, rl, size, signed); ok {
				return v
			}
		}
	}
	cond := condition(b.Op, signed)
	if _, ok := l.(asm.Literal); ok {
		l, r = r, l
		cond = cond.Swap()
	}
	lhs := l
	if asm.SizeOfOperand(l) != size {
		lhs = g.load(l, size, signed)
	}
	var rhs asm.Operand
	if _, ok := lhs.(asm.Pointer); ok {
		if _, ok := r.(asm.Pointer); ok {
			rhs = g.load(r, size, signed)
		}
	}
	if rhs == nil {
		rhs = g.operandFor(r, size, signed)
	}
	g.emit(asm.Binary{Op: asm.CMP, Dst: lhs, Src: rhs})
	g.release(lhs, rhs)
	dst := g.ra.NextRegister(asm.S8)
	g.emit(asm.Unary{Op: asm.Set(cond), Operand: dst})
	return dst
}
