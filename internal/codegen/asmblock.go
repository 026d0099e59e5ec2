// Completion: 90% - Inline assembly replay complete, integer registers only
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
	"github.com/xyproto/x64c/internal/inlineasm"
	"github.com/xyproto/x64c/internal/regalloc"
)

// replay is the state of one inline assembly block being emitted
type replay struct {
	g        *Generator
	e        *ast.Asm
	names    map[string]asm.Register   // alloc'd names currently bound
	implicit map[asm.Phys]asm.Register // pool registers named without alloc
	temps    []asm.Register            // released after the current instruction
	back     []writeBack
}

// writeBack copies a materialized variable back after a writing instruction
type writeBack struct {
	tmp asm.Register
	dst asm.Operand
	v   *ast.Variable
}

// asmBlock emits an inline assembly block. Named registers are bound to
// pool slots, $variables are turned into operands the instruction accepts
// and the block's value is left in a pool register.
func (g *Generator) asmBlock(e *ast.Asm) asm.Operand {
	r := &replay{
		g:        g,
		e:        e,
		names:    make(map[string]asm.Register),
		implicit: make(map[asm.Phys]asm.Register),
	}
	retName, named := e.Block.ReturnedName()
	var result asm.Operand
	for _, s := range e.Block.Stmts {
		switch x := s.(type) {
		case *inlineasm.Alloc:
			r.alloc(x)
		case *inlineasm.Free:
			reg, ok := r.names[x.Name]
			if !ok {
				continue
			}
			delete(r.names, x.Name)
			if named && x.Name == retName {
				g.ra.Settle(reg)
				continue
			}
			g.ra.Free(reg, true)
		case *inlineasm.Instr:
			ops := r.instr(x)
			if x.Return && len(ops) > 0 {
				result = ops[0]
			}
		case *inlineasm.Value:
			result = r.operand(x.Operand, inlineasm.OperandSpec{Mode: inlineasm.Variable, Accept: inlineasm.KindReg | inlineasm.KindMem | inlineasm.KindImm})
		}
	}
	return r.finish(result)
}

func (r *replay) alloc(a *inlineasm.Alloc) {
	g := r.g
	if a.Phys == asm.NoPhys {
		return // bound at first use
	}
	if slot, ok := regalloc.SlotIndex(a.Phys); ok {
		reg := g.ra.Claim(slot, a.Size)
		g.ra.Lock(reg)
		r.names[a.Name] = reg
		g.logf("asm %s: %s claims %s", r.e.Block.Name, a.Name, a.Phys)
		return
	}
	// Registers outside the pool are not tracked by the allocator. Nothing
	// else is live in them while a block runs: parameters are spilled at
	// entry, argument registers are loaded only after every argument has
	// been evaluated, and finish copies a returned value into the pool.
	r.names[a.Name] = asm.Fix(a.Phys, a.Size)
}

// register resolves a register reference
func (r *replay) register(ref *inlineasm.RegRef) asm.Register {
	g := r.g
	if ref.Named {
		reg, ok := r.names[ref.Name]
		if !ok {
			size := asm.S64
			if decl, ok := r.e.Block.Decl(ref.Name); ok {
				size = decl.Size
			}
			reg = g.ra.NextRegister(size)
			g.ra.Lock(reg)
			r.names[ref.Name] = reg
		}
		if ref.Size != asm.SizeNone {
			return reg.Resize(ref.Size)
		}
		return reg
	}
	slot, ok := regalloc.SlotIndex(ref.Phys)
	if !ok {
		return asm.Fix(ref.Phys, ref.Size)
	}
	reg, ok := r.implicit[ref.Phys]
	if !ok {
		reg = g.ra.Claim(slot, asm.S64)
		g.ra.Lock(reg)
		r.implicit[ref.Phys] = reg
	}
	return reg.Resize(ref.Size)
}

// variable returns the operand of a $name, or reports it
func (r *replay) variable(ref *inlineasm.VarRef) (asm.Operand, *ast.Variable) {
	v, ok := r.e.Vars[ref.Name]
	if !ok {
		r.g.report(diag.Backendf("asm %s: unknown variable $%s at %d:%d", r.e.Block.Name, ref.Name, ref.Line, ref.Column))
		return asm.Int(0), nil
	}
	return r.g.variable(v), v
}

func kindOf(op asm.Operand) inlineasm.Kinds {
	switch op.(type) {
	case asm.Register:
		return inlineasm.KindReg
	case asm.Pointer:
		return inlineasm.KindMem
	}
	return inlineasm.KindImm
}

// operand resolves one operand for a position of the given spec
func (r *replay) operand(op inlineasm.Operand, spec inlineasm.OperandSpec) asm.Operand {
	g := r.g
	switch x := op.(type) {
	case *inlineasm.RegRef:
		return r.register(x)
	case *inlineasm.Lit:
		return x.Value
	case *inlineasm.MemRef:
		var base asm.Register
		switch b := x.Base.(type) {
		case *inlineasm.RegRef:
			base = r.register(b)
		case *inlineasm.VarRef:
			val, _ := r.variable(b)
			base = g.base(val)
			if g.temp(base) {
				r.temps = append(r.temps, base)
			}
		}
		return asm.At(base, x.Disp, x.Size)
	case *inlineasm.VarRef:
		val, v := r.variable(x)
		if spec.Accepts(kindOf(val)) {
			return val
		}
		size := asm.SizeOfOperand(val)
		signed := false
		if v != nil {
			size, signed = varSize(v), v.Type.Signed()
		}
		if size == asm.SizeNone {
			size = asm.S64
		}
		tmp := g.ra.NextRegister(size)
		g.move(tmp, val, signed, lowFirst)
		r.temps = append(r.temps, tmp)
		if spec.Written && v != nil {
			r.back = append(r.back, writeBack{tmp: tmp, dst: val, v: v})
		}
		return tmp
	}
	diag.Faultf("unexpected inline assembly operand %T", op)
	return nil
}

// instr emits one instruction and returns its resolved operands
func (r *replay) instr(x *inlineasm.Instr) []asm.Operand {
	g := r.g
	ops := make([]asm.Operand, len(x.Operands))
	for i, op := range x.Operands {
		ops[i] = r.operand(op, x.Spec.Operands[i])
	}
	_, setcc := x.Spec.Op.SetCond()
	for i, op := range ops {
		p, ok := op.(asm.Pointer)
		if !ok || p.Size != asm.SizeNone || x.Spec.Op == asm.LEA {
			continue
		}
		size := asm.S64
		for j, other := range ops {
			if s := asm.SizeOfOperand(other); j != i && s != asm.SizeNone {
				size = s
			}
		}
		ops[i] = p.Resize(size)
	}
	if setcc {
		switch d := ops[0].(type) {
		case asm.Register:
			ops[0] = d.Resize(asm.S8)
		case asm.Pointer:
			ops[0] = d.Resize(asm.S8)
		}
	}
	if len(ops) == 2 {
		_, dstMem := ops[0].(asm.Pointer)
		if src, srcMem := ops[1].(asm.Pointer); dstMem && srcMem {
			tmp := g.ra.NextRegister(src.Size)
			g.emit(asm.Binary{Op: asm.MOV, Dst: tmp, Src: src})
			r.temps = append(r.temps, tmp)
			ops[1] = tmp
		}
	}

	switch len(ops) {
	case 0:
		g.emit(asm.Zero{Op: x.Spec.Op})
	case 1:
		g.emit(asm.Unary{Op: x.Spec.Op, Operand: ops[0]})
	case 2:
		g.emit(asm.Binary{Op: x.Spec.Op, Dst: ops[0], Src: ops[1]})
	default:
		diag.Faultf("%s with %d operands", x.Mnemonic, len(ops))
	}

	for _, wb := range r.back {
		g.move(wb.dst, wb.tmp, wb.v.Type.Signed(), lowFirst)
	}
	r.back = r.back[:0]
	for _, t := range r.temps {
		g.ra.Free(t, true)
	}
	r.temps = r.temps[:0]
	return ops
}

// finish leaves the block's value in a pool register the enclosing
// expression owns and releases the registers the block claimed
func (r *replay) finish(result asm.Operand) asm.Operand {
	g := r.g
	size := r.e.Typ.AsmSize()
	var val asm.Operand
	switch x := result.(type) {
	case nil:
	case asm.Literal:
		val = x
	case asm.Register:
		claimed := false
		for _, reg := range r.implicit {
			claimed = claimed || reg.Same(x)
		}
		if x.IsSlot() && g.temp(x) && !claimed {
			val = x.Resize(size)
			break
		}
		if size != asm.SizeNone {
			dst := g.ra.NextRegister(size)
			g.move(dst, x, r.signed(), lowFirst)
			val = dst
		}
	case asm.Pointer:
		if size != asm.SizeNone {
			dst := g.ra.NextRegister(size)
			g.move(dst, x, r.signed(), lowFirst)
			val = dst
		}
	}
	for _, reg := range r.implicit {
		g.ra.Free(reg, true)
	}
	for _, reg := range r.names {
		g.ra.Free(reg, true)
	}
	if size == asm.SizeNone {
		g.release(val)
		return nil
	}
	if val == nil {
		g.report(diag.Backendf("asm %s: block has no value", r.e.Block.Name))
		return asm.Int(0)
	}
	return val
}

func (r *replay) signed() bool {
	return r.e.Typ.Signed()
}
