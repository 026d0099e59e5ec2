// Completion: 95% - Moves, widening and immediate sizing complete
package codegen

import (
	"strconv"

	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
)

// chunkOrder is the order the two halves of a 64-bit immediate are stored in
type chunkOrder bool

const (
	lowFirst  chunkOrder = false // stack variables
	highFirst chunkOrder = true  // fields
)

// varSize is the operand width of a variable's storage
func varSize(v *ast.Variable) asm.Size {
	if v.ByRef {
		return asm.S64
	}
	return v.Type.AsmSize()
}

// temp reports whether op is an unlocked pool register the current
// expression owns and may overwrite
func (g *Generator) temp(op asm.Operand) bool {
	r, ok := op.(asm.Register)
	return ok && r.IsSlot() && g.ra.Live(r) && !g.ra.Locked(r)
}

// release frees the registers behind operands that are no longer needed.
// Locked registers and frame addresses are left alone.
func (g *Generator) release(ops ...asm.Operand) {
	for _, op := range ops {
		if op != nil {
			g.ra.Free(op, false)
		}
	}
}

// literal returns the operand for a literal node. Strings live in the data
// section and are referenced by address.
func (g *Generator) literal(l *ast.Lit) asm.Operand {
	if l.Value.Kind != asm.LitString {
		return l.Value
	}
	label, ok := g.strs[l.Value.Text]
	if !ok {
		label = ".S" + strconv.Itoa(len(g.strs))
		g.strs[l.Value.Text] = label
		g.data.Append(asm.Data{Label: label, Directive: ".asciz", Values: []string{strconv.Quote(l.Value.Text)}})
	}
	return asm.DataLabel(label)
}

// fits checks that a literal can be stored into size bytes. An overflow
// is reported and generation continues.
func (g *Generator) fits(lit asm.Literal, size asm.Size) bool {
	need, err := lit.MinSize()
	if err != nil {
		g.report(diag.Backendf("%v", err))
		return false
	}
	if size != asm.SizeNone && need > size.Bytes() {
		g.report(diag.LiteralOverflow(lit.Text, need, size.Bytes()))
		return false
	}
	return true
}

// storeLiteral writes an immediate to a register or memory. A 64-bit
// memory store of a value that does not sign-extend from 32 bits is split
// into two DWORD stores.
func (g *Generator) storeLiteral(dst asm.Operand, lit asm.Literal, order chunkOrder) {
	size := asm.SizeOfOperand(dst)
	if !g.fits(lit, size) {
		return
	}
	p, ok := dst.(asm.Pointer)
	if !ok || size != asm.S64 || lit.FitsImm32() {
		g.emit(asm.Binary{Op: asm.MOV, Dst: dst, Src: lit})
		return
	}
	lo, hi, err := lit.Halves()
	if err != nil {
		g.report(diag.Backendf("%v", err))
		return
	}
	high := p.Resize(asm.S32).Offset(4)
	low := high.Offset(-4)
	g.logf("chunk: %s split into %s and %s", lit, lo, hi)
	if order == highFirst {
		g.emit(asm.Binary{Op: asm.MOV, Dst: high, Src: hi}, asm.Binary{Op: asm.MOV, Dst: low, Src: lo})
		return
	}
	g.emit(asm.Binary{Op: asm.MOV, Dst: low, Src: lo}, asm.Binary{Op: asm.MOV, Dst: high, Src: hi})
}

// widen loads a narrower register or memory operand into dst with
// sign or zero extension
func (g *Generator) widen(dst asm.Register, src asm.Operand, signed bool) {
	ss := asm.SizeOfOperand(src)
	switch {
	case ss.Bytes() == 4 && signed:
		g.emit(asm.Binary{Op: asm.MOVSXD, Dst: dst.Resize(asm.S64), Src: src})
	case ss.Bytes() == 4:
		// a 32-bit write clears the upper half
		g.emit(asm.Binary{Op: asm.MOV, Dst: dst.Resize(asm.S32), Src: src})
	case signed:
		g.emit(asm.Binary{Op: asm.MOVSX, Dst: dst, Src: src})
	default:
		g.emit(asm.Binary{Op: asm.MOVZX, Dst: dst, Src: src})
	}
}

// move copies src into dst, which is a register or memory operand,
// converting between widths. Memory to memory goes through a temporary.
func (g *Generator) move(dst, src asm.Operand, signed bool, order chunkOrder) {
	ds := asm.SizeOfOperand(dst)
	switch s := src.(type) {
	case nil:
		diag.Faultf("move of a void value into %v", dst)
	case asm.Literal:
		g.storeLiteral(dst, s, order)
	case asm.Register:
		switch {
		case s.Size.Bytes() >= ds.Bytes():
			g.emit(asm.Binary{Op: asm.MOV, Dst: dst, Src: s.Resize(ds)})
		case isRegister(dst):
			g.widen(dst.(asm.Register), s, signed)
		default:
			tmp := g.ra.NextRegister(ds)
			g.widen(tmp, s, signed)
			g.emit(asm.Binary{Op: asm.MOV, Dst: dst, Src: tmp})
			g.ra.Free(tmp, true)
		}
	case asm.Pointer:
		if r, ok := dst.(asm.Register); ok {
			if s.Size.Bytes() >= ds.Bytes() {
				g.emit(asm.Binary{Op: asm.MOV, Dst: r, Src: s.Resize(ds)})
			} else {
				g.widen(r, s, signed)
			}
			return
		}
		tmp := g.ra.NextRegister(ds)
		g.move(tmp, s, signed, order)
		g.emit(asm.Binary{Op: asm.MOV, Dst: dst, Src: tmp})
		g.ra.Free(tmp, true)
	}
}

func isRegister(op asm.Operand) bool {
	_, ok := op.(asm.Register)
	return ok
}

// load returns a register holding op at the given width that the caller
// may overwrite. An owned temporary is reused in place.
func (g *Generator) load(op asm.Operand, size asm.Size, signed bool) asm.Register {
	if r, ok := op.(asm.Register); ok && g.temp(r) {
		switch {
		case r.Size.Bytes() >= size.Bytes():
			return r.Resize(size)
		default:
			g.widen(r.Resize(size), r, signed)
			return r.Resize(size)
		}
	}
	dst := g.ra.NextRegister(size)
	g.move(dst, op, signed, lowFirst)
	g.release(op)
	return dst
}

// operandFor returns op in a form usable as the source of a two-operand
// instruction of the given width: a fitting immediate, or a register or
// memory operand of the same width
func (g *Generator) operandFor(op asm.Operand, size asm.Size, signed bool) asm.Operand {
	switch x := op.(type) {
	case asm.Literal:
		if !g.fits(x, size) {
			return asm.Int(0)
		}
		if size == asm.S64 && !x.FitsImm32() {
			return g.load(x, size, signed)
		}
		return x
	case asm.Register, asm.Pointer:
		if asm.SizeOfOperand(x) == size {
			return x
		}
	}
	return g.load(op, size, signed)
}
