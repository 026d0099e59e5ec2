// Completion: 100% - Operand model complete
package asm

import (
	"fmt"
)

// Handle identifies one allocation in a Bindings table. Zero means "no handle".
type Handle uint32

// Operand is one of Register, Pointer or Literal
type Operand interface {
	isOperand()
}

// Register is either a slot-backed register (Handle != 0), whose physical
// register is resolved through the bindings table when rendered, or a fixed
// hardware register such as rbp, rsp or an argument register.
type Register struct {
	Handle Handle
	Fixed  Phys
	Size   Size
}

// Pointer is a memory operand [base + disp] of the given width
type Pointer struct {
	Base Register
	Disp int32
	Size Size
}

func (Register) isOperand() {}
func (Pointer) isOperand()  {}
func (Literal) isOperand()  {}

// Fix returns a fixed hardware register operand
func Fix(p Phys, s Size) Register {
	return Register{Fixed: p, Size: s}
}

// IsSlot reports whether the register is backed by an allocator slot
func (r Register) IsSlot() bool {
	return r.Handle != 0
}

// Resize returns the same register viewed at another width
func (r Register) Resize(s Size) Register {
	r.Size = s
	return r
}

// Same reports whether both registers name the same storage,
// ignoring width
func (r Register) Same(o Register) bool {
	if r.IsSlot() || o.IsSlot() {
		return r.Handle == o.Handle
	}
	return r.Fixed == o.Fixed
}

func (r Register) String() string {
	if r.IsSlot() {
		return fmt.Sprintf("%%%d:%s", r.Handle, r.Size)
	}
	name, ok := r.Fixed.Name(r.Size)
	if !ok {
		return fmt.Sprintf("%s:%s", r.Fixed, r.Size)
	}
	return name
}

// At returns a pointer to [base + disp]
func At(base Register, disp int32, s Size) Pointer {
	return Pointer{Base: base.Resize(S64), Disp: disp, Size: s}
}

// Offset returns the pointer displaced by d bytes
func (p Pointer) Offset(d int32) Pointer {
	p.Disp += d
	return p
}

// Resize returns the same address viewed at another width
func (p Pointer) Resize(s Size) Pointer {
	p.Size = s
	return p
}

// SameLocation reports whether two operands denote the same register or
// the same memory cell
func SameLocation(a, b Operand) bool {
	switch x := a.(type) {
	case Register:
		y, ok := b.(Register)
		return ok && x.Same(y)
	case Pointer:
		y, ok := b.(Pointer)
		return ok && x.Base.Same(y.Base) && x.Disp == y.Disp
	}
	return false
}

// SizeOfOperand returns the width of a register or pointer, and SizeNone for literals
func SizeOfOperand(op Operand) Size {
	switch x := op.(type) {
	case Register:
		return x.Size
	case Pointer:
		return x.Size
	}
	return SizeNone
}

// BaseOf returns the register a Register or Pointer depends on
func BaseOf(op Operand) (Register, bool) {
	switch x := op.(type) {
	case Register:
		return x, true
	case Pointer:
		return x.Base, true
	}
	return Register{}, false
}
