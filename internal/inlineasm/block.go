// Completion: 100% - Inline assembly tree complete
package inlineasm

import (
	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
)

// Pos is a 1-indexed position inside the block text
type Pos struct {
	Line   int
	Column int
}

// Operand is one of VarRef, RegRef, MemRef or Lit
type Operand interface {
	operand()
	Position() Pos
}

// VarRef names a source-level variable: $name
type VarRef struct {
	Pos
	Name string
}

// RegRef names a hardware register (rax, r12d) or a register declared with alloc.
// Size is SizeNone when the operand uses the declared width.
type RegRef struct {
	Pos
	Name  string
	Named bool     // declared with alloc
	Phys  asm.Phys // hardware register, NoPhys for lazily bound names
	Type  string
	Size  asm.Size
}

// MemRef is [base +/- disp] with an optional size keyword
type MemRef struct {
	Pos
	Size asm.Size
	Base Operand // *RegRef or *VarRef
	Disp int32
}

// Lit is an immediate
type Lit struct {
	Pos
	Value asm.Literal
}

func (*VarRef) operand() {}
func (*RegRef) operand() {}
func (*MemRef) operand() {}
func (*Lit) operand()    {}

// Position returns where the node starts
func (p Pos) Position() Pos { return p }

// Stmt is one of Alloc, Free, Instr or Value
type Stmt interface {
	stmt()
	Position() Pos
}

// Alloc declares a named register. Phys is set when the name, or an explicit
// register after it, is a hardware register; otherwise the name is bound to a
// pool register when it is first used.
type Alloc struct {
	Pos
	Name string
	Phys asm.Phys
	Type string
	Size asm.Size
}

// Free releases a named register. Implicit frees are added at the end of the
// block for names that were never freed.
type Free struct {
	Pos
	Name     string
	Implicit bool
}

// Instr is an instruction with its dispatch entry
type Instr struct {
	Pos
	Mnemonic string
	Spec     InstrSpec
	Operands []Operand
	Return   bool // "return mnemonic ..." makes the destination the block value
}

// Value is "return operand"
type Value struct {
	Pos
	Operand Operand
}

func (*Alloc) stmt() {}
func (*Free) stmt()  {}
func (*Instr) stmt() {}
func (*Value) stmt() {}

// Block is a parsed inline assembly block
type Block struct {
	Name  string
	Stmts []Stmt
	Decls []*Alloc
}

// Result returns the operand that becomes the block's value, if any
func (b *Block) Result() (Operand, bool) {
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *Value:
			return x.Operand, true
		case *Instr:
			if x.Return && len(x.Operands) > 0 {
				return x.Operands[0], true
			}
		}
	}
	return nil, false
}

// ReturnedName returns the named register the block returns, if any
func (b *Block) ReturnedName() (string, bool) {
	op, ok := b.Result()
	if !ok {
		return "", false
	}
	r, ok := op.(*RegRef)
	if !ok || !r.Named {
		return "", false
	}
	return r.Name, true
}

// Decl returns the declaration of a named register
func (b *Block) Decl(name string) (*Alloc, bool) {
	return lo.Find(b.Decls, func(a *Alloc) bool { return a.Name == name })
}

// WrittenVariables returns the source variables an instruction in the block
// writes to, according to the dispatch table
func (b *Block) WrittenVariables() []string {
	var names []string
	for _, s := range b.Stmts {
		ins, ok := s.(*Instr)
		if !ok {
			continue
		}
		for i, op := range ins.Operands {
			if v, ok := op.(*VarRef); ok && i < len(ins.Spec.Operands) && ins.Spec.Operands[i].Written {
				names = append(names, v.Name)
			}
		}
	}
	return lo.Uniq(names)
}

// ReadVariables returns every source variable the block mentions
func (b *Block) ReadVariables() []string {
	var names []string
	visit := func(op Operand) {
		switch x := op.(type) {
		case *VarRef:
			names = append(names, x.Name)
		case *MemRef:
			if v, ok := x.Base.(*VarRef); ok {
				names = append(names, v.Name)
			}
		}
	}
	for _, s := range b.Stmts {
		switch x := s.(type) {
		case *Instr:
			lo.ForEach(x.Operands, func(op Operand, _ int) { visit(op) })
		case *Value:
			visit(x.Operand)
		}
	}
	return lo.Uniq(names)
}
