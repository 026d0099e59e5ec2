// Completion: 90% - Dispatch table covers the integer subset
package inlineasm

import (
	"sort"

	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
)

// Mode says how a source variable in an operand position is handled
type Mode uint8

const (
	// Fixed operands must already be resolved: a register, a literal or an explicit address
	Fixed Mode = iota
	// Variable operands may name a source variable ($x), which is materialized
	// into a register or pointer before the instruction is emitted
	Variable
)

// Kinds is a set of accepted operand kinds
type Kinds uint8

const (
	KindReg Kinds = 1 << iota
	KindMem
	KindImm
)

const (
	rm  = KindReg | KindMem
	rmi = KindReg | KindMem | KindImm
)

// OperandSpec describes one operand position
type OperandSpec struct {
	Mode    Mode
	Accept  Kinds
	Written bool
}

// InstrSpec describes a mnemonic accepted in inline assembly
type InstrSpec struct {
	Op       asm.Op
	Operands []OperandSpec
}

// Arity returns the number of operands
func (s InstrSpec) Arity() int {
	return len(s.Operands)
}

var (
	dstRM  = OperandSpec{Mode: Variable, Accept: rm, Written: true}
	dstReg = OperandSpec{Mode: Variable, Accept: KindReg, Written: true}
	srcRMI = OperandSpec{Mode: Variable, Accept: rmi}
	srcRM  = OperandSpec{Mode: Variable, Accept: rm}
	count  = OperandSpec{Mode: Fixed, Accept: KindReg | KindImm}
	addr   = OperandSpec{Mode: Fixed, Accept: KindMem}
)

var table = func() map[string]InstrSpec {
	t := map[string]InstrSpec{
		"mov":     {asm.MOV, []OperandSpec{dstRM, srcRMI}},
		"movzx":   {asm.MOVZX, []OperandSpec{dstReg, srcRM}},
		"movsx":   {asm.MOVSX, []OperandSpec{dstReg, srcRM}},
		"movsxd":  {asm.MOVSXD, []OperandSpec{dstReg, srcRM}},
		"lea":     {asm.LEA, []OperandSpec{dstReg, addr}},
		"add":     {asm.ADD, []OperandSpec{dstRM, srcRMI}},
		"sub":     {asm.SUB, []OperandSpec{dstRM, srcRMI}},
		"and":     {asm.AND, []OperandSpec{dstRM, srcRMI}},
		"or":      {asm.OR, []OperandSpec{dstRM, srcRMI}},
		"xor":     {asm.XOR, []OperandSpec{dstRM, srcRMI}},
		"imul":    {asm.IMUL, []OperandSpec{dstReg, srcRM}},
		"cmp":     {asm.CMP, []OperandSpec{srcRM, srcRMI}},
		"test":    {asm.TEST, []OperandSpec{srcRM, srcRMI}},
		"shl":     {asm.SHL, []OperandSpec{dstRM, count}},
		"shr":     {asm.SHR, []OperandSpec{dstRM, count}},
		"sar":     {asm.SAR, []OperandSpec{dstRM, count}},
		"xchg":    {asm.XCHG, []OperandSpec{dstRM, {Mode: Variable, Accept: KindReg, Written: true}}},
		"neg":     {asm.NEG, []OperandSpec{dstRM}},
		"not":     {asm.NOT, []OperandSpec{dstRM}},
		"inc":     {asm.INC, []OperandSpec{dstRM}},
		"dec":     {asm.DEC, []OperandSpec{dstRM}},
		"push":    {asm.PUSH, []OperandSpec{srcRMI}},
		"pop":     {asm.POP, []OperandSpec{dstRM}},
		"idiv":    {asm.IDIV, []OperandSpec{srcRM}},
		"div":     {asm.DIV, []OperandSpec{srcRM}},
		"syscall": {asm.SYSCALL, nil},
		"cqo":     {asm.CQO, nil},
		"cdq":     {asm.CDQ, nil},
		"nop":     {asm.NOP, nil},
	}
	for c := asm.CondE; c <= asm.CondAE; c++ {
		t[string(asm.Set(c))] = InstrSpec{asm.Set(c), []OperandSpec{{Mode: Variable, Accept: rm, Written: true}}}
	}
	return t
}()

// Lookup returns the dispatch entry for a mnemonic
func Lookup(mnemonic string) (InstrSpec, bool) {
	spec, ok := table[mnemonic]
	return spec, ok
}

// Mnemonics returns every supported mnemonic, sorted
func Mnemonics() []string {
	names := lo.Keys(table)
	sort.Strings(names)
	return names
}

// Accepts reports whether an operand kind is allowed in the position
func (o OperandSpec) Accepts(k Kinds) bool {
	return o.Accept&k != 0
}
