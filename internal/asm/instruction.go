// Completion: 100% - Instruction model complete
package asm

import "strings"

// Op is an instruction mnemonic
type Op string

const (
	MOV     Op = "mov"
	MOVZX   Op = "movzx"
	MOVSX   Op = "movsx"
	MOVSXD  Op = "movsxd"
	LEA     Op = "lea"
	ADD     Op = "add"
	SUB     Op = "sub"
	IMUL    Op = "imul"
	IDIV    Op = "idiv"
	DIV     Op = "div"
	AND     Op = "and"
	OR      Op = "or"
	XOR     Op = "xor"
	SHL     Op = "shl"
	SAR     Op = "sar"
	SHR     Op = "shr"
	CMP     Op = "cmp"
	TEST    Op = "test"
	NEG     Op = "neg"
	NOT     Op = "not"
	INC     Op = "inc"
	DEC     Op = "dec"
	PUSH    Op = "push"
	POP     Op = "pop"
	CALL    Op = "call"
	JMP     Op = "jmp"
	RET     Op = "ret"
	CQO     Op = "cqo"
	CDQ     Op = "cdq"
	SYSCALL Op = "syscall"
	NOP     Op = "nop"
	LEAVE   Op = "leave"
	XCHG    Op = "xchg"
)

// Cond is a condition code shared by SETcc and Jcc
type Cond uint8

const (
	CondE Cond = iota
	CondNE
	CondL
	CondLE
	CondG
	CondGE
	CondB
	CondBE
	CondA
	CondAE
)

var condSuffixes = [...]string{"e", "ne", "l", "le", "g", "ge", "b", "be", "a", "ae"}

// Suffix is the mnemonic suffix, as in "sete" or "jne"
func (c Cond) Suffix() string {
	return condSuffixes[c]
}

// Negate returns the condition that holds exactly when c does not
func (c Cond) Negate() Cond {
	switch c {
	case CondE:
		return CondNE
	case CondNE:
		return CondE
	case CondL:
		return CondGE
	case CondLE:
		return CondG
	case CondG:
		return CondLE
	case CondGE:
		return CondL
	case CondB:
		return CondAE
	case CondBE:
		return CondA
	case CondA:
		return CondBE
	default:
		return CondB
	}
}

// Swap returns the condition to use when the compared operands change places
func (c Cond) Swap() Cond {
	switch c {
	case CondL:
		return CondG
	case CondLE:
		return CondGE
	case CondG:
		return CondL
	case CondGE:
		return CondLE
	case CondB:
		return CondA
	case CondBE:
		return CondAE
	case CondA:
		return CondB
	case CondAE:
		return CondBE
	}
	return c
}

// Set returns the SETcc mnemonic for the condition
func Set(c Cond) Op {
	return Op("set" + c.Suffix())
}

// Jump returns the Jcc mnemonic for the condition
func Jump(c Cond) Op {
	return Op("j" + c.Suffix())
}

func condOf(op Op, prefix string) (Cond, bool) {
	s := string(op)
	if !strings.HasPrefix(s, prefix) {
		return 0, false
	}
	s = s[len(prefix):]
	for i, suffix := range condSuffixes {
		if s == suffix {
			return Cond(i), true
		}
	}
	return 0, false
}

// SetCond reports whether op is a SETcc and which condition it tests
func (o Op) SetCond() (Cond, bool) {
	return condOf(o, "set")
}

// JumpCond reports whether op is a Jcc and which condition it tests
func (o Op) JumpCond() (Cond, bool) {
	return condOf(o, "j")
}

// IsBranch reports whether op transfers control to a label operand
func (o Op) IsBranch() bool {
	if o == JMP || o == CALL {
		return true
	}
	_, ok := o.JumpCond()
	return ok
}

// Instruction is one line of output
type Instruction interface {
	isInstruction()
}

// Binary is a two-operand instruction, destination first
type Binary struct {
	Op  Op
	Dst Operand
	Src Operand
}

// Unary is a one-operand instruction
type Unary struct {
	Op      Op
	Operand Operand
}

// Zero is an instruction without operands
type Zero struct {
	Op Op
}

// Global exports a symbol
type Global struct {
	Name string
}

// Section switches the output section
type Section struct {
	Name string
}

// Label defines a symbol. Procedure labels start a function.
type Label struct {
	Name      string
	Procedure bool
}

// Data defines a labelled data item such as a string or a vtable
type Data struct {
	Label     string
	Directive string
	Values    []string
}

// Comment is emitted as an assembler comment
type Comment struct {
	Text string
}

func (Binary) isInstruction()  {}
func (Unary) isInstruction()   {}
func (Zero) isInstruction()    {}
func (Global) isInstruction()  {}
func (Section) isInstruction() {}
func (Label) isInstruction()   {}
func (Data) isInstruction()    {}
func (Comment) isInstruction() {}

// Branch returns a jump, conditional jump or call to a label
func Branch(op Op, label string) Unary {
	return Unary{Op: op, Operand: ProcLabel(label)}
}

// Target returns the label a branch instruction transfers to
func Target(ins Instruction) (string, bool) {
	u, ok := ins.(Unary)
	if !ok || !u.Op.IsBranch() {
		return "", false
	}
	lit, ok := u.Operand.(Literal)
	if !ok || !lit.IsLabel() {
		return "", false
	}
	return lit.Text, true
}
