package asmtest

import (
	"errors"
	"fmt"

	"github.com/xyproto/x64c/internal/asm"
)

const (
	sysMmap = 9
	sysExit = 60
)

func (m *Machine) setLogicFlags(res uint64, s asm.Size) {
	res &= mask(s)
	m.zf = res == 0
	m.sf = res&signBit(s) != 0
	m.cf, m.of = false, false
}

func (m *Machine) setAddFlags(a, b, res uint64, s asm.Size) {
	a, b, res = a&mask(s), b&mask(s), res&mask(s)
	m.zf = res == 0
	m.sf = res&signBit(s) != 0
	m.cf = res < a
	sa, sb, sr := a&signBit(s) != 0, b&signBit(s) != 0, res&signBit(s) != 0
	m.of = sa == sb && sr != sa
}

func (m *Machine) setSubFlags(a, b, res uint64, s asm.Size) {
	a, b, res = a&mask(s), b&mask(s), res&mask(s)
	m.zf = res == 0
	m.sf = res&signBit(s) != 0
	m.cf = a < b
	sa, sb, sr := a&signBit(s) != 0, b&signBit(s) != 0, res&signBit(s) != 0
	m.of = sa != sb && sr != sa
}

func (m *Machine) holds(c asm.Cond) bool {
	switch c {
	case asm.CondE:
		return m.zf
	case asm.CondNE:
		return !m.zf
	case asm.CondL:
		return m.sf != m.of
	case asm.CondLE:
		return m.zf || m.sf != m.of
	case asm.CondG:
		return !m.zf && m.sf == m.of
	case asm.CondGE:
		return m.sf == m.of
	case asm.CondB:
		return m.cf
	case asm.CondBE:
		return m.cf || m.zf
	case asm.CondA:
		return !m.cf && !m.zf
	default:
		return !m.cf
	}
}

// target resolves a branch operand to an instruction index
func (m *Machine) target(op asm.Operand) (int, string, error) {
	if lit, ok := op.(asm.Literal); ok && lit.IsLabel() {
		i, found := m.labels[lit.Text]
		if !found {
			return 0, lit.Text, fmt.Errorf("unknown label %q", lit.Text)
		}
		return i, lit.Text, nil
	}
	addr, err := m.read(op, asm.S64)
	if err != nil {
		return 0, "", err
	}
	i := int(addr - codeBase)
	if addr < codeBase || i >= len(m.code) {
		return 0, "", fmt.Errorf("indirect branch to invalid address 0x%X", addr)
	}
	name := fmt.Sprintf("0x%X", addr)
	if l, ok := m.code[i].Ins.(asm.Label); ok {
		name = l.Name
	}
	return i, name, nil
}

// step executes one instruction and reports whether the outermost call returned
func (m *Machine) step() (bool, error) {
	e := m.code[m.ip]
	m.history = append(m.history, asm.FormatInstruction(e.Ins, m.prog.Bindings, e.At))
	if len(m.history) > 64 {
		m.history = m.history[len(m.history)-32:]
	}
	next := m.ip + 1
	switch ins := e.Ins.(type) {
	case asm.Label, asm.Global, asm.Section, asm.Comment, asm.Data:
	case asm.Zero:
		switch ins.Op {
		case asm.RET:
			if err := m.leave(); err != nil {
				return false, err
			}
			ret := m.pop()
			if ret == returnSentinel {
				return true, nil
			}
			next = int(ret - codeBase)
		case asm.CQO:
			if int64(m.regs[asm.RAX]) < 0 {
				m.regs[asm.RDX] = ^uint64(0)
			} else {
				m.regs[asm.RDX] = 0
			}
		case asm.CDQ:
			if int32(m.regs[asm.RAX]) < 0 {
				m.regs[asm.RDX] = 0xFFFFFFFF
			} else {
				m.regs[asm.RDX] = 0
			}
		case asm.LEAVE:
			m.regs[asm.RSP] = m.regs[asm.RBP]
			m.regs[asm.RBP] = m.pop()
		case asm.NOP:
		case asm.SYSCALL:
			if err := m.syscall(); err != nil {
				return false, err
			}
		default:
			return false, fmt.Errorf("unsupported instruction %s", ins.Op)
		}
	case asm.Unary:
		n, err := m.unary(ins)
		if err != nil {
			return false, err
		}
		if n >= 0 {
			next = n
		}
	case asm.Binary:
		if err := m.binary(ins); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unsupported instruction %T", e.Ins)
	}
	m.ip = next
	return false, nil
}

func (m *Machine) syscall() error {
	switch m.regs[asm.RAX] {
	case sysExit:
		m.exited = true
		m.exitCode = int64(m.regs[asm.RDI])
	case sysMmap:
		size := m.regs[asm.RSI]
		if size == 0 {
			m.regs[asm.RAX] = ^uint64(21) // -EINVAL
			return nil
		}
		addr := m.heap
		m.heap += (size + pageSize - 1) &^ (pageSize - 1)
		m.regs[asm.RAX] = addr
	default:
		return fmt.Errorf("unsupported syscall %d", m.regs[asm.RAX])
	}
	m.regs[asm.RCX], m.regs[asm.R11] = 0, 0
	return nil
}

// unary executes a one-operand instruction, returning the branch target or -1
func (m *Machine) unary(ins asm.Unary) (int, error) {
	if c, ok := ins.Op.SetCond(); ok {
		v := uint64(0)
		if m.holds(c) {
			v = 1
		}
		return -1, m.write(ins.Operand, v)
	}
	if c, ok := ins.Op.JumpCond(); ok {
		if !m.holds(c) {
			return -1, nil
		}
		i, _, err := m.target(ins.Operand)
		return i, err
	}
	s := asm.SizeOfOperand(ins.Operand)
	switch ins.Op {
	case asm.JMP:
		i, _, err := m.target(ins.Operand)
		return i, err
	case asm.CALL:
		i, name, err := m.target(ins.Operand)
		if err != nil {
			return -1, err
		}
		if m.CheckABI && m.regs[asm.RSP]%16 != 0 {
			return -1, fmt.Errorf("%w: call %s with rsp=0x%X", ErrMisaligned, name, m.regs[asm.RSP])
		}
		m.push(codeBase + uint64(m.ip+1))
		m.enter(name)
		return i, nil
	case asm.PUSH:
		v, err := m.read(ins.Operand, asm.S64)
		if err != nil {
			return -1, err
		}
		if lit, ok := ins.Operand.(asm.Literal); ok && !lit.IsLabel() {
			v = signExtend(v, asm.S32)
		}
		m.push(v)
		return -1, nil
	case asm.POP:
		return -1, m.write(ins.Operand, m.pop())
	case asm.NEG, asm.NOT, asm.INC, asm.DEC:
		v, err := m.read(ins.Operand, s)
		if err != nil {
			return -1, err
		}
		var res uint64
		switch ins.Op {
		case asm.NEG:
			res = -v
			m.setSubFlags(0, v, res, s)
		case asm.NOT:
			res = ^v
		case asm.INC:
			res = v + 1
			cf := m.cf
			m.setAddFlags(v, 1, res, s)
			m.cf = cf
		case asm.DEC:
			res = v - 1
			cf := m.cf
			m.setSubFlags(v, 1, res, s)
			m.cf = cf
		}
		return -1, m.write(ins.Operand, res&mask(s))
	case asm.IDIV, asm.DIV:
		return -1, m.divide(ins)
	}
	return -1, fmt.Errorf("unsupported instruction %s", ins.Op)
}

func (m *Machine) divide(ins asm.Unary) error {
	s := asm.SizeOfOperand(ins.Operand)
	if s != asm.S64 {
		return fmt.Errorf("%s only supported on 64-bit operands", ins.Op)
	}
	d, err := m.read(ins.Operand, s)
	if err != nil {
		return err
	}
	if d == 0 {
		return errors.New("division by zero")
	}
	rax, rdx := m.regs[asm.RAX], m.regs[asm.RDX]
	if ins.Op == asm.DIV {
		if rdx != 0 {
			return errors.New("div with non-zero rdx is not supported")
		}
		m.regs[asm.RAX], m.regs[asm.RDX] = rax/d, rax%d
		return nil
	}
	if (int64(rax) < 0 && rdx != ^uint64(0)) || (int64(rax) >= 0 && rdx != 0) {
		return errors.New("idiv needs rdx to hold the sign extension of rax (missing cqo)")
	}
	q, r := int64(rax)/int64(d), int64(rax)%int64(d)
	m.regs[asm.RAX], m.regs[asm.RDX] = uint64(q), uint64(r)
	return nil
}

func (m *Machine) binary(ins asm.Binary) error {
	s := asm.SizeOfOperand(ins.Dst)
	if s == asm.SizeNone {
		return fmt.Errorf("%s: destination has no size", ins.Op)
	}
	_, dstMem := ins.Dst.(asm.Pointer)
	_, srcMem := ins.Src.(asm.Pointer)
	if dstMem && srcMem {
		return fmt.Errorf("%s: two memory operands", ins.Op)
	}
	switch ins.Op {
	case asm.LEA:
		ptr, ok := ins.Src.(asm.Pointer)
		if !ok {
			return errors.New("lea needs a memory source")
		}
		a, err := m.address(ptr)
		if err != nil {
			return err
		}
		return m.write(ins.Dst, a&mask(s))
	case asm.MOVZX, asm.MOVSX, asm.MOVSXD:
		ss := asm.SizeOfOperand(ins.Src)
		v, err := m.read(ins.Src, ss)
		if err != nil {
			return err
		}
		if ins.Op != asm.MOVZX {
			v = signExtend(v, ss)
		}
		return m.write(ins.Dst, v&mask(s))
	}

	b, err := m.read(ins.Src, s)
	if err != nil {
		return err
	}
	if lit, ok := ins.Src.(asm.Literal); ok && !lit.IsLabel() && s == asm.S64 && ins.Op != asm.MOV {
		b = signExtend(b, asm.S32)
	}
	if ins.Op == asm.MOV {
		return m.write(ins.Dst, b)
	}
	a, err := m.read(ins.Dst, s)
	if err != nil {
		return err
	}
	var res uint64
	switch ins.Op {
	case asm.ADD:
		res = a + b
		m.setAddFlags(a, b, res, s)
	case asm.SUB, asm.CMP:
		res = a - b
		m.setSubFlags(a, b, res, s)
		if ins.Op == asm.CMP {
			return nil
		}
	case asm.AND, asm.TEST:
		res = a & b
		m.setLogicFlags(res, s)
		if ins.Op == asm.TEST {
			return nil
		}
	case asm.OR:
		res = a | b
		m.setLogicFlags(res, s)
	case asm.XOR:
		res = a ^ b
		m.setLogicFlags(res, s)
	case asm.IMUL:
		res = uint64(int64(signExtend(a, s)) * int64(signExtend(b, s)))
		m.cf, m.of = false, false
	case asm.SHL, asm.SHR, asm.SAR:
		count := b & 63
		if s != asm.S64 {
			count = b & 31
		}
		switch ins.Op {
		case asm.SHL:
			res = a << count
		case asm.SHR:
			res = (a & mask(s)) >> count
		default:
			res = uint64(int64(signExtend(a, s)) >> count)
		}
		if count != 0 {
			m.setLogicFlags(res, s)
		}
	case asm.XCHG:
		if err := m.write(ins.Src, a); err != nil {
			return err
		}
		res = b
	default:
		return fmt.Errorf("unsupported instruction %s", ins.Op)
	}
	return m.write(ins.Dst, res&mask(s))
}
