// machine.go - Execute generated programs to check their behaviour in tests
package asmtest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xyproto/x64c/internal/asm"
)

const (
	codeBase       = 0x0040_0000
	dataBase       = 0x0060_0000
	heapBase       = 0x1000_0000
	stackTop       = 0x7FFF_F000
	returnSentinel = 0xDEAD_BEE0
	pageSize       = 4096
)

// DefaultMaxSteps bounds the number of executed instructions
const DefaultMaxSteps = 1_000_000

var (
	ErrStepLimit  = errors.New("step limit reached")
	ErrMisaligned = errors.New("stack not 16-byte aligned at call")
	ErrClobbered  = errors.New("callee-saved register not restored")
)

// savedFrame is the callee-saved state captured when a call is made
type savedFrame struct {
	target string
	rsp    uint64
	regs   map[asm.Phys]uint64
}

var calleeSaved = []asm.Phys{asm.RBX, asm.RBP, asm.R12, asm.R13, asm.R14, asm.R15}

// Machine interprets the subset of x86_64 the code generator emits
type Machine struct {
	prog   *asm.Program
	code   []asm.Entry
	labels map[string]int
	data   map[string]uint64

	regs [asm.R15 + 1]uint64
	mem  map[uint64]byte

	zf, sf, cf, of bool

	ip       int
	heap     uint64
	frames   []savedFrame
	history  []string
	exited   bool
	exitCode int64

	// MaxSteps limits execution, DefaultMaxSteps when zero
	MaxSteps int
	// CheckABI enables stack alignment and callee-saved register checks on every call
	CheckABI bool
	// Steps is the number of instructions executed by the last run
	Steps int
}

// New prepares a machine for the given program, laying out its data section
func New(p *asm.Program) (*Machine, error) {
	m := &Machine{
		prog:     p,
		code:     p.Text.Entries(),
		labels:   make(map[string]int),
		data:     make(map[string]uint64),
		mem:      make(map[uint64]byte),
		heap:     heapBase,
		CheckABI: true,
	}
	for i, e := range m.code {
		if l, ok := e.Ins.(asm.Label); ok {
			if _, dup := m.labels[l.Name]; dup {
				return nil, fmt.Errorf("duplicate label %q", l.Name)
			}
			m.labels[l.Name] = i
		}
	}
	if err := m.layoutData(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Machine) layoutData() error {
	type item struct {
		addr uint64
		d    asm.Data
	}
	var items []item
	addr := uint64(dataBase)
	for _, e := range m.prog.Data.Entries() {
		d, ok := e.Ins.(asm.Data)
		if !ok {
			continue
		}
		m.data[d.Label] = addr
		items = append(items, item{addr, d})
		size, err := dataSize(d)
		if err != nil {
			return err
		}
		addr += (size + 7) &^ 7
	}
	for _, it := range items {
		if err := m.fillData(it.addr, it.d); err != nil {
			return err
		}
	}
	return nil
}

func dataSize(d asm.Data) (uint64, error) {
	switch d.Directive {
	case ".quad":
		return uint64(8 * len(d.Values)), nil
	case ".long":
		return uint64(4 * len(d.Values)), nil
	case ".byte":
		return uint64(len(d.Values)), nil
	case ".asciz", ".string":
		n := uint64(0)
		for _, v := range d.Values {
			s, err := strconv.Unquote(v)
			if err != nil {
				return 0, fmt.Errorf("data %s: %w", d.Label, err)
			}
			n += uint64(len(s)) + 1
		}
		return n, nil
	case ".zero":
		if len(d.Values) != 1 {
			return 0, fmt.Errorf("data %s: .zero takes one value", d.Label)
		}
		n, err := strconv.ParseUint(d.Values[0], 0, 64)
		return n, err
	}
	return 0, fmt.Errorf("data %s: unsupported directive %s", d.Label, d.Directive)
}

func (m *Machine) fillData(addr uint64, d asm.Data) error {
	width := map[string]int{".quad": 8, ".long": 4, ".byte": 1}[d.Directive]
	switch d.Directive {
	case ".asciz", ".string":
		for _, v := range d.Values {
			s, _ := strconv.Unquote(v)
			for i := 0; i < len(s); i++ {
				m.mem[addr] = s[i]
				addr++
			}
			m.mem[addr] = 0
			addr++
		}
		return nil
	case ".zero":
		return nil
	}
	for _, v := range d.Values {
		val, err := m.symbolValue(v)
		if err != nil {
			return fmt.Errorf("data %s: %w", d.Label, err)
		}
		m.store(addr, width, val)
		addr += uint64(width)
	}
	return nil
}

// symbolValue resolves a number, a code label or a data label
func (m *Machine) symbolValue(v string) (uint64, error) {
	if n, err := strconv.ParseInt(v, 0, 64); err == nil {
		return uint64(n), nil
	}
	if n, err := strconv.ParseUint(v, 0, 64); err == nil {
		return n, nil
	}
	if i, ok := m.labels[v]; ok {
		return codeBase + uint64(i), nil
	}
	if a, ok := m.data[v]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("unknown symbol %q", v)
}

// Load reads n bytes (1, 2, 4 or 8) little-endian from memory
func (m *Machine) Load(addr uint64, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(m.mem[addr+uint64(i)])
	}
	return v
}

func (m *Machine) store(addr uint64, n int, v uint64) {
	for i := 0; i < n; i++ {
		m.mem[addr+uint64(i)] = byte(v >> (8 * i))
	}
}

// Reg returns the full 64-bit value of a register
func (m *Machine) Reg(p asm.Phys) uint64 {
	return m.regs[p]
}

// DataAddr returns the address a data label was laid out at
func (m *Machine) DataAddr(label string) (uint64, bool) {
	a, ok := m.data[label]
	return a, ok
}

// ExitCode returns the status passed to the exit syscall
func (m *Machine) ExitCode() (int64, bool) {
	return m.exitCode, m.exited
}

func mask(s asm.Size) uint64 {
	switch s {
	case asm.S8, asm.S8High:
		return 0xFF
	case asm.S16:
		return 0xFFFF
	case asm.S32:
		return 0xFFFFFFFF
	}
	return ^uint64(0)
}

func signBit(s asm.Size) uint64 {
	return (mask(s) >> 1) + 1
}

func signExtend(v uint64, s asm.Size) uint64 {
	v &= mask(s)
	if s != asm.S64 && v&signBit(s) != 0 {
		v |= ^mask(s)
	}
	return v
}

func (m *Machine) readReg(p asm.Phys, s asm.Size) uint64 {
	v := m.regs[p]
	if s == asm.S8High {
		return (v >> 8) & 0xFF
	}
	return v & mask(s)
}

func (m *Machine) writeReg(p asm.Phys, s asm.Size, v uint64) {
	switch s {
	case asm.S64:
		m.regs[p] = v
	case asm.S32:
		m.regs[p] = v & 0xFFFFFFFF
	case asm.S8High:
		m.regs[p] = m.regs[p]&^0xFF00 | (v&0xFF)<<8
	default:
		m.regs[p] = m.regs[p]&^mask(s) | v&mask(s)
	}
}

func (m *Machine) phys(r asm.Register) (asm.Phys, error) {
	p := m.prog.Bindings.Resolve(r, m.code[m.ip].At)
	if p == asm.NoPhys {
		return p, fmt.Errorf("unbound register handle %d", r.Handle)
	}
	if r.Size == asm.S8High && !p.HasHigh8() {
		return p, fmt.Errorf("%s has no upper-8 alias", p)
	}
	return p, nil
}

func (m *Machine) address(ptr asm.Pointer) (uint64, error) {
	p, err := m.phys(ptr.Base)
	if err != nil {
		return 0, err
	}
	return m.regs[p] + uint64(int64(ptr.Disp)), nil
}

// read evaluates an operand. Literals take the width of the other operand.
func (m *Machine) read(op asm.Operand, s asm.Size) (uint64, error) {
	switch x := op.(type) {
	case asm.Register:
		p, err := m.phys(x)
		if err != nil {
			return 0, err
		}
		return m.readReg(p, x.Size), nil
	case asm.Pointer:
		a, err := m.address(x)
		if err != nil {
			return 0, err
		}
		return m.Load(a, x.Size.Bytes()), nil
	case asm.Literal:
		if x.IsLabel() {
			return m.symbolValue(x.Text)
		}
		v, err := x.Bits()
		if err != nil {
			return 0, err
		}
		return v & mask(s), nil
	}
	return 0, fmt.Errorf("unsupported operand %T", op)
}

func (m *Machine) write(op asm.Operand, v uint64) error {
	switch x := op.(type) {
	case asm.Register:
		p, err := m.phys(x)
		if err != nil {
			return err
		}
		m.writeReg(p, x.Size, v)
		return nil
	case asm.Pointer:
		a, err := m.address(x)
		if err != nil {
			return err
		}
		m.store(a, x.Size.Bytes(), v)
		return nil
	}
	return fmt.Errorf("cannot write to %T", op)
}

func (m *Machine) push(v uint64) {
	m.regs[asm.RSP] -= 8
	m.store(m.regs[asm.RSP], 8, v)
}

func (m *Machine) pop() uint64 {
	v := m.Load(m.regs[asm.RSP], 8)
	m.regs[asm.RSP] += 8
	return v
}

func (m *Machine) fault(err error) error {
	start := len(m.history) - 10
	if start < 0 {
		start = 0
	}
	return fmt.Errorf("at %d: %w\nrecent instructions:\n  %s", m.ip, err, strings.Join(m.history[start:], "\n  "))
}

// Call runs fn with the System V integer arguments and returns rax.
// Arguments beyond the sixth are passed on the stack.
func (m *Machine) Call(fn string, args ...int64) (int64, error) {
	start, ok := m.labels[fn]
	if !ok {
		return 0, fmt.Errorf("no procedure %q", fn)
	}
	m.regs = [asm.R15 + 1]uint64{}
	m.regs[asm.RSP] = stackTop
	argRegs := []asm.Phys{asm.RDI, asm.RSI, asm.RDX, asm.RCX, asm.R8, asm.R9}
	var stack []int64
	for i, a := range args {
		if i < len(argRegs) {
			m.regs[argRegs[i]] = uint64(a)
		} else {
			stack = append(stack, a)
		}
	}
	if len(stack)%2 == 1 {
		m.push(0)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		m.push(uint64(stack[i]))
	}
	m.push(returnSentinel)
	m.enter(fn)
	if err := m.run(start); err != nil {
		return 0, err
	}
	return int64(m.regs[asm.RAX]), nil
}

// Run starts execution at the given label and runs until the exit syscall
func (m *Machine) Run(entry string) (int64, error) {
	start, ok := m.labels[entry]
	if !ok {
		return 0, fmt.Errorf("no entry label %q", entry)
	}
	m.regs = [asm.R15 + 1]uint64{}
	m.regs[asm.RSP] = stackTop
	if err := m.run(start); err != nil {
		return 0, err
	}
	if !m.exited {
		return 0, errors.New("program returned without calling exit")
	}
	return m.exitCode, nil
}

func (m *Machine) run(start int) error {
	limit := m.MaxSteps
	if limit == 0 {
		limit = DefaultMaxSteps
	}
	m.ip = start
	m.Steps = 0
	m.exited = false
	for !m.exited {
		if m.ip < 0 || m.ip >= len(m.code) {
			return m.fault(fmt.Errorf("instruction pointer %d out of range", m.ip))
		}
		if m.Steps >= limit {
			return m.fault(ErrStepLimit)
		}
		m.Steps++
		done, err := m.step()
		if err != nil {
			return m.fault(err)
		}
		if done {
			return nil
		}
	}
	return nil
}

// enter records the callee-saved state at a call
func (m *Machine) enter(target string) {
	saved := make(map[asm.Phys]uint64, len(calleeSaved))
	for _, p := range calleeSaved {
		saved[p] = m.regs[p]
	}
	m.frames = append(m.frames, savedFrame{target: target, rsp: m.regs[asm.RSP], regs: saved})
}

// leave checks the callee-saved state at a return
func (m *Machine) leave() error {
	if len(m.frames) == 0 {
		return errors.New("return without matching call")
	}
	f := m.frames[len(m.frames)-1]
	m.frames = m.frames[:len(m.frames)-1]
	if !m.CheckABI {
		return nil
	}
	if m.regs[asm.RSP] != f.rsp {
		return fmt.Errorf("%w: %s returned with rsp off by %d", ErrClobbered, f.target, int64(m.regs[asm.RSP]-f.rsp))
	}
	for _, p := range calleeSaved {
		if m.regs[p] != f.regs[p] {
			return fmt.Errorf("%w: %s clobbered %s", ErrClobbered, f.target, p)
		}
	}
	return nil
}
