// Completion: 95% - Six slot allocator complete, no spilling
package regalloc

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/diag"
)

// NumSlots is the size of the register pool
const NumSlots = 6

// Slot 0 is the accumulator: return value, dividend and syscall number.
// Slots 1-5 are callee-saved and must be pushed by any function using them.
var slotRegs = [NumSlots]asm.Phys{asm.RAX, asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15}

// SlotPhys returns the register behind a slot
func SlotPhys(slot int) asm.Phys {
	return slotRegs[slot]
}

// SlotIndex returns the slot a pool register belongs to
func SlotIndex(p asm.Phys) (int, bool) {
	i := lo.IndexOf(slotRegs[:], p)
	return i, i >= 0
}

// State is the occupancy of a slot
type State uint8

const (
	Free State = iota
	Used
	Needed // holds a value the hardware produced implicitly, such as a call result
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Used:
		return "used"
	case Needed:
		return "needed"
	}
	return "unknown"
}

type slot struct {
	state   State
	pending asm.Size // size of a Needed value
	locked  bool
	handle  asm.Handle

	// implicit values were written by hardware (call, idiv), so their
	// earlier instructions cannot be renamed
	implicit bool
}

// Emitter receives the instructions the allocator itself needs to emit.
// References reports whether anything emitted since a clock tick names p.
type Emitter interface {
	Emit(ins asm.Instruction)
	Clock() uint64
	References(b *asm.Bindings, p asm.Phys, since uint64) bool
}

// Allocator hands out the six pool registers. There is no spill path:
// running out of registers is an internal fault.
type Allocator struct {
	bindings *asm.Bindings
	out      Emitter
	slots    [NumSlots]slot
	last     asm.Handle
	saved    [NumSlots]bool // callee-saved registers used by the current function
	maxUsed  int

	// Logf, when set, receives allocator trace messages
	Logf func(format string, args ...any)
}

// New creates an allocator emitting relocation moves to out
func New(bindings *asm.Bindings, out Emitter) *Allocator {
	return &Allocator{bindings: bindings, out: out}
}

func (a *Allocator) logf(format string, args ...any) {
	if a.Logf != nil {
		a.Logf(format, args...)
	}
}

func (a *Allocator) occupied(i int) bool {
	return a.slots[i].state != Free
}

func (a *Allocator) liveCount() int {
	return lo.CountBy(a.slots[:], func(s slot) bool { return s.state != Free })
}

// take binds a fresh handle to slot i
func (a *Allocator) take(i int, state State, size asm.Size) asm.Register {
	h := a.bindings.Bind(slotRegs[i], a.out.Clock())
	a.slots[i] = slot{state: state, handle: h}
	if state == Needed {
		a.slots[i].pending = size
		a.slots[i].implicit = true
	}
	if i > 0 {
		a.saved[i] = true
	}
	a.last = h
	a.maxUsed = max(a.maxUsed, a.liveCount())
	return asm.Register{Handle: h, Size: size}
}

func (a *Allocator) release(i int) {
	a.slots[i] = slot{}
}

// slotOf returns the slot currently holding the register behind op, or -1
func (a *Allocator) slotOf(op asm.Operand) int {
	r, ok := asm.BaseOf(op)
	if !ok || !r.IsSlot() {
		return -1
	}
	i, ok := SlotIndex(a.bindings.Current(r.Handle))
	if !ok || a.slots[i].handle != r.Handle || !a.occupied(i) {
		return -1
	}
	return i
}

// NextRegister allocates the lowest free slot among 1-5. The accumulator
// is only handed out when it is the last free slot.
func (a *Allocator) NextRegister(size asm.Size) asm.Register {
	for i := 1; i < NumSlots; i++ {
		if !a.occupied(i) {
			return a.take(i, Used, size)
		}
	}
	if !a.occupied(0) {
		return a.take(0, Used, size)
	}
	a.logf("regalloc: pool exhausted\n%s", a.Dump())
	diag.Faultf("register pool exhausted: all %d slots in use", NumSlots)
	return asm.Register{}
}

// CurrentRegister returns the most recently allocated register at another width
func (a *Allocator) CurrentRegister(size asm.Size) asm.Register {
	if a.last == 0 {
		diag.Faultf("no register has been allocated yet")
	}
	return asm.Register{Handle: a.last, Size: size}
}

// renameTarget finds a free slot whose register no instruction named
// during the lifetime of h
func (a *Allocator) renameTarget(h asm.Handle) int {
	born := a.bindings.Born(h)
	for k := 1; k < NumSlots; k++ {
		if !a.occupied(k) && !a.out.References(a.bindings, slotRegs[k], born) {
			return k
		}
	}
	return -1
}

// evacuate moves the value in slot i to another slot with an explicit mov.
// Instructions emitted before the move keep naming the old register.
func (a *Allocator) evacuate(i int) {
	s := a.slots[i]
	k := -1
	for j := 1; j < NumSlots; j++ {
		if j != i && !a.occupied(j) {
			k = j
			break
		}
	}
	if k < 0 {
		a.logf("regalloc: cannot move %s out of %s\n%s", s.state, slotRegs[i], a.Dump())
		diag.Faultf("register pool exhausted: no free slot to move %s out of %s", s.state, slotRegs[i])
	}
	a.bindings.Relocate(s.handle, slotRegs[k], a.out.Clock())
	a.out.Emit(asm.Binary{
		Op:  asm.MOV,
		Dst: asm.Register{Handle: s.handle, Size: asm.S64},
		Src: asm.Fix(slotRegs[i], asm.S64),
	})
	a.slots[k] = slot{state: Used, handle: s.handle, locked: s.locked}
	a.saved[k] = true
	a.release(i)
	a.logf("regalloc: moved %s value from %s to %s", s.state, slotRegs[i], slotRegs[k])
}

// Reserve clears the accumulator before a call, divide or syscall.
// A Used value is renamed without emitting anything when a slot has been
// free for its whole lifetime, otherwise it is moved like a Needed value.
func (a *Allocator) Reserve() {
	s := a.slots[0]
	switch s.state {
	case Free:
		return
	case Used:
		if k := a.renameTarget(s.handle); k >= 0 && !s.implicit {
			a.bindings.Rebind(s.handle, slotRegs[k])
			a.slots[k] = slot{state: Used, handle: s.handle, locked: s.locked}
			a.saved[k] = true
			a.release(0)
			a.logf("regalloc: renamed accumulator value to %s", slotRegs[k])
			return
		}
	}
	a.evacuate(0)
}

// CallAlloc marks the accumulator as holding an implicitly produced value
// and returns it. Reserve must have been called first.
func (a *Allocator) CallAlloc(size asm.Size) asm.Register {
	if a.occupied(0) {
		diag.Faultf("accumulator is %s; Reserve must precede CallAlloc", a.slots[0].state)
	}
	return a.take(0, Needed, size)
}

// Claim reserves one exact slot, moving any value already in it
func (a *Allocator) Claim(i int, size asm.Size) asm.Register {
	if i < 0 || i >= NumSlots {
		diag.Faultf("no such register slot %d", i)
	}
	if a.occupied(i) {
		if i == 0 {
			a.Reserve()
		} else {
			a.evacuate(i)
		}
	}
	return a.take(i, Used, size)
}

// Settle marks the slot behind r as an ordinary unlocked value
func (a *Allocator) Settle(r asm.Register) {
	if i := a.slotOf(r); i >= 0 {
		a.slots[i].state = Used
		a.slots[i].pending = asm.SizeNone
		a.slots[i].locked = false
	}
}

// Lock protects the slot behind op from Free and FreeAll
func (a *Allocator) Lock(op asm.Operand) {
	if i := a.slotOf(op); i >= 0 {
		a.slots[i].locked = true
	}
}

// Unlock removes the protection added by Lock
func (a *Allocator) Unlock(op asm.Operand) {
	if i := a.slotOf(op); i >= 0 {
		a.slots[i].locked = false
	}
}

// Locked reports whether the slot behind op is locked
func (a *Allocator) Locked(op asm.Operand) bool {
	i := a.slotOf(op)
	return i >= 0 && a.slots[i].locked
}

// Live reports whether op is backed by a slot that still holds its value
func (a *Allocator) Live(op asm.Operand) bool {
	return a.slotOf(op) >= 0
}

// LockLive locks every occupied unlocked slot and returns what it locked
func (a *Allocator) LockLive() []asm.Register {
	var locked []asm.Register
	for i := range a.slots {
		if a.occupied(i) && !a.slots[i].locked {
			a.slots[i].locked = true
			locked = append(locked, asm.Register{Handle: a.slots[i].handle, Size: asm.S64})
		}
	}
	return locked
}

// Free releases the slot behind a register or a pointer's base register.
// Locked slots are only released when force is set. Fixed registers are ignored.
func (a *Allocator) Free(op asm.Operand, force bool) bool {
	i := a.slotOf(op)
	if i < 0 || (a.slots[i].locked && !force) {
		return false
	}
	a.release(i)
	return true
}

// FreeAll releases every slot, or every unlocked slot when force is not set
func (a *Allocator) FreeAll(force bool) {
	for i := range a.slots {
		if a.occupied(i) && (force || !a.slots[i].locked) {
			a.release(i)
		}
	}
}

// FreeCount returns the number of free slots
func (a *Allocator) FreeCount() int {
	return NumSlots - a.liveCount()
}

// BeginFunction forgets all values and the callee-saved registers in use
func (a *Allocator) BeginFunction() {
	a.FreeAll(true)
	a.saved = [NumSlots]bool{}
	a.last = 0
	a.maxUsed = 0
}

// UsedCalleeSaved returns the callee-saved registers the current function touched, in slot order
func (a *Allocator) UsedCalleeSaved() []asm.Phys {
	return lo.FilterMap(lo.Range(NumSlots), func(i int, _ int) (asm.Phys, bool) {
		return slotRegs[i], i > 0 && a.saved[i]
	})
}

// MaxPressure returns the largest number of simultaneously live slots in the current function
func (a *Allocator) MaxPressure() int {
	return a.maxUsed
}

// SlotState returns the state of a slot, the size of a pending value and whether it is locked
func (a *Allocator) SlotState(i int) (State, asm.Size, bool) {
	s := a.slots[i]
	return s.state, s.pending, s.locked
}

// Dump describes every slot, for tracing
func (a *Allocator) Dump() string {
	var sb strings.Builder
	for i, s := range a.slots {
		fmt.Fprintf(&sb, "  %-3s %-6s", slotRegs[i], s.state)
		if s.state == Needed {
			fmt.Fprintf(&sb, " (%s-bit)", s.pending)
		}
		if s.locked {
			sb.WriteString(" locked")
		}
		if s.handle != 0 {
			fmt.Fprintf(&sb, " handle %d", s.handle)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
