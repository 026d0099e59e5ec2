package regalloc

import (
	"errors"
	"strings"
	"testing"

	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/diag"
)

func newTestAllocator() (*Allocator, *asm.Program) {
	p := asm.NewProgram()
	return New(p.Bindings, p.Text), p
}

func expectFault(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if _, ok := r.(*diag.InternalFault); !ok {
			t.Fatalf("expected an InternalFault panic, got %v", r)
		}
	}()
	f()
}

// TestNextRegisterOrder tests that slots 1-5 are handed out before the accumulator
func TestNextRegisterOrder(t *testing.T) {
	a, p := newTestAllocator()
	want := []asm.Phys{asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15, asm.RAX}
	for i, w := range want {
		r := a.NextRegister(asm.S64)
		if got := p.Bindings.Current(r.Handle); got != w {
			t.Errorf("allocation %d got %s, want %s", i, got, w)
		}
	}
	if a.FreeCount() != 0 {
		t.Errorf("FreeCount() = %d, want 0", a.FreeCount())
	}
	expectFault(t, func() { a.NextRegister(asm.S64) })
}

// TestFreeAllIdempotent tests that FreeAll twice leaves the same state as once
func TestFreeAllIdempotent(t *testing.T) {
	a, _ := newTestAllocator()
	r1 := a.NextRegister(asm.S64)
	r2 := a.NextRegister(asm.S32)
	a.Lock(r2)

	a.FreeAll(false)
	first := a.Dump()
	a.FreeAll(false)
	if second := a.Dump(); first != second {
		t.Errorf("FreeAll is not idempotent:\n%s\nvs\n%s", first, second)
	}
	if a.Live(r1) {
		t.Error("unlocked register survived FreeAll")
	}
	if !a.Live(r2) || !a.Locked(r2) {
		t.Error("locked register did not survive FreeAll")
	}
	if a.Free(r2, false) {
		t.Error("Free without force released a locked register")
	}
	if !a.Free(r2, true) {
		t.Error("forced Free did not release a locked register")
	}
}

// TestReserveRenamesUsedValue tests that a Used accumulator value is renamed
// retroactively without emitting anything
func TestReserveRenamesUsedValue(t *testing.T) {
	a, p := newTestAllocator()
	var regs []asm.Register
	for i := 0; i < 5; i++ {
		regs = append(regs, a.NextRegister(asm.S64))
	}
	acc := a.NextRegister(asm.S64) // only slot 0 is left
	p.Text.Append(asm.Binary{Op: asm.MOV, Dst: acc, Src: asm.Int(9)})

	// nothing names r13 while acc is alive, so acc can take it over
	a.Free(regs[2], false)
	p.Text.Append(asm.Binary{Op: asm.ADD, Dst: acc, Src: asm.Int(1)})

	before := p.Text.Len()
	a.Reserve()
	if p.Text.Len() != before {
		t.Fatalf("Reserve emitted %d instructions for a renameable value", p.Text.Len()-before)
	}
	lines, err := p.Lines()
	if err != nil {
		t.Fatalf("Lines() error: %v", err)
	}
	want := []string{"mov r13, 9", "add r13, 1"}
	if strings.Join(lines, ";") != strings.Join(want, ";") {
		t.Errorf("got %q, want %q", lines, want)
	}
	if st, _, _ := a.SlotState(0); st != Free {
		t.Errorf("accumulator is %s after Reserve", st)
	}
}

// TestReserveRenameNeedsUntouchedSlot tests that a slot used during the
// value's lifetime is not a rename target
func TestReserveRenameNeedsUntouchedSlot(t *testing.T) {
	a, p := newTestAllocator()
	for i := 0; i < 5; i++ {
		a.NextRegister(asm.S64)
	}
	acc := a.NextRegister(asm.S64)
	p.Text.Append(asm.Binary{Op: asm.MOV, Dst: acc, Src: asm.Int(3)})
	// rbx holds another value while acc is alive and is freed afterwards
	rbx := asm.Register{Handle: 1, Size: asm.S64}
	p.Text.Append(asm.Binary{Op: asm.ADD, Dst: rbx, Src: acc})
	a.Free(rbx, false)

	a.Reserve()
	lines, err := p.Lines()
	if err != nil {
		t.Fatalf("Lines() error: %v", err)
	}
	want := []string{"mov rax, 3", "add rbx, rax", "mov rbx, rax"}
	if strings.Join(lines, ";") != strings.Join(want, ";") {
		t.Errorf("got %q, want %q", lines, want)
	}
}

// TestReserveMovesNeededValue tests the explicit move of a call result
func TestReserveMovesNeededValue(t *testing.T) {
	a, p := newTestAllocator()
	a.Reserve()
	res := a.CallAlloc(asm.S32)
	p.Text.Append(asm.Branch(asm.CALL, "f"))
	if st, size, _ := a.SlotState(0); st != Needed || size != asm.S32 {
		t.Fatalf("slot 0 is %s/%s, want needed/32", st, size)
	}

	a.Reserve()
	p.Text.Append(asm.Branch(asm.CALL, "g"))
	p.Text.Append(asm.Binary{Op: asm.ADD, Dst: res, Src: asm.Int(1)})

	lines, err := p.Lines()
	if err != nil {
		t.Fatalf("Lines() error: %v", err)
	}
	want := []string{"call f", "mov rbx, rax", "call g", "add ebx, 1"}
	if strings.Join(lines, ";") != strings.Join(want, ";") {
		t.Errorf("got %q, want %q", lines, want)
	}
	if got := a.UsedCalleeSaved(); len(got) != 1 || got[0] != asm.RBX {
		t.Errorf("UsedCalleeSaved() = %v", got)
	}
}

// TestReserveMovesSettledCallResult tests that a call result stays
// un-renameable after it has been settled
func TestReserveMovesSettledCallResult(t *testing.T) {
	a, p := newTestAllocator()
	res := a.CallAlloc(asm.S64)
	p.Text.Append(asm.Branch(asm.CALL, "f"))
	a.Settle(res)
	a.Reserve()
	if last, _ := p.Text.Last(); last == nil {
		t.Fatal("expected a move")
	} else if b, ok := last.(asm.Binary); !ok || b.Op != asm.MOV {
		t.Errorf("expected a mov, got %#v", last)
	}
}

// TestCallAllocRequiresReserve tests the ordering fault
func TestCallAllocRequiresReserve(t *testing.T) {
	a, _ := newTestAllocator()
	a.CallAlloc(asm.S64)
	expectFault(t, func() { a.CallAlloc(asm.S64) })
}

// TestReserveExhaustedPool tests that a Needed value with nowhere to go is a fault
func TestReserveExhaustedPool(t *testing.T) {
	a, _ := newTestAllocator()
	for i := 0; i < 5; i++ {
		a.NextRegister(asm.S64)
	}
	a.CallAlloc(asm.S64)

	var err error
	func() {
		defer diag.Recover(&err)
		a.Reserve()
	}()
	var f *diag.InternalFault
	if !errors.As(err, &f) {
		t.Fatalf("expected InternalFault, got %v", err)
	}
	if !strings.Contains(f.Error(), "exhausted") {
		t.Errorf("unexpected fault message %q", f.Error())
	}
}

// TestClaimMovesOccupant tests reserving an exact register that is in use
func TestClaimMovesOccupant(t *testing.T) {
	a, p := newTestAllocator()
	old := a.NextRegister(asm.S64) // rbx
	a.Lock(old)
	claimed := a.Claim(1, asm.S64)
	if got := p.Bindings.Current(claimed.Handle); got != asm.RBX {
		t.Errorf("claimed %s, want rbx", got)
	}
	if got := p.Bindings.Current(old.Handle); got != asm.R12 {
		t.Errorf("previous occupant moved to %s, want r12", got)
	}
	if !a.Locked(old) {
		t.Error("lock did not move with the value")
	}
}

// TestLockLive tests locking every live slot for an inline expansion
func TestLockLive(t *testing.T) {
	a, _ := newTestAllocator()
	r1 := a.NextRegister(asm.S64)
	r2 := a.NextRegister(asm.S64)
	a.Lock(r2)
	locked := a.LockLive()
	if len(locked) != 1 || locked[0].Handle != r1.Handle {
		t.Errorf("LockLive() = %v", locked)
	}
	a.FreeAll(false)
	if !a.Live(r1) || !a.Live(r2) {
		t.Error("locked registers were freed")
	}
	for _, r := range locked {
		a.Unlock(r)
	}
	a.FreeAll(false)
	if a.Live(r1) {
		t.Error("unlocked register survived FreeAll")
	}
}

// TestBeginFunction tests per-function bookkeeping
func TestBeginFunction(t *testing.T) {
	a, _ := newTestAllocator()
	a.NextRegister(asm.S64)
	a.NextRegister(asm.S64)
	if got := a.UsedCalleeSaved(); len(got) != 2 || got[0] != asm.RBX || got[1] != asm.R12 {
		t.Errorf("UsedCalleeSaved() = %v", got)
	}
	if a.MaxPressure() != 2 {
		t.Errorf("MaxPressure() = %d", a.MaxPressure())
	}
	a.BeginFunction()
	if len(a.UsedCalleeSaved()) != 0 || a.FreeCount() != NumSlots {
		t.Error("BeginFunction did not reset the allocator")
	}
	expectFault(t, func() { a.CurrentRegister(asm.S64) })
}
