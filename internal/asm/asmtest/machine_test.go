package asmtest

import (
	"errors"
	"testing"

	"github.com/xyproto/x64c/internal/asm"
)

func rax() asm.Register { return asm.Fix(asm.RAX, asm.S64) }
func rdi() asm.Register { return asm.Fix(asm.RDI, asm.S64) }
func rsi() asm.Register { return asm.Fix(asm.RSI, asm.S64) }

// TestMachineCallAndExit tests a call through _start ending in the exit syscall
func TestMachineCallAndExit(t *testing.T) {
	p := asm.NewProgram()
	p.Text.Append(
		asm.Label{Name: "_start", Procedure: true},
		asm.Binary{Op: asm.MOV, Dst: rdi(), Src: asm.Int(40)},
		asm.Branch(asm.CALL, "addTwo"),
		asm.Binary{Op: asm.MOV, Dst: rdi(), Src: rax()},
		asm.Binary{Op: asm.MOV, Dst: rax(), Src: asm.Int(sysExit)},
		asm.Zero{Op: asm.SYSCALL},
		asm.Label{Name: "addTwo", Procedure: true},
		asm.Binary{Op: asm.LEA, Dst: rax(), Src: asm.At(rdi(), 2, asm.S64)},
		asm.Zero{Op: asm.RET},
	)
	m, err := New(p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	code, err := m.Run("_start")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if code != 42 {
		t.Errorf("exit code = %d, want 42", code)
	}
}

// TestMachineFlagsAndBranches tests signed and unsigned condition evaluation
func TestMachineFlagsAndBranches(t *testing.T) {
	tests := []struct {
		a, b int64
		cond asm.Cond
		want bool
	}{
		{1, 2, asm.CondL, true},
		{-1, 2, asm.CondL, true},
		{-1, 2, asm.CondB, false},
		{5, 5, asm.CondE, true},
		{5, 5, asm.CondGE, true},
		{7, 5, asm.CondG, true},
		{7, 5, asm.CondBE, false},
	}
	for _, tt := range tests {
		p := asm.NewProgram()
		p.Text.Append(
			asm.Label{Name: "f", Procedure: true},
			asm.Binary{Op: asm.CMP, Dst: rdi(), Src: rsi()},
			asm.Unary{Op: asm.Set(tt.cond), Operand: asm.Fix(asm.RAX, asm.S8)},
			asm.Binary{Op: asm.MOVZX, Dst: asm.Fix(asm.RAX, asm.S32), Src: asm.Fix(asm.RAX, asm.S8)},
			asm.Zero{Op: asm.RET},
		)
		m, err := New(p)
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		got, err := m.Call("f", tt.a, tt.b)
		if err != nil {
			t.Fatalf("Call() error: %v", err)
		}
		if (got == 1) != tt.want {
			t.Errorf("%d set%s %d = %d, want %v", tt.a, tt.cond.Suffix(), tt.b, got, tt.want)
		}
	}
}

// TestMachineDetectsClobber tests the callee-saved register check
func TestMachineDetectsClobber(t *testing.T) {
	p := asm.NewProgram()
	p.Text.Append(
		asm.Label{Name: "f", Procedure: true},
		asm.Binary{Op: asm.MOV, Dst: asm.Fix(asm.RBX, asm.S64), Src: asm.Int(1)},
		asm.Zero{Op: asm.RET},
	)
	m, err := New(p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Call("f"); !errors.Is(err, ErrClobbered) {
		t.Errorf("expected ErrClobbered, got %v", err)
	}
}

// TestMachineDetectsMisalignedCall tests the stack alignment check at calls
func TestMachineDetectsMisalignedCall(t *testing.T) {
	p := asm.NewProgram()
	p.Text.Append(
		asm.Label{Name: "f", Procedure: true},
		asm.Branch(asm.CALL, "g"),
		asm.Zero{Op: asm.RET},
		asm.Label{Name: "g", Procedure: true},
		asm.Zero{Op: asm.RET},
	)
	m, err := New(p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := m.Call("f"); !errors.Is(err, ErrMisaligned) {
		t.Errorf("expected ErrMisaligned, got %v", err)
	}
}

// TestMachineDataAndMmap tests data layout, vtable style indirect calls and mmap
func TestMachineDataAndMmap(t *testing.T) {
	p := asm.NewProgram()
	p.Text.Append(
		asm.Label{Name: "f", Procedure: true},
		asm.Binary{Op: asm.MOV, Dst: asm.Fix(asm.R11, asm.S64), Src: asm.DataLabel("vt")},
		asm.Binary{Op: asm.SUB, Dst: asm.Fix(asm.RSP, asm.S64), Src: asm.Int(8)},
		asm.Unary{Op: asm.CALL, Operand: asm.At(asm.Fix(asm.R11, asm.S64), 8, asm.S64)},
		asm.Binary{Op: asm.ADD, Dst: asm.Fix(asm.RSP, asm.S64), Src: asm.Int(8)},
		asm.Zero{Op: asm.RET},
		asm.Label{Name: "one", Procedure: true},
		asm.Binary{Op: asm.MOV, Dst: rax(), Src: asm.Int(1)},
		asm.Zero{Op: asm.RET},
		asm.Label{Name: "alloc", Procedure: true},
		asm.Binary{Op: asm.MOV, Dst: rax(), Src: asm.Int(sysMmap)},
		asm.Binary{Op: asm.MOV, Dst: rsi(), Src: asm.Int(16)},
		asm.Zero{Op: asm.SYSCALL},
		asm.Zero{Op: asm.RET},
	)
	p.Data.Append(asm.Data{Label: "vt", Directive: ".quad", Values: []string{"one", "alloc"}})
	m, err := New(p)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	got, err := m.Call("f")
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if uint64(got) != heapBase {
		t.Errorf("mmap through vtable returned 0x%X, want 0x%X", got, heapBase)
	}
}
