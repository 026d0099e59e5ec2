// stack.go - Track the pushes a function body makes around calls
package codegen

import (
	"fmt"

	"github.com/xyproto/x64c/internal/diag"
)

// StackValidator tracks push/pop and rsp adjustments made by a function body,
// relative to the aligned stack the prologue sets up. It catches misaligned
// calls and unbalanced pops at generation time.
type StackValidator struct {
	depth      int      // current depth in 8-byte words
	operations []string // history for fault reports
	logf       func(format string, args ...any)
}

// NewStackValidator creates a validator tracing through logf
func NewStackValidator(logf func(format string, args ...any)) *StackValidator {
	return &StackValidator{
		operations: make([]string, 0, 64),
		logf:       logf,
	}
}

func (sv *StackValidator) record(format string, args ...any) {
	op := fmt.Sprintf(format, args...)
	sv.operations = append(sv.operations, fmt.Sprintf("%s (depth=%d)", op, sv.depth))
	if sv.logf != nil {
		sv.logf("stack: %s, depth now %d", op, sv.depth)
	}
}

func (sv *StackValidator) recent() string {
	start := max(len(sv.operations)-10, 0)
	s := ""
	for _, op := range sv.operations[start:] {
		s += "\n  " + op
	}
	return s
}

// Push records an 8-byte push
func (sv *StackValidator) Push(what string) {
	sv.depth++
	sv.record("push %s", what)
}

// Pop records an 8-byte pop
func (sv *StackValidator) Pop(what string) {
	if sv.depth <= 0 {
		diag.Faultf("stack underflow popping %s%s", what, sv.recent())
	}
	sv.depth--
	sv.record("pop %s", what)
}

// Sub records sub rsp, amount
func (sv *StackValidator) Sub(amount int) {
	sv.depth += amount / 8
	sv.record("sub rsp, %d", amount)
}

// Add records add rsp, amount
func (sv *StackValidator) Add(amount int) {
	if sv.depth < amount/8 {
		diag.Faultf("stack imbalance: add rsp, %d with depth %d%s", amount, sv.depth, sv.recent())
	}
	sv.depth -= amount / 8
	sv.record("add rsp, %d", amount)
}

// Depth returns the number of bytes pushed by the body so far
func (sv *StackValidator) Depth() int {
	return sv.depth * 8
}

// CheckCall faults when a call would be made with rsp off a 16-byte boundary
func (sv *StackValidator) CheckCall(target string) {
	if sv.depth%2 != 0 {
		diag.Faultf("stack misaligned by 8 at call %s%s", target, sv.recent())
	}
	sv.record("call %s", target)
}

// Reset forgets everything, at the start of a function
func (sv *StackValidator) Reset() {
	sv.depth = 0
	sv.operations = sv.operations[:0]
}
