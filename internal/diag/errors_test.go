package diag

import (
	"errors"
	"strings"
	"testing"
)

// TestCollectorErr tests that collected backend errors stay reachable with errors.As
func TestCollectorErr(t *testing.T) {
	c := NewCollector(0)
	if c.Err() != nil {
		t.Fatal("empty collector should have no error")
	}
	c.Add(CodegenError(LiteralOverflow("300", 2, 1), SourceLocation{File: "Program.Main"}))
	c.AddWarning(SyntaxError("unused name", SourceLocation{Line: 1, Column: 3}))

	err := c.Err()
	if err == nil {
		t.Fatal("expected an error")
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("errors.As failed on %v", err)
	}
	if be.Literal != "300" || be.DestSize != 1 {
		t.Errorf("unexpected backend error %+v", be)
	}
	if c.ErrorCount() != 1 || c.WarningCount() != 1 {
		t.Errorf("counts = %d errors, %d warnings", c.ErrorCount(), c.WarningCount())
	}
}

// TestFormatWithSource tests caret placement and hints
func TestFormatWithSource(t *testing.T) {
	c := NewCollector(10)
	c.SetSourceCode("{ alloc t;\n  movv t, 5; }")
	e := SyntaxError("unsupported instruction 'movv'", SourceLocation{Line: 2, Column: 3, Length: 4})
	e.Context.Suggestion = "did you mean 'mov'?"
	c.Add(e)

	report := c.Report(false)
	for _, want := range []string{"error: unsupported instruction 'movv'", "2 |   movv t, 5; }", "  ^^^^", "help: did you mean 'mov'?", "1 error(s) found"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "\033[") {
		t.Error("uncoloured report contains escape codes")
	}
}

// TestRecoverFault tests that a fault panic becomes an error
func TestRecoverFault(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err)
		Faultf("register pool exhausted (%d slots)", 6)
		return nil
	}
	err := run()
	var f *InternalFault
	if !errors.As(err, &f) {
		t.Fatalf("expected InternalFault, got %v", err)
	}
	if !strings.Contains(f.Error(), "6 slots") {
		t.Errorf("unexpected message %q", f.Error())
	}
}

// TestRecoverRepanics tests that unrelated panics are not swallowed
func TestRecoverRepanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "boom" {
			t.Errorf("expected re-panic with boom, got %v", r)
		}
	}()
	func() {
		var err error
		defer Recover(&err)
		panic("boom")
	}()
}
