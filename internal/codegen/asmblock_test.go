package codegen

import (
	"strings"
	"testing"

	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/config"
	"github.com/xyproto/x64c/internal/diag"
	"github.com/xyproto/x64c/internal/inlineasm"
)

func parseBlock(t *testing.T, src string) *inlineasm.Block {
	t.Helper()
	errs := diag.NewCollector(0)
	b, ok := inlineasm.Parse("test", src, errs)
	if !ok {
		t.Fatalf("parse %q:\n%s", src, errs.Report(false))
	}
	return b
}

// TestAsmBlockValue tests blocks used as expressions
func TestAsmBlockValue(t *testing.T) {
	x, y := ast.Local("x", ast.Int), ast.Local("y", ast.Int)
	tests := []struct {
		name string
		src  string
		typ  *ast.TypeRef
		want int64
	}{
		{"named register", "{ alloc t; mov t, 5; return t; }", ast.Int, 5},
		{"hardware register", "{ mov rax, $x; add rax, $y; return rax; }", ast.Int, 42},
		{"fixed scratch", "{ alloc c rcx; mov c, $x; sub c, $y; return c; }", ast.Int, 38},
		{"materialized", "{ alloc t; mov t, $y; imul t, $x; return t; }", ast.Int, 80},
		{"value statement", "{ alloc t; lea t, [rbp-8]; return $x; }", ast.Int, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := mainFn(x, y).Do(
				ast.Set(ast.Ref(x), ast.IntLit(40)),
				ast.Set(ast.Ref(y), ast.IntLit(2)),
				ast.Ret(ast.Bin("+", ast.InlineAsm(parseBlock(t, tt.src), tt.typ, x, y), ast.IntLit(0))),
			)
			if code := run(t, compile(t, program(main))); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

// TestAsmBlockNamedRegister tests that a lazily bound name takes one pool
// register and is released without an explicit free
func TestAsmBlockNamedRegister(t *testing.T) {
	main := mainFn().Do(ast.Ret(ast.Bin("+",
		ast.InlineAsm(parseBlock(t, "{ alloc t; mov t, 5; return t; }"), ast.Int),
		ast.IntLit(1))))
	p := compile(t, program(main))
	got := lines(t, p, "Program.Main")
	for _, want := range []string{"mov rbx, 5", "add rbx, 1", "mov rax, rbx"} {
		if !contains(got, want) {
			t.Errorf("missing %q in\n%s", want, strings.Join(got, "\n"))
		}
	}
	if contains(got, "push r12") {
		t.Errorf("more than one pool register used:\n%s", strings.Join(got, "\n"))
	}
	if code := run(t, p); code != 6 {
		t.Errorf("exit code = %d, want 6", code)
	}
}

// TestAsmBlockArgumentRegister tests a block that uses an argument
// register while the arguments of a call are being evaluated
func TestAsmBlockArgumentRegister(t *testing.T) {
	a, b := ast.Param("a", ast.Int), ast.Param("b", ast.Int)
	f := ast.Func("Program", "f", ast.Int, a, b).Do(
		ast.Ret(ast.Bin("+", ast.Bin("*", ast.Ref(a), ast.IntLit(10)), ast.Ref(b))),
	)
	tests := []struct {
		name string
		args func() []ast.Expression
		want int64
	}{
		{"second argument in rdi", func() []ast.Expression {
			return []ast.Expression{ast.IntLit(1), ast.InlineAsm(parseBlock(t, "{ alloc d rdi; mov d, 7; return d; }"), ast.Int)}
		}, 17},
		{"first argument in rsi", func() []ast.Expression {
			return []ast.Expression{ast.InlineAsm(parseBlock(t, "{ alloc s rsi; mov s, 3; return s; }"), ast.Int), ast.IntLit(4)}
		}, 34},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := mainFn().Do(ast.Ret(ast.CallFn(f, tt.args()...)))
			if code := run(t, compile(t, program(main, f))); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

// TestAsmBlockWrites tests that written variables are updated in place or
// through a register with a write-back
func TestAsmBlockWrites(t *testing.T) {
	x, y := ast.Local("x", ast.Int), ast.Local("y", ast.Int)
	main := mainFn(x, y).Do(
		ast.Set(ast.Ref(x), ast.IntLit(6)),
		ast.Set(ast.Ref(y), ast.IntLit(7)),
		ast.Eval(ast.InlineAsm(parseBlock(t, "{ imul $x, $y; }"), ast.Void, x, y)),
		ast.Eval(ast.InlineAsm(parseBlock(t, "{ inc $x; }"), ast.Void, x)),
		ast.Ret(ast.Ref(x)),
	)
	p := compile(t, program(main))
	got := lines(t, p, "Program.Main")
	for _, want := range []string{
		"mov rbx, QWORD PTR [rbp-8]",
		"imul rbx, QWORD PTR [rbp-16]",
		"mov QWORD PTR [rbp-8], rbx",
		"inc QWORD PTR [rbp-8]",
	} {
		if !contains(got, want) {
			t.Errorf("missing %q in\n%s", want, strings.Join(got, "\n"))
		}
	}
	if code := run(t, p); code != 43 {
		t.Errorf("exit code = %d, want 43", code)
	}
}

// TestAsmBlockInlined tests a block inside an inline function reading a
// by-reference parameter
func TestAsmBlockInlined(t *testing.T) {
	v := ast.RefParam("v", ast.Int)
	twice := ast.Func("Program", "twice", ast.Void, v).Do(
		ast.Eval(ast.InlineAsm(parseBlock(t, "{ shl $v, 1; }"), ast.Void, v)),
	)
	x := ast.Local("x", ast.Int)
	main := mainFn(x).Do(
		ast.Set(ast.Ref(x), ast.IntLit(21)),
		ast.Eval(ast.CallFn(twice, ast.Ref(x))),
		ast.Ret(ast.Ref(x)),
	)
	for _, inline := range []bool{false, true} {
		if inline {
			twice.Mods |= ast.Inline
		}
		p := compile(t, program(main, twice))
		if code := run(t, p); code != 42 {
			t.Errorf("inline=%v: exit code = %d, want 42", inline, code)
		}
		if got := lines(t, p, "Program.Main"); inline && !contains(got, "shl QWORD PTR [rbp-8], 1") {
			t.Errorf("expansion did not use x directly:\n%s", strings.Join(got, "\n"))
		}
	}
}

// TestAsmBlockUnknownVariable tests the diagnostic for an unbound $name
func TestAsmBlockUnknownVariable(t *testing.T) {
	main := mainFn().Do(ast.Ret(ast.InlineAsm(parseBlock(t, "{ alloc t; mov t, $nope; return t; }"), ast.Int)))
	ctx := NewContext(config.Default())
	_, err := Generate(ctx, program(main))
	if err == nil || !strings.Contains(err.Error(), "$nope") {
		t.Errorf("err = %v, want a report about $nope", err)
	}
}
