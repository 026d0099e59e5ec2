package codegen

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/asm/asmtest"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/config"
	"github.com/xyproto/x64c/internal/diag"
)

func compile(t *testing.T, prog *ast.Program) *asm.Program {
	t.Helper()
	ctx := NewContext(config.Default())
	p, err := Generate(ctx, prog)
	if err != nil {
		t.Fatalf("Generate: %v\n%s", err, ctx.Errors.Report(false))
	}
	return p
}

func run(t *testing.T, p *asm.Program) int64 {
	t.Helper()
	m, err := asmtest.New(p)
	if err != nil {
		t.Fatalf("asmtest.New: %v", err)
	}
	code, err := m.Run("_start")
	if err != nil {
		src, _ := p.Render()
		t.Fatalf("Run: %v\n%s", err, src)
	}
	return code
}

// lines returns the rendered body of one procedure, local labels included
func lines(t *testing.T, p *asm.Program, proc string) []string {
	t.Helper()
	all, err := p.Lines()
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	var body []string
	inside := false
	for _, l := range all {
		if strings.HasSuffix(l, ":") && !strings.HasPrefix(l, ".") {
			if inside {
				break
			}
			inside = l == proc+":"
			continue
		}
		if inside {
			body = append(body, l)
		}
	}
	if !inside {
		t.Fatalf("no procedure %s in\n%s", proc, strings.Join(all, "\n"))
	}
	return body
}

func index(ls []string, prefix string) int {
	for i, l := range ls {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func contains(ls []string, prefix string) bool {
	return index(ls, prefix) >= 0
}

func mainFn(locals ...*ast.Variable) *ast.Function {
	return ast.Func("Program", "Main", ast.Int).Declare(locals...)
}

func program(fns ...*ast.Function) *ast.Program {
	return ast.NewProgram("Main", nil, fns...)
}

// TestConstantReturn tests that a constant expression folds into one move
func TestConstantReturn(t *testing.T) {
	main := mainFn().Do(ast.Ret(ast.Bin("+", ast.IntLit(2), ast.IntLit(3))))
	p := compile(t, program(main))
	got := lines(t, p, "Program.Main")
	want := []string{"mov rax, 5", "ret"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Program.Main = %q, want %q", got, want)
	}
	if code := run(t, p); code != 5 {
		t.Errorf("exit code = %d, want 5", code)
	}
}

// TestStackArguments tests a call with eight arguments, two of them pushed
func TestStackArguments(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	params := make([]*ast.Variable, len(names))
	for i, n := range names {
		params[i] = ast.Param(n, ast.Int)
	}
	var body ast.Expression = ast.Ref(params[0])
	for i := 1; i < 6; i++ {
		op := "+"
		if i%2 == 1 {
			op = "-"
		}
		body = ast.Bin(op, body, ast.Ref(params[i]))
	}
	body = ast.Bin("+", body, ast.Bin("*", ast.Ref(params[6]), ast.IntLit(100)))
	body = ast.Bin("+", body, ast.Bin("*", ast.Ref(params[7]), ast.IntLit(1000)))
	f := ast.Func("Program", "f", ast.Int, params...).Do(ast.Ret(body))

	args := make([]ast.Expression, 8)
	for i := range args {
		args[i] = ast.IntLit(int64(i + 1))
	}
	main := mainFn().Do(ast.Ret(ast.CallFn(f, args...)))
	p := compile(t, program(main, f))

	got := lines(t, p, "Program.Main")
	p8, p7 := index(got, "push 8"), index(got, "push 7")
	call := index(got, "call Program.f")
	if p8 < 0 || p7 < 0 || p8 > p7 || p7 > call {
		t.Errorf("stack arguments not pushed right to left before the call:\n%s", strings.Join(got, "\n"))
	}
	if rdi, r9 := index(got, "mov rdi, 1"), index(got, "mov r9, 6"); rdi < 0 || r9 < 0 || rdi > call || r9 > call {
		t.Errorf("register arguments not loaded before the call:\n%s", strings.Join(got, "\n"))
	}
	if i := index(got, "add rsp, 16"); i != call+1 {
		t.Errorf("stack arguments not popped after the call:\n%s", strings.Join(got, "\n"))
	}
	if code := run(t, p); code != 8697 {
		t.Errorf("exit code = %d, want 8697", code)
	}
}

// inlineProgram builds helpers that exercise parameter binding, multiple
// returns and a by-reference parameter
func inlineProgram(inline bool) *ast.Program {
	a, b, c := ast.Param("a", ast.Int), ast.Param("b", ast.Int), ast.Param("c", ast.Int)
	add3 := ast.Func("Program", "add3", ast.Int, a, b, c).
		Do(ast.Ret(ast.Bin("+", ast.Bin("*", ast.Ref(a), ast.Ref(b)), ast.Ref(c))))

	n := ast.Param("n", ast.Int)
	abs := ast.Func("Program", "abs", ast.Int, n).Do(
		&ast.If{
			Cond: ast.Bin("<", ast.Ref(n), ast.IntLit(0)),
			Then: ast.Stmts(ast.Ret(&ast.Unary{Op: "-", X: ast.Ref(n), Typ: ast.Int})),
		},
		ast.Ret(ast.Ref(n)),
	)

	v := ast.RefParam("v", ast.Int)
	inc := ast.Func("Program", "inc", ast.Void, v).
		Do(ast.Set(ast.Ref(v), ast.Bin("+", ast.Ref(v), ast.IntLit(1))))

	x, y := ast.Local("x", ast.Int), ast.Local("y", ast.Int)
	main := mainFn(x, y).Do(
		ast.Set(ast.Ref(x), ast.IntLit(5)),
		ast.Set(ast.Ref(y), ast.IntLit(-7)),
		ast.Eval(ast.CallFn(inc, ast.Ref(x))),
		ast.Ret(ast.Bin("+",
			ast.Bin("+", ast.CallFn(add3, ast.Ref(x), ast.Ref(y), ast.IntLit(4)), ast.CallFn(abs, ast.Ref(y))),
			ast.CallFn(add3, ast.IntLit(2), ast.IntLit(3), ast.Ref(x)))),
	)
	if inline {
		for _, fn := range []*ast.Function{add3, abs, inc} {
			fn.Mods |= ast.Inline
		}
	}
	return program(main, add3, abs, inc)
}

// TestInlineTransparency tests that inlining changes the code but not the result
func TestInlineTransparency(t *testing.T) {
	for _, inline := range []bool{false, true} {
		p := compile(t, inlineProgram(inline))
		if code := run(t, p); code != -19 {
			t.Errorf("inline=%v: exit code = %d, want -19", inline, code)
		}
		got := lines(t, p, "Program.Main")
		if called := contains(got, "call Program."); called == inline {
			t.Errorf("inline=%v: calls in Program.Main = %v\n%s", inline, called, strings.Join(got, "\n"))
		}
	}
}

// TestRecursiveInline tests that a recursive inline function is expanded
// once and then called
func TestRecursiveInline(t *testing.T) {
	n := ast.Param("n", ast.Int)
	fact := ast.Func("Program", "fact", ast.Int, n)
	fact.Mods |= ast.Inline
	fact.Do(
		&ast.If{Cond: ast.Bin("<=", ast.Ref(n), ast.IntLit(1)), Then: ast.Stmts(ast.Ret(ast.IntLit(1)))},
		ast.Ret(ast.Bin("*", ast.Ref(n), ast.CallFn(fact, ast.Bin("-", ast.Ref(n), ast.IntLit(1))))),
	)
	main := mainFn().Do(ast.Ret(ast.CallFn(fact, ast.IntLit(5))))
	p := compile(t, program(main, fact))
	if !contains(lines(t, p, "Program.Main"), "call Program.fact") {
		t.Error("the recursive call inside the expansion was not emitted as a call")
	}
	if code := run(t, p); code != 120 {
		t.Errorf("exit code = %d, want 120", code)
	}
}

// TestComparisonFusion tests that setcc followed by a test of its result
// becomes a single conditional jump
func TestComparisonFusion(t *testing.T) {
	t.Run("stored flag", func(t *testing.T) {
		a, b, x := ast.Local("a", ast.Int), ast.Local("b", ast.Int), ast.Local("x", ast.Bool)
		main := mainFn(a, b, x).Do(
			ast.Set(ast.Ref(a), ast.IntLit(3)),
			ast.Set(ast.Ref(b), ast.IntLit(2)),
			ast.Set(ast.Ref(x), ast.Bin(">", ast.Ref(a), ast.Ref(b))),
			&ast.If{Cond: ast.Ref(x), Then: ast.Stmts(ast.Ret(ast.IntLit(1)))},
			ast.Ret(ast.IntLit(0)),
		)
		p := compile(t, program(main))
		got := lines(t, p, "Program.Main")
		i := index(got, "setg BYTE PTR [rbp-17]")
		if i < 1 || !strings.HasPrefix(got[i-1], "cmp ") || !strings.HasPrefix(got[i+1], "jle .L") {
			t.Errorf("expected cmp, setg into x, jle:\n%s", strings.Join(got, "\n"))
		}
		if contains(got, "setg bl") {
			t.Errorf("comparison went through a register:\n%s", strings.Join(got, "\n"))
		}
		if code := run(t, p); code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	})
	t.Run("direct condition", func(t *testing.T) {
		a, b := ast.Local("a", ast.Int), ast.Local("b", ast.Int)
		main := mainFn(a, b).Do(
			ast.Set(ast.Ref(a), ast.IntLit(1)),
			ast.Set(ast.Ref(b), ast.IntLit(2)),
			&ast.If{Cond: ast.Bin(">", ast.Ref(a), ast.Ref(b)), Then: ast.Stmts(ast.Ret(ast.IntLit(1)))},
			ast.Ret(ast.IntLit(0)),
		)
		ctx := NewContext(config.Default())
		var log bytes.Buffer
		ctx.Options.Verbose = true
		ctx.Log = &log
		p, err := Generate(ctx, program(main))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(log.String(), "fusion:") {
			t.Errorf("no fusion in the trace:\n%s", log.String())
		}
		got := lines(t, p, "Program.Main")
		i := index(got, "cmp ")
		if i < 0 || !strings.HasPrefix(got[i+1], "jle .L") {
			t.Errorf("expected cmp followed by jle:\n%s", strings.Join(got, "\n"))
		}
		if contains(got, "setg") {
			t.Errorf("setg left in place:\n%s", strings.Join(got, "\n"))
		}
		if code := run(t, p); code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	})
	t.Run("unsigned", func(t *testing.T) {
		u, w := ast.Local("u", ast.UInt), ast.Local("w", ast.UInt)
		main := mainFn(u, w).Do(
			ast.Set(ast.Ref(u), ast.TypedLit(1, ast.UInt)),
			ast.Set(ast.Ref(w), ast.TypedLit(-1, ast.UInt)),
			&ast.If{Cond: ast.Bin(">", ast.Ref(w), ast.Ref(u)), Then: ast.Stmts(ast.Ret(ast.IntLit(1)))},
			ast.Ret(ast.IntLit(0)),
		)
		p := compile(t, program(main))
		if !contains(lines(t, p, "Program.Main"), "jbe .L") {
			t.Error("unsigned comparison did not use jbe")
		}
		if code := run(t, p); code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	})
}

// TestWideLiteralStore tests that 64-bit literals outside the imm32 range
// are stored as two dwords
func TestWideLiteralStore(t *testing.T) {
	for _, v := range []int64{0, -1, math.MaxInt64, math.MinInt64, 1 << 40} {
		x := ast.Local("x", ast.Int)
		main := mainFn(x).Do(
			ast.Set(ast.Ref(x), ast.IntLit(v)),
			ast.Ret(ast.Ref(x)),
		)
		p := compile(t, program(main))
		if code := run(t, p); code != v {
			t.Errorf("local %d: exit code = %d", v, code)
		}
	}

	x := ast.Local("x", ast.Int)
	main := mainFn(x).Do(ast.Set(ast.Ref(x), ast.IntLit(math.MaxInt64)), ast.Ret(ast.Ref(x)))
	got := lines(t, compile(t, program(main)), "Program.Main")
	lo, hi := index(got, "mov DWORD PTR [rbp-8], 0xFFFFFFFF"), index(got, "mov DWORD PTR [rbp-4], 0x7FFFFFFF")
	if lo < 0 || hi != lo+1 {
		t.Errorf("expected low then high dword:\n%s", strings.Join(got, "\n"))
	}

	t.Run("field", func(t *testing.T) {
		f := &ast.Field{Name: "f", Type: ast.Int}
		box := ast.NewClass("Box", f)
		for _, v := range []int64{math.MaxInt64, math.MinInt64, -2} {
			o := ast.Local("o", box.Ref)
			main := mainFn(o).Do(
				ast.Set(ast.Ref(o), &ast.New{Class: box}),
				ast.Set(ast.Dot(ast.Ref(o), f), ast.IntLit(v)),
				ast.Ret(ast.Dot(ast.Ref(o), f)),
			)
			p := compile(t, ast.NewProgram("Main", []*ast.Class{box}, main))
			if code := run(t, p); code != v {
				t.Errorf("field %d: exit code = %d", v, code)
			}
			if v != math.MaxInt64 {
				continue
			}
			got := lines(t, p, "Program.Main")
			hi, lo := index(got, "mov DWORD PTR [rbx+4], 0x7FFFFFFF"), index(got, "mov DWORD PTR [rbx], 0xFFFFFFFF")
			if hi < 0 || lo != hi+1 {
				t.Errorf("expected high then low dword:\n%s", strings.Join(got, "\n"))
			}
		}
	})
}

// TestNarrowValues tests widening and wrap-around of sub-64-bit values
func TestNarrowValues(t *testing.T) {
	b, i := ast.Local("b", ast.Byte), ast.Local("i", ast.Int32)
	tests := []struct {
		name string
		body []ast.Statement
		want int64
	}{
		{"byte wraps", []ast.Statement{
			ast.Set(ast.Ref(b), ast.TypedLit(200, ast.Byte)),
			ast.Ret(ast.Bin("+", ast.Ref(b), ast.TypedLit(100, ast.Byte))),
		}, 44},
		{"int32 sign extends", []ast.Statement{
			ast.Set(ast.Ref(i), ast.TypedLit(-5, ast.Int32)),
			ast.Ret(ast.Ref(i)),
		}, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := mainFn(b, i).Do(tt.body...)
			if code := run(t, compile(t, program(main))); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

// TestLiteralOverflow tests that a literal wider than its destination is
// reported and generation goes on
func TestLiteralOverflow(t *testing.T) {
	b, i := ast.Local("b", ast.Byte), ast.Local("i", ast.Int32)
	main := mainFn(b, i).Do(
		ast.Set(ast.Ref(b), ast.IntLit(300)),
		ast.Set(ast.Ref(i), ast.IntLit(1<<40)),
		ast.Ret(ast.IntLit(0)),
	)
	ctx := NewContext(config.Default())
	_, err := Generate(ctx, program(main))
	if err == nil {
		t.Fatal("expected an error")
	}
	var be *diag.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error %v is not a BackendError", err)
	}
	if be.Literal != "300" || be.DestSize != 1 {
		t.Errorf("first error = %+v, want literal 300 into 1 byte", be)
	}
	if n := ctx.Errors.ErrorCount(); n != 2 {
		t.Errorf("ErrorCount() = %d, want 2", n)
	}
}

// TestCallsAcrossReserve tests that values in rax survive later calls and divisions
func TestCallsAcrossReserve(t *testing.T) {
	x := ast.Param("x", ast.Int)
	id := ast.Func("Program", "id", ast.Int, x).Do(ast.Ret(ast.Ref(x)))
	tests := []struct {
		op   string
		want int64
	}{
		{"/", 12 + 14},
		{"%", 12 + 2},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			main := mainFn().Do(ast.Ret(ast.Bin("+",
				ast.Bin("*", ast.CallFn(id, ast.IntLit(3)), ast.CallFn(id, ast.IntLit(4))),
				ast.Bin(tt.op, ast.IntLit(100), ast.CallFn(id, ast.IntLit(7))))))
			if code := run(t, compile(t, program(main, id))); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

// TestShortCircuit tests that the right operand of && and || is skipped
// when the left one decides
func TestShortCircuit(t *testing.T) {
	t.Run("guarded division", func(t *testing.T) {
		x, y := ast.Local("x", ast.Int), ast.Local("y", ast.Int)
		main := mainFn(x, y).Do(
			ast.Set(ast.Ref(x), ast.IntLit(0)),
			ast.Set(ast.Ref(y), ast.IntLit(10)),
			&ast.If{
				Cond: ast.And(
					ast.Bin(">", ast.Ref(x), ast.IntLit(0)),
					ast.Bin(">", ast.Bin("/", ast.Ref(y), ast.Ref(x)), ast.IntLit(2))),
				Then: ast.Stmts(ast.Ret(ast.IntLit(1))),
			},
			ast.Ret(ast.IntLit(7)),
		)
		if code := run(t, compile(t, program(main))); code != 7 {
			t.Errorf("exit code = %d, want 7", code)
		}
	})
	t.Run("constant left", func(t *testing.T) {
		x := ast.Param("x", ast.Int)
		id := ast.Func("Program", "id", ast.Int, x).Do(ast.Ret(ast.Ref(x)))
		main := mainFn().Do(
			&ast.If{
				Cond: ast.Or(ast.BoolLit(true), ast.Bin(">", ast.CallFn(id, ast.IntLit(1)), ast.IntLit(0))),
				Then: ast.Stmts(ast.Ret(ast.IntLit(3))),
			},
			ast.Ret(ast.IntLit(4)),
		)
		p := compile(t, program(main, id))
		if contains(lines(t, p, "Program.Main"), "call Program.id") {
			t.Error("right operand of a decided || was generated")
		}
		if code := run(t, p); code != 3 {
			t.Errorf("exit code = %d, want 3", code)
		}
	})
	t.Run("value", func(t *testing.T) {
		x, y, flag := ast.Local("x", ast.Int), ast.Local("y", ast.Int), ast.Local("flag", ast.Bool)
		main := mainFn(x, y, flag).Do(
			ast.Set(ast.Ref(x), ast.IntLit(4)),
			ast.Set(ast.Ref(y), ast.IntLit(10)),
			ast.Set(ast.Ref(flag), ast.Or(
				ast.Bin("<", ast.Ref(x), ast.IntLit(0)),
				ast.Bin("==", ast.Ref(y), ast.IntLit(10)))),
			&ast.If{Cond: ast.Not(ast.Ref(flag)), Then: ast.Stmts(ast.Ret(ast.IntLit(2)))},
			ast.Ret(ast.IntLit(3)),
		)
		if code := run(t, compile(t, program(main))); code != 3 {
			t.Errorf("exit code = %d, want 3", code)
		}
	})
}

// TestLoops tests while and for loops with break and continue
func TestLoops(t *testing.T) {
	t.Run("while", func(t *testing.T) {
		i, sum := ast.Local("i", ast.Int), ast.Local("sum", ast.Int)
		main := mainFn(i, sum).Do(
			ast.Set(ast.Ref(i), ast.IntLit(1)),
			ast.Set(ast.Ref(sum), ast.IntLit(0)),
			&ast.While{
				Cond: ast.Bin("<=", ast.Ref(i), ast.IntLit(10)),
				Body: ast.Stmts(
					ast.Set(ast.Ref(sum), ast.Bin("+", ast.Ref(sum), ast.Ref(i))),
					ast.Set(ast.Ref(i), ast.Bin("+", ast.Ref(i), ast.IntLit(1))),
				),
			},
			ast.Ret(ast.Ref(sum)),
		)
		if code := run(t, compile(t, program(main))); code != 55 {
			t.Errorf("exit code = %d, want 55", code)
		}
	})
	t.Run("for", func(t *testing.T) {
		i, sum := ast.Local("i", ast.Int), ast.Local("sum", ast.Int)
		main := mainFn(i, sum).Do(
			ast.Set(ast.Ref(sum), ast.IntLit(0)),
			&ast.For{
				Init: ast.Set(ast.Ref(i), ast.IntLit(0)),
				Cond: ast.Bin("<", ast.Ref(i), ast.IntLit(100)),
				Post: ast.Set(ast.Ref(i), ast.Bin("+", ast.Ref(i), ast.IntLit(1))),
				Body: ast.Stmts(
					&ast.If{Cond: ast.Bin("==", ast.Ref(i), ast.IntLit(9)), Then: ast.Stmts(&ast.Break{})},
					&ast.If{
						Cond: ast.Bin("==", ast.Bin("%", ast.Ref(i), ast.IntLit(2)), ast.IntLit(0)),
						Then: ast.Stmts(&ast.Continue{}),
					},
					ast.Set(ast.Ref(sum), ast.Bin("+", ast.Ref(sum), ast.Ref(i))),
				),
			},
			ast.Ret(ast.Ref(sum)),
		)
		if code := run(t, compile(t, program(main))); code != 16 {
			t.Errorf("exit code = %d, want 16", code)
		}
	})
	t.Run("break outside", func(t *testing.T) {
		main := mainFn().Do(&ast.Break{}, ast.Ret(ast.IntLit(0)))
		ctx := NewContext(config.Default())
		if _, err := Generate(ctx, program(main)); err == nil || !strings.Contains(err.Error(), "outside of a loop") {
			t.Errorf("err = %v", err)
		}
	})
}

// TestVirtualCall tests object creation, the constructor and a vtable call
func TestVirtualCall(t *testing.T) {
	side := &ast.Field{Name: "side", Type: ast.Int}
	square := ast.NewClass("Square", side)
	area := ast.Method(square, "area", ast.Int, ast.Virtual)
	area.Do(ast.Ret(ast.Bin("*", ast.Dot(ast.Ref(area.Receiver), side), ast.Dot(ast.Ref(area.Receiver), side))))
	s := ast.Param("s", ast.Int)
	ctor := ast.Method(square, "init", ast.Void, 0, s)
	ctor.Do(ast.Set(ast.Dot(ast.Ref(ctor.Receiver), side), ast.Ref(s)))
	square.Ctor = ctor

	sq := ast.Local("sq", square.Ref)
	main := mainFn(sq).Do(
		ast.Set(ast.Ref(sq), &ast.New{Class: square, Args: []ast.Expression{ast.IntLit(7)}}),
		ast.Ret(ast.CallMethod(ast.Ref(sq), area)),
	)
	p := compile(t, ast.NewProgram("Main", []*ast.Class{square}, main))
	got := lines(t, p, "Program.Main")
	for _, want := range []string{"call Square.init", "mov r11, QWORD PTR [rdi]", "call QWORD PTR [r11]"} {
		if !contains(got, want) {
			t.Errorf("missing %q in\n%s", want, strings.Join(got, "\n"))
		}
	}
	src, err := p.Render()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(src, "Square.vtable:") || !strings.Contains(src, ".quad Square.area") {
		t.Errorf("vtable missing from the data section:\n%s", src)
	}
	if code := run(t, p); code != 49 {
		t.Errorf("exit code = %d, want 49", code)
	}
}

// TestStringLiteral tests that strings become labelled data
func TestStringLiteral(t *testing.T) {
	s := ast.Local("s", ast.String)
	main := mainFn(s).Do(
		ast.Set(ast.Ref(s), ast.StrLit("hi")),
		ast.Set(ast.Ref(s), ast.StrLit("hi")),
		ast.Ret(ast.IntLit(0)),
	)
	src, err := compile(t, program(main)).Render()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(src, `.asciz "hi"`) != 1 {
		t.Errorf("expected one shared string:\n%s", src)
	}
	if !strings.Contains(src, "OFFSET .S0") {
		t.Errorf("string address not stored:\n%s", src)
	}
}

// TestPoolExhaustion tests that running out of registers aborts generation
func TestPoolExhaustion(t *testing.T) {
	a := ast.Local("a", ast.Int)
	var e ast.Expression = ast.Bin("*", ast.Ref(a), ast.Ref(a))
	for range 7 {
		e = ast.Bin("+", ast.Bin("*", ast.Ref(a), ast.Ref(a)), e)
	}
	main := mainFn(a).Do(ast.Set(ast.Ref(a), ast.IntLit(2)), ast.Ret(e))
	ctx := NewContext(config.Default())
	p, err := Generate(ctx, program(main))
	var fault *diag.InternalFault
	if !errors.As(err, &fault) {
		t.Fatalf("err = %v, want an InternalFault", err)
	}
	if p != nil {
		t.Error("a program was returned after a fault")
	}
}

// TestMissingEntry tests the diagnostic for an unknown entry point
func TestMissingEntry(t *testing.T) {
	main := ast.Func("Program", "Mian", ast.Int).Do(ast.Ret(ast.IntLit(0)))
	ctx := NewContext(config.Default())
	_, err := Generate(ctx, program(main))
	if err == nil || !strings.Contains(ctx.Errors.Report(false), "Mian") {
		t.Errorf("err = %v, report:\n%s", err, ctx.Errors.Report(false))
	}
}
