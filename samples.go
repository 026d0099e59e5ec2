// Completion: 100% - Built-in sample programs
package main

import (
	"fmt"

	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/diag"
	"github.com/xyproto/x64c/internal/inlineasm"
)

type sample struct {
	about string
	build func(inline bool) *ast.Program
}

var samples = map[string]sample{
	"fact":   {"recursive factorial of 10", factSample},
	"shapes": {"objects with a constructor and virtual area()", shapesSample},
	"asm":    {"inline assembly blocks reading and writing locals", asmSample},
	"loops":  {"while and for loops with break and continue", loopsSample},
	"args":   {"a call with eight arguments", argsSample},
}

func markInline(inline bool, fns ...*ast.Function) {
	if !inline {
		return
	}
	for _, fn := range fns {
		fn.Mods |= ast.Inline
	}
}

func factSample(inline bool) *ast.Program {
	n := ast.Param("n", ast.Int)
	fact := ast.Func("Program", "fact", ast.Int, n)
	fact.Do(
		&ast.If{Cond: ast.Bin("<=", ast.Ref(n), ast.IntLit(1)), Then: ast.Stmts(ast.Ret(ast.IntLit(1)))},
		ast.Ret(ast.Bin("*", ast.Ref(n), ast.CallFn(fact, ast.Bin("-", ast.Ref(n), ast.IntLit(1))))),
	)
	markInline(inline, fact)
	main := ast.Func("Program", "Main", ast.Int).Do(ast.Ret(ast.CallFn(fact, ast.IntLit(10))))
	return ast.NewProgram("Main", nil, main, fact)
}

func shapesSample(inline bool) *ast.Program {
	w := &ast.Field{Name: "w", Type: ast.Int}
	h := &ast.Field{Name: "h", Type: ast.Int}
	rect := ast.NewClass("Rect", w, h)
	area := ast.Method(rect, "area", ast.Int, ast.Virtual)
	this := ast.Ref(area.Receiver)
	area.Do(ast.Ret(ast.Bin("*", ast.Dot(this, w), ast.Dot(this, h))))

	pw, ph := ast.Param("w", ast.Int), ast.Param("h", ast.Int)
	ctor := ast.Method(rect, "ctor", ast.Void, 0, pw, ph)
	ctor.Do(
		ast.Set(ast.Dot(ast.Ref(ctor.Receiver), w), ast.Ref(pw)),
		ast.Set(ast.Dot(ast.Ref(ctor.Receiver), h), ast.Ref(ph)),
	)
	rect.Ctor = ctor
	markInline(inline, ctor)

	a, b := ast.Local("a", rect.Ref), ast.Local("b", rect.Ref)
	main := ast.Func("Program", "Main", ast.Int).Declare(a, b).Do(
		ast.Set(ast.Ref(a), &ast.New{Class: rect, Args: []ast.Expression{ast.IntLit(3), ast.IntLit(4)}}),
		ast.Set(ast.Ref(b), &ast.New{Class: rect, Args: []ast.Expression{ast.IntLit(5), ast.IntLit(6)}}),
		ast.Ret(ast.Bin("+", ast.CallMethod(ast.Ref(a), area), ast.CallMethod(ast.Ref(b), area))),
	)
	return ast.NewProgram("Main", []*ast.Class{rect}, main)
}

// mustAsm parses a built-in block
func mustAsm(name, src string) *inlineasm.Block {
	errs := diag.NewCollector(0)
	b, ok := inlineasm.Parse(name, src, errs)
	if !ok {
		panic(fmt.Sprintf("sample block %s: %s", name, errs.Report(false)))
	}
	return b
}

func asmSample(inline bool) *ast.Program {
	x, y := ast.Local("x", ast.Int), ast.Local("y", ast.Int)
	v := ast.RefParam("v", ast.Int)
	double := ast.Func("Program", "double", ast.Void, v).Do(
		ast.Eval(ast.InlineAsm(mustAsm("double", "{ shl $v, 1; }"), ast.Void, v)),
	)
	markInline(inline, double)
	main := ast.Func("Program", "Main", ast.Int).Declare(x, y).Do(
		ast.Set(ast.Ref(x), ast.IntLit(6)),
		ast.Set(ast.Ref(y), ast.IntLit(7)),
		ast.Eval(ast.InlineAsm(mustAsm("mul", "{ imul $x, $y; }"), ast.Void, x, y)),
		ast.Eval(ast.CallFn(double, ast.Ref(x))),
		ast.Ret(ast.InlineAsm(mustAsm("sum", "{ alloc t; mov t, $x; add t, 2; return t; }"), ast.Int, x)),
	)
	return ast.NewProgram("Main", nil, main, double)
}

func loopsSample(inline bool) *ast.Program {
	n := ast.Param("n", ast.Int)
	odd := ast.Func("Program", "odd", ast.Bool, n).Do(
		ast.Ret(ast.Bin("==", ast.Bin("&", ast.Ref(n), ast.IntLit(1)), ast.IntLit(1))),
	)
	markInline(inline, odd)

	i, sum := ast.Local("i", ast.Int), ast.Local("sum", ast.Int)
	main := ast.Func("Program", "Main", ast.Int).Declare(i, sum).Do(
		ast.Set(ast.Ref(sum), ast.IntLit(0)),
		&ast.For{
			Init: ast.Set(ast.Ref(i), ast.IntLit(0)),
			Cond: ast.Bin("<", ast.Ref(i), ast.IntLit(100)),
			Post: ast.Set(ast.Ref(i), ast.Bin("+", ast.Ref(i), ast.IntLit(1))),
			Body: ast.Stmts(
				&ast.If{Cond: ast.Bin(">", ast.Ref(sum), ast.IntLit(200)), Then: ast.Stmts(&ast.Break{})},
				&ast.If{Cond: ast.Not(ast.CallFn(odd, ast.Ref(i))), Then: ast.Stmts(&ast.Continue{})},
				ast.Set(ast.Ref(sum), ast.Bin("+", ast.Ref(sum), ast.Ref(i))),
			),
		},
		&ast.While{
			Cond: ast.And(ast.Bin(">", ast.Ref(sum), ast.IntLit(100)), ast.CallFn(odd, ast.Ref(sum))),
			Body: ast.Stmts(ast.Set(ast.Ref(sum), ast.Bin("-", ast.Ref(sum), ast.IntLit(3)))),
		},
		ast.Ret(ast.Ref(sum)),
	)
	return ast.NewProgram("Main", nil, main, odd)
}

func argsSample(inline bool) *ast.Program {
	params := make([]*ast.Variable, 8)
	args := make([]ast.Expression, 8)
	var body ast.Expression
	for k := range params {
		params[k] = ast.Param(fmt.Sprintf("p%d", k), ast.Int)
		args[k] = ast.IntLit(int64(k + 1))
		if body == nil {
			body = ast.Ref(params[k])
			continue
		}
		body = ast.Bin("+", ast.Bin("*", body, ast.IntLit(2)), ast.Ref(params[k]))
	}
	f := ast.Func("Program", "mix", ast.Int, params...).Do(ast.Ret(body))
	markInline(inline, f)
	main := ast.Func("Program", "Main", ast.Int).Do(ast.Ret(ast.CallFn(f, args...)))
	return ast.NewProgram("Main", nil, main, f)
}
