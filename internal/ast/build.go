// Completion: 90% - Constructors used by the driver samples and tests
package ast

import (
	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/inlineasm"
)

// Helpers for building typed trees by hand, the way the semantic analyzer
// would deliver them.

// Param creates a by-value parameter
func Param(name string, t *TypeRef) *Variable {
	return &Variable{Name: name, Type: t, Param: true}
}

// RefParam creates a by-reference parameter
func RefParam(name string, t *TypeRef) *Variable {
	return &Variable{Name: name, Type: t, Param: true, ByRef: true}
}

// Local creates a local variable
func Local(name string, t *TypeRef) *Variable {
	return &Variable{Name: name, Type: t}
}

// Func creates a static function owned by owner
func Func(owner, name string, ret *TypeRef, params ...*Variable) *Function {
	return &Function{Name: name, Owner: owner, Return: ret, Params: params, Mods: Static, Body: &Block{}}
}

// Method creates an instance method of c
func Method(c *Class, name string, ret *TypeRef, mods Mods, params ...*Variable) *Function {
	fn := &Function{Name: name, Return: ret, Params: params, Mods: mods, Body: &Block{}}
	c.AddMethod(fn)
	return fn
}

// Declare adds locals to fn
func (f *Function) Declare(vars ...*Variable) *Function {
	f.Locals = append(f.Locals, vars...)
	return f
}

// Do appends statements to the body of fn
func (f *Function) Do(stmts ...Statement) *Function {
	f.Body.Stmts = append(f.Body.Stmts, stmts...)
	return f
}

// Stmts wraps statements in a block
func Stmts(stmts ...Statement) *Block {
	return &Block{Stmts: stmts}
}

// IntLit is a 64-bit signed literal
func IntLit(v int64) *Lit {
	return &Lit{Value: asm.Int(v), Typ: Int}
}

// TypedLit is an integer literal of the given type
func TypedLit(v int64, t *TypeRef) *Lit {
	return &Lit{Value: asm.Int(v), Typ: t}
}

// BoolLit is a boolean literal
func BoolLit(b bool) *Lit {
	return &Lit{Value: asm.Bool(b), Typ: Bool}
}

// StrLit is a string literal, stored in the data section
func StrLit(s string) *Lit {
	return &Lit{Value: asm.Literal{Kind: asm.LitString, Text: s}, Typ: String}
}

// Ref reads a variable
func Ref(v *Variable) *VarRef {
	return &VarRef{Var: v}
}

// Dot reads a field of an object
func Dot(obj Expression, f *Field) *FieldRef {
	return &FieldRef{Object: obj, Field: f}
}

// Bin is a built-in binary operator. Comparisons are bool typed, the rest
// take the type of the left operand.
func Bin(op string, l, r Expression) *Binary {
	b := &Binary{Op: op, Left: l, Right: r, Typ: l.Type()}
	if b.IsComparison() {
		b.Typ = Bool
	}
	return b
}

// Not is the logical negation
func Not(x Expression) *Unary {
	return &Unary{Op: "!", X: x, Typ: Bool}
}

// And is a short-circuit &&
func And(l, r Expression) *Logical {
	return &Logical{Op: "&&", Left: l, Right: r}
}

// Or is a short-circuit ||
func Or(l, r Expression) *Logical {
	return &Logical{Op: "||", Left: l, Right: r}
}

// CallFn calls a static function
func CallFn(fn *Function, args ...Expression) *Call {
	return &Call{Fn: fn, Args: args}
}

// CallMethod calls an instance method, through the vtable when it is virtual
func CallMethod(recv Expression, fn *Function, args ...Expression) *Call {
	return &Call{Fn: fn, Receiver: recv, Args: args, Virtual: fn.Is(Virtual)}
}

// Set assigns to a variable or a field
func Set(target, value Expression) *Assign {
	return &Assign{Target: target, Value: value}
}

// Ret returns a value, or nothing when v is nil
func Ret(v Expression) *Return {
	return &Return{Value: v}
}

// Eval evaluates an expression for its side effects
func Eval(x Expression) *ExprStmt {
	return &ExprStmt{X: x}
}

// InlineAsm wraps a parsed block, resolving $names against vars
func InlineAsm(b *inlineasm.Block, t *TypeRef, vars ...*Variable) *Asm {
	a := &Asm{Block: b, Vars: make(map[string]*Variable), Typ: t}
	for _, v := range vars {
		a.Vars[v.Name] = v
	}
	return a
}

// NewProgram lays out every function and marks overloads
func NewProgram(entry string, classes []*Class, fns ...*Function) *Program {
	p := &Program{Classes: classes, Functions: fns, Entry: entry}
	for _, c := range classes {
		for _, m := range c.Methods {
			if !lo.Contains(p.Functions, m) {
				p.Functions = append(p.Functions, m)
			}
		}
	}
	p.MarkOverloads()
	for _, fn := range p.Functions {
		LayoutFrame(fn)
	}
	return p
}
