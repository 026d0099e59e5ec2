// Completion: 95% - Statement and expression nodes complete
package ast

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/inlineasm"
)

// Node is any tree node
type Node interface {
	String() string
}

// Statement nodes
type Statement interface {
	Node
	statementNode()
}

// Expression nodes. Type returns the resolved type of the value.
type Expression interface {
	Node
	expressionNode()
	Type() *TypeRef
}

type Block struct {
	Stmts []Statement
}

func (b *Block) String() string {
	lines := lo.Map(b.Stmts, func(s Statement, _ int) string { return "  " + s.String() + ";" })
	return "{\n" + strings.Join(lines, "\n") + "\n}"
}
func (b *Block) statementNode() {}

type ExprStmt struct {
	X Expression
}

func (e *ExprStmt) String() string { return e.X.String() }
func (e *ExprStmt) statementNode() {}

// Assign stores Value into Target, which is a VarRef or a FieldRef
type Assign struct {
	Target Expression
	Value  Expression
}

func (a *Assign) String() string { return a.Target.String() + " = " + a.Value.String() }
func (a *Assign) statementNode() {}

type Return struct {
	Value Expression // nil for void functions
}

func (r *Return) String() string {
	if r.Value == nil {
		return "return"
	}
	return "return " + r.Value.String()
}
func (r *Return) statementNode() {}

type If struct {
	Cond Expression
	Then *Block
	Else Statement // nil, *Block or *If
}

func (i *If) String() string {
	s := fmt.Sprintf("if (%s) %s", i.Cond, i.Then)
	if i.Else != nil {
		s += " else " + i.Else.String()
	}
	return s
}
func (i *If) statementNode() {}

type While struct {
	Cond Expression
	Body *Block
}

func (w *While) String() string { return fmt.Sprintf("while (%s) %s", w.Cond, w.Body) }
func (w *While) statementNode() {}

// For is for (Init; Cond; Post) Body. Any of Init, Cond and Post may be nil.
type For struct {
	Init Statement
	Cond Expression
	Post Statement
	Body *Block
}

func (f *For) String() string {
	part := func(s Statement) string {
		if s == nil {
			return ""
		}
		return s.String()
	}
	var cond string
	if f.Cond != nil {
		cond = f.Cond.String()
	}
	return fmt.Sprintf("for (%s; %s; %s) %s", part(f.Init), cond, part(f.Post), f.Body)
}
func (f *For) statementNode() {}

type Break struct{}

func (b *Break) String() string { return "break" }
func (b *Break) statementNode() {}

type Continue struct{}

func (c *Continue) String() string { return "continue" }
func (c *Continue) statementNode() {}

// Lit is a literal of a built-in type
type Lit struct {
	Value asm.Literal
	Typ   *TypeRef
}

func (l *Lit) String() string {
	if l.Value.Kind == asm.LitString {
		return fmt.Sprintf("%q", l.Value.Text)
	}
	return l.Value.Text
}
func (l *Lit) expressionNode() {}
func (l *Lit) Type() *TypeRef  { return l.Typ }

type VarRef struct {
	Var *Variable
}

func (v *VarRef) String() string  { return v.Var.Name }
func (v *VarRef) expressionNode() {}
func (v *VarRef) Type() *TypeRef  { return v.Var.Type }

type FieldRef struct {
	Object Expression
	Field  *Field
}

func (f *FieldRef) String() string  { return f.Object.String() + "." + f.Field.Name }
func (f *FieldRef) expressionNode() {}
func (f *FieldRef) Type() *TypeRef  { return f.Field.Type }

// Binary is an arithmetic, bitwise or comparison operator. Overload is set
// when the operator resolves to a user-defined function.
type Binary struct {
	Op       string
	Left     Expression
	Right    Expression
	Typ      *TypeRef
	Overload *Function
}

func (b *Binary) String() string  { return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right) }
func (b *Binary) expressionNode() {}
func (b *Binary) Type() *TypeRef  { return b.Typ }

// IsComparison reports whether the operator produces a boolean from a compare
func (b *Binary) IsComparison() bool {
	return lo.Contains([]string{"==", "!=", "<", "<=", ">", ">="}, b.Op)
}

// Unary is -x, !x or ~x
type Unary struct {
	Op  string
	X   Expression
	Typ *TypeRef
}

func (u *Unary) String() string  { return u.Op + u.X.String() }
func (u *Unary) expressionNode() {}
func (u *Unary) Type() *TypeRef  { return u.Typ }

// Logical is a short-circuit && or ||
type Logical struct {
	Op    string
	Left  Expression
	Right Expression
}

func (l *Logical) String() string  { return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right) }
func (l *Logical) expressionNode() {}
func (l *Logical) Type() *TypeRef  { return Bool }

// Call invokes Fn. Receiver is set for instance methods. Virtual calls
// dispatch through the receiver's vtable.
type Call struct {
	Fn       *Function
	Receiver Expression
	Args     []Expression
	Virtual  bool
}

func (c *Call) String() string {
	args := lo.Map(c.Args, func(a Expression, _ int) string { return a.String() })
	name := c.Fn.Name
	if c.Receiver != nil {
		name = c.Receiver.String() + "." + name
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}
func (c *Call) expressionNode() {}
func (c *Call) Type() *TypeRef  { return c.Fn.Return }

// New allocates an instance and runs the constructor, if the class has one
type New struct {
	Class *Class
	Args  []Expression
}

func (n *New) String() string {
	args := lo.Map(n.Args, func(a Expression, _ int) string { return a.String() })
	return fmt.Sprintf("new %s(%s)", n.Class.Name, strings.Join(args, ", "))
}
func (n *New) expressionNode() {}
func (n *New) Type() *TypeRef  { return n.Class.Ref }

// Asm is a parsed inline assembly block. Vars resolves the $names it uses.
type Asm struct {
	Block *inlineasm.Block
	Vars  map[string]*Variable
	Typ   *TypeRef // type of the returned value, Void if none
}

func (a *Asm) String() string  { return "asm " + a.Block.Name }
func (a *Asm) expressionNode() {}
func (a *Asm) Type() *TypeRef  { return a.Typ }
