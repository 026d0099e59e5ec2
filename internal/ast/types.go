// Completion: 95% - Type, storage and function descriptors complete
package ast

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/engine"
)

// Kind is the machine category of a type
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt
	KindUInt
	KindBool
	KindPointer
	KindClass
	KindString
)

// TypeRef is a resolved type. ID is the identity used when mangling overloads.
type TypeRef struct {
	Name  string
	ID    int
	Kind  Kind
	Size  int // bytes, 8 for class references
	Class *Class
}

// Predefined types
var (
	Void   = &TypeRef{Name: "void", ID: 1, Kind: KindVoid}
	Int    = &TypeRef{Name: "int", ID: 2, Kind: KindInt, Size: 8}
	Int32  = &TypeRef{Name: "int32", ID: 3, Kind: KindInt, Size: 4}
	Int16  = &TypeRef{Name: "int16", ID: 4, Kind: KindInt, Size: 2}
	Byte   = &TypeRef{Name: "byte", ID: 5, Kind: KindUInt, Size: 1}
	UInt   = &TypeRef{Name: "uint", ID: 6, Kind: KindUInt, Size: 8}
	Bool   = &TypeRef{Name: "bool", ID: 7, Kind: KindBool, Size: 1}
	String = &TypeRef{Name: "string", ID: 8, Kind: KindString, Size: 8}
)

// AsmSize returns the operand width of a value of this type
func (t *TypeRef) AsmSize() asm.Size {
	if t == nil || t.Kind == KindVoid {
		return asm.SizeNone
	}
	return asm.MustSizeOf(t.Size)
}

// Signed reports whether comparisons and widening treat the type as signed
func (t *TypeRef) Signed() bool {
	return t != nil && t.Kind == KindInt
}

func (t *TypeRef) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// Field is a data member at a fixed byte offset inside an instance
type Field struct {
	Name   string
	Type   *TypeRef
	Offset int
}

// Class is a user type. An instance with virtual methods stores its vtable
// pointer at offset 0.
type Class struct {
	Name    string
	ID      int
	Size    int
	Fields  []*Field
	Methods []*Function
	Virtual []*Function // vtable order
	Ctor    *Function
	Ref     *TypeRef // the reference type of this class
}

// NewClass creates a class with the given fields and lays it out
func NewClass(name string, fields ...*Field) *Class {
	c := &Class{Name: name, ID: engine.HashName(name), Fields: fields}
	c.Ref = &TypeRef{Name: name, ID: c.ID, Kind: KindClass, Size: 8, Class: c}
	c.Layout()
	return c
}

// HasVTable reports whether instances start with a vtable pointer
func (c *Class) HasVTable() bool {
	return len(c.Virtual) > 0
}

// VTableLabel is the data label of the class vtable
func (c *Class) VTableLabel() string {
	return c.Name + ".vtable"
}

// Layout assigns field offsets, each field aligned to its own size,
// after the vtable pointer if there is one
func (c *Class) Layout() {
	off := 0
	if c.HasVTable() {
		off = 8
	}
	for _, f := range c.Fields {
		size := max(f.Type.Size, 1)
		off = align(off, size)
		f.Offset = off
		off += size
	}
	c.Size = max(align(off, 8), 8)
}

// Field looks up a field by name
func (c *Class) Field(name string) (*Field, bool) {
	return lo.Find(c.Fields, func(f *Field) bool { return f.Name == name })
}

// AddMethod attaches fn to the class. Virtual methods get the next vtable slot
// and the layout is redone, since the first one moves every field.
func (c *Class) AddMethod(fn *Function) {
	fn.Owner = c.Name
	c.Methods = append(c.Methods, fn)
	if fn.Is(Static) {
		return
	}
	fn.Class = c
	fn.Receiver = &Variable{Name: "this", Type: c.Ref, Param: true}
	if fn.Is(Virtual) {
		fn.VIndex = len(c.Virtual)
		c.Virtual = append(c.Virtual, fn)
		c.Layout()
	}
}

// Variable is a parameter or local with its frame offset relative to rbp.
// Register parameters and locals live below rbp, stack parameters above it.
// A by-reference variable holds the address of its value.
type Variable struct {
	Name   string
	Type   *TypeRef
	Offset int
	ByRef  bool
	Param  bool
}

// StorageSize is the number of frame bytes the variable occupies
func (v *Variable) StorageSize() int {
	if v.ByRef {
		return 8
	}
	return max(v.Type.Size, 1)
}

func (v *Variable) String() string {
	if v.ByRef {
		return "ref " + v.Name
	}
	return v.Name
}

// Mods are function modifiers
type Mods uint8

const (
	Static Mods = 1 << iota
	Inline
	RefReturn // returns a reference
	Unsafe
	Virtual
)

var modNames = []string{"static", "inline", "ref", "unsafe", "virtual"}

func (m Mods) String() string {
	names := lo.Filter(modNames, func(_ string, i int) bool { return m&(1<<i) != 0 })
	return strings.Join(names, " ")
}

// Function is a resolved callee descriptor together with its body
type Function struct {
	Name       string
	Owner      string // enclosing type name
	Class      *Class // set for instance methods
	Params     []*Variable
	Receiver   *Variable // nil for static functions
	Locals     []*Variable
	Return     *TypeRef
	Mods       Mods
	Body       *Block
	FrameSize  int
	Overloaded bool // another function shares Owner.Name
	VIndex     int  // vtable slot for virtual methods
}

// Is reports whether every modifier in m is set
func (f *Function) Is(m Mods) bool {
	return f.Mods&m == m
}

// Args returns the receiver, if any, followed by the parameters
func (f *Function) Args() []*Variable {
	if f.Receiver == nil {
		return f.Params
	}
	return append([]*Variable{f.Receiver}, f.Params...)
}

// LinkName returns the mangled symbol name: Owner.Name, with a hash of the
// parameter type identities appended when the name is overloaded
func (f *Function) LinkName() string {
	name := f.Name
	if f.Owner != "" {
		name = f.Owner + "." + f.Name
	}
	if !f.Overloaded {
		return name
	}
	ids := lo.Map(f.Params, func(v *Variable, _ int) int {
		if v.ByRef {
			return -v.Type.ID
		}
		return v.Type.ID
	})
	return name + engine.HashSuffix(ids...)
}

// Signature returns a readable form for diagnostics
func (f *Function) Signature() string {
	params := lo.Map(f.Params, func(v *Variable, _ int) string {
		return fmt.Sprintf("%s %s", v.Type, v)
	})
	sig := fmt.Sprintf("%s %s(%s)", f.Return, f.Name, strings.Join(params, ", "))
	if f.Mods != 0 {
		sig = f.Mods.String() + " " + sig
	}
	return sig
}

// Program is the whole typed tree handed to the code generator
type Program struct {
	Classes   []*Class
	Functions []*Function
	Entry     string
}

// Lookup finds a function by plain or linkage name
func (p *Program) Lookup(name string) (*Function, bool) {
	return lo.Find(p.Functions, func(f *Function) bool {
		return f.Name == name || f.LinkName() == name
	})
}

// MarkOverloads sets Overloaded on functions sharing Owner.Name
func (p *Program) MarkOverloads() {
	groups := lo.GroupBy(p.Functions, func(f *Function) string { return f.Owner + "." + f.Name })
	for _, g := range groups {
		for _, f := range g {
			f.Overloaded = len(g) > 1
		}
	}
}

func align(n, to int) int {
	if to <= 1 {
		return n
	}
	return (n + to - 1) / to * to
}

// LayoutFrame assigns frame offsets to the receiver, parameters and locals of
// fn and sets FrameSize. The first six arguments are stored below rbp,
// the rest are read from the caller's pushes at rbp+16 upwards.
func LayoutFrame(fn *Function) {
	off := 0
	place := func(v *Variable) {
		size := v.StorageSize()
		off = align(off+size, size)
		v.Offset = -off
	}
	for i, v := range fn.Args() {
		v.Param = true
		if i < 6 {
			place(v)
		} else {
			v.Offset = 16 + 8*(i-6)
		}
	}
	for _, v := range fn.Locals {
		place(v)
	}
	fn.FrameSize = align(off, 8)
}
