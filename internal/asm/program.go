// Completion: 95% - Intel syntax rendering complete
package asm

import (
	"fmt"
	"strings"
)

// Program is a complete generated compilation unit
type Program struct {
	Text     *Stream
	Data     *Stream
	Bindings *Bindings
}

// NewProgram returns an empty program with its own handle table
func NewProgram() *Program {
	return &Program{
		Text:     NewStream(),
		Data:     NewStream(),
		Bindings: NewBindings(),
	}
}

// RenderError reports an operand that has no spelling, such as the upper-8
// alias of a register that has none
type RenderError struct {
	Index   int
	Message string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("instruction %d: %s", e.Index, e.Message)
}

type renderer struct {
	b     *Bindings
	at    uint64
	index int
}

func (r *renderer) register(reg Register) (string, error) {
	phys := r.b.Resolve(reg, r.at)
	if phys == NoPhys {
		return "", &RenderError{r.index, fmt.Sprintf("unbound register handle %d", reg.Handle)}
	}
	name, ok := phys.Name(reg.Size)
	if !ok {
		return "", &RenderError{r.index, fmt.Sprintf("register %s has no %s-bit alias", phys, reg.Size)}
	}
	return name, nil
}

func (r *renderer) operand(op Operand, branch bool) (string, error) {
	switch x := op.(type) {
	case Register:
		return r.register(x)
	case Pointer:
		base, err := r.register(x.Base.Resize(S64))
		if err != nil {
			return "", err
		}
		addr := base
		switch {
		case x.Disp > 0:
			addr = fmt.Sprintf("%s+%d", base, x.Disp)
		case x.Disp < 0:
			addr = fmt.Sprintf("%s%d", base, x.Disp)
		}
		if x.Size == SizeNone {
			return "[" + addr + "]", nil
		}
		return fmt.Sprintf("%s PTR [%s]", x.Size.Keyword(), addr), nil
	case Literal:
		return x.render(branch), nil
	}
	return "", &RenderError{r.index, fmt.Sprintf("unknown operand %T", op)}
}

// selfMove reports a 64-bit register move onto itself, which is dropped
func (r *renderer) selfMove(ins Binary) bool {
	if ins.Op != MOV {
		return false
	}
	dst, ok1 := ins.Dst.(Register)
	src, ok2 := ins.Src.(Register)
	if !ok1 || !ok2 || dst.Size != S64 || src.Size != S64 {
		return false
	}
	return r.b.Resolve(dst, r.at) == r.b.Resolve(src, r.at)
}

func (r *renderer) line(ins Instruction) (string, error) {
	switch x := ins.(type) {
	case Binary:
		if r.selfMove(x) {
			return "", nil
		}
		dst, err := r.operand(x.Dst, false)
		if err != nil {
			return "", err
		}
		src, err := r.operand(x.Src, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("\t%s %s, %s\n", x.Op, dst, src), nil
	case Unary:
		op, err := r.operand(x.Operand, x.Op.IsBranch())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("\t%s %s\n", x.Op, op), nil
	case Zero:
		return fmt.Sprintf("\t%s\n", x.Op), nil
	case Global:
		return fmt.Sprintf(".global %s\n", x.Name), nil
	case Section:
		return fmt.Sprintf(".section %s\n", x.Name), nil
	case Label:
		if x.Procedure {
			return fmt.Sprintf("\n%s:\n", x.Name), nil
		}
		return fmt.Sprintf("%s:\n", x.Name), nil
	case Data:
		return fmt.Sprintf("%s:\n\t%s %s\n", x.Label, x.Directive, strings.Join(x.Values, ", ")), nil
	case Comment:
		return fmt.Sprintf("\t# %s\n", x.Text), nil
	}
	return "", &RenderError{r.index, fmt.Sprintf("unknown instruction %T", ins)}
}

// RenderStream writes one stream as Intel syntax text
func RenderStream(sb *strings.Builder, s *Stream, b *Bindings) error {
	r := &renderer{b: b}
	for i, e := range s.Entries() {
		r.at, r.index = e.At, i
		text, err := r.line(e.Ins)
		if err != nil {
			return err
		}
		sb.WriteString(text)
	}
	return nil
}

// Render returns the whole program as GNU as source, Intel syntax without
// register prefixes
func (p *Program) Render() (string, error) {
	var sb strings.Builder
	sb.WriteString(".intel_syntax noprefix\n")
	if err := RenderStream(&sb, p.Text, p.Bindings); err != nil {
		return "", err
	}
	if p.Data.Len() > 0 {
		sb.WriteString("\n")
		if err := RenderStream(&sb, p.Data, p.Bindings); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

// FormatInstruction renders a single instruction as it is at the given clock tick,
// without indentation. Used by tests and verbose tracing.
func FormatInstruction(ins Instruction, b *Bindings, at uint64) string {
	r := &renderer{b: b, at: at}
	text, err := r.line(ins)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return strings.TrimSpace(text)
}

// Lines renders the text stream into trimmed lines, skipping blank ones
func (p *Program) Lines() ([]string, error) {
	var sb strings.Builder
	if err := RenderStream(&sb, p.Text, p.Bindings); err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
