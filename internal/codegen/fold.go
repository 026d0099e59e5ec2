// Completion: 100% - Constant folding complete
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/diag"
)

// numeric returns the value of an integer or boolean literal
func numeric(l asm.Literal) (uint64, bool) {
	switch l.Kind {
	case asm.LitInt, asm.LitUInt, asm.LitHex, asm.LitBinary, asm.LitBool:
		v, err := l.Bits()
		return v, err == nil
	}
	return 0, false
}

// truth is the boolean value of a literal. Labels are non-null addresses.
func truth(l asm.Literal) bool {
	if l.IsLabel() || l.Kind == asm.LitString {
		return true
	}
	v, _ := l.Bits()
	return v != 0
}

// wrap truncates v to size and extends it back to 64 bits
func wrap(v uint64, size asm.Size, signed bool) uint64 {
	bits := uint(size.Bytes() * 8)
	if bits == 0 || bits >= 64 {
		return v
	}
	if signed {
		shift := 64 - bits
		return uint64(int64(v<<shift) >> shift)
	}
	return v & (1<<bits - 1)
}

func literalOf(v uint64, signed bool) asm.Literal {
	if signed {
		return asm.Int(int64(v))
	}
	return asm.UInt(v)
}

// fold evaluates a binary operator on two literals at the operand width.
// It reports false when the operands are not both numeric.
func (g *Generator) fold(op string, l, r asm.Literal, size asm.Size, signed bool) (asm.Operand, bool) {
	a, ok1 := numeric(l)
	b, ok2 := numeric(r)
	if !ok1 || !ok2 {
		return nil, false
	}
	a, b = wrap(a, size, signed), wrap(b, size, signed)
	sa, sb := int64(a), int64(b)
	var v uint64
	switch op {
	case "+":
		v = a + b
	case "-":
		v = a - b
	case "*":
		v = a * b
	case "&":
		v = a & b
	case "|":
		v = a | b
	case "^":
		v = a ^ b
	case "<<":
		v = a << (b & 63)
	case ">>":
		if signed {
			v = uint64(sa >> (b & 63))
		} else {
			v = a >> (b & 63)
		}
	case "/", "%":
		if b == 0 {
			g.report(diag.Backendf("division by zero in constant expression"))
			return asm.Int(0), true
		}
		switch {
		case signed && op == "/":
			v = uint64(sa / sb)
		case signed:
			v = uint64(sa % sb)
		case op == "/":
			v = a / b
		default:
			v = a % b
		}
	case "==":
		return asm.Bool(a == b), true
	case "!=":
		return asm.Bool(a != b), true
	case "<":
		return asm.Bool(lessThan(a, b, signed)), true
	case "<=":
		return asm.Bool(!lessThan(b, a, signed)), true
	case ">":
		return asm.Bool(lessThan(b, a, signed)), true
	case ">=":
		return asm.Bool(!lessThan(a, b, signed)), true
	default:
		return nil, false
	}
	g.logf("fold: %s %s %s", l, op, r)
	return literalOf(wrap(v, size, signed), signed), true
}

func lessThan(a, b uint64, signed bool) bool {
	if signed {
		return int64(a) < int64(b)
	}
	return a < b
}

// foldUnary evaluates -, ~ and ! on a literal
func (g *Generator) foldUnary(op string, x asm.Literal, size asm.Size, signed bool) (asm.Operand, bool) {
	if op == "!" {
		return asm.Bool(!truth(x)), true
	}
	v, ok := numeric(x)
	if !ok {
		return nil, false
	}
	switch op {
	case "-":
		v = -v
	case "~":
		v = ^v
	default:
		return nil, false
	}
	return literalOf(wrap(v, size, signed), signed), true
}
