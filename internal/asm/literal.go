// Completion: 95% - Literal sizing and encoding complete
package asm

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// LitKind is the source kind of a literal. The text of a literal is kept
// as written and only turned into bits when needed.
type LitKind uint8

const (
	LitInt LitKind = iota
	LitUInt
	LitFloat
	LitString
	LitBool
	LitBinary
	LitHex
	LitDataLabel
	LitProcLabel
)

func (k LitKind) String() string {
	switch k {
	case LitInt:
		return "int"
	case LitUInt:
		return "uint"
	case LitFloat:
		return "float"
	case LitString:
		return "string"
	case LitBool:
		return "bool"
	case LitBinary:
		return "binary"
	case LitHex:
		return "hex"
	case LitDataLabel:
		return "data label"
	case LitProcLabel:
		return "procedure label"
	}
	return "unknown"
}

// Literal is an immediate value or a label reference
type Literal struct {
	Kind LitKind
	Text string
}

var ErrNotNumeric = errors.New("literal has no numeric encoding")

// Int returns a signed integer literal
func Int(v int64) Literal {
	return Literal{Kind: LitInt, Text: strconv.FormatInt(v, 10)}
}

// UInt returns an unsigned integer literal
func UInt(v uint64) Literal {
	return Literal{Kind: LitUInt, Text: strconv.FormatUint(v, 10)}
}

// Hex returns a hexadecimal literal
func Hex(v uint64) Literal {
	return Literal{Kind: LitHex, Text: fmt.Sprintf("0x%X", v)}
}

// Bool returns a boolean literal
func Bool(b bool) Literal {
	if b {
		return Literal{Kind: LitBool, Text: "true"}
	}
	return Literal{Kind: LitBool, Text: "false"}
}

// DataLabel returns a reference to the address of a data label
func DataLabel(name string) Literal {
	return Literal{Kind: LitDataLabel, Text: name}
}

// ProcLabel returns a reference to a procedure or local code label
func ProcLabel(name string) Literal {
	return Literal{Kind: LitProcLabel, Text: name}
}

// IsLabel reports whether the literal names an address rather than a value
func (l Literal) IsLabel() bool {
	return l.Kind == LitDataLabel || l.Kind == LitProcLabel
}

func stripPrefix(text string, prefixes ...string) (string, bool) {
	neg := false
	if strings.HasPrefix(text, "-") {
		neg = true
		text = text[1:]
	}
	for _, p := range prefixes {
		if len(text) >= len(p) && strings.EqualFold(text[:len(p)], p) {
			text = text[len(p):]
			break
		}
	}
	return strings.ReplaceAll(text, "_", ""), neg
}

// Bits returns the 64-bit pattern of a numeric literal
func (l Literal) Bits() (uint64, error) {
	switch l.Kind {
	case LitInt:
		v, err := strconv.ParseInt(l.Text, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer literal %q: %w", l.Text, err)
		}
		return uint64(v), nil
	case LitUInt:
		v, err := strconv.ParseUint(l.Text, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid unsigned literal %q: %w", l.Text, err)
		}
		return v, nil
	case LitBool:
		switch l.Text {
		case "true", "1":
			return 1, nil
		case "false", "0":
			return 0, nil
		}
		return 0, fmt.Errorf("invalid boolean literal %q", l.Text)
	case LitBinary, LitHex:
		base, prefix := 2, "0b"
		if l.Kind == LitHex {
			base, prefix = 16, "0x"
		}
		digits, neg := stripPrefix(l.Text, prefix)
		v, err := strconv.ParseUint(digits, base, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s literal %q: %w", l.Kind, l.Text, err)
		}
		if neg {
			return -v, nil
		}
		return v, nil
	case LitFloat:
		text := l.Text
		single := strings.HasSuffix(text, "f") || strings.HasSuffix(text, "F")
		if single {
			text = text[:len(text)-1]
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid float literal %q: %w", l.Text, err)
		}
		if single {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil
	}
	return 0, fmt.Errorf("%s %q: %w", l.Kind, l.Text, ErrNotNumeric)
}

// MinSize returns the minimum byte width (1, 2, 4 or 8) needed to hold the
// literal, inferred from its kind and magnitude
func (l Literal) MinSize() (int, error) {
	switch l.Kind {
	case LitBool:
		return 1, nil
	case LitFloat:
		if strings.HasSuffix(l.Text, "f") || strings.HasSuffix(l.Text, "F") {
			return 4, nil
		}
		return 8, nil
	case LitString, LitDataLabel, LitProcLabel:
		return 8, nil
	case LitInt:
		v, err := strconv.ParseInt(l.Text, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer literal %q: %w", l.Text, err)
		}
		switch {
		case v >= math.MinInt8 && v <= math.MaxUint8:
			return 1, nil
		case v >= math.MinInt16 && v <= math.MaxUint16:
			return 2, nil
		case v >= math.MinInt32 && v <= math.MaxUint32:
			return 4, nil
		}
		return 8, nil
	}
	v, err := l.Bits()
	if err != nil {
		return 0, err
	}
	if l.Kind == LitBinary || l.Kind == LitHex {
		if _, neg := stripPrefix(l.Text); neg {
			return Int(int64(v)).MinSize()
		}
	}
	switch n := bits.Len64(v); {
	case n <= 8:
		return 1, nil
	case n <= 16:
		return 2, nil
	case n <= 32:
		return 4, nil
	}
	return 8, nil
}

// FitsImm32 reports whether the literal can be encoded as a
// sign-extended 32-bit immediate
func (l Literal) FitsImm32() bool {
	if l.IsLabel() {
		return true
	}
	v, err := l.Bits()
	if err != nil {
		return false
	}
	s := int64(v)
	return s >= math.MinInt32 && s <= math.MaxInt32
}

// Halves splits the literal's 64-bit pattern into its low and high 32 bits
func (l Literal) Halves() (lo, hi Literal, err error) {
	v, err := l.Bits()
	if err != nil {
		return Literal{}, Literal{}, err
	}
	return Hex(v & 0xFFFFFFFF), Hex(v >> 32), nil
}

// render returns the operand spelling in Intel syntax. Branch and call
// targets are written bare, other label references as OFFSET.
func (l Literal) render(branchTarget bool) string {
	switch l.Kind {
	case LitInt, LitUInt, LitHex:
		return l.Text
	case LitBool:
		if l.Text == "true" || l.Text == "1" {
			return "1"
		}
		return "0"
	case LitBinary:
		if v, err := l.Bits(); err == nil {
			return strconv.FormatInt(int64(v), 10)
		}
		return l.Text
	case LitFloat:
		if v, err := l.Bits(); err == nil {
			return fmt.Sprintf("0x%X", v)
		}
		return l.Text
	case LitDataLabel, LitProcLabel:
		if branchTarget {
			return l.Text
		}
		return "OFFSET " + l.Text
	}
	return strconv.Quote(l.Text)
}

func (l Literal) String() string {
	return l.render(false)
}
