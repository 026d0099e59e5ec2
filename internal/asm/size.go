// Completion: 100% - Operand size classes complete
package asm

// Size is the width class of a register or memory operand.
// S8High is the upper-8 alias of the 16-bit register (ah, bh, ch, dh).
type Size uint8

const (
	SizeNone Size = iota
	S8
	S16
	S32
	S64
	S8High
)

// Bytes returns the width in bytes
func (s Size) Bytes() int {
	switch s {
	case S8, S8High:
		return 1
	case S16:
		return 2
	case S32:
		return 4
	case S64:
		return 8
	default:
		return 0
	}
}

// Keyword returns the Intel syntax memory size keyword
func (s Size) Keyword() string {
	switch s {
	case S8, S8High:
		return "BYTE"
	case S16:
		return "WORD"
	case S32:
		return "DWORD"
	case S64:
		return "QWORD"
	default:
		return ""
	}
}

func (s Size) String() string {
	switch s {
	case S8:
		return "8"
	case S16:
		return "16"
	case S32:
		return "32"
	case S64:
		return "64"
	case S8High:
		return "8h"
	default:
		return "none"
	}
}

// SizeOf maps a width in bytes to its size class
func SizeOf(bytes int) (Size, bool) {
	switch bytes {
	case 1:
		return S8, true
	case 2:
		return S16, true
	case 4:
		return S32, true
	case 8:
		return S64, true
	default:
		return SizeNone, false
	}
}

// MustSizeOf is like SizeOf but widens unknown widths to 64 bits
func MustSizeOf(bytes int) Size {
	if s, ok := SizeOf(bytes); ok {
		return s
	}
	return S64
}
