// Completion: 100% - Register definitions complete
package asm

// Phys is a physical x86_64 general purpose register
type Phys uint8

const (
	NoPhys Phys = iota
	RAX
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// x86_64 register spellings, indexed by size class
// (none, 8, 16, 32, 64, 8-high)
var physNames = map[Phys][6]string{
	RAX: {"", "al", "ax", "eax", "rax", "ah"},
	RBX: {"", "bl", "bx", "ebx", "rbx", "bh"},
	RCX: {"", "cl", "cx", "ecx", "rcx", "ch"},
	RDX: {"", "dl", "dx", "edx", "rdx", "dh"},
	RSI: {"", "sil", "si", "esi", "rsi", ""},
	RDI: {"", "dil", "di", "edi", "rdi", ""},
	RBP: {"", "bpl", "bp", "ebp", "rbp", ""},
	RSP: {"", "spl", "sp", "esp", "rsp", ""},
	R8:  {"", "r8b", "r8w", "r8d", "r8", ""},
	R9:  {"", "r9b", "r9w", "r9d", "r9", ""},
	R10: {"", "r10b", "r10w", "r10d", "r10", ""},
	R11: {"", "r11b", "r11w", "r11d", "r11", ""},
	R12: {"", "r12b", "r12w", "r12d", "r12", ""},
	R13: {"", "r13b", "r13w", "r13d", "r13", ""},
	R14: {"", "r14b", "r14w", "r14d", "r14", ""},
	R15: {"", "r15b", "r15w", "r15d", "r15", ""},
}

// lookup table from any spelling back to (register, size)
var physByName = func() map[string]struct {
	p Phys
	s Size
} {
	m := make(map[string]struct {
		p Phys
		s Size
	})
	for p, names := range physNames {
		for s, name := range names {
			if name != "" {
				m[name] = struct {
					p Phys
					s Size
				}{p, Size(s)}
			}
		}
	}
	return m
}()

// Name returns the spelling of the register at the given size.
// ok is false when the register has no such alias (for example r12 has no upper-8 byte).
func (p Phys) Name(s Size) (string, bool) {
	names, found := physNames[p]
	if !found || int(s) >= len(names) {
		return "", false
	}
	name := names[s]
	return name, name != ""
}

// HasHigh8 reports whether the register has an upper-8 alias
func (p Phys) HasHigh8() bool {
	_, ok := p.Name(S8High)
	return ok
}

func (p Phys) String() string {
	if name, ok := p.Name(S64); ok {
		return name
	}
	return "?"
}

// LookupPhys resolves a hardware register spelling such as "eax" or "r12b"
func LookupPhys(name string) (Phys, Size, bool) {
	entry, ok := physByName[name]
	if !ok {
		return NoPhys, SizeNone, false
	}
	return entry.p, entry.s, true
}

// PhysNames returns every known register spelling (used for suggestions)
func PhysNames() []string {
	names := make([]string, 0, len(physByName))
	for name := range physByName {
		names = append(names, name)
	}
	return names
}
