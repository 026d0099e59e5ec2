// Completion: 100% - Instruction stream complete
package asm

// Entry is an emitted instruction together with the clock tick it was emitted at
type Entry struct {
	At  uint64
	Ins Instruction
}

// Stream is an ordered, insertable sequence of instructions. Every appended
// instruction is stamped with a monotonically increasing clock so that
// slot-backed registers can be resolved as they were at emission time.
type Stream struct {
	entries []Entry
	clock   uint64
}

// NewStream returns an empty stream. The clock starts at 1.
func NewStream() *Stream {
	return &Stream{clock: 1}
}

// Clock returns the stamp the next appended instruction will get
func (s *Stream) Clock() uint64 {
	return s.clock
}

// Append adds instructions at the end
func (s *Stream) Append(ins ...Instruction) {
	for _, i := range ins {
		s.entries = append(s.entries, Entry{At: s.clock, Ins: i})
		s.clock++
	}
}

// Emit adds a single instruction at the end
func (s *Stream) Emit(ins Instruction) {
	s.Append(ins)
}

// Len returns the number of instructions
func (s *Stream) Len() int {
	return len(s.entries)
}

// Insert splices instructions in before index at. Inserted instructions
// take the stamp of the entry they are inserted in front of.
func (s *Stream) Insert(at int, ins ...Instruction) {
	if len(ins) == 0 {
		return
	}
	if at < 0 {
		at = 0
	}
	if at > len(s.entries) {
		at = len(s.entries)
	}
	stamp := s.clock
	if at < len(s.entries) {
		stamp = s.entries[at].At
	}
	spliced := make([]Entry, 0, len(s.entries)+len(ins))
	spliced = append(spliced, s.entries[:at]...)
	for _, i := range ins {
		spliced = append(spliced, Entry{At: stamp, Ins: i})
	}
	spliced = append(spliced, s.entries[at:]...)
	s.entries = spliced
}

// Last returns the most recently appended instruction
func (s *Stream) Last() (Instruction, bool) {
	if len(s.entries) == 0 {
		return nil, false
	}
	return s.entries[len(s.entries)-1].Ins, true
}

// ReplaceLast overwrites the most recent instruction, keeping its stamp
func (s *Stream) ReplaceLast(ins Instruction) {
	if len(s.entries) == 0 {
		return
	}
	s.entries[len(s.entries)-1].Ins = ins
}

// RemoveLast drops the most recent instruction
func (s *Stream) RemoveLast() {
	if len(s.entries) == 0 {
		return
	}
	s.entries = s.entries[:len(s.entries)-1]
}

// Entries returns the stamped instructions. The slice must not be modified.
func (s *Stream) Entries() []Entry {
	return s.entries
}

// Instructions returns the instructions without stamps
func (s *Stream) Instructions() []Instruction {
	out := make([]Instruction, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Ins
	}
	return out
}

func operandsOf(ins Instruction) []Operand {
	switch x := ins.(type) {
	case Binary:
		return []Operand{x.Dst, x.Src}
	case Unary:
		return []Operand{x.Operand}
	}
	return nil
}

// References reports whether any instruction stamped at or after since
// names the register p, directly or through a handle
func (s *Stream) References(b *Bindings, p Phys, since uint64) bool {
	for i := len(s.entries) - 1; i >= 0 && s.entries[i].At >= since; i-- {
		e := s.entries[i]
		for _, op := range operandsOf(e.Ins) {
			if r, ok := BaseOf(op); ok && b.Resolve(r, e.At) == p {
				return true
			}
		}
	}
	return false
}
