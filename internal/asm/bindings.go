// Completion: 100% - Handle table complete
package asm

// binding says that from clock tick `from` onwards the handle lives in phys
type binding struct {
	from uint64
	phys Phys
}

// Bindings maps allocation handles to physical registers. A handle is an
// index into this table and is never reused within one compilation, so a
// register identity can be moved after instructions referring to it have
// already been emitted.
type Bindings struct {
	history [][]binding
	born    []uint64
}

// NewBindings returns an empty table. Handle 0 is reserved for "none".
func NewBindings() *Bindings {
	return &Bindings{
		history: make([][]binding, 1, 64),
		born:    make([]uint64, 1, 64),
	}
}

// Bind creates a new handle living in phys from clock tick now
func (b *Bindings) Bind(phys Phys, now uint64) Handle {
	b.history = append(b.history, []binding{{from: now, phys: phys}})
	b.born = append(b.born, now)
	return Handle(len(b.history) - 1)
}

// Len returns the number of handles issued, including the reserved zero handle
func (b *Bindings) Len() int {
	return len(b.history)
}

func (b *Bindings) valid(h Handle) bool {
	return h != 0 && int(h) < len(b.history)
}

// Born returns the clock tick the handle was created at
func (b *Bindings) Born(h Handle) uint64 {
	if !b.valid(h) {
		return 0
	}
	return b.born[h]
}

// Current returns the register the handle lives in now
func (b *Bindings) Current(h Handle) Phys {
	if !b.valid(h) {
		return NoPhys
	}
	hist := b.history[h]
	return hist[len(hist)-1].phys
}

// At returns the register the handle lived in at the given clock tick
func (b *Bindings) At(h Handle, at uint64) Phys {
	if !b.valid(h) {
		return NoPhys
	}
	hist := b.history[h]
	for i := len(hist) - 1; i > 0; i-- {
		if at >= hist[i].from {
			return hist[i].phys
		}
	}
	return hist[0].phys
}

// Rebind moves the handle to phys for its whole lifetime, past and future.
// Every instruction already emitted with this handle now renders phys.
func (b *Bindings) Rebind(h Handle, phys Phys) {
	if !b.valid(h) {
		return
	}
	b.history[h] = []binding{{from: b.born[h], phys: phys}}
}

// Relocate moves the handle to phys from clock tick now onwards.
// Instructions stamped before now keep rendering the previous register.
func (b *Bindings) Relocate(h Handle, phys Phys, now uint64) {
	if !b.valid(h) {
		return
	}
	hist := b.history[h]
	if last := &hist[len(hist)-1]; last.from == now {
		last.phys = phys
		return
	}
	b.history[h] = append(hist, binding{from: now, phys: phys})
}

// Resolve returns the hardware register a Register operand names at the given clock tick
func (b *Bindings) Resolve(r Register, at uint64) Phys {
	if r.IsSlot() {
		return b.At(r.Handle, at)
	}
	return r.Fixed
}
