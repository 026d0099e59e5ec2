// Completion: 90% - Object allocation through mmap, no garbage collection
package codegen

import (
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
)

// newObject allocates an instance with an anonymous mmap, stores the vtable
// pointer and runs the constructor with the new object as receiver
func (g *Generator) newObject(n *ast.New) asm.Operand {
	c := n.Class
	g.ra.Reserve()
	obj := g.ra.CallAlloc(asm.S64)
	fix := func(p asm.Phys) asm.Register { return asm.Fix(p, asm.S64) }
	dword := func(p asm.Phys) asm.Register { return asm.Fix(p, asm.S32) }
	g.emit(
		asm.Binary{Op: asm.MOV, Dst: dword(asm.RAX), Src: asm.Int(sysMmap)},
		asm.Binary{Op: asm.XOR, Dst: dword(asm.RDI), Src: dword(asm.RDI)},
		asm.Binary{Op: asm.MOV, Dst: dword(asm.RSI), Src: asm.Int(int64(c.Size))},
		asm.Binary{Op: asm.MOV, Dst: dword(asm.RDX), Src: asm.Int(protReadWrite)},
		asm.Binary{Op: asm.MOV, Dst: dword(asm.R10), Src: asm.Int(mapPrivateAnon)},
		asm.Binary{Op: asm.MOV, Dst: fix(asm.R8), Src: asm.Int(-1)},
		asm.Binary{Op: asm.XOR, Dst: dword(asm.R9), Src: dword(asm.R9)},
		asm.Zero{Op: asm.SYSCALL},
	)
	g.logf("new %s: %d bytes", c.Name, c.Size)
	if c.HasVTable() {
		g.emit(asm.Binary{Op: asm.MOV, Dst: asm.At(obj, 0, asm.S64), Src: asm.DataLabel(c.VTableLabel())})
	}
	if c.Ctor == nil {
		return obj
	}
	g.ra.Lock(obj)
	g.release(g.invoke(callSite{fn: c.Ctor, recvOp: obj, args: n.Args}))
	g.ra.Unlock(obj)
	return obj
}
