// Completion: 95% - Compilation context and generator entry point
package codegen

import (
	"fmt"
	"io"
	"os"

	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/ast"
	"github.com/xyproto/x64c/internal/config"
	"github.com/xyproto/x64c/internal/diag"
	"github.com/xyproto/x64c/internal/engine"
	"github.com/xyproto/x64c/internal/regalloc"
)

// Context is everything one compilation shares: the output program, the
// register pool, the diagnostics sink and the options
type Context struct {
	Program *asm.Program
	Alloc   *regalloc.Allocator
	Errors  *diag.Collector
	Options config.Options
	CC      CallingConvention
	Log     io.Writer // verbose trace output, os.Stderr by default
}

// NewContext creates a fresh context for one compilation
func NewContext(opts config.Options) *Context {
	p := asm.NewProgram()
	ctx := &Context{
		Program: p,
		Alloc:   regalloc.New(p.Bindings, p.Text),
		Errors:  diag.NewCollector(0),
		Options: opts.Normalize(),
		CC:      &SystemVAMD64{},
		Log:     os.Stderr,
	}
	if ctx.Options.Verbose {
		ctx.Alloc.Logf = ctx.logf
	}
	return ctx
}

func (ctx *Context) logf(format string, args ...any) {
	if ctx.Options.Verbose {
		fmt.Fprintf(ctx.Log, format+"\n", args...)
	}
}

// Generator lowers one typed program into ctx.Program
type Generator struct {
	*Context
	prog   *ast.Program
	text   *asm.Stream
	data   *asm.Stream
	ra     *regalloc.Allocator
	frame  *frame
	acts   []*activation
	loops  []loop
	labels int
	strs   map[string]string
	stack  *StackValidator
}

func newGenerator(ctx *Context, prog *ast.Program) *Generator {
	g := &Generator{
		Context: ctx,
		prog:    prog,
		text:    ctx.Program.Text,
		data:    ctx.Program.Data,
		ra:      ctx.Alloc,
		strs:    make(map[string]string),
	}
	g.stack = NewStackValidator(ctx.logf)
	return g
}

// Generate lowers prog to assembly. Recoverable problems are collected and
// generation goes on, so the returned error may list many of them; the
// program must not be written out when the error is non-nil. An internal
// fault stops generation and no program is returned.
func Generate(ctx *Context, prog *ast.Program) (*asm.Program, error) {
	g := newGenerator(ctx, prog)
	if err := g.run(); err != nil {
		ctx.Errors.Add(diag.FatalError(err, g.location()))
		return nil, ctx.Errors.Err()
	}
	return ctx.Program, ctx.Errors.Err()
}

func (g *Generator) run() (err error) {
	defer diag.Recover(&err)
	g.program()
	return nil
}

// location names the function being generated, for diagnostics
func (g *Generator) location() diag.SourceLocation {
	if g.frame == nil {
		return diag.SourceLocation{File: "<program>"}
	}
	return diag.SourceLocation{File: g.frame.fn.LinkName()}
}

// report records a recoverable error and lets generation continue
func (g *Generator) report(err error) {
	g.logf("codegen: %v", err)
	g.Errors.Add(diag.CodegenError(err, g.location()))
}

func (g *Generator) newLabel() string {
	l := fmt.Sprintf(".L%d", g.labels)
	g.labels++
	return l
}

func (g *Generator) emit(ins ...asm.Instruction) {
	g.text.Append(ins...)
}

func (g *Generator) label(name string) {
	g.emit(asm.Label{Name: name})
}

// program emits the entry stub, every function and the data section
func (g *Generator) program() {
	g.emit(asm.Section{Name: ".text"}, asm.Global{Name: "_start"})
	g.start()
	for _, fn := range g.prog.Functions {
		if fn.Body != nil {
			g.function(fn)
		}
	}
	g.frame = nil
	g.dataSection()
}

// start emits _start: call the entry function and exit with its result
func (g *Generator) start() {
	name := g.prog.Entry
	if name == "" {
		name = g.Options.Entry
	}
	g.emit(asm.Label{Name: "_start", Procedure: true})
	entry, ok := g.prog.Lookup(name)
	if !ok {
		names := make([]string, 0, len(g.prog.Functions))
		for _, fn := range g.prog.Functions {
			names = append(names, fn.Name)
		}
		err := diag.Backendf("entry function %q not found", name)
		if hint := engine.DidYouMean(name, names); hint != "" {
			err.Message += " (" + hint + ")"
		}
		g.report(err)
		return
	}
	rax := asm.Fix(asm.RAX, asm.S64)
	g.emit(
		asm.Branch(asm.CALL, entry.LinkName()),
		asm.Binary{Op: asm.MOV, Dst: asm.Fix(asm.RDI, asm.S64), Src: rax},
		asm.Binary{Op: asm.MOV, Dst: rax.Resize(asm.S32), Src: asm.Int(sysExit)},
		asm.Zero{Op: asm.SYSCALL},
	)
}
