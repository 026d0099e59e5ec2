// Completion: 90% - Demo driver complete, programs are built in
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/xyproto/x64c/internal/asm"
	"github.com/xyproto/x64c/internal/asm/asmtest"
	"github.com/xyproto/x64c/internal/codegen"
	"github.com/xyproto/x64c/internal/config"
	"github.com/xyproto/x64c/internal/engine"
)

// x64c lowers typed programs to GNU Intel-syntax x86-64 assembly.
// There is no front end yet, so the driver compiles built-in samples.

const versionString = "x64c 0.4.0"

func main() {
	opts := config.FromEnv()

	var sampleFlag = flag.String("s", "fact", "sample program to compile (see -list)")
	var listFlag = flag.Bool("list", false, "list the sample programs and exit")
	var outputFlag = flag.String("o", "", "write the assembly to this file instead of stdout")
	var targetFlag = flag.String("target", engine.Target, "target platform")
	var inlineFlag = flag.Bool("inline", true, "honour inline modifiers")
	var runFlag = flag.Bool("run", false, "interpret the generated code and print the exit code")
	var verbose = flag.Bool("v", opts.Verbose, "trace allocation, prologue, inlining and fusion decisions")
	var verboseLong = flag.Bool("verbose", opts.Verbose, "trace allocation, prologue, inlining and fusion decisions")
	var color = flag.Bool("color", opts.Color, "coloured diagnostics")
	var entry = flag.String("entry", opts.Entry, "function called from _start")
	var version = flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *version {
		fmt.Println(versionString)
		return
	}
	if *listFlag {
		names := lo.Keys(samples)
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%-8s %s\n", name, samples[name].about)
		}
		return
	}

	if _, err := engine.ParseTarget(*targetFlag); err != nil {
		fmt.Fprintf(os.Stderr, "x64c: %v\n", err)
		os.Exit(2)
	}

	s, ok := samples[*sampleFlag]
	if !ok {
		msg := fmt.Sprintf("x64c: unknown sample %q", *sampleFlag)
		if hint := engine.DidYouMean(*sampleFlag, lo.Keys(samples)); hint != "" {
			msg += " (" + hint + ")"
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(2)
	}

	opts.Verbose = *verbose || *verboseLong
	opts.Color = *color
	opts.Entry = *entry
	ctx := codegen.NewContext(opts)
	p, err := codegen.Generate(ctx, s.build(*inlineFlag))
	if report := ctx.Errors.Report(opts.Color); report != "" {
		fmt.Fprint(os.Stderr, report)
	}
	if err != nil {
		os.Exit(1)
	}

	src, err := p.Render()
	if err != nil {
		fmt.Fprintf(os.Stderr, "x64c: %v\n", err)
		os.Exit(1)
	}
	if *outputFlag != "" {
		if err := os.WriteFile(*outputFlag, []byte(src), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "x64c: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(src)
	}

	if *runFlag {
		code, err := interpret(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "x64c: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s exited with %d\n", *sampleFlag, code)
	}
}

func interpret(p *asm.Program) (int64, error) {
	m, err := asmtest.New(p)
	if err != nil {
		return 0, err
	}
	return m.Run("_start")
}
