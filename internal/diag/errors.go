// Completion: 100% - Diagnostics complete, clear and helpful messages
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorLevel indicates the severity of a diagnostic
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies where a diagnostic came from
type ErrorCategory int

const (
	CategorySyntax ErrorCategory = iota
	CategorySemantic
	CategoryCodegen
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategorySemantic:
		return "semantic"
	case CategoryCodegen:
		return "codegen"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation is a position in an inline assembly block or a function
type SourceLocation struct {
	File   string // function or block name
	Line   int
	Column int
	Length int // length of the offending token
}

func (loc SourceLocation) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	if loc.Line == 0 {
		return loc.File
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext provides extra context for a diagnostic
type ErrorContext struct {
	SourceLine string // the offending line
	Suggestion string // "did you mean 'x'?"
	HelpText   string
}

// CompilerError is a single diagnostic. Cause, when set, is the typed error
// behind it (such as a *BackendError) and is reachable with errors.As.
type CompilerError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
	Cause    error
}

// Error implements the error interface
func (e CompilerError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Location, e.Category, e.Message)
}

// Unwrap returns the cause
func (e CompilerError) Unwrap() error {
	return e.Cause
}

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[1;31m"
	ansiGreen = "\033[1;32m"
	ansiBlue  = "\033[1;34m"
	ansiCyan  = "\033[1;36m"
	ansiAmber = "\033[1;33m"
)

type painter struct {
	sb    *strings.Builder
	color bool
}

func (p painter) paint(code, text string) {
	if p.color {
		p.sb.WriteString(code)
		p.sb.WriteString(text)
		p.sb.WriteString(ansiReset)
		return
	}
	p.sb.WriteString(text)
}

// Format returns the diagnostic with its source line, caret and hints
func (e CompilerError) Format(useColor bool) string {
	var sb strings.Builder
	p := painter{&sb, useColor}

	p.paint(ansiRed, e.Level.String()+": ")
	sb.WriteString(e.Message + "\n")
	p.paint(ansiBlue, "  --> "+e.Location.String())
	sb.WriteString("\n")

	if e.Context.SourceLine != "" {
		lineNum := fmt.Sprintf("%d", e.Location.Line)
		gutter := strings.Repeat(" ", len(lineNum)+1)
		fmt.Fprintf(&sb, "%s|\n%s | %s\n%s| ", gutter, lineNum, e.Context.SourceLine, gutter)
		if e.Location.Column > 0 {
			sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			p.paint(ansiRed, strings.Repeat("^", max(e.Location.Length, 1)))
		}
		sb.WriteString("\n")
	}
	if e.Context.Suggestion != "" {
		p.paint(ansiGreen, "   help: ")
		sb.WriteString(e.Context.Suggestion + "\n")
	}
	if e.Context.HelpText != "" {
		p.paint(ansiCyan, "   note: ")
		sb.WriteString(e.Context.HelpText + "\n")
	}
	return sb.String()
}

// Collector accumulates diagnostics over one compilation
type Collector struct {
	errors     []CompilerError
	warnings   []CompilerError
	maxErrors  int
	sourceCode string
}

// NewCollector creates a collector that stops accepting errors after maxErrors
func NewCollector(maxErrors int) *Collector {
	if maxErrors <= 0 {
		maxErrors = 50
	}
	return &Collector{maxErrors: maxErrors}
}

// SetSourceCode stores the text that line numbers refer to
func (c *Collector) SetSourceCode(source string) {
	c.sourceCode = source
}

func (c *Collector) sourceLine(lineNum int) string {
	if c.sourceCode == "" || lineNum <= 0 {
		return ""
	}
	lines := strings.Split(c.sourceCode, "\n")
	if lineNum > len(lines) {
		return ""
	}
	return lines[lineNum-1]
}

// Add records a diagnostic
func (c *Collector) Add(err CompilerError) {
	if err.Context.SourceLine == "" {
		err.Context.SourceLine = c.sourceLine(err.Location.Line)
	}
	if err.Level == LevelWarning {
		c.warnings = append(c.warnings, err)
		return
	}
	if len(c.errors) < c.maxErrors {
		c.errors = append(c.errors, err)
	}
}

// AddWarning records a warning
func (c *Collector) AddWarning(warn CompilerError) {
	warn.Level = LevelWarning
	c.Add(warn)
}

// HasErrors returns true if any errors were collected
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// ErrorCount returns the number of errors
func (c *Collector) ErrorCount() int {
	return len(c.errors)
}

// WarningCount returns the number of warnings
func (c *Collector) WarningCount() int {
	return len(c.warnings)
}

// ShouldStop returns true when the error limit has been reached
func (c *Collector) ShouldStop() bool {
	return len(c.errors) >= c.maxErrors
}

// Errors returns the collected errors
func (c *Collector) Errors() []CompilerError {
	return c.errors
}

// Err joins every collected error, or returns nil
func (c *Collector) Err() error {
	if len(c.errors) == 0 {
		return nil
	}
	errs := make([]error, len(c.errors))
	for i, e := range c.errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Report formats every error and warning followed by a summary line
func (c *Collector) Report(useColor bool) string {
	var sb strings.Builder
	p := painter{&sb, useColor}
	all := append(append([]CompilerError{}, c.errors...), c.warnings...)
	for i, e := range all {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(e.Format(useColor))
	}
	if len(all) == 0 {
		return ""
	}
	sb.WriteString("\n")
	if len(c.errors) > 0 {
		p.paint(ansiRed, fmt.Sprintf("%d error(s)", len(c.errors)))
	}
	if len(c.warnings) > 0 {
		if len(c.errors) > 0 {
			sb.WriteString(", ")
		}
		p.paint(ansiAmber, fmt.Sprintf("%d warning(s)", len(c.warnings)))
	}
	sb.WriteString(" found\n")
	return sb.String()
}

// Clear forgets every collected diagnostic
func (c *Collector) Clear() {
	c.errors = nil
	c.warnings = nil
}

// SyntaxError creates a syntax error
func SyntaxError(message string, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategorySyntax,
		Message:  message,
		Location: loc,
	}
}

// UnexpectedTokenError creates an error for unexpected tokens
func UnexpectedTokenError(expected, got string, loc SourceLocation) CompilerError {
	return SyntaxError(fmt.Sprintf("expected %s, got %s", expected, got), loc)
}

// CodegenError wraps a recoverable code generation error
func CodegenError(err error, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelError,
		Category: CategoryCodegen,
		Message:  err.Error(),
		Location: loc,
		Cause:    err,
	}
}

// FatalError creates a fatal internal error
func FatalError(err error, loc SourceLocation) CompilerError {
	return CompilerError{
		Level:    LevelFatal,
		Category: CategoryInternal,
		Message:  err.Error(),
		Location: loc,
		Cause:    err,
		Context: ErrorContext{
			HelpText: "This is an internal compiler error. Please report this bug.",
		},
	}
}
