package diag

import (
	"fmt"
)

// BackendError is a recoverable code generation error, such as a literal
// that does not fit its destination. Generation continues after it is recorded.
type BackendError struct {
	Message  string
	Literal  string // offending literal text, if any
	DestSize int    // destination width in bytes, if any
}

func (e *BackendError) Error() string {
	return e.Message
}

// Backendf creates a BackendError
func Backendf(format string, args ...any) *BackendError {
	return &BackendError{Message: fmt.Sprintf(format, args...)}
}

// LiteralOverflow reports a literal that is wider than its destination
func LiteralOverflow(literal string, minSize, destSize int) *BackendError {
	return &BackendError{
		Message:  fmt.Sprintf("literal %s needs %d bytes but the destination holds %d", literal, minSize, destSize),
		Literal:  literal,
		DestSize: destSize,
	}
}

// InternalFault is an unrecoverable invariant violation, such as an
// exhausted register pool. It travels as a panic and is turned back into
// an error at the generator entry point.
type InternalFault struct {
	Message string
}

func (f *InternalFault) Error() string {
	return "internal fault: " + f.Message
}

// Faultf aborts the current compilation
func Faultf(format string, args ...any) {
	panic(&InternalFault{Message: fmt.Sprintf(format, args...)})
}

// Recover turns an InternalFault panic into *err. Other panics are re-raised.
// Use as: defer diag.Recover(&err)
func Recover(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if f, ok := r.(*InternalFault); ok {
		*err = f
		return
	}
	panic(r)
}
