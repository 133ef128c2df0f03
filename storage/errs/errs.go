// Package errs defines the small set of sentinel error kinds every
// component in this module returns for recoverable conditions, mirroring
// the teacher's BLTErr pattern of a typed code plus message instead of ad
// hoc error strings.
package errs

import "fmt"

// Code classifies an Error so callers can switch on kind without string
// matching.
type Code int

const (
	ErrOutOfMemory Code = iota + 1
	ErrNotFound
	ErrConflict
	ErrInvariant
	ErrDisk
)

func (c Code) String() string {
	switch c {
	case ErrOutOfMemory:
		return "out of memory"
	case ErrNotFound:
		return "not found"
	case ErrConflict:
		return "conflict"
	case ErrInvariant:
		return "invariant violation"
	case ErrDisk:
		return "disk error"
	default:
		return "unknown"
	}
}

// Error is a typed, wrapped error carrying a Code alongside a formatted
// message.
type Error struct {
	Code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds an Error of kind code with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of kind code that chains cause via Unwrap.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...), err: cause}
}

// Is reports whether err is an *Error of the given code.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.Code == code
}
