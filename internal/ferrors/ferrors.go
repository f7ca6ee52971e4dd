// Package ferrors defines flashgrep's error Kind taxonomy and the CLI exit
// codes each kind maps to.
package ferrors

import "fmt"

// Kind categorizes an error for exit-code mapping and RPC-level handling.
type Kind string

const (
	Io            Kind = "Io"
	Database      Kind = "Database"
	Search        Kind = "Search"
	IndexNotFound Kind = "IndexNotFound"
	Config        Kind = "Config"
	FileWatcher   Kind = "FileWatcher"
	RPC           Kind = "RPC"
	Task          Kind = "Task"
)

// ExitCode returns the CLI exit code associated with a Kind.
func (k Kind) ExitCode() int {
	switch k {
	case Io:
		return 1
	case Database:
		return 2
	case Search:
		return 3
	case IndexNotFound:
		return 4
	case Config:
		return 5
	case FileWatcher:
		return 6
	case RPC:
		return 7
	case Task:
		return 8
	default:
		return 1
	}
}

// Error is flashgrep's structured error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by Kind, enabling errors.Is(err, ferrors.New(Io, "", nil)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrap wraps err with a Kind, returning nil if err is nil.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(kind, message, err)
}

// ExitCode extracts the CLI exit code for any error, defaulting to 1
// (treated as an I/O-class failure) when err isn't a *Error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if fe, ok := err.(*Error); ok {
		return fe.Kind.ExitCode()
	}
	return 1
}

// GetKind extracts the Kind from err, returning "" if err isn't a *Error.
func GetKind(err error) Kind {
	if fe, ok := err.(*Error); ok {
		return fe.Kind
	}
	return ""
}
