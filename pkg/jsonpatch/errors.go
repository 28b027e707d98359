package jsonpatch

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes patch failures.
type ErrorKind int

const (
	// InvalidPatch means the operation list itself is malformed: not an array,
	// an unknown op, a missing or mistyped member, or an unparsable pointer.
	InvalidPatch ErrorKind = iota + 1

	// PathNotFound means a path or from pointer does not resolve in the
	// current document state.
	PathNotFound

	// Conflict means the operation cannot be applied to the current document
	// state, such as moving a value into one of its own children.
	Conflict

	// TestFailed means a test operation's assertion did not hold. Apply does
	// not return it as an error; it is reported through Result.Failure.
	TestFailed
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidPatch:
		return "invalid patch"
	case PathNotFound:
		return "path not found"
	case Conflict:
		return "conflict"
	case TestFailed:
		return "test failed"
	default:
		return "unknown error"
	}
}

// Error describes why a patch could not be applied.
type Error struct {
	Kind ErrorKind
	// Index is the position of the failing operation, or -1 when the failure
	// concerns the patch as a whole.
	Index   int
	Op      OpType
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: operation %d: %s", e.Kind, e.Index, e.Message)
	}
	return fmt.Sprintf("%s: operation %d (%s %q): %s", e.Kind, e.Index, e.Op, e.Path, e.Message)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Index: -1, Message: fmt.Sprintf(format, args...)}
}
