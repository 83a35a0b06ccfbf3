package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kinds reported to clients.
const (
	KindUnsupportedOperation = "UnsupportedOperation"
	KindTypeError            = "TypeError"
	KindValueError           = "ValueError"
	KindRangeError           = "RangeError"
	KindTimeout              = "TimeoutError"
	KindSharedMemory         = "SharedMemoryError"
	KindServiceUnavailable   = "ServiceUnavailable"
	KindInternal             = "InternalError"
)

// ErrUnsupportedOperation is wrapped by every unsupported-operation Error.
var ErrUnsupportedOperation = errors.New("device: unsupported operation")

// Error is a device failure that is reported to the client as
// (Kind, Args) rather than ending the worker.
type Error struct {
	Kind string
	Args []any

	cause error
}

// NewError returns an Error of the given kind.
func NewError(kind string, args ...any) *Error {
	if args == nil {
		args = []any{}
	}
	return &Error{Kind: kind, Args: args}
}

// Errorf returns an Error whose single argument is the formatted message.
func Errorf(kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// Unsupported reports that name is neither an operation nor an attribute.
func Unsupported(name string) *Error {
	return &Error{
		Kind:  KindUnsupportedOperation,
		Args:  []any{name},
		cause: ErrUnsupportedOperation,
	}
}

func (e *Error) Error() string {
	if len(e.Args) == 0 {
		return e.Kind
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprint(a)
	}
	return e.Kind + ": " + strings.Join(parts, ", ")
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Classify maps any error to the (kind, args) pair sent on the wire.
// Errors that are not *Error become InternalError with their message.
func Classify(err error) (kind string, args []any) {
	var de *Error
	switch {
	case errors.As(err, &de):
		args = de.Args
		if args == nil {
			args = []any{}
		}
		return de.Kind, args
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout, []any{err.Error()}
	default:
		return KindInternal, []any{err.Error()}
	}
}
