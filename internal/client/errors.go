package client

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client: connection closed")

// RemoteError is an error response from the server.
type RemoteError struct {
	Kind string
	Args []any
}

func (e *RemoteError) Error() string {
	if len(e.Args) == 0 {
		return e.Kind
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = fmt.Sprint(a)
	}
	return e.Kind + ": " + strings.Join(parts, ", ")
}

// IsKind reports whether err is a RemoteError of the given kind.
func IsKind(err error, kind string) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == kind
}
