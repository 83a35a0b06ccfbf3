package dispatch

import (
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
)

// Status is the outcome of a command.
type Status int

// Response statuses.
const (
	StatusOK    Status = 200
	StatusError Status = 500
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Command is one queued request for a device. It is consumed exactly once.
type Command struct {
	ID        string
	Operation string
	Call      device.Call
	Submitted time.Time

	reply chan Response
}

// Response answers exactly one Command.
// On StatusError the payload is []any{kind, args}.
type Response struct {
	RequestID string
	Status    Status
	Payload   any
}

func okResponse(payload any) Response {
	return Response{Status: StatusOK, Payload: payload}
}

func errorResponse(kind string, args []any) Response {
	if args == nil {
		args = []any{}
	}
	return Response{Status: StatusError, Payload: []any{kind, args}}
}

// ErrorDetail returns the kind and args of an error response.
func (r Response) ErrorDetail() (kind string, args []any, ok bool) {
	if r.Status != StatusError {
		return "", nil, false
	}
	parts, isSeq := r.Payload.([]any)
	if !isSeq || len(parts) != 2 {
		return "", nil, false
	}
	kind, _ = parts[0].(string)
	args, _ = parts[1].([]any)
	return kind, args, kind != ""
}
