package wire

import (
	"fmt"
	"math"
)

// Status codes carried in every response.
const (
	StatusOK    = 200
	StatusError = 500
)

// Sentinel is a reserved scalar request that ends the connection.
type Sentinel string

// Reserved sentinels.
const (
	SentinelNone       Sentinel = ""
	SentinelDisconnect Sentinel = "exit"
	SentinelTerminate  Sentinel = "kill"
)

// Request asks a device to run an operation or read an attribute.
type Request struct {
	Operation string         `json:"operation" cbor:"operation"`
	Args      []any          `json:"args,omitempty" cbor:"args,omitempty"`
	Kwargs    map[string]any `json:"kwargs,omitempty" cbor:"kwargs,omitempty"`
}

// Response is the reply to exactly one Request.
type Response struct {
	Status  int `json:"status" cbor:"status"`
	Payload any `json:"payload" cbor:"payload"`
}

// OK builds a success response.
func OK(payload any) Response {
	return Response{Status: StatusOK, Payload: payload}
}

// Failure builds an error response carrying (kind, args).
func Failure(kind string, args []any) Response {
	if args == nil {
		args = []any{}
	}
	return Response{Status: StatusError, Payload: []any{kind, args}}
}

// operationKeys are accepted in this order. func_name and attr_name are the
// keys older clients send.
var operationKeys = []string{"operation", "func_name", "attr_name"}

// ParseRequest interprets a decoded body. It returns a sentinel for the
// reserved scalars, a Request for a well-formed mapping, and
// ErrMalformedRequest otherwise.
func ParseRequest(v any) (Request, Sentinel, error) {
	switch body := v.(type) {
	case string:
		switch s := Sentinel(body); s {
		case SentinelDisconnect, SentinelTerminate:
			return Request{}, s, nil
		}
		return Request{}, SentinelNone, fmt.Errorf("%w: unexpected scalar %q", ErrMalformedRequest, body)
	case map[string]any:
		return parseRequestMap(body)
	default:
		return Request{}, SentinelNone, fmt.Errorf("%w: unexpected body type %T", ErrMalformedRequest, v)
	}
}

func parseRequestMap(m map[string]any) (Request, Sentinel, error) {
	var req Request
	for _, key := range operationKeys {
		raw, ok := m[key]
		if !ok {
			continue
		}
		name, ok := raw.(string)
		if !ok || name == "" {
			return Request{}, SentinelNone, fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedRequest, key)
		}
		req.Operation = name
		break
	}
	if req.Operation == "" {
		return Request{}, SentinelNone, fmt.Errorf("%w: missing operation", ErrMalformedRequest)
	}

	switch args := m["args"].(type) {
	case nil:
	case []any:
		req.Args = args
	default:
		return Request{}, SentinelNone, fmt.Errorf("%w: args must be a sequence", ErrMalformedRequest)
	}

	switch kwargs := m["kwargs"].(type) {
	case nil:
	case map[string]any:
		req.Kwargs = kwargs
	default:
		return Request{}, SentinelNone, fmt.Errorf("%w: kwargs must be a mapping", ErrMalformedRequest)
	}

	return req, SentinelNone, nil
}

// ParseResponse interprets a decoded response body.
func ParseResponse(v any) (Response, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Response{}, fmt.Errorf("%w: unexpected body type %T", ErrMalformedResponse, v)
	}
	status, ok := statusCode(m["status"])
	if !ok || (status != StatusOK && status != StatusError) {
		return Response{}, fmt.Errorf("%w: status %v", ErrMalformedResponse, m["status"])
	}
	return Response{Status: status, Payload: m["payload"]}, nil
}

// ErrorDetail splits an error payload into its kind and args.
func (r Response) ErrorDetail() (kind string, args []any, ok bool) {
	if r.Status != StatusError {
		return "", nil, false
	}
	parts, isSeq := r.Payload.([]any)
	if !isSeq || len(parts) != 2 {
		return "", nil, false
	}
	kind, isStr := parts[0].(string)
	if !isStr {
		return "", nil, false
	}
	args, _ = parts[1].([]any)
	return kind, args, true
}

func statusCode(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
