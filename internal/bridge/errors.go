package bridge

import "errors"

// Sentinel errors for bridge operations.
var (
	// ErrUnknownDevice indicates a command topic naming a device the bridge does not serve.
	ErrUnknownDevice = errors.New("bridge: unknown device")

	// ErrInvalidTopic indicates a message on a topic outside the command namespace.
	ErrInvalidTopic = errors.New("bridge: invalid command topic")

	// ErrInvalidCommand indicates a command payload that is not a valid request.
	ErrInvalidCommand = errors.New("bridge: invalid command")

	// ErrStopping indicates a command received after shutdown began.
	ErrStopping = errors.New("bridge: stopping")
)
