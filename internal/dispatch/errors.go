package dispatch

import "errors"

// Domain-specific errors for command dispatch.
var (
	// ErrWorkerStopped indicates the worker exited before answering.
	ErrWorkerStopped = errors.New("dispatch: worker stopped")

	// ErrShuttingDown indicates a submission made after stop was signalled.
	ErrShuttingDown = errors.New("dispatch: shutting down")

	// ErrDeviceUnavailable indicates the device could not be constructed.
	ErrDeviceUnavailable = errors.New("dispatch: device unavailable")
)
