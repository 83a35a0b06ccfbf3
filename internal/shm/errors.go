package shm

import "errors"

// Domain-specific errors for shared payload transfer.
var (
	// ErrSizeMismatch indicates payload bytes that do not match shape and element type.
	ErrSizeMismatch = errors.New("shm: payload size does not match shape")

	// ErrUnknownElementType indicates an element type without a known width.
	ErrUnknownElementType = errors.New("shm: unknown element type")

	// ErrSegmentUnavailable indicates the segment could not be created even after reclaiming a stale one.
	ErrSegmentUnavailable = errors.New("shm: segment unavailable")

	// ErrUnsupportedPlatform indicates shared memory is not implemented on this OS.
	ErrUnsupportedPlatform = errors.New("shm: unsupported platform")
)
