package wire

import "errors"

// Domain-specific errors for the wire protocol.
var (
	// ErrFrameTooLarge indicates a frame length above the configured maximum.
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

	// ErrUndecodable indicates a frame body the codec could not decode.
	ErrUndecodable = errors.New("wire: undecodable body")

	// ErrMalformedRequest indicates a body that is neither a request mapping nor a sentinel.
	ErrMalformedRequest = errors.New("wire: malformed request")

	// ErrMalformedResponse indicates a response body without a valid status.
	ErrMalformedResponse = errors.New("wire: malformed response")

	// ErrUnknownCodec indicates a codec name other than json or cbor.
	ErrUnknownCodec = errors.New("wire: unknown codec")
)
