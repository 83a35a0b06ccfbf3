// Package wire implements the device endpoint protocol.
//
// Every message is a frame: a 4-byte big-endian length followed by exactly
// that many bytes of body. Bodies are encoded with a Codec (JSON or CBOR).
//
// A request body is either a mapping
//
//	{"operation": "move_to", "args": [1.5, 2.0], "kwargs": {}}
//
// or one of the scalar sentinels "exit" (disconnect) and "kill" (terminate),
// which end the connection without a response.
//
// A response body is a mapping {"status": 200|500, "payload": ...}. On
// status 500 the payload is [error_kind, error_args].
package wire
