// Package api implements the admin HTTP API for the emulator.
//
// This package provides:
//   - Lifecycle health and per-device dispatch statistics
//   - Command invocation over HTTP with the same request shape as the
//     socket protocol
//   - A WebSocket stream of periodic statistics snapshots
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// The API is optional and read-mostly. Commands invoked here are queued
// on the same registration as socket commands, so they are serialised
// with them.
package api
