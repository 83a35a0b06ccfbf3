// Package device defines the contract between the dispatch engine and the
// simulated hardware it hosts.
//
// A device publishes an explicit capability Table: operation names mapped to
// typed handlers, and attribute names mapped to getters. The engine never
// reflects on device types; anything not in the table is rejected with an
// UnsupportedOperation error.
//
// # Key Types
//
//   - Device: anything exposing a capability Table
//   - Table: operation/attribute registry with Invoke
//   - Call: positional and keyword arguments with typed accessors
//   - Array: large binary result handed off through shared memory
//   - Error: protocol-visible failure carrying a kind and arguments
//
// # Usage
//
//	t := device.NewTable()
//	t.Attribute("name", func() any { return "simulated-tem" })
//	t.Handle("move_to", func(ctx context.Context, call device.Call) (any, error) {
//	    x, err := call.RequireFloat(0, "x")
//	    ...
//	})
package device
