// Package server exposes a device registration on a TCP port.
//
// A Listener accepts connections and runs a handler per connection. The
// handler reads one framed request at a time, submits it to the device's
// registration, and writes back exactly one response before reading the
// next, so responses on a connection are always in request order.
//
// The sentinels "exit" and "kill" close the connection without a response.
// Undecodable or oversized frames also close it. Neither affects other
// connections or the device.
//
// Accept and idle reads use deadlines of one polling interval so that a
// cancelled context is noticed promptly.
package server
