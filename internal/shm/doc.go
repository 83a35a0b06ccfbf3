// Package shm hands large binary payloads (sensor frames) to clients
// through a single named shared memory segment instead of the socket.
//
// A Broker owns the producer side. Push copies a payload into the segment,
// (re)allocating it whenever the byte size changes, and returns a Descriptor
// that travels in the ordinary response. Receivers call Open with that
// Descriptor to map the same bytes read-only.
//
// On Linux the segment is a file in /dev/shm, so it interoperates with
// POSIX shm_open/SharedMemory consumers using the same identifier.
package shm
