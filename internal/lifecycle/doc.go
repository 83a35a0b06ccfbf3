// Package lifecycle coordinates startup and shutdown of the emulator.
//
// A Coordinator runs every registered Component on one errgroup with a
// shared context and moves forward through four states:
//
//	STARTING -> RUNNING -> DRAINING -> STOPPED
//
// RUNNING is entered once every readiness channel has closed. DRAINING
// begins when the context is cancelled or any component fails; release
// hooks run at that point and again after every component has returned.
package lifecycle
