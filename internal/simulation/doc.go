// Package simulation provides the software stand-ins hosted by the
// emulator: a transmission electron microscope and its camera.
//
// Neither device models physics. The microscope keeps a consistent set of
// stage and optics settings with realistic limits, and the camera produces
// deterministic frames derived from those settings. The camera reaches the
// microscope only through a device.Invoker, so each device is still owned by
// exactly one worker.
package simulation
