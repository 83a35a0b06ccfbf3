// Package dispatch hosts each simulated device on its own worker goroutine.
//
// A Registration is the handle other components use to reach a device: it
// owns the bounded command queue and readiness signals. A Worker constructs
// the device, then drains the queue in FIFO order, invoking operations
// through the device's capability table.
//
// Every Command carries a UUID and its own one-shot reply channel, so any
// number of submitters may wait on the same device concurrently and each
// receives exactly its own Response.
//
// Shutdown is driven by context cancellation. A worker only exits once its
// queue is empty, so a command that was accepted is always answered.
//
//	reg := dispatch.NewRegistration("camera", factory, 100)
//	w := dispatch.NewWorker(reg, broker)
//	go w.Run(ctx)
//	resp, err := reg.Submit(ctx, "get_image", device.Call{})
package dispatch
