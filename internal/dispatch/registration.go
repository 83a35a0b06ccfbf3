package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tem-emulator/internal/device"
)

// DefaultQueueCapacity is the command queue size when none is configured.
const DefaultQueueCapacity = 100

// Factory constructs a device. It runs on the worker goroutine and may
// wait for other registrations to become ready.
type Factory func(ctx context.Context) (device.Device, error)

// Registration binds one logical device to its command queue.
//
// All methods are safe for concurrent use.
type Registration struct {
	label   string
	factory Factory
	queue   chan *Command

	ready     chan struct{}
	done      chan struct{}
	readyOnce sync.Once
	doneOnce  sync.Once

	mu       sync.RWMutex
	buildErr error

	commands    atomic.Uint64
	failures    atomic.Uint64
	lastLatency atomic.Int64
}

// Stats is a point-in-time view of a registration.
type Stats struct {
	Label         string        `json:"label"`
	Ready         bool          `json:"ready"`
	Stopped       bool          `json:"stopped"`
	QueueDepth    int           `json:"queue_depth"`
	QueueCapacity int           `json:"queue_capacity"`
	Commands      uint64        `json:"commands_total"`
	Errors        uint64        `json:"errors_total"`
	LastLatency   time.Duration `json:"last_latency_ns"`
}

// NewRegistration creates the registration for one device.
//
// Parameters:
//   - label: Logical device name used in logs and status topics
//   - factory: Builds the device on the worker goroutine
//   - capacity: Bounded queue size; values below 1 use DefaultQueueCapacity
func NewRegistration(label string, factory Factory, capacity int) *Registration {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Registration{
		label:   label,
		factory: factory,
		queue:   make(chan *Command, capacity),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Label returns the device label.
func (r *Registration) Label() string {
	return r.label
}

// Ready is closed once the device has been constructed.
func (r *Registration) Ready() <-chan struct{} {
	return r.ready
}

// Done is closed when the worker has exited.
func (r *Registration) Done() <-chan struct{} {
	return r.done
}

// Err returns the construction error, if the device failed to build.
func (r *Registration) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buildErr
}

// WaitReady blocks until the device is ready, construction failed, or ctx ends.
func (r *Registration) WaitReady(ctx context.Context) error {
	select {
	case <-r.ready:
		return nil
	case <-r.done:
		// The worker may have become ready and exited already.
		select {
		case <-r.ready:
			return nil
		default:
		}
		if err := r.Err(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, r.label, err)
		}
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, r.label)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues an operation and waits for its response.
//
// ctx only bounds admission: once the command is queued, Submit waits for
// the worker to answer it, even while shutting down. The wait ends early
// only if the worker exits without having seen the command.
//
// Returns:
//   - Response: The worker's answer (OK or ERROR)
//   - error: ErrShuttingDown or ErrWorkerStopped when no answer is possible
func (r *Registration) Submit(ctx context.Context, operation string, call device.Call) (Response, error) {
	if ctx.Err() != nil {
		return Response{}, ErrShuttingDown
	}

	cmd := &Command{
		ID:        uuid.NewString(),
		Operation: operation,
		Call:      call,
		Submitted: time.Now(),
		reply:     make(chan Response, 1),
	}

	select {
	case <-r.done:
		return Response{}, ErrWorkerStopped
	default:
	}

	select {
	case r.queue <- cmd:
	case <-r.done:
		return Response{}, ErrWorkerStopped
	case <-ctx.Done():
		return Response{}, ErrShuttingDown
	}

	select {
	case resp := <-cmd.reply:
		return resp, nil
	case <-r.done:
		select {
		case resp := <-cmd.reply:
			return resp, nil
		default:
			return Response{}, ErrWorkerStopped
		}
	}
}

// Invoke implements device.Invoker so one device can call another through
// its worker. Error responses come back as *device.Error.
func (r *Registration) Invoke(ctx context.Context, operation string, call device.Call) (any, error) {
	resp, err := r.Submit(ctx, operation, call)
	if err != nil {
		return nil, device.Errorf(device.KindServiceUnavailable, "%s: %v", r.label, err)
	}
	if kind, args, ok := resp.ErrorDetail(); ok {
		return nil, device.NewError(kind, args...)
	}
	return resp.Payload, nil
}

// Stats returns counters for health reporting and telemetry.
func (r *Registration) Stats() Stats {
	return Stats{
		Label:         r.label,
		Ready:         isClosed(r.ready),
		Stopped:       isClosed(r.done),
		QueueDepth:    len(r.queue),
		QueueCapacity: cap(r.queue),
		Commands:      r.commands.Load(),
		Errors:        r.failures.Load(),
		LastLatency:   time.Duration(r.lastLatency.Load()),
	}
}

func (r *Registration) markReady() {
	r.readyOnce.Do(func() { close(r.ready) })
}

func (r *Registration) markDone() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Registration) setBuildErr(err error) {
	r.mu.Lock()
	r.buildErr = err
	r.mu.Unlock()
}

func (r *Registration) record(status Status, latency time.Duration) {
	r.commands.Add(1)
	if status != StatusOK {
		r.failures.Add(1)
	}
	r.lastLatency.Store(int64(latency))
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
