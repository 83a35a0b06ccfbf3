package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/shm"
)

// summaryLimit caps the result text written to the log per command.
const summaryLimit = 80

// Logger defines the logging interface used by workers.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PayloadSink receives large payloads and returns where to find them.
// *shm.Broker satisfies it.
type PayloadSink interface {
	Push(data []byte, shape []int, elementType string) (shm.Descriptor, error)
}

// Worker owns one device instance and serves its registration's queue.
// The device is only ever touched from the goroutine running Run.
type Worker struct {
	reg    *Registration
	sink   PayloadSink
	logger Logger
}

// NewWorker creates the worker for reg. sink may be nil when the device has
// no payload operations.
func NewWorker(reg *Registration, sink PayloadSink) *Worker {
	return &Worker{
		reg:    reg,
		sink:   sink,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the worker.
func (w *Worker) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	w.logger = logger
}

// Name identifies the worker in lifecycle logs.
func (w *Worker) Name() string {
	return "worker/" + w.reg.label
}

// Run constructs the device and processes commands until ctx is cancelled
// and the queue is empty.
//
// Returns:
//   - error: Non-nil only if the device could not be constructed
func (w *Worker) Run(ctx context.Context) error {
	defer w.reg.markDone()

	dev, err := w.reg.factory(ctx)
	if err != nil {
		w.reg.setBuildErr(err)
		if ctx.Err() != nil {
			w.logger.Info("device construction abandoned", "device", w.reg.label, "error", err)
			return nil
		}
		w.logger.Error("device construction failed", "device", w.reg.label, "error", err)
		return fmt.Errorf("constructing device %q: %w", w.reg.label, err)
	}
	defer w.closeDevice(dev)

	table := dev.Capabilities()
	w.reg.markReady()
	w.logger.Info("device ready",
		"device", w.reg.label,
		"operations", len(table.Operations()),
		"attributes", len(table.Attributes()),
	)

	// Handlers see a context that survives shutdown so drained commands
	// still run to completion.
	callCtx := context.WithoutCancel(ctx)

	for {
		select {
		case cmd := <-w.reg.queue:
			w.execute(callCtx, table, cmd)
			continue
		default:
		}

		if ctx.Err() != nil {
			w.logger.Info("worker stopped", "device", w.reg.label)
			return nil
		}

		select {
		case cmd := <-w.reg.queue:
			w.execute(callCtx, table, cmd)
		case <-ctx.Done():
		}
	}
}

func (w *Worker) execute(ctx context.Context, table *device.Table, cmd *Command) {
	start := time.Now()
	resp := w.invoke(ctx, table, cmd)
	resp.RequestID = cmd.ID
	elapsed := time.Since(start)

	w.reg.record(resp.Status, elapsed)
	cmd.reply <- resp

	if kind, args, ok := resp.ErrorDetail(); ok {
		w.logger.Warn("command failed",
			"device", w.reg.label,
			"operation", cmd.Operation,
			"request_id", cmd.ID,
			"error_kind", kind,
			"error_args", args,
			"duration", elapsed,
		)
		return
	}
	w.logger.Info("command completed",
		"device", w.reg.label,
		"operation", cmd.Operation,
		"request_id", cmd.ID,
		"status", resp.Status.String(),
		"duration", elapsed,
	)
	w.logger.Debug("command result", "request_id", cmd.ID, "summary", summarize(resp.Payload))
}

func (w *Worker) invoke(ctx context.Context, table *device.Table, cmd *Command) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("device panicked", "device", w.reg.label, "operation", cmd.Operation, "panic", p)
			resp = errorResponse(device.KindInternal, []any{fmt.Sprintf("panic: %v", p)})
		}
	}()

	result, err := table.Invoke(ctx, cmd.Operation, cmd.Call)
	if err != nil {
		kind, args := device.Classify(err)
		return errorResponse(kind, args)
	}

	if !table.IsPayload(cmd.Operation) {
		return okResponse(result)
	}
	return w.publish(cmd.Operation, result)
}

// publish hands a payload result to the sink and answers with its descriptor.
func (w *Worker) publish(operation string, result any) Response {
	arr, ok := result.(*device.Array)
	if !ok || arr == nil {
		return errorResponse(device.KindInternal, []any{fmt.Sprintf("%s returned %T, want *device.Array", operation, result)})
	}
	if w.sink == nil {
		return errorResponse(device.KindSharedMemory, []any{"no shared memory broker configured"})
	}

	desc, err := w.sink.Push(arr.Data, arr.Shape, arr.ElementType)
	if err != nil {
		return errorResponse(device.KindSharedMemory, []any{err.Error()})
	}
	return okResponse(desc)
}

func (w *Worker) closeDevice(dev device.Device) {
	c, ok := dev.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		w.logger.Warn("closing device", "device", w.reg.label, "error", err)
	}
}

func summarize(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > summaryLimit {
		return s[:summaryLimit] + "..."
	}
	return s
}
