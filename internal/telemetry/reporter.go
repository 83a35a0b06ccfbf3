package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/tem-emulator/internal/dispatch"
)

// DefaultSampleInterval is used when no interval is configured.
const DefaultSampleInterval = 10 * time.Second

// Writer receives samples. *influxdb.Client satisfies it.
type Writer interface {
	WriteDeviceStats(label string, fields map[string]any, at time.Time)
	WriteSharedMemoryStats(identifier string, sizeBytes, allocations int, at time.Time)
}

// Source is a device whose counters are sampled.
// *dispatch.Registration satisfies it.
type Source interface {
	Stats() dispatch.Stats
}

// Segment is the payload broker. *shm.Broker satisfies it.
type Segment interface {
	Identifier() string
	Size() int
	Allocations() int
}

// Logger is the subset of logging used by the reporter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Config configures a Reporter.
type Config struct {
	Writer   Writer
	Sources  []Source
	Segment  Segment // optional
	Interval time.Duration
}

// Reporter periodically writes device and broker statistics.
type Reporter struct {
	writer   Writer
	sources  []Source
	segment  Segment
	interval time.Duration
	logger   Logger
	now      func() time.Time
}

// NewReporter creates a reporter. Run starts sampling.
func NewReporter(cfg Config) *Reporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Reporter{
		writer:   cfg.Writer,
		sources:  cfg.Sources,
		segment:  cfg.Segment,
		interval: interval,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the reporter.
func (r *Reporter) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Name identifies the reporter in lifecycle logs.
func (r *Reporter) Name() string {
	return "telemetry"
}

// Run samples every interval until ctx is cancelled, then writes a final
// sample so the last counters are not lost.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("telemetry started", "interval", r.interval, "devices", len(r.sources))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Sample()
			r.logger.Info("telemetry stopped")
			return nil
		case <-ticker.C:
			r.Sample()
		}
	}
}

// Sample writes one point per device and one for the broker.
func (r *Reporter) Sample() {
	at := r.now()
	for _, src := range r.sources {
		stats := src.Stats()
		r.writer.WriteDeviceStats(stats.Label, Fields(stats), at)
	}
	if r.segment != nil {
		r.writer.WriteSharedMemoryStats(r.segment.Identifier(), r.segment.Size(), r.segment.Allocations(), at)
	}
	r.logger.Debug("telemetry sampled", "devices", len(r.sources))
}

// Fields converts a stats snapshot into point fields.
func Fields(stats dispatch.Stats) map[string]any {
	return map[string]any{
		"commands_total":  int64(stats.Commands),
		"errors_total":    int64(stats.Errors),
		"queue_depth":     stats.QueueDepth,
		"queue_capacity":  stats.QueueCapacity,
		"last_latency_ms": float64(stats.LastLatency) / float64(time.Millisecond),
		"ready":           stats.Ready && !stats.Stopped,
	}
}
