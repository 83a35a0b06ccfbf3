package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nerrad567/tem-emulator/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher publishes retained state. *mqtt.Client satisfies it.
type HealthPublisher interface {
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Publisher HealthPublisher
	Topics    mqtt.Topics
	Devices   []Device
	Version   string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration
}

// HealthReporter periodically publishes per-device health.
type HealthReporter struct {
	publisher HealthPublisher
	topics    mqtt.Topics
	devices   []Device
	version   string
	interval  time.Duration
	startTime time.Time
	logger    Logger
}

// NewHealthReporter creates a health reporter. Call Run to start reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthReporter{
		publisher: cfg.Publisher,
		topics:    cfg.Topics,
		devices:   cfg.Devices,
		version:   cfg.Version,
		interval:  interval,
		startTime: time.Now(),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.logger = logger
}

// Run publishes immediately and then every interval until ctx is cancelled.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// PublishNow publishes the current health of every device.
func (h *HealthReporter) PublishNow() error {
	var errs []error
	for _, d := range h.devices {
		errs = append(errs, h.publish(NewHealthMessage(d.Stats(), h.version, h.startTime)))
	}
	return errors.Join(errs...)
}

// PublishStopping publishes a final "stopping" status for every device.
func (h *HealthReporter) PublishStopping() error {
	var errs []error
	for _, d := range h.devices {
		msg := NewHealthMessage(d.Stats(), h.version, h.startTime)
		msg.Status, msg.Reason = HealthStopping, "emulator shutting down"
		errs = append(errs, h.publish(msg))
	}
	return errors.Join(errs...)
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.PublishRetained(h.topics.Health(msg.Device), payload)
}
