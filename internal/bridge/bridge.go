package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/mqtt"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

// Publisher is the MQTT surface the bridge needs. *mqtt.Client satisfies it.
type Publisher interface {
	HealthPublisher
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Device is a device the bridge can submit commands to.
// *dispatch.Registration satisfies it.
type Device interface {
	Label() string
	Submit(ctx context.Context, operation string, call device.Call) (dispatch.Response, error)
	Stats() dispatch.Stats
}

// Logger defines the logging interface used by the bridge.
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

// Options holds configuration for creating a bridge.
type Options struct {
	Publisher Publisher
	Topics    mqtt.Topics
	Devices   []Device

	// QoS is used for subscriptions and responses.
	QoS byte

	HealthInterval time.Duration
	Version        string
	Logger         Logger
}

// Bridge accepts device commands over MQTT.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	publisher Publisher
	topics    mqtt.Topics
	qos       byte
	version   string
	devices   map[string]Device
	health    *HealthReporter
	logger    Logger

	mu      sync.Mutex
	ctx     context.Context
	closing bool
	wg      sync.WaitGroup
}

// NewBridge creates a bridge. Run starts it.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("MQTT publisher is required")
	}
	if len(opts.Devices) == 0 {
		return nil, fmt.Errorf("at least one device is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	devices := make(map[string]Device, len(opts.Devices))
	for _, d := range opts.Devices {
		if _, dup := devices[d.Label()]; dup {
			return nil, fmt.Errorf("duplicate device label %q", d.Label())
		}
		devices[d.Label()] = d
	}

	health := NewHealthReporter(HealthReporterConfig{
		Publisher: opts.Publisher,
		Topics:    opts.Topics,
		Devices:   opts.Devices,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
	})
	health.SetLogger(opts.Logger)

	return &Bridge{
		publisher: opts.Publisher,
		topics:    opts.Topics,
		qos:       opts.QoS,
		version:   opts.Version,
		devices:   devices,
		health:    health,
		logger:    opts.Logger,
	}, nil
}

// Name identifies the bridge in lifecycle logs.
func (b *Bridge) Name() string {
	return "mqtt-bridge"
}

// Run subscribes to command topics and reports health until ctx is
// cancelled. In-flight commands are answered before it returns.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	topic := b.topics.AllCommands()
	if err := b.publisher.Subscribe(topic, b.qos, b.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	b.logger.Info("mqtt bridge started", "topic", topic, "devices", len(b.devices))

	healthDone := make(chan struct{})
	go func() {
		defer close(healthDone)
		b.health.Run(ctx)
	}()

	<-ctx.Done()

	if err := b.publisher.Unsubscribe(topic); err != nil {
		b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
	}

	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	b.wg.Wait()
	<-healthDone

	if err := b.health.PublishStopping(); err != nil {
		b.logger.Warn("failed to publish stopping health", "error", err)
	}
	b.logger.Info("mqtt bridge stopped")
	return nil
}

// PublishSystemState publishes the lifecycle state, retained, on the
// system status topic.
func (b *Bridge) PublishSystemState(state string) error {
	if !b.publisher.IsConnected() {
		return mqtt.ErrNotConnected
	}
	payload, err := json.Marshal(SystemMessage{
		Status:    "online",
		State:     state,
		Version:   b.version,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return b.publisher.PublishRetained(b.topics.SystemStatus(), payload)
}

// handleMessage is called by the MQTT client for every command. Errors are
// logged by the client.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	label, ok := b.topics.LabelFromCommand(topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}
	dev, ok := b.devices[label]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, label)
	}
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}

	ctx, ok := b.begin()
	if !ok {
		return ErrStopping
	}
	go func() {
		defer b.wg.Done()
		b.execute(ctx, dev, cmd)
	}()
	return nil
}

// begin registers an in-flight command unless shutdown has begun.
func (b *Bridge) begin() (context.Context, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closing || b.ctx == nil {
		return nil, false
	}
	b.wg.Add(1)
	return b.ctx, true
}

func (b *Bridge) execute(ctx context.Context, dev Device, cmd CommandMessage) {
	label := dev.Label()
	b.logger.Debug("mqtt command received", "device", label, "command_id", cmd.ID, "operation", cmd.Operation)

	start := time.Now()
	var out wire.Response
	resp, err := dev.Submit(ctx, cmd.Operation, device.Call{Args: cmd.Args, Kwargs: cmd.Kwargs})
	if err != nil {
		out = wire.Failure(device.KindServiceUnavailable, []any{err.Error()})
	} else {
		out = wire.Response{Status: int(resp.Status), Payload: resp.Payload}
	}

	payload, err := json.Marshal(ResponseMessage{
		ID:         cmd.ID,
		Device:     label,
		Operation:  cmd.Operation,
		Status:     out.Status,
		Payload:    out.Payload,
		DurationMS: float64(time.Since(start)) / float64(time.Millisecond),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error("failed to encode mqtt response", "device", label, "command_id", cmd.ID, "error", err)
		return
	}

	if err := b.publisher.Publish(b.topics.Response(label, cmd.ID), payload, b.qos, false); err != nil {
		b.logger.Warn("failed to publish mqtt response", "device", label, "command_id", cmd.ID, "error", err)
	}
}
