package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/mqtt"
	"github.com/nerrad567/tem-emulator/internal/wire"
)

// CommandMessage is a device command received over MQTT.
type CommandMessage struct {
	// ID correlates the response and names its topic. Assigned when the
	// sender omits it; ids containing '/', '+' or '#' are rejected.
	ID string

	wire.Request
}

// ParseCommand decodes a JSON command. It accepts the same operation key
// aliases as the socket protocol.
func ParseCommand(payload []byte) (CommandMessage, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	req, _, err := wire.ParseRequest(body)
	if err != nil {
		return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	id, _ := body["id"].(string)
	switch {
	case id == "":
		id = uuid.NewString()
	case !mqtt.ValidLevel(id):
		// The id becomes a response topic level.
		return CommandMessage{}, fmt.Errorf("%w: id %q is not a valid topic level", ErrInvalidCommand, id)
	}
	return CommandMessage{ID: id, Request: req}, nil
}

// ResponseMessage answers one CommandMessage. Status and Payload have the
// same meaning as on the socket protocol.
type ResponseMessage struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	Operation  string    `json:"operation"`
	Status     int       `json:"status"`
	Payload    any       `json:"payload"`
	DurationMS float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// HealthStatus represents the operational status of one device.
type HealthStatus string

const (
	// HealthHealthy indicates the device is ready and accepting commands.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the device is serving but its queue is full.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the worker has stopped.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting indicates the device is still being constructed.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the emulator is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on the device health topic.
type HealthMessage struct {
	Device        string       `json:"device"`
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	QueueDepth    int     `json:"queue_depth"`
	QueueCapacity int     `json:"queue_capacity"`
	CommandsTotal uint64  `json:"commands_total"`
	ErrorsTotal   uint64  `json:"errors_total"`
	LastLatencyMS float64 `json:"last_latency_ms"`
}

// NewHealthMessage builds a health message from a registration snapshot.
func NewHealthMessage(stats dispatch.Stats, version string, startTime time.Time) HealthMessage {
	status, reason := determineStatus(stats)
	return HealthMessage{
		Device:        stats.Label,
		Status:        status,
		Reason:        reason,
		Version:       version,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		QueueDepth:    stats.QueueDepth,
		QueueCapacity: stats.QueueCapacity,
		CommandsTotal: stats.Commands,
		ErrorsTotal:   stats.Errors,
		LastLatencyMS: float64(stats.LastLatency) / float64(time.Millisecond),
	}
}

func determineStatus(stats dispatch.Stats) (HealthStatus, string) {
	switch {
	case stats.Stopped:
		return HealthUnhealthy, "worker stopped"
	case !stats.Ready:
		return HealthStarting, "device being constructed"
	case stats.QueueCapacity > 0 && stats.QueueDepth >= stats.QueueCapacity:
		return HealthDegraded, "command queue full"
	default:
		return HealthHealthy, ""
	}
}

// SystemMessage is published retained on the system status topic when the
// lifecycle state changes.
type SystemMessage struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}
