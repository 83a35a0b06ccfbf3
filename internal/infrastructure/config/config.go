package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file used when no path is given.
const DefaultPath = "configs/emulator.yaml"

// Config is the root configuration structure for the emulator.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Devices      DevicesConfig      `yaml:"devices"`
	SharedMemory SharedMemoryConfig `yaml:"shared_memory"`
	Logging      LoggingConfig      `yaml:"logging"`
	State        StateConfig        `yaml:"state"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
}

// ServerConfig contains settings shared by every device endpoint.
type ServerConfig struct {
	Host string `yaml:"host"`

	// PollInterval bounds every blocking wait (accept, idle read) so that
	// a shutdown request is observed promptly.
	// Default: 1s
	PollInterval time.Duration `yaml:"poll_interval"`

	// QueueCapacity is the bounded FIFO size of each device command queue.
	// Default: 100
	QueueCapacity int `yaml:"queue_capacity"`

	// MaxFrameSize is the largest request or response body accepted on the wire.
	MaxFrameSize int `yaml:"max_frame_size"`

	// Codec selects the body encoding: "json" or "cbor".
	Codec string `yaml:"codec"`

	// Serial handles one connection at a time per device port.
	Serial bool `yaml:"serial"`
}

// DevicesConfig lists the simulated devices to host.
type DevicesConfig struct {
	Instrument InstrumentConfig `yaml:"instrument"`
	Sensor     SensorConfig     `yaml:"sensor"`
}

// InstrumentConfig configures the simulated microscope.
type InstrumentConfig struct {
	Enabled bool   `yaml:"enabled"`
	Label   string `yaml:"label"`
	Port    int    `yaml:"port"`
}

// SensorConfig configures the simulated camera.
type SensorConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Label           string  `yaml:"label"`
	Port            int     `yaml:"port"`
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	DefaultExposure float64 `yaml:"default_exposure"`

	// RealtimeExposure makes acquisitions block for their exposure time.
	RealtimeExposure bool `yaml:"realtime_exposure"`
}

// SharedMemoryConfig locates the large-payload segment.
type SharedMemoryConfig struct {
	Identifier string `yaml:"identifier"`
	Dir        string `yaml:"dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// When Path is empty a dated file is created in Dir.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
	Dir  string `yaml:"dir"`
}

// StateConfig contains SQLite settings for the device settings store.
type StateConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled        bool                `yaml:"enabled"`
	Broker         MQTTBrokerConfig    `yaml:"broker"`
	Auth           MQTTAuthConfig      `yaml:"auth"`
	QoS            int                 `yaml:"qos"`
	Reconnect      MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix    string              `yaml:"topic_prefix"`
	HealthInterval time.Duration       `yaml:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	Token          string        `yaml:"token"`
	Org            string        `yaml:"org"`
	Bucket         string        `yaml:"bucket"`
	BatchSize      int           `yaml:"batch_size"`
	FlushInterval  int           `yaml:"flush_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// APIConfig contains admin HTTP API settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// WebSocketConfig contains settings for the live statistics stream.
type WebSocketConfig struct {
	MaxMessageSize int           `yaml:"max_message_size"`
	PingInterval   int           `yaml:"ping_interval"`
	PongTimeout    int           `yaml:"pong_timeout"`
	StatsInterval  time.Duration `yaml:"stats_interval"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EMULATOR_SECTION_KEY
// For example: EMULATOR_SHM_DIR, EMULATOR_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load, except that a missing file yields the
// default configuration (with environment overrides applied).
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(defaultConfig())
}

// Default returns the validated default configuration without consulting
// the environment.
func Default() *Config {
	return defaultConfig()
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "localhost",
			PollInterval:  time.Second,
			QueueCapacity: 100,
			MaxFrameSize:  64 << 20,
			Codec:         "json",
		},
		Devices: DevicesConfig{
			Instrument: InstrumentConfig{
				Enabled: true,
				Label:   "microscope",
				Port:    5000,
			},
			Sensor: SensorConfig{
				Enabled:         true,
				Label:           "camera",
				Port:            5001,
				Width:           512,
				Height:          512,
				DefaultExposure: 0.1,
			},
		},
		SharedMemory: SharedMemoryConfig{
			Identifier: "emulator",
			Dir:        "/dev/shm",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileLoggingConfig{
				Dir: "./logs",
			},
		},
		State: StateConfig{
			Enabled:     true,
			Path:        "./data/emulator.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tem-emulator",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:    "emulator",
			HealthInterval: 30 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:            "http://localhost:8086",
			Org:            "emulator",
			Bucket:         "emulator",
			BatchSize:      100,
			FlushInterval:  10,
			SampleInterval: 10 * time.Second,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
				StatsInterval:  time.Second,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EMULATOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMULATOR_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("EMULATOR_SHM_DIR"); v != "" {
		cfg.SharedMemory.Dir = v
	}
	if v := os.Getenv("EMULATOR_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}
	if v := os.Getenv("EMULATOR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("EMULATOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EMULATOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EMULATOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("EMULATOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Server.PollInterval <= 0 {
		errs = append(errs, "server.poll_interval must be positive")
	}
	if c.Server.QueueCapacity < 1 {
		errs = append(errs, "server.queue_capacity must be at least 1")
	}
	if c.Server.MaxFrameSize < 1 {
		errs = append(errs, "server.max_frame_size must be positive")
	}
	switch c.Server.Codec {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Sprintf("server.codec %q must be json or cbor", c.Server.Codec))
	}

	inst, sens := c.Devices.Instrument, c.Devices.Sensor
	if !inst.Enabled && !sens.Enabled {
		errs = append(errs, "at least one device must be enabled")
	}
	if sens.Enabled && !inst.Enabled {
		errs = append(errs, "devices.sensor requires devices.instrument")
	}
	if inst.Enabled {
		errs = append(errs, validateEndpoint("devices.instrument", inst.Label, inst.Port)...)
	}
	if sens.Enabled {
		errs = append(errs, validateEndpoint("devices.sensor", sens.Label, sens.Port)...)
		if sens.Width < 1 || sens.Height < 1 {
			errs = append(errs, "devices.sensor width and height must be positive")
		}
	}
	if inst.Enabled && sens.Enabled {
		if inst.Label == sens.Label {
			errs = append(errs, "device labels must be unique")
		}
		if inst.Port == sens.Port && inst.Port != 0 {
			errs = append(errs, "device ports must be unique")
		}
	}

	if c.SharedMemory.Identifier == "" || strings.ContainsRune(c.SharedMemory.Identifier, '/') {
		errs = append(errs, "shared_memory.identifier must be a non-empty name without '/'")
	}
	if c.SharedMemory.Dir == "" {
		errs = append(errs, "shared_memory.dir is required")
	}

	if c.State.Enabled && c.State.Path == "" {
		errs = append(errs, "state.path is required when state is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.SampleInterval <= 0 {
		errs = append(errs, "influxdb.sample_interval must be positive")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && c.API.WebSocket.StatsInterval <= 0 {
		errs = append(errs, "api.websocket.stats_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateEndpoint(section, label string, port int) []string {
	var errs []string
	if label == "" {
		errs = append(errs, section+".label is required")
	}
	if port < 0 || port > 65535 {
		errs = append(errs, section+".port must be between 0 and 65535")
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
