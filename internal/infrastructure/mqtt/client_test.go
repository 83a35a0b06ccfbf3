package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/tem-emulator/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "emulator-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "emulator",
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := NewTopics("emulator")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Command", topics.Command("camera"), "emulator/command/camera"},
		{"Response", topics.Response("camera", "abc"), "emulator/response/camera/abc"},
		{"Health", topics.Health("microscope"), "emulator/health/microscope"},
		{"SystemStatus", topics.SystemStatus(), "emulator/system/status"},
		{"AllCommands", topics.AllCommands(), "emulator/command/+"},
		{"AllResponses", topics.AllResponses(), "emulator/response/#"},
		{"AllHealth", topics.AllHealth(), "emulator/health/+"},
		{"All", topics.All(), "emulator/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestNewTopics_Prefix(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", DefaultTopicPrefix},
		{"lab/tem", "lab/tem"},
		{"lab/", "lab"},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.prefix).Prefix(); got != tt.want {
			t.Errorf("NewTopics(%q).Prefix() = %q, want %q", tt.prefix, got, tt.want)
		}
	}

	var zero Topics
	if got := zero.Command("camera"); got != "emulator/command/camera" {
		t.Errorf("zero Topics Command() = %q, want default prefix", got)
	}
}

func TestLabelFromCommand(t *testing.T) {
	topics := NewTopics("emulator")

	tests := []struct {
		topic  string
		label  string
		wantOK bool
	}{
		{"emulator/command/camera", "camera", true},
		{"emulator/command/", "", false},
		{"emulator/command/camera/extra", "", false},
		{"other/command/camera", "", false},
		{"emulator/health/camera", "", false},
	}
	for _, tt := range tests {
		label, ok := topics.LabelFromCommand(tt.topic)
		if ok != tt.wantOK || label != tt.label {
			t.Errorf("LabelFromCommand(%q) = (%q, %v), want (%q, %v)", tt.topic, label, ok, tt.label, tt.wantOK)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "user", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "emulator-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "emulator-test")
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, NewTopics("lab"), "emulator-test")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("expected a retained will")
	}
	if opts.WillTopic != "lab/system/status" {
		t.Errorf("WillTopic = %q, want lab/system/status", opts.WillTopic)
	}

	var p offlineMessage
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.Reason != "unexpected_disconnect" || p.ClientID != "emulator-test" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestOfflineStatus(t *testing.T) {
	var p offlineMessage
	if err := json.Unmarshal(offlineStatus("emu", "graceful_shutdown"), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Status != "offline" || p.ClientID != "emu" || p.Reason != "graceful_shutdown" || p.Timestamp == "" {
		t.Errorf("payload = %+v", p)
	}
}

func TestValidLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"0b6f3c1e-5d2a-4f7e-9c8b-1a2b3c4d5e6f", true},
		{"req-42", true},
		{"", false},
		{"a/b", false},
		{"+", false},
		{"all#", false},
		{"nul\x00", false},
	}
	for _, tt := range tests {
		if got := ValidLevel(tt.level); got != tt.want {
			t.Errorf("ValidLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestDisconnectedClient(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", client.Publish("", nil, 1, false), ErrInvalidTopic},
		{"publish bad qos", client.Publish("t", nil, 3, false), ErrInvalidQoS},
		{"publish oversized", client.Publish("t", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", client.Publish("t", nil, 1, false), ErrNotConnected},
		{"retained empty topic", client.PublishRetained("", nil), ErrInvalidTopic},
		{"retained disconnected", client.PublishRetained("t", []byte("{}")), ErrNotConnected},
		{"subscribe empty topic", client.Subscribe("", 1, handler), ErrInvalidTopic},
		{"subscribe bad qos", client.Subscribe("t", 3, handler), ErrInvalidQoS},
		{"subscribe nil handler", client.Subscribe("t", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", client.Subscribe("t", 1, handler), ErrNotConnected},
		{"unsubscribe empty topic", client.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", client.Unsubscribe("t"), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if len(client.subscriptions) != 0 {
		t.Errorf("subscriptions = %d after failed calls, want 0", len(client.subscriptions))
	}
}

type recordingLogger struct {
	errors, warnings int
}

func (l *recordingLogger) Error(string, ...any) { l.errors++ }
func (l *recordingLogger) Warn(string, ...any)  { l.warnings++ }

func TestDeliver_RecoversAndLogs(t *testing.T) {
	client := &Client{}
	logger := &recordingLogger{}
	client.SetLogger(logger)

	client.deliver(func(string, []byte) error { panic("boom") }, "t", nil)
	client.deliver(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	client.deliver(func(string, []byte) error { return nil }, "t", nil)

	if logger.errors != 1 || logger.warnings != 1 {
		t.Errorf("errors=%d warnings=%d, want 1 and 1", logger.errors, logger.warnings)
	}
}
