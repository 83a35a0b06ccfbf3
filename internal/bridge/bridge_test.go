package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
	"github.com/nerrad567/tem-emulator/internal/dispatch"
	"github.com/nerrad567/tem-emulator/internal/infrastructure/mqtt"
	"github.com/nerrad567/tem-emulator/internal/simulation"
)

type published struct {
	topic    string
	payload  []byte
	retained bool
	// viaRetained is set for messages sent with PublishRetained.
	viaRetained bool
}

type fakePublisher struct {
	mu           sync.Mutex
	connected    bool
	messages     []published
	handlers     map[string]mqtt.MessageHandler
	subscribeErr error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (p *fakePublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (p *fakePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: payload, retained: true, viaRetained: true})
	return nil
}

func (p *fakePublisher) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if p.subscribeErr != nil {
		return p.subscribeErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = handler
	return nil
}

func (p *fakePublisher) Unsubscribe(topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers, topic)
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *fakePublisher) handler(topic string) mqtt.MessageHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[topic]
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages...)
}

func (p *fakePublisher) on(topic string) []published {
	var out []published
	for _, m := range p.all() {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// startMicroscope runs a microscope worker and returns its registration.
func startMicroscope(t *testing.T) *dispatch.Registration {
	t.Helper()
	reg := dispatch.NewRegistration("microscope", func(ctx context.Context) (device.Device, error) {
		return simulation.NewMicroscope(ctx, simulation.MicroscopeOptions{Label: "microscope"})
	}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dispatch.NewWorker(reg, nil).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	if err := reg.WaitReady(ctx); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	return reg
}

type running struct {
	bridge *Bridge
	pub    *fakePublisher
	topics mqtt.Topics
	stop   func() error
}

func startBridge(t *testing.T, devices ...Device) *running {
	t.Helper()
	pub := newFakePublisher()
	topics := mqtt.NewTopics("emulator")
	b, err := NewBridge(Options{
		Publisher:      pub,
		Topics:         topics,
		Devices:        devices,
		QoS:            1,
		HealthInterval: time.Hour,
		Version:        "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- b.Run(ctx) }()

	if !waitFor(time.Second, func() bool { return pub.handler(topics.AllCommands()) != nil }) {
		cancel()
		t.Fatal("bridge did not subscribe to commands")
	}

	r := &running{bridge: b, pub: pub, topics: topics}
	var once sync.Once
	var runErr error
	r.stop = func() error {
		once.Do(func() {
			cancel()
			runErr = <-errc
		})
		return runErr
	}
	t.Cleanup(func() { _ = r.stop() })
	return r
}

func (r *running) send(label, body string) error {
	return r.pub.handler(r.topics.AllCommands())(r.topics.Command(label), []byte(body))
}

func (r *running) mustSend(t *testing.T, label, body string) {
	t.Helper()
	if err := r.send(label, body); err != nil {
		t.Fatalf("command %s rejected: %v", body, err)
	}
}

func (r *running) awaitResponse(t *testing.T, label, id string) ResponseMessage {
	t.Helper()
	topic := r.topics.Response(label, id)
	if !waitFor(2*time.Second, func() bool { return len(r.pub.on(topic)) == 1 }) {
		t.Fatalf("no response on %s", topic)
	}

	var resp ResponseMessage
	if err := json.Unmarshal(r.pub.on(topic)[0].payload, &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return resp
}

func TestBridge_CommandRoundTrip(t *testing.T) {
	r := startBridge(t, startMicroscope(t))

	r.mustSend(t, "microscope", `{"id":"m1","operation":"move_to","args":[100,-200]}`)
	moved := r.awaitResponse(t, "microscope", "m1")
	if moved.Status != 200 || moved.Operation != "move_to" {
		t.Errorf("move_to response = %+v, want status 200", moved)
	}

	r.mustSend(t, "microscope", `{"id":"p1","func_name":"get_position"}`)
	pos := r.awaitResponse(t, "microscope", "p1")
	if pos.Status != 200 {
		t.Errorf("get_position status = %d, want 200", pos.Status)
	}
	if want := []any{100.0, -200.0}; !reflect.DeepEqual(pos.Payload, want) {
		t.Errorf("get_position payload = %v, want %v", pos.Payload, want)
	}

	for _, m := range r.pub.on(r.topics.Response("microscope", "p1")) {
		if m.retained {
			t.Error("responses must not be retained")
		}
	}
}

func TestBridge_ErrorResponse(t *testing.T) {
	r := startBridge(t, startMicroscope(t))

	r.mustSend(t, "microscope", `{"id":"bad","operation":"move_to","kwargs":{"x":1e9,"y":0}}`)
	resp := r.awaitResponse(t, "microscope", "bad")
	if resp.Status != 500 {
		t.Errorf("Status = %d, want 500", resp.Status)
	}

	detail, ok := resp.Payload.([]any)
	if !ok || len(detail) != 2 {
		t.Fatalf("Payload = %v, want [kind, args]", resp.Payload)
	}
	if detail[0] != device.KindRangeError {
		t.Errorf("kind = %v, want %s", detail[0], device.KindRangeError)
	}
}

func TestBridge_AssignsMissingID(t *testing.T) {
	r := startBridge(t, startMicroscope(t))

	r.mustSend(t, "microscope", `{"operation":"name"}`)
	ok := waitFor(2*time.Second, func() bool {
		for _, m := range r.pub.all() {
			var resp ResponseMessage
			if json.Unmarshal(m.payload, &resp) == nil && resp.Operation == "name" {
				return resp.ID != "" && resp.Payload == "simulated-tem" &&
					m.topic == r.topics.Response("microscope", resp.ID)
			}
		}
		return false
	})
	if !ok {
		t.Error("no response with a generated id")
	}
}

func TestBridge_RejectsInvalidMessages(t *testing.T) {
	r := startBridge(t, startMicroscope(t))
	handler := r.pub.handler(r.topics.AllCommands())

	tests := []struct {
		name  string
		topic string
		body  string
		want  error
	}{
		{"unknown device", "emulator/command/camera", `{"operation":"x"}`, ErrUnknownDevice},
		{"nested topic", "emulator/command/a/b", `{}`, ErrInvalidTopic},
		{"not json", "emulator/command/microscope", `not json`, ErrInvalidCommand},
		{"no operation", "emulator/command/microscope", `{"args":[1]}`, ErrInvalidCommand},
		{"id with separator", "emulator/command/microscope", `{"id":"a/b","operation":"name"}`, ErrInvalidCommand},
		{"id with wildcard", "emulator/command/microscope", `{"id":"#","operation":"name"}`, ErrInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := handler(tt.topic, []byte(tt.body)); !errors.Is(err, tt.want) {
				t.Errorf("handler() error = %v, want %v", err, tt.want)
			}
		})
	}

	for _, m := range r.pub.all() {
		if strings.HasPrefix(m.topic, "emulator/response/") {
			t.Errorf("rejected command produced a response on %s", m.topic)
		}
	}
}

func TestParseCommand_ID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  string
		wantErr bool
	}{
		{"kept", `{"id":"req-1","operation":"name"}`, "req-1", false},
		{"generated", `{"operation":"name"}`, "", false},
		{"plus", `{"id":"a+b","operation":"name"}`, "", true},
		{"slash", `{"id":"x/response/y","operation":"name"}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("ParseCommand() error = %v, want ErrInvalidCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCommand() error = %v", err)
			}
			if tt.wantID != "" && cmd.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", cmd.ID, tt.wantID)
			}
			if !mqtt.ValidLevel(cmd.ID) {
				t.Errorf("ID %q is not a valid topic level", cmd.ID)
			}
		})
	}
}

func TestBridge_StopPublishesStoppingAndRejectsLateCommands(t *testing.T) {
	reg := startMicroscope(t)
	r := startBridge(t, reg)
	handler := r.pub.handler(r.topics.AllCommands())

	if err := r.stop(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	health := r.pub.on(r.topics.Health("microscope"))
	if len(health) == 0 {
		t.Fatal("no health published")
	}
	final := health[len(health)-1]
	var last HealthMessage
	if err := json.Unmarshal(final.payload, &last); err != nil {
		t.Fatalf("health is not JSON: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("final status = %q, want %q", last.Status, HealthStopping)
	}
	if !final.viaRetained {
		t.Error("health not published retained")
	}

	if err := handler(r.topics.Command("microscope"), []byte(`{"operation":"name"}`)); !errors.Is(err, ErrStopping) {
		t.Errorf("late command error = %v, want ErrStopping", err)
	}
	if r.pub.handler(r.topics.AllCommands()) != nil {
		t.Error("command subscription kept after stop")
	}
}

func TestBridge_SubscribeFailureFailsRun(t *testing.T) {
	pub := newFakePublisher()
	pub.subscribeErr = errors.New("not authorised")
	b, err := NewBridge(Options{Publisher: pub, Topics: mqtt.NewTopics(""), Devices: []Device{startMicroscope(t)}})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	if err := b.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "not authorised") {
		t.Errorf("Run() error = %v, want subscribe failure", err)
	}
}

func TestBridge_PublishSystemState(t *testing.T) {
	pub := newFakePublisher()
	b, err := NewBridge(Options{Publisher: pub, Topics: mqtt.NewTopics("lab"), Devices: []Device{startMicroscope(t)}, Version: "1.2.3"})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}

	if err := b.PublishSystemState("RUNNING"); err != nil {
		t.Fatalf("PublishSystemState() error = %v", err)
	}
	msgs := pub.on("lab/system/status")
	if len(msgs) != 1 {
		t.Fatalf("got %d status messages, want 1", len(msgs))
	}
	if !msgs[0].viaRetained {
		t.Error("system state not published retained")
	}

	var sys SystemMessage
	if err := json.Unmarshal(msgs[0].payload, &sys); err != nil {
		t.Fatalf("status is not JSON: %v", err)
	}
	if sys.State != "RUNNING" || sys.Version != "1.2.3" {
		t.Errorf("status = %+v, want state RUNNING version 1.2.3", sys)
	}

	pub.setConnected(false)
	if err := b.PublishSystemState("DRAINING"); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("PublishSystemState() while disconnected error = %v, want ErrNotConnected", err)
	}
}

func TestNewBridge_Validation(t *testing.T) {
	reg := startMicroscope(t)

	if _, err := NewBridge(Options{Devices: []Device{reg}}); err == nil {
		t.Error("NewBridge() without publisher should fail")
	}
	if _, err := NewBridge(Options{Publisher: newFakePublisher()}); err == nil {
		t.Error("NewBridge() without devices should fail")
	}
	_, err := NewBridge(Options{Publisher: newFakePublisher(), Devices: []Device{reg, reg}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("NewBridge() with duplicate labels error = %v, want duplicate", err)
	}
}
