package telemetry

import (
	"context"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tem-emulator/internal/dispatch"
)

type devicePoint struct {
	label  string
	fields map[string]any
	at     time.Time
}

type segmentPoint struct {
	identifier  string
	size        int
	allocations int
}

type recorder struct {
	mu       sync.Mutex
	devices  []devicePoint
	segments []segmentPoint
}

func (r *recorder) WriteDeviceStats(label string, fields map[string]any, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, devicePoint{label, fields, at})
}

func (r *recorder) WriteSharedMemoryStats(identifier string, size, allocations int, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segments = append(r.segments, segmentPoint{identifier, size, allocations})
}

func (r *recorder) deviceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

type fixedSource dispatch.Stats

func (s fixedSource) Stats() dispatch.Stats { return dispatch.Stats(s) }

type fixedSegment struct{}

func (fixedSegment) Identifier() string { return "emulator" }
func (fixedSegment) Size() int          { return 524288 }
func (fixedSegment) Allocations() int   { return 2 }

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

func TestFields(t *testing.T) {
	f := Fields(dispatch.Stats{
		Label:         "camera",
		Ready:         true,
		QueueDepth:    3,
		QueueCapacity: 100,
		Commands:      42,
		Errors:        5,
		LastLatency:   2500 * time.Microsecond,
	})

	want := map[string]any{
		"commands_total": int64(42),
		"errors_total":   int64(5),
		"queue_depth":    3,
		"queue_capacity": 100,
		"ready":          true,
	}
	for key, v := range want {
		if f[key] != v {
			t.Errorf("Fields()[%s] = %v (%T), want %v (%T)", key, f[key], f[key], v, v)
		}
	}
	if latency, _ := f["last_latency_ms"].(float64); math.Abs(latency-2.5) > 1e-9 {
		t.Errorf("Fields()[last_latency_ms] = %v, want 2.5", f["last_latency_ms"])
	}

	if ready := Fields(dispatch.Stats{Ready: true, Stopped: true})["ready"]; ready != false {
		t.Errorf("Fields()[ready] for stopped worker = %v, want false", ready)
	}
}

func TestReporter_Sample(t *testing.T) {
	rec := &recorder{}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewReporter(Config{
		Writer: rec,
		Sources: []Source{
			fixedSource{Label: "microscope", Commands: 1},
			fixedSource{Label: "camera", Commands: 2},
		},
		Segment: fixedSegment{},
	})
	r.now = func() time.Time { return at }

	r.Sample()

	if len(rec.devices) != 2 {
		t.Fatalf("device points = %d, want 2", len(rec.devices))
	}
	if rec.devices[0].label != "microscope" || rec.devices[1].label != "camera" {
		t.Errorf("labels = %s, %s; want microscope, camera", rec.devices[0].label, rec.devices[1].label)
	}
	if got := rec.devices[1].fields["commands_total"]; got != int64(2) {
		t.Errorf("camera commands_total = %v, want 2", got)
	}
	if !rec.devices[0].at.Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.devices[0].at, at)
	}
	if want := []segmentPoint{{"emulator", 524288, 2}}; !reflect.DeepEqual(rec.segments, want) {
		t.Errorf("segments = %v, want %v", rec.segments, want)
	}
}

func TestReporter_NoSegment(t *testing.T) {
	rec := &recorder{}
	r := NewReporter(Config{Writer: rec, Sources: []Source{fixedSource{Label: "microscope"}}})

	r.Sample()

	if len(rec.devices) != 1 {
		t.Errorf("device points = %d, want 1", len(rec.devices))
	}
	if len(rec.segments) != 0 {
		t.Errorf("segment points = %d, want 0", len(rec.segments))
	}
	if r.interval != DefaultSampleInterval {
		t.Errorf("interval = %v, want %v", r.interval, DefaultSampleInterval)
	}
}

func TestReporter_RunSamplesUntilCancelled(t *testing.T) {
	rec := &recorder{}
	r := NewReporter(Config{
		Writer:   rec,
		Sources:  []Source{fixedSource{Label: "camera"}},
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if !waitFor(time.Second, func() bool { return rec.deviceCount() >= 2 }) {
		t.Errorf("device points = %d after 1s, want >= 2", rec.deviceCount())
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	before := rec.deviceCount()
	time.Sleep(30 * time.Millisecond)
	if after := rec.deviceCount(); after != before {
		t.Errorf("device points grew from %d to %d after Run returned", before, after)
	}
}
