package simulation

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/nerrad567/tem-emulator/internal/device"
)

// directInvoker calls a device table in-process.
type directInvoker struct {
	dev device.Device
}

func (d directInvoker) Invoke(ctx context.Context, op string, call device.Call) (any, error) {
	return d.dev.Capabilities().Invoke(ctx, op, call)
}

func newCamera(t *testing.T) (*Camera, *Microscope) {
	t.Helper()
	m := newMicroscope(t, nil)
	c, err := NewCamera(CameraOptions{
		Width:           512,
		Height:          512,
		DefaultExposure: 0.1,
		Instrument:      directInvoker{dev: m},
	})
	if err != nil {
		t.Fatalf("NewCamera() error = %v", err)
	}
	return c, m
}

// mustArray runs op and returns its array result.
func mustArray(t *testing.T, c *Camera, op string, call device.Call) *device.Array {
	t.Helper()
	img, ok := mustInvoke(t, c, op, call).(*device.Array)
	if !ok {
		t.Fatalf("%s did not return an array", op)
	}
	return img
}

func TestNewCamera_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts CameraOptions
	}{
		{"no instrument", CameraOptions{Width: 1, Height: 1}},
		{"zero width", CameraOptions{Width: 0, Height: 1, Instrument: directInvoker{}}},
	}
	for _, tt := range tests {
		if _, err := NewCamera(tt.opts); err == nil {
			t.Errorf("%s: NewCamera() should fail", tt.name)
		}
	}
}

func TestCamera_CaptureFrame(t *testing.T) {
	c, _ := newCamera(t)

	for _, op := range []string{"capture_frame", "get_image"} {
		img := mustArray(t, c, op, device.Call{})
		if want := []int{512, 512}; !reflect.DeepEqual(img.Shape, want) {
			t.Errorf("%s shape = %v, want %v", op, img.Shape, want)
		}
		if img.ElementType != "uint16" {
			t.Errorf("%s element type = %q, want uint16", op, img.ElementType)
		}
		if len(img.Data) != 524288 {
			t.Errorf("%s data = %d bytes, want 524288", op, len(img.Data))
		}
		if !c.Capabilities().IsPayload(op) {
			t.Errorf("IsPayload(%s) = false, want true", op)
		}
	}
}

func TestCamera_Binning(t *testing.T) {
	c, _ := newCamera(t)

	img := mustArray(t, c, "get_image", device.Call{Kwargs: map[string]any{"binsize": 2.0}})
	if want := []int{256, 256}; !reflect.DeepEqual(img.Shape, want) {
		t.Errorf("binned shape = %v, want %v", img.Shape, want)
	}

	wantKind(t, c, "get_image", device.Call{Kwargs: map[string]any{"binsize": 3.0}}, device.KindValueError)

	mustInvoke(t, c, "set_binning", device.Call{Args: []any{4.0}})
	if b := mustInvoke(t, c, "get_binning", device.Call{}); b != 4 {
		t.Errorf("binning = %v, want 4", b)
	}

	img = mustArray(t, c, "get_image", device.Call{})
	if want := []int{128, 128}; !reflect.DeepEqual(img.Shape, want) {
		t.Errorf("shape after set_binning = %v, want %v", img.Shape, want)
	}
}

func TestCamera_Movie(t *testing.T) {
	c, _ := newCamera(t)

	movie := mustArray(t, c, "get_movie", device.Call{Args: []any{3.0, 0.01, 4.0}})
	if want := []int{3, 128, 128}; !reflect.DeepEqual(movie.Shape, want) {
		t.Errorf("movie shape = %v, want %v", movie.Shape, want)
	}
	if want := 3 * 128 * 128 * 2; len(movie.Data) != want {
		t.Errorf("movie data = %d bytes, want %d", len(movie.Data), want)
	}

	wantKind(t, c, "get_movie", device.Call{Args: []any{0.0}}, device.KindValueError)
}

func TestCamera_ExposureValidation(t *testing.T) {
	c, _ := newCamera(t)
	wantKind(t, c, "get_image", device.Call{Args: []any{-1.0}}, device.KindValueError)
}

func TestCamera_FramesFollowStage(t *testing.T) {
	c, m := newCamera(t)

	first := mustArray(t, c, "get_image", device.Call{}).Data
	mustInvoke(t, m, "move_to", device.Call{Args: []any{5000.0, 5000.0}})
	if bytes.Equal(first, mustArray(t, c, "get_image", device.Call{}).Data) {
		t.Error("frame unchanged after moving the stage")
	}
}

func TestCamera_Attributes(t *testing.T) {
	c, _ := newCamera(t)
	for _, op := range []string{"dimensions", "get_camera_dimensions"} {
		if dims := mustInvoke(t, c, op, device.Call{}); !reflect.DeepEqual(dims, []int{512, 512}) {
			t.Errorf("%s = %v, want [512 512]", op, dims)
		}
	}
}
