package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/tem-emulator/internal/device"
)

// Camera limits.
const (
	MaxMovieFrames = 100
	MaxExposure    = 60.0
)

var validBinning = []int{1, 2, 4}

// CameraOptions configures NewCamera.
type CameraOptions struct {
	Width           int
	Height          int
	DefaultExposure float64

	// Realtime makes acquisitions take as long as their exposure.
	Realtime bool

	// Instrument is queried for stage and optics state on each frame.
	Instrument device.Invoker
}

// Camera is the simulated imaging sensor. Frames are uint16 arrays derived
// from the microscope state, the exposure and a frame counter.
type Camera struct {
	opts    CameraOptions
	binning int
	frames  uint64
	table   *device.Table
}

// NewCamera builds the camera. opts.Instrument is required.
func NewCamera(opts CameraOptions) (*Camera, error) {
	if opts.Instrument == nil {
		return nil, fmt.Errorf("camera requires an instrument")
	}
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("camera dimensions %dx%d must be positive", opts.Width, opts.Height)
	}
	if opts.DefaultExposure <= 0 {
		opts.DefaultExposure = 0.1
	}

	c := &Camera{opts: opts, binning: 1}
	c.table = c.buildTable()
	return c, nil
}

// Capabilities implements device.Device.
func (c *Camera) Capabilities() *device.Table {
	return c.table
}

func (c *Camera) buildTable() *device.Table {
	t := device.NewTable()

	t.Attribute("name", func() any { return "simulated-camera" })
	t.Attribute("dimensions", func() any { return []int{c.opts.Height, c.opts.Width} })
	t.Attribute("default_exposure", func() any { return c.opts.DefaultExposure })

	t.Handle("get_camera_dimensions", func(context.Context, device.Call) (any, error) {
		return []int{c.opts.Height, c.opts.Width}, nil
	})
	t.Handle("get_binning", func(context.Context, device.Call) (any, error) {
		return c.binning, nil
	})
	t.Handle("set_binning", c.setBinning)

	t.HandlePayload("get_image", c.getImage)
	t.HandlePayload("capture_frame", c.getImage)
	t.HandlePayload("get_movie", c.getMovie)

	return t
}

func (c *Camera) setBinning(_ context.Context, call device.Call) (any, error) {
	b, err := call.RequireInt(0, "binsize")
	if err != nil {
		return nil, err
	}
	if err := c.checkBinning(b); err != nil {
		return nil, err
	}
	c.binning = b
	return nil, nil
}

func (c *Camera) getImage(ctx context.Context, call device.Call) (any, error) {
	acq, err := c.acquisition(call, 0, 1)
	if err != nil {
		return nil, err
	}
	seed, err := c.sceneSeed(ctx)
	if err != nil {
		return nil, err
	}

	c.expose(ctx, acq.exposure)
	img := device.NewUint16Array(acq.rows, acq.cols)
	c.render(img, 0, acq, seed)
	return img, nil
}

func (c *Camera) getMovie(ctx context.Context, call device.Call) (any, error) {
	n, err := call.Int(0, "n_frames", 1)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > MaxMovieFrames {
		return nil, device.Errorf(device.KindValueError, "n_frames %d outside [1, %d]", n, MaxMovieFrames)
	}
	acq, err := c.acquisition(call, 1, 2)
	if err != nil {
		return nil, err
	}
	seed, err := c.sceneSeed(ctx)
	if err != nil {
		return nil, err
	}

	movie := device.NewUint16Array(n, acq.rows, acq.cols)
	for f := 0; f < n; f++ {
		c.expose(ctx, acq.exposure)
		c.render(movie, f*acq.rows*acq.cols, acq, seed)
	}
	return movie, nil
}

type acquisition struct {
	exposure   float64
	rows, cols int
}

// acquisition reads exposure and binsize from the given argument positions.
func (c *Camera) acquisition(call device.Call, exposurePos, binPos int) (acquisition, error) {
	exposure, err := call.Float(exposurePos, "exposure", c.opts.DefaultExposure)
	if err != nil {
		return acquisition{}, err
	}
	if exposure <= 0 || exposure > MaxExposure || math.IsNaN(exposure) {
		return acquisition{}, device.Errorf(device.KindValueError, "exposure %v outside (0, %v]", exposure, MaxExposure)
	}
	binsize, err := call.Int(binPos, "binsize", c.binning)
	if err != nil {
		return acquisition{}, err
	}
	if err := c.checkBinning(binsize); err != nil {
		return acquisition{}, err
	}
	return acquisition{
		exposure: exposure,
		rows:     c.opts.Height / binsize,
		cols:     c.opts.Width / binsize,
	}, nil
}

func (c *Camera) checkBinning(b int) error {
	for _, v := range validBinning {
		if b == v && c.opts.Width%b == 0 && c.opts.Height%b == 0 {
			return nil
		}
	}
	return device.Errorf(device.KindValueError, "binsize %d not supported for %dx%d sensor", b, c.opts.Height, c.opts.Width)
}

// sceneSeed folds the instrument's stage position and magnification into a
// frame seed, so moving the stage changes the picture.
func (c *Camera) sceneSeed(ctx context.Context) (uint32, error) {
	pos, err := c.opts.Instrument.Invoke(ctx, "get_position", device.Call{})
	if err != nil {
		return 0, err
	}
	mag, err := c.opts.Instrument.Invoke(ctx, "get_magnification", device.Call{})
	if err != nil {
		return 0, err
	}

	seed := uint32(2166136261)
	for _, v := range numbers(pos, mag) {
		seed = (seed ^ uint32(int64(v))) * 16777619
	}
	return seed, nil
}

// numbers flattens scalars and sequences into float64 values, skipping
// anything non-numeric.
func numbers(values ...any) []float64 {
	var out []float64
	for _, v := range values {
		switch t := v.(type) {
		case []any:
			out = append(out, numbers(t...)...)
		case []float64:
			out = append(out, t...)
		default:
			if f, ok := device.ToFloat(t); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func (c *Camera) render(a *device.Array, offset int, acq acquisition, seed uint32) {
	c.frames++
	frameSeed := seed + uint32(c.frames)*7919
	level := uint32(math.Min(acq.exposure*1000, 60000))

	for r := 0; r < acq.rows; r++ {
		for col := 0; col < acq.cols; col++ {
			v := (uint32(r*31+col*17) + frameSeed) % 4096
			a.SetUint16(offset+r*acq.cols+col, uint16(v+level))
		}
	}
}

// expose waits for the exposure time in realtime mode.
func (c *Camera) expose(ctx context.Context, seconds float64) {
	if !c.opts.Realtime {
		return
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
