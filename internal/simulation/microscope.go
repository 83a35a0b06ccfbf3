package simulation

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/nerrad567/tem-emulator/internal/device"
)

// Stage limits.
const (
	// StageLimitNM bounds x, y and z in nanometres.
	StageLimitNM = 1_000_000
	// TiltLimitDeg bounds the a and b tilt angles in degrees.
	TiltLimitDeg = 70
)

// Function modes.
const (
	ModeLowMag = "lowmag"
	ModeMag1   = "mag1"
	ModeDiff   = "diff"
)

// magnificationRanges lists the selectable values per function mode. In
// diffraction mode the values are camera lengths in millimetres.
var magnificationRanges = map[string][]int{
	ModeLowMag: {50, 80, 100, 150, 200, 250, 300, 400, 500, 600, 800, 1000},
	ModeMag1:   {2500, 3000, 5000, 6000, 8000, 10000, 12000, 15000, 20000, 25000, 30000, 40000, 50000},
	ModeDiff:   {150, 200, 250, 300, 400, 500, 600, 800, 1000, 1200, 1500},
}

const highTensionVolts = 200_000.0

// SettingsStore persists device settings between runs. *state.Store satisfies it.
type SettingsStore interface {
	Load(ctx context.Context, label string, v any) (bool, error)
	Save(ctx context.Context, label string, v any) error
}

// Logger is the subset of logging used by the simulated devices.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// StagePosition is the goniometer state. Lengths in nm, angles in degrees.
type StagePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// MicroscopeSettings is everything the microscope persists.
type MicroscopeSettings struct {
	Stage       StagePosition  `json:"stage"`
	Mode        string         `json:"mode"`
	MagIndex    map[string]int `json:"mag_index"`
	BeamBlanked bool           `json:"beam_blanked"`
}

func defaultMicroscopeSettings() MicroscopeSettings {
	return MicroscopeSettings{
		Mode:     ModeMag1,
		MagIndex: map[string]int{ModeLowMag: 0, ModeMag1: 0, ModeDiff: 0},
	}
}

// MicroscopeOptions configures NewMicroscope.
type MicroscopeOptions struct {
	Label  string
	Store  SettingsStore // optional
	Logger Logger        // optional
}

// Microscope is the simulated instrument.
type Microscope struct {
	label    string
	store    SettingsStore
	logger   Logger
	settings MicroscopeSettings
	table    *device.Table
}

// NewMicroscope builds the microscope, restoring saved settings if a store
// is configured.
func NewMicroscope(ctx context.Context, opts MicroscopeOptions) (*Microscope, error) {
	m := &Microscope{
		label:    opts.Label,
		store:    opts.Store,
		logger:   opts.Logger,
		settings: defaultMicroscopeSettings(),
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}

	if m.store != nil {
		var saved MicroscopeSettings
		found, err := m.store.Load(ctx, m.label, &saved)
		if err != nil {
			return nil, fmt.Errorf("restoring microscope settings: %w", err)
		}
		if found && saved.valid() {
			m.settings = saved
			m.logger.Info("restored microscope settings", "device", m.label, "mode", saved.Mode)
		}
	}

	m.table = m.buildTable()
	return m, nil
}

func (s MicroscopeSettings) valid() bool {
	ladder, ok := magnificationRanges[s.Mode]
	if !ok || s.MagIndex == nil {
		return false
	}
	for mode, idx := range s.MagIndex {
		if r, ok := magnificationRanges[mode]; !ok || idx < 0 || idx >= len(r) {
			return false
		}
	}
	return len(ladder) > 0
}

// Capabilities implements device.Device.
func (m *Microscope) Capabilities() *device.Table {
	return m.table
}

// Settings returns a copy of the current settings.
func (m *Microscope) Settings() MicroscopeSettings {
	s := m.settings
	s.MagIndex = make(map[string]int, len(m.settings.MagIndex))
	for k, v := range m.settings.MagIndex {
		s.MagIndex[k] = v
	}
	return s
}

// Close persists the final settings.
func (m *Microscope) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(context.Background(), m.label, m.settings)
}

func (m *Microscope) buildTable() *device.Table {
	t := device.NewTable()

	t.Attribute("name", func() any { return "simulated-tem" })
	t.Attribute("model", func() any { return "TEM emulator" })

	t.Handle("get_position", m.getPosition)
	t.Handle("move_to", m.moveTo)
	t.Handle("get_stage_position", m.getStagePosition)
	t.Handle("set_stage_position", m.setStagePosition)
	t.Handle("get_magnification", m.getMagnification)
	t.Handle("set_magnification", m.setMagnification)
	t.Handle("get_magnification_index", m.getMagnificationIndex)
	t.Handle("set_magnification_index", m.setMagnificationIndex)
	t.Handle("get_magnification_ranges", m.getMagnificationRanges)
	t.Handle("get_high_tension", func(context.Context, device.Call) (any, error) {
		return highTensionVolts, nil
	})
	t.Handle("is_beam_blanked", func(context.Context, device.Call) (any, error) {
		return m.settings.BeamBlanked, nil
	})
	t.Handle("set_beam_blank", m.setBeamBlank)
	t.Handle("get_function_mode", func(context.Context, device.Call) (any, error) {
		return m.settings.Mode, nil
	})
	t.Handle("set_function_mode", m.setFunctionMode)

	return t
}

func (m *Microscope) getPosition(context.Context, device.Call) (any, error) {
	return []float64{m.settings.Stage.X, m.settings.Stage.Y}, nil
}

func (m *Microscope) moveTo(ctx context.Context, call device.Call) (any, error) {
	x, err := call.RequireFloat(0, "x")
	if err != nil {
		return nil, err
	}
	y, err := call.RequireFloat(1, "y")
	if err != nil {
		return nil, err
	}
	if err := checkRange("x", x, StageLimitNM); err != nil {
		return nil, err
	}
	if err := checkRange("y", y, StageLimitNM); err != nil {
		return nil, err
	}

	m.settings.Stage.X, m.settings.Stage.Y = x, y
	m.persist(ctx)
	return nil, nil
}

func (m *Microscope) getStagePosition(context.Context, device.Call) (any, error) {
	s := m.settings.Stage
	return map[string]any{"x": s.X, "y": s.Y, "z": s.Z, "a": s.A, "b": s.B}, nil
}

func (m *Microscope) setStagePosition(ctx context.Context, call device.Call) (any, error) {
	next := m.settings.Stage
	axes := []struct {
		name  string
		dst   *float64
		limit float64
	}{
		{"x", &next.X, StageLimitNM},
		{"y", &next.Y, StageLimitNM},
		{"z", &next.Z, StageLimitNM},
		{"a", &next.A, TiltLimitDeg},
		{"b", &next.B, TiltLimitDeg},
	}
	for i, axis := range axes {
		v, err := call.Float(i, axis.name, *axis.dst)
		if err != nil {
			return nil, err
		}
		if err := checkRange(axis.name, v, axis.limit); err != nil {
			return nil, err
		}
		*axis.dst = v
	}

	m.settings.Stage = next
	m.persist(ctx)
	return nil, nil
}

func (m *Microscope) getMagnification(context.Context, device.Call) (any, error) {
	return m.currentMagnification(), nil
}

func (m *Microscope) currentMagnification() int {
	return magnificationRanges[m.settings.Mode][m.settings.MagIndex[m.settings.Mode]]
}

func (m *Microscope) setMagnification(ctx context.Context, call device.Call) (any, error) {
	value, err := call.RequireInt(0, "value")
	if err != nil {
		return nil, err
	}
	idx := slices.Index(magnificationRanges[m.settings.Mode], value)
	if idx < 0 {
		return nil, device.Errorf(device.KindValueError,
			"magnification %d not available in %s mode", value, m.settings.Mode)
	}
	m.settings.MagIndex[m.settings.Mode] = idx
	m.persist(ctx)
	return nil, nil
}

func (m *Microscope) getMagnificationIndex(context.Context, device.Call) (any, error) {
	return m.settings.MagIndex[m.settings.Mode], nil
}

func (m *Microscope) setMagnificationIndex(ctx context.Context, call device.Call) (any, error) {
	idx, err := call.RequireInt(0, "index")
	if err != nil {
		return nil, err
	}
	if n := len(magnificationRanges[m.settings.Mode]); idx < 0 || idx >= n {
		return nil, device.Errorf(device.KindRangeError,
			"magnification index %d outside [0, %d) in %s mode", idx, n, m.settings.Mode)
	}
	m.settings.MagIndex[m.settings.Mode] = idx
	m.persist(ctx)
	return nil, nil
}

func (m *Microscope) getMagnificationRanges(context.Context, device.Call) (any, error) {
	out := make(map[string]any, len(magnificationRanges))
	for mode, ladder := range magnificationRanges {
		out[mode] = slices.Clone(ladder)
	}
	return out, nil
}

func (m *Microscope) setBeamBlank(ctx context.Context, call device.Call) (any, error) {
	on, err := call.Bool(0, "mode", true)
	if err != nil {
		return nil, err
	}
	m.settings.BeamBlanked = on
	m.persist(ctx)
	return nil, nil
}

func (m *Microscope) setFunctionMode(ctx context.Context, call device.Call) (any, error) {
	mode, err := call.String(0, "mode", "")
	if err != nil {
		return nil, err
	}
	if _, ok := magnificationRanges[mode]; !ok {
		return nil, device.Errorf(device.KindValueError,
			"unknown function mode %q (want %s, %s or %s)", mode, ModeLowMag, ModeMag1, ModeDiff)
	}
	m.settings.Mode = mode
	m.persist(ctx)
	return nil, nil
}

// persist saves settings after a change. Failures are logged; the change
// itself has already been applied.
func (m *Microscope) persist(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, m.label, m.settings); err != nil {
		m.logger.Warn("persisting microscope settings", "device", m.label, "error", err)
	}
}

func checkRange(axis string, v, limit float64) error {
	if math.IsNaN(v) || math.Abs(v) > limit {
		return device.NewError(device.KindRangeError,
			fmt.Sprintf("%s=%v outside [-%v, %v]", axis, v, limit, limit))
	}
	return nil
}
