package board

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-json-experiment/json"
	"gopkg.in/yaml.v3"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/sensor"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// File is a board definition: the widgets to seed, the signal each sound
// meter hears, and a timeline of actions to play against the board.
//
//	widgets:
//	  - id: timer-1
//	    kind: time-tool
//	    config: {duration: 60, elapsedTime: 60, timerEndTrafficLight: red}
//	  - id: traffic-1
//	    kind: traffic
//	    config: {active: green}
//	sounds:
//	  sound-1:
//	    steps: [{after: 0s, value: 5}, {after: 10s, value: 45}]
//	actions:
//	  - {at: 1s, widget: timer-1, op: start}
type File struct {
	Widgets []WidgetSpec         `yaml:"widgets"`
	Sounds  map[string]SoundSpec `yaml:"sounds,omitempty"`
	Actions []Action             `yaml:"actions,omitempty"`
}

// WidgetSpec is one widget in a board file. Config fields use the widget's
// document names; missing fields keep the kind's defaults.
type WidgetSpec struct {
	ID     string         `yaml:"id"`
	Kind   string         `yaml:"kind"`
	Config map[string]any `yaml:"config,omitempty"`
}

// SoundSpec describes a synthetic microphone. Exactly one field is set.
type SoundSpec struct {
	Constant *uint8      `yaml:"constant,omitempty"`
	Steps    []StepSpec  `yaml:"steps,omitempty"`
	Noise    *NoiseSpec  `yaml:"noise,omitempty"`
	Square   *SquareSpec `yaml:"square,omitempty"`
}

// StepSpec holds Value from After on.
type StepSpec struct {
	After time.Duration `yaml:"after"`
	Value uint8         `yaml:"value"`
}

// NoiseSpec is seeded noise around Mean.
type NoiseSpec struct {
	Seed   uint64 `yaml:"seed"`
	Mean   uint8  `yaml:"mean"`
	Spread uint8  `yaml:"spread"`
}

// SquareSpec alternates Low and High every half Period.
type SquareSpec struct {
	Period time.Duration `yaml:"period"`
	Low    uint8         `yaml:"low"`
	High   uint8         `yaml:"high"`
}

// Action operations.
const (
	OpStart   = "start"
	OpStop    = "stop"
	OpReset   = "reset"
	OpSetTime = "set_time"
	OpSetMode = "set_mode"
	OpWrite   = "write"
)

// Action is one step of a board timeline, At after the board starts.
type Action struct {
	At     time.Duration  `yaml:"at"`
	Widget string         `yaml:"widget"`
	Op     string         `yaml:"op"`
	Value  float64        `yaml:"value,omitempty"` // set_time seconds
	Mode   string         `yaml:"mode,omitempty"`  // set_mode
	Patch  map[string]any `yaml:"patch,omitempty"` // write
}

// LoadFile reads a board file.
func LoadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read board file: %w", err)
	}
	return ParseFile(raw)
}

// ParseFile decodes and validates a board file.
func ParseFile(raw []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("parse board yaml: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Save writes f as YAML, creating the directory if needed.
func (f File) Save(path string) error {
	raw, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode board yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create board dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write board file: %w", err)
	}
	return nil
}

// Validate checks widget kinds, IDs and action references.
func (f File) Validate() error {
	ids := make(map[string]widget.Kind, len(f.Widgets))
	for i, spec := range f.Widgets {
		if spec.ID == "" {
			return fmt.Errorf("widget %d: missing id", i)
		}
		kind, err := widget.ParseKind(spec.Kind)
		if err != nil {
			return fmt.Errorf("widget %s: %w", spec.ID, err)
		}
		if _, dup := ids[spec.ID]; dup {
			return fmt.Errorf("widget %s: %w", spec.ID, store.ErrDuplicateWidget)
		}
		ids[spec.ID] = kind
	}

	for id, s := range f.Sounds {
		if kind, ok := ids[id]; !ok || kind != widget.KindSound {
			return fmt.Errorf("sound %s: no sound widget with that id", id)
		}
		if s.count() != 1 {
			return fmt.Errorf("sound %s: set exactly one of constant, steps, noise, square", id)
		}
	}

	for i, a := range f.Actions {
		kind, ok := ids[a.Widget]
		if !ok {
			return fmt.Errorf("action %d: unknown widget %q", i, a.Widget)
		}
		switch a.Op {
		case OpStart, OpStop, OpReset, OpSetTime, OpSetMode:
			if kind != widget.KindTimeTool {
				return fmt.Errorf("action %d: %s needs a time tool, %s is %s", i, a.Op, a.Widget, kind)
			}
			if a.Op == OpSetMode && a.Mode != string(widget.ModeTimer) && a.Mode != string(widget.ModeStopwatch) {
				return fmt.Errorf("action %d: unknown mode %q", i, a.Mode)
			}
		case OpWrite:
			if len(a.Patch) == 0 {
				return fmt.Errorf("action %d: write needs a patch", i)
			}
		default:
			return fmt.Errorf("action %d: unknown op %q", i, a.Op)
		}
	}
	return nil
}

// Build decodes the widget specs into widgets, in file order.
func (f File) Build() ([]widget.Widget, error) {
	out := make([]widget.Widget, 0, len(f.Widgets))
	for _, spec := range f.Widgets {
		w, err := spec.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Build decodes one widget spec.
func (s WidgetSpec) Build() (widget.Widget, error) {
	kind, err := widget.ParseKind(s.Kind)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("widget %s: %w", s.ID, err)
	}
	var raw []byte
	if len(s.Config) > 0 {
		if raw, err = json.Marshal(s.Config); err != nil {
			return widget.Widget{}, fmt.Errorf("widget %s: %w", s.ID, err)
		}
	}
	cfg, err := widget.DecodeConfig(kind, raw)
	if err != nil {
		return widget.Widget{}, fmt.Errorf("widget %s: %w", s.ID, err)
	}
	return widget.Widget{ID: s.ID, Kind: kind, Config: cfg}, nil
}

// Seed adds the file's widgets to s. Widgets already present are kept as
// they are, so a persistent store resumes where it left off.
func (f File) Seed(ctx context.Context, s store.Store) error {
	widgets, err := f.Build()
	if err != nil {
		return err
	}
	for _, w := range widgets {
		if err := s.Add(ctx, w); err != nil && !errors.Is(err, store.ErrDuplicateWidget) {
			return fmt.Errorf("seed %s: %w", w.ID, err)
		}
	}
	return nil
}

// Sources builds the sound sources, with scripts and squares anchored at
// start.
func (f File) Sources(start clock.MonoTime) map[string]sensor.Source {
	out := make(map[string]sensor.Source, len(f.Sounds))
	for id, s := range f.Sounds {
		out[id] = s.Source(start)
	}
	return out
}

// Source builds the sensor source. An empty spec is silence.
func (s SoundSpec) Source(start clock.MonoTime) sensor.Source {
	switch {
	case s.Constant != nil:
		return sensor.Constant(*s.Constant)
	case len(s.Steps) > 0:
		steps := make([]sensor.Step, len(s.Steps))
		for i, st := range s.Steps {
			steps[i] = sensor.Step{After: st.After, Value: st.Value}
		}
		return sensor.NewScript(start, steps...)
	case s.Noise != nil:
		return sensor.NewNoise(s.Noise.Seed, s.Noise.Mean, s.Noise.Spread)
	case s.Square != nil:
		return sensor.Square{Start: start, Period: s.Square.Period, Low: s.Square.Low, High: s.Square.High}
	}
	return sensor.Constant(0)
}

func (s SoundSpec) count() int {
	n := 0
	if s.Constant != nil {
		n++
	}
	if len(s.Steps) > 0 {
		n++
	}
	if s.Noise != nil {
		n++
	}
	if s.Square != nil {
		n++
	}
	return n
}

// Export captures the current widgets of r as a board file.
func Export(ctx context.Context, r store.Reader) (File, error) {
	widgets, err := r.Widgets(ctx)
	if err != nil {
		return File{}, err
	}
	f := File{Widgets: make([]WidgetSpec, 0, len(widgets))}
	for _, w := range widgets {
		raw, err := widget.EncodeConfig(w.Config)
		if err != nil {
			return File{}, fmt.Errorf("export %s: %w", w.ID, err)
		}
		var cfg map[string]any
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return File{}, fmt.Errorf("export %s: %w", w.ID, err)
		}
		f.Widgets = append(f.Widgets, WidgetSpec{ID: w.ID, Kind: string(w.Kind), Config: cfg})
	}
	return f, nil
}
