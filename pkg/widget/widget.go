// Package widget defines the board's widget kinds and their configuration
// documents. Each kind has its own config struct; Config is the tagged union
// over them so every automation's target-field access is checked at compile
// time.
package widget

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

var (
	// ErrUnknownKind is returned when decoding a document of an unknown kind.
	ErrUnknownKind = errors.New("widget: unknown kind")

	// ErrKindMismatch is returned when a config does not match its widget kind.
	ErrKindMismatch = errors.New("widget: config kind mismatch")
)

// Kind identifies a widget type on the board.
type Kind string

const (
	KindTimeTool     Kind = "time-tool"
	KindTraffic      Kind = "traffic"
	KindExpectations Kind = "expectations"
	KindSound        Kind = "sound"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindTimeTool, KindTraffic, KindExpectations, KindSound}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Config is one of TimeToolConfig, TrafficConfig, ExpectationsConfig or
// SoundConfig.
type Config interface {
	Kind() Kind
}

// Widget is one widget instance on the board.
type Widget struct {
	ID     string
	Kind   Kind
	Config Config
}

// New builds a widget, checking that cfg matches kind.
func New(id string, cfg Config) Widget {
	return Widget{ID: id, Kind: cfg.Kind(), Config: cfg}
}

// As returns the widget's config as T.
func As[T Config](w Widget) (T, bool) {
	cfg, ok := w.Config.(T)
	return cfg, ok
}

// Default returns the configuration a freshly created widget of kind gets.
func Default(kind Kind) (Config, error) {
	switch kind {
	case KindTimeTool:
		return TimeToolConfig{
			Mode:          ModeTimer,
			Duration:      600,
			ElapsedTime:   600,
			SelectedSound: SoundGong,
		}, nil
	case KindTraffic:
		return TrafficConfig{}, nil
	case KindExpectations:
		return ExpectationsConfig{}, nil
	case KindSound:
		return SoundConfig{
			Sensitivity:           1,
			Visual:                "thermometer",
			TrafficLightThreshold: 4,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// document is the persisted shape of a widget.
type document struct {
	ID     string         `json:"id"`
	Kind   Kind           `json:"kind"`
	Config jsontext.Value `json:"config"`
}

// MarshalJSON encodes the widget as {id, kind, config}.
func (w Widget) MarshalJSON() ([]byte, error) {
	if w.Config == nil {
		return nil, fmt.Errorf("widget %s: nil config", w.ID)
	}
	if w.Config.Kind() != w.Kind {
		return nil, fmt.Errorf("%w: widget %s is %s, config is %s", ErrKindMismatch, w.ID, w.Kind, w.Config.Kind())
	}
	raw, err := json.Marshal(w.Config)
	if err != nil {
		return nil, err
	}
	return json.Marshal(document{ID: w.ID, Kind: w.Kind, Config: raw})
}

// UnmarshalJSON decodes {id, kind, config} into the kind's config type.
func (w *Widget) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	cfg, err := DecodeConfig(doc.Kind, doc.Config)
	if err != nil {
		return fmt.Errorf("widget %s: %w", doc.ID, err)
	}
	*w = Widget{ID: doc.ID, Kind: doc.Kind, Config: cfg}
	return nil
}

// DecodeConfig decodes a raw config document for kind. Missing fields keep
// the kind's defaults; an empty document yields the defaults.
func DecodeConfig(kind Kind, raw []byte) (Config, error) {
	base, err := Default(kind)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return base, nil
	}

	switch cfg := base.(type) {
	case TimeToolConfig:
		err = json.Unmarshal(raw, &cfg)
		return cfg, err
	case TrafficConfig:
		err = json.Unmarshal(raw, &cfg)
		return cfg, err
	case ExpectationsConfig:
		err = json.Unmarshal(raw, &cfg)
		return cfg, err
	case SoundConfig:
		err = json.Unmarshal(raw, &cfg)
		return cfg, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// EncodeConfig encodes a config document.
func EncodeConfig(cfg Config) ([]byte, error) {
	return json.Marshal(cfg)
}
