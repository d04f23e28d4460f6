package widget

import (
	"fmt"
	"maps"
	"slices"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Patch is a narrow partial config: only the fields a writer owns. The store
// shallow-merges it into the persisted document.
type Patch map[string]any

// TrafficActive sets a traffic light's lit lamp.
func TrafficActive(c TrafficColor) Patch {
	return Patch{"active": string(c)}
}

// VoiceLevel sets an expectations widget's voice level.
func VoiceLevel(level int) Patch {
	return Patch{"voiceLevel": level}
}

// Sensitivity sets a sound meter's microphone sensitivity.
func Sensitivity(v float64) Patch {
	return Patch{"sensitivity": v}
}

// TimeToolState is the set of fields the clock engine owns on a time tool.
// start is ignored unless running.
func TimeToolState(mode Mode, duration, elapsed float64, running bool, start int64) Patch {
	p := Patch{
		"mode":        string(mode),
		"duration":    duration,
		"elapsedTime": elapsed,
		"isRunning":   running,
		"startTime":   nil,
	}
	if running {
		p["startTime"] = start
	}
	return p
}

// Keys returns the patch's field names in sorted order.
func (p Patch) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// Clone returns a shallow copy of p.
func (p Patch) Clone() Patch {
	return maps.Clone(p)
}

// Merge returns a copy of p with other's fields laid over it.
func (p Patch) Merge(other Patch) Patch {
	out := make(Patch, len(p)+len(other))
	maps.Copy(out, p)
	maps.Copy(out, other)
	return out
}

// String renders the patch as compact JSON with sorted keys.
func (p Patch) String() string {
	raw, err := EncodePatch(p)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(p))
	}
	return string(raw)
}

// EncodePatch encodes p as a JSON object with sorted keys.
func EncodePatch(p Patch) ([]byte, error) {
	return json.Marshal(map[string]any(p), json.Deterministic(true))
}

// DecodePatch decodes a JSON object into a Patch. Numbers decode as float64.
func DecodePatch(raw []byte) (Patch, error) {
	p := make(Patch)
	if err := json.Unmarshal(raw, (*map[string]any)(&p)); err != nil {
		return nil, err
	}
	return p, nil
}

// Apply shallow-merges p into cfg and returns the merged config. Fields the
// config type does not know are ignored. cfg is not modified.
func Apply(cfg Config, p Patch) (Config, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", cfg.Kind(), err)
	}
	doc := make(map[string]jsontext.Value)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", cfg.Kind(), err)
	}
	for k, v := range p {
		field, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %q: %w", k, err)
		}
		doc[k] = field
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return decodeFresh(cfg.Kind(), merged)
}

// Diff returns the subset of p that would change cfg. An empty result means
// applying p is a no-op.
func Diff(cfg Config, p Patch) (Patch, error) {
	current, err := fields(cfg)
	if err != nil {
		return nil, err
	}
	out := make(Patch)
	for k, v := range p {
		want, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %q: %w", k, err)
		}
		have, ok := current[k]
		if !ok || !sameJSON(have, want) {
			out[k] = v
		}
	}
	return out, nil
}

func fields(cfg Config) (map[string]jsontext.Value, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]jsontext.Value)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// sameJSON compares two encoded values after canonicalization, so 4 and 4.0
// compare equal.
func sameJSON(a, b jsontext.Value) bool {
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	ca, err1 := json.Marshal(va, json.Deterministic(true))
	cb, err2 := json.Marshal(vb, json.Deterministic(true))
	return err1 == nil && err2 == nil && string(ca) == string(cb)
}

// decodeFresh decodes a complete document into a zero config of kind.
func decodeFresh(kind Kind, raw []byte) (Config, error) {
	switch kind {
	case KindTimeTool:
		var cfg TimeToolConfig
		err := json.Unmarshal(raw, &cfg)
		return cfg, err
	case KindTraffic:
		var cfg TrafficConfig
		err := json.Unmarshal(raw, &cfg)
		return cfg, err
	case KindExpectations:
		var cfg ExpectationsConfig
		err := json.Unmarshal(raw, &cfg)
		return cfg, err
	case KindSound:
		var cfg SoundConfig
		err := json.Unmarshal(raw, &cfg)
		return cfg, err
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
