// Package timer is the clock engine: it turns a time tool's persisted state
// into a live display value and owns the start/stop/reset/setTime
// operations on that state.
package timer

import (
	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// State is the persisted part of a time tool.
//
// While Running, the live value is always BaseElapsed ± (now − StartInstant);
// it is never accumulated frame by frame. StartInstant is meaningless unless
// Running.
type State struct {
	Mode         widget.Mode
	BaseDuration float64 // seconds a countdown starts from
	BaseElapsed  float64 // remaining (timer) or elapsed (stopwatch) seconds at the last stop
	Running      bool
	StartInstant clock.MonoTime
}

// StateFromConfig extracts the clock state from a time tool's config.
func StateFromConfig(cfg widget.TimeToolConfig) State {
	s := State{
		Mode:         cfg.Mode,
		BaseDuration: cfg.Duration,
		BaseElapsed:  cfg.ElapsedTime,
	}
	if s.Mode == "" {
		s.Mode = widget.ModeTimer
	}
	if start, ok := cfg.Start(); ok {
		s.Running = true
		s.StartInstant = start
	}
	return s
}

// Value derives the display value at now.
func (s State) Value(now clock.MonoTime) float64 {
	if !s.Running {
		return s.BaseElapsed
	}
	delta := max(0, now.Seconds(s.StartInstant))
	if s.Mode == widget.ModeStopwatch {
		return s.BaseElapsed + delta
	}
	return clamp(s.BaseElapsed-delta, 0, s.BaseDuration)
}

// RestValue is what Reset returns the display to.
func (s State) RestValue() float64 {
	if s.Mode == widget.ModeStopwatch {
		return 0
	}
	return s.BaseDuration
}

// Stopped collapses the state at value.
func (s State) Stopped(value float64) State {
	if s.Mode != widget.ModeStopwatch {
		value = clamp(value, 0, s.BaseDuration)
	}
	s.BaseElapsed = max(0, value)
	s.Running = false
	s.StartInstant = 0
	return s
}

// Patch returns the fields the clock engine owns, ready for a store write.
func (s State) Patch() widget.Patch {
	return widget.TimeToolState(s.Mode, s.BaseDuration, s.BaseElapsed, s.Running, int64(s.StartInstant))
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
