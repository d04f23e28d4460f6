package automation

import (
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/statemachine"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/timer"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// CompletionEffects returns what a time tool writes when its countdown
// ends. A tool may set a voice level and a traffic light at once.
func CompletionEffects(cfg widget.TimeToolConfig) []Effect {
	var out []Effect
	if cfg.TimerEndVoiceLevel != nil && widget.ValidVoiceLevel(*cfg.TimerEndVoiceLevel) {
		out = append(out, VoiceLevelEffect(*cfg.TimerEndVoiceLevel))
	}
	if cfg.TimerEndTrafficLight != nil && *cfg.TimerEndTrafficLight != widget.TrafficNone {
		out = append(out, TrafficEffect(*cfg.TimerEndTrafficLight))
	}
	return out
}

// CompletionLink writes its effects when a timer reaches zero. There is no
// stabilization window: a completion is already a single edge.
type CompletionLink struct {
	source string
	w      writer
	opts   options

	mu      sync.Mutex
	effects []Effect
	last    clock.MonoTime
	machine *statemachine.Machine[State, trigger]
}

// NewCompletionLink creates a link for the time tool source.
func NewCompletionLink(source string, effects []Effect, ws *store.Workspace, out store.Writer, opts ...Option) *CompletionLink {
	o := buildOptions(opts)
	return &CompletionLink{
		source:  source,
		w:       newWriter(LinkCompletion, source, ws, out, o),
		opts:    o,
		effects: effects,
		machine: newMachine(),
	}
}

// Attach fires the link on every completion of t.
func (l *CompletionLink) Attach(t *timer.Timer) {
	t.OnComplete(func(c timer.Completion) { l.Fire(c) })
}

// SetEffects replaces the effects, after the source's config changed.
func (l *CompletionLink) SetEffects(effects []Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.effects = effects
}

// Effects returns the configured effects.
func (l *CompletionLink) Effects() []Effect {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Effect(nil), l.effects...)
}

// State returns the link's lifecycle state.
func (l *CompletionLink) State() State {
	return l.machine.Current()
}

// Fire applies the effects for one completion and returns the number of
// writes issued. A completion already handled is ignored.
func (l *CompletionLink) Fire(c timer.Completion) int {
	l.mu.Lock()
	if c.At != 0 && c.At == l.last {
		l.mu.Unlock()
		return 0
	}
	l.last = c.At
	effects := append([]Effect(nil), l.effects...)
	l.mu.Unlock()

	if len(effects) == 0 {
		return 0
	}
	ctx := l.opts.ctx
	l.w.fire(ctx, l.machine, edge)
	l.w.fire(ctx, l.machine, elapse)

	issued := 0
	for _, eff := range effects {
		issued += l.w.apply(ctx, eff)
	}
	return issued
}

// Close disarms the link.
func (l *CompletionLink) Close() {
	l.w.fire(l.opts.ctx, l.machine, disarm)
}
