package automation

import (
	"errors"
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/statemachine"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// SensitivityTable maps an expected voice level to microphone sensitivity.
type SensitivityTable map[int]float64

// DefaultSensitivityTable: quieter rooms get a more sensitive microphone.
var DefaultSensitivityTable = SensitivityTable{
	widget.VoiceSilence:      4.0,
	widget.VoiceWhisper:      2.5,
	widget.VoiceConversation: 1.5,
	widget.VoicePresenter:    1.0,
	widget.VoiceOutside:      0.5,
}

// Lookup returns the sensitivity for level.
func (t SensitivityTable) Lookup(level int) (float64, bool) {
	v, ok := t[level]
	return v, ok
}

// PeerSync keeps a sound meter's sensitivity in step with the board's
// expectations voice level. It writes the sound widget's own config, once
// per change of the source level, and only when the mapped value differs.
type PeerSync struct {
	sound string
	w     writer
	opts  options

	mu      sync.Mutex
	enabled bool
	last    int
	seen    bool
	machine *statemachine.Machine[State, trigger]
}

// NewPeerSync creates a sync for the sound widget id.
func NewPeerSync(sound string, enabled bool, ws *store.Workspace, out store.Writer, opts ...Option) *PeerSync {
	o := buildOptions(opts)
	return &PeerSync{
		sound:   sound,
		w:       newWriter(LinkPeerSync, sound, ws, out, o),
		opts:    o,
		enabled: enabled,
		machine: newMachine(),
	}
}

// SetEnabled turns tracking on or off. Turning it on re-evaluates the
// current source value on the next Refresh or Observe.
func (p *PeerSync) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled == enabled {
		return
	}
	p.enabled = enabled
	p.seen = false
	if !enabled {
		p.w.fire(p.opts.ctx, p.machine, disarm)
	}
}

// Enabled reports whether tracking is on.
func (p *PeerSync) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// State returns the link's lifecycle state.
func (p *PeerSync) State() State {
	return p.machine.Current()
}

// Refresh reads the source voice level from the board and observes it. A
// missing or unset expectations widget leaves the sync inert.
func (p *PeerSync) Refresh() int {
	if !p.Enabled() {
		return 0
	}
	sources := p.w.resolve(p.opts.ctx, widget.KindExpectations)
	if len(sources) == 0 {
		return 0
	}
	cfg, ok := widget.As[widget.ExpectationsConfig](sources[0])
	if !ok || cfg.VoiceLevel == nil {
		return 0
	}
	return p.Observe(*cfg.VoiceLevel)
}

// Observe feeds the source voice level and returns the number of writes
// issued (0 or 1).
func (p *PeerSync) Observe(level int) int {
	p.mu.Lock()
	if !p.enabled || (p.seen && p.last == level) {
		p.mu.Unlock()
		return 0
	}
	p.last, p.seen = level, true
	p.mu.Unlock()

	value, ok := p.opts.table.Lookup(level)
	if !ok {
		return 0
	}

	ctx := p.opts.ctx
	p.w.fire(ctx, p.machine, edge)
	p.w.fire(ctx, p.machine, elapse)

	self, err := p.w.ws.Reader().Widget(ctx, p.sound)
	if err != nil {
		if !errors.Is(err, store.ErrWidgetNotFound) {
			p.w.report.Fail(event.CodeWriteFail, err, "widget_id", p.sound)
		}
		return 0
	}
	return p.w.write(ctx, []widget.Widget{self}, widget.Sensitivity(value))
}

// Close disarms the sync.
func (p *PeerSync) Close() {
	p.SetEnabled(false)
}
