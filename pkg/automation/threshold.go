package automation

import (
	"sync"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
	"github.com/BYTE-6D65/liveboard/pkg/statemachine"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// ThresholdConfig picks OnAbove when the level is at or over ThresholdLevel
// and OnBelow otherwise.
type ThresholdConfig struct {
	Enabled        bool
	ThresholdLevel int
	OnAbove        Effect
	OnBelow        Effect
}

// Desired returns the effect for level.
func (c ThresholdConfig) Desired(level int) Effect {
	if level >= c.ThresholdLevel {
		return c.OnAbove
	}
	return c.OnBelow
}

func (c ThresholdConfig) equal(o ThresholdConfig) bool {
	return c.Enabled == o.Enabled && c.ThresholdLevel == o.ThresholdLevel &&
		c.OnAbove.Equal(o.OnAbove) && c.OnBelow.Equal(o.OnBelow)
}

// SoundTrafficThreshold is the sound meter's traffic light link: red at or
// above the configured band, green below it.
func SoundTrafficThreshold(cfg widget.SoundConfig) ThresholdConfig {
	return ThresholdConfig{
		Enabled:        cfg.AutoTrafficLight,
		ThresholdLevel: cfg.TrafficLightThreshold,
		OnAbove:        TrafficEffect(widget.TrafficRed),
		OnBelow:        TrafficEffect(widget.TrafficGreen),
	}
}

// ThresholdLink debounces a quantized level into target writes. A change of
// the desired effect (re)starts the stabilization window; when the window
// elapses undisturbed the effect is written to targets that differ.
type ThresholdLink struct {
	source string
	sched  schedule.Scheduler
	w      writer
	opts   options

	mu         sync.Mutex
	cfg        ThresholdConfig
	level      int
	haveLevel  bool
	desired    Effect
	hasDesired bool
	handle     schedule.Handle
	machine    *statemachine.Machine[State, trigger]
}

// NewThresholdLink creates a link fed by Observe.
func NewThresholdLink(source string, cfg ThresholdConfig, sched schedule.Scheduler, ws *store.Workspace, out store.Writer, opts ...Option) *ThresholdLink {
	o := buildOptions(opts)
	return &ThresholdLink{
		source:  source,
		sched:   sched,
		w:       newWriter(LinkThreshold, source, ws, out, o),
		opts:    o,
		cfg:     cfg,
		machine: newMachine(),
	}
}

// Observe feeds the current level. Only a change of the desired effect
// counts as an edge.
func (l *ThresholdLink) Observe(level int) {
	l.mu.Lock()
	l.level, l.haveLevel = level, true
	eff := l.cfg.Desired(level)
	if l.hasDesired && eff.Equal(l.desired) {
		l.mu.Unlock()
		return
	}
	l.desired, l.hasDesired = eff, true
	if !l.cfg.Enabled {
		l.mu.Unlock()
		return
	}
	superseded := l.armLocked()
	delay := l.opts.delay
	l.mu.Unlock()

	if superseded {
		l.w.metrics.RecordRestart(LinkThreshold)
		l.w.report.Report(event.DebugSeverity, event.CodeLinkSuperseded, "stabilization restarted",
			"desired", eff.String())
		return
	}
	l.w.report.Report(event.DebugSeverity, event.CodeLinkArmed, "stabilization started",
		"desired", eff.String(), "delay", delay.String())
}

// armLocked (re)starts the stabilization window, reporting whether a
// pending window was superseded.
func (l *ThresholdLink) armLocked() bool {
	superseded := l.machine.Current() == Armed
	l.sched.Cancel(l.handle)
	l.handle = l.sched.ScheduleDelay(l.opts.delay, l.elapse)
	l.w.fire(l.opts.ctx, l.machine, edge)
	return superseded
}

func (l *ThresholdLink) elapse() {
	l.mu.Lock()
	l.handle = 0
	if l.machine.Current() != Armed || !l.cfg.Enabled {
		l.mu.Unlock()
		return
	}
	eff := l.desired
	l.w.fire(l.opts.ctx, l.machine, elapse)
	l.mu.Unlock()

	l.w.apply(l.opts.ctx, eff)
}

// Configure replaces the link's config. Any change disarms the link;
// if it is enabled afterwards, the last observed level is a fresh edge.
func (l *ThresholdLink) Configure(cfg ThresholdConfig) {
	l.mu.Lock()
	if cfg.equal(l.cfg) {
		l.mu.Unlock()
		return
	}
	l.cfg = cfg
	l.disarmLocked()
	level, ok := l.level, l.haveLevel
	l.mu.Unlock()

	if ok {
		l.Observe(level)
	}
}

// Config returns the current config.
func (l *ThresholdLink) Config() ThresholdConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// Desired returns the effect the current level asks for, whether or not
// the link is enabled.
func (l *ThresholdLink) Desired() (Effect, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.desired, l.hasDesired
}

// State returns the link's lifecycle state.
func (l *ThresholdLink) State() State {
	return l.machine.Current()
}

// Delay returns the stabilization window.
func (l *ThresholdLink) Delay() time.Duration {
	return l.opts.delay
}

// Close cancels a pending window and disarms the link.
func (l *ThresholdLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disarmLocked()
}

func (l *ThresholdLink) disarmLocked() {
	l.sched.Cancel(l.handle)
	l.handle = 0
	l.hasDesired = false
	l.w.fire(l.opts.ctx, l.machine, disarm)
}
