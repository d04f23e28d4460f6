package timer

import (
	"context"
	"errors"
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/telemetry"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// Completion describes a countdown reaching zero.
type Completion struct {
	WidgetID string
	At       clock.MonoTime
	Sound    string
}

// CompletionFunc observes completions. It runs on the tick that reached
// zero, after the stop at zero has been persisted.
type CompletionFunc func(Completion)

// Timer drives one time tool widget.
//
// Operations are meant to be called from the scheduler's goroutine, like the
// tick itself; the mutex only protects readers on other goroutines (a TUI
// view, metrics).
type Timer struct {
	id      string
	clk     clock.Clock
	sched   schedule.Scheduler
	writer  store.Writer
	alert   AlertPlayer
	bus     event.Bus
	report  event.Reporter
	metrics *telemetry.Metrics
	ctx     context.Context

	mu        sync.Mutex
	state     State
	sound     string
	handle    schedule.Handle
	mounted   bool
	completed bool // completion already fired for the current countdown
	unlocked  bool
	observers []CompletionFunc
}

// Option configures a Timer.
type Option func(*Timer)

// WithAlertPlayer sets the host alert player (default SilentPlayer).
func WithAlertPlayer(p AlertPlayer) Option {
	return func(t *Timer) {
		if p != nil {
			t.alert = p
		}
	}
}

// WithErrorBus reports diagnostics to bus.
func WithErrorBus(bus *event.ErrorBus) Option {
	return func(t *Timer) { t.report = event.NewReporter(bus, "timer:"+t.id) }
}

// WithMetrics records tick and completion metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(t *Timer) { t.metrics = m }
}

// WithBus publishes timer.completed events to bus.
func WithBus(bus event.Bus) Option {
	return func(t *Timer) { t.bus = bus }
}

// WithContext sets the context store writes run under.
func WithContext(ctx context.Context) Option {
	return func(t *Timer) { t.ctx = ctx }
}

// New creates an unmounted timer for widget id starting from cfg.
func New(id string, cfg widget.TimeToolConfig, clk clock.Clock, sched schedule.Scheduler, w store.Writer, opts ...Option) *Timer {
	t := &Timer{
		id:     id,
		clk:    clk,
		sched:  sched,
		writer: w,
		alert:  SilentPlayer{},
		ctx:    context.Background(),
		state:  StateFromConfig(cfg),
		sound:  cfg.SelectedSound,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.completed = t.state.Mode == widget.ModeTimer && !t.state.Running && t.state.BaseElapsed <= 0
	return t
}

// ID returns the widget ID.
func (t *Timer) ID() string { return t.id }

// OnComplete registers a completion observer.
func (t *Timer) OnComplete(fn CompletionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Mount resumes ticking if the state is running. Mounting twice is a no-op.
func (t *Timer) Mount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mounted {
		return
	}
	t.mounted = true
	t.ensureTickLocked()
}

// Unmount cancels the pending tick. The persisted state is left as is, so
// a running timer keeps running for other viewers.
func (t *Timer) Unmount() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mounted = false
	t.cancelTickLocked()
}

// Start starts or resumes the clock. On a running clock it only moves the
// start instant to now, folding the time run so far into BaseElapsed.
// Starting a countdown that is already at zero does nothing: it stays
// stopped and its completion is not replayed, so a stray tap on a finished
// timer does not ring the alert or rewrite linked widgets. Reset or SetTime
// makes it startable again.
func (t *Timer) Start() {
	now := t.clk.Now()

	t.mu.Lock()
	s := t.state
	if s.Running {
		s.BaseElapsed = s.Value(now)
	} else if s.Mode == widget.ModeTimer && s.BaseElapsed <= 0 {
		t.mu.Unlock()
		return
	} else {
		t.completed = false
	}
	s.Running = true
	s.StartInstant = now
	t.state = s
	t.ensureTickLocked()
	unlock := !t.unlocked && t.sound != ""
	t.unlocked = t.unlocked || unlock
	t.mu.Unlock()

	if unlock {
		if err := t.alert.Unlock(); err != nil {
			t.report.Report(event.DebugSeverity, event.CodeAlertFail, "audio unlock failed", "error", err)
		}
	}
	t.metrics.RecordTimerOperation("start")
	t.report.Report(event.DebugSeverity, event.CodeTimerStart, "timer started", "value", s.BaseElapsed)
	t.persist(s)
}

// Stop collapses the running delta into BaseElapsed. An override replaces
// the live value. Stopping a stopped timer re-persists it unchanged.
func (t *Timer) Stop(override ...float64) {
	now := t.clk.Now()

	t.mu.Lock()
	value := t.state.Value(now)
	if len(override) > 0 {
		value = override[0]
	}
	s := t.state.Stopped(value)
	t.state = s
	t.cancelTickLocked()
	t.mu.Unlock()

	t.metrics.RecordTimerOperation("stop")
	t.report.Report(event.DebugSeverity, event.CodeTimerStop, "timer stopped", "value", s.BaseElapsed)
	t.persist(s)
}

// Reset returns to the rest value: the full duration for a countdown, zero
// for a stopwatch. BaseDuration is kept.
func (t *Timer) Reset() {
	t.mu.Lock()
	s := t.state.Stopped(t.state.RestValue())
	t.state = s
	t.completed = s.Mode == widget.ModeTimer && s.BaseElapsed <= 0
	t.cancelTickLocked()
	t.mu.Unlock()

	t.metrics.RecordTimerOperation("reset")
	t.persist(s)
}

// SetTime overwrites both the duration and the current value, and stops the
// clock. Negative input is treated as zero.
func (t *Timer) SetTime(seconds float64) {
	seconds = max(0, seconds)

	t.mu.Lock()
	s := t.state
	s.BaseDuration = seconds
	s = s.Stopped(seconds)
	t.state = s
	t.completed = s.Mode == widget.ModeTimer && seconds <= 0
	t.cancelTickLocked()
	t.mu.Unlock()

	t.metrics.RecordTimerOperation("set_time")
	t.persist(s)
}

// SetMode switches between countdown and stopwatch. The clock stops and
// resets to the new mode's rest value.
func (t *Timer) SetMode(mode widget.Mode) {
	t.mu.Lock()
	s := t.state
	s.Mode = mode
	s = s.Stopped(s.RestValue())
	t.state = s
	t.completed = mode == widget.ModeTimer && s.BaseElapsed <= 0
	t.cancelTickLocked()
	t.mu.Unlock()

	t.metrics.RecordTimerOperation("set_mode")
	t.persist(s)
}

// Sync adopts state written by another viewer. Nothing is persisted. A
// remote countdown that is already at zero does not fire completion again
// here if it already fired.
func (t *Timer) Sync(cfg widget.TimeToolConfig) {
	s := StateFromConfig(cfg)
	now := t.clk.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	t.sound = cfg.SelectedSound
	if s.Mode != widget.ModeTimer || s.Value(now) > 0 {
		t.completed = false
	}
	if s.Running {
		t.ensureTickLocked()
	} else {
		t.cancelTickLocked()
	}
	t.metrics.RecordTimerOperation("sync")
}

// Display returns the value a viewer should see now.
func (t *Timer) Display() float64 {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Value(now)
}

// Formatted returns Display as MM:SS (timer) or MM:SS.t (stopwatch).
func (t *Timer) Formatted() string {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	return Format(t.state.Mode, t.state.Value(now))
}

// Snapshot returns the current persisted state.
func (t *Timer) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Ticking reports whether a frame callback is pending.
func (t *Timer) Ticking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != 0
}

func (t *Timer) ensureTickLocked() {
	if t.mounted && t.state.Running && t.handle == 0 {
		t.handle = t.sched.ScheduleFrame(t.tick)
	}
}

func (t *Timer) cancelTickLocked() {
	t.sched.Cancel(t.handle)
	t.handle = 0
}

func (t *Timer) tick(now clock.MonoTime) {
	t.mu.Lock()
	t.handle = 0
	if !t.mounted || !t.state.Running {
		t.mu.Unlock()
		return
	}
	mode := t.state.Mode
	next := t.state.Value(now)

	if mode == widget.ModeTimer && next <= 0 {
		fire := !t.completed
		t.completed = true
		s := t.state.Stopped(0)
		t.state = s
		sound := t.sound
		observers := t.observers
		t.mu.Unlock()

		t.metrics.RecordTick(string(mode))
		if fire {
			t.complete(s, Completion{WidgetID: t.id, At: now, Sound: sound}, observers)
		}
		return
	}

	t.handle = t.sched.ScheduleFrame(t.tick)
	t.mu.Unlock()
	t.metrics.RecordTick(string(mode))
}

// complete runs the completion effects in order: persist the stop at zero,
// alert, then observers.
func (t *Timer) complete(s State, c Completion, observers []CompletionFunc) {
	t.metrics.RecordCompletion()
	t.persist(s)

	if c.Sound != "" {
		if err := t.alert.Play(c.Sound); err != nil {
			t.metrics.RecordAlertFailure()
			t.report.Report(event.DebugSeverity, event.CodeAlertFail, "alert playback failed",
				"sound", c.Sound, "error", err)
		}
	}
	t.report.Report(event.InfoSeverity, event.CodeTimerComplete, "timer complete", "sound", c.Sound)
	t.publish(c)

	for _, fn := range observers {
		fn(c)
	}
}

func (t *Timer) publish(c Completion) {
	if t.bus == nil {
		return
	}
	evt, err := event.NewWidgetEvent(event.EventTypeTimerCompleted, "timer:"+t.id, t.id, event.TimerCompleted{
		WidgetID: c.WidgetID,
		At:       int64(c.At),
		Sound:    c.Sound,
	})
	if err == nil {
		err = t.bus.Publish(t.ctx, *evt)
	}
	if err != nil && !errors.Is(err, event.ErrClosed) {
		t.report.Fail(event.CodeWriteFail, err, "event", event.EventTypeTimerCompleted)
	}
}

// persist writes the clock-owned fields. Failures are reported, never
// returned: the display is derived locally and keeps going.
func (t *Timer) persist(s State) {
	if t.writer == nil {
		return
	}
	if err := t.writer.Write(t.ctx, t.id, s.Patch()); err != nil {
		t.report.Fail(event.CodeWriteFail, err, "widget_id", t.id)
	}
}
