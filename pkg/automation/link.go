// Package automation turns a state change in one widget into a single,
// debounced write to another widget (or to itself).
//
// Every link follows the same lifecycle:
//
//	Idle --edge--> Armed --elapse--> Fired --edge--> Armed ...
//	                 |  ^
//	                 +--+ edge (superseded: the delay restarts)
//
// and any state returns to Idle on disarm (disable, unmount). A link only
// writes on elapse, and only to targets that do not already hold the value.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/statemachine"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/telemetry"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// Link kinds, used as metric labels and in diagnostics.
const (
	LinkCompletion = "completion"
	LinkThreshold  = "threshold"
	LinkPeerSync   = "peer_sync"
)

// Write outcomes recorded per target.
const (
	resultWritten    = "written"
	resultSuppressed = "suppressed"
	resultFailed     = "failed"
	resultInert      = "inert"
	resultAmbiguous  = "ambiguous"
)

// DefaultDelay is the stabilization window of threshold links.
const DefaultDelay = time.Second

// State is a link's lifecycle state.
type State int

const (
	Idle State = iota
	Armed
	Fired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type trigger int

const (
	edge trigger = iota
	elapse
	disarm
)

func newMachine() *statemachine.Machine[State, trigger] {
	m := statemachine.NewMachine[State, trigger](Idle)
	m.MustAddTransitions(
		statemachine.Transition[State, trigger]{From: Idle, To: Armed, Event: edge},
		statemachine.Transition[State, trigger]{From: Armed, To: Armed, Event: edge},
		statemachine.Transition[State, trigger]{From: Fired, To: Armed, Event: edge},
		statemachine.Transition[State, trigger]{From: Armed, To: Fired, Event: elapse},
		statemachine.Transition[State, trigger]{From: Idle, To: Idle, Event: disarm},
		statemachine.Transition[State, trigger]{From: Armed, To: Idle, Event: disarm},
		statemachine.Transition[State, trigger]{From: Fired, To: Idle, Event: disarm},
	)
	return m
}

// Effect is what a link writes: a narrow patch for every widget of one kind.
type Effect struct {
	Target widget.Kind
	Patch  widget.Patch
}

// VoiceLevelEffect sets the expectations widget's voice level.
func VoiceLevelEffect(level int) Effect {
	return Effect{Target: widget.KindExpectations, Patch: widget.VoiceLevel(level)}
}

// TrafficEffect lights a traffic light lamp.
func TrafficEffect(c widget.TrafficColor) Effect {
	return Effect{Target: widget.KindTraffic, Patch: widget.TrafficActive(c)}
}

// Equal reports whether two effects write the same fields to the same kind.
func (e Effect) Equal(o Effect) bool {
	return e.Target == o.Target && e.Patch.String() == o.Patch.String()
}

func (e Effect) String() string {
	return string(e.Target) + " " + e.Patch.String()
}

// Option configures a link.
type Option func(*options)

type options struct {
	errs    *event.ErrorBus
	metrics *telemetry.Metrics
	delay   time.Duration
	ctx     context.Context
	table   SensitivityTable
}

// WithErrorBus reports link activity to bus.
func WithErrorBus(bus *event.ErrorBus) Option {
	return func(o *options) { o.errs = bus }
}

// WithMetrics records write outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDelay sets the stabilization window of a threshold link.
func WithDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithContext sets the context reads and writes run under.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithTable replaces the peer sync lookup table.
func WithTable(t SensitivityTable) Option {
	return func(o *options) {
		if len(t) > 0 {
			o.table = t
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		delay: DefaultDelay,
		ctx:   context.Background(),
		table: DefaultSensitivityTable,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// writer resolves targets and issues idempotent writes for one link.
type writer struct {
	link    string
	ws      *store.Workspace
	out     store.Writer
	report  event.Reporter
	metrics *telemetry.Metrics
}

func newWriter(link, source string, ws *store.Workspace, out store.Writer, o options) writer {
	return writer{
		link:    link,
		ws:      ws,
		out:     out,
		report:  event.NewReporter(o.errs, "automation:"+link+":"+source),
		metrics: o.metrics,
	}
}

// resolve finds the targets of kind. A missing or ambiguous target leaves
// the link inert.
func (w writer) resolve(ctx context.Context, kind widget.Kind) []widget.Widget {
	targets, err := w.ws.FindByKind(ctx, kind)
	switch {
	case errors.Is(err, store.ErrAmbiguousTarget):
		w.metrics.RecordAutomation(w.link, resultAmbiguous)
		w.report.Report(event.WarningSeverity, event.CodeAmbiguousTarget, err.Error(), "kind", kind)
		return nil
	case err != nil:
		w.metrics.RecordAutomation(w.link, resultFailed)
		w.report.Fail(event.CodeWriteFail, fmt.Errorf("resolve %s: %w", kind, err))
		return nil
	case len(targets) == 0:
		w.metrics.RecordAutomation(w.link, resultInert)
		w.report.Report(event.DebugSeverity, event.CodeTargetMissing, "no target on the board", "kind", kind)
		return nil
	}
	return targets
}

// write sends patch to every target that does not already hold it and
// returns how many writes were issued.
func (w writer) write(ctx context.Context, targets []widget.Widget, patch widget.Patch) int {
	issued := 0
	for _, t := range targets {
		diff, err := widget.Diff(t.Config, patch)
		if err != nil {
			w.metrics.RecordAutomation(w.link, resultFailed)
			w.report.Fail(event.CodeWriteFail, err, "widget_id", t.ID)
			continue
		}
		if len(diff) == 0 {
			w.metrics.RecordAutomation(w.link, resultSuppressed)
			w.report.Report(event.DebugSeverity, event.CodeWriteSuppressed, "target already holds the value",
				"widget_id", t.ID, "patch", patch.String())
			continue
		}
		if err := w.out.Write(ctx, t.ID, patch); err != nil {
			w.metrics.RecordAutomation(w.link, resultFailed)
			w.report.Fail(event.CodeWriteFail, err, "widget_id", t.ID)
			continue
		}
		issued++
		w.metrics.RecordAutomation(w.link, resultWritten)
		w.report.Report(event.InfoSeverity, event.CodeLinkFired, "link wrote target",
			"widget_id", t.ID, "patch", patch.String())
	}
	return issued
}

// apply resolves eff's targets and writes them.
func (w writer) apply(ctx context.Context, eff Effect) int {
	targets := w.resolve(ctx, eff.Target)
	if len(targets) == 0 {
		return 0
	}
	return w.write(ctx, targets, eff.Patch)
}

// fire moves m through one transition. The table above covers every
// (state, trigger) pair the links use, so an error is a bug worth reporting.
func (w writer) fire(ctx context.Context, m *statemachine.Machine[State, trigger], t trigger) {
	if err := m.Trigger(ctx, t); err != nil {
		w.report.Report(event.Error, event.CodePanic, err.Error(), "link", w.link)
	}
}
