package board

import (
	"errors"
	"fmt"

	"github.com/BYTE-6D65/liveboard/pkg/automation"
	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/schedule"
	"github.com/BYTE-6D65/liveboard/pkg/store"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// truerWindow is how many remote writes the skew fit looks back over.
const truerWindow = 16

// drain handles every widget event queued since the last frame, then
// re-arms itself for the next one. It stops when the subscription closes.
func (b *Board) drain(clock.MonoTime) {
	for {
		select {
		case evt, ok := <-b.sub.Events():
			if !ok {
				return
			}
			b.handle(evt)
		default:
			if b.lost() {
				b.resync()
			}
			b.mu.Lock()
			if !b.closed {
				b.pump = b.loop.ScheduleFrame(b.drain)
			}
			b.mu.Unlock()
			return
		}
	}
}

func (b *Board) handle(evt event.Event) {
	switch evt.Type {
	case event.EventTypeWidgetAdded:
		w, err := b.store.Widget(b.ctx, evt.WidgetID)
		if err != nil {
			// Removed again before we got to it.
			return
		}
		b.mountWidget(w)
		if w.Kind == widget.KindExpectations {
			b.refreshPeers()
		}

	case event.EventTypeWidgetRemoved:
		b.unmountWidget(evt.WidgetID)

	case event.EventTypeWidgetWritten:
		var p event.WidgetWritten
		if err := evt.DecodePayload(&p, event.JSONCodec{}); err != nil {
			b.report.Fail(event.CodeWriteFail, err, "event", evt.ID)
			return
		}
		b.written(p)
	}
}

// written brings the mounted controllers in line with a persisted write.
// Patch values lose their types on the bus, so the widget is re-read.
func (b *Board) written(p event.WidgetWritten) {
	remote := p.Origin != b.origin
	if remote {
		b.truer(p.Origin).Observe(clock.MonoTime(p.WrittenAt), b.clock.Now())
	}

	w, err := b.store.Widget(b.ctx, p.WidgetID)
	if err != nil {
		if !errors.Is(err, store.ErrWidgetNotFound) {
			b.report.Fail(event.CodeWriteFail, err, "widget_id", p.WidgetID)
		}
		return
	}
	b.adopt(w, p.Origin, remote)
}

// adopt applies a persisted widget document to its mounted controllers.
// Timers only take remote state; an empty origin skips skew alignment.
func (b *Board) adopt(w widget.Widget, origin string, remote bool) {
	switch cfg := w.Config.(type) {
	case widget.TimeToolConfig:
		tt, ok := b.timers.Get(w.ID)
		if !ok {
			return
		}
		tt.link.SetEffects(automation.CompletionEffects(cfg))
		// Our own writes come from the timer itself.
		if remote {
			if origin != "" {
				cfg = b.align(w.ID, origin, cfg)
			}
			tt.timer.Sync(cfg)
		}

	case widget.SoundConfig:
		sm, ok := b.sounds.Get(w.ID)
		if !ok {
			return
		}
		sm.meter.SetSensitivity(cfg.Sensitivity)
		sm.threshold.Configure(automation.SoundTrafficThreshold(cfg))
		sm.peer.SetEnabled(cfg.SyncExpectations)
		sm.peer.Refresh()

	case widget.ExpectationsConfig:
		b.refreshPeers()
	}
}

// lost reports whether the bus dropped deliveries since the last check.
// Buses that do not count drops never lose events as far as we know.
func (b *Board) lost() bool {
	n := droppedOf(b.bus)
	if n == b.drops {
		return false
	}
	b.drops = n
	return true
}

func droppedOf(bus event.Bus) uint64 {
	if d, ok := bus.(interface{ Dropped() uint64 }); ok {
		return d.Dropped()
	}
	return 0
}

// resync re-reads the whole board after the bus lost events, mounting and
// unmounting what changed meanwhile. Queued writes land first so a re-read
// never rolls our own timers back to an older document.
func (b *Board) resync() {
	b.Flush()
	widgets, err := b.store.Widgets(b.ctx)
	if err != nil {
		b.report.Fail(event.CodeResync, err)
		return
	}

	present := make(map[string]bool, len(widgets))
	for _, w := range widgets {
		present[w.ID] = true
		if !b.kinds.Has(w.ID) {
			b.mountWidget(w)
			continue
		}
		b.adopt(w, "", true)
	}
	for _, id := range b.kinds.Keys() {
		if !present[id] {
			b.unmountWidget(id)
		}
	}
	b.refreshPeers()
	b.report.Report(event.WarningSeverity, event.CodeResync, "bus dropped widget events, board re-read",
		"widgets", len(widgets))
}

func (b *Board) refreshPeers() {
	for _, e := range b.sounds.List() {
		e.Value.peer.Refresh()
	}
}

// align maps a remote start instant onto this board's clock. Offsets within
// SkewTolerance are delivery latency and are left alone.
func (b *Board) align(id, origin string, cfg widget.TimeToolConfig) widget.TimeToolConfig {
	start, ok := cfg.Start()
	if !ok {
		return cfg
	}
	corrected := b.truer(origin).True(start)
	skew := corrected.Sub(start)
	if skew.Abs() <= b.cfg.SkewTolerance {
		return cfg
	}
	b.report.Report(event.WarningSeverity, event.CodeSyncSkew, "remote start corrected for clock skew",
		"widget_id", id, "origin", origin, "skew", skew.String())
	v := int64(corrected)
	cfg.StartTime = &v
	return cfg
}

func (b *Board) truer(origin string) *clock.AffineTruer {
	if tr, ok := b.truers.Get(origin); ok {
		return tr
	}
	tr := clock.NewAffineTruer(truerWindow)
	b.truers.Set(origin, tr)
	return tr
}

// Apply runs one timeline action now.
func (b *Board) Apply(a Action) error {
	if a.Op == OpWrite {
		// Timeline writes are not the timer's own, so they sync back into it.
		ctx := store.AsWriter(b.ctx, b.origin+":timeline", b.clock)
		if err := b.writer.Write(ctx, a.Widget, widget.Patch(a.Patch).Clone()); err != nil {
			return fmt.Errorf("action %s %s: %w", a.Op, a.Widget, err)
		}
		return nil
	}

	t, ok := b.Timer(a.Widget)
	if !ok {
		return fmt.Errorf("action %s: %w: %s", a.Op, store.ErrWidgetNotFound, a.Widget)
	}
	switch a.Op {
	case OpStart:
		t.Start()
	case OpStop:
		t.Stop()
	case OpReset:
		t.Reset()
	case OpSetTime:
		t.SetTime(a.Value)
	case OpSetMode:
		t.SetMode(widget.Mode(a.Mode))
	default:
		return fmt.Errorf("unknown op %q", a.Op)
	}
	return nil
}

// Play schedules the actions relative to now. Failures are reported to the
// ErrorBus when the action runs.
func (b *Board) Play(actions []Action) []schedule.Handle {
	handles := make([]schedule.Handle, 0, len(actions))
	for _, a := range actions {
		handles = append(handles, b.loop.ScheduleDelay(a.At, func() {
			if err := b.Apply(a); err != nil {
				b.report.Fail(event.CodeWriteFail, err, "widget_id", a.Widget, "op", a.Op)
			}
		}))
	}
	return handles
}
