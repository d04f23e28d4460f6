// Package store is the boundary to the board's document store: a live list of
// widgets, each with a typed config document, and narrow shallow-merge writes
// into those documents.
package store

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/BYTE-6D65/liveboard/pkg/clock"
	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

var (
	// ErrWidgetNotFound is returned for an unknown widget ID.
	ErrWidgetNotFound = errors.New("store: widget not found")

	// ErrDuplicateWidget is returned by Add for an ID already on the board.
	ErrDuplicateWidget = errors.New("store: duplicate widget")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")

	// ErrAmbiguousTarget is returned by Workspace lookups under TargetUnique
	// when more than one widget matches.
	ErrAmbiguousTarget = errors.New("store: ambiguous target")
)

// Reader is the live view of the board.
type Reader interface {
	// Widgets returns every widget in board order.
	Widgets(ctx context.Context) ([]widget.Widget, error)

	// Widget returns one widget by ID.
	Widget(ctx context.Context, id string) (widget.Widget, error)
}

// Writer shallow-merges a patch into a widget's persisted config.
type Writer interface {
	Write(ctx context.Context, id string, patch widget.Patch) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, id string, patch widget.Patch) error

// Write implements Writer.
func (f WriterFunc) Write(ctx context.Context, id string, patch widget.Patch) error {
	return f(ctx, id, patch)
}

// Store is a full document store.
type Store interface {
	Reader
	Writer

	// Add places a new widget at the end of the board.
	Add(ctx context.Context, w widget.Widget) error

	// Remove deletes a widget.
	Remove(ctx context.Context, id string) error

	Close() error
}

// Option configures a store.
type Option func(*notifier)

// WithBus publishes widget.written/added/removed events to bus.
func WithBus(bus event.Bus) Option {
	return func(n *notifier) { n.bus = bus }
}

// WithJournal records every write in j.
func WithJournal(j *Journal) Option {
	return func(n *notifier) { n.journal = j }
}

// WithOrigin names the writer in events and journal records. Defaults to
// "local".
func WithOrigin(origin string) Option {
	return func(n *notifier) { n.origin = origin }
}

// WithClock stamps writes with clk instead of the system clock.
func WithClock(clk clock.Clock) Option {
	return func(n *notifier) { n.clock = clk }
}

type writerKey struct{}

type writerMeta struct {
	origin string
	clock  clock.Clock
}

// AsWriter attributes writes made under ctx to origin, stamped with clk.
// This is how several viewers share one store: each writes under its own
// origin and clock. A nil clk keeps the store's clock.
func AsWriter(ctx context.Context, origin string, clk clock.Clock) context.Context {
	return context.WithValue(ctx, writerKey{}, writerMeta{origin: origin, clock: clk})
}

// notifier is the write-side plumbing shared by the store implementations.
type notifier struct {
	bus     event.Bus
	journal *Journal
	origin  string
	clock   clock.Clock
	seq     atomic.Uint64
}

func newNotifier(opts []Option) *notifier {
	n := &notifier{origin: "local"}
	for _, opt := range opts {
		opt(n)
	}
	if n.clock == nil {
		n.clock = clock.NewSystemClock()
	}
	return n
}

// stamp returns who is writing under ctx, and when.
func (n *notifier) stamp(ctx context.Context) (string, clock.MonoTime) {
	origin, clk := n.origin, n.clock
	if m, ok := ctx.Value(writerKey{}).(writerMeta); ok {
		if m.origin != "" {
			origin = m.origin
		}
		if m.clock != nil {
			clk = m.clock
		}
	}
	return origin, clk.Now()
}

// written records and announces one applied write and returns its record.
func (n *notifier) written(ctx context.Context, w widget.Widget, patch widget.Patch) WriteRecord {
	origin, at := n.stamp(ctx)
	rec := WriteRecord{
		Seq:      n.seq.Add(1),
		At:       at,
		WidgetID: w.ID,
		Kind:     w.Kind,
		Patch:    patch.Clone(),
		Origin:   origin,
	}
	if n.journal != nil {
		n.journal.Append(rec)
	}
	n.publish(ctx, origin, event.EventTypeWidgetWritten, w.ID, event.WidgetWritten{
		WidgetID:  w.ID,
		Kind:      w.Kind,
		Patch:     rec.Patch,
		Origin:    rec.Origin,
		Seq:       rec.Seq,
		WrittenAt: int64(rec.At),
	})
	return rec
}

func (n *notifier) lifecycle(ctx context.Context, eventType string, w widget.Widget) {
	origin, _ := n.stamp(ctx)
	n.publish(ctx, origin, eventType, w.ID, event.WidgetLifecycle{WidgetID: w.ID, Kind: w.Kind})
}

// publish is best-effort: a store write has already happened and is not
// undone by a bus failure.
func (n *notifier) publish(ctx context.Context, source, eventType, widgetID string, payload any) {
	if n.bus == nil {
		return
	}
	evt, err := event.NewWidgetEvent(eventType, source, widgetID, payload)
	if err != nil {
		return
	}
	_ = n.bus.Publish(ctx, *evt)
}
