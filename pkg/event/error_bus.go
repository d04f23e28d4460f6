package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrBusClosed is returned when subscribing to a closed error bus.
var ErrBusClosed = errors.New("error bus is closed")

// ErrorBus is a bounded, lossy, non-blocking bus for error events.
//
// Key properties:
//   - Never blocks publishers (the frame loop publishes from inside ticks)
//   - Bounded buffers (32 events per subscriber by default)
//   - Drops events on full buffers
//   - Lock-free read path (atomic.Pointer for subscriptions)
//
// Use this for diagnostics, NOT for widget state.
type ErrorBus struct {
	subs           atomic.Pointer[[]*ErrorSubscription]
	droppedCounter atomic.Uint64
	mu             sync.Mutex // protects subscription modifications only
	closed         bool
	bufferSize     int
	nextID         uint64
}

// ErrorSubscription represents a subscription to the error bus.
type ErrorSubscription struct {
	id     string
	ch     chan ErrorEvent
	closed atomic.Bool
}

// NewErrorBus creates a new error bus with the given buffer size per subscription.
func NewErrorBus(bufferSize int) *ErrorBus {
	if bufferSize <= 0 {
		bufferSize = 32
	}

	bus := &ErrorBus{bufferSize: bufferSize}
	empty := make([]*ErrorSubscription, 0)
	bus.subs.Store(&empty)
	return bus
}

// Publish sends an error event to all subscribers without blocking and
// returns the number of successful deliveries. A nil bus discards the event.
func (b *ErrorBus) Publish(evt ErrorEvent) int {
	if b == nil {
		return 0
	}
	subs := b.subs.Load()
	if subs == nil {
		return 0
	}

	delivered := 0
	for _, sub := range *subs {
		if sub.closed.Load() {
			continue
		}
		if sub.offer(evt) {
			delivered++
		} else {
			b.droppedCounter.Add(1)
		}
	}
	return delivered
}

// offer sends without blocking. A concurrent Close may close ch between the
// closed check and the send; that counts as a drop.
func (s *ErrorSubscription) offer(evt ErrorEvent) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Subscribe creates a new subscription to error events published after
// the call.
func (b *ErrorBus) Subscribe(ctx context.Context) (*ErrorSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	sub := &ErrorSubscription{
		id: fmt.Sprintf("err-%d", b.nextID),
		ch: make(chan ErrorEvent, b.bufferSize),
	}

	// copy-on-write
	old := *b.subs.Load()
	next := make([]*ErrorSubscription, len(old)+1)
	copy(next, old)
	next[len(old)] = sub
	b.subs.Store(&next)

	return sub, nil
}

// Unsubscribe removes a subscription from the error bus. Safe to call after
// the subscription was closed.
func (b *ErrorBus) Unsubscribe(sub *ErrorSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub.Close()
	if b.closed {
		return
	}

	old := *b.subs.Load()
	next := make([]*ErrorSubscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

// Close shuts down the error bus and all subscriptions.
func (b *ErrorBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range *b.subs.Load() {
		sub.Close()
	}
	empty := make([]*ErrorSubscription, 0)
	b.subs.Store(&empty)
	return nil
}

// DroppedCount returns the total number of events dropped due to full buffers.
func (b *ErrorBus) DroppedCount() uint64 {
	return b.droppedCounter.Load()
}

// SubscriberCount returns the current number of active subscribers.
func (b *ErrorBus) SubscriberCount() int {
	return len(*b.subs.Load())
}

// Events returns the channel for receiving error events.
func (s *ErrorSubscription) Events() <-chan ErrorEvent {
	return s.ch
}

// Close closes the subscription and stops receiving events.
func (s *ErrorSubscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// ID returns the subscription identifier.
func (s *ErrorSubscription) ID() string {
	return s.id
}

// ErrorHandler is a function that processes error events.
type ErrorHandler func(ErrorEvent)

// SubscribeWithHandler subscribes handler in a background goroutine that
// stops when ctx is cancelled or the bus is closed.
func (b *ErrorBus) SubscribeWithHandler(ctx context.Context, handler ErrorHandler) (*ErrorSubscription, error) {
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		defer b.Unsubscribe(sub)

		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events():
				if !ok {
					return
				}
				handler(evt)
			}
		}
	}()

	return sub, nil
}

// Reporter publishes diagnostics for one component. The zero Reporter and
// a Reporter over a nil bus discard everything, so components can report
// unconditionally.
type Reporter struct {
	bus       *ErrorBus
	component string
}

// NewReporter binds component to bus.
func NewReporter(bus *ErrorBus, component string) Reporter {
	return Reporter{bus: bus, component: component}
}

// Component returns the reporting component name.
func (r Reporter) Component() string {
	return r.component
}

// Report publishes one diagnostic. kv is a list of alternating context keys
// and values; a trailing key without a value is dropped.
func (r Reporter) Report(severity ErrorSeverity, code, message string, kv ...any) {
	if r.bus == nil {
		return
	}
	evt := NewErrorEvent(severity, code, r.component, message)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		evt = evt.WithContext(key, kv[i+1])
	}
	r.bus.Publish(evt)
}

// Fail reports err under code at Error severity.
func (r Reporter) Fail(code string, err error, kv ...any) {
	r.Report(Error, code, err.Error(), append(kv, "error", err)...)
}
