package event

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Publish and Subscribe on a closed bus.
var ErrClosed = errors.New("event: bus is closed")

// Bus defines the interface for an event bus that supports publish/subscribe patterns.
type Bus interface {
	// Publish sends an event to all subscribers
	Publish(ctx context.Context, evt Event) error

	// Subscribe creates a subscription with optional filtering
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)

	// Close shuts down the bus and releases all resources
	Close() error
}

// Filter defines criteria for filtering events in a subscription. Empty
// fields match everything.
type Filter struct {
	// Types specifies event types to match (supports wildcards like "widget.*")
	Types []string

	// Sources specifies event sources to match
	Sources []string

	// WidgetIDs restricts the subscription to events about these widgets
	WidgetIDs []string

	// Metadata specifies metadata key-value pairs that must match
	Metadata map[string]string
}

// Subscription represents an active subscription to an event bus.
type Subscription interface {
	// Events returns a channel that receives matching events
	Events() <-chan Event

	// Close unsubscribes and releases resources
	Close() error
}

// InMemoryBus is an in-memory implementation of the Bus interface.
// It supports fan-out to multiple subscribers with configurable buffering.
type InMemoryBus struct {
	mu            sync.RWMutex
	name          string
	subscriptions map[uint64]*inMemorySubscription
	nextID        uint64
	closed        bool
	bufferSize    int
	dropSlow      bool // drop events for slow subscribers instead of blocking
	errors        *ErrorBus
	dropped       atomic.Uint64
}

// BusOption configures an InMemoryBus.
type BusOption func(*InMemoryBus)

// WithBufferSize sets the buffer size for subscription channels.
func WithBufferSize(size int) BusOption {
	return func(b *InMemoryBus) {
		if size >= 0 {
			b.bufferSize = size
		}
	}
}

// WithDropSlow configures whether to drop events for slow subscribers (true)
// or block until they catch up (false).
func WithDropSlow(drop bool) BusOption {
	return func(b *InMemoryBus) {
		b.dropSlow = drop
	}
}

// WithBusName names the bus in diagnostics.
func WithBusName(name string) BusOption {
	return func(b *InMemoryBus) {
		b.name = name
	}
}

// WithDropReporter publishes a DROP_SLOW diagnostic to eb for every event
// dropped on a full subscriber.
func WithDropReporter(eb *ErrorBus) BusOption {
	return func(b *InMemoryBus) {
		b.errors = eb
	}
}

// NewInMemoryBus creates a new in-memory event bus with the given options.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	bus := &InMemoryBus{
		name:          "board",
		subscriptions: make(map[uint64]*inMemorySubscription),
		bufferSize:    64,
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// Name returns the bus name.
func (b *InMemoryBus) Name() string {
	return b.name
}

// Dropped returns how many deliveries were dropped on full subscribers.
func (b *InMemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Publish sends an event to all matching subscribers, in subscription order.
func (b *InMemoryBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("%w: %s", ErrClosed, b.name)
	}

	for id := uint64(1); id <= b.nextID; id++ {
		sub, ok := b.subscriptions[id]
		if !ok || !sub.matches(evt) {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !sub.send(evt, b.dropSlow) {
			b.dropped.Add(1)
			if b.errors != nil {
				b.errors.Publish(NewErrorEvent(WarningSeverity, CodeDropSlow, "bus:"+b.name, "subscriber buffer full").
					WithContext("event_type", evt.Type).
					WithContext("widget_id", evt.WidgetID))
			}
		}
	}

	return nil
}

// Subscribe creates a new subscription with the given filter.
func (b *InMemoryBus) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, b.name)
	}

	b.nextID++
	sub := &inMemorySubscription{
		id:     b.nextID,
		bus:    b,
		filter: filter,
		ch:     make(chan Event, b.bufferSize),
	}

	b.subscriptions[sub.id] = sub
	return sub, nil
}

// Close shuts down the bus and all subscriptions.
func (b *InMemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	for _, sub := range b.subscriptions {
		sub.closeChannel()
	}
	b.subscriptions = nil
	return nil
}

type inMemorySubscription struct {
	id     uint64
	bus    *InMemoryBus
	filter Filter
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// Events returns the channel that receives events.
func (s *inMemorySubscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes and closes the event channel.
func (s *inMemorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subscriptions, s.id)
	s.closeChannel()
	return nil
}

func (s *inMemorySubscription) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// send delivers evt and reports false if it was dropped.
func (s *inMemorySubscription) send(evt Event, dropSlow bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}

	if !dropSlow {
		s.ch <- evt
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *inMemorySubscription) matches(evt Event) bool {
	if len(s.filter.Types) > 0 && !matchesAny(evt.Type, s.filter.Types) {
		return false
	}
	if len(s.filter.Sources) > 0 && !matchesAny(evt.Source, s.filter.Sources) {
		return false
	}
	if len(s.filter.WidgetIDs) > 0 && !contains(s.filter.WidgetIDs, evt.WidgetID) {
		return false
	}
	for key, value := range s.filter.Metadata {
		if evt.Metadata[key] != value {
			return false
		}
	}
	return true
}

// matchesAny checks if a string matches any pattern in the list.
// Supports wildcard patterns using filepath.Match syntax.
func matchesAny(str string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, str)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
