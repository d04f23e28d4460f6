package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/BYTE-6D65/liveboard/pkg/event"
	"github.com/BYTE-6D65/liveboard/pkg/widget"
)

// MemoryStore is an in-process Store. Writes apply synchronously, so a read
// right after a write sees it.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	docs   map[string]widget.Widget
	closed bool

	notify *notifier
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty board.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]widget.Widget),
		notify: newNotifier(opts),
	}
}

// Widgets implements Reader.
func (s *MemoryStore) Widgets(ctx context.Context) ([]widget.Widget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make([]widget.Widget, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out, nil
}

// Widget implements Reader.
func (s *MemoryStore) Widget(ctx context.Context, id string) (widget.Widget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return widget.Widget{}, ErrClosed
	}
	w, ok := s.docs[id]
	if !ok {
		return widget.Widget{}, fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	return w, nil
}

// Write implements Writer.
func (s *MemoryStore) Write(ctx context.Context, id string, patch widget.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	w, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	merged, err := widget.Apply(w.Config, patch)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write %s: %w", id, err)
	}
	w.Config = merged
	s.docs[id] = w
	s.mu.Unlock()

	s.notify.written(ctx, w, patch)
	return nil
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, w widget.Widget) error {
	if w.Config == nil || w.Config.Kind() != w.Kind {
		return fmt.Errorf("add %s: %w", w.ID, widget.ErrKindMismatch)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.docs[w.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateWidget, w.ID)
	}
	s.docs[w.ID] = w
	s.order = append(s.order, w.ID)
	s.mu.Unlock()

	s.notify.lifecycle(ctx, event.EventTypeWidgetAdded, w)
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	w, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
	}
	delete(s.docs, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.mu.Unlock()

	s.notify.lifecycle(ctx, event.EventTypeWidgetRemoved, w)
	return nil
}

// Close implements Store. Idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
