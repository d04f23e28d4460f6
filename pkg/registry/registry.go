// Package registry keeps the controllers a board has mounted, keyed by
// widget ID, in mount order.
package registry

import "sync"

// Entry is one registered value.
type Entry[T any] struct {
	Key   string
	Value T
}

// Registry is a thread-safe map that remembers insertion order.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
	}
}

// Set stores value under key. Replacing a key keeps its position.
func (r *Registry[T]) Set(key string, value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[key]; !ok {
		r.order = append(r.order, key)
	}
	r.items[key] = value
}

// Get retrieves a value by key.
func (r *Registry[T]) Get(key string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.items[key]
	return value, ok
}

// Delete removes key and returns what was stored there.
func (r *Registry[T]) Delete(key string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.items[key]
	if !ok {
		return value, false
	}
	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return value, true
}

// Has checks if a key exists.
func (r *Registry[T]) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[key]
	return ok
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Keys returns all keys in insertion order.
func (r *Registry[T]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns all entries in insertion order.
func (r *Registry[T]) List() []Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry[T], 0, len(r.order))
	for _, key := range r.order {
		entries = append(entries, Entry[T]{Key: key, Value: r.items[key]})
	}
	return entries
}

// Clear removes all entries and returns them in insertion order.
func (r *Registry[T]) Clear() []Entry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry[T], 0, len(r.order))
	for _, key := range r.order {
		entries = append(entries, Entry[T]{Key: key, Value: r.items[key]})
	}
	r.items = make(map[string]T)
	r.order = nil
	return entries
}
