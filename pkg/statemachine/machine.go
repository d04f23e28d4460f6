package statemachine

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNoTransition is returned when the current state has no transition
	// for the triggered event.
	ErrNoTransition = errors.New("statemachine: no transition")

	// ErrGuardRejected is returned when a transition guard vetoes the event.
	ErrGuardRejected = errors.New("statemachine: guard rejected transition")

	// ErrDuplicateTransition is returned by AddTransition for a (from, event)
	// pair that is already registered.
	ErrDuplicateTransition = errors.New("statemachine: duplicate transition")
)

// GuardFunc decides whether a transition may proceed.
type GuardFunc[S, E comparable] func(ctx context.Context, from S, to S, event E) bool

// ActionFunc runs during a transition, after OnExit and before OnEnter.
type ActionFunc[S, E comparable] func(ctx context.Context, from S, to S, event E) error

// HookFunc runs when a state is entered or exited.
type HookFunc[S comparable] func(ctx context.Context, state S) error

// StateConfig holds the hooks for one state.
type StateConfig[S comparable] struct {
	Name    S
	OnEnter HookFunc[S]
	OnExit  HookFunc[S]
}

// Transition describes an edge of the machine. From may equal To: a
// self-transition still runs its action and hooks.
type Transition[S, E comparable] struct {
	From   S
	To     S
	Event  E
	Guard  GuardFunc[S, E]
	Action ActionFunc[S, E]
}

// TransitionHook observes every completed transition.
type TransitionHook[S, E comparable] func(ctx context.Context, from S, to S, event E)

// Machine is a finite state machine over state type S and event type E.
//
// Trigger is serialized: a second Trigger waits until the first has run its
// hooks and action. Hooks and actions must not call Trigger on the same
// machine, but may call Current.
type Machine[S, E comparable] struct {
	fire sync.Mutex // serializes Trigger

	mu          sync.RWMutex
	current     S
	states      map[S]StateConfig[S]
	transitions map[S]map[E]Transition[S, E]
	hooks       []TransitionHook[S, E]
}

// NewMachine creates a machine in the given initial state.
func NewMachine[S, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		states:      make(map[S]StateConfig[S]),
		transitions: make(map[S]map[E]Transition[S, E]),
	}
}

// AddState registers hooks for a state.
func (m *Machine[S, E]) AddState(config StateConfig[S]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[config.Name] = config
}

// AddTransition registers a transition.
func (m *Machine[S, E]) AddTransition(trans Transition[S, E]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.transitions[trans.From] == nil {
		m.transitions[trans.From] = make(map[E]Transition[S, E])
	}
	if _, exists := m.transitions[trans.From][trans.Event]; exists {
		return fmt.Errorf("%w: %v on %v", ErrDuplicateTransition, trans.From, trans.Event)
	}
	m.transitions[trans.From][trans.Event] = trans
	return nil
}

// MustAddTransitions registers a fixed table of transitions and panics on a
// duplicate. Intended for package-level machine definitions.
func (m *Machine[S, E]) MustAddTransitions(table ...Transition[S, E]) {
	for _, trans := range table {
		if err := m.AddTransition(trans); err != nil {
			panic(err)
		}
	}
}

// Trigger fires event from the current state.
func (m *Machine[S, E]) Trigger(ctx context.Context, event E) error {
	m.fire.Lock()
	defer m.fire.Unlock()

	m.mu.RLock()
	from := m.current
	trans, ok := m.transitions[from][event]
	fromConfig, hasFrom := m.states[from]
	toConfig, hasTo := m.states[trans.To]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w from %v on %v", ErrNoTransition, from, event)
	}
	if trans.Guard != nil && !trans.Guard(ctx, trans.From, trans.To, event) {
		return fmt.Errorf("%w: %v -> %v on %v", ErrGuardRejected, trans.From, trans.To, event)
	}

	if hasFrom && fromConfig.OnExit != nil {
		if err := fromConfig.OnExit(ctx, from); err != nil {
			return fmt.Errorf("OnExit failed for state %v: %w", from, err)
		}
	}

	if trans.Action != nil {
		if err := trans.Action(ctx, trans.From, trans.To, event); err != nil {
			return fmt.Errorf("action failed for transition %v -> %v: %w", trans.From, trans.To, err)
		}
	}

	m.mu.Lock()
	m.current = trans.To
	hooks := m.hooks
	m.mu.Unlock()

	if hasTo && toConfig.OnEnter != nil {
		if err := toConfig.OnEnter(ctx, trans.To); err != nil {
			// The state has already changed.
			return fmt.Errorf("OnEnter failed for state %v: %w", trans.To, err)
		}
	}

	for _, hook := range hooks {
		hook(ctx, trans.From, trans.To, event)
	}
	return nil
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Can reports whether event has a transition from the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.transitions[m.current][event]
	return ok
}

// Reset forces the machine into state without running any hooks.
func (m *Machine[S, E]) Reset(state S) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = state
}

// OnTransition registers a hook called after every transition.
func (m *Machine[S, E]) OnTransition(hook TransitionHook[S, E]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// AvailableEvents returns the events that have a transition from the
// current state, in no particular order.
func (m *Machine[S, E]) AvailableEvents() []E {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]E, 0, len(m.transitions[m.current]))
	for event := range m.transitions[m.current] {
		events = append(events, event)
	}
	return events
}
