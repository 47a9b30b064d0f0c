// Package hub provides ManagedState, a lock-serialized observable cell,
// grounded on the teacher's Hub (internal/hub/hub.go in the retrieval
// pack): the same register/unregister/notify shape, narrowed from
// "broadcast an event to N independent subscribers" down to "hold one
// value and notify (previous, current) to listeners synchronously".
package hub

import "sync"

// Listener receives (previous, current) whenever SetValue changes the cell.
type Listener[T any] func(previous, current T)

// Disposable unsubscribes a listener when disposed.
type Disposable interface {
	Dispose()
}

type disposableFunc func()

func (f disposableFunc) Dispose() { f() }

// ManagedState is a lock-serialized observable cell of T, per spec.md §4.7.
// CloneFn, when non-nil, is used to snapshot the "previous" value so that a
// subsequent in-place mutation of T by a caller cannot retroactively change
// what listeners already observed as "previous". When T is a plain
// value type (no pointers/slices/maps), CloneFn may be left nil — Go's
// normal value-copy semantics already give deep-enough snapshots.
type ManagedState[T any] struct {
	mu      sync.Mutex
	current T
	clone   func(T) T

	subMu     sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener[T]
}

// NewManagedState creates a ManagedState initialized to initial. cloneFn may
// be nil for naturally-copyable T (see type doc).
func NewManagedState[T any](initial T, cloneFn func(T) T) *ManagedState[T] {
	return &ManagedState[T]{
		current:   initial,
		clone:     cloneFn,
		listeners: make(map[uint64]Listener[T]),
	}
}

// CurrentValue reads the cell.
func (m *ManagedState[T]) CurrentValue() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SetValue applies setter(current) under lock and publishes (previous,
// current) to all listeners synchronously, in the same goroutine and
// before SetValue returns — matching the teacher's Hub.Publish, which
// delivers to subscribers before Publish's select statement returns.
func (m *ManagedState[T]) SetValue(setter func(T) T) {
	m.mu.Lock()
	previous := m.current
	if m.clone != nil {
		previous = m.clone(previous)
	}
	next := setter(m.current)
	m.current = next
	m.mu.Unlock()

	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, l := range m.listeners {
		l(previous, next)
	}
}

// OnChange subscribes listener and returns a Disposable that unsubscribes it.
func (m *ManagedState[T]) OnChange(listener Listener[T]) Disposable {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.subMu.Unlock()

	return disposableFunc(func() {
		m.subMu.Lock()
		delete(m.listeners, id)
		m.subMu.Unlock()
	})
}

// ListenerCount returns the number of active subscriptions, for tests.
func (m *ManagedState[T]) ListenerCount() int {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.listeners)
}
