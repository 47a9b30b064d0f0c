// Package scanner implements the parallel filesystem crawler, grounded on
// the teacher's Scanner (internal/adapters/repository/scanner.go) for the
// enumeration/exclusion half and on hub.Hub's single-reader-loop shape
// (internal/hub/hub.go) for ChannelReader's fan-out-safe drain loop.
package scanner

import "sync"

// ChannelReader is a named handle over one bounded channel and a per-item
// handler, per spec.md §4.5. Multiple ChannelReader instances may share one
// channel — this is how ShareScanner fans a directory channel out across N
// worker readers. Go's `range` over a channel already gives the
// race-free "closed between check and read" behavior the spec calls out
// as a benign race to tolerate; no separate check is needed here.
type ChannelReader[T any] struct {
	name    string
	ch      <-chan T
	handle  func(T) error
	onError func(error)

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// NewChannelReader builds a reader named name over ch. handle is invoked
// for every item until ch closes. onError, if non-nil, is called for every
// handler error in addition to it being captured in Err().
func NewChannelReader[T any](name string, ch <-chan T, handle func(T) error, onError func(error)) *ChannelReader[T] {
	return &ChannelReader[T]{
		name:    name,
		ch:      ch,
		handle:  handle,
		onError: onError,
		done:    make(chan struct{}),
	}
}

// Start spawns the background drain loop. Calling Start more than once is
// the caller's bug, not this type's concern — same as starting an
// already-running goroutine twice.
func (r *ChannelReader[T]) Start() {
	go func() {
		defer close(r.done)
		for item := range r.ch {
			if err := r.handle(item); err != nil {
				r.mu.Lock()
				r.err = err
				r.mu.Unlock()
				if r.onError != nil {
					r.onError(err)
				}
			}
		}
	}()
}

// Name returns the reader's name, for logging.
func (r *ChannelReader[T]) Name() string { return r.name }

// Completed resolves when the channel has closed and every in-flight item
// has been handled, regardless of whether any handler call failed.
func (r *ChannelReader[T]) Completed() <-chan struct{} { return r.done }

// Err returns the most recent handler error observed, or nil. Safe to call
// at any time, including before Completed() resolves.
func (r *ChannelReader[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
