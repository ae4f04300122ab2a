// Package debounce delays propagation of a rapidly changing value until it
// has been stable for a quiet period.
package debounce

import (
	"sync"
	"time"
)

// DefaultQuiet is the quiet period used for search input.
const DefaultQuiet = 500 * time.Millisecond

// Debouncer forwards the last value pushed to it once no new value has
// arrived for the quiet period. It is safe for concurrent use.
type Debouncer[T any] struct {
	quiet time.Duration
	emit  func(T)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	value   T
	pending bool
	stopped bool
}

// New creates a Debouncer that calls emit with the settled value. emit
// runs on a timer goroutine with the debouncer locked, so it must not
// call back into the debouncer. A non-positive quiet period falls back
// to DefaultQuiet.
func New[T any](quiet time.Duration, emit func(T)) *Debouncer[T] {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer[T]{quiet: quiet, emit: emit}
}

// Push records a new raw value, cancelling any pending emission and
// scheduling a fresh one. Pushes after Stop are ignored.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = time.AfterFunc(d.quiet, func() {
		d.fire(gen, v)
	})
}

// fire emits v unless a newer push or Stop has superseded generation gen.
// Timer.Stop cannot recall a callback that already started, so the
// generation check is what guarantees no late emission.
func (d *Debouncer[T]) fire(gen uint64, v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || gen != d.gen {
		return
	}
	d.timer = nil
	d.pending = false
	d.value = v
	if d.emit != nil {
		d.emit(v)
	}
}

// Stop cancels any pending emission. No callback fires after Stop
// returns.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Value returns the last emitted value.
func (d *Debouncer[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

// Pending reports whether an emission is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Quiet returns the configured quiet period.
func (d *Debouncer[T]) Quiet() time.Duration {
	return d.quiet
}
