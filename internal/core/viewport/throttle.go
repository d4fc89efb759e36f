package viewport

import "time"

// DefaultThrottle is the coalescing window for scroll and resize events.
const DefaultThrottle = 50 * time.Millisecond

// Throttle coalesces high-frequency events. The first event of a window is
// emitted immediately; later events inside the window replace a single
// pending value that Flush emits once the window has elapsed.
//
// A Throttle is driven from the host's event loop and is not safe for
// concurrent use.
type Throttle[T any] struct {
	window     time.Duration
	last       time.Time
	pending    T
	hasPending bool
}

// NewThrottle creates a throttle with the given window.
func NewThrottle[T any](window time.Duration) *Throttle[T] {
	return &Throttle[T]{window: window}
}

// Push offers an event observed at now. It returns the value to process and
// true when the event should be handled immediately.
func (t *Throttle[T]) Push(now time.Time, v T) (T, bool) {
	if t.last.IsZero() || now.Sub(t.last) >= t.window {
		t.last = now
		t.hasPending = false
		var zero T
		t.pending = zero
		return v, true
	}
	t.pending = v
	t.hasPending = true
	var zero T
	return zero, false
}

// Flush emits the pending value once the window has elapsed.
func (t *Throttle[T]) Flush(now time.Time) (T, bool) {
	var zero T
	if !t.hasPending || now.Sub(t.last) < t.window {
		return zero, false
	}
	v := t.pending
	t.pending = zero
	t.hasPending = false
	t.last = now
	return v, true
}

// Pending reports whether a trailing value is waiting.
func (t *Throttle[T]) Pending() bool { return t.hasPending }

// Remaining returns how long until a pending value may be flushed.
func (t *Throttle[T]) Remaining(now time.Time) time.Duration {
	d := t.window - now.Sub(t.last)
	if d < 0 {
		return 0
	}
	return d
}
