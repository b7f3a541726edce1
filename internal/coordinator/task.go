package coordinator

import "sync"

// Task is returned by prepare_stream and lets the caller cancel a job in
// flight (spec.md §4.3). Cancellation is idempotent; a cancel handler
// attached after cancellation fires immediately (spec.md §8's testable
// property).
type Task struct {
	mu        sync.Mutex
	cancelled bool
	handler   func()
}

// Cancel marks the task cancelled and invokes the cancel handler, if one is
// attached, exactly once. A second call is a no-op.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		h()
	}
}

// SetCancelHandler attaches fn to be invoked when the task is cancelled. If
// the task was already cancelled, fn fires immediately, synchronously, from
// this call.
func (t *Task) SetCancelHandler(fn func()) {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		fn()
		return
	}
	t.handler = fn
	t.mu.Unlock()
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}
