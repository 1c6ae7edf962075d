package app

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls into one: only the function passed to
// the most recent Call runs, after the quiet period elapses with no further
// calls. Used by UI-facing callers to throttle progress saves during rapid
// state churn; the stores themselves never debounce.
type Debouncer struct {
	quiet time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	stopped bool
}

func NewDebouncer(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet}
}

// Call schedules fn to run after the quiet period, replacing any previously
// scheduled function. Calls after Stop are ignored.
func (d *Debouncer) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	stopped := d.stopped
	d.mu.Unlock()
	if fn != nil && !stopped {
		fn()
	}
}

// Flush runs the scheduled function immediately, if any, on the caller's
// goroutine, and cancels the pending timer.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fn := d.pending
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Stop cancels any pending call and prevents future ones. Safe to call more
// than once; required on teardown so no callback fires into a dead session.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
