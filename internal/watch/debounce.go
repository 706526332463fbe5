package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into a single callback invocation.
// Each Trigger resets the timer, so the callback runs once the triggers go
// quiet for the full window.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	after time.Duration
	fn    func()
}

// NewDebouncer returns a debouncer that runs fn after the given quiet window.
func NewDebouncer(after time.Duration, fn func()) *Debouncer {
	return &Debouncer{after: after, fn: fn}
}

// Trigger schedules the callback, resetting any pending run.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.after, d.fn)
}

// Cancel drops any pending run.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
