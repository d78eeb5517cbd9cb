package generate

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the coalescing window for update notifications.
const DefaultDebounceWindow = 50 * time.Millisecond

// Debouncer groups rapid successive calls into a single trailing-edge
// callback once the window has passed without a new call.
//
// All methods are safe for concurrent use. The callback never runs
// concurrently with itself from the same debouncer.
type Debouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	seq      uint64 // invalidates timers that were stopped too late
	stopped  bool
	fire     sync.Mutex
	callback func()
}

// NewDebouncer creates a debouncer that runs callback delay after the last Call.
func NewDebouncer(delay time.Duration, callback func()) *Debouncer {
	return &Debouncer{delay: delay, callback: callback}
}

// Call schedules the callback, pushing back any pending one.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || d.callback == nil {
		return
	}
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current := d.seq == seq && !d.stopped
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if !current {
			return
		}
		d.fire.Lock()
		defer d.fire.Unlock()
		d.callback()
	})
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop drops any pending callback; later calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.seq++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
