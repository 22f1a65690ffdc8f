package dispatch

import (
	"sync"
	"time"
)

// Debounce coalesces bursts of calls into a single invocation of the most
// recently provided callback, fired once the burst has been quiet for the
// configured duration.
type Debounce struct {
	quiet time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fn    func()
}

func NewDebounce(quiet time.Duration) *Debounce {
	return &Debounce{quiet: quiet}
}

// Call schedules fn to run after the quiet period. A call made before the
// timer fires replaces the pending callback and restarts the period.
func (d *Debounce) Call(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fn = fn
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		fn := d.fn
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

// Stop cancels any pending invocation.
func (d *Debounce) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.fn = nil
}
