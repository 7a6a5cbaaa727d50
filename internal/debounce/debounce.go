// Package debounce coalesces bursts of calls into one delayed call.
package debounce

import (
	"sync"
	"time"
)

// Scheduler runs at most one pending function after a delay.
type Scheduler interface {
	// Schedule cancels any pending function and arms fn to run after delay.
	Schedule(fn func(), delay time.Duration)
	// CancelPending drops the pending function, if any.
	CancelPending()
}

// Debouncer is a Scheduler over time.AfterFunc.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	// gen identifies the armed call; a fired timer whose gen is stale does nothing.
	gen uint64
}

func New() *Debouncer {
	return &Debouncer{}
}

func (d *Debouncer) Schedule(fn func(), delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

func (d *Debouncer) CancelPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.gen++
}

// Pending reports whether a call is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
