// Package debounce implements a single-shot resettable delayed callback,
// the Go shape of the idle-reclamation timer each streamed session carries.
package debounce

import (
	"sync"
	"time"
)

// Func is the delayed callback a Debounce invokes with its most recently
// supplied arguments.
type Func func(args ...any)

// Debounce fires fn once, timeout after the last call to UpdateArgs,
// unless it is rescheduled again first. It is grounded 1:1 on the source's
// AsyncDebounce: UpdateArgs cancels any pending fire and reschedules with
// the new arguments, unless the previous invocation is still running or has
// already completed without being re-armed (in which case UpdateArgs
// reports that it did not reschedule). Reschedule re-arms the timer with whatever
// arguments were last supplied, used by the fire callback itself to keep
// checking back at the same interval.
type Debounce struct {
	fn      Func
	timeout time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	args    []any
	haveArg bool
	running bool
	done    bool
}

// New creates a Debounce that calls fn, after timeout has elapsed since the
// last UpdateArgs or Reschedule call.
func New(fn Func, timeout time.Duration) *Debounce {
	return &Debounce{fn: fn, timeout: timeout}
}

// UpdateArgs cancels any pending fire, remembers args as the arguments for
// the next fire, and arms the timer. Returns false without rescheduling if
// the previous fire is running when this call arrives, or has completed
// and was not re-armed by Reschedule — matching the source's "task.done()"
// check, since at that point cancellation is moot.
func (d *Debounce) UpdateArgs(args ...any) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running || d.done {
		return false
	}

	if d.timer != nil {
		d.timer.Stop()
	}

	d.args = args
	d.haveArg = true
	return d.armLocked()
}

// Reschedule re-arms the timer using the arguments from the most recent
// UpdateArgs call, without changing them. Returns false if no arguments
// have ever been supplied.
func (d *Debounce) Reschedule() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armLocked()
}

// Stop cancels any pending fire. Safe to call more than once.
func (d *Debounce) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debounce) armLocked() bool {
	if !d.haveArg {
		return false
	}

	args := d.args
	d.done = false
	var timer *time.Timer
	timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		d.running = true
		d.mu.Unlock()

		d.fn(args...)

		d.mu.Lock()
		d.running = false
		if d.timer == timer {
			d.done = true
		}
		d.mu.Unlock()
	})
	d.timer = timer
	return true
}
