// Package schedule provides a cancellable delayed task used for debouncing
// and timed visual effects.
package schedule

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Task runs fn once after an armed delay elapses. Re-arming before the delay
// elapses replaces the pending run.
type Task struct {
	clock clock.Clock
	fn    func()

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
}

func NewTask(clk clock.Clock, fn func()) *Task {
	if clk == nil {
		clk = clock.New()
	}
	return &Task{clock: clk, fn: fn}
}

// Arm schedules fn to run after d, cancelling any pending run.
func (t *Task) Arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(d, func() { t.fire(gen) })
}

// Cancel drops the pending run, if any. It reports whether one was pending.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer == nil {
		return false
	}
	t.timer.Stop()
	t.timer = nil
	t.gen++
	return true
}

// Pending reports whether a run is armed and has not fired yet.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	// a timer that lost the race with Stop must not run
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.mu.Unlock()

	t.fn()
}
