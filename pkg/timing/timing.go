// Package timing paces a loop at a fixed rate without drift.
//
// The timer keeps an absolute target schedule: each wait sleeps until
// the next multiple of the period past the start time, so a slow tick
// delays at most itself. Missed deadlines are counted and the schedule
// re-synchronizes to the next future boundary.
package timing

import (
	"context"
	"fmt"
	"time"
)

// minFrequency rejects rates that would make the period meaninglessly
// long or divide by zero.
const minFrequency = 1e-9

// Timer paces a fixed-rate loop against a monotonic absolute schedule.
// It is not safe for concurrent use; it belongs to the loop goroutine.
type Timer struct {
	period time.Duration
	start  time.Time
	target time.Time

	ticks    uint64
	overruns uint64

	now func() time.Time
}

// NewTimer creates a timer firing freq times per second.
func NewTimer(freq float64) (*Timer, error) {
	if freq < minFrequency {
		return nil, fmt.Errorf("timing: frequency %g is negative or too close to zero", freq)
	}
	return &Timer{
		period: time.Duration(float64(time.Second) / freq),
		now:    time.Now,
	}, nil
}

// Period returns the tick period.
func (t *Timer) Period() time.Duration { return t.period }

// Start records the session start and anchors the schedule. It may be
// called again to restart the timer.
func (t *Timer) Start() {
	t.start = t.now()
	t.target = t.start
	t.ticks = 0
	t.overruns = 0
}

// Elapsed returns the time since Start.
func (t *Timer) Elapsed() time.Duration { return t.now().Sub(t.start) }

// Ticks returns the number of completed waits since Start.
func (t *Timer) Ticks() uint64 { return t.ticks }

// Overruns returns how many tick boundaries were already past when
// waited for.
func (t *Timer) Overruns() uint64 { return t.overruns }

// Wait blocks until the next tick boundary or until ctx is done. When
// the boundary is already past it does not sleep; it counts an overrun
// and advances the schedule to the next future boundary so the delay is
// not carried forward.
func (t *Timer) Wait(ctx context.Context) error {
	t.target = t.target.Add(t.period)
	now := t.now()
	if !t.target.After(now) {
		t.overruns++
		for !t.target.After(now) {
			t.target = t.target.Add(t.period)
		}
		t.ticks++
		return ctx.Err()
	}

	timer := time.NewTimer(t.target.Sub(now))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		t.ticks++
		return nil
	}
}
