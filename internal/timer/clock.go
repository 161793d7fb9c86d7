package timer

import "time"

// ElapsedClock accumulates worked seconds. While running, the interval since
// runningSince is added on demand rather than stored, so the clock never
// needs a ticker to stay correct.
type ElapsedClock struct {
	accumulated  int64
	runningSince *time.Time
}

// NewElapsedClock returns a stopped clock holding accumulated seconds.
func NewElapsedClock(accumulated int64) *ElapsedClock {
	if accumulated < 0 {
		accumulated = 0
	}
	return &ElapsedClock{accumulated: accumulated}
}

// CurrentTotal returns accumulated seconds plus the running interval, if any.
// A runningSince in the future contributes nothing.
func (c *ElapsedClock) CurrentTotal(now time.Time) int64 {
	total := c.accumulated + c.runningDelta(now)
	if total < 0 {
		return 0
	}
	return total
}

// StartRunning marks the clock as running from now. It is a no-op when the
// clock is already running.
func (c *ElapsedClock) StartRunning(now time.Time) {
	if c.runningSince != nil {
		return
	}
	t := now
	c.runningSince = &t
}

// StopRunning folds the running interval into the accumulated total. It is a
// no-op when the clock is not running.
func (c *ElapsedClock) StopRunning(now time.Time) {
	if c.runningSince == nil {
		return
	}
	c.accumulated += c.runningDelta(now)
	c.runningSince = nil
}

// ApplyServerTruth discards local accumulation in favour of the server's
// total. A nil serverStart leaves the clock stopped.
func (c *ElapsedClock) ApplyServerTruth(total int64, serverStart *time.Time) {
	c.SetAccumulated(total)
	c.SetRunningSince(serverStart)
}

// SetAccumulated replaces the accumulated total, clamped at zero.
func (c *ElapsedClock) SetAccumulated(total int64) {
	if total < 0 {
		total = 0
	}
	c.accumulated = total
}

// SetRunningSince replaces the running timestamp; nil stops the clock without
// folding the running interval.
func (c *ElapsedClock) SetRunningSince(t *time.Time) {
	if t == nil {
		c.runningSince = nil
		return
	}
	v := *t
	c.runningSince = &v
}

func (c *ElapsedClock) Running() bool {
	return c.runningSince != nil
}

func (c *ElapsedClock) Accumulated() int64 {
	return c.accumulated
}

func (c *ElapsedClock) RunningSince() (time.Time, bool) {
	if c.runningSince == nil {
		return time.Time{}, false
	}
	return *c.runningSince, true
}

// runningDelta is the whole seconds elapsed since runningSince, floored at 0
// to absorb clock skew.
func (c *ElapsedClock) runningDelta(now time.Time) int64 {
	if c.runningSince == nil {
		return 0
	}
	d := int64(now.Sub(*c.runningSince) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}
