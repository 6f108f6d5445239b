package testing

import "time"

// FakeClock is a [hal.Clock] whose time only moves when Wait or Advance is
// called. Each Wait advances it by a fixed step, so a polling loop's deadline
// becomes an exact iteration count and timeouts happen without real delay.
type FakeClock struct {
	now   time.Time
	step  time.Duration
	waits int
}

// NewFakeClock returns a clock starting at a fixed instant that advances by
// `step` on every Wait.
func NewFakeClock(step time.Duration) *FakeClock {
	return &FakeClock{
		now:  time.Date(1987, time.April, 2, 0, 0, 0, 0, time.UTC),
		step: step,
	}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

func (c *FakeClock) Wait() {
	c.now = c.now.Add(c.step)
	c.waits++
}

// Advance moves the clock forward by `d` without counting a wait.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// Waits returns how many times Wait has been called.
func (c *FakeClock) Waits() int {
	return c.waits
}
