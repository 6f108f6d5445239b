// Package hal defines the host primitives the storage drivers are built on:
// byte-wide port I/O and a monotonic clock with a one-step delay.
//
// On bare metal these are backed by in/out instructions and the PIT; in user
// space they are backed by a simulated device and the Go runtime clock.
package hal

import (
	"runtime"
	"time"
)

// Port performs byte-granularity reads and writes of I/O ports.
type Port interface {
	ReadPort(port uint16) uint8
	WritePort(port uint16, value uint8)
}

// Clock is a monotonic time source. Drivers compute explicit deadlines from
// Now and call Wait between polls.
type Clock interface {
	// Now returns the current time. Only differences between values returned
	// by the same clock are meaningful.
	Now() time.Time
	// Wait blocks for one short, fixed-duration I/O step.
	Wait()
}

// SystemClock is a [Clock] backed by the Go runtime.
type SystemClock struct {
	// Step is how long Wait sleeps. If zero, Wait only yields the processor.
	Step time.Duration
}

func (c SystemClock) Now() time.Time {
	return time.Now()
}

func (c SystemClock) Wait() {
	if c.Step <= 0 {
		runtime.Gosched()
		return
	}
	time.Sleep(c.Step)
}

// Expired reports whether `deadline` has been reached according to `clock`.
func Expired(clock Clock, deadline time.Time) bool {
	return !clock.Now().Before(deadline)
}

// Delay blocks until `d` has elapsed on `clock`, one step at a time.
func Delay(clock Clock, d time.Duration) {
	deadline := clock.Now().Add(d)
	for !Expired(clock, deadline) {
		clock.Wait()
	}
}
