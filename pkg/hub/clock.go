package hub

import "time"

// SystemClock measures time since its creation using the runtime clock.
type SystemClock struct {
	boot time.Time
}

// NewSystemClock returns a clock whose zero is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{boot: time.Now()}
}

func (c *SystemClock) Now() time.Duration { return time.Since(c.boot) }

func (c *SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// LevelReader is a digital input sampled without error, such as a GPIO pin.
type LevelReader interface {
	Get() bool
}

// MeasurePulse busy-waits on pin for a full pulse at level and returns its
// width. Any pulse already in progress is skipped first. The whole
// measurement, including the wait for the pulse to start, is bounded by
// timeout; ok is false when it expires.
func MeasurePulse(pin LevelReader, clk Clock, level bool, timeout time.Duration) (width time.Duration, ok bool) {
	deadline := clk.Now() + timeout

	for pin.Get() == level {
		if clk.Now() >= deadline {
			return 0, false
		}
	}
	for pin.Get() != level {
		if clk.Now() >= deadline {
			return 0, false
		}
	}
	start := clk.Now()
	for pin.Get() == level {
		if clk.Now() >= deadline {
			return 0, false
		}
	}
	return clk.Now() - start, true
}
