package control

import (
	"time"
)

// TargetFPS is the control loop's frame rate.
const TargetFPS = 60

// Clock paces the loop.
type Clock interface {
	// Tick waits until 1/fps has passed since the previous tick and returns
	// the time since the previous tick.
	Tick(fps int) time.Duration
	// FPS is the measured frame rate.
	FPS() float64
}

// fpsWindow is the number of frames FPS averages over.
const fpsWindow = 10

// RealClock is a wall-clock Clock.
type RealClock struct {
	now    func() time.Time
	sleep  func(time.Duration)
	last   time.Time
	frames []time.Duration
}

// NewRealClock returns a Clock on the system clock.
func NewRealClock() *RealClock {
	return &RealClock{now: time.Now, sleep: time.Sleep}
}

func (c *RealClock) Tick(fps int) time.Duration {
	now := c.now()
	if c.last.IsZero() {
		c.last = now
		return 0
	}
	if fps > 0 {
		frame := time.Second / time.Duration(fps)
		if wait := frame - now.Sub(c.last); wait > 0 {
			c.sleep(wait)
			now = c.now()
		}
	}
	delta := now.Sub(c.last)
	c.last = now

	c.frames = append(c.frames, delta)
	if len(c.frames) > fpsWindow {
		c.frames = c.frames[1:]
	}
	return delta
}

func (c *RealClock) FPS() float64 {
	var total time.Duration
	for _, d := range c.frames {
		total += d
	}
	if total <= 0 {
		return 0
	}
	return float64(len(c.frames)) / total.Seconds()
}
