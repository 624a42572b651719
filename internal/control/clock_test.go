package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeTime struct {
	now   time.Time
	slept []time.Duration
}

func (f *fakeTime) clock() *RealClock {
	return &RealClock{
		now: func() time.Time { return f.now },
		sleep: func(d time.Duration) {
			f.slept = append(f.slept, d)
			f.now = f.now.Add(d)
		},
	}
}

func TestRealClockPacesFrames(t *testing.T) {
	ft := &fakeTime{now: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	c := ft.clock()
	frame := time.Second / TargetFPS

	assert.Equal(t, time.Duration(0), c.Tick(TargetFPS), "first tick only starts the clock")
	assert.Equal(t, 0.0, c.FPS())

	ft.now = ft.now.Add(5 * time.Millisecond)
	assert.Equal(t, frame, c.Tick(TargetFPS))
	assert.Equal(t, []time.Duration{frame - 5*time.Millisecond}, ft.slept)

	ft.now = ft.now.Add(40 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, c.Tick(TargetFPS), "slow frames are not padded")
	assert.Len(t, ft.slept, 1)

	assert.InDelta(t, 2/(frame+40*time.Millisecond).Seconds(), c.FPS(), 1e-9)
}

func TestRealClockFPSWindow(t *testing.T) {
	ft := &fakeTime{now: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	c := ft.clock()
	c.Tick(0)

	ft.now = ft.now.Add(time.Second)
	c.Tick(0)
	for i := 0; i < fpsWindow; i++ {
		ft.now = ft.now.Add(100 * time.Millisecond)
		c.Tick(0)
	}
	assert.InDelta(t, 10, c.FPS(), 1e-9, "the slow frame has left the window")
	assert.Empty(t, ft.slept, "zero fps never sleeps")
}
