package control

import (
	"math"
)

// Slider is a horizontal HUD widget. It covers Width cells starting at X on
// row Y and maps its track linearly onto [Min, Max].
type Slider struct {
	ID    string
	Label string
	Min   float64
	Max   float64
	Value float64
	X, Y  int
	Width int
	// Hit is set while the pointer is dragging the slider.
	Hit bool

	spec sliderSpec
}

// Contains reports whether the cell (x, y) is on the slider's track.
func (s *Slider) Contains(x, y int) bool {
	return y == s.Y && x >= s.X && x < s.X+s.Width
}

// Move sets the value from the pointer column x.
func (s *Slider) Move(x int) {
	if s.Width <= 1 {
		s.Value = s.Min
		return
	}
	frac := float64(x-s.X) / float64(s.Width-1)
	s.Value = s.Min + clamp01(frac)*(s.Max-s.Min)
}

// Set clamps v into range and stores it.
func (s *Slider) Set(v float64) {
	s.Value = math.Max(s.Min, math.Min(s.Max, v))
}

// Knob is the track column of the current value.
func (s *Slider) Knob() int {
	if s.Max <= s.Min || s.Width <= 1 {
		return s.X
	}
	frac := (s.Value - s.Min) / (s.Max - s.Min)
	return s.X + int(math.Round(clamp01(frac)*float64(s.Width-1)))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
