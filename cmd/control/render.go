package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wintersim/muonio/internal/control"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

type cellStyle uint8

const (
	styleBlank cellStyle = iota
	styleTitle
	styleInfo
	styleRoad
	styleVehicle
	stylePlayer
	styleLabel
	styleTrack
	styleKnob
	styleNotice
)

var cellStyles = map[cellStyle]lipgloss.Style{
	styleBlank:   lipgloss.NewStyle(),
	styleTitle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("24")),   // white on blue
	styleInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("235")),            // light gray on dark
	styleRoad:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),                                              // gray
	styleVehicle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),                                   // orange
	stylePlayer:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),                                    // green
	styleLabel:   lipgloss.NewStyle().Foreground(lipgloss.Color("250")),                                              // light gray
	styleTrack:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),                                              // dark gray
	styleKnob:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),                                    // cyan
	styleNotice:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238")), // cream on gray
}

// Top-down view scale. Terminal cells are about twice as tall as wide.
const (
	metersPerColumn = 1.0
	metersPerRow    = 2.0
	laneHalfWidth   = 1.75
	roadAhead       = 80.0 // meters of lane drawn ahead of the player
	roadStep        = 2.0
	infoWidth       = 32
)

type cell struct {
	r     rune
	style cellStyle
}

// termRenderer draws frames into a cell canvas and keeps the last flipped
// frame for the bubbletea View.
type termRenderer struct {
	width  int
	height int
	cells  [][]cell
	frame  string
}

func newTermRenderer(width, height int) *termRenderer {
	r := &termRenderer{}
	r.resize(width, height)
	return r
}

func (r *termRenderer) resize(width, height int) {
	if width == r.width && height == r.height && r.cells != nil {
		return
	}
	r.width, r.height = width, height
	r.cells = make([][]cell, height)
	for y := range r.cells {
		r.cells[y] = make([]cell, width)
	}
}

func (r *termRenderer) clear() {
	for y := range r.cells {
		for x := range r.cells[y] {
			r.cells[y][x] = cell{' ', styleBlank}
		}
	}
}

func (r *termRenderer) set(x, y int, ch rune, style cellStyle) {
	if y < 0 || y >= r.height || x < 0 || x >= r.width {
		return
	}
	r.cells[y][x] = cell{ch, style}
}

func (r *termRenderer) text(x, y int, s string, style cellStyle) {
	for _, ch := range s {
		r.set(x, y, ch, style)
		x++
	}
}

// RenderScene draws the title bar, a top-down view centered on the player,
// the telemetry panel when the HUD is visible and the notification line.
func (r *termRenderer) RenderScene(w *control.World) {
	hud := w.HUD()
	r.resize(hud.Width, hud.Height)
	r.clear()
	if r.height == 0 {
		return
	}

	title := fmt.Sprintf(" WinterSim Muonio | %s ", w.Camera.Sensor().Name)
	r.text(0, 0, padRight(title, r.width), styleTitle)

	r.drawTopDown(w)

	if hud.Visible {
		for i, line := range hud.Info() {
			if i+1 >= r.height-1 {
				break
			}
			r.text(0, i+1, padRight(" "+line, infoWidth), styleInfo)
		}
	}

	if notice := hud.Notice(); notice != "" && r.height > 1 {
		x := (r.width - len([]rune(notice)) - 2) / 2
		r.text(max(x, 0), r.height-1, " "+notice+" ", styleNotice)
	}
}

func (r *termRenderer) drawTopDown(w *control.World) {
	s := w.Sim()
	player, err := s.Transform(w.Player)
	if err != nil {
		return
	}
	cx, cy := r.width/2, r.height*2/3

	project := func(loc geom.Location) (int, int) {
		yaw := geom.Radians(player.Rotation.Yaw)
		dx, dy := loc.X-player.Location.X, loc.Y-player.Location.Y
		forward := dx*math.Cos(yaw) + dy*math.Sin(yaw)
		lateral := -dx*math.Sin(yaw) + dy*math.Cos(yaw)
		return cx + int(math.Round(lateral/metersPerColumn)), cy - int(math.Round(forward/metersPerRow))
	}

	if wp, err := s.Map().Waypoint(player.Location); err == nil {
		for d := 0.0; d <= roadAhead; d += roadStep {
			yaw := geom.Radians(wp.Transform.Rotation.Yaw)
			for _, side := range []float64{-laneHalfWidth, laneHalfWidth} {
				edge := geom.Location{
					X: wp.Transform.Location.X - side*math.Sin(yaw),
					Y: wp.Transform.Location.Y + side*math.Cos(yaw),
				}
				x, y := project(edge)
				r.set(x, y, '·', styleRoad)
			}
			next := s.Map().Next(wp, roadStep)
			if len(next) == 0 {
				break
			}
			wp = next[0]
		}
	}

	for _, a := range s.Actors() {
		if !a.IsVehicle() || a.Dormant || a.ID == w.Player {
			continue
		}
		t, err := s.Transform(a.ID)
		if err != nil {
			continue
		}
		x, y := project(t.Location)
		r.set(x, y, vehicleGlyph(a), styleVehicle)
	}
	r.set(cx, cy, '▲', stylePlayer)
}

func vehicleGlyph(a sim.Actor) rune {
	if a.RoleName == "scenario" {
		return '◆'
	}
	return '■'
}

// DrawSlider draws the label, track, knob and value of s.
func (r *termRenderer) DrawSlider(s *control.Slider) {
	label := s.Label
	if len([]rune(label)) > control.SliderLabelWidth-1 {
		label = string([]rune(label)[:control.SliderLabelWidth-1])
	}
	r.text(s.X-control.SliderLabelWidth, s.Y, padRight(label, control.SliderLabelWidth), styleLabel)

	track := styleTrack
	if s.Hit {
		track = styleKnob
	}
	for i := 0; i < s.Width; i++ {
		r.set(s.X+i, s.Y, '─', track)
	}
	r.set(s.Knob(), s.Y, '●', styleKnob)
	r.text(s.X+s.Width, s.Y, fmt.Sprintf(" %6.1f", s.Value), styleLabel)
}

// Flip renders the canvas into the frame string, one lipgloss call per run
// of equally styled cells.
func (r *termRenderer) Flip() {
	var b strings.Builder
	var run []rune
	for y, row := range r.cells {
		if y > 0 {
			b.WriteByte('\n')
		}
		current := styleBlank
		run = run[:0]
		for _, c := range row {
			if c.style != current && len(run) > 0 {
				b.WriteString(cellStyles[current].Render(string(run)))
				run = run[:0]
			}
			current = c.style
			run = append(run, c.r)
		}
		if len(run) > 0 {
			b.WriteString(cellStyles[current].Render(string(run)))
		}
	}
	r.frame = b.String()
}

// Frame is the last flipped frame.
func (r *termRenderer) Frame() string { return r.frame }

func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
