package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/muesli/reflow/wordwrap"
	"github.com/wintersim/muonio/pkg/sim"
)

// HelpText lists the key bindings shown by H.
const HelpText = `Welcome to WinterSim Muonio control.

Use ARROWS or WASD keys for control.

    W            : throttle
    S            : brake
    A/D          : steer left/right
    Q            : toggle reverse
    Space        : hand-brake
    P            : toggle autopilot
    M            : toggle manual transmission
    ,/.          : gear up/down
    CTRL + W     : toggle constant velocity mode at 60 km/h

    L            : toggle next light type
    SHIFT + L    : toggle high beam
    Z/X          : toggle left/right blinker
    I            : toggle interior light

    TAB          : change sensor position
    ` + "`" + ` or N       : next sensor
    [1-9]        : change to sensor [1-9]
    G            : toggle radar visualization
    C            : change weather (Shift+C reverse)
    Backspace    : change vehicle
    K            : copy telemetry to clipboard

    R            : toggle recording images to disk
    CTRL + R     : toggle recording of simulation

    F1           : toggle HUD
    H/?          : toggle help
    ESC          : quit

Drag the sliders on the right with the mouse to change the weather.`

// Slider panel layout, in cells.
const (
	SliderWidth      = 20
	SliderLabelWidth = 14
	sliderValueWidth = 8
	sliderTop        = 2
)

// notificationTime is how long a notification stays up.
const notificationTime = 2 * time.Second

// HUD is the heads-up display state: telemetry, notifications, help and the
// weather sliders.
type HUD struct {
	Width   int
	Height  int
	Visible bool
	Sliders []*Slider

	// Pointer is the last known mouse position.
	PointerX, PointerY int

	showHelp       bool
	notice         string
	noticeLeft     time.Duration
	info           []string
	serverFPS      float64
	lastSimElapsed float64
	copyText       func(string) error
}

// NewHUD creates a visible HUD of the given size in cells.
func NewHUD(width, height int) *HUD {
	return &HUD{
		Width:    width,
		Height:   height,
		Visible:  true,
		copyText: clipboard.WriteAll,
	}
}

// MakeSliders creates one slider per weather parameter on the right side.
func (h *HUD) MakeSliders() {
	h.Sliders = h.Sliders[:0]
	for _, spec := range sliderSpecs {
		h.Sliders = append(h.Sliders, &Slider{
			ID:    spec.id,
			Label: spec.label,
			Min:   spec.min,
			Max:   spec.max,
			Value: spec.min,
			Width: SliderWidth,
			spec:  spec,
		})
	}
	h.layoutSliders()
}

// Resize changes the HUD size and lays the sliders out again.
func (h *HUD) Resize(width, height int) {
	h.Width, h.Height = width, height
	h.layoutSliders()
}

func (h *HUD) layoutSliders() {
	x := h.Width - SliderWidth - sliderValueWidth
	if x < SliderLabelWidth {
		x = SliderLabelWidth
	}
	for i, s := range h.Sliders {
		s.X = x
		s.Y = sliderTop + i
	}
}

// UpdateSliders moves every slider to the value it has in w.
func (h *HUD) UpdateSliders(w sim.Weather) {
	for _, s := range h.Sliders {
		if s.spec.field != nil {
			s.Set(*s.spec.field(&w))
		}
	}
}

// Slider returns the slider with the given id.
func (h *HUD) Slider(id string) *Slider {
	for _, s := range h.Sliders {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// MouseDown starts dragging the slider under the pointer, if any.
func (h *HUD) MouseDown(x, y int) {
	h.PointerX, h.PointerY = x, y
	if !h.Visible {
		return
	}
	for _, s := range h.Sliders {
		if s.Contains(x, y) {
			s.Hit = true
			return
		}
	}
}

// MouseUp releases every slider.
func (h *HUD) MouseUp(x, y int) {
	h.PointerX, h.PointerY = x, y
	for _, s := range h.Sliders {
		s.Hit = false
	}
}

// MouseMotion tracks the pointer.
func (h *HUD) MouseMotion(x, y int) {
	h.PointerX, h.PointerY = x, y
}

// Dragging reports whether any slider is held.
func (h *HUD) Dragging() bool {
	for _, s := range h.Sliders {
		if s.Hit {
			return true
		}
	}
	return false
}

// ToggleInfo shows or hides the HUD.
func (h *HUD) ToggleInfo() {
	h.Visible = !h.Visible
}

// ToggleHelp shows or hides the help overlay.
func (h *HUD) ToggleHelp() {
	h.showHelp = !h.showHelp
}

// ShowingHelp reports whether the help overlay is up.
func (h *HUD) ShowingHelp() bool { return h.showHelp }

// Help is the help text wrapped to the HUD width.
func (h *HUD) Help() string {
	width := h.Width - 4
	if width < 20 {
		width = 20
	}
	return wordwrap.String(HelpText, width)
}

// Notification shows text for a couple of seconds.
func (h *HUD) Notification(text string) {
	h.notice = text
	h.noticeLeft = notificationTime
}

// Error shows an error notification.
func (h *HUD) Error(text string) {
	h.Notification("Error: " + text)
}

// Notice is the current notification, empty when none is up.
func (h *HUD) Notice() string {
	if h.noticeLeft <= 0 {
		return ""
	}
	return h.notice
}

// Info is the telemetry computed by the last Tick.
func (h *HUD) Info() []string { return h.info }

// ServerFPS is the simulator's tick rate, from simulated time per tick.
func (h *HUD) ServerFPS() float64 { return h.serverFPS }

// onWorldTick records the simulator clock after a world tick.
func (h *HUD) onWorldTick(elapsed float64) {
	if d := elapsed - h.lastSimElapsed; d > 0 {
		h.serverFPS = 1 / d
	}
	h.lastSimElapsed = elapsed
}

// Tick fades the notification and rebuilds the telemetry lines.
func (h *HUD) Tick(w *World, clientFPS float64, delta time.Duration) {
	if h.noticeLeft > 0 {
		h.noticeLeft -= delta
	}
	if !h.Visible {
		return
	}
	h.info = w.telemetry(h.serverFPS, clientFPS)
}

// CopyTelemetry puts the telemetry lines on the system clipboard.
func (h *HUD) CopyTelemetry() {
	text := strings.Join(h.info, "\n")
	if err := h.copyText(text); err != nil {
		h.Error(fmt.Sprintf("clipboard unavailable: %v", err))
		return
	}
	h.Notification("Telemetry copied to clipboard")
}
