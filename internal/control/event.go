// Package control is the interactive manual-control loop: input events drive
// a vehicle and toggle HUD state, sliders on the HUD push weather changes
// back into the simulator, and a Renderer draws each frame.
package control

// EventKind is the category of an input event.
type EventKind int

const (
	EventQuit EventKind = iota
	EventKeyDown
	EventKeyUp
	EventMouseDown
	EventMouseUp
	EventMouseMotion
)

func (k EventKind) String() string {
	switch k {
	case EventQuit:
		return "quit"
	case EventKeyDown:
		return "key_down"
	case EventKeyUp:
		return "key_up"
	case EventMouseDown:
		return "mouse_down"
	case EventMouseUp:
		return "mouse_up"
	case EventMouseMotion:
		return "mouse_motion"
	default:
		return "unknown"
	}
}

// Mod is a keyboard modifier bitmask.
type Mod uint8

const (
	ModShift Mod = 1 << iota
	ModCtrl
)

// Key names. Printable keys are their lower-case character.
const (
	KeyEsc       = "esc"
	KeyBackspace = "backspace"
	KeyTab       = "tab"
	KeySpace     = "space"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyLeft      = "left"
	KeyRight     = "right"
	KeyF1        = "f1"
)

// Event is one input event. Mouse coordinates are HUD cells.
type Event struct {
	Kind EventKind
	Key  string
	Mod  Mod
	X, Y int
}

func (e Event) Shift() bool { return e.Mod&ModShift != 0 }
func (e Event) Ctrl() bool  { return e.Mod&ModCtrl != 0 }

// KeyPress is a key down event.
func KeyPress(key string, mod Mod) Event {
	return Event{Kind: EventKeyDown, Key: key, Mod: mod}
}

// KeyRelease is a key up event.
func KeyRelease(key string) Event {
	return Event{Kind: EventKeyUp, Key: key}
}

// EventSource delivers the events that arrived since the last poll.
type EventSource interface {
	Poll() []Event
}
