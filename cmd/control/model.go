package main

import (
	"log/slog"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/wintersim/muonio/internal/control"
)

// axisHold is how long a driving key counts as held after the terminal last
// reported it. Terminals send no key-up, only repeats.
const axisHold = 500 * time.Millisecond

var (
	helpModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")). // purple
			Padding(1, 2)

	helpFooterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // gray
			Italic(true)
)

type frameMsg time.Time

func frameTick() tea.Cmd {
	return tea.Tick(time.Second/control.TargetFPS, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// model adapts the control loop to bubbletea: messages become control
// events, and every frame tick steps the loop once with what arrived.
type model struct {
	loop     *control.Loop
	renderer *termRenderer
	log      *slog.Logger
	now      func() time.Time

	pending []control.Event
	held    map[string]time.Time
	help    viewport.Model

	err         error
	interrupted bool
}

func newModel(loop *control.Loop, renderer *termRenderer, log *slog.Logger) *model {
	hud := loop.HUD()
	help := viewport.New(helpWidth(hud.Width), helpHeight(hud.Height))
	help.MouseWheelEnabled = true
	return &model{
		loop:     loop,
		renderer: renderer,
		log:      log,
		now:      time.Now,
		held:     make(map[string]time.Time),
		help:     help,
	}
}

func (m *model) Init() tea.Cmd {
	return frameTick()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.loop.HUD().Resize(msg.Width, msg.Height)
		m.help.Width = helpWidth(msg.Width)
		m.help.Height = helpHeight(msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.interrupted = true
			return m, tea.Quit
		}
		if m.loop.HUD().ShowingHelp() {
			switch msg.Type {
			case tea.KeyPgUp, tea.KeyPgDown:
				var cmd tea.Cmd
				m.help, cmd = m.help.Update(msg)
				return m, cmd
			}
		}
		if e, ok := keyEvent(msg); ok {
			if isAxisKey(e) {
				m.held[e.Key] = m.now()
			}
			m.pending = append(m.pending, e)
		}
		return m, nil

	case tea.MouseMsg:
		if m.loop.HUD().ShowingHelp() && tea.MouseEvent(msg).IsWheel() {
			var cmd tea.Cmd
			m.help, cmd = m.help.Update(msg)
			return m, cmd
		}
		if e, ok := mouseEvent(msg); ok {
			m.pending = append(m.pending, e)
		}
		return m, nil

	case frameMsg:
		return m, m.frame()
	}
	return m, nil
}

// frame releases stale held keys and steps the loop with the pending events.
func (m *model) frame() tea.Cmd {
	now := m.now()
	for key, at := range m.held {
		if now.Sub(at) >= axisHold {
			m.pending = append(m.pending, control.KeyRelease(key))
			delete(m.held, key)
		}
	}

	events := m.pending
	m.pending = nil
	quit, err := m.loop.Step(events)
	if err != nil {
		m.log.Error("Frame failed", "frame", m.loop.Frames(), "error", err)
		m.err = err
		return tea.Quit
	}
	if quit {
		m.log.Info("Quit requested", "frames", m.loop.Frames())
		return tea.Quit
	}
	return frameTick()
}

func (m *model) View() string {
	hud := m.loop.HUD()
	if !hud.ShowingHelp() {
		return m.renderer.Frame()
	}
	m.help.SetContent(hud.Help())
	modal := helpModalStyle.Render(m.help.View() + "\n" +
		helpFooterStyle.Render("PgUp/PgDn or wheel to scroll, H to close"))
	return lipgloss.Place(hud.Width, hud.Height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceChars(" "))
}

func helpWidth(width int) int {
	return max(width-8, 20)
}

func helpHeight(height int) int {
	return max(height-6, 5)
}

func isAxisKey(e control.Event) bool {
	if e.Ctrl() {
		return false
	}
	switch e.Key {
	case "w", "s", "a", "d", control.KeyUp, control.KeyDown, control.KeyLeft, control.KeyRight, control.KeySpace:
		return true
	}
	return false
}

// keyEvent maps a terminal key to a control key press. Upper-case runes
// become their lower-case key with shift held.
func keyEvent(msg tea.KeyMsg) (control.Event, bool) {
	switch msg.Type {
	case tea.KeyRunes:
		if len(msg.Runes) != 1 || msg.Alt {
			return control.Event{}, false
		}
		r := msg.Runes[0]
		var mod control.Mod
		if unicode.IsUpper(r) {
			mod |= control.ModShift
			r = unicode.ToLower(r)
		}
		return control.KeyPress(string(r), mod), true
	case tea.KeySpace:
		return control.KeyPress(control.KeySpace, 0), true
	case tea.KeyTab:
		return control.KeyPress(control.KeyTab, 0), true
	case tea.KeyShiftTab:
		return control.KeyPress(control.KeyTab, control.ModShift), true
	case tea.KeyEsc:
		return control.KeyPress(control.KeyEsc, 0), true
	case tea.KeyBackspace:
		return control.KeyPress(control.KeyBackspace, 0), true
	case tea.KeyUp:
		return control.KeyPress(control.KeyUp, 0), true
	case tea.KeyDown:
		return control.KeyPress(control.KeyDown, 0), true
	case tea.KeyLeft:
		return control.KeyPress(control.KeyLeft, 0), true
	case tea.KeyRight:
		return control.KeyPress(control.KeyRight, 0), true
	case tea.KeyF1:
		return control.KeyPress(control.KeyF1, 0), true
	case tea.KeyCtrlQ:
		return control.KeyPress("q", control.ModCtrl), true
	case tea.KeyCtrlR:
		return control.KeyPress("r", control.ModCtrl), true
	case tea.KeyCtrlW:
		return control.KeyPress("w", control.ModCtrl), true
	}
	return control.Event{}, false
}

func mouseEvent(msg tea.MouseMsg) (control.Event, bool) {
	e := control.Event{X: msg.X, Y: msg.Y}
	switch {
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		e.Kind = control.EventMouseDown
	case msg.Action == tea.MouseActionRelease:
		e.Kind = control.EventMouseUp
	case msg.Action == tea.MouseActionMotion:
		e.Kind = control.EventMouseMotion
	default:
		return control.Event{}, false
	}
	return e, true
}
