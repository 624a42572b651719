package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wintersim/muonio/internal/control"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/pkg/sim/headless"
)

type stepClock struct{}

func (stepClock) Tick(int) time.Duration { return 16 * time.Millisecond }
func (stepClock) FPS() float64           { return 60 }

func newTestModel(t *testing.T) (*model, *headless.World, *time.Time) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := headless.New(headless.DefaultMapSpec(), log)
	t.Cleanup(func() { _ = w.Close() })

	renderer := newTermRenderer(120, 40)
	loop, err := control.Start(context.Background(), w, renderer, stepClock{}, events.Nop{}, control.Options{
		Width:  120,
		Height: 40,
		World:  control.WorldOptions{Seed: 7},
	}, log)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newModel(loop, renderer, log)
	m.now = func() time.Time { return now }
	return m, w, &now
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestParseRes(t *testing.T) {
	w, h, err := parseRes("1280x720")
	require.NoError(t, err)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	w, h, err = parseRes("800X600")
	require.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	for _, bad := range []string{"1280", "0x720", "axb", "1280x-1", ""} {
		_, _, err := parseRes(bad)
		assert.Error(t, err, bad)
	}
}

func TestKeyEvent(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		key  string
		mod  control.Mod
		ok   bool
	}{
		{"letter", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")}, "w", 0, true},
		{"shifted letter", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("C")}, "c", control.ModShift, true},
		{"question mark", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")}, "?", 0, true},
		{"backtick", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("`")}, "`", 0, true},
		{"space", tea.KeyMsg{Type: tea.KeySpace}, control.KeySpace, 0, true},
		{"f1", tea.KeyMsg{Type: tea.KeyF1}, control.KeyF1, 0, true},
		{"backspace", tea.KeyMsg{Type: tea.KeyBackspace}, control.KeyBackspace, 0, true},
		{"ctrl+q", tea.KeyMsg{Type: tea.KeyCtrlQ}, "q", control.ModCtrl, true},
		{"ctrl+w", tea.KeyMsg{Type: tea.KeyCtrlW}, "w", control.ModCtrl, true},
		{"alt rune", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w"), Alt: true}, "", 0, false},
		{"paste", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("wasd")}, "", 0, false},
		{"unmapped", tea.KeyMsg{Type: tea.KeyCtrlA}, "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := keyEvent(tt.msg)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, control.EventKeyDown, e.Kind)
			assert.Equal(t, tt.key, e.Key)
			assert.Equal(t, tt.mod, e.Mod)
		})
	}
}

func TestMouseEvent(t *testing.T) {
	e, ok := mouseEvent(tea.MouseMsg{X: 3, Y: 4, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	require.True(t, ok)
	assert.Equal(t, control.Event{Kind: control.EventMouseDown, X: 3, Y: 4}, e)

	_, ok = mouseEvent(tea.MouseMsg{Action: tea.MouseActionPress, Button: tea.MouseButtonRight})
	assert.False(t, ok)

	e, ok = mouseEvent(tea.MouseMsg{X: 5, Y: 4, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft})
	require.True(t, ok)
	assert.Equal(t, control.EventMouseMotion, e.Kind)

	e, ok = mouseEvent(tea.MouseMsg{Action: tea.MouseActionRelease})
	require.True(t, ok)
	assert.Equal(t, control.EventMouseUp, e.Kind)
}

func TestHeldKeyReleasedAfterHoldWindow(t *testing.T) {
	m, w, now := newTestModel(t)
	throttle := func() float64 {
		c, err := w.Control(m.loop.World().Player)
		require.NoError(t, err)
		return c.Throttle
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	_, cmd := m.Update(frameMsg(*now))
	assert.NotNil(t, cmd)
	assert.False(t, isQuit(cmd))
	assert.InDelta(t, 0.01, throttle(), 1e-9)

	*now = now.Add(100 * time.Millisecond)
	m.Update(frameMsg(*now))
	assert.InDelta(t, 0.02, throttle(), 1e-9, "still inside the hold window")

	// a key repeat refreshes the hold
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	*now = now.Add(axisHold - time.Millisecond)
	m.Update(frameMsg(*now))
	assert.InDelta(t, 0.03, throttle(), 1e-9)

	*now = now.Add(axisHold)
	m.Update(frameMsg(*now))
	assert.Equal(t, 0.0, throttle())
	assert.Empty(t, m.held)
}

func TestToggleKeysAreNotHeld(t *testing.T) {
	m, _, now := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
	assert.Empty(t, m.held)
	m.Update(frameMsg(*now))
	assert.True(t, m.loop.Controller().Autopilot())
	assert.True(t, m.loop.World().ConstantVelocity)
}

func TestQuitKeys(t *testing.T) {
	m, _, now := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, isQuit(cmd))
	assert.True(t, m.interrupted)
	assert.True(t, interrupted(m))

	m, _, now = newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	_, cmd = m.Update(frameMsg(*now))
	assert.True(t, isQuit(cmd))
	assert.False(t, m.interrupted)
	assert.NoError(t, m.err)
}

func TestFrameRendersScene(t *testing.T) {
	m, _, now := newTestModel(t)
	m.Update(frameMsg(*now))

	view := m.View()
	assert.Contains(t, view, "WinterSim Muonio")
	assert.Contains(t, view, control.CameraSensors[0].Name)
	assert.Contains(t, view, "▲")
	assert.Contains(t, view, "●")
	assert.Equal(t, 40, strings.Count(view, "\n")+1)

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(frameMsg(*now))
	assert.Equal(t, 100, m.loop.HUD().Width)
	assert.Equal(t, 30, strings.Count(m.View(), "\n")+1)
}

func TestHelpOverlay(t *testing.T) {
	m, _, now := newTestModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	m.Update(frameMsg(*now))
	require.True(t, m.loop.HUD().ShowingHelp())
	assert.Contains(t, m.View(), "Welcome to WinterSim")

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	m.Update(frameMsg(*now))
	assert.NotContains(t, m.View(), "Welcome to WinterSim")
}

func TestSliderDrawing(t *testing.T) {
	r := newTermRenderer(60, 5)
	r.clear()
	s := &control.Slider{Label: "Snow amount", Min: 0, Max: 100, Value: 50, X: 20, Y: 1, Width: 21}
	r.DrawSlider(s)
	r.Flip()

	lines := strings.Split(r.Frame(), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "Snow amount")
	assert.Contains(t, lines[1], "──────────●──────────")
	assert.Contains(t, lines[1], "50.0")
}
