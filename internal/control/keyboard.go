package control

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/wintersim/muonio/pkg/sim"
)

// Vehicle control ramps.
const (
	throttleStep  = 0.01
	brakeStep     = 0.2
	steerPerMilli = 5e-4
	maxSteer      = 0.7
)

// axisKeys are held down rather than pressed.
var axisKeys = map[string]bool{
	"w": true, "s": true, "a": true, "d": true,
	KeyUp: true, KeyDown: true, KeyLeft: true, KeyRight: true,
	KeySpace: true,
}

// KeyboardControl turns input events into vehicle control and world toggles.
type KeyboardControl struct {
	autopilot  bool
	control    sim.VehicleControl
	lights     sim.LightState
	steerCache float64
	held       map[string]bool
}

// NewKeyboardControl takes control of w's player, optionally starting in
// autopilot.
func NewKeyboardControl(w *World, startInAutopilot bool) (*KeyboardControl, error) {
	k := &KeyboardControl{
		autopilot: startInAutopilot,
		control:   sim.VehicleControl{Gear: 1},
		held:      make(map[string]bool),
	}
	if err := w.sim.SetAutopilot(w.Player, startInAutopilot); err != nil {
		return nil, fmt.Errorf("failed to set autopilot: %w", err)
	}
	lights, err := w.sim.LightState(w.Player)
	if err != nil {
		return nil, fmt.Errorf("failed to read lights: %w", err)
	}
	k.lights = lights
	w.hud.Notification("Press 'H' or '?' for help.")
	return k, nil
}

// Autopilot reports whether the simulator drives the player.
func (k *KeyboardControl) Autopilot() bool { return k.autopilot }

// Control is the last control sent to the player.
func (k *KeyboardControl) Control() sim.VehicleControl { return k.control }

// Lights is the light state the controller keeps.
func (k *KeyboardControl) Lights() sim.LightState { return k.lights }

// ParseEvents handles one frame of input. It returns true when the loop
// should end. delta is the frame time and scales the steering ramp.
func (k *KeyboardControl) ParseEvents(w *World, events []Event, delta time.Duration) (bool, error) {
	for _, e := range events {
		switch e.Kind {
		case EventQuit:
			return true, nil
		case EventMouseDown:
			w.hud.MouseDown(e.X, e.Y)
		case EventMouseUp:
			w.hud.MouseUp(e.X, e.Y)
		case EventMouseMotion:
			w.hud.MouseMotion(e.X, e.Y)
		case EventKeyUp:
			delete(k.held, e.Key)
		case EventKeyDown:
			if axisKeys[e.Key] && !e.Ctrl() {
				k.held[e.Key] = true
			}
			quit, err := k.handleKey(w, e)
			if quit || err != nil {
				return quit, err
			}
		}
	}

	if k.autopilot {
		return false, nil
	}
	k.parseVehicleKeys(delta)
	k.control.Reverse = k.control.Gear < 0

	lights := k.lights
	if k.control.Brake > 0 {
		lights |= sim.LightBrake
	} else {
		lights &^= sim.LightBrake
	}
	if k.control.Reverse {
		lights |= sim.LightReverse
	} else {
		lights &^= sim.LightReverse
	}
	if lights != k.lights {
		k.lights = lights
		if err := w.sim.SetLightState(w.Player, lights); err != nil {
			return false, fmt.Errorf("failed to set lights: %w", err)
		}
	}
	if err := w.sim.ApplyControl(w.Player, k.control); err != nil {
		return false, fmt.Errorf("failed to apply control: %w", err)
	}
	return false, nil
}

func (k *KeyboardControl) handleKey(w *World, e Event) (bool, error) {
	lights := k.lights
	switch {
	case e.Key == KeyEsc || (e.Key == "q" && e.Ctrl()):
		return true, nil
	case e.Key == KeyBackspace:
		return false, k.restart(w)
	case e.Key == KeyF1:
		w.hud.ToggleInfo()
	case e.Key == "h" || e.Key == "?":
		w.hud.ToggleHelp()
	case e.Key == KeyTab:
		return false, w.Camera.ToggleCamera()
	case e.Key == "c":
		return false, w.NextWeather(e.Shift())
	case e.Key == "g":
		return false, w.ToggleRadar()
	case e.Key == "`" || e.Key == "n":
		return false, w.Camera.NextSensor()
	case len(e.Key) == 1 && e.Key >= "1" && e.Key <= "9":
		n, _ := strconv.Atoi(e.Key)
		return false, w.Camera.SetSensor(n-1, true, false)
	case e.Key == "r" && e.Ctrl():
		w.ToggleRecorder()
	case e.Key == "r":
		w.Camera.ToggleRecording()
	case e.Key == "w" && e.Ctrl():
		w.ToggleConstantVelocity()
	case e.Key == "k":
		w.hud.CopyTelemetry()
	case e.Key == "q":
		if k.control.Reverse {
			k.control.Gear = 1
		} else {
			k.control.Gear = -1
		}
	case e.Key == "m":
		k.control.ManualGearShift = !k.control.ManualGearShift
		if k.control.ManualGearShift {
			w.hud.Notification("Manual Transmission")
		} else {
			w.hud.Notification("Automatic Transmission")
		}
	case e.Key == "," && k.control.ManualGearShift:
		k.control.Gear = max(-1, k.control.Gear-1)
	case e.Key == "." && k.control.ManualGearShift:
		k.control.Gear++
	case e.Key == "p" && !e.Ctrl():
		k.autopilot = !k.autopilot
		if err := w.sim.SetAutopilot(w.Player, k.autopilot); err != nil {
			return false, fmt.Errorf("failed to set autopilot: %w", err)
		}
		if k.autopilot {
			w.hud.Notification("Autopilot On")
		} else {
			w.hud.Notification("Autopilot Off")
		}
	case e.Key == "l" && e.Shift():
		lights ^= sim.LightHighBeam
	case e.Key == "l":
		lights = nextLightType(lights, w.hud)
	case e.Key == "i":
		lights ^= sim.LightInterior
	case e.Key == "z":
		lights ^= sim.LightLeftBlinker
	case e.Key == "x":
		lights ^= sim.LightRightBlinker
	}
	if lights != k.lights {
		k.lights = lights
		if err := w.sim.SetLightState(w.Player, lights); err != nil {
			return false, fmt.Errorf("failed to set lights: %w", err)
		}
	}
	return false, nil
}

// restart replaces the player, carrying the autopilot over.
func (k *KeyboardControl) restart(w *World) error {
	if err := w.Restart(); err != nil {
		return err
	}
	k.steerCache = 0
	k.control = sim.VehicleControl{Gear: 1}
	k.lights = sim.LightNone
	if err := w.sim.SetAutopilot(w.Player, k.autopilot); err != nil {
		return fmt.Errorf("failed to set autopilot: %w", err)
	}
	return nil
}

// nextLightType cycles off, position, low beam, fog, off.
func nextLightType(s sim.LightState, hud *HUD) sim.LightState {
	switch {
	case !s.Has(sim.LightPosition):
		hud.Notification("Position lights")
		return s | sim.LightPosition
	case !s.Has(sim.LightLowBeam):
		hud.Notification("Low beam lights")
		return s | sim.LightLowBeam
	case !s.Has(sim.LightFog):
		hud.Notification("Fog lights")
		return s | sim.LightFog
	default:
		hud.Notification("Lights off")
		return s &^ (sim.LightPosition | sim.LightLowBeam | sim.LightFog)
	}
}

func (k *KeyboardControl) pressed(keys ...string) bool {
	for _, key := range keys {
		if k.held[key] {
			return true
		}
	}
	return false
}

func (k *KeyboardControl) parseVehicleKeys(delta time.Duration) {
	if k.pressed("w", KeyUp) {
		k.control.Throttle = math.Min(k.control.Throttle+throttleStep, 1)
	} else {
		k.control.Throttle = 0
	}

	if k.pressed("s", KeyDown) {
		k.control.Brake = math.Min(k.control.Brake+brakeStep, 1)
	} else {
		k.control.Brake = 0
	}

	steerIncrement := steerPerMilli * float64(delta.Milliseconds())
	switch {
	case k.pressed("a", KeyLeft):
		if k.steerCache > 0 {
			k.steerCache = 0
		} else {
			k.steerCache -= steerIncrement
		}
	case k.pressed("d", KeyRight):
		if k.steerCache < 0 {
			k.steerCache = 0
		} else {
			k.steerCache += steerIncrement
		}
	default:
		k.steerCache = 0
	}
	k.steerCache = math.Max(-maxSteer, math.Min(maxSteer, k.steerCache))
	k.control.Steer = math.Round(k.steerCache*10) / 10
	k.control.HandBrake = k.pressed(KeySpace)
}
