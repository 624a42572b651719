package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/pkg/sim"
)

// Renderer draws one frame: the scene, then the sliders, then Flip shows it.
type Renderer interface {
	RenderScene(w *World)
	DrawSlider(s *Slider)
	Flip()
}

// Options configures Start.
type Options struct {
	Width, Height    int
	Autopilot        bool
	Friction         *float64 // nil keeps the simulator's friction
	ConstantVelocity bool
	World            WorldOptions
}

// Loop is the manual-control frame loop. The World it carries is the only
// state a frame reads and mutates.
type Loop struct {
	clock      Clock
	controller *KeyboardControl
	world      *World
	hud        *HUD
	renderer   Renderer
	log        *slog.Logger
	frames     uint64
}

// Start spawns the player and applies the startup settings: the first
// weather preset with the sliders synced to it, camera angle 1 and, when it
// differs from the default, the tire friction.
func Start(ctx context.Context, w sim.World, renderer Renderer, clock Clock, publisher events.Publisher, opts Options, log *slog.Logger) (*Loop, error) {
	hud := NewHUD(opts.Width, opts.Height)
	hud.MakeSliders()

	world, err := NewWorld(ctx, w, hud, publisher, opts.World, log)
	if err != nil {
		return nil, err
	}
	l := &Loop{clock: clock, world: world, hud: hud, renderer: renderer, log: log}

	if err := l.setup(opts); err != nil {
		if dErr := world.Destroy(); dErr != nil {
			log.Error("Failed to clean up after startup failure", "error", dErr)
		}
		return nil, err
	}
	return l, nil
}

func (l *Loop) setup(opts Options) error {
	controller, err := NewKeyboardControl(l.world, opts.Autopilot)
	if err != nil {
		return err
	}
	l.controller = controller

	l.world.SelectPreset(0)
	if err := l.world.Camera.SpecificCameraAngle(1); err != nil {
		return err
	}

	if opts.Friction != nil && *opts.Friction != DefaultFriction {
		if err := l.world.UpdateFrictionDirectly(*opts.Friction); err != nil {
			return err
		}
	}
	if opts.ConstantVelocity {
		l.world.ToggleConstantVelocity()
	}
	return nil
}

func (l *Loop) World() *World                { return l.world }
func (l *Loop) HUD() *HUD                    { return l.hud }
func (l *Loop) Controller() *KeyboardControl { return l.controller }
func (l *Loop) Frames() uint64               { return l.frames }

// Step runs one frame: clock tick, input, world tick, scene, slider drags
// with their weather pushes, slider redraw, flip. It returns true when the
// input asked to quit.
func (l *Loop) Step(events []Event) (bool, error) {
	delta := l.clock.Tick(TargetFPS)

	quit, err := l.controller.ParseEvents(l.world, events, delta)
	if quit || err != nil {
		return quit, err
	}
	if err := l.world.Tick(l.clock, delta); err != nil {
		return false, err
	}

	l.renderer.RenderScene(l.world)
	if l.hud.Visible {
		for _, s := range l.hud.Sliders {
			if !s.Hit {
				continue
			}
			s.Move(l.hud.PointerX)
			weather := WeatherFromHUD(l.hud, l.world.Preset.Weather)
			if err := l.world.PushWeather(weather); err != nil {
				return false, err
			}
		}
		for _, s := range l.hud.Sliders {
			l.renderer.DrawSlider(s)
		}
	}
	l.renderer.Flip()
	l.frames++
	return false, nil
}

// Run steps until the input quits or ctx is cancelled. A frame error ends
// the loop and is returned with the frame number.
func (l *Loop) Run(ctx context.Context, src EventSource) error {
	for ctx.Err() == nil {
		quit, err := l.Step(src.Poll())
		if err != nil {
			l.log.Error("Frame failed", "frame", l.frames, "error", err)
			return fmt.Errorf("frame %d: %w", l.frames, err)
		}
		if quit {
			l.log.Info("Quit requested", "frames", l.frames)
			return nil
		}
	}
	return nil
}

// Close releases the player, its sensors and camera.
func (l *Loop) Close() error {
	return l.world.Destroy()
}
