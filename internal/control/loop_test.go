package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
	"github.com/wintersim/muonio/pkg/sim/headless"
)

// countingWorld counts weather pushes and remembers autopilot requests.
type countingWorld struct {
	*headless.World
	weatherPushes int
	autopilot     map[sim.ActorID]bool
}

func (c *countingWorld) SetWeather(w sim.Weather) error {
	c.weatherPushes++
	return c.World.SetWeather(w)
}

func (c *countingWorld) SetAutopilot(id sim.ActorID, enabled bool) error {
	c.autopilot[id] = enabled
	return c.World.SetAutopilot(id, enabled)
}

type fakeClock struct{ delta time.Duration }

func (c fakeClock) Tick(int) time.Duration { return c.delta }
func (c fakeClock) FPS() float64           { return float64(time.Second / c.delta) }

type fakeRenderer struct {
	scenes, sliders, flips int
}

func (r *fakeRenderer) RenderScene(*World) { r.scenes++ }
func (r *fakeRenderer) DrawSlider(*Slider) { r.sliders++ }
func (r *fakeRenderer) Flip()              { r.flips++ }

type scriptedSource struct{ frames [][]Event }

func (s *scriptedSource) Poll() []Event {
	if len(s.frames) == 0 {
		return []Event{{Kind: EventQuit}}
	}
	evs := s.frames[0]
	s.frames = s.frames[1:]
	return evs
}

const frameTime = 16 * time.Millisecond

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	world     *countingWorld
	renderer  *fakeRenderer
	publisher *events.MockPublisher
	loop      *Loop
}

func newCountingWorld() *countingWorld {
	return &countingWorld{
		World:     headless.New(headless.DefaultMapSpec(), testLogger()),
		autopilot: make(map[sim.ActorID]bool),
	}
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		world:     newCountingWorld(),
		renderer:  &fakeRenderer{},
		publisher: &events.MockPublisher{},
	}
	t.Cleanup(func() { _ = f.world.Close() })
	if opts.Width == 0 {
		opts.Width, opts.Height = 120, 40
	}
	if opts.World.Seed == 0 {
		opts.World.Seed = 7
	}
	l, err := Start(context.Background(), f.world, f.renderer, fakeClock{delta: frameTime}, f.publisher, opts, testLogger())
	require.NoError(t, err)
	f.loop = l
	return f
}

func (f *fixture) step(t *testing.T, evs ...Event) bool {
	t.Helper()
	quit, err := f.loop.Step(evs)
	require.NoError(t, err)
	return quit
}

func (f *fixture) player() sim.ActorID {
	return f.loop.World().Player
}

func (f *fixture) weatherEvents() int {
	n := 0
	for _, e := range f.publisher.Events() {
		if e.Type == events.EventTypeWeatherUpdated {
			n++
		}
	}
	return n
}

func countActors(w sim.World, prefix string) int {
	n := 0
	for _, a := range w.Actors() {
		if strings.HasPrefix(a.TypeID, prefix) {
			n++
		}
	}
	return n
}

func TestStartDefaults(t *testing.T) {
	f := newFixture(t, Options{})
	w := f.loop.World()

	assert.Equal(t, 1, w.Camera.TransformIndex(), "startup camera angle")
	assert.Equal(t, 0, w.Camera.Index())
	assert.Equal(t, "Clear Noon", w.Preset.Name)
	assert.Equal(t, 0, f.world.weatherPushes, "the startup preset only syncs the sliders")
	assert.Equal(t, "Press 'H' or '?' for help.", f.loop.HUD().Notice())
	assert.False(t, f.loop.Controller().Autopilot())

	preset := WeatherPresets()[0].Weather
	assert.Equal(t, preset.Temperature, f.loop.HUD().Slider(SliderTemperature).Value)
	assert.Equal(t, preset.SunAltitudeAngle, f.loop.HUD().Slider(SliderSunAltitude).Value)

	pc, err := f.world.PhysicsControl(f.player())
	require.NoError(t, err)
	for _, wheel := range pc.Wheels {
		assert.Equal(t, headless.DefaultTireFriction, wheel.TireFriction, "default friction is left alone")
	}

	// player, four sensors and the camera
	assert.Len(t, f.world.Actors(), 6)
	assert.Equal(t, 1, countActors(f.world, "sensor.camera."))
}

func TestStartAppliesFrictionAndConstantVelocity(t *testing.T) {
	friction := 0.5
	f := newFixture(t, Options{Friction: &friction, ConstantVelocity: true})

	pc, err := f.world.PhysicsControl(f.player())
	require.NoError(t, err)
	for _, wheel := range pc.Wheels {
		assert.Equal(t, 0.5, wheel.TireFriction)
	}
	assert.True(t, f.loop.World().ConstantVelocity)
	assert.Equal(t, "Enabled Constant Velocity Mode at 60 km/h", f.loop.HUD().Notice())

	f.step(t)
	v, err := f.world.Velocity(f.player())
	require.NoError(t, err)
	assert.InDelta(t, ConstantVelocityKMH, geom.KMH(v.Length()), 1)
}

func TestStartFriction(t *testing.T) {
	tests := []struct {
		name     string
		friction float64
		expected float64
	}{
		{"zero reaches the wheels", 0, 0},
		{"default is left alone", DefaultFriction, headless.DefaultTireFriction},
		{"icy", 0.8, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			friction := tt.friction
			f := newFixture(t, Options{Friction: &friction})

			pc, err := f.world.PhysicsControl(f.player())
			require.NoError(t, err)
			require.NotEmpty(t, pc.Wheels)
			for i, wheel := range pc.Wheels {
				assert.Equal(t, tt.expected, wheel.TireFriction, "wheel %d", i)
			}
		})
	}
}

func TestStartFailsWithoutMatchingBlueprint(t *testing.T) {
	w := newCountingWorld()
	defer w.Close()

	_, err := Start(context.Background(), w, &fakeRenderer{}, fakeClock{delta: frameTime}, nil,
		Options{Width: 120, Height: 40, World: WorldOptions{Filter: "walker.*", Seed: 1}}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vehicle blueprint matches")
	assert.Empty(t, w.Actors())
}

func TestHeldSliderPushesWeatherEveryFrame(t *testing.T) {
	f := newFixture(t, Options{})
	s := f.loop.HUD().Slider(SliderSnowAmount)
	require.NotNil(t, s)

	const held = 12
	f.step(t, Event{Kind: EventMouseDown, X: s.X + s.Width - 1, Y: s.Y})
	for i := 1; i < held; i++ {
		f.step(t)
	}
	assert.Equal(t, held, f.world.weatherPushes)
	assert.Equal(t, held, f.weatherEvents())
	assert.Equal(t, 100.0, f.world.Weather().SnowAmount)
	assert.Equal(t, WeatherPresets()[0].Weather.Temperature, f.world.Weather().Temperature,
		"other sliders keep the preset values")

	f.step(t, Event{Kind: EventMouseUp, X: s.X, Y: s.Y})
	for i := 0; i < 5; i++ {
		f.step(t)
	}
	assert.Equal(t, held, f.world.weatherPushes, "no pushes after release")
	assert.False(t, f.loop.HUD().Dragging())

	frames := held + 6
	assert.Equal(t, frames, f.renderer.flips)
	assert.Equal(t, frames, f.renderer.scenes)
	assert.Equal(t, frames*len(f.loop.HUD().Sliders), f.renderer.sliders)
	assert.Equal(t, uint64(frames), f.loop.Frames())
}

func TestSliderDragFollowsPointer(t *testing.T) {
	f := newFixture(t, Options{})
	s := f.loop.HUD().Slider(SliderFogDensity)

	f.step(t, Event{Kind: EventMouseDown, X: s.X, Y: s.Y})
	assert.Equal(t, 0.0, f.world.Weather().FogDensity)

	f.step(t, Event{Kind: EventMouseMotion, X: s.X + s.Width - 1, Y: s.Y + 3})
	assert.Equal(t, 100.0, f.world.Weather().FogDensity, "dragging keeps hold off the track")
	assert.Equal(t, 2, f.world.weatherPushes)
}

func TestSliderIgnoredWhenHUDHidden(t *testing.T) {
	f := newFixture(t, Options{})
	s := f.loop.HUD().Slider(SliderWind)

	f.step(t, KeyPress(KeyF1, 0))
	assert.False(t, f.loop.HUD().Visible)
	slidersDrawn := f.renderer.sliders

	f.step(t, Event{Kind: EventMouseDown, X: s.X, Y: s.Y})
	f.step(t)
	assert.False(t, f.loop.HUD().Dragging())
	assert.Equal(t, 0, f.world.weatherPushes)
	assert.Equal(t, slidersDrawn, f.renderer.sliders, "hidden HUD draws no sliders")
}

func TestMouseDownOffSliderDoesNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.step(t, Event{Kind: EventMouseDown, X: 1, Y: 1})
	f.step(t)
	assert.Equal(t, 0, f.world.weatherPushes)
}

func TestWeatherPushSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.publisher.SetError(errors.New("redis down"))

	f.step(t, KeyPress("c", 0))
	assert.Equal(t, 1, f.world.weatherPushes)
	assert.Equal(t, "Cold Clear Morning", f.loop.World().Preset.Name)
}

func TestQuit(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{"escape", KeyPress(KeyEsc, 0)},
		{"ctrl+q", KeyPress("q", ModCtrl)},
		{"window closed", Event{Kind: EventQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			assert.True(t, f.step(t, tt.event))
			assert.Equal(t, 0, f.renderer.flips, "a quitting frame is not drawn")
		})
	}
}

func TestCollisionAndLaneNotifications(t *testing.T) {
	f := newFixture(t, Options{})
	at, err := f.world.Transform(f.player())
	require.NoError(t, err)

	npc, err := f.world.Spawn(sim.SpawnRequest{
		Blueprint: "vehicle.nissan.patrol",
		Transform: geom.Transform{Location: geom.Location{X: -500, Y: 500}},
	})
	require.NoError(t, err)
	require.NoError(t, f.world.SetTransform(npc, at))

	f.step(t)
	assert.Equal(t, `Collision with "Nissan Patrol"`, f.loop.HUD().Notice())
	assert.Equal(t, 1, f.loop.World().Collision.Count())
	info := strings.Join(f.loop.HUD().Info(), "\n")
	assert.Contains(t, info, "Nearby vehicles:")
	assert.Contains(t, info, "Nissan Patrol")

	require.NoError(t, f.world.Destroy(npc))
	at.Location.Y = 3
	require.NoError(t, f.world.SetTransform(f.player(), at))
	f.step(t)
	assert.Equal(t, "Crossed line 'Broken'", f.loop.HUD().Notice())
}

func TestTelemetry(t *testing.T) {
	f := newFixture(t, Options{})
	f.step(t)

	info := strings.Join(f.loop.HUD().Info(), "\n")
	assert.Contains(t, info, "Muonio")
	assert.Contains(t, info, "Clear Noon")
	assert.Contains(t, info, "Speed:")
	assert.Contains(t, info, "Gear:")
	assert.InDelta(t, 1/headless.DefaultMapSpec().FixedDelta, f.loop.HUD().ServerFPS(), 1e-6)
}

func TestRunUntilQuit(t *testing.T) {
	f := newFixture(t, Options{})
	src := &scriptedSource{frames: [][]Event{nil, {KeyPress("w", 0)}, nil}}

	require.NoError(t, f.loop.Run(context.Background(), src))
	assert.Equal(t, uint64(3), f.loop.Frames())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.loop.Run(ctx, &scriptedSource{}))
	assert.Equal(t, uint64(0), f.loop.Frames())
}

func TestRunReturnsFrameError(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.world.Close())

	err := f.loop.Run(context.Background(), &scriptedSource{frames: [][]Event{nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 0")
	assert.Contains(t, err.Error(), "world is closed")
}

func TestCloseRemovesEverything(t *testing.T) {
	f := newFixture(t, Options{})
	f.step(t, KeyPress("g", 0))
	require.True(t, f.loop.World().RadarEnabled())

	require.NoError(t, f.loop.Close())
	assert.Empty(t, f.world.Actors())
}

func TestSparkline(t *testing.T) {
	values := make([]float64, 20)
	values[15] = 5
	assert.Equal(t, " █", sparkline(values))
	assert.Equal(t, "", sparkline(nil))
}

func TestGearLabel(t *testing.T) {
	assert.Equal(t, "R", gearLabel(sim.VehicleControl{Reverse: true, Gear: 1}))
	assert.Equal(t, "R", gearLabel(sim.VehicleControl{Gear: -1}))
	assert.Equal(t, "N", gearLabel(sim.VehicleControl{}))
	assert.Equal(t, "3", gearLabel(sim.VehicleControl{Gear: 3}))
}
