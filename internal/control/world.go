package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"path"
	"sort"
	"time"

	"github.com/wintersim/muonio/internal/events"
	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

// VehicleBlueprints are the vehicles the player is drawn from.
var VehicleBlueprints = []string{
	"vehicle.audi.etron",
	"vehicle.lincoln.mkz_2017",
	"vehicle.nissan.patrol",
	"vehicle.tesla.model3",
	"vehicle.toyota.prius",
	"vehicle.volvo.xc90",
}

// Defaults of the control front-end.
const (
	DefaultRoleName      = "hero"
	DefaultFilter        = "vehicle.*"
	DefaultFriction      = 2.0
	ConstantVelocityKMH  = 60.0
	nearbyVehicleRange   = 200.0
	collisionGraphFrames = 200
)

// WorldOptions configures the control-side world.
type WorldOptions struct {
	RoleName string
	Filter   string // glob over VehicleBlueprints
	Seed     uint64 // zero draws a seed
}

// World is the per-run state the control loop mutates each frame: the player
// vehicle, its sensors and camera, the selected weather and the HUD.
type World struct {
	ctx       context.Context
	sim       sim.World
	hud       *HUD
	log       *slog.Logger
	publisher events.Publisher
	rng       *rand.Rand
	roleName  string
	filter    string

	Player       sim.ActorID
	PlayerType   string
	hasPlayer    bool
	Camera       *CameraManager
	Collision    *CollisionSensor
	LaneInvasion *LaneInvasionSensor
	Gnss         *GnssSensor
	IMU          *IMUSensor
	radar        sim.ActorID
	radarOn      bool

	presets     []Preset
	presetIndex int
	Preset      Preset

	ConstantVelocity bool
	RecordingEnabled bool
	snapshot         sim.Snapshot
	simDelta         time.Duration
}

// NewWorld spawns the player and its sensors in w.
func NewWorld(ctx context.Context, w sim.World, hud *HUD, publisher events.Publisher, opts WorldOptions, log *slog.Logger) (*World, error) {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if opts.RoleName == "" {
		opts.RoleName = DefaultRoleName
	}
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	world := &World{
		ctx:       ctx,
		sim:       w,
		hud:       hud,
		log:       log,
		publisher: publisher,
		rng:       rand.New(rand.NewPCG(seed, seed)),
		roleName:  opts.RoleName,
		filter:    opts.Filter,
		presets:   WeatherPresets(),
	}
	world.Preset = world.presets[0]
	if err := world.Restart(); err != nil {
		return nil, err
	}
	return world, nil
}

// Sim is the simulator handle.
func (w *World) Sim() sim.World { return w.sim }

// HUD is the world's HUD.
func (w *World) HUD() *HUD { return w.hud }

// Snapshot is the simulator clock after the last tick.
func (w *World) Snapshot() sim.Snapshot { return w.snapshot }

// RadarEnabled reports whether the radar is attached.
func (w *World) RadarEnabled() bool { return w.radarOn }

func (w *World) pickBlueprint() (string, error) {
	var matches []string
	for _, bp := range VehicleBlueprints {
		if ok, _ := path.Match(w.filter, bp); ok {
			matches = append(matches, bp)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no vehicle blueprint matches %q", w.filter)
	}
	return matches[w.rng.IntN(len(matches))], nil
}

// Restart replaces the player with a new random vehicle. An existing player
// is replaced in place, raised by 2 m and levelled; otherwise a random spawn
// point is used. The camera selection survives, the radar does not.
func (w *World) Restart() error {
	camIndex, camPos := 0, 0
	if w.Camera != nil {
		camIndex, camPos = w.Camera.Index(), w.Camera.TransformIndex()
	}

	bp, err := w.pickBlueprint()
	if err != nil {
		return err
	}

	var candidates []geom.Transform
	if w.hasPlayer {
		if t, err := w.sim.Transform(w.Player); err == nil {
			t.Location.Z += 2
			t.Rotation.Roll, t.Rotation.Pitch = 0, 0
			candidates = append(candidates, t)
		}
		if err := w.Destroy(); err != nil {
			w.log.Warn("Failed to clean up previous player", "error", err)
		}
	}
	points := w.sim.Map().SpawnPoints()
	for _, i := range w.rng.Perm(len(points)) {
		candidates = append(candidates, points[i])
	}

	var spawnErr error
	for _, t := range candidates {
		id, err := w.sim.Spawn(sim.SpawnRequest{Blueprint: bp, Transform: t, RoleName: w.roleName})
		if err == nil {
			w.Player, w.PlayerType, w.hasPlayer = id, bp, true
			spawnErr = nil
			break
		}
		spawnErr = err
	}
	if !w.hasPlayer {
		if spawnErr == nil {
			spawnErr = errors.New("map has no spawn points")
		}
		return fmt.Errorf("failed to spawn player %s: %w", bp, spawnErr)
	}

	if err := w.setupSensors(camIndex, camPos); err != nil {
		return err
	}
	w.hud.Notification(sim.DisplayName(bp, 0))
	w.log.Info("Player spawned", "actor_id", w.Player, "type_id", bp)
	return nil
}

func (w *World) setupSensors(camIndex, camPos int) error {
	var err error
	if w.Collision, err = NewCollisionSensor(w.sim, w.Player, w.hud); err != nil {
		return err
	}
	if w.LaneInvasion, err = NewLaneInvasionSensor(w.sim, w.Player, w.hud); err != nil {
		return err
	}
	if w.Gnss, err = NewGnssSensor(w.sim, w.Player); err != nil {
		return err
	}
	if w.IMU, err = NewIMUSensor(w.sim, w.Player); err != nil {
		return err
	}
	w.Camera = NewCameraManager(w.sim, w.Player, w.hud)
	w.Camera.transformIndex = camPos
	return w.Camera.SetSensor(camIndex, false, false)
}

// SelectPreset makes preset i current and moves the sliders to it. The
// weather itself is not pushed.
func (w *World) SelectPreset(i int) {
	n := len(w.presets)
	w.presetIndex = ((i % n) + n) % n
	w.Preset = w.presets[w.presetIndex]
	w.hud.UpdateSliders(w.Preset.Weather)
}

// NextWeather cycles to the next (or previous) preset and applies it.
func (w *World) NextWeather(reverse bool) error {
	step := 1
	if reverse {
		step = -1
	}
	w.SelectPreset(w.presetIndex + step)
	w.hud.Notification("Weather: " + w.Preset.Name)
	return w.PushWeather(w.Preset.Weather)
}

// PushWeather sends weather to the simulator and publishes it.
func (w *World) PushWeather(weather sim.Weather) error {
	if err := w.sim.SetWeather(weather); err != nil {
		return fmt.Errorf("failed to set weather: %w", err)
	}
	if err := w.publisher.PublishWeatherUpdated(w.ctx, weather); err != nil {
		w.log.Warn("Failed to publish weather update", "error", err)
	}
	return nil
}

// UpdateFrictionDirectly sets the tire friction of every wheel of the player.
func (w *World) UpdateFrictionDirectly(friction float64) error {
	pc, err := w.sim.PhysicsControl(w.Player)
	if err != nil {
		return fmt.Errorf("failed to read physics control: %w", err)
	}
	for i := range pc.Wheels {
		pc.Wheels[i].TireFriction = friction
	}
	if err := w.sim.ApplyPhysicsControl(w.Player, pc); err != nil {
		return fmt.Errorf("failed to apply friction %.2f: %w", friction, err)
	}
	w.hud.Notification(fmt.Sprintf("Friction: %.2f", friction))
	w.log.Info("Tire friction updated", "actor_id", w.Player, "friction", friction)
	return nil
}

// ToggleConstantVelocity switches constant velocity mode.
func (w *World) ToggleConstantVelocity() {
	w.ConstantVelocity = !w.ConstantVelocity
	if w.ConstantVelocity {
		w.hud.Notification(fmt.Sprintf("Enabled Constant Velocity Mode at %.0f km/h", ConstantVelocityKMH))
	} else {
		w.hud.Notification("Disabled Constant Velocity Mode")
	}
}

// ToggleRecorder switches recording of the simulation.
func (w *World) ToggleRecorder() {
	w.RecordingEnabled = !w.RecordingEnabled
	if w.RecordingEnabled {
		w.hud.Notification("Recorder is ON")
	} else {
		w.hud.Notification("Recorder is OFF")
	}
}

// ToggleRadar attaches or removes the radar.
func (w *World) ToggleRadar() error {
	if w.radarOn {
		w.radarOn = false
		if err := w.sim.Destroy(w.radar); err != nil && !isGone(err) {
			return fmt.Errorf("failed to destroy radar: %w", err)
		}
		return nil
	}
	id, err := spawnSensor(w.sim, radarBlueprint, w.Player, geom.Transform{Location: geom.Location{X: 2.8, Z: 1}, Rotation: geom.Rotation{Pitch: 5}})
	if err != nil {
		return err
	}
	w.radar, w.radarOn = id, true
	return nil
}

// Tick advances the simulator one step and refreshes sensors and HUD.
// delta is the wall-clock frame time.
func (w *World) Tick(clock Clock, delta time.Duration) error {
	if w.ConstantVelocity {
		if t, err := w.sim.Transform(w.Player); err == nil {
			v := t.Forward().Scale(ConstantVelocityKMH / 3.6)
			if err := w.sim.SetTargetVelocity(w.Player, v); err != nil {
				return fmt.Errorf("failed to hold constant velocity: %w", err)
			}
		}
	}

	snap, err := w.sim.Tick()
	if err != nil {
		return fmt.Errorf("world tick failed: %w", err)
	}
	w.snapshot = snap
	w.simDelta = time.Duration(snap.Delta * float64(time.Second))
	w.hud.onWorldTick(snap.Elapsed)

	w.Collision.Tick()
	w.LaneInvasion.Tick()
	w.Gnss.Tick()
	w.IMU.Tick(w.simDelta)

	w.hud.Tick(w, clock.FPS(), delta)
	return nil
}

// Destroy removes the camera, sensors and player.
func (w *World) Destroy() error {
	var errs []error
	if w.Camera != nil {
		errs = append(errs, w.Camera.Destroy())
	}
	ids := []sim.ActorID{}
	if w.radarOn {
		ids = append(ids, w.radar)
		w.radarOn = false
	}
	if w.Collision != nil {
		ids = append(ids, w.Collision.actor, w.LaneInvasion.actor, w.Gnss.actor, w.IMU.actor)
	}
	if w.hasPlayer {
		ids = append(ids, w.Player)
		w.hasPlayer = false
	}
	for _, id := range ids {
		if err := w.sim.Destroy(id); err != nil && !isGone(err) {
			errs = append(errs, fmt.Errorf("failed to destroy %s: %w", id, err))
		}
	}
	w.Camera, w.Collision, w.LaneInvasion, w.Gnss, w.IMU = nil, nil, nil, nil, nil
	return errors.Join(errs...)
}

func (w *World) telemetry(serverFPS, clientFPS float64) []string {
	if !w.hasPlayer {
		return nil
	}
	t, _ := w.sim.Transform(w.Player)
	v, _ := w.sim.Velocity(w.Player)
	c, _ := w.sim.Control(w.Player)
	loc := t.Location
	elapsed := time.Duration(w.snapshot.Elapsed * float64(time.Second)).Round(time.Second)

	lines := []string{
		fmt.Sprintf("Server:  % 16.0f FPS", serverFPS),
		fmt.Sprintf("Client:  % 16.0f FPS", clientFPS),
		"",
		fmt.Sprintf("Vehicle: % 20s", sim.DisplayName(w.PlayerType, 20)),
		fmt.Sprintf("Map:     % 20s", w.sim.Map().Name()),
		fmt.Sprintf("Simulation time: % 12s", elapsed),
		fmt.Sprintf("Weather: % 20s", w.Preset.Name),
		"",
		fmt.Sprintf("Speed:   % 15.0f km/h", geom.KMH(v.Length())),
		fmt.Sprintf("Compass:% 17.0f° % 2s", w.IMU.Compass, geom.Heading(t.Rotation.Yaw)),
		fmt.Sprintf("Accelero: (%5.1f,%5.1f,%5.1f)", w.IMU.Accelerometer.X, w.IMU.Accelerometer.Y, w.IMU.Accelerometer.Z),
		fmt.Sprintf("Gyroscop: (%5.1f,%5.1f,%5.1f)", w.IMU.Gyroscope.X, w.IMU.Gyroscope.Y, w.IMU.Gyroscope.Z),
		fmt.Sprintf("Location:% 20s", fmt.Sprintf("(% 5.1f, % 5.1f)", loc.X, loc.Y)),
		fmt.Sprintf("GNSS:% 24s", fmt.Sprintf("(% 2.6f, % 3.6f)", w.Gnss.Lat, w.Gnss.Lon)),
		fmt.Sprintf("Height:  % 18.0f m", loc.Z),
		fmt.Sprintf("Temperature: % 12.1f °C", w.sim.Weather().Temperature),
		"",
		fmt.Sprintf("Throttle: % 17.2f", c.Throttle),
		fmt.Sprintf("Steer:    % 17.2f", c.Steer),
		fmt.Sprintf("Brake:    % 17.2f", c.Brake),
		fmt.Sprintf("Reverse:  %17t", c.Reverse),
		fmt.Sprintf("Hand brake: %15t", c.HandBrake),
		fmt.Sprintf("Manual:   %17t", c.ManualGearShift),
		fmt.Sprintf("Gear:     % 17s", gearLabel(c)),
		"",
		fmt.Sprintf("Collisions: % 15d", w.Collision.Count()),
		fmt.Sprintf("Collision graph: %s", sparkline(w.Collision.Recent(w.snapshot.Frame, collisionGraphFrames))),
	}

	type nearby struct {
		dist float64
		name string
	}
	var vehicles []nearby
	count := 0
	for _, a := range w.sim.Actors() {
		if !a.IsVehicle() {
			continue
		}
		count++
		if a.ID == w.Player || a.Dormant {
			continue
		}
		at, err := w.sim.Transform(a.ID)
		if err != nil {
			continue
		}
		if d := at.Location.Distance(loc); d <= nearbyVehicleRange {
			vehicles = append(vehicles, nearby{d, sim.DisplayName(a.TypeID, 22)})
		}
	}
	lines = append(lines, fmt.Sprintf("Number of vehicles: % 8d", count))
	if len(vehicles) > 0 {
		lines = append(lines, "Nearby vehicles:")
		sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].dist < vehicles[j].dist })
		for _, n := range vehicles {
			lines = append(lines, fmt.Sprintf("% 4dm %s", int(n.dist), n.name))
		}
	}
	return lines
}

func gearLabel(c sim.VehicleControl) string {
	switch {
	case c.Reverse || c.Gear < 0:
		return "R"
	case c.Gear == 0:
		return "N"
	default:
		return fmt.Sprintf("%d", c.Gear)
	}
}

var sparkRunes = []rune(" ▁▂▃▄▅▆▇█")

// sparkline draws the maximum of every ten values as a block character
// scaled to the overall peak.
func sparkline(values []float64) string {
	peak := 1.0
	for _, v := range values {
		peak = math.Max(peak, v)
	}
	out := make([]rune, 0, len(values)/10+1)
	for i := 0; i < len(values); i += 10 {
		bucket := 0.0
		for _, v := range values[i:min(i+10, len(values))] {
			bucket = math.Max(bucket, v)
		}
		out = append(out, sparkRunes[int(bucket/peak*float64(len(sparkRunes)-1))])
	}
	return string(out)
}

func isGone(err error) bool {
	return errors.Is(err, sim.ErrActorNotFound)
}
