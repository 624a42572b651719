// Package headless is an in-process kinematic simulator. It serves the
// sim.World contract without a rendering server and is registered as the
// "headless" backend.
package headless

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

const (
	// BackendName is the name the world registers under.
	BackendName = "headless"

	// DefaultTireFriction is the friction of a freshly spawned vehicle's wheels.
	DefaultTireFriction = 3.5

	// AutopilotSpeed is the cruise speed of autopilot vehicles, in m/s.
	AutopilotSpeed = 10.0

	vehicleRadius  = 2.0
	vehicleMass    = 1800.0
	wheelBase      = 2.9
	maxSteerAngle  = 35.0 // degrees
	maxAccel       = 4.0  // m/s² at full throttle
	maxBrakeDecel  = 9.0  // m/s² at full brake
	handBrakeDecel = 6.0
	rollingDecel   = 0.2
	dragCoeff      = 0.0005
	maxSpeed       = 60.0
	minFollowGap   = 8.0
)

func init() {
	sim.Register(BackendName, dial)
}

func dial(ctx context.Context, ep sim.Endpoint, logger *slog.Logger) (sim.World, error) {
	spec := DefaultMapSpec()
	if path := ep.Options["map"]; path != "" {
		var err error
		if spec, err = LoadMapSpec(path); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(spec, logger), nil
}

type body struct {
	actor     sim.Actor
	transform geom.Transform
	relative  geom.Transform // offset from the parent for attached actors
	speed     float64        // signed, along the heading
	physics   bool
	control   sim.VehicleControl
	autopilot bool
	lights    sim.LightState
	pc        sim.PhysicsControl
}

type contact struct{ a, b sim.ActorID }

// World is the headless implementation of sim.World.
type World struct {
	mu         sync.Mutex
	roads      *roadMap
	logger     *slog.Logger
	nextID     sim.ActorID
	bodies     map[sim.ActorID]*body
	weather    sim.Weather
	frame      uint64
	elapsed    float64
	collisions map[sim.ActorID][]sim.CollisionEvent
	contacts   map[contact]bool
	closed     bool
}

var (
	_ sim.World           = (*World)(nil)
	_ sim.DeferredSpawner = (*World)(nil)
)

// New creates a world for the given map.
func New(spec MapSpec, logger *slog.Logger) *World {
	return &World{
		roads:      &roadMap{spec: spec},
		logger:     logger,
		bodies:     make(map[sim.ActorID]*body),
		weather:    spec.Weather,
		collisions: make(map[sim.ActorID][]sim.CollisionEvent),
		contacts:   make(map[contact]bool),
	}
}

// Spawn creates an actor. Vehicles may not overlap another active vehicle.
func (w *World) Spawn(req sim.SpawnRequest) (sim.ActorID, error) {
	return w.spawn(req, false)
}

// SpawnDormant creates an actor that takes no part in the simulation until
// Activate is called.
func (w *World) SpawnDormant(req sim.SpawnRequest) (sim.ActorID, error) {
	return w.spawn(req, true)
}

// Activate brings a dormant actor into the simulation with physics enabled.
func (w *World) Activate(id sim.ActorID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.get(id)
	if err != nil {
		return err
	}
	b.actor.Dormant = false
	b.physics = true
	w.logger.Debug("Actor activated", "actor_id", id, "type_id", b.actor.TypeID)
	return nil
}

func (w *World) spawn(req sim.SpawnRequest, dormant bool) (sim.ActorID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if req.Blueprint == "" {
		return 0, errors.New("blueprint is required")
	}

	b := &body{
		actor: sim.Actor{
			TypeID:   req.Blueprint,
			RoleName: req.RoleName,
			Parent:   req.Parent,
			Dormant:  dormant,
		},
		transform: req.Transform,
		physics:   !dormant,
	}

	if req.Parent != 0 {
		parent, err := w.get(req.Parent)
		if err != nil {
			return 0, fmt.Errorf("spawn %s: parent: %w", req.Blueprint, err)
		}
		b.relative = req.Transform
		b.transform = attach(parent.transform, req.Transform)
		b.physics = false
	}

	if b.actor.IsVehicle() {
		if !dormant {
			if other, hit := w.overlapping(b.transform.Location, 0); hit {
				return 0, fmt.Errorf("%w: %s overlaps %s", sim.ErrSpawnCollision, req.Blueprint, other)
			}
		}
		b.pc = defaultPhysics()
	}

	w.nextID++
	b.actor.ID = w.nextID
	w.bodies[b.actor.ID] = b

	w.logger.Debug("Actor spawned",
		"actor_id", b.actor.ID,
		"type_id", req.Blueprint,
		"role_name", req.RoleName,
		"dormant", dormant)
	return b.actor.ID, nil
}

// Destroy removes the actor and everything attached to it.
func (w *World) Destroy(id sim.ActorID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.get(id); err != nil {
		return err
	}
	for _, child := range w.sortedIDs() {
		if w.bodies[child].actor.Parent == id {
			delete(w.bodies, child)
		}
	}
	delete(w.bodies, id)
	for c := range w.contacts {
		if c.a == id || c.b == id {
			delete(w.contacts, c)
		}
	}
	w.logger.Debug("Actor destroyed", "actor_id", id)
	return nil
}

func (w *World) Actor(id sim.ActorID) (sim.Actor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.get(id)
	if err != nil {
		return sim.Actor{}, err
	}
	return b.actor, nil
}

func (w *World) Actors() []sim.Actor {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := w.sortedIDs()
	actors := make([]sim.Actor, 0, len(ids))
	for _, id := range ids {
		actors = append(actors, w.bodies[id].actor)
	}
	return actors
}

func (w *World) Transform(id sim.ActorID) (geom.Transform, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.get(id)
	if err != nil {
		return geom.Transform{}, err
	}
	return b.transform, nil
}

func (w *World) SetTransform(id sim.ActorID, t geom.Transform) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.get(id)
	if err != nil {
		return err
	}
	b.transform = t
	return nil
}

func (w *World) SetSimulatePhysics(id sim.ActorID, enabled bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.get(id)
	if err != nil {
		return err
	}
	b.physics = enabled
	if !enabled {
		b.speed = 0
	}
	return nil
}

func (w *World) Velocity(id sim.ActorID) (geom.Vector3D, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.get(id)
	if err != nil {
		return geom.Vector3D{}, err
	}
	if b.actor.Parent != 0 {
		if parent, ok := w.bodies[b.actor.Parent]; ok {
			b = parent
		}
	}
	return b.transform.Forward().Scale(b.speed), nil
}

// SetTargetVelocity sets the vehicle's speed to the component of v along its heading.
func (w *World) SetTargetVelocity(id sim.ActorID, v geom.Vector3D) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return err
	}
	f := b.transform.Forward()
	b.speed = v.X*f.X + v.Y*f.Y + v.Z*f.Z
	return nil
}

func (w *World) ApplyControl(id sim.ActorID, c sim.VehicleControl) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return err
	}
	b.control = c
	return nil
}

func (w *World) Control(id sim.ActorID) (sim.VehicleControl, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return sim.VehicleControl{}, err
	}
	return b.control, nil
}

func (w *World) SetAutopilot(id sim.ActorID, enabled bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return err
	}
	b.autopilot = enabled
	return nil
}

func (w *World) LightState(id sim.ActorID) (sim.LightState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return 0, err
	}
	return b.lights, nil
}

func (w *World) SetLightState(id sim.ActorID, s sim.LightState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return err
	}
	b.lights = s
	return nil
}

func (w *World) PhysicsControl(id sim.ActorID) (sim.PhysicsControl, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return sim.PhysicsControl{}, err
	}
	pc := b.pc
	pc.Wheels = append([]sim.WheelPhysics(nil), b.pc.Wheels...)
	return pc, nil
}

func (w *World) ApplyPhysicsControl(id sim.ActorID, pc sim.PhysicsControl) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, err := w.vehicle(id)
	if err != nil {
		return err
	}
	if len(pc.Wheels) == 0 {
		return errors.New("physics control needs at least one wheel")
	}
	b.pc = pc
	b.pc.Wheels = append([]sim.WheelPhysics(nil), pc.Wheels...)
	return nil
}

func (w *World) Weather() sim.Weather {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weather
}

func (w *World) SetWeather(weather sim.Weather) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.weather = weather
	return nil
}

func (w *World) Map() sim.Map {
	return w.roads
}

func (w *World) Collisions(id sim.ActorID) []sim.CollisionEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]sim.CollisionEvent(nil), w.collisions[id]...)
}

// Tick advances the world by the map's fixed delta.
func (w *World) Tick() (sim.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return sim.Snapshot{}, errors.New("world is closed")
	}

	dt := w.roads.spec.FixedDelta
	w.frame++
	w.elapsed += dt

	ids := w.sortedIDs()
	for _, id := range ids {
		b := w.bodies[id]
		if !b.actor.IsVehicle() || b.actor.Dormant || !b.physics {
			continue
		}
		if b.autopilot {
			b.control = w.autopilotControl(b)
		}
		step(b, dt)
	}
	for _, id := range ids {
		b := w.bodies[id]
		if b.actor.Parent == 0 {
			continue
		}
		if parent, ok := w.bodies[b.actor.Parent]; ok {
			b.transform = attach(parent.transform, b.relative)
		}
	}
	w.detectCollisions(ids)

	return sim.Snapshot{Frame: w.frame, Elapsed: w.elapsed, Delta: dt}, nil
}

func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.logger.Debug("Headless world closed", "frames", w.frame, "actors_left", len(w.bodies))
	return nil
}

func (w *World) get(id sim.ActorID) (*body, error) {
	b, ok := w.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sim.ErrActorNotFound, id)
	}
	return b, nil
}

func (w *World) vehicle(id sim.ActorID) (*body, error) {
	b, err := w.get(id)
	if err != nil {
		return nil, err
	}
	if !b.actor.IsVehicle() {
		return nil, fmt.Errorf("%w: %s is %s", sim.ErrNotVehicle, id, b.actor.TypeID)
	}
	return b, nil
}

func (w *World) sortedIDs() []sim.ActorID {
	ids := make([]sim.ActorID, 0, len(w.bodies))
	for id := range w.bodies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// overlapping reports the first active vehicle (other than skip) whose
// footprint overlaps a vehicle at loc.
func (w *World) overlapping(loc geom.Location, skip sim.ActorID) (sim.ActorID, bool) {
	for _, id := range w.sortedIDs() {
		b := w.bodies[id]
		if id == skip || !b.actor.IsVehicle() || b.actor.Dormant {
			continue
		}
		if touching(b.transform.Location, loc) {
			return id, true
		}
	}
	return 0, false
}

func (w *World) detectCollisions(ids []sim.ActorID) {
	for i, a := range ids {
		ba := w.bodies[a]
		if !ba.actor.IsVehicle() || ba.actor.Dormant {
			continue
		}
		for _, b := range ids[i+1:] {
			bb := w.bodies[b]
			if !bb.actor.IsVehicle() || bb.actor.Dormant {
				continue
			}
			key := contact{a, b}
			if !touching(ba.transform.Location, bb.transform.Location) {
				delete(w.contacts, key)
				continue
			}
			if w.contacts[key] {
				continue
			}
			w.contacts[key] = true
			intensity := math.Abs(ba.speed-bb.speed) * vehicleMass
			w.collisions[a] = append(w.collisions[a], sim.CollisionEvent{
				Frame: w.frame, Actor: a, Other: b, OtherType: bb.actor.TypeID, Intensity: intensity,
			})
			w.collisions[b] = append(w.collisions[b], sim.CollisionEvent{
				Frame: w.frame, Actor: b, Other: a, OtherType: ba.actor.TypeID, Intensity: intensity,
			})
			w.logger.Debug("Collision", "frame", w.frame, "actor_a", a, "actor_b", b, "intensity", intensity)
		}
	}
}

// autopilotControl keeps the lane at AutopilotSpeed and holds a braking gap
// behind the nearest vehicle ahead.
func (w *World) autopilotControl(b *body) sim.VehicleControl {
	target := AutopilotSpeed
	if gap, ok := w.gapAhead(b); ok {
		safe := minFollowGap + b.speed*b.speed/(2*maxBrakeDecel*grip(b.pc))
		if gap < safe {
			target = 0
		}
	}
	c, err := sim.PursuitControl(w.roads, b.transform, b.speed, target)
	if err != nil {
		return sim.VehicleControl{Brake: 1}
	}
	return c
}

func (w *World) gapAhead(b *body) (float64, bool) {
	f := b.transform.Forward()
	best, found := math.Inf(1), false
	for _, other := range w.bodies {
		if other == b || !other.actor.IsVehicle() || other.actor.Dormant {
			continue
		}
		dx := other.transform.Location.X - b.transform.Location.X
		dy := other.transform.Location.Y - b.transform.Location.Y
		along := dx*f.X + dy*f.Y
		lateral := math.Abs(-dx*f.Y + dy*f.X)
		if along <= 0 || lateral > w.roads.spec.LaneWidth ||
			math.Abs(other.transform.Location.Z-b.transform.Location.Z) > 3 {
			continue
		}
		if along < best {
			best, found = along, true
		}
	}
	return best, found
}

// step integrates one vehicle over dt.
func step(b *body, dt float64) {
	c := b.control
	g := grip(b.pc)

	dir := 1.0
	if c.Reverse {
		dir = -1
	}
	v := b.speed + dir*c.Throttle*maxAccel*g*dt

	resist := rollingDecel + dragCoeff*v*v + c.Brake*maxBrakeDecel*g
	if c.HandBrake {
		resist += handBrakeDecel * g
	}
	if dv := resist * dt; math.Abs(v) <= dv {
		v = 0
	} else {
		v -= math.Copysign(dv, v)
	}
	v = math.Max(-maxSpeed, math.Min(maxSpeed, v))
	b.speed = v

	steer := math.Max(-1, math.Min(1, c.Steer)) * geom.Radians(maxSteerAngle)
	yawRate := v / wheelBase * math.Tan(steer)
	b.transform.Rotation.Yaw = geom.NormalizeYaw(b.transform.Rotation.Yaw + yawRate*dt*180/math.Pi)

	f := b.transform.Forward()
	b.transform.Location.X += f.X * v * dt
	b.transform.Location.Y += f.Y * v * dt

	if c.Brake > 0 {
		b.lights |= sim.LightBrake
	} else {
		b.lights &^= sim.LightBrake
	}
	if c.Reverse {
		b.lights |= sim.LightReverse
	} else {
		b.lights &^= sim.LightReverse
	}
}

// grip scales accelerations by the mean tire friction.
func grip(pc sim.PhysicsControl) float64 {
	if len(pc.Wheels) == 0 {
		return 1
	}
	total := 0.0
	for _, wh := range pc.Wheels {
		total += wh.TireFriction
	}
	return math.Max(0.05, math.Min(1, total/float64(len(pc.Wheels))/DefaultTireFriction))
}

func touching(a, b geom.Location) bool {
	return a.Distance2D(b) < 2*vehicleRadius && math.Abs(a.Z-b.Z) < 3
}

func attach(parent, rel geom.Transform) geom.Transform {
	yaw := geom.Radians(parent.Rotation.Yaw)
	cos, sin := math.Cos(yaw), math.Sin(yaw)
	return geom.Transform{
		Location: geom.Location{
			X: parent.Location.X + rel.Location.X*cos - rel.Location.Y*sin,
			Y: parent.Location.Y + rel.Location.X*sin + rel.Location.Y*cos,
			Z: parent.Location.Z + rel.Location.Z,
		},
		Rotation: geom.Rotation{
			Pitch: parent.Rotation.Pitch + rel.Rotation.Pitch,
			Yaw:   geom.NormalizeYaw(parent.Rotation.Yaw + rel.Rotation.Yaw),
			Roll:  parent.Rotation.Roll + rel.Rotation.Roll,
		},
	}
}

func defaultPhysics() sim.PhysicsControl {
	wheels := make([]sim.WheelPhysics, 4)
	for i := range wheels {
		wheels[i] = sim.WheelPhysics{
			TireFriction:   DefaultTireFriction,
			DampingRate:    0.25,
			MaxSteerAngle:  maxSteerAngle,
			Radius:         37,
			MaxBrakeTorque: 1500,
		}
	}
	return sim.PhysicsControl{Mass: vehicleMass, Wheels: wheels}
}
