package control

import (
	"fmt"
	"math"
	"time"

	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
)

// Sensor blueprints.
const (
	collisionBlueprint     = "sensor.other.collision"
	laneInvasionBlueprint  = "sensor.other.lane_invasion"
	gnssBlueprint          = "sensor.other.gnss"
	imuBlueprint           = "sensor.other.imu"
	radarBlueprint         = "sensor.other.radar"
	collisionHistoryLength = 4000
	laneHalfWidth          = 1.75
)

func spawnSensor(w sim.World, blueprint string, parent sim.ActorID, at geom.Transform) (sim.ActorID, error) {
	id, err := w.Spawn(sim.SpawnRequest{Blueprint: blueprint, Transform: at, Parent: parent})
	if err != nil {
		return 0, fmt.Errorf("failed to spawn %s: %w", blueprint, err)
	}
	return id, nil
}

// CollisionSample is one collision as shown in the HUD history.
type CollisionSample struct {
	Frame     uint64
	Intensity float64
}

// CollisionSensor turns the simulator's collision events for the player into
// HUD notifications and a history.
type CollisionSensor struct {
	world   sim.World
	hud     *HUD
	actor   sim.ActorID
	parent  sim.ActorID
	seen    int
	history []CollisionSample
}

func NewCollisionSensor(w sim.World, parent sim.ActorID, hud *HUD) (*CollisionSensor, error) {
	id, err := spawnSensor(w, collisionBlueprint, parent, geom.Transform{})
	if err != nil {
		return nil, err
	}
	return &CollisionSensor{
		world:  w,
		hud:    hud,
		actor:  id,
		parent: parent,
		seen:   len(w.Collisions(parent)),
	}, nil
}

func (s *CollisionSensor) Tick() {
	events := s.world.Collisions(s.parent)
	if s.seen > len(events) {
		s.seen = len(events)
	}
	for _, e := range events[s.seen:] {
		s.hud.Notification(fmt.Sprintf("Collision with %q", sim.DisplayName(e.OtherType, 0)))
		s.history = append(s.history, CollisionSample{Frame: e.Frame, Intensity: e.Intensity})
	}
	s.seen = len(events)
	if len(s.history) > collisionHistoryLength {
		s.history = s.history[len(s.history)-collisionHistoryLength:]
	}
}

// Recent sums collision intensity per frame over the last window frames up
// to frame, oldest first.
func (s *CollisionSensor) Recent(frame uint64, window int) []float64 {
	out := make([]float64, window)
	for _, c := range s.history {
		if c.Frame > frame || frame-c.Frame >= uint64(window) {
			continue
		}
		out[window-1-int(frame-c.Frame)] += c.Intensity
	}
	return out
}

// Count is the number of collisions seen.
func (s *CollisionSensor) Count() int { return len(s.history) }

// LaneInvasionSensor notifies when the player leaves its lane.
type LaneInvasionSensor struct {
	world   sim.World
	hud     *HUD
	actor   sim.ActorID
	parent  sim.ActorID
	outside bool
}

func NewLaneInvasionSensor(w sim.World, parent sim.ActorID, hud *HUD) (*LaneInvasionSensor, error) {
	id, err := spawnSensor(w, laneInvasionBlueprint, parent, geom.Transform{})
	if err != nil {
		return nil, err
	}
	return &LaneInvasionSensor{world: w, hud: hud, actor: id, parent: parent}, nil
}

func (s *LaneInvasionSensor) Tick() {
	t, err := s.world.Transform(s.parent)
	if err != nil {
		return
	}
	wp, err := s.world.Map().Waypoint(t.Location)
	if err != nil {
		return
	}
	outside := t.Location.Distance2D(wp.Transform.Location) > laneHalfWidth
	if outside && !s.outside {
		s.hud.Notification("Crossed line 'Broken'")
	}
	s.outside = outside
}

// GnssSensor reports the player's latitude and longitude.
type GnssSensor struct {
	world    sim.World
	actor    sim.ActorID
	Lat, Lon float64
}

func NewGnssSensor(w sim.World, parent sim.ActorID) (*GnssSensor, error) {
	id, err := spawnSensor(w, gnssBlueprint, parent, geom.Transform{Location: geom.Location{X: 1, Z: 2.8}})
	if err != nil {
		return nil, err
	}
	return &GnssSensor{world: w, actor: id}, nil
}

func (s *GnssSensor) Tick() {
	t, err := s.world.Transform(s.actor)
	if err != nil {
		return
	}
	s.Lat, s.Lon = sim.ToGeo(s.world.Map().GeoReference(), t.Location)
}

// IMUSensor derives acceleration, yaw rate and compass from the player's
// motion.
type IMUSensor struct {
	world         sim.World
	actor         sim.ActorID
	parent        sim.ActorID
	lastVelocity  geom.Vector3D
	lastYaw       float64
	primed        bool
	Accelerometer geom.Vector3D // m/s²
	Gyroscope     geom.Vector3D // rad/s
	Compass       float64       // degrees in [0, 360)
}

func NewIMUSensor(w sim.World, parent sim.ActorID) (*IMUSensor, error) {
	id, err := spawnSensor(w, imuBlueprint, parent, geom.Transform{})
	if err != nil {
		return nil, err
	}
	return &IMUSensor{world: w, actor: id, parent: parent}, nil
}

// Tick samples the parent's motion over dt of simulated time.
func (s *IMUSensor) Tick(dt time.Duration) {
	v, err := s.world.Velocity(s.parent)
	if err != nil {
		return
	}
	t, err := s.world.Transform(s.parent)
	if err != nil {
		return
	}
	yaw := t.Rotation.Yaw
	if s.primed && dt > 0 {
		sec := dt.Seconds()
		s.Accelerometer = geom.Vector3D{
			X: (v.X - s.lastVelocity.X) / sec,
			Y: (v.Y - s.lastVelocity.Y) / sec,
			Z: (v.Z - s.lastVelocity.Z) / sec,
		}
		s.Gyroscope = geom.Vector3D{Z: geom.Radians(geom.NormalizeYaw(yaw-s.lastYaw)) / sec}
	}
	s.lastVelocity, s.lastYaw, s.primed = v, yaw, true
	s.Compass = math.Mod(yaw+360, 360)
}
