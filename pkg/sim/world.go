package sim

import (
	"errors"

	"github.com/wintersim/muonio/pkg/geom"
)

var (
	ErrActorNotFound  = errors.New("actor not found")
	ErrSpawnCollision = errors.New("spawn failed because of collision at spawn position")
	ErrNoWaypoint     = errors.New("no waypoint near location")
	ErrUnknownBackend = errors.New("unknown simulator backend")
	ErrNotVehicle     = errors.New("actor is not a vehicle")
)

// World is the simulator handle consumed by scenarios and the control loop.
// A World is owned by a single client for the duration of a run.
type World interface {
	// Spawn creates an actor. Returns ErrSpawnCollision when the pose is occupied.
	Spawn(req SpawnRequest) (ActorID, error)

	// Destroy removes an actor and every actor attached to it.
	// Returns ErrActorNotFound if it is already gone.
	Destroy(id ActorID) error

	Actor(id ActorID) (Actor, error)
	Actors() []Actor

	Transform(id ActorID) (geom.Transform, error)
	SetTransform(id ActorID, t geom.Transform) error
	SetSimulatePhysics(id ActorID, enabled bool) error
	Velocity(id ActorID) (geom.Vector3D, error)
	SetTargetVelocity(id ActorID, v geom.Vector3D) error

	ApplyControl(id ActorID, c VehicleControl) error
	Control(id ActorID) (VehicleControl, error)
	SetAutopilot(id ActorID, enabled bool) error

	LightState(id ActorID) (LightState, error)
	SetLightState(id ActorID, s LightState) error

	PhysicsControl(id ActorID) (PhysicsControl, error)
	ApplyPhysicsControl(id ActorID, pc PhysicsControl) error

	Weather() Weather
	SetWeather(w Weather) error

	Map() Map

	// Collisions returns every collision the actor has been part of, oldest first.
	Collisions(id ActorID) []CollisionEvent

	// Tick advances the simulation by one step.
	Tick() (Snapshot, error)

	Close() error
}

// Map answers road-network queries.
type Map interface {
	Name() string

	// Waypoint returns the lane waypoint nearest to loc.
	Waypoint(loc geom.Location) (Waypoint, error)

	// Next returns the waypoints reached by travelling distance meters along
	// the lane. Empty at the end of the road.
	Next(wp Waypoint, distance float64) []Waypoint

	SpawnPoints() []geom.Transform
	GeoReference() GeoReference
}

// DeferredSpawner is implemented by worlds that can hold an actor out of the
// simulation (no physics, no collisions, not rendered) until activated.
type DeferredSpawner interface {
	SpawnDormant(req SpawnRequest) (ActorID, error)
	Activate(id ActorID) error
}
