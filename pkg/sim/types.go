package sim

import (
	"fmt"
	"strings"

	"github.com/wintersim/muonio/pkg/geom"
)

// ActorID identifies an actor inside one world.
type ActorID uint32

func (id ActorID) String() string {
	return fmt.Sprintf("actor-%d", uint32(id))
}

// Actor describes a simulated entity (vehicle, sensor, walker).
type Actor struct {
	ID       ActorID `json:"id"`
	TypeID   string  `json:"type_id"`             // e.g. "vehicle.nissan.patrol"
	RoleName string  `json:"role_name,omitempty"` // e.g. "hero", "scenario"
	Parent   ActorID `json:"parent,omitempty"`    // zero when not attached
	Dormant  bool    `json:"dormant,omitempty"`   // spawned but not yet activated
}

// IsVehicle reports whether the actor's type id is in the vehicle namespace.
func (a Actor) IsVehicle() bool {
	return strings.HasPrefix(a.TypeID, "vehicle.")
}

// IsSensor reports whether the actor's type id is in the sensor namespace.
func (a Actor) IsSensor() bool {
	return strings.HasPrefix(a.TypeID, "sensor.")
}

// SpawnRequest asks the world for a new actor.
type SpawnRequest struct {
	Blueprint string
	Transform geom.Transform // relative to Parent when Parent is set
	Parent    ActorID
	RoleName  string
}

// VehicleControl is the driver input applied to a vehicle.
type VehicleControl struct {
	Throttle        float64 `json:"throttle"` // [0, 1]
	Steer           float64 `json:"steer"`    // [-1, 1]
	Brake           float64 `json:"brake"`    // [0, 1]
	HandBrake       bool    `json:"hand_brake"`
	Reverse         bool    `json:"reverse"`
	ManualGearShift bool    `json:"manual_gear_shift"`
	Gear            int     `json:"gear"`
}

// LightState is a bitmask of vehicle lights.
type LightState uint32

const LightNone LightState = 0

const (
	LightPosition LightState = 1 << iota
	LightLowBeam
	LightHighBeam
	LightBrake
	LightRightBlinker
	LightLeftBlinker
	LightReverse
	LightFog
	LightInterior
)

// Has reports whether every bit of flag is set.
func (s LightState) Has(flag LightState) bool {
	return s&flag == flag
}

// WheelPhysics describes a single wheel.
type WheelPhysics struct {
	TireFriction   float64 `json:"tire_friction"`
	DampingRate    float64 `json:"damping_rate"`
	MaxSteerAngle  float64 `json:"max_steer_angle"`
	Radius         float64 `json:"radius"`
	MaxBrakeTorque float64 `json:"max_brake_torque"`
}

// PhysicsControl is the tunable physics of a vehicle.
type PhysicsControl struct {
	Mass   float64        `json:"mass"`
	Wheels []WheelPhysics `json:"wheels"`
}

// Weather is the full set of weather parameters of a world.
type Weather struct {
	Cloudiness            float64 `json:"cloudiness" yaml:"cloudiness"`
	Precipitation         float64 `json:"precipitation" yaml:"precipitation"`
	PrecipitationDeposits float64 `json:"precipitation_deposits" yaml:"precipitation_deposits"`
	WindIntensity         float64 `json:"wind_intensity" yaml:"wind_intensity"`
	SunAzimuthAngle       float64 `json:"sun_azimuth_angle" yaml:"sun_azimuth_angle"`
	SunAltitudeAngle      float64 `json:"sun_altitude_angle" yaml:"sun_altitude_angle"`
	FogDensity            float64 `json:"fog_density" yaml:"fog_density"`
	FogDistance           float64 `json:"fog_distance" yaml:"fog_distance"`
	Wetness               float64 `json:"wetness" yaml:"wetness"`
	Temperature           float64 `json:"temperature" yaml:"temperature"`
	SnowAmount            float64 `json:"snow_amount" yaml:"snow_amount"`
	IceAmount             float64 `json:"ice_amount" yaml:"ice_amount"`
	ParticleSize          float64 `json:"particle_size" yaml:"particle_size"`
	Humidity              float64 `json:"humidity" yaml:"humidity"`
}

// Waypoint is a point on a lane center line.
type Waypoint struct {
	Transform  geom.Transform `json:"transform"`
	RoadID     int            `json:"road_id"`
	LaneID     int            `json:"lane_id"`
	S          float64        `json:"s"` // distance along the road
	IsJunction bool           `json:"is_junction"`
}

// CollisionEvent records one contact between an actor and something else.
type CollisionEvent struct {
	Frame     uint64  `json:"frame"`
	Actor     ActorID `json:"actor"`
	Other     ActorID `json:"other"`
	OtherType string  `json:"other_type"`
	Intensity float64 `json:"intensity"`
}

// Snapshot is the world clock after a tick.
type Snapshot struct {
	Frame   uint64  `json:"frame"`
	Elapsed float64 `json:"elapsed_seconds"`
	Delta   float64 `json:"delta_seconds"`
}

// GeoReference anchors world coordinates to latitude/longitude.
type GeoReference struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}
