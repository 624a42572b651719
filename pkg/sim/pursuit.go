package sim

import (
	"math"

	"github.com/wintersim/muonio/pkg/geom"
)

// Pursuit gains. Steering aims at a lane waypoint ahead of the vehicle.
const (
	pursuitMinLookahead = 5.0
	pursuitLookaheadK   = 0.8
	pursuitSteerRange   = 35.0 // degrees of heading error mapped to full lock
	speedGain           = 0.5
	maxPursuitThrottle  = 0.75
)

// PursuitControl computes the control that keeps a vehicle at transform t on
// its lane at targetSpeed (m/s). speed is the vehicle's current forward speed.
// At the end of the road it brakes fully.
func PursuitControl(m Map, t geom.Transform, speed, targetSpeed float64) (VehicleControl, error) {
	wp, err := m.Waypoint(t.Location)
	if err != nil {
		return VehicleControl{Brake: 1}, err
	}

	lookahead := math.Max(pursuitMinLookahead, math.Abs(speed)*pursuitLookaheadK)
	ahead := m.Next(wp, lookahead)
	if len(ahead) == 0 {
		return VehicleControl{Brake: 1}, nil
	}
	target := ahead[len(ahead)-1].Transform.Location

	bearing := math.Atan2(target.Y-t.Location.Y, target.X-t.Location.X) * 180 / math.Pi
	headingErr := geom.NormalizeYaw(bearing - t.Rotation.Yaw)

	c := SpeedControl(speed, targetSpeed)
	c.Steer = clamp(headingErr/pursuitSteerRange, -1, 1)
	return c, nil
}

// SpeedControl is a proportional throttle/brake controller toward targetSpeed.
// A zero target always brakes fully.
func SpeedControl(speed, targetSpeed float64) VehicleControl {
	if targetSpeed <= 0 {
		return VehicleControl{Brake: 1}
	}
	diff := targetSpeed - speed
	if diff >= 0 {
		return VehicleControl{Throttle: clamp(diff*speedGain, 0, maxPursuitThrottle)}
	}
	if diff < -0.5 {
		return VehicleControl{Brake: clamp(-diff*speedGain, 0, 1)}
	}
	return VehicleControl{}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
