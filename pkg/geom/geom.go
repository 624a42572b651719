package geom

import "math"

// Location is a point in world space, in meters.
type Location struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Pitch float64 `json:"pitch" yaml:"pitch"`
	Yaw   float64 `json:"yaw" yaml:"yaw"`
	Roll  float64 `json:"roll" yaml:"roll"`
}

// Transform is a location plus rotation.
type Transform struct {
	Location Location `json:"location" yaml:"location"`
	Rotation Rotation `json:"rotation" yaml:"rotation"`
}

// Vector3D is a direction or velocity in world space.
type Vector3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the euclidean distance between two locations.
func (l Location) Distance(o Location) float64 {
	dx, dy, dz := l.X-o.X, l.Y-o.Y, l.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D ignores the Z axis.
func (l Location) Distance2D(o Location) float64 {
	return math.Hypot(l.X-o.X, l.Y-o.Y)
}

// Add returns l moved by v.
func (l Location) Add(v Vector3D) Location {
	return Location{X: l.X + v.X, Y: l.Y + v.Y, Z: l.Z + v.Z}
}

// Offset returns a copy of the transform raised (dz > 0) or lowered (dz < 0)
// along the Z axis. Rotation is kept.
func (t Transform) Offset(dz float64) Transform {
	t.Location.Z += dz
	return t
}

// Forward is the unit vector the transform faces, from yaw and pitch.
func (t Transform) Forward() Vector3D {
	yaw := Radians(t.Rotation.Yaw)
	pitch := Radians(t.Rotation.Pitch)
	return Vector3D{
		X: math.Cos(pitch) * math.Cos(yaw),
		Y: math.Cos(pitch) * math.Sin(yaw),
		Z: math.Sin(pitch),
	}
}

// Length returns the vector magnitude.
func (v Vector3D) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Scale multiplies every component by k.
func (v Vector3D) Scale(k float64) Vector3D {
	return Vector3D{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// KMH converts a speed in m/s to km/h.
func KMH(metersPerSecond float64) float64 {
	return metersPerSecond * 3.6
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// NormalizeYaw wraps an angle in degrees into (-180, 180].
func NormalizeYaw(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// Heading returns the compass label for a yaw in degrees, as shown on the HUD.
func Heading(yaw float64) string {
	var h string
	if math.Abs(yaw) < 89.5 {
		h += "N"
	}
	if math.Abs(yaw) > 90.5 {
		h += "S"
	}
	if yaw > 0.5 && yaw < 179.5 {
		h += "E"
	}
	if yaw < -0.5 && yaw > -179.5 {
		h += "W"
	}
	return h
}
