package headless

import (
	"fmt"
	"math"
	"os"

	"github.com/wintersim/muonio/pkg/geom"
	"github.com/wintersim/muonio/pkg/sim"
	"gopkg.in/yaml.v3"
)

// Interval is a [Start, End] stretch of road, in meters along the lane.
type Interval struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
}

// MapSpec describes the straight test road the headless world simulates.
// The lane runs along +X from the origin with its center at Y=0.
type MapSpec struct {
	Name       string           `yaml:"name"`
	Length     float64          `yaml:"length"`
	LaneWidth  float64          `yaml:"lane_width"`
	Junctions  []Interval       `yaml:"junctions"`
	Geo        sim.GeoReference `yaml:"geo"`
	FixedDelta float64          `yaml:"fixed_delta_seconds"`
	Weather    sim.Weather      `yaml:"weather"`
}

// DefaultMapSpec is a 1 km stretch of highway near Muonio with two crossings.
func DefaultMapSpec() MapSpec {
	return MapSpec{
		Name:      "Muonio",
		Length:    1000,
		LaneWidth: 3.5,
		Junctions: []Interval{
			{Start: 300, End: 320},
			{Start: 650, End: 670},
		},
		Geo:        sim.GeoReference{Latitude: 67.9386, Longitude: 23.6761},
		FixedDelta: 0.05,
		Weather: sim.Weather{
			Cloudiness:       30,
			SunAltitudeAngle: 15,
			FogDistance:      100,
			Temperature:      -10,
			Humidity:         70,
		},
	}
}

// LoadMapSpec reads a YAML map spec. Missing fields fall back to DefaultMapSpec.
func LoadMapSpec(path string) (MapSpec, error) {
	spec := DefaultMapSpec()
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read map spec %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse map spec %s: %w", path, err)
	}
	if err := spec.Validate(); err != nil {
		return spec, err
	}
	return spec, nil
}

// Validate checks that the road is usable.
func (s MapSpec) Validate() error {
	if s.Length <= 0 {
		return fmt.Errorf("map %q: length must be positive", s.Name)
	}
	if s.FixedDelta <= 0 {
		return fmt.Errorf("map %q: fixed_delta_seconds must be positive", s.Name)
	}
	for i, j := range s.Junctions {
		if j.End <= j.Start || j.Start < 0 || j.End > s.Length {
			return fmt.Errorf("map %q: junction %d [%v, %v] is outside the road", s.Name, i, j.Start, j.End)
		}
	}
	return nil
}

// offRoadTolerance is how far from the lane a location may be and still map
// onto it.
const offRoadTolerance = 30.0

type roadMap struct {
	spec MapSpec
}

var _ sim.Map = (*roadMap)(nil)

func (r *roadMap) Name() string { return r.spec.Name }

func (r *roadMap) GeoReference() sim.GeoReference { return r.spec.Geo }

func (r *roadMap) Waypoint(loc geom.Location) (sim.Waypoint, error) {
	if math.Abs(loc.Y) > offRoadTolerance ||
		loc.X < -offRoadTolerance || loc.X > r.spec.Length+offRoadTolerance {
		return sim.Waypoint{}, fmt.Errorf("%w: (%.1f, %.1f)", sim.ErrNoWaypoint, loc.X, loc.Y)
	}
	return r.at(math.Max(0, math.Min(r.spec.Length, loc.X))), nil
}

func (r *roadMap) Next(wp sim.Waypoint, distance float64) []sim.Waypoint {
	s := wp.S + distance
	if s > r.spec.Length {
		return nil
	}
	return []sim.Waypoint{r.at(s)}
}

// SpawnPoints are placed every 50 m along the lane, outside junctions.
func (r *roadMap) SpawnPoints() []geom.Transform {
	var points []geom.Transform
	for s := 20.0; s <= r.spec.Length-20; s += 50 {
		if _, in := r.junctionAt(s); in {
			continue
		}
		points = append(points, geom.Transform{Location: geom.Location{X: s, Z: 0.3}})
	}
	return points
}

func (r *roadMap) at(s float64) sim.Waypoint {
	wp := sim.Waypoint{
		Transform: geom.Transform{Location: geom.Location{X: s}},
		LaneID:    -1,
		S:         s,
	}
	if idx, in := r.junctionAt(s); in {
		wp.IsJunction = true
		wp.RoadID = 1000 + idx
		return wp
	}
	for _, j := range r.spec.Junctions {
		if s > j.End {
			wp.RoadID++
		}
	}
	return wp
}

func (r *roadMap) junctionAt(s float64) (int, bool) {
	for i, j := range r.spec.Junctions {
		if s >= j.Start && s <= j.End {
			return i, true
		}
	}
	return 0, false
}
