package sim

import (
	"math"
	"strings"

	"github.com/wintersim/muonio/pkg/geom"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// waypointStep is the sampling distance used when walking a lane.
const waypointStep = 1.0

// maxLaneWalk bounds lane walks on maps without junctions.
const maxLaneWalk = 100000

// WaypointInDistance walks the lane from wp in 1 m steps until distance meters
// have been covered or a junction is reached. It returns the final waypoint
// and the distance actually travelled.
func WaypointInDistance(m Map, wp Waypoint, distance float64) (Waypoint, float64) {
	travelled := 0.0
	for !wp.IsJunction && travelled < distance {
		next := m.Next(wp, waypointStep)
		if len(next) == 0 {
			break
		}
		nw := next[len(next)-1]
		travelled += nw.Transform.Location.Distance(wp.Transform.Location)
		wp = nw
	}
	return wp, travelled
}

// NextJunction returns the first junction waypoint ahead of loc on its lane.
// ok is false when the lane ends before any junction.
func NextJunction(m Map, loc geom.Location) (wp Waypoint, ok bool, err error) {
	wp, err = m.Waypoint(loc)
	if err != nil {
		return Waypoint{}, false, err
	}
	for i := 0; !wp.IsJunction; i++ {
		next := m.Next(wp, waypointStep)
		if len(next) == 0 || i > maxLaneWalk {
			return wp, false, nil
		}
		wp = next[len(next)-1]
	}
	return wp, true, nil
}

// DisplayName turns a type id such as "vehicle.nissan.patrol" into
// "Nissan Patrol", truncated to at most truncate runes.
func DisplayName(typeID string, truncate int) string {
	parts := strings.Split(strings.ReplaceAll(typeID, "_", "."), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	titleCaser := cases.Title(language.English)
	for i, p := range parts {
		parts[i] = titleCaser.String(p)
	}
	name := strings.Join(parts, " ")

	runes := []rune(name)
	if truncate > 0 && len(runes) > truncate {
		return string(runes[:truncate-1]) + "…"
	}
	return name
}

// metersPerDegree is the length of one degree of latitude.
const metersPerDegree = 111319.49

// ToGeo converts a world location to latitude/longitude around ref.
// +X points east and +Y points south, matching the simulator's left-handed frame.
func ToGeo(ref GeoReference, loc geom.Location) (lat, lon float64) {
	lat = ref.Latitude - loc.Y/metersPerDegree
	lon = ref.Longitude + loc.X/(metersPerDegree*math.Cos(geom.Radians(ref.Latitude)))
	return lat, lon
}
