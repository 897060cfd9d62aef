// Package eta derives a live distance and walking-time hint toward a target
// coordinate. The estimate assumes a fixed walking speed rather than routed
// travel time; it feeds a "how far / how long" indicator, not navigation.
package eta

import "github.com/jlescarlan11/project-krawl-sub003/internal/geo"

// WalkingSpeedMps is the assumed pace, 5 km/h.
const WalkingSpeedMps = 1.389

// Estimate is a straight-line distance and the time to walk it.
type Estimate struct {
	DistanceMeters float64 `json:"distance_meters"`
	EtaSeconds     float64 `json:"eta_seconds"`
}

// Walking estimates distance and walking time between two points. Either
// argument being nil yields nil, which callers render as "calculating".
func Walking(current, target *geo.Coordinates) *Estimate {
	if current == nil || target == nil {
		return nil
	}

	d := geo.DistanceMeters(*current, *target)
	return &Estimate{
		DistanceMeters: d,
		EtaSeconds:     d / WalkingSpeedMps,
	}
}
