// Package geo holds the pure location math used across the engine:
// coordinate types, haversine distance, fix validity filtering and
// moving-average smoothing. It has no state and no dependencies.
package geo

import "math"

const (
	earthRadiusM = 6371000.0

	// DefaultMaxJumpMeters is the largest plausible movement between two
	// consecutive fixes; anything beyond it is treated as a GPS glitch.
	DefaultMaxJumpMeters = 1000.0

	// MaxAccuracyMeters is the worst reported accuracy a fix may carry
	// and still be accepted.
	MaxAccuracyMeters = 100.0

	// DefaultSmoothingWindow is the number of recent fixes averaged by Smooth.
	DefaultSmoothingWindow = 3
)

// Coordinates is a geographic point stored in [longitude, latitude] order.
// The field order matches the GeoJSON / map-renderer convention, which is
// the reverse of the usual spoken (lat, lng) order. Always construct via
// FromLngLat to keep the ordering explicit at call sites.
type Coordinates struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// FromLngLat builds Coordinates from a longitude/latitude pair, in that order.
func FromLngLat(lng, lat float64) Coordinates {
	return Coordinates{Lng: lng, Lat: lat}
}

// LngLat returns the point as a [longitude, latitude] array.
func (c Coordinates) LngLat() [2]float64 {
	return [2]float64{c.Lng, c.Lat}
}

// Fix is a single raw location sample as delivered by a location source.
// AccuracyM of zero means the source did not report accuracy.
type Fix struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	AccuracyM   float64 `json:"accuracy_m,omitempty"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Coordinates returns the fix position as a Coordinates value.
func (f Fix) Coordinates() Coordinates {
	return FromLngLat(f.Longitude, f.Latitude)
}

// HaversineMeters returns the great-circle distance between two points in
// meters, using the asin/sqrt formulation so that every caller computes
// bit-identical results for identical inputs.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLon*sinLon
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// DistanceMeters is HaversineMeters over Coordinates values.
func DistanceMeters(a, b Coordinates) float64 {
	return HaversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

// IsValidUpdate reports whether candidate should be accepted as the next
// fix given the previously accepted one. The first fix of a session
// (prev == nil) is always trusted. A fix is rejected when its reported
// accuracy is worse than MaxAccuracyMeters, or when the distance from prev
// exceeds maxJumpMeters (teleport rejection). Timestamps are deliberately
// not compared: an out-of-order but spatially plausible fix passes.
func IsValidUpdate(prev *Fix, candidate Fix, maxJumpMeters float64) bool {
	if prev == nil {
		return true
	}
	if candidate.AccuracyM > MaxAccuracyMeters {
		return false
	}
	d := HaversineMeters(prev.Latitude, prev.Longitude, candidate.Latitude, candidate.Longitude)
	return d <= maxJumpMeters
}

// Smooth returns the unweighted moving average of the last windowSize fixes.
// Returns nil for empty history and the single fix unchanged when history
// has one entry. Latitude, longitude and accuracy are averaged equally
// across the window; the timestamp is taken from the newest entry. Equal
// weighting trades a little lag for stability and is intentional.
func Smooth(history []Fix, windowSize int) *Fix {
	if len(history) == 0 {
		return nil
	}
	if len(history) == 1 {
		f := history[0]
		return &f
	}
	if windowSize <= 0 {
		windowSize = DefaultSmoothingWindow
	}

	window := history
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}

	var sumLat, sumLng, sumAcc float64
	for _, f := range window {
		sumLat += f.Latitude
		sumLng += f.Longitude
		sumAcc += f.AccuracyM
	}
	n := float64(len(window))

	return &Fix{
		Latitude:    sumLat / n,
		Longitude:   sumLng / n,
		AccuracyM:   sumAcc / n,
		TimestampMs: window[len(window)-1].TimestampMs,
	}
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
