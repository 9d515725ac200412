// Package geo computes great-circle distances and classifies GPS-fix
// confidence. It is pure: no I/O, deterministic given inputs.
package geo

import (
	"math"

	"fieldops/internal/errs"
)

const earthRadiusMeters = 6371000

// Confidence buckets derived from reported GPS accuracy, independent of
// distance.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "HIGH"     // accuracy <= 10m
	ConfidenceMedium  ConfidenceLevel = "MEDIUM"   // accuracy <= 30m
	ConfidenceLow     ConfidenceLevel = "LOW"      // accuracy <= 100m
	ConfidenceVeryLow ConfidenceLevel = "VERY_LOW" // > 100m or absent
)

// Point is a coordinate pair in plain degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Fix is a reported agent position with its accuracy in meters. Accuracy 0
// means the client did not report one.
type Fix struct {
	Point
	Accuracy float64
}

// Proximity is the result of validating an agent fix against a target.
type Proximity struct {
	WithinRadius   bool            `json:"within_radius"`
	DistanceMeters float64         `json:"distance_meters"`
	Confidence     ConfidenceLevel `json:"confidence"`
}

// Distance returns the haversine great-circle distance between a and b in
// meters. Standard haversine handles antimeridian and pole crossings.
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	deltaLat := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// Confidence classifies reported accuracy. Zero or negative accuracy is
// treated as absent.
func Confidence(accuracy float64) ConfidenceLevel {
	switch {
	case accuracy <= 0 || math.IsNaN(accuracy):
		return ConfidenceVeryLow
	case accuracy <= 10:
		return ConfidenceHigh
	case accuracy <= 30:
		return ConfidenceMedium
	case accuracy <= 100:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// CheckPoint rejects NaN/Inf and out-of-range coordinates. A spurious zero
// distance from a missing coordinate must never validate a check-in.
func CheckPoint(p Point) error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return errs.Validation("coordinates must be finite numbers")
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return errs.Validation("latitude %v out of range [-90, 90]", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return errs.Validation("longitude %v out of range [-180, 180]", p.Longitude)
	}
	return nil
}

// ValidateProximity scores an agent fix against a target location. The radius
// is configurable per call site: 10m for check-in gating, 1000m for nearby
// customer discovery.
func ValidateProximity(agent Fix, target Point, radiusMeters float64) (Proximity, error) {
	if err := CheckPoint(agent.Point); err != nil {
		return Proximity{}, err
	}
	if err := CheckPoint(target); err != nil {
		return Proximity{}, err
	}
	if radiusMeters <= 0 || math.IsNaN(radiusMeters) {
		return Proximity{}, errs.Validation("radius must be a positive number of meters")
	}

	d := Distance(agent.Point, target)
	return Proximity{
		WithinRadius:   d <= radiusMeters,
		DistanceMeters: d,
		Confidence:     Confidence(agent.Accuracy),
	}, nil
}
