package common

import (
	"errors"
	"fmt"
	"math"
)

const earthRadiusKM = 6371.0

var ErrInvalidLatLng = errors.New("invalid latitude or longitude")

type Location struct {
	Lat float64 `json:"lat" db:"lat"`
	Lng float64 `json:"lng" db:"lng"`
}

func NewLocation(lat, lng float64) Location {
	return Location{Lat: lat, Lng: lng}
}

func HaversineDistance(a, b Location) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	aLat := degreesToRadians(a.Lat)
	bLat := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(aLat)*math.Cos(bLat)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKM * c
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// StepToward advances from `from` toward `to` by at most `step` degrees along
// the straight-line vector between them. Positions within one step of the
// destination snap directly onto it so the walk never overshoots.
// Deltas are plain floating-point degrees; over the short hops a delivery
// drone makes, the locally-planar error is far below the arrival tolerance.
func StepToward(from, to Location, step float64) Location {
	dLat := to.Lat - from.Lat
	dLng := to.Lng - from.Lng
	dist := math.Hypot(dLat, dLng)

	if dist <= step {
		return to
	}

	ratio := step / dist
	return Location{
		Lat: from.Lat + dLat*ratio,
		Lng: from.Lng + dLng*ratio,
	}
}

// WithinTolerance reports whether both axes of `a` are within `tolerance`
// degrees of `b`.
func WithinTolerance(a, b Location, tolerance float64) bool {
	return math.Abs(a.Lat-b.Lat) < tolerance && math.Abs(a.Lng-b.Lng) < tolerance
}

func ValidateLatLng(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidLatLng)
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidLatLng)
	}
	return nil
}
