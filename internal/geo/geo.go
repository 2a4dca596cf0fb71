package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

const (
	EarthRadiusMeters = 6371000.0

	// DefaultWalkingSpeed is 5 km/h expressed in meters per second.
	DefaultWalkingSpeed = 1.39
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coord is a WGS84 position in degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coord) String() string { return fmt.Sprintf("(%.6f,%.6f)", c.Lat, c.Lon) }

// Validate rejects NaN and out of range latitude/longitude values.
func (c Coord) Validate() error {
	if !s2.LatLngFromDegrees(c.Lat, c.Lon).IsValid() {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, c.Lat, c.Lon)
	}
	return nil
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Coord) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// WalkSeconds converts a distance to a walking duration, rounded up to the next second.
func WalkSeconds(meters, speedMps float64) int {
	if meters <= 0 {
		return 0
	}
	if speedMps <= 0 {
		speedMps = DefaultWalkingSpeed
	}
	return int(math.Ceil(meters / speedMps))
}

// Box is a latitude/longitude rectangle in degrees.
type Box struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// BoundingBox returns a box containing every point within radius meters of c.
// ok is false when the box would cross a pole or the antimeridian; callers
// should fall back to a linear scan in that case.
func BoundingBox(c Coord, radius float64) (b Box, ok bool) {
	// 1% padding absorbs rounding at the box edges.
	dLat := radius / EarthRadiusMeters * 180 / math.Pi * 1.01
	b.MinLat, b.MaxLat = c.Lat-dLat, c.Lat+dLat
	if b.MinLat < -90 || b.MaxLat > 90 {
		return b, false
	}
	// longitude span is widest on the edge closest to a pole
	cos := math.Cos(math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat)) * math.Pi / 180)
	if cos < 1e-9 {
		return b, false
	}
	dLon := dLat / cos
	b.MinLon, b.MaxLon = c.Lon-dLon, c.Lon+dLon
	if b.MinLon < -180 || b.MaxLon > 180 {
		return b, false
	}
	return b, true
}
