// README: Identifiers and coordinates shared by every module.
package types

import "math"

// ID is an opaque identity: a driver or passenger key (account email) or a connection handle.
type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point carries finite, in-range coordinates.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// PointFrom builds a point from optional wire coordinates. It returns nil when either
// coordinate is missing or out of range.
func PointFrom(lat, lng *float64) *Point {
	if lat == nil || lng == nil {
		return nil
	}
	p := Point{Lat: *lat, Lng: *lng}
	if !p.Valid() {
		return nil
	}
	return &p
}
