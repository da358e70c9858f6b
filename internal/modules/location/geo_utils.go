// Package location holds the pure geographic helpers and the dispatch eligibility filter.
package location

import (
	"math"

	"github.com/mmcloughlin/geohash"

	"colibri/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceMeters returns the great-circle distance between a and b. A missing or
// malformed coordinate yields +Inf so the record can never pass a distance check.
func DistanceMeters(a, b *types.Point) float64 {
	if a == nil || b == nil || !a.Valid() || !b.Valid() {
		return math.Inf(1)
	}
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng) * 1000
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

// CellsAround returns the geohash cell containing p and its eight neighbours at the
// given precision. At precision 4 a cell is roughly 39 x 19.5 km, so the set always
// covers a 5 km radius around p.
func CellsAround(p types.Point, precision uint) map[string]struct{} {
	center := geohash.EncodeWithPrecision(p.Lat, p.Lng, precision)
	cells := map[string]struct{}{center: {}}
	for _, n := range geohash.Neighbors(center) {
		cells[n] = struct{}{}
	}
	return cells
}
