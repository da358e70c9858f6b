// README: Driver presence records, one per live connection.
package presence

import (
	"time"

	"colibri/internal/types"
)

// CellPrecision is the geohash precision stored on each record and used by the
// broker's proximity prefilter.
const CellPrecision uint = 4

// DefaultCapacity applies when a driver announces no seat count.
const DefaultCapacity = 4

type DriverPresence struct {
	ConnID       types.ID
	DriverID     types.ID // email
	Name         string
	Position     *types.Point
	Cell         string
	Capacity     int
	Gender       types.Gender
	AcceptsTours bool
	UpdatedAt    time.Time
}
