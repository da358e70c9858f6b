// README: Ride requests and the candidates offered back to the passenger.
package matching

import (
	"time"

	"colibri/internal/types"
)

// Kinds of ride request.
const (
	KindNormal = "normal"
	KindTour   = "tour"
)

type Request struct {
	Passenger types.ID
	// ConnID is the requesting connection; offers go there only.
	ConnID       types.ID
	Kind         string
	Origin       *types.Point
	Destination  *types.Point
	Destinations []types.Point
	OriginText   string
	DestText     string
	DistanceText string
	DurationText string
	// DistanceKm is the client's route distance when it could be read.
	DistanceKm *float64
	Seats      int
	Preference types.Gender
	// Fare is the client-side estimate; it is used only when the server cannot price the trip.
	Fare types.Money
}

type Candidate struct {
	ConnID         types.ID
	DriverID       types.ID
	Name           string
	Position       *types.Point
	DistanceMeters float64
}

const (
	// dispatchTTL bounds how long the notified set of a request is kept.
	dispatchTTL = 10 * time.Minute
	// maxPrefilterMeters is the largest radius the precision-4 geohash neighbourhood
	// is guaranteed to cover.
	maxPrefilterMeters = 19000.0
)
