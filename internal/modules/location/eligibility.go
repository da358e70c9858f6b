// README: Eligibility filter applied by the match broker to each presence record.
package location

import (
	"colibri/internal/types"
)

// ProximityLimitMeters is the dispatch radius under the proximity policy.
const ProximityLimitMeters = 5000.0

// Policy selects how far a ride request is fanned out.
type Policy struct {
	// Proximity enables the distance cutoff. When false every capacity/gender
	// eligible driver is notified regardless of distance.
	Proximity bool
	// LimitMeters overrides ProximityLimitMeters when positive.
	LimitMeters float64
}

func (p Policy) limit() float64 {
	if p.LimitMeters > 0 {
		return p.LimitMeters
	}
	return ProximityLimitMeters
}

// Driver is the subset of a presence record the filter looks at.
type Driver struct {
	Position     *types.Point
	Capacity     int
	Gender       types.Gender
	AcceptsTours bool
}

// Criteria is the subset of a ride request the filter looks at.
type Criteria struct {
	Origin     *types.Point
	Seats      int
	Preference types.Gender
	Tour       bool
}

// IsEligible applies capacity, gender preference, tour acceptance and, under the
// proximity policy, the distance cutoff.
func IsEligible(d Driver, c Criteria, p Policy) bool {
	seats := c.Seats
	if seats < 1 {
		seats = 1
	}
	if d.Capacity < seats {
		return false
	}
	if c.Preference != "" && c.Preference != types.GenderAny && d.Gender != c.Preference {
		return false
	}
	if c.Tour && !d.AcceptsTours {
		return false
	}
	if p.Proximity {
		return DistanceMeters(d.Position, c.Origin) < p.limit()
	}
	return true
}
