// README: Trip aggregates (pending handshake, active trip) and phase definitions.
package trip

import (
	"time"

	"colibri/internal/types"
)

type Phase string

const (
	PhaseEnRouteToPickup      Phase = "en_route_to_pickup"
	PhaseAwaitingBoarding     Phase = "awaiting_passenger_boarding"
	PhaseEnRouteToDestination Phase = "en_route_to_destination"
	PhaseCompleted            Phase = "completed"
)

// AllowedTransitions is the phase flow as code. Phases only move forward;
// a driver may skip a phase (e.g. never report arrival).
var AllowedTransitions = map[Phase][]Phase{
	PhaseEnRouteToPickup:      {PhaseAwaitingBoarding, PhaseEnRouteToDestination, PhaseCompleted},
	PhaseAwaitingBoarding:     {PhaseEnRouteToDestination, PhaseCompleted},
	PhaseEnRouteToDestination: {PhaseCompleted},
}

func CanAdvance(from, to Phase) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, p := range next {
		if p == to {
			return true
		}
	}
	return false
}

// Status is the per-passenger lifecycle state recorded in the journal.
type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Kinds of trip.
const (
	KindNormal = "normal"
	KindTour   = "tour"
)

// Pending is the handshake record, keyed by passenger. It is replaced by an
// Active trip once both flags are set.
type Pending struct {
	TripID             types.ID
	Passenger          types.ID
	Driver             types.ID
	DriverConn         types.ID
	DriverName         string
	DriverPosition     *types.Point
	Kind               string
	Origin             *types.Point
	Destination        *types.Point
	Destinations       []types.Point
	Fare               types.Money
	DriverConfirmed    bool
	PassengerConfirmed bool
	CreatedAt          time.Time
}

type Active struct {
	TripID       types.ID
	Passenger    types.ID
	Driver       types.ID
	DriverConn   types.ID
	DriverName   string
	Kind         string
	Origin       *types.Point
	Destination  *types.Point
	Destinations []types.Point
	Fare         types.Money
	Phase        Phase
	LastPosition *types.Point
	Progress     float64
	StartedAt    time.Time
	UpdatedAt    time.Time
}

type CompletedTrip struct {
	TripID      types.ID
	Passenger   types.ID
	Driver      types.ID
	Kind        string
	Fare        types.Money
	StartedAt   time.Time
	CompletedAt time.Time
}

// Snapshot is a copy of a passenger's current trip state.
type Snapshot struct {
	Passenger types.ID
	Status    Status
	Pending   *Pending
	Active    *Active
}

// Event is one journal row.
type Event struct {
	ID         int64
	TripID     types.ID
	Passenger  types.ID
	FromStatus Status
	ToStatus   Status
	Phase      Phase
	ActorType  string
	ActorID    *types.ID
	Reason     string
	CreatedAt  time.Time
}

// Actor types recorded in the journal.
const (
	ActorDriver    = "driver"
	ActorPassenger = "passenger"
	ActorSystem    = "system"
)

func (p *Pending) clone() *Pending {
	cp := *p
	cp.Destinations = append([]types.Point(nil), p.Destinations...)
	return &cp
}

func (a *Active) clone() *Active {
	cp := *a
	cp.Destinations = append([]types.Point(nil), a.Destinations...)
	return &cp
}
