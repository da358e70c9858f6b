// README: Dispatcher; decodes inbound frames, binds connection identities and routes each event to its module.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"colibri/internal/events"
	"colibri/internal/modules/matching"
	"colibri/internal/modules/presence"
	"colibri/internal/modules/settlement"
	"colibri/internal/modules/tracking"
	"colibri/internal/modules/trip"
	"colibri/internal/types"
)

// ErrIdentityMismatch answers a frame that names someone other than the
// connection's verified caller.
var ErrIdentityMismatch = errors.New("connection is signed in as another user")

var errInternal = errors.New("internal error")

type PresenceRegistry interface {
	Set(ctx context.Context, connID types.ID, p presence.DriverPresence)
	Remove(ctx context.Context, connID types.ID) bool
}

type RideMatcher interface {
	RequestRide(ctx context.Context, req matching.Request) []matching.Candidate
}

type TripCoordinator interface {
	Reopen(passenger types.ID)
	DriverAccepts(ctx context.Context, cmd trip.AcceptCommand) error
	PassengerConfirms(ctx context.Context, cmd trip.ConfirmCommand) error
	Cancel(ctx context.Context, cmd trip.CancelCommand) (bool, error)
	Emergency(ctx context.Context, cmd trip.EmergencyCommand) error
	AdvancePhase(ctx context.Context, cmd trip.AdvanceCommand) (bool, error)
	Complete(ctx context.Context, cmd trip.CompleteCommand) (trip.CompletedTrip, error)
}

type PositionRelay interface {
	Relay(ctx context.Context, u tracking.Update) bool
}

type Settler interface {
	Settle(ctx context.Context, done trip.CompletedTrip) (settlement.Settlement, error)
}

type Deps struct {
	Presence   PresenceRegistry
	Matching   RideMatcher
	Trips      TripCoordinator
	Tracking   PositionRelay
	Settlement Settler
}

type Dispatcher struct {
	hub        *Hub
	presence   PresenceRegistry
	matching   RideMatcher
	trips      TripCoordinator
	tracking   PositionRelay
	settlement Settler
	log        *slog.Logger
}

func NewDispatcher(hub *Hub, deps Deps, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		hub:        hub,
		presence:   deps.Presence,
		matching:   deps.Matching,
		trips:      deps.Trips,
		tracking:   deps.Tracking,
		settlement: deps.Settlement,
		log:        log,
	}
}

// Handle processes one inbound frame from connID. Malformed frames are
// answered with an error frame; nothing reaches the modules. A panic inside a
// module is contained to the frame that caused it.
func (d *Dispatcher) Handle(ctx context.Context, connID types.ID, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic handling frame", "conn", connID, "event", frameName(raw), "panic", r)
			d.reject(connID, frameName(raw), errInternal)
		}
	}()

	in, err := events.Decode(raw)
	if err != nil {
		d.log.Debug("rejected frame", "conn", connID, "err", err)
		d.reject(connID, frameName(raw), err)
		return
	}

	switch ev := in.(type) {
	case events.DriverActiveEvent:
		d.driverActive(ctx, connID, ev)
	case events.DriverInactiveEvent:
		d.presence.Remove(ctx, connID)
	case events.RideSearchEvent:
		d.rideSearch(ctx, connID, ev)
	case events.DriverAcceptsEvent:
		d.driverAccepts(ctx, connID, ev)
	case events.PassengerConfirmsEvent:
		d.passengerConfirms(ctx, connID, ev)
	case events.CancelEvent:
		d.cancel(ctx, connID, ev)
	case events.EmergencyEvent:
		d.emergency(ctx, connID, ev)
	case events.PhaseEvent:
		d.phase(ctx, connID, ev)
	case events.PositionEvent:
		d.position(ctx, connID, ev)
	case events.FinishEvent:
		d.finish(ctx, connID, ev)
	}
}

// Disconnect forgets the connection's presence. Trips are left alone; the
// pending sweeper or the other party cleans them up.
func (d *Dispatcher) Disconnect(ctx context.Context, connID types.ID) {
	if d.presence.Remove(ctx, connID) {
		d.log.Info("driver went offline", "conn", connID)
	}
}

func (d *Dispatcher) driverActive(ctx context.Context, connID types.ID, ev events.DriverActiveEvent) {
	driver := userID(ev.Email)
	if !d.claim(connID, ev.Name(), driver) {
		return
	}
	d.presence.Set(ctx, connID, presence.DriverPresence{
		DriverID:     driver,
		Name:         ev.DriverName,
		Position:     types.PointFrom(ev.Lat, ev.Lng),
		Capacity:     int(ev.Capacity),
		Gender:       types.ParseGender(ev.Gender),
		AcceptsTours: ev.AcceptsTours,
	})
	d.log.Info("driver online", "conn", connID, "driver", driver)
}

func (d *Dispatcher) rideSearch(ctx context.Context, connID types.ID, ev events.RideSearchEvent) {
	passenger := userID(ev.Passenger)
	if !d.claim(connID, ev.Name(), passenger) {
		return
	}
	// A new search starts a new handshake; earlier pairings may be offered again.
	d.trips.Reopen(passenger)

	req := matching.Request{
		Passenger:    passenger,
		ConnID:       connID,
		Kind:         ev.Kind,
		Origin:       ev.Origin.Point(),
		Destination:  ev.Destination.Point(),
		Destinations: points(ev.Destinations),
		OriginText:   ev.OriginText,
		DestText:     ev.DestinationText,
		DistanceText: ev.Distance,
		DurationText: ev.Duration,
		Seats:        int(ev.Seats),
		Preference:   types.ParseGender(ev.Preference),
	}
	if req.Destination == nil && len(req.Destinations) > 0 {
		last := req.Destinations[len(req.Destinations)-1]
		req.Destination = &last
	}
	if km, ok := events.ParseKm(ev.Distance); ok {
		req.DistanceKm = &km
	}
	if ev.Fare != nil {
		req.Fare = types.MoneyFromFloat(float64(*ev.Fare))
	}
	d.matching.RequestRide(ctx, req)
}

func (d *Dispatcher) driverAccepts(ctx context.Context, connID types.ID, ev events.DriverAcceptsEvent) {
	driver := d.hub.Identity(connID)
	if driver == "" {
		driver = ev.Driver.Identity()
		if !d.claim(connID, ev.Name(), driver) {
			return
		}
	}
	cmd := trip.AcceptCommand{
		Passenger:      userID(ev.Passenger),
		Driver:         driver,
		DriverConn:     connID,
		DriverName:     ev.Driver.Name,
		DriverPosition: ev.Driver.Point(),
		Kind:           ev.Kind,
		Origin:         ev.Origin.Point(),
		Destination:    ev.Destination.Point(),
	}
	if ev.Fare != nil {
		cmd.Fare = types.MoneyFromFloat(float64(*ev.Fare))
	}
	d.tripResult(connID, ev.Name(), d.trips.DriverAccepts(ctx, cmd))
}

func (d *Dispatcher) passengerConfirms(ctx context.Context, connID types.ID, ev events.PassengerConfirmsEvent) {
	passenger := userID(ev.Passenger)
	if !d.claim(connID, ev.Name(), passenger) {
		return
	}

	cmd := trip.ConfirmCommand{
		Passenger:    passenger,
		Driver:       ev.Driver.Identity(),
		DriverName:   ev.Driver.Name,
		Kind:         ev.Kind,
		Origin:       ev.Origin.Point(),
		Destination:  ev.Destination.Point(),
		Destinations: points(ev.Destinations),
	}
	if ev.Fare != nil {
		cmd.Fare = types.MoneyFromFloat(float64(*ev.Fare))
	}
	d.tripResult(connID, ev.Name(), d.trips.PassengerConfirms(ctx, cmd))
}

// cancel treats the caller as the driver when the connection is bound to
// someone other than the passenger.
func (d *Dispatcher) cancel(ctx context.Context, connID types.ID, ev events.CancelEvent) {
	passenger := userID(ev.Passenger)
	cmd := trip.CancelCommand{Passenger: passenger, ActorType: trip.ActorPassenger, ActorID: passenger}
	if caller := d.hub.Identity(connID); caller != "" && caller != passenger {
		cmd.ActorType, cmd.ActorID = trip.ActorDriver, caller
	} else if !d.claim(connID, ev.Name(), passenger) {
		return
	}
	removed, err := d.trips.Cancel(ctx, cmd)
	if err == nil && !removed {
		d.log.Debug("cancel for unknown trip", "passenger", passenger)
	}
	d.tripResult(connID, ev.Name(), err)
}

func (d *Dispatcher) emergency(ctx context.Context, connID types.ID, ev events.EmergencyEvent) {
	passenger := userID(ev.Passenger)
	if !d.claim(connID, ev.Name(), passenger) {
		return
	}
	err := d.trips.Emergency(ctx, trip.EmergencyCommand{Passenger: passenger, Location: ev.Location.Point()})
	d.tripResult(connID, ev.Name(), err)
}

func (d *Dispatcher) phase(ctx context.Context, connID types.ID, ev events.PhaseEvent) {
	to := trip.PhaseAwaitingBoarding
	if ev.Event == events.StartTrip {
		to = trip.PhaseEnRouteToDestination
	}
	_, err := d.trips.AdvancePhase(ctx, trip.AdvanceCommand{
		Passenger: userID(ev.Passenger),
		Driver:    d.hub.Identity(connID),
		To:        to,
	})
	d.tripResult(connID, ev.Name(), err)
}

func (d *Dispatcher) position(ctx context.Context, connID types.ID, ev events.PositionEvent) {
	u := tracking.Update{
		Passenger: userID(ev.Passenger),
		Driver:    d.hub.Identity(connID),
		Position:  types.Point{Lat: *ev.Lat, Lng: *ev.Lng},
	}
	if ev.Progress != nil {
		p := float64(*ev.Progress)
		u.Percent = &p
	}
	d.tracking.Relay(ctx, u)
}

func (d *Dispatcher) finish(ctx context.Context, connID types.ID, ev events.FinishEvent) {
	driver := d.hub.Identity(connID)
	if driver == "" {
		driver = userID(ev.Driver)
	}
	cmd := trip.CompleteCommand{Passenger: userID(ev.Passenger), Driver: driver}
	if ev.Fare != nil {
		cmd.Fare = types.MoneyFromFloat(float64(*ev.Fare))
	}
	done, err := d.trips.Complete(ctx, cmd)
	if err != nil {
		d.tripResult(connID, ev.Name(), err)
		return
	}
	// Settlement failures are reported to the driver by Settle itself.
	_, _ = d.settlement.Settle(ctx, done)
}

// tripResult drops race losses and unknown keys; bad requests are answered
// with an error frame.
func (d *Dispatcher) tripResult(connID types.ID, event string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, trip.ErrRaceLost), errors.Is(err, trip.ErrUnknownTrip),
		errors.Is(err, trip.ErrNotActive), errors.Is(err, trip.ErrNoPairing):
		d.log.Debug("event dropped", "conn", connID, "event", event, "err", err)
	case errors.Is(err, trip.ErrDriverMismatch):
		d.log.Info("event from a driver not on the trip", "conn", connID, "event", event)
	default:
		d.log.Warn("event rejected", "conn", connID, "event", event, "err", err)
		d.reject(connID, event, err)
	}
}

// claim binds connID to who. A connection pinned to a verified caller cannot
// speak for anyone else; such frames are refused.
func (d *Dispatcher) claim(connID types.ID, event string, who types.ID) bool {
	if d.hub.Bind(connID, who) {
		return true
	}
	d.log.Warn("identity claim refused", "conn", connID, "event", event, "claimed", who, "caller", d.hub.Identity(connID))
	d.reject(connID, event, ErrIdentityMismatch)
	return false
}

func (d *Dispatcher) reject(connID types.ID, event string, err error) {
	_ = d.hub.SendToConn(connID, events.Error, events.ErrorPayload{Event: event, Message: err.Error()})
}

func frameName(raw []byte) string {
	var f events.Frame
	if json.Unmarshal(raw, &f) != nil {
		return ""
	}
	return f.Event
}

func userID(s string) types.ID {
	return types.ID(strings.TrimSpace(s))
}

func points(cs []events.Coord) []types.Point {
	var out []types.Point
	for i := range cs {
		if p := cs[i].Point(); p != nil {
			out = append(out, *p)
		}
	}
	return out
}
