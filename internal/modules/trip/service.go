// README: Trip coordinator; reconciles the two-party handshake and owns every pending and active trip.
package trip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"colibri/internal/config"
	"colibri/internal/events"
	"colibri/internal/types"
)

var (
	ErrUnknownTrip    = errors.New("no trip for passenger")
	ErrRaceLost       = errors.New("trip already settled by another event")
	ErrDriverMismatch = errors.New("driver does not own this trip")
	ErrNoPairing      = errors.New("passenger has no paired driver")
	ErrNotActive      = errors.New("trip is not active")
	ErrBadRequest     = errors.New("bad request")
)

// Notifier delivers an event to every connection bound to a user. It must not block.
type Notifier interface {
	SendToUser(user types.ID, event string, payload any) int
}

// Journal persists lifecycle events. Optional; failures are logged only.
type Journal interface {
	AppendEvent(ctx context.Context, e *Event) error
}

type Service struct {
	mu sync.Mutex
	// deliverMu is taken before mu is released so frames leave in the order
	// their transitions were applied.
	deliverMu sync.Mutex
	pending   map[types.ID]*Pending
	active    map[types.ID]*Active
	// closed holds, per passenger, the drivers whose pairing was torn down and
	// until when a stray confirmation for it is refused.
	closed map[types.ID]map[types.ID]time.Time

	notifier Notifier
	journal  Journal
	cfg      config.TripConfig
	log      *slog.Logger
	now      func() time.Time
	newID    func() types.ID
}

func NewService(notifier Notifier, cfg config.TripConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pending:  make(map[types.ID]*Pending),
		active:   make(map[types.ID]*Active),
		closed:   make(map[types.ID]map[types.ID]time.Time),
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		newID:    func() types.ID { return types.ID(uuid.NewString()) },
	}
}

func (s *Service) WithJournal(j Journal) *Service {
	s.journal = j
	return s
}

type AcceptCommand struct {
	Passenger      types.ID
	Driver         types.ID
	DriverConn     types.ID
	DriverName     string
	DriverPosition *types.Point
	Kind           string
	Origin         *types.Point
	Destination    *types.Point
	// Fare is the offered fare echoed by the driver; a passenger fare wins.
	Fare types.Money
}

type ConfirmCommand struct {
	Passenger    types.ID
	Driver       types.ID
	DriverName   string
	Kind         string
	Origin       *types.Point
	Destination  *types.Point
	Destinations []types.Point
	Fare         types.Money
}

type CancelCommand struct {
	Passenger types.ID
	ActorType string
	ActorID   types.ID
}

type EmergencyCommand struct {
	Passenger types.ID
	Location  *types.Point
}

type AdvanceCommand struct {
	Passenger types.ID
	Driver    types.ID
	To        Phase
}

type ProgressCommand struct {
	Passenger types.ID
	Driver    types.ID
	Position  types.Point
	Percent   *float64
}

type CompleteCommand struct {
	Passenger types.ID
	Driver    types.ID
	// Fare overrides the agreed fare when positive.
	Fare types.Money
}

// envelope is a notification computed under the lock and sent after it is released.
type envelope struct {
	to      types.ID
	event   string
	payload any
}

type effects struct {
	out     []envelope
	journal []*Event
}

func (fx *effects) send(to types.ID, event string, payload any) {
	if to == "" {
		return
	}
	fx.out = append(fx.out, envelope{to: to, event: event, payload: payload})
}

func (fx *effects) record(e *Event) {
	fx.journal = append(fx.journal, e)
}

// commit releases mu and delivers fx. Must be called with mu held.
func (s *Service) commit(ctx context.Context, fx *effects) {
	s.deliverMu.Lock()
	s.mu.Unlock()
	for _, env := range fx.out {
		if n := s.notifier.SendToUser(env.to, env.event, env.payload); n == 0 {
			s.log.Debug("recipient offline", "user", env.to, "event", env.event)
		}
	}
	s.deliverMu.Unlock()

	if s.journal == nil {
		return
	}
	for _, e := range fx.journal {
		if err := s.journal.AppendEvent(ctx, e); err != nil {
			s.log.Warn("journal append failed", "trip", e.TripID, "to", e.ToStatus, "err", err)
		}
	}
}

// DriverAccepts merges a driver acceptance into the passenger's handshake. The
// first driver to accept owns the pending trip; if the passenger already
// confirmed that driver, the trip becomes active.
func (s *Service) DriverAccepts(ctx context.Context, cmd AcceptCommand) error {
	if cmd.Passenger == "" || cmd.Driver == "" {
		return ErrBadRequest
	}
	var fx effects

	s.mu.Lock()
	err := s.driverAcceptsLocked(cmd, &fx)
	s.commit(ctx, &fx)
	return err
}

func (s *Service) driverAcceptsLocked(cmd AcceptCommand, fx *effects) error {
	if _, ok := s.active[cmd.Passenger]; ok {
		return ErrRaceLost
	}
	now := s.now()
	driverID := cmd.Driver
	pt, ok := s.pending[cmd.Passenger]
	if !ok {
		if s.isClosedLocked(cmd.Passenger, cmd.Driver, now) {
			return ErrRaceLost
		}
		pt = &Pending{
			TripID:      s.newID(),
			Passenger:   cmd.Passenger,
			Driver:      cmd.Driver,
			Kind:        kindOr(cmd.Kind),
			Origin:      cmd.Origin,
			Destination: cmd.Destination,
			CreatedAt:   now,
		}
		s.pending[cmd.Passenger] = pt
		fx.record(&Event{TripID: pt.TripID, Passenger: pt.Passenger, FromStatus: StatusNone, ToStatus: StatusPending,
			ActorType: ActorDriver, ActorID: &driverID, CreatedAt: now})
	} else {
		if pt.Driver != cmd.Driver {
			return ErrDriverMismatch
		}
		if pt.DriverConfirmed {
			return ErrRaceLost
		}
	}

	pt.DriverConfirmed = true
	pt.DriverConn = cmd.DriverConn
	pt.DriverName = cmd.DriverName
	if cmd.DriverPosition != nil {
		pt.DriverPosition = cmd.DriverPosition
	}
	if pt.Origin == nil {
		pt.Origin = cmd.Origin
	}
	if pt.Destination == nil {
		pt.Destination = cmd.Destination
	}
	if pt.Fare.IsZero() {
		pt.Fare = cmd.Fare
	}

	if pt.PassengerConfirmed {
		s.activateLocked(pt, ActorDriver, driverID, fx)
		return nil
	}
	fx.send(pt.Passenger, events.TripConfirmed, tripPayload(pt, "conductor"))
	return nil
}

// PassengerConfirms merges a passenger confirmation. The passenger is
// authoritative for which driver, where, and for how much: confirming a driver
// other than the one that accepted hands the trip to the new driver, who must
// accept in turn.
func (s *Service) PassengerConfirms(ctx context.Context, cmd ConfirmCommand) error {
	if cmd.Passenger == "" || cmd.Driver == "" {
		return ErrBadRequest
	}
	var fx effects

	s.mu.Lock()
	err := s.passengerConfirmsLocked(cmd, &fx)
	s.commit(ctx, &fx)
	return err
}

func (s *Service) passengerConfirmsLocked(cmd ConfirmCommand, fx *effects) error {
	if _, ok := s.active[cmd.Passenger]; ok {
		return ErrRaceLost
	}
	now := s.now()
	passengerID := cmd.Passenger
	pt, ok := s.pending[cmd.Passenger]
	switch {
	case !ok:
		if s.isClosedLocked(cmd.Passenger, cmd.Driver, now) {
			return ErrRaceLost
		}
		pt = &Pending{
			TripID:    s.newID(),
			Passenger: cmd.Passenger,
			Driver:    cmd.Driver,
			CreatedAt: now,
		}
		s.pending[cmd.Passenger] = pt
		fx.record(&Event{TripID: pt.TripID, Passenger: pt.Passenger, FromStatus: StatusNone, ToStatus: StatusPending,
			ActorType: ActorPassenger, ActorID: &passengerID, CreatedAt: now})
	case pt.Driver != cmd.Driver:
		s.log.Info("passenger switched driver", "passenger", cmd.Passenger, "from", pt.Driver, "to", cmd.Driver)
		fx.send(pt.Driver, events.TripCancelled, events.CancelledPayload{
			Passenger: string(pt.Passenger),
			Reason:    events.ReasonReassigned,
		})
		s.closeLocked(pt.Passenger, pt.Driver, now)
		pt.Driver = cmd.Driver
		pt.DriverConfirmed = false
		pt.DriverConn = ""
		pt.DriverName = ""
		pt.DriverPosition = nil
	case pt.PassengerConfirmed:
		return ErrRaceLost
	}

	pt.PassengerConfirmed = true
	pt.Kind = kindOr(cmd.Kind)
	if cmd.DriverName != "" && pt.DriverName == "" {
		pt.DriverName = cmd.DriverName
	}
	if cmd.Origin != nil {
		pt.Origin = cmd.Origin
	}
	if cmd.Destination != nil {
		pt.Destination = cmd.Destination
	}
	if len(cmd.Destinations) > 0 {
		pt.Destinations = append([]types.Point(nil), cmd.Destinations...)
	}
	if !cmd.Fare.IsZero() {
		pt.Fare = cmd.Fare
	}

	if pt.DriverConfirmed {
		s.activateLocked(pt, ActorPassenger, passengerID, fx)
		return nil
	}
	fx.send(pt.Driver, events.TripConfirmed, tripPayload(pt, "pasajero"))
	return nil
}

// activateLocked replaces the pending entry with an active trip and queues
// iniciar_recogida for both parties. It is the only place a trip becomes active.
func (s *Service) activateLocked(pt *Pending, actorType string, actor types.ID, fx *effects) {
	now := s.now()
	delete(s.pending, pt.Passenger)
	a := &Active{
		TripID:       pt.TripID,
		Passenger:    pt.Passenger,
		Driver:       pt.Driver,
		DriverConn:   pt.DriverConn,
		DriverName:   pt.DriverName,
		Kind:         pt.Kind,
		Origin:       pt.Origin,
		Destination:  pt.Destination,
		Destinations: pt.Destinations,
		Fare:         pt.Fare,
		Phase:        PhaseEnRouteToPickup,
		LastPosition: pt.DriverPosition,
		StartedAt:    now,
		UpdatedAt:    now,
	}
	s.active[pt.Passenger] = a
	fx.record(&Event{TripID: a.TripID, Passenger: a.Passenger, FromStatus: StatusPending, ToStatus: StatusActive,
		Phase: a.Phase, ActorType: actorType, ActorID: &actor, CreatedAt: now})

	payload := tripPayload(pt, "")
	fx.send(a.Passenger, events.StartPickup, payload)
	fx.send(a.Driver, events.StartPickup, payload)
	s.log.Info("trip started", "trip", a.TripID, "passenger", a.Passenger, "driver", a.Driver)
}

// Cancel drops the passenger's pending or active trip. It reports whether
// anything was removed; cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (bool, error) {
	var fx effects

	s.mu.Lock()
	removed, err := s.cancelLocked(cmd, &fx)
	s.commit(ctx, &fx)
	return removed, err
}

func (s *Service) cancelLocked(cmd CancelCommand, fx *effects) (bool, error) {
	tripID, driver, from, ok := s.pairingLocked(cmd.Passenger)
	if !ok {
		return false, nil
	}
	if cmd.ActorType == ActorDriver && cmd.ActorID != "" && driver != "" && cmd.ActorID != driver {
		return false, ErrDriverMismatch
	}
	delete(s.pending, cmd.Passenger)
	delete(s.active, cmd.Passenger)
	now := s.now()
	s.closeLocked(cmd.Passenger, driver, now)

	actor := cmd.ActorID
	fx.record(&Event{TripID: tripID, Passenger: cmd.Passenger, FromStatus: from, ToStatus: StatusCancelled,
		ActorType: actorOr(cmd.ActorType), ActorID: idPtr(actor), Reason: events.ReasonCancelled, CreatedAt: now})
	payload := events.CancelledPayload{Passenger: string(cmd.Passenger), Reason: events.ReasonCancelled}
	fx.send(cmd.Passenger, events.TripCancelled, payload)
	fx.send(driver, events.TripCancelled, payload)
	return true, nil
}

// Emergency tears down the passenger's pairing and alerts the driver. Normal
// cancellation messages are not sent.
func (s *Service) Emergency(ctx context.Context, cmd EmergencyCommand) error {
	var fx effects

	s.mu.Lock()
	err := s.emergencyLocked(cmd, &fx)
	s.commit(ctx, &fx)
	return err
}

func (s *Service) emergencyLocked(cmd EmergencyCommand, fx *effects) error {
	tripID, driver, from, ok := s.pairingLocked(cmd.Passenger)
	if !ok || driver == "" {
		return ErrNoPairing
	}
	delete(s.pending, cmd.Passenger)
	delete(s.active, cmd.Passenger)
	now := s.now()
	s.closeLocked(cmd.Passenger, driver, now)

	passenger := cmd.Passenger
	fx.record(&Event{TripID: tripID, Passenger: passenger, FromStatus: from, ToStatus: StatusCancelled,
		ActorType: ActorPassenger, ActorID: &passenger, Reason: "emergency", CreatedAt: now})

	payload := events.EmergencyPayload{Passenger: string(passenger), Driver: string(driver), Location: events.CoordOf(cmd.Location)}
	fx.send(passenger, events.EmergencyCancelled, payload)
	fx.send(driver, events.EmergencyCancelled, payload)
	alert := payload
	alert.Message = "El pasajero activó una emergencia"
	fx.send(driver, events.EmergencyAlert, alert)
	s.log.Warn("passenger emergency", "trip", tripID, "passenger", passenger, "driver", driver)
	return nil
}

// pairingLocked returns the passenger's trip, pending or active.
func (s *Service) pairingLocked(passenger types.ID) (types.ID, types.ID, Status, bool) {
	if a, ok := s.active[passenger]; ok {
		return a.TripID, a.Driver, StatusActive, true
	}
	if pt, ok := s.pending[passenger]; ok {
		return pt.TripID, pt.Driver, StatusPending, true
	}
	return "", "", StatusNone, false
}

// AdvancePhase moves an active trip forward. It reports whether the phase
// changed; a repeated or backward phase is a no-op.
func (s *Service) AdvancePhase(ctx context.Context, cmd AdvanceCommand) (bool, error) {
	if cmd.To == PhaseCompleted {
		return false, ErrBadRequest
	}
	var fx effects

	s.mu.Lock()
	changed, err := s.advanceLocked(cmd, &fx)
	s.commit(ctx, &fx)
	return changed, err
}

func (s *Service) advanceLocked(cmd AdvanceCommand, fx *effects) (bool, error) {
	a, err := s.activeLocked(cmd.Passenger)
	if err != nil {
		return false, err
	}
	if cmd.Driver != "" && cmd.Driver != a.Driver {
		return false, ErrDriverMismatch
	}
	if !CanAdvance(a.Phase, cmd.To) {
		return false, nil
	}
	now := s.now()
	a.Phase = cmd.To
	a.Progress = 0
	a.UpdatedAt = now
	driver := a.Driver
	fx.record(&Event{TripID: a.TripID, Passenger: a.Passenger, FromStatus: StatusActive, ToStatus: StatusActive,
		Phase: a.Phase, ActorType: ActorDriver, ActorID: &driver, CreatedAt: now})

	payload := events.PassengerPayload{Passenger: string(a.Passenger), Driver: string(a.Driver)}
	switch cmd.To {
	case PhaseAwaitingBoarding:
		fx.send(a.Passenger, events.DriverArrived, payload)
	case PhaseEnRouteToDestination:
		fx.send(a.Passenger, events.TripStarted, payload)
		fx.send(a.Driver, events.TripStarted, payload)
	}
	return true, nil
}

// RecordProgress stores the driver's latest position and progress. Progress
// within a phase never decreases and is clamped to [0,100].
func (s *Service) RecordProgress(_ context.Context, cmd ProgressCommand) (Active, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.activeLocked(cmd.Passenger)
	if err != nil {
		return Active{}, err
	}
	if cmd.Driver != "" && cmd.Driver != a.Driver {
		return Active{}, ErrDriverMismatch
	}
	pos := cmd.Position
	a.LastPosition = &pos
	if cmd.Percent != nil {
		p := clampPercent(*cmd.Percent)
		if p > a.Progress {
			a.Progress = p
		}
	}
	a.UpdatedAt = s.now()
	return *a.clone(), nil
}

// Complete finishes an active trip and removes it.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (CompletedTrip, error) {
	var fx effects

	s.mu.Lock()
	done, err := s.completeLocked(cmd, &fx)
	s.commit(ctx, &fx)
	return done, err
}

func (s *Service) completeLocked(cmd CompleteCommand, fx *effects) (CompletedTrip, error) {
	a, err := s.activeLocked(cmd.Passenger)
	if err != nil {
		return CompletedTrip{}, err
	}
	if cmd.Driver != "" && cmd.Driver != a.Driver {
		return CompletedTrip{}, ErrDriverMismatch
	}
	now := s.now()
	delete(s.active, cmd.Passenger)
	s.closeLocked(a.Passenger, a.Driver, now)

	fare := a.Fare
	if cmd.Fare.Amount.IsPositive() {
		fare = cmd.Fare
	}
	done := CompletedTrip{
		TripID:      a.TripID,
		Passenger:   a.Passenger,
		Driver:      a.Driver,
		Kind:        a.Kind,
		Fare:        fare,
		StartedAt:   a.StartedAt,
		CompletedAt: now,
	}
	driver := a.Driver
	fx.record(&Event{TripID: a.TripID, Passenger: a.Passenger, FromStatus: StatusActive, ToStatus: StatusCompleted,
		Phase: PhaseCompleted, ActorType: ActorDriver, ActorID: &driver, CreatedAt: now})
	fx.send(a.Passenger, events.TripFinished, events.FinishedPayload{
		Passenger: string(a.Passenger),
		Driver:    string(a.Driver),
		Fare:      fare.Float64(),
	})
	s.log.Info("trip completed", "trip", a.TripID, "passenger", a.Passenger, "driver", a.Driver)
	return done, nil
}

// Reopen forgets the passenger's closed pairings. It is called when the
// passenger starts a new search, which begins a new handshake.
func (s *Service) Reopen(passenger types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.closed, passenger)
}

// closeLocked marks the pairing as finished for cfg.PendingTTL, long enough
// to outlive any confirmation still in flight for it.
func (s *Service) closeLocked(passenger, driver types.ID, now time.Time) {
	if driver == "" {
		return
	}
	drivers := s.closed[passenger]
	if drivers == nil {
		drivers = make(map[types.ID]time.Time)
		s.closed[passenger] = drivers
	}
	drivers[driver] = now.Add(s.cfg.PendingTTL)
}

func (s *Service) isClosedLocked(passenger, driver types.ID, now time.Time) bool {
	until, ok := s.closed[passenger][driver]
	return ok && now.Before(until)
}

// pruneClosedLocked drops closed pairings whose window has passed.
func (s *Service) pruneClosedLocked(now time.Time) {
	for passenger, drivers := range s.closed {
		for driver, until := range drivers {
			if !now.Before(until) {
				delete(drivers, driver)
			}
		}
		if len(drivers) == 0 {
			delete(s.closed, passenger)
		}
	}
}

func (s *Service) activeLocked(passenger types.ID) (*Active, error) {
	if a, ok := s.active[passenger]; ok {
		return a, nil
	}
	if _, ok := s.pending[passenger]; ok {
		return nil, ErrNotActive
	}
	return nil, ErrUnknownTrip
}

// Snapshot returns a copy of the passenger's trip state.
func (s *Service) Snapshot(passenger types.ID) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Passenger: passenger, Status: StatusNone}
	if a, ok := s.active[passenger]; ok {
		snap.Status = StatusActive
		snap.Active = a.clone()
	} else if pt, ok := s.pending[passenger]; ok {
		snap.Status = StatusPending
		snap.Pending = pt.clone()
	}
	return snap
}

// Counts returns the number of pending and active trips.
func (s *Service) Counts() (pending, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), len(s.active)
}

func tripPayload(pt *Pending, confirmedBy string) events.TripPayload {
	d := events.DriverRef{ID: string(pt.Driver), Email: string(pt.Driver), Name: pt.DriverName}
	if pt.DriverPosition != nil {
		lat, lng := pt.DriverPosition.Lat, pt.DriverPosition.Lng
		d.Lat, d.Lng = &lat, &lng
	}
	return events.TripPayload{
		Passenger:   string(pt.Passenger),
		Driver:      d,
		Origin:      events.CoordOf(pt.Origin),
		Destination: events.CoordOf(pt.Destination),
		Fare:        pt.Fare.Float64(),
		Kind:        pt.Kind,
		ConfirmedBy: confirmedBy,
	}
}

func clampPercent(p float64) float64 {
	switch {
	case p != p, p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

func kindOr(k string) string {
	if k == KindTour {
		return KindTour
	}
	return KindNormal
}

func actorOr(a string) string {
	if a == "" {
		return ActorSystem
	}
	return a
}

func idPtr(id types.ID) *types.ID {
	if id == "" {
		return nil
	}
	return &id
}
