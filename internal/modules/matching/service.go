// README: Match broker; fans a ride request out to eligible drivers and returns the candidate list.
package matching

import (
	"context"
	"iter"
	"log/slog"
	"math"
	"time"

	"colibri/internal/config"
	"colibri/internal/events"
	"colibri/internal/modules/location"
	"colibri/internal/modules/presence"
	"colibri/internal/modules/pricing"
	"colibri/internal/types"
)

// Presence is the read side of the connection registry.
type Presence interface {
	ListEligible(pred func(presence.DriverPresence) bool) iter.Seq[presence.DriverPresence]
}

type Pricer interface {
	Estimate(ctx context.Context, distanceKm float64) (types.Money, error)
	Quote(ctx context.Context, origin, destination *types.Point) (pricing.Quote, error)
}

// Notifier delivers an event to one connection without blocking.
type Notifier interface {
	SendToConn(connID types.ID, event string, payload any) error
}

// DispatchLog records who was offered a request. Optional.
type DispatchLog interface {
	RecordDispatch(ctx context.Context, passenger types.ID, connIDs []types.ID, at time.Time) error
}

type Service struct {
	presence Presence
	pricer   Pricer
	notifier Notifier
	log      *slog.Logger
	policy   location.Policy
	dispatch DispatchLog
	now      func() time.Time

	quoteTimeout time.Duration
}

func NewService(p Presence, pricer Pricer, notifier Notifier, cfg config.MatchingConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		presence: p,
		pricer:   pricer,
		notifier: notifier,
		log:      log,
		policy: location.Policy{
			Proximity:   cfg.Policy == config.PolicyProximity,
			LimitMeters: cfg.RadiusKm * 1000,
		},
		now:          time.Now,
		quoteTimeout: quoteTimeoutOr(cfg.QuoteTimeout),
	}
}

const defaultQuoteTimeout = 1500 * time.Millisecond

func quoteTimeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return defaultQuoteTimeout
}

// WithDispatchLog attaches a dispatch log; failures to record are logged only.
func (s *Service) WithDispatchLog(d DispatchLog) *Service {
	s.dispatch = d
	return s
}

// RequestRide fans req out to every eligible driver connection and sends the
// candidate list, nearest first, to the requester. It never touches trip state.
func (s *Service) RequestRide(ctx context.Context, req Request) []Candidate {
	req = s.price(ctx, req)
	crit := location.Criteria{
		Origin:     req.Origin,
		Seats:      req.Seats,
		Preference: req.Preference,
		Tour:       req.Kind == KindTour,
	}
	pred := s.predicate(crit)

	var matched []Candidate
	for p := range s.presence.ListEligible(pred) {
		matched = append(matched, Candidate{
			ConnID:         p.ConnID,
			DriverID:       p.DriverID,
			Name:           p.Name,
			Position:       p.Position,
			DistanceMeters: location.DistanceMeters(p.Position, req.Origin),
		})
	}
	location.SortByDistance(matched, func(c Candidate) float64 { return c.DistanceMeters })

	if len(matched) == 0 {
		s.log.Info("no drivers available", "passenger", req.Passenger, "kind", req.Kind)
		s.send(req.ConnID, events.NoDrivers, events.NoDriversPayload{
			Passenger: string(req.Passenger),
			Message:   "No hay conductores disponibles",
		})
		s.record(ctx, req.Passenger, nil)
		return nil
	}

	offer := s.offerPayload(req)
	notified := make([]types.ID, 0, len(matched))
	for _, c := range matched {
		s.send(c.ConnID, events.NewRideAvailable, offer)
		notified = append(notified, c.ConnID)
	}

	candidates := dedupeByDriver(matched)
	s.send(req.ConnID, events.Offers, wireCandidates(candidates))
	s.record(ctx, req.Passenger, notified)

	s.log.Info("ride request dispatched",
		"passenger", req.Passenger, "kind", req.Kind,
		"notified", len(notified), "candidates", len(candidates))
	return candidates
}

func (s *Service) predicate(crit location.Criteria) func(presence.DriverPresence) bool {
	var cells map[string]struct{}
	if s.policy.Proximity && crit.Origin != nil && s.policy.LimitMeters <= maxPrefilterMeters {
		cells = location.CellsAround(*crit.Origin, presence.CellPrecision)
	}
	return func(p presence.DriverPresence) bool {
		if cells != nil {
			if _, ok := cells[p.Cell]; !ok {
				return false
			}
		}
		return location.IsEligible(location.Driver{
			Position:     p.Position,
			Capacity:     p.Capacity,
			Gender:       p.Gender,
			AcceptsTours: p.AcceptsTours,
		}, crit, s.policy)
	}
}

// price fills req.Fare from the server rate. The client estimate survives only
// when no distance is known.
func (s *Service) price(ctx context.Context, req Request) Request {
	if s.pricer == nil {
		return req
	}
	if req.DistanceKm != nil {
		if fare, err := s.pricer.Estimate(ctx, *req.DistanceKm); err == nil {
			req.Fare = fare
			return req
		}
	}
	// The route lookup runs on the requester's reader; past the deadline the
	// pricer falls back to straight-line distance.
	qctx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()
	if q, err := s.pricer.Quote(qctx, req.Origin, req.Destination); err == nil {
		req.Fare = q.Fare
	}
	return req
}

func (s *Service) offerPayload(req Request) events.RideOfferPayload {
	seats := req.Seats
	if seats < 1 {
		seats = 1
	}
	pref := req.Preference
	if pref == "" {
		pref = types.GenderAny
	}
	var dests []events.Coord
	for _, d := range req.Destinations {
		dests = append(dests, *events.CoordOf(&d))
	}
	return events.RideOfferPayload{
		Passenger:       string(req.Passenger),
		Kind:            req.Kind,
		Origin:          events.CoordOf(req.Origin),
		Destination:     events.CoordOf(req.Destination),
		Destinations:    dests,
		OriginText:      req.OriginText,
		DestinationText: req.DestText,
		Distance:        req.DistanceText,
		Duration:        req.DurationText,
		Fare:            req.Fare.Float64(),
		Seats:           seats,
		Preference:      string(pref),
		Timestamp:       s.now().UnixMilli(),
	}
}

func (s *Service) send(connID types.ID, event string, payload any) {
	if connID == "" {
		return
	}
	if err := s.notifier.SendToConn(connID, event, payload); err != nil {
		s.log.Debug("dropped notification", "conn", connID, "event", event, "err", err)
	}
}

func (s *Service) record(ctx context.Context, passenger types.ID, notified []types.ID) {
	if s.dispatch == nil {
		return
	}
	if err := s.dispatch.RecordDispatch(ctx, passenger, notified, s.now()); err != nil {
		s.log.Warn("record dispatch failed", "passenger", passenger, "err", err)
	}
}

// dedupeByDriver keeps the nearest connection of each driver. Input must be sorted.
func dedupeByDriver(sorted []Candidate) []Candidate {
	seen := make(map[types.ID]struct{}, len(sorted))
	out := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		key := c.DriverID
		if key == "" {
			key = c.ConnID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func wireCandidates(cs []Candidate) []events.Candidate {
	out := make([]events.Candidate, len(cs))
	for i, c := range cs {
		wc := events.Candidate{
			ID:    string(c.DriverID),
			Email: string(c.DriverID),
			Name:  c.Name,
		}
		if c.Position != nil {
			lat, lng := c.Position.Lat, c.Position.Lng
			wc.Lat, wc.Lng = &lat, &lng
		}
		if d := c.DistanceMeters; !math.IsInf(d, 0) {
			wc.Distance = &d
		}
		out[i] = wc
	}
	return out
}
