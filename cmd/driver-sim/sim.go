package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"colibri/internal/events"
	"colibri/internal/types"
)

type Config struct {
	URL      string
	Token    string
	Email    string
	Name     string
	Lat      float64
	Lng      float64
	Capacity int
	Gender   string
	Tours    bool
	Tick     time.Duration
	Steps    int
	Once     bool
	LogLevel string
}

type Simulator struct {
	cfg Config
	log *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu    sync.Mutex
	pos   types.Point
	offer *events.RideOfferPayload
	// trip is cancelled when the server tears the pairing down.
	trip context.CancelFunc
}

func NewSimulator(cfg Config, log *slog.Logger) *Simulator {
	if cfg.Steps < 1 {
		cfg.Steps = 1
	}
	return &Simulator{cfg: cfg, log: log, pos: types.Point{Lat: cfg.Lat, Lng: cfg.Lng}}
}

// Run announces the driver and serves offers until ctx ends, the server
// closes the socket, or (with Once) the first trip is finished.
func (s *Simulator) Run(ctx context.Context) error {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if s.cfg.Token != "" {
		q := u.Query()
		q.Set("token", s.cfg.Token)
		u.RawQuery = q.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	s.conn = conn
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := s.announce(); err != nil {
		return err
	}
	s.log.Info("driver online", "email", s.cfg.Email, "lat", s.cfg.Lat, "lng", s.cfg.Lng)

	finished := make(chan struct{}, 1)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-finished:
				return nil
			default:
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var f events.Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			s.log.Warn("bad frame from server", "err", err)
			continue
		}
		s.handle(ctx, f, finished, cancel)
	}
}

func (s *Simulator) handle(ctx context.Context, f events.Frame, finished chan<- struct{}, stop context.CancelFunc) {
	switch f.Event {
	case events.NewRideAvailable:
		var offer events.RideOfferPayload
		if err := json.Unmarshal(f.Data, &offer); err != nil {
			s.log.Warn("bad offer", "err", err)
			return
		}
		s.accept(offer)
	case events.StartPickup:
		var tp events.TripPayload
		if err := json.Unmarshal(f.Data, &tp); err != nil {
			s.log.Warn("bad trip payload", "err", err)
			return
		}
		offer := s.currentOffer(tp.Passenger)
		if offer == nil {
			return
		}
		tripCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.trip = cancel
		s.mu.Unlock()
		go func() {
			defer cancel()
			if err := s.drive(tripCtx, *offer, tp); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Warn("trip aborted", "passenger", tp.Passenger, "err", err)
				}
				return
			}
			if s.cfg.Once {
				finished <- struct{}{}
				stop()
			}
		}()
	case events.TripCancelled, events.EmergencyCancelled:
		s.log.Info("trip cancelled by server", "event", f.Event)
		s.reset()
	case events.CommissionRecorded:
		var c events.CommissionPayload
		_ = json.Unmarshal(f.Data, &c)
		s.log.Info("commission recorded", "fare", c.Fare, "commission", c.Commission, "settled", c.Settled)
	case events.Error:
		var e events.ErrorPayload
		_ = json.Unmarshal(f.Data, &e)
		s.log.Warn("server rejected event", "event", e.Event, "message", e.Message)
	}
}

func (s *Simulator) announce() error {
	lat, lng := s.cfg.Lat, s.cfg.Lng
	return s.send(events.DriverActive, events.DriverActiveEvent{
		Email:        s.cfg.Email,
		DriverName:   s.cfg.Name,
		Lat:          &lat,
		Lng:          &lng,
		Capacity:     events.Number(s.cfg.Capacity),
		Gender:       s.cfg.Gender,
		AcceptsTours: s.cfg.Tours,
	})
}

// accept takes the offer unless a trip is already in hand.
func (s *Simulator) accept(offer events.RideOfferPayload) {
	s.mu.Lock()
	if s.offer != nil {
		s.mu.Unlock()
		return
	}
	s.offer = &offer
	pos := s.pos
	s.mu.Unlock()

	fare := events.Number(offer.Fare)
	err := s.send(events.DriverAccepts, events.DriverAcceptsEvent{
		Driver: &events.DriverRef{
			ID:    s.cfg.Email,
			Email: s.cfg.Email,
			Name:  s.cfg.Name,
			Lat:   &pos.Lat,
			Lng:   &pos.Lng,
		},
		Passenger:   offer.Passenger,
		Origin:      offer.Origin,
		Destination: offer.Destination,
		Kind:        offer.Kind,
		Fare:        &fare,
	})
	if err != nil {
		s.log.Warn("accept failed", "err", err)
		s.reset()
		return
	}
	s.log.Info("offer accepted", "passenger", offer.Passenger, "fare", offer.Fare)
}

func (s *Simulator) currentOffer(passenger string) *events.RideOfferPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offer == nil || s.offer.Passenger != passenger {
		return nil
	}
	o := *s.offer
	return &o
}

func (s *Simulator) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trip != nil {
		s.trip()
		s.trip = nil
	}
	s.offer = nil
}

// drive streams positions to the pickup, boards the passenger, streams to the
// destination and finishes the trip.
func (s *Simulator) drive(ctx context.Context, offer events.RideOfferPayload, tp events.TripPayload) error {
	pickup := pointOr(tp.Origin, offer.Origin)
	dropoff := pointOr(tp.Destination, offer.Destination)
	if pickup == nil || dropoff == nil {
		return errors.New("trip has no origin or destination")
	}

	if err := s.leg(ctx, offer.Passenger, *pickup); err != nil {
		return err
	}
	if err := s.send(events.DriverArrived, events.PhaseEvent{Passenger: offer.Passenger}); err != nil {
		return err
	}
	if err := s.send(events.StartTrip, events.PhaseEvent{Passenger: offer.Passenger}); err != nil {
		return err
	}
	if err := s.leg(ctx, offer.Passenger, *dropoff); err != nil {
		return err
	}

	fare := tp.Fare
	if fare <= 0 {
		fare = offer.Fare
	}
	n := events.Number(fare)
	if err := s.send(events.TripFinished, events.FinishEvent{Passenger: offer.Passenger, Driver: s.cfg.Email, Fare: &n}); err != nil {
		return err
	}
	s.log.Info("trip finished", "passenger", offer.Passenger, "fare", fare)

	s.mu.Lock()
	s.offer = nil
	s.trip = nil
	s.mu.Unlock()
	return nil
}

func (s *Simulator) leg(ctx context.Context, passenger string, to types.Point) error {
	s.mu.Lock()
	from := s.pos
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for i, p := range interpolate(from, to, s.cfg.Steps) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		lat, lng := p.Lat, p.Lng
		progress := events.Number(progressAt(i+1, s.cfg.Steps))
		if err := s.send(events.DriverPosition, events.PositionEvent{
			Passenger: passenger,
			Lat:       &lat,
			Lng:       &lng,
			Progress:  &progress,
		}); err != nil {
			return err
		}
		s.mu.Lock()
		s.pos = p
		s.mu.Unlock()
	}
	return nil
}

func (s *Simulator) send(event string, payload any) error {
	raw, err := events.Encode(event, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

// interpolate returns steps evenly spaced points after from, ending exactly at to.
func interpolate(from, to types.Point, steps int) []types.Point {
	if steps < 1 {
		steps = 1
	}
	out := make([]types.Point, steps)
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		out[i-1] = types.Point{
			Lat: from.Lat + (to.Lat-from.Lat)*f,
			Lng: from.Lng + (to.Lng-from.Lng)*f,
		}
	}
	out[steps-1] = to
	return out
}

func progressAt(step, steps int) float64 {
	if steps < 1 {
		return 100
	}
	return float64(step) * 100 / float64(steps)
}

func pointOr(c, fallback *events.Coord) *types.Point {
	if p := c.Point(); p != nil {
		return p
	}
	return fallback.Point()
}
