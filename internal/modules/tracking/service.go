// README: Position relay; forwards driver positions to the paired passenger.
package tracking

import (
	"context"
	"errors"
	"log/slog"

	"colibri/internal/events"
	"colibri/internal/modules/trip"
	"colibri/internal/types"
)

// Progress is the slice of the trip coordinator the relay needs.
type Progress interface {
	RecordProgress(ctx context.Context, cmd trip.ProgressCommand) (trip.Active, error)
}

type Notifier interface {
	SendToUser(user types.ID, event string, payload any) int
}

type Service struct {
	trips    Progress
	notifier Notifier
	log      *slog.Logger
}

func NewService(trips Progress, notifier Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{trips: trips, notifier: notifier, log: log}
}

type Update struct {
	Passenger types.ID
	Driver    types.ID
	Position  types.Point
	Percent   *float64
}

// Relay records the update on the passenger's active trip and forwards it.
// Updates for unknown or inactive trips, or for an offline passenger, are
// dropped; nothing is buffered. It reports whether the update was delivered.
func (s *Service) Relay(ctx context.Context, u Update) bool {
	a, err := s.trips.RecordProgress(ctx, trip.ProgressCommand{
		Passenger: u.Passenger,
		Driver:    u.Driver,
		Position:  u.Position,
		Percent:   u.Percent,
	})
	if err != nil {
		if !errors.Is(err, trip.ErrUnknownTrip) && !errors.Is(err, trip.ErrNotActive) {
			s.log.Warn("position rejected", "passenger", u.Passenger, "driver", u.Driver, "err", err)
		}
		return false
	}
	n := s.notifier.SendToUser(a.Passenger, events.DriverPosition, events.PositionPayload{
		Passenger: string(a.Passenger),
		Lat:       u.Position.Lat,
		Lng:       u.Position.Lng,
		Progress:  a.Progress,
		Phase:     string(a.Phase),
	})
	return n > 0
}
