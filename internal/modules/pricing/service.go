// README: Pricing service computes fare estimates.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"colibri/internal/modules/location"
	"colibri/internal/types"
)

var (
	ErrInvalidDistance = errors.New("invalid distance")
	ErrNoDistance      = errors.New("distance unavailable")
)

// RouteEstimator returns the driving distance between two points.
type RouteEstimator interface {
	DistanceKm(ctx context.Context, origin, destination types.Point) (float64, error)
}

type Service struct {
	rate   Rate
	routes RouteEstimator
	log    *slog.Logger
}

// NewService builds a pricing service. routes may be nil, in which case quotes
// fall back to straight-line distance.
func NewService(rate Rate, routes RouteEstimator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{rate: rate, routes: routes, log: log}
}

// Estimate prices a trip of distanceKm: base + perKm * km, rounded to cents.
func (s *Service) Estimate(_ context.Context, distanceKm float64) (types.Money, error) {
	if math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) || distanceKm < 0 {
		return types.Money{}, fmt.Errorf("%w: %v", ErrInvalidDistance, distanceKm)
	}
	amount := s.rate.BaseFare.Add(s.rate.PerKm.Mul(decimal.NewFromFloat(distanceKm)))
	m := types.NewMoney(amount)
	m.Currency = s.rate.Currency
	return m, nil
}

// Quote resolves the distance between origin and destination and prices it.
// A failing route lookup degrades to haversine distance.
func (s *Service) Quote(ctx context.Context, origin, destination *types.Point) (Quote, error) {
	if origin == nil || destination == nil {
		return Quote{}, ErrNoDistance
	}
	q := Quote{Source: SourceHaversine}
	km := location.DistanceMeters(origin, destination) / 1000
	if s.routes != nil {
		routeKm, err := s.routes.DistanceKm(ctx, *origin, *destination)
		if err == nil {
			km = routeKm
			q.Source = SourceRoute
		} else {
			s.log.Warn("route lookup failed, using straight-line distance", "err", err)
		}
	}
	if math.IsInf(km, 0) {
		return Quote{}, ErrNoDistance
	}
	fare, err := s.Estimate(ctx, km)
	if err != nil {
		return Quote{}, err
	}
	q.DistanceKm = km
	q.Fare = fare
	return q, nil
}
