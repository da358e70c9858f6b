package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"colibri/internal/types"
)

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key. Extra
// client options (base URL, HTTP client) are passed through.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Leg is the first leg of the driving route.
type Leg struct {
	DistanceKm   float64
	DistanceText string
	Duration     time.Duration
}

// DrivingLeg returns the driving distance and duration between two points.
func (s *RouteService) DrivingLeg(ctx context.Context, origin, destination types.Point) (Leg, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
		Language:    "es-419",
		Region:      "mx",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Leg{}, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Leg{}, ErrNoRoute
	}

	leg := routes[0].Legs[0]
	return Leg{
		DistanceKm:   float64(leg.Distance.Meters) / 1000,
		DistanceText: leg.Distance.HumanReadable,
		Duration:     leg.Duration,
	}, nil
}

// DistanceKm satisfies pricing.RouteEstimator.
func (s *RouteService) DistanceKm(ctx context.Context, origin, destination types.Point) (float64, error) {
	leg, err := s.DrivingLeg(ctx, origin, destination)
	if err != nil {
		return 0, err
	}
	return leg.DistanceKm, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
