// README: Handler tests against real in-memory services.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"colibri/internal/config"
	"colibri/internal/http/handlers"
	"colibri/internal/modules/presence"
	"colibri/internal/modules/pricing"
	"colibri/internal/modules/trip"
	"colibri/internal/types"
)

type nopNotifier struct{}

func (nopNotifier) SendToUser(types.ID, string, any) int { return 1 }

type stubHistory struct {
	events []trip.Event
	err    error
	limit  int
}

func (s *stubHistory) History(_ context.Context, _ types.ID, limit int) ([]trip.Event, error) {
	s.limit = limit
	return s.events, s.err
}

type stubDispatches struct {
	ids []types.ID
	at  time.Time
}

func (s stubDispatches) Notified(context.Context, types.ID) ([]types.ID, error) {
	return s.ids, nil
}

func (s stubDispatches) GetDispatchedAt(context.Context, types.ID) (time.Time, bool, error) {
	return s.at, !s.at.IsZero(), nil
}

func doRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return out
}

func TestListActiveDrivers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := presence.NewRegistry(nil)
	ctx := context.Background()
	reg.Set(ctx, "c1", presence.DriverPresence{DriverID: "maria@example.com", Position: &types.Point{Lat: 19.43, Lng: -99.13}, AcceptsTours: true})
	reg.Set(ctx, "c2", presence.DriverPresence{DriverID: "luis@example.com"})

	r := gin.New()
	r.GET("/api/drivers/active", handlers.NewDriverHandler(reg).ListActive)

	w := doRequest(r, http.MethodGet, "/api/drivers/active", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["count"] != float64(2) || body["online"] != float64(2) {
		t.Fatalf("expected 2 drivers, got %v", body)
	}

	w = doRequest(r, http.MethodGet, "/api/drivers/active?tours=true", nil)
	body := decode(t, w)
	if body["count"] != float64(1) || body["online"] != float64(2) {
		t.Fatalf("expected 1 tour driver of 2 online, got %v", body)
	}
	first := body["drivers"].([]any)[0].(map[string]any)
	if first["driver"] != "maria@example.com" || first["capacity"] != float64(presence.DefaultCapacity) {
		t.Fatalf("unexpected driver view %v", first)
	}
}

func TestGetDriver(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := presence.NewRegistry(nil)
	reg.Set(context.Background(), "c1", presence.DriverPresence{DriverID: "maria@example.com", Name: "María",
		Position: &types.Point{Lat: 19.43, Lng: -99.13}})

	r := gin.New()
	r.GET("/api/drivers/:conn", handlers.NewDriverHandler(reg).Get)

	w := doRequest(r, http.MethodGet, "/api/drivers/c1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["driver"] != "maria@example.com" || body["name"] != "María" || body["lat"] != 19.43 {
		t.Fatalf("unexpected driver %v", body)
	}
	if w := doRequest(r, http.MethodGet, "/api/drivers/nadie", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func newTripRouter(svc *trip.Service, history handlers.TripHistory, dispatches handlers.DispatchLookup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/trips/:passenger", handlers.NewTripHandler(svc, history, dispatches).Get)
	return r
}

func newTripService() *trip.Service {
	return trip.NewService(nopNotifier{}, config.TripConfig{PendingTTL: time.Minute, SweepInterval: time.Second}, nil)
}

func TestGetTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTripService()
	origin := &types.Point{Lat: 19.43, Lng: -99.13}

	if err := svc.DriverAccepts(ctx, trip.AcceptCommand{Passenger: "ana", Driver: "maria@example.com", Origin: origin}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTripRouter(svc, nil, stubDispatches{ids: []types.ID{"c1", "c2"}, at: at})

	w := doRequest(r, http.MethodGet, "/api/trips/ana", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != string(trip.StatusPending) || body["notified"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
	if body["dispatched_at"] != "2026-05-01T12:00:00Z" {
		t.Fatalf("unexpected dispatched_at %v", body["dispatched_at"])
	}
	view := body["trip"].(map[string]any)
	if view["driver_confirmed"] != true || view["passenger_confirmed"] != false {
		t.Fatalf("unexpected handshake flags %v", view)
	}

	if err := svc.PassengerConfirms(ctx, trip.ConfirmCommand{Passenger: "ana", Driver: "maria@example.com", Origin: origin,
		Fare: types.MoneyFromFloat(69.2)}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	body = decode(t, doRequest(r, http.MethodGet, "/api/trips/ana", nil))
	view = body["trip"].(map[string]any)
	if body["status"] != string(trip.StatusActive) || view["phase"] != string(trip.PhaseEnRouteToPickup) || view["fare"] != "69.20" {
		t.Fatalf("unexpected active trip %v", body)
	}
}

func TestGetTripNotFound(t *testing.T) {
	r := newTripRouter(newTripService(), nil, nil)
	if w := doRequest(r, http.MethodGet, "/api/trips/nadie", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetTripHistory(t *testing.T) {
	driver := types.ID("maria@example.com")
	h := &stubHistory{events: []trip.Event{{
		TripID: "t1", FromStatus: trip.StatusActive, ToStatus: trip.StatusCompleted,
		Phase: trip.PhaseCompleted, ActorType: trip.ActorDriver, ActorID: &driver,
	}}}
	r := newTripRouter(newTripService(), h, nil)

	w := doRequest(r, http.MethodGet, "/api/trips/ana?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finished trips should still be visible, got %d", w.Code)
	}
	if h.limit != 5 {
		t.Fatalf("expected limit 5, got %d", h.limit)
	}
	body := decode(t, w)
	if body["status"] != string(trip.StatusNone) || len(body["history"].([]any)) != 1 {
		t.Fatalf("unexpected body %v", body)
	}

	if w := doRequest(r, http.MethodGet, "/api/trips/ana?limit=0", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}

	h.err = errors.New("db down")
	if w := doRequest(r, http.MethodGet, "/api/trips/ana", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on journal failure, got %d", w.Code)
	}
}

func TestFareEstimate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/fares/estimate", handlers.NewFareHandler(pricing.NewService(pricing.DefaultRate, nil, nil)).Estimate)

	tests := []struct {
		name   string
		body   any
		want   int
		fare   string
		source string
	}{
		{name: "known distance", body: map[string]any{"distance_km": 5.2}, want: http.StatusOK, fare: "69.20", source: "client"},
		{name: "zero distance is the base fare", body: map[string]any{"distance_km": 0}, want: http.StatusOK, fare: "25.00", source: "client"},
		{name: "straight line", body: map[string]any{
			"origin": map[string]any{"lat": 19.43, "lng": -99.13}, "destination": map[string]any{"lat": 19.43, "lng": -99.13},
		}, want: http.StatusOK, fare: "25.00", source: pricing.SourceHaversine},
		{name: "negative distance", body: map[string]any{"distance_km": -1}, want: http.StatusBadRequest},
		{name: "nothing to price", body: map[string]any{}, want: http.StatusBadRequest},
		{name: "invalid coordinates", body: map[string]any{
			"origin": map[string]any{"lat": 120, "lng": 0}, "destination": map[string]any{"lat": 0, "lng": 0},
		}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/api/fares/estimate", tt.body)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			body := decode(t, w)
			if body["fare"] != tt.fare || body["source"] != tt.source || body["currency"] != types.DefaultCurrency {
				t.Fatalf("unexpected estimate %v", body)
			}
		})
	}
}

func TestFareEstimateRejectsBadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/fares/estimate", handlers.NewFareHandler(pricing.NewService(pricing.DefaultRate, nil, nil)).Estimate)

	req := httptest.NewRequest(http.MethodPost, "/api/fares/estimate", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
