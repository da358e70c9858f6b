// README: Trip state for a passenger: live snapshot plus journal history.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"colibri/internal/modules/trip"
	"colibri/internal/types"
)

type TripReader interface {
	Snapshot(passenger types.ID) trip.Snapshot
}

// TripHistory reads the journal. Optional.
type TripHistory interface {
	History(ctx context.Context, passenger types.ID, limit int) ([]trip.Event, error)
}

// DispatchLookup reads who was offered the passenger's last request, and when. Optional.
type DispatchLookup interface {
	Notified(ctx context.Context, passenger types.ID) ([]types.ID, error)
	GetDispatchedAt(ctx context.Context, passenger types.ID) (time.Time, bool, error)
}

type TripHandler struct {
	trips      TripReader
	history    TripHistory
	dispatches DispatchLookup
}

func NewTripHandler(trips TripReader, history TripHistory, dispatches DispatchLookup) *TripHandler {
	return &TripHandler{trips: trips, history: history, dispatches: dispatches}
}

type pointView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type tripView struct {
	TripID             string      `json:"trip_id"`
	Driver             string      `json:"driver,omitempty"`
	DriverName         string      `json:"driver_name,omitempty"`
	Kind               string      `json:"kind"`
	Origin             *pointView  `json:"origin,omitempty"`
	Destination        *pointView  `json:"destination,omitempty"`
	Stops              []pointView `json:"stops,omitempty"`
	Fare               string      `json:"fare"`
	Currency           string      `json:"currency,omitempty"`
	DriverConfirmed    *bool       `json:"driver_confirmed,omitempty"`
	PassengerConfirmed *bool       `json:"passenger_confirmed,omitempty"`
	Phase              string      `json:"phase,omitempty"`
	Progress           *float64    `json:"progress,omitempty"`
	LastPosition       *pointView  `json:"last_position,omitempty"`
	Since              time.Time   `json:"since"`
}

type eventView struct {
	TripID    string    `json:"trip_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Phase     string    `json:"phase,omitempty"`
	Actor     string    `json:"actor"`
	ActorID   string    `json:"actor_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Get returns the passenger's pending or active trip. ?limit=N bounds the
// journal history (default 20).
func (h *TripHandler) Get(c *gin.Context) {
	passenger := c.Param("passenger")
	if !isValidUser(passenger) {
		writeError(c, http.StatusBadRequest, "invalid passenger")
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	id := types.ID(passenger)
	snap := h.trips.Snapshot(id)
	resp := gin.H{"passenger": passenger, "status": snap.Status}
	switch {
	case snap.Active != nil:
		resp["trip"] = activeView(snap.Active)
	case snap.Pending != nil:
		resp["trip"] = pendingView(snap.Pending)
	}

	ctx := c.Request.Context()
	var history []eventView
	if h.history != nil {
		evs, err := h.history.History(ctx, id, limit)
		if err != nil {
			writeTripError(c, err)
			return
		}
		for _, e := range evs {
			history = append(history, toEventView(e))
		}
		resp["history"] = history
	}
	if h.dispatches != nil {
		notified, err := h.dispatches.Notified(ctx, id)
		if err != nil {
			writeTripError(c, err)
			return
		}
		resp["notified"] = len(notified)
		at, ok, err := h.dispatches.GetDispatchedAt(ctx, id)
		if err != nil {
			writeTripError(c, err)
			return
		}
		if ok {
			resp["dispatched_at"] = at
		}
	}

	if snap.Status == trip.StatusNone && len(history) == 0 {
		writeTripError(c, trip.ErrUnknownTrip)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

func pendingView(p *trip.Pending) tripView {
	dc, pc := p.DriverConfirmed, p.PassengerConfirmed
	return tripView{
		TripID:             string(p.TripID),
		Driver:             string(p.Driver),
		DriverName:         p.DriverName,
		Kind:               p.Kind,
		Origin:             toPointView(p.Origin),
		Destination:        toPointView(p.Destination),
		Stops:              toPointViews(p.Destinations),
		Fare:               p.Fare.Amount.StringFixed(2),
		Currency:           p.Fare.Currency,
		DriverConfirmed:    &dc,
		PassengerConfirmed: &pc,
		Since:              p.CreatedAt,
	}
}

func activeView(a *trip.Active) tripView {
	progress := a.Progress
	return tripView{
		TripID:       string(a.TripID),
		Driver:       string(a.Driver),
		DriverName:   a.DriverName,
		Kind:         a.Kind,
		Origin:       toPointView(a.Origin),
		Destination:  toPointView(a.Destination),
		Stops:        toPointViews(a.Destinations),
		Fare:         a.Fare.Amount.StringFixed(2),
		Currency:     a.Fare.Currency,
		Phase:        string(a.Phase),
		Progress:     &progress,
		LastPosition: toPointView(a.LastPosition),
		Since:        a.StartedAt,
	}
}

func toEventView(e trip.Event) eventView {
	v := eventView{
		TripID:    string(e.TripID),
		From:      string(e.FromStatus),
		To:        string(e.ToStatus),
		Phase:     string(e.Phase),
		Actor:     e.ActorType,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt,
	}
	if e.ActorID != nil {
		v.ActorID = string(*e.ActorID)
	}
	return v
}

func toPointView(p *types.Point) *pointView {
	if p == nil {
		return nil
	}
	return &pointView{Lat: p.Lat, Lng: p.Lng}
}

func toPointViews(ps []types.Point) []pointView {
	var out []pointView
	for _, p := range ps {
		out = append(out, pointView{Lat: p.Lat, Lng: p.Lng})
	}
	return out
}
