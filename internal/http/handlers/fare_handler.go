// README: Fare estimates for the passenger app before it searches for a driver.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"colibri/internal/modules/pricing"
	"colibri/internal/types"
)

type FareQuoter interface {
	Estimate(ctx context.Context, distanceKm float64) (types.Money, error)
	Quote(ctx context.Context, origin, destination *types.Point) (pricing.Quote, error)
}

type FareHandler struct {
	pricing FareQuoter
}

func NewFareHandler(p FareQuoter) *FareHandler {
	return &FareHandler{pricing: p}
}

type estimateReq struct {
	DistanceKm  *float64   `json:"distance_km"`
	Origin      *pointView `json:"origin"`
	Destination *pointView `json:"destination"`
}

type estimateResp struct {
	Fare       string  `json:"fare"`
	Currency   string  `json:"currency"`
	DistanceKm float64 `json:"distance_km"`
	Source     string  `json:"source"`
}

// Estimate prices a known distance, or resolves one from origin and destination.
func (h *FareHandler) Estimate(c *gin.Context) {
	var req estimateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := c.Request.Context()

	if req.DistanceKm != nil {
		fare, err := h.pricing.Estimate(ctx, *req.DistanceKm)
		if err != nil {
			writeTripError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, estimateResp{
			Fare:       fare.Amount.StringFixed(2),
			Currency:   fare.Currency,
			DistanceKm: *req.DistanceKm,
			Source:     "client",
		})
		return
	}

	q, err := h.pricing.Quote(ctx, fromPointView(req.Origin), fromPointView(req.Destination))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, estimateResp{
		Fare:       q.Fare.Amount.StringFixed(2),
		Currency:   q.Fare.Currency,
		DistanceKm: q.DistanceKm,
		Source:     q.Source,
	})
}

func fromPointView(p *pointView) *types.Point {
	if p == nil {
		return nil
	}
	pt := types.Point{Lat: p.Lat, Lng: p.Lng}
	if !pt.Valid() {
		return nil
	}
	return &pt
}
