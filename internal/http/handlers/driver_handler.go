// README: Driver presence listing.
package handlers

import (
	"iter"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"colibri/internal/modules/presence"
	"colibri/internal/types"
)

type DriverDirectory interface {
	ListEligible(pred func(presence.DriverPresence) bool) iter.Seq[presence.DriverPresence]
	Get(connID types.ID) (presence.DriverPresence, bool)
	Len() int
}

type DriverHandler struct {
	presence DriverDirectory
}

func NewDriverHandler(p DriverDirectory) *DriverHandler {
	return &DriverHandler{presence: p}
}

type driverView struct {
	ConnID       string    `json:"conn_id"`
	Driver       string    `json:"driver"`
	Name         string    `json:"name,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lng          *float64  `json:"lng,omitempty"`
	Capacity     int       `json:"capacity"`
	Gender       string    `json:"gender"`
	AcceptsTours bool      `json:"accepts_tours"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListActive returns every online driver connection. ?tours=true narrows the
// list to drivers who take tours; "online" always counts every connection.
func (h *DriverHandler) ListActive(c *gin.Context) {
	toursOnly := c.Query("tours") == "true"
	drivers := []driverView{}
	for p := range h.presence.ListEligible(func(p presence.DriverPresence) bool {
		return !toursOnly || p.AcceptsTours
	}) {
		drivers = append(drivers, toDriverView(p))
	}
	writeJSON(c, http.StatusOK, gin.H{"count": len(drivers), "online": h.presence.Len(), "drivers": drivers})
}

// Get returns one driver connection by id.
func (h *DriverHandler) Get(c *gin.Context) {
	p, ok := h.presence.Get(types.ID(c.Param("conn")))
	if !ok {
		writeError(c, http.StatusNotFound, "driver not online")
		return
	}
	writeJSON(c, http.StatusOK, toDriverView(p))
}

func toDriverView(p presence.DriverPresence) driverView {
	v := driverView{
		ConnID:       string(p.ConnID),
		Driver:       string(p.DriverID),
		Name:         p.Name,
		Capacity:     p.Capacity,
		Gender:       string(p.Gender),
		AcceptsTours: p.AcceptsTours,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Position != nil {
		lat, lng := p.Position.Lat, p.Position.Lng
		v.Lat, v.Lng = &lat, &lng
	}
	return v
}
