// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"unicode"

	"github.com/gin-gonic/gin"

	"colibri/internal/modules/pricing"
	"colibri/internal/modules/trip"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidUser accepts the identities clients use on the realtime channel:
// an email or a display name, without control characters.
func isValidUser(v string) bool {
	if v == "" || len(v) > 254 {
		return false
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTripError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrBadRequest),
		errors.Is(err, pricing.ErrInvalidDistance),
		errors.Is(err, pricing.ErrNoDistance):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrUnknownTrip):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrRaceLost), errors.Is(err, trip.ErrDriverMismatch),
		errors.Is(err, trip.ErrNotActive), errors.Is(err, trip.ErrNoPairing):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
