// README: API gateway; registers REST and websocket routes on a gin engine.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillahandlers "github.com/gorilla/handlers"

	"colibri/internal/http/handlers"
	"colibri/internal/http/middleware"
	"colibri/internal/infra"
	"colibri/internal/realtime"
)

type ServerDeps struct {
	Presence   handlers.DriverDirectory
	Trips      handlers.TripReader
	History    handlers.TripHistory
	Dispatches handlers.DispatchLookup
	Pricing    handlers.FareQuoter
	Hub        *realtime.Hub
	Dispatcher *realtime.Dispatcher
	// Verifier guards /api and /ws when set; nil disables auth (local development).
	Verifier       infra.TokenVerifier
	AllowedOrigins []string
	Log            *slog.Logger
}

type Server struct {
	deps ServerDeps
	log  *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{deps: deps, log: log}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	var guard []gin.HandlerFunc
	if s.deps.Verifier != nil {
		guard = append(guard, middleware.Auth(s.deps.Verifier))
	}

	ws := append(append([]gin.HandlerFunc{}, guard...),
		realtime.Handler(s.deps.Hub, s.deps.Dispatcher, realtime.NewUpgrader(s.deps.AllowedOrigins)))
	r.GET("/ws", ws...)

	api := r.Group("/api", guard...)
	drivers := handlers.NewDriverHandler(s.deps.Presence)
	api.GET("/drivers/active", drivers.ListActive)
	api.GET("/drivers/:conn", drivers.Get)
	api.GET("/trips/:passenger", handlers.NewTripHandler(s.deps.Trips, s.deps.History, s.deps.Dispatches).Get)
	api.POST("/fares/estimate", handlers.NewFareHandler(s.deps.Pricing).Estimate)

	return gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins(s.origins()),
		gorillahandlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		gorillahandlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(r)
}

func (s *Server) origins() []string {
	if len(s.deps.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.deps.AllowedOrigins
}
