// README: Entry point; loads config, wires services, starts the HTTP/websocket server and the pending-trip sweeper.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"colibri/internal/config"
	httptransport "colibri/internal/http"
	"colibri/internal/http/handlers"
	"colibri/internal/infra"
	"colibri/internal/maps"
	"colibri/internal/modules/matching"
	"colibri/internal/modules/presence"
	"colibri/internal/modules/pricing"
	"colibri/internal/modules/settlement"
	"colibri/internal/modules/tracking"
	"colibri/internal/modules/trip"
	"colibri/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := infra.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("colibri-api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		v, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return err
		}
		verifier = v
	} else {
		log.Warn("COLIBRI_FIREBASE_PROJECT_ID not set; API and websocket are unauthenticated")
	}

	var (
		wallet  settlement.WalletCreditor
		journal trip.Journal
		history handlers.TripHistory
	)
	if cfg.DB.DSN != "" {
		if cfg.DB.Migrate {
			if err := infra.Migrate(ctx, cfg.DB.DSN, "migrations", log); err != nil {
				return err
			}
		}
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := trip.NewStore(pool)
		journal, history = store, store
		wallet = settlement.NewPostgresWallet(pool)
	} else {
		log.Warn("COLIBRI_DB_DSN not set; trip journal and wallet credits are disabled")
	}

	var (
		mirror     presence.Mirror
		dispatches *matching.Store
		facts      settlement.FactPublisher
	)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		mirror = presence.NewRedisMirror(rdb)
		dispatches = matching.NewStore(rdb)
		facts = settlement.NewRedisLedger(rdb, cfg.Settlement.Stream)
	}

	var routes pricing.RouteEstimator
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		routes = rs
	}

	hub := realtime.NewHub(log)
	registry := presence.NewRegistry(log)
	if mirror != nil {
		registry.WithMirror(mirror)
	}
	pricingSvc := pricing.NewService(pricing.DefaultRate, routes, log)

	matchingSvc := matching.NewService(registry, pricingSvc, hub, cfg.Matching, log)
	var dispatchLookup handlers.DispatchLookup
	if dispatches != nil {
		matchingSvc.WithDispatchLog(dispatches)
		dispatchLookup = dispatches
	}

	tripSvc := trip.NewService(hub, cfg.Trip, log)
	if journal != nil {
		tripSvc.WithJournal(journal)
	}

	settlementSvc, err := settlement.NewService(cfg.Settlement, wallet, hub, log)
	if err != nil {
		return err
	}
	if facts != nil {
		settlementSvc.WithFacts(facts)
	}

	dispatcher := realtime.NewDispatcher(hub, realtime.Deps{
		Presence:   registry,
		Matching:   matchingSvc,
		Trips:      tripSvc,
		Tracking:   tracking.NewService(tripSvc, hub, log),
		Settlement: settlementSvc,
	}, log)

	api := httptransport.NewServer(httptransport.ServerDeps{
		Presence:       registry,
		Trips:          tripSvc,
		History:        history,
		Dispatches:     dispatchLookup,
		Pricing:        pricingSvc,
		Hub:            hub,
		Dispatcher:     dispatcher,
		Verifier:       verifier,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Log:            log,
	})

	go tripSvc.RunPendingExpiry(ctx)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTP.Addr, "policy", cfg.Matching.Policy)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	log.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
