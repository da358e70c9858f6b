// README: Driver simulator; connects to /ws as a driver, takes the first offer and drives it to completion.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"colibri/internal/infra"
)

func main() {
	cfg := loadConfig()
	log := infra.NewLogger(os.Stderr, cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewSimulator(cfg, log).Run(ctx); err != nil {
		log.Error("simulator stopped", "err", err)
		os.Exit(1)
	}
}

func loadConfig() Config {
	var cfg Config
	fs := pflag.NewFlagSet("driver-sim", pflag.ExitOnError)
	fs.StringVar(&cfg.URL, "url", envOrDefault("COLIBRI_SIM_URL", "ws://localhost:3001/ws"), "websocket endpoint")
	fs.StringVar(&cfg.Token, "token", os.Getenv("COLIBRI_SIM_TOKEN"), "Firebase ID token, sent as ?token=")
	fs.StringVar(&cfg.Email, "email", envOrDefault("COLIBRI_SIM_EMAIL", "conductor.demo@colibri.mx"), "driver email")
	fs.StringVar(&cfg.Name, "name", "Conductor Demo", "driver display name")
	fs.Float64Var(&cfg.Lat, "lat", 19.4326, "starting latitude")
	fs.Float64Var(&cfg.Lng, "lng", -99.1332, "starting longitude")
	fs.IntVar(&cfg.Capacity, "capacity", 4, "passenger seats")
	fs.StringVar(&cfg.Gender, "gender", "hombre", "driver gender as the apps send it")
	fs.BoolVar(&cfg.Tours, "tours", false, "accept tour requests")
	fs.DurationVar(&cfg.Tick, "tick", envOrDefaultDuration("COLIBRI_SIM_TICK", 800*time.Millisecond), "interval between position updates")
	fs.IntVar(&cfg.Steps, "steps", 20, "position updates per leg")
	fs.BoolVar(&cfg.Once, "once", false, "exit after the first completed trip")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "debug, info, warn or error")
	_ = fs.Parse(os.Args[1:])
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}
