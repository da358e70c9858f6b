// README: Config loader; env (COLIBRI_*) and optional config.yaml over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Dispatch policies for MatchBroker. Exactly one is active per process.
const (
	PolicyProximity = "proximity"
	PolicyCapacity  = "capacity"
)

type MatchingConfig struct {
	// Policy is PolicyProximity (drivers within RadiusKm) or PolicyCapacity (no distance cutoff).
	Policy   string  `mapstructure:"policy"`
	RadiusKm float64 `mapstructure:"radius_km"`
	// QuoteTimeout bounds the route lookup made while pricing a request.
	QuoteTimeout time.Duration `mapstructure:"quote_timeout"`
}

type TripConfig struct {
	PendingTTL    time.Duration `mapstructure:"pending_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type SettlementConfig struct {
	CommissionRate string `mapstructure:"commission_rate"`
	DefaultFare    string `mapstructure:"default_fare"`
	Stream         string `mapstructure:"stream"`
}

type Config struct {
	HTTP struct {
		Addr           string   `mapstructure:"addr"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"http"`
	DB struct {
		DSN     string `mapstructure:"dsn"`
		Migrate bool   `mapstructure:"migrate"`
	} `mapstructure:"db"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Firebase struct {
		ProjectID       string `mapstructure:"project_id"`
		CredentialsFile string `mapstructure:"credentials_file"`
	} `mapstructure:"firebase"`
	Maps struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"maps"`
	Matching   MatchingConfig   `mapstructure:"matching"`
	Trip       TripConfig       `mapstructure:"trip"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

var defaults = map[string]any{
	"http.addr":                  ":3001",
	"http.allowed_origins":       []string{"*"},
	"db.dsn":                     "",
	"db.migrate":                 false,
	"redis.addr":                 "",
	"log.level":                  "info",
	"log.format":                 "json",
	"firebase.project_id":        "",
	"firebase.credentials_file":  "",
	"maps.api_key":               "",
	"matching.policy":            PolicyProximity,
	"matching.radius_km":         5.0,
	"matching.quote_timeout":     1500 * time.Millisecond,
	"trip.pending_ttl":           2 * time.Minute,
	"trip.sweep_interval":        15 * time.Second,
	"settlement.commission_rate": "0.15",
	"settlement.default_fare":    "50",
	"settlement.stream":          "settlement:commissions",
}

// Load reads configuration from COLIBRI_* environment variables and, when present,
// a config.yaml in the working directory. Environment wins over the file.
func Load() (Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("COLIBRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Matching.Policy {
	case PolicyProximity, PolicyCapacity:
	default:
		return fmt.Errorf("matching.policy: unknown policy %q", c.Matching.Policy)
	}
	if c.Matching.Policy == PolicyProximity && c.Matching.RadiusKm <= 0 {
		return errors.New("matching.radius_km must be positive")
	}
	if c.Trip.PendingTTL <= 0 || c.Trip.SweepInterval <= 0 {
		return errors.New("trip.pending_ttl and trip.sweep_interval must be positive")
	}
	return nil
}
