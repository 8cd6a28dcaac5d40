package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers   []string
	LocationsTopic string
	AlertsTopic    string

	PGDSN string

	StripeAPIKey string
	OSRMEndpoint string

	RadiiKm            []float64
	HeartbeatFreshness time.Duration
	WalletMinBalance   int64
	MaxUnpaid          int
	MaxCandidates      int
	AvgSpeedKmh        float64

	SweepMaxAgeTransport   time.Duration
	SweepMaxAgeDelivery    time.Duration
	SweepMaxAgeMarketplace time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "drivers_geo",
		LocationsTopic:  "driver-locations",
		AlertsTopic:     "dispatch-alerts",

		RadiiKm:            []float64{5, 10, 15, 20},
		HeartbeatFreshness: 10 * time.Minute,
		WalletMinBalance:   1000,
		MaxUnpaid:          1,
		MaxCandidates:      8,
		AvgSpeedKmh:        30,

		SweepMaxAgeTransport:   30 * time.Minute,
		SweepMaxAgeDelivery:    30 * time.Minute,
		SweepMaxAgeMarketplace: 24 * time.Hour,

		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.LocationsTopic, "KAFKA_LOCATIONS_TOPIC")
	setStringFromEnv(&cfg.AlertsTopic, "KAFKA_ALERTS_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	cfg.OSRMEndpoint = strings.TrimSpace(os.Getenv("OSRM_ENDPOINT"))

	if v := os.Getenv("RADIUS_STEPS_KM"); v != "" {
		steps, err := parseRadii(v)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.RadiiKm = steps
		}
	}
	setDurationFromEnv(&cfg.HeartbeatFreshness, "HEARTBEAT_FRESHNESS", &errs)
	setInt64FromEnv(&cfg.WalletMinBalance, "WALLET_MIN_BALANCE", &errs)
	setIntFromEnv(&cfg.MaxUnpaid, "MAX_UNPAID_OBLIGATIONS", &errs)
	setIntFromEnv(&cfg.MaxCandidates, "DISPATCH_MAX_CANDIDATES", &errs)
	setFloatFromEnv(&cfg.AvgSpeedKmh, "AVG_SPEED_KMH", &errs)

	setDurationFromEnv(&cfg.SweepMaxAgeTransport, "SWEEP_MAX_AGE_TRANSPORT", &errs)
	setDurationFromEnv(&cfg.SweepMaxAgeDelivery, "SWEEP_MAX_AGE_DELIVERY", &errs)
	setDurationFromEnv(&cfg.SweepMaxAgeMarketplace, "SWEEP_MAX_AGE_MARKETPLACE", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_MAX_CANDIDATES must be > 0"))
	}
	if len(cfg.RadiiKm) == 0 {
		errs = append(errs, fmt.Errorf("RADIUS_STEPS_KM must name at least one radius"))
	}

	return cfg, errors.Join(errs...)
}

func parseRadii(v string) ([]float64, error) {
	parts := splitAndTrim(v)
	out := make([]float64, 0, len(parts))
	prev := 0.0
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RADIUS_STEPS_KM entry %q: %w", p, err)
		}
		if f <= prev {
			return nil, fmt.Errorf("RADIUS_STEPS_KM must be strictly increasing, got %q", v)
		}
		prev = f
		out = append(out, f)
	}
	return out, nil
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
