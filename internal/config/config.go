// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/database"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DevSigningKey is used when JWT_SIGNING_KEY is unset outside production.
const DevSigningKey = "local-dev-signing-key-change-in-production"

type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Store     StoreConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
	PubSub    PubSubConfig
}

type ServerConfig struct {
	Port       int
	Env        string
	RequireTLS bool
}

// IsProduction reports whether APP_ENV is "production".
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type LoggingConfig struct {
	Level string
}

// ZerologLevel returns the parsed level, info when unparseable.
func (l LoggingConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

type StoreConfig struct {
	Driver         string
	SQLitePath     string
	Postgres       database.Config
	Timeout        time.Duration
	Cooldown       time.Duration
	RouteBatchSize int
}

type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:       getEnvInt("APP_PORT", 8080),
			Env:        getEnv("APP_ENV", "development"),
			RequireTLS: getEnvBool("REQUIRE_TLS", false),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Driver:         getEnv("STORE_DRIVER", DriverMemory),
			SQLitePath:     getEnv("SQLITE_PATH", "./data/saferoute.db"),
			Postgres:       database.ConfigFromEnv(),
			Timeout:        getEnvDuration("STORE_TIMEOUT", 5*time.Second),
			Cooldown:       getEnvDuration("FEEDBACK_COOLDOWN", 24*time.Hour),
			RouteBatchSize: getEnvInt("ROUTE_GRID_BATCH_SIZE", 10),
		},
		Auth: AuthConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", ""),
			Issuer:     getEnv("JWT_ISSUER", "saferoute"),
			Audience:   getEnv("JWT_AUDIENCE", "saferoute-api"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		PubSub: PubSubConfig{
			ProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
			Subscription: getEnv("PUBSUB_SUBSCRIPTION", "feedback-submissions"),
		},
	}

	if cfg.Auth.SigningKey == "" && !cfg.Server.IsProduction() {
		cfg.Auth.SigningKey = DevSigningKey
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level == "" {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Store.Driver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.Store.Cooldown <= 0 {
		return fmt.Errorf("feedback cooldown must be positive")
	}
	if c.Store.RouteBatchSize < 1 {
		return fmt.Errorf("route grid batch size must be at least 1")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be between 0 and 1")
	}

	if c.Auth.SigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required in production")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
