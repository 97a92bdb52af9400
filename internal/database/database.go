// Package database provides PostgreSQL and SQLite connection management and
// the feedback store schema.
package database

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	port, _ := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "10"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "2"))
	lifetime, _ := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "5m"))

	return Config{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "saferoute"),
		Password:        getEnvOrDefault("DB_PASSWORD", "localdev"),
		Database:        getEnvOrDefault("DB_NAME", "saferoute"),
		SSLMode:         getEnvOrDefault("DB_SSL_MODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: lifetime,
	}
}

// ConnectionString returns the PostgreSQL connection string.
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Connect creates a new database connection pool.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // MaxOpenConns is bounded by config validation
	poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // MaxIdleConns is bounded by config validation
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS grid_cells (
		grid_id      TEXT PRIMARY KEY,
		safe_count   INTEGER NOT NULL DEFAULT 0 CHECK (safe_count >= 0),
		unsafe_count INTEGER NOT NULL DEFAULT 0 CHECK (unsafe_count >= 0),
		last_updated TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_grid_feedback (
		user_id           TEXT NOT NULL,
		grid_id           TEXT NOT NULL,
		last_submitted_at TIMESTAMPTZ NOT NULL,
		last_report_id    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, grid_id)
	);

	ALTER TABLE user_grid_feedback ADD COLUMN IF NOT EXISTS last_report_id TEXT NOT NULL DEFAULT '';

	CREATE TABLE IF NOT EXISTS area_reports (
		id              TEXT PRIMARY KEY,
		grid_id         TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		is_safe         BOOLEAN NOT NULL,
		experience_text TEXT,
		ratings         JSONB,
		created_at      TIMESTAMPTZ NOT NULL,
		seq             BIGSERIAL
	);

	ALTER TABLE area_reports ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

	CREATE INDEX IF NOT EXISTS idx_area_reports_grid_created_seq ON area_reports (grid_id, created_at DESC, seq DESC);
`

// Migrate creates the feedback store tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
