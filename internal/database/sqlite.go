package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteDSN builds a modernc.org/sqlite DSN for path. Transactions take the
// write lock up front and writers wait up to five seconds for each other.
// Use ":memory:" for a throwaway database.
func SQLiteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// OpenSQLite opens and migrates a SQLite database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := MigrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS grid_cells (
		grid_id      TEXT PRIMARY KEY,
		safe_count   INTEGER NOT NULL DEFAULT 0 CHECK (safe_count >= 0),
		unsafe_count INTEGER NOT NULL DEFAULT 0 CHECK (unsafe_count >= 0),
		last_updated INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_grid_feedback (
		user_id           TEXT NOT NULL,
		grid_id           TEXT NOT NULL,
		last_submitted_at INTEGER NOT NULL,
		last_report_id    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, grid_id)
	);

	CREATE TABLE IF NOT EXISTS area_reports (
		id              TEXT PRIMARY KEY,
		grid_id         TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		is_safe         INTEGER NOT NULL,
		experience_text TEXT,
		ratings         TEXT,
		created_at      INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_area_reports_grid_created ON area_reports (grid_id, created_at DESC);
`

// MigrateSQLite creates the feedback store tables if they do not exist.
// Timestamps are stored as Unix nanoseconds.
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}
