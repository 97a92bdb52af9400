package community

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository is a SQLite implementation of Repository for single-node
// and development deployments. Open the database with database.OpenSQLite so
// that transactions take the write lock when they begin.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite feedback repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// RunInTx runs fn in an immediate transaction.
func (r *SQLiteRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sqliteConflict(err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback error is not critical

	if err := fn(ctx, &sqliteTx{q: tx}); err != nil {
		return sqliteConflict(err)
	}
	return sqliteConflict(tx.Commit())
}

// sqliteConflict maps lock contention onto ErrTxConflict.
func sqliteConflict(err error) error {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %s", ErrTxConflict, sqlErr.Error())
		}
	}
	return err
}

const selectCell = `
	SELECT grid_id, safe_count, unsafe_count, last_updated
	FROM grid_cells
	WHERE grid_id = ?
`

func scanCell(row *sql.Row) (*GridCell, error) {
	var (
		c       GridCell
		updated int64
	)
	if err := row.Scan(&c.GridID, &c.SafeCount, &c.UnsafeCount, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.LastUpdated = time.Unix(0, updated).UTC()
	return &c, nil
}

// GetCell retrieves a cell by ID.
func (r *SQLiteRepository) GetCell(ctx context.Context, gridID string) (*GridCell, error) {
	return scanCell(r.db.QueryRowContext(ctx, selectCell, gridID))
}

// GetCells retrieves the existing cells among gridIDs in one query.
func (r *SQLiteRepository) GetCells(ctx context.Context, gridIDs []string) (map[string]GridCell, error) {
	out := make(map[string]GridCell, len(gridIDs))
	if len(gridIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(gridIDs)), ",")
	query := `
		SELECT grid_id, safe_count, unsafe_count, last_updated
		FROM grid_cells
		WHERE grid_id IN (` + placeholders + `)`

	args := make([]any, len(gridIDs))
	for i, id := range gridIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c       GridCell
			updated int64
		)
		if err := rows.Scan(&c.GridID, &c.SafeCount, &c.UnsafeCount, &updated); err != nil {
			return nil, err
		}
		c.LastUpdated = time.Unix(0, updated).UTC()
		out[c.GridID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUserFeedback retrieves a user's cooldown record for a cell.
func (r *SQLiteRepository) GetUserFeedback(ctx context.Context, userID, gridID string) (*UserGridFeedback, error) {
	return getUserFeedback(ctx, r.db, userID, gridID)
}

func getUserFeedback(ctx context.Context, q queryer, userID, gridID string) (*UserGridFeedback, error) {
	query := `
		SELECT user_id, grid_id, last_submitted_at, last_report_id
		FROM user_grid_feedback
		WHERE user_id = ? AND grid_id = ?
	`

	var (
		fb        UserGridFeedback
		submitted int64
	)
	if err := q.QueryRowContext(ctx, query, userID, gridID).Scan(&fb.UserID, &fb.GridID, &submitted, &fb.LastReportID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fb.LastSubmittedAt = time.Unix(0, submitted).UTC()
	return &fb, nil
}

// ListReports returns the newest reports for a cell.
func (r *SQLiteRepository) ListReports(ctx context.Context, gridID string, limit int) ([]*AreaReport, error) {
	if limit <= 0 {
		limit = DefaultReportLimit
	}

	query := `
		SELECT id, grid_id, user_id, is_safe, experience_text, ratings, created_at
		FROM area_reports
		WHERE grid_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, gridID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*AreaReport
	for rows.Next() {
		var (
			rep     AreaReport
			text    sql.NullString
			ratings sql.NullString
			created int64
		)
		if err := rows.Scan(&rep.ID, &rep.GridID, &rep.UserID, &rep.IsSafe, &text, &ratings, &created); err != nil {
			return nil, err
		}
		if text.Valid {
			rep.ExperienceText = &text.String
		}
		if ratings.Valid {
			rep.Ratings = &SafetyRatings{}
			if err := json.Unmarshal([]byte(ratings.String), rep.Ratings); err != nil {
				return nil, err
			}
		}
		rep.CreatedAt = time.Unix(0, created).UTC()
		reports = append(reports, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Ping checks the database is open.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type sqliteTx struct {
	q queryer
}

// GetCell needs no explicit lock: the immediate transaction already holds
// the database write lock.
func (t *sqliteTx) GetCell(ctx context.Context, gridID string) (GridCell, error) {
	c, err := scanCell(t.q.QueryRowContext(ctx, selectCell, gridID))
	if errors.Is(err, ErrNotFound) {
		return GridCell{GridID: gridID}, nil
	}
	if err != nil {
		return GridCell{}, err
	}
	return *c, nil
}

func (t *sqliteTx) GetUserFeedback(ctx context.Context, userID, gridID string) (*UserGridFeedback, error) {
	return getUserFeedback(ctx, t.q, userID, gridID)
}

func (t *sqliteTx) PutCell(ctx context.Context, cell GridCell) error {
	query := `
		INSERT INTO grid_cells (grid_id, safe_count, unsafe_count, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (grid_id) DO UPDATE SET
			safe_count = excluded.safe_count,
			unsafe_count = excluded.unsafe_count,
			last_updated = excluded.last_updated
	`
	_, err := t.q.ExecContext(ctx, query, cell.GridID, cell.SafeCount, cell.UnsafeCount, cell.LastUpdated.UnixNano())
	return err
}

func (t *sqliteTx) PutUserFeedback(ctx context.Context, fb UserGridFeedback) error {
	query := `
		INSERT INTO user_grid_feedback (user_id, grid_id, last_submitted_at, last_report_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, grid_id) DO UPDATE SET
			last_submitted_at = excluded.last_submitted_at,
			last_report_id = excluded.last_report_id
	`
	_, err := t.q.ExecContext(ctx, query, fb.UserID, fb.GridID, fb.LastSubmittedAt.UnixNano(), fb.LastReportID)
	return err
}

func (t *sqliteTx) AppendReport(ctx context.Context, report *AreaReport) error {
	query := `
		INSERT OR IGNORE INTO area_reports (id, grid_id, user_id, is_safe, experience_text, ratings, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var ratings sql.NullString
	if report.Ratings != nil {
		data, err := json.Marshal(report.Ratings)
		if err != nil {
			return err
		}
		ratings = sql.NullString{String: string(data), Valid: true}
	}

	var text sql.NullString
	if report.ExperienceText != nil {
		text = sql.NullString{String: *report.ExperienceText, Valid: true}
	}

	_, err := t.q.ExecContext(ctx, query,
		report.ID,
		report.GridID,
		report.UserID,
		report.IsSafe,
		text,
		ratings,
		report.CreatedAt.UnixNano(),
	)
	return err
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
