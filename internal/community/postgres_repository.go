package community

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes that mean the transaction can simply be retried.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL feedback repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// RunInTx runs fn in a READ COMMITTED transaction. Cells read through the
// transaction are row-locked until commit.
func (r *PostgresRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return pgConflict(err)
	}
	return pgConflict(tx.Commit(ctx))
}

// pgConflict maps retryable PostgreSQL failures onto ErrTxConflict.
func pgConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Message)
	}
	return err
}

// GetCell retrieves a cell by ID.
func (r *PostgresRepository) GetCell(ctx context.Context, gridID string) (*GridCell, error) {
	query := `
		SELECT grid_id, safe_count, unsafe_count, last_updated
		FROM grid_cells
		WHERE grid_id = $1
	`

	var c GridCell
	err := r.pool.QueryRow(ctx, query, gridID).Scan(&c.GridID, &c.SafeCount, &c.UnsafeCount, &c.LastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetCells retrieves the existing cells among gridIDs in one query.
func (r *PostgresRepository) GetCells(ctx context.Context, gridIDs []string) (map[string]GridCell, error) {
	out := make(map[string]GridCell, len(gridIDs))
	if len(gridIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT grid_id, safe_count, unsafe_count, last_updated
		FROM grid_cells
		WHERE grid_id = ANY($1)
	`

	rows, err := r.pool.Query(ctx, query, gridIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c GridCell
		if err := rows.Scan(&c.GridID, &c.SafeCount, &c.UnsafeCount, &c.LastUpdated); err != nil {
			return nil, err
		}
		out[c.GridID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUserFeedback retrieves a user's cooldown record for a cell.
func (r *PostgresRepository) GetUserFeedback(ctx context.Context, userID, gridID string) (*UserGridFeedback, error) {
	return scanUserFeedback(r.pool.QueryRow(ctx, selectUserFeedback, userID, gridID))
}

const selectUserFeedback = `
	SELECT user_id, grid_id, last_submitted_at, last_report_id
	FROM user_grid_feedback
	WHERE user_id = $1 AND grid_id = $2
`

func scanUserFeedback(row pgx.Row) (*UserGridFeedback, error) {
	var fb UserGridFeedback
	if err := row.Scan(&fb.UserID, &fb.GridID, &fb.LastSubmittedAt, &fb.LastReportID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &fb, nil
}

// ListReports returns the newest reports for a cell.
func (r *PostgresRepository) ListReports(ctx context.Context, gridID string, limit int) ([]*AreaReport, error) {
	if limit <= 0 {
		limit = DefaultReportLimit
	}

	query := `
		SELECT id, grid_id, user_id, is_safe, experience_text, ratings, created_at
		FROM area_reports
		WHERE grid_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, gridID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*AreaReport
	for rows.Next() {
		var (
			rep         AreaReport
			ratingsJSON []byte
		)
		if err := rows.Scan(&rep.ID, &rep.GridID, &rep.UserID, &rep.IsSafe, &rep.ExperienceText, &ratingsJSON, &rep.CreatedAt); err != nil {
			return nil, err
		}
		if len(ratingsJSON) > 0 {
			rep.Ratings = &SafetyRatings{}
			if err := json.Unmarshal(ratingsJSON, rep.Ratings); err != nil {
				return nil, err
			}
		}
		reports = append(reports, &rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Ping checks the pool can reach the database.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type postgresTx struct {
	tx pgx.Tx
}

// GetCell makes sure the row exists, then locks it. Concurrent first
// submissions for a new cell block on the insert instead of racing.
func (t *postgresTx) GetCell(ctx context.Context, gridID string) (GridCell, error) {
	ensure := `
		INSERT INTO grid_cells (grid_id, safe_count, unsafe_count, last_updated)
		VALUES ($1, 0, 0, now())
		ON CONFLICT (grid_id) DO NOTHING
	`
	if _, err := t.tx.Exec(ctx, ensure, gridID); err != nil {
		return GridCell{}, err
	}

	lock := `
		SELECT grid_id, safe_count, unsafe_count, last_updated
		FROM grid_cells
		WHERE grid_id = $1
		FOR UPDATE
	`
	var c GridCell
	if err := t.tx.QueryRow(ctx, lock, gridID).Scan(&c.GridID, &c.SafeCount, &c.UnsafeCount, &c.LastUpdated); err != nil {
		return GridCell{}, err
	}
	return c, nil
}

func (t *postgresTx) GetUserFeedback(ctx context.Context, userID, gridID string) (*UserGridFeedback, error) {
	return scanUserFeedback(t.tx.QueryRow(ctx, selectUserFeedback, userID, gridID))
}

func (t *postgresTx) PutCell(ctx context.Context, cell GridCell) error {
	query := `
		UPDATE grid_cells SET
			safe_count = $2,
			unsafe_count = $3,
			last_updated = $4
		WHERE grid_id = $1
	`
	tag, err := t.tx.Exec(ctx, query, cell.GridID, cell.SafeCount, cell.UnsafeCount, cell.LastUpdated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("put cell %s: %w", cell.GridID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) PutUserFeedback(ctx context.Context, fb UserGridFeedback) error {
	query := `
		INSERT INTO user_grid_feedback (user_id, grid_id, last_submitted_at, last_report_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, grid_id) DO UPDATE SET
			last_submitted_at = EXCLUDED.last_submitted_at,
			last_report_id = EXCLUDED.last_report_id
	`
	_, err := t.tx.Exec(ctx, query, fb.UserID, fb.GridID, fb.LastSubmittedAt, fb.LastReportID)
	return err
}

func (t *postgresTx) AppendReport(ctx context.Context, report *AreaReport) error {
	query := `
		INSERT INTO area_reports (id, grid_id, user_id, is_safe, experience_text, ratings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	var ratingsJSON []byte
	if report.Ratings != nil {
		var err error
		ratingsJSON, err = json.Marshal(report.Ratings)
		if err != nil {
			return err
		}
	}

	_, err := t.tx.Exec(ctx, query,
		report.ID,
		report.GridID,
		report.UserID,
		report.IsSafe,
		report.ExperienceText,
		ratingsJSON,
		report.CreatedAt,
	)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
