package community

import (
	"context"
	"errors"
)

// ErrNotFound is returned by reads of cells or cooldown records that do not exist.
var ErrNotFound = errors.New("not found")

// Tx is the read-modify-write view of the store inside RunInTx.
type Tx interface {
	// GetCell reads a cell and holds it until the transaction ends, so no
	// other transaction can update it in between. A missing cell is returned
	// with zero counts.
	GetCell(ctx context.Context, gridID string) (GridCell, error)

	// GetUserFeedback returns ErrNotFound when the user never submitted for the cell.
	GetUserFeedback(ctx context.Context, userID, gridID string) (*UserGridFeedback, error)

	PutCell(ctx context.Context, cell GridCell) error
	PutUserFeedback(ctx context.Context, fb UserGridFeedback) error

	// AppendReport adds an entry to the area history. Appending a report
	// whose ID already exists is a no-op.
	AppendReport(ctx context.Context, report *AreaReport) error
}

// Repository defines the interface for feedback persistence.
type Repository interface {
	// RunInTx runs fn in a transaction. Writes made through tx are committed
	// together or not at all. When fn returns an error the transaction is
	// rolled back and the error is returned unchanged. Implementations
	// return ErrTxConflict when the commit lost a race and may be retried.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetCell returns ErrNotFound for a cell without feedback.
	GetCell(ctx context.Context, gridID string) (*GridCell, error)

	// GetCells returns the cells that exist among gridIDs, keyed by ID.
	GetCells(ctx context.Context, gridIDs []string) (map[string]GridCell, error)

	// GetUserFeedback returns ErrNotFound when the user never submitted for the cell.
	GetUserFeedback(ctx context.Context, userID, gridID string) (*UserGridFeedback, error)

	// ListReports returns up to limit reports for a cell, newest first.
	ListReports(ctx context.Context, gridID string, limit int) ([]*AreaReport, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
