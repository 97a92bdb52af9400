package community

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Transactions are serialized, so they never conflict. This is intended for
// testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	txMu sync.Mutex // held for the whole of RunInTx

	mu        sync.RWMutex
	cells     map[string]GridCell
	feedback  map[feedbackKey]UserGridFeedback
	reports   map[string][]*AreaReport
	reportIDs map[string]struct{}
}

type feedbackKey struct {
	userID string
	gridID string
}

// NewInMemoryRepository creates a new in-memory feedback repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		cells:     make(map[string]GridCell),
		feedback:  make(map[feedbackKey]UserGridFeedback),
		reports:   make(map[string][]*AreaReport),
		reportIDs: make(map[string]struct{}),
	}
}

// RunInTx runs fn with writes staged until it returns successfully.
func (r *InMemoryRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		repo:     r,
		cells:    make(map[string]GridCell),
		feedback: make(map[feedbackKey]UserGridFeedback),
		reports:  make(map[string]*AreaReport),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range tx.cells {
		r.cells[id] = c
	}
	for k, fb := range tx.feedback {
		r.feedback[k] = fb
	}
	for _, rep := range tx.order {
		if _, ok := r.reportIDs[rep.ID]; ok {
			continue
		}
		r.reportIDs[rep.ID] = struct{}{}
		r.reports[rep.GridID] = append(r.reports[rep.GridID], rep)
	}
	return nil
}

// GetCell retrieves a cell by ID.
func (r *InMemoryRepository) GetCell(_ context.Context, gridID string) (*GridCell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cells[gridID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// GetCells retrieves the existing cells among gridIDs.
func (r *InMemoryRepository) GetCells(_ context.Context, gridIDs []string) (map[string]GridCell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]GridCell, len(gridIDs))
	for _, id := range gridIDs {
		if c, ok := r.cells[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

// GetUserFeedback retrieves a user's cooldown record for a cell.
func (r *InMemoryRepository) GetUserFeedback(_ context.Context, userID, gridID string) (*UserGridFeedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fb, ok := r.feedback[feedbackKey{userID, gridID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &fb, nil
}

// ListReports returns the newest reports for a cell.
func (r *InMemoryRepository) ListReports(_ context.Context, gridID string, limit int) ([]*AreaReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Reports are stored in insertion order; walking them backwards makes
	// the stable sort put the later of two equal timestamps first.
	all := r.reports[gridID]
	out := make([]*AreaReport, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		cpy := *all[i]
		out = append(out, &cpy)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (r *InMemoryRepository) Ping(context.Context) error {
	return nil
}

type memoryTx struct {
	repo     *InMemoryRepository
	cells    map[string]GridCell
	feedback map[feedbackKey]UserGridFeedback
	reports  map[string]*AreaReport
	order    []*AreaReport
}

func (t *memoryTx) GetCell(_ context.Context, gridID string) (GridCell, error) {
	if c, ok := t.cells[gridID]; ok {
		return c, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	if c, ok := t.repo.cells[gridID]; ok {
		return c, nil
	}
	return GridCell{GridID: gridID}, nil
}

func (t *memoryTx) GetUserFeedback(_ context.Context, userID, gridID string) (*UserGridFeedback, error) {
	key := feedbackKey{userID, gridID}
	if fb, ok := t.feedback[key]; ok {
		return &fb, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	if fb, ok := t.repo.feedback[key]; ok {
		return &fb, nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) PutCell(_ context.Context, cell GridCell) error {
	t.cells[cell.GridID] = cell
	return nil
}

func (t *memoryTx) PutUserFeedback(_ context.Context, fb UserGridFeedback) error {
	t.feedback[feedbackKey{fb.UserID, fb.GridID}] = fb
	return nil
}

func (t *memoryTx) AppendReport(_ context.Context, report *AreaReport) error {
	if _, ok := t.reports[report.ID]; ok {
		return nil
	}
	cpy := *report
	t.reports[report.ID] = &cpy
	t.order = append(t.order, &cpy)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
