package community

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/saferoute/saferoute/internal/grid"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// StoreGuardName names the feedback store in the resilience registry.
const StoreGuardName = "feedback-store"

// ServiceConfig holds configuration for the community service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Timeout bounds the store work of a single operation, retries included.
	// Default: 5 seconds
	Timeout time.Duration

	// Cooldown between two submissions by one user for one cell.
	// Default: 24 hours
	Cooldown time.Duration

	// Guard configures retries and the circuit breaker around store calls.
	// If nil, uses resilience.DefaultGuardConfig(StoreGuardName).
	Guard *resilience.GuardConfig

	// Registry receives the store guard's health when set.
	Registry *resilience.Registry

	// RouteBatchSize is the number of cells read per store call when scoring
	// a route. Default: 10
	RouteBatchSize int

	// RouteConcurrency bounds the batches read in parallel. Default: 4
	RouteConcurrency int

	// MaxConflictRetries bounds transaction retries after ErrTxConflict.
	// Default: 5
	MaxConflictRetries uint64

	Tracer trace.Tracer
	Meter  metric.Meter

	// Now and NewID are replaceable for tests.
	Now   func() time.Time
	NewID func() string
}

// Service provides community feedback operations.
type Service struct {
	repo    Repository
	guard   *resilience.Guard
	logger  zerolog.Logger
	tracer  trace.Tracer
	metrics *metrics

	timeout            time.Duration
	cooldown           time.Duration
	batchSize          int
	concurrency        int
	maxConflictRetries uint64

	now   func() time.Time
	newID func() string
}

// NewService creates a new community service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = Cooldown
	}
	if cfg.RouteBatchSize <= 0 {
		cfg.RouteBatchSize = 10
	}
	if cfg.RouteConcurrency <= 0 {
		cfg.RouteConcurrency = 4
	}
	if cfg.MaxConflictRetries == 0 {
		cfg.MaxConflictRetries = 5
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter(instrumentationName)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	guardCfg := resilience.DefaultGuardConfig(StoreGuardName)
	if cfg.Guard != nil {
		guardCfg = *cfg.Guard
	}
	guardCfg.Permanent = isOutcome
	if cfg.Registry != nil {
		guardCfg.Registry = cfg.Registry
	}

	m, err := newMetrics(cfg.Meter)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create community metrics, using noop instruments")
		m = noopMetrics()
	}

	return &Service{
		repo:               cfg.Repository,
		guard:              resilience.NewGuard(guardCfg),
		logger:             cfg.Logger,
		tracer:             cfg.Tracer,
		metrics:            m,
		timeout:            cfg.Timeout,
		cooldown:           cfg.Cooldown,
		batchSize:          cfg.RouteBatchSize,
		concurrency:        cfg.RouteConcurrency,
		maxConflictRetries: cfg.MaxConflictRetries,
		now:                cfg.Now,
		newID:              cfg.NewID,
	}
}

// isOutcome reports errors that describe the request rather than the store.
// They are neither retried nor counted against the circuit breaker.
func isOutcome(err error) bool {
	return errors.Is(err, ErrCooldownActive) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidFeedback) ||
		errors.Is(err, context.Canceled)
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func parseGridID(gridID string) (string, error) {
	cell, err := grid.Parse(gridID)
	if err != nil {
		return "", err
	}
	return cell.ID, nil
}

// GetAreaScore returns the community score of a cell, NeutralScore when
// nobody has reported on it yet.
func (s *Service) GetAreaScore(ctx context.Context, gridID string) (int, error) {
	stats, err := s.GetAreaStats(ctx, gridID)
	if err != nil {
		return 0, err
	}
	return stats.Score, nil
}

// GetAreaStats returns the counts and score of a cell.
func (s *Service) GetAreaStats(ctx context.Context, gridID string) (*AreaStats, error) {
	id, err := parseGridID(gridID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "community.GetAreaStats", trace.WithAttributes(attribute.String("grid.id", id)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cell, err := resilience.Execute(ctx, s.guard, func(ctx context.Context) (*GridCell, error) {
		return s.repo.GetCell(ctx, id)
	})
	if errors.Is(err, ErrNotFound) {
		return &AreaStats{GridID: id, Score: NeutralScore}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read cell failed")
		s.logger.Error().Err(err).Str("grid_id", id).Msg("failed to read grid cell")
		return nil, storeError("get area stats", err)
	}

	updated := cell.LastUpdated
	return &AreaStats{
		GridID:      id,
		SafeCount:   cell.SafeCount,
		UnsafeCount: cell.UnsafeCount,
		Score:       cell.Score(),
		HasData:     cell.HasData(),
		LastUpdated: &updated,
	}, nil
}

// GetAreaScores returns the score of every requested cell, NeutralScore for
// cells without feedback.
func (s *Service) GetAreaScores(ctx context.Context, gridIDs []string) (map[string]int, error) {
	ids := make([]string, 0, len(gridIDs))
	seen := make(map[string]struct{}, len(gridIDs))
	for _, raw := range gridIDs {
		id, err := parseGridID(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	cells, err := s.fetchCells(ctx, ids)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(ids))
	for _, id := range ids {
		scores[id] = cells[id].Score()
	}
	return scores, nil
}

// CheckEligibility reports whether the user may submit feedback for the cell.
//
// A store failure denies the submission and returns the error alongside the
// denial. Callers must never treat an unreadable cooldown as permission.
func (s *Service) CheckEligibility(ctx context.Context, userID, gridID string) (Eligibility, error) {
	if strings.TrimSpace(userID) == "" {
		return Eligibility{}, fmt.Errorf("%w: user id is required", ErrInvalidFeedback)
	}
	id, err := parseGridID(gridID)
	if err != nil {
		return Eligibility{}, err
	}

	ctx, span := s.tracer.Start(ctx, "community.CheckEligibility", trace.WithAttributes(attribute.String("grid.id", id)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fb, err := resilience.Execute(ctx, s.guard, func(ctx context.Context) (*UserGridFeedback, error) {
		return s.repo.GetUserFeedback(ctx, userID, id)
	})
	switch {
	case errors.Is(err, ErrNotFound):
		return Eligibility{CanSubmit: true}, nil
	case err != nil:
		// Fail closed.
		span.RecordError(err)
		s.metrics.eligibilityDeny.Add(ctx, 1)
		s.logger.Warn().Err(err).Str("user_id", userID).Str("grid_id", id).
			Msg("eligibility check failed, denying submission")
		return Eligibility{CanSubmit: false}, storeError("check eligibility", err)
	}

	return s.eligibilityAt(fb.LastSubmittedAt, s.now()), nil
}

// eligibilityAt compares real elapsed time, not calendar days.
func (s *Service) eligibilityAt(last, now time.Time) Eligibility {
	elapsed := now.Sub(last)
	if elapsed >= s.cooldown {
		return Eligibility{CanSubmit: true}
	}

	remaining := s.cooldown - elapsed
	if remaining > s.cooldown {
		// Last submission is in the future; clock skew between writers.
		remaining = s.cooldown
	}
	return Eligibility{
		CanSubmit:      false,
		HoursRemaining: int(math.Ceil(remaining.Hours())),
	}
}

// SubmitFeedback records one safe/unsafe vote for the cell containing the
// request's coordinate. The cell counts, the user's cooldown record and the
// history entry are written in one transaction.
//
// An active cooldown is not an error: the result has Success false and a
// message with the hours remaining. Store failures return an error wrapping
// ErrStoreUnavailable and nothing is written.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*SubmitResult, error) {
	if req.ExperienceText != nil {
		text := strings.TrimSpace(*req.ExperienceText)
		if text == "" {
			req.ExperienceText = nil
		} else {
			req.ExperienceText = &text
		}
	}
	if err := validateFeedback(req); err != nil {
		return nil, err
	}

	gridID := grid.ID(req.Lat, req.Lng)

	ctx, span := s.tracer.Start(ctx, "community.SubmitFeedback", trace.WithAttributes(
		attribute.String("grid.id", gridID),
		attribute.Bool("feedback.is_safe", req.IsSafe),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// One ID for every attempt, so a retry after an ambiguous commit finds
	// its own write instead of a cooldown.
	reportID := s.newID()

	cell, err := resilience.Execute(ctx, s.guard, func(ctx context.Context) (GridCell, error) {
		return s.applyFeedback(ctx, gridID, reportID, req)
	})

	var cooldown *CooldownError
	switch {
	case errors.As(err, &cooldown):
		s.metrics.submission(ctx, outcomeCooldown)
		s.logger.Debug().Str("user_id", req.UserID).Str("grid_id", gridID).
			Int("hours_remaining", cooldown.HoursRemaining).Msg("feedback rejected by cooldown")
		return &SubmitResult{
			Success:        false,
			Message:        cooldownMessage(cooldown.HoursRemaining),
			GridID:         gridID,
			HoursRemaining: cooldown.HoursRemaining,
		}, nil
	case err != nil:
		s.metrics.submission(ctx, outcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		s.logger.Error().Err(err).Str("user_id", req.UserID).Str("grid_id", gridID).Msg("failed to submit feedback")
		return nil, storeError("submit feedback", err)
	}

	s.metrics.submission(ctx, outcomeAccepted)
	score := cell.Score()
	s.logger.Info().Str("grid_id", gridID).Bool("is_safe", req.IsSafe).Int("score", score).Msg("feedback recorded")

	return &SubmitResult{
		Success:  true,
		Message:  "Thank you! Your feedback has been recorded.",
		GridID:   gridID,
		NewScore: &score,
	}, nil
}

func cooldownMessage(hours int) string {
	unit := "hours"
	if hours == 1 {
		unit = "hour"
	}
	return fmt.Sprintf("You have already rated this area. You can submit again in %d %s.", hours, unit)
}

func validateFeedback(req FeedbackRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidFeedback)
	}
	if err := (grid.Point{Lat: req.Lat, Lng: req.Lng}).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFeedback, err)
	}
	if req.ExperienceText != nil && utf8.RuneCountInString(*req.ExperienceText) > MaxExperienceTextLength {
		return fmt.Errorf("%w: experience text exceeds %d characters", ErrInvalidFeedback, MaxExperienceTextLength)
	}
	return req.Ratings.Validate()
}

// applyFeedback runs the submit transaction, retrying lost races.
func (s *Service) applyFeedback(ctx context.Context, gridID, reportID string, req FeedbackRequest) (GridCell, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.maxConflictRetries), ctx)

	var result GridCell
	operation := func() error {
		err := s.repo.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			cell, err := s.submitTx(ctx, tx, gridID, reportID, req)
			if err != nil {
				return err
			}
			result = cell
			return nil
		})
		if errors.Is(err, ErrTxConflict) {
			s.metrics.txConflicts.Add(ctx, 1)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return GridCell{}, err
	}
	return result, nil
}

// submitTx is the read-modify-write of one submission. The increment is
// computed from the cell as read inside the transaction. A cooldown record
// already carrying reportID means an earlier attempt committed; the cell is
// returned unchanged.
func (s *Service) submitTx(ctx context.Context, tx Tx, gridID, reportID string, req FeedbackRequest) (GridCell, error) {
	now := s.now().UTC()

	// The cell is read first: it is what serializes concurrent submissions,
	// including two from the same user.
	cell, err := tx.GetCell(ctx, gridID)
	if err != nil {
		return GridCell{}, err
	}

	prev, err := tx.GetUserFeedback(ctx, req.UserID, gridID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return GridCell{}, err
	case prev.LastReportID == reportID:
		return cell, nil
	default:
		if e := s.eligibilityAt(prev.LastSubmittedAt, now); !e.CanSubmit {
			return GridCell{}, &CooldownError{HoursRemaining: e.HoursRemaining}
		}
	}

	if req.IsSafe {
		cell.SafeCount++
	} else {
		cell.UnsafeCount++
	}
	cell.GridID = gridID
	cell.LastUpdated = now

	if err := tx.PutCell(ctx, cell); err != nil {
		return GridCell{}, err
	}
	if err := tx.PutUserFeedback(ctx, UserGridFeedback{
		UserID:          req.UserID,
		GridID:          gridID,
		LastSubmittedAt: now,
		LastReportID:    reportID,
	}); err != nil {
		return GridCell{}, err
	}
	report := &AreaReport{
		ID:             reportID,
		GridID:         gridID,
		UserID:         req.UserID,
		IsSafe:         req.IsSafe,
		ExperienceText: req.ExperienceText,
		Ratings:        req.Ratings,
		CreatedAt:      now,
	}
	if err := tx.AppendReport(ctx, report); err != nil {
		return GridCell{}, err
	}
	return cell, nil
}

// ReportLimit returns the page size ListReports uses for a requested limit.
func ReportLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultReportLimit
	case limit > MaxReportLimit:
		return MaxReportLimit
	}
	return limit
}

// ListReports returns the newest history entries for a cell. limit defaults
// to DefaultReportLimit and is capped at MaxReportLimit.
func (s *Service) ListReports(ctx context.Context, gridID string, limit int) ([]*AreaReport, error) {
	id, err := parseGridID(gridID)
	if err != nil {
		return nil, err
	}
	limit = ReportLimit(limit)

	ctx, span := s.tracer.Start(ctx, "community.ListReports", trace.WithAttributes(attribute.String("grid.id", id)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reports, err := resilience.Execute(ctx, s.guard, func(ctx context.Context) ([]*AreaReport, error) {
		return s.repo.ListReports(ctx, id, limit)
	})
	if err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("grid_id", id).Msg("failed to list area reports")
		return nil, storeError("list reports", err)
	}
	if reports == nil {
		reports = []*AreaReport{}
	}
	return reports, nil
}

// Ping checks the store without retries, for readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repo.Ping(ctx)
}
