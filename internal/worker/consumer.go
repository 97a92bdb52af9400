package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/community"
)

// Submitter applies one feedback submission.
type Submitter interface {
	SubmitFeedback(ctx context.Context, req community.FeedbackRequest) (*community.SubmitResult, error)
}

// FeedbackMessage is the payload of a queued submission.
type FeedbackMessage struct {
	UserID         string                   `json:"userId"`
	Lat            *float64                 `json:"lat"`
	Lng            *float64                 `json:"lng"`
	IsSafe         *bool                    `json:"isSafe"`
	ExperienceText *string                  `json:"experienceText,omitempty"`
	Ratings        *community.SafetyRatings `json:"ratings,omitempty"`
}

// ErrMalformedMessage marks payloads that can never be applied.
var ErrMalformedMessage = errors.New("malformed feedback message")

// ParseFeedbackMessage decodes a payload. Coordinates and isSafe must be
// present; a zero value would otherwise be indistinguishable from a missing
// field.
func ParseFeedbackMessage(data []byte) (community.FeedbackRequest, error) {
	var msg FeedbackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return community.FeedbackRequest{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	switch {
	case msg.Lat == nil || msg.Lng == nil:
		return community.FeedbackRequest{}, fmt.Errorf("%w: lat and lng are required", ErrMalformedMessage)
	case msg.IsSafe == nil:
		return community.FeedbackRequest{}, fmt.Errorf("%w: isSafe is required", ErrMalformedMessage)
	}
	return community.FeedbackRequest{
		UserID:         msg.UserID,
		Lat:            *msg.Lat,
		Lng:            *msg.Lng,
		IsSafe:         *msg.IsSafe,
		ExperienceText: msg.ExperienceText,
		Ratings:        msg.Ratings,
	}, nil
}

// Outcome is what happened to one message.
type Outcome int

const (
	// OutcomeApplied means the feedback was recorded.
	OutcomeApplied Outcome = iota
	// OutcomeCooldown means the user already rated the cell recently.
	OutcomeCooldown
	// OutcomeDropped means the payload can never be applied.
	OutcomeDropped
	// OutcomeRetry means the store failed and the message should be redelivered.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeDropped:
		return "dropped"
	case OutcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Ack reports whether the message is settled. Only OutcomeRetry asks for
// redelivery.
func (o Outcome) Ack() bool {
	return o != OutcomeRetry
}

// Processor turns queued payloads into feedback submissions.
type Processor struct {
	submitter Submitter
	timeout   time.Duration
	logger    zerolog.Logger
	stats     *Stats
}

// NewProcessor creates a processor. A zero timeout uses the default.
func NewProcessor(submitter Submitter, timeout time.Duration, logger zerolog.Logger) *Processor {
	if timeout <= 0 {
		timeout = DefaultConsumerConfig().Timeout
	}
	return &Processor{
		submitter: submitter,
		timeout:   timeout,
		logger:    logger,
		stats:     &Stats{},
	}
}

// Process applies one payload and classifies the result.
func (p *Processor) Process(ctx context.Context, data []byte) Outcome {
	outcome := p.process(ctx, data)
	p.stats.record(outcome, time.Now())
	return outcome
}

func (p *Processor) process(ctx context.Context, data []byte) Outcome {
	req, err := ParseFeedbackMessage(data)
	if err != nil {
		p.logger.Warn().Err(err).Msg("dropping malformed feedback message")
		return OutcomeDropped
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.submitter.SubmitFeedback(ctx, req)
	switch {
	case errors.Is(err, community.ErrInvalidFeedback):
		p.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("dropping invalid feedback")
		return OutcomeDropped
	case err != nil:
		p.logger.Error().Err(err).Str("user_id", req.UserID).Msg("feedback submission failed, will retry")
		return OutcomeRetry
	case !result.Success:
		p.logger.Debug().Str("user_id", req.UserID).Str("grid_id", result.GridID).
			Int("hours_remaining", result.HoursRemaining).Msg("feedback skipped by cooldown")
		return OutcomeCooldown
	}

	p.logger.Debug().Str("grid_id", result.GridID).Msg("feedback applied")
	return OutcomeApplied
}

// Stats returns a snapshot of the processor's counters.
func (p *Processor) Stats() StatsSnapshot {
	return p.stats.snapshot()
}

// Stats counts processed messages by outcome.
type Stats struct {
	mu            sync.Mutex
	applied       int64
	cooldown      int64
	dropped       int64
	retried       int64
	lastMessageAt time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Applied       int64
	Cooldown      int64
	Dropped       int64
	Retried       int64
	LastMessageAt time.Time
}

func (s *Stats) record(o Outcome, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch o {
	case OutcomeApplied:
		s.applied++
	case OutcomeCooldown:
		s.cooldown++
	case OutcomeDropped:
		s.dropped++
	case OutcomeRetry:
		s.retried++
	}
	s.lastMessageAt = at
}

func (s *Stats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Applied:       s.applied,
		Cooldown:      s.cooldown,
		Dropped:       s.dropped,
		Retried:       s.retried,
		LastMessageAt: s.lastMessageAt,
	}
}
