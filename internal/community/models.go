// Package community stores crowd-sourced safety feedback per grid cell and
// derives area and route scores from it.
package community

import (
	"errors"
	"fmt"
	"time"
)

// Cooldown is the minimum time between two submissions by one user for
// one cell.
const Cooldown = 24 * time.Hour

// NeutralScore is the area score of a cell without any feedback.
const NeutralScore = 50

// MaxExperienceTextLength bounds the free-text part of a report.
const MaxExperienceTextLength = 500

// Report listing limits.
const (
	DefaultReportLimit = 20
	MaxReportLimit     = 100
)

// Errors.
var (
	// ErrStoreUnavailable wraps every transient persistence failure.
	ErrStoreUnavailable = errors.New("feedback store unavailable")

	// ErrCooldownActive is matched by *CooldownError.
	ErrCooldownActive = errors.New("feedback cooldown active")

	// ErrTxConflict signals that a transaction lost a race and may be retried.
	ErrTxConflict = errors.New("transaction conflict")

	// ErrInvalidFeedback is returned for malformed submissions.
	ErrInvalidFeedback = errors.New("invalid feedback")
)

// CooldownError is returned from a transaction when the user already
// submitted for the cell within Cooldown.
type CooldownError struct {
	HoursRemaining int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("feedback cooldown active: %d hours remaining", e.HoursRemaining)
}

// Unwrap lets errors.Is match ErrCooldownActive.
func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// GridCell holds the aggregate feedback counts for one cell.
type GridCell struct {
	GridID      string
	SafeCount   int
	UnsafeCount int
	LastUpdated time.Time
}

// Total returns the number of reports counted for the cell.
func (c GridCell) Total() int {
	return c.SafeCount + c.UnsafeCount
}

// HasData reports whether any feedback was counted.
func (c GridCell) HasData() bool {
	return c.Total() > 0
}

// Score returns round(safe/total*100), or NeutralScore when empty.
func (c GridCell) Score() int {
	total := c.Total()
	if total == 0 {
		return NeutralScore
	}
	// Integer half-up rounding of safe*100/total.
	return (c.SafeCount*200 + total) / (2 * total)
}

// UserGridFeedback is the per-user, per-cell cooldown record.
// LastReportID names the report written with the latest submission.
type UserGridFeedback struct {
	UserID          string
	GridID          string
	LastSubmittedAt time.Time
	LastReportID    string
}

// SafetyRatings are optional 1 to 5 ratings attached to a report.
type SafetyRatings struct {
	Lighting       *int `json:"lighting,omitempty"`
	Crowd          *int `json:"crowd,omitempty"`
	PolicePresence *int `json:"policePresence,omitempty"`
	Overall        *int `json:"overall,omitempty"`
}

// Validate checks every present rating is within 1..5.
func (r *SafetyRatings) Validate() error {
	if r == nil {
		return nil
	}
	ratings := []struct {
		name  string
		value *int
	}{
		{"lighting", r.Lighting},
		{"crowd", r.Crowd},
		{"policePresence", r.PolicePresence},
		{"overall", r.Overall},
	}
	for _, rating := range ratings {
		if rating.value != nil && (*rating.value < 1 || *rating.value > 5) {
			return fmt.Errorf("%w: rating %s must be between 1 and 5", ErrInvalidFeedback, rating.name)
		}
	}
	return nil
}

// AreaReport is an immutable history entry.
type AreaReport struct {
	ID             string
	GridID         string
	UserID         string
	IsSafe         bool
	ExperienceText *string
	Ratings        *SafetyRatings
	CreatedAt      time.Time
}

// Eligibility is the result of a cooldown check.
type Eligibility struct {
	CanSubmit      bool
	HoursRemaining int
}

// FeedbackRequest is a single feedback submission.
type FeedbackRequest struct {
	UserID         string
	Lat            float64
	Lng            float64
	IsSafe         bool
	ExperienceText *string
	Ratings        *SafetyRatings
}

// SubmitResult is the outcome of SubmitFeedback. A cooldown is reported with
// Success false and a message carrying the remaining hours.
type SubmitResult struct {
	Success        bool
	Message        string
	GridID         string
	NewScore       *int
	HoursRemaining int
}

// AreaStats summarises a single cell.
type AreaStats struct {
	GridID      string
	SafeCount   int
	UnsafeCount int
	Score       int
	HasData     bool
	LastUpdated *time.Time
}

// RouteScore is the community view of a route.
type RouteScore struct {
	Score        int
	CoveredGrids int
	TotalGrids   int
}
