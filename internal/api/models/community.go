package models

import "github.com/saferoute/saferoute/internal/community"

// Route sampling limits for community scoring.
const (
	DefaultSampleEvery = 5
	MaxRoutePoints     = 5000
)

// CommunityScoreRequest asks for the community score of a route given as
// explicit points or an encoded polyline. When both are set, points win.
// SampleMeters resamples the polyline at a fixed spacing and takes
// precedence over SampleEvery.
type CommunityScoreRequest struct {
	Points       []Point `json:"points,omitempty" validate:"omitempty,max=5000,dive"`
	Polyline     string  `json:"polyline,omitempty" validate:"max=200000"`
	SampleEvery  int     `json:"sampleEvery,omitempty" validate:"omitempty,gte=1,lte=100"`
	SampleMeters float64 `json:"sampleMeters,omitempty" validate:"omitempty,gte=10,lte=5000"`
}

// CommunityScoreResponse is the community view of a route.
type CommunityScoreResponse struct {
	Score        int `json:"score"`
	CoveredGrids int `json:"coveredGrids"`
	TotalGrids   int `json:"totalGrids"`
}

// NewCommunityScoreResponse converts a route score.
func NewCommunityScoreResponse(s *community.RouteScore) CommunityScoreResponse {
	return CommunityScoreResponse{
		Score:        s.Score,
		CoveredGrids: s.CoveredGrids,
		TotalGrids:   s.TotalGrids,
	}
}

// GridLookupResponse returns the cell containing a coordinate.
type GridLookupResponse struct {
	GridID string `json:"gridId"`
	Center Point  `json:"center"`
}

// AreaResponse summarises one grid cell.
type AreaResponse struct {
	GridID      string     `json:"gridId"`
	Score       int        `json:"score"`
	SafeCount   int        `json:"safeCount"`
	UnsafeCount int        `json:"unsafeCount"`
	HasData     bool       `json:"hasData"`
	LastUpdated *Timestamp `json:"lastUpdated,omitempty"`
}

// NewAreaResponse converts area stats.
func NewAreaResponse(s *community.AreaStats) AreaResponse {
	return AreaResponse{
		GridID:      s.GridID,
		Score:       s.Score,
		SafeCount:   s.SafeCount,
		UnsafeCount: s.UnsafeCount,
		HasData:     s.HasData,
		LastUpdated: TimestampPtr(s.LastUpdated),
	}
}

// SafetyRatings are optional 1 to 5 ratings.
type SafetyRatings struct {
	Lighting       *int `json:"lighting,omitempty" validate:"omitempty,gte=1,lte=5"`
	Crowd          *int `json:"crowd,omitempty" validate:"omitempty,gte=1,lte=5"`
	PolicePresence *int `json:"policePresence,omitempty" validate:"omitempty,gte=1,lte=5"`
	Overall        *int `json:"overall,omitempty" validate:"omitempty,gte=1,lte=5"`
}

func (r *SafetyRatings) toDomain() *community.SafetyRatings {
	if r == nil {
		return nil
	}
	return &community.SafetyRatings{
		Lighting:       r.Lighting,
		Crowd:          r.Crowd,
		PolicePresence: r.PolicePresence,
		Overall:        r.Overall,
	}
}

func newSafetyRatings(r *community.SafetyRatings) *SafetyRatings {
	if r == nil {
		return nil
	}
	return &SafetyRatings{
		Lighting:       r.Lighting,
		Crowd:          r.Crowd,
		PolicePresence: r.PolicePresence,
		Overall:        r.Overall,
	}
}

// FeedbackRequest is the request body for submitting area feedback.
type FeedbackRequest struct {
	Lat            float64        `json:"lat" validate:"gte=-90,lte=90"`
	Lng            float64        `json:"lng" validate:"gte=-180,lte=180"`
	IsSafe         *bool          `json:"isSafe" validate:"required"`
	ExperienceText *string        `json:"experienceText,omitempty" validate:"omitempty,max=500"`
	Ratings        *SafetyRatings `json:"ratings,omitempty"`
}

// ToDomain converts the request for the given authenticated user.
func (r FeedbackRequest) ToDomain(userID string) community.FeedbackRequest {
	req := community.FeedbackRequest{
		UserID:         userID,
		Lat:            r.Lat,
		Lng:            r.Lng,
		ExperienceText: r.ExperienceText,
		Ratings:        r.Ratings.toDomain(),
	}
	if r.IsSafe != nil {
		req.IsSafe = *r.IsSafe
	}
	return req
}

// FeedbackResponse is the outcome of a submission.
type FeedbackResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	GridID         string `json:"gridId"`
	NewScore       *int   `json:"newScore,omitempty"`
	HoursRemaining *int   `json:"hoursRemaining,omitempty"`
}

// NewFeedbackResponse converts a submit result.
func NewFeedbackResponse(r *community.SubmitResult) FeedbackResponse {
	resp := FeedbackResponse{
		Success:  r.Success,
		Message:  r.Message,
		GridID:   r.GridID,
		NewScore: r.NewScore,
	}
	if !r.Success {
		hours := r.HoursRemaining
		resp.HoursRemaining = &hours
	}
	return resp
}

// EligibilityResponse reports whether the caller may submit for a cell.
type EligibilityResponse struct {
	GridID         string `json:"gridId"`
	CanSubmit      bool   `json:"canSubmit"`
	HoursRemaining *int   `json:"hoursRemaining,omitempty"`
}

// NewEligibilityResponse converts an eligibility check.
func NewEligibilityResponse(gridID string, e community.Eligibility) EligibilityResponse {
	resp := EligibilityResponse{GridID: gridID, CanSubmit: e.CanSubmit}
	if !e.CanSubmit && e.HoursRemaining > 0 {
		hours := e.HoursRemaining
		resp.HoursRemaining = &hours
	}
	return resp
}

// AreaReport is one entry of a cell's report history. The reporting user
// is not exposed.
type AreaReport struct {
	ID             string         `json:"id"`
	IsSafe         bool           `json:"isSafe"`
	ExperienceText *string        `json:"experienceText,omitempty"`
	Ratings        *SafetyRatings `json:"ratings,omitempty"`
	CreatedAt      Timestamp      `json:"createdAt"`
}

// AreaReportsResponse lists the newest reports for a cell.
type AreaReportsResponse struct {
	GridID  string       `json:"gridId"`
	Limit   int          `json:"limit"`
	Reports []AreaReport `json:"reports"`
}

// NewAreaReportsResponse converts a report listing.
func NewAreaReportsResponse(gridID string, limit int, reports []*community.AreaReport) AreaReportsResponse {
	out := make([]AreaReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, AreaReport{
			ID:             r.ID,
			IsSafe:         r.IsSafe,
			ExperienceText: r.ExperienceText,
			Ratings:        newSafetyRatings(r.Ratings),
			CreatedAt:      Timestamp(r.CreatedAt),
		})
	}
	return AreaReportsResponse{GridID: gridID, Limit: limit, Reports: out}
}

