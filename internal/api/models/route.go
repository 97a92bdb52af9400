package models

import "github.com/saferoute/saferoute/internal/safety"

// RouteScoreRequest is the request body for scoring candidate routes.
type RouteScoreRequest struct {
	Routes      []RouteCandidate `json:"routes" validate:"required,min=1,max=20,dive"`
	Environment EnvironmentInput `json:"environment"`
}

// RouteCandidate describes one candidate route. Unset classifications take
// the scoring defaults.
type RouteCandidate struct {
	RouteID       string  `json:"routeId" validate:"required,max=128"`
	DistanceKm    float64 `json:"distanceKm" validate:"gte=0"`
	DurationMin   float64 `json:"durationMin" validate:"gte=0"`
	TurnCount     int     `json:"turnCount" validate:"gte=0"`
	RoadType      string  `json:"roadType,omitempty" validate:"omitempty,oneof=highway main_road residential alley"`
	CrimeLevel    string  `json:"crimeLevel,omitempty" validate:"omitempty,oneof=low medium high"`
	LightingLevel string  `json:"lightingLevel,omitempty" validate:"omitempty,oneof=well_lit partially_lit dark"`
}

// EnvironmentInput is the travel-time snapshot shared by every route.
// Unknown weather values are accepted and scored as moderate risk.
type EnvironmentInput struct {
	HourOfDay *int   `json:"hourOfDay" validate:"required,gte=0,lte=23"`
	Weather   string `json:"weather,omitempty" validate:"max=32"`
}

// ToDomain converts the request into scoring input.
func (r RouteScoreRequest) ToDomain() ([]safety.RouteInput, safety.Environment) {
	routes := make([]safety.RouteInput, len(r.Routes))
	for i, c := range r.Routes {
		routes[i] = safety.RouteInput{
			RouteID:       c.RouteID,
			DistanceKm:    c.DistanceKm,
			DurationMin:   c.DurationMin,
			TurnCount:     c.TurnCount,
			RoadType:      safety.RoadType(c.RoadType),
			CrimeLevel:    safety.CrimeLevel(c.CrimeLevel),
			LightingLevel: safety.LightingLevel(c.LightingLevel),
		}
	}

	env := safety.Environment{Weather: safety.Weather(r.Environment.Weather)}
	if r.Environment.HourOfDay != nil {
		env.HourOfDay = *r.Environment.HourOfDay
	}
	return routes, env
}

// RouteScoreResponse is the response for route scoring. Results are in
// request order.
type RouteScoreResponse struct {
	GeneratedAt Timestamp      `json:"generatedAt"`
	Results     []SafetyResult `json:"results"`
}

// SafetyResult is the relative safety assessment of one route. Scores are
// only comparable within the same response.
type SafetyResult struct {
	RouteID         string             `json:"routeId"`
	SafetyScore     int                `json:"safetyScore"`
	RawRiskScore    int                `json:"rawRiskScore"`
	Category        string             `json:"category"`
	CategoryLabel   string             `json:"categoryLabel"`
	Rank            int                `json:"rank"`
	RiskFactors     safety.RiskFactors `json:"riskFactors"`
	Highlights      []string           `json:"highlights"`
	Recommendations []string           `json:"recommendations"`
	IsRelative      bool               `json:"isRelative"`
}

// NewSafetyResult converts an engine result.
func NewSafetyResult(r safety.Result) SafetyResult {
	return SafetyResult{
		RouteID:         r.RouteID,
		SafetyScore:     r.SafetyScore,
		RawRiskScore:    r.RawRiskScore,
		Category:        string(r.Category),
		CategoryLabel:   r.Category.Label(),
		Rank:            r.Rank,
		RiskFactors:     r.RiskFactors,
		Highlights:      r.Highlights,
		Recommendations: r.Recommendations,
		IsRelative:      r.IsRelative,
	}
}
