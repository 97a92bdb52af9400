// Package safety scores candidate routes by relative safety.
//
// Scoring happens in two stages. Each route is first reduced to an absolute,
// batch-independent raw risk in [0,1] from eight weighted factors. The raw
// risks of every route in the batch are then compared and each route is placed
// in a score band chosen by its rank among the alternatives.
//
// Scores are relative by construction: the same route scored against a
// different set of alternatives can receive a different score, rank and
// category. Callers and tests should treat that as expected behavior.
package safety

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// RoadType classifies the dominant road type of a route.
type RoadType string

const (
	RoadHighway     RoadType = "highway"
	RoadMain        RoadType = "main_road"
	RoadResidential RoadType = "residential"
	RoadAlley       RoadType = "alley"
)

// CrimeLevel is an externally supplied crime classification for a route.
type CrimeLevel string

const (
	CrimeLow    CrimeLevel = "low"
	CrimeMedium CrimeLevel = "medium"
	CrimeHigh   CrimeLevel = "high"
)

// LightingLevel is an externally supplied street lighting classification.
type LightingLevel string

const (
	LightingWellLit      LightingLevel = "well_lit"
	LightingPartiallyLit LightingLevel = "partially_lit"
	LightingDark         LightingLevel = "dark"
)

// Weather is the weather condition at the chosen travel time.
type Weather string

const (
	WeatherClear  Weather = "clear"
	WeatherCloudy Weather = "cloudy"
	WeatherRain   Weather = "rain"
	WeatherStorm  Weather = "storm"
	WeatherFog    Weather = "fog"
)

// Defaults applied to optional RouteInput fields.
const (
	DefaultRoadType = RoadResidential
	DefaultCrime    = CrimeMedium
	DefaultLighting = LightingPartiallyLit
)

// RouteInput describes one candidate route. Optional classifications left
// empty receive the package defaults.
type RouteInput struct {
	RouteID       string
	DistanceKm    float64
	DurationMin   float64
	TurnCount     int
	RoadType      RoadType
	CrimeLevel    CrimeLevel
	LightingLevel LightingLevel
}

// withDefaults returns a copy of the input with empty optional fields filled.
func (r RouteInput) withDefaults() RouteInput {
	if r.RoadType == "" {
		r.RoadType = DefaultRoadType
	}
	if r.CrimeLevel == "" {
		r.CrimeLevel = DefaultCrime
	}
	if r.LightingLevel == "" {
		r.LightingLevel = DefaultLighting
	}
	return r
}

// Environment is the travel-time snapshot shared by every route in a batch.
// It represents the traveler's chosen time, not necessarily the current one.
type Environment struct {
	HourOfDay int
	Weather   Weather
}

// RiskFactors holds the eight risk sub-scores, each in [0,1], and their
// weighted sum.
type RiskFactors struct {
	Distance     float64 `json:"distanceRisk"`
	Duration     float64 `json:"durationRisk"`
	Turns        float64 `json:"turnRisk"`
	TimeOfDay    float64 `json:"timeRisk"`
	Weather      float64 `json:"weatherRisk"`
	Crime        float64 `json:"crimeRisk"`
	Lighting     float64 `json:"lightingRisk"`
	RoadType     float64 `json:"roadTypeRisk"`
	TotalRawRisk float64 `json:"totalRawRisk"`
}

// Category is the relative standing of a route within its batch.
type Category string

const (
	CategorySafest   Category = "Safest"
	CategoryModerate Category = "Moderate"
	CategoryRiskiest Category = "Riskiest"
)

// Label returns the display label for the category.
func (c Category) Label() string {
	switch c {
	case CategorySafest:
		return "Safest Option"
	case CategoryModerate:
		return "Moderate Option"
	case CategoryRiskiest:
		return "Least Safe Option"
	default:
		return string(c)
	}
}

// Result is the scored outcome for one route. It is built fresh for every
// batch and depends on the route's siblings in that batch.
type Result struct {
	RouteID         string
	SafetyScore     int
	RawRiskScore    int
	Category        Category
	Rank            int
	RiskFactors     RiskFactors
	Highlights      []string
	Recommendations []string
	IsRelative      bool
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when route or environment input is malformed.
// The engine itself assumes validated input.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ErrDuplicateRouteID indicates two routes in one batch share an ID.
var ErrDuplicateRouteID = errors.New("duplicate route id in batch")

// Validate checks a batch of routes and its environment before scoring.
func Validate(routes []RouteInput, env Environment) error {
	var errs []FieldError

	if env.HourOfDay < 0 || env.HourOfDay > 23 {
		errs = append(errs, FieldError{Field: "environment.hourOfDay", Message: "must be between 0 and 23"})
	}

	seen := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if r.RouteID == "" {
			errs = append(errs, FieldError{Field: prefix + ".routeId", Message: "is required"})
		} else if _, dup := seen[r.RouteID]; dup {
			errs = append(errs, FieldError{Field: prefix + ".routeId", Message: ErrDuplicateRouteID.Error()})
		} else {
			seen[r.RouteID] = struct{}{}
		}
		if msg := checkNonNegative(r.DistanceKm); msg != "" {
			errs = append(errs, FieldError{Field: prefix + ".distanceKm", Message: msg})
		}
		if msg := checkNonNegative(r.DurationMin); msg != "" {
			errs = append(errs, FieldError{Field: prefix + ".durationMin", Message: msg})
		}
		if r.TurnCount < 0 {
			errs = append(errs, FieldError{Field: prefix + ".turnCount", Message: "must not be negative"})
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func checkNonNegative(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "must be a finite number"
	case v < 0:
		return "must not be negative"
	}
	return ""
}
