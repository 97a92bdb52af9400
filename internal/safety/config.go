package safety

import (
	"errors"
	"fmt"
	"math"
)

// Weights are the category weights of the raw risk aggregate. They must sum
// to exactly 1.
type Weights struct {
	Crime     float64
	Lighting  float64
	TimeOfDay float64
	Distance  float64
	Duration  float64
	RoadType  float64
	Weather   float64
	Turns     float64
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Crime + w.Lighting + w.TimeOfDay + w.Distance +
		w.Duration + w.RoadType + w.Weather + w.Turns
}

// Band is an inclusive integer score range.
type Band struct {
	Min int
	Max int
}

// Width returns the span of the band.
func (b Band) Width() int {
	return b.Max - b.Min
}

// Contains reports whether score lies within the band.
func (b Band) Contains(score int) bool {
	return score >= b.Min && score <= b.Max
}

// Config is the immutable scoring configuration shared by the aggregator and
// the relative scoring engine.
type Config struct {
	Weights Weights

	// Safest, Moderate and Riskiest are the bands for rank 1, middle ranks
	// and rank N of a multi-route batch.
	Safest   Band
	Moderate Band
	Riskiest Band

	// Single clamps the lenient absolute mapping used when a batch holds
	// only one route.
	Single Band

	// SingleOffset is added to the inverted risk percentage for single-route
	// batches before clamping.
	SingleOffset float64

	// MinSpread is the raw risk spread below which routes are treated as
	// indistinguishable.
	MinSpread float64

	// FlatPosition is where in the band indistinguishable routes are placed
	// (0 = band minimum, 1 = band maximum).
	FlatPosition float64
}

// DefaultConfig returns the production scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Crime:     0.25,
			Lighting:  0.15,
			TimeOfDay: 0.15,
			Distance:  0.10,
			Duration:  0.10,
			RoadType:  0.10,
			Weather:   0.10,
			Turns:     0.05,
		},
		Safest:       Band{Min: 75, Max: 92},
		Moderate:     Band{Min: 58, Max: 74},
		Riskiest:     Band{Min: 42, Max: 57},
		Single:       Band{Min: 55, Max: 90},
		SingleOffset: 15,
		MinSpread:    0.01,
		FlatPosition: 0.7,
	}
}

// ErrInvalidConfig indicates a scoring configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid scoring config")

const weightTolerance = 1e-9

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	w := c.Weights
	for _, v := range []float64{w.Crime, w.Lighting, w.TimeOfDay, w.Distance, w.Duration, w.RoadType, w.Weather, w.Turns} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: weights must be non-negative", ErrInvalidConfig)
		}
	}
	if math.Abs(w.Sum()-1) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidConfig, w.Sum())
	}

	for name, b := range map[string]Band{
		"safest": c.Safest, "moderate": c.Moderate, "riskiest": c.Riskiest, "single": c.Single,
	} {
		if b.Min < 0 || b.Max > 100 || b.Min > b.Max {
			return fmt.Errorf("%w: %s band [%d,%d] out of order or outside [0,100]", ErrInvalidConfig, name, b.Min, b.Max)
		}
	}
	if c.Riskiest.Max >= c.Moderate.Min || c.Moderate.Max >= c.Safest.Min {
		return fmt.Errorf("%w: bands must not overlap", ErrInvalidConfig)
	}

	if c.MinSpread < 0 {
		return fmt.Errorf("%w: min spread must be non-negative", ErrInvalidConfig)
	}
	if c.FlatPosition < 0 || c.FlatPosition > 1 {
		return fmt.Errorf("%w: flat position must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}
