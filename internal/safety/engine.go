package safety

import (
	"math"
	"sort"
)

// Engine scores batches of candidate routes. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given configuration.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// MustNewEngine is like NewEngine but panics on an invalid configuration.
func MustNewEngine(cfg Config) *Engine {
	e, err := NewEngine(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// Assess computes the absolute risk factors of a single route.
func (e *Engine) Assess(route RouteInput, env Environment) RiskFactors {
	return e.cfg.Weights.Aggregate(Factors(route, env))
}

// ScoreRoutes scores every route against its batch siblings. Results are
// returned in input order. An empty batch yields an empty slice.
//
// Input must already have passed Validate.
func (e *Engine) ScoreRoutes(routes []RouteInput, env Environment) []Result {
	if len(routes) == 0 {
		return []Result{}
	}

	// Raw risk for every route must exist before any relative score can.
	factors := make([]RiskFactors, len(routes))
	risks := make([]float64, len(routes))
	for i, r := range routes {
		factors[i] = e.Assess(r, env)
		risks[i] = factors[i].TotalRawRisk
	}

	placements := e.Rank(risks)

	results := make([]Result, len(routes))
	for i, r := range routes {
		p := placements[i]
		results[i] = Result{
			RouteID:      r.RouteID,
			SafetyScore:  p.Score,
			RawRiskScore: int(math.Round(risks[i] * 100)),
			Category:     p.Category,
			Rank:         p.Rank,
			RiskFactors:  factors[i],
			IsRelative:   true,
		}
		results[i].Highlights = Highlights(factors[i], p.Rank, len(routes))
		results[i].Recommendations = Recommendations(factors[i])
	}
	return results
}

// Placement is a route's relative position within its batch.
type Placement struct {
	Rank     int
	Score    int
	Category Category
}

// Rank places each raw risk relative to the others. The returned slice is
// index-aligned with risks. Ranks follow ascending risk; ties keep input
// order.
func (e *Engine) Rank(risks []float64) []Placement {
	n := len(risks)
	placements := make([]Placement, n)
	if n == 0 {
		return placements
	}

	if n == 1 {
		placements[0] = Placement{
			Rank:     1,
			Score:    e.singleScore(risks[0]),
			Category: CategorySafest,
		}
		return placements
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return risks[order[a]] < risks[order[b]]
	})

	minRisk, maxRisk := risks[order[0]], risks[order[n-1]]
	spread := maxRisk - minRisk

	for pos, idx := range order {
		rank := pos + 1
		category, band := e.bandFor(rank, n)
		placements[idx] = Placement{
			Rank:     rank,
			Score:    e.scoreInBand(band, risks[idx], minRisk, spread),
			Category: category,
		}
	}
	return placements
}

// singleScore is the lenient absolute mapping used when no alternatives
// exist to compare against.
func (e *Engine) singleScore(risk float64) int {
	raw := (1-risk)*100 + e.cfg.SingleOffset
	clamped := math.Max(float64(e.cfg.Single.Min), math.Min(raw, float64(e.cfg.Single.Max)))
	return int(math.Round(clamped))
}

func (e *Engine) bandFor(rank, n int) (Category, Band) {
	switch rank {
	case 1:
		return CategorySafest, e.cfg.Safest
	case n:
		return CategoryRiskiest, e.cfg.Riskiest
	default:
		return CategoryModerate, e.cfg.Moderate
	}
}

func (e *Engine) scoreInBand(band Band, risk, minRisk, spread float64) int {
	position := e.cfg.FlatPosition
	if spread > 0 && spread >= e.cfg.MinSpread {
		// Lower risk sits higher in the band.
		position = 1 - (risk-minRisk)/spread
	}
	return int(math.Round(float64(band.Min) + position*float64(band.Width())))
}
