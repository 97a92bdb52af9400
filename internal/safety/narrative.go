package safety

import "fmt"

// Narrative limits.
const (
	MinHighlights      = 3
	MaxHighlights      = 5
	MinRecommendations = 1
	MaxRecommendations = 4
)

// Factor thresholds for the narrative.
const (
	highRisk = 0.7
	lowRisk  = 0.3
)

var fillerHighlights = []string{
	"Compared against the other suggested routes",
	"Scored for your chosen travel time and weather",
	"Community reports can refine this picture",
}

// Highlights derives 3 to 5 short observations about a route from its risk
// factors and its rank among n routes.
func Highlights(f RiskFactors, rank, n int) []string {
	out := make([]string, 0, MaxHighlights)
	add := func(s string) {
		if len(out) < MaxHighlights {
			out = append(out, s)
		}
	}

	switch {
	case n > 1 && rank == 1:
		add(fmt.Sprintf("Safest of %d routes compared", n))
	case n > 1 && rank == n:
		add("Highest relative risk among the alternatives")
	}

	switch {
	case f.Crime >= highRisk:
		add("Passes through a higher crime area")
	case f.Crime <= lowRisk:
		add("Passes through a lower crime area")
	}

	switch {
	case f.Lighting >= highRisk:
		add("Poorly lit streets along the way")
	case f.Lighting <= lowRisk:
		add("Well-lit streets for most of the route")
	}

	switch {
	case f.TimeOfDay >= highRisk:
		add("Late-night travel window")
	case f.TimeOfDay <= lowRisk:
		add("Daytime travel")
	}

	if f.Weather >= 0.6 {
		add("Adverse weather conditions expected")
	}

	switch {
	case f.RoadType >= highRisk:
		add("Includes narrow alleys")
	case f.RoadType <= lowRisk:
		add("Mostly highways and major roads")
	}

	switch {
	case f.Distance <= lowRisk && f.Duration <= lowRisk:
		add("Short trip")
	case f.Turns >= highRisk:
		add("Many turns; navigation is more complex")
	}

	for _, filler := range fillerHighlights {
		if len(out) >= MinHighlights {
			break
		}
		add(filler)
	}
	return out
}

// Recommendations derives 1 to 4 precautions from a route's risk factors.
func Recommendations(f RiskFactors) []string {
	out := make([]string, 0, MaxRecommendations)
	add := func(s string) {
		if len(out) < MaxRecommendations {
			out = append(out, s)
		}
	}

	if f.Crime >= highRisk {
		add("Stay alert and keep valuables out of sight")
	}
	if f.Lighting >= highRisk {
		add("Stick to lit streets and carry a flashlight")
	}
	if f.TimeOfDay >= highRisk {
		add("Share your live location with someone you trust")
	}
	if f.Weather >= 0.6 {
		add("Check the forecast and allow extra travel time")
	}
	if f.RoadType >= highRisk {
		add("Avoid shortcuts through alleys where possible")
	}

	if len(out) == 0 {
		add("No special precautions needed; stay aware of your surroundings")
	}
	return out
}
