package safety

import "math"

// Saturation points and fixed risk levels.
const (
	distanceSaturationKm  = 10.0
	durationSaturationMin = 30.0
	turnSaturationCount   = 20.0
	nightRisk             = 1.0
	twilightRisk          = 0.6
	daytimeRisk           = 0.2
	unknownWeatherRisk    = 0.3
	unknownClassification = 0.5
)

var weatherRisks = map[Weather]float64{
	WeatherClear:  0.1,
	WeatherCloudy: 0.3,
	WeatherRain:   0.6,
	WeatherStorm:  0.9,
	WeatherFog:    0.9,
}

var crimeRisks = map[CrimeLevel]float64{
	CrimeLow:    0.2,
	CrimeMedium: 0.5,
	CrimeHigh:   0.9,
}

var lightingRisks = map[LightingLevel]float64{
	LightingWellLit:      0.2,
	LightingPartiallyLit: 0.5,
	LightingDark:         0.9,
}

var roadTypeRisks = map[RoadType]float64{
	RoadHighway:     0.3,
	RoadMain:        0.4,
	RoadResidential: 0.6,
	RoadAlley:       0.8,
}

// DistanceRisk saturates at 10 km.
func DistanceRisk(km float64) float64 {
	return saturate(km / distanceSaturationKm)
}

// DurationRisk saturates at 30 minutes.
func DurationRisk(minutes float64) float64 {
	return saturate(minutes / durationSaturationMin)
}

// TurnRisk saturates at 20 turns.
func TurnRisk(turns int) float64 {
	return saturate(float64(turns) / turnSaturationCount)
}

// TimeRisk maps the hour of day to a risk value.
//
// The two windows are tested one after the other rather than as one
// contiguous range, so hours 6 and 7 (and 19 to 21) land in the twilight
// branch. Historical scores depend on these exact boundaries; keep them.
func TimeRisk(hour int) float64 {
	if hour >= 22 || hour <= 5 {
		return nightRisk
	}
	if hour >= 19 || hour <= 7 {
		return twilightRisk
	}
	return daytimeRisk
}

// WeatherRisk looks up the weather condition, 0.3 for unknown values.
func WeatherRisk(w Weather) float64 {
	if v, ok := weatherRisks[w]; ok {
		return v
	}
	return unknownWeatherRisk
}

// CrimeRisk looks up the crime level, 0.5 for unknown values.
func CrimeRisk(c CrimeLevel) float64 {
	if v, ok := crimeRisks[c]; ok {
		return v
	}
	return unknownClassification
}

// LightingRisk looks up the lighting level, 0.5 for unknown values.
func LightingRisk(l LightingLevel) float64 {
	if v, ok := lightingRisks[l]; ok {
		return v
	}
	return unknownClassification
}

// RoadTypeRisk looks up the road type, 0.5 for unknown values.
func RoadTypeRisk(r RoadType) float64 {
	if v, ok := roadTypeRisks[r]; ok {
		return v
	}
	return unknownClassification
}

// saturate clamps v into [0,1].
func saturate(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

// Factors computes every sub-score for a route without aggregating them.
func Factors(route RouteInput, env Environment) RiskFactors {
	route = route.withDefaults()
	return RiskFactors{
		Distance:  DistanceRisk(route.DistanceKm),
		Duration:  DurationRisk(route.DurationMin),
		Turns:     TurnRisk(route.TurnCount),
		TimeOfDay: TimeRisk(env.HourOfDay),
		Weather:   WeatherRisk(env.Weather),
		Crime:     CrimeRisk(route.CrimeLevel),
		Lighting:  LightingRisk(route.LightingLevel),
		RoadType:  RoadTypeRisk(route.RoadType),
	}
}

// Aggregate fills TotalRawRisk with the weighted sum of the sub-scores.
func (w Weights) Aggregate(f RiskFactors) RiskFactors {
	f.TotalRawRisk = saturate(f.Crime*w.Crime +
		f.Lighting*w.Lighting +
		f.TimeOfDay*w.TimeOfDay +
		f.Distance*w.Distance +
		f.Duration*w.Duration +
		f.RoadType*w.RoadType +
		f.Weather*w.Weather +
		f.Turns*w.Turns)
	return f
}
