package safety_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saferoute/saferoute/internal/safety"
)

func TestTimeRisk(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 1.0},
		{3, 1.0},
		{5, 1.0},
		{6, 0.6},
		{7, 0.6},
		{8, 0.2},
		{12, 0.2},
		{18, 0.2},
		{19, 0.6},
		{21, 0.6},
		{22, 1.0},
		{23, 1.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, safety.TimeRisk(tt.hour), "hour %d", tt.hour)
	}
}

func TestSaturatingFactors(t *testing.T) {
	assert.Equal(t, 0.0, safety.DistanceRisk(0))
	assert.InDelta(t, 0.5, safety.DistanceRisk(5), 1e-12)
	assert.Equal(t, 1.0, safety.DistanceRisk(10))
	assert.Equal(t, 1.0, safety.DistanceRisk(250))

	assert.InDelta(t, 0.5, safety.DurationRisk(15), 1e-12)
	assert.Equal(t, 1.0, safety.DurationRisk(30))
	assert.Equal(t, 1.0, safety.DurationRisk(90))

	assert.InDelta(t, 0.25, safety.TurnRisk(5), 1e-12)
	assert.Equal(t, 1.0, safety.TurnRisk(20))
	assert.Equal(t, 1.0, safety.TurnRisk(40))
}

func TestSaturatingFactors_Monotonic(t *testing.T) {
	prev := -1.0
	for km := 0.0; km <= 15; km += 0.5 {
		got := safety.DistanceRisk(km)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestLookupFactors(t *testing.T) {
	assert.Equal(t, 0.1, safety.WeatherRisk(safety.WeatherClear))
	assert.Equal(t, 0.3, safety.WeatherRisk(safety.WeatherCloudy))
	assert.Equal(t, 0.6, safety.WeatherRisk(safety.WeatherRain))
	assert.Equal(t, 0.9, safety.WeatherRisk(safety.WeatherStorm))
	assert.Equal(t, 0.9, safety.WeatherRisk(safety.WeatherFog))
	assert.Equal(t, 0.3, safety.WeatherRisk("hail"))

	assert.Equal(t, 0.2, safety.CrimeRisk(safety.CrimeLow))
	assert.Equal(t, 0.5, safety.CrimeRisk(safety.CrimeMedium))
	assert.Equal(t, 0.9, safety.CrimeRisk(safety.CrimeHigh))
	assert.Equal(t, 0.5, safety.CrimeRisk("unknown"))

	assert.Equal(t, 0.2, safety.LightingRisk(safety.LightingWellLit))
	assert.Equal(t, 0.5, safety.LightingRisk(safety.LightingPartiallyLit))
	assert.Equal(t, 0.9, safety.LightingRisk(safety.LightingDark))
	assert.Equal(t, 0.5, safety.LightingRisk(""))

	assert.Equal(t, 0.3, safety.RoadTypeRisk(safety.RoadHighway))
	assert.Equal(t, 0.4, safety.RoadTypeRisk(safety.RoadMain))
	assert.Equal(t, 0.6, safety.RoadTypeRisk(safety.RoadResidential))
	assert.Equal(t, 0.8, safety.RoadTypeRisk(safety.RoadAlley))
	assert.Equal(t, 0.5, safety.RoadTypeRisk("footpath"))
}

func TestFactors_AppliesDefaults(t *testing.T) {
	f := safety.Factors(safety.RouteInput{RouteID: "r1"}, safety.Environment{HourOfDay: 12, Weather: safety.WeatherClear})

	assert.Equal(t, safety.RoadTypeRisk(safety.RoadResidential), f.RoadType)
	assert.Equal(t, safety.CrimeRisk(safety.CrimeMedium), f.Crime)
	assert.Equal(t, safety.LightingRisk(safety.LightingPartiallyLit), f.Lighting)
}

func TestWeights_Aggregate(t *testing.T) {
	w := safety.DefaultConfig().Weights
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)

	all := safety.RiskFactors{
		Distance: 1, Duration: 1, Turns: 1, TimeOfDay: 1,
		Weather: 1, Crime: 1, Lighting: 1, RoadType: 1,
	}
	assert.InDelta(t, 1.0, w.Aggregate(all).TotalRawRisk, 1e-12)
	assert.Equal(t, 0.0, w.Aggregate(safety.RiskFactors{}).TotalRawRisk)

	f := safety.RiskFactors{Crime: 0.9, Lighting: 0.5, TimeOfDay: 0.2, Distance: 0.5,
		Duration: 0.5, RoadType: 0.6, Weather: 0.1, Turns: 0.25}
	want := 0.9*0.25 + 0.5*0.15 + 0.2*0.15 + 0.5*0.10 + 0.5*0.10 + 0.6*0.10 + 0.1*0.10 + 0.25*0.05
	assert.InDelta(t, want, w.Aggregate(f).TotalRawRisk, 1e-12)
}

func TestEngine_Assess_Bounds(t *testing.T) {
	engine := safety.MustNewEngine(safety.DefaultConfig())

	inputs := []safety.RouteInput{
		{RouteID: "zero"},
		{RouteID: "huge", DistanceKm: 1e6, DurationMin: 1e6, TurnCount: 1e6,
			RoadType: safety.RoadAlley, CrimeLevel: safety.CrimeHigh, LightingLevel: safety.LightingDark},
		{RouteID: "mid", DistanceKm: 4.2, DurationMin: 17, TurnCount: 8, RoadType: safety.RoadMain},
	}

	for _, hour := range []int{0, 6, 7, 12, 19, 23} {
		for _, in := range inputs {
			f := engine.Assess(in, safety.Environment{HourOfDay: hour, Weather: safety.WeatherStorm})
			for _, v := range []float64{f.Distance, f.Duration, f.Turns, f.TimeOfDay, f.Weather, f.Crime, f.Lighting, f.RoadType, f.TotalRawRisk} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
}
