// Package optimize adjusts machine operating parameters toward safer
// operating points using stochastic hill climbing over a weighted safety
// score surface.
package optimize

import "math"

// OperatingPoint is a machine parameter set under optimization.
type OperatingPoint struct {
	Temperature float64 `json:"temperature"` // °F
	Vibration   float64 `json:"vibration"`   // m/s²
	Load        float64 `json:"load"`        // fraction of rated capacity
}

// ScoreParams defines the safety score surface: per-metric optimal centers,
// tolerance spans, and aggregation weights. The weights must sum to 1.
type ScoreParams struct {
	TemperatureOptimal   float64
	TemperatureTolerance float64
	VibrationOptimal     float64
	VibrationTolerance   float64
	LoadOptimal          float64
	LoadTolerance        float64
	WeightTemperature    float64
	WeightVibration      float64
	WeightLoad           float64
}

// DefaultScoreParams returns the canonical score surface. Centers sit in the
// middle of the optimal operating bands (65-75°F, 2.0-3.5 m/s²); tolerances
// span the distance over which a metric decays from fully safe to fully unsafe.
func DefaultScoreParams() ScoreParams {
	return ScoreParams{
		TemperatureOptimal:   70.0,
		TemperatureTolerance: 50.0,
		VibrationOptimal:     2.5,
		VibrationTolerance:   4.0,
		LoadOptimal:          0.5,
		LoadTolerance:        0.5,
		WeightTemperature:    0.4,
		WeightVibration:      0.3,
		WeightLoad:           0.3,
	}
}

// Score computes the weighted safety score of an operating point in [0, 1].
// Each metric contributes 1 − |value−optimal|/tolerance clamped to [0, 1];
// the aggregate is the weighted sum, clamped again so rounding cannot push
// it past 1.
func (s ScoreParams) Score(p OperatingPoint) float64 {
	tempScore := clamp01(1 - math.Abs(p.Temperature-s.TemperatureOptimal)/s.TemperatureTolerance)
	vibScore := clamp01(1 - math.Abs(p.Vibration-s.VibrationOptimal)/s.VibrationTolerance)
	loadScore := clamp01(1 - math.Abs(p.Load-s.LoadOptimal)/s.LoadTolerance)

	total := s.WeightTemperature*tempScore + s.WeightVibration*vibScore + s.WeightLoad*loadScore
	return clamp01(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
