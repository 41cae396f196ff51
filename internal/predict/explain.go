package predict

import (
	"fmt"
	"math"
)

// DefaultDelta is the relative probe size for sensitivity analysis.
const DefaultDelta = 0.1

// UncertainPrediction augments a prediction with how decisive it is.
type UncertainPrediction struct {
	Prediction
	// Confidence is the probability of the predicted side, max(p, 1-p).
	Confidence float64 `json:"confidence"`
	// Uncertainty is the binary entropy -p*log2(p) - (1-p)*log2(1-p):
	// 0 when p is 0 or 1, 1 when p is 0.5.
	Uncertainty float64 `json:"uncertainty"`
	Strength    string  `json:"prediction_strength"` // high, medium, or low
}

// PredictWithUncertainty scores a raw feature vector and reports how
// decisive the resulting probability is.
func (m *Model) PredictWithUncertainty(features []float64) (UncertainPrediction, error) {
	pred, err := m.Predict(features)
	if err != nil {
		return UncertainPrediction{}, err
	}
	confidence := math.Max(pred.Probability, 1-pred.Probability)
	return UncertainPrediction{
		Prediction:  pred,
		Confidence:  confidence,
		Uncertainty: binaryEntropy(pred.Probability),
		Strength:    strengthTier(confidence),
	}, nil
}

func strengthTier(confidence float64) string {
	switch {
	case confidence > 0.8:
		return "high"
	case confidence > 0.6:
		return "medium"
	default:
		return "low"
	}
}

// binaryEntropy takes the 0*log(0) terms as zero.
func binaryEntropy(p float64) float64 {
	var h float64
	if p > 0 {
		h -= p * math.Log2(p)
	}
	if p < 1 {
		h -= (1 - p) * math.Log2(1-p)
	}
	return h
}

// FeatureSensitivity reports how the predicted probability responds to a
// relative nudge of one raw feature, the others held fixed.
type FeatureSensitivity struct {
	Feature   string  `json:"feature"`
	BaseValue float64 `json:"base_value"`
	// Sensitivity is |p(+delta) - p(-delta)| / (2*delta).
	Sensitivity float64 `json:"sensitivity"`
	// Impact is the signed swing p(+delta) - p(-delta).
	Impact          float64 `json:"impact"`
	LowProbability  float64 `json:"low_probability"` // at base*(1-delta)
	BaseProbability float64 `json:"base_probability"`
	HighProbability float64 `json:"high_probability"` // at base*(1+delta)
	Interpretation  string  `json:"interpretation"`
}

// Sensitivity probes every feature at base*(1±delta) and reports the
// probability swing per feature. A zero delta selects DefaultDelta. A
// feature whose base value is zero cannot move under a relative probe and
// reports zero sensitivity.
func (m *Model) Sensitivity(features []float64, delta float64) ([]FeatureSensitivity, error) {
	if delta == 0 {
		delta = DefaultDelta
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta < 0 {
		return nil, fmt.Errorf("%w: delta must be positive and finite, got %f", ErrInvalidInput, delta)
	}
	base, err := m.Predict(features)
	if err != nil {
		return nil, err
	}

	out := make([]FeatureSensitivity, len(features))
	probe := make([]float64, len(features))
	for j := range features {
		copy(probe, features)
		probe[j] = features[j] * (1 - delta)
		low, err := m.Predict(probe)
		if err != nil {
			return nil, err
		}
		probe[j] = features[j] * (1 + delta)
		high, err := m.Predict(probe)
		if err != nil {
			return nil, err
		}

		s := math.Abs(high.Probability-low.Probability) / (2 * delta)
		out[j] = FeatureSensitivity{
			Feature:         m.Features[j],
			BaseValue:       features[j],
			Sensitivity:     s,
			Impact:          high.Probability - low.Probability,
			LowProbability:  low.Probability,
			BaseProbability: base.Probability,
			HighProbability: high.Probability,
			Interpretation:  sensitivityTier(s),
		}
	}
	return out, nil
}

func sensitivityTier(s float64) string {
	switch {
	case s > 0.5:
		return "high_sensitivity"
	case s > 0.2:
		return "medium_sensitivity"
	default:
		return "low_sensitivity"
	}
}

// PredictBatch scores every row; any invalid row fails the whole batch.
func (m *Model) PredictBatch(rows [][]float64) ([]Prediction, error) {
	out := make([]Prediction, len(rows))
	for i, row := range rows {
		pred, err := m.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}
