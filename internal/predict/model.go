// Package predict scores accident likelihood with a logistic model over
// standardized sensor features. Weights, bias, and scaler form a trained
// artifact produced once by Train and reused across requests; Predict maps
// the resulting probability onto the shared risk tiers.
package predict

import (
	"errors"
	"fmt"
	"math"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// ErrInvalidInput reports a query or model the predictor cannot use.
var ErrInvalidInput = errors.New("invalid predictor input")

// Model is a fitted logistic accident model. The struct is JSON-serializable
// for artifact storage; Weights and Scaler share the Features order.
type Model struct {
	Weights  []float64        `json:"weights"` // per standardized feature
	Bias     float64          `json:"bias"`
	Features []string         `json:"features"`
	Scaler   telemetry.Scaler `json:"scaler"`
}

// Prediction is the predictor verdict for one query.
type Prediction struct {
	Probability float64    `json:"accident_probability"`
	Level       risk.Level `json:"risk_level"`
}

// Predict scores a raw feature vector: the features are standardized with
// the training scaler, pushed through the logistic link, and the resulting
// probability is mapped onto a risk tier by the fixed thresholds.
func (m *Model) Predict(features []float64) (Prediction, error) {
	if err := m.validate(); err != nil {
		return Prediction{}, err
	}
	if err := m.validateQuery(features); err != nil {
		return Prediction{}, err
	}
	std, err := m.Scaler.Transform(features)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	z := m.Bias
	for j, w := range m.Weights {
		z += w * std[j]
	}
	p := sigmoid(z)
	return Prediction{Probability: p, Level: risk.FromProbability(p)}, nil
}

// PredictReading scores a sensor reading using the model's feature order.
func (m *Model) PredictReading(r telemetry.SensorReading) (Prediction, error) {
	vec, err := r.Vector(m.Features)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return m.Predict(vec)
}

// Importance is one feature's share of the model's total weight magnitude.
type Importance struct {
	Feature string  `json:"feature"`
	Weight  float64 `json:"weight"`     // signed standardized weight
	Share   float64 `json:"importance"` // |weight| normalized across features
}

// FeatureImportance returns per-feature weight magnitudes normalized to sum
// to one, in the model's feature order.
func (m *Model) FeatureImportance() ([]Importance, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	var total float64
	for _, w := range m.Weights {
		total += math.Abs(w)
	}
	out := make([]Importance, len(m.Weights))
	for j, w := range m.Weights {
		var share float64
		if total > 0 {
			share = math.Abs(w) / total
		}
		out[j] = Importance{Feature: m.Features[j], Weight: w, Share: share}
	}
	return out, nil
}

func (m *Model) validate() error {
	if m == nil || len(m.Weights) == 0 {
		return fmt.Errorf("%w: empty model", ErrInvalidInput)
	}
	if len(m.Weights) != len(m.Features) || len(m.Weights) != m.Scaler.Dims() {
		return fmt.Errorf("%w: model dimensions disagree (%d weights, %d features, %d scaler dims)",
			ErrInvalidInput, len(m.Weights), len(m.Features), m.Scaler.Dims())
	}
	for _, w := range m.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: non-finite weight", ErrInvalidInput)
		}
	}
	if math.IsNaN(m.Bias) || math.IsInf(m.Bias, 0) {
		return fmt.Errorf("%w: non-finite bias", ErrInvalidInput)
	}
	return nil
}

func (m *Model) validateQuery(features []float64) error {
	if len(features) != len(m.Weights) {
		return fmt.Errorf("%w: got %d features, want %d", ErrInvalidInput, len(features), len(m.Weights))
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite feature %q", ErrInvalidInput, m.Features[i])
		}
	}
	return nil
}

// sigmoid saturates cleanly at the float64 limits: a hugely negative z
// yields exactly 0 and a hugely positive z exactly 1, never NaN.
func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
