package classify

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// ErrInvalidInput reports a query or model the classifier cannot use.
var ErrInvalidInput = errors.New("invalid classifier input")

// Default vote parameters.
const (
	DefaultK       = 5
	DefaultEpsilon = 1e-9
)

// Example is one labeled reference point in standardized feature space.
type Example struct {
	Features []float64  `json:"features"`
	Label    risk.Level `json:"label"`
}

// Model is a fitted KNN classifier. Examples are stored standardized; the
// scaler maps incoming raw queries into the same space. The struct is
// JSON-serializable for artifact storage.
type Model struct {
	K        int              `json:"k"`
	Epsilon  float64          `json:"epsilon"`
	Features []string         `json:"features"`
	Scaler   telemetry.Scaler `json:"scaler"`
	Examples []Example        `json:"examples"`
}

// Options configures fitting.
type Options struct {
	K       int     // neighbor count; zero selects DefaultK
	Epsilon float64 // inverse-distance vote epsilon; zero selects DefaultEpsilon
}

// Fit builds a model from raw labeled feature rows: a scaler is fitted over
// the rows, and the standardized rows become the reference set.
func Fit(rows [][]float64, labels []risk.Level, opts Options) (*Model, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty reference set", ErrInvalidInput)
	}
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows but %d labels", ErrInvalidInput, len(rows), len(labels))
	}
	if want := len(telemetry.DefaultFeatures()); len(rows[0]) != want {
		return nil, fmt.Errorf("%w: rows must have %d feature columns, got %d", ErrInvalidInput, want, len(rows[0]))
	}
	for i, l := range labels {
		if !l.Valid() {
			return nil, fmt.Errorf("%w: unknown label %q at row %d", ErrInvalidInput, l, i)
		}
	}
	if opts.K == 0 {
		opts.K = DefaultK
	}
	if opts.K < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidInput, opts.K)
	}
	if opts.Epsilon == 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.Epsilon < 0 {
		return nil, fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidInput, opts.Epsilon)
	}

	scaler, err := telemetry.FitScaler(rows)
	if err != nil {
		return nil, fmt.Errorf("fit reference scaler: %w", err)
	}
	standardized, err := scaler.TransformMatrix(rows)
	if err != nil {
		return nil, fmt.Errorf("standardize reference set: %w", err)
	}

	examples := make([]Example, len(rows))
	for i := range standardized {
		examples[i] = Example{Features: standardized[i], Label: labels[i]}
	}
	return &Model{
		K:        opts.K,
		Epsilon:  opts.Epsilon,
		Features: telemetry.DefaultFeatures(),
		Scaler:   *scaler,
		Examples: examples,
	}, nil
}

// NewDefaultModel fits the canonical classifier: the seed-42 synthetic
// reference set with k=5 distance-weighted voting.
func NewDefaultModel() (*Model, error) {
	rows, labels, err := GenerateReferenceSet(DefaultReferenceSeed, DefaultPerClass)
	if err != nil {
		return nil, err
	}
	return Fit(rows, labels, Options{})
}

// Classification is the classifier verdict for one query.
type Classification struct {
	Level risk.Level `json:"risk_class"`
	// Confidence is the winning tier's share of the total distance-weighted
	// vote, in (0, 1].
	Confidence float64 `json:"confidence"`
}

// Neighbor describes one reference point consulted for a query.
type Neighbor struct {
	Label    risk.Level `json:"label"`
	Distance float64    `json:"distance"`
	Weight   float64    `json:"weight"`
}

// Explanation is a classification together with the consulted neighbors
// (ascending distance) and the per-tier vote shares.
type Explanation struct {
	Classification
	Neighbors  []Neighbor             `json:"neighbors"`
	VoteShares map[risk.Level]float64 `json:"vote_shares"`
}

// Classify labels a raw feature vector. Ties on vote weight resolve to the
// more severe tier.
func (m *Model) Classify(features []float64) (Classification, error) {
	exp, err := m.Explain(features)
	if err != nil {
		return Classification{}, err
	}
	return exp.Classification, nil
}

// ClassifyReading labels a sensor reading using the model's feature order.
func (m *Model) ClassifyReading(r telemetry.SensorReading) (Classification, error) {
	vec, err := r.Vector(m.Features)
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return m.Classify(vec)
}

// Explain classifies a raw feature vector and returns the full neighbor
// table behind the verdict.
func (m *Model) Explain(features []float64) (Explanation, error) {
	if err := m.validateQuery(features); err != nil {
		return Explanation{}, err
	}
	query, err := m.Scaler.Transform(features)
	if err != nil {
		return Explanation{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Rank the whole reference set by distance; ties resolve on insertion
	// order so repeated queries see identical neighbor tables.
	order := make([]int, len(m.Examples))
	dists := make([]float64, len(m.Examples))
	for i := range m.Examples {
		order[i] = i
		dists[i] = euclidean(query, m.Examples[i].Features)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	k := m.K
	if k > len(m.Examples) {
		k = len(m.Examples)
	}

	neighbors := make([]Neighbor, k)
	votes := make(map[risk.Level]float64, 3)
	var totalWeight float64
	for i := 0; i < k; i++ {
		idx := order[i]
		w := 1 / (dists[idx] + m.Epsilon)
		neighbors[i] = Neighbor{
			Label:    m.Examples[idx].Label,
			Distance: dists[idx],
			Weight:   w,
		}
		votes[m.Examples[idx].Label] += w
		totalWeight += w
	}

	// Pick the winner in fixed tier order; a later (more severe) tier takes
	// an exact tie.
	var winner risk.Level
	best := math.Inf(-1)
	for _, level := range risk.Levels() {
		if v := votes[level]; v >= best && v > 0 {
			winner = level
			best = v
		}
	}

	shares := make(map[risk.Level]float64, len(votes))
	for level, v := range votes {
		shares[level] = v / totalWeight
	}

	return Explanation{
		Classification: Classification{
			Level:      winner,
			Confidence: votes[winner] / totalWeight,
		},
		Neighbors:  neighbors,
		VoteShares: shares,
	}, nil
}

func (m *Model) validateQuery(features []float64) error {
	if m == nil || len(m.Examples) == 0 {
		return fmt.Errorf("%w: empty model", ErrInvalidInput)
	}
	if len(features) != m.Scaler.Dims() {
		return fmt.Errorf("%w: got %d features, want %d", ErrInvalidInput, len(features), m.Scaler.Dims())
	}
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite feature %q", ErrInvalidInput, m.Features[i])
		}
	}
	return nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
