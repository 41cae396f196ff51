package predict

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/foundryline/plantsafe/internal/telemetry"
)

// Training defaults for the synthetic accident history.
const (
	DefaultTrainSeed    = 42
	DefaultTrainSamples = 2000
	DefaultLabelNoise   = 0.1
	DefaultLearningRate = 0.1
	DefaultEpochs       = 500
)

// trainingProfile holds the Gaussian parameters of one synthetic regime.
type trainingProfile struct {
	tempMean, tempStd float64
	vibMean, vibStd   float64
	rpmMean, rpmStd   float64
	loadMean, loadStd float64
}

var (
	safeProfile   = trainingProfile{70, 8, 2.8, 0.8, 1050, 150, 0.52, 0.12}
	dangerProfile = trainingProfile{85, 12, 4.8, 1.5, 1300, 200, 0.75, 0.18}
)

// GenerateTrainingData produces a deterministic synthetic history: the first
// half of the rows drawn from the safe regime (label 0), the rest from the
// danger regime (label 1), then labelNoise of the labels flipped at random
// so the fit sees mislabeled incidents. Rows follow the canonical feature
// order.
func GenerateTrainingData(seed int64, n int, labelNoise float64) ([][]float64, []int, error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 training samples, got %d", ErrInvalidInput, n)
	}
	if math.IsNaN(labelNoise) || labelNoise < 0 || labelNoise >= 1 {
		return nil, nil, fmt.Errorf("%w: label noise must be in [0,1), got %f", ErrInvalidInput, labelNoise)
	}
	rng := rand.New(rand.NewSource(seed))
	nSafe := n / 2

	rows := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		profile := safeProfile
		if i >= nSafe {
			profile = dangerProfile
			labels[i] = 1
		}
		rows[i] = []float64{
			rng.NormFloat64()*profile.tempStd + profile.tempMean,
			rng.NormFloat64()*profile.vibStd + profile.vibMean,
			rng.NormFloat64()*profile.rpmStd + profile.rpmMean,
			rng.NormFloat64()*profile.loadStd + profile.loadMean,
		}
	}

	// Flip a without-replacement sample of labels.
	for _, idx := range rng.Perm(n)[:int(labelNoise*float64(n))] {
		labels[idx] = 1 - labels[idx]
	}
	return rows, labels, nil
}

// TrainOptions configures the gradient descent fit.
type TrainOptions struct {
	LearningRate float64 // zero selects DefaultLearningRate
	Epochs       int     // zero selects DefaultEpochs
}

// TrainingMetrics summarizes fit quality over the training rows.
type TrainingMetrics struct {
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"` // mean cross-entropy
	Samples  int     `json:"samples"`
	Epochs   int     `json:"epochs"`
}

// Train fits a logistic model by batch gradient descent over standardized
// rows. Labels are 0 (safe) or 1 (accident). The returned metrics are
// measured on the training rows themselves.
func Train(rows [][]float64, labels []int, opts TrainOptions) (*Model, TrainingMetrics, error) {
	if err := validateTrainingSet(rows, labels); err != nil {
		return nil, TrainingMetrics{}, err
	}
	if opts.LearningRate == 0 {
		opts.LearningRate = DefaultLearningRate
	}
	if opts.LearningRate < 0 || math.IsNaN(opts.LearningRate) || math.IsInf(opts.LearningRate, 0) {
		return nil, TrainingMetrics{}, fmt.Errorf("%w: learning rate must be positive and finite, got %f", ErrInvalidInput, opts.LearningRate)
	}
	if opts.Epochs == 0 {
		opts.Epochs = DefaultEpochs
	}
	if opts.Epochs < 1 {
		return nil, TrainingMetrics{}, fmt.Errorf("%w: epochs must be positive, got %d", ErrInvalidInput, opts.Epochs)
	}

	scaler, err := telemetry.FitScaler(rows)
	if err != nil {
		return nil, TrainingMetrics{}, fmt.Errorf("fit training scaler: %w", err)
	}
	std, err := scaler.TransformMatrix(rows)
	if err != nil {
		return nil, TrainingMetrics{}, fmt.Errorf("standardize training set: %w", err)
	}

	dims := len(std[0])
	n := float64(len(std))
	weights := make([]float64, dims)
	grad := make([]float64, dims)
	var bias float64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		for i, row := range std {
			z := bias
			for j, w := range weights {
				z += w * row[j]
			}
			e := sigmoid(z) - float64(labels[i])
			for j, x := range row {
				grad[j] += e * x
			}
			gradBias += e
		}
		for j := range weights {
			weights[j] -= opts.LearningRate * grad[j] / n
		}
		bias -= opts.LearningRate * gradBias / n
	}

	model := &Model{
		Weights:  weights,
		Bias:     bias,
		Features: telemetry.DefaultFeatures(),
		Scaler:   *scaler,
	}

	metrics := TrainingMetrics{Samples: len(rows), Epochs: opts.Epochs}
	var correct int
	for i, row := range std {
		z := bias
		for j, w := range weights {
			z += w * row[j]
		}
		p := sigmoid(z)
		if (p > 0.5) == (labels[i] == 1) {
			correct++
		}
		metrics.Loss += crossEntropy(p, labels[i])
	}
	metrics.Accuracy = float64(correct) / n
	metrics.Loss /= n
	return model, metrics, nil
}

func validateTrainingSet(rows [][]float64, labels []int) error {
	if len(rows) == 0 {
		return fmt.Errorf("%w: empty training set", ErrInvalidInput)
	}
	if len(rows) != len(labels) {
		return fmt.Errorf("%w: %d rows but %d labels", ErrInvalidInput, len(rows), len(labels))
	}
	if want := len(telemetry.DefaultFeatures()); len(rows[0]) != want {
		return fmt.Errorf("%w: rows must have %d feature columns, got %d", ErrInvalidInput, want, len(rows[0]))
	}
	for i, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite value in row %d", ErrInvalidInput, i)
			}
		}
	}
	for i, y := range labels {
		if y != 0 && y != 1 {
			return fmt.Errorf("%w: label at row %d must be 0 or 1, got %d", ErrInvalidInput, i, y)
		}
	}
	return nil
}

// crossEntropy clamps p away from 0 and 1 so a flipped label on an extreme
// point cannot produce an infinite loss.
func crossEntropy(p float64, label int) float64 {
	const eps = 1e-15
	p = math.Min(1-eps, math.Max(eps, p))
	if label == 1 {
		return -math.Log(p)
	}
	return -math.Log(1 - p)
}

// NewDefaultModel trains the canonical predictor on the seed-42 synthetic
// history with the default gradient descent schedule.
func NewDefaultModel() (*Model, error) {
	rows, labels, err := GenerateTrainingData(DefaultTrainSeed, DefaultTrainSamples, DefaultLabelNoise)
	if err != nil {
		return nil, err
	}
	model, _, err := Train(rows, labels, TrainOptions{})
	return model, err
}
