package predict

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// fixedModel builds a model with an identity scaler so test probabilities
// can be computed by hand.
func fixedModel(weights []float64, bias float64) *Model {
	dims := len(weights)
	scaler := telemetry.Scaler{Mean: make([]float64, dims), Std: make([]float64, dims)}
	for j := range scaler.Std {
		scaler.Std[j] = 1
	}
	return &Model{
		Weights:  weights,
		Bias:     bias,
		Features: telemetry.DefaultFeatures(),
		Scaler:   scaler,
	}
}

func columnMean(rows [][]float64, from, to, col int) float64 {
	var sum float64
	for i := from; i < to; i++ {
		sum += rows[i][col]
	}
	return sum / float64(to-from)
}

func TestGenerateTrainingDataDeterministic(t *testing.T) {
	rowsA, labelsA, err := GenerateTrainingData(42, 2000, 0.1)
	if err != nil {
		t.Fatalf("GenerateTrainingData: %v", err)
	}
	rowsB, labelsB, err := GenerateTrainingData(42, 2000, 0.1)
	if err != nil {
		t.Fatalf("GenerateTrainingData: %v", err)
	}
	if diff := cmp.Diff(rowsA, rowsB); diff != "" {
		t.Errorf("same seed produced different rows (-a +b):\n%s", diff)
	}
	if diff := cmp.Diff(labelsA, labelsB); diff != "" {
		t.Errorf("same seed produced different labels (-a +b):\n%s", diff)
	}

	rowsC, _, err := GenerateTrainingData(7, 2000, 0.1)
	if err != nil {
		t.Fatalf("GenerateTrainingData: %v", err)
	}
	if diff := cmp.Diff(rowsA, rowsC); diff == "" {
		t.Error("different seeds produced identical rows")
	}
}

func TestGenerateTrainingDataRegimes(t *testing.T) {
	rows, labels, err := GenerateTrainingData(42, 2000, 0.1)
	if err != nil {
		t.Fatalf("GenerateTrainingData: %v", err)
	}
	if len(rows) != 2000 || len(labels) != 2000 {
		t.Fatalf("got %d rows and %d labels, want 2000 each", len(rows), len(labels))
	}
	for i, row := range rows {
		if len(row) != 4 {
			t.Fatalf("row %d has %d columns, want 4", i, len(row))
		}
	}

	// First half safe regime, second half danger regime. Sample means stay
	// close to the regime centers.
	checks := []struct {
		name     string
		from, to int
		col      int
		lo, hi   float64
	}{
		{"safe temperature", 0, 1000, 0, 68, 72},
		{"safe vibration", 0, 1000, 1, 2.4, 3.2},
		{"safe rpm", 0, 1000, 2, 1030, 1070},
		{"safe load", 0, 1000, 3, 0.48, 0.56},
		{"danger temperature", 1000, 2000, 0, 83, 87},
		{"danger vibration", 1000, 2000, 1, 4.4, 5.2},
		{"danger rpm", 1000, 2000, 2, 1270, 1330},
		{"danger load", 1000, 2000, 3, 0.70, 0.80},
	}
	for _, c := range checks {
		mean := columnMean(rows, c.from, c.to, c.col)
		if mean < c.lo || mean > c.hi {
			t.Errorf("%s mean = %.3f, want in [%.3f, %.3f]", c.name, mean, c.lo, c.hi)
		}
	}

	var ones int
	for i, y := range labels {
		if y != 0 && y != 1 {
			t.Fatalf("label %d = %d, want 0 or 1", i, y)
		}
		ones += y
	}
	// Flips swap roughly as many labels in each direction.
	if ones < 900 || ones > 1100 {
		t.Errorf("got %d danger labels, want near 1000", ones)
	}
}

func TestTrainSeparatesRegimes(t *testing.T) {
	rows, labels, err := GenerateTrainingData(42, 2000, 0.1)
	if err != nil {
		t.Fatalf("GenerateTrainingData: %v", err)
	}
	model, metrics, err := Train(rows, labels, TrainOptions{})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	// With 10% of labels flipped the fit can neither be perfect nor poor.
	if metrics.Accuracy < 0.75 || metrics.Accuracy > 0.95 {
		t.Errorf("training accuracy = %.4f, want in (0.75, 0.95)", metrics.Accuracy)
	}
	// ln 2 is the loss of the uninformed all-zero model.
	if metrics.Loss <= 0 || metrics.Loss >= 0.69 {
		t.Errorf("training loss = %.4f, want in (0, 0.69)", metrics.Loss)
	}
	if metrics.Samples != 2000 || metrics.Epochs != DefaultEpochs {
		t.Errorf("metrics = %+v, want 2000 samples over %d epochs", metrics, DefaultEpochs)
	}

	// Every feature is higher in the danger regime, so every weight comes
	// out positive.
	for j, w := range model.Weights {
		if w <= 0 {
			t.Errorf("weight for %s = %.4f, want positive", model.Features[j], w)
		}
	}
	if math.IsNaN(model.Bias) || math.IsInf(model.Bias, 0) {
		t.Errorf("bias = %v, want finite", model.Bias)
	}
}

func TestTrainCustomOptions(t *testing.T) {
	rows, labels, err := GenerateTrainingData(42, 400, 0.1)
	if err != nil {
		t.Fatalf("GenerateTrainingData: %v", err)
	}
	_, metrics, err := Train(rows, labels, TrainOptions{LearningRate: 0.5, Epochs: 50})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if metrics.Epochs != 50 {
		t.Errorf("metrics.Epochs = %d, want 50", metrics.Epochs)
	}
	if metrics.Samples != 400 {
		t.Errorf("metrics.Samples = %d, want 400", metrics.Samples)
	}
	if metrics.Loss >= 0.6931 {
		t.Errorf("loss = %.4f, want below the uninformed ln 2", metrics.Loss)
	}
}

func TestPredictThresholds(t *testing.T) {
	m := fixedModel([]float64{2, 0, 0, 0}, 0)

	cases := []struct {
		name  string
		x     float64
		level risk.Level
	}{
		{"low", -2, risk.Low},      // sigmoid(-4) = 0.018
		{"medium", 0, risk.Medium}, // sigmoid(0) = 0.5
		{"high", 2, risk.High},     // sigmoid(4) = 0.982
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			pred, err := m.Predict([]float64{c.x, 0, 0, 0})
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if pred.Level != c.level {
				t.Errorf("level = %q, want %q (p=%.4f)", pred.Level, c.level, pred.Probability)
			}
			if pred.Probability < 0 || pred.Probability > 1 {
				t.Errorf("probability %.4f outside [0,1]", pred.Probability)
			}
			if pred.Level != risk.FromProbability(pred.Probability) {
				t.Errorf("level %q disagrees with thresholds for p=%.4f", pred.Level, pred.Probability)
			}
		})
	}
}

func TestDefaultModelCentroids(t *testing.T) {
	model, err := NewDefaultModel()
	if err != nil {
		t.Fatalf("NewDefaultModel: %v", err)
	}

	safe, err := model.Predict([]float64{70, 2.8, 1050, 0.52})
	if err != nil {
		t.Fatalf("Predict safe centroid: %v", err)
	}
	danger, err := model.Predict([]float64{85, 4.8, 1300, 0.75})
	if err != nil {
		t.Fatalf("Predict danger centroid: %v", err)
	}
	if safe.Probability >= 0.5 {
		t.Errorf("safe centroid probability = %.4f, want below 0.5", safe.Probability)
	}
	if danger.Probability <= 0.5 {
		t.Errorf("danger centroid probability = %.4f, want above 0.5", danger.Probability)
	}
	if safe.Level == risk.High {
		t.Errorf("safe centroid classified High (p=%.4f)", safe.Probability)
	}
	if danger.Level == risk.Low {
		t.Errorf("danger centroid classified Low (p=%.4f)", danger.Probability)
	}

	again, err := NewDefaultModel()
	if err != nil {
		t.Fatalf("NewDefaultModel: %v", err)
	}
	if diff := cmp.Diff(model, again); diff != "" {
		t.Errorf("default model not reproducible (-first +second):\n%s", diff)
	}
}

func TestPredictMonotonic(t *testing.T) {
	model, err := NewDefaultModel()
	if err != nil {
		t.Fatalf("NewDefaultModel: %v", err)
	}

	base := []float64{70, 2.8, 1050, 0.52}
	basePred, err := model.Predict(base)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	bumps := []float64{15, 2.0, 250, 0.23}
	for j := range base {
		probe := append([]float64(nil), base...)
		probe[j] += bumps[j]
		pred, err := model.Predict(probe)
		if err != nil {
			t.Fatalf("Predict bumped %s: %v", model.Features[j], err)
		}
		if pred.Probability <= basePred.Probability {
			t.Errorf("raising %s did not raise probability: %.4f -> %.4f",
				model.Features[j], basePred.Probability, pred.Probability)
		}
	}
}

func TestFeatureImportance(t *testing.T) {
	m := fixedModel([]float64{2, 1, 1, 0}, 0)
	imps, err := m.FeatureImportance()
	if err != nil {
		t.Fatalf("FeatureImportance: %v", err)
	}
	wantShares := []float64{0.5, 0.25, 0.25, 0}
	for j, imp := range imps {
		if imp.Feature != telemetry.DefaultFeatures()[j] {
			t.Errorf("importance %d is for %q, want %q", j, imp.Feature, telemetry.DefaultFeatures()[j])
		}
		if imp.Share != wantShares[j] {
			t.Errorf("share for %s = %v, want %v", imp.Feature, imp.Share, wantShares[j])
		}
	}

	model, err := NewDefaultModel()
	if err != nil {
		t.Fatalf("NewDefaultModel: %v", err)
	}
	trained, err := model.FeatureImportance()
	if err != nil {
		t.Fatalf("FeatureImportance: %v", err)
	}
	var sum float64
	for _, imp := range trained {
		if imp.Share < 0 || imp.Share > 1 {
			t.Errorf("share for %s = %.4f, want in [0,1]", imp.Feature, imp.Share)
		}
		sum += imp.Share
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importance shares sum to %.12f, want 1", sum)
	}
}

func TestPredictReadingMatchesVector(t *testing.T) {
	model, err := NewDefaultModel()
	if err != nil {
		t.Fatalf("NewDefaultModel: %v", err)
	}
	r := telemetry.SensorReading{
		SensorID:    "SENSOR_001",
		Temperature: 82.5,
		Vibration:   4.1,
		RPM:         1220,
		Load:        0.68,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	}
	fromReading, err := model.PredictReading(r)
	if err != nil {
		t.Fatalf("PredictReading: %v", err)
	}
	fromVector, err := model.Predict([]float64{82.5, 4.1, 1220, 0.68})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if fromReading != fromVector {
		t.Errorf("PredictReading = %+v, Predict = %+v", fromReading, fromVector)
	}
}

func TestPredictWithUncertainty(t *testing.T) {
	m := fixedModel([]float64{2, 0, 0, 0}, 0)

	boundary, err := m.PredictWithUncertainty([]float64{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("PredictWithUncertainty: %v", err)
	}
	if boundary.Probability != 0.5 {
		t.Fatalf("boundary probability = %v, want 0.5", boundary.Probability)
	}
	if boundary.Uncertainty != 1 {
		t.Errorf("uncertainty at p=0.5 is %v, want exactly 1", boundary.Uncertainty)
	}
	if boundary.Confidence != 0.5 {
		t.Errorf("confidence at p=0.5 is %v, want 0.5", boundary.Confidence)
	}
	if boundary.Strength != "low" {
		t.Errorf("strength at p=0.5 is %q, want low", boundary.Strength)
	}

	decisive, err := m.PredictWithUncertainty([]float64{3, 0, 0, 0})
	if err != nil {
		t.Fatalf("PredictWithUncertainty: %v", err)
	}
	if decisive.Uncertainty <= 0 || decisive.Uncertainty > 0.05 {
		t.Errorf("uncertainty at p=%.4f is %.4f, want small and positive", decisive.Probability, decisive.Uncertainty)
	}
	if decisive.Confidence < 0.99 {
		t.Errorf("confidence = %.4f, want above 0.99", decisive.Confidence)
	}
	if decisive.Strength != "high" {
		t.Errorf("strength = %q, want high", decisive.Strength)
	}

	for _, x := range []float64{-5, -1, -0.2, 0.4, 1.3, 6} {
		u, err := m.PredictWithUncertainty([]float64{x, 0, 0, 0})
		if err != nil {
			t.Fatalf("PredictWithUncertainty(%v): %v", x, err)
		}
		if u.Uncertainty < 0 || u.Uncertainty > 1 {
			t.Errorf("uncertainty at x=%v is %v, want in [0,1]", x, u.Uncertainty)
		}
	}
}

func TestSensitivity(t *testing.T) {
	m := fixedModel([]float64{4, 1, 0, 0}, -4)
	features := []float64{1, 0, 2, 3}

	out, err := m.Sensitivity(features, 0)
	if err != nil {
		t.Fatalf("Sensitivity: %v", err)
	}
	if len(out) != 4 {
		t.Fatalf("got %d sensitivities, want 4", len(out))
	}
	for j, s := range out {
		if s.Feature != m.Features[j] {
			t.Errorf("entry %d is for %q, want %q", j, s.Feature, m.Features[j])
		}
		if s.BaseProbability != 0.5 {
			t.Errorf("%s base probability = %v, want 0.5", s.Feature, s.BaseProbability)
		}
	}

	// Probing temperature at 1±0.1 moves z from -0.4 to +0.4.
	temp := out[0]
	if temp.Sensitivity < 0.9 || temp.Sensitivity > 1.1 {
		t.Errorf("temperature sensitivity = %.4f, want near 0.99", temp.Sensitivity)
	}
	if temp.Interpretation != "high_sensitivity" {
		t.Errorf("temperature interpretation = %q, want high_sensitivity", temp.Interpretation)
	}
	if temp.Impact <= 0.19 || temp.Impact >= 0.21 {
		t.Errorf("temperature impact = %.4f, want near 0.197", temp.Impact)
	}
	if temp.LowProbability >= temp.HighProbability {
		t.Errorf("probe probabilities not ordered: low %.4f, high %.4f", temp.LowProbability, temp.HighProbability)
	}

	// A zero base value cannot move under a relative probe, weight or not.
	vib := out[1]
	if vib.Sensitivity != 0 || vib.Impact != 0 {
		t.Errorf("vibration with zero base: sensitivity %.4f impact %.4f, want both 0", vib.Sensitivity, vib.Impact)
	}
	if vib.Interpretation != "low_sensitivity" {
		t.Errorf("vibration interpretation = %q, want low_sensitivity", vib.Interpretation)
	}

	// Zero-weight features never move the probability.
	for _, s := range out[2:] {
		if s.Sensitivity != 0 || s.Impact != 0 {
			t.Errorf("%s with zero weight: sensitivity %.4f impact %.4f, want both 0", s.Feature, s.Sensitivity, s.Impact)
		}
	}
}

func TestSensitivityRejectsBadDelta(t *testing.T) {
	m := fixedModel([]float64{1, 1, 1, 1}, 0)
	for _, delta := range []float64{-0.1, math.NaN(), math.Inf(1)} {
		if _, err := m.Sensitivity([]float64{1, 1, 1, 1}, delta); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Sensitivity(delta=%v) error = %v, want ErrInvalidInput", delta, err)
		}
	}
}

func TestPredictBatch(t *testing.T) {
	m := fixedModel([]float64{1, 1, 1, 1}, -2)
	rows := [][]float64{
		{0.5, 0.5, 0.5, 0.5},
		{1, 1, 1, 1},
		{-1, 0, 1, 0},
	}
	batch, err := m.PredictBatch(rows)
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if len(batch) != len(rows) {
		t.Fatalf("got %d predictions, want %d", len(batch), len(rows))
	}
	for i, row := range rows {
		single, err := m.Predict(row)
		if err != nil {
			t.Fatalf("Predict row %d: %v", i, err)
		}
		if batch[i] != single {
			t.Errorf("batch[%d] = %+v, single = %+v", i, batch[i], single)
		}
	}

	rows[1][2] = math.NaN()
	if _, err := m.PredictBatch(rows); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("PredictBatch with NaN row error = %v, want ErrInvalidInput", err)
	}
}

func TestPredictInvalidInput(t *testing.T) {
	valid := fixedModel([]float64{1, 1, 1, 1}, 0)

	cases := []struct {
		name     string
		model    *Model
		features []float64
	}{
		{"empty model", &Model{}, []float64{1, 1, 1, 1}},
		{"dimension mismatch", valid, []float64{1, 1, 1}},
		{"nan feature", valid, []float64{math.NaN(), 1, 1, 1}},
		{"inf feature", valid, []float64{1, math.Inf(1), 1, 1}},
		{"nan weight", fixedModel([]float64{math.NaN(), 1, 1, 1}, 0), []float64{1, 1, 1, 1}},
		{"skewed model", &Model{Weights: []float64{1, 2}, Features: []string{"temperature"}}, []float64{1, 2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := c.model.Predict(c.features); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestTrainInvalidInput(t *testing.T) {
	rows := [][]float64{{70, 2.5, 1000, 0.5}, {85, 5, 1300, 0.8}}
	labels := []int{0, 1}

	cases := []struct {
		name   string
		rows   [][]float64
		labels []int
		opts   TrainOptions
	}{
		{"empty", nil, nil, TrainOptions{}},
		{"label count mismatch", rows, []int{0}, TrainOptions{}},
		{"bad label", rows, []int{0, 2}, TrainOptions{}},
		{"bad width", [][]float64{{1, 2, 3}}, []int{0}, TrainOptions{}},
		{"nan row", [][]float64{{70, 2.5, 1000, 0.5}, {85, math.NaN(), 1300, 0.8}}, labels, TrainOptions{}},
		{"negative rate", rows, labels, TrainOptions{LearningRate: -1}},
		{"negative epochs", rows, labels, TrainOptions{Epochs: -5}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := Train(c.rows, c.labels, c.opts); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestGenerateTrainingDataInvalid(t *testing.T) {
	cases := []struct {
		name  string
		n     int
		noise float64
	}{
		{"too few samples", 1, 0.1},
		{"noise too high", 100, 1.0},
		{"negative noise", 100, -0.1},
		{"nan noise", 100, math.NaN()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := GenerateTrainingData(42, c.n, c.noise); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
