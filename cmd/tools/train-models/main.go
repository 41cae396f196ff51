// Command train-models regenerates the stored classifier and predictor
// artifacts, records their evaluation metrics in the history database, and
// optionally renders training diagnostics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"github.com/foundryline/plantsafe/internal/classify"
	"github.com/foundryline/plantsafe/internal/cluster"
	"github.com/foundryline/plantsafe/internal/config"
	"github.com/foundryline/plantsafe/internal/modelstore"
	"github.com/foundryline/plantsafe/internal/predict"
	"github.com/foundryline/plantsafe/internal/telemetry"
	"github.com/foundryline/plantsafe/internal/viz"
)

// Artifact names shared with the plantsafe binary.
const (
	classifierArtifact = "risk-classifier"
	predictorArtifact  = "accident-predictor"
)

func main() {
	configPath := flag.String("config", "", "safety config JSON file (compiled defaults when empty)")
	modelsDir := flag.String("models", "models", "model artifact directory")
	historyPath := flag.String("history", "models/evaluations.db", "evaluation history database")
	plotBase := flag.String("plot-dir", "", "write training diagnostics under this directory (skipped when empty)")
	flag.Parse()

	cfg := config.EmptySafetyConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadSafetyConfig(*configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	store, err := modelstore.NewStore(*modelsDir)
	if err != nil {
		log.Fatalf("open model store: %v", err)
	}
	hist, err := modelstore.OpenHistory(*historyPath)
	if err != nil {
		log.Fatalf("open history: %v", err)
	}
	defer hist.Close()

	predictor, err := trainPredictor(cfg, store, hist)
	if err != nil {
		log.Fatalf("train predictor: %v", err)
	}
	if err := fitClassifier(cfg, store, hist); err != nil {
		log.Fatalf("fit classifier: %v", err)
	}

	if *plotBase != "" {
		if err := writeDiagnostics(cfg, predictor, *plotBase); err != nil {
			log.Fatalf("write diagnostics: %v", err)
		}
	}
}

func trainPredictor(cfg *config.SafetyConfig, store *modelstore.Store, hist *modelstore.History) (*predict.Model, error) {
	rows, labels, err := predict.GenerateTrainingData(cfg.GetTrainSeed(), cfg.GetTrainSamples(), cfg.GetTrainLabelNoise())
	if err != nil {
		return nil, err
	}
	model, metrics, err := predict.Train(rows, labels, predict.TrainOptions{
		LearningRate: cfg.GetTrainLearningRate(),
		Epochs:       cfg.GetTrainEpochs(),
	})
	if err != nil {
		return nil, err
	}

	art, err := store.SaveNew(predictorArtifact, model)
	if err != nil {
		return nil, err
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, err
	}
	rec := modelstore.EvaluationRecord{
		Model:       predictorArtifact,
		Version:     art.Version,
		Accuracy:    metrics.Accuracy,
		Loss:        metrics.Loss,
		SampleCount: metrics.Samples,
		MetricsJSON: metricsJSON,
	}
	if err := hist.Insert(&rec); err != nil {
		return nil, err
	}
	log.Printf("saved %s v%d: accuracy %.3f, loss %.4f over %d samples",
		predictorArtifact, art.Version, metrics.Accuracy, metrics.Loss, metrics.Samples)
	return model, nil
}

// fitClassifier fits the KNN model on the configured reference set and
// scores it on a holdout set drawn with a shifted seed.
func fitClassifier(cfg *config.SafetyConfig, store *modelstore.Store, hist *modelstore.History) error {
	rows, labels, err := classify.GenerateReferenceSet(cfg.GetReferenceSeed(), cfg.GetReferencePerClass())
	if err != nil {
		return err
	}
	model, err := classify.Fit(rows, labels, classify.Options{
		K:       cfg.GetKNNNeighbors(),
		Epsilon: cfg.GetKNNEpsilon(),
	})
	if err != nil {
		return err
	}

	holdoutRows, holdoutLabels, err := classify.GenerateReferenceSet(cfg.GetReferenceSeed()+1, cfg.GetReferencePerClass())
	if err != nil {
		return err
	}
	correct := 0
	for i, row := range holdoutRows {
		c, err := model.Classify(row)
		if err != nil {
			return fmt.Errorf("holdout row %d: %w", i, err)
		}
		if c.Level == holdoutLabels[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(holdoutRows))

	art, err := store.SaveNew(classifierArtifact, model)
	if err != nil {
		return err
	}
	metricsJSON, err := json.Marshal(map[string]any{
		"k":                cfg.GetKNNNeighbors(),
		"per_class":        cfg.GetReferencePerClass(),
		"holdout_accuracy": accuracy,
	})
	if err != nil {
		return err
	}
	rec := modelstore.EvaluationRecord{
		Model:       classifierArtifact,
		Version:     art.Version,
		Accuracy:    accuracy,
		SampleCount: len(holdoutRows),
		MetricsJSON: metricsJSON,
	}
	if err := hist.Insert(&rec); err != nil {
		return err
	}
	log.Printf("saved %s v%d: holdout accuracy %.3f over %d rows",
		classifierArtifact, art.Version, accuracy, len(holdoutRows))
	return nil
}

// writeDiagnostics clusters a synthetic batch with the fresh predictor
// supplying accident scores and renders the elbow curve and scatter.
func writeDiagnostics(cfg *config.SafetyConfig, predictor *predict.Model, baseDir string) error {
	readings, err := telemetry.GenerateBatch(telemetry.GeneratorOptions{Seed: cfg.GetTrainSeed(), Count: 200})
	if err != nil {
		return err
	}
	res, err := cluster.Cluster(context.Background(), readings, cluster.Options{
		MaxIterations:    cfg.GetKMeansMaxIterations(),
		MaxAutoK:         cfg.GetAutoKMax(),
		AnomalyThreshold: cfg.GetAnomalyStdThreshold(),
		Seed:             cfg.GetTrainSeed(),
		AccidentScore: func(r telemetry.SensorReading) (float64, error) {
			p, err := predictor.PredictReading(r)
			if err != nil {
				return 0, err
			}
			return p.Probability, nil
		},
	})
	if err != nil {
		return err
	}

	outDir := viz.MakeOutputDir(baseDir, "")
	if err := viz.ElbowCurve(res.ElbowCurve, res.K, filepath.Join(outDir, "elbow_curve.png")); err != nil {
		return err
	}
	return viz.ClusterScatter(res, readings, telemetry.FeatureTemperature, telemetry.FeatureVibration,
		filepath.Join(outDir, "cluster_scatter.png"))
}
