package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/foundryline/plantsafe/internal/alerts"
	"github.com/foundryline/plantsafe/internal/analytics"
	"github.com/foundryline/plantsafe/internal/classify"
	"github.com/foundryline/plantsafe/internal/cluster"
	"github.com/foundryline/plantsafe/internal/config"
	"github.com/foundryline/plantsafe/internal/modelstore"
	"github.com/foundryline/plantsafe/internal/optimize"
	"github.com/foundryline/plantsafe/internal/pathplan"
	"github.com/foundryline/plantsafe/internal/predict"
	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
	"github.com/foundryline/plantsafe/internal/viz"
)

// Model artifact names in the store, shared with train-models.
const (
	classifierArtifact = "risk-classifier"
	predictorArtifact  = "accident-predictor"
)

// app bundles the configuration, model storage, and lazily built models
// shared by the actions.
type app struct {
	cfg   *config.SafetyConfig
	store *modelstore.Store

	knn   *classify.Model
	logit *predict.Model
}

// Report aggregates the sections produced by the selected actions.
type Report struct {
	Source    string            `json:"source"`
	Readings  int               `json:"readings"`
	Cluster   *cluster.Result   `json:"clustering,omitempty"`
	Classify  *ClassifySection  `json:"classification,omitempty"`
	Predict   *PredictSection   `json:"prediction,omitempty"`
	Optimize  *optimize.Result  `json:"optimization,omitempty"`
	Route     *RouteSection     `json:"routes,omitempty"`
	Alerts    *AlertsSection    `json:"alerts,omitempty"`
	Analytics *AnalyticsSection `json:"analytics,omitempty"`
	Plots     []string          `json:"plots,omitempty"`
}

// classifier returns the stored KNN model, fitting a fresh one from the
// configured reference set when no artifact exists.
func (a *app) classifier() (*classify.Model, error) {
	if a.knn != nil {
		return a.knn, nil
	}
	var m classify.Model
	if _, err := a.store.LoadLatest(classifierArtifact, &m); err == nil {
		a.knn = &m
		return a.knn, nil
	} else if !errors.Is(err, modelstore.ErrNotFound) {
		return nil, err
	}

	log.Printf("no stored %s artifact, fitting from config", classifierArtifact)
	rows, labels, err := classify.GenerateReferenceSet(a.cfg.GetReferenceSeed(), a.cfg.GetReferencePerClass())
	if err != nil {
		return nil, err
	}
	model, err := classify.Fit(rows, labels, classify.Options{
		K:       a.cfg.GetKNNNeighbors(),
		Epsilon: a.cfg.GetKNNEpsilon(),
	})
	if err != nil {
		return nil, err
	}
	a.knn = model
	return a.knn, nil
}

// predictor returns the stored logistic model, training a fresh one from the
// configured knobs when no artifact exists.
func (a *app) predictor() (*predict.Model, error) {
	if a.logit != nil {
		return a.logit, nil
	}
	var m predict.Model
	if _, err := a.store.LoadLatest(predictorArtifact, &m); err == nil {
		a.logit = &m
		return a.logit, nil
	} else if !errors.Is(err, modelstore.ErrNotFound) {
		return nil, err
	}

	log.Printf("no stored %s artifact, training from config", predictorArtifact)
	rows, labels, err := predict.GenerateTrainingData(a.cfg.GetTrainSeed(), a.cfg.GetTrainSamples(), a.cfg.GetTrainLabelNoise())
	if err != nil {
		return nil, err
	}
	model, _, err := predict.Train(rows, labels, predict.TrainOptions{
		LearningRate: a.cfg.GetTrainLearningRate(),
		Epochs:       a.cfg.GetTrainEpochs(),
	})
	if err != nil {
		return nil, err
	}
	a.logit = model
	return a.logit, nil
}

// accidentScorer adapts the predictor for cluster profiling and alert
// grading, or returns nil when no model can be built.
func (a *app) accidentScorer() func(telemetry.SensorReading) (float64, error) {
	model, err := a.predictor()
	if err != nil {
		log.Printf("proceeding without accident probabilities: %v", err)
		return nil
	}
	return func(r telemetry.SensorReading) (float64, error) {
		p, err := model.PredictReading(r)
		if err != nil {
			return 0, err
		}
		return p.Probability, nil
	}
}

func (a *app) runCluster(ctx context.Context, readings []telemetry.SensorReading, k int, seed int64) (*cluster.Result, error) {
	return cluster.Cluster(ctx, readings, clusterOptions(a.cfg, k, seed, a.accidentScorer()))
}

// SensorClassification pairs a reading's sensor with its verdict.
type SensorClassification struct {
	SensorID string `json:"sensor_id"`
	classify.Classification
}

// ClassifySection reports per-reading risk tiers and the tier counts.
type ClassifySection struct {
	Results []SensorClassification `json:"results"`
	Counts  map[risk.Level]int     `json:"counts"`
}

func (a *app) runClassify(readings []telemetry.SensorReading) (*ClassifySection, error) {
	model, err := a.classifier()
	if err != nil {
		return nil, err
	}
	section := &ClassifySection{
		Results: make([]SensorClassification, len(readings)),
		Counts:  make(map[risk.Level]int, 3),
	}
	for i, r := range readings {
		c, err := model.ClassifyReading(r)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		section.Results[i] = SensorClassification{SensorID: r.SensorID, Classification: c}
		section.Counts[c.Level]++
	}
	return section, nil
}

// SensorPrediction pairs a reading's sensor with its accident score.
type SensorPrediction struct {
	SensorID string `json:"sensor_id"`
	predict.Prediction
}

// PredictSection reports per-reading accident probabilities, the batch mean,
// and the model's feature importances.
type PredictSection struct {
	Results         []SensorPrediction   `json:"results"`
	MeanProbability float64              `json:"mean_probability"`
	Importance      []predict.Importance `json:"feature_importance"`
}

func (a *app) runPredict(readings []telemetry.SensorReading) (*PredictSection, error) {
	model, err := a.predictor()
	if err != nil {
		return nil, err
	}
	section := &PredictSection{Results: make([]SensorPrediction, len(readings))}
	for i, r := range readings {
		p, err := model.PredictReading(r)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		section.Results[i] = SensorPrediction{SensorID: r.SensorID, Prediction: p}
		section.MeanProbability += p.Probability
	}
	section.MeanProbability /= float64(len(readings))
	if section.Importance, err = model.FeatureImportance(); err != nil {
		return nil, err
	}
	return section, nil
}

func (a *app) runOptimize(ctx context.Context, readings []telemetry.SensorReading, seed int64) (*optimize.Result, error) {
	initial := meanOperatingPoint(readings)
	log.Printf("optimizing from batch mean point: temp %.1f, vibration %.2f, load %.2f",
		initial.Temperature, initial.Vibration, initial.Load)
	res, err := optimize.Optimize(ctx, initial, optimizeParams(a.cfg, seed))
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// meanOperatingPoint is the batch average of the optimizable metrics.
func meanOperatingPoint(readings []telemetry.SensorReading) optimize.OperatingPoint {
	var p optimize.OperatingPoint
	if len(readings) == 0 {
		return p
	}
	for _, r := range readings {
		p.Temperature += r.Temperature
		p.Vibration += r.Vibration
		p.Load += r.Load
	}
	n := float64(len(readings))
	p.Temperature /= n
	p.Vibration /= n
	p.Load /= n
	return p
}

// RouteSection reports the configured route plus the three-strategy
// comparison for the same endpoints.
type RouteSection struct {
	Start      pathplan.Cell            `json:"start"`
	Goal       pathplan.Cell            `json:"goal"`
	Planned    pathplan.PathResult      `json:"planned"`
	Comparison pathplan.RouteComparison `json:"comparison"`
}

func (a *app) runRoute(ctx context.Context, gridPath, startFlag, goalFlag string) (*RouteSection, error) {
	spec := demoGrid()
	if gridPath != "" {
		var err error
		if spec, err = loadGridSpec(gridPath); err != nil {
			return nil, err
		}
	}
	g, err := spec.build()
	if err != nil {
		return nil, err
	}

	start := pathplan.Cell{}
	if spec.Start != nil {
		start = *spec.Start
	}
	if startFlag != "" {
		if start, err = parseCell(startFlag); err != nil {
			return nil, err
		}
	}
	goal := pathplan.Cell{Row: g.Rows() - 1, Col: g.Cols() - 1}
	if spec.Goal != nil {
		goal = *spec.Goal
	}
	if goalFlag != "" {
		if goal, err = parseCell(goalFlag); err != nil {
			return nil, err
		}
	}

	planned, err := pathplan.FindPath(ctx, g, start, goal, pathplan.Options{
		SafetyWeight: a.cfg.GetRouteSafetyWeight(),
		RiskScale:    a.cfg.GetRouteRiskScale(),
	})
	if err != nil {
		return nil, err
	}
	comparison, err := pathplan.CompareRoutes(ctx, g, start, goal)
	if err != nil {
		return nil, err
	}
	return &RouteSection{Start: start, Goal: goal, Planned: planned, Comparison: comparison}, nil
}

// AlertsSection reports the raised events and their severity rollup.
type AlertsSection struct {
	Events  []alerts.Event `json:"events"`
	Summary alerts.Summary `json:"summary"`
}

func (a *app) runAlerts(readings []telemetry.SensorReading) (*AlertsSection, error) {
	ev, err := alerts.NewEvaluator(alertParams(a.cfg))
	if err != nil {
		return nil, err
	}
	events, err := ev.EvaluateBatch(readings, a.accidentScorer())
	if err != nil {
		return nil, err
	}
	return &AlertsSection{Events: events, Summary: alerts.Summarize(events)}, nil
}

// AnalyticsSection bundles the historical reports. A report needing more
// readings than the batch provides is skipped with a log line rather than
// failing the whole run.
type AnalyticsSection struct {
	Trends      map[string]analytics.TrendSeries      `json:"trends,omitempty"`
	Anomalies   *analytics.AnomalyReport              `json:"anomalies,omitempty"`
	Statistics  map[string]analytics.MetricStatistics `json:"statistics,omitempty"`
	Maintenance *analytics.MaintenanceReport          `json:"maintenance,omitempty"`
	Correlation *analytics.CorrelationReport          `json:"correlation,omitempty"`
}

func (a *app) runAnalytics(readings []telemetry.SensorReading) (*AnalyticsSection, error) {
	section := &AnalyticsSection{}

	trends, err := analytics.Trends(readings, a.cfg.GetTrendWindow())
	switch {
	case err == nil:
		section.Trends = trends
	case errors.Is(err, analytics.ErrInsufficientData):
		log.Printf("skipping trends: %v", err)
	default:
		return nil, err
	}

	anomalies, err := analytics.DetectAnomalies(readings, a.cfg.GetAnomalyZScore())
	switch {
	case err == nil:
		section.Anomalies = &anomalies
	case errors.Is(err, analytics.ErrInsufficientData):
		log.Printf("skipping anomaly detection: %v", err)
	default:
		return nil, err
	}

	stats, err := analytics.Statistics(readings)
	switch {
	case err == nil:
		section.Statistics = stats
	case errors.Is(err, analytics.ErrInsufficientData):
		log.Printf("skipping statistics: %v", err)
	default:
		return nil, err
	}

	maintenance, err := analytics.MaintenanceIndicators(readings, maintenanceThresholds(a.cfg))
	switch {
	case err == nil:
		section.Maintenance = &maintenance
	case errors.Is(err, analytics.ErrInsufficientData):
		log.Printf("skipping maintenance indicators: %v", err)
	default:
		return nil, err
	}

	correlation, err := analytics.Correlation(readings)
	switch {
	case err == nil:
		section.Correlation = &correlation
	case errors.Is(err, analytics.ErrInsufficientData):
		log.Printf("skipping correlation: %v", err)
	default:
		return nil, err
	}

	return section, nil
}

// runPlots renders the optimizer trace, elbow curve, and cluster scatter for
// the batch under a timestamped directory.
func (a *app) runPlots(ctx context.Context, readings []telemetry.SensorReading, k int, seed int64, baseDir, sourceFile string) ([]string, error) {
	outDir := viz.MakeOutputDir(baseDir, sourceFile)
	var written []string

	opt, err := a.runOptimize(ctx, readings, seed)
	if err != nil {
		return nil, err
	}
	if len(opt.Trace) >= 2 {
		path := filepath.Join(outDir, "optimizer_trace.png")
		if err := viz.OptimizerTrace(opt.Trace, path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}

	res, err := a.runCluster(ctx, readings, k, seed)
	if err != nil {
		return nil, err
	}
	if len(res.ElbowCurve) > 0 {
		path := filepath.Join(outDir, "elbow_curve.png")
		if err := viz.ElbowCurve(res.ElbowCurve, res.K, path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	path := filepath.Join(outDir, "cluster_scatter.png")
	if err := viz.ClusterScatter(res, readings, telemetry.FeatureTemperature, telemetry.FeatureVibration, path); err != nil {
		return nil, err
	}
	written = append(written, path)

	return written, nil
}
