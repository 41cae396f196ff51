package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical safety defaults file.
// This is the single source of truth for all tunable thresholds used by the
// decision engines.
const DefaultConfigPath = "config/safety.defaults.json"

// SafetyConfig represents the root configuration for the decision engines:
// the safety-score surface, optimizer search parameters, classifier and
// predictor training knobs, clustering caps, and alert/analytics thresholds.
// All fields are optional; the Get* accessors fall back to compiled defaults
// so partial configs are safe.
type SafetyConfig struct {
	// Safety score surface (optimal centers, tolerances, weights)
	TemperatureOptimal   *float64 `json:"temperature_optimal,omitempty"`
	TemperatureTolerance *float64 `json:"temperature_tolerance,omitempty"`
	VibrationOptimal     *float64 `json:"vibration_optimal,omitempty"`
	VibrationTolerance   *float64 `json:"vibration_tolerance,omitempty"`
	LoadOptimal          *float64 `json:"load_optimal,omitempty"`
	LoadTolerance        *float64 `json:"load_tolerance,omitempty"`
	WeightTemperature    *float64 `json:"weight_temperature,omitempty"`
	WeightVibration      *float64 `json:"weight_vibration,omitempty"`
	WeightLoad           *float64 `json:"weight_load,omitempty"`

	// Optimizer bounds and search parameters
	TemperatureMin    *float64 `json:"temperature_min,omitempty"`
	TemperatureMax    *float64 `json:"temperature_max,omitempty"`
	VibrationMin      *float64 `json:"vibration_min,omitempty"`
	VibrationMax      *float64 `json:"vibration_max,omitempty"`
	LoadMin           *float64 `json:"load_min,omitempty"`
	LoadMax           *float64 `json:"load_max,omitempty"`
	StepTemperature   *float64 `json:"step_temperature,omitempty"`
	StepVibration     *float64 `json:"step_vibration,omitempty"`
	StepLoad          *float64 `json:"step_load,omitempty"`
	MaxIterations     *int     `json:"max_iterations,omitempty"`
	ConvergenceWindow *int     `json:"convergence_window,omitempty"`

	// Risk classifier (KNN)
	KNNNeighbors      *int     `json:"knn_neighbors,omitempty"`
	KNNEpsilon        *float64 `json:"knn_epsilon,omitempty"`
	ReferencePerClass *int     `json:"reference_per_class,omitempty"`
	ReferenceSeed     *int64   `json:"reference_seed,omitempty"`

	// Accident predictor training
	TrainSamples      *int     `json:"train_samples,omitempty"`
	TrainSeed         *int64   `json:"train_seed,omitempty"`
	TrainLabelNoise   *float64 `json:"train_label_noise,omitempty"`
	TrainLearningRate *float64 `json:"train_learning_rate,omitempty"`
	TrainEpochs       *int     `json:"train_epochs,omitempty"`

	// Sensor clustering
	KMeansMaxIterations *int     `json:"kmeans_max_iterations,omitempty"`
	AutoKMax            *int     `json:"auto_k_max,omitempty"`
	AnomalyStdThreshold *float64 `json:"anomaly_std_threshold,omitempty"`
	ProfileTempElevated *float64 `json:"profile_temperature_elevated,omitempty"`
	ProfileTempHigh     *float64 `json:"profile_temperature_high,omitempty"`
	ProfileVibElevated  *float64 `json:"profile_vibration_elevated,omitempty"`
	ProfileVibHigh      *float64 `json:"profile_vibration_high,omitempty"`

	// Path planning
	RouteSafetyWeight *float64 `json:"route_safety_weight,omitempty"`
	RouteRiskScale    *float64 `json:"route_risk_scale,omitempty"`

	// Alert thresholds (warning / critical per metric)
	AlertTemperatureWarning  *float64 `json:"alert_temperature_warning,omitempty"`
	AlertTemperatureCritical *float64 `json:"alert_temperature_critical,omitempty"`
	AlertVibrationWarning    *float64 `json:"alert_vibration_warning,omitempty"`
	AlertVibrationCritical   *float64 `json:"alert_vibration_critical,omitempty"`
	AlertRPMWarning          *float64 `json:"alert_rpm_warning,omitempty"`
	AlertRPMCritical         *float64 `json:"alert_rpm_critical,omitempty"`
	AlertLoadWarning         *float64 `json:"alert_load_warning,omitempty"`
	AlertLoadCritical        *float64 `json:"alert_load_critical,omitempty"`
	AlertProbabilityWarning  *float64 `json:"alert_probability_warning,omitempty"`
	AlertProbabilityCritical *float64 `json:"alert_probability_critical,omitempty"`

	// Historical analytics
	TrendWindow            *int     `json:"trend_window,omitempty"`
	AnomalyZScore          *float64 `json:"anomaly_zscore,omitempty"`
	MaintenanceTemperature *float64 `json:"maintenance_temperature,omitempty"`
	MaintenanceVibration   *float64 `json:"maintenance_vibration,omitempty"`
	MaintenanceRPM         *float64 `json:"maintenance_rpm,omitempty"`
	MaintenanceLoad        *float64 `json:"maintenance_load,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptySafetyConfig returns a SafetyConfig with all fields set to nil.
// Use LoadSafetyConfig to load actual values from the defaults file.
func EmptySafetyConfig() *SafetyConfig {
	return &SafetyConfig{}
}

// LoadSafetyConfig loads a SafetyConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadSafetyConfig(path string) (*SafetyConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptySafetyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical safety defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SafetyConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/train-models/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadSafetyConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are consistent.
func (c *SafetyConfig) Validate() error {
	for name, v := range map[string]*float64{
		"temperature_tolerance": c.TemperatureTolerance,
		"vibration_tolerance":   c.VibrationTolerance,
		"load_tolerance":        c.LoadTolerance,
		"step_temperature":      c.StepTemperature,
		"step_vibration":        c.StepVibration,
		"step_load":             c.StepLoad,
		"knn_epsilon":           c.KNNEpsilon,
		"anomaly_std_threshold": c.AnomalyStdThreshold,
		"anomaly_zscore":        c.AnomalyZScore,
		"route_risk_scale":      c.RouteRiskScale,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	// Score weights must form a convex combination when all three are set.
	if c.WeightTemperature != nil && c.WeightVibration != nil && c.WeightLoad != nil {
		sum := *c.WeightTemperature + *c.WeightVibration + *c.WeightLoad
		if math.Abs(sum-1.0) > 1e-6 {
			return fmt.Errorf("score weights must sum to 1.0, got %f", sum)
		}
	}

	if c.RouteSafetyWeight != nil {
		if *c.RouteSafetyWeight < 0 || *c.RouteSafetyWeight > 1 {
			return fmt.Errorf("route_safety_weight must be between 0 and 1, got %f", *c.RouteSafetyWeight)
		}
	}

	if c.KNNNeighbors != nil && *c.KNNNeighbors < 1 {
		return fmt.Errorf("knn_neighbors must be at least 1, got %d", *c.KNNNeighbors)
	}
	if c.MaxIterations != nil && *c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", *c.MaxIterations)
	}
	if c.ConvergenceWindow != nil && *c.ConvergenceWindow < 1 {
		return fmt.Errorf("convergence_window must be at least 1, got %d", *c.ConvergenceWindow)
	}
	if c.KMeansMaxIterations != nil && *c.KMeansMaxIterations < 1 {
		return fmt.Errorf("kmeans_max_iterations must be at least 1, got %d", *c.KMeansMaxIterations)
	}
	if c.AutoKMax != nil && *c.AutoKMax < 2 {
		return fmt.Errorf("auto_k_max must be at least 2, got %d", *c.AutoKMax)
	}
	if c.TrainLabelNoise != nil {
		if *c.TrainLabelNoise < 0 || *c.TrainLabelNoise >= 1 {
			return fmt.Errorf("train_label_noise must be in [0,1), got %f", *c.TrainLabelNoise)
		}
	}
	if c.TrendWindow != nil && *c.TrendWindow < 2 {
		return fmt.Errorf("trend_window must be at least 2, got %d", *c.TrendWindow)
	}

	// Warning thresholds must sit below their critical counterparts.
	pairs := []struct {
		name              string
		warning, critical *float64
	}{
		{"temperature", c.AlertTemperatureWarning, c.AlertTemperatureCritical},
		{"vibration", c.AlertVibrationWarning, c.AlertVibrationCritical},
		{"rpm", c.AlertRPMWarning, c.AlertRPMCritical},
		{"load", c.AlertLoadWarning, c.AlertLoadCritical},
		{"accident_probability", c.AlertProbabilityWarning, c.AlertProbabilityCritical},
	}
	for _, p := range pairs {
		if p.warning != nil && p.critical != nil && *p.warning >= *p.critical {
			return fmt.Errorf("alert %s warning threshold %f must be below critical %f", p.name, *p.warning, *p.critical)
		}
	}

	return nil
}

// GetTemperatureOptimal returns the optimal temperature center or the default.
func (c *SafetyConfig) GetTemperatureOptimal() float64 {
	if c.TemperatureOptimal == nil {
		return 70.0 // center of the 65-75°F optimal band
	}
	return *c.TemperatureOptimal
}

// GetTemperatureTolerance returns the temperature score tolerance or the default.
func (c *SafetyConfig) GetTemperatureTolerance() float64 {
	if c.TemperatureTolerance == nil {
		return 50.0
	}
	return *c.TemperatureTolerance
}

// GetVibrationOptimal returns the optimal vibration center or the default.
func (c *SafetyConfig) GetVibrationOptimal() float64 {
	if c.VibrationOptimal == nil {
		return 2.5 // center of the 2.0-3.5 m/s² optimal band
	}
	return *c.VibrationOptimal
}

// GetVibrationTolerance returns the vibration score tolerance or the default.
func (c *SafetyConfig) GetVibrationTolerance() float64 {
	if c.VibrationTolerance == nil {
		return 4.0
	}
	return *c.VibrationTolerance
}

// GetLoadOptimal returns the optimal load center or the default.
func (c *SafetyConfig) GetLoadOptimal() float64 {
	if c.LoadOptimal == nil {
		return 0.5
	}
	return *c.LoadOptimal
}

// GetLoadTolerance returns the load score tolerance or the default.
func (c *SafetyConfig) GetLoadTolerance() float64 {
	if c.LoadTolerance == nil {
		return 0.5
	}
	return *c.LoadTolerance
}

// GetWeightTemperature returns the temperature score weight or the default.
func (c *SafetyConfig) GetWeightTemperature() float64 {
	if c.WeightTemperature == nil {
		return 0.4
	}
	return *c.WeightTemperature
}

// GetWeightVibration returns the vibration score weight or the default.
func (c *SafetyConfig) GetWeightVibration() float64 {
	if c.WeightVibration == nil {
		return 0.3
	}
	return *c.WeightVibration
}

// GetWeightLoad returns the load score weight or the default.
func (c *SafetyConfig) GetWeightLoad() float64 {
	if c.WeightLoad == nil {
		return 0.3
	}
	return *c.WeightLoad
}

// GetTemperatureMin returns the lower temperature bound or the default.
func (c *SafetyConfig) GetTemperatureMin() float64 {
	if c.TemperatureMin == nil {
		return 50.0
	}
	return *c.TemperatureMin
}

// GetTemperatureMax returns the upper temperature bound or the default.
func (c *SafetyConfig) GetTemperatureMax() float64 {
	if c.TemperatureMax == nil {
		return 100.0
	}
	return *c.TemperatureMax
}

// GetVibrationMin returns the lower vibration bound or the default.
func (c *SafetyConfig) GetVibrationMin() float64 {
	if c.VibrationMin == nil {
		return 1.0
	}
	return *c.VibrationMin
}

// GetVibrationMax returns the upper vibration bound or the default.
func (c *SafetyConfig) GetVibrationMax() float64 {
	if c.VibrationMax == nil {
		return 7.0
	}
	return *c.VibrationMax
}

// GetLoadMin returns the lower load bound or the default.
func (c *SafetyConfig) GetLoadMin() float64 {
	if c.LoadMin == nil {
		return 0.2
	}
	return *c.LoadMin
}

// GetLoadMax returns the upper load bound or the default.
func (c *SafetyConfig) GetLoadMax() float64 {
	if c.LoadMax == nil {
		return 1.0
	}
	return *c.LoadMax
}

// GetStepTemperature returns the temperature perturbation step or the default.
func (c *SafetyConfig) GetStepTemperature() float64 {
	if c.StepTemperature == nil {
		return 2.0
	}
	return *c.StepTemperature
}

// GetStepVibration returns the vibration perturbation step or the default.
func (c *SafetyConfig) GetStepVibration() float64 {
	if c.StepVibration == nil {
		return 0.2
	}
	return *c.StepVibration
}

// GetStepLoad returns the load perturbation step or the default.
func (c *SafetyConfig) GetStepLoad() float64 {
	if c.StepLoad == nil {
		return 0.05
	}
	return *c.StepLoad
}

// GetMaxIterations returns the optimizer iteration cap or the default.
func (c *SafetyConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 1000
	}
	return *c.MaxIterations
}

// GetConvergenceWindow returns the number of consecutive non-improving
// attempts treated as convergence, or the default.
func (c *SafetyConfig) GetConvergenceWindow() int {
	if c.ConvergenceWindow == nil {
		return 50
	}
	return *c.ConvergenceWindow
}

// GetKNNNeighbors returns the classifier neighbor count or the default.
func (c *SafetyConfig) GetKNNNeighbors() int {
	if c.KNNNeighbors == nil {
		return 5
	}
	return *c.KNNNeighbors
}

// GetKNNEpsilon returns the inverse-distance vote epsilon or the default.
func (c *SafetyConfig) GetKNNEpsilon() float64 {
	if c.KNNEpsilon == nil {
		return 1e-9
	}
	return *c.KNNEpsilon
}

// GetReferencePerClass returns the reference set size per class or the default.
func (c *SafetyConfig) GetReferencePerClass() int {
	if c.ReferencePerClass == nil {
		return 333
	}
	return *c.ReferencePerClass
}

// GetReferenceSeed returns the reference set generation seed or the default.
func (c *SafetyConfig) GetReferenceSeed() int64 {
	if c.ReferenceSeed == nil {
		return 42
	}
	return *c.ReferenceSeed
}

// GetTrainSamples returns the predictor training sample count or the default.
func (c *SafetyConfig) GetTrainSamples() int {
	if c.TrainSamples == nil {
		return 2000
	}
	return *c.TrainSamples
}

// GetTrainSeed returns the predictor training seed or the default.
func (c *SafetyConfig) GetTrainSeed() int64 {
	if c.TrainSeed == nil {
		return 42
	}
	return *c.TrainSeed
}

// GetTrainLabelNoise returns the label flip fraction or the default.
func (c *SafetyConfig) GetTrainLabelNoise() float64 {
	if c.TrainLabelNoise == nil {
		return 0.1
	}
	return *c.TrainLabelNoise
}

// GetTrainLearningRate returns the gradient descent learning rate or the default.
func (c *SafetyConfig) GetTrainLearningRate() float64 {
	if c.TrainLearningRate == nil {
		return 0.1
	}
	return *c.TrainLearningRate
}

// GetTrainEpochs returns the gradient descent epoch count or the default.
func (c *SafetyConfig) GetTrainEpochs() int {
	if c.TrainEpochs == nil {
		return 500
	}
	return *c.TrainEpochs
}

// GetKMeansMaxIterations returns the clustering iteration cap or the default.
func (c *SafetyConfig) GetKMeansMaxIterations() int {
	if c.KMeansMaxIterations == nil {
		return 300
	}
	return *c.KMeansMaxIterations
}

// GetAutoKMax returns the upper bound of the automatic k sweep or the default.
func (c *SafetyConfig) GetAutoKMax() int {
	if c.AutoKMax == nil {
		return 10
	}
	return *c.AutoKMax
}

// GetAnomalyStdThreshold returns the per-cluster anomaly threshold in
// standard deviations, or the default.
func (c *SafetyConfig) GetAnomalyStdThreshold() float64 {
	if c.AnomalyStdThreshold == nil {
		return 2.0
	}
	return *c.AnomalyStdThreshold
}

// GetProfileTempElevated returns the elevated-temperature profile threshold or the default.
func (c *SafetyConfig) GetProfileTempElevated() float64 {
	if c.ProfileTempElevated == nil {
		return 70.0
	}
	return *c.ProfileTempElevated
}

// GetProfileTempHigh returns the high-temperature profile threshold or the default.
func (c *SafetyConfig) GetProfileTempHigh() float64 {
	if c.ProfileTempHigh == nil {
		return 80.0
	}
	return *c.ProfileTempHigh
}

// GetProfileVibElevated returns the elevated-vibration profile threshold or the default.
func (c *SafetyConfig) GetProfileVibElevated() float64 {
	if c.ProfileVibElevated == nil {
		return 3.5
	}
	return *c.ProfileVibElevated
}

// GetProfileVibHigh returns the high-vibration profile threshold or the default.
func (c *SafetyConfig) GetProfileVibHigh() float64 {
	if c.ProfileVibHigh == nil {
		return 5.0
	}
	return *c.ProfileVibHigh
}

// GetRouteSafetyWeight returns the default risk blend for routing or the default.
func (c *SafetyConfig) GetRouteSafetyWeight() float64 {
	if c.RouteSafetyWeight == nil {
		return 0.5
	}
	return *c.RouteSafetyWeight
}

// GetRouteRiskScale returns the per-cell risk cost multiplier or the default.
func (c *SafetyConfig) GetRouteRiskScale() float64 {
	if c.RouteRiskScale == nil {
		return 10.0
	}
	return *c.RouteRiskScale
}

// GetAlertTemperatureWarning returns the temperature warning threshold or the default.
func (c *SafetyConfig) GetAlertTemperatureWarning() float64 {
	if c.AlertTemperatureWarning == nil {
		return 80.0
	}
	return *c.AlertTemperatureWarning
}

// GetAlertTemperatureCritical returns the temperature critical threshold or the default.
func (c *SafetyConfig) GetAlertTemperatureCritical() float64 {
	if c.AlertTemperatureCritical == nil {
		return 90.0
	}
	return *c.AlertTemperatureCritical
}

// GetAlertVibrationWarning returns the vibration warning threshold or the default.
func (c *SafetyConfig) GetAlertVibrationWarning() float64 {
	if c.AlertVibrationWarning == nil {
		return 4.5
	}
	return *c.AlertVibrationWarning
}

// GetAlertVibrationCritical returns the vibration critical threshold or the default.
func (c *SafetyConfig) GetAlertVibrationCritical() float64 {
	if c.AlertVibrationCritical == nil {
		return 6.0
	}
	return *c.AlertVibrationCritical
}

// GetAlertRPMWarning returns the rpm warning threshold or the default.
func (c *SafetyConfig) GetAlertRPMWarning() float64 {
	if c.AlertRPMWarning == nil {
		return 1300.0
	}
	return *c.AlertRPMWarning
}

// GetAlertRPMCritical returns the rpm critical threshold or the default.
func (c *SafetyConfig) GetAlertRPMCritical() float64 {
	if c.AlertRPMCritical == nil {
		return 1450.0
	}
	return *c.AlertRPMCritical
}

// GetAlertLoadWarning returns the load warning threshold or the default.
func (c *SafetyConfig) GetAlertLoadWarning() float64 {
	if c.AlertLoadWarning == nil {
		return 0.75
	}
	return *c.AlertLoadWarning
}

// GetAlertLoadCritical returns the load critical threshold or the default.
func (c *SafetyConfig) GetAlertLoadCritical() float64 {
	if c.AlertLoadCritical == nil {
		return 0.85
	}
	return *c.AlertLoadCritical
}

// GetAlertProbabilityWarning returns the accident probability warning threshold or the default.
func (c *SafetyConfig) GetAlertProbabilityWarning() float64 {
	if c.AlertProbabilityWarning == nil {
		return 0.5
	}
	return *c.AlertProbabilityWarning
}

// GetAlertProbabilityCritical returns the accident probability critical threshold or the default.
func (c *SafetyConfig) GetAlertProbabilityCritical() float64 {
	if c.AlertProbabilityCritical == nil {
		return 0.7
	}
	return *c.AlertProbabilityCritical
}

// GetTrendWindow returns the moving average window or the default.
func (c *SafetyConfig) GetTrendWindow() int {
	if c.TrendWindow == nil {
		return 5
	}
	return *c.TrendWindow
}

// GetAnomalyZScore returns the analytics z-score threshold or the default.
func (c *SafetyConfig) GetAnomalyZScore() float64 {
	if c.AnomalyZScore == nil {
		return 2.0
	}
	return *c.AnomalyZScore
}

// GetMaintenanceTemperature returns the maintenance temperature threshold or the default.
func (c *SafetyConfig) GetMaintenanceTemperature() float64 {
	if c.MaintenanceTemperature == nil {
		return 85.0
	}
	return *c.MaintenanceTemperature
}

// GetMaintenanceVibration returns the maintenance vibration threshold or the default.
func (c *SafetyConfig) GetMaintenanceVibration() float64 {
	if c.MaintenanceVibration == nil {
		return 5.0
	}
	return *c.MaintenanceVibration
}

// GetMaintenanceRPM returns the maintenance rpm threshold or the default.
func (c *SafetyConfig) GetMaintenanceRPM() float64 {
	if c.MaintenanceRPM == nil {
		return 1400.0
	}
	return *c.MaintenanceRPM
}

// GetMaintenanceLoad returns the maintenance load threshold or the default.
func (c *SafetyConfig) GetMaintenanceLoad() float64 {
	if c.MaintenanceLoad == nil {
		return 0.8
	}
	return *c.MaintenanceLoad
}
