// Package analytics computes trend, anomaly, statistical, maintenance, and
// correlation reports over windows of sensor readings. All functions are
// stateless; callers pass the window they care about.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/foundryline/plantsafe/internal/telemetry"
)

var (
	// ErrInvalidInput reports readings or thresholds the analyzers cannot use.
	ErrInvalidInput = errors.New("invalid analytics input")
	// ErrInsufficientData reports a window too small for the requested analysis.
	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// Analysis defaults.
const (
	DefaultTrendWindow   = 5
	DefaultAnomalyZScore = 2.0
	// trendBand is the relative dead zone around "no change" when grading
	// a smoothed series as rising or falling.
	trendBand = 0.02
	// maintenanceWindow is how many trailing readings maintenance
	// indicators inspect.
	maintenanceWindow = 10
	// Escalation factors over a maintenance threshold.
	maintenanceHighFactor     = 1.1
	maintenanceCriticalFactor = 1.2
)

// TrendDirection grades the movement of a smoothed metric series.
type TrendDirection string

const (
	TrendRising       TrendDirection = "rising"
	TrendFalling      TrendDirection = "falling"
	TrendStable       TrendDirection = "stable"
	TrendInsufficient TrendDirection = "insufficient_data"
)

// TrendSeries is one metric's trend summary over a reading window.
// Spread statistics and the smoothed series are only present when the
// window holds at least one full moving-average span.
type TrendSeries struct {
	Metric              string         `json:"metric"`
	Current             float64        `json:"current"`
	Average             float64        `json:"average"`
	Min                 float64        `json:"min"`
	Max                 float64        `json:"max"`
	StdDev              float64        `json:"std_dev"`
	Direction           TrendDirection `json:"trend"`
	RateOfChangePercent float64        `json:"rate_of_change_percent"`
	MovingAverage       []float64      `json:"moving_avg,omitempty"`
}

// Trends computes per-metric trend series over the window. A zero window
// selects DefaultTrendWindow. The direction compares the first and last
// smoothed values with a 2% dead zone; the rate of change compares the raw
// endpoints.
func Trends(readings []telemetry.SensorReading, window int) (map[string]TrendSeries, error) {
	if len(readings) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 readings for trends, got %d", ErrInsufficientData, len(readings))
	}
	if window == 0 {
		window = DefaultTrendWindow
	}
	if window < 2 {
		return nil, fmt.Errorf("%w: trend window must be at least 2, got %d", ErrInvalidInput, window)
	}
	cols, err := metricColumns(readings)
	if err != nil {
		return nil, err
	}

	n := len(readings)
	out := make(map[string]TrendSeries, len(cols))
	for _, name := range telemetry.DefaultFeatures() {
		values := cols[name]
		series := TrendSeries{
			Metric:  name,
			Current: values[n-1],
			Average: stat.Mean(values, nil),
		}
		if n < window {
			series.Direction = TrendInsufficient
			out[name] = series
			continue
		}
		series.Min = floats.Min(values)
		series.Max = floats.Max(values)
		series.StdDev = stat.StdDev(values, nil)
		series.MovingAverage = movingAverage(values, window)
		series.Direction = trendDirection(series.MovingAverage)
		if first := values[0]; first != 0 {
			series.RateOfChangePercent = (values[n-1] - first) / first * 100
		}
		out[name] = series
	}
	return out, nil
}

func movingAverage(values []float64, window int) []float64 {
	out := make([]float64, 0, len(values)-window+1)
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}

func trendDirection(smoothed []float64) TrendDirection {
	first, last := smoothed[0], smoothed[len(smoothed)-1]
	band := trendBand * math.Abs(first)
	switch {
	case last-first > band:
		return TrendRising
	case first-last > band:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Anomaly is one reading whose metric sits outside the window's expected
// band.
type Anomaly struct {
	Index       int       `json:"index"`
	SensorID    string    `json:"sensor_id"`
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	ExpectedMin float64   `json:"expected_min"`
	ExpectedMax float64   `json:"expected_max"`
	ZScore      float64   `json:"z_score"`
	Severity    string    `json:"severity"` // high above 3 sigma, medium otherwise
	Timestamp   time.Time `json:"timestamp"`
}

// AnomalyReport lists the flagged readings, metric by metric, plus the
// metric with the strongest deviation.
type AnomalyReport struct {
	Anomalies           []Anomaly `json:"anomalies"`
	MostAnomalousMetric string    `json:"most_anomalous_metric,omitempty"`
}

// DetectAnomalies flags readings whose z-score against the window mean
// exceeds the threshold. Zero threshold selects DefaultAnomalyZScore.
// Metrics with no spread are skipped.
func DetectAnomalies(readings []telemetry.SensorReading, zThreshold float64) (AnomalyReport, error) {
	if len(readings) < 3 {
		return AnomalyReport{}, fmt.Errorf("%w: need at least 3 readings for anomaly detection, got %d", ErrInsufficientData, len(readings))
	}
	if zThreshold == 0 {
		zThreshold = DefaultAnomalyZScore
	}
	if zThreshold < 0 || math.IsNaN(zThreshold) {
		return AnomalyReport{}, fmt.Errorf("%w: z-score threshold must be positive, got %f", ErrInvalidInput, zThreshold)
	}
	cols, err := metricColumns(readings)
	if err != nil {
		return AnomalyReport{}, err
	}

	report := AnomalyReport{Anomalies: []Anomaly{}}
	best := 0.0
	for _, name := range telemetry.DefaultFeatures() {
		values := cols[name]
		mean := stat.Mean(values, nil)
		std := stat.StdDev(values, nil)
		if std == 0 {
			continue
		}
		for i, v := range values {
			z := math.Abs(v-mean) / std
			if z <= zThreshold {
				continue
			}
			severity := "medium"
			if z > 3.0 {
				severity = "high"
			}
			ts := readings[i].Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			report.Anomalies = append(report.Anomalies, Anomaly{
				Index:       i,
				SensorID:    readings[i].SensorID,
				Metric:      name,
				Value:       v,
				ExpectedMin: mean - zThreshold*std,
				ExpectedMax: mean + zThreshold*std,
				ZScore:      z,
				Severity:    severity,
				Timestamp:   ts,
			})
			if z > best {
				best = z
				report.MostAnomalousMetric = name
			}
		}
	}
	return report, nil
}

// MetricStatistics is one metric's descriptive summary. Quartile fields
// are zero when fewer than four readings are present.
type MetricStatistics struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std_dev"`
	Variance float64 `json:"variance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Range    float64 `json:"range"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	IQR      float64 `json:"iqr"`
	P95      float64 `json:"percentile_95"`
	P99      float64 `json:"percentile_99"`
}

// Statistics computes descriptive statistics per metric over the window.
func Statistics(readings []telemetry.SensorReading) (map[string]MetricStatistics, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("%w: no readings", ErrInsufficientData)
	}
	cols, err := metricColumns(readings)
	if err != nil {
		return nil, err
	}

	out := make(map[string]MetricStatistics, len(cols))
	for _, name := range telemetry.DefaultFeatures() {
		values := cols[name]
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		n := len(sorted)

		ms := MetricStatistics{
			Count:  n,
			Mean:   stat.Mean(values, nil),
			Median: median(sorted),
			Min:    sorted[0],
			Max:    sorted[n-1],
			Range:  sorted[n-1] - sorted[0],
			P95:    sorted[percentileIndex(n, 0.95)],
			P99:    sorted[percentileIndex(n, 0.99)],
		}
		if n > 1 {
			ms.StdDev = stat.StdDev(values, nil)
			ms.Variance = stat.Variance(values, nil)
		}
		if n >= 4 {
			ms.Q1 = sorted[n/4]
			ms.Q3 = sorted[3*n/4]
			ms.IQR = ms.Q3 - ms.Q1
		}
		out[name] = ms
	}
	return out, nil
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func percentileIndex(n int, p float64) int {
	idx := int(p * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// MaintenanceThresholds are the sustained-operation limits that trigger
// maintenance indicators.
type MaintenanceThresholds struct {
	Temperature float64
	Vibration   float64
	RPM         float64
	Load        float64
}

// DefaultMaintenanceThresholds returns the reference maintenance limits.
func DefaultMaintenanceThresholds() MaintenanceThresholds {
	return MaintenanceThresholds{
		Temperature: 85.0,
		Vibration:   5.0,
		RPM:         1400,
		Load:        0.8,
	}
}

// MaintenanceIssue is one metric exceeding its maintenance limit in the
// recent window.
type MaintenanceIssue struct {
	Metric            string  `json:"metric"`
	CurrentAvg        float64 `json:"current_avg"`
	CurrentMax        float64 `json:"current_max"`
	Threshold         float64 `json:"threshold"`
	ExceedancePercent float64 `json:"exceedance_percent"`
	Severity          string  `json:"severity"` // medium, high, or critical
	Urgency           int     `json:"urgency"`  // 1..3
	Recommendation    string  `json:"recommendation"`
}

// MaintenanceReport aggregates the issues found in the recent window.
type MaintenanceReport struct {
	NeedsMaintenance       bool               `json:"needs_maintenance"`
	OverallUrgency         int                `json:"overall_urgency"`
	UrgencyLevel           string             `json:"urgency_level"` // low, high, or critical
	Issues                 []MaintenanceIssue `json:"issues"`
	RecommendedAction      string             `json:"recommended_action"`
	EstimatedDowntimeHours int                `json:"estimated_downtime_hours"`
}

// MaintenanceIndicators inspects the trailing readings (at most ten) for
// metrics breaching their maintenance limits. Severity escalates at 10%
// and 20% over a limit. Zero-value thresholds select the defaults.
func MaintenanceIndicators(readings []telemetry.SensorReading, thresholds MaintenanceThresholds) (MaintenanceReport, error) {
	if len(readings) == 0 {
		return MaintenanceReport{}, fmt.Errorf("%w: no readings", ErrInsufficientData)
	}
	if thresholds == (MaintenanceThresholds{}) {
		thresholds = DefaultMaintenanceThresholds()
	}
	for name, v := range map[string]float64{
		telemetry.FeatureTemperature: thresholds.Temperature,
		telemetry.FeatureVibration:   thresholds.Vibration,
		telemetry.FeatureRPM:         thresholds.RPM,
		telemetry.FeatureLoad:        thresholds.Load,
	} {
		if v <= 0 || math.IsNaN(v) {
			return MaintenanceReport{}, fmt.Errorf("%w: maintenance threshold for %s must be positive, got %f", ErrInvalidInput, name, v)
		}
	}

	recent := readings
	if len(recent) > maintenanceWindow {
		recent = recent[len(recent)-maintenanceWindow:]
	}
	cols, err := metricColumns(recent)
	if err != nil {
		return MaintenanceReport{}, err
	}

	report := MaintenanceReport{
		Issues:            []MaintenanceIssue{},
		UrgencyLevel:      "low",
		RecommendedAction: "Routine monitoring",
	}
	checks := []struct {
		metric    string
		threshold float64
	}{
		{telemetry.FeatureTemperature, thresholds.Temperature},
		{telemetry.FeatureVibration, thresholds.Vibration},
		{telemetry.FeatureRPM, thresholds.RPM},
		{telemetry.FeatureLoad, thresholds.Load},
	}
	for _, c := range checks {
		values := cols[c.metric]
		maxValue := floats.Max(values)
		if maxValue <= c.threshold {
			continue
		}
		severity, urgency := "medium", 1
		switch {
		case maxValue > c.threshold*maintenanceCriticalFactor:
			severity, urgency = "critical", 3
		case maxValue > c.threshold*maintenanceHighFactor:
			severity, urgency = "high", 2
		}
		report.Issues = append(report.Issues, MaintenanceIssue{
			Metric:            c.metric,
			CurrentAvg:        stat.Mean(values, nil),
			CurrentMax:        maxValue,
			Threshold:         c.threshold,
			ExceedancePercent: (maxValue - c.threshold) / c.threshold * 100,
			Severity:          severity,
			Urgency:           urgency,
			Recommendation:    maintenanceRecommendation(c.metric, severity),
		})
		if urgency > report.OverallUrgency {
			report.OverallUrgency = urgency
		}
	}

	report.NeedsMaintenance = report.OverallUrgency >= 2
	switch {
	case report.OverallUrgency >= 3:
		report.UrgencyLevel = "critical"
	case report.OverallUrgency >= 2:
		report.UrgencyLevel = "high"
	}
	if report.NeedsMaintenance {
		report.RecommendedAction = "Immediate maintenance required"
		for _, issue := range report.Issues {
			if issue.Severity == "critical" {
				report.EstimatedDowntimeHours += 3
			} else {
				report.EstimatedDowntimeHours++
			}
		}
	}
	return report, nil
}

func maintenanceRecommendation(metric, severity string) string {
	recommendations := map[string]map[string]string{
		telemetry.FeatureTemperature: {
			"critical": "Immediate shutdown and cooling system inspection required",
			"high":     "Reduce load and inspect cooling system",
			"medium":   "Monitor closely and schedule cooling system maintenance",
		},
		telemetry.FeatureVibration: {
			"critical": "Emergency shutdown - possible bearing or alignment failure",
			"high":     "Reduce RPM and inspect mechanical components",
			"medium":   "Schedule vibration analysis and component inspection",
		},
		telemetry.FeatureRPM: {
			"critical": "Emergency shutdown - operating beyond safe limits",
			"high":     "Reduce RPM to safe operating range",
			"medium":   "Monitor RPM and adjust operating parameters",
		},
		telemetry.FeatureLoad: {
			"critical": "Immediate load reduction required - risk of equipment failure",
			"high":     "Reduce load to safe operating range",
			"medium":   "Monitor load and schedule capacity review",
		},
	}
	if r, ok := recommendations[metric][severity]; ok {
		return r
	}
	return "Monitor and review operating parameters"
}

// CorrelationReport holds pairwise Pearson correlations keyed
// "metric1_vs_metric2" in canonical metric order, plus the pair with the
// strongest absolute correlation. Constant metrics yield no pair.
type CorrelationReport struct {
	Pairs         map[string]float64 `json:"pairs"`
	StrongestPair string             `json:"strongest_pair,omitempty"`
}

// Correlation computes the pairwise Pearson correlation of the metrics
// over the window.
func Correlation(readings []telemetry.SensorReading) (CorrelationReport, error) {
	if len(readings) < 3 {
		return CorrelationReport{}, fmt.Errorf("%w: need at least 3 readings for correlation, got %d", ErrInsufficientData, len(readings))
	}
	cols, err := metricColumns(readings)
	if err != nil {
		return CorrelationReport{}, err
	}

	report := CorrelationReport{Pairs: map[string]float64{}}
	names := telemetry.DefaultFeatures()
	best := 0.0
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			r := stat.Correlation(cols[names[i]], cols[names[j]], nil)
			if math.IsNaN(r) {
				continue
			}
			key := names[i] + "_vs_" + names[j]
			report.Pairs[key] = r
			if a := math.Abs(r); a > best {
				best = a
				report.StrongestPair = key
			}
		}
	}
	return report, nil
}

// metricColumns validates the readings and splits them into per-metric
// value slices.
func metricColumns(readings []telemetry.SensorReading) (map[string][]float64, error) {
	rows, err := telemetry.Matrix(readings, telemetry.DefaultFeatures())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cols := make(map[string][]float64, len(telemetry.DefaultFeatures()))
	for j, name := range telemetry.DefaultFeatures() {
		col := make([]float64, len(rows))
		for i, row := range rows {
			col[i] = row[j]
		}
		cols[name] = col
	}
	return cols, nil
}
