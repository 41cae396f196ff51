// Package alerts grades sensor readings and predicted accident
// probabilities against two-tier warning/critical thresholds and rolls the
// raised events up into an operator summary.
package alerts

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/foundryline/plantsafe/internal/telemetry"
)

// ErrInvalidInput reports readings, probabilities, or thresholds the
// evaluator cannot use.
var ErrInvalidInput = errors.New("invalid alert input")

// Severity grades a raised alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// MetricAccidentProbability names the predictor-derived metric graded
// alongside the raw sensor metrics.
const MetricAccidentProbability = "accident_probability"

// Thresholds is one metric's two-tier alert band. The comparison is
// inclusive: a value at or above Warning raises a warning, at or above
// Critical a critical alert.
type Thresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Params carries the per-metric alert bands.
type Params struct {
	Temperature         Thresholds
	Vibration           Thresholds
	RPM                 Thresholds
	Load                Thresholds
	AccidentProbability Thresholds
}

// DefaultParams returns the reference alert thresholds.
func DefaultParams() Params {
	return Params{
		Temperature:         Thresholds{Warning: 80.0, Critical: 90.0},
		Vibration:           Thresholds{Warning: 4.5, Critical: 6.0},
		RPM:                 Thresholds{Warning: 1300, Critical: 1450},
		Load:                Thresholds{Warning: 0.75, Critical: 0.85},
		AccidentProbability: Thresholds{Warning: 0.5, Critical: 0.7},
	}
}

func (p Params) validate() error {
	for _, m := range []struct {
		name  string
		bands Thresholds
	}{
		{telemetry.FeatureTemperature, p.Temperature},
		{telemetry.FeatureVibration, p.Vibration},
		{telemetry.FeatureRPM, p.RPM},
		{telemetry.FeatureLoad, p.Load},
		{MetricAccidentProbability, p.AccidentProbability},
	} {
		if m.bands.Warning <= 0 {
			return fmt.Errorf("%w: %s warning threshold must be positive, got %.2f", ErrInvalidInput, m.name, m.bands.Warning)
		}
		if m.bands.Warning >= m.bands.Critical {
			return fmt.Errorf("%w: %s warning threshold %.2f must sit below critical %.2f", ErrInvalidInput, m.name, m.bands.Warning, m.bands.Critical)
		}
	}
	return nil
}

// Event is one raised alert.
type Event struct {
	ID                string    `json:"id"`
	SensorID          string    `json:"sensor_id"`
	Metric            string    `json:"metric"`
	Severity          Severity  `json:"severity"`
	Value             float64   `json:"value"`
	Threshold         float64   `json:"threshold"`
	Exceedance        float64   `json:"exceedance"`
	ExceedancePercent float64   `json:"exceedance_percent"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
}

// Evaluator applies one set of alert bands to readings.
type Evaluator struct {
	params Params
}

// NewEvaluator validates the bands and returns an evaluator over them.
func NewEvaluator(params Params) (*Evaluator, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &Evaluator{params: params}, nil
}

// Evaluate grades the reading's raw metrics. Events carry the reading's
// timestamp, or the evaluation time if the reading has none.
func (e *Evaluator) Evaluate(reading telemetry.SensorReading) ([]Event, error) {
	return e.evaluate(reading, 0, false)
}

// EvaluateWithProbability additionally grades a predicted accident
// probability against the probability band.
func (e *Evaluator) EvaluateWithProbability(reading telemetry.SensorReading, probability float64) ([]Event, error) {
	if math.IsNaN(probability) || probability < 0 || probability > 1 {
		return nil, fmt.Errorf("%w: accident probability %f outside [0,1]", ErrInvalidInput, probability)
	}
	return e.evaluate(reading, probability, true)
}

func (e *Evaluator) evaluate(reading telemetry.SensorReading, probability float64, withProbability bool) ([]Event, error) {
	if err := reading.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ts := reading.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	checks := []struct {
		metric string
		value  float64
		bands  Thresholds
	}{
		{telemetry.FeatureTemperature, reading.Temperature, e.params.Temperature},
		{telemetry.FeatureVibration, reading.Vibration, e.params.Vibration},
		{telemetry.FeatureRPM, reading.RPM, e.params.RPM},
		{telemetry.FeatureLoad, reading.Load, e.params.Load},
	}
	if withProbability {
		checks = append(checks, struct {
			metric string
			value  float64
			bands  Thresholds
		}{MetricAccidentProbability, probability, e.params.AccidentProbability})
	}

	events := []Event{}
	for _, c := range checks {
		severity, threshold, raised := gradeValue(c.value, c.bands)
		if !raised {
			continue
		}
		exceed := c.value - threshold
		events = append(events, Event{
			ID:                uuid.NewString(),
			SensorID:          reading.SensorID,
			Metric:            c.metric,
			Severity:          severity,
			Value:             c.value,
			Threshold:         threshold,
			Exceedance:        round2(exceed),
			ExceedancePercent: round2(exceed / threshold * 100),
			Message:           alertMessage(c.metric, severity, c.value, threshold),
			Timestamp:         ts,
		})
	}
	return events, nil
}

// EvaluateBatch grades every reading, optionally scoring each with an
// accident probability first. A nil scorer skips the probability band.
func (e *Evaluator) EvaluateBatch(readings []telemetry.SensorReading, scorer func(telemetry.SensorReading) (float64, error)) ([]Event, error) {
	events := []Event{}
	for i, r := range readings {
		var (
			evs []Event
			err error
		)
		if scorer == nil {
			evs, err = e.Evaluate(r)
		} else {
			p, perr := scorer(r)
			if perr != nil {
				return nil, fmt.Errorf("reading %d: accident score: %w", i, perr)
			}
			evs, err = e.EvaluateWithProbability(r, p)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

func gradeValue(value float64, bands Thresholds) (Severity, float64, bool) {
	switch {
	case value >= bands.Critical:
		return SeverityCritical, bands.Critical, true
	case value >= bands.Warning:
		return SeverityWarning, bands.Warning, true
	}
	return "", 0, false
}

func alertMessage(metric string, severity Severity, value, threshold float64) string {
	critical := severity == SeverityCritical
	switch metric {
	case telemetry.FeatureTemperature:
		if critical {
			return fmt.Sprintf("CRITICAL: Temperature dangerously high: %.1f°F (threshold: %.1f°F)", value, threshold)
		}
		return fmt.Sprintf("Temperature elevated: %.1f°F (threshold: %.1f°F)", value, threshold)
	case telemetry.FeatureVibration:
		if critical {
			return fmt.Sprintf("CRITICAL: Excessive vibration: %.2f (threshold: %.2f)", value, threshold)
		}
		return fmt.Sprintf("Vibration level elevated: %.2f (threshold: %.2f)", value, threshold)
	case telemetry.FeatureRPM:
		if critical {
			return fmt.Sprintf("CRITICAL: RPM critically high: %.0f (threshold: %.0f)", value, threshold)
		}
		return fmt.Sprintf("RPM above safe limit: %.0f (threshold: %.0f)", value, threshold)
	case telemetry.FeatureLoad:
		if critical {
			return fmt.Sprintf("CRITICAL: Load capacity exceeded: %.2f%% (threshold: %.2f%%)", value*100, threshold*100)
		}
		return fmt.Sprintf("Load capacity high: %.2f%% (threshold: %.2f%%)", value*100, threshold*100)
	case MetricAccidentProbability:
		if critical {
			return fmt.Sprintf("CRITICAL: High accident probability: %.1f%% (threshold: %.1f%%)", value*100, threshold*100)
		}
		return fmt.Sprintf("Accident probability elevated: %.1f%% (threshold: %.1f%%)", value*100, threshold*100)
	}
	return fmt.Sprintf("%s threshold exceeded: %g (threshold: %g)", metric, value, threshold)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summary aggregates raised events by severity.
type Summary struct {
	Total          int    `json:"total"`
	Critical       int    `json:"critical"`
	Warning        int    `json:"warning"`
	Info           int    `json:"info"`
	Status         string `json:"status"` // normal, warning, or critical
	RequiresAction bool   `json:"requires_action"`
}

// Summarize rolls a set of events up for operator display. Status follows
// the worst raised severity.
func Summarize(events []Event) Summary {
	s := Summary{Total: len(events), Status: "normal"}
	for _, ev := range events {
		switch ev.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarning:
			s.Warning++
		case SeverityInfo:
			s.Info++
		}
	}
	if s.Critical > 0 {
		s.Status = "critical"
	} else if s.Warning > 0 {
		s.Status = "warning"
	}
	s.RequiresAction = s.Critical > 0 || s.Warning > 0
	return s
}
