// Package telemetry defines the sensor reading shape shared by all decision
// engines, feature-vector assembly, and z-score standardization over reading
// batches. Readings are immutable once created; engines consume them
// read-only.
package telemetry

import (
	"fmt"
	"math"
	"time"
)

// Canonical feature names. Feature matrices are assembled in the order the
// caller requests; DefaultFeatures is the conventional order.
const (
	FeatureTemperature = "temperature"
	FeatureVibration   = "vibration"
	FeatureRPM         = "rpm"
	FeatureLoad        = "load"
)

// ErrInvalidReading reports a reading with out-of-range or non-finite values.
var ErrInvalidReading = fmt.Errorf("invalid sensor reading")

// SensorReading is a single telemetry sample from one sensor.
type SensorReading struct {
	SensorID    string    `json:"sensor_id"`
	Temperature float64   `json:"temperature"` // °F
	Vibration   float64   `json:"vibration"`   // m/s²
	RPM         float64   `json:"rpm"`
	Load        float64   `json:"load"` // fraction of capacity, 0..1
	Timestamp   time.Time `json:"timestamp"`
}

// DefaultFeatures returns the full feature set in canonical order.
func DefaultFeatures() []string {
	return []string{FeatureTemperature, FeatureVibration, FeatureRPM, FeatureLoad}
}

// Validate checks the reading for physically meaningless values.
func (r SensorReading) Validate() error {
	for _, v := range []float64{r.Temperature, r.Vibration, r.RPM, r.Load} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value for sensor %q", ErrInvalidReading, r.SensorID)
		}
	}
	if r.RPM < 0 {
		return fmt.Errorf("%w: negative rpm %.2f for sensor %q", ErrInvalidReading, r.RPM, r.SensorID)
	}
	if r.Vibration < 0 {
		return fmt.Errorf("%w: negative vibration %.2f for sensor %q", ErrInvalidReading, r.Vibration, r.SensorID)
	}
	if r.Load < 0 || r.Load > 1 {
		return fmt.Errorf("%w: load %.2f outside [0,1] for sensor %q", ErrInvalidReading, r.Load, r.SensorID)
	}
	return nil
}

// Feature returns the named metric value.
func (r SensorReading) Feature(name string) (float64, error) {
	switch name {
	case FeatureTemperature:
		return r.Temperature, nil
	case FeatureVibration:
		return r.Vibration, nil
	case FeatureRPM:
		return r.RPM, nil
	case FeatureLoad:
		return r.Load, nil
	}
	return 0, fmt.Errorf("%w: unknown feature %q", ErrInvalidReading, name)
}

// Vector assembles the requested features into a slice, in order.
func (r SensorReading) Vector(features []string) ([]float64, error) {
	vec := make([]float64, len(features))
	for i, name := range features {
		v, err := r.Feature(name)
		if err != nil {
			return nil, err
		}
		vec[i] = v
	}
	return vec, nil
}

// Matrix assembles one row per reading with the requested features as
// columns. Every reading is validated first.
func Matrix(readings []SensorReading, features []string) ([][]float64, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features requested", ErrInvalidReading)
	}
	rows := make([][]float64, len(readings))
	for i, r := range readings {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		vec, err := r.Vector(features)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		rows[i] = vec
	}
	return rows, nil
}

// SensorIDs returns the sensor ID of each reading, in order.
func SensorIDs(readings []SensorReading) []string {
	ids := make([]string, len(readings))
	for i, r := range readings {
		ids[i] = r.SensorID
	}
	return ids
}
