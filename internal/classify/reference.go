// Package classify labels machine operating conditions into risk tiers using
// a distance-weighted k-nearest-neighbors vote over a standardized reference
// set of known regimes.
package classify

import (
	"fmt"

	"github.com/foundryline/plantsafe/internal/risk"
	"github.com/foundryline/plantsafe/internal/telemetry"
)

// DefaultReferenceSeed reproduces the canonical reference set.
const DefaultReferenceSeed = 42

// DefaultPerClass is the number of reference examples generated per risk tier.
const DefaultPerClass = 333

// Regime-to-tier mapping for reference generation. The generator's operating
// profiles double as the labeled training regimes.
var referenceRegimes = []struct {
	regime telemetry.Regime
	level  risk.Level
}{
	{telemetry.RegimeNormal, risk.Low},
	{telemetry.RegimeDegraded, risk.Medium},
	{telemetry.RegimeCritical, risk.High},
}

// GenerateReferenceSet produces perClass labeled feature rows for each risk
// tier by sampling the telemetry regime profiles. The same seed always yields
// the same rows. Feature columns follow telemetry.DefaultFeatures order.
func GenerateReferenceSet(seed int64, perClass int) ([][]float64, []risk.Level, error) {
	if perClass < 1 {
		return nil, nil, fmt.Errorf("%w: per-class count must be positive, got %d", ErrInvalidInput, perClass)
	}
	rows := make([][]float64, 0, perClass*len(referenceRegimes))
	labels := make([]risk.Level, 0, perClass*len(referenceRegimes))
	for i, rc := range referenceRegimes {
		// Offset the seed per regime so the tiers draw independent noise.
		readings, err := telemetry.GenerateRegime(seed+int64(i), perClass, rc.regime)
		if err != nil {
			return nil, nil, fmt.Errorf("generate %s reference: %w", rc.level, err)
		}
		regimeRows, err := telemetry.Matrix(readings, telemetry.DefaultFeatures())
		if err != nil {
			return nil, nil, fmt.Errorf("assemble %s reference: %w", rc.level, err)
		}
		rows = append(rows, regimeRows...)
		for range regimeRows {
			labels = append(labels, rc.level)
		}
	}
	return rows, labels, nil
}
