package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Regime names a synthetic operating profile for generated telemetry.
type Regime string

const (
	// RegimeNormal approximates healthy steady-state operation.
	RegimeNormal Regime = "normal"
	// RegimeDegraded approximates a machine drifting out of its optimal bands.
	RegimeDegraded Regime = "degraded"
	// RegimeCritical approximates a machine operating near its danger thresholds.
	RegimeCritical Regime = "critical"
)

// regimeProfile holds the Gaussian parameters for one operating regime.
type regimeProfile struct {
	tempMean, tempStd float64
	vibMean, vibStd   float64
	rpmMean, rpmStd   float64
	loadMean, loadStd float64
}

var regimeProfiles = map[Regime]regimeProfile{
	RegimeNormal:   {70, 5, 2.5, 0.5, 1000, 100, 0.50, 0.10},
	RegimeDegraded: {80, 8, 4.0, 1.0, 1200, 150, 0.65, 0.15},
	RegimeCritical: {90, 10, 5.5, 1.5, 1400, 200, 0.80, 0.20},
}

// GeneratorOptions controls synthetic batch generation.
type GeneratorOptions struct {
	Seed     int64
	Count    int
	Start    time.Time     // timestamp of the first reading
	Interval time.Duration // spacing between consecutive readings
	// Mix assigns a weight to each regime. Zero-weight regimes are skipped.
	// When empty, an even three-way mix is used.
	Mix map[Regime]float64
}

// GenerateBatch produces a deterministic batch of synthetic readings for the
// given seed. Values are clamped so every reading passes Validate.
func GenerateBatch(opts GeneratorOptions) ([]SensorReading, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("generate batch: count must be positive, got %d", opts.Count)
	}
	mix := opts.Mix
	if len(mix) == 0 {
		mix = map[Regime]float64{RegimeNormal: 1, RegimeDegraded: 1, RegimeCritical: 1}
	}
	var total float64
	for regime, w := range mix {
		if _, ok := regimeProfiles[regime]; !ok {
			return nil, fmt.Errorf("generate batch: unknown regime %q", regime)
		}
		if w < 0 {
			return nil, fmt.Errorf("generate batch: negative weight for regime %q", regime)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("generate batch: regime mix sums to zero")
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	interval := opts.Interval
	if interval == 0 {
		interval = time.Second
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	readings := make([]SensorReading, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		profile := regimeProfiles[pickRegime(rng, mix, total)]
		r := SensorReading{
			SensorID:    fmt.Sprintf("SENSOR_%03d", i),
			Temperature: rng.NormFloat64()*profile.tempStd + profile.tempMean,
			Vibration:   math.Max(0, rng.NormFloat64()*profile.vibStd+profile.vibMean),
			RPM:         math.Max(0, rng.NormFloat64()*profile.rpmStd+profile.rpmMean),
			Load:        clamp01(rng.NormFloat64()*profile.loadStd + profile.loadMean),
			Timestamp:   start.Add(time.Duration(i) * interval),
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// pickRegime samples a regime proportionally to its mix weight. Iteration
// order over the map must not affect the draw, so regimes are consulted in a
// fixed order.
func pickRegime(rng *rand.Rand, mix map[Regime]float64, total float64) Regime {
	draw := rng.Float64() * total
	for _, regime := range []Regime{RegimeNormal, RegimeDegraded, RegimeCritical} {
		w := mix[regime]
		if w <= 0 {
			continue
		}
		if draw < w {
			return regime
		}
		draw -= w
	}
	return RegimeNormal
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// GenerateRegime produces count readings drawn from a single operating regime.
func GenerateRegime(seed int64, count int, regime Regime) ([]SensorReading, error) {
	return GenerateBatch(GeneratorOptions{
		Seed:  seed,
		Count: count,
		Mix:   map[Regime]float64{regime: 1},
	})
}
