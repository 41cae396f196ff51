package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidInput reports an operating point or parameter set the optimizer
// cannot search from.
var ErrInvalidInput = errors.New("invalid optimizer input")

// Bounds is an inclusive search interval for one parameter.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the interval.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bounds) clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Params configures a hill climbing run.
type Params struct {
	Score ScoreParams

	TemperatureBounds Bounds
	VibrationBounds   Bounds
	LoadBounds        Bounds

	// Per-iteration perturbation half-widths. A candidate moves each
	// component by a uniform random offset in [-step, +step].
	StepTemperature float64
	StepVibration   float64
	StepLoad        float64

	MaxIterations int

	// ConvergenceWindow is the number of consecutive non-improving
	// candidates after which the search is declared converged.
	ConvergenceWindow int

	Seed int64

	// RecordTrace captures the best score after every iteration for
	// diagnostic plotting. Trace[0] is the initial score.
	RecordTrace bool
}

// DefaultParams returns the standard search configuration.
func DefaultParams() Params {
	return Params{
		Score:             DefaultScoreParams(),
		TemperatureBounds: Bounds{Min: 50, Max: 100},
		VibrationBounds:   Bounds{Min: 1, Max: 7},
		LoadBounds:        Bounds{Min: 0.2, Max: 1.0},
		StepTemperature:   2.0,
		StepVibration:     0.2,
		StepLoad:          0.05,
		MaxIterations:     1000,
		ConvergenceWindow: 50,
	}
}

// Result is the outcome of one optimization run.
type Result struct {
	Initial        OperatingPoint `json:"initial"`
	Optimized      OperatingPoint `json:"optimized"`
	InitialScore   float64        `json:"initial_score"`
	OptimizedScore float64        `json:"optimized_score"`
	Improvement    float64        `json:"improvement"`
	Iterations     int            `json:"iterations"`
	Converged      bool           `json:"converged"`
	Trace          []float64      `json:"trace,omitempty"`
}

// Optimize runs greedy stochastic hill climbing from initial. Each iteration
// draws one candidate by perturbing every component within its step, clamps
// it to bounds, and accepts it iff its score is at least the current score.
// Converged is true when the initial point is already maximal or when
// ConvergenceWindow consecutive candidates fail to improve the score;
// otherwise the search stops at MaxIterations with Converged false.
//
// An initial point outside the bounds is clamped onto them before the search
// starts, so the reported improvement is measured from a reachable point.
func Optimize(ctx context.Context, initial OperatingPoint, params Params) (Result, error) {
	if err := validate(initial, params); err != nil {
		return Result{}, err
	}

	current := OperatingPoint{
		Temperature: params.TemperatureBounds.clamp(initial.Temperature),
		Vibration:   params.VibrationBounds.clamp(initial.Vibration),
		Load:        params.LoadBounds.clamp(initial.Load),
	}
	currentScore := params.Score.Score(current)

	res := Result{
		Initial:      current,
		InitialScore: currentScore,
	}
	if params.RecordTrace {
		res.Trace = append(res.Trace, currentScore)
	}

	// Already at the top of the surface: nothing to climb.
	if currentScore >= 1.0 {
		res.Optimized = current
		res.OptimizedScore = currentScore
		res.Converged = true
		return res, nil
	}

	rng := rand.New(rand.NewSource(params.Seed))
	stall := 0
	for i := 0; i < params.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		candidate := OperatingPoint{
			Temperature: params.TemperatureBounds.clamp(current.Temperature + uniform(rng, params.StepTemperature)),
			Vibration:   params.VibrationBounds.clamp(current.Vibration + uniform(rng, params.StepVibration)),
			Load:        params.LoadBounds.clamp(current.Load + uniform(rng, params.StepLoad)),
		}
		candidateScore := params.Score.Score(candidate)

		if candidateScore >= currentScore {
			if candidateScore > currentScore {
				stall = 0
			} else {
				stall++
			}
			current = candidate
			currentScore = candidateScore
		} else {
			stall++
		}

		res.Iterations = i + 1
		if params.RecordTrace {
			res.Trace = append(res.Trace, currentScore)
		}

		if stall >= params.ConvergenceWindow {
			res.Converged = true
			break
		}
	}

	res.Optimized = current
	res.OptimizedScore = currentScore
	res.Improvement = currentScore - res.InitialScore
	return res, nil
}

// uniform draws from [-step, +step].
func uniform(rng *rand.Rand, step float64) float64 {
	return (rng.Float64()*2 - 1) * step
}

func validate(initial OperatingPoint, params Params) error {
	for name, v := range map[string]float64{
		"temperature": initial.Temperature,
		"vibration":   initial.Vibration,
		"load":        initial.Load,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite %s %f", ErrInvalidInput, name, v)
		}
	}
	for name, b := range map[string]Bounds{
		"temperature": params.TemperatureBounds,
		"vibration":   params.VibrationBounds,
		"load":        params.LoadBounds,
	} {
		if b.Min >= b.Max {
			return fmt.Errorf("%w: %s bounds [%f, %f] are empty", ErrInvalidInput, name, b.Min, b.Max)
		}
	}
	for name, s := range map[string]float64{
		"temperature": params.StepTemperature,
		"vibration":   params.StepVibration,
		"load":        params.StepLoad,
	} {
		if s <= 0 {
			return fmt.Errorf("%w: %s step must be positive, got %f", ErrInvalidInput, name, s)
		}
	}
	if params.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidInput, params.MaxIterations)
	}
	if params.ConvergenceWindow < 1 {
		return fmt.Errorf("%w: convergence window must be at least 1, got %d", ErrInvalidInput, params.ConvergenceWindow)
	}
	if w := params.Score.WeightTemperature + params.Score.WeightVibration + params.Score.WeightLoad; math.Abs(w-1) > 1e-6 {
		return fmt.Errorf("%w: score weights sum to %f, want 1", ErrInvalidInput, w)
	}
	for name, tol := range map[string]float64{
		"temperature": params.Score.TemperatureTolerance,
		"vibration":   params.Score.VibrationTolerance,
		"load":        params.Score.LoadTolerance,
	} {
		if tol <= 0 {
			return fmt.Errorf("%w: %s tolerance must be positive, got %f", ErrInvalidInput, name, tol)
		}
	}
	return nil
}
