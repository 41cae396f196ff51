package pathplan

import (
	"context"
	"fmt"
	"math"
)

// Route strategy names used by CompareRoutes.
const (
	StrategyShortest = "shortest"
	StrategySafest   = "safest"
	StrategyBalanced = "balanced"
	StrategyNone     = "none"
)

// Safety weights per strategy.
const (
	shortestWeight = 0.0
	safestWeight   = 0.8
	balancedWeight = 0.5
)

// RiskSource places one sensor's accident-probability estimate on the floor
// grid. Risk must lie in [0, 1].
type RiskSource struct {
	Cell Cell
	Risk float64
}

// BuildRiskGrid creates a rows×cols grid and marks each source cell with its
// risk. When several sources land on the same cell the highest risk wins.
// Sources off the grid or with risk outside [0, 1] are rejected.
func BuildRiskGrid(rows, cols int, sources []RiskSource) (*Grid, error) {
	g, err := NewGrid(rows, cols)
	if err != nil {
		return nil, err
	}
	for i, s := range sources {
		if !g.InBounds(s.Cell) {
			return nil, fmt.Errorf("%w: source %d cell %v outside %dx%d grid", ErrInvalidInput, i, s.Cell, rows, cols)
		}
		if math.IsNaN(s.Risk) || s.Risk < 0 || s.Risk > 1 {
			return nil, fmt.Errorf("%w: source %d risk %f outside [0,1]", ErrInvalidInput, i, s.Risk)
		}
		if s.Risk > g.Risk(s.Cell) {
			if err := g.SetRisk(s.Cell, s.Risk); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// RouteComparison holds one path per routing strategy plus the recommended
// strategy name.
type RouteComparison struct {
	Shortest    PathResult `json:"shortest"`
	Safest      PathResult `json:"safest"`
	Balanced    PathResult `json:"balanced"`
	Recommended string     `json:"recommended"`
}

// CompareRoutes plans the same start→goal route three ways: by pure distance,
// heavily risk-weighted, and balanced. Recommended is the reachable route
// with the lowest accumulated risk, ties broken on lower cost and then on
// strategy order shortest, safest, balanced. When no route exists the
// recommendation is "none".
func CompareRoutes(ctx context.Context, g *Grid, start, goal Cell) (RouteComparison, error) {
	shortest, err := FindPath(ctx, g, start, goal, Options{SafetyWeight: shortestWeight})
	if err != nil {
		return RouteComparison{}, err
	}
	safest, err := FindPath(ctx, g, start, goal, Options{SafetyWeight: safestWeight})
	if err != nil {
		return RouteComparison{}, err
	}
	balanced, err := FindPath(ctx, g, start, goal, Options{SafetyWeight: balancedWeight})
	if err != nil {
		return RouteComparison{}, err
	}

	cmp := RouteComparison{
		Shortest:    shortest,
		Safest:      safest,
		Balanced:    balanced,
		Recommended: StrategyNone,
	}

	best := math.Inf(1)
	bestCost := math.Inf(1)
	for _, cand := range []struct {
		name string
		res  PathResult
	}{
		{StrategyShortest, shortest},
		{StrategySafest, safest},
		{StrategyBalanced, balanced},
	} {
		if cand.res.Length == 0 {
			continue
		}
		if cand.res.Risk < best || (cand.res.Risk == best && cand.res.Cost < bestCost) {
			best = cand.res.Risk
			bestCost = cand.res.Cost
			cmp.Recommended = cand.name
		}
	}
	return cmp, nil
}
