package pathplan

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/foundryline/plantsafe/internal/testutil"
)

func mustGrid(t *testing.T, rows, cols int, blocked ...Cell) *Grid {
	t.Helper()
	g, err := NewGrid(rows, cols)
	testutil.AssertNoError(t, err)
	for _, c := range blocked {
		testutil.AssertNoError(t, g.SetBlocked(c, true))
	}
	return g
}

// checkPath verifies structural validity: endpoints, 8-adjacency, no blocked
// cells, and no diagonal squeezing between two blocked corners.
func checkPath(t *testing.T, g *Grid, res PathResult, start, goal Cell) {
	t.Helper()
	if res.Length != len(res.Path) {
		t.Fatalf("Length = %d, len(Path) = %d", res.Length, len(res.Path))
	}
	if len(res.Path) == 0 {
		t.Fatal("expected a non-empty path")
	}
	if res.Path[0] != start {
		t.Errorf("path starts at %v, want %v", res.Path[0], start)
	}
	if res.Path[len(res.Path)-1] != goal {
		t.Errorf("path ends at %v, want %v", res.Path[len(res.Path)-1], goal)
	}
	for i, c := range res.Path {
		if g.Blocked(c) {
			t.Errorf("path visits blocked cell %v", c)
		}
		if i == 0 {
			continue
		}
		prev := res.Path[i-1]
		dr, dc := c.Row-prev.Row, c.Col-prev.Col
		if dr < -1 || dr > 1 || dc < -1 || dc > 1 || (dr == 0 && dc == 0) {
			t.Errorf("step %v -> %v is not 8-adjacent", prev, c)
		}
		if dr != 0 && dc != 0 {
			if g.Blocked(Cell{Row: prev.Row + dr, Col: prev.Col}) &&
				g.Blocked(Cell{Row: prev.Row, Col: prev.Col + dc}) {
				t.Errorf("step %v -> %v squeezes between two blocked corners", prev, c)
			}
		}
	}
}

func TestFindPathEmptyCorridor(t *testing.T) {
	g := mustGrid(t, 1, 5)
	start, goal := Cell{0, 0}, Cell{0, 4}

	res, err := FindPath(context.Background(), g, start, goal, Options{})
	testutil.AssertNoError(t, err)
	checkPath(t, g, res, start, goal)

	if res.Cost != 4.0 {
		t.Errorf("Cost = %v, want 4.0", res.Cost)
	}
	if res.Length != 5 {
		t.Errorf("Length = %d, want 5", res.Length)
	}
	want := []Cell{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}
	if diff := cmp.Diff(want, res.Path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestFindPathEmptyDiagonal(t *testing.T) {
	g := mustGrid(t, 5, 5)
	start, goal := Cell{0, 0}, Cell{4, 4}

	res, err := FindPath(context.Background(), g, start, goal, Options{})
	testutil.AssertNoError(t, err)
	checkPath(t, g, res, start, goal)

	testutil.AssertInDelta(t, "cost", res.Cost, 4*math.Sqrt2, 1e-9)
	if res.Length != 5 {
		t.Errorf("Length = %d, want 5", res.Length)
	}
}

func TestFindPathObstacleScenario(t *testing.T) {
	// 5x5 floor with obstacles forcing a detour. The optimum mixes three
	// diagonal and two orthogonal steps.
	g := mustGrid(t, 5, 5, Cell{0, 3}, Cell{1, 3}, Cell{3, 0}, Cell{3, 1}, Cell{3, 3})
	start, goal := Cell{0, 0}, Cell{4, 4}

	res, err := FindPath(context.Background(), g, start, goal, Options{})
	testutil.AssertNoError(t, err)
	checkPath(t, g, res, start, goal)

	testutil.AssertInDelta(t, "cost", res.Cost, 2+3*math.Sqrt2, 1e-9)
	if res.Length != 6 {
		t.Errorf("Length = %d, want 6", res.Length)
	}
}

func TestFindPathDeterministic(t *testing.T) {
	// Plenty of equal-cost routes here; tie-breaking must pick the same one
	// every time.
	g := mustGrid(t, 8, 8, Cell{3, 3}, Cell{4, 4})
	start, goal := Cell{0, 0}, Cell{7, 7}

	a, err := FindPath(context.Background(), g, start, goal, Options{})
	testutil.AssertNoError(t, err)
	b, err := FindPath(context.Background(), g, start, goal, Options{})
	testutil.AssertNoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two identical searches diverged (-first +second):\n%s", diff)
	}
}

func TestFindPathStartEqualsGoal(t *testing.T) {
	g := mustGrid(t, 3, 3)
	testutil.AssertNoError(t, g.SetRisk(Cell{1, 1}, 0.4))

	res, err := FindPath(context.Background(), g, Cell{1, 1}, Cell{1, 1}, Options{})
	testutil.AssertNoError(t, err)

	want := PathResult{Path: []Cell{{1, 1}}, Cost: 0, Risk: 0.4, Length: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("trivial path mismatch (-want +got):\n%s", diff)
	}
}

func TestFindPathUnreachable(t *testing.T) {
	// A full wall across the middle column.
	g := mustGrid(t, 3, 3, Cell{0, 1}, Cell{1, 1}, Cell{2, 1})

	res, err := FindPath(context.Background(), g, Cell{0, 0}, Cell{2, 2}, Options{})
	testutil.AssertNoError(t, err)

	if len(res.Path) != 0 || res.Cost != 0 || res.Length != 0 {
		t.Errorf("unreachable goal returned %+v, want empty result", res)
	}
}

func TestFindPathCornerRule(t *testing.T) {
	// Both corner cells blocked: the diagonal is sealed.
	g := mustGrid(t, 2, 2, Cell{0, 1}, Cell{1, 0})
	res, err := FindPath(context.Background(), g, Cell{0, 0}, Cell{1, 1}, Options{})
	testutil.AssertNoError(t, err)
	if res.Length != 0 {
		t.Errorf("expected sealed diagonal to be unreachable, got %+v", res)
	}

	// Only one corner blocked: squeezing past is allowed.
	g = mustGrid(t, 2, 2, Cell{0, 1})
	res, err = FindPath(context.Background(), g, Cell{0, 0}, Cell{1, 1}, Options{})
	testutil.AssertNoError(t, err)
	checkPath(t, g, res, Cell{0, 0}, Cell{1, 1})
	testutil.AssertInDelta(t, "cost", res.Cost, math.Sqrt2, 1e-9)
}

func TestFindPathInvalidInput(t *testing.T) {
	g := mustGrid(t, 3, 3, Cell{2, 2})

	cases := []struct {
		name        string
		start, goal Cell
		opts        Options
	}{
		{"start out of bounds", Cell{-1, 0}, Cell{2, 1}, Options{}},
		{"goal out of bounds", Cell{0, 0}, Cell{3, 3}, Options{}},
		{"blocked goal", Cell{0, 0}, Cell{2, 2}, Options{}},
		{"blocked start", Cell{2, 2}, Cell{0, 0}, Options{}},
		{"negative safety weight", Cell{0, 0}, Cell{1, 1}, Options{SafetyWeight: -0.1}},
		{"safety weight above one", Cell{0, 0}, Cell{1, 1}, Options{SafetyWeight: 1.1}},
		{"negative risk scale", Cell{0, 0}, Cell{1, 1}, Options{SafetyWeight: 0.5, RiskScale: -1}},
	}
	for _, tc := range cases {
		if _, err := FindPath(context.Background(), g, tc.start, tc.goal, tc.opts); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestFindPathCancelled(t *testing.T) {
	g := mustGrid(t, 50, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := FindPath(ctx, g, Cell{0, 0}, Cell{49, 49}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFindPathRiskAvoidance(t *testing.T) {
	g := mustGrid(t, 3, 3)
	testutil.AssertNoError(t, g.SetRisk(Cell{1, 1}, 1.0))
	start, goal := Cell{0, 0}, Cell{2, 2}

	// Pure distance routing cuts straight through the risky center.
	short, err := FindPath(context.Background(), g, start, goal, Options{})
	testutil.AssertNoError(t, err)
	if !containsCell(short.Path, Cell{1, 1}) {
		t.Errorf("shortest route %v should pass through the center", short.Path)
	}
	testutil.AssertInDelta(t, "shortest cost", short.Cost, 2*math.Sqrt2, 1e-9)

	// Risk-weighted routing detours around it.
	safe, err := FindPath(context.Background(), g, start, goal, Options{SafetyWeight: 0.8})
	testutil.AssertNoError(t, err)
	checkPath(t, g, safe, start, goal)
	if containsCell(safe.Path, Cell{1, 1}) {
		t.Errorf("safe route %v should avoid the center", safe.Path)
	}
	if safe.Risk != 0 {
		t.Errorf("safe route risk = %v, want 0", safe.Risk)
	}
	testutil.AssertInDelta(t, "safe cost", safe.Cost, 2+math.Sqrt2, 1e-9)
}

func containsCell(path []Cell, c Cell) bool {
	for _, p := range path {
		if p == c {
			return true
		}
	}
	return false
}
