package pathplan

import (
	"container/heap"
	"context"
	"fmt"
	"math"
)

const (
	// DefaultSafetyWeight blends distance and risk for balanced routing.
	DefaultSafetyWeight = 0.5
	// DefaultRiskScale converts a cell's [0,1] risk into cost units
	// comparable with unit step distances.
	DefaultRiskScale = 10.0
)

// Options control how FindPath trades distance against risk.
type Options struct {
	// SafetyWeight in [0, 1]. Zero routes by pure distance; higher values
	// penalize entering risky cells more strongly.
	SafetyWeight float64
	// RiskScale multiplies cell risk before weighting. The zero value
	// selects DefaultRiskScale.
	RiskScale float64
}

// DefaultOptions returns the balanced routing configuration.
func DefaultOptions() Options {
	return Options{SafetyWeight: DefaultSafetyWeight, RiskScale: DefaultRiskScale}
}

// PathResult is the outcome of one search. An empty Path with Length 0 means
// the goal is unreachable, which is a valid outcome rather than an error.
type PathResult struct {
	Path []Cell `json:"path"`
	// Cost is the accumulated traversal cost: Euclidean step distances
	// plus the weighted risk of every entered cell.
	Cost float64 `json:"cost"`
	// Risk is the raw (unweighted) sum of cell risk across the path.
	Risk float64 `json:"risk"`
	// Length is the number of cells on the path, including both endpoints.
	Length int `json:"length"`
}

// Neighbor exploration order. Fixed so equal-cost searches reproduce the
// same path.
var directions = [8]Cell{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// FindPath runs A* over the 8-connected grid from start to goal. Step cost is
// the Euclidean move distance (1 orthogonal, √2 diagonal) plus
// SafetyWeight × RiskScale × risk of the entered cell; the heuristic is plain
// Euclidean distance, which never exceeds the true remaining cost and so
// keeps the search optimal. Equal-f ties pop on lower g, then insertion
// order, making the result deterministic.
//
// A diagonal step is refused when both orthogonal cells forming its corner
// are blocked; squeezing past a single blocked corner is allowed.
func FindPath(ctx context.Context, g *Grid, start, goal Cell, opts Options) (PathResult, error) {
	if err := validate(g, start, goal, &opts); err != nil {
		return PathResult{}, err
	}

	if start == goal {
		return PathResult{
			Path:   []Cell{start},
			Risk:   g.Risk(start),
			Length: 1,
		}, nil
	}

	n := g.rows * g.cols
	gScore := make([]float64, n)
	for i := range gScore {
		gScore[i] = math.Inf(1)
	}
	closed := make([]bool, n)
	cameFrom := make([]int, n)
	for i := range cameFrom {
		cameFrom[i] = -1
	}

	startIdx := g.index(start)
	goalIdx := g.index(goal)
	gScore[startIdx] = 0

	open := &openHeap{}
	heap.Init(open)
	seq := 0
	heap.Push(open, openItem{idx: startIdx, g: 0, f: euclid(start, goal), seq: seq})

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return PathResult{}, err
		}

		item := heap.Pop(open).(openItem)
		if closed[item.idx] {
			continue // stale duplicate from a later improvement
		}
		closed[item.idx] = true

		if item.idx == goalIdx {
			return g.reconstruct(cameFrom, goalIdx, gScore[goalIdx]), nil
		}

		cur := Cell{Row: item.idx / g.cols, Col: item.idx % g.cols}
		for _, d := range directions {
			next := Cell{Row: cur.Row + d.Row, Col: cur.Col + d.Col}
			if !g.InBounds(next) || g.Blocked(next) {
				continue
			}
			diagonal := d.Row != 0 && d.Col != 0
			if diagonal && g.Blocked(Cell{Row: cur.Row + d.Row, Col: cur.Col}) &&
				g.Blocked(Cell{Row: cur.Row, Col: cur.Col + d.Col}) {
				continue
			}

			moveCost := 1.0
			if diagonal {
				moveCost = math.Sqrt2
			}
			nextIdx := g.index(next)
			tentative := gScore[item.idx] + moveCost + opts.SafetyWeight*opts.RiskScale*g.risk[nextIdx]
			if tentative >= gScore[nextIdx] {
				continue
			}
			gScore[nextIdx] = tentative
			cameFrom[nextIdx] = item.idx
			seq++
			heap.Push(open, openItem{idx: nextIdx, g: tentative, f: tentative + euclid(next, goal), seq: seq})
		}
	}

	// Goal unreachable.
	return PathResult{}, nil
}

func validate(g *Grid, start, goal Cell, opts *Options) error {
	if g == nil || g.rows < 1 || g.cols < 1 {
		return fmt.Errorf("%w: nil or empty grid", ErrInvalidInput)
	}
	if !g.InBounds(start) {
		return fmt.Errorf("%w: start %v out of bounds for %dx%d grid", ErrInvalidInput, start, g.rows, g.cols)
	}
	if !g.InBounds(goal) {
		return fmt.Errorf("%w: goal %v out of bounds for %dx%d grid", ErrInvalidInput, goal, g.rows, g.cols)
	}
	if g.Blocked(start) {
		return fmt.Errorf("%w: start %v is blocked", ErrInvalidInput, start)
	}
	if g.Blocked(goal) {
		return fmt.Errorf("%w: goal %v is blocked", ErrInvalidInput, goal)
	}
	if math.IsNaN(opts.SafetyWeight) || opts.SafetyWeight < 0 || opts.SafetyWeight > 1 {
		return fmt.Errorf("%w: safety weight %f outside [0,1]", ErrInvalidInput, opts.SafetyWeight)
	}
	if opts.RiskScale == 0 {
		opts.RiskScale = DefaultRiskScale
	}
	if math.IsNaN(opts.RiskScale) || opts.RiskScale < 0 {
		return fmt.Errorf("%w: risk scale %f must be non-negative", ErrInvalidInput, opts.RiskScale)
	}
	return nil
}

func (g *Grid) reconstruct(cameFrom []int, goalIdx int, cost float64) PathResult {
	var rev []Cell
	for idx := goalIdx; idx != -1; idx = cameFrom[idx] {
		rev = append(rev, Cell{Row: idx / g.cols, Col: idx % g.cols})
	}
	path := make([]Cell, len(rev))
	for i, c := range rev {
		path[len(rev)-1-i] = c
	}

	var risk float64
	for _, c := range path {
		risk += g.risk[g.index(c)]
	}
	return PathResult{Path: path, Cost: cost, Risk: risk, Length: len(path)}
}

func euclid(a, b Cell) float64 {
	dr := float64(a.Row - b.Row)
	dc := float64(a.Col - b.Col)
	return math.Sqrt(dr*dr + dc*dc)
}

type openItem struct {
	idx  int
	g, f float64
	seq  int
}

type openHeap []openItem

func (h openHeap) Len() int { return len(h) }

func (h openHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	if h[i].g != h[j].g {
		return h[i].g < h[j].g
	}
	return h[i].seq < h[j].seq
}

func (h openHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *openHeap) Push(x interface{}) { *h = append(*h, x.(openItem)) }

func (h *openHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
