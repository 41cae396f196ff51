// Package pathplan plans escape and service routes across the plant floor
// grid using A* search, optionally weighting traversal cost by per-cell
// accident risk.
package pathplan

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput reports grid coordinates or options the planner cannot use.
var ErrInvalidInput = errors.New("invalid path input")

// Cell is a grid coordinate.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Grid is a rectangular plant floor map. Cells can be blocked (walls,
// machinery) and carry a risk value in [0, 1] used for risk-weighted routing.
type Grid struct {
	rows, cols int
	blocked    []bool
	risk       []float64
}

// NewGrid creates an empty rows×cols grid with no blocked cells and zero risk.
func NewGrid(rows, cols int) (*Grid, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: grid dimensions %dx%d", ErrInvalidInput, rows, cols)
	}
	return &Grid{
		rows:    rows,
		cols:    cols,
		blocked: make([]bool, rows*cols),
		risk:    make([]float64, rows*cols),
	}, nil
}

// Rows returns the number of grid rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of grid columns.
func (g *Grid) Cols() int { return g.cols }

// InBounds reports whether c lies on the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.Row >= 0 && c.Row < g.rows && c.Col >= 0 && c.Col < g.cols
}

func (g *Grid) index(c Cell) int {
	return c.Row*g.cols + c.Col
}

// SetBlocked marks or clears an obstacle.
func (g *Grid) SetBlocked(c Cell, blocked bool) error {
	if !g.InBounds(c) {
		return fmt.Errorf("%w: cell %v out of bounds", ErrInvalidInput, c)
	}
	g.blocked[g.index(c)] = blocked
	return nil
}

// Blocked reports whether c is an obstacle. Out-of-bounds cells count as blocked.
func (g *Grid) Blocked(c Cell) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.blocked[g.index(c)]
}

// SetRisk assigns a risk value in [0, 1] to a cell.
func (g *Grid) SetRisk(c Cell, risk float64) error {
	if !g.InBounds(c) {
		return fmt.Errorf("%w: cell %v out of bounds", ErrInvalidInput, c)
	}
	if math.IsNaN(risk) || risk < 0 || risk > 1 {
		return fmt.Errorf("%w: risk %f for cell %v outside [0,1]", ErrInvalidInput, risk, c)
	}
	g.risk[g.index(c)] = risk
	return nil
}

// Risk returns the risk value of a cell, zero for out-of-bounds cells.
func (g *Grid) Risk(c Cell) float64 {
	if !g.InBounds(c) {
		return 0
	}
	return g.risk[g.index(c)]
}
