package telemetry

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Scaler provides z-score standardization fitted to a feature matrix.
// Columns with zero spread pass through unscaled so constant features do
// not blow up to NaN.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and standard deviation over rows.
func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("fit scaler: empty matrix")
	}
	dims := len(rows[0])
	col := make([]float64, len(rows))
	s := &Scaler{
		Mean: make([]float64, dims),
		Std:  make([]float64, dims),
	}
	for j := 0; j < dims; j++ {
		for i, row := range rows {
			if len(row) != dims {
				return nil, fmt.Errorf("fit scaler: row %d has %d columns, want %d", i, len(row), dims)
			}
			col[i] = row[j]
		}
		s.Mean[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if len(rows) < 2 || sd == 0 || sd != sd {
			sd = 1
		}
		s.Std[j] = sd
	}
	return s, nil
}

// Dims returns the fitted dimensionality.
func (s *Scaler) Dims() int { return len(s.Mean) }

// Transform standardizes a single vector.
func (s *Scaler) Transform(vec []float64) ([]float64, error) {
	if len(vec) != len(s.Mean) {
		return nil, fmt.Errorf("scaler transform: got %d dims, want %d", len(vec), len(s.Mean))
	}
	out := make([]float64, len(vec))
	for j, v := range vec {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}

// TransformMatrix standardizes every row.
func (s *Scaler) TransformMatrix(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		t, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Inverse maps a standardized vector back to original units.
func (s *Scaler) Inverse(vec []float64) ([]float64, error) {
	if len(vec) != len(s.Mean) {
		return nil, fmt.Errorf("scaler inverse: got %d dims, want %d", len(vec), len(s.Mean))
	}
	out := make([]float64, len(vec))
	for j, v := range vec {
		out[j] = v*s.Std[j] + s.Mean[j]
	}
	return out, nil
}
