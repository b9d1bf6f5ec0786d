package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrNoRows is returned when fitting on an empty matrix.
var ErrNoRows = errors.New("no rows to fit")

// StandardScaler standardizes features with statistics learned at fit time.
type StandardScaler struct {
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
	NSamples int       `json:"n_samples"`
}

// Fit computes the per-feature mean and population standard deviation of X.
// Zero-variance features get a scale of 1.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrNoRows
	}
	width := len(X[0])
	if width == 0 {
		return errors.New("rows have no features")
	}
	col := make([]float64, len(X))
	mean := make([]float64, width)
	scale := make([]float64, width)
	for j := 0; j < width; j++ {
		for i, row := range X {
			if len(row) != width {
				return fmt.Errorf("row %d has %d features, expected %d", i, len(row), width)
			}
			col[i] = row[j]
		}
		m, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		mean[j], scale[j] = m, sd
	}
	s.Mean, s.Scale, s.NSamples = mean, scale, len(X)
	return nil
}

// NumFeatures returns the width the scaler was fit on.
func (s *StandardScaler) NumFeatures() int {
	return len(s.Mean)
}

// Transform standardizes one row.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, errors.New("scaler is not fitted")
	}
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("got %d features, scaler expects %d", len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformMatrix standardizes every row of X.
func (s *StandardScaler) TransformMatrix(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		t, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}
