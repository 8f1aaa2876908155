// Package matrix holds the numeric stages of the pipeline: the feature
// matrix read from a dataset and its standardized form. Both are immutable
// once built; every stage derives a new value instead of mutating the last.
package matrix

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cytofkit/cytofkit/errors"
)

// Features is a numeric rows × features matrix with named columns
type Features struct {
	names []string
	data  *mat.Dense
}

// NewFeatures wraps data with column names. data must not be modified afterwards.
func NewFeatures(names []string, data *mat.Dense) (*Features, error) {
	if data == nil {
		return nil, errors.DataStateErrorf("feature matrix is empty")
	}
	_, c := data.Dims()
	if c != len(names) {
		return nil, errors.DataStateErrorf("feature matrix has %d columns but %d names", c, len(names))
	}
	return &Features{names: append([]string(nil), names...), data: data}, nil
}

// FromRows builds a Features value from row-major values
func FromRows(names []string, rows [][]float64) (*Features, error) {
	if len(rows) == 0 || len(names) == 0 {
		return nil, errors.DataStateErrorf("feature matrix needs at least one row and one column, got %d×%d", len(rows), len(names))
	}
	flat := make([]float64, 0, len(rows)*len(names))
	for i, row := range rows {
		if len(row) != len(names) {
			return nil, errors.DataStateErrorf("row %d has %d values, expected %d", i, len(row), len(names))
		}
		flat = append(flat, row...)
	}
	return NewFeatures(names, mat.NewDense(len(rows), len(names), flat))
}

// Names returns the feature names
func (f *Features) Names() []string { return append([]string(nil), f.names...) }

// Rows returns the number of observations
func (f *Features) Rows() int {
	r, _ := f.data.Dims()
	return r
}

// Cols returns the number of features
func (f *Features) Cols() int {
	_, c := f.data.Dims()
	return c
}

// Matrix returns a read-only view of the values
func (f *Features) Matrix() mat.Matrix { return f.data }

// At returns one value
func (f *Features) At(i, j int) float64 { return f.data.At(i, j) }

// Standardized is a feature matrix centred and scaled per column to zero
// mean and unit population variance. Constant columns are centred only.
type Standardized struct {
	source *Features
	data   *mat.Dense
	mean   []float64
	std    []float64
}

// Standardize derives the standardized stage from f
func Standardize(f *Features) *Standardized {
	r, c := f.data.Dims()
	out := mat.NewDense(r, c, nil)
	mean := make([]float64, c)
	std := make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, f.data)
		m, s := stat.PopMeanStdDev(col, nil)
		if s == 0 {
			s = 1
		}
		mean[j], std[j] = m, s
		for i := 0; i < r; i++ {
			out.Set(i, j, (col[i]-m)/s)
		}
	}

	return &Standardized{source: f, data: out, mean: mean, std: std}
}

// Source returns the feature matrix this stage was derived from
func (s *Standardized) Source() *Features { return s.source }

// Dense returns a copy of the standardized values, safe for a variant to modify
func (s *Standardized) Dense() *mat.Dense { return mat.DenseCopyOf(s.data) }

// Matrix returns a read-only view of the standardized values
func (s *Standardized) Matrix() mat.Matrix { return s.data }

// Rows returns the number of observations
func (s *Standardized) Rows() int { return s.source.Rows() }

// Cols returns the number of features
func (s *Standardized) Cols() int { return s.source.Cols() }

// Mean returns the per-feature means used for centring
func (s *Standardized) Mean() []float64 { return append([]float64(nil), s.mean...) }

// Std returns the per-feature scale (1 for constant columns)
func (s *Standardized) Std() []float64 { return append([]float64(nil), s.std...) }
