package cluster

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/matrix"
)

// MarkerMeans holds the mean of every feature within every cluster. Row i
// of Means belongs to Labels[i]; labels ascend.
type MarkerMeans struct {
	Labels   []int
	Features []string
	Means    *mat.Dense
}

// ComputeMarkerMeans groups feature rows by label and averages each group
func ComputeMarkerMeans(f *matrix.Features, labels []int) (*MarkerMeans, error) {
	if len(labels) != f.Rows() {
		return nil, errors.DataStateErrorf("label vector has %d entries but the feature matrix has %d rows", len(labels), f.Rows())
	}

	sums := make(map[int][]float64)
	counts := make(map[int]int)
	row := make([]float64, f.Cols())
	for i, l := range labels {
		mat.Row(row, i, f.Matrix())
		s, ok := sums[l]
		if !ok {
			s = make([]float64, f.Cols())
			sums[l] = s
		}
		floats.Add(s, row)
		counts[l]++
	}

	keys := make([]int, 0, len(sums))
	for l := range sums {
		keys = append(keys, l)
	}
	sort.Ints(keys)

	means := mat.NewDense(len(keys), f.Cols(), nil)
	for r, l := range keys {
		s := sums[l]
		floats.Scale(1/float64(counts[l]), s)
		means.SetRow(r, s)
	}
	return &MarkerMeans{Labels: keys, Features: f.Names(), Means: means}, nil
}

// Normalized returns the means min-max scaled per feature into [0, 1].
// Constant features map to 0.
func (m *MarkerMeans) Normalized() *mat.Dense {
	r, c := m.Means.Dims()
	out := mat.NewDense(r, c, nil)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m.Means)
		lo, hi := floats.Min(col), floats.Max(col)
		for i, v := range col {
			if hi > lo {
				out.Set(i, j, (v-lo)/(hi-lo))
			}
		}
	}
	return out
}
