package matrix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cytofkit/cytofkit/errors"
)

func TestStandardize(t *testing.T) {
	f, err := FromRows([]string{"CD3", "CD4", "const"}, [][]float64{
		{1, 10, 5},
		{2, 20, 5},
		{3, 30, 5},
		{4, 40, 5},
	})
	require.NoError(t, err)

	s := Standardize(f)
	require.Equal(t, 4, s.Rows())
	require.Equal(t, 3, s.Cols())
	assert.Same(t, f, s.Source())

	col := make([]float64, 4)
	for j := 0; j < 2; j++ {
		mat.Col(col, j, s.Matrix())
		m, sd := stat.PopMeanStdDev(col, nil)
		assert.InDelta(t, 0, m, 1e-12)
		assert.InDelta(t, 1, sd, 1e-12)
	}

	// constant column is centred, not divided by zero
	mat.Col(col, 2, s.Matrix())
	assert.Equal(t, []float64{0, 0, 0, 0}, col)
	assert.Equal(t, 1.0, s.Std()[2])
	assert.Equal(t, 5.0, s.Mean()[2])

	// the source is untouched and Dense hands out a copy
	assert.Equal(t, 40.0, f.At(3, 1))
	d := s.Dense()
	d.Set(0, 0, 99)
	assert.NotEqual(t, 99.0, s.Matrix().At(0, 0))
}

func TestFromRowsValidation(t *testing.T) {
	_, err := FromRows([]string{"a"}, nil)
	assert.True(t, errors.Is(err, errors.ErrDataState))

	_, err = FromRows([]string{"a", "b"}, [][]float64{{1, 2}, {3}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")

	_, err = NewFeatures([]string{"a"}, mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestKNN(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 3, 10})

	nb, err := KNN(context.Background(), x, 2)
	require.NoError(t, err)
	require.Len(t, nb, 4)

	assert.Equal(t, []Neighbor{{Index: 1, Dist: 1}, {Index: 2, Dist: 3}}, nb[0])
	assert.Equal(t, []Neighbor{{Index: 0, Dist: 1}, {Index: 2, Dist: 2}}, nb[1])
	assert.Equal(t, 2, nb[3][0].Index)

	_, err = KNN(context.Background(), x, 4)
	assert.True(t, errors.Is(err, errors.ErrInput))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = KNN(ctx, x, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
