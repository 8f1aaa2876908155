package composition

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/table"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestComputePercentages(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "A.csv", "CD3,cell_type\n1,X\n2,Y\n3,X\n4,Y\n")
	write(t, dir, "B.csv", "CD3,Cell_Type \n1,X\n2,X\n")

	tbl, err := NewAnalyzer(Options{}, zaptest.NewLogger(t).Sugar()).Compute(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, tbl.Samples)
	assert.Equal(t, []string{"X", "Y"}, tbl.Categories)
	assert.Equal(t, []float64{50, 50}, mat.Row(nil, 0, tbl.Percent))
	assert.Equal(t, []float64{100, 0}, mat.Row(nil, 1, tbl.Percent))
}

func TestComputeBucketsNulls(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "s1.csv", "CD3,cell_type\n1,T\n2,\n3,NA\n4,B\n")

	tbl, err := NewAnalyzer(Options{}, zaptest.NewLogger(t).Sugar()).Compute(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "T", Unknown}, tbl.Categories)
	row := mat.Row(nil, 0, tbl.Percent)
	assert.InDelta(t, 100, floats.Sum(row), 1e-9)
	assert.Equal(t, 50.0, row[2])
}

func TestComputeRowsSumToHundred(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.csv", "cell_type\nX\nY\nZ\n")
	write(t, dir, "b.csv", "cell_type\nX\nX\nY\nW\nW\nW\nV\n")

	tbl, err := NewAnalyzer(Options{}, zaptest.NewLogger(t).Sugar()).Compute(context.Background(), dir)
	require.NoError(t, err)
	for i := range tbl.Samples {
		assert.InDelta(t, 100, floats.Sum(mat.Row(nil, i, tbl.Percent)), 1e-9)
	}
}

func TestComputeErrors(t *testing.T) {
	a := NewAnalyzer(Options{}, zaptest.NewLogger(t).Sugar())

	_, err := a.Compute(context.Background(), t.TempDir())
	assert.True(t, errors.Is(err, errors.ErrInput))

	dir := t.TempDir()
	write(t, dir, "good.csv", "cell_type\nX\n")
	write(t, dir, "bad.csv", "cluster_label\n1\n")
	_, err = a.Compute(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInput))
	assert.Contains(t, err.Error(), "bad.csv")
}

func TestSave(t *testing.T) {
	tbl := &Table{
		Samples:    []string{"A", "B"},
		Categories: []string{"X", "Y"},
		Percent:    mat.NewDense(2, 2, []float64{50, 50, 100, 0}),
	}
	dir := t.TempDir()
	name, err := tbl.Save(dir)
	require.NoError(t, err)

	got, err := table.Read(filepath.Join(dir, name), table.ReadOptions{})
	require.NoError(t, err)
	want := &table.Table{
		Header: []string{"sample", "X", "Y"},
		Rows:   [][]string{{"A", "50", "50"}, {"B", "100", "0"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("composition.csv mismatch (-want +got):\n%s", diff)
	}
}
