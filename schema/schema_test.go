package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cytofkit/cytofkit/errors"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestResolve(t *testing.T) {
	r := Resolve([]string{"CD3", " Cluster_Label ", "CD4", "CELL_TYPE"})

	assert.Equal(t, " Cluster_Label ", r.Category)
	assert.Equal(t, 1, r.CategoryIndex)
	assert.Equal(t, "CELL_TYPE", r.Annotation)
	assert.Equal(t, 3, r.AnnotationIndex)
	assert.Equal(t, []string{"CD3", "CD4"}, r.Features)
	assert.Equal(t, []int{0, 2}, r.FeatureIndex)

	name, idx, ok := r.GroupingColumn()
	assert.True(t, ok)
	assert.Equal(t, " Cluster_Label ", name)
	assert.Equal(t, 1, idx)
}

func TestResolveWithoutReserved(t *testing.T) {
	r := Resolve([]string{"CD3", "CD4"})
	assert.False(t, r.HasCategory())
	assert.False(t, r.HasAnnotation())
	assert.Equal(t, []string{"CD3", "CD4"}, r.Features)
	_, _, ok := r.GroupingColumn()
	assert.False(t, ok)

	annotated := Resolve([]string{"cell_type", "CD3"})
	name, _, ok := annotated.GroupingColumn()
	assert.True(t, ok)
	assert.Equal(t, "cell_type", name)
}

func TestIsReserved(t *testing.T) {
	assert.True(t, IsReserved("Cell_Type"))
	assert.True(t, IsReserved(" cluster_label"))
	assert.False(t, IsReserved("cluster"))
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "CD3,CD4,cell_type\n1,2,T\n")
	b := writeCSV(t, dir, "b.csv", "cell_type,CD4,CD3\nB,3,4\n")
	c := writeCSV(t, dir, "c.csv", "CD3,CD8,cell_type\n1,2,T\n")
	d := writeCSV(t, dir, "d.csv", "CD3,CD4,cell_type\n1,2,T\n")

	t.Run("column order does not matter", func(t *testing.T) {
		res := Check([]string{a, b}, 0)
		require.True(t, res.Consistent, res.Message)
		assert.Equal(t, []string{"CD3", "CD4", "cell_type"}, res.Columns)
		assert.NoError(t, res.Err)
	})

	t.Run("mismatch names the first offending file", func(t *testing.T) {
		res := Check([]string{a, b, c, d}, 0)
		assert.False(t, res.Consistent)
		assert.Nil(t, res.Columns)
		assert.Equal(t, c, res.Offending)
		assert.True(t, errors.Is(res.Err, errors.ErrConsistency))
		assert.Contains(t, res.Message, "c.csv")
		assert.Contains(t, res.Message, "missing [CD4]")
		assert.Contains(t, res.Message, "unexpected [CD8]")
	})

	t.Run("unreadable file is reported by name", func(t *testing.T) {
		missing := filepath.Join(dir, "gone.csv")
		res := Check([]string{a, missing}, 0)
		assert.False(t, res.Consistent)
		assert.Equal(t, missing, res.Offending)
		assert.True(t, errors.Is(res.Err, errors.ErrInput))
		assert.Contains(t, res.Message, "gone.csv")
	})

	t.Run("no files", func(t *testing.T) {
		res := Check(nil, 0)
		assert.False(t, res.Consistent)
		assert.True(t, errors.Is(res.Err, errors.ErrInput))
	})
}
