package embed

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/dataset"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/table"
)

func seed(v int64) *int64 { return &v }

func twoBlobs(perBlob int) *mat.Dense {
	r := rand.New(rand.NewPCG(9, 9))
	x := mat.NewDense(2*perBlob, 3, nil)
	for i := 0; i < 2*perBlob; i++ {
		off := 0.0
		if i >= perBlob {
			off = 25
		}
		for j := 0; j < 3; j++ {
			x.Set(i, j, off+r.NormFloat64())
		}
	}
	return x
}

// separated reports whether the two halves of y sit further apart than
// their own spread
func separated(y *mat.Dense) bool {
	n, c := y.Dims()
	half := n / 2
	centre := func(lo, hi int) []float64 {
		m := make([]float64, c)
		for i := lo; i < hi; i++ {
			for j := 0; j < c; j++ {
				m[j] += y.At(i, j) / float64(hi-lo)
			}
		}
		return m
	}
	a, b := centre(0, half), centre(half, n)
	spread := 0.0
	for i := 0; i < n; i++ {
		m := a
		if i >= half {
			m = b
		}
		var d float64
		for j := 0; j < c; j++ {
			d += (y.At(i, j) - m[j]) * (y.At(i, j) - m[j])
		}
		spread += math.Sqrt(d) / float64(n)
	}
	var between float64
	for j := 0; j < c; j++ {
		between += (a[j] - b[j]) * (a[j] - b[j])
	}
	return math.Sqrt(between) > 2*spread
}

func allFinite(t *testing.T, y *mat.Dense) {
	t.Helper()
	r, c := y.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			require.False(t, math.IsNaN(y.At(i, j)) || math.IsInf(y.At(i, j), 0), "coordinate %d,%d", i, j)
		}
	}
}

func testConfig() am.EmbedConfig {
	cfg := am.Defaults().Embed
	cfg.TSNE.Perplexity = 5
	cfg.TSNE.LearningRate = 200
	cfg.TSNE.NIter = 1000
	cfg.TSNE.Seed = seed(3)
	cfg.UMAP.NNeighbors = 5
	cfg.UMAP.NEpochs = 60
	cfg.UMAP.Seed = seed(3)
	return cfg
}

func TestColumnNames(t *testing.T) {
	assert.Equal(t, []string{"tSNE1", "tSNE2"}, ColumnNames("tsne", 2))
	assert.Equal(t, []string{"UMAP1", "UMAP2", "UMAP3"}, ColumnNames("umap", 3))
	assert.Equal(t, []string{"Dim1", "Dim2"}, ColumnNames("phate", 2))
}

func TestRegistryUnknownVariant(t *testing.T) {
	_, err := DefaultRegistry().New("phate", testConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlgorithmUnavailable))
	assert.Contains(t, err.Error(), "phate")
}

func TestTSNE(t *testing.T) {
	for _, method := range []string{TSNEBarnesHut, TSNEExact} {
		t.Run(method, func(t *testing.T) {
			x := twoBlobs(20)
			cfg := testConfig()
			cfg.TSNE.Method = method
			ts := newTSNE(cfg)

			y, err := ts.Embed(context.Background(), mat.DenseCopyOf(x), 2)
			require.NoError(t, err)
			r, c := y.Dims()
			assert.Equal(t, 40, r)
			assert.Equal(t, 2, c)
			allFinite(t, y)
			assert.True(t, separated(y))

			again, err := ts.Embed(context.Background(), mat.DenseCopyOf(x), 2)
			require.NoError(t, err)
			assert.True(t, mat.Equal(y, again))
		})
	}
}

func TestTSNEExactRowLimit(t *testing.T) {
	cfg := testConfig()
	cfg.TSNE.Method = TSNEExact
	cfg.TSNE.MaxExactRows = 30

	_, err := newTSNE(cfg).Embed(context.Background(), twoBlobs(20), 2)
	require.Error(t, err)
	assert.Equal(t, errors.KindInput, errors.KindOf(err))
	assert.Contains(t, err.Error(), "max_exact_rows=30")
	assert.Contains(t, errors.GetAllHints(err)[0], TSNEBarnesHut)
}

func TestTSNEBarnesHutComponentLimit(t *testing.T) {
	cfg := testConfig()
	cfg.TSNE.Method = TSNEBarnesHut
	_, err := newTSNE(cfg).Embed(context.Background(), twoBlobs(10), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInput))
}

func TestLearningRate(t *testing.T) {
	assert.Equal(t, 200.0, learningRate(200, 40))
	assert.Equal(t, 50.0, learningRate(0, 40))
	assert.Equal(t, 2500.0, learningRate(0, 120000))
}

func TestSparseAffinitiesSumToOne(t *testing.T) {
	p, err := sparseAffinities(context.Background(), twoBlobs(15), 5)
	require.NoError(t, err)

	var total float64
	for i, cols := range p.cols {
		assert.NotContains(t, cols, i, "no self affinity")
		for _, v := range p.vals[i] {
			total += v
		}
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestBHRepulsionMatchesBruteForce(t *testing.T) {
	x := twoBlobs(12)
	n, dims := x.Dims()
	y := append([]float64(nil), x.RawMatrix().Data...)

	// an angle this small never summarises a cell, so the tree is exact
	tree := newBHTree(y, n, dims)
	for i := 0; i < n; i++ {
		force := make([]float64, dims)
		z := tree.repulsion(tree.root, i, 1e-9, force, make([]float64, dims))

		wantForce := make([]float64, dims)
		var wantZ float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			var d2 float64
			for c := 0; c < dims; c++ {
				d2 += (y[i*dims+c] - y[j*dims+c]) * (y[i*dims+c] - y[j*dims+c])
			}
			q := 1 / (1 + d2)
			wantZ += q
			for c := 0; c < dims; c++ {
				wantForce[c] += q * q * (y[i*dims+c] - y[j*dims+c])
			}
		}
		assert.InDelta(t, wantZ, z, 1e-9)
		for c := range force {
			assert.InDelta(t, wantForce[c], force[c], 1e-9)
		}
	}
}

func TestTSNERandomInit(t *testing.T) {
	cfg := testConfig()
	cfg.TSNE.Init = "random"
	y, err := newTSNE(cfg).Embed(context.Background(), twoBlobs(15), 3)
	require.NoError(t, err)
	_, c := y.Dims()
	assert.Equal(t, 3, c)
	allFinite(t, y)
}

func TestTSNEPerplexityTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.TSNE.Perplexity = 50
	_, err := newTSNE(cfg).Embed(context.Background(), twoBlobs(5), 2)
	assert.True(t, errors.Is(err, errors.ErrInput))
}

func TestUMAP(t *testing.T) {
	x := twoBlobs(25)
	um := newUMAP(testConfig())

	y, err := um.Embed(context.Background(), mat.DenseCopyOf(x), 2)
	require.NoError(t, err)
	r, _ := y.Dims()
	assert.Equal(t, 50, r)
	allFinite(t, y)
	assert.True(t, separated(y))

	again, err := um.Embed(context.Background(), mat.DenseCopyOf(x), 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y, again))
}

func TestUMAPCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newUMAP(testConfig()).Embed(ctx, twoBlobs(10), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitCurve(t *testing.T) {
	a, b, err := fitCurve(0.1)
	require.NoError(t, err)
	assert.InDelta(t, 1.58, a, 0.05)
	assert.InDelta(t, 0.90, b, 0.05)
}

func writeCSV(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, table.Write(path, header, rows))
	return path
}

func blobRows(perBlob int) [][]string {
	x := twoBlobs(perBlob)
	n, _ := x.Dims()
	rows := make([][]string, n)
	for i := range rows {
		kind := "T"
		if i >= perBlob {
			kind = "B"
		}
		rows[i] = []string{table.FormatFloat(x.At(i, 0)), table.FormatFloat(x.At(i, 1)), kind, "note"}
	}
	return rows
}

func TestLoadCustom(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "cells.csv", []string{"CD3", "CD4", "Cell_Type", "comment"}, blobRows(3))

	c, err := LoadCustom(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "Cell_Type", c.LabelColumn)
	assert.Equal(t, []string{"CD3", "CD4"}, c.Features().Names())
	assert.Equal(t, []string{"T", "T", "T", "B", "B", "B"}, c.Labels())

	bad := writeCSV(t, dir, "text.csv", []string{"a", "b"}, [][]string{{"x", "y"}})
	_, err = LoadCustom(bad, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInput))
	assert.Contains(t, err.Error(), "text.csv")
}

func TestLoadCustomSkipsProvenance(t *testing.T) {
	rows := [][]string{
		{"a", "0", "1.5", "2.0", "T"},
		{"a", "1", "1.7", "2.1", "NA"},
		{"b", "0", "9.0", "8.5", "B"},
	}
	path := writeCSV(t, t.TempDir(), "combined.csv",
		[]string{"_file_id", "_original_index", "CD3", "CD4", "cell_type"}, rows)

	c, err := LoadCustom(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"CD3", "CD4"}, c.Features().Names())
	assert.Equal(t, []string{"T", UnknownLabel, "B"}, c.Labels())
}

type fuserSource struct{ f *dataset.Fuser }

func (s fuserSource) Dataset() (*dataset.Fused, error) { return s.f.Dataset() }

func TestEngineSwitchesSource(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	in := t.TempDir()
	rows := blobRows(10)
	fusedRows := make([][]string, len(rows))
	for i, r := range rows {
		fusedRows[i] = r[:3]
	}
	writeCSV(t, in, "a.csv", []string{"CD3", "CD4", "cell_type"}, fusedRows)

	fuser := dataset.NewFuser(dataset.Options{}, log)
	_, err := fuser.Load(context.Background(), in)
	require.NoError(t, err)

	e := NewEngine(fuserSource{fuser}, nil, log)
	assert.Equal(t, ModeFused, e.Mode())

	cfg := testConfig()
	res, err := e.Run(context.Background(), "tsne", cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeFused, res.Mode)
	assert.Equal(t, []string{"tSNE1", "tSNE2"}, res.Columns)
	assert.Len(t, res.Groups(), 20)

	out := t.TempDir()
	name, err := e.SaveCoordinates(out)
	require.NoError(t, err)
	assert.Equal(t, "tsne_coordinates.csv", name)
	coords, err := table.Read(filepath.Join(out, name), table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CD3", "CD4", "cell_type", "tSNE1", "tSNE2"}, coords.Header)
	assert.Len(t, coords.Rows, 20)

	// switching source drops the fused result and cache
	custom, err := LoadCustom(writeCSV(t, t.TempDir(), "c.csv", []string{"CD3", "CD4", "cell_type", "comment"}, blobRows(8)), 0)
	require.NoError(t, err)
	e.UseCustom(custom)
	assert.Equal(t, ModeCustom, e.Mode())
	_, err = e.Result()
	assert.True(t, errors.Is(err, errors.ErrDataState))

	std, err := e.Preprocess()
	require.NoError(t, err)
	assert.Equal(t, 16, std.Rows())

	res, err = e.Run(context.Background(), "umap", cfg)
	require.NoError(t, err)
	assert.Equal(t, ModeCustom, res.Mode)

	name, err = res.Save(out)
	require.NoError(t, err)
	coords, err = table.Read(filepath.Join(out, name), table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CD3", "CD4", "cell_type", "comment", "UMAP1", "UMAP2"}, coords.Header)

	e.UseFused()
	_, err = e.Result()
	assert.True(t, errors.Is(err, errors.ErrDataState))
	std, err = e.Preprocess()
	require.NoError(t, err)
	assert.Equal(t, 20, std.Rows())
}

func TestEngineRejectsOneComponent(t *testing.T) {
	fuser := dataset.NewFuser(dataset.Options{}, zaptest.NewLogger(t).Sugar())
	e := NewEngine(fuserSource{fuser}, nil, zaptest.NewLogger(t).Sugar())

	cfg := testConfig()
	cfg.NComponents = 1
	_, err := e.Run(context.Background(), "tsne", cfg)
	assert.True(t, errors.Is(err, errors.ErrInput))

	cfg.NComponents = 2
	_, err = e.Run(context.Background(), "tsne", cfg)
	assert.True(t, errors.Is(err, errors.ErrDataState))
}
