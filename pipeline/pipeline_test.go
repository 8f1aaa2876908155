package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/cluster"
	"github.com/cytofkit/cytofkit/composition"
	"github.com/cytofkit/cytofkit/embed"
	"github.com/cytofkit/cytofkit/errors"
	cytotest "github.com/cytofkit/cytofkit/internal/testing"
	"github.com/cytofkit/cytofkit/ledger"
	"github.com/cytofkit/cytofkit/output"
	"github.com/cytofkit/cytofkit/table"
)

// recordingVis stands in for the plot renderer: it writes a placeholder
// file and remembers what it was asked to draw
type recordingVis struct {
	mu        sync.Mutex
	files     []string
	groups    []string
	rowLabels []string
	onHeatmap func()
}

func (v *recordingVis) touch(path string) error {
	v.mu.Lock()
	v.files = append(v.files, filepath.Base(path))
	v.mu.Unlock()
	return os.WriteFile(path, []byte("png"), 0o644)
}

func (v *recordingVis) Heatmap(path, title string, values mat.Matrix, rowLabels, colLabels []string) error {
	v.rowLabels = rowLabels
	if v.onHeatmap != nil {
		v.onHeatmap()
	}
	return v.touch(path)
}

func (v *recordingVis) Scatter(path, title string, coords mat.Matrix, groups []string, axes [2]string) error {
	v.groups = groups
	return v.touch(path)
}

func (v *recordingVis) StackedBar(path, title string, percent mat.Matrix, samples, categories []string) error {
	return v.touch(path)
}

var fixedNow = time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

// writeSamples writes two files of three well separated populations
func writeSamples(t *testing.T, dir string) {
	t.Helper()
	r := rand.New(rand.NewPCG(7, 7))
	centres := map[string][2]float64{"T": {0, 0}, "B": {15, 0}, "NK": {0, 15}}
	for _, name := range []string{"s1", "s2"} {
		var b strings.Builder
		b.WriteString("CD3,CD19,cell_type\n")
		for _, ct := range []string{"T", "B", "NK"} {
			c := centres[ct]
			for i := 0; i < 12; i++ {
				fmt.Fprintf(&b, "%.3f,%.3f,%s\n", c[0]+r.NormFloat64()*0.4, c[1]+r.NormFloat64()*0.4, ct)
			}
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(b.String()), 0o644))
	}
}

func testConfig() *am.Config {
	cfg := am.Defaults()
	cfg.Cluster.KMeans.NClusters = 3
	cfg.Cluster.KMeans.NInit = 2
	cfg.Embed.TSNE.Perplexity = 5
	cfg.Embed.TSNE.NIter = 250
	return cfg
}

func newTestPipeline(t *testing.T, vis *recordingVis) (*Pipeline, *ledger.Store) {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	store := ledger.NewStore(cytotest.CreateTestDB(t), log)
	p := New(Options{
		Config:     testConfig(),
		Ledger:     store,
		Visualizer: vis,
		Now:        func() time.Time { return fixedNow },
	}, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p, store
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestClusterUnit(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	vis := &recordingVis{}
	p, store := newTestPipeline(t, vis)
	ctx := context.Background()

	rep, err := p.Do(ctx, ClusterRequest{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, 72, rep.Rows)
	assert.Equal(t, 2, rep.Files)
	assert.Equal(t, 3, rep.Clusters)
	assert.Equal(t, filepath.Join(dir, "results", "cluster_results", "260314_0926"), rep.OutputDir)
	assert.ElementsMatch(t, []string{
		cluster.CombinedFile, "s1_clustered.csv", "s2_clustered.csv",
		cluster.MarkerMeansFile, HeatmapFile, output.ManifestFile,
	}, listDir(t, rep.OutputDir))
	assert.Equal(t, []string{"1", "2", "3"}, vis.rowLabels)

	m, err := output.ReadManifest(rep.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, m.RunID)
	assert.Equal(t, "kmeans", m.Algorithm)
	assert.Equal(t, 3, m.Clusters)

	run, err := store.Get(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, run.Status)
	assert.Equal(t, 3, run.NClusters)
	assert.Contains(t, run.Params, `"n_clusters":3`)
	assert.True(t, strings.HasPrefix(run.ID, "CR_"))

	artifacts, err := store.Artifacts(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Len(t, artifacts, 6)

	// a second run in the same minute lands next to the first
	rep2, err := p.Do(ctx, ClusterRequest{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, rep.OutputDir+"_2", rep2.OutputDir)
}

func TestEmbedUnitColoursByCellType(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	vis := &recordingVis{}
	p, _ := newTestPipeline(t, vis)

	rep, err := p.Do(context.Background(), EmbedRequest{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "results", "vis_results", "260314_0926"), rep.OutputDir)
	assert.Contains(t, listDir(t, rep.OutputDir), embed.CoordinatesFile("tsne"))
	assert.Contains(t, vis.files, ScatterFile("tsne"))
	require.Len(t, vis.groups, 72)
	assert.Equal(t, "T", vis.groups[0])

	coords, err := table.Read(filepath.Join(rep.OutputDir, embed.CoordinatesFile("tsne")), table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CD3", "CD19", "cell_type", "tSNE1", "tSNE2"}, coords.Header)
}

func TestEmbedCustomFile(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	p, _ := newTestPipeline(t, &recordingVis{})

	rep, err := p.Do(context.Background(), EmbedRequest{Custom: filepath.Join(dir, "s1.csv")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vis_results", "260314_0926"), rep.OutputDir)
	assert.Equal(t, 36, rep.Rows)
	assert.Equal(t, embed.ModeCustom, p.Embeddings().Mode())
}

func TestComposeUnit(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	vis := &recordingVis{}
	p, _ := newTestPipeline(t, vis)

	rep, err := p.Do(context.Background(), ComposeRequest{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Difference Analysis", "Percentage Stacked Bar Chart", "260314_0926"), rep.OutputDir)
	assert.Contains(t, listDir(t, rep.OutputDir), composition.OutputFile)
	assert.Contains(t, vis.files, StackedBarFile)
}

func TestSplitAndMapUnits(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	p, _ := newTestPipeline(t, &recordingVis{})
	ctx := context.Background()

	rep, err := p.Do(ctx, SplitRequest{File: filepath.Join(dir, "s1.csv"), Rows: []int{0, 1, 500}, Columns: []string{"CD19"}})
	require.NoError(t, err)
	split, err := table.Read(filepath.Join(rep.OutputDir, "split_s1.csv"), table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CD19"}, split.Header)
	assert.Equal(t, 2, split.NumRows())

	_, err = p.Do(ctx, SplitRequest{})
	assert.Equal(t, errors.KindInput, errors.KindOf(err))

	// annotate a clustered folder
	clustered := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(clustered, "a.csv"), []byte("CD3,cluster_label\n1,1\n2,2\n"), 0o644))
	mapping := filepath.Join(t.TempDir(), "map.csv")
	require.NoError(t, os.WriteFile(mapping, []byte("cluster_label,cell_type\n1,T\n2,B\n"), 0o644))

	rep, err = p.Do(ctx, MapRequest{Dir: clustered, Mapping: mapping})
	require.NoError(t, err)
	mapped, err := table.Read(filepath.Join(rep.OutputDir, "a.csv"), table.ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CD3", "cell_type"}, mapped.Header)
	assert.Equal(t, []string{"T", "B"}, mapped.Column(1))
}

func TestFailedUnitIsRecorded(t *testing.T) {
	p, store := newTestPipeline(t, &recordingVis{})
	ctx := context.Background()

	_, err := p.Do(ctx, ClusterRequest{Dir: t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, errors.KindInput, errors.KindOf(err))

	runs, err := store.List(ctx, ledger.ListFilter{Kind: ledger.KindCluster})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusFailed, runs[0].Status)
	assert.Equal(t, string(errors.KindInput), runs[0].ErrorKind)
}

func TestCancelledUnitLeavesNoDirectory(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	vis := &recordingVis{}
	p, store := newTestPipeline(t, vis)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// cancel while artifacts are being written, before the commit
	vis.onHeatmap = cancel

	_, err := p.Do(ctx, ClusterRequest{Dir: dir})
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))

	results := filepath.Join(dir, "results", "cluster_results")
	assert.Empty(t, listDir(t, results))

	runs, err := store.List(context.Background(), ledger.ListFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusCancelled, runs[0].Status)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeSamples(t, dir)
	p, _ := newTestPipeline(t, &recordingVis{})

	res, files, err := p.Check(dir)
	require.NoError(t, err)
	assert.True(t, res.Consistent)
	assert.Len(t, files, 2)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "s3.csv"), []byte("CD3,CD4,cell_type\n1,2,T\n"), 0o644))
	res, _, err = p.Check(dir)
	require.NoError(t, err)
	assert.False(t, res.Consistent)
	assert.Equal(t, filepath.Join(dir, "s3.csv"), res.Offending)
}
