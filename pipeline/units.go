package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/cluster"
	"github.com/cytofkit/cytofkit/dataset"
	"github.com/cytofkit/cytofkit/embed"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/ledger"
	"github.com/cytofkit/cytofkit/output"
	"github.com/cytofkit/cytofkit/pulse"
)

// Plot file names
const (
	HeatmapFile    = "heatmap.png"
	StackedBarFile = "percentage_stacked_bar_chart.png"
)

// ScatterFile is the plot written next to an algorithm's coordinates
func ScatterFile(algorithm string) string { return algorithm + "_scatter.png" }

func (p *Pipeline) fuse(ctx context.Context, req FuseRequest, emit pulse.ProgressEmitter, rep *Report) error {
	emit.EmitStage("fuse", "loading "+req.Dir)
	d, err := p.fuser.Load(ctx, req.Dir)
	if err != nil {
		emit.EmitError("fuse", err)
		return err
	}
	fillDataset(rep, d)
	emit.EmitComplete(map[string]interface{}{"n_files": rep.Files, "n_rows": rep.Rows, "n_features": rep.Features})
	return nil
}

// ensureLoaded returns the current dataset when it was fused from dir,
// loading dir otherwise
func (p *Pipeline) ensureLoaded(ctx context.Context, dir string, reload bool, emit pulse.ProgressEmitter) (*dataset.Fused, error) {
	if dir == "" {
		return p.fuser.Dataset()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WrapInput(err, "invalid input directory %s", dir)
	}
	if !reload {
		if d, err := p.fuser.Dataset(); err == nil && d.Dir() == abs {
			return d, nil
		}
	}
	emit.EmitStage("fuse", "loading "+abs)
	return p.fuser.Load(ctx, abs)
}

func (p *Pipeline) cluster(ctx context.Context, req ClusterRequest, cfg am.ClusterConfig, run *ledger.Run, emit pulse.ProgressEmitter, rep *Report) error {
	d, err := p.ensureLoaded(ctx, req.Dir, req.Reload, emit)
	if err != nil {
		emit.EmitError("fuse", err)
		return err
	}
	fillDataset(rep, d)

	emit.EmitStage("cluster", fmt.Sprintf("%s over %d rows", cfg.Algorithm, d.NumRows()))
	res, err := p.clusters.Run(ctx, cfg.Algorithm, cfg)
	if err != nil {
		emit.EmitError("cluster", err)
		return err
	}
	rep.Clusters = res.NClusters
	means, err := cluster.ComputeMarkerMeans(res.Features, res.Labels)
	if err != nil {
		return err
	}

	emit.EmitStage("save", "writing cluster results")
	st, err := p.stage(d.Dir(), output.ClusterResults, run.ID)
	if err != nil {
		return err
	}
	defer st.Abort()

	if _, err := res.Save(st.Dir()); err != nil {
		return err
	}
	if _, err := means.Save(st.Dir()); err != nil {
		return err
	}
	rowLabels := make([]string, len(means.Labels))
	for i, l := range means.Labels {
		rowLabels[i] = strconv.Itoa(l)
	}
	title := fmt.Sprintf("%s marker means", cfg.Algorithm)
	if err := p.vis.Heatmap(st.Path(HeatmapFile), title, means.Normalized(), rowLabels, means.Features); err != nil {
		return err
	}

	if err := p.commit(ctx, st, &output.Manifest{
		Params:   clusterParams(cfg),
		Rows:     rep.Rows,
		Clusters: rep.Clusters,
	}, rep); err != nil {
		return err
	}
	emit.EmitComplete(map[string]interface{}{"n_clusters": rep.Clusters, "output_dir": rep.OutputDir})
	return nil
}

func (p *Pipeline) embed(ctx context.Context, req EmbedRequest, cfg am.EmbedConfig, run *ledger.Run, emit pulse.ProgressEmitter, rep *Report) error {
	var base, sub string
	if req.Custom != "" {
		emit.EmitStage("load", "reading "+req.Custom)
		c, err := embed.LoadCustom(req.Custom, p.cfg.Data.DelimiterRune())
		if err != nil {
			emit.EmitError("load", err)
			return err
		}
		p.embeds.UseCustom(c)
		rep.Rows = c.Table.NumRows()
		rep.Files = 1
		rep.Features = c.Features().Cols()
		base, sub = filepath.Dir(c.Path), output.CustomVis
	} else {
		if p.embeds.Mode() != embed.ModeFused {
			p.embeds.UseFused()
		}
		d, err := p.ensureLoaded(ctx, req.Dir, req.Reload, emit)
		if err != nil {
			emit.EmitError("fuse", err)
			return err
		}
		fillDataset(rep, d)
		base, sub = d.Dir(), output.VisResults
	}

	emit.EmitStage("embed", fmt.Sprintf("%s over %d rows", cfg.Algorithm, rep.Rows))
	res, err := p.embeds.Run(ctx, cfg.Algorithm, cfg)
	if err != nil {
		emit.EmitError("embed", err)
		return err
	}

	emit.EmitStage("save", "writing coordinates")
	st, err := p.stage(base, sub, run.ID)
	if err != nil {
		return err
	}
	defer st.Abort()

	if _, err := res.Save(st.Dir()); err != nil {
		return err
	}
	axes := [2]string{res.Columns[0], res.Columns[1]}
	title := fmt.Sprintf("%s embedding", cfg.Algorithm)
	if err := p.vis.Scatter(st.Path(ScatterFile(cfg.Algorithm)), title, res.Coords, p.scatterGroups(res), axes); err != nil {
		return err
	}

	if err := p.commit(ctx, st, &output.Manifest{Params: embedParams(cfg), Rows: rep.Rows}, rep); err != nil {
		return err
	}
	emit.EmitComplete(map[string]interface{}{"n_rows": rep.Rows, "output_dir": rep.OutputDir})
	return nil
}

// scatterGroups colours by cell type, else by the cluster labels of the
// same dataset, else leaves every point in one group
func (p *Pipeline) scatterGroups(res *embed.Result) []string {
	if g := res.Groups(); g != nil {
		return g
	}
	if res.Dataset == nil {
		return nil
	}
	cr, err := p.clusters.Result()
	if err != nil || cr.Dataset != res.Dataset {
		return nil
	}
	groups := make([]string, len(cr.Labels))
	for i, l := range cr.Labels {
		groups[i] = strconv.Itoa(l)
	}
	return groups
}

func (p *Pipeline) compose(ctx context.Context, req ComposeRequest, run *ledger.Run, emit pulse.ProgressEmitter, rep *Report) error {
	emit.EmitStage("compose", "counting cell types in "+req.Dir)
	t, err := p.analyzer.Compute(ctx, req.Dir)
	if err != nil {
		emit.EmitError("compose", err)
		return err
	}
	rep.Files = len(t.Samples)

	st, err := p.stage(req.Dir, output.Composition, run.ID)
	if err != nil {
		return err
	}
	defer st.Abort()

	if _, err := t.Save(st.Dir()); err != nil {
		return err
	}
	if err := p.vis.StackedBar(st.Path(StackedBarFile), "Cell type composition", t.Percent, t.Samples, t.Categories); err != nil {
		return err
	}
	if err := p.commit(ctx, st, &output.Manifest{
		Params: map[string]interface{}{"samples": t.Samples, "categories": t.Categories},
	}, rep); err != nil {
		return err
	}
	emit.EmitComplete(map[string]interface{}{"samples": len(t.Samples), "categories": len(t.Categories)})
	return nil
}

func (p *Pipeline) split(ctx context.Context, req SplitRequest, run *ledger.Run, emit pulse.ProgressEmitter, rep *Report) error {
	if (req.File == "") == (req.Folder == "") {
		return errors.InputErrorf("split needs exactly one of a file or a folder")
	}
	outDir := req.OutDir
	if outDir == "" {
		if req.File != "" {
			outDir = filepath.Dir(req.File)
		} else {
			outDir = req.Folder
		}
	}

	st, err := p.stage(outDir, output.CsvProc, run.ID)
	if err != nil {
		return err
	}
	defer st.Abort()

	if req.File != "" {
		emit.EmitStage("split", "projecting "+req.File)
		if _, err := p.splitter.SplitFile(req.File, req.Rows, req.Columns, st.Dir()); err != nil {
			emit.EmitError("split", err)
			return err
		}
		rep.Files = 1
	} else {
		emit.EmitStage("split", "checking "+req.Folder)
		f, err := p.splitter.LoadFolder(ctx, req.Folder)
		if err != nil {
			emit.EmitError("split", err)
			return err
		}
		names, err := p.splitter.SplitFolder(ctx, f, req.Categories, req.Columns, st.Dir())
		if err != nil {
			emit.EmitError("split", err)
			return err
		}
		rep.Files = len(names)
	}

	if err := p.commit(ctx, st, &output.Manifest{
		Params: map[string]interface{}{"columns": req.Columns, "rows": req.Rows, "categories": req.Categories},
	}, rep); err != nil {
		return err
	}
	emit.EmitComplete(map[string]interface{}{"n_files": rep.Files, "output_dir": rep.OutputDir})
	return nil
}

func (p *Pipeline) mapLabels(ctx context.Context, req MapRequest, run *ledger.Run, emit pulse.ProgressEmitter, rep *Report) error {
	if req.Mapping == "" {
		return errors.InputErrorf("map needs a mapping file")
	}
	st, err := p.stage(req.Dir, output.Annotation, run.ID)
	if err != nil {
		return err
	}
	defer st.Abort()

	emit.EmitStage("map", "relabelling "+req.Dir)
	names, err := p.mapper.MapFolder(ctx, req.Dir, req.Mapping, st.Dir())
	if err != nil {
		emit.EmitError("map", err)
		return err
	}
	rep.Files = len(names)

	if err := p.commit(ctx, st, &output.Manifest{
		Params: map[string]interface{}{"mapping": req.Mapping},
	}, rep); err != nil {
		return err
	}
	emit.EmitComplete(map[string]interface{}{"n_files": rep.Files, "output_dir": rep.OutputDir})
	return nil
}

func fillDataset(rep *Report, d *dataset.Fused) {
	rep.Rows = d.NumRows()
	rep.Files = len(d.Files())
	rep.Features = len(d.FeatureColumns())
}

// clusterParams keeps only the selected variant's parameters
func clusterParams(cfg am.ClusterConfig) interface{} {
	switch cfg.Algorithm {
	case "kmeans":
		return cfg.KMeans
	case "phenograph":
		return cfg.Phenograph
	case "flowsom":
		return cfg.FlowSOM
	default:
		return nil
	}
}

func embedParams(cfg am.EmbedConfig) interface{} {
	params := map[string]interface{}{"n_components": cfg.NComponents}
	switch cfg.Algorithm {
	case "tsne":
		params["tsne"] = cfg.TSNE
	case "umap":
		params["umap"] = cfg.UMAP
	}
	return params
}
