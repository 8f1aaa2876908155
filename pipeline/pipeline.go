// Package pipeline composes fusion, clustering, embedding, composition and
// CSV processing into units of work. Every unit runs as a job in its own
// lane, writes into a staged output directory and is recorded in the run
// ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/cluster"
	"github.com/cytofkit/cytofkit/composition"
	"github.com/cytofkit/cytofkit/csvproc"
	"github.com/cytofkit/cytofkit/dataset"
	"github.com/cytofkit/cytofkit/embed"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/ledger"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/output"
	"github.com/cytofkit/cytofkit/pulse"
	"github.com/cytofkit/cytofkit/pulse/async"
	"github.com/cytofkit/cytofkit/schema"
	"github.com/cytofkit/cytofkit/table"
	"github.com/cytofkit/cytofkit/version"
	"github.com/cytofkit/cytofkit/visualize"
)

// Options configures a Pipeline
type Options struct {
	Config *am.Config // nil uses am.Defaults()

	// Ledger records every unit; nil disables recording
	Ledger *ledger.Store

	// Visualizer draws plots. nil picks a renderer, or Nop when
	// output.plots is off.
	Visualizer visualize.Visualizer

	// Emitter receives progress for every unit; nil discards it
	Emitter pulse.ProgressEmitter

	// Now stamps output directories; nil uses time.Now
	Now func() time.Time
}

// Pipeline owns one fuser and one engine per lane
type Pipeline struct {
	cfg      *am.Config
	fuser    *dataset.Fuser
	clusters *cluster.Engine
	embeds   *embed.Engine
	analyzer *composition.Analyzer
	splitter *csvproc.Splitter
	mapper   *csvproc.Mapper
	vis      visualize.Visualizer
	ledger   *ledger.Store
	runner   *async.Runner
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// New creates a pipeline. A nil logger uses the "pipeline" component logger.
func New(opts Options, log *zap.SugaredLogger) *Pipeline {
	cfg := opts.Config
	if cfg == nil {
		cfg = am.Defaults()
	}
	log = logger.OrComponent(log, "pipeline")
	delim := cfg.Data.DelimiterRune()

	vis := opts.Visualizer
	if vis == nil {
		if cfg.Output.Plots {
			vis = visualize.NewRenderer(cfg.Output.PlotWidthIn, cfg.Output.PlotHeightIn)
		} else {
			vis = visualize.Nop{}
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	fuser := dataset.NewFuser(dataset.Options{
		Pattern:         cfg.Data.Pattern,
		Delimiter:       delim,
		MemoryWarnRatio: cfg.Data.MemoryWarnRatio,
	}, log.Named("dataset"))
	procOpts := csvproc.Options{Pattern: cfg.Data.Pattern, Delimiter: delim}

	p := &Pipeline{
		cfg:      cfg,
		fuser:    fuser,
		clusters: cluster.NewEngine(fuser, nil, log.Named("cluster")),
		embeds:   embed.NewEngine(fuser, nil, log.Named("embed")),
		analyzer: composition.NewAnalyzer(composition.Options{Pattern: cfg.Data.Pattern, Delimiter: delim}, log.Named("compose")),
		splitter: csvproc.NewSplitter(procOpts, log.Named("csvproc")),
		mapper:   csvproc.NewMapper(procOpts, log.Named("csvproc")),
		vis:      vis,
		ledger:   opts.Ledger,
		logger:   log,
		now:      now,
	}

	handlers := async.NewHandlerRegistry()
	for _, kind := range []ledger.Kind{
		ledger.KindFuse, ledger.KindCluster, ledger.KindEmbed,
		ledger.KindCompose, ledger.KindSplit, ledger.KindMap,
	} {
		handlers.Register(async.NewHandlerFunc(string(kind), p.execute))
	}
	p.runner = async.NewRunner(handlers, opts.Emitter, log.Named("runner"))
	return p
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() *am.Config { return p.cfg }

// Fuser exposes the pipeline's dataset holder
func (p *Pipeline) Fuser() *dataset.Fuser { return p.fuser }

// Clusters exposes the cluster engine
func (p *Pipeline) Clusters() *cluster.Engine { return p.clusters }

// Embeddings exposes the embedding engine
func (p *Pipeline) Embeddings() *embed.Engine { return p.embeds }

// Submit starts req in its lane. A unit already running in that lane is
// cancelled first. The channel receives exactly one outcome whose Result,
// on success, is a *Report.
func (p *Pipeline) Submit(ctx context.Context, req Request) (<-chan async.Outcome, error) {
	job, err := async.NewJob(laneOf(req), string(req.Kind()), req)
	if err != nil {
		return nil, err
	}
	return p.runner.Submit(ctx, job), nil
}

// Do submits req and waits for it
func (p *Pipeline) Do(ctx context.Context, req Request) (*Report, error) {
	ch, err := p.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	out := <-ch
	if out.Err != nil {
		return nil, out.Err
	}
	return out.Result.(*Report), nil
}

// Cancel abandons whatever is running in lane
func (p *Pipeline) Cancel(lane string) bool { return p.runner.Cancel(lane) }

// Shutdown cancels running units and waits for them to return
func (p *Pipeline) Shutdown(ctx context.Context) error { return p.runner.Shutdown(ctx) }

// Check runs the consistency checker over dir without loading anything
func (p *Pipeline) Check(dir string) (schema.Result, []string, error) {
	files, err := table.Discover(dir, p.cfg.Data.Pattern)
	if err != nil {
		return schema.Result{}, nil, err
	}
	return schema.Check(files, p.cfg.Data.DelimiterRune()), files, nil
}

// laneOf maps a request to its lane. Cluster and embed own an engine each;
// fusion replaces the dataset both engines read.
func laneOf(req Request) string {
	return string(req.Kind())
}

// execute is the job handler for every unit kind
func (p *Pipeline) execute(ctx context.Context, job *async.Job, emit pulse.ProgressEmitter) (interface{}, error) {
	switch req := job.Payload.(type) {
	case FuseRequest:
		return p.track(ctx, req.Kind(), "", req.Dir, nil, func(ctx context.Context, run *ledger.Run, rep *Report) error {
			return p.fuse(ctx, req, emit, rep)
		})
	case ClusterRequest:
		cfg := p.cfg.Cluster
		if req.Config != nil {
			cfg = *req.Config
		}
		return p.track(ctx, req.Kind(), cfg.Algorithm, req.Dir, clusterParams(cfg), func(ctx context.Context, run *ledger.Run, rep *Report) error {
			return p.cluster(ctx, req, cfg, run, emit, rep)
		})
	case EmbedRequest:
		cfg := p.cfg.Embed
		if req.Config != nil {
			cfg = *req.Config
		}
		input := req.Dir
		if req.Custom != "" {
			input = req.Custom
		}
		return p.track(ctx, req.Kind(), cfg.Algorithm, input, embedParams(cfg), func(ctx context.Context, run *ledger.Run, rep *Report) error {
			return p.embed(ctx, req, cfg, run, emit, rep)
		})
	case ComposeRequest:
		return p.track(ctx, req.Kind(), "", req.Dir, nil, func(ctx context.Context, run *ledger.Run, rep *Report) error {
			return p.compose(ctx, req, run, emit, rep)
		})
	case SplitRequest:
		input := req.File
		if input == "" {
			input = req.Folder
		}
		params := map[string]interface{}{"columns": req.Columns, "rows": len(req.Rows), "categories": req.Categories}
		return p.track(ctx, req.Kind(), "", input, params, func(ctx context.Context, run *ledger.Run, rep *Report) error {
			return p.split(ctx, req, run, emit, rep)
		})
	case MapRequest:
		params := map[string]interface{}{"mapping": req.Mapping}
		return p.track(ctx, req.Kind(), "", req.Dir, params, func(ctx context.Context, run *ledger.Run, rep *Report) error {
			return p.mapLabels(ctx, req, run, emit, rep)
		})
	default:
		return nil, errors.InputErrorf("unsupported request %T", job.Payload)
	}
}

type unitFunc func(ctx context.Context, run *ledger.Run, rep *Report) error

// track opens a ledger run around body and closes it with the outcome.
// Ledger trouble is logged, never allowed to fail the unit.
func (p *Pipeline) track(ctx context.Context, kind ledger.Kind, algorithm, input string, params interface{}, body unitFunc) (*Report, error) {
	if abs, err := filepath.Abs(input); err == nil && input != "" {
		input = abs
	}
	run := &ledger.Run{Kind: kind, Algorithm: algorithm, InputPath: input}
	if params != nil {
		if data, err := json.Marshal(params); err == nil {
			run.Params = string(data)
		}
	}

	recorded := false
	if p.ledger != nil {
		if err := p.ledger.Begin(ctx, run); err != nil {
			p.logger.Warnw("Run not recorded", logger.FieldError, err)
		} else {
			recorded = true
		}
	}
	if run.ID == "" {
		id, err := ledger.NewRunID(kind)
		if err != nil {
			return nil, err
		}
		run.ID = id
	}

	ctx = logger.WithRunID(ctx, run.ID)
	log := logger.FromContext(ctx, p.logger).With("kind", kind)
	start := time.Now()
	rep := &Report{RunID: run.ID, Kind: kind, Algorithm: algorithm, Input: input}

	err := body(ctx, run, rep)
	rep.Duration = time.Since(start)

	// the unit's context may already be cancelled; the record must still land
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Warnw("Unit failed", logger.FieldError, err, logger.FieldErrorKind, string(errors.KindOf(err)))
		if recorded {
			if lerr := p.ledger.Fail(recordCtx, run.ID, err); lerr != nil {
				log.Warnw("Failed to record run failure", logger.FieldError, lerr)
			}
		}
		return nil, err
	}

	if recorded {
		outcome := ledger.Outcome{
			OutputDir: rep.OutputDir,
			NRows:     rep.Rows,
			NClusters: rep.Clusters,
			Artifacts: ledgerArtifacts(rep),
		}
		if lerr := p.ledger.Complete(recordCtx, run.ID, outcome); lerr != nil {
			log.Warnw("Failed to record run completion", logger.FieldError, lerr)
		}
	}
	log.Infow("Unit completed",
		logger.FieldOutputDir, rep.OutputDir,
		logger.FieldDurationMS, rep.Duration.Milliseconds())
	return rep, nil
}

// stage opens a timestamped staging directory under base/sub
func (p *Pipeline) stage(base, sub, runID string) (*output.Stage, error) {
	target := output.Timestamped(base, sub, p.now(), p.cfg.Output.TimestampFormat)
	return output.Begin(target, runID, p.logger)
}

// commit finishes a staged directory unless ctx was cancelled meanwhile
func (p *Pipeline) commit(ctx context.Context, st *output.Stage, m *output.Manifest, rep *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.RunID = rep.RunID
	m.Kind = string(rep.Kind)
	m.Algorithm = rep.Algorithm
	m.Input = rep.Input
	m.Version = version.Get().Version
	m.CreatedAt = p.now().UTC()
	final, artifacts, err := st.Commit(m)
	if err != nil {
		return err
	}
	rep.OutputDir = final
	rep.Artifacts = artifacts
	return nil
}

func ledgerArtifacts(rep *Report) []ledger.Artifact {
	if rep.OutputDir == "" {
		return nil
	}
	out := make([]ledger.Artifact, 0, len(rep.Artifacts)+1)
	for _, a := range rep.Artifacts {
		out = append(out, ledger.Artifact{Name: a.Name, Kind: artifactKind(a.Name), SizeBytes: a.SizeBytes})
	}
	if info, err := os.Stat(filepath.Join(rep.OutputDir, output.ManifestFile)); err == nil {
		out = append(out, ledger.Artifact{Name: output.ManifestFile, Kind: "manifest", SizeBytes: info.Size()})
	}
	return out
}

func artifactKind(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image"
	case ".yaml":
		return "manifest"
	default:
		return "table"
	}
}
