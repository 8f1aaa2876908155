package cluster

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/dataset"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

// Source supplies the dataset an engine works on
type Source interface {
	Dataset() (*dataset.Fused, error)
}

// Result is one clustering run: dense 1-based labels aligned with the rows
// of the dataset they were computed from.
type Result struct {
	Algorithm string
	Labels    []int
	NClusters int
	Dataset   *dataset.Fused
	Features  *matrix.Features
	Duration  time.Duration
}

// state is swapped atomically so a reader never pairs a cache with the
// wrong dataset.
type state struct {
	data         *dataset.Fused
	standardized *matrix.Standardized
	result       *Result
}

// Engine standardizes a dataset's feature matrix, runs variants over it and
// keeps the last result. At most one Run is in flight at a time.
type Engine struct {
	source   Source
	registry *Registry
	logger   *zap.SugaredLogger

	busy  sync.Mutex
	state atomic.Pointer[state]
}

// NewEngine creates an engine over source. A nil registry uses the built-in
// variants.
func NewEngine(source Source, registry *Registry, log *zap.SugaredLogger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Engine{source: source, registry: registry, logger: logger.OrComponent(log, "cluster")}
}

// Preprocess standardizes the current feature matrix and caches it. Calling
// it again for the same dataset returns the cached stage.
func (e *Engine) Preprocess() (*matrix.Standardized, error) {
	s, err := e.prepare()
	if err != nil {
		return nil, err
	}
	return s.standardized, nil
}

func (e *Engine) prepare() (*state, error) {
	d, err := e.source.Dataset()
	if err != nil {
		return nil, err
	}
	if s := e.state.Load(); s != nil && s.data == d && s.standardized != nil {
		return s, nil
	}
	fm, err := d.FeatureMatrix()
	if err != nil {
		return nil, err
	}
	s := &state{data: d, standardized: matrix.Standardize(fm)}
	e.state.Store(s)
	return s, nil
}

// Invalidate drops the cached standardized matrix and the last result
func (e *Engine) Invalidate() {
	e.state.Store(nil)
}

// Run clusters the current dataset with the named variant. A second Run
// while one is in flight fails with ErrEngineBusy.
func (e *Engine) Run(ctx context.Context, algorithm string, cfg am.ClusterConfig) (*Result, error) {
	if !e.busy.TryLock() {
		return nil, errors.EngineBusy()
	}
	defer e.busy.Unlock()

	log := logger.FromContext(ctx, e.logger).With(logger.FieldAlgorithm, algorithm)

	variant, err := e.registry.New(algorithm, cfg)
	if err != nil {
		return nil, err
	}
	s, err := e.prepare()
	if err != nil {
		return nil, err
	}
	std := s.standardized

	start := time.Now()
	log.Infow("Clustering started", logger.FieldRows, std.Rows(), logger.FieldFeatures, std.Cols())
	raw, err := variant.Cluster(ctx, std.Dense())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if len(raw) != std.Rows() {
		return nil, errors.ExecutionErrorf("%s returned %d labels for %d rows", algorithm, len(raw), std.Rows())
	}

	labels, n := Densify(raw)
	res := &Result{
		Algorithm: algorithm,
		Labels:    labels,
		NClusters: n,
		Dataset:   s.data,
		Features:  std.Source(),
		Duration:  time.Since(start),
	}
	// a concurrent Invalidate or reload wins; the result is still returned
	e.state.CompareAndSwap(s, &state{data: s.data, standardized: s.standardized, result: res})

	log.Infow("Clustering finished",
		logger.FieldClusters, n,
		logger.FieldDurationMS, res.Duration.Milliseconds())
	return res, nil
}

// Result returns the last run for the current dataset, or a data state
// error when there is none or the dataset has been replaced since.
func (e *Engine) Result() (*Result, error) {
	s := e.state.Load()
	if s == nil || s.result == nil {
		return nil, errors.DataStateErrorf("no clustering result: run a clustering variant first")
	}
	if d, err := e.source.Dataset(); err != nil || d != s.data {
		return nil, errors.DataStateErrorf("clustering result is stale: the dataset was reloaded since the run")
	}
	return s.result, nil
}

// MarkerMeans summarises the last run
func (e *Engine) MarkerMeans() (*MarkerMeans, error) {
	res, err := e.Result()
	if err != nil {
		return nil, err
	}
	return ComputeMarkerMeans(res.Features, res.Labels)
}
