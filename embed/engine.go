package embed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/dataset"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

// Source supplies the fused dataset in fused mode
type Source interface {
	Dataset() (*dataset.Fused, error)
}

// Mode says where the engine takes its matrix from
type Mode string

const (
	ModeFused  Mode = "fused"
	ModeCustom Mode = "custom"
)

// Result is one embedding run, row-aligned to the matrix it came from
type Result struct {
	Algorithm string
	Mode      Mode
	Coords    *mat.Dense
	Columns   []string

	// Exactly one of Dataset and Custom is set
	Dataset *dataset.Fused
	Custom  *Custom

	Duration time.Duration
}

// state ties every derived value to the data it was derived from
type state struct {
	mode         Mode
	custom       *Custom
	data         *dataset.Fused
	standardized *matrix.Standardized
	result       *Result
}

// Engine embeds either the fused dataset or a custom file. Switching source
// replaces all derived state in one step.
type Engine struct {
	source   Source
	registry *Registry
	logger   *zap.SugaredLogger

	busy  sync.Mutex
	state atomic.Pointer[state]
}

// NewEngine creates an engine in fused mode
func NewEngine(source Source, registry *Registry, log *zap.SugaredLogger) *Engine {
	if registry == nil {
		registry = DefaultRegistry()
	}
	e := &Engine{source: source, registry: registry, logger: logger.OrComponent(log, "embed")}
	e.state.Store(&state{mode: ModeFused})
	return e
}

// UseFused switches to the fused dataset, dropping custom-mode state
func (e *Engine) UseFused() {
	e.state.Store(&state{mode: ModeFused})
}

// UseCustom switches to c, dropping fused-mode state
func (e *Engine) UseCustom(c *Custom) {
	e.state.Store(&state{mode: ModeCustom, custom: c})
}

// Mode returns the current source mode
func (e *Engine) Mode() Mode { return e.state.Load().mode }

// Preprocess standardizes the current source's matrix and caches it
func (e *Engine) Preprocess() (*matrix.Standardized, error) {
	s, err := e.prepare()
	if err != nil {
		return nil, err
	}
	return s.standardized, nil
}

func (e *Engine) prepare() (*state, error) {
	cur := e.state.Load()
	switch cur.mode {
	case ModeCustom:
		if cur.standardized != nil {
			return cur, nil
		}
		next := &state{mode: ModeCustom, custom: cur.custom, standardized: matrix.Standardize(cur.custom.Features())}
		if !e.state.CompareAndSwap(cur, next) {
			return nil, errors.DataStateErrorf("embedding source changed during preprocessing")
		}
		return next, nil
	default:
		d, err := e.source.Dataset()
		if err != nil {
			return nil, err
		}
		if cur.data == d && cur.standardized != nil {
			return cur, nil
		}
		fm, err := d.FeatureMatrix()
		if err != nil {
			return nil, err
		}
		next := &state{mode: ModeFused, data: d, standardized: matrix.Standardize(fm)}
		if !e.state.CompareAndSwap(cur, next) {
			return nil, errors.DataStateErrorf("embedding source changed during preprocessing")
		}
		return next, nil
	}
}

// Run embeds the current source with the named variant. A second Run while
// one is in flight fails with ErrEngineBusy.
func (e *Engine) Run(ctx context.Context, algorithm string, cfg am.EmbedConfig) (*Result, error) {
	if !e.busy.TryLock() {
		return nil, errors.EngineBusy()
	}
	defer e.busy.Unlock()

	components := cfg.NComponents
	if components == 0 {
		components = 2
	}
	if components < 2 {
		return nil, errors.InputErrorf("embedding needs at least 2 components, got %d", components)
	}

	variant, err := e.registry.New(algorithm, cfg)
	if err != nil {
		return nil, err
	}
	s, err := e.prepare()
	if err != nil {
		return nil, err
	}
	std := s.standardized

	log := logger.FromContext(ctx, e.logger).With(logger.FieldAlgorithm, algorithm, "mode", s.mode)
	log.Infow("Embedding started", logger.FieldRows, std.Rows(), logger.FieldComponents, components)
	start := time.Now()

	coords, err := variant.Embed(ctx, std.Dense(), components)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if r, c := coords.Dims(); r != std.Rows() || c != components {
		return nil, errors.ExecutionErrorf("%s returned a %dx%d embedding for %d rows and %d components", algorithm, r, c, std.Rows(), components)
	}

	res := &Result{
		Algorithm: algorithm,
		Mode:      s.mode,
		Coords:    coords,
		Columns:   ColumnNames(algorithm, components),
		Dataset:   s.data,
		Custom:    s.custom,
		Duration:  time.Since(start),
	}
	e.state.CompareAndSwap(s, &state{mode: s.mode, custom: s.custom, data: s.data, standardized: std, result: res})

	log.Infow("Embedding finished", logger.FieldDurationMS, res.Duration.Milliseconds())
	return res, nil
}

// Result returns the last run for the current source
func (e *Engine) Result() (*Result, error) {
	s := e.state.Load()
	if s.result == nil {
		return nil, errors.DataStateErrorf("no embedding result: run an embedding variant first")
	}
	if s.mode == ModeFused {
		if d, err := e.source.Dataset(); err != nil || d != s.data {
			return nil, errors.DataStateErrorf("embedding result is stale: the dataset was reloaded since the run")
		}
	}
	return s.result, nil
}
