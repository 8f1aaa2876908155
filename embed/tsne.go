package embed

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

const (
	tsneExaggeration     = 12.0
	tsneExaggerationIter = 250
	tsneMomentumStart    = 0.5
	tsneMomentumEnd      = 0.8
	tsneMinGain          = 0.01
	tsnePerplexityTol    = 1e-5
	tsneMinProb          = 1e-12
	tsneMinLearningRate  = 50.0
	tsneMaxTreeDims      = 3
)

// Gradient methods
const (
	TSNEBarnesHut = "barnes_hut"
	TSNEExact     = "exact"
)

// tsne embeds with t-SNE. Barnes-Hut keeps memory linear in the row count
// by restricting P to nearest neighbours and summarising distant cells of a
// space-partitioning tree; exact computes all pairs.
type tsne struct {
	cfg    am.TSNEConfig
	logger *zap.SugaredLogger
}

func newTSNE(cfg am.EmbedConfig) Embedder {
	return &tsne{cfg: cfg.TSNE, logger: logger.ComponentLogger("embed").With(logger.FieldVariant, "tsne")}
}

func (t *tsne) Name() string { return "tsne" }

// gradientFunc writes the KL gradient at positions y into grad and returns
// a function reporting the current cost
type gradientFunc func(ctx context.Context, y []float64, exag float64, grad []float64) (func() float64, error)

func (t *tsne) Embed(ctx context.Context, x *mat.Dense, components int) (*mat.Dense, error) {
	n, _ := x.Dims()
	if t.cfg.Perplexity <= 0 || t.cfg.Perplexity >= float64(n) {
		return nil, errors.InputErrorf("tsne perplexity %.4g must be positive and below the row count %d", t.cfg.Perplexity, n)
	}
	if components < 1 {
		return nil, errors.InputErrorf("tsne needs at least one output component, got %d", components)
	}

	method := t.cfg.Method
	if method == "" {
		method = TSNEBarnesHut
	}
	var gradient gradientFunc
	switch method {
	case TSNEExact:
		if limit := t.cfg.MaxExactRows; limit > 0 && n > limit {
			return nil, errors.WithHintf(
				errors.InputErrorf("exact tsne over %d rows exceeds embed.tsne.max_exact_rows=%d", n, limit),
				"use method = %q, which needs memory linear in the row count", TSNEBarnesHut)
		}
		p, err := affinities(ctx, x, t.cfg.Perplexity)
		if err != nil {
			return nil, err
		}
		gradient = exactGradient(p, n, components)
	case TSNEBarnesHut:
		if components > tsneMaxTreeDims {
			return nil, errors.WithHintf(
				errors.InputErrorf("barnes_hut tsne supports at most %d components, got %d", tsneMaxTreeDims, components),
				"use method = %q for higher dimensions", TSNEExact)
		}
		angle := t.cfg.Angle
		if angle <= 0 {
			angle = 0.5
		}
		p, err := sparseAffinities(ctx, x, t.cfg.Perplexity)
		if err != nil {
			return nil, err
		}
		gradient = p.gradient(n, components, angle)
	default:
		return nil, errors.InputErrorf("unknown tsne method %q (supported: %s, %s)", method, TSNEBarnesHut, TSNEExact)
	}

	rng := newRand(t.cfg.Seed)
	var y *mat.Dense
	if t.cfg.Init == "random" {
		y = mat.NewDense(n, components, nil)
		for i := 0; i < n; i++ {
			for c := 0; c < components; c++ {
				y.Set(i, c, rng.NormFloat64()*1e-4)
			}
		}
	} else {
		var err error
		if y, err = principalComponents(x, components, rng); err != nil {
			return nil, err
		}
		scaleToStd(y, 1e-4)
	}

	if err := t.optimize(ctx, y.RawMatrix().Data, gradient, learningRate(t.cfg.LearningRate, n)); err != nil {
		return nil, err
	}
	return y, nil
}

// learningRate is the configured rate, or max(n/exaggeration/4, 50) when
// unset so small datasets are not thrown apart during exaggeration
func learningRate(configured float64, n int) float64 {
	if configured > 0 {
		return configured
	}
	return math.Max(float64(n)/tsneExaggeration/4, tsneMinLearningRate)
}

// optimize runs gradient descent with momentum and per-coordinate gains
func (t *tsne) optimize(ctx context.Context, yr []float64, gradient gradientFunc, lr float64) error {
	iters := max(t.cfg.NIter, tsneExaggerationIter)
	update := make([]float64, len(yr))
	gains := make([]float64, len(yr))
	for i := range gains {
		gains[i] = 1
	}
	grad := make([]float64, len(yr))
	progress := rate.Sometimes{Interval: 2 * time.Second}

	for it := 0; it < iters; it++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		exag, momentum := 1.0, tsneMomentumEnd
		if it < tsneExaggerationIter {
			exag, momentum = tsneExaggeration, tsneMomentumStart
		}

		cost, err := gradient(ctx, yr, exag, grad)
		if err != nil {
			return err
		}

		for k := range yr {
			if update[k]*grad[k] < 0 {
				gains[k] += 0.2
			} else {
				gains[k] *= 0.8
			}
			gains[k] = math.Max(gains[k], tsneMinGain)
			update[k] = momentum*update[k] - lr*gains[k]*grad[k]
			yr[k] += update[k]
		}

		progress.Do(func() {
			t.logger.Debugw("tsne iteration",
				logger.FieldIteration, it+1,
				logger.FieldCost, cost())
		})
	}
	return nil
}

// exactGradient evaluates every pair; memory is O(n²)
func exactGradient(p []float64, n, dims int) gradientFunc {
	num := make([]float64, n*n)
	return func(ctx context.Context, yr []float64, exag float64, grad []float64) (func() float64, error) {
		// Student-t kernel
		var sumQ float64
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				d := matrix.SqDist(yr[i*dims:(i+1)*dims], yr[j*dims:(j+1)*dims])
				q := 1 / (1 + d)
				num[i*n+j], num[j*n+i] = q, q
				sumQ += 2 * q
			}
		}
		sumQ = math.Max(sumQ, tsneMinProb)

		for i := range grad {
			grad[i] = 0
		}
		for i := 0; i < n; i++ {
			gi := grad[i*dims : (i+1)*dims]
			yi := yr[i*dims : (i+1)*dims]
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				q := num[i*n+j]
				mult := 4 * (exag*p[i*n+j] - q/sumQ) * q
				yj := yr[j*dims : (j+1)*dims]
				for c := range gi {
					gi[c] += mult * (yi[c] - yj[c])
				}
			}
		}
		return func() float64 { return klDivergence(p, num, sumQ, n) }, nil
	}
}

// affinities returns the symmetric joint probabilities P as a flat n×n
// slice
func affinities(ctx context.Context, x *mat.Dense, perplexity float64) ([]float64, error) {
	n, _ := x.Dims()
	dist := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := matrix.SqDist(x.RawRowView(i), x.RawRowView(j))
			dist[i*n+j], dist[j*n+i] = d, d
		}
	}

	target := math.Log(perplexity)
	cond := make([]float64, n*n)
	for i := 0; i < n; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		conditional(dist[i*n:(i+1)*n], cond[i*n:(i+1)*n], i, target)
	}

	p := make([]float64, n*n)
	norm := 2 * float64(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				p[i*n+j] = math.Max((cond[i*n+j]+cond[j*n+i])/norm, tsneMinProb)
			}
		}
	}
	return p, nil
}

// conditional fills row with the Gaussian conditional distribution over the
// squared distances in dist, skipping index self (-1 skips nothing). The
// bandwidth is found by bisection so the entropy matches target.
func conditional(dist, row []float64, self int, target float64) {
	beta, lo, hi := 1.0, math.Inf(-1), math.Inf(1)
	for step := 0; step < 100; step++ {
		var sum, sumDP float64
		for j := range dist {
			if j == self {
				row[j] = 0
				continue
			}
			row[j] = math.Exp(-dist[j] * beta)
			sum += row[j]
			sumDP += dist[j] * row[j]
		}
		if sum == 0 {
			sum = tsneMinProb
		}
		h := math.Log(sum) + beta*sumDP/sum
		for j := range row {
			row[j] /= sum
		}
		diff := h - target
		if math.Abs(diff) < tsnePerplexityTol {
			return
		}
		if diff > 0 {
			lo = beta
			if math.IsInf(hi, 1) {
				beta *= 2
			} else {
				beta = (beta + hi) / 2
			}
		} else {
			hi = beta
			if math.IsInf(lo, -1) {
				beta /= 2
			} else {
				beta = (beta + lo) / 2
			}
		}
	}
}

func klDivergence(p, num []float64, sumQ float64, n int) float64 {
	var kl float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			q := math.Max(num[i*n+j]/sumQ, tsneMinProb)
			kl += p[i*n+j] * math.Log(p[i*n+j]/q)
		}
	}
	return kl
}
