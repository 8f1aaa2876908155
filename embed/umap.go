package embed

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

const (
	umapSpread           = 1.0
	umapNegativeRate     = 5
	umapLearningRate     = 1.0
	umapGradClip         = 4.0
	umapBandwidthIter    = 64
	umapBandwidthTol     = 1e-5
	umapMinKDistScale    = 1e-3
	umapInitExtent       = 10.0
	umapLargeDatasetRows = 10000
)

// umap builds a fuzzy k-nearest-neighbour graph and lays it out by
// stochastic gradient descent with negative sampling.
type umap struct {
	cfg    am.UMAPConfig
	logger *zap.SugaredLogger
}

func newUMAP(cfg am.EmbedConfig) Embedder {
	return &umap{cfg: cfg.UMAP, logger: logger.ComponentLogger("embed").With(logger.FieldVariant, "umap")}
}

func (u *umap) Name() string { return "umap" }

type edge struct {
	head, tail int
	weight     float64
}

func (u *umap) Embed(ctx context.Context, x *mat.Dense, components int) (*mat.Dense, error) {
	n, _ := x.Dims()
	if n < 3 {
		return nil, errors.InputErrorf("umap needs at least 3 rows, got %d", n)
	}
	if components < 1 {
		return nil, errors.InputErrorf("umap needs at least one output component, got %d", components)
	}
	if u.cfg.MinDist <= 0 || u.cfg.MinDist > umapSpread {
		return nil, errors.InputErrorf("umap min_dist %.4g must be in (0, %g]", u.cfg.MinDist, umapSpread)
	}
	neighbours := u.cfg.NNeighbors
	if neighbours > n {
		u.logger.Warnw("n_neighbors exceeds the row count; using all rows", "n_neighbors", neighbours, logger.FieldRows, n)
		neighbours = n
	}
	if neighbours < 2 {
		return nil, errors.InputErrorf("umap n_neighbors must be at least 2, got %d", u.cfg.NNeighbors)
	}
	epochs := u.cfg.NEpochs
	if epochs <= 0 {
		epochs = 500
		if n > umapLargeDatasetRows {
			epochs = 200
		}
	}

	// the neighbourhood counts the point itself
	nb, err := matrix.KNN(ctx, x, neighbours-1)
	if err != nil {
		return nil, err
	}
	edges := fuzzyGraph(nb, neighbours)

	a, b, err := fitCurve(u.cfg.MinDist)
	if err != nil {
		return nil, err
	}

	rng := newRand(u.cfg.Seed)
	y, err := principalComponents(x, components, rng)
	if err != nil {
		return nil, err
	}
	rescaleColumns(y, umapInitExtent)

	if err := u.layout(ctx, y, edges, epochs, a, b, rng.IntN); err != nil {
		return nil, err
	}
	return y, nil
}

// layout runs the SGD epochs in place on y
func (u *umap) layout(ctx context.Context, y *mat.Dense, edges []edge, epochs int, a, b float64, intn func(int) int) error {
	n, dim := y.Dims()
	yr := y.RawMatrix().Data

	maxW := 0.0
	for _, e := range edges {
		maxW = math.Max(maxW, e.weight)
	}
	// edges too weak to be sampled even once are dropped
	kept := edges[:0]
	for _, e := range edges {
		if e.weight >= maxW/float64(epochs) {
			kept = append(kept, e)
		}
	}
	edges = kept

	perSample := make([]float64, len(edges))
	nextSample := make([]float64, len(edges))
	perNegative := make([]float64, len(edges))
	nextNegative := make([]float64, len(edges))
	for i, e := range edges {
		perSample[i] = maxW / e.weight
		nextSample[i] = perSample[i]
		perNegative[i] = perSample[i] / umapNegativeRate
		nextNegative[i] = perNegative[i]
	}

	progress := rate.Sometimes{Interval: 2 * time.Second}
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := umapLearningRate * (1 - float64(epoch)/float64(epochs))
		ep := float64(epoch)

		for i, e := range edges {
			if nextSample[i] > ep {
				continue
			}
			cur := yr[e.head*dim : (e.head+1)*dim]
			other := yr[e.tail*dim : (e.tail+1)*dim]

			d := matrix.SqDist(cur, other)
			if d > 0 {
				coef := -2 * a * b * math.Pow(d, b-1) / (a*math.Pow(d, b) + 1)
				for c := range cur {
					g := clip(coef * (cur[c] - other[c]))
					cur[c] += g * alpha
					other[c] -= g * alpha
				}
			}
			nextSample[i] += perSample[i]

			negatives := int((ep - nextNegative[i]) / perNegative[i])
			for s := 0; s < negatives; s++ {
				k := intn(n)
				if k == e.head {
					continue
				}
				other := yr[k*dim : (k+1)*dim]
				d := matrix.SqDist(cur, other)
				for c := range cur {
					g := umapGradClip
					if d > 0 {
						coef := 2 * b / ((0.001 + d) * (a*math.Pow(d, b) + 1))
						g = clip(coef * (cur[c] - other[c]))
					}
					cur[c] += g * alpha
				}
			}
			nextNegative[i] += float64(negatives) * perNegative[i]
		}

		progress.Do(func() {
			u.logger.Debugw("umap epoch", logger.FieldIteration, epoch+1, "edges", len(edges))
		})
	}
	return nil
}

// fuzzyGraph turns kNN distances into fuzzy memberships and combines the
// two directions of every edge by probabilistic union.
func fuzzyGraph(nb [][]matrix.Neighbor, neighbours int) []edge {
	n := len(nb)
	target := math.Log2(float64(neighbours))

	var meanAll float64
	for _, list := range nb {
		for _, m := range list {
			meanAll += m.Dist
		}
	}
	meanAll /= float64(n * len(nb[0]))

	directed := make(map[[2]int]float64, n*len(nb[0]))
	for i, list := range nb {
		rho := 0.0
		for _, m := range list {
			if m.Dist > 0 {
				rho = m.Dist
				break
			}
		}

		lo, hi, sigma := 0.0, math.Inf(1), 1.0
		for it := 0; it < umapBandwidthIter; it++ {
			var psum float64
			for _, m := range list {
				if d := m.Dist - rho; d > 0 {
					psum += math.Exp(-d / sigma)
				} else {
					psum++
				}
			}
			if math.Abs(psum-target) < umapBandwidthTol {
				break
			}
			if psum > target {
				hi = sigma
				sigma = (lo + hi) / 2
			} else {
				lo = sigma
				if math.IsInf(hi, 1) {
					sigma *= 2
				} else {
					sigma = (lo + hi) / 2
				}
			}
		}

		var meanI float64
		for _, m := range list {
			meanI += m.Dist
		}
		meanI /= float64(len(list))
		floor := umapMinKDistScale * meanI
		if rho <= 0 {
			floor = umapMinKDistScale * meanAll
		}
		sigma = math.Max(sigma, floor)

		for _, m := range list {
			w := 1.0
			if d := m.Dist - rho; d > 0 && sigma > 0 {
				w = math.Exp(-d / sigma)
			}
			directed[[2]int{i, m.Index}] = w
		}
	}

	edges := make([]edge, 0, 2*len(directed))
	for i := 0; i < n; i++ {
		for _, m := range nb[i] {
			j := m.Index
			wij := directed[[2]int{i, j}]
			wji, reverse := directed[[2]int{j, i}]
			// pairs present both ways are emitted once, from the lower index
			if reverse && j < i {
				continue
			}
			w := wij + wji - wij*wji
			if w <= 0 {
				continue
			}
			edges = append(edges, edge{head: i, tail: j, weight: w}, edge{head: j, tail: i, weight: w})
		}
	}
	return edges
}

// fitCurve finds a and b so that 1/(1+a·d^2b) approximates the target
// membership curve for min_dist.
func fitCurve(minDist float64) (float64, float64, error) {
	const samples = 300
	xs := make([]float64, samples)
	floats.Span(xs, 0, 3*umapSpread)
	ys := make([]float64, samples)
	for i, x := range xs {
		ys[i] = 1
		if x >= minDist {
			ys[i] = math.Exp(-(x - minDist) / umapSpread)
		}
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			a, b := p[0], p[1]
			if a <= 0 || b <= 0 {
				return math.Inf(1)
			}
			var sse float64
			for i, x := range xs {
				r := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
				sse += r * r
			}
			return sse
		},
	}
	res, err := optimize.Minimize(problem, []float64{1.6, 0.9}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, 0, errors.Mark(errors.Wrapf(err, "umap curve fit for min_dist %.4g failed", minDist), errors.ErrAlgorithmExecution)
	}
	return res.X[0], res.X[1], nil
}

// rescaleColumns maps every column of y linearly onto [0, extent]
func rescaleColumns(y *mat.Dense, extent float64) {
	n, c := y.Dims()
	col := make([]float64, n)
	for j := 0; j < c; j++ {
		mat.Col(col, j, y)
		lo, hi := floats.Min(col), floats.Max(col)
		for i, v := range col {
			if hi > lo {
				y.Set(i, j, extent*(v-lo)/(hi-lo))
			} else {
				y.Set(i, j, extent/2)
			}
		}
	}
}

func clip(v float64) float64 {
	return math.Max(-umapGradClip, math.Min(umapGradClip, v))
}
