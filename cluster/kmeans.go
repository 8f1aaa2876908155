package cluster

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

// kmeans is the centroid-partition variant: k-means++ seeding, Lloyd
// refinement, best of NInit restarts by inertia.
type kmeans struct {
	cfg    am.KMeansConfig
	logger *zap.SugaredLogger
}

func newKMeans(cfg am.ClusterConfig) Clusterer {
	return &kmeans{cfg: cfg.KMeans, logger: logger.ComponentLogger("cluster").With(logger.FieldVariant, "kmeans")}
}

func (k *kmeans) Name() string { return "kmeans" }

func (k *kmeans) Cluster(ctx context.Context, x *mat.Dense) ([]int, error) {
	n, _ := x.Dims()
	kc := k.cfg.NClusters
	if kc < 1 || kc > n {
		return nil, errors.InputErrorf("kmeans n_clusters=%d must be between 1 and the row count %d", kc, n)
	}
	maxIter := max(k.cfg.MaxIter, 1)
	nInit := max(k.cfg.NInit, 1)

	rng := newRand(k.cfg.Seed)
	progress := rate.Sometimes{Interval: 2 * time.Second}

	var best []int
	bestInertia := math.Inf(1)
	for run := 0; run < nInit; run++ {
		labels, inertia, iters, err := lloyd(ctx, x, kmeansPlusPlus(x, kc, rng), maxIter)
		if err != nil {
			return nil, err
		}
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
		progress.Do(func() {
			k.logger.Debugw("kmeans restart finished",
				logger.FieldIteration, run+1, "iterations", iters, logger.FieldCost, inertia)
		})
	}
	return best, nil
}

// kmeansPlusPlus picks k initial centroids, each new one drawn with
// probability proportional to its squared distance from the nearest chosen.
func kmeansPlusPlus(x *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, d := x.Dims()
	cent := mat.NewDense(k, d, nil)
	cent.SetRow(0, x.RawRowView(rng.IntN(n)))

	dist := make([]float64, n)
	for i := range dist {
		dist[i] = matrix.SqDist(x.RawRowView(i), cent.RawRowView(0))
	}
	for c := 1; c < k; c++ {
		total := floats.Sum(dist)
		pick := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, w := range dist {
				target -= w
				if target <= 0 {
					pick = i
					break
				}
			}
		}
		cent.SetRow(c, x.RawRowView(pick))
		for i := range dist {
			dist[i] = math.Min(dist[i], matrix.SqDist(x.RawRowView(i), cent.RawRowView(c)))
		}
	}
	return cent
}

// lloyd refines centroids until assignments stop changing or maxIter is
// reached. An empty cluster is re-seeded with the point farthest from its
// current centroid.
func lloyd(ctx context.Context, x, cent *mat.Dense, maxIter int) ([]int, float64, int, error) {
	n, _ := x.Dims()
	k, _ := cent.Dims()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	counts := make([]int, k)
	nearest := make([]float64, n)

	iter := 0
	for ; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, iter, err
		}
		changed := false
		for i := 0; i < n; i++ {
			c, dist := closest(x.RawRowView(i), cent)
			nearest[i] = dist
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		cent.Zero()
		for c := range counts {
			counts[c] = 0
		}
		for i, c := range labels {
			floats.Add(cent.RawRowView(c), x.RawRowView(i))
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				far := floats.MaxIdx(nearest)
				cent.SetRow(c, x.RawRowView(far))
				nearest[far] = 0
				continue
			}
			floats.Scale(1/float64(counts[c]), cent.RawRowView(c))
		}
	}

	var inertia float64
	for i, c := range labels {
		inertia += matrix.SqDist(x.RawRowView(i), cent.RawRowView(c))
	}
	return labels, inertia, iter, nil
}

func closest(row []float64, cent *mat.Dense) (int, float64) {
	k, _ := cent.Dims()
	best, bestDist := 0, math.Inf(1)
	for c := 0; c < k; c++ {
		if dist := matrix.SqDist(row, cent.RawRowView(c)); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best, bestDist
}
