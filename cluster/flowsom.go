package cluster

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

// Learning rate decays linearly between these over training
const (
	somAlphaStart = 0.05
	somAlphaEnd   = 0.01
	somRadiusQ    = 0.67
)

// flowsom is the self-organising-grid variant: a SOM trained over the
// rows, then average-linkage metaclustering of the grid nodes.
type flowsom struct {
	cfg    am.FlowSOMConfig
	logger *zap.SugaredLogger
}

func newFlowSOM(cfg am.ClusterConfig) Clusterer {
	return &flowsom{cfg: cfg.FlowSOM, logger: logger.ComponentLogger("cluster").With(logger.FieldVariant, "flowsom")}
}

func (f *flowsom) Name() string { return "flowsom" }

func (f *flowsom) Cluster(ctx context.Context, x *mat.Dense) ([]int, error) {
	n, _ := x.Dims()
	nodes := f.cfg.XDim * f.cfg.YDim
	if f.cfg.XDim < 1 || f.cfg.YDim < 1 {
		return nil, errors.InputErrorf("flowsom grid %dx%d must be at least 1x1", f.cfg.XDim, f.cfg.YDim)
	}
	if f.cfg.NClusters < 1 || f.cfg.NClusters > nodes {
		return nil, errors.ExecutionErrorf("flowsom cannot form %d metaclusters from %d grid nodes", f.cfg.NClusters, nodes)
	}

	codes, err := f.train(ctx, x)
	if err != nil {
		return nil, err
	}

	node := make([]int, n)
	for i := 0; i < n; i++ {
		node[i], _ = closest(x.RawRowView(i), codes)
	}

	meta := averageLinkage(codes, f.cfg.NClusters)
	if distinct(meta) != f.cfg.NClusters {
		return nil, errors.ExecutionErrorf("metaclustering produced %d clusters, expected %d", distinct(meta), f.cfg.NClusters)
	}

	labels := make([]int, n)
	for i, nd := range node {
		labels[i] = meta[nd]
	}
	return labels, nil
}

// train fits the codebook. Each of RLen passes visits every row in a random
// order; the neighbourhood radius shrinks from the 0.67 quantile of grid
// distances to zero.
func (f *flowsom) train(ctx context.Context, x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	nodes := f.cfg.XDim * f.cfg.YDim
	rng := newRand(f.cfg.Seed)

	// codebook starts from distinct rows, repeating only when rows are scarce
	codes := mat.NewDense(nodes, d, nil)
	perm := rng.Perm(n)
	for j := 0; j < nodes; j++ {
		i := perm[j%n]
		if j >= n {
			i = rng.IntN(n)
		}
		codes.SetRow(j, x.RawRowView(i))
	}

	grid := gridDistances(f.cfg.XDim, f.cfg.YDim)
	r0 := radiusStart(grid)

	rlen := max(f.cfg.RLen, 1)
	total := float64(rlen * n)
	step := 0
	progress := rate.Sometimes{Interval: 2 * time.Second}
	delta := make([]float64, d)

	for pass := 0; pass < rlen; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, i := range rng.Perm(n) {
			frac := float64(step) / total
			alpha := somAlphaStart - (somAlphaStart-somAlphaEnd)*frac
			radius := r0 * (1 - frac)
			row := x.RawRowView(i)
			winner, _ := closest(row, codes)
			for j := 0; j < nodes; j++ {
				if grid[winner][j] > radius {
					continue
				}
				c := codes.RawRowView(j)
				floats.SubTo(delta, row, c)
				floats.AddScaled(c, alpha, delta)
			}
			step++
		}
		progress.Do(func() {
			f.logger.Debugw("SOM pass finished", logger.FieldIteration, pass+1, "radius", r0*(1-float64(step)/total))
		})
	}
	return codes, nil
}

// gridDistances is the Chebyshev distance between every pair of grid nodes
func gridDistances(xdim, ydim int) [][]float64 {
	n := xdim * ydim
	out := make([][]float64, n)
	for a := 0; a < n; a++ {
		out[a] = make([]float64, n)
		ax, ay := a%xdim, a/xdim
		for b := 0; b < n; b++ {
			bx, by := b%xdim, b/xdim
			out[a][b] = math.Max(math.Abs(float64(ax-bx)), math.Abs(float64(ay-by)))
		}
	}
	return out
}

func radiusStart(grid [][]float64) float64 {
	all := make([]float64, 0, len(grid)*len(grid))
	for _, row := range grid {
		all = append(all, row...)
	}
	sort.Float64s(all)
	return stat.Quantile(somRadiusQ, stat.LinInterp, all, nil)
}

// averageLinkage merges the rows of codes bottom-up, always joining the two
// clusters with the smallest mean pairwise distance, until k remain. It
// returns the cluster index of every row.
func averageLinkage(codes *mat.Dense, k int) []int {
	m, _ := codes.Dims()
	dist := make([][]float64, m)
	for a := 0; a < m; a++ {
		dist[a] = make([]float64, m)
		for b := 0; b < m; b++ {
			dist[a][b] = math.Sqrt(matrix.SqDist(codes.RawRowView(a), codes.RawRowView(b)))
		}
	}

	members := make([][]int, m)
	for i := range members {
		members[i] = []int{i}
	}
	active := m
	for active > k {
		ba, bb, best := -1, -1, math.Inf(1)
		for a := 0; a < m; a++ {
			if members[a] == nil {
				continue
			}
			for b := a + 1; b < m; b++ {
				if members[b] == nil {
					continue
				}
				var sum float64
				for _, i := range members[a] {
					for _, j := range members[b] {
						sum += dist[i][j]
					}
				}
				avg := sum / float64(len(members[a])*len(members[b]))
				if avg < best {
					ba, bb, best = a, b, avg
				}
			}
		}
		members[ba] = append(members[ba], members[bb]...)
		members[bb] = nil
		active--
	}

	out := make([]int, m)
	label := 0
	for _, group := range members {
		if group == nil {
			continue
		}
		for _, i := range group {
			out[i] = label
		}
		label++
	}
	return out
}

func distinct(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}
