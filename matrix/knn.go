package matrix

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/errors"
)

// Neighbor is one entry of a nearest-neighbour list
type Neighbor struct {
	Index int
	Dist  float64 // Euclidean
}

// knnChunk is the number of query rows handed to one worker at a time
const knnChunk = 64

// KNN returns the k nearest neighbours of every row of x by Euclidean
// distance, excluding the row itself, closest first. Ties break on the
// lower index so results do not depend on scheduling.
func KNN(ctx context.Context, x *mat.Dense, k int) ([][]Neighbor, error) {
	n, _ := x.Dims()
	if k < 1 || k > n-1 {
		return nil, errors.InputErrorf("k=%d nearest neighbours needs between 1 and %d (rows-1)", k, n-1)
	}

	out := make([][]Neighbor, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for lo := 0; lo < n; lo += knnChunk {
		hi := min(lo+knnChunk, n)
		g.Go(func() error {
			cand := make([]Neighbor, 0, n-1)
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				cand = cand[:0]
				ri := x.RawRowView(i)
				for j := 0; j < n; j++ {
					if j == i {
						continue
					}
					cand = append(cand, Neighbor{Index: j, Dist: SqDist(ri, x.RawRowView(j))})
				}
				sort.Slice(cand, func(a, b int) bool {
					if cand[a].Dist != cand[b].Dist {
						return cand[a].Dist < cand[b].Dist
					}
					return cand[a].Index < cand[b].Index
				})
				nb := make([]Neighbor, k)
				copy(nb, cand[:k])
				for m := range nb {
					nb[m].Dist = math.Sqrt(nb[m].Dist)
				}
				out[i] = nb
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SqDist is the squared Euclidean distance between equal-length vectors
func SqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
