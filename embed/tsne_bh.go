package embed

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/matrix"
)

const (
	// bhChunk is the number of points one worker handles per gradient step
	bhChunk = 512
	// bhMaxDepth stops splitting cells around near-duplicate points
	bhMaxDepth = 48
)

// sparseP is the symmetric joint probability matrix restricted to each
// row's nearest neighbours, stored row by row with ascending columns
type sparseP struct {
	cols [][]int
	vals [][]float64
}

// sparseAffinities computes P over the min(n-1, 3·perplexity+1) nearest
// neighbours of every row. Memory is O(n·k).
func sparseAffinities(ctx context.Context, x *mat.Dense, perplexity float64) (*sparseP, error) {
	n, _ := x.Dims()
	k := min(n-1, int(3*perplexity+1))
	nn, err := matrix.KNN(ctx, x, k)
	if err != nil {
		return nil, err
	}

	target := math.Log(perplexity)
	rows := make([]map[int]float64, n)
	for i := range rows {
		rows[i] = make(map[int]float64, 2*k)
	}
	dist := make([]float64, k)
	cond := make([]float64, k)
	for i, nb := range nn {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for m, e := range nb {
			dist[m] = e.Dist * e.Dist
		}
		conditional(dist, cond, -1, target)
		for m, e := range nb {
			rows[i][e.Index] += cond[m]
			rows[e.Index][i] += cond[m]
		}
	}

	var total float64
	for _, r := range rows {
		for _, v := range r {
			total += v
		}
	}
	total = math.Max(total, tsneMinProb)

	p := &sparseP{cols: make([][]int, n), vals: make([][]float64, n)}
	for i, r := range rows {
		cols := make([]int, 0, len(r))
		for j := range r {
			cols = append(cols, j)
		}
		sort.Ints(cols)
		vals := make([]float64, len(cols))
		for m, j := range cols {
			vals[m] = r[j] / total
		}
		p.cols[i], p.vals[i] = cols, vals
	}
	return p, nil
}

// gradient returns the Barnes-Hut gradient: attraction over the sparse P,
// repulsion from a tree rebuilt at every step
func (p *sparseP) gradient(n, dims int, angle float64) gradientFunc {
	partial := make([]float64, (n+bhChunk-1)/bhChunk)
	return func(ctx context.Context, yr []float64, exag float64, grad []float64) (func() float64, error) {
		tree := newBHTree(yr, n, dims)
		for i := range grad {
			grad[i] = 0
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for chunk, lo := 0, 0; lo < n; chunk, lo = chunk+1, lo+bhChunk {
			hi := min(lo+bhChunk, n)
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				diff := make([]float64, dims)
				var z float64
				for i := lo; i < hi; i++ {
					z += tree.repulsion(tree.root, i, angle, grad[i*dims:(i+1)*dims], diff)
				}
				partial[chunk] = z
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		// summed in chunk order so results do not depend on scheduling
		var z float64
		for _, v := range partial {
			z += v
		}
		z = math.Max(z, tsneMinProb)

		for i := 0; i < n; i++ {
			gi := grad[i*dims : (i+1)*dims]
			yi := yr[i*dims : (i+1)*dims]
			for c := range gi {
				gi[c] = -gi[c] / z
			}
			for m, j := range p.cols[i] {
				yj := yr[j*dims : (j+1)*dims]
				w := exag * p.vals[i][m] / (1 + matrix.SqDist(yi, yj))
				for c := range gi {
					gi[c] += w * (yi[c] - yj[c])
				}
			}
			for c := range gi {
				gi[c] *= 4
			}
		}
		return func() float64 { return p.kl(yr, dims, z) }, nil
	}
}

// kl is the divergence over the stored pairs, where P is nonzero
func (p *sparseP) kl(yr []float64, dims int, z float64) float64 {
	var kl float64
	for i, cols := range p.cols {
		yi := yr[i*dims : (i+1)*dims]
		for m, j := range cols {
			pij := math.Max(p.vals[i][m], tsneMinProb)
			q := math.Max(1/(1+matrix.SqDist(yi, yr[j*dims:(j+1)*dims]))/z, tsneMinProb)
			kl += pij * math.Log(pij/q)
		}
	}
	return kl
}

// bhNode is a cell of a 2^dims-ary space-partitioning tree
type bhNode struct {
	centre   []float64
	half     float64 // half the side length
	com      []float64
	count    int
	children []*bhNode // nil for a leaf
	points   []int     // leaf contents
}

type bhTree struct {
	dims int
	y    []float64
	root *bhNode
}

func newBHTree(y []float64, n, dims int) *bhTree {
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	for c := range lo {
		lo[c], hi[c] = math.Inf(1), math.Inf(-1)
	}
	for i := 0; i < n; i++ {
		for c := 0; c < dims; c++ {
			v := y[i*dims+c]
			lo[c], hi[c] = math.Min(lo[c], v), math.Max(hi[c], v)
		}
	}
	centre := make([]float64, dims)
	var half float64
	for c := range centre {
		centre[c] = (lo[c] + hi[c]) / 2
		half = math.Max(half, (hi[c]-lo[c])/2)
	}
	half = half*(1+1e-5) + 1e-5

	t := &bhTree{dims: dims, y: y, root: &bhNode{centre: centre, half: half, com: make([]float64, dims)}}
	for i := 0; i < n; i++ {
		t.insert(t.root, i, 0)
	}
	return t
}

func (t *bhTree) point(i int) []float64 { return t.y[i*t.dims : (i+1)*t.dims] }

func (t *bhTree) insert(nd *bhNode, i, depth int) {
	p := t.point(i)
	nd.count++
	for c := range p {
		nd.com[c] += (p[c] - nd.com[c]) / float64(nd.count)
	}

	if nd.children == nil {
		if len(nd.points) == 0 || depth >= bhMaxDepth || samePoint(t.point(nd.points[0]), p) {
			nd.points = append(nd.points, i)
			return
		}
		nd.children = make([]*bhNode, 1<<t.dims)
		old := nd.points
		nd.points = nil
		for _, j := range old {
			t.insertChild(nd, j, depth)
		}
	}
	t.insertChild(nd, i, depth)
}

func (t *bhTree) insertChild(nd *bhNode, i, depth int) {
	p := t.point(i)
	q := 0
	for c := range p {
		if p[c] > nd.centre[c] {
			q |= 1 << c
		}
	}
	ch := nd.children[q]
	if ch == nil {
		h := nd.half / 2
		centre := make([]float64, t.dims)
		for c := range centre {
			if q&(1<<c) != 0 {
				centre[c] = nd.centre[c] + h
			} else {
				centre[c] = nd.centre[c] - h
			}
		}
		ch = &bhNode{centre: centre, half: h, com: make([]float64, t.dims)}
		nd.children[q] = ch
	}
	t.insert(ch, i, depth+1)
}

// repulsion adds Σ_j q_ij²·(y_i - y_j) over the points under nd to force
// and returns Σ_j q_ij, with q_ij = 1/(1+|y_i - y_j|²). A cell whose side
// is small against its distance from y_i counts as one point at its centre
// of mass.
func (t *bhTree) repulsion(nd *bhNode, i int, angle float64, force, diff []float64) float64 {
	if nd == nil || nd.count == 0 {
		return 0
	}
	p := t.point(i)
	var d2 float64
	for c := range diff {
		diff[c] = p[c] - nd.com[c]
		d2 += diff[c] * diff[c]
	}

	if nd.children == nil {
		count := nd.count
		for _, j := range nd.points {
			if j == i {
				count--
			}
		}
		return accumulate(count, d2, diff, force)
	}
	width := 2 * nd.half
	if width*width < angle*angle*d2 {
		return accumulate(nd.count, d2, diff, force)
	}

	var sum float64
	for _, ch := range nd.children {
		sum += t.repulsion(ch, i, angle, force, diff)
	}
	return sum
}

func accumulate(count int, d2 float64, diff, force []float64) float64 {
	if count == 0 {
		return 0
	}
	q := 1 / (1 + d2)
	w := float64(count) * q
	for c := range force {
		force[c] += w * q * diff[c]
	}
	return w
}

func samePoint(a, b []float64) bool {
	for c := range a {
		if a[c] != b[c] {
			return false
		}
	}
	return true
}
