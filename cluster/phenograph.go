package cluster

import (
	"context"
	"math/rand/v2"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/logger"
	"github.com/cytofkit/cytofkit/matrix"
)

// phenograph is the graph-community variant: a Jaccard-weighted
// shared-neighbour graph over the k nearest neighbours of every row,
// partitioned by Louvain modularity. The cluster count follows the data.
type phenograph struct {
	cfg    am.PhenographConfig
	logger *zap.SugaredLogger
}

func newPhenograph(cfg am.ClusterConfig) Clusterer {
	return &phenograph{cfg: cfg.Phenograph, logger: logger.ComponentLogger("cluster").With(logger.FieldVariant, "phenograph")}
}

func (p *phenograph) Name() string { return "phenograph" }

func (p *phenograph) Cluster(ctx context.Context, x *mat.Dense) ([]int, error) {
	n, _ := x.Dims()
	if p.cfg.K < 1 || p.cfg.K > n-1 {
		return nil, errors.InputErrorf("phenograph k=%d must be between 1 and rows-1 (%d)", p.cfg.K, n-1)
	}
	resolution := p.cfg.Resolution
	if resolution <= 0 {
		resolution = 1
	}

	nb, err := matrix.KNN(ctx, x, p.cfg.K)
	if err != nil {
		return nil, err
	}
	g := jaccardGraph(nb)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := &louvainSource{pcg: pcgFor(p.cfg.Seed)}
	reduced := community.Modularize(g, resolution, src)
	comms := reduced.Communities()

	labels, err := communityLabels(comms, n)
	if err != nil {
		return nil, err
	}
	p.logger.Debugw("Louvain finished",
		logger.FieldClusters, len(comms),
		"modularity", community.Q(reduced, nil, resolution))
	return labels, nil
}

// jaccardGraph links every row to its neighbours, weighting each edge by the
// Jaccard index of the two rows' neighbour sets. Edges with no shared
// neighbours keep the smallest positive weight so the kNN topology survives.
func jaccardGraph(nb [][]matrix.Neighbor) *simple.WeightedUndirectedGraph {
	n := len(nb)
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < n; i++ {
		g.AddNode(simple.Node(i))
	}

	sets := make([]map[int]struct{}, n)
	for i, list := range nb {
		s := make(map[int]struct{}, len(list)+1)
		s[i] = struct{}{}
		for _, m := range list {
			s[m.Index] = struct{}{}
		}
		sets[i] = s
	}

	for i, list := range nb {
		for _, m := range list {
			j := m.Index
			if j == i || g.HasEdgeBetween(int64(i), int64(j)) {
				continue
			}
			w := jaccard(sets[i], sets[j])
			if w <= 0 {
				w = 1 / float64(2*len(sets[i]))
			}
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(i), simple.Node(j), w))
		}
	}
	return g
}

func jaccard(a, b map[int]struct{}) float64 {
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// communityLabels numbers communities by descending size, ties broken by
// smallest member, so the largest community gets the lowest label.
func communityLabels(comms [][]graph.Node, n int) ([]int, error) {
	type group struct {
		members []int
		first   int
	}
	groups := make([]group, 0, len(comms))
	for _, c := range comms {
		g := group{first: n}
		for _, node := range c {
			id := int(node.ID())
			g.members = append(g.members, id)
			g.first = min(g.first, id)
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(a, b int) bool {
		if len(groups[a].members) != len(groups[b].members) {
			return len(groups[a].members) > len(groups[b].members)
		}
		return groups[a].first < groups[b].first
	})

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for li, g := range groups {
		for _, id := range g.members {
			labels[id] = li
		}
	}
	for i, l := range labels {
		if l < 0 {
			return nil, errors.ExecutionErrorf("community detection left row %d unassigned", i)
		}
	}
	return labels, nil
}

// louvainSource adapts a PCG generator to the random source community
// detection draws node order from.
type louvainSource struct {
	pcg *rand.PCG
}

func (s *louvainSource) Uint64() uint64 { return s.pcg.Uint64() }

func (s *louvainSource) Seed(seed uint64) { s.pcg.Seed(seed, 0) }

func pcgFor(seed *int64) *rand.PCG {
	if seed == nil {
		return rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return rand.NewPCG(uint64(*seed), 0x9e3779b97f4a7c15)
}
