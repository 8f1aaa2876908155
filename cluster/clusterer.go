// Package cluster assigns every row of a fused dataset to a cluster using
// one of a closed set of interchangeable variants, then summarises and
// exports the assignment.
package cluster

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
)

// Clusterer is the contract every variant satisfies: given a standardized
// matrix it returns one raw integer label per row. Raw labels may be any
// integers; the engine densifies them. A variant owns no state beyond its
// parameters and never stores results.
type Clusterer interface {
	Name() string
	Cluster(ctx context.Context, x *mat.Dense) ([]int, error)
}

// Factory builds a variant from the cluster configuration
type Factory func(cfg am.ClusterConfig) Clusterer

// Registry maps variant names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in variants
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("kmeans", newKMeans)
	r.Register("phenograph", newPhenograph)
	r.Register("flowsom", newFlowSOM)
	return r
}

// Register adds a variant. Panics if the name is already registered.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic("cluster variant already registered: " + name)
	}
	r.factories[name] = f
}

// New builds the named variant. An unknown name is reported as
// unavailable; no other variant is substituted.
func (r *Registry) New(name string, cfg am.ClusterConfig) (Clusterer, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		err := errors.UnavailableErrorf("clustering variant %q is not available", name)
		return nil, errors.WithHintf(err, "available variants: %v", r.Names())
	}
	return f(cfg), nil
}

// Names returns the registered variant names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Densify renumbers raw labels to 1..n in ascending raw-label order and
// returns the new labels and n.
func Densify(raw []int) ([]int, int) {
	distinct := make(map[int]int)
	for _, l := range raw {
		distinct[l] = 0
	}
	keys := make([]int, 0, len(distinct))
	for l := range distinct {
		keys = append(keys, l)
	}
	sort.Ints(keys)
	for i, l := range keys {
		distinct[l] = i + 1
	}
	out := make([]int, len(raw))
	for i, l := range raw {
		out[i] = distinct[l]
	}
	return out, len(keys)
}

// newRand returns a generator seeded from seed, or from the runtime's
// entropy when seed is nil.
func newRand(seed *int64) *rand.Rand {
	return rand.New(pcgFor(seed))
}
