// Package embed reduces a feature matrix, either the fused dataset's or one
// loaded from a single file, to a few coordinates per row.
package embed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/cytofkit/cytofkit/am"
	"github.com/cytofkit/cytofkit/errors"
)

// Embedder is the contract every variant satisfies: a standardized matrix
// in, a rows × components coordinate matrix out.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, x *mat.Dense, components int) (*mat.Dense, error)
}

// Factory builds a variant from the embedding configuration
type Factory func(cfg am.EmbedConfig) Embedder

// Registry maps variant names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding tsne and umap
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("tsne", newTSNE)
	r.Register("umap", newUMAP)
	return r
}

// Register adds a variant. Panics if the name is already registered.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic("embedding variant already registered: " + name)
	}
	r.factories[name] = f
}

// New builds the named variant or reports it unavailable
func (r *Registry) New(name string, cfg am.EmbedConfig) (Embedder, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		err := errors.UnavailableErrorf("embedding variant %q is not available", name)
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

// ColumnNames names the coordinate columns of an embedding
func ColumnNames(algorithm string, components int) []string {
	prefix := "Dim"
	switch algorithm {
	case "tsne":
		prefix = "tSNE"
	case "umap":
		prefix = "UMAP"
	}
	out := make([]string, components)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func newRand(seed *int64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(*seed), 0x9e3779b97f4a7c15))
}
