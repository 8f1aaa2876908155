package async

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cytofkit/cytofkit/errors"
	"github.com/cytofkit/cytofkit/pulse"
)

// JobHandler executes one type of job.
//
// Handlers must check ctx periodically and return ctx.Err() (or an error
// wrapping it) once it is cancelled; the runner reports such jobs as
// cancelled rather than failed.
type JobHandler interface {
	// Execute runs the job and returns its result. Progress goes to emit.
	Execute(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error)

	// Name returns the handler name used to route jobs
	Name() string
}

// HandlerFunc adapts a function into a JobHandler
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error)
}

// NewHandlerFunc wraps fn as a handler named name
func NewHandlerFunc(name string, fn func(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error)) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

func (h *HandlerFunc) Name() string { return h.name }

func (h *HandlerFunc) Execute(ctx context.Context, job *Job, emit pulse.ProgressEmitter) (interface{}, error) {
	return h.fn(ctx, job, emit)
}

// HandlerRegistry manages job handlers by name.
// Safe for concurrent registration and lookup.
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

// NewHandlerRegistry creates an empty handler registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]JobHandler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a name
func (r *HandlerRegistry) Get(name string) (JobHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, errors.UnavailableErrorf("no handler registered for %q", name)
	}
	return h, nil
}

// Has checks if a handler is registered for a name.
func (r *HandlerRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns all registered handler names, sorted
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
