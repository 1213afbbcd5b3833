package definition

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jdziat/jobsuite/pkg/core"
	"github.com/jdziat/jobsuite/pkg/internal/handler"
	"github.com/jdziat/jobsuite/pkg/job"
	"github.com/jdziat/jobsuite/pkg/security"
)

// Registry maps leaf kinds to job functions.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*handler.Handler
}

// NewRegistry creates a registry holding the builtin kinds.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.MustRegister("shell", Shell)
	r.MustRegister("sleep", Sleep)
	return r
}

// NewEmptyRegistry creates a registry without builtins.
func NewEmptyRegistry() *Registry {
	return &Registry{handlers: make(map[string]*handler.Handler)}
}

// Register adds a job function under kind, replacing an earlier one.
// The function must have one of the signatures
//
//	func(ctx context.Context, u job.Updater, args T) error
//	func(ctx context.Context, u job.Updater) error
//	func(ctx context.Context, args T) error
//
// Arguments are decoded from the job's "with" block with mapstructure
// (weak typing, durations as strings) and validated with `validate` tags.
func (r *Registry) Register(kind string, fn any) error {
	if kind == KindSync || kind == KindAsync {
		return &core.ConfigurationError{Err: fmt.Errorf("kind %q is reserved", kind)}
	}
	if err := security.ValidateJobID(kind); err != nil {
		return &core.ConfigurationError{Err: fmt.Errorf("invalid kind %q: %w", kind, err)}
	}
	h, err := handler.NewHandler(fn)
	if err != nil {
		return &core.ConfigurationError{Err: fmt.Errorf("kind %q: %w", kind, err)}
	}

	r.mu.Lock()
	r.handlers[kind] = h
	r.mu.Unlock()
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(kind string, fn any) {
	if err := r.Register(kind, fn); err != nil {
		panic(err)
	}
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Executor binds the function registered under kind to args.
func (r *Registry) Executor(kind string, args map[string]any) (job.Executor, error) {
	r.mu.RLock()
	h, ok := r.handlers[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
	return h.Bind(args)
}
