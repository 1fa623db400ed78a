package resolver

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conversekit/kbresolve/internal/backend"
	"github.com/conversekit/kbresolve/internal/mapping"
	"github.com/conversekit/kbresolve/internal/normalize"
)

// Registry hands out one resolver per entity type, backed by a shared
// backend and mapping loader. Resolvers are cached, so two callers asking
// for the same type get the same instance and their fits serialize on it.
type Registry struct {
	backend   backend.Backend
	lifecycle *Lifecycle
	loader    *mapping.Loader
	normalize normalize.Func
	config    Config

	mu        sync.Mutex
	resolvers map[string]*Resolver
}

// NewRegistry creates a registry over the given backend and mapping loader.
func NewRegistry(be backend.Backend, lifecycle *Lifecycle, loader *mapping.Loader, normalizer normalize.Func, cfg Config) *Registry {
	if normalizer == nil {
		normalizer = normalize.Default()
	}
	return &Registry{
		backend:   be,
		lifecycle: lifecycle,
		loader:    loader,
		normalize: normalizer,
		config:    cfg.withDefaults(),
		resolvers: make(map[string]*Resolver),
	}
}

// Resolver returns the resolver for an entity type, creating it on first use.
func (r *Registry) Resolver(entityType string) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.resolvers[entityType]; ok {
		return res
	}
	res := New(entityType, r.backend, r.lifecycle, r.loader.Source(entityType), r.normalize, r.config)
	r.resolvers[entityType] = res
	return res
}

// EntityTypes lists entity types with a mapping on disk, sorted.
func (r *Registry) EntityTypes() ([]string, error) {
	return r.loader.EntityTypes()
}

// FitAll fits every entity type found in the mapping directory, in parallel.
// The first failure cancels the rest.
func (r *Registry) FitAll(ctx context.Context, clean bool) error {
	types, err := r.EntityTypes()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entityType := range types {
		res := r.Resolver(entityType)
		g.Go(func() error {
			return res.Fit(gctx, clean)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("fit_all_completed", slog.Int("entity_types", len(types)))
	return nil
}

// Loaded lists the entity types a resolver has been created for, sorted.
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]string, 0, len(r.resolvers))
	for t := range r.resolvers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DocCount reports the number of documents in a backend index.
func (r *Registry) DocCount(indexName string) (uint64, error) {
	return r.backend.DocCount(indexName)
}

// Close releases the shared backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}
