// Package resolver implements the entity canonicalization and resolution
// engine: exact resolution over an in-memory synonym table and ranked fuzzy
// resolution over the search backend, behind a single Predict facade.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/conversekit/kbresolve/internal/backend"
	"github.com/conversekit/kbresolve/internal/entity"
	"github.com/conversekit/kbresolve/internal/normalize"
	"github.com/conversekit/kbresolve/internal/synonym"
)

// IndexPrefix namespaces synonym indexes in the backend.
const IndexPrefix = "synonym_"

// Source supplies the mapping records for one entity type. It is re-read on
// every fit so mapping-file edits take effect without restarting.
type Source interface {
	Records() ([]entity.CanonicalItem, error)
}

// Config tunes a resolver.
type Config struct {
	// TopK is how many fuzzy candidates are returned (default 10).
	TopK int

	// BatchSize and MaxInFlight bound backend ingestion during fit.
	BatchSize   int
	MaxInFlight int

	// MaxGroups and GroupSample bound the grouped fuzzy search.
	MaxGroups   int
	GroupSample int

	// CacheSize is the resolution cache capacity (default 512 entries).
	CacheSize int
}

// DefaultConfig returns the standard resolver tuning.
func DefaultConfig() Config {
	return Config{
		TopK:        10,
		BatchSize:   50,
		MaxInFlight: 2,
		MaxGroups:   backend.DefaultMaxGroups,
		GroupSample: backend.DefaultGroupSample,
		CacheSize:   512,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	if c.MaxGroups <= 0 {
		c.MaxGroups = d.MaxGroups
	}
	if c.GroupSample <= 0 {
		c.GroupSample = d.GroupSample
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	return c
}

// Resolver resolves mentions of one entity type to canonical records.
//
// Reads (Predict) are safe for concurrent use. Fit serializes against
// itself per resolver and publishes rebuilt tables atomically, so in-flight
// reads see either the old tables or the new ones, never a half-built set.
type Resolver struct {
	entityType string
	indexName  string
	system     bool
	normalize  normalize.Func
	backend    backend.Backend
	lifecycle  *Lifecycle
	source     Source
	config     Config

	fitMu  sync.Mutex
	tables atomic.Pointer[synonym.Tables]
	cache  *lru.Cache[string, Result]
}

// New creates a resolver for one entity type.
func New(entityType string, be backend.Backend, lifecycle *Lifecycle, source Source, normalizer normalize.Func, cfg Config) *Resolver {
	if normalizer == nil {
		normalizer = normalize.Default()
	}
	cfg = cfg.withDefaults()
	cache, _ := lru.New[string, Result](cfg.CacheSize)
	return &Resolver{
		entityType: entityType,
		indexName:  IndexPrefix + entityType,
		system:     entity.IsSystemType(entityType),
		normalize:  normalizer,
		backend:    be,
		lifecycle:  lifecycle,
		source:     source,
		config:     cfg,
		cache:      cache,
	}
}

// EntityType returns the entity type this resolver serves.
func (r *Resolver) EntityType() string {
	return r.entityType
}

// IndexName returns the backend index this resolver reads.
func (r *Resolver) IndexName() string {
	return r.indexName
}

// Fit rebuilds the in-memory tables and the backend index from the mapping
// source. With clean set the backend index is deleted and recreated first;
// otherwise documents are upserted over whatever is already there.
//
// Concurrent fits on the same resolver are serialized; fits on different
// entity types are independent.
func (r *Resolver) Fit(ctx context.Context, clean bool) error {
	if r.system {
		// System entities are pre-resolved; there is nothing to build.
		return nil
	}

	r.fitMu.Lock()
	defer r.fitMu.Unlock()

	slog.Info("fit_started",
		slog.String("entity_type", r.entityType),
		slog.Bool("clean", clean))

	records, err := r.source.Records()
	if err != nil {
		return err
	}

	builder := synonym.NewBuilder(r.entityType, r.indexName, r.normalize, r.backend, synonym.Config{
		BatchSize:   r.config.BatchSize,
		MaxInFlight: r.config.MaxInFlight,
	})

	// Build validates the whole mapping (duplicate ids abort here) before
	// the backend is touched.
	tables, err := builder.Build(records)
	if err != nil {
		return err
	}

	if err := r.lifecycle.Rebuild(r.indexName, clean); err != nil {
		return err
	}

	count, err := builder.Push(ctx, records)
	if err != nil {
		return fmt.Errorf("indexing %s mapping failed: %w", r.entityType, err)
	}

	// Publish the new tables in one step so concurrent reads never observe
	// a half-populated table.
	r.tables.Store(tables)
	r.cache.Purge()

	slog.Info("fit_completed",
		slog.String("entity_type", r.entityType),
		slog.Int("indexed", count),
		slog.Int("synonyms", tables.SynonymCount()))
	return nil
}

// Load loads the entity mapping and prepares the resolver for prediction.
func (r *Resolver) Load(ctx context.Context) error {
	return r.Fit(ctx, false)
}

// Predict resolves a mention. System entities pass through unchanged; with
// exactOnly the synonym-table path is used, otherwise the ranked fuzzy path.
func (r *Resolver) Predict(ctx context.Context, ent entity.Entity, exactOnly bool) (Result, error) {
	if r.system || ent.IsSystem() {
		return Passthrough(ent.Value), nil
	}
	if exactOnly {
		return r.resolveExact(ent), nil
	}
	return r.resolveFuzzy(ctx, ent)
}

// PredictProba is reserved for a future statistical resolver that can emit
// calibrated probabilities. No such model exists yet, so this returns
// nothing rather than dressing search scores up as probabilities.
func (r *Resolver) PredictProba(ctx context.Context, ent entity.Entity) ([]Candidate, error) {
	return nil, nil
}

// resolveExact looks the normalized mention up in the synonym table.
// Misses are soft: the original text comes back as an Unresolved result and
// the miss is logged, never an error.
func (r *Resolver) resolveExact(ent entity.Entity) Result {
	normed := r.normalize(ent.Text)
	cacheKey := "exact\x00" + normed
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached
	}

	tables := r.tables.Load()
	if tables == nil {
		slog.Warn("resolution_miss",
			slog.String("entity_type", r.entityType),
			slog.String("text", ent.Text),
			slog.String("reason", "no tables loaded"))
		return Unresolved(ent.Text)
	}

	cnames, ok := tables.Cnames(normed)
	if !ok {
		slog.Warn("resolution_miss",
			slog.String("entity_type", r.entityType),
			slog.String("text", ent.Text))
		return Unresolved(ent.Text)
	}

	if len(cnames) > 1 {
		slog.Info("ambiguous_resolution",
			slog.String("entity_type", r.entityType),
			slog.String("text", ent.Text),
			slog.Int("cnames", len(cnames)))
	}

	var items []entity.CanonicalItem
	for _, cname := range cnames {
		for _, item := range tables.Items(cname) {
			items = append(items, item.Projection())
		}
	}

	result := ExactMatches(items)
	r.cache.Add(cacheKey, result)
	return result
}

// resolveFuzzy queries the backend with the boosted disjunctive query and
// returns the top-k candidate groups. Backend unavailability and a missing
// index are fatal to the call: an empty result here would be
// indistinguishable from "no match".
func (r *Resolver) resolveFuzzy(ctx context.Context, ent entity.Entity) (Result, error) {
	normed := r.normalize(ent.Text)
	cacheKey := "fuzzy\x00" + normed
	if cached, ok := r.cache.Get(cacheKey); ok {
		return cached, nil
	}

	hits, err := r.backend.Search(ctx, r.indexName, backend.SearchParams{
		Query:       normed,
		MaxGroups:   r.config.MaxGroups,
		GroupSample: r.config.GroupSample,
	})
	if err != nil {
		return Result{}, err
	}

	if len(hits) > r.config.TopK {
		hits = hits[:r.config.TopK]
	}
	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, Candidate{
			Cname:    h.Cname,
			Score:    h.TopScore,
			HitCount: h.HitCount,
		})
	}

	result := RankedCandidates(candidates)
	r.cache.Add(cacheKey, result)
	return result, nil
}
