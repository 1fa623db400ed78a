package synonym

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/conversekit/kbresolve/internal/backend"
	"github.com/conversekit/kbresolve/internal/entity"
	kberrors "github.com/conversekit/kbresolve/internal/errors"
	"github.com/conversekit/kbresolve/internal/normalize"
)

// Config bounds the ingestion stream.
type Config struct {
	// BatchSize is how many documents go into one backend batch.
	BatchSize int

	// MaxInFlight is how many batches may be indexing concurrently.
	// Kept small to bound backend load, not to maximize fan-out.
	MaxInFlight int
}

// DefaultConfig returns the standard ingestion bounds.
func DefaultConfig() Config {
	return Config{
		BatchSize:   50,
		MaxInFlight: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	return c
}

// Builder constructs the in-memory tables for one entity type and streams
// the same records into the ranked search backend.
type Builder struct {
	entityType string
	indexName  string
	normalize  normalize.Func
	backend    backend.Backend
	config     Config
}

// NewBuilder creates a builder for one entity type.
func NewBuilder(entityType, indexName string, normalizer normalize.Func, be backend.Backend, cfg Config) *Builder {
	if normalizer == nil {
		normalizer = normalize.Default()
	}
	return &Builder{
		entityType: entityType,
		indexName:  indexName,
		normalize:  normalizer,
		backend:    be,
		config:     cfg.withDefaults(),
	}
}

// Build produces the item and synonym tables from the mapping records.
//
// Duplicate cnames and ambiguous synonyms are normal and only logged; a
// duplicate id aborts the build with ErrDuplicateIdentifier before anything
// touches the backend.
func (b *Builder) Build(records []entity.CanonicalItem) (*Tables, error) {
	tables := NewTables()
	seenIDs := make(map[string]struct{}, len(records))

	for _, item := range records {
		if len(tables.Items(item.Cname)) > 0 {
			slog.Debug("duplicate_cname",
				slog.String("entity_type", b.entityType),
				slog.String("cname", item.Cname))
		}
		if item.ID != "" {
			if _, dup := seenIDs[item.ID]; dup {
				return nil, kberrors.New(kberrors.ErrCodeDuplicateID,
					fmt.Sprintf("id %q appears multiple times in %q entity mapping", item.ID, b.entityType), nil).
					WithDetail("entity_type", b.entityType).
					WithDetail("id", item.ID).
					WithSuggestion("remove or rename the duplicate record in mapping.json")
			}
			seenIDs[item.ID] = struct{}{}
		}

		tables.addItem(item)
		for _, alias := range item.Aliases() {
			normAlias := b.normalize(alias)
			if normAlias == "" {
				continue
			}
			if ambiguous := tables.addSynonym(normAlias, item.Cname); ambiguous {
				slog.Debug("ambiguous_synonym",
					slog.String("entity_type", b.entityType),
					slog.String("alias", normAlias),
					slog.String("cname", item.Cname))
			}
		}
	}

	slog.Info("tables_built",
		slog.String("entity_type", b.entityType),
		slog.Int("items", tables.ItemCount()),
		slog.Int("synonyms", tables.SynonymCount()))
	return tables, nil
}

// Push streams records into the backend index in bounded batches, returning
// the number of documents indexed successfully. Individual document failures
// are logged and skipped; the stream aborts between batches if the context
// is cancelled.
func (b *Builder) Push(ctx context.Context, records []entity.CanonicalItem) (int, error) {
	docs := b.documents(records)

	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.MaxInFlight)

	for start := 0; start < len(docs); start += b.config.BatchSize {
		// Cooperative abort point between batch submissions. A failed batch
		// cancels gctx too, so drain the group and surface its error rather
		// than the cancellation it caused.
		select {
		case <-gctx.Done():
			if err := g.Wait(); err != nil {
				return int(indexed.Load()), err
			}
			return int(indexed.Load()), gctx.Err()
		default:
		}

		end := start + b.config.BatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		g.Go(func() error {
			failures, err := b.backend.BulkUpsert(gctx, b.indexName, batch)
			if err != nil {
				return err
			}
			for _, f := range failures {
				slog.Error("document_index_failed",
					slog.String("index", b.indexName),
					slog.String("doc_id", f.DocID),
					slog.String("error", f.Err.Error()))
			}
			indexed.Add(int64(len(batch) - len(failures)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(indexed.Load()), err
	}

	count := int(indexed.Load())
	slog.Info("documents_indexed",
		slog.String("index", b.indexName),
		slog.Int("count", count))
	return count, nil
}

// documents converts records to backend documents, assigning stable ids.
// Records without an id get a content-derived one so that re-running a
// non-clean fit upserts instead of duplicating.
func (b *Builder) documents(records []entity.CanonicalItem) []backend.Document {
	docs := make([]backend.Document, 0, len(records))
	used := make(map[string]int, len(records))

	for _, item := range records {
		id := item.ID
		if id == "" {
			id = contentID(item)
		}
		// Identical records (legal duplicates) still need distinct doc ids.
		// The counter is keyed on the base id so the third duplicate gets
		// "-3", not another "-2".
		n := used[id]
		used[id] = n + 1
		if n > 0 {
			id = fmt.Sprintf("%s-%d", id, n+1)
		}

		docs = append(docs, backend.Document{
			ID:        id,
			Cname:     item.Cname,
			Whitelist: item.Whitelist,
		})
	}
	return docs
}

// contentID derives a stable document id from the record's matching surface.
func contentID(item entity.CanonicalItem) string {
	h := sha256.Sum256([]byte(item.Cname + "\x00" + strings.Join(item.Whitelist, "\x00")))
	return hex.EncodeToString(h[:8])
}
