// Package backend implements the ranked search backend for synonym documents.
//
// The backend is an embedded Bleve index per entity type. Every synonym
// document is indexed under three analysis views (exact normalized keyword,
// full text, edge-n-gram) so the resolver can issue one disjunctive query
// whose clauses carry descending boosts: an exact normalized match always
// outranks a token match, which outranks a prefix fragment match.
package backend

import (
	"context"
)

// Document is one synonym record in a backend index. Cname and Whitelist are
// indexed under all three analysis views; ID is the stable document key used
// for upserts.
type Document struct {
	ID        string
	Cname     string
	Whitelist []string
}

// Failure reports a single document that could not be indexed during a bulk
// upsert. The batch continues past individual failures.
type Failure struct {
	DocID string
	Err   error
}

// GroupedHit is one candidate group in a fuzzy search response: all hits
// sharing a canonical name, represented by the top-scoring hit's score and
// the number of hits sampled for the group.
type GroupedHit struct {
	Cname    string
	TopScore float64
	HitCount int
}

// SearchParams bounds a grouped fuzzy search.
type SearchParams struct {
	// Query is the normalized mention text.
	Query string

	// MaxGroups caps the number of distinct cname groups considered
	// before ranking. Zero means DefaultMaxGroups.
	MaxGroups int

	// GroupSample caps how many hits are counted per group, bounding tail
	// latency on large synonym sets. Zero means DefaultGroupSample.
	GroupSample int
}

// Default caps for grouped search.
const (
	DefaultMaxGroups   = 100
	DefaultGroupSample = 20
)

func (p SearchParams) withDefaults() SearchParams {
	if p.MaxGroups <= 0 {
		p.MaxGroups = DefaultMaxGroups
	}
	if p.GroupSample <= 0 {
		p.GroupSample = DefaultGroupSample
	}
	return p
}

// Backend is the ranked search primitive the resolution engine is layered on.
//
// Implementations must be safe for concurrent read use; index mutation
// (create, delete, bulk upsert) is serialized by the caller.
type Backend interface {
	// IndexExists reports whether the named index has been created.
	IndexExists(name string) (bool, error)

	// CreateIndex creates the named index with the fixed analysis
	// configuration. Fails if the index already exists.
	CreateIndex(name string) error

	// DeleteIndex removes the named index. Deleting a missing index is a
	// no-op.
	DeleteIndex(name string) error

	// BulkUpsert indexes documents into the named index, overwriting any
	// existing document with the same ID. Per-document failures are
	// returned without aborting the rest of the batch; the error return is
	// reserved for batch-level failures.
	BulkUpsert(ctx context.Context, name string, docs []Document) ([]Failure, error)

	// Search runs a grouped, boosted fuzzy query. Groups are returned in
	// descending top-score order. A missing index fails with
	// ErrIndexNotFound, never an empty result.
	Search(ctx context.Context, name string, params SearchParams) ([]GroupedHit, error)

	// GetByID fetches a single document by its ID. Returns nil if not
	// found.
	GetByID(ctx context.Context, name, id string) (*Document, error)

	// DocCount returns the number of documents in the named index.
	DocCount(name string) (uint64, error)

	// Close releases all open index handles.
	Close() error
}
