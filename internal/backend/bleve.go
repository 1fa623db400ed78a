package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	kberrors "github.com/conversekit/kbresolve/internal/errors"
	"github.com/conversekit/kbresolve/internal/normalize"
)

// Index field names. The *_exact fields hold pre-normalized values so a
// normalized mention matches them as a single keyword term; the *_ngram
// fields re-index the raw value under the edge-n-gram analyzer.
const (
	fieldCname          = "cname"
	fieldCnameExact     = "cname_exact"
	fieldCnameNgram     = "cname_ngram"
	fieldWhitelist      = "whitelist"
	fieldWhitelistExact = "whitelist_exact"
	fieldWhitelistNgram = "whitelist_ngram"
	fieldRecordID       = "record_id"
)

// maxSearchSize bounds how many raw hits a grouped search pulls from Bleve.
const maxSearchSize = 2000

// synonymDoc is the document structure for Bleve indexing.
type synonymDoc struct {
	Cname          string   `json:"cname"`
	CnameExact     string   `json:"cname_exact"`
	CnameNgram     string   `json:"cname_ngram"`
	Whitelist      []string `json:"whitelist"`
	WhitelistExact []string `json:"whitelist_exact"`
	WhitelistNgram []string `json:"whitelist_ngram"`
	RecordID       string   `json:"record_id"`
}

// Boosts are the relative clause weights for the fuzzy disjunction.
// Exact must stay strictly above Text, and Text above Ngram, or the ranking
// invariant (exact-normalized match outranks partial match) breaks.
type Boosts struct {
	Exact float64
	Text  float64
	Ngram float64
}

// DefaultBoosts returns the standard clause weighting.
func DefaultBoosts() Boosts {
	return Boosts{Exact: 10, Text: 2, Ngram: 1}
}

// BleveBackend implements Backend on embedded Bleve indexes, one per entity
// type. With an empty dir all indexes live in memory, which is what tests
// use.
type BleveBackend struct {
	dir       string
	normalize normalize.Func
	boosts    Boosts

	mu     sync.RWMutex
	open   map[string]bleve.Index
	closed bool
}

// New creates a Bleve-backed search backend rooted at dir. An empty dir
// keeps all indexes in memory.
func New(dir string, normalizer normalize.Func, boosts Boosts) *BleveBackend {
	if normalizer == nil {
		normalizer = normalize.Default()
	}
	return &BleveBackend{
		dir:       dir,
		normalize: normalizer,
		boosts:    boosts,
		open:      make(map[string]bleve.Index),
	}
}

// indexPath returns the on-disk location of a named index.
func (b *BleveBackend) indexPath(name string) string {
	return filepath.Join(b.dir, name+".bleve")
}

// IndexExists reports whether the named index has been created.
func (b *BleveBackend) IndexExists(name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("backend is closed")
	}
	if _, ok := b.open[name]; ok {
		return true, nil
	}
	if b.dir == "" {
		return false, nil
	}
	if _, err := os.Stat(b.indexPath(name)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat index %s: %w", name, err)
	}
	return true, nil
}

// CreateIndex creates the named index with the fixed analysis configuration.
func (b *BleveBackend) CreateIndex(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	if _, ok := b.open[name]; ok {
		return fmt.Errorf("index %q already exists", name)
	}

	im, err := createIndexMapping()
	if err != nil {
		return fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if b.dir == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		path := b.indexPath(name)
		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("index %q already exists", name)
		}
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = bleve.New(path, im)
	}
	if err != nil {
		return kberrors.New(kberrors.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to create index %q: %v", name, err), err)
	}

	b.open[name] = idx
	slog.Info("index_created", slog.String("index", name))
	return nil
}

// DeleteIndex removes the named index and its on-disk data.
func (b *BleveBackend) DeleteIndex(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("backend is closed")
	}
	if idx, ok := b.open[name]; ok {
		if err := idx.Close(); err != nil {
			slog.Warn("index_close_failed",
				slog.String("index", name),
				slog.String("error", err.Error()))
		}
		delete(b.open, name)
	}
	if b.dir != "" {
		if err := os.RemoveAll(b.indexPath(name)); err != nil {
			return fmt.Errorf("failed to remove index %s: %w", name, err)
		}
	}
	slog.Info("index_deleted", slog.String("index", name))
	return nil
}

// getIndex returns the cached handle for a named index, lazily opening it
// from disk on first use.
func (b *BleveBackend) getIndex(name string) (bleve.Index, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, fmt.Errorf("backend is closed")
	}
	if idx, ok := b.open[name]; ok {
		b.mu.RUnlock()
		return idx, nil
	}
	b.mu.RUnlock()

	if b.dir == "" {
		return nil, kberrors.New(kberrors.ErrCodeIndexNotFound,
			fmt.Sprintf("index %q does not exist", name), nil)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("backend is closed")
	}
	if idx, ok := b.open[name]; ok {
		return idx, nil
	}

	idx, err := bleve.Open(b.indexPath(name))
	if err == bleve.ErrorIndexPathDoesNotExist {
		return nil, kberrors.New(kberrors.ErrCodeIndexNotFound,
			fmt.Sprintf("index %q does not exist", name), err)
	}
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeBackendUnavailable,
			fmt.Sprintf("failed to open index %q: %v", name, err), err)
	}

	b.open[name] = idx
	return idx, nil
}

// document projects a Document into the multi-view index shape.
func (b *BleveBackend) document(d Document) synonymDoc {
	wlExact := make([]string, len(d.Whitelist))
	for i, w := range d.Whitelist {
		wlExact[i] = b.normalize(w)
	}
	return synonymDoc{
		Cname:          d.Cname,
		CnameExact:     b.normalize(d.Cname),
		CnameNgram:     d.Cname,
		Whitelist:      d.Whitelist,
		WhitelistExact: wlExact,
		WhitelistNgram: d.Whitelist,
		RecordID:       d.ID,
	}
}

// BulkUpsert indexes documents, overwriting existing ones with the same ID.
// Individual document failures are collected, not fatal to the batch.
func (b *BleveBackend) BulkUpsert(ctx context.Context, name string, docs []Document) ([]Failure, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	idx, err := b.getIndex(name)
	if err != nil {
		return nil, err
	}

	var failures []Failure
	batch := idx.NewBatch()
	for _, doc := range docs {
		if doc.ID == "" {
			failures = append(failures, Failure{DocID: doc.ID, Err: fmt.Errorf("document has no id")})
			continue
		}
		if doc.Cname == "" {
			failures = append(failures, Failure{DocID: doc.ID, Err: fmt.Errorf("document has no cname")})
			continue
		}
		if err := batch.Index(doc.ID, b.document(doc)); err != nil {
			failures = append(failures, Failure{DocID: doc.ID, Err: err})
		}
	}

	if err := idx.Batch(batch); err != nil {
		return failures, kberrors.New(kberrors.ErrCodeIndexFailed,
			fmt.Sprintf("bulk upsert into %q failed: %v", name, err), err)
	}
	return failures, nil
}

// Search runs the boosted disjunctive query and groups hits by canonical
// name. Groups come back in descending top-score order.
func (b *BleveBackend) Search(ctx context.Context, name string, params SearchParams) ([]GroupedHit, error) {
	p := params.withDefaults()
	if strings.TrimSpace(p.Query) == "" {
		return []GroupedHit{}, nil
	}

	idx, err := b.getIndex(name)
	if err != nil {
		return nil, err
	}

	clause := func(field string, boost float64) query.Query {
		q := bleve.NewMatchQuery(p.Query)
		q.SetField(field)
		q.SetBoost(boost)
		return q
	}
	dq := bleve.NewDisjunctionQuery(
		clause(fieldCnameExact, b.boosts.Exact),
		clause(fieldWhitelistExact, b.boosts.Exact),
		clause(fieldCname, b.boosts.Text),
		clause(fieldWhitelist, b.boosts.Text),
		clause(fieldCnameNgram, b.boosts.Ngram),
		clause(fieldWhitelistNgram, b.boosts.Ngram),
	)

	req := bleve.NewSearchRequest(dq)
	size := p.MaxGroups * p.GroupSample
	if size > maxSearchSize {
		size = maxSearchSize
	}
	req.Size = size
	req.Fields = []string{fieldCname}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeSearchFailed,
			fmt.Sprintf("search in %q failed: %v", name, err), err)
	}

	// Hits arrive in descending score order, so first-seen group order is
	// already top-score order and the first hit of a group is its best.
	groups := make(map[string]*GroupedHit, p.MaxGroups)
	order := make([]string, 0, p.MaxGroups)
	for _, hit := range res.Hits {
		cname, _ := hit.Fields[fieldCname].(string)
		if cname == "" {
			continue
		}
		g, ok := groups[cname]
		if !ok {
			if len(order) >= p.MaxGroups {
				continue
			}
			g = &GroupedHit{Cname: cname, TopScore: hit.Score}
			groups[cname] = g
			order = append(order, cname)
		}
		if g.HitCount < p.GroupSample {
			g.HitCount++
		}
	}

	out := make([]GroupedHit, 0, len(order))
	for _, cname := range order {
		out = append(out, *groups[cname])
	}
	return out, nil
}

// GetByID fetches a single document by its ID. Returns nil when not found.
func (b *BleveBackend) GetByID(ctx context.Context, name, id string) (*Document, error) {
	idx, err := b.getIndex(name)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{fieldCname, fieldWhitelist, fieldRecordID}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, kberrors.New(kberrors.ErrCodeSearchFailed,
			fmt.Sprintf("lookup in %q failed: %v", name, err), err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	hit := res.Hits[0]
	cname, _ := hit.Fields[fieldCname].(string)
	return &Document{
		ID:        hit.ID,
		Cname:     cname,
		Whitelist: fieldStrings(hit.Fields[fieldWhitelist]),
	}, nil
}

// DocCount returns the number of documents in the named index.
func (b *BleveBackend) DocCount(name string) (uint64, error) {
	idx, err := b.getIndex(name)
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Close closes all open index handles.
func (b *BleveBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for name, idx := range b.open {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index %s: %w", name, err)
		}
	}
	b.open = make(map[string]bleve.Index)
	return firstErr
}

// fieldStrings decodes a stored field that may be a single string or a list.
func fieldStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Verify interface implementation.
var _ Backend = (*BleveBackend)(nil)
