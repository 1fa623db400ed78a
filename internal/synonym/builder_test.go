package synonym

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversekit/kbresolve/internal/backend"
	"github.com/conversekit/kbresolve/internal/entity"
	kberrors "github.com/conversekit/kbresolve/internal/errors"
	"github.com/conversekit/kbresolve/internal/normalize"
)

// fakeBackend records upserts and can inject per-document failures.
type fakeBackend struct {
	mu       sync.Mutex
	docs     map[string]backend.Document
	failIDs  map[string]bool
	batchErr error
	batches  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		docs:    make(map[string]backend.Document),
		failIDs: make(map[string]bool),
	}
}

func (f *fakeBackend) IndexExists(name string) (bool, error) { return true, nil }
func (f *fakeBackend) CreateIndex(name string) error         { return nil }
func (f *fakeBackend) DeleteIndex(name string) error         { return nil }
func (f *fakeBackend) DocCount(name string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.docs)), nil
}
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) BulkUpsert(ctx context.Context, name string, docs []backend.Document) ([]backend.Failure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	var failures []backend.Failure
	for _, d := range docs {
		if f.failIDs[d.ID] {
			failures = append(failures, backend.Failure{DocID: d.ID, Err: fmt.Errorf("injected")})
			continue
		}
		f.docs[d.ID] = d
	}
	return failures, nil
}

func (f *fakeBackend) Search(ctx context.Context, name string, params backend.SearchParams) ([]backend.GroupedHit, error) {
	return nil, nil
}

func (f *fakeBackend) GetByID(ctx context.Context, name, id string) (*backend.Document, error) {
	return nil, nil
}

var _ backend.Backend = (*fakeBackend)(nil)

func newTestBuilder(be backend.Backend, cfg Config) *Builder {
	return NewBuilder("city", "synonym_city", normalize.Default(), be, cfg)
}

func TestBuild_RegistersCnameAndWhitelistAliases(t *testing.T) {
	// Given: one record with an alias
	b := newTestBuilder(newFakeBackend(), Config{})

	tables, err := b.Build([]entity.CanonicalItem{
		{ID: "1", Cname: "Seattle", Whitelist: []string{"SEA", "Emerald City"}},
	})
	require.NoError(t, err)

	// Then: the cname and every whitelist entry resolve to it
	for _, alias := range []string{"seattle", "sea", "emerald city"} {
		cnames, ok := tables.Cnames(alias)
		require.True(t, ok, "alias %q not registered", alias)
		assert.Equal(t, []string{"Seattle"}, cnames)
	}
	assert.Len(t, tables.Items("Seattle"), 1)
}

func TestBuild_AmbiguousSynonymKeepsBothCnames(t *testing.T) {
	// Given: two records claiming the same alias
	b := newTestBuilder(newFakeBackend(), Config{})

	tables, err := b.Build([]entity.CanonicalItem{
		{ID: "1", Cname: "NYC"},
		{ID: "2", Cname: "New York City", Whitelist: []string{"NYC"}},
	})
	require.NoError(t, err)

	// Then: both cnames survive, in discovery order
	cnames, ok := tables.Cnames("nyc")
	require.True(t, ok)
	assert.Equal(t, []string{"NYC", "New York City"}, cnames)
}

func TestBuild_DuplicateCnameIsLegal(t *testing.T) {
	// Given: two distinct records sharing a display name
	b := newTestBuilder(newFakeBackend(), Config{})

	tables, err := b.Build([]entity.CanonicalItem{
		{ID: "1", Cname: "Springfield", Extra: map[string]any{"state": "IL"}},
		{ID: "2", Cname: "Springfield", Extra: map[string]any{"state": "MA"}},
	})
	require.NoError(t, err)

	// Then: both are kept under the same cname in mapping order
	items := tables.Items("Springfield")
	require.Len(t, items, 2)
	assert.Equal(t, "IL", items[0].Extra["state"])
	assert.Equal(t, "MA", items[1].Extra["state"])
}

func TestBuild_DuplicateIDFailsBeforeBackendWrite(t *testing.T) {
	// Given: a mapping that reuses an id
	fake := newFakeBackend()
	b := newTestBuilder(fake, Config{})

	_, err := b.Build([]entity.CanonicalItem{
		{ID: "1", Cname: "Seattle"},
		{ID: "1", Cname: "Tacoma"},
	})

	// Then: the build aborts with the duplicate-id error, backend untouched
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, kberrors.ErrDuplicateIdentifier))
	assert.Equal(t, 0, fake.batches)
}

func TestBuild_SkipsEmptyNormalizedAliases(t *testing.T) {
	b := newTestBuilder(newFakeBackend(), Config{})

	tables, err := b.Build([]entity.CanonicalItem{
		{Cname: "Seattle", Whitelist: []string{"!!!"}},
	})
	require.NoError(t, err)

	_, ok := tables.Cnames("")
	assert.False(t, ok)
	assert.Equal(t, 1, tables.SynonymCount())
}

func TestPush_CountsOnlySuccesses(t *testing.T) {
	// Given: a backend that rejects one document
	fake := newFakeBackend()
	fake.failIDs["2"] = true
	b := newTestBuilder(fake, Config{})

	count, err := b.Push(context.Background(), []entity.CanonicalItem{
		{ID: "1", Cname: "Seattle"},
		{ID: "2", Cname: "Tacoma"},
		{ID: "3", Cname: "Portland"},
	})

	// Then: the batch continues past the failure
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPush_StreamsInBatches(t *testing.T) {
	// Given: more records than one batch holds
	fake := newFakeBackend()
	b := newTestBuilder(fake, Config{BatchSize: 10, MaxInFlight: 1})

	records := make([]entity.CanonicalItem, 25)
	for i := range records {
		records[i] = entity.CanonicalItem{ID: fmt.Sprintf("id%d", i), Cname: fmt.Sprintf("City %d", i)}
	}

	count, err := b.Push(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 25, count)
	assert.Equal(t, 3, fake.batches)
}

func TestPush_AbortsBetweenBatchesOnCancel(t *testing.T) {
	// Given: an already-cancelled context
	fake := newFakeBackend()
	b := newTestBuilder(fake, Config{BatchSize: 5, MaxInFlight: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := make([]entity.CanonicalItem, 20)
	for i := range records {
		records[i] = entity.CanonicalItem{ID: fmt.Sprintf("id%d", i), Cname: "X"}
	}

	_, err := b.Push(ctx, records)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPush_BatchLevelErrorPropagates(t *testing.T) {
	fake := newFakeBackend()
	fake.batchErr = kberrors.New(kberrors.ErrCodeBackendUnavailable, "down", nil)
	b := newTestBuilder(fake, Config{})

	_, err := b.Push(context.Background(), []entity.CanonicalItem{{ID: "1", Cname: "Seattle"}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, kberrors.ErrBackendUnavailable))
}

func TestPush_BatchErrorNotMaskedByCancellation(t *testing.T) {
	// Given: many single-doc batches against a backend that is down
	fake := newFakeBackend()
	fake.batchErr = kberrors.New(kberrors.ErrCodeBackendUnavailable, "down", nil)
	b := newTestBuilder(fake, Config{BatchSize: 1, MaxInFlight: 1})

	records := make([]entity.CanonicalItem, 50)
	for i := range records {
		records[i] = entity.CanonicalItem{ID: fmt.Sprintf("id%d", i), Cname: "X"}
	}

	// When: the first failure cancels the group mid-stream
	count, err := b.Push(context.Background(), records)

	// Then: the backend error survives, not the cancellation it triggered
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, kberrors.ErrBackendUnavailable),
		"got %v, want backend-unavailable", err)
	assert.Equal(t, 0, count)
}

func TestPush_AssignsStableIDsToRecordsWithoutOne(t *testing.T) {
	// Given: records without ids, including exact duplicates
	fake := newFakeBackend()
	b := newTestBuilder(fake, Config{})

	records := []entity.CanonicalItem{
		{Cname: "Pad Thai"},
		{Cname: "Pad Thai"},
		{Cname: "Pad Thai"},
		{Cname: "Pad See Ew"},
	}

	count, err := b.Push(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Then: every duplicate past the first got its own suffix
	n, err := fake.DocCount("synonym_city")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	// And: a second push upserts rather than duplicating
	_, err = b.Push(context.Background(), records)
	require.NoError(t, err)
	n, err = fake.DocCount("synonym_city")
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}
