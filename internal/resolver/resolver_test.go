package resolver

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conversekit/kbresolve/internal/backend"
	"github.com/conversekit/kbresolve/internal/entity"
	kberrors "github.com/conversekit/kbresolve/internal/errors"
)

// sliceSource serves records from memory so tests can mutate the mapping
// between fits.
type sliceSource struct {
	mu      sync.Mutex
	records []entity.CanonicalItem
	err     error
}

func (s *sliceSource) Records() ([]entity.CanonicalItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]entity.CanonicalItem, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *sliceSource) set(records []entity.CanonicalItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

func newTestResolver(t *testing.T, entityType string, records []entity.CanonicalItem) (*Resolver, *sliceSource) {
	t.Helper()
	be := backend.New("", nil, backend.DefaultBoosts())
	t.Cleanup(func() { _ = be.Close() })

	source := &sliceSource{records: records}
	r := New(entityType, be, NewLifecycle(be, ""), source, nil, Config{})
	return r, source
}

func cityRecords() []entity.CanonicalItem {
	return []entity.CanonicalItem{
		{ID: "sea", Cname: "Seattle", Whitelist: []string{"SEA", "Emerald City"}},
		{ID: "pdx", Cname: "Portland", Whitelist: []string{"PDX"}},
		{ID: "nyc1", Cname: "NYC"},
		{ID: "nyc2", Cname: "New York City", Whitelist: []string{"NYC", "Big Apple"}},
	}
}

func TestResolver_ExactMatchByWhitelist(t *testing.T) {
	// Given: a fitted resolver
	r, _ := newTestResolver(t, "city", cityRecords())
	require.NoError(t, r.Fit(context.Background(), true))

	// When: resolving a whitelist alias exactly
	result, err := r.Predict(context.Background(), entity.Entity{Text: "SEA", Type: "city"}, true)
	require.NoError(t, err)

	// Then: the canonical record comes back
	require.Equal(t, KindExactMatches, result.Kind)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Seattle", result.Items[0].Cname)
}

func TestResolver_ExactMatchStripsWhitelist(t *testing.T) {
	r, _ := newTestResolver(t, "city", cityRecords())
	require.NoError(t, r.Fit(context.Background(), true))

	result, err := r.Predict(context.Background(), entity.Entity{Text: "emerald city", Type: "city"}, true)
	require.NoError(t, err)

	require.Equal(t, KindExactMatches, result.Kind)
	require.Len(t, result.Items, 1)
	assert.Nil(t, result.Items[0].Whitelist, "whitelist is a matching artifact, not output")
	assert.Equal(t, "sea", result.Items[0].ID)
}

func TestResolver_ExactMissIsSoft(t *testing.T) {
	// Given: a fitted resolver
	r, _ := newTestResolver(t, "city", cityRecords())
	require.NoError(t, r.Fit(context.Background(), true))

	// When: resolving a mention no record claims
	result, err := r.Predict(context.Background(), entity.Entity{Text: "Gotham", Type: "city"}, true)

	// Then: no error, the raw text passes through unresolved
	require.NoError(t, err)
	assert.Equal(t, KindUnresolved, result.Kind)
	assert.Equal(t, "Gotham", result.Text)
}

func TestResolver_AmbiguousAliasReturnsAllOwners(t *testing.T) {
	// Given: "NYC" is both a cname and another record's whitelist entry
	r, _ := newTestResolver(t, "city", cityRecords())
	require.NoError(t, r.Fit(context.Background(), true))

	result, err := r.Predict(context.Background(), entity.Entity{Text: "nyc", Type: "city"}, true)
	require.NoError(t, err)

	// Then: both owners come back, in mapping discovery order
	require.Equal(t, KindExactMatches, result.Kind)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "NYC", result.Items[0].Cname)
	assert.Equal(t, "New York City", result.Items[1].Cname)
}

func TestResolver_FuzzyRanksExactTextFirst(t *testing.T) {
	// Given: a fitted resolver with similar names
	r, _ := newTestResolver(t, "city", []entity.CanonicalItem{
		{ID: "1", Cname: "Seattle"},
		{ID: "2", Cname: "Seatac"},
	})
	require.NoError(t, r.Fit(context.Background(), true))

	result, err := r.Predict(context.Background(), entity.Entity{Text: "seattle", Type: "city"}, false)
	require.NoError(t, err)

	require.Equal(t, KindRankedCandidates, result.Kind)
	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, "Seattle", result.Candidates[0].Cname)
}

func TestResolver_FuzzyTruncatesToTopK(t *testing.T) {
	// Given: more matching cnames than top-k allows
	var records []entity.CanonicalItem
	for i := 0; i < 15; i++ {
		records = append(records, entity.CanonicalItem{
			Cname: "Pad Thai Variant " + string(rune('A'+i)),
		})
	}
	be := backend.New("", nil, backend.DefaultBoosts())
	t.Cleanup(func() { _ = be.Close() })
	r := New("dish", be, NewLifecycle(be, ""), &sliceSource{records: records}, nil, Config{TopK: 10})
	require.NoError(t, r.Fit(context.Background(), true))

	result, err := r.Predict(context.Background(), entity.Entity{Text: "pad thai", Type: "dish"}, false)
	require.NoError(t, err)

	require.Equal(t, KindRankedCandidates, result.Kind)
	assert.Len(t, result.Candidates, 10)

	// And: candidate cnames are unique and scores descend
	seen := make(map[string]bool)
	for i, c := range result.Candidates {
		assert.False(t, seen[c.Cname], "duplicate candidate %q", c.Cname)
		seen[c.Cname] = true
		if i > 0 {
			assert.LessOrEqual(t, c.Score, result.Candidates[i-1].Score)
		}
	}
}

func TestResolver_FuzzyBeforeFitFailsLoudly(t *testing.T) {
	// Given: a resolver whose index was never built
	r, _ := newTestResolver(t, "city", cityRecords())

	// When: querying the fuzzy path
	_, err := r.Predict(context.Background(), entity.Entity{Text: "seattle", Type: "city"}, false)

	// Then: a missing index is an error, not an empty result
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, kberrors.ErrIndexNotFound))
}

func TestResolver_FitIsIdempotent(t *testing.T) {
	r, _ := newTestResolver(t, "city", cityRecords())

	require.NoError(t, r.Fit(context.Background(), true))
	require.NoError(t, r.Fit(context.Background(), false))
	require.NoError(t, r.Fit(context.Background(), true))

	result, err := r.Predict(context.Background(), entity.Entity{Text: "SEA", Type: "city"}, true)
	require.NoError(t, err)
	assert.Equal(t, KindExactMatches, result.Kind)
}

func TestResolver_ConcurrentFitsAreSerialized(t *testing.T) {
	r, _ := newTestResolver(t, "city", cityRecords())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.Fit(context.Background(), i%2 == 0)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	result, err := r.Predict(context.Background(), entity.Entity{Text: "pdx", Type: "city"}, true)
	require.NoError(t, err)
	assert.Equal(t, KindExactMatches, result.Kind)
}

func TestResolver_RefitInvalidatesCachedResults(t *testing.T) {
	// Given: a resolution already served (and cached)
	r, source := newTestResolver(t, "city", cityRecords())
	require.NoError(t, r.Fit(context.Background(), true))

	before, err := r.Predict(context.Background(), entity.Entity{Text: "SEA", Type: "city"}, true)
	require.NoError(t, err)
	require.Equal(t, KindExactMatches, before.Kind)

	// When: the mapping drops the record and the resolver refits
	source.set([]entity.CanonicalItem{{ID: "pdx", Cname: "Portland"}})
	require.NoError(t, r.Fit(context.Background(), true))

	// Then: the stale cached answer is gone
	after, err := r.Predict(context.Background(), entity.Entity{Text: "SEA", Type: "city"}, true)
	require.NoError(t, err)
	assert.Equal(t, KindUnresolved, after.Kind)
}

func TestResolver_SystemEntityPassesThrough(t *testing.T) {
	// Given: a resolver for a built-in system type
	r, _ := newTestResolver(t, "sys_time", nil)

	// Then: fit is a no-op and values pass through untouched
	require.NoError(t, r.Fit(context.Background(), true))

	result, err := r.Predict(context.Background(), entity.Entity{
		Text:  "tomorrow",
		Type:  "sys_time",
		Value: map[string]any{"grain": "day"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, KindPassthrough, result.Kind)
	assert.Equal(t, map[string]any{"grain": "day"}, result.Value)
}

func TestResolver_PredictProbaIsReserved(t *testing.T) {
	r, _ := newTestResolver(t, "city", cityRecords())
	require.NoError(t, r.Fit(context.Background(), true))

	candidates, err := r.PredictProba(context.Background(), entity.Entity{Text: "seattle", Type: "city"})
	require.NoError(t, err)
	assert.Nil(t, candidates)
}

func TestResolver_DuplicateIDAbortsFit(t *testing.T) {
	r, _ := newTestResolver(t, "city", []entity.CanonicalItem{
		{ID: "1", Cname: "Seattle"},
		{ID: "1", Cname: "Tacoma"},
	})

	err := r.Fit(context.Background(), true)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, kberrors.ErrDuplicateIdentifier))
}
