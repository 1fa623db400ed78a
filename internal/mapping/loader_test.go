package mapping

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/conversekit/kbresolve/internal/errors"
)

func writeMapping(t *testing.T, dir, entityType, content string) {
	t.Helper()
	typeDir := filepath.Join(dir, entityType)
	require.NoError(t, os.MkdirAll(typeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(typeDir, MappingFileName), []byte(content), 0o644))
}

func TestLoader_Load_BareArray(t *testing.T) {
	// Given: a mapping file in bare-array form
	dir := t.TempDir()
	writeMapping(t, dir, "city", `[
		{"id": "city_42", "cname": "New York City", "whitelist": ["NYC", "Big Apple"]},
		{"cname": "Seattle"}
	]`)

	// When: loading the entity type
	items, err := NewLoader(dir).Load("city")
	require.NoError(t, err)

	// Then: records come back in file order with all fields
	require.Len(t, items, 2)
	assert.Equal(t, "city_42", items[0].ID)
	assert.Equal(t, "New York City", items[0].Cname)
	assert.Equal(t, []string{"NYC", "Big Apple"}, items[0].Whitelist)
	assert.Equal(t, "Seattle", items[1].Cname)
	assert.Empty(t, items[1].ID)
}

func TestLoader_Load_EntitiesObjectForm(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "dish", `{"entities": [{"cname": "Pad Thai"}]}`)

	items, err := NewLoader(dir).Load("dish")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Pad Thai", items[0].Cname)
}

func TestLoader_Load_PreservesExtraFields(t *testing.T) {
	// Given: a record with fields beyond the known schema
	dir := t.TempDir()
	writeMapping(t, dir, "restaurant", `[
		{"id": "r1", "cname": "Luigi's", "cuisine": "italian", "rating": 4.5}
	]`)

	items, err := NewLoader(dir).Load("restaurant")
	require.NoError(t, err)

	// Then: extras survive verbatim
	require.Len(t, items, 1)
	assert.Equal(t, "italian", items[0].Extra["cuisine"])
	assert.Equal(t, 4.5, items[0].Extra["rating"])
}

func TestLoader_Load_MissingMapping(t *testing.T) {
	loader := NewLoader(t.TempDir())

	_, err := loader.Load("ghost")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, kberrors.ErrMappingNotFound))
}

func TestLoader_Load_RejectsRecordWithoutCname(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "city", `[{"id": "1"}]`)

	_, err := NewLoader(dir).Load("city")
	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeInvalidRecord, kberrors.GetCode(err))
}

func TestLoader_Load_RejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "city", `{"entities": "nope"`)

	_, err := NewLoader(dir).Load("city")
	require.Error(t, err)
	assert.Equal(t, kberrors.ErrCodeMappingInvalid, kberrors.GetCode(err))
}

func TestLoader_EntityTypes_SortedAndFiltered(t *testing.T) {
	// Given: two mapped types and one stray directory without a mapping
	dir := t.TempDir()
	writeMapping(t, dir, "city", `[]`)
	writeMapping(t, dir, "airline", `[]`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "notes"), 0o755))

	types, err := NewLoader(dir).EntityTypes()
	require.NoError(t, err)
	assert.Equal(t, []string{"airline", "city"}, types)
}

func TestRecord_MarshalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeMapping(t, dir, "city", `[{"id": "1", "cname": "Seattle", "whitelist": ["SEA"], "state": "WA"}]`)

	items, err := NewLoader(dir).Load("city")
	require.NoError(t, err)

	rec := Record{ID: items[0].ID, Cname: items[0].Cname, Whitelist: items[0].Whitelist, Extra: items[0].Extra}
	data, err := rec.MarshalJSON()
	require.NoError(t, err)

	var back Record
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, rec.Cname, back.Cname)
	assert.Equal(t, rec.Whitelist, back.Whitelist)
	assert.Equal(t, "WA", back.Extra["state"])
}

func TestFileSource_Records_ReflectsFileChanges(t *testing.T) {
	// Given: a source bound to one entity type
	dir := t.TempDir()
	writeMapping(t, dir, "city", `[{"cname": "Seattle"}]`)
	src := NewLoader(dir).Source("city")

	items, err := src.Records()
	require.NoError(t, err)
	require.Len(t, items, 1)

	// When: the mapping file grows
	writeMapping(t, dir, "city", `[{"cname": "Seattle"}, {"cname": "Portland"}]`)

	// Then: the next read sees the new record
	items, err = src.Records()
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
