package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel_KnownLevels(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
}

func TestParseLevel_UnknownDefaultsToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: logging configured against a temp file
	path := filepath.Join(t.TempDir(), "kbresolve.log")
	cfg := Config{
		Level:         "info",
		FilePath:      path,
		MaxSizeMB:     1,
		MaxFiles:      2,
		WriteToStderr: false,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	// When: logging an event
	logger.Info("fit_started", slog.String("entity_type", "city"))
	cleanup()

	// Then: the file contains the structured record
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"fit_started"`)
	assert.Contains(t, string(data), `"entity_type":"city"`)
}

func TestSetup_RespectsLevel(t *testing.T) {
	// Given: info-level logging
	path := filepath.Join(t.TempDir(), "kbresolve.log")
	cfg := Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	// When: emitting a debug record
	logger.Debug("resolution_cache_hit")
	cleanup()

	// Then: it is filtered out
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "resolution_cache_hit")
}

func TestRotatingWriter_RotatesAtSizeLimit(t *testing.T) {
	// Given: a writer with a 1MB cap
	dir := t.TempDir()
	path := filepath.Join(dir, "kbresolve.log")
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing past the cap
	line := strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: a rotated file exists alongside the active one
	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "expected rotated file after exceeding size limit")
}

func TestRotatingWriter_PrunesOldFiles(t *testing.T) {
	// Given: pre-existing rotations at the retention limit
	dir := t.TempDir()
	path := filepath.Join(dir, "kbresolve.log")
	require.NoError(t, os.WriteFile(path+".1", []byte("old1"), 0o644))
	require.NoError(t, os.WriteFile(path+".2", []byte("old2"), 0o644))

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: enough data forces a rotation
	line := strings.Repeat("y", 512*1024)
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	// Then: nothing beyond maxFiles survives
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "rotation should not create files past maxFiles")
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	// Given: an explicit existing file
	path := filepath.Join(t.TempDir(), "explicit.log")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	found, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	// And: a missing explicit path errors
	_, err = FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}
