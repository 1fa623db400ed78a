package resolver

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/conversekit/kbresolve/internal/backend"
)

// Lifecycle governs backend index creation and rebuilds. It owns no mutable
// state of its own; the analysis configuration indexes are created with is a
// fixed constant inside the backend.
type Lifecycle struct {
	backend backend.Backend

	// dataDir is where cross-process fit locks live. Empty means the
	// backend is in-memory and a file lock would be meaningless.
	dataDir string
}

// NewLifecycle creates a lifecycle manager over the given backend.
func NewLifecycle(be backend.Backend, dataDir string) *Lifecycle {
	return &Lifecycle{backend: be, dataDir: dataDir}
}

// EnsureIndex creates the named index if it does not exist. Idempotent.
func (l *Lifecycle) EnsureIndex(name string) error {
	exists, err := l.backend.IndexExists(name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return l.backend.CreateIndex(name)
}

// Rebuild prepares the named index for reindexing.
//
// With clean set, the index is deleted and recreated so no stale synonyms
// survive upstream deletions. Without it, the existing index is kept and
// reindexing upserts on top: fine for additive updates, but documents for
// records removed from the mapping source are NOT reclaimed. Only a clean
// rebuild repairs that.
func (l *Lifecycle) Rebuild(name string, clean bool) error {
	if !clean {
		return l.EnsureIndex(name)
	}

	unlock, err := l.lockIndex(name)
	if err != nil {
		return err
	}
	defer unlock()

	slog.Info("index_rebuild", slog.String("index", name), slog.Bool("clean", true))
	if err := l.backend.DeleteIndex(name); err != nil {
		return fmt.Errorf("failed to delete index %s for clean rebuild: %w", name, err)
	}
	return l.backend.CreateIndex(name)
}

// lockIndex takes a cross-process file lock for the duration of a clean
// rebuild, so two processes cannot interleave delete/recreate on the same
// index directory. Returns a release function.
func (l *Lifecycle) lockIndex(name string) (func(), error) {
	if l.dataDir == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(l.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(l.dataDir, name+".fit.lock"))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire fit lock for %s: %w", name, err)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("fit_lock_release_failed",
				slog.String("index", name),
				slog.String("error", err.Error()))
		}
	}, nil
}
