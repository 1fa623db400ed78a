package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last write to a
// mapping file before firing. Editors and sync tools often write a file
// several times in quick succession.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a mapping directory and reports which entity type's
// mapping file changed.
type Watcher struct {
	loader   *Loader
	onChange func(entityType string)
	debounce time.Duration

	fw *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher over the loader's mapping directory.
// onChange is called with the entity type whose mapping.json changed,
// debounced per type.
func NewWatcher(loader *Loader, onChange func(entityType string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	w := &Watcher{
		loader:   loader,
		onChange: onChange,
		debounce: DefaultDebounce,
		fw:       fw,
		timers:   make(map[string]*time.Timer),
	}

	if err := fw.Add(loader.Dir()); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", loader.Dir(), err)
	}

	// Watch each existing entity-type directory; new ones are picked up
	// from create events on the root.
	types, err := loader.EntityTypes()
	if err == nil {
		for _, et := range types {
			if err := fw.Add(filepath.Join(loader.Dir(), et)); err != nil {
				slog.Warn("mapping_watch_failed",
					slog.String("entity_type", et),
					slog.String("error", err.Error()))
			}
		}
	}

	return w, nil
}

// SetDebounce overrides the per-type debounce interval.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start blocks, dispatching change events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("mapping_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Close stops the watcher and cancels pending debounce timers.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timers = make(map[string]*time.Timer)
	w.mu.Unlock()
	return w.fw.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A new entity-type directory appeared: start watching it.
	if event.Op.Has(fsnotify.Create) && filepath.Dir(event.Name) == w.loader.Dir() {
		_ = w.fw.Add(event.Name)
		return
	}

	if filepath.Base(event.Name) != MappingFileName {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	entityType := filepath.Base(filepath.Dir(event.Name))
	slog.Debug("mapping_changed",
		slog.String("entity_type", entityType),
		slog.String("op", event.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[entityType]; ok {
		timer.Stop()
	}
	w.timers[entityType] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, entityType)
		w.mu.Unlock()
		w.onChange(entityType)
	})
}
