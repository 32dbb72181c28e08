package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
)

// DefaultDebounce groups the burst of events an editor produces on save.
const DefaultDebounce = 150 * time.Millisecond

// ExternalChange reports that the data file now holds a document this
// process did not write.
type ExternalChange struct {
	Path    string
	Removed bool
	At      time.Time
}

// Watcher watches the directory of a FileStore and reports writes made by
// other processes. The directory is watched rather than the file because an
// atomic rename replaces the file's inode.
type Watcher struct {
	store    *FileStore
	fsw      *fsnotify.Watcher
	debounce time.Duration
	changes  chan ExternalChange
	logger   *logging.Logger

	lastSeen uint64
}

// NewWatcher starts watching the directory holding store's file. The
// directory is created if needed.
func NewWatcher(store *FileStore, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		store:    store,
		fsw:      fsw,
		debounce: debounce,
		changes:  make(chan ExternalChange, 1),
		logger:   logger.Named("watcher"),
	}
	if data, err := os.ReadFile(store.Path()); err == nil {
		w.lastSeen = xxhash.Sum64(data)
	}
	return w, nil
}

// Changes is closed when Run returns.
func (w *Watcher) Changes() <-chan ExternalChange {
	return w.changes
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.changes)
	defer w.fsw.Close()

	target := filepath.Clean(w.store.Path())
	// Reset needs no drain since Go 1.23 timers.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			if change, ok := w.inspect(target); ok {
				select {
				case w.changes <- change:
				case <-ctx.Done():
					return nil
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// inspect decides whether the file's current content is foreign.
func (w *Watcher) inspect(path string) (ExternalChange, bool) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if w.lastSeen == 0 {
			return ExternalChange{}, false
		}
		w.lastSeen = 0
		return ExternalChange{Path: path, Removed: true, At: time.Now()}, true
	}
	if err != nil {
		w.logger.Warn("read after change failed", zap.String("path", path), zap.Error(err))
		return ExternalChange{}, false
	}

	sum := xxhash.Sum64(data)
	if sum == w.lastSeen {
		return ExternalChange{}, false
	}
	w.lastSeen = sum
	if w.store.OwnWrite(data) {
		return ExternalChange{}, false
	}
	return ExternalChange{Path: path, At: time.Now()}, true
}
