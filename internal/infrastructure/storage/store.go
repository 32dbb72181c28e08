package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/infrastructure/logging"
)

var (
	// ErrIO wraps every read or write failure of the backing file.
	ErrIO = errors.New("storage io failure")
	// ErrCorrupt means the backing file exists but is not a forest.
	ErrCorrupt = errors.New("storage document corrupt")
)

// Store persists the whole forest as one document.
type Store interface {
	Load(ctx context.Context) (tree.Forest, error)
	Save(ctx context.Context, f tree.Forest) error
	Clear(ctx context.Context) error
}

// FileStore keeps the forest in a single JSON file. Writes go to a temporary
// file in the same directory which is then renamed over the target, so a
// reader never sees a partial document.
type FileStore struct {
	path   string
	logger *logging.Logger

	mu       sync.Mutex
	lastHash uint64
	written  bool
}

// NewFileStore creates a store for path. The parent directory is created on
// first save.
func NewFileStore(path string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileStore{path: path, logger: logger.Named("storage")}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the forest. A missing file is an empty forest.
func (s *FileStore) Load(ctx context.Context) (tree.Forest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return tree.Forest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, s.path, err)
	}

	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return f, nil
}

// Save replaces the document with f.
func (s *FileStore) Save(ctx context.Context, f tree.Forest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f == nil {
		f = tree.Forest{}
	}

	data, err := Encode(f)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrIO, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	s.lastHash = xxhash.Sum64(data)
	s.written = true

	s.logger.Debug("forest saved",
		zap.String("path", s.path),
		zap.Int("bytes", len(data)),
		zap.Int("roots", len(f)))
	return nil
}

// Clear stores an empty forest.
func (s *FileStore) Clear(ctx context.Context) error {
	return s.Save(ctx, tree.Forest{})
}

// OwnWrite reports whether data is exactly the last document this store
// wrote. The watcher uses it to ignore its own saves.
func (s *FileStore) OwnWrite(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written && s.lastHash == xxhash.Sum64(data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename onto %s: %w", path, err)
	}
	return nil
}

// documentAPI is sonic.ConfigStd without HTML escaping, so urls are
// written as typed.
var documentAPI = sonic.Config{
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

// Encode renders a forest the way it is kept on disk: two-space indented
// JSON with a trailing newline.
func Encode(f tree.Forest) ([]byte, error) {
	data, err := documentAPI.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a JSON forest. The document must be an array.
func Decode(data []byte) (tree.Forest, error) {
	var f tree.Forest
	if err := documentAPI.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.New("document is not an array")
	}
	return f, nil
}
