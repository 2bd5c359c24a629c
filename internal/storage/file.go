package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementation satisfies interface at compile time.
var _ sink.ObjectStore = (*FileStore)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileStore writes objects under a base directory. Bytes stream into a
// hidden temporary file and Close renames it to the final key, so a reader
// never observes a partial object and overwrites are atomic. Used for local
// runs and as the storage backend in tests.
type FileStore struct {
	basePath string
	logger   *slog.Logger
	metrics  MetricsCollector
}

// NewFileStore creates a filesystem store rooted at the base path.
func NewFileStore(cfg FileConfig, logger *slog.Logger, metrics MetricsCollector) (*FileStore, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("file storage base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("file store created", "base_path", cfg.BasePath)

	return &FileStore{
		basePath: cfg.BasePath,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Open starts a streaming write for the object at key.
func (f *FileStore) Open(ctx context.Context, key string) (sink.ObjectWriter, error) {
	final := filepath.Join(f.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return nil, &errors.StorageError{Backend: "file", Operation: "open", Key: key, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".tmp-*")
	if err != nil {
		if f.metrics != nil {
			f.metrics.IncStorageErrors("file", "open")
		}
		return nil, &errors.StorageError{Backend: "file", Operation: "open", Key: key, Err: err}
	}
	return &fileUpload{
		store: f,
		key:   key,
		final: final,
		tmp:   tmp,
		start: time.Now(),
	}, nil
}

// Close releases the store.
func (f *FileStore) Close() error {
	f.logger.Info("closing file store")
	return nil
}

type fileUpload struct {
	store   *FileStore
	key     string
	final   string
	tmp     *os.File
	start   time.Time
	written int64
	closed  bool
}

func (u *fileUpload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errors.ErrWriterClosed
	}
	n, err := u.tmp.Write(p)
	u.written += int64(n)
	if err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("file", "write")
		}
		return n, &errors.StorageError{Backend: "file", Operation: "write", Key: u.key, Err: err}
	}
	return n, nil
}

// Close syncs the temporary file and renames it into place, the local
// equivalent of a final-part commit.
func (u *fileUpload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	if err := u.tmp.Sync(); err != nil {
		u.discard()
		return &errors.StorageError{Backend: "file", Operation: "commit", Key: u.key, Err: err}
	}
	if err := u.tmp.Close(); err != nil {
		u.discard()
		return &errors.StorageError{Backend: "file", Operation: "commit", Key: u.key, Err: err}
	}
	if err := os.Rename(u.tmp.Name(), u.final); err != nil {
		u.discard()
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("file", "commit")
		}
		return &errors.StorageError{Backend: "file", Operation: "commit", Key: u.key, Err: err}
	}

	duration := time.Since(u.start)
	u.store.logger.Info("committed object to file store",
		"key", u.key,
		"bytes", u.written,
		"duration_ms", duration.Milliseconds(),
	)
	if u.store.metrics != nil {
		u.store.metrics.IncObjectsCommitted("file")
		u.store.metrics.ObserveObjectSize("file", float64(u.written))
		u.store.metrics.ObserveUploadDuration("file", duration.Seconds())
	}
	return nil
}

// Abort removes the temporary file; the final key never appears.
func (u *fileUpload) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.discard()
	u.store.logger.Warn("aborted file upload", "key", u.key)
	return nil
}

func (u *fileUpload) discard() {
	_ = u.tmp.Close()
	_ = os.Remove(u.tmp.Name())
}
