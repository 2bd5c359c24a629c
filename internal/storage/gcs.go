package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementation satisfies interface at compile time.
var _ sink.ObjectStore = (*GCSStore)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

// GCSStore streams objects to Google Cloud Storage. The GCS object writer
// commits on Close, which gives the visibility-on-commit contract directly.
type GCSStore struct {
	client  *gcs.Client
	bucket  string
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewGCSStore creates the process-wide GCS client.
func NewGCSStore(ctx context.Context, cfg GCSConfig, logger *slog.Logger, metrics MetricsCollector) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS store created", "bucket", cfg.Bucket)

	return &GCSStore{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Open starts a streaming upload for the object at key.
func (g *GCSStore) Open(ctx context.Context, key string) (sink.ObjectWriter, error) {
	uploadCtx, cancel := context.WithCancel(ctx)
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(uploadCtx)
	return &gcsUpload{
		store:  g,
		key:    key,
		w:      w,
		cancel: cancel,
		start:  time.Now(),
	}, nil
}

// Close releases the storage client.
func (g *GCSStore) Close() error {
	g.logger.Info("closing GCS store")
	return g.client.Close()
}

type gcsUpload struct {
	store   *GCSStore
	key     string
	w       *gcs.Writer
	cancel  context.CancelFunc
	start   time.Time
	written int64
	closed  bool
}

func (u *gcsUpload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errors.ErrWriterClosed
	}
	n, err := u.w.Write(p)
	u.written += int64(n)
	if err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("gcs", "write")
		}
		return n, &errors.StorageError{Backend: "gcs", Operation: "write", Key: u.key, Err: err}
	}
	return n, nil
}

// Close commits the object.
func (u *gcsUpload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	defer u.cancel()

	if err := u.w.Close(); err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("gcs", "commit")
		}
		return &errors.StorageError{Backend: "gcs", Operation: "commit", Key: u.key, Err: err}
	}

	duration := time.Since(u.start)
	u.store.logger.Info("committed object to GCS",
		"bucket", u.store.bucket,
		"key", u.key,
		"bytes", u.written,
		"duration_ms", duration.Milliseconds(),
	)
	if u.store.metrics != nil {
		u.store.metrics.IncObjectsCommitted("gcs")
		u.store.metrics.ObserveObjectSize("gcs", float64(u.written))
		u.store.metrics.ObserveUploadDuration("gcs", duration.Seconds())
	}
	return nil
}

// Abort cancels the upload before the final commit; the object never
// becomes visible.
func (u *gcsUpload) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.cancel()
	// Close after cancel returns the cancellation error; the object is gone.
	_ = u.w.Close()
	u.store.logger.Warn("aborted GCS upload", "bucket", u.store.bucket, "key", u.key)
	return nil
}
