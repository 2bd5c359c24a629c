// Package storage implements the object storage backends.
//
// Every backend exposes the same streaming contract: Open starts an upload
// for a key, bytes are streamed without holding the full object in memory,
// and the object becomes visible only when Close commits it. An upload that
// never reaches Close leaves no partial object behind.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementation satisfies interface at compile time.
var _ sink.ObjectStore = (*S3Store)(nil)

// MetricsCollector defines metrics operations for storage backends.
type MetricsCollector interface {
	IncObjectsCommitted(backend string)
	ObserveObjectSize(backend string, size float64)
	ObserveUploadDuration(backend string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
	PartSizeMB      int64
}

// S3Store streams objects to AWS S3 using multipart uploads. The object
// becomes visible when the final part is committed, so an abandoned upload
// never surfaces as a partial object. The client is created once at start
// and shared by all uploads; it is safe for concurrent use.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   *slog.Logger
	metrics  MetricsCollector
}

// NewS3Store creates the process-wide S3 client and uploader.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger, metrics MetricsCollector) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	partSize := cfg.PartSizeMB
	if partSize <= 0 {
		partSize = 10
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = partSize * 1024 * 1024
	})

	logger.Info("S3 store created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"endpoint", cfg.Endpoint,
		"path_style", cfg.UsePathStyle,
	)

	return &S3Store{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Open starts a streaming multipart upload for the object at key.
func (s *S3Store) Open(ctx context.Context, key string) (sink.ObjectWriter, error) {
	pr, pw := io.Pipe()
	u := &s3Upload{
		store: s,
		key:   key,
		pw:    pw,
		done:  make(chan error, 1),
		start: time.Now(),
	}

	go func() {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		// Unblock any writer still feeding the pipe.
		pr.CloseWithError(err)
		u.done <- err
	}()

	return u, nil
}

// Close releases the storage client. The aws-sdk-go-v2 client holds no
// connections of its own beyond the shared HTTP transport.
func (s *S3Store) Close() error {
	s.logger.Info("closing S3 store")
	return nil
}

// s3Upload feeds one multipart upload through an in-process pipe.
type s3Upload struct {
	store   *S3Store
	key     string
	pw      *io.PipeWriter
	done    chan error
	start   time.Time
	written int64
	mu      sync.Mutex
	closed  bool
}

func (u *s3Upload) Write(p []byte) (int, error) {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return 0, errors.ErrWriterClosed
	}
	u.mu.Unlock()

	n, err := u.pw.Write(p)
	u.written += int64(n)
	if err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("s3", "write")
		}
		return n, &errors.StorageError{Backend: "s3", Operation: "write", Key: u.key, Err: err}
	}
	return n, nil
}

// Close finishes the stream and waits for the final part commit. Only after
// Close returns nil is the object visible.
func (u *s3Upload) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	if err := u.pw.Close(); err != nil {
		return &errors.StorageError{Backend: "s3", Operation: "commit", Key: u.key, Err: err}
	}
	if err := <-u.done; err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("s3", "commit")
		}
		return &errors.StorageError{Backend: "s3", Operation: "commit", Key: u.key, Err: err}
	}

	duration := time.Since(u.start)
	u.store.logger.Info("committed object to S3",
		"bucket", u.store.bucket,
		"key", u.key,
		"bytes", u.written,
		"duration_ms", duration.Milliseconds(),
	)
	if u.store.metrics != nil {
		u.store.metrics.IncObjectsCommitted("s3")
		u.store.metrics.ObserveObjectSize("s3", float64(u.written))
		u.store.metrics.ObserveUploadDuration("s3", duration.Seconds())
	}
	return nil
}

// Abort abandons the upload. The multipart upload fails without a final
// commit, so no object becomes visible.
func (u *s3Upload) Abort() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()

	u.pw.CloseWithError(errors.ErrUploadAborted)
	<-u.done
	u.store.logger.Warn("aborted S3 upload", "bucket", u.store.bucket, "key", u.key)
	return nil
}
