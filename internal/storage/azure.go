package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementation satisfies interface at compile time.
var _ sink.ObjectStore = (*AzureStore)(nil)

// Azure block blobs take staged blocks of at most 4000 MiB; 8 MiB keeps
// memory per in-flight upload small while staying well under the limit.
const azureBlockSize = 8 * 1024 * 1024

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName string
	AccountKey  string
	Container   string
	Endpoint    string
}

// AzureStore streams objects to Azure Blob Storage as block blobs. Blocks
// are staged as bytes arrive and the blob becomes visible only when the
// block list is committed on Close; uncommitted blocks are garbage-collected
// by the service.
type AzureStore struct {
	client    *azblob.Client
	container string
	logger    *slog.Logger
	metrics   MetricsCollector
}

// NewAzureStore creates the process-wide Azure Blob client.
func NewAzureStore(cfg AzureConfig, logger *slog.Logger, metrics MetricsCollector) (*AzureStore, error) {
	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure store created",
		"container", cfg.Container,
		"account", cfg.AccountName,
	)

	return &AzureStore{
		client:    client,
		container: cfg.Container,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Open starts a streaming block blob upload for the object at key.
func (a *AzureStore) Open(ctx context.Context, key string) (sink.ObjectWriter, error) {
	blob := a.client.ServiceClient().
		NewContainerClient(a.container).
		NewBlockBlobClient(key)
	return &azureUpload{
		store: a,
		key:   key,
		blob:  blob,
		ctx:   ctx,
		start: time.Now(),
	}, nil
}

// Close releases the storage client.
func (a *AzureStore) Close() error {
	a.logger.Info("closing Azure store")
	return nil
}

type azureUpload struct {
	store    *AzureStore
	key      string
	blob     *blockblob.Client
	ctx      context.Context
	start    time.Time
	buf      bytes.Buffer
	blockIDs []string
	written  int64
	closed   bool
}

func (u *azureUpload) Write(p []byte) (int, error) {
	if u.closed {
		return 0, errors.ErrWriterClosed
	}
	u.buf.Write(p)
	u.written += int64(len(p))
	for u.buf.Len() >= azureBlockSize {
		if err := u.stageBlock(u.buf.Next(azureBlockSize)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (u *azureUpload) stageBlock(data []byte) error {
	blockID := base64.StdEncoding.EncodeToString(
		[]byte(fmt.Sprintf("%s-%06d", u.key, len(u.blockIDs))))
	_, err := u.blob.StageBlock(u.ctx, blockID, streaming.NopCloser(bytes.NewReader(data)), nil)
	if err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("azure", "write")
		}
		return &errors.StorageError{Backend: "azure", Operation: "write", Key: u.key, Err: err}
	}
	u.blockIDs = append(u.blockIDs, blockID)
	return nil
}

// Close stages the final block and commits the block list, making the blob
// visible.
func (u *azureUpload) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true

	if u.buf.Len() > 0 {
		if err := u.stageBlock(u.buf.Bytes()); err != nil {
			return err
		}
		u.buf.Reset()
	}
	if _, err := u.blob.CommitBlockList(u.ctx, u.blockIDs, nil); err != nil {
		if u.store.metrics != nil {
			u.store.metrics.IncStorageErrors("azure", "commit")
		}
		return &errors.StorageError{Backend: "azure", Operation: "commit", Key: u.key, Err: err}
	}

	duration := time.Since(u.start)
	u.store.logger.Info("committed object to Azure Blob",
		"container", u.store.container,
		"blob", u.key,
		"bytes", u.written,
		"duration_ms", duration.Milliseconds(),
	)
	if u.store.metrics != nil {
		u.store.metrics.IncObjectsCommitted("azure")
		u.store.metrics.ObserveObjectSize("azure", float64(u.written))
		u.store.metrics.ObserveUploadDuration("azure", duration.Seconds())
	}
	return nil
}

// Abort drops the staged blocks without committing. The service expires
// uncommitted blocks on its own.
func (u *azureUpload) Abort() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.buf.Reset()
	u.blockIDs = nil
	u.store.logger.Warn("aborted Azure upload", "container", u.store.container, "blob", u.key)
	return nil
}
