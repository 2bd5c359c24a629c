// Package sink implements the flush orchestrator.
//
// A flush cycle is all-or-nothing: every buffered batch must commit before
// the grouper is cleared and the host is allowed to advance its offsets. The
// first failure anywhere aborts the cycle, the batches stay buffered and the
// same records are redelivered to storage on the next attempt.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jittakal/kafs3sink/internal/codec"
	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/internal/format"
	"github.com/jittakal/kafs3sink/internal/keys"
	"github.com/jittakal/kafs3sink/pkg/record"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementation satisfies interface at compile time.
var _ sink.Sink = (*Task)(nil)

// NamingStrategy selects how destination object keys are derived.
type NamingStrategy string

const (
	// NamingTemplated uses the grouper-rendered key as the object key.
	NamingTemplated NamingStrategy = "templated"
	// NamingLegacy derives {topic}-{partition}-{padded_offset}{ext} keys
	// from the batch's first record.
	NamingLegacy NamingStrategy = "legacy"
)

// ParseNamingStrategy resolves a configuration value to a naming strategy.
func ParseNamingStrategy(s string) (NamingStrategy, error) {
	switch NamingStrategy(s) {
	case NamingTemplated:
		return NamingTemplated, nil
	case NamingLegacy, "":
		return NamingLegacy, nil
	default:
		return "", fmt.Errorf("unsupported naming strategy: %q", s)
	}
}

// MetricsCollector defines metrics operations for the orchestrator.
type MetricsCollector interface {
	IncRecordsPut(topic string, partition int32, count int)
	IncFlushCycles(status string)
	ObserveFlushDuration(duration float64)
	IncBatchesFlushed(topic string)
}

// Config contains the orchestrator configuration, resolved and validated at
// start time.
type Config struct {
	Format               format.Type
	Fields               []format.Field
	Codec                codec.Type
	Naming               NamingStrategy
	MaxConcurrentUploads int
	UploadTimeout        time.Duration
}

// Task moves buffered batches into object storage on each flush request.
type Task struct {
	cfg     Config
	grouper sink.Grouper
	store   sink.ObjectStore
	keys    *keys.Formatter
	logger  *slog.Logger
	metrics MetricsCollector

	mu      sync.Mutex
	stopped bool
}

// NewTask creates a flush orchestrator. The key formatter is required for
// the legacy naming strategy and ignored otherwise.
func NewTask(
	cfg Config,
	grouper sink.Grouper,
	store sink.ObjectStore,
	formatter *keys.Formatter,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*Task, error) {
	if err := format.Validate(cfg.Format, cfg.Fields); err != nil {
		return nil, err
	}
	if cfg.Naming == NamingLegacy && formatter == nil {
		return nil, fmt.Errorf("legacy naming strategy requires a key formatter")
	}
	return &Task{
		cfg:     cfg,
		grouper: grouper,
		store:   store,
		keys:    formatter,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Put appends records to the grouper. It never blocks on I/O.
func (t *Task) Put(records []record.Record) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return errors.ErrSinkStopped
	}
	t.mu.Unlock()

	for i := range records {
		t.grouper.Put(records[i])
	}
	if t.metrics != nil && len(records) > 0 {
		t.metrics.IncRecordsPut(records[0].Topic, records[0].Partition, len(records))
	}
	return nil
}

// Flush uploads every non-empty buffered batch. All batches must commit for
// the cycle to succeed; on the first failure the remaining batches are not
// attempted, the grouper keeps everything and the error is surfaced to the
// host, which must not advance its offsets.
func (t *Task) Flush(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return errors.ErrSinkStopped
	}
	t.mu.Unlock()

	start := time.Now()
	batches := t.grouper.Batches()

	var err error
	if t.cfg.MaxConcurrentUploads > 1 {
		err = t.flushParallel(ctx, batches)
	} else {
		err = t.flushSequential(ctx, batches)
	}
	if err != nil {
		if t.metrics != nil {
			t.metrics.IncFlushCycles("failure")
		}
		t.logger.Error("flush cycle failed", "error", err, "batches", len(batches))
		return err
	}

	t.grouper.Clear()
	duration := time.Since(start)
	if t.metrics != nil {
		t.metrics.IncFlushCycles("success")
		t.metrics.ObserveFlushDuration(duration.Seconds())
	}
	t.logger.Info("flush cycle committed",
		"batches", len(batches),
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

func (t *Task) flushSequential(ctx context.Context, batches []record.Batch) error {
	for i := range batches {
		if err := t.flushBatch(ctx, &batches[i]); err != nil {
			return err
		}
	}
	return nil
}

// flushParallel uploads batches concurrently. Each batch writes to its own
// object so the only shared state is the storage client. A failure cancels
// the group context; the cycle still waits for every sibling before
// reporting, so no upload is left running into the next cycle.
func (t *Task) flushParallel(ctx context.Context, batches []record.Batch) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MaxConcurrentUploads)
	for i := range batches {
		b := &batches[i]
		g.Go(func() error {
			return t.flushBatch(gctx, b)
		})
	}
	return g.Wait()
}

// flushBatch streams one batch: derive key, open upload, wrap with the
// codec, open the format writer, write every record in order, then close
// writer, codec and upload. Closing the upload is the commit point.
func (t *Task) flushBatch(ctx context.Context, b *record.Batch) error {
	if b.IsEmpty() {
		return nil
	}
	// A sibling failure cancels the cycle; don't start new uploads.
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := t.objectKey(b)
	if err != nil {
		return &errors.FlushError{Key: b.GroupKey, Err: err}
	}

	if t.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.UploadTimeout)
		defer cancel()
	}

	obj, err := t.store.Open(ctx, key)
	if err != nil {
		return &errors.FlushError{Key: key, Err: err}
	}

	if err := t.writeBatch(obj, b); err != nil {
		_ = obj.Abort()
		return &errors.FlushError{Key: key, Err: err}
	}
	if err := obj.Close(); err != nil {
		_ = obj.Abort()
		return &errors.FlushError{Key: key, Err: err}
	}

	if t.metrics != nil {
		t.metrics.IncBatchesFlushed(b.First().Topic)
	}
	t.logger.Debug("flushed batch",
		"key", key,
		"records", len(b.Records),
	)
	return nil
}

// writeBatch runs the encode and compress stages. The format writer's Close
// is guaranteed to run so the envelope is finalized even when a write fails,
// but a failed batch is aborted before any commit, so the partial object is
// never visible.
func (t *Task) writeBatch(obj sink.ObjectWriter, b *record.Batch) error {
	compressed, err := t.cfg.Codec.NewWriter(obj)
	if err != nil {
		return err
	}
	w, err := format.NewWriter(t.cfg.Format, compressed, t.cfg.Fields)
	if err != nil {
		return err
	}

	var writeErr error
	for i := range b.Records {
		if writeErr = w.Write(&b.Records[i]); writeErr != nil {
			break
		}
	}
	if err := w.Close(); writeErr == nil && err != nil {
		writeErr = err
	}
	if err := compressed.Close(); writeErr == nil && err != nil {
		writeErr = err
	}
	return writeErr
}

func (t *Task) objectKey(b *record.Batch) (string, error) {
	if t.cfg.Naming == NamingTemplated {
		return b.GroupKey, nil
	}
	return t.keys.ObjectKey(b)
}

// Stop releases the storage client. Idempotent and safe to call without a
// prior flush.
func (t *Task) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil
	}
	t.stopped = true
	t.logger.Info("stopping sink task")
	return t.store.Close()
}
