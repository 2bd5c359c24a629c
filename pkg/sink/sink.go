// Package sink defines interfaces for the flush/upload pipeline.
//
// This package provides abstractions for accumulating Kafka records into
// batches and streaming each batch to an object storage backend.
package sink

import (
	"context"
	"io"

	"github.com/jittakal/kafs3sink/pkg/record"
)

// Sink receives records from the host pipeline and flushes them to storage.
type Sink interface {
	// Put appends records to the internal grouper. It never blocks on I/O.
	Put(records []record.Record) error

	// Flush uploads every non-empty buffered batch. It returns nil only if
	// all batches were durably committed, in which case the grouper has been
	// cleared and the host may advance its offsets. On error no batch is
	// dropped and the host must not commit.
	Flush(ctx context.Context) error

	// Stop releases the storage client and any open resources. Idempotent.
	Stop() error
}

// Grouper accumulates records into per-destination batches between flushes.
// Implementations must preserve arrival order within a batch.
type Grouper interface {
	// Put files the record into its destination batch.
	Put(r record.Record)

	// Batches returns a key-sorted snapshot of the buffered batches.
	Batches() []record.Batch

	// Clear drops all buffered batches.
	Clear()
}

// ObjectWriter streams one object's bytes to storage.
//
// The object becomes visible only after Close returns successfully. If Close
// is never reached the object must not appear in storage; callers abandon a
// failed upload via Abort.
type ObjectWriter interface {
	io.WriteCloser

	// Abort discards the partially written object. Safe to call after a
	// failed Write and after Close, in which case it is a no-op.
	Abort() error
}

// ObjectStore opens streaming writers for storage objects.
//
// Opening an existing key and closing the new writer overwrites the object
// atomically from the reader's perspective. Implementations must be safe for
// concurrent use so batch uploads may run in parallel.
type ObjectStore interface {
	// Open starts a streaming upload for the object at key.
	Open(ctx context.Context, key string) (ObjectWriter, error)

	// Close releases the storage client.
	Close() error
}

// RecordWriter serializes records one at a time into an output stream.
// Close finalizes any format-specific envelope and must be called even when
// a Write failed mid-batch.
type RecordWriter interface {
	// Write serializes a single record. It never buffers more than one
	// record's worth of data.
	Write(r *record.Record) error

	// Close finalizes the format envelope. It does not close the underlying
	// stream.
	Close() error
}
