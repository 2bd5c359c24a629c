// Package record defines the core record and batch types for the sink.
//
// Records arrive from Kafka in non-decreasing offset order per partition and
// are never mutated after receipt. Batches group records that share one
// destination storage object.
package record

import (
	"fmt"
	"time"
)

// Record is a single Kafka message as delivered to the sink.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// PartitionID uniquely identifies a Kafka partition.
type PartitionID struct {
	Topic     string
	Partition int32
}

// String returns a string representation of the partition ID in the format "topic-partition".
func (p PartitionID) String() string {
	return fmt.Sprintf("%s-%d", p.Topic, p.Partition)
}

// PartitionID returns the partition this record was consumed from.
func (r *Record) PartitionID() PartitionID {
	return PartitionID{Topic: r.Topic, Partition: r.Partition}
}

// Batch is an ordered sequence of records bound for one storage object.
// The group key is fixed by the first record placed into the batch and
// does not change as more records are appended.
type Batch struct {
	// GroupKey is the key the grouper filed the batch under. For the
	// templated naming strategy this is already the destination object key.
	GroupKey string
	Records  []Record
}

// First returns the first record of the batch. The batch must be non-empty.
func (b *Batch) First() *Record {
	return &b.Records[0]
}

// IsEmpty returns true if the batch holds no records.
func (b *Batch) IsEmpty() bool {
	return len(b.Records) == 0
}

// OffsetMap tracks the next offset to commit per partition.
type OffsetMap map[PartitionID]int64

// Observe advances the map entry for the record's partition so that a
// successful flush commits up to and including this record.
func (m OffsetMap) Observe(r *Record) {
	pid := r.PartitionID()
	if next := r.Offset + 1; next > m[pid] {
		m[pid] = next
	}
}
