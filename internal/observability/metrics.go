package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Consumer metrics
	MessagesConsumed *prometheus.CounterVec
	OffsetCommits    *prometheus.CounterVec
	Rebalances       *prometheus.CounterVec

	// Sink metrics
	RecordsPut     *prometheus.CounterVec
	FlushCycles    *prometheus.CounterVec
	FlushDuration  prometheus.Histogram
	BatchesFlushed *prometheus.CounterVec

	// Storage metrics
	ObjectsCommitted *prometheus.CounterVec
	ObjectSize       *prometheus.HistogramVec
	UploadDuration   *prometheus.HistogramVec
	StorageErrors    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		MessagesConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_messages_consumed_total",
				Help: "Total number of messages consumed from Kafka",
			},
			[]string{"topic", "partition"},
		),
		OffsetCommits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_offset_commit_total",
				Help: "Total number of offset commits",
			},
			[]string{"topic", "partition", "status"},
		),
		Rebalances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kafka_rebalance_total",
				Help: "Total number of consumer group rebalances",
			},
			[]string{"group"},
		),

		RecordsPut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sink_records_put_total",
				Help: "Total number of records accepted into the grouper",
			},
			[]string{"topic", "partition"},
		),
		FlushCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sink_flush_cycles_total",
				Help: "Total number of flush cycles by outcome",
			},
			[]string{"status"},
		),
		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sink_flush_duration_seconds",
				Help:    "Duration of complete flush cycles",
				Buckets: prometheus.DefBuckets,
			},
		),
		BatchesFlushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sink_batches_flushed_total",
				Help: "Total number of batches committed to storage",
			},
			[]string{"topic"},
		),

		ObjectsCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_objects_committed_total",
				Help: "Total number of objects committed to storage",
			},
			[]string{"backend"},
		),
		ObjectSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_object_size_bytes",
				Help:    "Size of objects committed to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
			},
			[]string{"backend"},
		),
		UploadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_upload_duration_seconds",
				Help:    "Duration of object uploads including the final commit",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "operation"},
		),
	}
}

// IncMessagesConsumed increments messages consumed counter.
func (m *Metrics) IncMessagesConsumed(topic string, partition int32) {
	m.MessagesConsumed.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Inc()
}

// IncOffsetCommits increments offset commits counter.
func (m *Metrics) IncOffsetCommits(topic string, partition int32, status string) {
	m.OffsetCommits.WithLabelValues(topic, fmt.Sprintf("%d", partition), status).Inc()
}

// IncRebalances increments rebalances counter.
func (m *Metrics) IncRebalances(groupID string) {
	m.Rebalances.WithLabelValues(groupID).Inc()
}

// IncRecordsPut adds to the records put counter.
func (m *Metrics) IncRecordsPut(topic string, partition int32, count int) {
	m.RecordsPut.WithLabelValues(topic, fmt.Sprintf("%d", partition)).Add(float64(count))
}

// IncFlushCycles increments the flush cycle counter for an outcome.
func (m *Metrics) IncFlushCycles(status string) {
	m.FlushCycles.WithLabelValues(status).Inc()
}

// ObserveFlushDuration observes flush cycle duration.
func (m *Metrics) ObserveFlushDuration(duration float64) {
	m.FlushDuration.Observe(duration)
}

// IncBatchesFlushed increments the batches flushed counter.
func (m *Metrics) IncBatchesFlushed(topic string) {
	m.BatchesFlushed.WithLabelValues(topic).Inc()
}

// IncObjectsCommitted increments the objects committed counter.
func (m *Metrics) IncObjectsCommitted(backend string) {
	m.ObjectsCommitted.WithLabelValues(backend).Inc()
}

// ObserveObjectSize observes a committed object's size.
func (m *Metrics) ObserveObjectSize(backend string, size float64) {
	m.ObjectSize.WithLabelValues(backend).Observe(size)
}

// ObserveUploadDuration observes an upload's duration.
func (m *Metrics) ObserveUploadDuration(backend string, duration float64) {
	m.UploadDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}
