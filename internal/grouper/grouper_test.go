package grouper

import (
	"testing"

	"github.com/jittakal/kafs3sink/pkg/record"
)

func rec(topic string, partition int32, offset int64) record.Record {
	return record.Record{Topic: topic, Partition: partition, Offset: offset}
}

func TestTopicPartitionGrouper_Put(t *testing.T) {
	g := NewTopicPartitionGrouper()

	g.Put(rec("events", 0, 10))
	g.Put(rec("events", 0, 11))
	g.Put(rec("events", 1, 5))
	g.Put(rec("orders", 0, 3))

	batches := g.Batches()
	if len(batches) != 3 {
		t.Fatalf("len(batches) = %d, want 3", len(batches))
	}

	// Snapshot is key-sorted.
	wantKeys := []string{"events-0", "events-1", "orders-0"}
	for i, want := range wantKeys {
		if batches[i].GroupKey != want {
			t.Errorf("batches[%d].GroupKey = %v, want %v", i, batches[i].GroupKey, want)
		}
	}

	if len(batches[0].Records) != 2 {
		t.Fatalf("len(events-0 records) = %d, want 2", len(batches[0].Records))
	}
	if batches[0].Records[0].Offset != 10 || batches[0].Records[1].Offset != 11 {
		t.Error("arrival order not preserved within batch")
	}
}

func TestTopicPartitionGrouper_Clear(t *testing.T) {
	g := NewTopicPartitionGrouper()
	g.Put(rec("events", 0, 1))

	g.Clear()

	if got := len(g.Batches()); got != 0 {
		t.Errorf("len(batches) after Clear = %d, want 0", got)
	}
}

func TestTopicPartitionGrouper_BatchesSnapshot(t *testing.T) {
	g := NewTopicPartitionGrouper()
	g.Put(rec("events", 0, 1))

	snapshot := g.Batches()
	g.Put(rec("events", 0, 2))

	if len(snapshot[0].Records) != 1 {
		t.Errorf("snapshot mutated by later Put, len = %d, want 1", len(snapshot[0].Records))
	}
}

func TestNewTemplateGrouper(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  bool
	}{
		{"topic partition offset", "{{topic}}/{{partition}}/{{start_offset}}", false},
		{"padded offset", "{{topic}}-{{start_offset:padding=true}}", false},
		{"literal only", "fixed-object-name", false},
		{"unknown variable", "{{topic}}/{{timestamp}}", true},
		{"malformed", "{{topic", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTemplateGrouper(tt.template)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTemplateGrouper(%q) error = %v, wantErr %v", tt.template, err, tt.wantErr)
			}
		})
	}
}

func TestTemplateGrouper_Put(t *testing.T) {
	g, err := NewTemplateGrouper("{{topic}}/{{partition}}/{{start_offset:padding=true}}")
	if err != nil {
		t.Fatalf("NewTemplateGrouper() error = %v", err)
	}

	g.Put(rec("events", 0, 42))
	g.Put(rec("events", 0, 43))
	g.Put(rec("events", 1, 7))

	batches := g.Batches()
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}

	// The key is fixed by the record that opened the batch.
	if batches[0].GroupKey != "events/0/00000000000000000042" {
		t.Errorf("batches[0].GroupKey = %v, want events/0/00000000000000000042", batches[0].GroupKey)
	}
	if len(batches[0].Records) != 2 {
		t.Errorf("len(batches[0].Records) = %d, want 2", len(batches[0].Records))
	}
	if batches[1].GroupKey != "events/1/00000000000000000007" {
		t.Errorf("batches[1].GroupKey = %v, want events/1/00000000000000000007", batches[1].GroupKey)
	}
}

func TestTemplateGrouper_ClearResetsKeys(t *testing.T) {
	g, err := NewTemplateGrouper("{{topic}}/{{start_offset}}")
	if err != nil {
		t.Fatalf("NewTemplateGrouper() error = %v", err)
	}

	g.Put(rec("events", 0, 10))
	g.Clear()
	g.Put(rec("events", 0, 20))

	batches := g.Batches()
	if len(batches) != 1 {
		t.Fatalf("len(batches) = %d, want 1", len(batches))
	}
	// After Clear the next record opens a fresh batch at its own offset.
	if batches[0].GroupKey != "events/20" {
		t.Errorf("GroupKey = %v, want events/20", batches[0].GroupKey)
	}
}
