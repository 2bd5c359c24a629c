package record

import (
	"testing"
	"time"
)

func TestPartitionID_String(t *testing.T) {
	tests := []struct {
		name string
		pid  PartitionID
		want string
	}{
		{"simple", PartitionID{Topic: "events", Partition: 0}, "events-0"},
		{"high partition", PartitionID{Topic: "orders", Partition: 42}, "orders-42"},
		{"dashed topic", PartitionID{Topic: "user-events", Partition: 3}, "user-events-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pid.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_PartitionID(t *testing.T) {
	r := Record{Topic: "events", Partition: 7, Offset: 100}
	pid := r.PartitionID()

	if pid.Topic != "events" {
		t.Errorf("Topic = %v, want events", pid.Topic)
	}
	if pid.Partition != 7 {
		t.Errorf("Partition = %v, want 7", pid.Partition)
	}
}

func TestBatch_First(t *testing.T) {
	b := Batch{
		GroupKey: "events-0",
		Records: []Record{
			{Topic: "events", Partition: 0, Offset: 10},
			{Topic: "events", Partition: 0, Offset: 11},
		},
	}

	if b.First().Offset != 10 {
		t.Errorf("First().Offset = %d, want 10", b.First().Offset)
	}
}

func TestBatch_IsEmpty(t *testing.T) {
	empty := Batch{GroupKey: "events-0"}
	if !empty.IsEmpty() {
		t.Error("expected empty batch")
	}

	full := Batch{Records: []Record{{Topic: "events"}}}
	if full.IsEmpty() {
		t.Error("expected non-empty batch")
	}
}

func TestOffsetMap_Observe(t *testing.T) {
	m := make(OffsetMap)
	now := time.Now()

	r1 := Record{Topic: "events", Partition: 0, Offset: 5, Timestamp: now}
	r2 := Record{Topic: "events", Partition: 0, Offset: 9, Timestamp: now}
	r3 := Record{Topic: "events", Partition: 1, Offset: 2, Timestamp: now}

	m.Observe(&r1)
	m.Observe(&r2)
	m.Observe(&r3)

	if got := m[PartitionID{Topic: "events", Partition: 0}]; got != 10 {
		t.Errorf("next offset for partition 0 = %d, want 10", got)
	}
	if got := m[PartitionID{Topic: "events", Partition: 1}]; got != 3 {
		t.Errorf("next offset for partition 1 = %d, want 3", got)
	}
}

func TestOffsetMap_ObserveOutOfOrder(t *testing.T) {
	m := make(OffsetMap)

	high := Record{Topic: "events", Partition: 0, Offset: 20}
	low := Record{Topic: "events", Partition: 0, Offset: 5}

	m.Observe(&high)
	m.Observe(&low)

	// A lower offset must never pull the commit point backwards.
	if got := m[PartitionID{Topic: "events", Partition: 0}]; got != 21 {
		t.Errorf("next offset = %d, want 21", got)
	}
}
