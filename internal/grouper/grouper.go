// Package grouper accumulates records into per-destination batches between
// flush cycles.
package grouper

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/jittakal/kafs3sink/internal/templating"
	"github.com/jittakal/kafs3sink/pkg/record"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ sink.Grouper = (*TopicPartitionGrouper)(nil)
	_ sink.Grouper = (*TemplateGrouper)(nil)
)

// groupVariables is the closed set allowed in destination key templates.
var groupVariables = map[string]bool{
	"topic":        true,
	"partition":    true,
	"start_offset": true,
}

// TopicPartitionGrouper files records per source partition. The destination
// object key is derived later by the legacy key formatter from the batch's
// first record, so the group key only has to be stable within a cycle.
type TopicPartitionGrouper struct {
	batches map[string]*record.Batch
	mu      sync.Mutex
}

// NewTopicPartitionGrouper creates a grouper for the legacy naming strategy.
func NewTopicPartitionGrouper() *TopicPartitionGrouper {
	return &TopicPartitionGrouper{
		batches: make(map[string]*record.Batch),
	}
}

// Put files the record into its partition's batch, preserving arrival order.
func (g *TopicPartitionGrouper) Put(r record.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := r.PartitionID().String()
	b, ok := g.batches[key]
	if !ok {
		b = &record.Batch{GroupKey: key}
		g.batches[key] = b
	}
	b.Records = append(b.Records, r)
}

// Batches returns a key-sorted snapshot of the buffered batches.
func (g *TopicPartitionGrouper) Batches() []record.Batch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return snapshot(g.batches)
}

// Clear drops all buffered batches.
func (g *TopicPartitionGrouper) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.batches = make(map[string]*record.Batch)
}

// TemplateGrouper renders the destination object key from a filename
// template. The key is rendered once, from the record that starts a batch;
// later records of the same partition join that batch, so a template using
// start_offset produces one object per flush cycle per partition starting at
// the head record's offset.
type TemplateGrouper struct {
	template *templating.Template
	current  map[record.PartitionID]string
	batches  map[string]*record.Batch
	mu       sync.Mutex
}

// NewTemplateGrouper parses and validates the destination key template.
func NewTemplateGrouper(template string) (*TemplateGrouper, error) {
	t, err := templating.Parse(template)
	if err != nil {
		return nil, err
	}
	if err := t.Validate(groupVariables); err != nil {
		return nil, err
	}
	return &TemplateGrouper{
		template: t,
		current:  make(map[record.PartitionID]string),
		batches:  make(map[string]*record.Batch),
	}, nil
}

// Put files the record into the current batch of its partition, rendering a
// new destination key when the partition has no open batch.
func (g *TemplateGrouper) Put(r record.Record) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pid := r.PartitionID()
	key, ok := g.current[pid]
	if !ok {
		key = g.renderKey(&r)
		g.current[pid] = key
	}
	b, ok := g.batches[key]
	if !ok {
		b = &record.Batch{GroupKey: key}
		g.batches[key] = b
	}
	b.Records = append(b.Records, r)
}

// Batches returns a key-sorted snapshot of the buffered batches.
func (g *TemplateGrouper) Batches() []record.Batch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return snapshot(g.batches)
}

// Clear drops all buffered batches and open key assignments.
func (g *TemplateGrouper) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = make(map[record.PartitionID]string)
	g.batches = make(map[string]*record.Batch)
}

func (g *TemplateGrouper) renderKey(head *record.Record) string {
	// The variable set was validated at construction, so Render cannot fail.
	key, _ := g.template.Render(templating.Binding{
		"topic": func(templating.Parameter) string {
			return head.Topic
		},
		"partition": func(templating.Parameter) string {
			return strconv.FormatInt(int64(head.Partition), 10)
		},
		"start_offset": func(p templating.Parameter) string {
			if p.Name == "padding" && p.BoolValue() {
				return fmt.Sprintf("%020d", head.Offset)
			}
			return strconv.FormatInt(head.Offset, 10)
		},
	})
	return key
}

func snapshot(batches map[string]*record.Batch) []record.Batch {
	out := make([]record.Batch, 0, len(batches))
	for _, b := range batches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupKey < out[j].GroupKey })
	return out
}
