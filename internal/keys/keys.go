// Package keys derives object storage keys for flushed batches.
//
// The legacy positional strategy renders
// {topic}-{partition}-{zero_padded_offset}{compression_extension}, optionally
// prefixed by a template over the variables topic, partition, start_offset,
// timestamp, utc_date and local_date. The utc_date and local_date variables
// are evaluated against the wall clock of the flush, not of record ingestion,
// so a retried flush can legally render a different key than the original
// attempt.
package keys

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jittakal/kafs3sink/internal/codec"
	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/internal/templating"
	"github.com/jittakal/kafs3sink/pkg/record"
)

// Offsets rendered with padding=true are fixed-width decimals so keys sort
// lexicographically in offset order.
const paddedOffsetWidth = 20

// TimestampSource selects which clock the timestamp variable reads.
type TimestampSource string

const (
	// TimestampWallclock renders the wall clock of the flush.
	TimestampWallclock TimestampSource = "wallclock"
	// TimestampRecord renders the batch's first record timestamp.
	TimestampRecord TimestampSource = "record"
)

// ParseTimestampSource resolves a configuration value to a timestamp source.
func ParseTimestampSource(s string) (TimestampSource, error) {
	switch TimestampSource(s) {
	case TimestampWallclock, "":
		return TimestampWallclock, nil
	case TimestampRecord:
		return TimestampRecord, nil
	default:
		return "", fmt.Errorf("unsupported timestamp source: %q", s)
	}
}

// prefixVariables is the closed set allowed in the prefix template.
var prefixVariables = map[string]bool{
	"timestamp":    true,
	"partition":    true,
	"start_offset": true,
	"topic":        true,
	"utc_date":     true,
	"local_date":   true,
}

// Formatter derives legacy positional object keys. It is pure given fixed
// variable bindings; the date and timestamp variables intentionally read the
// wall clock at render time.
type Formatter struct {
	prefix   *templating.Template
	codec    codec.Type
	tsSource TimestampSource
	now      func() time.Time
}

// NewFormatter parses and validates the prefix template and returns a key
// formatter. Unknown template variables fail here, at configuration time.
func NewFormatter(prefixTemplate string, c codec.Type, tsSource TimestampSource) (*Formatter, error) {
	prefix, err := templating.Parse(prefixTemplate)
	if err != nil {
		return nil, err
	}
	if err := prefix.Validate(prefixVariables); err != nil {
		return nil, err
	}
	for _, call := range prefix.Calls() {
		if call.Name == "timestamp" && call.Param.Name == "unit" {
			switch call.Param.Value {
			case "yyyy", "MM", "dd", "HH":
			default:
				return nil, &errors.TemplateError{
					Template: prefixTemplate,
					Variable: call.Name,
					Reason:   fmt.Sprintf("unsupported timestamp unit %q", call.Param.Value),
				}
			}
		}
	}
	return &Formatter{
		prefix:   prefix,
		codec:    c,
		tsSource: tsSource,
		now:      time.Now,
	}, nil
}

// ObjectKey derives the destination key for a batch. The batch must be
// non-empty; its identity is fixed by the first record.
func (f *Formatter) ObjectKey(b *record.Batch) (string, error) {
	head := b.First()
	prefix, err := f.prefix.Render(f.binding(head))
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s-%d-%s", head.Topic, head.Partition, formatOffset(head.Offset, true))
	return prefix + key + f.codec.Extension(), nil
}

func (f *Formatter) binding(head *record.Record) templating.Binding {
	return templating.Binding{
		"topic": func(templating.Parameter) string {
			return head.Topic
		},
		"partition": func(templating.Parameter) string {
			return strconv.FormatInt(int64(head.Partition), 10)
		},
		"start_offset": func(p templating.Parameter) string {
			return formatOffset(head.Offset, p.Name == "padding" && p.BoolValue())
		},
		"timestamp": func(p templating.Parameter) string {
			return f.formatTimestamp(head, p)
		},
		"utc_date": func(templating.Parameter) string {
			return f.now().UTC().Format("2006-01-02")
		},
		"local_date": func(templating.Parameter) string {
			return f.now().Format("2006-01-02")
		},
	}
}

func (f *Formatter) formatTimestamp(head *record.Record, p templating.Parameter) string {
	t := f.now().UTC()
	if f.tsSource == TimestampRecord {
		t = head.Timestamp.UTC()
	}
	if p.Name != "unit" {
		return t.Format(time.RFC3339)
	}
	switch p.Value {
	case "yyyy":
		return t.Format("2006")
	case "MM":
		return t.Format("01")
	case "dd":
		return t.Format("02")
	case "HH":
		return t.Format("15")
	default:
		return t.Format(time.RFC3339)
	}
}

func formatOffset(offset int64, padded bool) string {
	if padded {
		return fmt.Sprintf("%0*d", paddedOffsetWidth, offset)
	}
	return strconv.FormatInt(offset, 10)
}
