// Package format implements the output format writers.
//
// The format set is closed: csv (delimited text), jsonl (one JSON document
// per record) and json (a single top-level JSON array). Writers serialize
// one record at a time and never buffer more than one record's worth of
// data; Close finalizes the format envelope without closing the underlying
// stream.
package format

import (
	"fmt"
	"io"

	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Type identifies an output format.
type Type string

const (
	CSV   Type = "csv"
	JSONL Type = "jsonl"
	JSON  Type = "json"
)

// ParseType resolves a configuration value to a format. Unrecognized values
// fail at start time.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case CSV:
		return CSV, nil
	case JSONL:
		return JSONL, nil
	case JSON:
		return JSON, nil
	default:
		return "", fmt.Errorf("unsupported output format: %q", s)
	}
}

// Field identifies a logical record field selected for output.
type Field string

const (
	FieldKey       Field = "key"
	FieldValue     Field = "value"
	FieldOffset    Field = "offset"
	FieldTimestamp Field = "timestamp"
	FieldHeaders   Field = "headers"
)

// ParseFields resolves the configured field selection. An empty selection is
// a configuration error, not a runtime one.
func ParseFields(names []string) ([]Field, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("output field selection must not be empty")
	}
	fields := make([]Field, 0, len(names))
	seen := make(map[Field]bool)
	for _, name := range names {
		f := Field(name)
		switch f {
		case FieldKey, FieldValue, FieldOffset, FieldTimestamp, FieldHeaders:
		default:
			return nil, fmt.Errorf("unsupported output field: %q", name)
		}
		if seen[f] {
			return nil, fmt.Errorf("duplicate output field: %q", name)
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, nil
}

// Validate checks that the field selection is representable in the format.
func Validate(t Type, fields []Field) error {
	if t != CSV {
		return nil
	}
	for _, f := range fields {
		if f == FieldHeaders {
			return fmt.Errorf("output field %q is not supported by the csv format", f)
		}
	}
	return nil
}

// NewWriter creates a record writer for the format over w. The format set is
// closed and matched exhaustively.
func NewWriter(t Type, w io.Writer, fields []Field) (sink.RecordWriter, error) {
	switch t {
	case CSV:
		return newCSVWriter(w, fields), nil
	case JSONL:
		return newJSONLinesWriter(w, fields), nil
	case JSON:
		return newJSONWriter(w, fields), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q", t)
	}
}
