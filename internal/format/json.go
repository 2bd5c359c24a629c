package format

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jittakal/kafs3sink/internal/errors"
	"github.com/jittakal/kafs3sink/pkg/record"
	"github.com/jittakal/kafs3sink/pkg/sink"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ sink.RecordWriter = (*jsonLinesWriter)(nil)
	_ sink.RecordWriter = (*jsonWriter)(nil)
)

func errUnsupportedField(f Field) error {
	return fmt.Errorf("field %q not representable in this format", f)
}

// envelope builds the JSON document for one record, restricted to the
// selected fields. Values that are themselves valid JSON are embedded as-is,
// anything else is base64-encoded.
func envelope(r *record.Record, fields []Field) map[string]any {
	doc := make(map[string]any, len(fields))
	for _, f := range fields {
		switch f {
		case FieldKey:
			doc["key"] = base64.StdEncoding.EncodeToString(r.Key)
		case FieldValue:
			if json.Valid(r.Value) {
				doc["value"] = json.RawMessage(r.Value)
			} else {
				doc["value"] = base64.StdEncoding.EncodeToString(r.Value)
			}
		case FieldOffset:
			doc["offset"] = r.Offset
		case FieldTimestamp:
			doc["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339)
		case FieldHeaders:
			doc["headers"] = r.Headers
		}
	}
	return doc
}

// jsonLinesWriter emits one JSON document per line.
type jsonLinesWriter struct {
	w      io.Writer
	fields []Field
}

func newJSONLinesWriter(w io.Writer, fields []Field) *jsonLinesWriter {
	return &jsonLinesWriter{w: w, fields: fields}
}

func (j *jsonLinesWriter) Write(r *record.Record) error {
	data, err := json.Marshal(envelope(r, j.fields))
	if err != nil {
		return &errors.EncodingError{Format: string(JSONL), Topic: r.Topic, Offset: r.Offset, Err: err}
	}
	data = append(data, '\n')
	if _, err := j.w.Write(data); err != nil {
		return &errors.EncodingError{Format: string(JSONL), Topic: r.Topic, Offset: r.Offset, Err: err}
	}
	return nil
}

// Close finalizes the writer. The jsonl format has no envelope.
func (j *jsonLinesWriter) Close() error {
	return nil
}

// jsonWriter emits all records as a single top-level JSON array. The opening
// bracket is written with the first record and the closing bracket on Close,
// so Close must run even when a Write failed mid-batch.
type jsonWriter struct {
	w       io.Writer
	fields  []Field
	started bool
	closed  bool
}

func newJSONWriter(w io.Writer, fields []Field) *jsonWriter {
	return &jsonWriter{w: w, fields: fields}
}

func (j *jsonWriter) Write(r *record.Record) error {
	data, err := json.Marshal(envelope(r, j.fields))
	if err != nil {
		return &errors.EncodingError{Format: string(JSON), Topic: r.Topic, Offset: r.Offset, Err: err}
	}

	sep := ",\n"
	if !j.started {
		sep = "[\n"
	}
	if _, err := io.WriteString(j.w, sep); err != nil {
		return &errors.EncodingError{Format: string(JSON), Topic: r.Topic, Offset: r.Offset, Err: err}
	}
	j.started = true
	if _, err := j.w.Write(data); err != nil {
		return &errors.EncodingError{Format: string(JSON), Topic: r.Topic, Offset: r.Offset, Err: err}
	}
	return nil
}

// Close finalizes the array envelope.
func (j *jsonWriter) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	if !j.started {
		_, err := io.WriteString(j.w, "[]")
		return err
	}
	_, err := io.WriteString(j.w, "\n]")
	return err
}
