package format

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jittakal/kafs3sink/pkg/record"
)

func TestJSONLinesWriter_Write(t *testing.T) {
	ts := time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC)
	rec := record.Record{
		Topic:     "events",
		Partition: 0,
		Offset:    42,
		Key:       []byte("user-1"),
		Value:     []byte(`{"action":"login"}`),
		Headers:   map[string]string{"source": "web"},
		Timestamp: ts,
	}

	var buf bytes.Buffer
	w := newJSONLinesWriter(&buf, []Field{FieldKey, FieldValue, FieldOffset, FieldTimestamp, FieldHeaders})

	if err := w.Write(&rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	line := strings.TrimSuffix(buf.String(), "\n")
	if strings.Contains(line, "\n") {
		t.Fatal("expected a single line per record")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	key, err := base64.StdEncoding.DecodeString(doc["key"].(string))
	if err != nil {
		t.Fatalf("key is not base64: %v", err)
	}
	if string(key) != "user-1" {
		t.Errorf("key = %s, want user-1", key)
	}

	// A JSON payload is embedded as-is, not base64-encoded.
	value, ok := doc["value"].(map[string]any)
	if !ok {
		t.Fatalf("value = %T, want embedded JSON object", doc["value"])
	}
	if value["action"] != "login" {
		t.Errorf("value.action = %v, want login", value["action"])
	}

	if doc["offset"].(float64) != 42 {
		t.Errorf("offset = %v, want 42", doc["offset"])
	}
	if doc["timestamp"] != "2023-06-15T10:30:00Z" {
		t.Errorf("timestamp = %v, want 2023-06-15T10:30:00Z", doc["timestamp"])
	}

	headers := doc["headers"].(map[string]any)
	if headers["source"] != "web" {
		t.Errorf("headers.source = %v, want web", headers["source"])
	}
}

func TestJSONLinesWriter_NonJSONValue(t *testing.T) {
	rec := record.Record{
		Topic:  "events",
		Offset: 1,
		Value:  []byte{0xff, 0x00, 0x01},
	}

	var buf bytes.Buffer
	w := newJSONLinesWriter(&buf, []Field{FieldValue})

	if err := w.Write(&rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	value, err := base64.StdEncoding.DecodeString(doc["value"].(string))
	if err != nil {
		t.Fatalf("non-JSON value should be base64: %v", err)
	}
	if !bytes.Equal(value, rec.Value) {
		t.Errorf("value round trip = %v, want %v", value, rec.Value)
	}
}

func TestJSONWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONWriter(&buf, []Field{FieldOffset})

	for i := int64(10); i < 13; i++ {
		rec := record.Record{Topic: "events", Offset: i}
		if err := w.Write(&rec); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var docs []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &docs); err != nil {
		t.Fatalf("output is not a valid JSON array: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}
	if docs[0]["offset"].(float64) != 10 {
		t.Errorf("docs[0].offset = %v, want 10", docs[0]["offset"])
	}
	if docs[2]["offset"].(float64) != 12 {
		t.Errorf("docs[2].offset = %v, want 12", docs[2]["offset"])
	}
}

func TestJSONWriter_EmptyArray(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONWriter(&buf, []Field{FieldOffset})

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if buf.String() != "[]" {
		t.Errorf("output = %q, want []", buf.String())
	}
}

func TestJSONWriter_CloseIdempotent(t *testing.T) {
	var buf bytes.Buffer
	w := newJSONWriter(&buf, []Field{FieldOffset})

	rec := record.Record{Topic: "events", Offset: 1}
	if err := w.Write(&rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	var docs []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &docs); err != nil {
		t.Fatalf("double Close corrupted the array: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("len(docs) = %d, want 1", len(docs))
	}
}
