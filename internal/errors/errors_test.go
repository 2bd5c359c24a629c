package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestTemplateError_Error(t *testing.T) {
	withVar := &TemplateError{Template: "{{bogus}}", Variable: "bogus", Reason: "unknown variable"}
	if msg := withVar.Error(); msg == "" {
		t.Error("expected non-empty error message")
	}

	withoutVar := &TemplateError{Template: "{{", Reason: "unmatched {{"}
	if msg := withoutVar.Error(); msg == "" {
		t.Error("expected non-empty error message")
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &StorageError{Backend: "s3", Operation: "open", Key: "events-0-0", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"connection lost sentinel", ErrConnectionLost, true},
		{"wrapped connection lost", fmt.Errorf("consume: %w", ErrConnectionLost), true},
		{
			"storage open failure",
			&StorageError{Backend: "s3", Operation: "open", Err: errors.New("timeout")},
			true,
		},
		{
			"storage write failure",
			&StorageError{Backend: "gcs", Operation: "write", Err: errors.New("reset")},
			true,
		},
		{
			"storage commit failure",
			&StorageError{Backend: "azure", Operation: "commit", Err: errors.New("503")},
			true,
		},
		{
			"encoding failure",
			&EncodingError{Format: "json", Topic: "events", Offset: 42, Err: errors.New("bad value")},
			false,
		},
		{
			"flush wrapping storage failure",
			&FlushError{Key: "events-0-0", Err: &StorageError{Backend: "s3", Operation: "write", Err: errors.New("reset")}},
			true,
		},
		{
			"flush wrapping encoding failure",
			&FlushError{Key: "events-0-0", Err: &EncodingError{Format: "csv", Topic: "events", Err: errors.New("bad field")}},
			false,
		},
		{
			"storage error wrapping encoding failure",
			&StorageError{Backend: "s3", Operation: "write", Err: &EncodingError{Format: "csv", Err: errors.New("bad")}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlushError_Unwrap(t *testing.T) {
	inner := &EncodingError{Format: "json", Topic: "events", Offset: 1, Err: errors.New("bad")}
	err := &FlushError{Key: "events-0-1", Err: inner}

	var enc *EncodingError
	if !errors.As(err, &enc) {
		t.Fatal("expected errors.As to find the encoding error")
	}
	if enc.Offset != 1 {
		t.Errorf("Offset = %d, want 1", enc.Offset)
	}
}
