// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrSinkStopped    = errors.New("sink is stopped")
	ErrConsumerClosed = errors.New("consumer is closed")
	ErrWriterClosed   = errors.New("object writer is closed")
	ErrUploadAborted  = errors.New("upload aborted")
	ErrConnectionLost = errors.New("connection lost")
)

// TemplateError represents an invalid filename template. It is raised at
// configuration time, never per record.
type TemplateError struct {
	Template string
	Variable string
	Reason   string
}

func (e *TemplateError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("template error: template=%q variable=%q: %s",
			e.Template, e.Variable, e.Reason)
	}
	return fmt.Sprintf("template error: template=%q: %s", e.Template, e.Reason)
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Backend   string
	Operation string
	Key       string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: backend=%s operation=%s key=%s: %v",
		e.Backend, e.Operation, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if a StorageError is retryable. Upload failures are
// transient from the host's perspective: the batches are preserved and the
// next flush cycle retries them.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "open" || e.Operation == "write" || e.Operation == "commit"
}

// EncodingError represents a record that cannot be serialized in the
// configured output format.
type EncodingError struct {
	Format string
	Topic  string
	Offset int64
	Err    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding error: format=%s topic=%s offset=%d: %v",
		e.Format, e.Topic, e.Offset, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// FlushError wraps the first failure of a flush cycle together with the
// destination key it occurred on.
type FlushError struct {
	Key string
	Err error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flush error: key=%s: %v", e.Key, e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the wrapped failure is retryable.
func (e *FlushError) IsRetryable() bool {
	return IsRetryable(e.Err)
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking sentinel errors. Template and encoding errors
// are never retryable: redelivering the same records reproduces them.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var encErr *EncodingError
	if errors.As(err, &encErr) {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	if errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}
