// Package codec implements the compression transforms applied to object
// byte streams.
package codec

import (
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Type identifies a compression codec.
type Type string

const (
	None   Type = "none"
	Gzip   Type = "gzip"
	Snappy Type = "snappy"
	Zstd   Type = "zstd"
)

// Parse resolves a configuration value to a codec. Unrecognized values fail
// here, at start time, never per batch.
func Parse(s string) (Type, error) {
	switch Type(s) {
	case None, "":
		return None, nil
	case Gzip:
		return Gzip, nil
	case Snappy:
		return Snappy, nil
	case Zstd:
		return Zstd, nil
	default:
		return "", fmt.Errorf("unsupported compression codec: %q", s)
	}
}

// Extension returns the file extension appended to legacy-strategy object keys.
func (t Type) Extension() string {
	switch t {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".snappy"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// NewWriter wraps w with the codec's compressor. Closing the returned writer
// flushes and finalizes the compression footer but does not close w.
func (t Type) NewWriter(w io.Writer) (io.WriteCloser, error) {
	switch t {
	case None:
		return nopCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported compression codec: %q", t)
	}
}

// NewReader wraps r with the codec's decompressor. Used by tests and tooling
// to read objects back.
func (t Type) NewReader(r io.Reader) (io.Reader, error) {
	switch t {
	case None:
		return r, nil
	case Gzip:
		return gzip.NewReader(r)
	case Snappy:
		return snappy.NewReader(r), nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unsupported compression codec: %q", t)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
