// Package gzipcodec wraps klauspost/compress's drop-in gzip codec for the
// KDBX payload compression step (spec.md §4.A, §3 Compression).
package gzipcodec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"

	"keevault/internal/kerrors"
)

// Decompress gunzips b, failing with kerrors.KindCompression on a
// malformed stream.
func Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCompression, err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.KindCompression, err)
	}
	return out, nil
}

// Compress gzips b. Used only by the (non-goal) write path's dependency
// surface; kept alongside Decompress so the codec stays symmetric.
func Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, kerrors.Wrap(kerrors.KindCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, kerrors.Wrap(kerrors.KindCompression, err)
	}
	return buf.Bytes(), nil
}
