// Package codec implements the compression shim: a stateless
// compress/decompress pair over a wire compression tag. The codec is
// reinitialized on every call, matching original_source's
// compression.rs, which builds a fresh encoder/decoder per frame
// rather than keeping one around across calls.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/adryzz/ip2char/wire"
)

// Level selects zstd quality. original_source's CompressionType enum
// admits three zstd quality levels (Zstd, ZstdFast, ZstdSlow) that all
// share the single wire tag wire.CompressionZstd; Level is how a peer
// configuration picks among them without changing the wire tag.
type Level int

const (
	LevelDefault Level = iota
	LevelFast
	LevelBest
)

func (l Level) zstdLevel() zstd.EncoderLevel {
	switch l {
	case LevelFast:
		return zstd.SpeedFastest
	case LevelBest:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// Compress writes the (possibly compressed) form of data into dst and
// returns the number of bytes written. dst must be large enough to
// hold the worst case (callers size scratch buffers generously); if
// the output does not fit, Compress returns a "dst too small" error
// and nothing usable is in dst.
func Compress(data []byte, dst []byte, tag byte, level Level) (int, error) {
	switch tag {
	case wire.CompressionNone:
		n := copy(dst, data)
		if n < len(data) {
			return 0, fmt.Errorf("codec: dst too small: need %d, have %d", len(data), len(dst))
		}
		return n, nil
	case wire.CompressionZstd:
		return compressZstd(data, dst, level)
	case wire.CompressionGzip:
		return compressGzip(data, dst)
	default:
		return 0, &wire.NoSuchVariantError{Tag: tag}
	}
}

// Decompress returns the decompressed form of data under tag. For
// CompressionNone it returns a copy of data (never the same backing
// array, so callers may safely reuse their read buffer).
func Decompress(data []byte, tag byte) ([]byte, error) {
	switch tag {
	case wire.CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	case wire.CompressionZstd:
		return decompressZstd(data)
	case wire.CompressionGzip:
		return decompressGzip(data)
	default:
		return nil, &wire.NoSuchVariantError{Tag: tag}
	}
}

func compressZstd(data, dst []byte, level Level) (int, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(level.zstdLevel()))
	if err != nil {
		return 0, fmt.Errorf("codec: zstd writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return 0, fmt.Errorf("codec: zstd write: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("codec: zstd close: %w", err)
	}
	n := copy(dst, buf.Bytes())
	if n < buf.Len() {
		return 0, fmt.Errorf("codec: dst too small for zstd output: need %d, have %d", buf.Len(), len(dst))
	}
	return n, nil
}

func decompressZstd(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: zstd reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd read: %w", err)
	}
	return out, nil
}

func compressGzip(data, dst []byte) (int, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return 0, fmt.Errorf("codec: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("codec: gzip close: %w", err)
	}
	n := copy(dst, buf.Bytes())
	if n < buf.Len() {
		return 0, fmt.Errorf("codec: dst too small for gzip output: need %d, have %d", buf.Len(), len(dst))
	}
	return n, nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: gzip reader: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: gzip read: %w", err)
	}
	return out, nil
}
