package zarr

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/qri-io/dataset/compression"
)

// Codec ids zarr-go understands
const (
	CodecGZip  = "gzip"
	CodecZstd  = "zstd"
	CodecZlib  = "zlib"
	CodecBlosc = "blosc"
)

// CompressionMeta defines compression settings zarr-go understands. A nil
// *CompressionMeta means chunks are stored raw.
type CompressionMeta struct {
	ID        string `json:"id"`
	Cname     string `json:"cname,omitempty"`
	Clevel    int    `json:"clevel,omitempty"`
	Shuffle   int    `json:"shuffle,omitempty"`
	Blocksize int    `json:"blocksize,omitempty"`
	Level     int    `json:"level,omitempty"`
}

func (m *CompressionMeta) Decompressor(r io.Reader) (io.ReadCloser, error) {
	if m == nil {
		return io.NopCloser(r), nil
	}
	switch m.ID {
	case CodecGZip:
		return compression.Decompressor(CodecGZip, r)
	case CodecZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case CodecZlib:
		return zlib.NewReader(r)
	case CodecBlosc:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		out, err := decodeBlosc(data)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(out)), nil
	}
	return nil, fmt.Errorf("%w: compressor %q", ErrUnsupported, m.ID)
}

// Compressor wraps w with the configured codec. typesize is the element size
// blosc shuffles by. Callers must Close the returned writer to flush it.
func (m *CompressionMeta) Compressor(w io.Writer, typesize int) (io.WriteCloser, error) {
	if m == nil {
		return nopWriteCloser{w}, nil
	}
	switch m.ID {
	case CodecGZip:
		return compression.Compressor(CodecGZip, w)
	case CodecZstd:
		if m.Level != 0 {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(m.Level)))
		}
		return zstd.NewWriter(w)
	case CodecZlib:
		if m.Level != 0 {
			return zlib.NewWriterLevel(w, m.Level)
		}
		return zlib.NewWriter(w), nil
	case CodecBlosc:
		if _, _, err := bloscCompressor(m.Cname); err != nil {
			return nil, err
		}
		return &bloscWriter{w: w, typesize: typesize, meta: m}, nil
	}
	return nil, fmt.Errorf("%w: writing with compressor %q", ErrUnsupported, m.ID)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
