// Package compressors provides the block compression algorithms used by
// the block store: none, snappy, lz4 and zstd.
package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/nexuscolumn/core"
	"github.com/golang/snappy"
)

// Get returns the compressor registered for the given type.
func Get(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return &NoCompression{}, nil
	case core.CompressionSnappy:
		return &SnappyCompressor{}, nil
	case core.CompressionLZ4:
		return &LZ4Compressor{}, nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("unknown compression type %d: %w", ct, core.ErrBadArg)
	}
}

// nopReadCloser wraps a bytes.Reader into an io.ReadCloser for
// decompressors that produce in-memory data.
type nopReadCloser struct {
	*bytes.Reader
}

func (rc *nopReadCloser) Close() error { return nil }

// NoCompression passes data through unchanged.
type NoCompression struct{}

var _ core.Compressor = (*NoCompression)(nil)

func (c *NoCompression) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c *NoCompression) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	_, err := dst.Write(src)
	return err
}

func (c *NoCompression) Decompress(data []byte) (io.ReadCloser, error) {
	return &nopReadCloser{Reader: bytes.NewReader(data)}, nil
}

func (c *NoCompression) Type() core.CompressionType {
	return core.CompressionNone
}

// SnappyCompressor uses the snappy block format.
type SnappyCompressor struct{}

var _ core.Compressor = (*SnappyCompressor)(nil)

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Write(snappy.Encode(nil, src))
	return nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &nopReadCloser{Reader: bytes.NewReader(decoded)}, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}
