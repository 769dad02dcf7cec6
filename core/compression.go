package core

import (
	"bytes"
	"io"
)

// Compressor defines the interface for block compression algorithms.
// The Type is stored in the block frame so the reader knows how to
// decompress.
type Compressor interface {
	// Compress compresses the input data.
	Compress(data []byte) ([]byte, error)
	// CompressTo compresses src into dst, reusing dst's storage.
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress decompresses the input data.
	Decompress(data []byte) (io.ReadCloser, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}
