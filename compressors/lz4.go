package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/nexuscolumn/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor uses the lz4 block format. The block format does not
// record the original size, so decompression grows its buffer until the
// data fits.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

const lz4MaxDecompressedSize = 16 * 1024 * 1024

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(data) > 0 {
		return nil, fmt.Errorf("lz4 compression produced zero bytes for non-empty input")
	}
	return dst[:n], nil
}

func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	out, err := c.Compress(src)
	if err != nil {
		return err
	}
	dst.Reset()
	dst.Write(out)
	return nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	if len(data) == 0 {
		return &nopReadCloser{Reader: bytes.NewReader(nil)}, nil
	}
	dstSize := len(data) * 3
	if dstSize < 1024 {
		dstSize = 1024
	}
	dst := make([]byte, dstSize)
	for {
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return &nopReadCloser{Reader: bytes.NewReader(dst[:n])}, nil
		}
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			if len(dst) > lz4MaxDecompressedSize {
				return nil, fmt.Errorf("lz4 decompression buffer grew past %d bytes", lz4MaxDecompressedSize)
			}
			dst = make([]byte, len(dst)*2)
			continue
		}
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
