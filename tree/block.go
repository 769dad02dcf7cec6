package tree

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/INLOpen/nexuscolumn/core"
)

// point is one (timestamp, value) pair of a series.
type point struct {
	ts    core.Timestamp
	value float64
}

// Sealed extents are encoded as: count (u32) followed by count
// (ts u64, value u64) pairs, big-endian, points ascending by
// timestamp. The block store adds compression and checksumming on top.

func encodeExtent(points []point) []byte {
	buf := make([]byte, 4+16*len(points))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(points)))
	off := 4
	for _, p := range points {
		binary.BigEndian.PutUint64(buf[off:off+8], p.ts)
		binary.BigEndian.PutUint64(buf[off+8:off+16], math.Float64bits(p.value))
		off += 16
	}
	return buf
}

func decodeExtent(data []byte) ([]point, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("truncated extent block: %w", core.ErrBadArg)
	}
	count := int(binary.BigEndian.Uint32(data[0:4]))
	if len(data) != 4+16*count {
		return nil, fmt.Errorf("extent block size mismatch (count=%d, size=%d): %w", count, len(data), core.ErrBadArg)
	}
	points := make([]point, count)
	off := 4
	for i := 0; i < count; i++ {
		points[i] = point{
			ts:    binary.BigEndian.Uint64(data[off : off+8]),
			value: math.Float64frombits(binary.BigEndian.Uint64(data[off+8 : off+16])),
		}
		off += 16
	}
	return points, nil
}
