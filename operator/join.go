package operator

import (
	"errors"

	"github.com/INLOpen/nexuscolumn/core"
)

const (
	// joinBufferSize is the per-column buffer capacity in samples.
	joinBufferSize = 4096
	// MaxTupleSize bounds the number of joined columns; the presence
	// bitmap is one 64-bit word.
	MaxTupleSize = 64
)

type joinColumn struct {
	ts   []core.Timestamp
	xs   []float64
	pos  int
	size int
}

// JoinOperator assembles rows across M series cursors sharing a time
// range. Rows are keyed by column 0's timestamps; for every other
// column the value with exactly the key timestamp contributes to the
// row, recorded in a presence bitmap. Implements core.Materializer,
// producing TUPLE samples of size HeaderSize + 8*popcount(bitmap).
type JoinOperator struct {
	iters []core.RealValuedIterator
	ids   []core.Id
	cols  []joinColumn
	done  bool
}

var _ core.Materializer = (*JoinOperator)(nil)

func NewJoinOperator(ids []core.Id, iters []core.RealValuedIterator) *JoinOperator {
	if len(ids) != len(iters) || len(ids) > MaxTupleSize || len(ids) == 0 {
		panicInvariant("JoinOperator - invalid join: %d ids, %d iterators", len(ids), len(iters))
	}
	cols := make([]joinColumn, len(iters))
	for i := range cols {
		cols[i] = joinColumn{
			ts: make([]core.Timestamp, joinBufferSize),
			xs: make([]float64, joinBufferSize),
		}
	}
	return &JoinOperator{iters: iters, ids: ids, cols: cols}
}

// fillBuffers refills every column buffer together. Unconsumed entries
// of non-key columns lie at or ahead of the last key and can still match
// a later row, so they are moved to the front of the buffer and the
// cursor fills the space behind them.
func (j *JoinOperator) fillBuffers() error {
	if j.cols[0].pos != j.cols[0].size {
		panicInvariant("JoinOperator - key column buffer is not consumed")
	}
	for i := range j.cols {
		col := &j.cols[i]
		keep := copy(col.ts, col.ts[col.pos:col.size])
		copy(col.xs, col.xs[col.pos:col.size])
		n, err := j.iters[i].Read(col.ts[keep:], col.xs[keep:])
		if err != nil && !errors.Is(err, core.ErrNoData) {
			return err
		}
		col.pos = 0
		col.size = keep + n
	}
	return nil
}

func (j *JoinOperator) Read(dest []byte) (int, error) {
	if j.done {
		return 0, core.ErrNoData
	}
	ncols := len(j.iters)
	// A row can reference every column: refuse to emit unless the
	// worst case fits.
	maxRowSize := core.HeaderSize + 8*ncols
	written := 0
	tuple := make([]float64, 0, ncols)
	for len(dest)-written >= maxRowSize {
		if j.cols[0].pos == j.cols[0].size {
			if err := j.fillBuffers(); err != nil {
				return written, err
			}
			if j.cols[0].size == 0 {
				// key column exhausted, no more rows
				j.done = true
				return written, core.ErrNoData
			}
		}
		key := j.cols[0].ts[j.cols[0].pos]
		bitmap := uint64(1)
		tuple = tuple[:0]
		tuple = append(tuple, j.cols[0].xs[j.cols[0].pos])
		for i := 1; i < ncols; i++ {
			col := &j.cols[i]
			for col.pos < col.size && col.ts[col.pos] < key {
				col.pos++
			}
			// An exhausted column is absent for this row.
			if col.pos < col.size && col.ts[col.pos] == key {
				bitmap |= uint64(1) << uint(i)
				tuple = append(tuple, col.xs[col.pos])
			}
		}
		sample := core.Sample{
			ID:          j.ids[0],
			Timestamp:   key,
			PayloadType: core.PayloadTuple,
			Bitmap:      bitmap,
			Tuple:       append([]float64(nil), tuple...),
		}
		n, err := sample.EncodeTo(dest[written:])
		if err != nil {
			return written, err
		}
		written += n
		j.cols[0].pos++
	}
	return written, nil
}
