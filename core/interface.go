package core

// RealValuedIterator is a per-series cursor over (timestamp, value)
// points within a time range. Read fills ts and xs (which must have the
// same length) and returns the number of points produced. ErrNoData may
// accompany a positive count for the final partial block; ErrUnavailable
// means the backing block was removed. A cursor must be driven by one
// goroutine at a time.
type RealValuedIterator interface {
	Read(ts []Timestamp, xs []float64) (int, error)
	Direction() Direction
}

// AggregateIterator is a per-series cursor producing AggregationResult
// records. Single-shot aggregators produce at most one record;
// group-aggregate cursors produce one record per step bucket.
type AggregateIterator interface {
	Read(ts []Timestamp, xs []AggregationResult) (int, error)
	Direction() Direction
}

// BinaryDataIterator is a per-series cursor over (timestamp, payload)
// event records.
type BinaryDataIterator interface {
	Read(ts []Timestamp, xs [][]byte) (int, error)
	Direction() Direction
}

// Materializer converts operator output into the wire sample format.
// Read writes back-to-back encoded samples into dest and returns the
// number of bytes produced. A materializer never truncates a sample: it
// stops early when the remaining destination cannot hold the worst case.
type Materializer interface {
	Read(dest []byte) (int, error)
}

// StreamProcessor consumes the materialized sample stream. Put returns
// false to refuse further input, which halts the drain loop cleanly at
// the next sample boundary.
type StreamProcessor interface {
	Put(sample Sample) bool
	SetError(err error)
	Complete()
}

// Matcher resolves series ids back to names for diagnostics. The
// series-name index itself is an external collaborator.
type Matcher interface {
	Name(id Id) string
}
