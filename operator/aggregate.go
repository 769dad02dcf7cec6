package operator

import (
	"log/slog"

	"github.com/INLOpen/nexuscolumn/core"
)

// Aggregator materializes one summary FLOAT sample per series. Each
// aggregate cursor is expected to produce exactly one record; cursors
// that produce a different count are logged and skipped.
type Aggregator struct {
	iters  []core.AggregateIterator
	ids    []core.Id
	pos    int
	fn     core.AggregationFunc
	logger *slog.Logger
}

var _ core.Materializer = (*Aggregator)(nil)

func NewAggregator(ids []core.Id, iters []core.AggregateIterator, fn core.AggregationFunc, logger *slog.Logger) *Aggregator {
	if len(ids) != len(iters) {
		panicInvariant("Aggregator - broken invariant: %d ids, %d iterators", len(ids), len(iters))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		iters:  iters,
		ids:    ids,
		fn:     fn,
		logger: logger.With("component", "Aggregator"),
	}
}

func (a *Aggregator) Read(dest []byte) (int, error) {
	written := 0
	err := error(core.ErrNoData)
	tsArr := make([]core.Timestamp, 1)
	xsArr := make([]core.AggregationResult, 1)
	for a.pos < len(a.iters) {
		if len(dest)-written < core.HeaderSize {
			return written, nil
		}
		var n int
		n, err = a.iters[a.pos].Read(tsArr, xsArr)
		if n != 1 {
			a.logger.Debug("unexpected aggregate size", "size", n, "id", a.ids[a.pos])
			if err != nil && !core.IsEndOfStream(err) {
				return written, err
			}
			a.pos++
			err = core.ErrNoData
			continue
		}
		res := &xsArr[0]
		sample := core.Sample{
			ID:          a.ids[a.pos],
			PayloadType: core.PayloadFloat,
		}
		switch a.fn {
		case core.AggMin:
			sample.Timestamp = res.MinTs
			sample.Value = res.Min
		case core.AggMax:
			sample.Timestamp = res.MaxTs
			sample.Value = res.Max
		case core.AggSum:
			sample.Timestamp = res.End
			sample.Value = res.Sum
		case core.AggCnt:
			sample.Timestamp = res.End
			sample.Value = res.Cnt
		case core.AggMean:
			sample.Timestamp = res.End
			sample.Value = res.Mean()
		}
		cnt, encErr := sample.EncodeTo(dest[written:])
		if encErr != nil {
			return written, encErr
		}
		written += cnt
		a.pos++
		if err != nil && !core.IsEndOfStream(err) {
			// Stop iteration on error!
			return written, err
		}
		err = core.ErrNoData
	}
	return written, err
}

// CombineAggregateOperator presents a list of aggregate cursors as one
// cursor: each sub-iterator is read exactly once and its record
// forwarded. Direction is taken from the first sub-iterator, or
// Forward if the list is empty.
type CombineAggregateOperator struct {
	iters []core.AggregateIterator
	pos   int
	dir   core.Direction
}

var _ core.AggregateIterator = (*CombineAggregateOperator)(nil)

func NewCombineAggregateOperator(iters []core.AggregateIterator) *CombineAggregateOperator {
	dir := core.Forward
	if len(iters) > 0 {
		dir = iters[0].Direction()
	}
	return &CombineAggregateOperator{iters: iters, dir: dir}
}

func (c *CombineAggregateOperator) Read(ts []core.Timestamp, xs []core.AggregationResult) (int, error) {
	if len(ts) != len(xs) {
		panicInvariant("CombineAggregateOperator - broken invariant: dest sizes %d != %d", len(ts), len(xs))
	}
	out := 0
	err := error(core.ErrNoData)
	for c.pos < len(c.iters) && out < len(ts) {
		var n int
		n, err = c.iters[c.pos].Read(ts[out:out+1], xs[out:out+1])
		out += n
		c.pos++
		if err != nil && !core.IsEndOfStream(err) {
			return out, err
		}
		err = core.ErrNoData
	}
	if c.pos < len(c.iters) {
		// destination filled before the list was exhausted
		return out, nil
	}
	return out, err
}

func (c *CombineAggregateOperator) Direction() core.Direction {
	return c.dir
}
