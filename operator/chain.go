package operator

import (
	"github.com/INLOpen/nexuscolumn/core"
)

// ChainOperator concatenates a fixed ordered list of real-valued
// cursors. A cursor that reports end-of-stream or an unavailable block
// is skipped and iteration continues with the next one.
type ChainOperator struct {
	iters []core.RealValuedIterator
	pos   int
	dir   core.Direction
}

var _ core.RealValuedIterator = (*ChainOperator)(nil)

func NewChainOperator(dir core.Direction, iters []core.RealValuedIterator) *ChainOperator {
	return &ChainOperator{iters: iters, dir: dir}
}

func (c *ChainOperator) Read(ts []core.Timestamp, xs []float64) (int, error) {
	if len(ts) != len(xs) {
		panicInvariant("ChainOperator - broken invariant: dest sizes %d != %d", len(ts), len(xs))
	}
	acc := 0
	err := error(core.ErrNoData)
	for c.pos < len(c.iters) {
		var n int
		n, err = c.iters[c.pos].Read(ts[acc:], xs[acc:])
		acc += n
		if acc == len(ts) {
			break
		}
		if core.IsEndOfStream(err) {
			// this cursor is empty or its block was removed,
			// continue with the next one
			c.pos++
			err = core.ErrNoData
			continue
		}
		if err != nil {
			// Stop iteration on error!
			return acc, err
		}
	}
	return acc, err
}

func (c *ChainOperator) Direction() core.Direction {
	return c.dir
}

// ChainMaterializer concatenates per-series cursors and encodes every
// point as a FLOAT sample stamped with the id of the cursor that
// produced it.
type ChainMaterializer struct {
	iters []core.RealValuedIterator
	ids   []core.Id
	pos   int
}

var _ core.Materializer = (*ChainMaterializer)(nil)

func NewChainMaterializer(ids []core.Id, iters []core.RealValuedIterator) *ChainMaterializer {
	if len(ids) != len(iters) {
		panicInvariant("ChainMaterializer - broken invariant: %d ids, %d iterators", len(ids), len(iters))
	}
	return &ChainMaterializer{iters: iters, ids: ids}
}

func (c *ChainMaterializer) Read(dest []byte) (int, error) {
	capacity := len(dest) / core.HeaderSize
	if capacity == 0 {
		return 0, nil
	}
	ts := make([]core.Timestamp, capacity)
	xs := make([]float64, capacity)
	acc := 0
	err := error(core.ErrNoData)
	for c.pos < len(c.iters) {
		var n int
		n, err = c.iters[c.pos].Read(ts[acc:], xs[acc:])
		for i := acc; i < acc+n; i++ {
			sample := core.Sample{
				ID:          c.ids[c.pos],
				Timestamp:   ts[i],
				PayloadType: core.PayloadFloat,
				Value:       xs[i],
			}
			if _, encErr := sample.EncodeTo(dest[i*core.HeaderSize:]); encErr != nil {
				return i * core.HeaderSize, encErr
			}
		}
		acc += n
		if acc == capacity {
			break
		}
		if core.IsEndOfStream(err) {
			c.pos++
			err = core.ErrNoData
			continue
		}
		if err != nil {
			break
		}
	}
	return acc * core.HeaderSize, err
}

// EventChainMaterializer concatenates per-series event cursors and
// encodes each record as an EVENT sample. Events are pulled one at a
// time so a full destination never truncates a payload.
type EventChainMaterializer struct {
	iters []core.BinaryDataIterator
	ids   []core.Id
	pos   int

	currTs    core.Timestamp
	currBody  []byte
	available bool
}

var _ core.Materializer = (*EventChainMaterializer)(nil)

func NewEventChainMaterializer(ids []core.Id, iters []core.BinaryDataIterator) *EventChainMaterializer {
	if len(ids) != len(iters) {
		panicInvariant("EventChainMaterializer - broken invariant: %d ids, %d iterators", len(ids), len(iters))
	}
	return &EventChainMaterializer{iters: iters, ids: ids}
}

func (c *EventChainMaterializer) Read(dest []byte) (int, error) {
	acc := 0
	err := error(core.ErrNoData)
	for c.pos < len(c.iters) {
		if !c.available {
			tsArr := make([]core.Timestamp, 1)
			bodyArr := make([][]byte, 1)
			var n int
			n, err = c.iters[c.pos].Read(tsArr, bodyArr)
			if n == 0 {
				if err != nil && !core.IsEndOfStream(err) {
					// Stop iteration on error!
					break
				}
				c.pos++
				err = core.ErrNoData
				continue
			}
			c.currTs = tsArr[0]
			c.currBody = bodyArr[0]
			c.available = true
		}
		sample := core.Sample{
			ID:          c.ids[c.pos],
			Timestamp:   c.currTs,
			PayloadType: core.PayloadEvent,
			Event:       c.currBody,
		}
		needed := sample.EncodedSize()
		if len(dest)-acc < needed {
			// keep the pending event for the next call
			return acc, nil
		}
		n, encErr := sample.EncodeTo(dest[acc:])
		if encErr != nil {
			return acc, encErr
		}
		acc += n
		c.available = false
	}
	return acc, err
}
