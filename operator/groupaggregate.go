package operator

import (
	"github.com/INLOpen/nexuscolumn/core"
)

// rdbufSize is the capacity of the group-aggregate read buffer.
const rdbufSize = 256

// CombineGroupAggregateOperator joins several group-aggregate cursors
// covering disjoint time spans, in scan order, into one step-bucketed
// stream. The first and last bucket produced by any sub-cursor may be
// partial; a partial bucket at one cursor's trailing end is merged with
// the bucket at the next cursor's leading end when both fall into the
// same step. The last buffered bucket is always retained until the next
// refill so the merge can happen; surfacing it early would double
// count.
type CombineGroupAggregateOperator struct {
	step  uint64
	iters []core.AggregateIterator
	dir   core.Direction
	pos   int

	rdbuf []core.AggregationResult
	rdpos int
	done  bool

	// curFresh is true when the next record read from iters[pos] is
	// that cursor's first, i.e. a potential merge candidate.
	curFresh bool
}

var _ core.AggregateIterator = (*CombineGroupAggregateOperator)(nil)

func NewCombineGroupAggregateOperator(step uint64, iters []core.AggregateIterator) *CombineGroupAggregateOperator {
	if step == 0 {
		panicInvariant("CombineGroupAggregateOperator - zero step")
	}
	dir := core.Forward
	if len(iters) > 0 {
		dir = iters[0].Direction()
	}
	return &CombineGroupAggregateOperator{
		step:     step,
		iters:    iters,
		dir:      dir,
		rdbuf:    make([]core.AggregationResult, 0, rdbufSize),
		curFresh: true,
	}
}

// sameBucket reports whether the bucket that ends cursor i is partial,
// in which case the bucket that opens cursor i+1 continues it.
func (g *CombineGroupAggregateOperator) sameBucket(tail *core.AggregationResult) bool {
	if g.dir == core.Forward {
		return tail.End < tail.Begin+g.step
	}
	return tail.End > tail.Begin-g.step
}

// elementsInRdbuf returns the number of buffered records that may be
// copied out. While more input can arrive, the final record stays
// behind for stitching.
func (g *CombineGroupAggregateOperator) elementsInRdbuf() int {
	avail := len(g.rdbuf) - g.rdpos
	if !g.done && avail > 0 {
		avail--
	}
	return avail
}

// refillReadBuffer moves the retained record to the front of the
// buffer and reads more records behind it, merging across cursor
// boundaries when the retained bucket is partial.
func (g *CombineGroupAggregateOperator) refillReadBuffer() error {
	fill := 0
	if len(g.rdbuf) > 0 {
		tail := g.rdbuf[len(g.rdbuf)-1]
		g.rdbuf = g.rdbuf[:1]
		g.rdbuf[0] = tail
		fill = 1
	} else {
		g.rdbuf = g.rdbuf[:0]
	}
	g.rdpos = 0
	if g.pos >= len(g.iters) {
		g.done = true
		return core.ErrNoData
	}
	g.rdbuf = g.rdbuf[:rdbufSize]
	ts := make([]core.Timestamp, rdbufSize)
	for g.pos < len(g.iters) && fill < rdbufSize {
		n, err := g.iters[g.pos].Read(ts[fill:], g.rdbuf[fill:])
		if n > 0 && g.curFresh && fill > 0 {
			// first record of this cursor: stitch with the
			// retained tail when they share a bucket
			prev := &g.rdbuf[fill-1]
			if g.sameBucket(prev) {
				prev.Combine(&g.rdbuf[fill])
				copy(g.rdbuf[fill:], g.rdbuf[fill+1:fill+n])
				n--
			}
		}
		if n > 0 {
			g.curFresh = false
		}
		fill += n
		if err != nil {
			if core.IsEndOfStream(err) {
				g.pos++
				g.curFresh = true
				continue
			}
			g.rdbuf = g.rdbuf[:fill]
			return err
		}
		// cursor has more data but our buffer is full
		if fill == rdbufSize {
			break
		}
	}
	g.rdbuf = g.rdbuf[:fill]
	if g.pos >= len(g.iters) {
		g.done = true
	}
	return nil
}

// copyTo drains as many complete buckets as fit into the destination
// arrays and returns the number copied.
func (g *CombineGroupAggregateOperator) copyTo(ts []core.Timestamp, xs []core.AggregationResult) int {
	avail := g.elementsInRdbuf()
	n := avail
	if n > len(ts) {
		n = len(ts)
	}
	for i := 0; i < n; i++ {
		res := g.rdbuf[g.rdpos]
		ts[i] = res.Begin
		xs[i] = res
		g.rdpos++
	}
	return n
}

func (g *CombineGroupAggregateOperator) Read(ts []core.Timestamp, xs []core.AggregationResult) (int, error) {
	if len(ts) != len(xs) {
		panicInvariant("CombineGroupAggregateOperator - broken invariant: dest sizes %d != %d", len(ts), len(xs))
	}
	out := 0
	for out < len(ts) {
		n := g.copyTo(ts[out:], xs[out:])
		out += n
		if out == len(ts) {
			return out, nil
		}
		if g.done {
			return out, core.ErrNoData
		}
		if err := g.refillReadBuffer(); err != nil && !core.IsEndOfStream(err) {
			return out, err
		}
	}
	return out, nil
}

func (g *CombineGroupAggregateOperator) Direction() core.Direction {
	return g.dir
}
