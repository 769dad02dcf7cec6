package tree

import (
	"github.com/INLOpen/nexuscolumn/blockstore"
	"github.com/INLOpen/nexuscolumn/core"
)

// sliceCursor serves an in-memory point list, already ordered in scan
// direction.
type sliceCursor struct {
	pts []point
	dir core.Direction
	pos int
}

var _ core.RealValuedIterator = (*sliceCursor)(nil)

func (c *sliceCursor) Read(ts []core.Timestamp, xs []float64) (int, error) {
	n := len(c.pts) - c.pos
	if n > len(ts) {
		n = len(ts)
	}
	for i := 0; i < n; i++ {
		p := c.pts[c.pos+i]
		ts[i] = p.ts
		xs[i] = p.value
	}
	c.pos += n
	if c.pos == len(c.pts) {
		return n, core.ErrNoData
	}
	return n, nil
}

func (c *sliceCursor) Direction() core.Direction {
	return c.dir
}

// extentCursor lazily loads a sealed extent from the block store and
// serves the points inside [lo, hi]. A missing block surfaces as
// core.ErrUnavailable, which chain-style consumers skip.
type extentCursor struct {
	store  blockstore.Store
	addr   core.LogicAddr
	lo, hi core.Timestamp
	dir    core.Direction

	loaded bool
	inner  sliceCursor
}

var _ core.RealValuedIterator = (*extentCursor)(nil)

func (c *extentCursor) load() error {
	data, err := c.store.Read(c.addr)
	if err != nil {
		return err
	}
	pts, err := decodeExtent(data)
	if err != nil {
		return err
	}
	c.inner = sliceCursor{pts: clipPoints(pts, c.lo, c.hi, c.dir), dir: c.dir}
	c.loaded = true
	return nil
}

func (c *extentCursor) Read(ts []core.Timestamp, xs []float64) (int, error) {
	if !c.loaded {
		if err := c.load(); err != nil {
			return 0, err
		}
	}
	return c.inner.Read(ts, xs)
}

func (c *extentCursor) Direction() core.Direction {
	return c.dir
}

// clipPoints filters ascending points to [lo, hi] and orders them in
// scan direction.
func clipPoints(pts []point, lo, hi core.Timestamp, dir core.Direction) []point {
	var out []point
	for _, p := range pts {
		if p.ts >= lo && p.ts <= hi {
			out = append(out, p)
		}
	}
	if dir == core.Backward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// loadFunc produces the points of one group-aggregate span, ascending.
type loadFunc func() ([]point, error)

// groupAggCursor folds the points of one extent span into step-aligned
// buckets. The first and last bucket may be clipped by the span
// bounds; downstream stitching merges them with the neighboring span.
type groupAggCursor struct {
	load               loadFunc
	spanLo, spanHiExcl core.Timestamp
	step               uint64
	dir                core.Direction

	built   bool
	buckets []core.AggregationResult
	pos     int
}

var _ core.AggregateIterator = (*groupAggCursor)(nil)

func (c *groupAggCursor) build() error {
	pts, err := c.load()
	if err != nil {
		return err
	}
	var inSpan []point
	for _, p := range pts {
		if p.ts >= c.spanLo && p.ts < c.spanHiExcl {
			inSpan = append(inSpan, p)
		}
	}
	if c.dir == core.Backward {
		for i, j := 0, len(inSpan)-1; i < j; i, j = i+1, j-1 {
			inSpan[i], inSpan[j] = inSpan[j], inSpan[i]
		}
	}
	var current core.AggregationResult
	currentBucket := core.Timestamp(0)
	open := false
	flush := func() {
		if open {
			c.buckets = append(c.buckets, current)
			open = false
		}
	}
	for _, p := range inSpan {
		bucket := core.Timestamp(uint64(p.ts) / c.step * c.step)
		if !open || bucket != currentBucket {
			flush()
			current = core.NewAggregationResult()
			currentBucket = bucket
			open = true
		}
		current.Add(p.ts, p.value)
		// bucket bounds come from the grid clipped to the span, not
		// from the observed points
		if c.dir == core.Forward {
			current.Begin = maxTs(bucket, c.spanLo)
			current.End = minTs(bucket+core.Timestamp(c.step), c.spanHiExcl)
		} else {
			current.Begin = minTs(bucket+core.Timestamp(c.step), c.spanHiExcl)
			current.End = maxTs(bucket, c.spanLo)
		}
	}
	flush()
	c.built = true
	return nil
}

func (c *groupAggCursor) Read(ts []core.Timestamp, xs []core.AggregationResult) (int, error) {
	if !c.built {
		if err := c.build(); err != nil {
			return 0, err
		}
	}
	n := len(c.buckets) - c.pos
	if n > len(xs) {
		n = len(xs)
	}
	for i := 0; i < n; i++ {
		res := c.buckets[c.pos+i]
		ts[i] = res.Begin
		xs[i] = res
	}
	c.pos += n
	if c.pos == len(c.buckets) {
		return n, core.ErrNoData
	}
	return n, nil
}

func (c *groupAggCursor) Direction() core.Direction {
	return c.dir
}

// aggCursor computes a single summary over one span of points.
type aggCursor struct {
	load   loadFunc
	lo, hi core.Timestamp
	dir    core.Direction
	done   bool
}

var _ core.AggregateIterator = (*aggCursor)(nil)

func (c *aggCursor) Read(ts []core.Timestamp, xs []core.AggregationResult) (int, error) {
	if c.done {
		return 0, core.ErrNoData
	}
	c.done = true
	pts, err := c.load()
	if err != nil {
		return 0, err
	}
	clipped := clipPoints(pts, c.lo, c.hi, c.dir)
	if len(clipped) == 0 {
		return 0, core.ErrNoData
	}
	res := core.NewAggregationResult()
	for _, p := range clipped {
		res.Add(p.ts, p.value)
	}
	if len(ts) == 0 || len(xs) == 0 {
		return 0, core.ErrNoData
	}
	ts[0] = res.End
	xs[0] = res
	return 1, core.ErrNoData
}

func (c *aggCursor) Direction() core.Direction {
	return c.dir
}

func minTs(a, b core.Timestamp) core.Timestamp {
	if a < b {
		return a
	}
	return b
}

func maxTs(a, b core.Timestamp) core.Timestamp {
	if a > b {
		return a
	}
	return b
}
