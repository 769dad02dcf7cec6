// Package tree implements the per-series append-only extent list. New
// points accumulate in a skiplist-backed active extent; once the
// extent reaches the configured threshold it is sealed into the block
// store and its address becomes part of the tree's rescue points.
package tree

import (
	"log/slog"
	"math"
	"sync"

	"github.com/INLOpen/skiplist"

	"github.com/INLOpen/nexuscolumn/blockstore"
	"github.com/INLOpen/nexuscolumn/core"
	"github.com/INLOpen/nexuscolumn/operator"
)

// AppendResult is the outcome of a single append.
type AppendResult int

const (
	AppendOK AppendResult = iota
	// AppendFlushNeeded signals that the active extent was sealed and
	// the tree's rescue points changed.
	AppendFlushNeeded
	AppendFailBadValue
	AppendFailBadID
)

func (r AppendResult) String() string {
	switch r {
	case AppendOK:
		return "ok"
	case AppendFlushNeeded:
		return "ok-flush-needed"
	case AppendFailBadValue:
		return "fail-bad-value"
	case AppendFailBadID:
		return "fail-bad-id"
	default:
		return "unknown"
	}
}

// DefaultExtentSizeThreshold is the number of points an active extent
// holds before it is sealed.
const DefaultExtentSizeThreshold = 4096

// Options configures a Tree.
type Options struct {
	// ExtentSizeThreshold is the active-extent seal point, in points.
	ExtentSizeThreshold int
	Logger              *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ExtentSizeThreshold <= 0 {
		o.ExtentSizeThreshold = DefaultExtentSizeThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// extent is the metadata of one sealed extent. known is false when the
// tree was restored from rescue points whose block could not be read;
// the extent is kept so reads surface core.ErrUnavailable instead of
// silently dropping the span.
type extent struct {
	addr       core.LogicAddr
	begin, end core.Timestamp
	count      int
	known      bool
}

// Tree owns the extent list of one series. Appends are serialized by
// the tree's own mutex; cursors returned by Search, Aggregate and
// GroupAggregate are independent of the lock once constructed.
type Tree struct {
	mu     sync.Mutex
	id     core.Id
	store  blockstore.Store
	opts   Options
	logger *slog.Logger

	sealed  []extent
	active  *skiplist.SkipList[uint64, float64]
	lastTs  core.Timestamp
	hasLast bool
	closed  bool
}

func tsComparator(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NewTree creates an empty tree for id.
func NewTree(id core.Id, store blockstore.Store, opts Options) *Tree {
	opts = opts.withDefaults()
	return &Tree{
		id:     id,
		store:  store,
		opts:   opts,
		logger: opts.Logger.With("component", "Tree", "id", id),
		active: skiplist.NewWithComparator[uint64, float64](tsComparator),
	}
}

// OpenTree restores a tree from its rescue points. Unreadable roots
// are logged and kept: the tree still opens. Reads over a missing block
// report core.ErrUnavailable; reads over a corrupt block report the
// store's checksum error.
func OpenTree(id core.Id, rescuePoints []core.LogicAddr, store blockstore.Store, opts Options) *Tree {
	t := NewTree(id, store, opts)
	for _, addr := range rescuePoints {
		ext := extent{addr: addr}
		data, err := store.Read(addr)
		if err == nil {
			var pts []point
			pts, err = decodeExtent(data)
			if err == nil && len(pts) > 0 {
				ext.begin = pts[0].ts
				ext.end = pts[len(pts)-1].ts
				ext.count = len(pts)
				ext.known = true
				t.lastTs = ext.end
				t.hasLast = true
			}
		}
		if !ext.known {
			t.logger.Error("repair needed", "addr", addr, "error", err)
		}
		t.sealed = append(t.sealed, ext)
	}
	return t
}

// ForceInit completes initialization after open. The in-memory tree
// has nothing to warm up; the hook exists so the registry drives every
// tree through the same lifecycle.
func (t *Tree) ForceInit() {
	t.logger.Debug("tree initialized", "extents", len(t.sealed))
}

// Id returns the series id the tree belongs to.
func (t *Tree) Id() core.Id {
	return t.id
}

// Append adds one point. Timestamps must be strictly increasing; NaN
// values and out-of-order points are rejected with
// AppendFailBadValue.
func (t *Tree) Append(ts core.Timestamp, value float64) AppendResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return AppendFailBadID
	}
	if math.IsNaN(value) {
		return AppendFailBadValue
	}
	if t.hasLast && ts <= t.lastTs {
		return AppendFailBadValue
	}
	t.active.Insert(ts, value)
	t.lastTs = ts
	t.hasLast = true
	if t.active.Len() >= t.opts.ExtentSizeThreshold {
		if err := t.sealLocked(); err != nil {
			// keep the data in the active extent and retry at the
			// next append
			t.logger.Error("extent seal failed", "error", err)
			return AppendOK
		}
		return AppendFlushNeeded
	}
	return AppendOK
}

// sealLocked freezes the active extent into the block store.
func (t *Tree) sealLocked() error {
	pts := t.snapshotActiveLocked()
	if len(pts) == 0 {
		return nil
	}
	addr, err := t.store.Append(encodeExtent(pts))
	if err != nil {
		return err
	}
	t.sealed = append(t.sealed, extent{
		addr:  addr,
		begin: pts[0].ts,
		end:   pts[len(pts)-1].ts,
		count: len(pts),
		known: true,
	})
	t.active = skiplist.NewWithComparator[uint64, float64](tsComparator)
	return nil
}

func (t *Tree) snapshotActiveLocked() []point {
	pts := make([]point, 0, t.active.Len())
	t.active.Range(func(ts uint64, value float64) bool {
		pts = append(pts, point{ts: ts, value: value})
		return true
	})
	return pts
}

// GetRoots returns the current rescue points.
func (t *Tree) GetRoots() []core.LogicAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootsLocked()
}

func (t *Tree) rootsLocked() []core.LogicAddr {
	roots := make([]core.LogicAddr, len(t.sealed))
	for i, ext := range t.sealed {
		roots[i] = ext.addr
	}
	return roots
}

// Close seals the active extent and detaches the tree. It returns the
// final rescue points.
func (t *Tree) Close() ([]core.LogicAddr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.rootsLocked(), nil
	}
	err := t.sealLocked()
	t.closed = true
	return t.rootsLocked(), err
}

// UncommittedSize returns the bytes held in the active extent, i.e.
// data not yet backed by a sealed block.
func (t *Tree) UncommittedSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(t.active.Len()) * 16
}

// normalizeRange maps a (begin, end) request to an inclusive [lo, hi]
// window and a direction; begin > end requests a backward scan.
func normalizeRange(begin, end core.Timestamp) (lo, hi core.Timestamp, dir core.Direction) {
	if begin > end {
		return end, begin, core.Backward
	}
	return begin, end, core.Forward
}

// Search returns a cursor over the points in the requested range. The
// active extent is snapshotted at call time; sealed extents load
// lazily from the block store.
func (t *Tree) Search(begin, end core.Timestamp) core.RealValuedIterator {
	lo, hi, dir := normalizeRange(begin, end)

	t.mu.Lock()
	sealed := append([]extent(nil), t.sealed...)
	activePts := clipPoints(t.snapshotActiveLocked(), lo, hi, dir)
	t.mu.Unlock()

	var cursors []core.RealValuedIterator
	for _, ext := range sealed {
		if ext.known && (ext.end < lo || ext.begin > hi) {
			continue
		}
		cursors = append(cursors, &extentCursor{
			store: t.store,
			addr:  ext.addr,
			lo:    lo,
			hi:    hi,
			dir:   dir,
		})
	}
	active := &sliceCursor{pts: activePts, dir: dir}
	if dir == core.Forward {
		cursors = append(cursors, active)
	} else {
		for i, j := 0, len(cursors)-1; i < j; i, j = i+1, j-1 {
			cursors[i], cursors[j] = cursors[j], cursors[i]
		}
		cursors = append([]core.RealValuedIterator{active}, cursors...)
	}
	return operator.NewChainOperator(dir, cursors)
}

// Aggregate returns a cursor producing exactly one summary record for
// the requested range, or none when the range is empty.
func (t *Tree) Aggregate(begin, end core.Timestamp) core.AggregateIterator {
	lo, hi, dir := normalizeRange(begin, end)

	t.mu.Lock()
	sealed := append([]extent(nil), t.sealed...)
	activePts := t.snapshotActiveLocked()
	t.mu.Unlock()

	var subs []core.AggregateIterator
	for _, ext := range sealed {
		if ext.known && (ext.end < lo || ext.begin > hi) {
			continue
		}
		addr := ext.addr
		subs = append(subs, &aggCursor{
			load: func() ([]point, error) { return t.loadExtent(addr) },
			lo:   lo,
			hi:   hi,
			dir:  dir,
		})
	}
	pts := activePts
	subs = append(subs, &aggCursor{
		load: func() ([]point, error) { return pts, nil },
		lo:   lo,
		hi:   hi,
		dir:  dir,
	})
	if dir == core.Backward {
		for i, j := 0, len(subs)-1; i < j; i, j = i+1, j-1 {
			subs[i], subs[j] = subs[j], subs[i]
		}
	}
	return newFoldCursor(operator.NewCombineAggregateOperator(subs), dir)
}

// GroupAggregate returns a cursor producing one record per step
// bucket. Bucket boundaries align to multiples of step except where an
// extent boundary cuts a bucket; the combining operator stitches those
// partial buckets back together.
func (t *Tree) GroupAggregate(begin, end core.Timestamp, step uint64) core.AggregateIterator {
	lo, hi, dir := normalizeRange(begin, end)
	hiExcl := hi
	if hiExcl < math.MaxUint64 {
		hiExcl = hi + 1
	}

	t.mu.Lock()
	sealed := append([]extent(nil), t.sealed...)
	activePts := t.snapshotActiveLocked()
	t.mu.Unlock()

	// spans partition the requested window between the extents in
	// time order; each span's bounds clip its edge buckets
	type span struct {
		load loadFunc
		lo   core.Timestamp
		hi   core.Timestamp // exclusive
	}
	var spans []span
	for _, ext := range sealed {
		if ext.known && (ext.end < lo || ext.begin > hiExcl-1) {
			continue
		}
		addr := ext.addr
		spanLo := lo
		if ext.known && ext.begin > lo {
			spanLo = ext.begin
		}
		spans = append(spans, span{
			load: func() ([]point, error) { return t.loadExtent(addr) },
			lo:   spanLo,
			hi:   hiExcl,
		})
	}
	if len(activePts) > 0 && activePts[0].ts < hiExcl && activePts[len(activePts)-1].ts >= lo {
		spanLo := lo
		if activePts[0].ts > lo {
			spanLo = activePts[0].ts
		}
		pts := activePts
		spans = append(spans, span{
			load: func() ([]point, error) { return pts, nil },
			lo:   spanLo,
			hi:   hiExcl,
		})
	}
	// each span ends where the next one begins
	for i := 0; i+1 < len(spans); i++ {
		if spans[i+1].lo > spans[i].lo && spans[i+1].lo < spans[i].hi {
			spans[i].hi = spans[i+1].lo
		}
	}
	subs := make([]core.AggregateIterator, len(spans))
	for i, sp := range spans {
		subs[i] = &groupAggCursor{
			load:       sp.load,
			spanLo:     sp.lo,
			spanHiExcl: sp.hi,
			step:       step,
			dir:        dir,
		}
	}
	if dir == core.Backward {
		for i, j := 0, len(subs)-1; i < j; i, j = i+1, j-1 {
			subs[i], subs[j] = subs[j], subs[i]
		}
	}
	return operator.NewCombineGroupAggregateOperator(step, subs)
}

func (t *Tree) loadExtent(addr core.LogicAddr) ([]point, error) {
	data, err := t.store.Read(addr)
	if err != nil {
		return nil, err
	}
	return decodeExtent(data)
}

// foldCursor collapses a stream of aggregation records into a single
// combined record.
type foldCursor struct {
	inner core.AggregateIterator
	dir   core.Direction
	done  bool
}

var _ core.AggregateIterator = (*foldCursor)(nil)

func newFoldCursor(inner core.AggregateIterator, dir core.Direction) *foldCursor {
	return &foldCursor{inner: inner, dir: dir}
}

func (f *foldCursor) Read(ts []core.Timestamp, xs []core.AggregationResult) (int, error) {
	if f.done {
		return 0, core.ErrNoData
	}
	f.done = true
	total := core.NewAggregationResult()
	bufTs := make([]core.Timestamp, 16)
	bufXs := make([]core.AggregationResult, 16)
	for {
		n, err := f.inner.Read(bufTs, bufXs)
		for i := 0; i < n; i++ {
			total.Combine(&bufXs[i])
		}
		if err != nil {
			if !core.IsEndOfStream(err) {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	if total.Cnt == 0 {
		return 0, core.ErrNoData
	}
	if len(ts) == 0 || len(xs) == 0 {
		return 0, core.ErrNoData
	}
	ts[0] = total.End
	xs[0] = total
	return 1, core.ErrNoData
}

func (f *foldCursor) Direction() core.Direction {
	return f.dir
}
