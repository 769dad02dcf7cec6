package operator

import (
	"container/heap"
	"errors"

	"github.com/INLOpen/nexuscolumn/core"
)

// rangeSize is the number of points pulled from a cursor per refill.
const rangeSize = 1024

// mergeRange buffers one block of points pulled from a single cursor.
type mergeRange struct {
	ts   []core.Timestamp
	xs   []float64
	id   core.Id
	size int
	pos  int
}

func newMergeRange(id core.Id) *mergeRange {
	return &mergeRange{
		ts: make([]core.Timestamp, rangeSize),
		xs: make([]float64, rangeSize),
		id: id,
	}
}

func (r *mergeRange) empty() bool {
	return r.pos >= r.size
}

func (r *mergeRange) topTs() core.Timestamp {
	return r.ts[r.pos]
}

func (r *mergeRange) topValue() float64 {
	return r.xs[r.pos]
}

// mergeHeapItem is one candidate point in the merge heap.
type mergeHeapItem struct {
	ts    core.Timestamp
	id    core.Id
	value float64
	index int
}

// mergeHeap orders candidate points by (ts, id) for time order or
// (id, ts) for series order. Forward merges pop the minimum, backward
// merges the maximum. The source index is the final tie-break so that
// repeated reads of the same inputs produce identical output.
type mergeHeap struct {
	items   []mergeHeapItem
	order   core.OrderBy
	forward bool
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	var k1a, k2a, k1b, k2b uint64
	if h.order == core.OrderByTime {
		k1a, k2a = a.ts, a.id
		k1b, k2b = b.ts, b.id
	} else {
		k1a, k2a = a.id, a.ts
		k1b, k2b = b.id, b.ts
	}
	if k1a != k1b {
		if h.forward {
			return k1a < k1b
		}
		return k1a > k1b
	}
	if k2a != k2b {
		if h.forward {
			return k2a < k2b
		}
		return k2a > k2b
	}
	return a.index < b.index
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x interface{}) {
	h.items = append(h.items, x.(mergeHeapItem))
}

func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// MergeOperator interleaves N series cursors with a common direction
// into one sample stream ordered by (ts, id) or (id, ts). It implements
// core.Materializer, producing FLOAT samples.
type MergeOperator struct {
	iters   []core.RealValuedIterator
	ids     []core.Id
	order   core.OrderBy
	forward bool

	ranges      []*mergeRange
	heap        *mergeHeap
	initialized bool
	done        bool
}

var _ core.Materializer = (*MergeOperator)(nil)

// NewMergeOperator creates a k-way merge over the given cursors. All
// cursors must share one direction; it is taken from the first cursor.
func NewMergeOperator(order core.OrderBy, ids []core.Id, iters []core.RealValuedIterator) *MergeOperator {
	if len(ids) != len(iters) {
		panicInvariant("MergeOperator - broken invariant: %d ids, %d iterators", len(ids), len(iters))
	}
	forward := true
	if len(iters) > 0 {
		forward = iters[0].Direction() == core.Forward
	}
	return &MergeOperator{
		iters:   iters,
		ids:     ids,
		order:   order,
		forward: forward,
	}
}

// init eagerly pulls one block from each cursor, keeping the ranges
// that produced data.
func (m *MergeOperator) init() error {
	m.initialized = true
	m.heap = &mergeHeap{order: m.order, forward: m.forward}
	for i, it := range m.iters {
		r := newMergeRange(m.ids[i])
		n, err := it.Read(r.ts, r.xs)
		if err != nil && !errors.Is(err, core.ErrNoData) {
			return err
		}
		r.size = n
		r.pos = 0
		m.ranges = append(m.ranges, r)
	}
	for index, r := range m.ranges {
		if !r.empty() {
			heap.Push(m.heap, mergeHeapItem{ts: r.topTs(), id: r.id, value: r.topValue(), index: index})
		}
	}
	return nil
}

func (m *MergeOperator) release() {
	m.iters = nil
	m.ranges = nil
	m.done = true
}

func (m *MergeOperator) Read(dest []byte) (int, error) {
	if m.done || len(m.iters) == 0 {
		return 0, core.ErrNoData
	}
	if !m.initialized {
		if err := m.init(); err != nil {
			return 0, err
		}
	}
	written := 0
	for m.heap.Len() > 0 {
		if len(dest)-written < core.HeaderSize {
			// Output buffer is fully consumed
			return written, nil
		}
		item := m.heap.items[0]
		sample := core.Sample{
			ID:          item.id,
			Timestamp:   item.ts,
			PayloadType: core.PayloadFloat,
			Value:       item.value,
		}
		n, err := sample.EncodeTo(dest[written:])
		if err != nil {
			return written, err
		}
		written += n
		heap.Pop(m.heap)
		r := m.ranges[item.index]
		r.pos++
		if r.empty() {
			// Refill the range if possible
			cnt, err := m.iters[item.index].Read(r.ts, r.xs)
			if err != nil && !errors.Is(err, core.ErrNoData) {
				return written, err
			}
			r.size = cnt
			r.pos = 0
		}
		if !r.empty() {
			heap.Push(m.heap, mergeHeapItem{ts: r.topTs(), id: r.id, value: r.topValue(), index: item.index})
		}
	}
	// All cursors are fully consumed
	m.release()
	return written, core.ErrNoData
}
