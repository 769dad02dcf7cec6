package operator

import (
	"container/heap"
	"errors"

	"github.com/INLOpen/nexuscolumn/core"
)

// tupleFlags returns the presence bitmap for a tuple with the given
// components; every component is always populated, low bits first.
func tupleFlags(components []core.AggregationFunc) uint64 {
	return (uint64(1) << uint(len(components))) - 1
}

// tupleSampleSize is the encoded size of one tuple sample with all
// components present.
func tupleSampleSize(components []core.AggregationFunc) int {
	return core.HeaderSize + 8*len(components)
}

// makeTupleSample builds the TUPLE sample for one group-aggregate
// bucket.
func makeTupleSample(id core.Id, ts core.Timestamp, components []core.AggregationFunc, res *core.AggregationResult) core.Sample {
	tuple := make([]float64, len(components))
	for i, fn := range components {
		tuple[i] = res.Component(fn)
	}
	return core.Sample{
		ID:          id,
		Timestamp:   ts,
		PayloadType: core.PayloadTuple,
		Bitmap:      tupleFlags(components),
		Tuple:       tuple,
	}
}

// SeriesOrderIterator materializes group-aggregate output series by
// series: all buckets of cursor 0, then all of cursor 1, and so on.
type SeriesOrderIterator struct {
	iters      []core.AggregateIterator
	ids        []core.Id
	components []core.AggregationFunc
	pos        int
}

var _ core.Materializer = (*SeriesOrderIterator)(nil)

func NewSeriesOrderIterator(ids []core.Id, iters []core.AggregateIterator, components []core.AggregationFunc) *SeriesOrderIterator {
	if len(ids) != len(iters) {
		panicInvariant("SeriesOrderIterator - broken invariant: %d ids, %d iterators", len(ids), len(iters))
	}
	if len(components) == 0 || len(components) > MaxTupleSize {
		panicInvariant("SeriesOrderIterator - invalid tuple width %d", len(components))
	}
	return &SeriesOrderIterator{iters: iters, ids: ids, components: components}
}

func (s *SeriesOrderIterator) Read(dest []byte) (int, error) {
	sampleSize := tupleSampleSize(s.components)
	written := 0
	err := error(core.ErrNoData)
	for s.pos < len(s.iters) {
		capacity := (len(dest) - written) / sampleSize
		if capacity == 0 {
			return written, nil
		}
		ts := make([]core.Timestamp, capacity)
		xs := make([]core.AggregationResult, capacity)
		var n int
		n, err = s.iters[s.pos].Read(ts, xs)
		for i := 0; i < n; i++ {
			sample := makeTupleSample(s.ids[s.pos], ts[i], s.components, &xs[i])
			cnt, encErr := sample.EncodeTo(dest[written:])
			if encErr != nil {
				return written, encErr
			}
			written += cnt
		}
		if err != nil {
			if core.IsEndOfStream(err) {
				s.pos++
				err = core.ErrNoData
				continue
			}
			return written, err
		}
	}
	return written, err
}

// TimeOrderIterator materializes group-aggregate output re-interleaved
// by timestamp: it wraps every cursor into a single-series
// SeriesOrderIterator and merges the resulting tuple streams.
type TimeOrderIterator struct {
	join *MergeJoinOperator
}

var _ core.Materializer = (*TimeOrderIterator)(nil)

func NewTimeOrderIterator(ids []core.Id, iters []core.AggregateIterator, components []core.AggregationFunc) *TimeOrderIterator {
	if len(ids) != len(iters) || len(iters) == 0 {
		panicInvariant("TimeOrderIterator - broken invariant: %d ids, %d iterators", len(ids), len(iters))
	}
	forward := iters[0].Direction() == core.Forward
	sources := make([]core.Materializer, len(iters))
	for i := range iters {
		sources[i] = NewSeriesOrderIterator([]core.Id{ids[i]}, []core.AggregateIterator{iters[i]}, components)
	}
	return &TimeOrderIterator{join: NewMergeJoinOperator(sources, forward)}
}

func (t *TimeOrderIterator) Read(dest []byte) (int, error) {
	return t.join.Read(dest)
}

// mergeJoinRange buffers materialized samples from one source.
type mergeJoinRange struct {
	buf  []byte
	pos  int
	size int
}

// head decodes the sample at the range head.
func (r *mergeJoinRange) head() (core.Sample, int, error) {
	return core.DecodeSample(r.buf[r.pos:r.size])
}

func (r *mergeJoinRange) empty() bool {
	return r.pos >= r.size
}

// mergeJoinHeapItem keys one source's head sample.
type mergeJoinHeapItem struct {
	ts    core.Timestamp
	id    core.Id
	index int
}

type mergeJoinHeap struct {
	items   []mergeJoinHeapItem
	forward bool
}

func (h *mergeJoinHeap) Len() int { return len(h.items) }

func (h *mergeJoinHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.ts != b.ts {
		if h.forward {
			return a.ts < b.ts
		}
		return a.ts > b.ts
	}
	if a.id != b.id {
		if h.forward {
			return a.id < b.id
		}
		return a.id > b.id
	}
	return a.index < b.index
}

func (h *mergeJoinHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeJoinHeap) Push(x interface{}) {
	h.items = append(h.items, x.(mergeJoinHeapItem))
}

func (h *mergeJoinHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// mergeJoinBufferSize is the per-source byte buffer capacity.
const mergeJoinBufferSize = 4096

// MergeJoinOperator merges N materialized sample streams by timestamp
// with a deterministic (ts, id) key. Samples are copied through
// verbatim, so variable-length payloads survive the merge.
type MergeJoinOperator struct {
	sources []core.Materializer
	forward bool

	ranges      []*mergeJoinRange
	heap        *mergeJoinHeap
	initialized bool
	done        bool
}

var _ core.Materializer = (*MergeJoinOperator)(nil)

func NewMergeJoinOperator(sources []core.Materializer, forward bool) *MergeJoinOperator {
	return &MergeJoinOperator{sources: sources, forward: forward}
}

// refill reads the next block of samples from source i and pushes its
// head onto the heap. Whole samples only: sources never truncate.
func (m *MergeJoinOperator) refill(index int) error {
	r := m.ranges[index]
	n, err := m.sources[index].Read(r.buf)
	if err != nil && !errors.Is(err, core.ErrNoData) {
		return err
	}
	r.pos = 0
	r.size = n
	if !r.empty() {
		sample, _, decErr := r.head()
		if decErr != nil {
			return decErr
		}
		heap.Push(m.heap, mergeJoinHeapItem{ts: sample.Timestamp, id: sample.ID, index: index})
	}
	return nil
}

func (m *MergeJoinOperator) init() error {
	m.initialized = true
	m.heap = &mergeJoinHeap{forward: m.forward}
	m.ranges = make([]*mergeJoinRange, len(m.sources))
	for i := range m.sources {
		m.ranges[i] = &mergeJoinRange{buf: make([]byte, mergeJoinBufferSize)}
		if err := m.refill(i); err != nil {
			return err
		}
	}
	return nil
}

func (m *MergeJoinOperator) Read(dest []byte) (int, error) {
	if m.done {
		return 0, core.ErrNoData
	}
	if !m.initialized {
		if err := m.init(); err != nil {
			return 0, err
		}
	}
	written := 0
	for m.heap.Len() > 0 {
		item := m.heap.items[0]
		r := m.ranges[item.index]
		_, size, err := r.head()
		if err != nil {
			return written, err
		}
		if len(dest)-written < size {
			// Output buffer is fully consumed
			return written, nil
		}
		copy(dest[written:], r.buf[r.pos:r.pos+size])
		written += size
		heap.Pop(m.heap)
		r.pos += size
		if r.empty() {
			if err := m.refill(item.index); err != nil {
				return written, err
			}
		} else {
			sample, _, decErr := r.head()
			if decErr != nil {
				return written, decErr
			}
			heap.Push(m.heap, mergeJoinHeapItem{ts: sample.Timestamp, id: sample.ID, index: item.index})
		}
	}
	m.sources = nil
	m.ranges = nil
	m.done = true
	return written, core.ErrNoData
}
