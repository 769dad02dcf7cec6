package operator

import (
	"github.com/INLOpen/nexuscolumn/core"
)

// Mock cursors shared by the tests in this package.

// mockRealValued serves a fixed point list in chunks. chunk == 0 means
// serve everything in one call. A non-nil failErr is returned once
// failAfter points were produced (on the first call when failAfter is
// 0).
type mockRealValued struct {
	ts  []core.Timestamp
	xs  []float64
	dir core.Direction
	pos int

	chunk     int
	failAfter int
	failErr   error
}

var _ core.RealValuedIterator = (*mockRealValued)(nil)

func newMockRealValued(dir core.Direction, points ...float64) *mockRealValued {
	// points come in (ts, value) pairs
	if len(points)%2 != 0 {
		panic("newMockRealValued: odd argument count")
	}
	m := &mockRealValued{dir: dir}
	for i := 0; i < len(points); i += 2 {
		m.ts = append(m.ts, core.Timestamp(points[i]))
		m.xs = append(m.xs, points[i+1])
	}
	return m
}

func (m *mockRealValued) Read(ts []core.Timestamp, xs []float64) (int, error) {
	if m.failErr != nil && m.pos >= m.failAfter {
		return 0, m.failErr
	}
	n := len(m.ts) - m.pos
	if n > len(ts) {
		n = len(ts)
	}
	if m.chunk > 0 && n > m.chunk {
		n = m.chunk
	}
	if m.failErr != nil && m.pos+n > m.failAfter {
		n = m.failAfter - m.pos
	}
	copy(ts, m.ts[m.pos:m.pos+n])
	copy(xs, m.xs[m.pos:m.pos+n])
	m.pos += n
	if m.pos == len(m.ts) && m.failErr == nil {
		return n, core.ErrNoData
	}
	return n, nil
}

func (m *mockRealValued) Direction() core.Direction {
	return m.dir
}

// mockAggregate serves a fixed list of aggregation records.
type mockAggregate struct {
	results []core.AggregationResult
	dir     core.Direction
	pos     int
	chunk   int
}

var _ core.AggregateIterator = (*mockAggregate)(nil)

func (m *mockAggregate) Read(ts []core.Timestamp, xs []core.AggregationResult) (int, error) {
	n := len(m.results) - m.pos
	if n > len(xs) {
		n = len(xs)
	}
	if m.chunk > 0 && n > m.chunk {
		n = m.chunk
	}
	for i := 0; i < n; i++ {
		res := m.results[m.pos+i]
		ts[i] = res.Begin
		xs[i] = res
	}
	m.pos += n
	if m.pos == len(m.results) {
		return n, core.ErrNoData
	}
	return n, nil
}

func (m *mockAggregate) Direction() core.Direction {
	return m.dir
}

// mockBinary serves fixed (ts, payload) event records.
type mockBinary struct {
	ts   []core.Timestamp
	data [][]byte
	dir  core.Direction
	pos  int
}

var _ core.BinaryDataIterator = (*mockBinary)(nil)

func (m *mockBinary) Read(ts []core.Timestamp, xs [][]byte) (int, error) {
	n := len(m.ts) - m.pos
	if n > len(ts) {
		n = len(ts)
	}
	copy(ts, m.ts[m.pos:m.pos+n])
	copy(xs, m.data[m.pos:m.pos+n])
	m.pos += n
	if m.pos == len(m.ts) {
		return n, core.ErrNoData
	}
	return n, nil
}

func (m *mockBinary) Direction() core.Direction {
	return m.dir
}

// groupResult builds one step bucket for the stitching tests.
func groupResult(begin, end core.Timestamp, cnt float64) core.AggregationResult {
	res := core.NewAggregationResult()
	res.Begin = begin
	res.End = end
	res.Cnt = cnt
	res.Sum = cnt
	res.Min = 1
	res.Max = 1
	res.MinTs = begin
	res.MaxTs = begin
	res.First = 1
	res.Last = 1
	return res
}

// drainMaterializer reads mat to exhaustion and decodes every sample.
func drainMaterializer(mat core.Materializer, bufSize int) ([]core.Sample, error) {
	var out []core.Sample
	buf := make([]byte, bufSize)
	for {
		n, err := mat.Read(buf)
		if n > 0 {
			samples, decErr := core.DecodeSamples(buf[:n])
			if decErr != nil {
				return out, decErr
			}
			out = append(out, samples...)
		}
		if err != nil {
			if core.IsEndOfStream(err) {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}
