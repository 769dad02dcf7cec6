package operator

import (
	"testing"

	"github.com/INLOpen/nexuscolumn/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeriesOrderIteratorEmitsTuples(t *testing.T) {
	s1 := &mockAggregate{results: []core.AggregationResult{
		groupResult(0, 30, 3),
		groupResult(30, 60, 2),
	}, dir: core.Forward}
	s2 := &mockAggregate{results: []core.AggregationResult{
		groupResult(0, 30, 5),
	}, dir: core.Forward}

	components := []core.AggregationFunc{core.AggMin, core.AggMax, core.AggCnt}
	it := NewSeriesOrderIterator([]core.Id{1, 2},
		[]core.AggregateIterator{s1, s2}, components)

	samples, err := drainMaterializer(it, 4096)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	// all of series 1 first, then series 2
	assert.Equal(t, []core.Id{1, 1, 2}, []core.Id{samples[0].ID, samples[1].ID, samples[2].ID})
	for _, s := range samples {
		assert.Equal(t, core.PayloadTuple, s.PayloadType)
		assert.Equal(t, uint64(0b111), s.Bitmap)
		require.Len(t, s.Tuple, 3)
	}
	// bucket label is the bucket begin
	assert.Equal(t, core.Timestamp(0), samples[0].Timestamp)
	assert.Equal(t, core.Timestamp(30), samples[1].Timestamp)
	// components in declaration order: min, max, cnt
	assert.Equal(t, float64(3), samples[0].Tuple[2])
	assert.Equal(t, float64(5), samples[2].Tuple[2])
}

func TestTimeOrderIteratorInterleaves(t *testing.T) {
	s1 := &mockAggregate{results: []core.AggregationResult{
		groupResult(0, 30, 1),
		groupResult(60, 90, 2),
	}, dir: core.Forward}
	s2 := &mockAggregate{results: []core.AggregationResult{
		groupResult(30, 60, 3),
		groupResult(90, 120, 4),
	}, dir: core.Forward}

	components := []core.AggregationFunc{core.AggCnt}
	it := NewTimeOrderIterator([]core.Id{1, 2},
		[]core.AggregateIterator{s1, s2}, components)

	samples, err := drainMaterializer(it, 4096)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	var order []core.Timestamp
	var cnts []float64
	for _, s := range samples {
		order = append(order, s.Timestamp)
		cnts = append(cnts, s.Tuple[0])
	}
	assert.Equal(t, []core.Timestamp{0, 30, 60, 90}, order)
	assert.Equal(t, []float64{1, 3, 2, 4}, cnts)
}

func TestTimeOrderIteratorTieBreaksById(t *testing.T) {
	s1 := &mockAggregate{results: []core.AggregationResult{groupResult(0, 30, 1)}, dir: core.Forward}
	s2 := &mockAggregate{results: []core.AggregationResult{groupResult(0, 30, 2)}, dir: core.Forward}

	it := NewTimeOrderIterator([]core.Id{9, 4},
		[]core.AggregateIterator{s1, s2}, []core.AggregationFunc{core.AggCnt})

	samples, err := drainMaterializer(it, 4096)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, core.Id(4), samples[0].ID)
	assert.Equal(t, core.Id(9), samples[1].ID)
}

func TestSeriesOrderIteratorSmallDest(t *testing.T) {
	s1 := &mockAggregate{results: []core.AggregationResult{
		groupResult(0, 30, 1),
		groupResult(30, 60, 2),
	}, dir: core.Forward}
	it := NewSeriesOrderIterator([]core.Id{1},
		[]core.AggregateIterator{s1}, []core.AggregationFunc{core.AggMin, core.AggCnt})

	sampleSize := core.HeaderSize + 16
	dest := make([]byte, sampleSize) // fits exactly one tuple
	n, err := it.Read(dest)
	require.NoError(t, err)
	require.Equal(t, sampleSize, n)

	n, err = it.Read(dest)
	require.ErrorIs(t, err, core.ErrNoData)
	require.Equal(t, sampleSize, n)
}
