package operator

import (
	"testing"

	"github.com/INLOpen/nexuscolumn/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinThreeColumns(t *testing.T) {
	col0 := newMockRealValued(core.Forward, 1, 0.1, 2, 0.2, 3, 0.3)
	col1 := newMockRealValued(core.Forward, 1, 1.1, 3, 3.1)
	col2 := newMockRealValued(core.Forward, 2, 2.2)

	join := NewJoinOperator([]core.Id{10, 11, 12},
		[]core.RealValuedIterator{col0, col1, col2})

	samples, err := drainMaterializer(join, 4096)
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, core.Timestamp(1), samples[0].Timestamp)
	assert.Equal(t, uint64(0b011), samples[0].Bitmap)
	assert.Equal(t, []float64{0.1, 1.1}, samples[0].Tuple)

	assert.Equal(t, core.Timestamp(2), samples[1].Timestamp)
	assert.Equal(t, uint64(0b101), samples[1].Bitmap)
	assert.Equal(t, []float64{0.2, 2.2}, samples[1].Tuple)

	assert.Equal(t, core.Timestamp(3), samples[2].Timestamp)
	assert.Equal(t, uint64(0b011), samples[2].Bitmap)
	assert.Equal(t, []float64{0.3, 3.1}, samples[2].Tuple)

	for _, s := range samples {
		assert.Equal(t, core.Id(10), s.ID)
		assert.Equal(t, core.PayloadTuple, s.PayloadType)
	}
}

func TestJoinSampleSizeFormula(t *testing.T) {
	col0 := newMockRealValued(core.Forward, 1, 0.5)
	col1 := newMockRealValued(core.Forward, 1, 1.5)

	join := NewJoinOperator([]core.Id{1, 2}, []core.RealValuedIterator{col0, col1})

	dest := make([]byte, 4096)
	n, err := join.Read(dest)
	if err != nil {
		require.ErrorIs(t, err, core.ErrNoData)
	}
	// one row, both columns present: 32 + 8*2
	require.Equal(t, core.HeaderSize+16, n)

	sample, size, err := core.DecodeSample(dest[:n])
	require.NoError(t, err)
	assert.Equal(t, n, size)
	assert.Equal(t, uint64(0b11), sample.Bitmap)
}

func TestJoinRowCountFollowsKeyColumn(t *testing.T) {
	col0 := newMockRealValued(core.Forward, 10, 1, 20, 2, 30, 3, 40, 4)
	col1 := newMockRealValued(core.Forward, 20, 9)

	join := NewJoinOperator([]core.Id{1, 2}, []core.RealValuedIterator{col0, col1})
	samples, err := drainMaterializer(join, 4096)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, uint64(0b01), samples[0].Bitmap)
	assert.Equal(t, uint64(0b11), samples[1].Bitmap)
	// col1 exhausted: bit stays clear instead of spinning
	assert.Equal(t, uint64(0b01), samples[2].Bitmap)
	assert.Equal(t, uint64(0b01), samples[3].Bitmap)
}

func TestJoinDestTooSmallForOneRow(t *testing.T) {
	col0 := newMockRealValued(core.Forward, 1, 0.5)
	col1 := newMockRealValued(core.Forward, 1, 1.5)

	join := NewJoinOperator([]core.Id{1, 2}, []core.RealValuedIterator{col0, col1})

	dest := make([]byte, core.HeaderSize+8) // worst case is header+16
	n, err := join.Read(dest)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJoinEmptyKeyColumn(t *testing.T) {
	col0 := newMockRealValued(core.Forward)
	col1 := newMockRealValued(core.Forward, 1, 1.5)

	join := NewJoinOperator([]core.Id{1, 2}, []core.RealValuedIterator{col0, col1})

	n, err := join.Read(make([]byte, 4096))
	require.ErrorIs(t, err, core.ErrNoData)
	assert.Zero(t, n)
}

func TestJoinTooManyColumnsPanics(t *testing.T) {
	ids := make([]core.Id, MaxTupleSize+1)
	iters := make([]core.RealValuedIterator, MaxTupleSize+1)
	for i := range iters {
		ids[i] = core.Id(i)
		iters[i] = newMockRealValued(core.Forward)
	}
	assert.Panics(t, func() {
		NewJoinOperator(ids, iters)
	})
}
