package cstore

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/INLOpen/nexuscolumn/blockstore"
	"github.com/INLOpen/nexuscolumn/compressors"
	"github.com/INLOpen/nexuscolumn/core"
	"github.com/INLOpen/nexuscolumn/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureProcessor collects the sample stream for inspection. refuseAt
// > 0 makes Put return false once that many samples were accepted.
type captureProcessor struct {
	samples  []core.Sample
	err      error
	complete bool
	refuseAt int
}

var _ core.StreamProcessor = (*captureProcessor)(nil)

func (p *captureProcessor) Put(sample core.Sample) bool {
	if p.refuseAt > 0 && len(p.samples) >= p.refuseAt {
		return false
	}
	p.samples = append(p.samples, sample)
	return true
}

func (p *captureProcessor) SetError(err error) {
	p.err = err
}

func (p *captureProcessor) Complete() {
	p.complete = true
}

func newTestStore(t *testing.T) *blockstore.MemStore {
	t.Helper()
	c, err := compressors.Get(core.CompressionSnappy)
	require.NoError(t, err)
	return blockstore.NewMemStore(c)
}

func newTestColumnStore(t *testing.T, store blockstore.Store) *ColumnStore {
	t.Helper()
	return NewColumnStore(Options{
		Store:               store,
		ExtentSizeThreshold: 4,
		Logger:              slog.Default(),
	})
}

func writeSample(t *testing.T, cs *ColumnStore, id core.Id, ts core.Timestamp, value float64) {
	t.Helper()
	var rescue []core.LogicAddr
	res := cs.Write(core.Sample{ID: id, Timestamp: ts, PayloadType: core.PayloadFloat, Value: value}, &rescue, nil)
	require.Contains(t, []tree.AppendResult{tree.AppendOK, tree.AppendFlushNeeded}, res)
}

func TestCreateNewColumnDuplicate(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	require.NoError(t, cs.CreateNewColumn(1))
	err := cs.CreateNewColumn(1)
	require.ErrorIs(t, err, core.ErrBadArg)
}

func TestWriteUnknownId(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	var rescue []core.LogicAddr
	res := cs.Write(core.Sample{ID: 99, Timestamp: 1, PayloadType: core.PayloadFloat, Value: 1}, &rescue, nil)
	assert.Equal(t, tree.AppendFailBadID, res)
}

func TestWriteReportsRescuePointsOnFlush(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t)) // threshold 4
	require.NoError(t, cs.CreateNewColumn(1))

	var rescue []core.LogicAddr
	for ts := core.Timestamp(1); ts <= 3; ts++ {
		res := cs.Write(core.Sample{ID: 1, Timestamp: ts, PayloadType: core.PayloadFloat, Value: 1}, &rescue, nil)
		require.Equal(t, tree.AppendOK, res)
	}
	require.Empty(t, rescue)
	res := cs.Write(core.Sample{ID: 1, Timestamp: 4, PayloadType: core.PayloadFloat, Value: 1}, &rescue, nil)
	require.Equal(t, tree.AppendFlushNeeded, res)
	assert.Len(t, rescue, 1)
}

func TestUncommittedMemory(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	require.NoError(t, cs.CreateNewColumn(1))
	require.NoError(t, cs.CreateNewColumn(2))
	assert.Zero(t, cs.UncommittedMemory())

	writeSample(t, cs, 1, 1, 0.5)
	writeSample(t, cs, 2, 1, 0.5)
	assert.Equal(t, int64(32), cs.UncommittedMemory())
}

func TestCloseAndOpenOrRestore(t *testing.T) {
	store := newTestStore(t)
	cs := newTestColumnStore(t, store)
	require.NoError(t, cs.CreateNewColumn(1))
	require.NoError(t, cs.CreateNewColumn(2))
	for ts := core.Timestamp(1); ts <= 10; ts++ {
		writeSample(t, cs, 1, ts, float64(ts))
		writeSample(t, cs, 2, ts, float64(ts)*2)
	}

	before := runScan(t, cs, []core.Id{1, 2}, core.OrderByTime)

	rescue, err := cs.Close(context.Background())
	require.NoError(t, err)
	require.Len(t, rescue, 2)
	require.NotEmpty(t, rescue[1])
	require.NotEmpty(t, rescue[2])

	restored := newTestColumnStore(t, store)
	require.NoError(t, restored.OpenOrRestore(rescue))
	after := runScan(t, restored, []core.Id{1, 2}, core.OrderByTime)
	assert.Equal(t, before, after)
}

func TestOpenOrRestoreDuplicate(t *testing.T) {
	store := newTestStore(t)
	cs := newTestColumnStore(t, store)
	require.NoError(t, cs.CreateNewColumn(1))
	writeSample(t, cs, 1, 1, 1)
	rescue, err := cs.Close(context.Background())
	require.NoError(t, err)

	restored := newTestColumnStore(t, store)
	require.NoError(t, restored.OpenOrRestore(rescue))
	err = restored.OpenOrRestore(rescue)
	require.ErrorIs(t, err, core.ErrBadArg)
}

func TestOpenOrRestoreEmptyRescuePointsPanics(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	assert.Panics(t, func() {
		_ = cs.OpenOrRestore(map[core.Id][]core.LogicAddr{1: {}})
	})
}

func TestSessionWrite(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	require.NoError(t, cs.CreateNewColumn(7))

	session := NewSession(cs)
	defer session.Close()

	var rescue []core.LogicAddr
	// non-float payloads are rejected before touching the registry
	res := session.Write(core.Sample{ID: 7, Timestamp: 1, PayloadType: core.PayloadEvent, Event: []byte("x")}, &rescue)
	assert.Equal(t, tree.AppendFailBadValue, res)

	// first write populates the cache, later writes bypass the registry
	res = session.Write(core.Sample{ID: 7, Timestamp: 1, PayloadType: core.PayloadFloat, Value: 1}, &rescue)
	require.Equal(t, tree.AppendOK, res)
	require.Contains(t, session.cache, core.Id(7))

	for ts := core.Timestamp(2); ts <= 4; ts++ {
		res = session.Write(core.Sample{ID: 7, Timestamp: ts, PayloadType: core.PayloadFloat, Value: 1}, &rescue)
	}
	assert.Equal(t, tree.AppendFlushNeeded, res)
	assert.Len(t, rescue, 1)
}

func TestSessionWriteUnknownId(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	session := NewSession(cs)
	var rescue []core.LogicAddr
	res := session.Write(core.Sample{ID: 1, Timestamp: 1, PayloadType: core.PayloadFloat, Value: 1}, &rescue)
	assert.Equal(t, tree.AppendFailBadID, res)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	cs := newTestColumnStore(t, newTestStore(t))
	const series = 4
	for id := core.Id(1); id <= series; id++ {
		require.NoError(t, cs.CreateNewColumn(id))
	}

	var wg sync.WaitGroup
	for id := core.Id(1); id <= series; id++ {
		wg.Add(1)
		go func(id core.Id) {
			defer wg.Done()
			session := NewSession(cs)
			defer session.Close()
			var rescue []core.LogicAddr
			for ts := core.Timestamp(1); ts <= 200; ts++ {
				session.Write(core.Sample{ID: id, Timestamp: ts, PayloadType: core.PayloadFloat, Value: float64(ts)}, &rescue)
			}
		}(id)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc := &captureProcessor{}
			req := &core.ReshapeRequest{
				Select:  core.SelectClause{Begin: 0, End: 1000, Columns: []core.Column{{Ids: []core.Id{1, 2, 3, 4}}}},
				OrderBy: core.OrderByTime,
			}
			cs.Query(context.Background(), req, proc)
		}()
	}
	wg.Wait()

	proc := &captureProcessor{}
	req := &core.ReshapeRequest{
		Select:  core.SelectClause{Begin: 0, End: 1000, Columns: []core.Column{{Ids: []core.Id{1, 2, 3, 4}}}},
		OrderBy: core.OrderByTime,
	}
	cs.Query(context.Background(), req, proc)
	require.NoError(t, proc.err)
	assert.Len(t, proc.samples, series*200)
}

// runScan drains a scan over ids in the given order into a sample list.
func runScan(t *testing.T, cs *ColumnStore, ids []core.Id, order core.OrderBy) []core.Sample {
	t.Helper()
	proc := &captureProcessor{}
	req := &core.ReshapeRequest{
		Select:  core.SelectClause{Begin: 0, End: 1 << 30, Columns: []core.Column{{Ids: ids}}},
		OrderBy: order,
	}
	cs.Query(context.Background(), req, proc)
	require.NoError(t, proc.err)
	require.True(t, proc.complete)
	return proc.samples
}
