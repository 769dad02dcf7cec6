// Package cstore implements the column-store registry: it owns one
// tree per series id, dispatches reads and writes under a single map
// lock and drives the read-path operators of package operator.
package cstore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexuscolumn/blockstore"
	"github.com/INLOpen/nexuscolumn/core"
	"github.com/INLOpen/nexuscolumn/tree"
)

// Options configures a ColumnStore.
type Options struct {
	// Store is the block store backing every tree.
	Store blockstore.Store
	// ExtentSizeThreshold is passed through to the trees.
	ExtentSizeThreshold int
	Logger              *slog.Logger
	TracerProvider      trace.TracerProvider
}

// ColumnStore maps series ids to their trees. All map mutations and
// lookups are serialized by a single mutex; tree internals have their
// own locks, so cursors keep working after the map lock is released.
type ColumnStore struct {
	mu      sync.Mutex
	columns map[core.Id]*tree.Tree

	store  blockstore.Store
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewColumnStore creates an empty registry on top of the given block
// store.
func NewColumnStore(opts Options) *ColumnStore {
	if opts.Store == nil {
		panic("cstore: nil block store")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = noop.NewTracerProvider()
	}
	return &ColumnStore{
		columns: make(map[core.Id]*tree.Tree),
		store:   opts.Store,
		opts:    opts,
		logger:  opts.Logger.With("component", "ColumnStore"),
		tracer:  opts.TracerProvider.Tracer("nexuscolumn/cstore"),
	}
}

func (cs *ColumnStore) treeOptions() tree.Options {
	return tree.Options{
		ExtentSizeThreshold: cs.opts.ExtentSizeThreshold,
		Logger:              cs.opts.Logger,
	}
}

// OpenOrRestore reconstructs one tree per entry from its rescue
// points. A duplicate id is a hard error; an empty rescue-point list
// is a programmer error.
func (cs *ColumnStore) OpenOrRestore(mapping map[core.Id][]core.LogicAddr) error {
	for id, rescuePoints := range mapping {
		if len(rescuePoints) == 0 {
			panic("cstore: invalid rescue points state")
		}
		t := tree.OpenTree(id, rescuePoints, cs.store, cs.treeOptions())

		cs.mu.Lock()
		if _, ok := cs.columns[id]; ok {
			cs.mu.Unlock()
			cs.logger.Error("can't open/repair column, already exists", "id", id)
			return fmt.Errorf("column %d already open: %w", id, core.ErrBadArg)
		}
		cs.columns[id] = t
		cs.mu.Unlock()
		t.ForceInit()
	}
	return nil
}

// CreateNewColumn registers an empty tree for id.
func (cs *ColumnStore) CreateNewColumn(id core.Id) error {
	t := tree.NewTree(id, cs.store, cs.treeOptions())
	cs.mu.Lock()
	if _, ok := cs.columns[id]; ok {
		cs.mu.Unlock()
		return fmt.Errorf("column %d already exists: %w", id, core.ErrBadArg)
	}
	cs.columns[id] = t
	cs.mu.Unlock()
	t.ForceInit()
	return nil
}

// Close drains every tree to its current root set, detaches all trees
// and returns the rescue-point map for durable recovery.
func (cs *ColumnStore) Close(ctx context.Context) (map[core.Id][]core.LogicAddr, error) {
	_, span := cs.tracer.Start(ctx, "ColumnStore.Close")
	defer span.End()

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.logger.Info("column-store commit called")

	result := make(map[core.Id][]core.LogicAddr, len(cs.columns))
	var resultMu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for id, t := range cs.columns {
		id, t := id, t
		g.Go(func() error {
			roots, err := t.Close()
			if err != nil {
				return fmt.Errorf("closing column %d: %w", id, err)
			}
			resultMu.Lock()
			result[id] = roots
			resultMu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	cs.columns = make(map[core.Id]*tree.Tree)
	cs.logger.Info("column-store commit completed")
	return result, err
}

// Write appends one FLOAT sample to the tree registered for its id. On
// AppendFlushNeeded the tree's current roots replace *rescuePoints. If
// a session cache is supplied the tree handle is recorded there so the
// next write for that id bypasses the map lock.
func (cs *ColumnStore) Write(sample core.Sample, rescuePoints *[]core.LogicAddr, cache map[core.Id]*tree.Tree) tree.AppendResult {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	t, ok := cs.columns[sample.ID]
	if !ok {
		return tree.AppendFailBadID
	}
	res := t.Append(sample.Timestamp, sample.Value)
	if res == tree.AppendFlushNeeded {
		*rescuePoints = t.GetRoots()
	}
	if cache != nil {
		cache[sample.ID] = t
	}
	return res
}

// UncommittedMemory sums the bytes held in active extents across all
// trees. Diagnostics only.
func (cs *ColumnStore) UncommittedMemory() int64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var total int64
	for _, t := range cs.columns {
		total += t.UncommittedSize()
	}
	return total
}

// lookupTrees resolves the ids of one column under the map lock.
func (cs *ColumnStore) lookupTrees(ids []core.Id) ([]*tree.Tree, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	trees := make([]*tree.Tree, len(ids))
	for i, id := range ids {
		t, ok := cs.columns[id]
		if !ok {
			return nil, fmt.Errorf("column %d: %w", id, core.ErrNotFound)
		}
		trees[i] = t
	}
	return trees, nil
}
