package cstore

import (
	"context"
	"errors"

	"github.com/INLOpen/nexuscolumn/core"
	"github.com/INLOpen/nexuscolumn/operator"
)

// drainBatchSamples is the number of samples drained from a
// materializer per batch.
const drainBatchSamples = 4096

// Query executes a scan or aggregate query and streams the result into
// proc. Requests with Agg.Enabled and Agg.Step > 0 are routed to
// GroupAggregateQuery.
func (cs *ColumnStore) Query(ctx context.Context, req *core.ReshapeRequest, proc core.StreamProcessor) {
	if req.Agg.Enabled && req.Agg.Step > 0 {
		cs.GroupAggregateQuery(ctx, req, proc)
		return
	}
	_, span := cs.tracer.Start(ctx, "ColumnStore.Query")
	defer span.End()
	cs.logger.Debug("select query", "request", req.String())

	if len(req.Select.Columns) != 1 {
		cs.logger.Error("bad select request, column count must be one", "columns", len(req.Select.Columns))
		proc.SetError(core.ErrBadArg)
		return
	}

	ids := append([]core.Id(nil), req.Select.Columns[0].Ids...)

	var mat core.Materializer
	if req.Agg.Enabled {
		if req.GroupBy.Enabled {
			cs.logger.Error("group-by in aggregate query is not supported yet")
			proc.SetError(core.ErrNotPermitted)
			return
		}
		if req.OrderBy != core.OrderBySeries {
			cs.logger.Error("bad aggregate query, order-by statement not supported")
			proc.SetError(core.ErrNotPermitted)
			return
		}
		trees, err := cs.lookupTrees(ids)
		if err != nil {
			proc.SetError(err)
			return
		}
		iters := make([]core.AggregateIterator, len(trees))
		for i, t := range trees {
			iters[i] = t.Aggregate(req.Select.Begin, req.Select.End)
		}
		mat = operator.NewAggregator(ids, iters, req.Agg.Func, cs.opts.Logger)
	} else {
		trees, err := cs.lookupTrees(ids)
		if err != nil {
			proc.SetError(err)
			return
		}
		iters := make([]core.RealValuedIterator, len(trees))
		for i, t := range trees {
			iters[i] = t.Search(req.Select.Begin, req.Select.End)
		}
		if req.GroupBy.Enabled {
			// rewrite each id through the transient mapping
			for i, id := range ids {
				mapped, ok := req.GroupBy.TransientMap[id]
				if !ok {
					cs.logger.Error("bad transient id mapping", "id", id)
					proc.SetError(core.ErrNotFound)
					return
				}
				ids[i] = mapped
			}
			mat = operator.NewMergeOperator(req.OrderBy, ids, iters)
		} else if req.OrderBy == core.OrderBySeries {
			mat = operator.NewChainMaterializer(ids, iters)
		} else {
			mat = operator.NewMergeOperator(core.OrderByTime, ids, iters)
		}
	}

	if cs.drain(mat, proc) {
		proc.Complete()
	}
}

// JoinQuery assembles rows across several columns: the i-th ids of all
// columns form row source i, one JoinOperator per row, drained
// sequentially.
func (cs *ColumnStore) JoinQuery(ctx context.Context, req *core.ReshapeRequest, proc core.StreamProcessor) {
	_, span := cs.tracer.Start(ctx, "ColumnStore.JoinQuery")
	defer span.End()
	cs.logger.Debug("join query", "request", req.String())

	if len(req.Select.Columns) < 2 {
		cs.logger.Error("bad join request, not enough columns", "columns", len(req.Select.Columns))
		proc.SetError(core.ErrBadArg)
		return
	}
	if len(req.Select.Columns) > operator.MaxTupleSize {
		cs.logger.Error("bad join request, too many columns", "columns", len(req.Select.Columns))
		proc.SetError(core.ErrBadArg)
		return
	}
	rows := len(req.Select.Columns[0].Ids)
	for _, col := range req.Select.Columns {
		if len(col.Ids) != rows {
			cs.logger.Error("bad join request, ragged column ids")
			proc.SetError(core.ErrBadArg)
			return
		}
	}

	var joins []*operator.JoinOperator
	for ix := 0; ix < rows; ix++ {
		ids := make([]core.Id, len(req.Select.Columns))
		for col := range req.Select.Columns {
			ids[col] = req.Select.Columns[col].Ids[ix]
		}
		trees, err := cs.lookupTrees(ids)
		if err != nil {
			proc.SetError(err)
			return
		}
		iters := make([]core.RealValuedIterator, len(trees))
		for i, t := range trees {
			iters[i] = t.Search(req.Select.Begin, req.Select.End)
		}
		joins = append(joins, operator.NewJoinOperator(ids, iters))
	}

	for _, join := range joins {
		if !cs.drain(join, proc) {
			return
		}
	}
	proc.Complete()
}

// GroupAggregateQuery executes a stepped aggregation, materialized as
// TUPLE samples in the requested order.
func (cs *ColumnStore) GroupAggregateQuery(ctx context.Context, req *core.ReshapeRequest, proc core.StreamProcessor) {
	_, span := cs.tracer.Start(ctx, "ColumnStore.GroupAggregateQuery")
	defer span.End()
	cs.logger.Debug("group-aggregate query", "request", req.String())

	if len(req.Select.Columns) != 1 {
		cs.logger.Error("bad group-aggregate request, column count must be one", "columns", len(req.Select.Columns))
		proc.SetError(core.ErrBadArg)
		return
	}
	if req.Agg.Step == 0 || len(req.Agg.Funcs) == 0 {
		cs.logger.Error("bad group-aggregate request, missing step or functions")
		proc.SetError(core.ErrBadArg)
		return
	}
	if req.GroupBy.Enabled {
		cs.logger.Error("group-by in group-aggregate query is not supported yet")
		proc.SetError(core.ErrNotPermitted)
		return
	}

	ids := append([]core.Id(nil), req.Select.Columns[0].Ids...)
	if len(ids) == 0 {
		proc.Complete()
		return
	}
	trees, err := cs.lookupTrees(ids)
	if err != nil {
		proc.SetError(err)
		return
	}
	iters := make([]core.AggregateIterator, len(trees))
	for i, t := range trees {
		iters[i] = t.GroupAggregate(req.Select.Begin, req.Select.End, req.Agg.Step)
	}

	var mat core.Materializer
	if req.OrderBy == core.OrderBySeries {
		mat = operator.NewSeriesOrderIterator(ids, iters, req.Agg.Funcs)
	} else {
		mat = operator.NewTimeOrderIterator(ids, iters, req.Agg.Funcs)
	}
	if cs.drain(mat, proc) {
		proc.Complete()
	}
}

// drain pumps a materializer into the processor in fixed-size batches.
// It returns false when the processor refused a sample or an error was
// surfaced, true on normal end of stream. Completion is signalled by
// the caller, which may drain several materializers in sequence.
func (cs *ColumnStore) drain(mat core.Materializer, proc core.StreamProcessor) bool {
	buf := make([]byte, drainBatchSamples*core.HeaderSize)
	for {
		n, err := mat.Read(buf)
		pos := 0
		for pos < n {
			sample, size, decErr := core.DecodeSample(buf[pos:n])
			if decErr != nil {
				cs.logger.Error("iteration error", "error", decErr)
				proc.SetError(decErr)
				return false
			}
			if !proc.Put(sample) {
				// downstream refused further input
				return false
			}
			pos += size
		}
		if err != nil {
			if errors.Is(err, core.ErrNoData) || errors.Is(err, core.ErrUnavailable) {
				return true
			}
			cs.logger.Error("iteration error", "error", err)
			proc.SetError(err)
			return false
		}
		if n == 0 {
			// a materializer that cannot make progress with a
			// batch-sized buffer has nothing left to produce
			return true
		}
	}
}
