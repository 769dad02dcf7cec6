package cstore

import (
	"context"

	"github.com/INLOpen/nexuscolumn/core"
	"github.com/INLOpen/nexuscolumn/tree"
)

// Session is a write session with a private id → tree cache. The first
// write for an id goes through the registry's map lock and records the
// tree handle in the cache; subsequent writes for the same id append
// directly.
type Session struct {
	cstore *ColumnStore
	cache  map[core.Id]*tree.Tree
}

// NewSession opens a write session on the registry.
func NewSession(cs *ColumnStore) *Session {
	return &Session{
		cstore: cs,
		cache:  make(map[core.Id]*tree.Tree),
	}
}

// Write appends one sample. Non-FLOAT payloads are rejected.
func (s *Session) Write(sample core.Sample, rescuePoints *[]core.LogicAddr) tree.AppendResult {
	if sample.PayloadType != core.PayloadFloat {
		return tree.AppendFailBadValue
	}
	if t, ok := s.cache[sample.ID]; ok {
		res := t.Append(sample.Timestamp, sample.Value)
		if res == tree.AppendFlushNeeded {
			*rescuePoints = t.GetRoots()
		}
		return res
	}
	// cache miss - access the global registry
	return s.cstore.Write(sample, rescuePoints, s.cache)
}

// Query runs a read query through the session's registry.
func (s *Session) Query(ctx context.Context, req *core.ReshapeRequest, proc core.StreamProcessor) {
	s.cstore.Query(ctx, req, proc)
}

// Close releases the session's cached handles.
func (s *Session) Close() {
	s.cache = nil
}
