// Package operator implements the read-path operators of the column
// store: per-series concatenation, k-way merge, columnar join, single
// aggregation and stepped group-aggregation, plus the materializers
// that encode operator output into the wire sample format.
//
// Operators come in three families, matching the cursor contracts in
// package core: real-valued cursors (timestamp, float64), aggregate
// cursors (timestamp, AggregationResult) and materializers (raw sample
// bytes). Broken structural invariants (mismatched id/iterator vectors,
// too-wide joins) are programmer errors and panic.
package operator

import (
	"fmt"
)

func panicInvariant(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}
