package core

import (
	"fmt"
	"math"
)

// AggregationFunc selects the summary produced by an aggregate query, or
// one component of a group-aggregate tuple.
type AggregationFunc int

const (
	AggMin AggregationFunc = iota
	AggMax
	AggSum
	AggCnt
	AggMean
)

func (f AggregationFunc) String() string {
	switch f {
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggSum:
		return "sum"
	case AggCnt:
		return "count"
	case AggMean:
		return "mean"
	default:
		return "unknown"
	}
}

// ParseAggregationFunc maps the textual function name used by requests.
func ParseAggregationFunc(name string) (AggregationFunc, error) {
	switch name {
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "sum":
		return AggSum, nil
	case "count", "cnt":
		return AggCnt, nil
	case "mean", "avg":
		return AggMean, nil
	default:
		return 0, fmt.Errorf("unknown aggregation function %q: %w", name, ErrBadArg)
	}
}

// AggregationResult is the summary of a set of points over a time
// interval. Begin/End describe the covered interval in scan order, so
// Begin > End for backward scans.
type AggregationResult struct {
	Cnt   float64
	Sum   float64
	Min   float64
	Max   float64
	First float64
	Last  float64
	MinTs Timestamp
	MaxTs Timestamp
	Begin Timestamp
	End   Timestamp
}

// NewAggregationResult returns the neutral element for Combine and Add.
func NewAggregationResult() AggregationResult {
	return AggregationResult{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}
}

// Add folds a single point into the result. Points must arrive in scan
// order.
func (a *AggregationResult) Add(ts Timestamp, value float64) {
	a.Sum += value
	if value < a.Min {
		a.Min = value
		a.MinTs = ts
	}
	if value > a.Max {
		a.Max = value
		a.MaxTs = ts
	}
	if a.Cnt == 0 {
		a.First = value
		a.Begin = ts
	}
	a.Last = value
	a.End = ts
	a.Cnt += 1
}

// Combine merges other into a. The receiver is the earlier interval in
// scan order: First and Begin are kept from a, Last and End taken from
// other, extrema and accumulators merged.
func (a *AggregationResult) Combine(other *AggregationResult) {
	if other.Cnt == 0 {
		return
	}
	if a.Cnt == 0 {
		*a = *other
		return
	}
	if other.Min < a.Min {
		a.Min = other.Min
		a.MinTs = other.MinTs
	}
	if other.Max > a.Max {
		a.Max = other.Max
		a.MaxTs = other.MaxTs
	}
	a.Sum += other.Sum
	a.Cnt += other.Cnt
	a.Last = other.Last
	a.End = other.End
}

// Mean returns sum/cnt, or NaN for an empty result.
func (a *AggregationResult) Mean() float64 {
	if a.Cnt == 0 {
		return math.NaN()
	}
	return a.Sum / a.Cnt
}

// Component extracts the value of one tuple component.
func (a *AggregationResult) Component(f AggregationFunc) float64 {
	switch f {
	case AggMin:
		return a.Min
	case AggMax:
		return a.Max
	case AggSum:
		return a.Sum
	case AggCnt:
		return a.Cnt
	case AggMean:
		return a.Mean()
	default:
		return math.NaN()
	}
}
