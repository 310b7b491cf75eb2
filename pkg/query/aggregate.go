package query

import (
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// Action names the four supported aggregates. A single generic
// dispatcher implements all of them over every numeric types.Type, in
// place of a per-kind calculator hierarchy.
type Action int

const (
	Min Action = iota
	Max
	Sum
	Avg
)

// numericOf extracts a float64 view of v for aggregation, or false if v is
// not one of the numeric column kinds aggregates operate over.
func numericOf(v types.Mixed) (float64, bool) {
	switch f := v.(type) {
	case *types.IntField:
		return float64(f.Value), true
	case *types.FloatField:
		return float64(f.Value), true
	case *types.DoubleField:
		return f.Value, true
	default:
		return 0, false
	}
}

// Aggregate folds action over values, skipping null and non-numeric
// cells. Returns (nil, false, nil) if no numeric value was found.
func Aggregate(values []types.Mixed, action Action) (types.Mixed, bool, error) {
	var (
		acc   float64
		count int
		min   float64
		max   float64
	)
	for _, v := range values {
		if types.IsNull(v) {
			continue
		}
		n, ok := numericOf(v)
		if !ok {
			continue
		}
		if count == 0 {
			min, max = n, n
		} else {
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
		}
		acc += n
		count++
	}
	if count == 0 {
		return nil, false, nil
	}
	switch action {
	case Min:
		return types.NewDoubleField(min), true, nil
	case Max:
		return types.NewDoubleField(max), true, nil
	case Sum:
		return types.NewDoubleField(acc), true, nil
	case Avg:
		return types.NewDoubleField(acc / float64(count)), true, nil
	default:
		return nil, false, dberr.New(dberr.LogicError, "query: unknown aggregate action")
	}
}

// aggregateOverKeys reads column idx for each of keys out of t and folds
// action over the resulting values, the shape an AggregateSubquery leaf
// and a TableView's pushed-down aggregate both need.
func aggregateOverKeys(t *cluster.Table, keys []primitives.ObjKey, idx int, action Action) (types.Mixed, error) {
	values := make([]types.Mixed, 0, len(keys))
	for _, k := range keys {
		v, err := t.GetValue(k, t.Schema[idx].Key)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	result, ok, err := Aggregate(values, action)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return result, nil
}
