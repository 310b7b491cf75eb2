// Package query implements the condition tree and Results evaluator (C8):
// the five Results modes, descriptor chaining, aggregate dispatch, and
// the background notifier coordinator.
package query

import (
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// Row is the narrow view a ConditionNode needs of a candidate row: a single
// column read, keyed by schema position rather than ColKey so a condition
// tree built against one table's schema never has to re-resolve column
// identity per row.
type Row interface {
	Column(idx int) (types.Mixed, error)
}

type tableRow struct {
	t   *cluster.Table
	key primitives.ObjKey
}

func (r tableRow) Column(idx int) (types.Mixed, error) {
	return r.t.GetValue(r.key, r.t.Schema[idx].Key)
}

// ConditionNode evaluates to true or false against a single row: a
// condition tree over column accessors, with equality/relational/string-op
// leaves, AND/OR/NOT interior nodes, and an aggregate-subquery leaf.
type ConditionNode interface {
	Eval(row Row) (bool, error)
}

// Equality is a leaf testing column idx for equality with Value (or its
// negation), the condition tree's most common leaf shape.
type Equality struct {
	Column int
	Value  types.Mixed
	Negate bool
}

func (e Equality) Eval(row Row) (bool, error) {
	v, err := row.Column(e.Column)
	if err != nil {
		return false, err
	}
	ok, err := compareFields(v, e.Value, primitives.Equals)
	if err != nil {
		return false, err
	}
	if e.Negate {
		return !ok, nil
	}
	return ok, nil
}

// Relational is a leaf applying an ordering predicate (<, <=, >, >=, !=)
// between column idx and Value.
type Relational struct {
	Column int
	Op     primitives.Predicate
	Value  types.Mixed
}

func (r Relational) Eval(row Row) (bool, error) {
	v, err := row.Column(r.Column)
	if err != nil {
		return false, err
	}
	return compareFields(v, r.Value, r.Op)
}

// StringOp is a leaf applying a string-specific predicate (Like-style
// substring match) between column idx and Value.
type StringOp struct {
	Column int
	Op     primitives.Predicate
	Value  types.Mixed
}

func (s StringOp) Eval(row Row) (bool, error) {
	v, err := row.Column(s.Column)
	if err != nil {
		return false, err
	}
	return compareFields(v, s.Value, s.Op)
}

func compareFields(a, b types.Mixed, op primitives.Predicate) (bool, error) {
	if types.IsNull(a) || types.IsNull(b) {
		return op == primitives.NotEqual && a != b, nil
	}
	return a.Compare(op, b)
}

// And is true when every child is true; an empty And is vacuously true.
type And []ConditionNode

func (a And) Eval(row Row) (bool, error) {
	for _, c := range a {
		ok, err := c.Eval(row)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Or is true when any child is true; an empty Or is vacuously false.
type Or []ConditionNode

func (o Or) Eval(row Row) (bool, error) {
	for _, c := range o {
		ok, err := c.Eval(row)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Not negates its single child.
type Not struct{ Child ConditionNode }

func (n Not) Eval(row Row) (bool, error) {
	ok, err := n.Child.Eval(row)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// AggregateSubquery is a leaf that runs an aggregate over a linked
// collection column and compares the result, e.g. "ANY friends.age > 30".
type AggregateSubquery struct {
	Column    int
	Aggregate Action
	Sub       ConditionNode
	SubTable  *cluster.Table
	Op        primitives.Predicate
	Value     types.Mixed
}

func (s AggregateSubquery) Eval(row Row) (bool, error) {
	v, err := row.Column(s.Column)
	if err != nil {
		return false, err
	}
	ph, ok := v.(*types.CollectionPlaceholder)
	if !ok || s.SubTable == nil {
		return false, nil
	}
	keys, err := collectionKeys(s.SubTable, ph)
	if err != nil {
		return false, err
	}
	result, err := aggregateOverKeys(s.SubTable, keys, s.Column, s.Aggregate)
	if err != nil {
		return false, err
	}
	if result == nil {
		return false, nil
	}
	return compareFields(result, s.Value, s.Op)
}
