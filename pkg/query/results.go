package query

import (
	"sort"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// Mode is the Results object's internal state: one of five evaluation
// modes.
type Mode int

const (
	ModeEmpty Mode = iota
	ModeTable
	ModeCollection
	ModeQuery
	ModeTableView
)

// descriptor is the accumulated sort/distinct/limit chain a Results carries
// without mutating its receiver; Sort/Distinct/Filter/Limit each return a
// new Results with one more entry appended and never mutate the receiver.
type descriptor struct {
	sortColumn   int
	sortDesc     bool
	hasSort      bool
	distinct     bool
	distinctCol  int
	limit        int
	hasLimit     bool
	extraFilter  ConditionNode
}

// Results is the query-facing handle: a table-bound view in one of five
// modes, with a pending descriptor chain and (once evaluated) a
// materialized TableView of matching ObjKeys plus the content-version it
// was built against.
type Results struct {
	mode  Mode
	table *cluster.Table
	cond  ConditionNode
	desc  descriptor

	collection []primitives.ObjKey // ModeCollection's backing set

	view           []primitives.ObjKey // ModeTableView's materialized keys
	contentVersion primitives.Version
	updatePolicy   UpdatePolicy
}

// UpdatePolicy controls whether a TableView re-evaluates automatically when
// its content-version goes stale and the update policy is Auto.
type UpdatePolicy int

const (
	Auto UpdatePolicy = iota
	Manual
)

// Empty returns a Results bound to no table, in Empty mode.
func Empty() *Results {
	return &Results{mode: ModeEmpty}
}

// FromTable returns a Results over every live row of t, in key order
// (Table mode).
func FromTable(t *cluster.Table) *Results {
	return &Results{mode: ModeTable, table: t, updatePolicy: Auto}
}

// FromCollection returns a Results projecting a list/set/dictionary of
// ObjKeys onto the Results API (Collection mode).
func FromCollection(t *cluster.Table, keys []primitives.ObjKey) *Results {
	cp := make([]primitives.ObjKey, len(keys))
	copy(cp, keys)
	return &Results{mode: ModeCollection, table: t, collection: cp, updatePolicy: Auto}
}

// FromQuery returns an unevaluated Results over t filtered by cond (Query
// mode); nothing is walked until EnsureUpToDate runs.
func FromQuery(t *cluster.Table, cond ConditionNode) *Results {
	return &Results{mode: ModeQuery, table: t, cond: cond, updatePolicy: Auto}
}

func (r *Results) clone() *Results {
	c := *r
	return &c
}

// Sort appends a sort descriptor and returns a new Results.
func (r *Results) Sort(column int, descending bool) *Results {
	c := r.clone()
	c.desc.hasSort = true
	c.desc.sortColumn = column
	c.desc.sortDesc = descending
	c.view = nil
	return c
}

// Distinct appends a distinct-on-column descriptor and returns a new
// Results.
func (r *Results) Distinct(column int) *Results {
	c := r.clone()
	c.desc.distinct = true
	c.desc.distinctCol = column
	c.view = nil
	return c
}

// Filter appends an additional condition (conjoined with any existing one)
// and returns a new Results.
func (r *Results) Filter(cond ConditionNode) *Results {
	c := r.clone()
	c.desc.extraFilter = cond
	c.view = nil
	return c
}

// Limit appends a row-count cap and returns a new Results.
func (r *Results) Limit(n int) *Results {
	c := r.clone()
	c.desc.hasLimit = true
	c.desc.limit = n
	c.view = nil
	return c
}

func (r *Results) effectiveCondition() ConditionNode {
	if r.desc.extraFilter == nil {
		return r.cond
	}
	if r.cond == nil {
		return r.desc.extraFilter
	}
	return And{r.cond, r.desc.extraFilter}
}

// EnsureUpToDate drives the mode-specific state transition: Empty and a
// descriptor-free Table are always current; a Table with descriptors and a
// Query evaluate into a TableView; a descriptor-free Collection defers to
// its own order; a TableView re-evaluates on every call while the update
// policy is Auto (contentVersion is not consulted) and never under Manual.
func (r *Results) EnsureUpToDate() error {
	switch r.mode {
	case ModeEmpty:
		return nil
	case ModeTable:
		if !r.desc.hasSort && !r.desc.distinct && !r.desc.hasLimit && r.desc.extraFilter == nil {
			return nil
		}
		if r.cond == nil {
			r.cond = And{}
		}
		return r.evaluate()
	case ModeCollection:
		if !r.desc.hasSort && !r.desc.distinct && r.desc.extraFilter == nil {
			return nil
		}
		return r.materializeFromCollection()
	case ModeQuery:
		return r.evaluate()
	case ModeTableView:
		if r.updatePolicy == Auto {
			return r.evaluate()
		}
		return nil
	default:
		return dberr.New(dberr.LogicError, "query: unknown Results mode")
	}
}

func (r *Results) materializeFromCollection() error {
	keys := append([]primitives.ObjKey(nil), r.collection...)
	if err := r.applyFilter(&keys); err != nil {
		return err
	}
	r.applyDescriptor(keys)
	r.mode = ModeTableView
	return nil
}

func (r *Results) evaluate() error {
	keys, err := Evaluate(r.table, r.effectiveCondition())
	if err != nil {
		return err
	}
	r.applyDescriptor(keys)
	r.mode = ModeTableView
	return nil
}

func (r *Results) applyFilter(keys *[]primitives.ObjKey) error {
	cond := r.desc.extraFilter
	if cond == nil {
		return nil
	}
	out := (*keys)[:0]
	for _, k := range *keys {
		ok, err := cond.Eval(tableRow{t: r.table, key: k})
		if err != nil {
			return err
		}
		if ok {
			out = append(out, k)
		}
	}
	*keys = out
	return nil
}

func (r *Results) applyDescriptor(keys []primitives.ObjKey) {
	if r.desc.hasSort && r.table != nil {
		col := r.desc.sortColumn
		sort.SliceStable(keys, func(i, j int) bool {
			vi, _ := r.table.GetValue(keys[i], r.table.Schema[col].Key)
			vj, _ := r.table.GetValue(keys[j], r.table.Schema[col].Key)
			lt, _ := compareFields(vi, vj, primitives.LessThan)
			if r.desc.sortDesc {
				gt, _ := compareFields(vi, vj, primitives.GreaterThan)
				return gt
			}
			return lt
		})
	}
	if r.desc.distinct && r.table != nil {
		seen := make(map[string]bool)
		out := keys[:0]
		for _, k := range keys {
			v, _ := r.table.GetValue(k, r.table.Schema[r.desc.distinctCol].Key)
			h := v.String()
			if seen[h] {
				continue
			}
			seen[h] = true
			out = append(out, k)
		}
		keys = out
	}
	if r.desc.hasLimit && len(keys) > r.desc.limit {
		keys = keys[:r.desc.limit]
	}
	r.view = keys
	if r.table != nil {
		n, _ := r.table.RowCount()
		r.contentVersion = primitives.Version(n)
	}
}

// Count returns the number of matching rows, evaluating if necessary.
func (r *Results) Count() (int, error) {
	if err := r.EnsureUpToDate(); err != nil {
		return 0, err
	}
	switch r.mode {
	case ModeEmpty:
		return 0, nil
	case ModeTable:
		return r.table.RowCount()
	case ModeCollection:
		return len(r.collection), nil
	default:
		return len(r.view), nil
	}
}

// Get returns the ObjKey at position i in the current evaluation order.
func (r *Results) Get(i int) (primitives.ObjKey, error) {
	if err := r.EnsureUpToDate(); err != nil {
		return 0, err
	}
	switch r.mode {
	case ModeEmpty:
		return 0, dberr.New(dberr.OutOfBounds, "query: empty Results")
	case ModeTable:
		var nth primitives.ObjKey
		idx := 0
		found := false
		err := r.table.Iterate(func(key primitives.ObjKey) bool {
			if idx == i {
				nth = key
				found = true
				return false
			}
			idx++
			return true
		})
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, dberr.New(dberr.OutOfBounds, "query: index out of range")
		}
		return nth, nil
	case ModeCollection:
		if i < 0 || i >= len(r.collection) {
			return 0, dberr.New(dberr.OutOfBounds, "query: index out of range")
		}
		return r.collection[i], nil
	default:
		if i < 0 || i >= len(r.view) {
			return 0, dberr.New(dberr.OutOfBounds, "query: index out of range")
		}
		return r.view[i], nil
	}
}

// IndexOf returns the position of key in the current evaluation order, or
// -1 if absent. On a sorted/distincted Results it walks the permuted
// indices; on an unordered Results it scans the underlying set.
func (r *Results) IndexOf(key primitives.ObjKey) (int, error) {
	if err := r.EnsureUpToDate(); err != nil {
		return -1, err
	}
	var keys []primitives.ObjKey
	switch r.mode {
	case ModeTable:
		n, err := r.table.RowCount()
		if err != nil {
			return -1, err
		}
		keys = make([]primitives.ObjKey, 0, n)
		err = r.table.Iterate(func(k primitives.ObjKey) bool {
			keys = append(keys, k)
			return true
		})
		if err != nil {
			return -1, err
		}
	case ModeCollection:
		keys = r.collection
	default:
		keys = r.view
	}
	for i, k := range keys {
		if k == key {
			return i, nil
		}
	}
	return -1, nil
}

// Aggregate dispatches action over column idx according to mode: on Table
// or Query it pushes down to the column accessor; on Collection it calls
// the collection's own aggregate; on TableView it iterates the stored
// keys, skipping detached rows.
func (r *Results) Aggregate(idx int, action Action) (types.Mixed, error) {
	if err := r.EnsureUpToDate(); err != nil {
		return nil, err
	}
	switch r.mode {
	case ModeEmpty:
		return nil, nil
	case ModeTable:
		var keys []primitives.ObjKey
		err := r.table.Iterate(func(k primitives.ObjKey) bool {
			keys = append(keys, k)
			return true
		})
		if err != nil {
			return nil, err
		}
		return aggregateOverKeys(r.table, keys, idx, action)
	case ModeCollection:
		return aggregateOverKeys(r.table, r.collection, idx, action)
	default:
		live := make([]primitives.ObjKey, 0, len(r.view))
		for _, k := range r.view {
			if !k.IsTombstone() {
				live = append(live, k)
			}
		}
		return aggregateOverKeys(r.table, live, idx, action)
	}
}

// Snapshot freezes the current TableView and disables further
// auto-refresh, so the caller sees a stable sequence.
func (r *Results) Snapshot() (*Results, error) {
	if err := r.EnsureUpToDate(); err != nil {
		return nil, err
	}
	c := r.clone()
	c.updatePolicy = Manual
	c.view = append([]primitives.ObjKey(nil), r.view...)
	return c, nil
}

// Mode reports the Results object's current internal state.
func (r *Results) Mode() Mode { return r.mode }
