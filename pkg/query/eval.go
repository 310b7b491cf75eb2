package query

import (
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// Evaluate walks every live row of t in key order and returns the ObjKeys
// for which cond holds, the step a Results in Query mode runs before it is
// materialized into a TableView.
func Evaluate(t *cluster.Table, cond ConditionNode) ([]primitives.ObjKey, error) {
	var matched []primitives.ObjKey
	var evalErr error
	err := t.Iterate(func(key primitives.ObjKey) bool {
		ok, err := cond.Eval(tableRow{t: t, key: key})
		if err != nil {
			evalErr = err
			return false
		}
		if ok {
			matched = append(matched, key)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return matched, evalErr
}

// collectionKeys resolves a list/dictionary placeholder's element ref into
// the ObjKeys it holds, the same sorted-array shape cluster.Table uses for
// backlink sets.
func collectionKeys(t *cluster.Table, ph *types.CollectionPlaceholder) ([]primitives.ObjKey, error) {
	return t.CollectionKeys(ph.Ref)
}
