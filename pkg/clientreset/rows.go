package clientreset

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/txn"
	"github.com/module/tdb/pkg/types"
)

// rowFanOut bounds how many remote rows' column vectors are read
// concurrently during copyRowValues, bounding concurrent fan-out during
// client reset's row walk.
const rowFanOut = 8

// tableIndex is the per-table working state buildTableIndex builds once
// schema transfer has made every remote table resolvable locally by name.
// remotePK and localByPK together let convertValue resolve a link field's
// remote ObjKey into the corresponding local ObjKey via the row's primary
// key, resolving embedded-object references recursively. This engine's
// schema model has no separate embedded-table construct - only Link and
// LinkList to a table - so ordinary link resolution subsumes that case
// structurally.
type tableIndex struct {
	name        string
	localKey    primitives.TableKey
	remoteKey   primitives.TableKey
	localTable  *cluster.Table
	remoteTable *cluster.Table
	pkIdx       int
	pkCol       primitives.ColKey
	localByPK   map[string]primitives.ObjKey
	remotePK    map[primitives.ObjKey]types.Mixed
}

// tableSet indexes the same tableIndex entries by both sides' TableKey: a
// local schema column's LinkTarget is already a local key (resolved by
// transferSchema), while a TypedLinkField value read straight off a
// remote row still carries the remote table's own key, so convertValue
// needs both directions.
type tableSet struct {
	byLocalKey  map[primitives.TableKey]*tableIndex
	byRemoteKey map[primitives.TableKey]*tableIndex
}

// buildTableIndex opens every remote table's local counterpart (already
// guaranteed to exist by transferSchema) and records both tables' current
// primary-key maps.
func buildTableIndex(w *txn.WriteTxn, remote *txn.ReadTxn) (*tableSet, error) {
	remoteEntries := remote.Group().Tables()
	set := &tableSet{
		byLocalKey:  make(map[primitives.TableKey]*tableIndex, len(remoteEntries)),
		byRemoteKey: make(map[primitives.TableKey]*tableIndex, len(remoteEntries)),
	}

	for _, rt := range remoteEntries {
		localKey, localTable, err := w.Table(rt.Name)
		if err != nil {
			return nil, err
		}
		remoteTable, err := remote.Table(rt.Name)
		if err != nil {
			return nil, err
		}
		pkIdx, err := primaryKeyIndex(localTable.Schema)
		if err != nil {
			return nil, err
		}

		ti := &tableIndex{
			name:        rt.Name,
			localKey:    localKey,
			remoteKey:   rt.Key,
			localTable:  localTable,
			remoteTable: remoteTable,
			pkIdx:       pkIdx,
			pkCol:       localTable.Schema[pkIdx].Key,
			localByPK:   make(map[string]primitives.ObjKey),
			remotePK:    make(map[primitives.ObjKey]types.Mixed),
		}

		var walkErr error
		if err := localTable.Iterate(func(key primitives.ObjKey) bool {
			v, e := localTable.GetValue(key, ti.pkCol)
			if e != nil {
				walkErr = e
				return false
			}
			ti.localByPK[mixedKey(v)] = key
			return true
		}); err != nil {
			return nil, err
		}
		if walkErr != nil {
			return nil, walkErr
		}

		if err := remoteTable.Iterate(func(key primitives.ObjKey) bool {
			v, e := remoteTable.GetValue(key, ti.pkCol)
			if e != nil {
				walkErr = e
				return false
			}
			ti.remotePK[key] = v
			return true
		}); err != nil {
			return nil, err
		}
		if walkErr != nil {
			return nil, walkErr
		}

		set.byLocalKey[localKey] = ti
		set.byRemoteKey[rt.Key] = ti
	}
	return set, nil
}

// reconcileRowExistence deletes local rows whose primary key is absent
// remotely, then creates placeholder local rows for every remote primary
// key missing locally, across every table before any column value is
// copied, so later list assignments see the targets.
func reconcileRowExistence(set *tableSet, result *Result) error {
	for _, ti := range set.byLocalKey {
		remoteHas := make(map[string]bool, len(ti.remotePK))
		for _, pkVal := range ti.remotePK {
			remoteHas[mixedKey(pkVal)] = true
		}
		for pk, localObj := range ti.localByPK {
			if remoteHas[pk] {
				continue
			}
			if err := ti.localTable.EraseRow(localObj); err != nil {
				return err
			}
			delete(ti.localByPK, pk)
			result.RowsDeleted++
		}
	}

	for _, ti := range set.byLocalKey {
		for _, pkVal := range ti.remotePK {
			pk := mixedKey(pkVal)
			if _, ok := ti.localByPK[pk]; ok {
				continue
			}
			newKey := ti.localTable.NextKey()
			values := make([]types.Mixed, len(ti.localTable.Schema))
			for i := range values {
				values[i] = types.Null()
			}
			values[ti.pkIdx] = pkVal
			if err := ti.localTable.InsertRow(newKey, values); err != nil {
				return err
			}
			ti.localByPK[pk] = newKey
			result.RowsCreated++
		}
	}
	return nil
}

// copyRowValues walks every remote table and copies each row's column
// values into the matching local row, converting link references through
// set. Remote column reads for a single table are fanned out across
// goroutines; applying them to the local table happens sequentially
// because cluster.Table mutation is not safe for concurrent writers within
// one transaction.
func copyRowValues(ctx context.Context, localGroup *group.Group, set *tableSet, result *Result) error {
	for _, ti := range set.byLocalKey {
		remoteKeys := make([]primitives.ObjKey, 0, len(ti.remotePK))
		for remoteObj := range ti.remotePK {
			remoteKeys = append(remoteKeys, remoteObj)
		}

		rows := make([][]types.Mixed, len(remoteKeys))
		g, gctx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(rowFanOut)
		for i, remoteObj := range remoteKeys {
			i, remoteObj := i, remoteObj
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				values := make([]types.Mixed, len(ti.remoteTable.Schema))
				for ci, col := range ti.remoteTable.Schema {
					v, err := ti.remoteTable.GetValue(remoteObj, col.Key)
					if err != nil {
						return err
					}
					values[ci] = v
				}
				rows[i] = values
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return dberr.Wrap(err, dberr.ClientResetFailed, "clientreset.copyRowValues")
		}

		for _, values := range rows {
			pk := mixedKey(values[ti.pkIdx])
			localObj, ok := ti.localByPK[pk]
			if !ok {
				continue
			}
			for ci, col := range ti.localTable.Schema {
				if ci == ti.pkIdx {
					continue
				}
				converted, err := convertValue(set, col, values[ci])
				if err != nil {
					return err
				}
				if err := applyColumnValue(localGroup, set, ti, ci, col, localObj, converted); err != nil {
					return err
				}
			}
			result.RowsUpdated++
		}
	}
	return nil
}

// convertValue resolves a remote column value for storage in the local
// row, remapping Link and TypedLink payloads from the remote table's
// ObjKey space into the local one via each target table's primary key.
func convertValue(set *tableSet, col cluster.ColumnSpec, v types.Mixed) (types.Mixed, error) {
	if types.IsNull(v) {
		return v, nil
	}
	switch lf := v.(type) {
	case *types.LinkField:
		target, ok := set.byLocalKey[col.LinkTarget]
		if !ok {
			return types.Null(), nil
		}
		pkVal, ok := target.remotePK[lf.Target]
		if !ok {
			return types.Null(), nil
		}
		localObj, ok := target.localByPK[mixedKey(pkVal)]
		if !ok {
			return types.Null(), nil
		}
		return types.NewLinkField(localObj), nil
	case *types.TypedLinkField:
		target, ok := set.byRemoteKey[lf.Link.Table]
		if !ok {
			return v, nil
		}
		pkVal, ok := target.remotePK[lf.Link.Obj]
		if !ok {
			return v, nil
		}
		localObj, ok := target.localByPK[mixedKey(pkVal)]
		if !ok {
			return v, nil
		}
		return types.NewTypedLinkField(primitives.ObjLink{Table: target.localKey, Obj: localObj}), nil
	default:
		return v, nil
	}
}

// applyColumnValue writes converted into localObj's column col. A Link or
// Mixed/TypedLink value is dispatched through the backlink-aware cluster
// APIs so the copy keeps the target table's backlink column in step with
// what client reset just wrote (P5); everything else is a plain cell write.
func applyColumnValue(localGroup *group.Group, set *tableSet, ti *tableIndex, ci int, col cluster.ColumnSpec, localObj primitives.ObjKey, converted types.Mixed) error {
	switch newVal := converted.(type) {
	case *types.LinkField:
		target, ok := set.byLocalKey[col.LinkTarget]
		if !ok {
			return ti.localTable.SetValue(localObj, col.Key, converted)
		}
		backlinkCol, err := localGroup.EnsureBacklinkColumn(target.localKey, ti.localKey, ci)
		if err != nil {
			return err
		}
		if err := target.localTable.EnsureBacklinkSlot(backlinkCol); err != nil {
			return err
		}
		return ti.localTable.SetLink(localObj, col.Key, target.localTable, backlinkCol, newVal.Target)
	case *types.TypedLinkField:
		return applyTypedLinkValue(localGroup, set, ti, ci, col, localObj, newVal)
	default:
		return ti.localTable.SetValue(localObj, col.Key, converted)
	}
}

// applyTypedLinkValue maintains the reciprocal backlink for a Mixed column
// holding a TypedLink. Unlike a plain Link column, the target table isn't
// fixed by the schema - it travels with the value - so the old and new
// target can land in different tables and cluster.Table.SetLink's
// single-target assumption doesn't apply; the old and new backlink entries
// are resolved and applied independently instead.
func applyTypedLinkValue(localGroup *group.Group, set *tableSet, ti *tableIndex, ci int, col cluster.ColumnSpec, localObj primitives.ObjKey, newVal *types.TypedLinkField) error {
	oldVal, err := ti.localTable.GetValue(localObj, col.Key)
	if err != nil {
		return err
	}
	if oldLink, ok := oldVal.(*types.TypedLinkField); ok && !oldLink.Link.IsNull() {
		if oldTarget, ok := set.byLocalKey[oldLink.Link.Table]; ok {
			backlinkCol, err := localGroup.EnsureBacklinkColumn(oldTarget.localKey, ti.localKey, ci)
			if err != nil {
				return err
			}
			if err := oldTarget.localTable.EnsureBacklinkSlot(backlinkCol); err != nil {
				return err
			}
			if err := oldTarget.localTable.RemoveBacklink(oldLink.Link.Obj, backlinkCol, localObj); err != nil {
				return err
			}
		}
	}

	if err := ti.localTable.SetValue(localObj, col.Key, newVal); err != nil {
		return err
	}
	if newVal.Link.IsNull() {
		return nil
	}
	target, ok := set.byLocalKey[newVal.Link.Table]
	if !ok {
		return nil
	}
	backlinkCol, err := localGroup.EnsureBacklinkColumn(target.localKey, ti.localKey, ci)
	if err != nil {
		return err
	}
	if err := target.localTable.EnsureBacklinkSlot(backlinkCol); err != nil {
		return err
	}
	return target.localTable.AddBacklink(newVal.Link.Obj, backlinkCol, localObj)
}
