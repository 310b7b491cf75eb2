package cluster

import (
	"sort"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/btree"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// linkTarget extracts the ObjKey a Link-typed Mixed value points at.
func linkTarget(v types.Mixed) (primitives.ObjKey, bool) {
	l, ok := v.(*types.LinkField)
	if !ok {
		return primitives.NullObjKey, false
	}
	return l.Target, true
}

// newLinkValue wraps target as a Link-typed Mixed value, or Null when
// target is the null sentinel (clearing the link).
func newLinkValue(target primitives.ObjKey) types.Mixed {
	if target.IsNull() {
		return types.Null()
	}
	return types.NewLinkField(target)
}

// Backlink columns store, per target row, the sorted set of ObjKeys on the
// origin side that currently link to it: the backlink column on the target
// table is maintained automatically, so for every link from (T1,R1,C1) to
// (T2,R2) the backlink column of T2 at (R2, backlink-of(C1)) contains R1. A
// cell is a Ref to a packed,
// sorted, duplicate-free Array of ObjKeys, or NullRef for an empty set -
// the same sorted-list shape the radix tree uses for its duplicate lists
// (pkg/radix/radix.go's newSortedList), reused here for the analogous
// one-to-many fan-in.

func (t *Table) backlinkSet(ref primitives.Ref) ([]primitives.ObjKey, error) {
	if ref.IsNull() {
		return nil, nil
	}
	arr, err := array.InitFromRef(t.a, ref)
	if err != nil {
		return nil, err
	}
	out := make([]primitives.ObjKey, arr.Size())
	for i := range out {
		v, err := arr.GetSigned(i)
		if err != nil {
			return nil, err
		}
		out[i] = primitives.ObjKey(v)
	}
	return out, nil
}

func (t *Table) writeBacklinkSet(keys []primitives.ObjKey) (primitives.Ref, error) {
	if len(keys) == 0 {
		return primitives.NullRef, nil
	}
	arr, err := array.Create(t.a, array.Width64, len(keys), 0, false, alloc.NodeTypeArray, t.version)
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := arr.SetSigned(i, int64(k)); err != nil {
			return 0, err
		}
	}
	return arr.CopyOnWrite(t.version)
}

// CollectionKeys resolves a list/dictionary-of-links column's element ref
// to the ObjKeys it holds, for callers (pkg/query's aggregate subqueries)
// that need to walk a linked collection without reaching into the
// allocator directly.
func (t *Table) CollectionKeys(ref primitives.Ref) ([]primitives.ObjKey, error) {
	return t.backlinkSet(ref)
}

// BacklinkSet returns the set of origin ObjKeys currently recorded against
// targetKey in backlink column backlinkCol.
func (t *Table) BacklinkSet(targetKey primitives.ObjKey, backlinkCol int) ([]primitives.ObjKey, error) {
	pos, found, err := t.findPosition(targetKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dberr.New(dberr.NoSuchTable, "cluster: no such row").WithIdent(targetKey.String())
	}
	ref, err := t.Backlinks[backlinkCol].Get(pos)
	if err != nil {
		return nil, err
	}
	return t.backlinkSet(ref)
}

// EnsureBacklinkSlot grows t.Backlinks to cover index backlinkCol, so that a
// column index the group registry just handed out (group.EnsureBacklinkColumn)
// is safe to index into on this already-open Table. A freshly added slot is
// backfilled with a NullRef entry for every row already present, matching
// what InsertRow does for every slot that already existed when the row was
// added.
func (t *Table) EnsureBacklinkSlot(backlinkCol int) error {
	if backlinkCol < len(t.Backlinks) {
		return nil
	}
	n, err := t.Keys.Size()
	if err != nil {
		return err
	}
	for len(t.Backlinks) <= backlinkCol {
		tree := btree.Open(t.a, primitives.NullRef, refCodec{}, t.version)
		for i := 0; i < n; i++ {
			if err := tree.Insert(i, primitives.NullRef); err != nil {
				return err
			}
		}
		t.Backlinks = append(t.Backlinks, tree)
	}
	return nil
}

// AddBacklink inserts originKey into targetKey's backlink set, per P5.
// Inserting the same (targetKey, originKey) pair twice is a no-op, matching
// a LinkList that names the same target more than once collapsing to one
// backlink entry.
func (t *Table) AddBacklink(targetKey primitives.ObjKey, backlinkCol int, originKey primitives.ObjKey) error {
	pos, found, err := t.findPosition(targetKey)
	if err != nil {
		return err
	}
	if !found {
		return dberr.New(dberr.NoSuchTable, "cluster: backlink target row does not exist").WithIdent(targetKey.String())
	}
	ref, err := t.Backlinks[backlinkCol].Get(pos)
	if err != nil {
		return err
	}
	set, err := t.backlinkSet(ref)
	if err != nil {
		return err
	}
	i := sort.Search(len(set), func(i int) bool { return set[i] >= originKey })
	if i < len(set) && set[i] == originKey {
		return nil
	}
	set = append(set, 0)
	copy(set[i+1:], set[i:])
	set[i] = originKey

	newRef, err := t.writeBacklinkSet(set)
	if err != nil {
		return err
	}
	if err := t.Backlinks[backlinkCol].Erase(pos); err != nil {
		return err
	}
	return t.Backlinks[backlinkCol].Insert(pos, newRef)
}

// RemoveBacklink deletes originKey from targetKey's backlink set, if
// present. Removing an absent entry is a no-op (cascade deletes can race a
// prior erase of the same link).
func (t *Table) RemoveBacklink(targetKey primitives.ObjKey, backlinkCol int, originKey primitives.ObjKey) error {
	pos, found, err := t.findPosition(targetKey)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	ref, err := t.Backlinks[backlinkCol].Get(pos)
	if err != nil {
		return err
	}
	set, err := t.backlinkSet(ref)
	if err != nil {
		return err
	}
	i := sort.Search(len(set), func(i int) bool { return set[i] >= originKey })
	if i >= len(set) || set[i] != originKey {
		return nil
	}
	set = append(set[:i], set[i+1:]...)

	newRef, err := t.writeBacklinkSet(set)
	if err != nil {
		return err
	}
	if err := t.Backlinks[backlinkCol].Erase(pos); err != nil {
		return err
	}
	return t.Backlinks[backlinkCol].Insert(pos, newRef)
}

// SetLink writes originKey's Link-typed column col to point at newTarget,
// maintaining the reciprocal backlink column on target: the old
// target's backlink entry for originKey is removed and the new target's
// backlink entry is added. newTarget.IsNull() clears the link without
// adding a new backlink.
func (t *Table) SetLink(originKey primitives.ObjKey, col primitives.ColKey, target *Table, backlinkCol int, newTarget primitives.ObjKey) error {
	ci, err := t.columnIndex(col)
	if err != nil {
		return err
	}
	pos, found, err := t.findPosition(originKey)
	if err != nil {
		return err
	}
	if !found {
		return dberr.New(dberr.NoSuchTable, "cluster: no such row").WithIdent(originKey.String())
	}

	oldRef, err := t.Columns[ci].Get(pos)
	if err != nil {
		return err
	}
	if !oldRef.IsNull() {
		oldVal, err := decodeValue(t.a, oldRef, col)
		if err == nil {
			if oldTarget, ok := linkTarget(oldVal); ok && !oldTarget.IsNull() {
				if err := target.RemoveBacklink(oldTarget, backlinkCol, originKey); err != nil {
					return err
				}
			}
		}
	}

	if err := t.SetValue(originKey, col, newLinkValue(newTarget)); err != nil {
		return err
	}
	if !newTarget.IsNull() {
		if err := target.AddBacklink(newTarget, backlinkCol, originKey); err != nil {
			return err
		}
	}
	return nil
}

// EraseLinkList removes every backlink entry a LinkList or Dictionary-of-
// links column of originKey currently holds against target, used when
// originKey itself is being removed by a cascading delete or the whole
// collection is being cleared.
func (t *Table) EraseLinkList(originKey primitives.ObjKey, col primitives.ColKey, target *Table, backlinkCol int, currentTargets []primitives.ObjKey) error {
	for _, tk := range currentTargets {
		if err := target.RemoveBacklink(tk, backlinkCol, originKey); err != nil {
			return err
		}
	}
	_, err := t.columnIndex(col)
	return err
}

// InsertLinkListEntry records the reciprocal backlink from newTarget on
// target back to originKey. It does not modify originKey's LinkList column
// itself.
func (t *Table) InsertLinkListEntry(originKey primitives.ObjKey, target *Table, backlinkCol int, newTarget primitives.ObjKey) error {
	return target.AddBacklink(newTarget, backlinkCol, originKey)
}

// RemoveLinkListEntry drops one targetObj out of originKey's LinkList column
// and its reciprocal backlink, leaving the rest of the list untouched. Used
// to sever a single dangling reference - e.g. a cascade-delete nullifying a
// LinkList entry that pointed at a row which no longer exists - without
// rewriting the whole collection through InsertLinkListEntry/EraseLinkList.
func (t *Table) RemoveLinkListEntry(originKey primitives.ObjKey, col primitives.ColKey, target *Table, backlinkCol int, targetObj primitives.ObjKey) error {
	v, err := t.GetValue(originKey, col)
	if err != nil {
		return err
	}
	cp, ok := v.(*types.CollectionPlaceholder)
	if !ok {
		return target.RemoveBacklink(targetObj, backlinkCol, originKey)
	}
	keys, err := t.CollectionKeys(cp.Ref)
	if err != nil {
		return err
	}
	kept := make([]primitives.ObjKey, 0, len(keys))
	for _, k := range keys {
		if k != targetObj {
			kept = append(kept, k)
		}
	}
	newRef, err := t.writeBacklinkSet(kept)
	if err != nil {
		return err
	}
	if err := t.SetValue(originKey, col, types.NewListPlaceholder(newRef)); err != nil {
		return err
	}
	return target.RemoveBacklink(targetObj, backlinkCol, originKey)
}
