// Package cluster implements the row store (C5): each table is a B+tree of
// clusters keyed by ObjKey, where a cluster is the key range plus one
// column leaf per column of the table's schema.
package cluster

import (
	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/btree"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// refCodec is the identity LeafCodec for primitives.Ref: a B+tree leaf slot
// already stores a raw uint64, and a Ref is one, so no packing is needed -
// unlike the radix tree's RefOrTagged, cluster cells never need the inline
// fast path reserved for the slab allocator and radix index.
type refCodec struct{}

func (refCodec) Encode(v primitives.Ref) uint64 { return uint64(v) }
func (refCodec) Decode(raw uint64) primitives.Ref { return primitives.Ref(raw) }

type objKeyCodec struct{}

func (objKeyCodec) Encode(v primitives.ObjKey) uint64 { return uint64(v) }
func (objKeyCodec) Decode(raw uint64) primitives.ObjKey { return primitives.ObjKey(raw) }

// ColumnSpec names one column of a table's schema: an ordered (name, ColKey)
// entry. LinkTarget names the column's single statically known target table
// for a Link/LinkList column (primitives.NullTableKey otherwise) - the piece
// of schema metadata the backlink-column machinery and cascade-delete
// traversal resolve against.
type ColumnSpec struct {
	Name       string
	Key        primitives.ColKey
	LinkTarget primitives.TableKey
}

// Table is the cluster store for one table: an ObjKey sequence plus one
// parallel column tree per schema column, all three kept in ordinal
// lockstep so row R's column C value sits at the same B+tree position in
// Keys and in Columns[C].
type Table struct {
	a       *alloc.Allocator
	version primitives.Version
	Schema  []ColumnSpec

	Keys    *btree.BTree[primitives.ObjKey]
	Columns []*btree.BTree[primitives.Ref]

	// Backlinks holds one column tree per distinct (origin table, origin
	// column) pair that targets this table, independent of this table's own
	// column count - a table can be linked to by several other tables'
	// columns. The group (C6) owns the index<->origin mapping (see
	// group.BacklinkKey) and grows BacklinkRoots as new origins appear; see
	// backlink.go.
	Backlinks []*btree.BTree[primitives.Ref]

	nextKey primitives.ObjKey
}

// New creates an empty table over schema.
func New(a *alloc.Allocator, schema []ColumnSpec, version primitives.Version) *Table {
	return Open(a, schema, primitives.NullRef, make([]primitives.Ref, len(schema)), nil, version)
}

// Open wraps an existing table rooted at keysRoot, with one column root per
// schema entry and one backlink root per group-tracked backlink column
// (NullRef for an absent tree).
func Open(a *alloc.Allocator, schema []ColumnSpec, keysRoot primitives.Ref, colRoots, backlinkRoots []primitives.Ref, version primitives.Version) *Table {
	t := &Table{
		a:         a,
		version:   version,
		Schema:    schema,
		Keys:      btree.Open(a, keysRoot, objKeyCodec{}, version),
		Columns:   make([]*btree.BTree[primitives.Ref], len(schema)),
		Backlinks: make([]*btree.BTree[primitives.Ref], len(backlinkRoots)),
	}
	for i := range schema {
		t.Columns[i] = btree.Open(a, colRoots[i], refCodec{}, version)
	}
	for i := range backlinkRoots {
		t.Backlinks[i] = btree.Open(a, backlinkRoots[i], refCodec{}, version)
	}
	return t
}

// ColumnRoots returns the current root ref of every column tree, to persist
// alongside the table entry.
func (t *Table) ColumnRoots() []primitives.Ref {
	roots := make([]primitives.Ref, len(t.Columns))
	for i, c := range t.Columns {
		roots[i] = c.Root()
	}
	return roots
}

// BacklinkRoots returns the current root ref of every backlink column tree.
func (t *Table) BacklinkRoots() []primitives.Ref {
	roots := make([]primitives.Ref, len(t.Backlinks))
	for i, c := range t.Backlinks {
		roots[i] = c.Root()
	}
	return roots
}

// RowCount returns the number of live and tombstoned rows.
func (t *Table) RowCount() (int, error) {
	return t.Keys.Size()
}

// columnIndex resolves a ColKey to its position in the schema.
func (t *Table) columnIndex(col primitives.ColKey) (int, error) {
	for i, c := range t.Schema {
		if c.Key == col {
			return i, nil
		}
	}
	return 0, dberr.New(dberr.NoSuchTable, "cluster: unknown column")
}

// findPosition binary-searches the ascending Keys sequence for key, the
// descend-the-cluster-tree-by-key read path generalized to a position
// lookup (Keys is kept sorted ascending by InsertRow; a tombstone keeps the
// position of the key it replaced and is compared as that key). Returns
// the exact position and true if key is present and live; otherwise the
// insertion point and false.
func (t *Table) findPosition(key primitives.ObjKey) (int, bool, error) {
	n, err := t.Keys.Size()
	if err != nil {
		return 0, false, err
	}
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		v, err := t.Keys.Get(mid)
		if err != nil {
			return 0, false, err
		}
		if v.IsTombstone() {
			v = -(v + 1)
		}
		if v < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < n {
		v, err := t.Keys.Get(lo)
		if err != nil {
			return 0, false, err
		}
		if v == key {
			return lo, true, nil
		}
	}
	return lo, false, nil
}

// NextKey allocates the next ObjKey. ObjKey stays stable across clusters
// splitting and merging: keys are assigned monotonically and never reused,
// including past tombstoned rows.
func (t *Table) NextKey() primitives.ObjKey {
	k := t.nextKey
	t.nextKey++
	return k
}

// InsertRow adds a new row at key with one value per schema column (nil or
// types.Null() for an absent value in a nullable column).
func (t *Table) InsertRow(key primitives.ObjKey, values []types.Mixed) error {
	if len(values) != len(t.Schema) {
		return dberr.New(dberr.LogicError, "cluster: value count does not match schema")
	}
	pos, found, err := t.findPosition(key)
	if err != nil {
		return err
	}
	if found {
		return dberr.New(dberr.LogicError, "cluster: ObjKey already present")
	}
	if err := t.Keys.Insert(pos, key); err != nil {
		return err
	}
	for i, v := range values {
		ref, err := encodeValue(t.a, t.version, v, t.Schema[i].Key)
		if err != nil {
			return err
		}
		if err := t.Columns[i].Insert(pos, ref); err != nil {
			return err
		}
	}
	for _, b := range t.Backlinks {
		if err := b.Insert(pos, primitives.NullRef); err != nil {
			return err
		}
	}
	return nil
}

// GetValue reads row key's value in column col.
func (t *Table) GetValue(key primitives.ObjKey, col primitives.ColKey) (types.Mixed, error) {
	pos, found, err := t.findPosition(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, dberr.New(dberr.NoSuchTable, "cluster: no such row")
	}
	ci, err := t.columnIndex(col)
	if err != nil {
		return nil, err
	}
	ref, err := t.Columns[ci].Get(pos)
	if err != nil {
		return nil, err
	}
	return decodeValue(t.a, ref, col)
}

// SetValue overwrites row key's value in column col. Write paths update the
// column leaves in place, copy-on-write via the slab allocator. The B+tree has
// no direct positional update, so this is modeled as erase-then-reinsert at
// the same ordinal position, which is what a COW rewrite of that leaf slot
// amounts to either way.
func (t *Table) SetValue(key primitives.ObjKey, col primitives.ColKey, v types.Mixed) error {
	pos, found, err := t.findPosition(key)
	if err != nil {
		return err
	}
	if !found {
		return dberr.New(dberr.NoSuchTable, "cluster: no such row")
	}
	ci, err := t.columnIndex(col)
	if err != nil {
		return err
	}
	ref, err := encodeValue(t.a, t.version, v, col)
	if err != nil {
		return err
	}
	if err := t.Columns[ci].Erase(pos); err != nil {
		return err
	}
	return t.Columns[ci].Insert(pos, ref)
}

// EraseRow soft-deletes row key by replacing it with a tombstone ObjKey - a
// negative ObjKey marks a tombstone - leaving the row's ordinal
// position and column values in place until CompactTombstones runs. This
// keeps find/count/backlink bookkeeping consistent for any reader still
// pinned to a snapshot that has the row live.
func (t *Table) EraseRow(key primitives.ObjKey) error {
	pos, found, err := t.findPosition(key)
	if err != nil {
		return err
	}
	if !found {
		return dberr.New(dberr.NoSuchTable, "cluster: no such row")
	}
	tombstone := primitives.ObjKey(-(int64(key) + 1))
	if err := t.Keys.Erase(pos); err != nil {
		return err
	}
	return t.Keys.Insert(pos, tombstone)
}

// CompactTombstones physically removes every tombstoned row once no
// pinned snapshot can still observe it (the caller is responsible for that
// check - typically the allocator's free-list consolidation point).
func (t *Table) CompactTombstones() error {
	n, err := t.Keys.Size()
	if err != nil {
		return err
	}
	for i := 0; i < n; {
		k, err := t.Keys.Get(i)
		if err != nil {
			return err
		}
		if !k.IsTombstone() {
			i++
			continue
		}
		if err := t.Keys.Erase(i); err != nil {
			return err
		}
		for _, c := range t.Columns {
			if err := c.Erase(i); err != nil {
				return err
			}
		}
		for _, b := range t.Backlinks {
			if err := b.Erase(i); err != nil {
				return err
			}
		}
		n--
	}
	return nil
}

// Iterate calls f with every live row's key in ascending order; f returning
// false stops iteration early.
func (t *Table) Iterate(f func(key primitives.ObjKey) bool) error {
	return t.Keys.Iterate(func(_ int, k primitives.ObjKey) bool {
		if k.IsTombstone() {
			return true
		}
		return f(k)
	})
}
