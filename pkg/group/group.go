package group

import (
	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/btree"
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/radix"
)

// slotGenerations and the table slice are kept separate from TopArray:
// TopArray is the wire format, Group is the live accessor the rest of the
// engine mutates. A nil slot marks a removed table whose position is free
// for reuse at a bumped generation.
type slot struct {
	entry      *TableEntry
	generation uint32
}

// SchemaChange describes an additive schema mutation, delivered to
// registered handlers after commit.
type SchemaChange struct {
	Table primitives.TableKey
	Kind  string // "table-created", "table-renamed", "table-removed", "column-added"
	Ident string
}

// Group is the C6 schema registry: named tables, the top array's optional
// slots, and the notification hooks that tie schema/cascade events into the
// transaction layer.
type Group struct {
	a       *alloc.Allocator
	version primitives.Version

	slots []slot
	top   TopArray // non-table fields only; TableNames/TableRefs are derived from slots

	schemaHandlers []func(SchemaChange)
}

// New creates an empty group over a with no tables.
func New(a *alloc.Allocator, version primitives.Version) *Group {
	return &Group{a: a, version: version}
}

// Open reconstructs a Group from a previously persisted top array.
func Open(a *alloc.Allocator, topRef primitives.Ref, version primitives.Version) (*Group, error) {
	top, err := Load(a, topRef)
	if err != nil {
		return nil, err
	}
	g := &Group{a: a, version: version, top: *top}
	g.slots = make([]slot, len(top.TableRefs))
	for i, ref := range top.TableRefs {
		if ref.IsNull() {
			continue
		}
		p, err := unpackPersisted(a, ref)
		if err != nil {
			return nil, err
		}
		entry, err := loadEntry(a, p)
		if err != nil {
			return nil, err
		}
		g.slots[i] = slot{entry: entry, generation: entry.Key.Generation()}
	}
	g.top.TableNames = nil
	g.top.TableRefs = nil
	return g, nil
}

// OnSchemaChange registers a handler that CreateTable, RemoveTable,
// RenameTable and AddColumn call synchronously as each change is made. The
// call happens before any commit, whether or not the transaction later
// commits, and removals and renames are reported as well as additions.
func (g *Group) OnSchemaChange(h func(SchemaChange)) {
	g.schemaHandlers = append(g.schemaHandlers, h)
}

func (g *Group) notifySchema(c SchemaChange) {
	for _, h := range g.schemaHandlers {
		h(c)
	}
}

// CreateTable registers a new table named name with the given column
// schema. Each ColumnSpec whose ColKey carries the primary-key attribute
// requires the column also carry the indexed attribute.
func (g *Group) CreateTable(name string, schema []cluster.ColumnSpec) (primitives.TableKey, error) {
	if _, _, ok := g.findByName(name); ok {
		return 0, dberr.New(dberr.TableNameInUse, "group: table name already registered").WithIdent(name)
	}
	for _, c := range schema {
		if c.Key.IsPrimary() && !c.Key.HasSearchIndex() {
			return 0, dberr.New(dberr.LogicError, "group: primary-key column must be indexed").WithIdent(c.Name)
		}
	}

	pos, gen := g.claimSlot()
	key := primitives.NewTableKey(uint32(pos), gen)

	entry := &TableEntry{
		Key:         key,
		Name:        name,
		Schema:      schema,
		KeysRoot:    primitives.NullRef,
		ColumnRoots: make([]primitives.Ref, len(schema)),
		IndexRoots:  make([]primitives.Ref, len(schema)),
	}
	g.setSlot(pos, entry, gen)

	g.notifySchema(SchemaChange{Table: key, Kind: "table-created", Ident: name})
	return key, nil
}

func (g *Group) claimSlot() (int, uint32) {
	for i, s := range g.slots {
		if s.entry == nil {
			return i, s.generation + 1
		}
	}
	g.slots = append(g.slots, slot{})
	return len(g.slots) - 1, 1
}

func (g *Group) setSlot(pos int, entry *TableEntry, gen uint32) {
	g.slots[pos] = slot{entry: entry, generation: gen}
}

func (g *Group) findByName(name string) (int, *TableEntry, bool) {
	for i, s := range g.slots {
		if s.entry != nil && s.entry.Name == name {
			return i, s.entry, true
		}
	}
	return 0, nil, false
}

// resolve validates key against the live occupant of its slot position,
// rejecting stale keys from a since-removed-and-reused slot. Generation
// tags catch stale-accessor misuse at the API boundary.
func (g *Group) resolve(key primitives.TableKey) (int, *TableEntry, error) {
	pos := int(key.Position())
	if pos < 0 || pos >= len(g.slots) || g.slots[pos].entry == nil {
		return 0, nil, dberr.New(dberr.NoSuchTable, "group: no such table").WithIdent(key.String())
	}
	if g.slots[pos].generation != key.Generation() {
		return 0, nil, dberr.New(dberr.StaleAccessor, "group: stale table key").WithIdent(key.String())
	}
	return pos, g.slots[pos].entry, nil
}

// TableByKey returns the live entry for key.
func (g *Group) TableByKey(key primitives.TableKey) (*TableEntry, error) {
	_, e, err := g.resolve(key)
	return e, err
}

// TableByName returns the live entry named name.
func (g *Group) TableByName(name string) (*TableEntry, error) {
	_, e, ok := g.findByName(name)
	if !ok {
		return nil, dberr.New(dberr.NoSuchTable, "group: no such table").WithIdent(name)
	}
	return e, nil
}

// Tables returns every live table entry, in slot order.
func (g *Group) Tables() []*TableEntry {
	out := make([]*TableEntry, 0, len(g.slots))
	for _, s := range g.slots {
		if s.entry != nil {
			out = append(out, s.entry)
		}
	}
	return out
}

// RemoveTable deletes the table identified by key. referencedBy
// lists tables (other than key itself) whose schema still carries a Link
// column targeting key; a non-empty list fails with CrossTableLinkTarget,
// since a table still referenced by a strong link cannot be dropped out
// from under its backlinks.
func (g *Group) RemoveTable(key primitives.TableKey, referencedBy []primitives.TableKey) error {
	pos, entry, err := g.resolve(key)
	if err != nil {
		return err
	}
	if len(referencedBy) > 0 {
		return dberr.New(dberr.CrossTableLinkTarget, "group: table is still referenced by a link column").WithIdent(entry.Name)
	}
	g.slots[pos].entry = nil
	g.notifySchema(SchemaChange{Table: key, Kind: "table-removed", Ident: entry.Name})
	return nil
}

// RenameTable renames the table identified by key.
func (g *Group) RenameTable(key primitives.TableKey, newName string) error {
	_, entry, err := g.resolve(key)
	if err != nil {
		return err
	}
	if _, _, ok := g.findByName(newName); ok {
		return dberr.New(dberr.TableNameInUse, "group: table name already registered").WithIdent(newName)
	}
	old := entry.Name
	entry.Name = newName
	g.notifySchema(SchemaChange{Table: key, Kind: "table-renamed", Ident: old + "->" + newName})
	return nil
}

// AddColumn appends col to key's schema. This is an additive schema change:
// the new column starts with a null value for every existing row (its
// column tree is filled with one NullRef cell per row already in Keys,
// which cluster.Table reads as null).
func (g *Group) AddColumn(key primitives.TableKey, col cluster.ColumnSpec) error {
	_, entry, err := g.resolve(key)
	if err != nil {
		return err
	}
	for _, c := range entry.Schema {
		if c.Name == col.Name {
			return dberr.New(dberr.DescriptorMismatch, "group: column name already exists").WithIdent(col.Name)
		}
	}
	rows, err := cluster.Open(g.a, entry.Schema, entry.KeysRoot, entry.ColumnRoots, entry.BacklinkRoots, g.version).RowCount()
	if err != nil {
		return err
	}
	colTree := btree.Open(g.a, primitives.NullRef, historyRefCodec{}, g.version)
	for i := 0; i < rows; i++ {
		if err := colTree.Insert(i, primitives.NullRef); err != nil {
			return err
		}
	}
	entry.Schema = append(entry.Schema, col)
	entry.ColumnRoots = append(entry.ColumnRoots, colTree.Root())
	entry.IndexRoots = append(entry.IndexRoots, primitives.NullRef)
	g.notifySchema(SchemaChange{Table: key, Kind: "column-added", Ident: col.Name})
	return nil
}

// OpenTable constructs a live cluster.Table accessor for key, bound to the
// caller's transaction version.
func (g *Group) OpenTable(key primitives.TableKey, version primitives.Version) (*cluster.Table, error) {
	_, entry, err := g.resolve(key)
	if err != nil {
		return nil, err
	}
	return cluster.Open(g.a, entry.Schema, entry.KeysRoot, entry.ColumnRoots, entry.BacklinkRoots, version), nil
}

// SaveTable writes back a cluster.Table's current root refs into its group
// entry, called by the write transaction after mutating a table.
func (g *Group) SaveTable(key primitives.TableKey, t *cluster.Table, nextKey primitives.ObjKey) error {
	_, entry, err := g.resolve(key)
	if err != nil {
		return err
	}
	entry.KeysRoot = t.Keys.Root()
	entry.NextKey = nextKey
	entry.ColumnRoots = t.ColumnRoots()
	entry.BacklinkRoots = t.BacklinkRoots()
	return nil
}

// OpenIndex returns the radix-tree search index for col on key's table, or
// an empty tree if the column has no index yet built.
func (g *Group) OpenIndex(key primitives.TableKey, colIdx int, version primitives.Version) (*radix.RadixTree, error) {
	_, entry, err := g.resolve(key)
	if err != nil {
		return nil, err
	}
	if colIdx < 0 || colIdx >= len(entry.IndexRoots) {
		return nil, dberr.New(dberr.OutOfBounds, "group: column index out of range")
	}
	return radix.Open(g.a, entry.IndexRoots[colIdx], version), nil
}

// EnsureBacklinkColumn returns the backlink-column slot index on target's
// entry tracking links from (originTable, originCol), allocating a new slot
// the first time that origin is seen. The returned index is only valid on a
// live cluster.Table accessor for target once that Table's own Backlinks
// slice has grown to match - see cluster.Table.EnsureBacklinkSlot.
func (g *Group) EnsureBacklinkColumn(target, originTable primitives.TableKey, originCol int) (int, error) {
	_, entry, err := g.resolve(target)
	if err != nil {
		return 0, err
	}
	key := BacklinkKey{OriginTable: originTable, OriginCol: originCol}
	for i, k := range entry.BacklinkKeys {
		if k == key {
			return i, nil
		}
	}
	entry.BacklinkKeys = append(entry.BacklinkKeys, key)
	entry.BacklinkRoots = append(entry.BacklinkRoots, primitives.NullRef)
	return len(entry.BacklinkRoots) - 1, nil
}

// LinkColumnsTargeting returns the (table, column-index) of every live
// schema column across the group whose LinkTarget is target, used by
// cascade-delete traversal to find where a removed object's backlinks
// might be held.
type LinkColumnRef struct {
	Table    primitives.TableKey
	ColIndex int
}

func (g *Group) LinkColumnsTargeting(target primitives.TableKey) []LinkColumnRef {
	var out []LinkColumnRef
	for _, s := range g.slots {
		if s.entry == nil {
			continue
		}
		for i, c := range s.entry.Schema {
			if c.LinkTarget == target {
				out = append(out, LinkColumnRef{Table: s.entry.Key, ColIndex: i})
			}
		}
	}
	return out
}

// SaveIndex persists idx's current root back into key's entry at colIdx.
func (g *Group) SaveIndex(key primitives.TableKey, colIdx int, idx *radix.RadixTree) error {
	_, entry, err := g.resolve(key)
	if err != nil {
		return err
	}
	entry.IndexRoots[colIdx] = idx.Root()
	return nil
}

// Version returns the group's bound snapshot version.
func (g *Group) Version() primitives.Version { return g.version }

// PersistedVersion returns the version recorded in the top array's
// current-version slot at the time this Group was opened - the snapshot
// version the on-disk state actually reflects, which DB.open uses to seed
// its version counter.
func (g *Group) PersistedVersion() primitives.Version { return g.top.CurrentVersion }

// LogicalFileSize returns the top array's logical-file-size slot.
func (g *Group) LogicalFileSize() int64 { return g.top.LogicalFileSize }

// SetLogicalFileSize updates the logical-file-size slot, driven by the
// allocator's high-water mark at commit time.
func (g *Group) SetLogicalFileSize(size int64) { g.top.LogicalFileSize = size }

// History returns the sync history pointer slots.
func (g *Group) History() (historyType byte, historyRef primitives.Ref, schemaVersion uint64) {
	return g.top.HistoryType, g.top.HistoryRef, g.top.HistorySchemaVersion
}

// SetHistory sets the sync history pointer slots.
func (g *Group) SetHistory(historyType byte, historyRef primitives.Ref, schemaVersion uint64) {
	g.top.HistoryType = historyType
	g.top.HistoryRef = historyRef
	g.top.HistorySchemaVersion = schemaVersion
}

// SyncFileIdent returns the sync file-identity slot.
func (g *Group) SyncFileIdent() primitives.FileID { return g.top.SyncFileIdent }

// SetSyncFileIdent sets the sync file-identity slot, used by client reset's
// history rewrite step.
func (g *Group) SetSyncFileIdent(id primitives.FileID) { g.top.SyncFileIdent = id }

// ResetMarker returns the pending-reset marker slot recorded by client
// reset's precheck step: mode is 0 if no reset has ever been attempted
// against this group.
func (g *Group) ResetMarker() (mode byte, timestamp int64) {
	return g.top.ResetMode, g.top.ResetTimestamp
}

// SetResetMarker records the pending-reset marker, committed in its own
// transaction ahead of the rest of the reset so the marker survives a
// later step's failure - a failure inside commit reverts to the previous
// snapshot atomically, but this call itself is always its own successful
// commit, never rolled back by a later failure.
func (g *Group) SetResetMarker(mode byte, timestamp int64) {
	g.top.ResetMode = mode
	g.top.ResetTimestamp = timestamp
}

// SubscriptionGeneration returns the flexible-sync subscription-set epoch,
// bumped each time client reset's history rewrite supersedes the active
// subscription set.
func (g *Group) SubscriptionGeneration() uint64 { return g.top.SubscriptionGeneration }

// SetSubscriptionGeneration sets the subscription-set epoch.
func (g *Group) SetSubscriptionGeneration(gen uint64) { g.top.SubscriptionGeneration = gen }

// Persist serializes every table entry and the top array, returning the
// new top-ref for the group writer to commit.
func (g *Group) Persist(version primitives.Version) (primitives.Ref, error) {
	names := make([]primitives.Ref, len(g.slots))
	refs := make([]primitives.Ref, len(g.slots))
	for i, s := range g.slots {
		if s.entry == nil {
			continue
		}
		nameRef, err := writeBlob(g.a, version, []byte(s.entry.Name))
		if err != nil {
			return 0, err
		}
		p, err := s.entry.persist(g.a, version)
		if err != nil {
			return 0, err
		}
		packedRef, err := packPersisted(g.a, version, p)
		if err != nil {
			return 0, err
		}
		names[i] = nameRef
		refs[i] = packedRef
	}
	g.top.TableNames = names
	g.top.TableRefs = refs
	g.top.CurrentVersion = version
	return g.top.Persist(g.a, version)
}
