package txn

import (
	"context"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// WriteTxn is the sole writer admitted at a time, running the single-writer
// commit protocol. It mutates a private in-memory Group built from the
// current committed snapshot; nothing is visible to readers until Commit
// installs a new top-ref.
type WriteTxn struct {
	db      *DB
	version primitives.Version // the version this write will commit as
	g       *group.Group
	tables  map[primitives.TableKey]*cluster.Table
	done    bool
}

// BeginWrite blocks until the write lock is acquired (or ctx is done) and
// returns a WriteTxn ready to mutate the schema and row data. The wait
// respects ctx's deadline, so callers can bound how long they're willing to
// queue for the write lock.
func (db *DB) BeginWrite(ctx context.Context) (*WriteTxn, error) {
	select {
	case db.writeSlot <- struct{}{}:
	case <-ctx.Done():
		return nil, dberr.New(dberr.LockTimeout, "write-lock acquisition timed out")
	}
	if err := db.lock.Lock(ctx); err != nil {
		<-db.writeSlot
		return nil, err
	}
	version, topRef := db.snapshot()
	newVersion := version + 1
	g, err := group.Open(db.a, topRef, newVersion)
	if err != nil {
		db.lock.Unlock()
		<-db.writeSlot
		return nil, err
	}
	return &WriteTxn{
		db:      db,
		version: newVersion,
		g:       g,
		tables:  make(map[primitives.TableKey]*cluster.Table),
	}, nil
}

func (w *WriteTxn) release() {
	w.db.lock.Unlock()
	<-w.db.writeSlot
}

// Group exposes the mutable schema registry for this write.
func (w *WriteTxn) Group() *group.Group { return w.g }

// Table returns a mutable cluster accessor for name, caching it for the
// lifetime of the transaction so repeated lookups share uncommitted edits.
func (w *WriteTxn) Table(name string) (primitives.TableKey, *cluster.Table, error) {
	entry, err := w.g.TableByName(name)
	if err != nil {
		return 0, nil, err
	}
	if t, ok := w.tables[entry.Key]; ok {
		return entry.Key, t, nil
	}
	t, err := w.g.OpenTable(entry.Key, w.version)
	if err != nil {
		return 0, nil, err
	}
	w.tables[entry.Key] = t
	return entry.Key, t, nil
}

// flushTables writes every opened table's current root refs back into the
// group before Persist serializes the registry.
func (w *WriteTxn) flushTables() error {
	for key, t := range w.tables {
		entry, err := w.g.TableByKey(key)
		if err != nil {
			return err
		}
		if err := w.g.SaveTable(key, t, entry.NextKey); err != nil {
			return err
		}
	}
	return nil
}

// RemoveObject deletes row key from table, following its own outgoing Link
// and LinkList columns transitively to find every row that goes away as a
// consequence (every link in this engine is a strong, owning reference) and
// every backlink holder elsewhere whose link needs nullifying because its
// target vanished. The registered CascadeHandler, if any, is consulted with
// the fully resolved set before any row or link is actually touched, so it
// can veto or just observe.
func (w *WriteTxn) RemoveObject(table primitives.TableKey, key primitives.ObjKey) error {
	root := primitives.ObjLink{Table: table, Obj: key}
	cascade := CascadeSet{Root: root}

	removing := map[primitives.ObjLink]bool{root: true}
	queue := []primitives.ObjLink{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		_, t, err := w.tableByKey(cur.Table)
		if err != nil {
			return err
		}

		outgoing, err := resolveOutgoingLinks(cur.Table, t, cur.Obj)
		if err != nil {
			return err
		}
		for _, lr := range outgoing {
			cascade.Links = append(cascade.Links, lr)
			if lr.OldTarget.IsNull() || removing[lr.OldTarget] {
				continue
			}
			removing[lr.OldTarget] = true
			cascade.Rows = append(cascade.Rows, lr.OldTarget)
			queue = append(queue, lr.OldTarget)
		}

		holders, err := w.resolveBacklinkHolders(cur.Table, t, cur.Obj)
		if err != nil {
			return err
		}
		for _, lr := range holders {
			if removing[primitives.ObjLink{Table: lr.Table, Obj: lr.Obj}] {
				continue
			}
			cascade.Links = append(cascade.Links, lr)
		}
	}

	if w.db.cascadeHandler != nil {
		if err := w.db.cascadeHandler(cascade); err != nil {
			return err
		}
	}

	for _, lr := range cascade.Links {
		if removing[primitives.ObjLink{Table: lr.Table, Obj: lr.Obj}] {
			continue
		}
		if err := w.nullifyLink(lr); err != nil {
			return err
		}
	}

	for _, row := range cascade.Rows {
		_, t, err := w.tableByKey(row.Table)
		if err != nil {
			return err
		}
		if err := t.EraseRow(row.Obj); err != nil {
			return err
		}
	}

	_, t, err := w.tableByKey(table)
	if err != nil {
		return err
	}
	return t.EraseRow(key)
}

// resolveOutgoingLinks reads obj's Link, LinkList and Mixed/TypedLink
// columns and returns one LinkRef per value found, each naming the row it
// currently points at.
func resolveOutgoingLinks(tableKey primitives.TableKey, t *cluster.Table, obj primitives.ObjKey) ([]LinkRef, error) {
	var out []LinkRef
	for ci, col := range t.Schema {
		switch {
		case col.Key.IsCollection() && !col.LinkTarget.IsNull():
			v, err := t.GetValue(obj, col.Key)
			if err != nil {
				return nil, err
			}
			cp, ok := v.(*types.CollectionPlaceholder)
			if !ok {
				continue
			}
			targets, err := t.CollectionKeys(cp.Ref)
			if err != nil {
				return nil, err
			}
			for _, target := range targets {
				out = append(out, LinkRef{Table: tableKey, Col: col.Key, ColIndex: ci, Obj: obj,
					OldTarget: primitives.ObjLink{Table: col.LinkTarget, Obj: target}})
			}
		case col.Key.Type() == primitives.ColTypeLink:
			v, err := t.GetValue(obj, col.Key)
			if err != nil {
				return nil, err
			}
			lf, ok := v.(*types.LinkField)
			if !ok || lf.Target.IsNull() {
				continue
			}
			out = append(out, LinkRef{Table: tableKey, Col: col.Key, ColIndex: ci, Obj: obj,
				OldTarget: primitives.ObjLink{Table: col.LinkTarget, Obj: lf.Target}})
		case col.Key.Type() == primitives.ColTypeMixed:
			v, err := t.GetValue(obj, col.Key)
			if err != nil {
				return nil, err
			}
			tl, ok := v.(*types.TypedLinkField)
			if !ok || tl.Link.IsNull() {
				continue
			}
			out = append(out, LinkRef{Table: tableKey, Col: col.Key, ColIndex: ci, Obj: obj, OldTarget: tl.Link})
		}
	}
	return out, nil
}

// resolveBacklinkHolders finds every row elsewhere in the group whose Link
// or LinkList column currently targets obj, via the backlink column target
// table t already maintains for each such origin.
func (w *WriteTxn) resolveBacklinkHolders(targetKey primitives.TableKey, t *cluster.Table, obj primitives.ObjKey) ([]LinkRef, error) {
	var out []LinkRef
	for _, lc := range w.g.LinkColumnsTargeting(targetKey) {
		backlinkCol, err := w.g.EnsureBacklinkColumn(targetKey, lc.Table, lc.ColIndex)
		if err != nil {
			return nil, err
		}
		if err := t.EnsureBacklinkSlot(backlinkCol); err != nil {
			return nil, err
		}
		origins, err := t.BacklinkSet(obj, backlinkCol)
		if err != nil {
			return nil, err
		}
		if len(origins) == 0 {
			continue
		}
		_, originTable, err := w.tableByKey(lc.Table)
		if err != nil {
			return nil, err
		}
		col := originTable.Schema[lc.ColIndex].Key
		for _, originObj := range origins {
			out = append(out, LinkRef{Table: lc.Table, Col: col, ColIndex: lc.ColIndex, Obj: originObj,
				OldTarget: primitives.ObjLink{Table: targetKey, Obj: obj}})
		}
	}
	return out, nil
}

// nullifyLink clears one surviving row's reference to a row that is going
// away: a single Link is set to null, one entry is dropped out of a
// LinkList, and a Mixed column holding a TypedLink is cleared outright
// since its target table varies per value and isn't one SetLink already
// knows how to carry a backlinkCol for.
func (w *WriteTxn) nullifyLink(lr LinkRef) error {
	_, origin, err := w.tableByKey(lr.Table)
	if err != nil {
		return err
	}
	_, target, err := w.tableByKey(lr.OldTarget.Table)
	if err != nil {
		return err
	}
	backlinkCol, err := w.g.EnsureBacklinkColumn(lr.OldTarget.Table, lr.Table, lr.ColIndex)
	if err != nil {
		return err
	}
	if err := target.EnsureBacklinkSlot(backlinkCol); err != nil {
		return err
	}
	switch {
	case lr.Col.IsCollection():
		return origin.RemoveLinkListEntry(lr.Obj, lr.Col, target, backlinkCol, lr.OldTarget.Obj)
	case lr.Col.Type() == primitives.ColTypeLink:
		return origin.SetLink(lr.Obj, lr.Col, target, backlinkCol, primitives.NullObjKey)
	default:
		if err := target.RemoveBacklink(lr.OldTarget.Obj, backlinkCol, lr.Obj); err != nil {
			return err
		}
		return origin.SetValue(lr.Obj, lr.Col, types.Null())
	}
}

func (w *WriteTxn) tableByKey(key primitives.TableKey) (primitives.TableKey, *cluster.Table, error) {
	if t, ok := w.tables[key]; ok {
		return key, t, nil
	}
	t, err := w.g.OpenTable(key, w.version)
	if err != nil {
		return 0, nil, err
	}
	w.tables[key] = t
	return key, t, nil
}

// Commit persists every change made through this transaction as one new
// version, following the commit protocol: consolidate the free list against
// the oldest live reader, serialize the group, commit the new top-ref into
// the header's non-selected slot, flush the header, then publish the new
// version to future readers.
func (w *WriteTxn) Commit() error {
	if w.done {
		return dberr.New(dberr.LogicError, "txn: transaction already finished")
	}
	defer w.release()
	defer func() { w.done = true }()

	if err := w.flushTables(); err != nil {
		return err
	}

	oldest := w.db.oldestLiveVersion()
	w.db.a.ConsolidateFreeList(oldest)

	w.g.SetLogicalFileSize(w.db.a.FileSize())
	topRef, err := w.g.Persist(w.version)
	if err != nil {
		return err
	}

	w.db.a.Header().CommitTopRef(topRef)
	if err := w.db.a.FlushHeader(); err != nil {
		return err
	}

	w.db.mu.Lock()
	w.db.currentVersion = w.version
	w.db.currentTopRef = topRef
	w.db.mu.Unlock()
	return nil
}

// Rollback discards every change made through this transaction without
// touching the committed version: an aborted write transaction leaves the
// database exactly as it was.
func (w *WriteTxn) Rollback() error {
	if w.done {
		return nil
	}
	w.done = true
	w.release()
	return nil
}
