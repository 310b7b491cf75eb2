package txn

import (
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/primitives"
)

// ReadTxn is a pinned, read-only view of the database at a fixed version: it
// pins a snapshot version for its lifetime. Every accessor it hands out
// (tables, indexes) is bound to that version,
// so a concurrent writer's commits are invisible until Advance is called.
type ReadTxn struct {
	db      *DB
	version primitives.Version
	g       *group.Group
	closed  bool
}

// BeginRead pins the current committed version and returns a ReadTxn bound
// to it. The pin keeps the allocator's free-list consolidation from
// reclaiming any ref this version can still reach: no ref freed at version V
// is ever reused while a reader pinned at a version <= V exists.
func (db *DB) BeginRead() (*ReadTxn, error) {
	version, topRef := db.snapshot()
	db.pin(version)
	g, err := group.Open(db.a, topRef, version)
	if err != nil {
		db.releasePin(version)
		return nil, err
	}
	return &ReadTxn{db: db, version: version, g: g}, nil
}

// Version returns the snapshot version this transaction is pinned to.
func (r *ReadTxn) Version() primitives.Version { return r.version }

// Group exposes the read-only schema registry view for this snapshot.
func (r *ReadTxn) Group() *group.Group { return r.g }

// Table opens a read-only cluster accessor for name.
func (r *ReadTxn) Table(name string) (*cluster.Table, error) {
	entry, err := r.g.TableByName(name)
	if err != nil {
		return nil, err
	}
	return r.g.OpenTable(entry.Key, r.version)
}

// Advance releases the current pin and re-opens the view at the database's
// latest committed version, so a live result set can re-run against the new
// version rather than staying pinned to a stale one.
func (r *ReadTxn) Advance() error {
	if r.closed {
		return nil
	}
	r.db.releasePin(r.version)
	version, topRef := r.db.snapshot()
	g, err := group.Open(r.db.a, topRef, version)
	if err != nil {
		r.db.pin(r.version) // restore the prior pin; caller still owns the old view
		return err
	}
	r.version = version
	r.g = g
	return nil
}

// Close releases the snapshot pin. A closed ReadTxn must not be used again.
func (r *ReadTxn) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.db.releasePin(r.version)
	return nil
}
