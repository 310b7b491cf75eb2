// Package txn implements the transaction / DB layer (C7): read and write
// transaction lifecycle, MVCC snapshot pinning, single-writer commit, and
// group-writer serialization.
package txn

import (
	"context"
	"sync"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/logging"
	"github.com/module/tdb/pkg/primitives"
)

// CascadeHandler is invoked synchronously, inside the committing write
// transaction, with the set of rows and links a remove operation will
// cascade through.
type CascadeHandler func(CascadeSet) error

// SchemaHandler is the handler type DB.OnSchemaChange registers. The DB
// stores the registered handlers; no path in this package calls them, on
// commit or otherwise.
type SchemaHandler func(group.SchemaChange)

// DB is the engine's top-level handle: the allocator, the inter-process
// write lock, and the registry of live reader versions that pins snapshots
// against reclamation.
type DB struct {
	a    *alloc.Allocator
	lock *writeLock

	mu             sync.Mutex
	currentVersion primitives.Version
	currentTopRef  primitives.Ref
	readerPins     map[primitives.Version]int

	// writeSlot is a 1-buffered channel acting as a context-cancellable
	// mutex: acquiring means sending into it, releasing means receiving.
	// A plain sync.Mutex cannot honor BeginWrite's ctx deadline, and for an
	// in-memory DB (writeLock.fileLock == false) this slot is the only
	// thing serializing writers at all.
	writeSlot chan struct{}

	cascadeHandler CascadeHandler
	schemaHandlers []SchemaHandler
}

// Open attaches to the file at path, creating it if absent.
func Open(path primitives.Filepath, encryptionKey []byte) (*DB, error) {
	a, err := alloc.AttachFile(path, encryptionKey)
	if err != nil {
		return nil, err
	}
	return open(a)
}

// OpenMemory attaches to a fresh in-memory buffer.
func OpenMemory(encryptionKey []byte) (*DB, error) {
	a, err := alloc.AttachBuffer(encryptionKey)
	if err != nil {
		return nil, err
	}
	return open(a)
}

func open(a *alloc.Allocator) (*DB, error) {
	topRef := a.Header().CurrentTopRef()
	g, err := group.Open(a, topRef, 0)
	if err != nil {
		return nil, err
	}
	lock, err := newWriteLock(a)
	if err != nil {
		return nil, err
	}
	db := &DB{
		a:              a,
		lock:           lock,
		currentVersion: g.PersistedVersion(),
		currentTopRef:  topRef,
		readerPins:     make(map[primitives.Version]int),
		writeSlot:      make(chan struct{}, 1),
	}
	db.log()
	return db, nil
}

// OnCascade registers the cascade handler. Only one handler is meaningful at
// a time; a later call replaces the prior one.
func (db *DB) OnCascade(h CascadeHandler) { db.cascadeHandler = h }

// OnSchemaChange registers an additional schema-change handler.
func (db *DB) OnSchemaChange(h SchemaHandler) { db.schemaHandlers = append(db.schemaHandlers, h) }

// Close releases the allocator and the write-lock file descriptor.
func (db *DB) Close() error {
	if err := db.lock.Close(); err != nil {
		return err
	}
	return db.a.Close()
}

// UpgradeFormat rewrites the attached file's header to the build's current
// format version and flushes it, for a store last written by an older
// build. It takes the write lock like any other mutation, but touches no
// group state, so it never bumps the committed version.
func (db *DB) UpgradeFormat(ctx context.Context) error {
	select {
	case db.writeSlot <- struct{}{}:
	case <-ctx.Done():
		return dberr.New(dberr.LockTimeout, "write-lock acquisition timed out")
	}
	defer func() { <-db.writeSlot }()
	if err := db.lock.Lock(ctx); err != nil {
		return err
	}
	defer db.lock.Unlock()

	db.a.Header().FormatVersion = alloc.CurrentFormatVersion
	return db.a.FlushHeader()
}

// CurrentVersion returns the most recently committed version visible to
// new readers.
func (db *DB) CurrentVersion() primitives.Version {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.currentVersion
}

func (db *DB) pin(version primitives.Version) {
	db.mu.Lock()
	db.readerPins[version]++
	db.mu.Unlock()
}

func (db *DB) releasePin(version primitives.Version) {
	db.mu.Lock()
	db.readerPins[version]--
	if db.readerPins[version] <= 0 {
		delete(db.readerPins, version)
	}
	db.mu.Unlock()
}

// oldestLiveVersion returns the lowest version any live reader is pinned
// at, or the current version if there are no live readers - the watermark
// free-list consolidation and versioned free-list reclaim run against: no
// ref freed at version V is ever reused while a reader pinned at a version
// <= V exists.
func (db *DB) oldestLiveVersion() primitives.Version {
	db.mu.Lock()
	defer db.mu.Unlock()
	oldest := db.currentVersion
	for v, n := range db.readerPins {
		if n > 0 && v < oldest {
			oldest = v
		}
	}
	return oldest
}

func (db *DB) snapshot() (primitives.Version, primitives.Ref) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.currentVersion, db.currentTopRef
}

func (db *DB) log() {
	logging.WithVersion(uint64(db.currentVersion)).Debug("database attached")
}
