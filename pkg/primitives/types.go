package primitives

// LSN (Log Sequence Number) uniquely identifies each record in the
// synchronization history log. It's monotonically increasing and represents
// the byte offset in the history's underlying changeset blob.
type LSN uint64

// HashCode represents a hash value (e.g., for keys, refs, etc.)
// It is typically computed for fast comparisons or lookups.
type HashCode uint64

// FileID is a unique identifier for a physical backing file, derived from
// hashing its path. The engine normally has exactly one FileID for its main
// file; additional FileIDs show up transiently for compaction temp files.
type FileID uint64

// Version identifies a committed snapshot. Versions are monotonically
// increasing; version 0 is the state of a freshly-created, empty file.
type Version uint64

// LockID uniquely identifies a lock (could be hash of resource)
type LockID uint64

// Timestamp represents a logical or physical timestamp
type Timestamp uint64

// Offset represents a byte offset (within a slab, file, or log)
type Offset uint64

// Sentinel values for invalid/unset identifiers
const (
	// InvalidFileID represents an invalid or unset file ID
	InvalidFileID FileID = 0

	// InvalidVersion represents a version that has never been committed
	InvalidVersion Version = 0
)
