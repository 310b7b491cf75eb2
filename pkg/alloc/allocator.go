package alloc

import (
	"sort"
	"sync"

	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/logging"
	"github.com/module/tdb/pkg/primitives"
)

// PageExtent is the granularity a slab grows by when the free list has
// nothing reusable: the file is extended, rounded to a page multiple.
const PageExtent = 4096

// FreeListEntry is one reclaimed-but-not-yet-reusable extent. The free list
// is versioned: a freed ref is safe to hand back out only once no pinned
// reader is at or below FreedAtVersion.
type FreeListEntry struct {
	Ref            primitives.Ref
	Size           uint32
	FreedAtVersion primitives.Version
}

// Allocator is the C1 contract: alloc/free/translate over a single
// backing store, plus the file-format lifecycle hooks (attach, reset free
// tracking) the group writer drives at commit time.
type Allocator struct {
	mu sync.Mutex

	store   backend
	header  *Header
	inMem   bool
	path    primitives.Filepath
	freeEnd int64 // one past the last byte ever handed out by Alloc

	freeList []FreeListEntry

	encryptKey []byte // 32 bytes, or nil when unencrypted
}

// AttachFile opens or creates the file at path and prepares the allocator
// over it. If the file is empty, a fresh header and an empty file body are
// written; otherwise the existing header's magic and format version are
// validated and the allocator resumes past the current file size. The
// top-ref slots themselves are not validated, so no fallback to the other
// slot takes place.
func AttachFile(path primitives.Filepath, encryptionKey []byte) (*Allocator, error) {
	be, err := openFileBackend(path)
	if err != nil {
		return nil, err
	}
	a, err := attach(be, encryptionKey)
	if err != nil {
		return nil, err
	}
	a.path = path
	return a, nil
}

// Path returns the backing file path and true when AttachFile was used; the
// second return is false for an in-memory buffer, which has no path the
// inter-process write lock (pkg/txn) could take a flock on.
func (a *Allocator) Path() (primitives.Filepath, bool) {
	return a.path, !a.inMem && a.path != ""
}

// AttachBuffer creates an allocator over a fresh in-memory buffer. There is
// no prior state to validate: the buffer always starts as a brand-new,
// empty file body.
func AttachBuffer(encryptionKey []byte) (*Allocator, error) {
	be := newMemoryBackend()
	a := &Allocator{store: be, inMem: true, encryptKey: encryptionKey}
	a.header = NewHeader()
	if _, err := be.WriteAt(a.header.Encode(), 0); err != nil {
		return nil, dberr.Wrap(err, dberr.FileAccess, "alloc.AttachBuffer")
	}
	a.freeEnd = HeaderSize
	return a, nil
}

func attach(be backend, encryptionKey []byte) (*Allocator, error) {
	a := &Allocator{store: be, encryptKey: encryptionKey}

	size := be.Size()
	if size < HeaderSize {
		a.header = NewHeader()
		if _, err := be.WriteAt(a.header.Encode(), 0); err != nil {
			return nil, dberr.Wrap(err, dberr.FileAccess, "alloc.attach")
		}
		a.freeEnd = HeaderSize
		return a, nil
	}

	buf := make([]byte, HeaderSize)
	if _, err := be.ReadAt(buf, 0); err != nil {
		return nil, dberr.Wrap(err, dberr.FileAccess, "alloc.attach")
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		// the selected slot failed validation; nothing else to try here
		// since DecodeHeader only fails on magic/version, which does not
		// depend on which slot is selected.
		return nil, err
	}
	a.header = h
	a.freeEnd = size
	return a, nil
}

// Header returns the allocator's in-memory header, mutated by the group
// writer during commit and flushed via FlushHeader.
func (a *Allocator) Header() *Header { return a.header }

// FlushHeader writes the in-memory header to the backend. The selector
// flip inside Header.CommitTopRef already happened in memory; this persists
// it and is the one disk write that makes a commit visible.
func (a *Allocator) FlushHeader() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.store.WriteAt(a.header.Encode(), 0); err != nil {
		return dberr.Wrap(err, dberr.FileAccess, "alloc.FlushHeader")
	}
	return a.store.Sync()
}

// Alloc reserves size bytes (the node's full size, header included) and
// returns the ref at which the node now lives. Free extents whose freeing
// version is at or below oldestLiveVersion are tried first; failing that,
// the backing store is extended.
func (a *Allocator) Alloc(size uint32, oldestLiveVersion primitives.Version) (primitives.Ref, error) {
	size = align8(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	if idx := a.findReusable(size, oldestLiveVersion); idx >= 0 {
		entry := a.freeList[idx]
		a.freeList = append(a.freeList[:idx], a.freeList[idx+1:]...)
		if entry.Size > size {
			// Split: return the leading size bytes, keep the remainder free
			// under the same freeing version.
			remainderRef := entry.Ref + primitives.Ref(size)
			a.freeList = append(a.freeList, FreeListEntry{
				Ref:            remainderRef,
				Size:           entry.Size - size,
				FreedAtVersion: entry.FreedAtVersion,
			})
		}
		return entry.Ref, nil
	}

	ref := primitives.Ref(a.freeEnd)
	newEnd := a.freeEnd + int64(size)
	if grown := roundUpToPage(newEnd) - a.freeEnd; grown > 0 && !a.inMem {
		// Extend in page-size increments.
		if err := a.store.Truncate(roundUpToPage(newEnd)); err != nil {
			return 0, dberr.Wrap(err, dberr.OutOfDiskSpace, "alloc.Alloc")
		}
	}
	a.freeEnd = newEnd
	logging.GetLogger().Debug("alloc.Alloc", "ref", ref, "size", size)
	return ref, nil
}

// findReusable returns the index of the smallest free-list entry that can
// satisfy size and was freed at or before oldestLiveVersion, or -1.
func (a *Allocator) findReusable(size uint32, oldestLiveVersion primitives.Version) int {
	best := -1
	for i, e := range a.freeList {
		if e.Size < size || e.FreedAtVersion > oldestLiveVersion {
			continue
		}
		if best < 0 || e.Size < a.freeList[best].Size {
			best = i
		}
	}
	return best
}

// Free appends (ref, size, version) to the in-memory free list. The node
// remains readable by any snapshot still pinned at or below version until
// ConsolidateFreeList reclaims it.
func (a *Allocator) Free(ref primitives.Ref, size uint32, version primitives.Version) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeList = append(a.freeList, FreeListEntry{Ref: ref, Size: align8(size), FreedAtVersion: version})
}

// ConsolidateFreeList is invoked by the commit path: it sorts the in-memory
// free list by ref and merges adjacent extents freed at the same version,
// to fight fragmentation. oldestLiveVersion is not used here, and the list
// is not written to the file: it lives in memory only.
func (a *Allocator) ConsolidateFreeList(oldestLiveVersion primitives.Version) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sort.Slice(a.freeList, func(i, j int) bool { return a.freeList[i].Ref < a.freeList[j].Ref })

	merged := make([]FreeListEntry, 0, len(a.freeList))
	for _, e := range a.freeList {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Ref+primitives.Ref(last.Size) == e.Ref && last.FreedAtVersion == e.FreedAtVersion {
				last.Size += e.Size
				continue
			}
		}
		merged = append(merged, e)
	}
	a.freeList = merged
	_ = oldestLiveVersion // reusability is still gated per-entry at Alloc time; see findReusable
}

// ResetFreeSpaceTracking discards the in-memory free list without writing
// it anywhere - used when opening a file read-only or when recovering from
// a crash where the free list itself may be suspect.
func (a *Allocator) ResetFreeSpaceTracking() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeList = nil
}

// Translate reads size bytes at ref. It fails with InvalidRef if the
// request falls outside the currently mapped extent.
func (a *Allocator) Translate(ref primitives.Ref, size uint32) ([]byte, error) {
	if !ref.IsAligned() {
		return nil, dberr.New(dberr.InvalidRef, "ref is not 8-byte aligned").WithRef(uint64(ref))
	}
	if int64(ref)+int64(size) > a.FileSize() {
		return nil, dberr.New(dberr.InvalidRef, "ref outside mapped extent").WithRef(uint64(ref))
	}
	buf := make([]byte, size)
	if _, err := a.decryptRead(buf, int64(ref)); err != nil {
		return nil, dberr.Wrap(err, dberr.FileAccess, "alloc.Translate").WithRef(uint64(ref))
	}
	return buf, nil
}

// Write persists data at ref, passing it through the encryption hook when
// a key is configured.
func (a *Allocator) Write(ref primitives.Ref, data []byte) error {
	if err := a.encryptWrite(data, int64(ref)); err != nil {
		return dberr.Wrap(err, dberr.FileAccess, "alloc.Write").WithRef(uint64(ref))
	}
	return nil
}

// FileSize returns the current mapped extent, i.e. the high-water mark of
// everything Alloc has ever handed out.
func (a *Allocator) FileSize() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeEnd
}

// Close releases the backend.
func (a *Allocator) Close() error {
	return a.store.Close()
}

func align8(size uint32) uint32 {
	return (size + 7) &^ 7
}

func roundUpToPage(size int64) int64 {
	return (size + PageExtent - 1) &^ (PageExtent - 1)
}
