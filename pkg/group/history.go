package group

import (
	"bytes"
	"encoding/binary"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/btree"
	"github.com/module/tdb/pkg/primitives"
)

// Changeset is one opaque blob in the synchronization history, keyed by
// the version that produced it. The wire format of Data is out of scope -
// the engine only orders, stores, and replays these blobs.
type Changeset struct {
	Version primitives.Version
	Data    []byte
}

type historyRefCodec struct{}

func (historyRefCodec) Encode(v primitives.Ref) uint64   { return uint64(v) }
func (historyRefCodec) Decode(raw uint64) primitives.Ref { return primitives.Ref(raw) }

// History is the C6 synchronization history: recorded at a top-ref slot and
// managed as another B+tree of changeset blobs keyed by version. Versions
// and Blobs are kept in ordinal lockstep, the same parallel-tree pattern
// pkg/cluster uses for Keys/Columns.
type History struct {
	a        *alloc.Allocator
	version  primitives.Version
	Versions *btree.BTree[primitives.Ref] // version numbers, packed as Ref(uint64(v))
	Blobs    *btree.BTree[primitives.Ref] // parallel changeset blob refs
}

// OpenHistory wraps an existing history rooted at (versionsRoot, blobsRoot),
// either of which may be NullRef for an empty history.
func OpenHistory(a *alloc.Allocator, versionsRoot, blobsRoot primitives.Ref, version primitives.Version) *History {
	return &History{
		a:        a,
		version:  version,
		Versions: btree.Open(a, versionsRoot, historyRefCodec{}, version),
		Blobs:    btree.Open(a, blobsRoot, historyRefCodec{}, version),
	}
}

// Append adds cs as the newest changeset, replacing the local sync history
// with the recovered changesets one Append call at a time, in capture
// order.
func (h *History) Append(cs Changeset) error {
	blobRef, err := writeBlob(h.a, h.version, cs.Data)
	if err != nil {
		return err
	}
	n, err := h.Versions.Size()
	if err != nil {
		return err
	}
	if err := h.Versions.Insert(n, primitives.Ref(uint64(cs.Version))); err != nil {
		return err
	}
	return h.Blobs.Insert(n, blobRef)
}

// Since returns every changeset recorded at a version strictly greater
// than fromVersion, in ascending version order, as the ordered list of
// local changesets a sync step would replay.
func (h *History) Since(fromVersion primitives.Version) ([]Changeset, error) {
	n, err := h.Versions.Size()
	if err != nil {
		return nil, err
	}
	var out []Changeset
	for i := 0; i < n; i++ {
		vRef, err := h.Versions.Get(i)
		if err != nil {
			return nil, err
		}
		v := primitives.Version(uint64(vRef))
		if v <= fromVersion {
			continue
		}
		blobRef, err := h.Blobs.Get(i)
		if err != nil {
			return nil, err
		}
		data, err := readBlob(h.a, blobRef)
		if err != nil {
			return nil, err
		}
		out = append(out, Changeset{Version: v, Data: data})
	}
	return out, nil
}

// Reset clears the history to empty: the anchor rewrite always starts from
// nothing before any recovered entries are re-appended.
func (h *History) Reset() {
	h.Versions.Clear()
	h.Blobs.Clear()
}

// Roots returns the current (versions, blobs) root refs to persist.
func (h *History) Roots() (versionsRoot, blobsRoot primitives.Ref) {
	return h.Versions.Root(), h.Blobs.Root()
}

// OpenHistory decodes the group's HistoryRef slot into a live History,
// the optional history-ref slot.
func (g *Group) OpenHistory() (*History, error) {
	versionsRoot, blobsRoot, err := unpackHistoryRoots(g.a, g.top.HistoryRef)
	if err != nil {
		return nil, err
	}
	return OpenHistory(g.a, versionsRoot, blobsRoot, g.version), nil
}

// SaveHistory persists h's current roots into the group's HistoryRef/
// HistoryType slots, marking the history present.
func (g *Group) SaveHistory(h *History) error {
	versionsRoot, blobsRoot := h.Roots()
	ref, err := packHistoryRoots(g.a, g.version, versionsRoot, blobsRoot)
	if err != nil {
		return err
	}
	g.top.HistoryRef = ref
	g.top.HistoryType = 1
	return nil
}

func packHistoryRoots(a *alloc.Allocator, version primitives.Version, versionsRoot, blobsRoot primitives.Ref) (primitives.Ref, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint64(versionsRoot))
	binary.Write(&buf, binary.BigEndian, uint64(blobsRoot))
	return writeBlob(a, version, buf.Bytes())
}

func unpackHistoryRoots(a *alloc.Allocator, ref primitives.Ref) (versionsRoot, blobsRoot primitives.Ref, err error) {
	if ref.IsNull() {
		return primitives.NullRef, primitives.NullRef, nil
	}
	data, err := readBlob(a, ref)
	if err != nil {
		return 0, 0, err
	}
	r := bytes.NewReader(data)
	var v, b uint64
	binary.Read(r, binary.BigEndian, &v)
	binary.Read(r, binary.BigEndian, &b)
	return primitives.Ref(v), primitives.Ref(b), nil
}
