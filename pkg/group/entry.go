package group

import (
	"bytes"
	"encoding/binary"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// TableEntry is one row of the group's table registry: a name, a column
// specification, a cluster-tree ref, and per-column search-index refs.
// Position in Group.slots is the TableKey's low-bits
// slot; Generation guards against a stale key from a removed-then-reused
// slot aliasing the new occupant.
type TableEntry struct {
	Key           primitives.TableKey
	Name          string
	Schema        []cluster.ColumnSpec
	NextKey       primitives.ObjKey
	KeysRoot      primitives.Ref
	ColumnRoots   []primitives.Ref
	BacklinkRoots []primitives.Ref
	BacklinkKeys  []BacklinkKey // parallel to BacklinkRoots; identifies the origin (table, column) each backlink slot tracks
	IndexRoots    []primitives.Ref // one per schema column; NullRef when not indexed
}

// BacklinkKey identifies the origin side of a backlink column: OriginCol is
// an index into OriginTable's schema. Multiple other tables (or multiple
// columns of the same table) can each claim one backlink slot on their
// shared target, each maintained automatically on the target table.
type BacklinkKey struct {
	OriginTable primitives.TableKey
	OriginCol   int
}

// writeBlob packs data into a byte-width array node, the same pattern
// pkg/cluster/encode.go uses for variable-length cell payloads.
func writeBlob(a *alloc.Allocator, version primitives.Version, data []byte) (primitives.Ref, error) {
	if len(data) == 0 {
		return primitives.NullRef, nil
	}
	arr, err := array.Create(a, array.Width8, len(data), 0, false, alloc.NodeTypeBlob, version)
	if err != nil {
		return 0, err
	}
	for i, b := range data {
		if err := arr.Set(i, uint64(b)); err != nil {
			return 0, err
		}
	}
	return arr.CopyOnWrite(version)
}

func readBlob(a *alloc.Allocator, ref primitives.Ref) ([]byte, error) {
	if ref.IsNull() {
		return nil, nil
	}
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	out := make([]byte, arr.Size())
	for i := range out {
		v, err := arr.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}

// refArray writes refs into a Width64 array node, one element per ref.
func refArray(a *alloc.Allocator, version primitives.Version, refs []primitives.Ref) (primitives.Ref, error) {
	if len(refs) == 0 {
		return primitives.NullRef, nil
	}
	arr, err := array.Create(a, array.Width64, len(refs), 0, false, alloc.NodeTypeArray, version)
	if err != nil {
		return 0, err
	}
	for i, r := range refs {
		if err := arr.Set(i, uint64(r)); err != nil {
			return 0, err
		}
	}
	return arr.CopyOnWrite(version)
}

func readRefArray(a *alloc.Allocator, ref primitives.Ref, n int) ([]primitives.Ref, error) {
	out := make([]primitives.Ref, n)
	if ref.IsNull() {
		return out, nil
	}
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n && i < arr.Size(); i++ {
		v, err := arr.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = primitives.Ref(v)
	}
	return out, nil
}

// encode serializes the entry's fixed-shape metadata (schema, key, name,
// NextKey) to bytes; the ref slices are persisted separately as sibling
// blob/array nodes so resizing one table's column set never rewrites
// another table's entry.
func (e *TableEntry) encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(e.Key))
	binary.Write(&buf, binary.BigEndian, int64(e.NextKey))
	binary.Write(&buf, binary.BigEndian, uint64(e.KeysRoot))

	nameBytes := []byte(e.Name)
	binary.Write(&buf, binary.BigEndian, uint32(len(nameBytes)))
	buf.Write(nameBytes)

	binary.Write(&buf, binary.BigEndian, uint32(len(e.Schema)))
	for _, c := range e.Schema {
		cn := []byte(c.Name)
		binary.Write(&buf, binary.BigEndian, uint32(len(cn)))
		buf.Write(cn)
		binary.Write(&buf, binary.BigEndian, uint64(c.Key))
		binary.Write(&buf, binary.BigEndian, uint32(c.LinkTarget))
	}

	binary.Write(&buf, binary.BigEndian, uint32(len(e.BacklinkKeys)))
	for _, bk := range e.BacklinkKeys {
		binary.Write(&buf, binary.BigEndian, uint32(bk.OriginTable))
		binary.Write(&buf, binary.BigEndian, int32(bk.OriginCol))
	}
	return buf.Bytes()
}

func decodeEntry(data []byte) (*TableEntry, error) {
	r := bytes.NewReader(data)
	e := &TableEntry{}

	var key uint32
	if err := binary.Read(r, binary.BigEndian, &key); err != nil {
		return nil, dberr.Wrap(err, dberr.InvalidDatabase, "group.decodeEntry")
	}
	e.Key = primitives.TableKey(key)

	var nextKey int64
	binary.Read(r, binary.BigEndian, &nextKey)
	e.NextKey = primitives.ObjKey(nextKey)

	var keysRoot uint64
	binary.Read(r, binary.BigEndian, &keysRoot)
	e.KeysRoot = primitives.Ref(keysRoot)

	var nameLen uint32
	binary.Read(r, binary.BigEndian, &nameLen)
	nameBuf := make([]byte, nameLen)
	r.Read(nameBuf)
	e.Name = string(nameBuf)

	var colCount uint32
	binary.Read(r, binary.BigEndian, &colCount)
	e.Schema = make([]cluster.ColumnSpec, colCount)
	for i := range e.Schema {
		var cnLen uint32
		binary.Read(r, binary.BigEndian, &cnLen)
		cnBuf := make([]byte, cnLen)
		r.Read(cnBuf)
		var colKey uint64
		binary.Read(r, binary.BigEndian, &colKey)
		var linkTarget uint32
		binary.Read(r, binary.BigEndian, &linkTarget)
		e.Schema[i] = cluster.ColumnSpec{Name: string(cnBuf), Key: primitives.ColKey(colKey), LinkTarget: primitives.TableKey(linkTarget)}
	}

	var backlinkCount uint32
	binary.Read(r, binary.BigEndian, &backlinkCount)
	e.BacklinkKeys = make([]BacklinkKey, backlinkCount)
	for i := range e.BacklinkKeys {
		var originTable uint32
		var originCol int32
		binary.Read(r, binary.BigEndian, &originTable)
		binary.Read(r, binary.BigEndian, &originCol)
		e.BacklinkKeys[i] = BacklinkKey{OriginTable: primitives.TableKey(originTable), OriginCol: int(originCol)}
	}
	return e, nil
}

// persist writes the entry's metadata blob and its three parallel ref
// arrays, returning the four refs Group.persist stores in the table-refs
// slot's per-table record.
type persistedEntry struct {
	MetaRef      primitives.Ref
	ColumnsRef   primitives.Ref
	BacklinksRef primitives.Ref
	IndexesRef   primitives.Ref
}

func (e *TableEntry) persist(a *alloc.Allocator, version primitives.Version) (persistedEntry, error) {
	metaRef, err := writeBlob(a, version, e.encode())
	if err != nil {
		return persistedEntry{}, err
	}
	colsRef, err := refArray(a, version, e.ColumnRoots)
	if err != nil {
		return persistedEntry{}, err
	}
	backRef, err := refArray(a, version, e.BacklinkRoots)
	if err != nil {
		return persistedEntry{}, err
	}
	idxRef, err := refArray(a, version, e.IndexRoots)
	if err != nil {
		return persistedEntry{}, err
	}
	return persistedEntry{MetaRef: metaRef, ColumnsRef: colsRef, BacklinksRef: backRef, IndexesRef: idxRef}, nil
}

// packPersisted/unpackPersisted turn the four top-level refs of a
// persistedEntry into a single blob so the group's table-refs slot only
// ever needs one ref per table.
func packPersisted(a *alloc.Allocator, version primitives.Version, p persistedEntry) (primitives.Ref, error) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint64(p.MetaRef))
	binary.Write(&buf, binary.BigEndian, uint64(p.ColumnsRef))
	binary.Write(&buf, binary.BigEndian, uint64(p.BacklinksRef))
	binary.Write(&buf, binary.BigEndian, uint64(p.IndexesRef))
	return writeBlob(a, version, buf.Bytes())
}

func unpackPersisted(a *alloc.Allocator, ref primitives.Ref) (persistedEntry, error) {
	data, err := readBlob(a, ref)
	if err != nil {
		return persistedEntry{}, err
	}
	r := bytes.NewReader(data)
	var meta, cols, back, idx uint64
	binary.Read(r, binary.BigEndian, &meta)
	binary.Read(r, binary.BigEndian, &cols)
	binary.Read(r, binary.BigEndian, &back)
	binary.Read(r, binary.BigEndian, &idx)
	return persistedEntry{
		MetaRef:      primitives.Ref(meta),
		ColumnsRef:   primitives.Ref(cols),
		BacklinksRef: primitives.Ref(back),
		IndexesRef:   primitives.Ref(idx),
	}, nil
}

func loadEntry(a *alloc.Allocator, p persistedEntry) (*TableEntry, error) {
	metaBytes, err := readBlob(a, p.MetaRef)
	if err != nil {
		return nil, err
	}
	e, err := decodeEntry(metaBytes)
	if err != nil {
		return nil, err
	}
	n := len(e.Schema)
	if e.ColumnRoots, err = readRefArray(a, p.ColumnsRef, n); err != nil {
		return nil, err
	}
	if e.BacklinkRoots, err = readRefArray(a, p.BacklinksRef, len(e.BacklinkKeys)); err != nil {
		return nil, err
	}
	if e.IndexRoots, err = readRefArray(a, p.IndexesRef, n); err != nil {
		return nil, err
	}
	return e, nil
}
