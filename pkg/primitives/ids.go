package primitives

import "fmt"

// TableKey identifies a table within a group. It packs a slot position in
// the table's low bits and a generation counter in the high bits so that a
// stale TableKey from a deleted-then-recreated slot never aliases the new
// occupant.
type TableKey uint32

// TableKeyPositionBits is the width of the position field within TableKey.
const TableKeyPositionBits = 20

// NullTableKey is the sentinel meaning "no table".
const NullTableKey TableKey = 0xFFFFFFFF

// NewTableKey packs a slot position and generation into a TableKey.
func NewTableKey(position, generation uint32) TableKey {
	return TableKey((generation << TableKeyPositionBits) | (position & ((1 << TableKeyPositionBits) - 1)))
}

// Position returns the slot position component.
func (k TableKey) Position() uint32 {
	return uint32(k) & ((1 << TableKeyPositionBits) - 1)
}

// Generation returns the generation component.
func (k TableKey) Generation() uint32 {
	return uint32(k) >> TableKeyPositionBits
}

// IsNull reports whether k is the null sentinel.
func (k TableKey) IsNull() bool {
	return k == NullTableKey
}

func (k TableKey) String() string {
	if k.IsNull() {
		return "TableKey(null)"
	}
	return fmt.Sprintf("TableKey(pos=%d,gen=%d)", k.Position(), k.Generation())
}

// ColType is the storage kind a ColKey resolves to. It is a small closed
// enum, distinct from types.Type: ColType describes column-level storage
// (e.g. "this column stores links"), while types.Type describes the runtime
// kind of a single Mixed value.
type ColType uint8

const (
	ColTypeInt ColType = iota
	ColTypeBool
	ColTypeFloat
	ColTypeDouble
	ColTypeString
	ColTypeBinary
	ColTypeTimestamp
	ColTypeDecimal
	ColTypeObjectID
	ColTypeUUID
	ColTypeLink
	ColTypeLinkList
	ColTypeMixed
)

// ColKey identifies a column within a table. It packs an index, a ColType,
// and a small set of attribute flags (nullable, list, dictionary, indexed)
// into a single 64-bit value so that column identity, type, and attributes
// travel together through the query evaluator without a side lookup.
type ColKey uint64

const (
	colKeyIndexBits     = 32
	colKeyTypeShift     = colKeyIndexBits
	colKeyTypeBits      = 8
	colKeyAttrShift     = colKeyTypeShift + colKeyTypeBits
	colKeyAttrNullable  = uint64(1) << (colKeyAttrShift + 0)
	colKeyAttrList      = uint64(1) << (colKeyAttrShift + 1)
	colKeyAttrDictKind  = uint64(1) << (colKeyAttrShift + 2)
	colKeyAttrIndexed   = uint64(1) << (colKeyAttrShift + 3)
	colKeyAttrPrimary   = uint64(1) << (colKeyAttrShift + 4)
)

// NullColKey is the sentinel meaning "no column".
const NullColKey ColKey = 0xFFFFFFFFFFFFFFFF

// ColKeyOptions configures NewColKey.
type ColKeyOptions struct {
	Nullable  bool
	List      bool
	Dictionary bool
	Indexed   bool
	Primary   bool
}

// NewColKey packs a column index, storage type, and attributes into a ColKey.
func NewColKey(index uint32, colType ColType, opts ColKeyOptions) ColKey {
	v := uint64(index) | (uint64(colType) << colKeyTypeShift)
	if opts.Nullable {
		v |= colKeyAttrNullable
	}
	if opts.List {
		v |= colKeyAttrList
	}
	if opts.Dictionary {
		v |= colKeyAttrDictKind
	}
	if opts.Indexed {
		v |= colKeyAttrIndexed
	}
	if opts.Primary {
		v |= colKeyAttrPrimary
	}
	return ColKey(v)
}

// Index returns the column's position within its table.
func (k ColKey) Index() uint32 {
	return uint32(uint64(k) & ((1 << colKeyIndexBits) - 1))
}

// Type returns the column's storage type.
func (k ColKey) Type() ColType {
	return ColType((uint64(k) >> colKeyTypeShift) & ((1 << colKeyTypeBits) - 1))
}

// Nullable reports whether the column accepts a Mixed null.
func (k ColKey) Nullable() bool { return uint64(k)&colKeyAttrNullable != 0 }

// IsList reports whether the column stores a list collection.
func (k ColKey) IsList() bool { return uint64(k)&colKeyAttrList != 0 }

// IsDictionary reports whether the column stores a dictionary collection.
func (k ColKey) IsDictionary() bool { return uint64(k)&colKeyAttrDictKind != 0 }

// IsCollection reports whether the column stores a list or dictionary.
func (k ColKey) IsCollection() bool { return k.IsList() || k.IsDictionary() }

// HasSearchIndex reports whether the column has a radix-tree index attached.
func (k ColKey) HasSearchIndex() bool { return uint64(k)&colKeyAttrIndexed != 0 }

// IsPrimary reports whether the column is the table's primary key.
func (k ColKey) IsPrimary() bool { return uint64(k)&colKeyAttrPrimary != 0 }

// IsNull reports whether k is the null sentinel.
func (k ColKey) IsNull() bool { return k == NullColKey }

func (k ColKey) String() string {
	if k.IsNull() {
		return "ColKey(null)"
	}
	return fmt.Sprintf("ColKey(idx=%d,type=%d)", k.Index(), k.Type())
}

// ObjKey identifies an object (row) within a single table's cluster tree.
// It is a signed 63-bit value: non-negative keys identify live or
// not-yet-materialized objects, and a negative ObjKey marks a tombstone left
// behind by a tracking cluster column so that ordinal positions can still be
// translated after a deletion until the tombstone itself is compacted away.
type ObjKey int64

// NullObjKey is the sentinel meaning "no object".
const NullObjKey ObjKey = -1

// IsNull reports whether k is the null sentinel.
func (k ObjKey) IsNull() bool { return k == NullObjKey }

// IsTombstone reports whether k marks a deleted-but-not-yet-compacted row.
// NullObjKey itself is not considered a tombstone.
func (k ObjKey) IsTombstone() bool { return k < 0 && k != NullObjKey }

// Value returns the non-negative key value, stripping the tombstone sign.
func (k ObjKey) Value() int64 {
	if k < 0 {
		return int64(-k) - 1
	}
	return int64(k)
}

func (k ObjKey) String() string {
	if k.IsNull() {
		return "ObjKey(null)"
	}
	if k.IsTombstone() {
		return fmt.Sprintf("ObjKey(tombstone:%d)", k.Value())
	}
	return fmt.Sprintf("ObjKey(%d)", int64(k))
}

// ObjLink is a strong reference to a specific object in a specific table. It
// is the payload of a Link-typed Mixed value and the unit that backlink
// columns and cascade-delete traversal operate over.
type ObjLink struct {
	Table TableKey
	Obj   ObjKey
}

// NullObjLink is the sentinel meaning "no link".
var NullObjLink = ObjLink{Table: NullTableKey, Obj: NullObjKey}

// IsNull reports whether l is the null link.
func (l ObjLink) IsNull() bool {
	return l.Table.IsNull() || l.Obj.IsNull()
}

func (l ObjLink) String() string {
	if l.IsNull() {
		return "ObjLink(null)"
	}
	return fmt.Sprintf("ObjLink(%s -> %s)", l.Table, l.Obj)
}
