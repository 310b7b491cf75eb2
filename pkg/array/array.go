package array

import (
	"encoding/binary"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// countOffset/payloadOffset lay the node out as:
// [alloc.NodeHeader (8)] [element count uint32 (4)] [packed payload ...]
const (
	countOffset   = alloc.NodeHeaderSize
	payloadOffset = countOffset + 4
)

// ParentSlot is the (parent-ref, child-index) pair every node holds, used
// to propagate a copy-on-write rewrite up the tree. A zero ParentSlot
// means "no parent" (the node is a tree root or detached scratch).
type ParentSlot struct {
	Ref primitives.Ref
	Ndx int
}

// IsNone reports whether the slot is unset.
func (p ParentSlot) IsNone() bool { return p.Ref.IsNull() }

// Array is the C2 node accessor: a variable-width packed array of 64-bit-
// or-smaller integers, read through and mutated against an
// *alloc.Allocator. Every mutating method follows copy-on-write: it never
// rewrites bytes reachable from a prior snapshot in place.
type Array struct {
	a       *alloc.Allocator
	ref     primitives.Ref
	version primitives.Version

	width    Width
	count    int
	payload  []byte // decoded payload, mutated in memory, flushed on Flush
	isIndex  bool
	typeCode byte
	parent   ParentSlot
	dirty    bool
}

// Create allocates a brand-new empty Array of the given width and initial
// size, every slot set to initial.
func Create(a *alloc.Allocator, width Width, size int, initial uint64, isIndexNode bool, typeCode byte, version primitives.Version) (*Array, error) {
	arr := &Array{a: a, width: width, count: size, isIndex: isIndexNode, typeCode: typeCode, version: version, dirty: true}
	arr.payload = make([]byte, bytesFor(width, size))
	for i := 0; i < size; i++ {
		arr.rawSet(i, initial)
	}
	if err := arr.flushNew(); err != nil {
		return nil, err
	}
	return arr, nil
}

// InitFromRef loads an existing Array accessor from its ref.
func InitFromRef(a *alloc.Allocator, ref primitives.Ref) (*Array, error) {
	head, err := a.Translate(ref, alloc.NodeHeaderSize)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.InvalidRef, "array.InitFromRef")
	}
	h := alloc.DecodeNodeHeader(head)

	full, err := a.Translate(ref, h.SizeBytes)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.InvalidRef, "array.InitFromRef")
	}
	count := int(binary.BigEndian.Uint32(full[countOffset:payloadOffset]))
	width := Width(h.WidthBits)
	payload := make([]byte, len(full)-payloadOffset)
	copy(payload, full[payloadOffset:])

	return &Array{
		a:        a,
		ref:      ref,
		width:    width,
		count:    count,
		payload:  payload,
		isIndex:  h.IsIndexNode(),
		typeCode: h.TypeCode,
	}, nil
}

// Ref returns the node's current ref.
func (arr *Array) Ref() primitives.Ref { return arr.ref }

// Size returns the element count.
func (arr *Array) Size() int { return arr.count }

// IsIndexNode reports whether the node's slots hold child refs rather
// than plain column values.
func (arr *Array) IsIndexNode() bool { return arr.isIndex }

// SetParent records the (parent-ref, child-index) back-pointer used by
// copy-on-write propagation.
func (arr *Array) SetParent(parent primitives.Ref, ndx int) {
	arr.parent = ParentSlot{Ref: parent, Ndx: ndx}
}

// Get decodes the element at index i.
func (arr *Array) Get(i int) (uint64, error) {
	if i < 0 || i >= arr.count {
		return 0, dberr.New(dberr.OutOfBounds, "array index out of range")
	}
	return arr.rawGet(i), nil
}

// GetSigned decodes the element at i as a two's-complement signed value at
// the node's current width.
func (arr *Array) GetSigned(i int) (int64, error) {
	u, err := arr.Get(i)
	if err != nil {
		return 0, err
	}
	return signExtend(u, arr.width), nil
}

func signExtend(u uint64, w Width) int64 {
	if w == Width64 {
		return int64(u)
	}
	shift := 64 - uint(w)
	return int64(u<<shift) >> shift
}

// Set writes v at index i, widening the whole node first if v no longer
// fits the current width. Widening allocates a new node and rewrites the
// parent slot - here realized as: widen in place in memory, then the next
// Flush/COW step publishes the new ref.
func (arr *Array) Set(i int, v uint64) error {
	if i < 0 || i >= arr.count {
		return dberr.New(dberr.OutOfBounds, "array index out of range")
	}
	if need := widthFor(v); need > arr.width {
		arr.widen(need)
	}
	arr.rawSet(i, v)
	arr.dirty = true
	return nil
}

// SetSigned writes a signed value, widening for its two's-complement range.
func (arr *Array) SetSigned(i int, v int64) error {
	if need := widthForSigned(v); need > arr.width {
		arr.widen(need)
	}
	return arr.Set(i, uint64(v)&mask(arr.width))
}

// Insert inserts v at index i, shifting subsequent elements right.
func (arr *Array) Insert(i int, v uint64) error {
	if i < 0 || i > arr.count {
		return dberr.New(dberr.OutOfBounds, "array insert index out of range")
	}
	if need := widthFor(v); need > arr.width {
		arr.widen(need)
	}
	arr.growBy(1)
	for j := arr.count - 1; j > i; j-- {
		arr.rawSet(j, arr.rawGet(j-1))
	}
	arr.rawSet(i, v)
	arr.dirty = true
	return nil
}

// Erase removes the element at index i, shifting subsequent elements left.
func (arr *Array) Erase(i int) error {
	if i < 0 || i >= arr.count {
		return dberr.New(dberr.OutOfBounds, "array erase index out of range")
	}
	for j := i; j < arr.count-1; j++ {
		arr.rawSet(j, arr.rawGet(j+1))
	}
	arr.shrinkBy(1)
	arr.dirty = true
	return nil
}

// Clear truncates the array to zero elements.
func (arr *Array) Clear() {
	arr.count = 0
	arr.payload = arr.payload[:0]
	arr.dirty = true
}

// widen reallocates the payload buffer at a new width, re-encoding every
// existing element. It does not touch the ref - the caller (Flush/COW) is
// responsible for publishing the wider node under a fresh ref.
func (arr *Array) widen(newWidth Width) {
	old := make([]uint64, arr.count)
	for i := 0; i < arr.count; i++ {
		old[i] = arr.rawGet(i)
	}
	arr.width = newWidth
	arr.payload = make([]byte, bytesFor(newWidth, arr.count))
	for i, v := range old {
		arr.rawSet(i, v)
	}
}

func (arr *Array) growBy(n int) {
	arr.count += n
	need := bytesFor(arr.width, arr.count)
	if need > len(arr.payload) {
		grown := make([]byte, need)
		copy(grown, arr.payload)
		arr.payload = grown
	}
}

func (arr *Array) shrinkBy(n int) {
	arr.count -= n
	arr.payload = arr.payload[:bytesFor(arr.width, arr.count)]
}

func mask(w Width) uint64 {
	if w == Width64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

// rawGet/rawSet perform the bit-level packing. Sub-byte widths (1,2,4 bits)
// pack multiple elements per byte, little-endian within the byte; byte-
// aligned widths (8,16,32,64) are stored big-endian per element, matching
// the engine's on-disk integer convention elsewhere (the radix tree's
// chunk ordering).
func (arr *Array) rawGet(i int) uint64 {
	switch arr.width {
	case Width1, Width2, Width4:
		perByte := 8 / int(arr.width)
		byteIdx := i / perByte
		shift := uint(i%perByte) * uint(arr.width)
		return uint64(arr.payload[byteIdx]>>shift) & mask(arr.width)
	case Width8:
		return uint64(arr.payload[i])
	case Width16:
		return uint64(binary.BigEndian.Uint16(arr.payload[i*2:]))
	case Width32:
		return uint64(binary.BigEndian.Uint32(arr.payload[i*4:]))
	default:
		return binary.BigEndian.Uint64(arr.payload[i*8:])
	}
}

func (arr *Array) rawSet(i int, v uint64) {
	switch arr.width {
	case Width1, Width2, Width4:
		perByte := 8 / int(arr.width)
		byteIdx := i / perByte
		shift := uint(i%perByte) * uint(arr.width)
		m := mask(arr.width)
		arr.payload[byteIdx] = arr.payload[byteIdx]&^(byte(m) << shift) | (byte(v&m) << shift)
	case Width8:
		arr.payload[i] = byte(v)
	case Width16:
		binary.BigEndian.PutUint16(arr.payload[i*2:], uint16(v))
	case Width32:
		binary.BigEndian.PutUint32(arr.payload[i*4:], uint32(v))
	default:
		binary.BigEndian.PutUint64(arr.payload[i*8:], v)
	}
}

// encode serializes the node (header + count + payload) to its on-disk
// bytes.
func (arr *Array) encode() []byte {
	total := payloadOffset + len(arr.payload)
	buf := make([]byte, total)
	flags := byte(0)
	if arr.isIndex {
		flags |= alloc.NodeFlagIndexNode
	}
	h := alloc.NodeHeader{SizeBytes: uint32(total), WidthBits: byte(arr.width), TypeCode: arr.typeCode, Flags: flags}
	copy(buf[0:alloc.NodeHeaderSize], h.Encode())
	binary.BigEndian.PutUint32(buf[countOffset:payloadOffset], uint32(arr.count))
	copy(buf[payloadOffset:], arr.payload)
	return buf
}

// flushNew allocates a fresh ref for a node that has never been written
// (Create path).
func (arr *Array) flushNew() error {
	buf := arr.encode()
	ref, err := arr.a.Alloc(uint32(len(buf)), arr.version)
	if err != nil {
		return err
	}
	arr.ref = ref
	if err := arr.a.Write(ref, buf); err != nil {
		return err
	}
	arr.dirty = false
	return nil
}

// CopyOnWrite publishes the accessor's current in-memory state under a
// fresh ref and frees the old ref against version: allocate a fresh node,
// copy the payload, update the parent slot, and free the old ref. It
// returns the new ref; the caller is responsible for rewriting the parent
// slot (array.SetParent plus a recursive COW one level up) and stops
// propagating once it reaches an ancestor that is already dirty in this
// transaction.
func (arr *Array) CopyOnWrite(version primitives.Version) (primitives.Ref, error) {
	buf := arr.encode()
	newRef, err := arr.a.Alloc(uint32(len(buf)), version)
	if err != nil {
		return 0, err
	}
	if err := arr.a.Write(newRef, buf); err != nil {
		return 0, err
	}
	if !arr.ref.IsNull() {
		oldSize := uint32(len(buf))
		if head, err := arr.a.Translate(arr.ref, alloc.NodeHeaderSize); err == nil {
			oldSize = alloc.DecodeNodeHeader(head).SizeBytes
		}
		arr.a.Free(arr.ref, oldSize, version)
	}
	arr.ref = newRef
	arr.version = version
	arr.dirty = false
	return newRef, nil
}

// Dirty reports whether the accessor has unflushed in-memory mutations.
func (arr *Array) Dirty() bool { return arr.dirty }

// DestroyDeep frees this node and, if it is an index node, recursively
// follows and frees every ref-typed slot - the context-flag-driven
// behavior where destroy_deep on an index node recursively follows ref
// slots, but on a column node it does not.
func (arr *Array) DestroyDeep(version primitives.Version) error {
	if arr.isIndex {
		for i := 0; i < arr.count; i++ {
			rt := primitives.Unpack(arr.rawGet(i))
			if rt.IsRef() && !rt.Ref().IsNull() {
				child, err := InitFromRef(arr.a, rt.Ref())
				if err != nil {
					return err
				}
				if err := child.DestroyDeep(version); err != nil {
					return err
				}
			}
		}
	}
	if !arr.ref.IsNull() {
		arr.a.Free(arr.ref, alloc.NodeHeaderSize+4+uint32(len(arr.payload)), version)
	}
	return nil
}
