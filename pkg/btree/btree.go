// Package btree implements the generic B+tree (C3): an ordered sequence of
// typed leaves built on top of pkg/array, supporting insert/get/erase/size
// in O(log N) via a size-offset array at every interior node so index
// lookup never has to scan a sibling.
package btree

import (
	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// LeafSize is the compile-time leaf capacity: up to this many
// elements per leaf before a split, with a low watermark for merging below
// it.
const (
	LeafSize    = 256
	lowWatermark = LeafSize / 4
)

// LeafCodec packs and unpacks a tree's element type to and from the single
// uint64 slot width pkg/array stores. Fixed-size element types encode
// directly; variable-size element types (e.g. a Cluster, a changeset blob)
// encode as a Ref to a side node and decode by dereferencing it.
type LeafCodec[T any] interface {
	Encode(v T) uint64
	Decode(raw uint64) T
}

// BTree is a generic ordered sequence over T. It holds the allocator and
// the tree's root ref; every operation re-derives the root node accessor
// from the ref at call time, mirroring the teacher's per-call
// getRootPage/findLeafPage pattern (pkg/storage/index/btree/btree.go)
// generalized from a fixed (Field,RecordID) entry to an arbitrary T via
// LeafCodec.
type BTree[T any] struct {
	a       *alloc.Allocator
	codec   LeafCodec[T]
	root    primitives.Ref
	version primitives.Version
}

// Open wraps an existing tree rooted at ref. A null ref means an empty
// tree; the first Insert will create a root leaf.
func Open[T any](a *alloc.Allocator, root primitives.Ref, codec LeafCodec[T], version primitives.Version) *BTree[T] {
	return &BTree[T]{a: a, codec: codec, root: root, version: version}
}

// New creates a brand-new, empty tree.
func New[T any](a *alloc.Allocator, codec LeafCodec[T], version primitives.Version) *BTree[T] {
	return &BTree[T]{a: a, codec: codec, version: version}
}

// Root returns the tree's current root ref, to be stored by the owning
// structure (a cluster's table entry, a group's table-refs slot, ...).
func (t *BTree[T]) Root() primitives.Ref { return t.root }

// node is the decoded view of either an interior node (pairs of
// (childRef, subtreeSize) packed into one array.Array) or a leaf
// (a flat array.Array of encoded elements).
type node struct {
	arr      *array.Array
	isLeaf   bool
}

func loadNode(a *alloc.Allocator, ref primitives.Ref) (*node, error) {
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	return &node{arr: arr, isLeaf: !arr.IsIndexNode()}, nil
}

func newLeafNode(a *alloc.Allocator, version primitives.Version) (*node, error) {
	arr, err := array.Create(a, array.Width64, 0, 0, false, alloc.NodeTypeArray, version)
	if err != nil {
		return nil, err
	}
	return &node{arr: arr, isLeaf: true}, nil
}

func newInteriorNode(a *alloc.Allocator, version primitives.Version) (*node, error) {
	arr, err := array.Create(a, array.Width64, 0, 0, true, alloc.NodeTypeBTreeInterior, version)
	if err != nil {
		return nil, err
	}
	return &node{arr: arr, isLeaf: false}, nil
}

// childCount/child/size/setChild operate on an interior node's packed
// (childRef, subtreeSize) pairs.
func (n *node) childCount() int { return n.arr.Size() / 2 }

func (n *node) child(i int) (primitives.Ref, int) {
	cr, _ := n.arr.Get(2 * i)
	sz, _ := n.arr.Get(2*i + 1)
	return primitives.Ref(cr), int(sz)
}

func (n *node) appendChild(ref primitives.Ref, size int) error {
	if err := n.arr.Insert(n.arr.Size(), uint64(ref)); err != nil {
		return err
	}
	return n.arr.Insert(n.arr.Size(), uint64(size))
}

func (n *node) setChild(i int, ref primitives.Ref, size int) error {
	if err := n.arr.Set(2*i, uint64(ref)); err != nil {
		return err
	}
	return n.arr.Set(2*i+1, uint64(size))
}

func (n *node) insertChild(i int, ref primitives.Ref, size int) error {
	if err := n.arr.Insert(2*i, uint64(ref)); err != nil {
		return err
	}
	return n.arr.Insert(2*i+1, uint64(size))
}

func (n *node) eraseChild(i int) error {
	if err := n.arr.Erase(2 * i); err != nil {
		return err
	}
	return n.arr.Erase(2 * i)
}

// totalSize sums an interior node's children sizes, or returns its own
// element count for a leaf.
func (n *node) totalSize() int {
	if n.isLeaf {
		return n.arr.Size()
	}
	total := 0
	for i := 0; i < n.childCount(); i++ {
		_, sz := n.child(i)
		total += sz
	}
	return total
}

func (t *BTree[T]) rootNode() (*node, error) {
	if t.root.IsNull() {
		return newLeafNode(t.a, t.version)
	}
	return loadNode(t.a, t.root)
}

// Size returns the total element count.
func (t *BTree[T]) Size() (int, error) {
	n, err := t.rootNode()
	if err != nil {
		return 0, err
	}
	return n.totalSize(), nil
}

// Clear empties the tree.
func (t *BTree[T]) Clear() {
	t.root = 0
}

// Get returns the element at ordinal position i.
func (t *BTree[T]) Get(i int) (T, error) {
	var zero T
	n, err := t.rootNode()
	if err != nil {
		return zero, err
	}
	return t.getIn(n, i)
}

func (t *BTree[T]) getIn(n *node, i int) (T, error) {
	var zero T
	if n.isLeaf {
		if i < 0 || i >= n.arr.Size() {
			return zero, dberr.New(dberr.OutOfBounds, "btree index out of range")
		}
		raw, err := n.arr.Get(i)
		if err != nil {
			return zero, err
		}
		return t.codec.Decode(raw), nil
	}
	for c := 0; c < n.childCount(); c++ {
		ref, sz := n.child(c)
		if i < sz {
			child, err := loadNode(t.a, ref)
			if err != nil {
				return zero, err
			}
			return t.getIn(child, i)
		}
		i -= sz
	}
	return zero, dberr.New(dberr.OutOfBounds, "btree index out of range")
}

// Iterate calls f with every element in order; f returning false stops
// iteration early.
func (t *BTree[T]) Iterate(f func(i int, v T) bool) error {
	n, err := t.rootNode()
	if err != nil {
		return err
	}
	idx := 0
	_, err = t.iterateIn(n, &idx, f)
	return err
}

func (t *BTree[T]) iterateIn(n *node, idx *int, f func(int, T) bool) (bool, error) {
	if n.isLeaf {
		for i := 0; i < n.arr.Size(); i++ {
			raw, _ := n.arr.Get(i)
			if !f(*idx, t.codec.Decode(raw)) {
				return false, nil
			}
			*idx++
		}
		return true, nil
	}
	for c := 0; c < n.childCount(); c++ {
		ref, _ := n.child(c)
		child, err := loadNode(t.a, ref)
		if err != nil {
			return false, err
		}
		cont, err := t.iterateIn(child, idx, f)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}
