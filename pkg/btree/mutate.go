package btree

import (
	"github.com/module/tdb/pkg/primitives"
)

// Insert adds v at ordinal position i. Interior nodes are kept at
// uniform height: leaves and interior nodes split in place, and only a
// split of the root grows the tree, by exactly one level.
func (t *BTree[T]) Insert(i int, v T) error {
	n, err := t.rootNode()
	if err != nil {
		return err
	}
	encoded := t.codec.Encode(v)

	newRef, splitRef, splitSize, err := t.insertIn(n, i, encoded)
	if err != nil {
		return err
	}

	if splitRef.IsNull() {
		t.root = newRef
		return nil
	}

	// Root split: grow one level.
	root, err := newInteriorNode(t.a, t.version)
	if err != nil {
		return err
	}
	leftSize, err := t.sizeOfRef(newRef)
	if err != nil {
		return err
	}
	if err := root.appendChild(newRef, leftSize); err != nil {
		return err
	}
	if err := root.appendChild(splitRef, splitSize); err != nil {
		return err
	}
	rootRef, err := root.arr.CopyOnWrite(t.version)
	if err != nil {
		return err
	}
	t.root = rootRef
	return nil
}

func (t *BTree[T]) sizeOfRef(ref primitives.Ref) (int, error) {
	n, err := loadNode(t.a, ref)
	if err != nil {
		return 0, err
	}
	return n.totalSize(), nil
}

// insertIn inserts encoded at ordinal i within the subtree rooted at n. It
// returns the (possibly new, post-COW) ref for n, and - if n had to split -
// a second ref/size pair for the new right sibling.
func (t *BTree[T]) insertIn(n *node, i int, encoded uint64) (primitives.Ref, primitives.Ref, int, error) {
	if n.isLeaf {
		if err := n.arr.Insert(i, encoded); err != nil {
			return 0, 0, 0, err
		}
		if n.arr.Size() <= LeafSize {
			ref, err := n.arr.CopyOnWrite(t.version)
			return ref, 0, 0, err
		}
		return t.splitLeaf(n)
	}

	c, childOff := t.locateChild(n, i)
	ref, sz := n.child(c)
	child, err := loadNode(t.a, ref)
	if err != nil {
		return 0, 0, 0, err
	}

	newChildRef, splitRef, splitSize, err := t.insertIn(child, i-childOff, encoded)
	if err != nil {
		return 0, 0, 0, err
	}

	leftSize := sz + 1
	if !splitRef.IsNull() {
		leftSize -= splitSize
	}
	if err := n.setChild(c, newChildRef, leftSize); err != nil {
		return 0, 0, 0, err
	}
	if !splitRef.IsNull() {
		if err := n.insertChild(c+1, splitRef, splitSize); err != nil {
			return 0, 0, 0, err
		}
	}

	if n.childCount() <= LeafSize {
		ref, err := n.arr.CopyOnWrite(t.version)
		return ref, 0, 0, err
	}
	return t.splitInterior(n)
}

// locateChild finds which child covers ordinal position i, returning the
// child index and the ordinal offset of that child's first element.
func (t *BTree[T]) locateChild(n *node, i int) (int, int) {
	offset := 0
	for c := 0; c < n.childCount(); c++ {
		_, sz := n.child(c)
		if i < offset+sz || c == n.childCount()-1 {
			return c, offset
		}
		offset += sz
	}
	return n.childCount() - 1, offset
}

func (t *BTree[T]) splitLeaf(n *node) (primitives.Ref, primitives.Ref, int, error) {
	mid := n.arr.Size() / 2
	right, err := newLeafNode(t.a, t.version)
	if err != nil {
		return 0, 0, 0, err
	}
	for n.arr.Size() > mid {
		v, _ := n.arr.Get(mid)
		if err := n.arr.Erase(mid); err != nil {
			return 0, 0, 0, err
		}
		if err := right.arr.Insert(right.arr.Size(), v); err != nil {
			return 0, 0, 0, err
		}
	}
	leftRef, err := n.arr.CopyOnWrite(t.version)
	if err != nil {
		return 0, 0, 0, err
	}
	rightRef, err := right.arr.CopyOnWrite(t.version)
	if err != nil {
		return 0, 0, 0, err
	}
	return leftRef, rightRef, right.arr.Size(), nil
}

func (t *BTree[T]) splitInterior(n *node) (primitives.Ref, primitives.Ref, int, error) {
	mid := n.childCount() / 2
	right, err := newInteriorNode(t.a, t.version)
	if err != nil {
		return 0, 0, 0, err
	}
	for n.childCount() > mid {
		ref, sz := n.child(mid)
		if err := n.eraseChild(mid); err != nil {
			return 0, 0, 0, err
		}
		if err := right.appendChild(ref, sz); err != nil {
			return 0, 0, 0, err
		}
	}
	leftRef, err := n.arr.CopyOnWrite(t.version)
	if err != nil {
		return 0, 0, 0, err
	}
	rightRef, err := right.arr.CopyOnWrite(t.version)
	if err != nil {
		return 0, 0, 0, err
	}
	return leftRef, rightRef, right.totalSize(), nil
}

// Erase removes the element at ordinal position i. Underflow
// below the low watermark triggers a merge with an adjacent leaf; the root
// is allowed to shrink below the watermark since it has no sibling to merge
// with.
func (t *BTree[T]) Erase(i int) error {
	n, err := t.rootNode()
	if err != nil {
		return err
	}
	newRef, err := t.eraseIn(n, i)
	if err != nil {
		return err
	}

	// Collapse a root interior node with a single child.
	collapsed, err := loadNode(t.a, newRef)
	if err != nil {
		return err
	}
	if !collapsed.isLeaf && collapsed.childCount() == 1 {
		only, _ := collapsed.child(0)
		t.root = only
		return nil
	}
	t.root = newRef
	return nil
}

func (t *BTree[T]) eraseIn(n *node, i int) (primitives.Ref, error) {
	if n.isLeaf {
		if err := n.arr.Erase(i); err != nil {
			return 0, err
		}
		return n.arr.CopyOnWrite(t.version)
	}

	c, childOff := t.locateChild(n, i)
	ref, _ := n.child(c)
	child, err := loadNode(t.a, ref)
	if err != nil {
		return 0, err
	}
	newChildRef, err := t.eraseIn(child, i-childOff)
	if err != nil {
		return 0, err
	}

	reloaded, err := loadNode(t.a, newChildRef)
	if err != nil {
		return 0, err
	}
	newSize := reloaded.totalSize()

	if newSize < lowWatermark && n.childCount() > 1 {
		if merged, ok, err := t.tryMerge(n, c, newChildRef, newSize); err != nil {
			return 0, err
		} else if ok {
			return merged, nil
		}
	}

	if err := n.setChild(c, newChildRef, newSize); err != nil {
		return 0, err
	}
	return n.arr.CopyOnWrite(t.version)
}

// tryMerge merges child c (now underflowed) with a sibling. Returns the
// new ref for n and true if a merge happened.
func (t *BTree[T]) tryMerge(n *node, c int, childRef primitives.Ref, childSize int) (primitives.Ref, bool, error) {
	sibling := c - 1
	mergeLeft := true
	if sibling < 0 {
		sibling = c + 1
		mergeLeft = false
	}
	if sibling < 0 || sibling >= n.childCount() {
		return 0, false, nil
	}

	sibRef, sibSize := n.child(sibling)
	sibNode, err := loadNode(t.a, sibRef)
	if err != nil {
		return 0, false, err
	}
	childNode, err := loadNode(t.a, childRef)
	if err != nil {
		return 0, false, err
	}

	left, right := sibNode, childNode
	leftIdx := sibling
	if !mergeLeft {
		left, right = childNode, sibNode
		leftIdx = c
	}

	if left.isLeaf {
		for i := 0; i < right.arr.Size(); i++ {
			v, _ := right.arr.Get(i)
			if err := left.arr.Insert(left.arr.Size(), v); err != nil {
				return 0, false, err
			}
		}
	} else {
		for i := 0; i < right.childCount(); i++ {
			ref, sz := right.child(i)
			if err := left.appendChild(ref, sz); err != nil {
				return 0, false, err
			}
		}
	}
	mergedRef, err := left.arr.CopyOnWrite(t.version)
	if err != nil {
		return 0, false, err
	}

	if err := n.eraseChild(leftIdx + 1); err != nil {
		return 0, false, err
	}
	if err := n.setChild(leftIdx, mergedRef, left.totalSize()); err != nil {
		return 0, false, err
	}
	_ = childSize
	_ = sibSize
	newRef, err := n.arr.CopyOnWrite(t.version)
	return newRef, true, err
}
