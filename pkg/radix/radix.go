package radix

import (
	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// RadixTree is the C4 index over a single column. Every indexed column
// owns one of these, rooted at a ref stored in the column's ColKey-resolved
// slot in the table entry.
type RadixTree struct {
	a       *alloc.Allocator
	root    primitives.Ref
	version primitives.Version
}

// Open wraps an existing radix tree rooted at ref (NullRef for an empty
// tree).
func Open(a *alloc.Allocator, root primitives.Ref, version primitives.Version) *RadixTree {
	return &RadixTree{a: a, root: root, version: version}
}

// Root returns the tree's current root ref.
func (t *RadixTree) Root() primitives.Ref { return t.root }

// fitsInline63 reports whether v's value fits the 63-bit signed inline
// payload. A tombstone ObjKey whose encoded magnitude needs the full
// 64th bit does not, and falls back to inserting a one-element list
// instead of a tagged ObjKey.
func fitsInline63(v primitives.ObjKey) bool {
	iv := int64(v)
	return iv >= -(int64(1)<<62) && iv < (int64(1)<<62)
}

// Insert adds key -> objKey to the tree.
func (t *RadixTree) Insert(key []byte, objKey primitives.ObjKey) error {
	if totalChunks(key) == 0 {
		return t.insertNull(objKey)
	}
	newRoot, err := t.insertInto(t.root, key, 0, objKey)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *RadixTree) insertNull(objKey primitives.ObjKey) error {
	var root *objNode
	var err error
	if t.root.IsNull() {
		root, err = newNode(t.a, t.version)
	} else {
		root, err = loadNode(t.a, t.root)
	}
	if err != nil {
		return err
	}
	existing := root.nulls()
	switch {
	case root.nullsRaw() == 0:
		if err := root.setNulls(t.leafEntry(objKey)); err != nil {
			return err
		}
	case existing.IsInline():
		if primitives.ObjKey(existing.Inline()) == objKey {
			break
		}
		listRef, err := t.newSortedList([]primitives.ObjKey{primitives.ObjKey(existing.Inline()), objKey})
		if err != nil {
			return err
		}
		if err := root.setNulls(primitives.FromRef(listRef)); err != nil {
			return err
		}
	default:
		newRef, err := t.insertIntoSortedList(existing.Ref(), objKey)
		if err != nil {
			return err
		}
		if err := root.setNulls(primitives.FromRef(newRef)); err != nil {
			return err
		}
	}
	newRef, err := root.arr.CopyOnWrite(t.version)
	if err != nil {
		return err
	}
	t.root = newRef
	return nil
}

func (t *RadixTree) leafEntry(objKey primitives.ObjKey) primitives.RefOrTagged {
	if fitsInline63(objKey) {
		return primitives.FromInline(int64(objKey))
	}
	listRef, _ := t.newSortedList([]primitives.ObjKey{objKey})
	return primitives.FromRef(listRef)
}

// insertInto recurses down the tree: consume the node's prefix chunks
// (splitting on divergence), then branch on the terminal chunk.
func (t *RadixTree) insertInto(nodeRef primitives.Ref, key []byte, depth int, objKey primitives.ObjKey) (primitives.Ref, error) {
	if nodeRef.IsNull() {
		n, err := newNode(t.a, t.version)
		if err != nil {
			return 0, err
		}
		if err := t.fillFreshLeaf(n, key, depth, objKey); err != nil {
			return 0, err
		}
		return n.arr.CopyOnWrite(t.version)
	}

	n, err := loadNode(t.a, nodeRef)
	if err != nil {
		return 0, err
	}

	pfx, err := n.prefixChunks(t.a)
	if err != nil {
		return 0, err
	}
	common := 0
	for common < len(pfx) && depth+common < totalChunks(key) && chunkAt(key, depth+common) == pfx[common] {
		common++
	}

	if common < len(pfx) {
		if err := t.splitNode(n, pfx, common); err != nil {
			return 0, err
		}
	}
	depth += common

	terminal := chunkAt(key, depth)
	afterTerminal := depth + 1

	entry, has := n.getChild(terminal)
	if !has {
		if afterTerminal >= totalChunks(key) {
			if err := n.insertChild(terminal, t.leafEntry(objKey)); err != nil {
				return 0, err
			}
		} else {
			child, err := newNode(t.a, t.version)
			if err != nil {
				return 0, err
			}
			if err := t.fillFreshLeaf(child, key, afterTerminal, objKey); err != nil {
				return 0, err
			}
			childRef, err := child.arr.CopyOnWrite(t.version)
			if err != nil {
				return 0, err
			}
			if err := n.insertChild(terminal, primitives.FromRef(childRef)); err != nil {
				return 0, err
			}
		}
		return n.arr.CopyOnWrite(t.version)
	}

	switch {
	case entry.IsInline():
		existing := primitives.ObjKey(entry.Inline())
		if existing == objKey {
			break
		}
		listRef, err := t.newSortedList([]primitives.ObjKey{existing, objKey})
		if err != nil {
			return 0, err
		}
		if err := n.setChild(terminal, primitives.FromRef(listRef)); err != nil {
			return 0, err
		}
	default:
		ref := entry.Ref()
		isSubnode, err := t.refIsSubnode(ref)
		if err != nil {
			return 0, err
		}
		if isSubnode {
			newChildRef, err := t.insertInto(ref, key, afterTerminal, objKey)
			if err != nil {
				return 0, err
			}
			if err := n.setChild(terminal, primitives.FromRef(newChildRef)); err != nil {
				return 0, err
			}
		} else {
			newListRef, err := t.insertIntoSortedList(ref, objKey)
			if err != nil {
				return 0, err
			}
			if err := n.setChild(terminal, primitives.FromRef(newListRef)); err != nil {
				return 0, err
			}
		}
	}
	return n.arr.CopyOnWrite(t.version)
}

// fillFreshLeaf sets a brand-new node's prefix to every chunk but the last
// of key starting at depth, with the final chunk stored as its terminal
// entry - the base case of insertInto's recursion.
func (t *RadixTree) fillFreshLeaf(n *objNode, key []byte, depth int, objKey primitives.ObjKey) error {
	total := totalChunks(key)
	remaining := total - depth
	if remaining <= 0 {
		return dberr.New(dberr.LogicError, "radix: no chunks left for a fresh leaf")
	}
	pfx := make([]int, remaining-1)
	for i := range pfx {
		pfx[i] = chunkAt(key, depth+i)
	}
	if err := n.setPrefixChunks(t.a, pfx, t.version); err != nil {
		return err
	}
	terminal := chunkAt(key, depth+remaining-1)
	return n.insertChild(terminal, t.leafEntry(objKey))
}

// splitNode implements the prefix split: n keeps pfx[:common], a new
// sibling inherits n's existing children/pop under prefix pfx[common+1:],
// and the sibling is attached at chunk pfx[common].
func (t *RadixTree) splitNode(n *objNode, pfx []int, common int) error {
	sibling, err := newNode(t.a, t.version)
	if err != nil {
		return err
	}
	if err := sibling.setPrefixChunks(t.a, pfx[common+1:], t.version); err != nil {
		return err
	}
	// Move n's entire children area and population into sibling.
	for c := 0; c < ChunkCount; c++ {
		if entry, has := n.getChild(c); has {
			if err := sibling.insertChild(c, entry); err != nil {
				return err
			}
		}
	}
	siblingRef, err := sibling.arr.CopyOnWrite(t.version)
	if err != nil {
		return err
	}

	// Clear n's old population/children, shorten its prefix, attach sibling.
	if err := n.setPop0(0); err != nil {
		return err
	}
	if err := n.setPop1(0); err != nil {
		return err
	}
	// Children area beyond metadataSlots is now stale; truncate it.
	for n.arr.Size() > metadataSlots {
		if err := n.arr.Erase(n.arr.Size() - 1); err != nil {
			return err
		}
	}
	if err := n.setPrefixChunks(t.a, pfx[:common], t.version); err != nil {
		return err
	}
	return n.insertChild(pfx[common], primitives.FromRef(siblingRef))
}

// refIsSubnode distinguishes a children-area Ref pointing at another radix
// node from one pointing at a plain sorted-list array, via the node
// header's context flag: index nodes carry it, plain arrays don't.
func (t *RadixTree) refIsSubnode(ref primitives.Ref) (bool, error) {
	head, err := t.a.Translate(ref, alloc.NodeHeaderSize)
	if err != nil {
		return false, err
	}
	return alloc.DecodeNodeHeader(head).IsIndexNode(), nil
}

// newSortedList creates a plain (non-index) Width64 array holding keys in
// sorted order, one array per duplicate-value bucket.
func (t *RadixTree) newSortedList(keys []primitives.ObjKey) (primitives.Ref, error) {
	sorted := append([]primitives.ObjKey(nil), keys...)
	sortObjKeys(sorted)
	arr, err := array.Create(t.a, array.Width64, len(sorted), 0, false, alloc.NodeTypeBlob, t.version)
	if err != nil {
		return 0, err
	}
	for i, k := range sorted {
		if err := arr.SetSigned(i, int64(k)); err != nil {
			return 0, err
		}
	}
	return arr.CopyOnWrite(t.version)
}

// insertIntoSortedList inserts objKey into the sorted list at ref, keeping
// order and uniqueness.
func (t *RadixTree) insertIntoSortedList(ref primitives.Ref, objKey primitives.ObjKey) (primitives.Ref, error) {
	arr, err := array.InitFromRef(t.a, ref)
	if err != nil {
		return 0, err
	}
	pos := 0
	for pos < arr.Size() {
		v, err := arr.GetSigned(pos)
		if err != nil {
			return 0, err
		}
		if primitives.ObjKey(v) == objKey {
			return ref, nil
		}
		if primitives.ObjKey(v) > objKey {
			break
		}
		pos++
	}
	if err := arr.Insert(pos, 0); err != nil {
		return 0, err
	}
	if err := arr.SetSigned(pos, int64(objKey)); err != nil {
		return 0, err
	}
	return arr.CopyOnWrite(t.version)
}

// removeFromSortedList erases objKey from the list at ref. It reports the
// list's new size (0 meaning the list is now empty) and, if exactly one
// element remains, that element - so the caller can demote back to an
// inline tagged ObjKey, promoting a singleton list back to an inline tagged
// ObjKey on erase.
func (t *RadixTree) removeFromSortedList(ref primitives.Ref, objKey primitives.ObjKey) (newRef primitives.Ref, size int, singleton primitives.ObjKey, err error) {
	arr, err := array.InitFromRef(t.a, ref)
	if err != nil {
		return 0, 0, 0, err
	}
	for i := 0; i < arr.Size(); i++ {
		v, gerr := arr.GetSigned(i)
		if gerr != nil {
			return 0, 0, 0, gerr
		}
		if primitives.ObjKey(v) == objKey {
			if eerr := arr.Erase(i); eerr != nil {
				return 0, 0, 0, eerr
			}
			break
		}
	}
	if arr.Size() == 1 {
		v, gerr := arr.GetSigned(0)
		if gerr != nil {
			return 0, 0, 0, gerr
		}
		return 0, 1, primitives.ObjKey(v), nil
	}
	newRef, err = arr.CopyOnWrite(t.version)
	return newRef, arr.Size(), 0, err
}

func sortObjKeys(keys []primitives.ObjKey) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
}

// Erase removes objKey from key's bucket: demote a
// two-element list to an inline tagged ObjKey when it drops to one element,
// clear the node's population bit and free it when it becomes empty, and
// collapse a parent whose prefix plus its one remaining child can be
// folded upward.
func (t *RadixTree) Erase(key []byte, objKey primitives.ObjKey) error {
	if totalChunks(key) == 0 {
		return t.eraseNull(objKey)
	}
	newRoot, err := t.eraseFrom(t.root, key, 0, objKey)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *RadixTree) eraseNull(objKey primitives.ObjKey) error {
	if t.root.IsNull() {
		return nil
	}
	root, err := loadNode(t.a, t.root)
	if err != nil {
		return err
	}
	existing := root.nulls()
	switch {
	case root.nullsRaw() == 0:
		return nil
	case existing.IsInline():
		if primitives.ObjKey(existing.Inline()) != objKey {
			return nil
		}
		if err := root.setNulls(primitives.RefOrTagged{}); err != nil {
			return err
		}
	default:
		listRef, size, singleton, err := t.removeFromSortedList(existing.Ref(), objKey)
		if err != nil {
			return err
		}
		switch size {
		case 0:
			if err := root.setNulls(primitives.RefOrTagged{}); err != nil {
				return err
			}
		case 1:
			if err := root.setNulls(primitives.FromInline(int64(singleton))); err != nil {
				return err
			}
		default:
			if err := root.setNulls(primitives.FromRef(listRef)); err != nil {
				return err
			}
		}
	}
	newRef, err := root.arr.CopyOnWrite(t.version)
	if err != nil {
		return err
	}
	if root.IsEmpty() {
		t.root = primitives.NullRef
		return nil
	}
	t.root = newRef
	return nil
}

// eraseFrom mirrors insertInto's descent, with the population bit cleared
// and the node freed when it empties out.
func (t *RadixTree) eraseFrom(nodeRef primitives.Ref, key []byte, depth int, objKey primitives.ObjKey) (primitives.Ref, error) {
	if nodeRef.IsNull() {
		return nodeRef, nil
	}
	n, err := loadNode(t.a, nodeRef)
	if err != nil {
		return 0, err
	}
	pfx, err := n.prefixChunks(t.a)
	if err != nil {
		return 0, err
	}
	for i, c := range pfx {
		if depth+i >= totalChunks(key) || chunkAt(key, depth+i) != c {
			// Key not present under this prefix; nothing to erase.
			return nodeRef, nil
		}
	}
	depth += len(pfx)
	terminal := chunkAt(key, depth)

	entry, has := n.getChild(terminal)
	if !has {
		return nodeRef, nil
	}

	switch {
	case entry.IsInline():
		if primitives.ObjKey(entry.Inline()) != objKey {
			return nodeRef, nil
		}
		if err := n.removeChild(terminal); err != nil {
			return 0, err
		}
	default:
		ref := entry.Ref()
		isSubnode, err := t.refIsSubnode(ref)
		if err != nil {
			return 0, err
		}
		if isSubnode {
			newChildRef, err := t.eraseFrom(ref, key, depth+1, objKey)
			if err != nil {
				return 0, err
			}
			if newChildRef.IsNull() {
				if err := n.removeChild(terminal); err != nil {
					return 0, err
				}
			} else if newChildRef != ref {
				if err := n.setChild(terminal, primitives.FromRef(newChildRef)); err != nil {
					return 0, err
				}
			}
		} else {
			listRef, size, singleton, err := t.removeFromSortedList(ref, objKey)
			if err != nil {
				return 0, err
			}
			switch size {
			case 0:
				if err := n.removeChild(terminal); err != nil {
					return 0, err
				}
			case 1:
				if err := n.setChild(terminal, primitives.FromInline(int64(singleton))); err != nil {
					return 0, err
				}
			default:
				if err := n.setChild(terminal, primitives.FromRef(listRef)); err != nil {
					return 0, err
				}
			}
		}
	}

	if n.IsEmpty() {
		return primitives.NullRef, nil
	}

	// Collapse: a node with exactly one remaining child and no nulls folds
	// its prefix + the branch chunk + the child's own prefix together,
	// so a post-erase tree re-expands its prefix rather than staying
	// fragmented.
	if n.childCount() == 1 && n.nullsRaw() == 0 {
		return t.collapseSingleChild(n)
	}

	return n.arr.CopyOnWrite(t.version)
}

// collapseSingleChild folds a node with exactly one child back into a
// single node so a tree that has shrunk to one leaf re-grows its prefix to
// cover the full remaining path.
func (t *RadixTree) collapseSingleChild(n *objNode) (primitives.Ref, error) {
	pfx, err := n.prefixChunks(t.a)
	if err != nil {
		return 0, err
	}
	var branchChunk int
	var entry primitives.RefOrTagged
	for c := 0; c < ChunkCount; c++ {
		if e, has := n.getChild(c); has {
			branchChunk = c
			entry = e
			break
		}
	}

	if entry.IsInline() {
		combined, err := newNode(t.a, t.version)
		if err != nil {
			return 0, err
		}
		if err := combined.setPrefixChunks(t.a, pfx, t.version); err != nil {
			return 0, err
		}
		if err := combined.insertChild(branchChunk, entry); err != nil {
			return 0, err
		}
		return combined.arr.CopyOnWrite(t.version)
	}

	ref := entry.Ref()
	isSubnode, err := t.refIsSubnode(ref)
	if err != nil {
		return 0, err
	}
	if !isSubnode {
		combined, err := newNode(t.a, t.version)
		if err != nil {
			return 0, err
		}
		if err := combined.setPrefixChunks(t.a, pfx, t.version); err != nil {
			return 0, err
		}
		if err := combined.insertChild(branchChunk, entry); err != nil {
			return 0, err
		}
		return combined.arr.CopyOnWrite(t.version)
	}

	child, err := loadNode(t.a, ref)
	if err != nil {
		return 0, err
	}
	childPfx, err := child.prefixChunks(t.a)
	if err != nil {
		return 0, err
	}
	merged := append(append(append([]int{}, pfx...), branchChunk), childPfx...)

	combined, err := newNode(t.a, t.version)
	if err != nil {
		return 0, err
	}
	if err := combined.setPrefixChunks(t.a, merged, t.version); err != nil {
		return 0, err
	}
	for c := 0; c < ChunkCount; c++ {
		if e, has := child.getChild(c); has {
			if err := combined.insertChild(c, e); err != nil {
				return 0, err
			}
		}
	}
	if child.nullsRaw() != 0 {
		if err := combined.setNulls(child.nulls()); err != nil {
			return 0, err
		}
	}
	return combined.arr.CopyOnWrite(t.version)
}

// Count returns how many ObjKeys are stored under key (0, 1, or more for a
// duplicate bucket).
func (t *RadixTree) Count(key []byte) (int, error) {
	entry, ok, err := t.lookup(key)
	if err != nil || !ok {
		return 0, err
	}
	if entry.IsInline() {
		return 1, nil
	}
	isSubnode, err := t.refIsSubnode(entry.Ref())
	if err != nil {
		return 0, err
	}
	if isSubnode {
		return 0, dberr.New(dberr.LogicError, "radix: Count called on a non-terminal key")
	}
	arr, err := array.InitFromRef(t.a, entry.Ref())
	if err != nil {
		return 0, err
	}
	return arr.Size(), nil
}

// HasDuplicateValues reports whether more than one ObjKey is stored under
// key.
func (t *RadixTree) HasDuplicateValues(key []byte) (bool, error) {
	n, err := t.Count(key)
	return n > 1, err
}

// IsEmpty reports whether the tree holds no entries at all.
func (t *RadixTree) IsEmpty() bool {
	return t.root.IsNull()
}

// FindFirst returns the first (lowest) ObjKey stored under key.
func (t *RadixTree) FindFirst(key []byte) (primitives.ObjKey, bool, error) {
	entry, ok, err := t.lookup(key)
	if err != nil || !ok {
		return primitives.NullObjKey, false, err
	}
	if entry.IsInline() {
		return primitives.ObjKey(entry.Inline()), true, nil
	}
	arr, err := array.InitFromRef(t.a, entry.Ref())
	if err != nil {
		return primitives.NullObjKey, false, err
	}
	if arr.Size() == 0 {
		return primitives.NullObjKey, false, nil
	}
	v, err := arr.GetSigned(0)
	if err != nil {
		return primitives.NullObjKey, false, err
	}
	return primitives.ObjKey(v), true, nil
}

// FindAll returns every ObjKey stored under key, in ascending order.
func (t *RadixTree) FindAll(key []byte) ([]primitives.ObjKey, error) {
	entry, ok, err := t.lookup(key)
	if err != nil || !ok {
		return nil, err
	}
	if entry.IsInline() {
		return []primitives.ObjKey{primitives.ObjKey(entry.Inline())}, nil
	}
	arr, err := array.InitFromRef(t.a, entry.Ref())
	if err != nil {
		return nil, err
	}
	out := make([]primitives.ObjKey, arr.Size())
	for i := range out {
		v, err := arr.GetSigned(i)
		if err != nil {
			return nil, err
		}
		out[i] = primitives.ObjKey(v)
	}
	return out, nil
}

// lookup walks the tree to the terminal entry for key.
func (t *RadixTree) lookup(key []byte) (primitives.RefOrTagged, bool, error) {
	if totalChunks(key) == 0 {
		if t.root.IsNull() {
			return primitives.RefOrTagged{}, false, nil
		}
		root, err := loadNode(t.a, t.root)
		if err != nil {
			return primitives.RefOrTagged{}, false, err
		}
		if root.nullsRaw() == 0 {
			return primitives.RefOrTagged{}, false, nil
		}
		return root.nulls(), true, nil
	}

	nodeRef := t.root
	depth := 0
	for {
		if nodeRef.IsNull() {
			return primitives.RefOrTagged{}, false, nil
		}
		n, err := loadNode(t.a, nodeRef)
		if err != nil {
			return primitives.RefOrTagged{}, false, err
		}
		pfx, err := n.prefixChunks(t.a)
		if err != nil {
			return primitives.RefOrTagged{}, false, err
		}
		for i, c := range pfx {
			if depth+i >= totalChunks(key) || chunkAt(key, depth+i) != c {
				return primitives.RefOrTagged{}, false, nil
			}
		}
		depth += len(pfx)
		terminal := chunkAt(key, depth)
		entry, has := n.getChild(terminal)
		if !has {
			return primitives.RefOrTagged{}, false, nil
		}
		if entry.IsInline() {
			return entry, true, nil
		}
		ref := entry.Ref()
		isSubnode, err := t.refIsSubnode(ref)
		if err != nil {
			return primitives.RefOrTagged{}, false, err
		}
		if !isSubnode {
			return entry, true, nil
		}
		nodeRef = ref
		depth++
	}
}
