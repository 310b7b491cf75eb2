package radix

import (
	"testing"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/primitives"
)

func newAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	a, err := alloc.AttachBuffer(nil)
	if err != nil {
		t.Fatalf("AttachBuffer: %v", err)
	}
	return a
}

// TestRadix_IntegerIndex is spec scenario S1: insert rows with values
// [0, 1, 2, 3, 4, 4, 5, 5, 5, null, -1] and check count/find_first/
// has_duplicate_values/delete-all-empties.
func TestRadix_IntegerIndex(t *testing.T) {
	a := newAllocator(t)
	tree := Open(a, primitives.NullRef, 1)

	values := []int64{0, 1, 2, 3, 4, 4, 5, 5, 5}
	for row, v := range values {
		if err := tree.Insert(EncodeInt(v), primitives.ObjKey(row)); err != nil {
			t.Fatalf("Insert(%d): %v", v, err)
		}
	}
	// Row 9 has a null value.
	if err := tree.Insert(nil, primitives.ObjKey(9)); err != nil {
		t.Fatalf("Insert(null): %v", err)
	}
	// Row 10 has value -1.
	if err := tree.Insert(EncodeInt(-1), primitives.ObjKey(10)); err != nil {
		t.Fatalf("Insert(-1): %v", err)
	}

	if c, err := tree.Count(EncodeInt(4)); err != nil || c != 2 {
		t.Fatalf("Count(4) = %d, %v, want 2", c, err)
	}
	if c, err := tree.Count(EncodeInt(5)); err != nil || c != 3 {
		t.Fatalf("Count(5) = %d, %v, want 3", c, err)
	}
	if c, err := tree.Count(nil); err != nil || c != 1 {
		t.Fatalf("Count(null) = %d, %v, want 1", c, err)
	}

	first, ok, err := tree.FindFirst(EncodeInt(-1))
	if err != nil || !ok || first != primitives.ObjKey(10) {
		t.Fatalf("FindFirst(-1) = %v, %v, %v, want row 10", first, ok, err)
	}

	if dup, err := tree.HasDuplicateValues(EncodeInt(5)); err != nil || !dup {
		t.Fatalf("HasDuplicateValues(5) = %v, %v, want true", dup, err)
	}

	for row, v := range values {
		if err := tree.Erase(EncodeInt(v), primitives.ObjKey(row)); err != nil {
			t.Fatalf("Erase(%d): %v", v, err)
		}
	}
	if err := tree.Erase(nil, primitives.ObjKey(9)); err != nil {
		t.Fatalf("Erase(null): %v", err)
	}
	if err := tree.Erase(EncodeInt(-1), primitives.ObjKey(10)); err != nil {
		t.Fatalf("Erase(-1): %v", err)
	}

	if !tree.IsEmpty() {
		t.Fatalf("expected tree to be empty after deleting every row")
	}
}

// TestRadix_PrefixSplit is spec scenario S2: insert two keys that share a
// long common high-chunk prefix, verify the root holds that shared prefix
// with one child subnode per diverging key, then erase one key and verify
// the root collapses back into a single-value leaf whose prefix expands to
// the full remaining path.
func TestRadix_PrefixSplit(t *testing.T) {
	a := newAllocator(t)
	tree := Open(a, primitives.NullRef, 1)

	const keyA int64 = 0xF00000000000000
	const keyB int64 = 0xFFF000000000000

	if err := tree.Insert(EncodeInt(keyA), primitives.ObjKey(1)); err != nil {
		t.Fatalf("Insert(keyA): %v", err)
	}
	if err := tree.Insert(EncodeInt(keyB), primitives.ObjKey(2)); err != nil {
		t.Fatalf("Insert(keyB): %v", err)
	}

	root, err := loadNode(a, tree.Root())
	if err != nil {
		t.Fatalf("loadNode(root): %v", err)
	}
	rootPfx, err := root.prefixChunks(a)
	if err != nil {
		t.Fatalf("prefixChunks: %v", err)
	}
	if len(rootPfx) == 0 {
		t.Fatalf("expected root to hold the common high-chunk prefix")
	}
	if root.childCount() != 2 {
		t.Fatalf("expected two branches off the shared prefix, got %d", root.childCount())
	}

	firstA, ok, err := tree.FindFirst(EncodeInt(keyA))
	if err != nil || !ok || firstA != primitives.ObjKey(1) {
		t.Fatalf("FindFirst(keyA) = %v, %v, %v", firstA, ok, err)
	}
	firstB, ok, err := tree.FindFirst(EncodeInt(keyB))
	if err != nil || !ok || firstB != primitives.ObjKey(2) {
		t.Fatalf("FindFirst(keyB) = %v, %v, %v", firstB, ok, err)
	}

	if err := tree.Erase(EncodeInt(keyB), primitives.ObjKey(2)); err != nil {
		t.Fatalf("Erase(keyB): %v", err)
	}

	collapsed, err := loadNode(a, tree.Root())
	if err != nil {
		t.Fatalf("loadNode(collapsed root): %v", err)
	}
	collapsedPfx, err := collapsed.prefixChunks(a)
	if err != nil {
		t.Fatalf("prefixChunks(collapsed): %v", err)
	}
	if len(collapsedPfx) <= len(rootPfx) {
		t.Fatalf("expected collapsed root's prefix to expand past the old shared prefix")
	}

	firstA, ok, err = tree.FindFirst(EncodeInt(keyA))
	if err != nil || !ok || firstA != primitives.ObjKey(1) {
		t.Fatalf("FindFirst(keyA) after erase = %v, %v, %v", firstA, ok, err)
	}
	if _, found, _ := tree.lookup(EncodeInt(keyB)); found {
		t.Fatalf("expected keyB to be gone after erase")
	}
}
