package btree

import (
	"testing"

	"github.com/module/tdb/pkg/alloc"
)

type int64Codec struct{}

func (int64Codec) Encode(v int64) uint64 { return uint64(v) }
func (int64Codec) Decode(raw uint64) int64 { return int64(raw) }

func newAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	a, err := alloc.AttachBuffer(nil)
	if err != nil {
		t.Fatalf("AttachBuffer: %v", err)
	}
	return a
}

func TestBTree_InsertGetInOrder(t *testing.T) {
	a := newAllocator(t)
	tree := New[int64](a, int64Codec{}, 1)

	for i, v := range []int64{10, 20, 30, 40, 50} {
		if err := tree.Insert(i, v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	size, err := tree.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 5 {
		t.Fatalf("expected size 5, got %d", size)
	}

	for i, want := range []int64{10, 20, 30, 40, 50} {
		got, err := tree.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if got != want {
			t.Fatalf("Get(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestBTree_SplitsAboveLeafSize(t *testing.T) {
	a := newAllocator(t)
	tree := New[int64](a, int64Codec{}, 1)

	n := LeafSize*2 + 10
	for i := 0; i < n; i++ {
		if err := tree.Insert(i, int64(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	size, err := tree.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != n {
		t.Fatalf("expected size %d, got %d", n, size)
	}
	for _, i := range []int{0, LeafSize, LeafSize + 1, n - 1} {
		got, err := tree.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if got != int64(i) {
			t.Fatalf("Get(%d) = %d, want %d", i, got, i)
		}
	}
}

func TestBTree_EraseShrinks(t *testing.T) {
	a := newAllocator(t)
	tree := New[int64](a, int64Codec{}, 1)
	for i, v := range []int64{1, 2, 3, 4, 5} {
		_ = tree.Insert(i, v)
	}
	if err := tree.Erase(2); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	size, _ := tree.Size()
	if size != 4 {
		t.Fatalf("expected size 4, got %d", size)
	}
	got, _ := tree.Get(2)
	if got != 4 {
		t.Fatalf("expected 4 at position 2 after erase, got %d", got)
	}
}

func TestBTree_Iterate(t *testing.T) {
	a := newAllocator(t)
	tree := New[int64](a, int64Codec{}, 1)
	for i, v := range []int64{5, 6, 7} {
		_ = tree.Insert(i, v)
	}
	var seen []int64
	err := tree.Iterate(func(i int, v int64) bool {
		seen = append(seen, v)
		return true
	})
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(seen) != 3 || seen[0] != 5 || seen[2] != 7 {
		t.Fatalf("unexpected iteration result: %v", seen)
	}
}
