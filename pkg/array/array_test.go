package array

import (
	"testing"

	"github.com/module/tdb/pkg/alloc"
)

func newTestAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	a, err := alloc.AttachBuffer(nil)
	if err != nil {
		t.Fatalf("AttachBuffer: %v", err)
	}
	return a
}

func TestArray_CreateGetSet(t *testing.T) {
	a := newTestAllocator(t)
	arr, err := Create(a, Width8, 4, 0, false, alloc.NodeTypeArray, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if arr.Size() != 4 {
		t.Fatalf("expected size 4, got %d", arr.Size())
	}
	if err := arr.Set(2, 200); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := arr.Get(2)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}

func TestArray_WidensOnOverflow(t *testing.T) {
	a := newTestAllocator(t)
	arr, err := Create(a, Width1, 3, 0, false, alloc.NodeTypeArray, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := arr.Set(0, 500); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if arr.width < Width16 {
		t.Fatalf("expected width to widen to at least 16 bits, got %v", arr.width)
	}
	got, _ := arr.Get(0)
	if got != 500 {
		t.Fatalf("expected 500 after widen, got %d", got)
	}
}

func TestArray_InsertErase(t *testing.T) {
	a := newTestAllocator(t)
	arr, err := Create(a, Width8, 0, 0, false, alloc.NodeTypeArray, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i, v := range []uint64{10, 20, 30} {
		if err := arr.Insert(i, v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := arr.Erase(1); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if arr.Size() != 2 {
		t.Fatalf("expected size 2, got %d", arr.Size())
	}
	v0, _ := arr.Get(0)
	v1, _ := arr.Get(1)
	if v0 != 10 || v1 != 30 {
		t.Fatalf("expected [10,30], got [%d,%d]", v0, v1)
	}
}

func TestArray_CopyOnWriteFreesOldRef(t *testing.T) {
	a := newTestAllocator(t)
	arr, err := Create(a, Width8, 2, 0, false, alloc.NodeTypeArray, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	oldRef := arr.Ref()
	_ = arr.Set(0, 42)
	newRef, err := arr.CopyOnWrite(2)
	if err != nil {
		t.Fatalf("CopyOnWrite: %v", err)
	}
	if newRef == oldRef {
		t.Fatalf("expected a fresh ref after copy-on-write")
	}
}

func TestArray_InitFromRefRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	arr, err := Create(a, Width32, 3, 7, false, alloc.NodeTypeArray, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	reloaded, err := InitFromRef(a, arr.Ref())
	if err != nil {
		t.Fatalf("InitFromRef: %v", err)
	}
	if reloaded.Size() != 3 {
		t.Fatalf("expected size 3, got %d", reloaded.Size())
	}
	v, _ := reloaded.Get(1)
	if v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
}
