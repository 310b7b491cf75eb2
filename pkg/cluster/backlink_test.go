package cluster

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

func newTestAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	a, err := alloc.AttachBuffer(nil)
	require.NoError(t, err)
	return a
}

func intColumn(name string) ColumnSpec {
	key := primitives.NewColKey(0, primitives.ColTypeInt, primitives.ColKeyOptions{})
	return ColumnSpec{Name: name, Key: key}
}

func linkColumn(name string, target primitives.TableKey) ColumnSpec {
	key := primitives.NewColKey(0, primitives.ColTypeLink, primitives.ColKeyOptions{Nullable: true})
	return ColumnSpec{Name: name, Key: key, LinkTarget: target}
}

// withBacklinkSlot grows t's Backlinks by one empty column tree, the same
// growth EnsureBacklinkSlot performs once group.EnsureBacklinkColumn hands
// out a new slot index for a real table.
func withBacklinkSlot(t *Table) {
	_ = t.EnsureBacklinkSlot(len(t.Backlinks))
}

func TestSetLink_MaintainsReciprocalBacklink(t *testing.T) {
	a := newTestAllocator(t)

	users := New(a, []ColumnSpec{intColumn("id")}, 1)
	u1 := users.NextKey()
	require.NoError(t, users.InsertRow(u1, []types.Mixed{types.NewIntField(1)}))
	withBacklinkSlot(users)

	posts := New(a, []ColumnSpec{linkColumn("author", 0)}, 1)
	p1 := posts.NextKey()
	require.NoError(t, posts.InsertRow(p1, []types.Mixed{types.Null()}))

	require.NoError(t, posts.SetLink(p1, posts.Schema[0].Key, users, 0, u1))

	set, err := users.BacklinkSet(u1, 0)
	require.NoError(t, err)
	require.Equal(t, []primitives.ObjKey{p1}, set)

	require.NoError(t, posts.SetLink(p1, posts.Schema[0].Key, users, 0, primitives.NullObjKey))
	set, err = users.BacklinkSet(u1, 0)
	require.NoError(t, err)
	require.Empty(t, set)
}
