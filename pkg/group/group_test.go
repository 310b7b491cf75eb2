package group

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

func newTestAllocator(t *testing.T) *alloc.Allocator {
	t.Helper()
	a, err := alloc.AttachBuffer(nil)
	require.NoError(t, err)
	return a
}

func idSchema() []cluster.ColumnSpec {
	key := primitives.NewColKey(0, primitives.ColTypeInt, primitives.ColKeyOptions{Primary: true, Indexed: true})
	return []cluster.ColumnSpec{{Name: "id", Key: key}}
}

func TestGroup_CreateTableRejectsDuplicateName(t *testing.T) {
	a := newTestAllocator(t)
	g := New(a, 1)

	_, err := g.CreateTable("widgets", idSchema())
	require.NoError(t, err)

	_, err = g.CreateTable("widgets", idSchema())
	require.Error(t, err)
}

func TestGroup_RemoveTableFailsWhenLinkedFrom(t *testing.T) {
	a := newTestAllocator(t)
	g := New(a, 1)

	targetKey, err := g.CreateTable("targets", idSchema())
	require.NoError(t, err)

	linkKey := primitives.NewColKey(0, primitives.ColTypeLink, primitives.ColKeyOptions{Nullable: true})
	_, err = g.CreateTable("origins", []cluster.ColumnSpec{{Name: "ref", Key: linkKey, LinkTarget: targetKey}})
	require.NoError(t, err)

	refs := g.LinkColumnsTargeting(targetKey)
	require.Len(t, refs, 1)

	err = g.RemoveTable(targetKey, []primitives.TableKey{refs[0].Table})
	require.ErrorContains(t, err, "")
}

func TestGroup_PersistOpenRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	g := New(a, 1)

	key, err := g.CreateTable("items", idSchema())
	require.NoError(t, err)

	table, err := g.OpenTable(key, 1)
	require.NoError(t, err)
	row := table.NextKey()
	require.NoError(t, table.InsertRow(row, []types.Mixed{types.NewIntField(1)}))
	require.NoError(t, g.SaveTable(key, table, table.NextKey()))

	topRef, err := g.Persist(1)
	require.NoError(t, err)
	require.False(t, topRef.IsNull())

	g2, err := Open(a, topRef, 1)
	require.NoError(t, err)

	entry, err := g2.TableByName("items")
	require.NoError(t, err)
	require.Equal(t, "items", entry.Name)

	reopened, err := g2.OpenTable(entry.Key, 1)
	require.NoError(t, err)
	n, err := reopened.RowCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestGroup_StaleTableKeyAfterRemove(t *testing.T) {
	a := newTestAllocator(t)
	g := New(a, 1)

	key, err := g.CreateTable("throwaway", idSchema())
	require.NoError(t, err)
	require.NoError(t, g.RemoveTable(key, nil))

	newKey, err := g.CreateTable("replacement", idSchema())
	require.NoError(t, err)
	require.Equal(t, key.Position(), newKey.Position())
	require.NotEqual(t, key.Generation(), newKey.Generation())

	_, err = g.TableByKey(key)
	require.Error(t, err)
}

func TestGroup_EnsureBacklinkColumnIsIdempotent(t *testing.T) {
	a := newTestAllocator(t)
	g := New(a, 1)

	target, err := g.CreateTable("targets", idSchema())
	require.NoError(t, err)
	origin, err := g.CreateTable("origins", idSchema())
	require.NoError(t, err)

	i1, err := g.EnsureBacklinkColumn(target, origin, 0)
	require.NoError(t, err)
	i2, err := g.EnsureBacklinkColumn(target, origin, 0)
	require.NoError(t, err)
	require.Equal(t, i1, i2)
}
