package clientreset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/txn"
	"github.com/module/tdb/pkg/types"
)

func newTestDB(t *testing.T) *txn.DB {
	t.Helper()
	db, err := txn.OpenMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func idColumn() cluster.ColumnSpec {
	key := primitives.NewColKey(0, primitives.ColTypeInt, primitives.ColKeyOptions{Primary: true, Indexed: true})
	return cluster.ColumnSpec{Name: "id", Key: key}
}

func nameColumn(index uint32) cluster.ColumnSpec {
	key := primitives.NewColKey(index, primitives.ColTypeString, primitives.ColKeyOptions{Nullable: true})
	return cluster.ColumnSpec{Name: "name", Key: key}
}

func seedItems(t *testing.T, db *txn.DB, ids []int64) {
	t.Helper()
	ctx := context.Background()
	w, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	_, table, err := w.Table("items")
	if err != nil {
		_, table, err = createItemsTable(w)
		require.NoError(t, err)
	}
	for _, id := range ids {
		key := table.NextKey()
		require.NoError(t, table.InsertRow(key, []types.Mixed{
			types.NewIntField(id),
			types.NewStringField("item"),
		}))
	}
	require.NoError(t, w.Commit())
}

func createItemsTable(w *txn.WriteTxn) (primitives.TableKey, *cluster.Table, error) {
	_, err := w.Group().CreateTable("items", []cluster.ColumnSpec{idColumn(), nameColumn(1)})
	if err != nil {
		return 0, nil, err
	}
	return w.Table("items")
}

func TestRun_DiscardLocal_ReplacesLocalWithRemote(t *testing.T) {
	local := newTestDB(t)
	remote := newTestDB(t)

	seedItems(t, local, []int64{1, 2, 3})
	seedItems(t, remote, []int64{2, 3, 4})

	result, err := Run(context.Background(), local, remote, DiscardLocal)
	require.NoError(t, err)
	require.Equal(t, DiscardLocal, result.ModeUsed)
	require.Equal(t, 1, result.RowsDeleted)
	require.Equal(t, 1, result.RowsCreated)

	r, err := local.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	table, err := r.Table("items")
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, table.Iterate(func(key primitives.ObjKey) bool {
		v, err := table.GetValue(key, idColumn().Key)
		require.NoError(t, err)
		ids = append(ids, v.(*types.IntField).Value)
		return true
	}))
	require.ElementsMatch(t, []int64{2, 3, 4}, ids)
}

func TestRun_DiscardLocal_RepeatedModeIsRejectedAsCycle(t *testing.T) {
	local := newTestDB(t)
	remote := newTestDB(t)

	seedItems(t, local, []int64{1})
	seedItems(t, remote, []int64{1})

	_, err := Run(context.Background(), local, remote, DiscardLocal)
	require.NoError(t, err)

	_, err = Run(context.Background(), local, remote, DiscardLocal)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestRun_Recover_ReconcilesRowsWithRemote(t *testing.T) {
	local := newTestDB(t)
	remote := newTestDB(t)

	seedItems(t, local, []int64{1, 2})
	seedItems(t, remote, []int64{2, 3})

	result, err := Run(context.Background(), local, remote, Recover)
	require.NoError(t, err)
	require.Equal(t, Recover, result.ModeUsed)
	require.False(t, result.Downgraded)

	r, err := local.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	table, err := r.Table("items")
	require.NoError(t, err)

	var ids []int64
	require.NoError(t, table.Iterate(func(key primitives.ObjKey) bool {
		v, err := table.GetValue(key, idColumn().Key)
		require.NoError(t, err)
		ids = append(ids, v.(*types.IntField).Value)
		return true
	}))
	require.ElementsMatch(t, []int64{2, 3}, ids)
}

func TestRun_RecoverOrDiscard_DowngradesOnRepeatedRecoverCycle(t *testing.T) {
	local := newTestDB(t)
	remote := newTestDB(t)

	seedItems(t, local, []int64{1})
	seedItems(t, remote, []int64{1})

	_, err := Run(context.Background(), local, remote, Recover)
	require.NoError(t, err)

	result, err := Run(context.Background(), local, remote, RecoverOrDiscard)
	require.NoError(t, err)
	require.True(t, result.Downgraded)
	require.Equal(t, DiscardLocal, result.ModeUsed)
}

func TestRun_Manual_RejectedImmediately(t *testing.T) {
	local := newTestDB(t)
	remote := newTestDB(t)

	_, err := Run(context.Background(), local, remote, Manual)
	require.Error(t, err)
}

func TestPrecheckCycle(t *testing.T) {
	require.NoError(t, precheckCycle(nil, DiscardLocal))
	require.NoError(t, precheckCycle(&Marker{Mode: Recover}, DiscardLocal))
	require.Error(t, precheckCycle(&Marker{Mode: DiscardLocal}, DiscardLocal))
}

func TestMixedKey_DistinguishesTypeNotJustText(t *testing.T) {
	require.NotEqual(t, mixedKey(types.NewIntField(5)), mixedKey(types.NewStringField("5")))
}

func tagLinkColumn(index uint32, target primitives.TableKey) cluster.ColumnSpec {
	key := primitives.NewColKey(index, primitives.ColTypeLink, primitives.ColKeyOptions{Nullable: true})
	return cluster.ColumnSpec{Name: "tag", Key: key, LinkTarget: target}
}

func TestRun_DiscardLocal_CopiesLinkColumnAndMaintainsBacklink(t *testing.T) {
	local := newTestDB(t)
	remote := newTestDB(t)
	ctx := context.Background()

	w, err := remote.BeginWrite(ctx)
	require.NoError(t, err)
	tagsKey, err := w.Group().CreateTable("tags", []cluster.ColumnSpec{idColumn()})
	require.NoError(t, err)
	_, tags, err := w.Table("tags")
	require.NoError(t, err)
	tagRow := tags.NextKey()
	require.NoError(t, tags.InsertRow(tagRow, []types.Mixed{types.NewIntField(1)}))

	_, err = w.Group().CreateTable("items", []cluster.ColumnSpec{idColumn(), tagLinkColumn(1, tagsKey)})
	require.NoError(t, err)
	_, items, err := w.Table("items")
	require.NoError(t, err)
	itemRow := items.NextKey()
	require.NoError(t, items.InsertRow(itemRow, []types.Mixed{types.NewIntField(1), types.NewLinkField(tagRow)}))
	require.NoError(t, w.Commit())

	result, err := Run(ctx, local, remote, DiscardLocal)
	require.NoError(t, err)
	require.Equal(t, DiscardLocal, result.ModeUsed)

	r, err := local.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	localTags, err := r.Table("tags")
	require.NoError(t, err)
	localItems, err := r.Table("items")
	require.NoError(t, err)

	var localTagRow, localItemRow primitives.ObjKey
	require.NoError(t, localTags.Iterate(func(key primitives.ObjKey) bool {
		localTagRow = key
		return true
	}))
	require.NoError(t, localItems.Iterate(func(key primitives.ObjKey) bool {
		localItemRow = key
		return true
	}))

	v, err := localItems.GetValue(localItemRow, tagLinkColumn(1, 0).Key)
	require.NoError(t, err)
	require.Equal(t, localTagRow, v.(*types.LinkField).Target)

	origins, err := localTags.BacklinkSet(localTagRow, 0)
	require.NoError(t, err)
	require.Equal(t, []primitives.ObjKey{localItemRow}, origins)
}
