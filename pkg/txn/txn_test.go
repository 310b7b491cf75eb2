package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func idColumn() cluster.ColumnSpec {
	key := primitives.NewColKey(0, primitives.ColTypeInt, primitives.ColKeyOptions{Primary: true, Indexed: true})
	return cluster.ColumnSpec{Name: "id", Key: key}
}

func TestWriteTxn_CreateTableAndCommit(t *testing.T) {
	db := newTestDB(t)

	w, err := db.BeginWrite(context.Background())
	require.NoError(t, err)

	_, err = w.Group().CreateTable("people", []cluster.ColumnSpec{idColumn()})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	r, err := db.BeginRead()
	require.NoError(t, err)
	defer r.Close()

	entry, err := r.Group().TableByName("people")
	require.NoError(t, err)
	require.Equal(t, "people", entry.Name)
}

func TestWriteTxn_InsertVisibleOnlyAfterCommit(t *testing.T) {
	db := newTestDB(t)

	w, err := db.BeginWrite(context.Background())
	require.NoError(t, err)
	key, err := w.Group().CreateTable("people", []cluster.ColumnSpec{idColumn()})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	before, err := db.BeginRead()
	require.NoError(t, err)

	w2, err := db.BeginWrite(context.Background())
	require.NoError(t, err)
	_, table, err := w2.Table("people")
	require.NoError(t, err)
	require.NoError(t, table.InsertRow(table.NextKey(), []types.Mixed{types.NewIntField(1)}))
	require.NoError(t, w2.Commit())

	beforeTable, err := before.Table("people")
	require.NoError(t, err)
	n, err := beforeTable.RowCount()
	require.NoError(t, err)
	require.Zero(t, n, "reader pinned before the insert must not observe it")
	require.NoError(t, before.Close())

	after, err := db.BeginRead()
	require.NoError(t, err)
	defer after.Close()
	afterTable, err := after.Table("people")
	require.NoError(t, err)
	n, err = afterTable.RowCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_ = key
}

func TestWriteTxn_Rollback(t *testing.T) {
	db := newTestDB(t)

	w, err := db.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.Group().CreateTable("ghost", []cluster.ColumnSpec{idColumn()})
	require.NoError(t, err)
	require.NoError(t, w.Rollback())

	r, err := db.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Group().TableByName("ghost")
	require.Error(t, err, "a rolled-back write must leave no trace")
}

func TestWriteTxn_SerializesWriters(t *testing.T) {
	db := newTestDB(t)

	w1, err := db.BeginWrite(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = db.BeginWrite(ctx)
	require.Error(t, err)

	require.NoError(t, w1.Rollback())
}

func TestReadTxn_Advance(t *testing.T) {
	db := newTestDB(t)

	r, err := db.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	v0 := r.Version()

	w, err := db.BeginWrite(context.Background())
	require.NoError(t, err)
	_, err = w.Group().CreateTable("t", []cluster.ColumnSpec{idColumn()})
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	require.NoError(t, r.Advance())
	require.Greater(t, r.Version(), v0)
	_, err = r.Group().TableByName("t")
	require.NoError(t, err)
}
