package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

func ownerLinkColumn(index uint32, target primitives.TableKey) cluster.ColumnSpec {
	key := primitives.NewColKey(index, primitives.ColTypeLink, primitives.ColKeyOptions{Nullable: true})
	return cluster.ColumnSpec{Name: "owner", Key: key, LinkTarget: target}
}

// TestWriteTxn_RemoveObject_CascadesThroughStrongLink exercises removing the
// row that holds a strong Link: table O has a link column into table T;
// removing O's row must cascade-delete the T row it pointed at and hand the
// registered CascadeHandler the fully resolved set before anything is
// touched.
func TestWriteTxn_RemoveObject_CascadesThroughStrongLink(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	tKey, err := w.Group().CreateTable("t", []cluster.ColumnSpec{idColumn()})
	require.NoError(t, err)
	_, tTable, err := w.Table("t")
	require.NoError(t, err)
	t1 := tTable.NextKey()
	require.NoError(t, tTable.InsertRow(t1, []types.Mixed{types.NewIntField(1)}))

	oKey, err := w.Group().CreateTable("o", []cluster.ColumnSpec{idColumn(), ownerLinkColumn(1, tKey)})
	require.NoError(t, err)
	_, oTable, err := w.Table("o")
	require.NoError(t, err)
	o1 := oTable.NextKey()
	require.NoError(t, oTable.InsertRow(o1, []types.Mixed{types.NewIntField(1), types.NewLinkField(t1)}))
	require.NoError(t, w.Commit())

	var seen CascadeSet
	db.OnCascade(func(cs CascadeSet) error {
		seen = cs
		return nil
	})

	w2, err := db.BeginWrite(ctx)
	require.NoError(t, err)
	require.NoError(t, w2.RemoveObject(oKey, o1))
	require.NoError(t, w2.Commit())

	require.Equal(t, primitives.ObjLink{Table: oKey, Obj: o1}, seen.Root)
	require.Equal(t, []primitives.ObjLink{{Table: tKey, Obj: t1}}, seen.Rows)
	require.Len(t, seen.Links, 1)
	require.Equal(t, oKey, seen.Links[0].Table)
	require.Equal(t, o1, seen.Links[0].Obj)
	require.Equal(t, primitives.ObjLink{Table: tKey, Obj: t1}, seen.Links[0].OldTarget)

	r, err := db.BeginRead()
	require.NoError(t, err)
	defer r.Close()
	tRead, err := r.Table("t")
	require.NoError(t, err)
	n, err := tRead.RowCount()
	require.NoError(t, err)
	require.Zero(t, n, "T must be empty after removing the row that linked into it")
}
