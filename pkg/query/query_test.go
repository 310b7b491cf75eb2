package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

func timeoutChan(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(2 * time.Second)
}

func newPeopleTable(t *testing.T) *cluster.Table {
	t.Helper()
	a, err := alloc.AttachBuffer(nil)
	require.NoError(t, err)

	nameKey := primitives.NewColKey(0, primitives.ColTypeString, primitives.ColKeyOptions{})
	ageKey := primitives.NewColKey(1, primitives.ColTypeInt, primitives.ColKeyOptions{})
	schema := []cluster.ColumnSpec{{Name: "name", Key: nameKey}, {Name: "age", Key: ageKey}}
	tbl := cluster.New(a, schema, 1)

	rows := []struct {
		name string
		age  int64
	}{
		{"alice", 30},
		{"bob", 25},
		{"carol", 40},
	}
	for _, r := range rows {
		k := tbl.NextKey()
		require.NoError(t, tbl.InsertRow(k, []types.Mixed{types.NewStringField(r.name), types.NewIntField(r.age)}))
	}
	return tbl
}

func TestResults_QueryModeFiltersRows(t *testing.T) {
	tbl := newPeopleTable(t)
	cond := Relational{Column: 1, Op: primitives.GreaterThan, Value: types.NewIntField(26)}
	r := FromQuery(tbl, cond)

	n, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestResults_TableModeCountsAllRows(t *testing.T) {
	tbl := newPeopleTable(t)
	r := FromTable(tbl)
	n, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestResults_SortAndLimit(t *testing.T) {
	tbl := newPeopleTable(t)
	r := FromTable(tbl).Sort(1, false).Limit(1)
	require.NoError(t, r.EnsureUpToDate())
	n, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	key, err := r.Get(0)
	require.NoError(t, err)
	v, err := tbl.GetValue(key, tbl.Schema[1].Key)
	require.NoError(t, err)
	require.Equal(t, int64(25), v.(*types.IntField).Value)
}

func TestResults_Aggregate(t *testing.T) {
	tbl := newPeopleTable(t)
	r := FromTable(tbl)
	sum, err := r.Aggregate(1, Sum)
	require.NoError(t, err)
	require.Equal(t, float64(95), sum.(*types.DoubleField).Value)
}

func TestResults_AndOrNot(t *testing.T) {
	tbl := newPeopleTable(t)
	cond := And{
		Relational{Column: 1, Op: primitives.GreaterThan, Value: types.NewIntField(20)},
		Not{Child: Equality{Column: 0, Value: types.NewStringField("bob")}},
	}
	r := FromQuery(tbl, cond)
	n, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestCoordinator_DeliversDiffOnNotify(t *testing.T) {
	tbl := newPeopleTable(t)
	r := FromTable(tbl)
	require.NoError(t, r.EnsureUpToDate())

	k := tbl.NextKey()
	require.NoError(t, tbl.InsertRow(k, []types.Mixed{types.NewStringField("dave"), types.NewIntField(50)}))

	coord := NewCoordinator(2)
	defer coord.Close()

	done := make(chan Diff, 1)
	tok, err := coord.Register(r, func(d Diff) { done <- d })
	require.NoError(t, err)
	defer tok.Close()

	coord.Notify(2)
	select {
	case d := <-done:
		require.Contains(t, d.Insertions, k)
	case <-timeoutChan(t):
		t.Fatal("notifier did not deliver a diff in time")
	}
}
