package clientreset

import (
	"fmt"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/types"
)

// primaryKeyIndex resolves the position of table's primary-key column: if
// a column has the primary-key attribute, every object in the table has a
// unique, non-null value in it.
func primaryKeyIndex(schema []cluster.ColumnSpec) (int, error) {
	for i, c := range schema {
		if c.Key.IsPrimary() {
			return i, nil
		}
	}
	return 0, dberr.New(dberr.DescriptorMismatch, "client reset: table has no primary-key column")
}

// mixedKey renders a Mixed value as a comparable map key, disambiguated by
// runtime type so e.g. IntField(5) and StringField("5") never collide.
func mixedKey(v types.Mixed) string {
	if types.IsNull(v) {
		return "null"
	}
	return fmt.Sprintf("%s:%s", v.Type(), v.String())
}
