package txn

import (
	"github.com/module/tdb/pkg/primitives"
)

// LinkRef names one link cell a cascading remove touches: the column
// belongs to Table's schema at ColIndex, Obj is the row holding it, and
// OldTarget is the row it pointed at before the remove. A link whose target
// is itself being removed (see CascadeSet.Rows) drove the cascade; a link
// whose origin survives the remove gets nullified in place.
type LinkRef struct {
	Table     primitives.TableKey
	Col       primitives.ColKey
	ColIndex  int
	Obj       primitives.ObjKey
	OldTarget primitives.ObjLink
}

// CascadeSet describes the fallout of removing one object, handed to the
// registered CascadeHandler before any row is actually touched. Rows is the
// closure of every other row that goes away as a consequence of removing
// Root, reached by following Root's own outgoing Link/LinkList columns and
// then theirs, transitively - it never includes Root itself. Links is every
// link cell the remove severs along the way: the strong links that drove
// Rows, plus any backlink-holder elsewhere that pointed at Root or at one of
// Rows and now needs nullifying.
type CascadeSet struct {
	Root  primitives.ObjLink
	Rows  []primitives.ObjLink
	Links []LinkRef
}
