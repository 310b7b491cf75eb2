package types

import (
	"fmt"
	"io"

	"github.com/module/tdb/pkg/primitives"
)

// Mixed is the dynamic-type value used for any-typed columns, query
// constants, and cluster cell storage. Every concrete leaf kind already
// implements Field; Mixed is that same interface under the name the spec
// uses, plus the two placeholder kinds (list/dictionary) that never carry a
// serialized payload of their own - their elements live in the node forest,
// addressed by the column's collection ref rather than by Field.Serialize.
type Mixed = Field

// IsNull reports whether m is the null Mixed value (nil or a *NullField).
func IsNull(m Mixed) bool {
	if m == nil {
		return true
	}
	_, ok := m.(*NullField)
	return ok
}

// CollectionPlaceholder marks a cluster cell whose real payload is a list
// or dictionary collection stored in the node forest under a separate ref.
// It implements Field so it can occupy a Mixed slot, but Serialize/Compare
// are deliberately unsupported: callers must resolve the collection ref
// before touching element values.
type CollectionPlaceholder struct {
	Kind Type // ListType or DictionaryType
	Ref  primitives.Ref
}

func NewListPlaceholder(ref primitives.Ref) *CollectionPlaceholder {
	return &CollectionPlaceholder{Kind: ListType, Ref: ref}
}

func NewDictionaryPlaceholder(ref primitives.Ref) *CollectionPlaceholder {
	return &CollectionPlaceholder{Kind: DictionaryType, Ref: ref}
}

func (c *CollectionPlaceholder) Serialize(w io.Writer) error {
	return serializeUint64(w, uint64(c.Ref))
}

func (c *CollectionPlaceholder) Compare(primitives.Predicate, Field) (bool, error) {
	return false, fmt.Errorf("collections do not support direct comparison; resolve the collection ref first")
}

func (c *CollectionPlaceholder) Type() Type { return c.Kind }

func (c *CollectionPlaceholder) String() string {
	return fmt.Sprintf("%s(%s)", c.Kind, c.Ref)
}

func (c *CollectionPlaceholder) Equals(other Field) bool {
	o, ok := other.(*CollectionPlaceholder)
	return ok && o.Kind == c.Kind && o.Ref == c.Ref
}

func (c *CollectionPlaceholder) Hash() (primitives.HashCode, error) {
	return fnvHash(toBytes64(uint64(c.Ref))), nil
}

func (c *CollectionPlaceholder) Length() uint32 { return 8 }

// CompareMixed applies op between a and b, treating a null on either side
// per SQL-style semantics: null compares equal only to null, and any
// relational predicate against a null is false. Any other pair goes to
// a.Compare, which handles numeric comparison across Int, Float and Double.
func CompareMixed(op primitives.Predicate, a, b Mixed) (bool, error) {
	if IsNull(a) || IsNull(b) {
		switch op {
		case primitives.Equals:
			return IsNull(a) && IsNull(b), nil
		case primitives.NotEqual:
			return !(IsNull(a) && IsNull(b)), nil
		default:
			return false, nil
		}
	}
	return a.Compare(op, b)
}
