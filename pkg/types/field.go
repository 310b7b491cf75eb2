package types

import (
	"io"

	"github.com/module/tdb/pkg/primitives"
)

// Field is the common interface implemented by every Mixed payload kind.
// Each concrete field owns its own serialization format, equality, hashing,
// and ordering; callers that need to compare two arbitrary Mixed values go
// through CompareMixed, which settles nulls before delegating to
// Field.Compare; Int, Float and Double compare across each other inside
// their own Compare methods.
type Field interface {
	// Serialize writes the field's binary encoding to w.
	Serialize(w io.Writer) error

	// Compare applies op against other, which must be the same concrete
	// field type unless both are among Int, Float and Double.
	Compare(op primitives.Predicate, other Field) (bool, error)

	// Type returns the field's runtime kind.
	Type() Type

	String() string

	Equals(other Field) bool

	Hash() (primitives.HashCode, error)

	// Length returns the field's serialized size in bytes, when the field
	// has a fixed or precomputed size. Variable-length fields (String,
	// Binary) return the size of their current value, not a column-wide
	// maximum.
	Length() uint32
}
