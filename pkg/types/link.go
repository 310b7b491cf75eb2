package types

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/module/tdb/pkg/primitives"
)

// LinkField represents the Mixed Link kind: a strong reference to a row in
// a column's single, statically-known target table. Only the ObjKey travels
// in the value - the target table is fixed by the column's schema, not by
// the field.
type LinkField struct {
	Target primitives.ObjKey
}

func NewLinkField(target primitives.ObjKey) *LinkField {
	return &LinkField{Target: target}
}

func (l *LinkField) Serialize(w io.Writer) error {
	return serializeUint64(w, uint64(l.Target))
}

func (l *LinkField) Compare(op primitives.Predicate, other Field) (bool, error) {
	o, ok := other.(*LinkField)
	if !ok {
		return false, fmt.Errorf("cannot compare LinkField with %T", other)
	}
	switch op {
	case primitives.Equals:
		return l.Target == o.Target, nil
	case primitives.NotEqual:
		return l.Target != o.Target, nil
	default:
		return false, fmt.Errorf("unsupported predicate for LinkField: %v", op)
	}
}

func (l *LinkField) Type() Type { return LinkType }

func (l *LinkField) String() string { return l.Target.String() }

func (l *LinkField) Equals(other Field) bool {
	o, ok := other.(*LinkField)
	if !ok {
		return false
	}
	return l.Target == o.Target
}

func (l *LinkField) Hash() (primitives.HashCode, error) {
	return fnvHash(toBytes64(uint64(l.Target))), nil
}

func (l *LinkField) Length() uint32 { return 8 }

// TypedLinkField represents the Mixed TypedLink kind: a strong reference
// whose target table varies per value, used by Mixed-typed columns and by
// backlink enumeration where the origin column is not statically known.
type TypedLinkField struct {
	Link primitives.ObjLink
}

func NewTypedLinkField(link primitives.ObjLink) *TypedLinkField {
	return &TypedLinkField{Link: link}
}

func (l *TypedLinkField) Serialize(w io.Writer) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(l.Link.Table))
	binary.BigEndian.PutUint64(buf[4:12], uint64(l.Link.Obj))
	_, err := w.Write(buf)
	return err
}

func (l *TypedLinkField) Compare(op primitives.Predicate, other Field) (bool, error) {
	o, ok := other.(*TypedLinkField)
	if !ok {
		return false, fmt.Errorf("cannot compare TypedLinkField with %T", other)
	}
	eq := l.Link.Table == o.Link.Table && l.Link.Obj == o.Link.Obj
	switch op {
	case primitives.Equals:
		return eq, nil
	case primitives.NotEqual:
		return !eq, nil
	default:
		return false, fmt.Errorf("unsupported predicate for TypedLinkField: %v", op)
	}
}

func (l *TypedLinkField) Type() Type { return TypedLinkType }

func (l *TypedLinkField) String() string { return l.Link.String() }

func (l *TypedLinkField) Equals(other Field) bool {
	o, ok := other.(*TypedLinkField)
	if !ok {
		return false
	}
	return l.Link.Table == o.Link.Table && l.Link.Obj == o.Link.Obj
}

func (l *TypedLinkField) Hash() (primitives.HashCode, error) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(l.Link.Table))
	binary.BigEndian.PutUint64(buf[4:12], uint64(l.Link.Obj))
	return fnvHash(buf), nil
}

func (l *TypedLinkField) Length() uint32 { return 12 }

// NullField represents the Mixed Null kind. It compares equal only to
// another NullField; every relational predicate against it is false except
// (Not)Equal, matching SQL-style null semantics at the Field level (Mixed
// callers apply any three-valued-logic promotion above this layer).
type NullField struct{}

var nullField = &NullField{}

// Null returns the shared NullField instance.
func Null() *NullField { return nullField }

func (n *NullField) Serialize(w io.Writer) error { return nil }

func (n *NullField) Compare(op primitives.Predicate, other Field) (bool, error) {
	_, isNull := other.(*NullField)
	switch op {
	case primitives.Equals:
		return isNull, nil
	case primitives.NotEqual:
		return !isNull, nil
	default:
		return false, nil
	}
}

func (n *NullField) Type() Type { return NullType }

func (n *NullField) String() string { return "null" }

func (n *NullField) Equals(other Field) bool {
	_, ok := other.(*NullField)
	return ok
}

func (n *NullField) Hash() (primitives.HashCode, error) { return 0, nil }

func (n *NullField) Length() uint32 { return 0 }
