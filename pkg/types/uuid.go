package types

import (
	"bytes"
	"io"

	"github.com/google/uuid"
	"github.com/module/tdb/pkg/primitives"
)

// UUIDField represents the Mixed UUID kind: a standard 128-bit UUID, parsed
// and formatted through github.com/google/uuid rather than a hand-rolled
// codec.
type UUIDField struct {
	Value uuid.UUID
}

// NewUUIDField wraps an existing uuid.UUID.
func NewUUIDField(v uuid.UUID) *UUIDField {
	return &UUIDField{Value: v}
}

// NewUUIDFieldFromBytes wraps a raw 16-byte value.
func NewUUIDFieldFromBytes(b [16]byte) *UUIDField {
	return &UUIDField{Value: uuid.UUID(b)}
}

// NewRandomUUIDField generates a fresh random (v4) UUID.
func NewRandomUUIDField() *UUIDField {
	return &UUIDField{Value: uuid.New()}
}

func (u *UUIDField) Serialize(w io.Writer) error {
	b, _ := u.Value.MarshalBinary()
	_, err := w.Write(b)
	return err
}

func (u *UUIDField) Compare(op primitives.Predicate, other Field) (bool, error) {
	o, ok := other.(*UUIDField)
	if !ok {
		return false, nil
	}
	cmp := bytes.Compare(u.Value[:], o.Value[:])
	switch op {
	case primitives.Equals:
		return cmp == 0, nil
	case primitives.LessThan:
		return cmp < 0, nil
	case primitives.GreaterThan:
		return cmp > 0, nil
	case primitives.LessThanOrEqual:
		return cmp <= 0, nil
	case primitives.GreaterThanOrEqual:
		return cmp >= 0, nil
	case primitives.NotEqual:
		return cmp != 0, nil
	default:
		return false, nil
	}
}

func (u *UUIDField) Type() Type { return UUIDType }

func (u *UUIDField) String() string { return u.Value.String() }

func (u *UUIDField) Equals(other Field) bool {
	o, ok := other.(*UUIDField)
	if !ok {
		return false
	}
	return u.Value == o.Value
}

func (u *UUIDField) Hash() (primitives.HashCode, error) {
	return fnvHash(u.Value[:]), nil
}

func (u *UUIDField) Length() uint32 { return 16 }
