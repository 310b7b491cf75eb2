package types

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/module/tdb/pkg/primitives"
)

// BinaryField represents the Mixed Binary kind: an opaque byte sequence.
type BinaryField struct {
	Value []byte
}

func NewBinaryField(value []byte) *BinaryField {
	return &BinaryField{Value: value}
}

func (b *BinaryField) Serialize(w io.Writer) error {
	if err := serializeUint32(w, uint32(len(b.Value))); err != nil {
		return err
	}
	_, err := w.Write(b.Value)
	return err
}

func (b *BinaryField) Compare(op primitives.Predicate, other Field) (bool, error) {
	o, ok := other.(*BinaryField)
	if !ok {
		return false, nil
	}
	cmp := bytes.Compare(b.Value, o.Value)

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

func (b *BinaryField) Type() Type {
	return BinaryType
}

func (b *BinaryField) String() string {
	return hex.EncodeToString(b.Value)
}

func (b *BinaryField) Equals(other Field) bool {
	o, ok := other.(*BinaryField)
	if !ok {
		return false
	}
	return bytes.Equal(b.Value, o.Value)
}

func (b *BinaryField) Hash() (primitives.HashCode, error) {
	return fnvHash(b.Value), nil
}

func (b *BinaryField) Length() uint32 {
	return uint32(4 + len(b.Value))
}
