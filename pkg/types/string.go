package types

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"strings"

	"github.com/module/tdb/pkg/primitives"
)

// StringField represents the Mixed String kind: an arbitrary-length UTF-8
// string. Unlike a fixed-width column cell, a StringField carries no
// maximum size - short strings are packed inline by the cluster leaf that
// stores them, long strings spill to a separate blob node, but both cases
// serialize through the same encoding: a 4-byte big-endian length followed
// by the bytes.
type StringField struct {
	Value string
}

func NewStringField(value string) *StringField {
	return &StringField{Value: value}
}

func (s *StringField) Compare(op primitives.Predicate, other Field) (bool, error) {
	otherStringField, ok := other.(*StringField)
	if !ok {
		return false, nil
	}

	cmp := strings.Compare(s.Value, otherStringField.Value)

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
	case primitives.Like:
		return strings.Contains(s.Value, otherStringField.Value), nil
	default:
		return false, nil
	}
}

// Serialize writes a 4-byte big-endian length prefix followed by the raw
// UTF-8 bytes, with no padding.
func (s *StringField) Serialize(w io.Writer) error {
	lengthBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBytes, uint32(len(s.Value)))

	if _, err := w.Write(lengthBytes); err != nil {
		return err
	}
	_, err := w.Write([]byte(s.Value))
	return err
}

func (s *StringField) Type() Type {
	return StringType
}

func (s *StringField) String() string {
	return s.Value
}

func (s *StringField) Equals(other Field) bool {
	o, ok := other.(*StringField)
	if !ok {
		return false
	}
	return s.Value == o.Value
}

func (s *StringField) Hash() (primitives.HashCode, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.Value))
	return primitives.HashCode(h.Sum32()), nil
}

func (s *StringField) Length() uint32 {
	return uint32(4 + len(s.Value))
}
