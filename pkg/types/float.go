package types

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/module/tdb/pkg/primitives"
)

const epsilon = 1e-9

// FloatField represents the Mixed Float kind: a 32-bit IEEE-754 value.
type FloatField struct {
	Value float32
}

func NewFloatField(value float32) *FloatField {
	return &FloatField{Value: value}
}

func (f *FloatField) Serialize(w io.Writer) error {
	return serializeUint32(w, math.Float32bits(f.Value))
}

func (f *FloatField) Compare(op primitives.Predicate, other Field) (bool, error) {
	switch o := other.(type) {
	case *FloatField:
		return compareFloat64(float64(f.Value), float64(o.Value), op)
	case *DoubleField:
		return compareFloat64(float64(f.Value), o.Value, op)
	case *IntField:
		return compareFloat64(float64(f.Value), float64(o.Value), op)
	default:
		return false, fmt.Errorf("cannot compare FloatField with %T", other)
	}
}

func (f *FloatField) Type() Type {
	return FloatType
}

func (f *FloatField) String() string {
	return strconv.FormatFloat(float64(f.Value), 'f', -1, 32)
}

func (f *FloatField) Equals(other Field) bool {
	o, ok := other.(*FloatField)
	if !ok {
		return false
	}
	return math.Abs(float64(f.Value-o.Value)) < epsilon
}

func (f *FloatField) Hash() (primitives.HashCode, error) {
	return fnvHash(toBytes32(math.Float32bits(f.Value))), nil
}

func (f *FloatField) Length() uint32 {
	return 4
}

// DoubleField represents the Mixed Double kind: a 64-bit IEEE-754 value.
type DoubleField struct {
	Value float64
}

func NewDoubleField(value float64) *DoubleField {
	return &DoubleField{Value: value}
}

func (f *DoubleField) Serialize(w io.Writer) error {
	return serializeUint64(w, math.Float64bits(f.Value))
}

func (f *DoubleField) Compare(op primitives.Predicate, other Field) (bool, error) {
	switch o := other.(type) {
	case *DoubleField:
		return compareFloat64(f.Value, o.Value, op)
	case *FloatField:
		return compareFloat64(f.Value, float64(o.Value), op)
	case *IntField:
		return compareFloat64(f.Value, float64(o.Value), op)
	default:
		return false, fmt.Errorf("cannot compare DoubleField with %T", other)
	}
}

func compareFloat64(a, b float64, op primitives.Predicate) (bool, error) {
	switch op {
	case primitives.Equals:
		return math.Abs(a-b) < epsilon, nil
	case primitives.LessThan:
		return a < b, nil
	case primitives.GreaterThan:
		return a > b, nil
	case primitives.LessThanOrEqual:
		return a <= b, nil
	case primitives.GreaterThanOrEqual:
		return a >= b, nil
	case primitives.NotEqual:
		return math.Abs(a-b) >= epsilon, nil
	default:
		return false, fmt.Errorf("unsupported predicate for float comparison: %v", op)
	}
}

func (f *DoubleField) Type() Type {
	return DoubleType
}

func (f *DoubleField) String() string {
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

func (f *DoubleField) Equals(other Field) bool {
	o, ok := other.(*DoubleField)
	if !ok {
		return false
	}
	return math.Abs(f.Value-o.Value) < epsilon
}

func (f *DoubleField) Hash() (primitives.HashCode, error) {
	return fnvHash(toBytes64(math.Float64bits(f.Value))), nil
}

func (f *DoubleField) Length() uint32 {
	return 8
}
