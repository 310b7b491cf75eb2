package types

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/module/tdb/pkg/primitives"
)

// TimestampField represents the Mixed Timestamp kind: seconds since the
// Unix epoch plus a nanosecond fraction, stored separately so that
// comparisons never lose precision to floating point.
type TimestampField struct {
	Seconds int64
	Nanos   int32
}

func NewTimestampField(seconds int64, nanos int32) *TimestampField {
	return &TimestampField{Seconds: seconds, Nanos: nanos}
}

// NewTimestampFieldFromTime builds a TimestampField from a time.Time.
func NewTimestampFieldFromTime(t time.Time) *TimestampField {
	return &TimestampField{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the field's value as a UTC time.Time.
func (t *TimestampField) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

func (t *TimestampField) Serialize(w io.Writer) error {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.Seconds))
	binary.BigEndian.PutUint32(buf[8:12], uint32(t.Nanos))
	_, err := w.Write(buf)
	return err
}

func (t *TimestampField) Compare(op primitives.Predicate, other Field) (bool, error) {
	o, ok := other.(*TimestampField)
	if !ok {
		return false, nil
	}

	cmp := 0
	switch {
	case t.Seconds != o.Seconds:
		if t.Seconds < o.Seconds {
			cmp = -1
		} else {
			cmp = 1
		}
	case t.Nanos != o.Nanos:
		if t.Nanos < o.Nanos {
			cmp = -1
		} else {
			cmp = 1
		}
	}

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

func (t *TimestampField) Type() Type {
	return TimestampType
}

func (t *TimestampField) String() string {
	return t.Time().Format(time.RFC3339Nano)
}

func (t *TimestampField) Equals(other Field) bool {
	o, ok := other.(*TimestampField)
	if !ok {
		return false
	}
	return t.Seconds == o.Seconds && t.Nanos == o.Nanos
}

func (t *TimestampField) Hash() (primitives.HashCode, error) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.Seconds))
	binary.BigEndian.PutUint32(buf[8:12], uint32(t.Nanos))
	return fnvHash(buf), nil
}

func (t *TimestampField) Length() uint32 {
	return 12
}
