package types

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sync/atomic"
	"time"

	"github.com/module/tdb/pkg/primitives"
)

// ObjectIDSize is the encoded width of an ObjectID: a 4-byte timestamp, a
// 5-byte random machine/process identifier, and a 3-byte counter, matching
// the classic 12-byte ObjectID layout.
const ObjectIDSize = 12

var objectIDCounter uint32
var objectIDMachine = randomMachineID()

func randomMachineID() [5]byte {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return b
}

// ObjectIDField represents the Mixed ObjectID kind: a 12-byte identifier
// combining a creation timestamp with a random+counter suffix, so that
// values generated across independent processes stay ordered without a
// central sequence.
type ObjectIDField struct {
	Value [ObjectIDSize]byte
}

// NewObjectID generates a fresh ObjectID stamped with the current time.
func NewObjectID() *ObjectIDField {
	var buf [ObjectIDSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(time.Now().Unix()))
	copy(buf[4:9], objectIDMachine[:])
	c := atomic.AddUint32(&objectIDCounter, 1) & 0x00FFFFFF
	buf[9] = byte(c >> 16)
	buf[10] = byte(c >> 8)
	buf[11] = byte(c)
	return &ObjectIDField{Value: buf}
}

// NewObjectIDFromBytes wraps an existing 12-byte value.
func NewObjectIDFromBytes(b [ObjectIDSize]byte) *ObjectIDField {
	return &ObjectIDField{Value: b}
}

func (o *ObjectIDField) Serialize(w io.Writer) error {
	_, err := w.Write(o.Value[:])
	return err
}

func (o *ObjectIDField) Compare(op primitives.Predicate, other Field) (bool, error) {
	oth, ok := other.(*ObjectIDField)
	if !ok {
		return false, nil
	}
	cmp := 0
	switch {
	case o.Value == oth.Value:
		cmp = 0
	default:
		for i := range o.Value {
			if o.Value[i] != oth.Value[i] {
				if o.Value[i] < oth.Value[i] {
					cmp = -1
				} else {
					cmp = 1
				}
				break
			}
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

func (o *ObjectIDField) Type() Type { return ObjectIDType }

func (o *ObjectIDField) String() string {
	return hex.EncodeToString(o.Value[:])
}

func (o *ObjectIDField) Equals(other Field) bool {
	oth, ok := other.(*ObjectIDField)
	if !ok {
		return false
	}
	return o.Value == oth.Value
}

func (o *ObjectIDField) Hash() (primitives.HashCode, error) {
	return fnvHash(o.Value[:]), nil
}

func (o *ObjectIDField) Length() uint32 { return ObjectIDSize }
