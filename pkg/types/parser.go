package types

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/module/tdb/pkg/primitives"
)

// ParseField reads and parses a field from the given reader based on the
// specified field type. Collection types (List, Dictionary) and Null have
// no leaf encoding here - their payload lives in the node forest, not in a
// single Field.Serialize blob - so ParseField rejects them.
func ParseField(r io.Reader, fieldType Type) (Field, error) {
	switch fieldType {
	case IntType:
		return parseIntField(r)
	case StringType:
		return parseStringField(r)
	case BoolType:
		return parseBoolField(r)
	case FloatType:
		return parseFloatField(r)
	case DoubleType:
		return parseDoubleField(r)
	case BinaryType:
		return parseBinaryField(r)
	case TimestampType:
		return parseTimestampField(r)
	case ObjectIDType:
		return parseObjectIDField(r)
	case UUIDType:
		return parseUUIDField(r)
	case LinkType:
		return parseLinkField(r)
	case TypedLinkType:
		return parseTypedLinkField(r)
	case DecimalType:
		return parseDecimalField(r)
	case NullType:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unsupported field type: %v", fieldType)
	}
}

func parseLinkField(r io.Reader) (*LinkField, error) {
	bytes, err := readBytes(r, 8)
	if err != nil {
		return nil, err
	}
	return NewLinkField(primitives.ObjKey(binary.BigEndian.Uint64(bytes))), nil
}

func parseTypedLinkField(r io.Reader) (*TypedLinkField, error) {
	bytes, err := readBytes(r, 12)
	if err != nil {
		return nil, err
	}
	table := primitives.TableKey(binary.BigEndian.Uint32(bytes[0:4]))
	obj := primitives.ObjKey(binary.BigEndian.Uint64(bytes[4:12]))
	return NewTypedLinkField(primitives.ObjLink{Table: table, Obj: obj}), nil
}

func parseDecimalField(r io.Reader) (*DecimalField, error) {
	expBytes, err := readBytes(r, 4)
	if err != nil {
		return nil, err
	}
	signByte, err := readBytes(r, 1)
	if err != nil {
		return nil, err
	}
	lenBytes, err := readBytes(r, 4)
	if err != nil {
		return nil, err
	}
	raw, err := readBytes(r, binary.BigEndian.Uint32(lenBytes))
	if err != nil {
		return nil, err
	}
	unscaled := new(big.Int).SetBytes(raw)
	if signByte[0] != 0 {
		unscaled.Neg(unscaled)
	}
	return NewDecimalField(unscaled, int32(binary.BigEndian.Uint32(expBytes))), nil
}

func parseIntField(r io.Reader) (*IntField, error) {
	bytes, err := readBytes(r, 8)
	if err != nil {
		return nil, err
	}
	return NewIntField(int64(binary.BigEndian.Uint64(bytes))), nil
}

func parseStringField(r io.Reader) (*StringField, error) {
	lengthBytes, err := readBytes(r, 4)
	if err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes)

	strBytes, err := readBytes(r, length)
	if err != nil {
		return nil, err
	}
	return NewStringField(string(strBytes)), nil
}

func parseBoolField(r io.Reader) (*BoolField, error) {
	bytes, err := readBytes(r, 1)
	if err != nil {
		return nil, err
	}
	return NewBoolField(bytes[0] != 0), nil
}

func parseFloatField(r io.Reader) (*FloatField, error) {
	bytes, err := readBytes(r, 4)
	if err != nil {
		return nil, err
	}
	return NewFloatField(math.Float32frombits(binary.BigEndian.Uint32(bytes))), nil
}

func parseDoubleField(r io.Reader) (*DoubleField, error) {
	bytes, err := readBytes(r, 8)
	if err != nil {
		return nil, err
	}
	return NewDoubleField(math.Float64frombits(binary.BigEndian.Uint64(bytes))), nil
}

func parseBinaryField(r io.Reader) (*BinaryField, error) {
	lengthBytes, err := readBytes(r, 4)
	if err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes)

	data, err := readBytes(r, length)
	if err != nil {
		return nil, err
	}
	return NewBinaryField(data), nil
}

func parseTimestampField(r io.Reader) (*TimestampField, error) {
	bytes, err := readBytes(r, 12)
	if err != nil {
		return nil, err
	}
	seconds := int64(binary.BigEndian.Uint64(bytes[0:8]))
	nanos := int32(binary.BigEndian.Uint32(bytes[8:12]))
	return NewTimestampField(seconds, nanos), nil
}

func parseObjectIDField(r io.Reader) (*ObjectIDField, error) {
	bytes, err := readBytes(r, ObjectIDSize)
	if err != nil {
		return nil, err
	}
	var id [ObjectIDSize]byte
	copy(id[:], bytes)
	return &ObjectIDField{Value: id}, nil
}

func parseUUIDField(r io.Reader) (*UUIDField, error) {
	bytes, err := readBytes(r, 16)
	if err != nil {
		return nil, err
	}
	var id [16]byte
	copy(id[:], bytes)
	return NewUUIDFieldFromBytes(id), nil
}
