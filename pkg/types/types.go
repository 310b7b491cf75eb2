package types

// Type identifies the runtime kind of a single Mixed value, mirroring the
// closed set of storage kinds a column (and therefore a Mixed) can hold.
// Collection kinds (List, Dictionary) never appear as the type of a leaf
// Mixed value stored in a row; they mark the column itself and are resolved
// one level up, in the cluster's collection accessor.
type Type int

const (
	NullType Type = iota
	BoolType
	IntType
	FloatType
	DoubleType
	DecimalType
	StringType
	BinaryType
	TimestampType
	ObjectIDType
	UUIDType
	LinkType
	TypedLinkType
	ListType
	DictionaryType
)

// String returns a string representation of the type.
func (t Type) String() string {
	switch t {
	case NullType:
		return "NULL"
	case BoolType:
		return "BOOL"
	case IntType:
		return "INT"
	case FloatType:
		return "FLOAT"
	case DoubleType:
		return "DOUBLE"
	case DecimalType:
		return "DECIMAL128"
	case StringType:
		return "STRING"
	case BinaryType:
		return "BINARY"
	case TimestampType:
		return "TIMESTAMP"
	case ObjectIDType:
		return "OBJECT_ID"
	case UUIDType:
		return "UUID"
	case LinkType:
		return "LINK"
	case TypedLinkType:
		return "TYPED_LINK"
	case ListType:
		return "LIST"
	case DictionaryType:
		return "DICTIONARY"
	default:
		return "UNKNOWN_TYPE"
	}
}

// IsNumeric reports whether the type is a numeric kind (Int, Float, Double,
// Decimal). Cross-type numeric comparison covers Int, Float and Double; a
// Decimal compares only with another Decimal.
func (t Type) IsNumeric() bool {
	switch t {
	case IntType, FloatType, DoubleType, DecimalType:
		return true
	default:
		return false
	}
}

// IsCollection reports whether the type is a column-level collection marker
// rather than a leaf value.
func (t Type) IsCollection() bool {
	return t == ListType || t == DictionaryType
}
