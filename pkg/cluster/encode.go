package cluster

import (
	"bytes"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/types"
)

// colFieldType maps a column's storage ColType to the types.Type its cells
// serialize as. A Mixed-typed column carries no single answer here - its
// cells are self-describing, see encodeValue/decodeValue below.
func colFieldType(col primitives.ColKey) types.Type {
	switch col.Type() {
	case primitives.ColTypeInt:
		return types.IntType
	case primitives.ColTypeBool:
		return types.BoolType
	case primitives.ColTypeFloat:
		return types.FloatType
	case primitives.ColTypeDouble:
		return types.DoubleType
	case primitives.ColTypeString:
		return types.StringType
	case primitives.ColTypeBinary:
		return types.BinaryType
	case primitives.ColTypeTimestamp:
		return types.TimestampType
	case primitives.ColTypeDecimal:
		return types.DecimalType
	case primitives.ColTypeObjectID:
		return types.ObjectIDType
	case primitives.ColTypeUUID:
		return types.UUIDType
	case primitives.ColTypeLink:
		return types.LinkType
	default:
		return types.NullType
	}
}

// encodeValue serializes v into a small blob array node and returns its ref,
// the column-leaf storage format. List/dictionary columns are the
// exception: their cell already is a ref to a collection node, carried
// through unchanged as a list- or dictionary-placeholder.
func encodeValue(a *alloc.Allocator, version primitives.Version, v types.Mixed, col primitives.ColKey) (primitives.Ref, error) {
	if col.IsCollection() {
		if p, ok := v.(*types.CollectionPlaceholder); ok {
			return p.Ref, nil
		}
		return primitives.NullRef, nil
	}
	if types.IsNull(v) {
		return primitives.NullRef, nil
	}

	var buf bytes.Buffer
	if col.Type() == primitives.ColTypeMixed {
		buf.WriteByte(byte(v.Type()))
	}
	if err := v.Serialize(&buf); err != nil {
		return 0, dberr.Wrap(err, dberr.LogicError, "cluster: serialize cell")
	}
	data := buf.Bytes()

	arr, err := array.Create(a, array.Width8, len(data), 0, false, alloc.NodeTypeBlob, version)
	if err != nil {
		return 0, err
	}
	for i, b := range data {
		if err := arr.Set(i, uint64(b)); err != nil {
			return 0, err
		}
	}
	return arr.CopyOnWrite(version)
}

// decodeValue is encodeValue's inverse.
func decodeValue(a *alloc.Allocator, ref primitives.Ref, col primitives.ColKey) (types.Mixed, error) {
	if col.IsCollection() {
		if col.IsDictionary() {
			return types.NewDictionaryPlaceholder(ref), nil
		}
		return types.NewListPlaceholder(ref), nil
	}
	if ref.IsNull() {
		return types.Null(), nil
	}

	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	data := make([]byte, arr.Size())
	for i := range data {
		v, err := arr.Get(i)
		if err != nil {
			return nil, err
		}
		data[i] = byte(v)
	}

	r := bytes.NewReader(data)
	fieldType := colFieldType(col)
	if col.Type() == primitives.ColTypeMixed {
		if len(data) == 0 {
			return types.Null(), nil
		}
		fieldType = types.Type(data[0])
		r = bytes.NewReader(data[1:])
	}
	if fieldType == types.NullType {
		return types.Null(), nil
	}
	return types.ParseField(r, fieldType)
}
