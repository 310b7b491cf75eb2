package alloc

import "encoding/binary"

// NodeHeaderSize is the fixed prefix every node carries ahead of its
// payload: size (4), width bits (1), type code (1), flags (1), reserved (1).
const NodeHeaderSize = 8

// Node type codes, stored in the header so a generic translate() can tell
// what it is looking at without a side table.
const (
	NodeTypeArray byte = iota
	NodeTypeRadix
	NodeTypeCluster
	NodeTypeBlob
	NodeTypeBTreeInterior
)

// Node header flag bits.
const (
	// NodeFlagIndexNode is the single context-flag bit on a node header:
	// set on search-index interior nodes (whose ref slots must be followed
	// recursively by destroy_deep), clear on column/array data nodes
	// (whose children, if any, are owned a different way).
	NodeFlagIndexNode byte = 1 << 0
)

// NodeHeader is the decoded form of a node's fixed 8-byte prefix.
type NodeHeader struct {
	SizeBytes uint32 // total node size, header included
	WidthBits byte   // one of array.Width* - opaque to this package
	TypeCode  byte
	Flags     byte
}

// IsIndexNode reports whether the context flag marks this as a search-index
// interior node.
func (h NodeHeader) IsIndexNode() bool {
	return h.Flags&NodeFlagIndexNode != 0
}

// Encode serializes the header into its fixed 8-byte form.
func (h NodeHeader) Encode() []byte {
	buf := make([]byte, NodeHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.SizeBytes)
	buf[4] = h.WidthBits
	buf[5] = h.TypeCode
	buf[6] = h.Flags
	return buf
}

// DecodeNodeHeader parses the fixed 8-byte header prefix.
func DecodeNodeHeader(buf []byte) NodeHeader {
	return NodeHeader{
		SizeBytes: binary.BigEndian.Uint32(buf[0:4]),
		WidthBits: buf[4],
		TypeCode:  buf[5],
		Flags:     buf[6],
	}
}
