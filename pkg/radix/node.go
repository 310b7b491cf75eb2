package radix

import (
	"math/bits"

	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/primitives"
)

// Fixed metadata slot indices for a node's layout: two population
// bitmaps, a prefix-size/payload pair, and a nulls slot, followed by the
// children area.
const (
	slotPop0     = 0
	slotPop1     = 1
	slotPrefixLn = 2
	slotPrefix   = 3
	slotNulls    = 4
	metadataSlots = 5
)

// popSplit is the chunk-index boundary between the pop0 and pop1 words.
// This implementation keeps a two-word shape with a plain 32/32 split of the 64
// ChunkWidth=6 chunk values; see DESIGN.md for why the literal tagged-int
// detail was not carried over (it was an artifact of the source's array
// element representation, not a functional requirement).
const popSplit = 32

// objNode is the decoded accessor for one radix-tree node.
type objNode struct {
	arr *array.Array
}

func newNode(a *alloc.Allocator, version primitives.Version) (*objNode, error) {
	arr, err := array.Create(a, array.Width64, metadataSlots, 0, true, alloc.NodeTypeRadix, version)
	if err != nil {
		return nil, err
	}
	return &objNode{arr: arr}, nil
}

func loadNode(a *alloc.Allocator, ref primitives.Ref) (*objNode, error) {
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	return &objNode{arr: arr}, nil
}

func (n *objNode) pop0() uint64 { v, _ := n.arr.Get(slotPop0); return v }
func (n *objNode) pop1() uint64 { v, _ := n.arr.Get(slotPop1); return v }

func (n *objNode) setPop0(v uint64) error { return n.arr.Set(slotPop0, v) }
func (n *objNode) setPop1(v uint64) error { return n.arr.Set(slotPop1, v) }

// hasChunk reports whether chunk value c has a populated child slot.
func (n *objNode) hasChunk(c int) bool {
	if c < popSplit {
		return n.pop0()&(uint64(1)<<uint(c)) != 0
	}
	return n.pop1()&(uint64(1)<<uint(c-popSplit)) != 0
}

// childSlotIndex returns the array index within the children area for a
// populated chunk c, computed by popcount-prefix.
func (n *objNode) childSlotIndex(c int) int {
	if c < popSplit {
		below := n.pop0() & (uint64(1)<<uint(c) - 1)
		return bits.OnesCount64(below)
	}
	belowInPop1 := n.pop1() & (uint64(1)<<uint(c-popSplit) - 1)
	return bits.OnesCount64(n.pop0()) + bits.OnesCount64(belowInPop1)
}

func (n *objNode) childCount() int {
	return bits.OnesCount64(n.pop0()) + bits.OnesCount64(n.pop1())
}

// Size implements P6: size == metadata_slots + popcount(pop0) + popcount(pop1).
func (n *objNode) Size() int {
	return metadataSlots + n.childCount()
}

// IsEmpty implements P6's other half.
func (n *objNode) IsEmpty() bool {
	return n.pop0() == 0 && n.pop1() == 0 && n.nullsRaw() == 0
}

func (n *objNode) setChunkBit(c int, v bool) error {
	if c < popSplit {
		p := n.pop0()
		if v {
			p |= uint64(1) << uint(c)
		} else {
			p &^= uint64(1) << uint(c)
		}
		return n.setPop0(p)
	}
	p := n.pop1()
	if v {
		p |= uint64(1) << uint(c-popSplit)
	} else {
		p &^= uint64(1) << uint(c-popSplit)
	}
	return n.setPop1(p)
}

func (n *objNode) getChild(c int) (primitives.RefOrTagged, bool) {
	if !n.hasChunk(c) {
		return primitives.RefOrTagged{}, false
	}
	raw, _ := n.arr.Get(metadataSlots + n.childSlotIndex(c))
	return primitives.Unpack(raw), true
}

func (n *objNode) insertChild(c int, rt primitives.RefOrTagged) error {
	idx := metadataSlots + n.childSlotIndex(c)
	if err := n.arr.Insert(idx, rt.Pack()); err != nil {
		return err
	}
	return n.setChunkBit(c, true)
}

func (n *objNode) setChild(c int, rt primitives.RefOrTagged) error {
	idx := metadataSlots + n.childSlotIndex(c)
	return n.arr.Set(idx, rt.Pack())
}

func (n *objNode) removeChild(c int) error {
	idx := metadataSlots + n.childSlotIndex(c)
	if err := n.arr.Erase(idx); err != nil {
		return err
	}
	return n.setChunkBit(c, false)
}

// prefixLen/prefix: shared-chunk path every descendant matches.
func (n *objNode) prefixLen() int {
	v, _ := n.arr.Get(slotPrefixLn)
	return int(v)
}

func (n *objNode) setPrefixLen(v int) error {
	return n.arr.Set(slotPrefixLn, uint64(v))
}

// prefixChunks returns the prefix's chunk values (each 0..ChunkCount-1).
func (n *objNode) prefixChunks(a *alloc.Allocator) ([]int, error) {
	plen := n.prefixLen()
	if plen == 0 {
		return nil, nil
	}
	raw, _ := n.arr.Get(slotPrefix)
	rt := primitives.Unpack(raw)
	var key []byte
	if rt.IsInline() {
		key = inlineToBytes(uint64(rt.Inline()), plen)
	} else {
		overflow, err := array.InitFromRef(a, rt.Ref())
		if err != nil {
			return nil, err
		}
		key = arrayToBytes(overflow)
	}
	chunks := make([]int, plen)
	for i := 0; i < plen; i++ {
		chunks[i] = chunkAt(key, i)
	}
	return chunks, nil
}

// setPrefixChunks stores prefixChunks chunk values as the node's prefix,
// inline when their packed bytes fit the 63-bit tagged payload, else
// spilled to an overflow array node:
// an inline packed value for short prefixes or a ref to a packed list for
// long ones.
func (n *objNode) setPrefixChunks(a *alloc.Allocator, chunks []int, version primitives.Version) error {
	if err := n.setPrefixLen(len(chunks)); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return n.arr.Set(slotPrefix, primitives.FromInline(0).Pack())
	}
	key := chunksToBytes(chunks)
	if len(key)*8 < primitives.TaggedPayloadBits {
		return n.arr.Set(slotPrefix, primitives.FromInline(int64(bytesToInline(key))).Pack())
	}
	overflow, err := array.Create(a, array.Width8, len(key), 0, false, alloc.NodeTypeBlob, version)
	if err != nil {
		return err
	}
	for i, b := range key {
		_ = overflow.Set(i, uint64(b))
	}
	ref, err := overflow.CopyOnWrite(version)
	if err != nil {
		return err
	}
	return n.arr.Set(slotPrefix, primitives.FromRef(ref).Pack())
}

func (n *objNode) nullsRaw() uint64 {
	v, _ := n.arr.Get(slotNulls)
	return v
}

func (n *objNode) nulls() primitives.RefOrTagged {
	return primitives.Unpack(n.nullsRaw())
}

func (n *objNode) setNulls(rt primitives.RefOrTagged) error {
	return n.arr.Set(slotNulls, rt.Pack())
}

func inlineToBytes(v uint64, chunks int) []byte {
	bitLen := chunks * ChunkWidth
	byteLen := (bitLen + 7) / 8
	b := make([]byte, byteLen)
	val := v
	for i := byteLen - 1; i >= 0; i-- {
		b[i] = byte(val)
		val >>= 8
	}
	return b
}

func bytesToInline(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func chunksToBytes(chunks []int) []byte {
	bitLen := len(chunks) * ChunkWidth
	byteLen := (bitLen + 7) / 8
	b := make([]byte, byteLen)
	bitPos := 0
	for _, c := range chunks {
		for k := ChunkWidth - 1; k >= 0; k-- {
			bit := (c >> uint(k)) & 1
			if bit != 0 {
				b[bitPos/8] |= byte(1) << uint(7-bitPos%8)
			}
			bitPos++
		}
	}
	return b
}

func arrayToBytes(a *array.Array) []byte {
	b := make([]byte, a.Size())
	for i := 0; i < a.Size(); i++ {
		v, _ := a.Get(i)
		b[i] = byte(v)
	}
	return b
}
