package primitives

import "fmt"

// Ref is the byte offset of a node header inside the backing file (or a
// sentinel for in-memory scratch nodes that have never been written). Refs
// are stable for the lifetime of the snapshot that produced them. Ref 0
// means "none". Refs are always 8-byte aligned; translate() rejects any ref
// that is not a multiple of RefAlignment.
type Ref uint64

// NullRef is the sentinel meaning "no ref".
const NullRef Ref = 0

// RefAlignment is the byte alignment every live ref must satisfy.
const RefAlignment = 8

// IsNull reports whether r is the null-ref sentinel.
func (r Ref) IsNull() bool {
	return r == NullRef
}

// IsAligned reports whether r satisfies the 8-byte alignment invariant.
// NullRef is considered aligned.
func (r Ref) IsAligned() bool {
	return r%RefAlignment == 0
}

func (r Ref) String() string {
	if r.IsNull() {
		return "Ref(null)"
	}
	return fmt.Sprintf("Ref(%#x)", uint64(r))
}

// RefOrTagged is a ref-or-tagged payload: a 63-bit payload plus a
// 1-bit tag. Tag=0 means the payload is a Ref; tag=1 means the payload is a
// small inline signed integer. It is the discriminated union used
// throughout the array (C2) and radix tree (C4) to avoid separate type
// fields alongside every slot.
//
// The zero value is an untagged NullRef: IsRef reports true, Ref returns
// NullRef, and Pack returns 0.
type RefOrTagged struct {
	tagged  bool
	payload int64 // valid range is [-(1<<62), (1<<62)-1] when tagged
	ref     Ref
}

// TaggedPayloadBits is the number of bits available to an inline integer
// payload once the tag bit is removed.
const TaggedPayloadBits = 63

// FromRef packs a ref into a RefOrTagged.
func FromRef(ref Ref) RefOrTagged {
	return RefOrTagged{tagged: false, ref: ref}
}

// FromInline packs a small signed integer into a RefOrTagged. The caller
// must ensure v fits in 63 bits signed (callers generating ObjKeys maintain
// this invariant at the source).
func FromInline(v int64) RefOrTagged {
	return RefOrTagged{tagged: true, payload: v}
}

// IsRef reports whether the payload is a ref (tag bit clear).
func (t RefOrTagged) IsRef() bool {
	return !t.tagged
}

// IsInline reports whether the payload is an inline integer (tag bit set).
func (t RefOrTagged) IsInline() bool {
	return t.tagged
}

// Ref returns the ref payload. Callers must check IsRef first.
func (t RefOrTagged) Ref() Ref {
	return t.ref
}

// Inline returns the inline integer payload. Callers must check IsInline
// first.
func (t RefOrTagged) Inline() int64 {
	return t.payload
}

// Pack encodes the RefOrTagged as a single uint64 the way it is stored in an
// array slot: bit 0 is the tag, the remaining 63 bits are the payload.
func (t RefOrTagged) Pack() uint64 {
	if t.tagged {
		return (uint64(t.payload) << 1) | 1
	}
	return uint64(t.ref) << 1
}

// Unpack decodes a raw array slot into a RefOrTagged.
func Unpack(raw uint64) RefOrTagged {
	if raw&1 == 1 {
		return RefOrTagged{tagged: true, payload: int64(raw) >> 1}
	}
	return RefOrTagged{tagged: false, ref: Ref(raw >> 1)}
}
