// Package alloc implements the slab allocator (C1): shadow-paging refs
// carved out of a single backing file or in-memory buffer, with a
// version-tagged free list that reclaims space only once no pinned
// snapshot can still see it.
package alloc

import (
	"encoding/binary"

	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
)

// HeaderSize is the fixed leading region of the file: magic (4),
// format version (1), flags (1), reserved (2), two candidate top-refs (16),
// selector (1), reserved (7).
const HeaderSize = 32

// Magic identifies a file produced by this engine.
var Magic = [4]byte{'T', '-', 'D', 'B'}

// CurrentFormatVersion is the file-format version this build writes.
const CurrentFormatVersion byte = 1

// Flag bits stored in the header's single flags byte.
const (
	FlagEncrypted byte = 1 << 0
)

// Header is the in-memory view of the file's fixed 32-byte header. The two
// top-ref slots plus the selector bit are what make the snapshot pointer
// swap a single atomic byte write: one slot is always the previously-committed,
// validated state.
type Header struct {
	FormatVersion byte
	Flags         byte
	TopRefs       [2]primitives.Ref
	Selector      byte
}

// CurrentTopRef returns the top-ref the selector currently points at.
func (h *Header) CurrentTopRef() primitives.Ref {
	return h.TopRefs[h.Selector&1]
}

// OtherTopRef returns the non-selected slot, used for torn-write recovery.
func (h *Header) OtherTopRef() primitives.Ref {
	return h.TopRefs[(h.Selector+1)&1]
}

// CommitTopRef writes newTop into the non-selected slot and flips the
// selector. This is the single snapshot-pointer-swap step that readers
// observe atomically: every other allocator mutation up to this
// point is invisible until the selector flips.
func (h *Header) CommitTopRef(newTop primitives.Ref) {
	next := (h.Selector + 1) & 1
	h.TopRefs[next] = newTop
	h.Selector = next
}

// Encode serializes the header to its fixed 32-byte on-disk form.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	buf[4] = h.FormatVersion
	buf[5] = h.Flags
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.TopRefs[0]))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.TopRefs[1]))
	buf[24] = h.Selector
	return buf
}

// DecodeHeader parses the fixed 32-byte header, validating the magic and
// format version. Both top-ref slots are decoded as stored; neither slot's
// contents is validated here.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, dberr.New(dberr.InvalidDatabase, "file shorter than header")
	}
	if string(buf[0:4]) != string(Magic[:]) {
		return nil, dberr.New(dberr.InvalidDatabase, "bad magic")
	}
	h := &Header{
		FormatVersion: buf[4],
		Flags:         buf[5],
		Selector:      buf[24] & 1,
	}
	h.TopRefs[0] = primitives.Ref(binary.BigEndian.Uint64(buf[8:16]))
	h.TopRefs[1] = primitives.Ref(binary.BigEndian.Uint64(buf[16:24]))
	if h.FormatVersion > CurrentFormatVersion {
		return nil, dberr.New(dberr.InvalidDatabase, "unsupported file-format version")
	}
	return h, nil
}

// NewHeader builds the header for a freshly-created, empty file.
func NewHeader() *Header {
	return &Header{FormatVersion: CurrentFormatVersion}
}
