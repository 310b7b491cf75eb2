// Package group implements the schema registry and top array (C6): the
// group's named tables, file-format version, history pointer, and
// top-of-snapshot pointer.
package group

import (
	"github.com/module/tdb/pkg/alloc"
	"github.com/module/tdb/pkg/array"
	"github.com/module/tdb/pkg/primitives"
)

// topSlot enumerates the fixed positions of the group's top array. The
// mandatory slots are table-names, table-refs, and logical-file-size; the
// rest are optional: free-positions, free-sizes, free-versions,
// current-version, history-type, history-ref, history-schema-version,
// sync-file-ident, evacuation-point. A freshly-written snapshot leaves every
// optional slot at its zero value, which is indistinguishable from absent.
const (
	slotTableNames topSlot = iota
	slotTableRefs
	slotLogicalFileSize
	slotFreePositions
	slotFreeSizes
	slotFreeVersions
	slotCurrentVersion
	slotHistoryType
	slotHistoryRef
	slotHistorySchemaVersion
	slotSyncFileIdent
	slotEvacuationPoint
	slotResetMode
	slotResetTimestamp
	slotSubscriptionGeneration
	topArraySlotCount
)

type topSlot int

// TopArray is the decoded, in-memory view of the group's persisted top
// array. Group mutates this directly and re-serializes it on every commit.
type TopArray struct {
	TableNames []primitives.Ref // one blob ref per table, parallel to TableRefs
	TableRefs  []primitives.Ref // one packed persistedEntry ref per table

	LogicalFileSize int64

	FreePositions []uint64
	FreeSizes     []uint64
	FreeVersions  []uint64

	CurrentVersion primitives.Version

	HistoryType          byte
	HistoryRef           primitives.Ref
	HistorySchemaVersion uint64

	SyncFileIdent primitives.FileID

	EvacuationPoint uint64

	// ResetMode and ResetTimestamp record the pending-reset marker: the
	// mode of the most recently attempted client reset and when
	// it was recorded, kept regardless of whether that reset went on to
	// succeed so a later attempt's precheck can see it. ResetMode is 0
	// ("none recorded") or one of the clientreset.Mode byte encodings.
	ResetMode      byte
	ResetTimestamp int64

	// SubscriptionGeneration is bumped by client reset's history-rewrite
	// step when superseding the active flexible-sync subscription set; it
	// has no other writer.
	SubscriptionGeneration uint64
}

// Load decodes the top array rooted at ref. A null ref yields an empty,
// history-less TopArray (the state of a freshly-created file).
func Load(a *alloc.Allocator, ref primitives.Ref) (*TopArray, error) {
	t := &TopArray{}
	if ref.IsNull() {
		return t, nil
	}
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	get := func(slot topSlot) uint64 {
		if int(slot) >= arr.Size() {
			return 0
		}
		v, _ := arr.Get(int(slot))
		return v
	}

	namesRef := primitives.Ref(get(slotTableNames))
	refsRef := primitives.Ref(get(slotTableRefs))
	t.TableNames, err = readRefArray(a, namesRef, countOf(a, namesRef))
	if err != nil {
		return nil, err
	}
	t.TableRefs, err = readRefArray(a, refsRef, countOf(a, refsRef))
	if err != nil {
		return nil, err
	}

	t.LogicalFileSize = int64(get(slotLogicalFileSize))
	t.FreePositions, err = readUint64Array(a, primitives.Ref(get(slotFreePositions)))
	if err != nil {
		return nil, err
	}
	t.FreeSizes, err = readUint64Array(a, primitives.Ref(get(slotFreeSizes)))
	if err != nil {
		return nil, err
	}
	t.FreeVersions, err = readUint64Array(a, primitives.Ref(get(slotFreeVersions)))
	if err != nil {
		return nil, err
	}
	t.CurrentVersion = primitives.Version(get(slotCurrentVersion))
	t.HistoryType = byte(get(slotHistoryType))
	t.HistoryRef = primitives.Ref(get(slotHistoryRef))
	t.HistorySchemaVersion = get(slotHistorySchemaVersion)
	t.SyncFileIdent = primitives.FileID(get(slotSyncFileIdent))
	t.EvacuationPoint = get(slotEvacuationPoint)
	t.ResetMode = byte(get(slotResetMode))
	t.ResetTimestamp = int64(get(slotResetTimestamp))
	t.SubscriptionGeneration = get(slotSubscriptionGeneration)
	return t, nil
}

// countOf returns the element count of the array node at ref, or 0 for a
// null ref.
func countOf(a *alloc.Allocator, ref primitives.Ref) int {
	if ref.IsNull() {
		return 0
	}
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return 0
	}
	return arr.Size()
}

func writeUint64Array(a *alloc.Allocator, version primitives.Version, vals []uint64) (primitives.Ref, error) {
	if len(vals) == 0 {
		return primitives.NullRef, nil
	}
	arr, err := array.Create(a, array.Width64, len(vals), 0, false, alloc.NodeTypeArray, version)
	if err != nil {
		return 0, err
	}
	for i, v := range vals {
		if err := arr.Set(i, v); err != nil {
			return 0, err
		}
	}
	return arr.CopyOnWrite(version)
}

func readUint64Array(a *alloc.Allocator, ref primitives.Ref) ([]uint64, error) {
	if ref.IsNull() {
		return nil, nil
	}
	arr, err := array.InitFromRef(a, ref)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, arr.Size())
	for i := range out {
		v, err := arr.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Persist serializes the top array to a fresh node and returns its ref.
func (t *TopArray) Persist(a *alloc.Allocator, version primitives.Version) (primitives.Ref, error) {
	namesRef, err := refArray(a, version, t.TableNames)
	if err != nil {
		return 0, err
	}
	refsRef, err := refArray(a, version, t.TableRefs)
	if err != nil {
		return 0, err
	}
	freePosRef, err := writeUint64Array(a, version, t.FreePositions)
	if err != nil {
		return 0, err
	}
	freeSizeRef, err := writeUint64Array(a, version, t.FreeSizes)
	if err != nil {
		return 0, err
	}
	freeVerRef, err := writeUint64Array(a, version, t.FreeVersions)
	if err != nil {
		return 0, err
	}

	arr, err := array.Create(a, array.Width64, int(topArraySlotCount), 0, false, alloc.NodeTypeCluster, version)
	if err != nil {
		return 0, err
	}
	set := func(slot topSlot, v uint64) error { return arr.Set(int(slot), v) }
	if err := set(slotTableNames, uint64(namesRef)); err != nil {
		return 0, err
	}
	if err := set(slotTableRefs, uint64(refsRef)); err != nil {
		return 0, err
	}
	if err := set(slotLogicalFileSize, uint64(t.LogicalFileSize)); err != nil {
		return 0, err
	}
	if err := set(slotFreePositions, uint64(freePosRef)); err != nil {
		return 0, err
	}
	if err := set(slotFreeSizes, uint64(freeSizeRef)); err != nil {
		return 0, err
	}
	if err := set(slotFreeVersions, uint64(freeVerRef)); err != nil {
		return 0, err
	}
	if err := set(slotCurrentVersion, uint64(t.CurrentVersion)); err != nil {
		return 0, err
	}
	if err := set(slotHistoryType, uint64(t.HistoryType)); err != nil {
		return 0, err
	}
	if err := set(slotHistoryRef, uint64(t.HistoryRef)); err != nil {
		return 0, err
	}
	if err := set(slotHistorySchemaVersion, t.HistorySchemaVersion); err != nil {
		return 0, err
	}
	if err := set(slotSyncFileIdent, uint64(t.SyncFileIdent)); err != nil {
		return 0, err
	}
	if err := set(slotEvacuationPoint, t.EvacuationPoint); err != nil {
		return 0, err
	}
	if err := set(slotResetMode, uint64(t.ResetMode)); err != nil {
		return 0, err
	}
	if err := set(slotResetTimestamp, uint64(t.ResetTimestamp)); err != nil {
		return 0, err
	}
	if err := set(slotSubscriptionGeneration, t.SubscriptionGeneration); err != nil {
		return 0, err
	}
	return arr.CopyOnWrite(version)
}
