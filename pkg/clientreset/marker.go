package clientreset

import (
	"context"

	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/txn"
)

// Marker is the persisted "previous reset" record.
type Marker struct {
	Mode      Mode
	Timestamp int64 // unix nanoseconds
}

func readMarker(r *txn.ReadTxn) *Marker {
	mode, ts := r.Group().ResetMarker()
	if mode == byte(modeNone) {
		return nil
	}
	return &Marker{Mode: Mode(mode), Timestamp: ts}
}

// precheckCycle enforces the cycle guard: if a prior reset of an
// incompatible mode is recorded, fail to prevent cycles. A request to run
// the exact mode that is already on record is refused outright. A nil
// marker (no prior attempt) or a different recorded mode passes through.
func precheckCycle(marker *Marker, requested Mode) error {
	if marker != nil && marker.Mode == requested {
		return dberr.New(dberr.ClientResetFailed, "client reset: cycle detected, previous reset already used this mode").WithIdent(requested.String())
	}
	return nil
}

// recordMarker commits the pending-reset marker in its own write
// transaction, ahead of the rest of the reset, so it survives on disk even
// if a later step fails. A failure inside commit reverts to the previous
// snapshot atomically, but only for the transaction that actually fails -
// this one already committed.
func recordMarker(ctx context.Context, local *txn.DB, mode Mode, timestampUnixNano int64) error {
	w, err := local.BeginWrite(ctx)
	if err != nil {
		return err
	}
	w.Group().SetResetMarker(byte(mode), timestampUnixNano)
	return w.Commit()
}
