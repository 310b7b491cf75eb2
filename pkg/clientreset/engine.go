package clientreset

import (
	"context"
	"time"

	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/txn"
)

// Result reports what a reset actually did, for callers that log or
// surface reconciliation outcomes to an application - callers are expected
// to be able to tell recovery from a plain discard.
type Result struct {
	ModeUsed      Mode
	Downgraded    bool
	TablesCreated []string
	ColumnsAdded  []string
	RowsDeleted   int
	RowsCreated   int
	RowsUpdated   int
	Replayed      int
}

// Run executes client reset of local against remote in the requested mode.
// Manual is rejected immediately; RecoverOrDiscard attempts
// Recover and falls back to a clean DiscardLocal attempt if that attempt
// fails for any reason. The fallback passes through the same cycle guard,
// which admits it whenever the recorded marker is not DiscardLocal (a
// Recover attempt that got past step 1 has recorded Recover).
func Run(ctx context.Context, local, remote *txn.DB, mode Mode) (*Result, error) {
	if mode == Manual {
		return nil, dberr.New(dberr.ClientResetFailed, "client reset: Manual mode must be handled by the caller")
	}

	if mode == RecoverOrDiscard {
		result, err := attempt(ctx, local, remote, Recover)
		if err == nil {
			return result, nil
		}
		result, err = attempt(ctx, local, remote, DiscardLocal)
		if err != nil {
			return nil, err
		}
		result.Downgraded = true
		return result, nil
	}

	return attempt(ctx, local, remote, mode)
}

// attempt runs the full six-step algorithm for a single concrete mode
// (DiscardLocal or Recover).
func attempt(ctx context.Context, local, remote *txn.DB, mode Mode) (*Result, error) {
	// Step 1: precheck the pending-reset marker for a cycle, then record
	// this attempt before anything else happens.
	r, err := local.BeginRead()
	if err != nil {
		return nil, err
	}
	marker := readMarker(r)
	if cerr := r.Close(); cerr != nil {
		return nil, cerr
	}
	if err := precheckCycle(marker, mode); err != nil {
		return nil, err
	}

	rr, err := remote.BeginRead()
	if err != nil {
		return nil, err
	}
	defer rr.Close()
	remoteVersion := rr.Group().Version()

	if err := recordMarker(ctx, local, mode, time.Now().UnixNano()); err != nil {
		return nil, err
	}

	// Step 2: capture local changesets not yet known to remote, ahead of
	// any local mutation - Recover only, since DiscardLocal never replays.
	var recovered []group.Changeset
	if mode == Recover {
		lr, err := local.BeginRead()
		if err != nil {
			return nil, err
		}
		recovered, err = captureLocalChangesets(lr.Group(), remoteVersion)
		closeErr := lr.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, closeErr
		}
	}

	w, err := local.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	result := &Result{ModeUsed: mode}

	// Step 3: transfer schema. Recover permits local-only tables to
	// survive (additive drift); DiscardLocal does not.
	createdTables, addedColumns, err := transferSchema(w.Group(), rr.Group(), mode == Recover)
	if err != nil {
		w.Rollback()
		return nil, err
	}
	result.TablesCreated = createdTables
	result.ColumnsAdded = addedColumns

	// Step 4: transfer rows.
	set, err := buildTableIndex(w, rr)
	if err != nil {
		w.Rollback()
		return nil, err
	}
	if err := reconcileRowExistence(set, result); err != nil {
		w.Rollback()
		return nil, err
	}
	if err := copyRowValues(ctx, w.Group(), set, result); err != nil {
		w.Rollback()
		return nil, err
	}

	// Step 5: rewrite history, anchored on remote, replaying anything
	// captured in step 2.
	if err := rewriteHistory(w.Group(), rr.Group(), recovered); err != nil {
		w.Rollback()
		return nil, err
	}
	result.Replayed = len(recovered)

	// Step 6: commit.
	if err := w.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}
