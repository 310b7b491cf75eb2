package clientreset

import (
	"github.com/module/tdb/pkg/group"
)

// rewriteHistory discards the local synchronization history and replaces
// it with one anchored on the remote side, followed by replaying recovered
// (captured earlier, before any local mutation) changesets on top, then
// bumps the subscription-set generation so any flexible-sync subscription
// state computed against the old history is known stale.
func rewriteHistory(localGroup, remoteGroup *group.Group, recovered []group.Changeset) error {
	h, err := localGroup.OpenHistory()
	if err != nil {
		return err
	}
	h.Reset()
	for _, cs := range recovered {
		if err := h.Append(cs); err != nil {
			return err
		}
	}
	if err := localGroup.SaveHistory(h); err != nil {
		return err
	}

	localGroup.SetSyncFileIdent(remoteGroup.SyncFileIdent())
	localGroup.SetSubscriptionGeneration(localGroup.SubscriptionGeneration() + 1)
	return nil
}
