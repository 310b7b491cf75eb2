package clientreset

import (
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/primitives"
)

// captureLocalChangesets runs before any local state is overwritten: it
// records every local changeset newer than the version the remote side has
// already seen, so Recover can replay them once the remote schema and rows
// have been merged in. anchor is the remote's current version, used later
// as the replay cutoff against every captured changeset that is still
// valid against the new base.
func captureLocalChangesets(localGroup *group.Group, anchor primitives.Version) ([]group.Changeset, error) {
	h, err := localGroup.OpenHistory()
	if err != nil {
		return nil, err
	}
	return h.Since(anchor)
}
