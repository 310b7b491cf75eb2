package clientreset

import (
	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/group"
	"github.com/module/tdb/pkg/primitives"
)

// transferSchema ensures every remote public table exists locally with a
// matching primary key, adds missing columns, and rejects a local-only
// table unless allowAdditiveDrift permits it (true for Recover, false for
// a DiscardLocal pass - whether downgraded from RecoverOrDiscard or
// requested directly).
func transferSchema(localGroup, remoteGroup *group.Group, allowAdditiveDrift bool) (createdTables, addedColumns []string, err error) {
	remoteTables := remoteGroup.Tables()

	// Pass 1: every remote table exists locally, created with just its
	// primary-key column if absent. Link columns are deferred to pass 2 so
	// their LinkTarget can resolve against a table that might not exist
	// yet on this very pass - the same ordering concern row transfer
	// handles by creating dangling links first.
	localKeyOf := make(map[primitives.TableKey]primitives.TableKey, len(remoteTables))
	for _, rt := range remoteTables {
		localEntry, lerr := localGroup.TableByName(rt.Name)
		if lerr != nil {
			key, cerr := createMatchingTable(localGroup, rt)
			if cerr != nil {
				return nil, nil, cerr
			}
			localKeyOf[rt.Key] = key
			createdTables = append(createdTables, rt.Name)
			continue
		}
		localKeyOf[rt.Key] = localEntry.Key
		if err := ensurePrimaryKeyMatches(localEntry, rt); err != nil {
			return nil, nil, err
		}
	}

	// Pass 2: add every column remote has that local lacks, and validate
	// the ones both sides already have.
	for _, rt := range remoteTables {
		localEntry, lerr := localGroup.TableByName(rt.Name)
		if lerr != nil {
			return nil, nil, lerr
		}
		for _, rc := range rt.Schema {
			if hasColumn(localEntry.Schema, rc.Name) {
				if err := ensureColumnMatches(localEntry, rc); err != nil {
					return nil, nil, err
				}
				continue
			}
			spec := rc
			if !rc.LinkTarget.IsNull() {
				target, ok := localKeyOf[rc.LinkTarget]
				if !ok {
					return nil, nil, dberr.New(dberr.DescriptorMismatch, "client reset: link target table not resolved").WithIdent(rc.Name)
				}
				spec.LinkTarget = target
			}
			if err := localGroup.AddColumn(localEntry.Key, spec); err != nil {
				return nil, nil, err
			}
			addedColumns = append(addedColumns, rt.Name+"."+rc.Name)
		}
	}

	if !allowAdditiveDrift {
		for _, le := range localGroup.Tables() {
			if _, err := remoteGroup.TableByName(le.Name); err != nil {
				return nil, nil, dberr.New(dberr.ClientResetFailed, "client reset: local table has no remote counterpart and additive drift is not allowed").WithIdent(le.Name)
			}
		}
	}
	return createdTables, addedColumns, nil
}

func createMatchingTable(localGroup *group.Group, remote *group.TableEntry) (primitives.TableKey, error) {
	pkIdx, err := primaryKeyIndex(remote.Schema)
	if err != nil {
		return 0, err
	}
	pkSpec := remote.Schema[pkIdx]
	pkSpec.LinkTarget = primitives.NullTableKey
	return localGroup.CreateTable(remote.Name, []cluster.ColumnSpec{pkSpec})
}

func ensurePrimaryKeyMatches(local, remote *group.TableEntry) error {
	lpi, err := primaryKeyIndex(local.Schema)
	if err != nil {
		return err
	}
	rpi, err := primaryKeyIndex(remote.Schema)
	if err != nil {
		return err
	}
	lc, rc := local.Schema[lpi], remote.Schema[rpi]
	if lc.Name != rc.Name || lc.Key.Type() != rc.Key.Type() || lc.Key.Nullable() != rc.Key.Nullable() {
		return dberr.New(dberr.DescriptorMismatch, "client reset: primary-key column incompatible with remote").WithIdent(local.Name)
	}
	return nil
}

func ensureColumnMatches(local *group.TableEntry, remote cluster.ColumnSpec) error {
	for _, lc := range local.Schema {
		if lc.Name != remote.Name {
			continue
		}
		if lc.Key.Type() != remote.Key.Type() || lc.Key.Nullable() != remote.Key.Nullable() ||
			lc.Key.IsList() != remote.Key.IsList() || lc.Key.IsDictionary() != remote.Key.IsDictionary() {
			return dberr.New(dberr.DescriptorMismatch, "client reset: column attributes differ from remote").WithIdent(remote.Name)
		}
		return nil
	}
	return dberr.New(dberr.NoSuchTable, "client reset: column vanished mid-transfer").WithIdent(remote.Name)
}

func hasColumn(schema []cluster.ColumnSpec, name string) bool {
	for _, c := range schema {
		if c.Name == name {
			return true
		}
	}
	return false
}
