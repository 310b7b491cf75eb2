package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/config"
	"github.com/module/tdb/pkg/primitives"
)

// newDumpJSONCmd dumps one table's rows as a JSON array, each value
// rendered through Field.String() since the engine's Mixed values have no
// native JSON encoding of their own. The sync wire format is out of scope
// for this engine; that has no bearing on this inspection tool.
func newDumpJSONCmd(cfg *config.DBConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump-json <table>",
		Short: "dump a table's rows as a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDumpJSON(cmd, cfg, args[0])
		},
	}
	return cmd
}

func runDumpJSON(cmd *cobra.Command, cfg *config.DBConfig, tableName string) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := db.BeginRead()
	if err != nil {
		return err
	}
	defer r.Close()

	tbl, err := r.Table(tableName)
	if err != nil {
		return err
	}

	rows, err := dumpRows(tbl)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}

func dumpRows(tbl *cluster.Table) ([]map[string]string, error) {
	var rows []map[string]string
	err := tbl.Iterate(func(key primitives.ObjKey) bool {
		row := map[string]string{"_key": key.String()}
		for _, col := range tbl.Schema {
			v, err := tbl.GetValue(key, col.Key)
			if err != nil {
				row[col.Name] = fmt.Sprintf("<error: %v>", err)
				continue
			}
			row[col.Name] = v.String()
		}
		rows = append(rows, row)
		return true
	})
	return rows, err
}
