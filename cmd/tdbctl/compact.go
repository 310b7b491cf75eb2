package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/module/tdb/pkg/config"
)

func newCompactCmd(cfg *config.DBConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "reclaim tombstoned rows in every table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd, cfg)
		},
	}
}

func runCompact(cmd *cobra.Command, cfg *config.DBConfig) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := db.BeginWrite(context.Background())
	if err != nil {
		return err
	}

	var compacted int
	for _, entry := range w.Group().Tables() {
		_, tbl, err := w.Table(entry.Name)
		if err != nil {
			w.Rollback()
			return err
		}
		if err := tbl.CompactTombstones(); err != nil {
			w.Rollback()
			return err
		}
		compacted++
	}

	if err := w.Commit(); err != nil {
		return err
	}
	cmd.Println(fmt.Sprintf("compacted %d table(s)", compacted))
	return nil
}
