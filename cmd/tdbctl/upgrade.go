package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/module/tdb/pkg/config"
)

func newUpgradeFormatCmd(cfg *config.DBConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade-format",
		Short: "rewrite the file header onto the current on-disk format",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgradeFormat(cmd, cfg)
		},
	}
}

func runUpgradeFormat(cmd *cobra.Command, cfg *config.DBConfig) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.UpgradeFormat(context.Background()); err != nil {
		return err
	}
	cmd.Println("format header upgraded")
	return nil
}
