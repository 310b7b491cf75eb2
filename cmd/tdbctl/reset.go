package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/module/tdb/pkg/clientreset"
	"github.com/module/tdb/pkg/config"
	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/txn"
)

func newClientResetCmd(cfg *config.DBConfig) *cobra.Command {
	var remotePath string
	var modeName string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "reconcile this database against an authoritative remote copy (C9)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseResetMode(modeName)
			if err != nil {
				return err
			}
			return runClientReset(cmd, cfg, remotePath, mode)
		},
	}
	cmd.Flags().StringVar(&remotePath, "remote", "", "path to the authoritative remote copy (required)")
	cmd.Flags().StringVar(&modeName, "mode", "RecoverOrDiscard", "DiscardLocal, Recover, or RecoverOrDiscard")
	cmd.MarkFlagRequired("remote")
	return cmd
}

func parseResetMode(name string) (clientreset.Mode, error) {
	switch name {
	case "DiscardLocal":
		return clientreset.DiscardLocal, nil
	case "Recover":
		return clientreset.Recover, nil
	case "RecoverOrDiscard":
		return clientreset.RecoverOrDiscard, nil
	default:
		return 0, dberr.New(dberr.ClientResetFailed, "client reset: unknown mode").WithIdent(name)
	}
}

func runClientReset(cmd *cobra.Command, cfg *config.DBConfig, remotePath string, mode clientreset.Mode) error {
	local, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer local.Close()

	remote, err := txn.Open(primitives.Filepath(remotePath), nil)
	if err != nil {
		return err
	}
	defer remote.Close()

	result, err := clientreset.Run(context.Background(), local, remote, mode)
	if err != nil {
		return err
	}

	cmd.Println(fmt.Sprintf(
		"client reset complete: mode=%s downgraded=%v tables_created=%d columns_added=%d rows_deleted=%d rows_created=%d rows_updated=%d replayed=%d",
		result.ModeUsed, result.Downgraded, len(result.TablesCreated), len(result.ColumnsAdded),
		result.RowsDeleted, result.RowsCreated, result.RowsUpdated, result.Replayed,
	))
	return nil
}
