// Command tdbctl is a thin CLI front-end over the engine: open a database,
// verify its on-disk structure, compact it, dump a table as JSON, rewrite it
// onto the current file format, or reconcile it against a remote copy via
// client reset. It is glue over pkg/txn and friends, not part of the engine
// itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/module/tdb/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var configPath string

	root := &cobra.Command{
		Use:           "tdbctl",
		Short:         "inspect and maintain tdb database files",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (flags override it)")
	cfg.AddFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// flags already bound to cfg at registration time take precedence
		// over the file, so we only backfill fields the user left zero.
		if !cmd.PersistentFlags().Changed("db") && cfg.Path == "" {
			cfg.Path = loaded.Path
		}
		if !cmd.PersistentFlags().Changed("in-memory") {
			cfg.InMemory = cfg.InMemory || loaded.InMemory
		}
		if cfg.EncryptionKey == "" {
			cfg.EncryptionKey = loaded.EncryptionKey
		}
		return nil
	}

	root.AddCommand(
		newVerifyCmd(&cfg),
		newCompactCmd(&cfg),
		newDumpJSONCmd(&cfg),
		newUpgradeFormatCmd(&cfg),
		newClientResetCmd(&cfg),
	)
	return root
}
