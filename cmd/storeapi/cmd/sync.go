package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SevenofThr4wn/HardwareStore/cmd/storeapi/cmd/cmdutil"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Directory sync commands",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one directory sync and print the result as JSON",
	Long: `Runs a single synchronous reconciliation of the Keycloak directory into
local_users. The command exits non-zero when the run fails; per-user failures
are reported in the output but do not fail the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		stack, err := cmdutil.OpenStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close()

		engine := cmdutil.NewSyncEngine(cfg, cmdutil.NewKeycloakClient(cfg, logger), stack.Users, nil, logger)
		run := engine.RunSync(ctx)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(run); err != nil {
			return fmt.Errorf("encode sync run: %w", err)
		}
		if run.Err != nil {
			return fmt.Errorf("directory sync failed: %w", run.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRunCmd)
}
