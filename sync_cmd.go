package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the local queue to the remote store once",
		Long: `Run a single sync pass: every queued mutation is applied to the remote
store in order, conflicts are reported without modifying local data, and an
assessment is requested for each entry that syncs. Safe to re-run after an
interrupted pass.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.orch.SyncAll(ctx)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(result)
			}

			fmt.Printf("Synced: %d  Failed: %d  Abandoned: %d  Conflicts: %d\n",
				result.Synced, result.Failed, result.Abandoned, len(result.Conflicts))

			for _, c := range result.Conflicts {
				fmt.Printf("  conflict: entry %s local v%d vs server v%d\n",
					c.EntityID, c.LocalVersion, c.ServerVersion)
			}

			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "  error: %s\n", e)
			}

			return nil
		},
	}
}
