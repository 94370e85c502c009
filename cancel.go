package main

import (
	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <mutation-id>",
		Short: "Cancel a still-queued mutation",
		Long: `Remove a mutation from the local queue before it syncs. A mutation whose
sync attempt is already in flight is refused until the attempt resolves;
one that has already synced cannot be canceled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.queue.Cancel(ctx, args[0]); err != nil {
				return err
			}

			statusf("Canceled mutation %s\n", args[0])

			return nil
		},
	}
}
