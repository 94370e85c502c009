package main

import (
	"github.com/spf13/cobra"
)

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <run-id>",
		Short: "Re-run a failed or timed-out assessment job",
		Long: `Move a failed or timed-out assessment job back to pending and re-submit
it to the assessment service. The job's retry budget is shared with the sync
engine; a job past its budget is refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.tracker.Retry(ctx, args[0]); err != nil {
				return err
			}

			statusf("Job %s queued for retry\n", args[0])

			return nil
		},
	}
}
