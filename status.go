package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/jobs"
	"github.com/herdbook/herdbook/internal/queue"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queued mutations and assessment jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			muts, err := a.queue.List(ctx)
			if err != nil {
				return err
			}

			jobList, err := a.tracker.List(ctx)
			if err != nil {
				return err
			}

			if flagJSON {
				return json.NewEncoder(os.Stdout).Encode(struct {
					Queue []queue.Mutation `json:"queue"`
					Jobs  []jobs.Job       `json:"jobs"`
				}{muts, jobList})
			}

			fmt.Printf("Queued mutations: %d\n", len(muts))

			if len(muts) > 0 {
				rows := make([][]string, 0, len(muts))
				for _, m := range muts {
					rows = append(rows, []string{
						shortID(m.ID),
						m.EntityID,
						string(m.Op),
						fmt.Sprintf("%d", m.RetryCount),
						formatNano(m.EnqueuedAt),
					})
				}

				printTable(os.Stdout,
					[]string{"ID", "ENTRY", "OP", "RETRIES", "QUEUED"}, rows)
			}

			fmt.Printf("\nAssessment jobs: %d\n", len(jobList))

			if len(jobList) > 0 {
				rows := make([][]string, 0, len(jobList))
				for _, j := range jobList {
					rows = append(rows, []string{
						j.RunID,
						j.EntityID,
						string(j.Status),
						fmt.Sprintf("%d", j.RetryCount),
						formatNano(j.UpdatedAt),
					})
				}

				printTable(os.Stdout,
					[]string{"RUN ID", "ENTRY", "STATUS", "RETRIES", "UPDATED"}, rows)
			}

			return nil
		},
	}
}
