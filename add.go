package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/journal"
	"github.com/herdbook/herdbook/internal/queue"
)

func newAddCmd() *cobra.Command {
	var (
		flagEntry       string
		flagOwner       string
		flagAnimal      string
		flagActivity    string
		flagNotes       string
		flagMetrics     []string
		flagBaseVersion int64
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a journal entry (queued locally, synced later)",
		Long: `Queue a journal entry mutation. The entry is written to the durable local
queue immediately and mirrored to the remote store on the next sync, so no
connectivity required. Pass --entry with an existing id (and --base-version)
to queue an update instead of a create.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics, err := parseMetrics(flagMetrics)
			if err != nil {
				return err
			}

			op := queue.OpCreate

			entryID := flagEntry
			if entryID == "" {
				entryID = uuid.NewString()
			} else {
				op = queue.OpUpdate
			}

			id, err := a.queue.Enqueue(ctx, op, journal.EntrySnapshot{
				EntryID:    entryID,
				OwnerID:    flagOwner,
				AnimalTag:  flagAnimal,
				Activity:   flagActivity,
				Notes:      flagNotes,
				Metrics:    metrics,
				RecordedAt: time.Now().Unix(),
			}, flagBaseVersion)
			if err != nil {
				return err
			}

			statusf("Queued %s for entry %s (mutation %s)\n", op, entryID, id)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagEntry, "entry", "", "existing entry id (queues an update)")
	cmd.Flags().StringVar(&flagOwner, "owner", "", "owner id (required)")
	cmd.Flags().StringVar(&flagAnimal, "animal", "", "animal tag")
	cmd.Flags().StringVar(&flagActivity, "activity", "", "activity name (required)")
	cmd.Flags().StringVar(&flagNotes, "notes", "", "free-form notes")
	cmd.Flags().StringArrayVar(&flagMetrics, "metric", nil, "numeric observation as name=value (repeatable)")
	cmd.Flags().Int64Var(&flagBaseVersion, "base-version", 0, "remote version the update is based on")

	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("activity")

	return cmd
}

// parseMetrics converts repeated name=value flags into a metrics map.
func parseMetrics(raw []string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	metrics := make(map[string]float64, len(raw))

	for _, entry := range raw {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --metric %q, want name=value", entry)
		}

		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --metric %q: %w", entry, err)
		}

		metrics[name] = v
	}

	return metrics, nil
}
