package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/herdbook/herdbook/internal/callback"
	"github.com/herdbook/herdbook/internal/jobs"
	"github.com/herdbook/herdbook/internal/sync"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync engine continuously",
		Long: `Run until interrupted: periodic queue drains, the assessment timeout
monitor, and the HTTP callback endpoint. When a stream URL is configured the
websocket status feed runs as well. Ctrl-C shuts everything down gracefully.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			cc := a.cfg.Config.Callback
			if cc.Secret == "" {
				return fmt.Errorf("callback.secret is required for serve mode")
			}

			receiver := callback.NewReceiver(a.tracker, a.logger)

			runner := sync.NewRunner(a.orch, a.policy, a.cfg.PollInterval, a.logger)
			monitor := jobs.NewMonitor(a.tracker, a.cfg.JobTimeout, a.cfg.ScanInterval, a.logger)
			server := callback.NewServer(receiver, cc.ListenAddr, cc.Secret, a.logger)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error { return runner.Run(gctx) })
			g.Go(func() error { return monitor.Run(gctx) })
			g.Go(func() error { return server.Run(gctx) })

			if cc.Stream && cc.StreamURL != "" {
				stream := callback.NewStream(cc.StreamURL, cc.Secret, receiver, a.policy, a.logger)
				g.Go(func() error { return stream.Run(gctx) })
			}

			a.logger.Info("serve mode started")

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				a.logger.Info("shut down")
				return nil
			}

			return err
		},
	}
}
