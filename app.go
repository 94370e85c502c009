package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/herdbook/herdbook/internal/backoff"
	"github.com/herdbook/herdbook/internal/config"
	"github.com/herdbook/herdbook/internal/jobs"
	"github.com/herdbook/herdbook/internal/queue"
	"github.com/herdbook/herdbook/internal/remote"
	"github.com/herdbook/herdbook/internal/store"
	"github.com/herdbook/herdbook/internal/sync"
)

// app bundles the assembled engine for a single command invocation.
// Everything is constructed here and passed by reference; no ambient
// singletons.
type app struct {
	cfg     *config.Resolved
	logger  *slog.Logger
	db      *sql.DB
	queue   *queue.Queue
	policy  *backoff.Policy
	client  *remote.Client
	tracker *jobs.Tracker
	orch    *sync.Orchestrator
}

// newApp loads config, opens the database, and wires the engine. When
// needRemote is false the remote client is left nil so offline commands
// (add, cancel, status) work without a configured remote store.
func newApp(ctx context.Context, needRemote bool) (*app, error) {
	cfgPath := flagConfigPath
	if cfgPath == "" {
		cfgPath = defaultConfigPath()
	}

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg.Config.Logging)

	dbPath := flagDBPath
	if dbPath == "" {
		dbPath = defaultDBPath()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		queue:  queue.New(db, logger),
		policy: backoff.New(cfg.Config.Sync.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
	}

	if needRemote {
		rc := cfg.Config.Remote
		if rc.BaseURL == "" {
			db.Close()
			return nil, fmt.Errorf("remote.base_url is not configured (see %s)", cfgPath)
		}

		a.client = remote.NewWithCredentials(ctx, rc.BaseURL, rc.TokenURL,
			rc.ClientID, rc.ClientSecret, cfg.RequestTimeout, logger)
	}

	a.tracker = jobs.NewTracker(db, a.client, a.policy, logger)
	a.orch = sync.NewOrchestrator(a.queue, a.client, a.tracker, a.policy,
		cfg.Config.Sync.BatchSize, logger)

	return a, nil
}

// Close releases the database.
func (a *app) Close() error {
	return a.db.Close()
}
