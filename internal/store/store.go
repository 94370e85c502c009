// Package store opens and migrates the embedded SQLite database shared by
// the durable mutation queue and the assessment job registry. Both live in
// one database file so a single sole-writer connection serializes all local
// state changes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Open opens the database at dbPath, configures pragmas, and applies all
// pending schema migrations. Use ":memory:" for tests. The returned *sql.DB
// is limited to a single connection: the queue and job registry are
// single-owner within a user's session, and the sole-writer discipline makes
// foreground enqueues and background drains serialize at the database.
func Open(dbPath string, logger *slog.Logger) (*sql.DB, error) {
	logger.Info("opening herdbook database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}
