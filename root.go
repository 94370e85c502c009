package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/herdbook/herdbook/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDBPath     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "herdbook",
		Short:   "Livestock journal sync engine",
		Long:    "Offline-first journal capture with remote mirroring and AI-assessment tracking.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "database file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// defaultConfigPath returns the config file location under the user config
// directory, or empty if the directory cannot be determined.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "herdbook", "config.toml")
}

// defaultDBPath returns the database location beside the config file.
func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "herdbook.db"
	}

	return filepath.Join(dir, "herdbook", "herdbook.db")
}

// buildLogger creates an slog.Logger from the config log level and CLI
// flags. --verbose and --quiet override the config because CLI flags
// always win. Format "auto" picks text on a terminal, JSON otherwise.
func buildLogger(lc config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo

	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	useJSON := lc.Format == "json"
	if lc.Format == "auto" {
		useJSON = !isatty.IsTerminal(os.Stderr.Fd())
	}

	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
