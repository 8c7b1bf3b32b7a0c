package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/storage"
)

var version = "dev"

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "reposcout",
	Short: "Repository discovery and validation pipeline",
	Long: `reposcout discovers candidate repositories, validates them against a
configurable rule set, detects forks and duplicates of existing registry
entries, and promotes passing candidates into the registry.

The database location is resolved from --db, then $REPOSCOUT_DB, then the
default .reposcout/reposcout.db in the working directory.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the pipeline database")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(statusCmd)
}

// openStore opens the pipeline database, resolving the path from the
// --db flag, the environment, or the default location
func openStore(ctx context.Context) (storage.Storage, error) {
	cfg := storage.DefaultConfig()
	if env := os.Getenv("REPOSCOUT_DB"); env != "" {
		cfg.Path = env
	}
	if dbPath != "" {
		cfg.Path = dbPath
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Path, err)
	}
	return store, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
