package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/config"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old audit events and stopped worker instances",
	Long: `Delete candidate events older than the retention window, trim each
candidate's audit trail to the per-candidate limit, and remove stopped
worker instance rows past the cleanup age.

Thresholds come from the environment (REPOSCOUT_EVENT_RETENTION_DAYS,
REPOSCOUT_PER_CANDIDATE_EVENT_LIMIT, REPOSCOUT_INSTANCE_CLEANUP_AGE_HOURS,
REPOSCOUT_INSTANCE_KEEP), falling back to defaults.`,
	Run: func(cmd *cobra.Command, args []string) {
		retention, err := config.RetentionConfigFromEnv()
		if err != nil {
			fatal("%v", err)
		}

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		events, err := store.PruneEvents(ctx, retention.EventRetention(), retention.PerCandidateEventLimit)
		if err != nil {
			fatal("%v", err)
		}
		instances, err := store.PruneStoppedInstances(ctx, retention.InstanceCleanupAge(), retention.InstanceKeep)
		if err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Pruned %d events and %d stopped instances\n", green("✓"), events, instances)
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
