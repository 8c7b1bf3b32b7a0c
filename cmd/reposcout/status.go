package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth, worker instances, and recent candidates",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Println("Queue:")
		for _, status := range []types.CandidateStatus{
			types.StatusPending, types.StatusProcessing, types.StatusFailed,
			types.StatusCompleted, types.StatusSkipped,
		} {
			s := status
			candidates, err := store.ListCandidates(ctx, types.CandidateFilter{Status: &s})
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("  %-12s %d\n", status, len(candidates))
		}

		instances, err := store.GetActiveInstances(ctx)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println("Workers:")
		if len(instances) == 0 {
			fmt.Printf("  %s none running\n", yellow("!"))
		}
		for _, inst := range instances {
			age := time.Since(inst.LastHeartbeat).Round(time.Second)
			marker := green("✓")
			if age > time.Minute {
				marker = red("✗")
			}
			fmt.Printf("  %s %s on %s (pid %d, heartbeat %s ago)\n",
				marker, inst.InstanceID, inst.Hostname, inst.PID, age)
		}

		entries, err := store.ListRegistryEntries(ctx)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Registry entries: %d\n", len(entries))

		limit, _ := cmd.Flags().GetInt("recent")
		if limit > 0 {
			recent, err := store.ListCandidates(ctx, types.CandidateFilter{Limit: limit})
			if err != nil {
				fatal("%v", err)
			}
			if len(recent) > 0 {
				fmt.Println("Recent candidates:")
				for _, c := range recent {
					fmt.Printf("  %-10s p%d a%d  %s\n", c.Status, c.Priority, c.AttemptCount, c.RepositoryURL)
				}
			}
		}
	},
}

func init() {
	statusCmd.Flags().Int("recent", 10, "number of recent candidates to show (0 to hide)")
}
