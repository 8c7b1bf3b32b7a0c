package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/stats"
	"github.com/reposcout/reposcout/internal/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Daily pipeline statistics",
}

var statsRecomputeCmd = &cobra.Command{
	Use:   "recompute [date]",
	Short: "Recompute the stats rollup for a date (default today)",
	Long: `Rebuild the daily rollup from the queue and validation tables.
Rollups are replaced wholesale, so recomputing any date any number of
times is safe. With --from and --to, recomputes an inclusive date range.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()
		aggregator := stats.New(store)

		green := color.New(color.FgGreen).SprintFunc()

		if from != "" || to != "" {
			if from == "" || to == "" {
				fatal("--from and --to must be given together")
			}
			rollups, err := aggregator.RecomputeRange(ctx, from, to)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s Recomputed %d days\n", green("✓"), len(rollups))
			return
		}

		date := time.Now().Format(stats.DateFormat)
		if len(args) == 1 {
			date = args[0]
		}
		rollup, err := aggregator.Recompute(ctx, date)
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Recomputed %s\n", green("✓"), date)
		printStats(rollup)
	},
}

var statsShowCmd = &cobra.Command{
	Use:   "show [date]",
	Short: "Show the stats rollup for a date (default today)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		date := time.Now().Format(stats.DateFormat)
		if len(args) == 1 {
			date = args[0]
		}

		rollup, err := store.GetDailyStats(ctx, date)
		if err != nil {
			fatal("%v", err)
		}
		if rollup == nil {
			fmt.Printf("No stats for %s. Run 'reposcout stats recompute %s' first.\n", date, date)
			return
		}
		printStats(rollup)
	},
}

func printStats(s *types.DailyStats) {
	fmt.Printf("  Date:        %s\n", s.Date)
	fmt.Printf("  Discovered:  %d\n", s.Discovered)
	fmt.Printf("  Validated:   %d\n", s.Validated)
	fmt.Printf("  Added:       %d\n", s.Added)
	fmt.Printf("  Rejected:    %d\n", s.Rejected)
	fmt.Printf("  Pass rate:   %.1f%%\n", s.PassRate*100)
	fmt.Printf("  Avg latency: %dms\n", s.AvgValidationLatencyMs)
	if len(s.SourceBreakdown) > 0 {
		fmt.Println("  Sources:")
		for source, count := range s.SourceBreakdown {
			fmt.Printf("    %-24s %d\n", source, count)
		}
	}
}

func init() {
	statsRecomputeCmd.Flags().String("from", "", "range start (YYYY-MM-DD)")
	statsRecomputeCmd.Flags().String("to", "", "range end (YYYY-MM-DD)")
	statsCmd.AddCommand(statsRecomputeCmd)
	statsCmd.AddCommand(statsShowCmd)
}
