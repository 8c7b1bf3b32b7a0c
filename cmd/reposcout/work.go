package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/pipeline"
	"github.com/reposcout/reposcout/internal/relationships"
	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/validation"
	"github.com/reposcout/reposcout/internal/validation/checkers"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run pipeline workers",
	Long: `Run pipeline workers that drain the discovery queue: each claimed
candidate is validated against the enabled rules, checked for duplicates
against the registry, and promoted or rejected.

Runs until interrupted. With --once, processes a single candidate and
exits, which is useful for debugging rule configuration.`,
	Run: func(cmd *cobra.Command, args []string) {
		workers, _ := cmd.Flags().GetInt("workers")
		pollMs, _ := cmd.Flags().GetInt("poll-interval-ms")
		staleMs, _ := cmd.Flags().GetInt("stale-threshold-ms")
		once, _ := cmd.Flags().GetBool("once")

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		coord, err := buildCoordinator(store, workers, pollMs, staleMs)
		if err != nil {
			fatal("%v", err)
		}

		if once {
			processed, err := coord.ProcessNext(ctx, coord.InstanceID()+"/once")
			if err != nil {
				fatal("%v", err)
			}
			if !processed {
				fmt.Println("Queue is empty.")
				return
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Processed one candidate\n", green("✓"))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\nShutting down workers...")
			cancel()
		}()

		fmt.Printf("Workers running (instance %s). Press Ctrl+C to stop.\n", coord.InstanceID())
		if err := coord.Run(runCtx); err != nil {
			fatal("%v", err)
		}
		fmt.Println("Workers stopped.")
	},
}

// buildCoordinator wires storage, engine, and detector together the same
// way for both the work and serve commands
func buildCoordinator(store storage.Storage, workers, pollMs, staleMs int) (*pipeline.Coordinator, error) {
	registry := validation.NewCheckerRegistry()
	if err := checkers.RegisterDefaults(registry); err != nil {
		return nil, err
	}
	engine, err := validation.NewEngine(&validation.Config{Store: store, Registry: registry})
	if err != nil {
		return nil, err
	}
	detector, err := relationships.New(relationships.DefaultConfig(store))
	if err != nil {
		return nil, err
	}

	cfg := pipeline.DefaultConfig(store, engine, detector)
	cfg.Version = version
	if workers > 0 {
		cfg.Workers = workers
	}
	if pollMs > 0 {
		cfg.PollInterval = time.Duration(pollMs) * time.Millisecond
	}
	if staleMs > 0 {
		cfg.StaleThreshold = time.Duration(staleMs) * time.Millisecond
	}
	return pipeline.New(cfg)
}

func init() {
	workCmd.Flags().Int("workers", 0, "number of concurrent workers (default 2)")
	workCmd.Flags().Int("poll-interval-ms", 0, "idle poll interval in milliseconds (default 2000)")
	workCmd.Flags().Int("stale-threshold-ms", 0, "staleness threshold in milliseconds (default 600000)")
	workCmd.Flags().Bool("once", false, "process a single candidate and exit")
}
