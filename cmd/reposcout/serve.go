package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/reposcout/reposcout/internal/intake"
	"github.com/reposcout/reposcout/internal/stats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the intake API, pipeline workers, and stats refresh",
	Long: `Run the full pipeline in one process: the intake HTTP API for
discovery sources, the worker pool draining the queue, and a periodic
refresh of today's stats rollup.

Components can be disabled individually, so a deployment can split the
API and the workers across processes sharing one database.`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		workers, _ := cmd.Flags().GetInt("workers")
		noAPI, _ := cmd.Flags().GetBool("no-api")
		noWorkers, _ := cmd.Flags().GetBool("no-workers")
		statsMin, _ := cmd.Flags().GetInt("stats-interval-min")

		if noAPI && noWorkers {
			fatal("nothing to serve with both --no-api and --no-workers")
		}

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		runCtx, cancel := context.WithCancel(ctx)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			fmt.Fprintln(os.Stderr, "\nShutting down...")
			cancel()
		}()

		g, gctx := errgroup.WithContext(runCtx)

		if !noAPI {
			cfg := intake.DefaultConfig(store)
			if addr != "" {
				cfg.Addr = addr
			}
			server, err := intake.New(cfg)
			if err != nil {
				fatal("%v", err)
			}
			g.Go(func() error { return server.Run(gctx) })
		}

		if !noWorkers {
			coord, err := buildCoordinator(store, workers, 0, 0)
			if err != nil {
				fatal("%v", err)
			}
			g.Go(func() error { return coord.Run(gctx) })

			aggregator := stats.New(store)
			g.Go(func() error {
				return aggregator.RunPeriodic(gctx, time.Duration(statsMin)*time.Minute)
			})
		}

		if err := g.Wait(); err != nil && err != context.Canceled {
			fatal("%v", err)
		}
		fmt.Println("Stopped.")
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "intake API listen address (default :8420)")
	serveCmd.Flags().Int("workers", 0, "number of concurrent workers (default 2)")
	serveCmd.Flags().Bool("no-api", false, "disable the intake API")
	serveCmd.Flags().Bool("no-workers", false, "disable pipeline workers")
	serveCmd.Flags().Int("stats-interval-min", 5, "minutes between stats rollup refreshes")
}
