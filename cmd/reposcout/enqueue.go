package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposcout/reposcout/internal/repourl"
	"github.com/reposcout/reposcout/internal/types"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <repository-url>",
	Short: "Submit a candidate repository to the discovery queue",
	Long: `Submit a candidate repository for validation. The URL is
canonicalized first, so different spellings of the same repository merge
into a single queue entry with priority raised to the higher of the two
and metadata unioned.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourceType, _ := cmd.Flags().GetString("source")
		priority, _ := cmd.Flags().GetInt("priority")
		metaPairs, _ := cmd.Flags().GetStringSlice("meta")

		canonical, err := repourl.Normalize(args[0])
		if err != nil {
			fatal("%v", err)
		}

		metadata := make(map[string]string)
		for _, pair := range metaPairs {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				fatal("invalid --meta %q (want key=value)", pair)
			}
			metadata[key] = value
		}

		ctx := context.Background()
		store, err := openStore(ctx)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		id, err := store.EnqueueCandidate(ctx, &types.EnqueueRequest{
			RepositoryURL: canonical,
			SourceType:    types.SourceType(sourceType),
			Priority:      priority,
			Metadata:      metadata,
		})
		if err != nil {
			fatal("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Enqueued %s\n", green("✓"), canonical)
		fmt.Printf("  Candidate: %s\n", id)
	},
}

func init() {
	enqueueCmd.Flags().String("source", string(types.SourceManual), "discovery source type")
	enqueueCmd.Flags().Int("priority", 5, "queue priority (1-10, higher first)")
	enqueueCmd.Flags().StringSlice("meta", nil, "metadata key=value pairs (repeatable)")
}
