// Package stats rolls pipeline outcomes up into per-day counters for the
// analytics dashboard. Rollups are recomputed from source tables and
// replaced wholesale, never incremented.
package stats

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

// DateFormat is the rollup key layout
const DateFormat = "2006-01-02"

// Aggregator recomputes daily stats rollups
type Aggregator struct {
	store storage.Storage
}

// New creates a stats aggregator
func New(store storage.Storage) *Aggregator {
	return &Aggregator{store: store}
}

// Recompute rebuilds the rollup for one date
func (a *Aggregator) Recompute(ctx context.Context, date string) (*types.DailyStats, error) {
	return a.store.RecomputeDailyStats(ctx, date)
}

// RecomputeRange rebuilds rollups for every date in [from, to] inclusive.
// Dates are YYYY-MM-DD; a failed date aborts the run so reruns stay safe.
func (a *Aggregator) RecomputeRange(ctx context.Context, from, to string) ([]*types.DailyStats, error) {
	start, err := time.Parse(DateFormat, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse(DateFormat, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s precedes start %s", to, from)
	}

	var rollups []*types.DailyStats
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		stats, err := a.store.RecomputeDailyStats(ctx, d.Format(DateFormat))
		if err != nil {
			return rollups, fmt.Errorf("recompute %s failed: %w", d.Format(DateFormat), err)
		}
		rollups = append(rollups, stats)
	}
	return rollups, nil
}

// RunPeriodic recomputes today's rollup on an interval until the context
// is canceled. Recomputing the current day repeatedly is how in-progress
// numbers stay fresh without any increment bookkeeping.
func (a *Aggregator) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			today := time.Now().Format(DateFormat)
			if _, err := a.store.RecomputeDailyStats(ctx, today); err != nil {
				fmt.Fprintf(os.Stderr, "[stats] recompute %s failed: %v\n", today, err)
			}
			// Just past midnight the tail of yesterday may still be
			// settling; refresh it once per tick as well.
			if time.Now().Hour() == 0 {
				yesterday := time.Now().AddDate(0, 0, -1).Format(DateFormat)
				if _, err := a.store.RecomputeDailyStats(ctx, yesterday); err != nil {
					fmt.Fprintf(os.Stderr, "[stats] recompute %s failed: %v\n", yesterday, err)
				}
			}
		}
	}
}
