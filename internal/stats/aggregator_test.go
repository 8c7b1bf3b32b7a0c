package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()

	store, err := storage.New(context.Background(), &storage.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecomputeCountsToday(t *testing.T) {
	store := newTestStore(t)
	aggregator := New(store)
	ctx := context.Background()

	for _, url := range []string{"github.com/a/one", "github.com/a/two", "github.com/a/three"} {
		_, err := store.EnqueueCandidate(ctx, &types.EnqueueRequest{
			RepositoryURL: url,
			SourceType:    types.SourceAutomatedSearch,
			Priority:      5,
		})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	today := time.Now().Format(DateFormat)
	stats, err := aggregator.Recompute(ctx, today)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if stats.Discovered != 3 {
		t.Errorf("discovered = %d, want 3", stats.Discovered)
	}
	if stats.SourceBreakdown["automated_search"] != 3 {
		t.Errorf("source breakdown = %v, want automated_search:3", stats.SourceBreakdown)
	}

	// Idempotent: a second run replaces rather than accumulates
	stats, err = aggregator.Recompute(ctx, today)
	if err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}
	if stats.Discovered != 3 {
		t.Errorf("discovered after rerun = %d, want 3", stats.Discovered)
	}

	stored, err := store.GetDailyStats(ctx, today)
	if err != nil {
		t.Fatalf("get stats failed: %v", err)
	}
	if stored == nil || stored.Discovered != 3 {
		t.Errorf("stored stats = %+v, want discovered 3", stored)
	}
}

func TestRecomputeRejectsBadDate(t *testing.T) {
	aggregator := New(newTestStore(t))
	if _, err := aggregator.Recompute(context.Background(), "31-08-2026"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestRecomputeRange(t *testing.T) {
	store := newTestStore(t)
	aggregator := New(store)
	ctx := context.Background()

	rollups, err := aggregator.RecomputeRange(ctx, "2026-08-01", "2026-08-03")
	if err != nil {
		t.Fatalf("recompute range failed: %v", err)
	}
	if len(rollups) != 3 {
		t.Fatalf("got %d rollups, want 3", len(rollups))
	}
	for i, want := range []string{"2026-08-01", "2026-08-02", "2026-08-03"} {
		if rollups[i].Date != want {
			t.Errorf("rollup %d date = %s, want %s", i, rollups[i].Date, want)
		}
	}

	if _, err := aggregator.RecomputeRange(ctx, "2026-08-03", "2026-08-01"); err == nil {
		t.Error("expected error for inverted range")
	}
}
