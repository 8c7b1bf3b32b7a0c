package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/reposcout/reposcout/internal/types"
)

func TestPromoteCandidate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	id := enqueue(t, store, "github.com/example/widget", 5, nil)
	if _, err := store.DequeueNext(ctx, "worker-1"); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}

	entryID, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   id,
		RepositoryURL: "github.com/example/widget",
		Slug:          "example-widget",
		QualityScore:  85,
		SourceType:    types.SourceAutomatedSearch,
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	entry, err := store.GetRegistryEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry failed: %v", err)
	}
	if entry == nil {
		t.Fatal("registry entry not created")
	}
	if entry.Verified {
		t.Error("new entries must start unverified")
	}
	if entry.QualityScore != 85 {
		t.Errorf("quality_score = %d, want 85", entry.QualityScore)
	}
	if entry.Slug != "example-widget" {
		t.Errorf("slug = %s", entry.Slug)
	}

	prov, err := store.GetProvenance(ctx, entryID)
	if err != nil {
		t.Fatalf("get provenance failed: %v", err)
	}
	if len(prov) != 1 {
		t.Fatalf("got %d provenance records, want 1", len(prov))
	}
	if prov[0].SourceType != types.SourceAutomatedSearch {
		t.Errorf("provenance source = %s", prov[0].SourceType)
	}

	// Candidate completed in the same transaction
	c, err := store.GetCandidate(ctx, id)
	if err != nil {
		t.Fatalf("get candidate failed: %v", err)
	}
	if c.Status != types.StatusCompleted {
		t.Errorf("candidate status = %s, want completed", c.Status)
	}
}

func TestPromoteWithRelationships(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// Seed a parent entry
	parentCandidate := enqueue(t, store, "github.com/upstream/widget", 5, nil)
	parentID, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   parentCandidate,
		RepositoryURL: "github.com/upstream/widget",
		Slug:          "upstream-widget",
		SourceType:    types.SourceCuratedList,
	})
	if err != nil {
		t.Fatalf("seed promote failed: %v", err)
	}

	forkCandidate := enqueue(t, store, "github.com/forker/widget", 5, nil)
	forkID, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   forkCandidate,
		RepositoryURL: "github.com/forker/widget",
		Slug:          "forker-widget",
		SourceType:    types.SourceAutomatedSearch,
		Relationships: []*types.RelationshipRecord{
			{ParentEntryID: parentID, Type: types.RelFork, ConfidenceScore: 0.8},
		},
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	rels, err := store.GetRelationships(ctx, forkID)
	if err != nil {
		t.Fatalf("get relationships failed: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("got %d relationships, want 1", len(rels))
	}
	if rels[0].Type != types.RelFork || rels[0].ParentEntryID != parentID {
		t.Errorf("relationship mismatch: %+v", rels[0])
	}
}

func TestPromoteRediscoveryAccumulatesProvenance(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	first := enqueue(t, store, "github.com/example/widget", 5, nil)
	entryID, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   first,
		RepositoryURL: "github.com/example/widget",
		Slug:          "example-widget",
		SourceType:    types.SourceAutomatedSearch,
	})
	if err != nil {
		t.Fatalf("first promote failed: %v", err)
	}

	// A second candidate for the same URL cannot exist in the queue (URL is
	// unique), but promotion must still be idempotent on the registry when
	// the same candidate is re-processed after a crash between commit and
	// queue acknowledgment elsewhere.
	entryID2, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:    first,
		RepositoryURL:  "github.com/example/widget",
		Slug:           "example-widget-again",
		SourceType:     types.SourceWebhook,
		SourceMetadata: `{"event": "push"}`,
	})
	if err != nil {
		t.Fatalf("re-promote failed: %v", err)
	}
	if entryID2 != entryID {
		t.Errorf("re-promotion created a second entry: %s vs %s", entryID2, entryID)
	}

	entries, err := store.ListRegistryEntries(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want exactly 1 per repository", len(entries))
	}

	prov, err := store.GetProvenance(ctx, entryID)
	if err != nil {
		t.Fatalf("get provenance failed: %v", err)
	}
	if len(prov) != 2 {
		t.Fatalf("got %d provenance records, want 2", len(prov))
	}
	if prov[1].SourceType != types.SourceWebhook {
		t.Errorf("second provenance source = %s, want webhook", prov[1].SourceType)
	}
}

func TestPromoteSlugCollisionGetsSuffix(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// Same owner/name on different hosts: distinct repositories whose
	// derived slugs collide. Both must promote.
	first := enqueue(t, store, "github.com/acme/widget", 5, nil)
	if _, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   first,
		RepositoryURL: "github.com/acme/widget",
		Slug:          "acme-widget",
		SourceType:    types.SourceAutomatedSearch,
	}); err != nil {
		t.Fatalf("first promote failed: %v", err)
	}

	second := enqueue(t, store, "gitlab.com/acme/widget", 5, nil)
	entryID, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   second,
		RepositoryURL: "gitlab.com/acme/widget",
		Slug:          "acme-widget",
		SourceType:    types.SourceAutomatedSearch,
	})
	if err != nil {
		t.Fatalf("second promote failed: %v", err)
	}

	entry, err := store.GetRegistryEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry failed: %v", err)
	}
	if entry.Slug != "acme-widget-2" {
		t.Errorf("slug = %q, want acme-widget-2", entry.Slug)
	}
	if entry.RepositoryURL != "gitlab.com/acme/widget" {
		t.Errorf("repository_url = %q", entry.RepositoryURL)
	}

	entries, err := store.ListRegistryEntries(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestRecordRelationshipForSkippedDuplicate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	original := enqueue(t, store, "github.com/example/widget", 5, nil)
	entryID, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:   original,
		RepositoryURL: "github.com/example/widget",
		Slug:          "example-widget",
		SourceType:    types.SourceCuratedList,
	})
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	dup := enqueue(t, store, "gitlab.com/example/widget", 5, nil)
	rel := &types.RelationshipRecord{
		CandidateID:     dup,
		ParentEntryID:   entryID,
		Type:            types.RelDuplicate,
		ConfidenceScore: 0.95,
	}
	if err := store.RecordRelationship(ctx, rel); err != nil {
		t.Fatalf("record relationship failed: %v", err)
	}

	// Recording the same pair again refreshes rather than duplicating
	rel.ConfidenceScore = 0.99
	if err := store.RecordRelationship(ctx, rel); err != nil {
		t.Fatalf("re-record failed: %v", err)
	}

	rels, err := store.GetRelationships(ctx, entryID)
	if err != nil {
		t.Fatalf("get relationships failed: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("got %d relationships, want 1", len(rels))
	}
	if rels[0].ConfidenceScore != 0.99 {
		t.Errorf("confidence = %v, want refreshed 0.99", rels[0].ConfidenceScore)
	}
	if rels[0].CandidateID != dup {
		t.Errorf("candidate_id = %s, want %s", rels[0].CandidateID, dup)
	}
	if rels[0].RegistryEntryID != "" {
		t.Errorf("duplicate suppression record should have no registry entry, got %s", rels[0].RegistryEntryID)
	}
}

func TestDailyStatsRecomputeIdempotent(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// One promoted, one skipped
	promoted := enqueue(t, store, "github.com/good/repo", 5, nil)
	if _, err := store.DequeueNext(ctx, "worker-1"); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if err := store.RecordValidationResult(ctx, &types.ValidationResult{
		CandidateID: promoted, RuleName: "has-readme", Kind: types.KindFileStructure, Passed: true, Score: 100,
	}); err != nil {
		t.Fatalf("record result failed: %v", err)
	}
	if _, err := store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID: promoted, RepositoryURL: "github.com/good/repo",
		Slug: "good-repo", SourceType: types.SourceAutomatedSearch,
	}); err != nil {
		t.Fatalf("promote failed: %v", err)
	}

	skipped, err := store.EnqueueCandidate(ctx, &types.EnqueueRequest{
		RepositoryURL: "github.com/dup/repo", SourceType: types.SourceWebhook, Priority: 5,
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := store.DequeueNext(ctx, "worker-1"); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if err := store.SkipCandidate(ctx, skipped, "duplicate"); err != nil {
		t.Fatalf("skip failed: %v", err)
	}

	date := time.Now().Format("2006-01-02")

	stats, err := store.RecomputeDailyStats(ctx, date)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if stats.Discovered != 2 {
		t.Errorf("discovered = %d, want 2", stats.Discovered)
	}
	if stats.Validated != 1 {
		t.Errorf("validated = %d, want 1", stats.Validated)
	}
	if stats.Added != 1 {
		t.Errorf("added = %d, want 1", stats.Added)
	}
	if stats.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", stats.Rejected)
	}
	if stats.SourceBreakdown["automated_search"] != 1 || stats.SourceBreakdown["webhook"] != 1 {
		t.Errorf("source breakdown = %v", stats.SourceBreakdown)
	}

	// Recompute replaces, never increments
	again, err := store.RecomputeDailyStats(ctx, date)
	if err != nil {
		t.Fatalf("second recompute failed: %v", err)
	}
	if again.Discovered != stats.Discovered || again.Added != stats.Added || again.Rejected != stats.Rejected {
		t.Errorf("recompute not idempotent: %+v vs %+v", again, stats)
	}

	stored, err := store.GetDailyStats(ctx, date)
	if err != nil {
		t.Fatalf("get stats failed: %v", err)
	}
	if stored == nil || stored.Discovered != 2 {
		t.Errorf("stored stats mismatch: %+v", stored)
	}
}

func TestRecomputeDailyStatsRejectsBadDate(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.RecomputeDailyStats(context.Background(), "yesterday"); err == nil {
		t.Error("expected invalid date to be rejected")
	}
}
