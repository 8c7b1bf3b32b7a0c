package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

// stubChecker returns a canned answer for a rule kind
type stubChecker struct {
	kind   types.RuleKind
	passed bool
	err    error
	delay  time.Duration
}

func (s *stubChecker) Kind() types.RuleKind { return s.kind }

func (s *stubChecker) Check(ctx context.Context, candidate *types.CandidateEntry, criteria json.RawMessage) (*CheckResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &CheckResult{Passed: s.passed, Details: "stub"}, nil
}

func newTestEngine(t *testing.T, timeout time.Duration, checkers ...Checker) (*Engine, storage.Storage) {
	t.Helper()

	store, err := storage.New(context.Background(), &storage.Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	registry := NewCheckerRegistry()
	for _, c := range checkers {
		if err := registry.Register(c); err != nil {
			t.Fatalf("failed to register checker: %v", err)
		}
	}

	engine, err := NewEngine(&Config{Store: store, Registry: registry, RuleTimeout: timeout})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine, store
}

func newTestCandidate(t *testing.T, store storage.Storage) *types.CandidateEntry {
	t.Helper()
	ctx := context.Background()

	id, err := store.EnqueueCandidate(ctx, &types.EnqueueRequest{
		RepositoryURL: "github.com/example/repo",
		SourceType:    types.SourceAutomatedSearch,
		Priority:      5,
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	candidate, err := store.GetCandidate(ctx, id)
	if err != nil {
		t.Fatalf("get candidate failed: %v", err)
	}
	return candidate
}

func createRule(t *testing.T, store storage.Storage, name string, kind types.RuleKind, required bool, weight int, enabled bool) {
	t.Helper()
	err := store.CreateRule(context.Background(), &types.ValidationRule{
		Name: name, Kind: kind, Enabled: enabled, Required: required, Weight: weight,
	})
	if err != nil {
		t.Fatalf("create rule %s failed: %v", name, err)
	}
}

func TestEvaluateWeightedScore(t *testing.T) {
	// R1 required weight 10 passes, R2 optional weight 5 fails:
	// score = round(100*10/15) = 67, passed = true.
	engine, store := newTestEngine(t, time.Second,
		&stubChecker{kind: types.KindFileStructure, passed: true},
		&stubChecker{kind: types.KindInstallTest, passed: false},
	)
	createRule(t, store, "r1", types.KindFileStructure, true, 10, true)
	createRule(t, store, "r2", types.KindInstallTest, false, 5, true)

	outcome, err := engine.Evaluate(context.Background(), newTestCandidate(t, store))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if !outcome.Passed {
		t.Error("candidate should pass when only optional rules fail")
	}
	if outcome.Score != 67 {
		t.Errorf("score = %d, want 67", outcome.Score)
	}
	if len(outcome.RequiredFailures) != 0 {
		t.Errorf("unexpected required failures: %v", outcome.RequiredFailures)
	}
}

func TestEvaluateRequiredRuleGates(t *testing.T) {
	engine, store := newTestEngine(t, time.Second,
		&stubChecker{kind: types.KindFileStructure, passed: false},
		&stubChecker{kind: types.KindInstallTest, passed: true},
	)
	createRule(t, store, "structure", types.KindFileStructure, true, 1, true)
	createRule(t, store, "install", types.KindInstallTest, false, 99, true)

	outcome, err := engine.Evaluate(context.Background(), newTestCandidate(t, store))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	if outcome.Passed {
		t.Error("failing required rule must fail the candidate regardless of score")
	}
	if outcome.Score != 99 {
		t.Errorf("score = %d, want 99", outcome.Score)
	}
	if len(outcome.RequiredFailures) != 1 || outcome.RequiredFailures[0].Name != "structure" {
		t.Errorf("required failures = %v", outcome.RequiredFailures)
	}
}

func TestEvaluateZeroEnabledRules(t *testing.T) {
	engine, store := newTestEngine(t, time.Second)

	outcome, err := engine.Evaluate(context.Background(), newTestCandidate(t, store))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !outcome.Passed {
		t.Error("zero enabled rules must pass")
	}
	if outcome.Score != 0 {
		t.Errorf("score = %d, want 0", outcome.Score)
	}
}

func TestEvaluateDisabledRulesExcluded(t *testing.T) {
	engine, store := newTestEngine(t, time.Second,
		&stubChecker{kind: types.KindFileStructure, passed: true},
		&stubChecker{kind: types.KindDependency, passed: false},
	)
	createRule(t, store, "on", types.KindFileStructure, true, 10, true)
	// Disabled failing required rule: must affect neither gating nor score
	createRule(t, store, "off", types.KindDependency, true, 90, false)

	outcome, err := engine.Evaluate(context.Background(), newTestCandidate(t, store))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !outcome.Passed {
		t.Error("disabled rule gated the candidate")
	}
	if outcome.Score != 100 {
		t.Errorf("score = %d, want 100 (disabled rule weighted)", outcome.Score)
	}
	if len(outcome.Results) != 1 {
		t.Errorf("disabled rule executed: %d results", len(outcome.Results))
	}
}

func TestEvaluateCheckerErrorFailsClosed(t *testing.T) {
	engine, store := newTestEngine(t, time.Second,
		&stubChecker{kind: types.KindInstallTest, err: fmt.Errorf("registry unreachable")},
		&stubChecker{kind: types.KindFileStructure, passed: true},
	)
	createRule(t, store, "flaky", types.KindInstallTest, false, 10, true)
	createRule(t, store, "solid", types.KindFileStructure, true, 10, true)

	candidate := newTestCandidate(t, store)
	outcome, err := engine.Evaluate(context.Background(), candidate)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	// Error fails the affected rule only; evaluation continued
	if !outcome.Passed {
		t.Error("erroring optional rule failed the candidate")
	}
	if outcome.Score != 50 {
		t.Errorf("score = %d, want 50", outcome.Score)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(outcome.Results))
	}

	// Both executions persisted, including the errored one
	persisted, err := store.GetValidationResults(context.Background(), candidate.ID)
	if err != nil {
		t.Fatalf("get results failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted %d results, want 2", len(persisted))
	}
	var sawError bool
	for _, r := range persisted {
		if r.RuleName == "flaky" {
			if r.Passed {
				t.Error("errored rule recorded as passed")
			}
			if r.ErrorMessage == "" {
				t.Error("errored rule has no error message")
			}
			sawError = true
		}
	}
	if !sawError {
		t.Error("errored rule execution not persisted")
	}
}

func TestEvaluateTimeoutFailsRuleOnly(t *testing.T) {
	engine, store := newTestEngine(t, 50*time.Millisecond,
		&stubChecker{kind: types.KindFunctionalTest, passed: true, delay: time.Second},
		&stubChecker{kind: types.KindFileStructure, passed: true},
	)
	createRule(t, store, "slow", types.KindFunctionalTest, false, 10, true)
	createRule(t, store, "fast", types.KindFileStructure, true, 10, true)

	start := time.Now()
	outcome, err := engine.Evaluate(context.Background(), newTestCandidate(t, store))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout not enforced, evaluation took %v", elapsed)
	}

	if !outcome.Passed {
		t.Error("timed-out optional rule failed the candidate")
	}
	if outcome.Score != 50 {
		t.Errorf("score = %d, want 50", outcome.Score)
	}
}

func TestEvaluateMissingCheckerFailsRule(t *testing.T) {
	engine, store := newTestEngine(t, time.Second)
	createRule(t, store, "orphan", types.KindDependency, true, 10, true)

	outcome, err := engine.Evaluate(context.Background(), newTestCandidate(t, store))
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if outcome.Passed {
		t.Error("rule without a checker must fail closed")
	}
	if outcome.Results[0].ErrorMessage == "" {
		t.Error("missing checker left no error message")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewCheckerRegistry()
	if err := registry.Register(&stubChecker{kind: types.KindDependency}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := registry.Register(&stubChecker{kind: types.KindDependency}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := registry.Register(&stubChecker{kind: "vibes"}); err == nil {
		t.Error("expected invalid kind registration to fail")
	}
}
