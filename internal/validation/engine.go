package validation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

// Outcome is the engine's verdict for one candidate evaluation
type Outcome struct {
	// Passed is the AND over all required rules. A candidate can pass
	// with a score below 100 when only optional rules failed.
	Passed bool

	// Score is round(100 * sum(weight_i * passed_i) / sum(weight_i)) over
	// all enabled rules, required and optional alike.
	Score int

	// Results holds one entry per executed rule, already persisted
	Results []*types.ValidationResult

	// RequiredFailures lists the required rules that failed, in execution
	// order. The coordinator uses their kinds to decide between retry and
	// terminal skip.
	RequiredFailures []*types.ValidationRule
}

// Engine evaluates candidates against the enabled rule set
type Engine struct {
	store       storage.Storage
	registry    *CheckerRegistry
	ruleTimeout time.Duration
}

// Config holds validation engine configuration
type Config struct {
	Store    storage.Storage
	Registry *CheckerRegistry

	// RuleTimeout is the hard per-rule deadline. A checker that exceeds
	// it fails that rule only (default: 2 minutes).
	RuleTimeout time.Duration
}

// DefaultRuleTimeout bounds a single checker execution
const DefaultRuleTimeout = 2 * time.Minute

// NewEngine creates a validation engine
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("checker registry is required")
	}
	timeout := cfg.RuleTimeout
	if timeout <= 0 {
		timeout = DefaultRuleTimeout
	}

	return &Engine{
		store:       cfg.Store,
		registry:    cfg.Registry,
		ruleTimeout: timeout,
	}, nil
}

// Evaluate runs every enabled rule against the candidate and persists one
// append-only ValidationResult per rule regardless of outcome. Checker
// errors and timeouts fail the affected rule and evaluation continues;
// only storage errors abort.
//
// With zero enabled rules the outcome is {Passed: true, Score: 0}: nothing
// gated the candidate, and there are no weights to score against.
func (e *Engine) Evaluate(ctx context.Context, candidate *types.CandidateEntry) (*Outcome, error) {
	rules, err := e.store.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	outcome := &Outcome{Passed: true}
	if len(rules) == 0 {
		return outcome, nil
	}

	totalWeight := 0
	passedWeight := 0

	for _, rule := range rules {
		result := e.runRule(ctx, candidate, rule)

		if err := e.store.RecordValidationResult(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to persist result for rule %q: %w", rule.Name, err)
		}
		outcome.Results = append(outcome.Results, result)

		totalWeight += rule.Weight
		if result.Passed {
			passedWeight += rule.Weight
		} else if rule.Required {
			outcome.Passed = false
			outcome.RequiredFailures = append(outcome.RequiredFailures, rule)
		}
	}

	outcome.Score = int(math.Round(100 * float64(passedWeight) / float64(totalWeight)))
	return outcome, nil
}

// runRule executes one rule under the per-rule timeout and converts the
// checker's answer into a result row. Never returns an error: anything
// that goes wrong becomes a failed result (fail-closed).
func (e *Engine) runRule(ctx context.Context, candidate *types.CandidateEntry, rule *types.ValidationRule) *types.ValidationResult {
	result := &types.ValidationResult{
		CandidateID: candidate.ID,
		RuleName:    rule.Name,
		Kind:        rule.Kind,
		ValidatedAt: time.Now(),
	}

	checker, ok := e.registry.Get(rule.Kind)
	if !ok {
		result.ErrorMessage = fmt.Sprintf("no checker registered for kind %q", rule.Kind)
		return result
	}

	ruleCtx, cancel := context.WithTimeout(ctx, e.ruleTimeout)
	defer cancel()

	check, err := checker.Check(ruleCtx, candidate, rule.Criteria)
	if err != nil {
		if ruleCtx.Err() == context.DeadlineExceeded {
			result.ErrorMessage = fmt.Sprintf("check timed out after %s: %v", e.ruleTimeout, err)
		} else {
			result.ErrorMessage = err.Error()
		}
		return result
	}

	result.Passed = check.Passed
	result.Details = check.Details
	switch {
	case check.Score > 0 && check.Score <= 100:
		result.Score = check.Score
	case check.Passed:
		result.Score = 100
	}
	return result
}
