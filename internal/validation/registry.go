package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/reposcout/reposcout/internal/types"
)

// CheckResult is what a checker reports for one rule execution
type CheckResult struct {
	Passed  bool
	Score   int // 0-100, informational; gating and scoring use Passed
	Details string
}

// Checker runs one kind of validation check. Implementations interpret the
// rule's criteria themselves; the engine treats criteria as opaque.
type Checker interface {
	// Kind returns the rule kind this checker handles
	Kind() types.RuleKind

	// Check evaluates a candidate against rule-specific criteria.
	// A returned error means the check could not be performed (network,
	// timeout, bad criteria); the engine records it and fails the rule.
	Check(ctx context.Context, candidate *types.CandidateEntry, criteria json.RawMessage) (*CheckResult, error)
}

// CheckerRegistry maps rule kinds to checkers. New rule kinds plug in
// without touching the engine.
type CheckerRegistry struct {
	mu       sync.RWMutex
	checkers map[types.RuleKind]Checker
}

// NewCheckerRegistry creates an empty registry
func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make(map[types.RuleKind]Checker),
	}
}

// Register adds a checker to the registry
func (r *CheckerRegistry) Register(checker Checker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := checker.Kind()
	if !kind.IsValid() {
		return fmt.Errorf("checker has invalid kind %q", kind)
	}
	if _, exists := r.checkers[kind]; exists {
		return fmt.Errorf("checker for kind %q already registered", kind)
	}

	r.checkers[kind] = checker
	return nil
}

// Get returns the checker for a rule kind
func (r *CheckerRegistry) Get(kind types.RuleKind) (Checker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	checker, exists := r.checkers[kind]
	return checker, exists
}

// Kinds returns the registered rule kinds
func (r *CheckerRegistry) Kinds() []types.RuleKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]types.RuleKind, 0, len(r.checkers))
	for kind := range r.checkers {
		kinds = append(kinds, kind)
	}
	return kinds
}
