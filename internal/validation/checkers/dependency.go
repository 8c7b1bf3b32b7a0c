package checkers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/reposcout/reposcout/internal/types"
	"github.com/reposcout/reposcout/internal/validation"
)

// DependencyChecker inspects a checkout's dependency manifest. A missing
// manifest is a structural failure; forbidden dependency names appearing
// in the manifest fail the rule as well.
type DependencyChecker struct{}

// dependencyCriteria is the criteria schema for dependency rules
type dependencyCriteria struct {
	// Manifest is the manifest path relative to the checkout root,
	// e.g. "package.json" or "go.mod". At least one of Manifest or
	// Manifests must name an existing file.
	Manifest  string   `json:"manifest"`
	Manifests []string `json:"manifests"`

	// Forbidden lists dependency names that must not appear in the
	// manifest text.
	Forbidden []string `json:"forbidden"`
}

// Kind returns the rule kind this checker handles
func (c *DependencyChecker) Kind() types.RuleKind {
	return types.KindDependency
}

// Check verifies the manifest exists and carries no forbidden dependencies
func (c *DependencyChecker) Check(ctx context.Context, candidate *types.CandidateEntry, criteria json.RawMessage) (*validation.CheckResult, error) {
	var crit dependencyCriteria
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &crit); err != nil {
			return nil, fmt.Errorf("invalid dependency criteria: %w", err)
		}
	}

	manifests := crit.Manifests
	if crit.Manifest != "" {
		manifests = append([]string{crit.Manifest}, manifests...)
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("dependency criteria name no manifest")
	}

	root, err := checkoutPath(candidate)
	if err != nil {
		return nil, err
	}

	var content []byte
	var found string
	for _, name := range manifests {
		data, rerr := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		if rerr == nil {
			content = data
			found = name
			break
		}
	}

	if found == "" {
		return &validation.CheckResult{
			Passed:  false,
			Details: fmt.Sprintf("no manifest found (looked for %s)", strings.Join(manifests, ", ")),
		}, nil
	}

	var hits []string
	text := string(content)
	for _, dep := range crit.Forbidden {
		if dep != "" && strings.Contains(text, dep) {
			hits = append(hits, dep)
		}
	}

	if len(hits) > 0 {
		return &validation.CheckResult{
			Passed:  false,
			Details: fmt.Sprintf("%s contains forbidden dependencies: %s", found, strings.Join(hits, ", ")),
		}, nil
	}

	return &validation.CheckResult{
		Passed:  true,
		Score:   100,
		Details: fmt.Sprintf("manifest %s ok", found),
	}, nil
}
