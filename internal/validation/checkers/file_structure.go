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

// FileStructureChecker verifies that a checkout contains the files the
// rule's criteria demand and none of the files it forbids.
type FileStructureChecker struct{}

// fileStructureCriteria is the criteria schema for file_structure rules
type fileStructureCriteria struct {
	RequiredFiles  []string `json:"required_files"`
	ForbiddenFiles []string `json:"forbidden_files"`
}

// Kind returns the rule kind this checker handles
func (c *FileStructureChecker) Kind() types.RuleKind {
	return types.KindFileStructure
}

// Check verifies required and forbidden paths relative to the checkout root
func (c *FileStructureChecker) Check(ctx context.Context, candidate *types.CandidateEntry, criteria json.RawMessage) (*validation.CheckResult, error) {
	var crit fileStructureCriteria
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &crit); err != nil {
			return nil, fmt.Errorf("invalid file_structure criteria: %w", err)
		}
	}

	root, err := checkoutPath(candidate)
	if err != nil {
		return nil, err
	}

	var missing, present []string
	for _, name := range crit.RequiredFiles {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(name))); err != nil {
			missing = append(missing, name)
		} else {
			present = append(present, name)
		}
	}

	var forbidden []string
	for _, name := range crit.ForbiddenFiles {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(name))); err == nil {
			forbidden = append(forbidden, name)
		}
	}

	result := &validation.CheckResult{
		Passed: len(missing) == 0 && len(forbidden) == 0,
	}
	if total := len(crit.RequiredFiles); total > 0 {
		result.Score = 100 * len(present) / total
	} else if result.Passed {
		result.Score = 100
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(forbidden) > 0 {
		parts = append(parts, "forbidden present: "+strings.Join(forbidden, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d required files present", len(present)))
	}
	result.Details = strings.Join(parts, "; ")

	return result, nil
}

// checkoutPath resolves the candidate's local checkout directory
func checkoutPath(candidate *types.CandidateEntry) (string, error) {
	path := candidate.Metadata["checkout_path"]
	if path == "" {
		return "", fmt.Errorf("candidate %s has no checkout_path metadata", candidate.ID)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("checkout %s not accessible: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("checkout %s is not a directory", path)
	}
	return path, nil
}
