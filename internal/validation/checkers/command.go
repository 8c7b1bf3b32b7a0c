package checkers

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/reposcout/reposcout/internal/types"
	"github.com/reposcout/reposcout/internal/validation"
)

// commandCriteria is the criteria schema for install_test and
// functional_test rules: an external command executed inside the checkout.
type commandCriteria struct {
	// Command is the argv to run, e.g. ["npm", "install", "--dry-run"]
	Command []string `json:"command"`

	// TimeoutSeconds bounds this command below the engine's per-rule
	// timeout when set.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// CommandChecker runs an external command in the candidate's checkout and
// passes when it exits zero. One instance serves a single rule kind so
// install and functional rules stay distinct in the registry.
type CommandChecker struct {
	kind types.RuleKind
}

// NewInstallChecker returns the checker for install_test rules
func NewInstallChecker() *CommandChecker {
	return &CommandChecker{kind: types.KindInstallTest}
}

// NewFunctionalChecker returns the checker for functional_test rules
func NewFunctionalChecker() *CommandChecker {
	return &CommandChecker{kind: types.KindFunctionalTest}
}

// Kind returns the rule kind this checker handles
func (c *CommandChecker) Kind() types.RuleKind {
	return c.kind
}

// Check runs the configured command and reports its exit status. The
// command inherits the rule context, so the engine's per-rule timeout
// kills runaway processes.
func (c *CommandChecker) Check(ctx context.Context, candidate *types.CandidateEntry, criteria json.RawMessage) (*validation.CheckResult, error) {
	var crit commandCriteria
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &crit); err != nil {
			return nil, fmt.Errorf("invalid %s criteria: %w", c.kind, err)
		}
	}
	if len(crit.Command) == 0 {
		return nil, fmt.Errorf("%s criteria name no command", c.kind)
	}

	root, err := checkoutPath(candidate)
	if err != nil {
		return nil, err
	}

	if crit.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(crit.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, crit.Command[0], crit.Command[1:]...)
	cmd.Dir = root

	output, runErr := cmd.CombinedOutput()
	details := truncate(string(output), 4000)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command %v timed out", crit.Command)
	}
	if runErr != nil {
		return &validation.CheckResult{
			Passed:  false,
			Details: fmt.Sprintf("command %v failed: %v\n%s", crit.Command, runErr, details),
		}, nil
	}

	return &validation.CheckResult{
		Passed:  true,
		Score:   100,
		Details: details,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
