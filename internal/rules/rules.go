// Package rules loads declarative validation rule sets from YAML files
// and syncs them into the rule store.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

// RuleFile is the on-disk rule set layout
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is one declarative rule definition. Criteria is free-form YAML
// handed to the rule's checker as JSON.
type RuleSpec struct {
	Name     string                 `yaml:"name"`
	Kind     string                 `yaml:"kind"`
	Enabled  *bool                  `yaml:"enabled"`
	Required bool                   `yaml:"required"`
	Weight   int                    `yaml:"weight"`
	Criteria map[string]interface{} `yaml:"criteria"`
}

// Load reads and validates a rule file
func Load(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("rule file %s defines no rules", path)
	}

	seen := make(map[string]bool)
	for i := range file.Rules {
		rule, err := file.Rules[i].toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d in %s: %w", i+1, path, err)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("rule file %s defines %q twice", path, rule.Name)
		}
		seen[rule.Name] = true
	}
	return &file, nil
}

// toRule converts a spec into a validated store rule. Enabled defaults to
// true and weight to 1 when omitted.
func (s *RuleSpec) toRule() (*types.ValidationRule, error) {
	rule := &types.ValidationRule{
		Name:     s.Name,
		Kind:     types.RuleKind(s.Kind),
		Enabled:  true,
		Required: s.Required,
		Weight:   s.Weight,
	}
	if s.Enabled != nil {
		rule.Enabled = *s.Enabled
	}
	if rule.Weight == 0 {
		rule.Weight = 1
	}

	if len(s.Criteria) > 0 {
		data, err := json.Marshal(s.Criteria)
		if err != nil {
			return nil, fmt.Errorf("criteria not representable as JSON: %w", err)
		}
		rule.Criteria = data
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// SyncResult summarizes one sync run
type SyncResult struct {
	Created int
	Updated int
}

// Sync upserts the file's rules into the store by name. Rules present in
// the store but absent from the file are left alone, so hand-managed
// rules survive a sync.
func Sync(ctx context.Context, store storage.Storage, file *RuleFile) (*SyncResult, error) {
	result := &SyncResult{}

	for i := range file.Rules {
		rule, err := file.Rules[i].toRule()
		if err != nil {
			return result, err
		}

		existing, err := store.GetRule(ctx, rule.Name)
		if err != nil {
			return result, fmt.Errorf("failed to look up rule %q: %w", rule.Name, err)
		}

		if existing == nil {
			if err := store.CreateRule(ctx, rule); err != nil {
				return result, fmt.Errorf("failed to create rule %q: %w", rule.Name, err)
			}
			result.Created++
			continue
		}

		criteria := string(rule.Criteria)
		if criteria == "" {
			criteria = "{}"
		}
		updates := map[string]interface{}{
			"kind":     string(rule.Kind),
			"enabled":  rule.Enabled,
			"required": rule.Required,
			"criteria": criteria,
			"weight":   rule.Weight,
		}
		if err := store.UpdateRule(ctx, rule.Name, updates); err != nil {
			return result, fmt.Errorf("failed to update rule %q: %w", rule.Name, err)
		}
		result.Updated++
	}
	return result, nil
}

// LoadAndSync is the one-call form used by the CLI
func LoadAndSync(ctx context.Context, store storage.Storage, path string) (*SyncResult, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Sync(ctx, store, file)
}
