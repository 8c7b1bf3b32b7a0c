package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reposcout/reposcout/internal/types"
)

// CreateRule inserts a new validation rule. Rule names are unique.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *types.ValidationRule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	criteria := string(rule.Criteria)
	if criteria == "" {
		criteria = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_rules (id, name, kind, enabled, required, criteria, weight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.ID, rule.Name, rule.Kind, rule.Enabled, rule.Required, criteria, rule.Weight, now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("rule %q already exists", rule.Name)
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by name
func (s *SQLiteStorage) GetRule(ctx context.Context, name string) (*types.ValidationRule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, enabled, required, criteria, weight, created_at, updated_at
		FROM validation_rules WHERE name = ?
	`, name)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules returns all rules, or only the enabled ones, ordered by name
func (s *SQLiteStorage) ListRules(ctx context.Context, enabledOnly bool) ([]*types.ValidationRule, error) {
	query := `
		SELECT id, name, kind, enabled, required, criteria, weight, created_at, updated_at
		FROM validation_rules`
	if enabledOnly {
		query += " WHERE enabled = 1"
	}
	query += " ORDER BY name ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.ValidationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Allowed fields for rule update to prevent SQL injection
var allowedRuleUpdateFields = map[string]bool{
	"kind":     true,
	"enabled":  true,
	"required": true,
	"criteria": true,
	"weight":   true,
}

// UpdateRule updates fields on a rule identified by name
func (s *SQLiteStorage) UpdateRule(ctx context.Context, name string, updates map[string]interface{}) error {
	existing, err := s.GetRule(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("rule %q not found", name)
	}

	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	for key, value := range updates {
		if !allowedRuleUpdateFields[key] {
			return fmt.Errorf("invalid field for update: %s", key)
		}

		switch key {
		case "kind":
			if kind, ok := value.(string); ok {
				if !types.RuleKind(kind).IsValid() {
					return fmt.Errorf("invalid rule kind: %s", kind)
				}
			}
		case "weight":
			if weight, ok := value.(int); ok {
				if weight <= 0 {
					return fmt.Errorf("weight must be positive (got %d)", weight)
				}
			}
		case "criteria":
			if raw, ok := value.(string); ok && raw != "" {
				if !json.Valid([]byte(raw)) {
					return fmt.Errorf("criteria must be valid JSON")
				}
			}
		}

		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}
	args = append(args, name)

	query := fmt.Sprintf("UPDATE validation_rules SET %s WHERE name = ?", strings.Join(setClauses, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule by name. Past validation results referencing
// the rule are retained; they are history, not configuration.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM validation_rules WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rule %q not found", name)
	}
	return nil
}

func scanRule(row scanner) (*types.ValidationRule, error) {
	var (
		rule     types.ValidationRule
		criteria string
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.Kind, &rule.Enabled, &rule.Required,
		&criteria, &rule.Weight, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rule.Criteria = json.RawMessage(criteria)
	return &rule, nil
}
