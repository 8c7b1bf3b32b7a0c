package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/reposcout/reposcout/internal/types"
)

// RecordValidationResult appends one rule execution to the history.
// Results are insert-only; there is no update path.
func (s *SQLiteStorage) RecordValidationResult(ctx context.Context, result *types.ValidationResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if result.ValidatedAt.IsZero() {
		result.ValidatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_results (candidate_id, rule_name, kind, passed, score, details, error_message, validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, result.CandidateID, result.RuleName, result.Kind, result.Passed, result.Score,
		result.Details, result.ErrorMessage, result.ValidatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert validation result: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		result.ID = id
	}
	return nil
}

// GetValidationResults returns the full evaluation history for a candidate,
// oldest execution first.
func (s *SQLiteStorage) GetValidationResults(ctx context.Context, candidateID string) ([]*types.ValidationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, rule_name, kind, passed, score, details, error_message, validated_at
		FROM validation_results
		WHERE candidate_id = ?
		ORDER BY id ASC
	`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get validation results: %w", err)
	}
	defer rows.Close()

	var results []*types.ValidationResult
	for rows.Next() {
		var r types.ValidationResult
		err := rows.Scan(&r.ID, &r.CandidateID, &r.RuleName, &r.Kind, &r.Passed,
			&r.Score, &r.Details, &r.ErrorMessage, &r.ValidatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}
