package sqlite

import (
	"context"
	"fmt"
	"time"
)

// PruneEvents deletes candidate events older than the retention window,
// then trims each candidate's trail to the per-candidate limit (0 =
// unlimited), oldest first. Returns the number of rows deleted.
func (s *SQLiteStorage) PruneEvents(ctx context.Context, olderThan time.Duration, perCandidateLimit int) (int, error) {
	// Events carry SQLite's CURRENT_TIMESTAMP (UTC, no offset), so the
	// cutoff is compared in the same form via julianday.
	cutoff := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM candidate_events WHERE julianday(created_at) < julianday(?)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune old events: %w", err)
	}
	byAge, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	var byLimit int64
	if perCandidateLimit > 0 {
		result, err = s.db.ExecContext(ctx, `
			DELETE FROM candidate_events WHERE id IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (
						PARTITION BY candidate_id ORDER BY id DESC
					) AS rank
					FROM candidate_events
				) WHERE rank > ?
			)
		`, perCandidateLimit)
		if err != nil {
			return int(byAge), fmt.Errorf("failed to trim per-candidate events: %w", err)
		}
		byLimit, err = result.RowsAffected()
		if err != nil {
			return int(byAge), fmt.Errorf("failed to get rows affected: %w", err)
		}
	}

	return int(byAge + byLimit), nil
}

// PruneStoppedInstances deletes stopped worker instance rows older than
// the age threshold, always keeping the most recent `keep` stopped rows
// as history. Running instances are never touched.
func (s *SQLiteStorage) PruneStoppedInstances(ctx context.Context, olderThan time.Duration, keep int) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM worker_instances
		WHERE status = 'stopped'
		  AND last_heartbeat < ?
		  AND instance_id NOT IN (
			SELECT instance_id FROM worker_instances
			WHERE status = 'stopped'
			ORDER BY last_heartbeat DESC
			LIMIT ?
		  )
	`, cutoff, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stopped instances: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
