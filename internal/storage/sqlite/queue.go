package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reposcout/reposcout/internal/types"
)

const (
	// DefaultMaxAttempts is the retry budget for new candidates
	DefaultMaxAttempts = 3

	// retryBackoffBase is the backoff after the first failed attempt
	retryBackoffBase = 30 * time.Second

	// retryBackoffCap bounds the exponential backoff
	retryBackoffCap = time.Hour
)

// RetryBackoff returns the delay before a candidate that has failed
// attemptCount times becomes eligible again. Exponential from a 30s base,
// capped at one hour.
func RetryBackoff(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	backoff := retryBackoffBase
	for i := 1; i < attemptCount; i++ {
		backoff *= 2
		if backoff >= retryBackoffCap {
			return retryBackoffCap
		}
	}
	if backoff > retryBackoffCap {
		return retryBackoffCap
	}
	return backoff
}

// EnqueueCandidate inserts a new pending candidate, or merges into the
// existing row when the URL is already queued: priority becomes the max of
// old and new, metadata is a shallow union with new keys winning. Either
// way the candidate's id is returned.
func (s *SQLiteStorage) EnqueueCandidate(ctx context.Context, req *types.EnqueueRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	conn, release, err := s.beginImmediate(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	var (
		id          string
		priority    int
		metadataRaw string
	)
	err = conn.QueryRowContext(ctx, `
		SELECT id, priority, metadata FROM candidates WHERE repository_url = ?
	`, req.RepositoryURL).Scan(&id, &priority, &metadataRaw)

	now := time.Now()

	switch {
	case err == sql.ErrNoRows:
		// New candidate
		id = uuid.New().String()
		maxAttempts := req.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = DefaultMaxAttempts
		}
		metadata, merr := json.Marshal(nonNilMetadata(req.Metadata))
		if merr != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", merr)
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO candidates (
				id, repository_url, source_type, priority, status,
				max_attempts, metadata, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, req.RepositoryURL, req.SourceType, req.Priority, types.StatusPending,
			maxAttempts, string(metadata), now, now)
		if err != nil {
			return "", fmt.Errorf("failed to insert candidate: %w", err)
		}

		if err := recordEvent(ctx, conn, id, types.EventEnqueued, string(req.SourceType), req.RepositoryURL); err != nil {
			return "", err
		}

	case err != nil:
		return "", fmt.Errorf("failed to check for existing candidate: %w", err)

	default:
		// Existing candidate: merge priority and metadata
		if req.Priority > priority {
			priority = req.Priority
		}

		merged := map[string]string{}
		if metadataRaw != "" {
			if uerr := json.Unmarshal([]byte(metadataRaw), &merged); uerr != nil {
				return "", fmt.Errorf("failed to decode stored metadata for %s: %w", id, uerr)
			}
		}
		for k, v := range req.Metadata {
			merged[k] = v
		}
		metadata, merr := json.Marshal(merged)
		if merr != nil {
			return "", fmt.Errorf("failed to marshal merged metadata: %w", merr)
		}

		_, err = conn.ExecContext(ctx, `
			UPDATE candidates SET priority = ?, metadata = ?, updated_at = ?
			WHERE id = ?
		`, priority, string(metadata), now, id)
		if err != nil {
			return "", fmt.Errorf("failed to merge candidate: %w", err)
		}

		if err := recordEvent(ctx, conn, id, types.EventMerged, string(req.SourceType), fmt.Sprintf("re-discovered, priority now %d", priority)); err != nil {
			return "", err
		}
	}

	if err := commitImmediate(ctx, conn); err != nil {
		return "", err
	}
	return id, nil
}

// DequeueNext atomically claims exactly one eligible candidate for workerID
// and marks it processing. Eligible rows are pending, or failed with retry
// budget remaining and a due next_retry_at. Highest priority first, oldest
// first within a priority. Returns nil when nothing is eligible; callers
// poll with backoff rather than blocking here.
//
// The IMMEDIATE transaction is what guarantees no two workers ever receive
// the same row: claimants serialize on SQLite's write lock, and the second
// claimant's SELECT no longer sees the row the first one just updated.
func (s *SQLiteStorage) DequeueNext(ctx context.Context, workerID string) (*types.CandidateEntry, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker id is required")
	}

	conn, release, err := s.beginImmediate(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	now := time.Now()

	var id string
	err = conn.QueryRowContext(ctx, `
		SELECT id FROM candidates
		WHERE status = 'pending'
		   OR (status = 'failed' AND attempt_count < max_attempts AND next_retry_at IS NOT NULL AND next_retry_at <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`, now).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible candidate: %w", err)
	}

	_, err = conn.ExecContext(ctx, `
		UPDATE candidates
		SET status = 'processing', claimed_by = ?, claimed_at = ?, updated_at = ?, next_retry_at = NULL
		WHERE id = ?
	`, workerID, now, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to claim candidate: %w", err)
	}

	if err := recordEvent(ctx, conn, id, types.EventClaimed, workerID, ""); err != nil {
		return nil, err
	}

	candidate, err := getCandidateConn(ctx, conn, id)
	if err != nil {
		return nil, err
	}

	if err := commitImmediate(ctx, conn); err != nil {
		return nil, err
	}
	return candidate, nil
}

// CompleteSuccess marks a candidate completed
func (s *SQLiteStorage) CompleteSuccess(ctx context.Context, id string) error {
	return s.finishCandidate(ctx, id, types.EventCompleted, "", func(ctx context.Context, conn *sql.Conn, c *types.CandidateEntry, now time.Time) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE candidates
			SET status = 'completed', processed_at = ?, updated_at = ?, last_error = '', claimed_by = ''
			WHERE id = ?
		`, now, now, id)
		return err
	})
}

// CompleteFailure increments the candidate's attempt count and either
// schedules a backoff retry or, when the budget is exhausted, leaves it
// terminally failed with no retry time.
func (s *SQLiteStorage) CompleteFailure(ctx context.Context, id string, cause string) error {
	return s.finishCandidate(ctx, id, types.EventFailed, cause, func(ctx context.Context, conn *sql.Conn, c *types.CandidateEntry, now time.Time) error {
		attempts := c.AttemptCount + 1
		if attempts < c.MaxAttempts {
			retryAt := now.Add(RetryBackoff(attempts))
			_, err := conn.ExecContext(ctx, `
				UPDATE candidates
				SET status = 'failed', attempt_count = ?, last_error = ?, next_retry_at = ?, updated_at = ?, claimed_by = ''
				WHERE id = ?
			`, attempts, cause, retryAt, now, id)
			return err
		}

		// Retry budget exhausted: terminal failure, no retry scheduling
		_, err := conn.ExecContext(ctx, `
			UPDATE candidates
			SET status = 'failed', attempt_count = ?, last_error = ?, next_retry_at = NULL, processed_at = ?, updated_at = ?, claimed_by = ''
			WHERE id = ?
		`, attempts, cause, now, now, id)
		return err
	})
}

// SkipCandidate terminally skips a candidate without consuming retry budget
func (s *SQLiteStorage) SkipCandidate(ctx context.Context, id string, reason string) error {
	return s.finishCandidate(ctx, id, types.EventSkipped, reason, func(ctx context.Context, conn *sql.Conn, c *types.CandidateEntry, now time.Time) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE candidates
			SET status = 'skipped', last_error = ?, processed_at = ?, updated_at = ?, claimed_by = ''
			WHERE id = ?
		`, reason, now, now, id)
		return err
	})
}

// RecordCandidateError stores a failure cause on a candidate without
// changing its status or consuming retry budget. Used when a promotion
// rolls back: the candidate stays processing for the staleness sweep, but
// the cause is visible on the row and kept in the audit trail.
func (s *SQLiteStorage) RecordCandidateError(ctx context.Context, id string, cause string) error {
	return s.finishCandidate(ctx, id, types.EventFailed, cause, func(ctx context.Context, conn *sql.Conn, c *types.CandidateEntry, now time.Time) error {
		_, err := conn.ExecContext(ctx, `
			UPDATE candidates SET last_error = ?, updated_at = ? WHERE id = ?
		`, cause, now, id)
		return err
	})
}

// finishCandidate wraps the common load-mutate-event-commit shape of the
// mutating queue operations.
func (s *SQLiteStorage) finishCandidate(ctx context.Context, id string, event types.CandidateEventType, detail string, mutate func(context.Context, *sql.Conn, *types.CandidateEntry, time.Time) error) error {
	conn, release, err := s.beginImmediate(ctx)
	if err != nil {
		return err
	}
	defer release()

	candidate, err := getCandidateConn(ctx, conn, id)
	if err != nil {
		return err
	}
	if candidate == nil {
		return fmt.Errorf("candidate %s not found", id)
	}

	now := time.Now()
	if err := mutate(ctx, conn, candidate, now); err != nil {
		return fmt.Errorf("failed to update candidate %s: %w", id, err)
	}

	if err := recordEvent(ctx, conn, id, event, candidate.ClaimedBy, detail); err != nil {
		return err
	}

	return commitImmediate(ctx, conn)
}

// ReclaimStale requeues candidates stuck in processing past the staleness
// threshold, incrementing their attempt count exactly once per sweep. A
// reclaimed candidate with budget left becomes immediately eligible; one
// with an exhausted budget is left terminally failed.
func (s *SQLiteStorage) ReclaimStale(ctx context.Context, staleThreshold time.Duration) (int, error) {
	conn, release, err := s.beginImmediate(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	now := time.Now()
	cutoff := now.Add(-staleThreshold)

	rows, err := conn.QueryContext(ctx, `
		SELECT id, attempt_count, max_attempts, claimed_by FROM candidates
		WHERE status = 'processing' AND claimed_at IS NOT NULL AND claimed_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale candidates: %w", err)
	}

	type stale struct {
		id        string
		attempts  int
		max       int
		claimedBy string
	}
	var stales []stale
	for rows.Next() {
		var st stale
		if err := rows.Scan(&st.id, &st.attempts, &st.max, &st.claimedBy); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan stale candidate: %w", err)
		}
		stales = append(stales, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate stale candidates: %w", err)
	}

	for _, st := range stales {
		attempts := st.attempts + 1
		cause := fmt.Sprintf("reclaimed from stale worker %s", st.claimedBy)

		if attempts < st.max {
			_, err = conn.ExecContext(ctx, `
				UPDATE candidates
				SET status = 'failed', attempt_count = ?, last_error = ?, next_retry_at = ?, updated_at = ?, claimed_by = ''
				WHERE id = ?
			`, attempts, cause, now, now, st.id)
		} else {
			_, err = conn.ExecContext(ctx, `
				UPDATE candidates
				SET status = 'failed', attempt_count = ?, last_error = ?, next_retry_at = NULL, processed_at = ?, updated_at = ?, claimed_by = ''
				WHERE id = ?
			`, attempts, cause, now, now, st.id)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to reclaim candidate %s: %w", st.id, err)
		}

		if err := recordEvent(ctx, conn, st.id, types.EventReclaimed, "staleness-sweep", cause); err != nil {
			return 0, err
		}
	}

	if err := commitImmediate(ctx, conn); err != nil {
		return 0, err
	}
	return len(stales), nil
}

// GetCandidate retrieves a candidate by id
func (s *SQLiteStorage) GetCandidate(ctx context.Context, id string) (*types.CandidateEntry, error) {
	return s.getCandidateWhere(ctx, "id = ?", id)
}

// GetCandidateByURL retrieves a candidate by its canonical repository URL
func (s *SQLiteStorage) GetCandidateByURL(ctx context.Context, repositoryURL string) (*types.CandidateEntry, error) {
	return s.getCandidateWhere(ctx, "repository_url = ?", repositoryURL)
}

func (s *SQLiteStorage) getCandidateWhere(ctx context.Context, where string, arg interface{}) (*types.CandidateEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repository_url, source_type, priority, status, attempt_count,
		       max_attempts, last_error, metadata, claimed_by, created_at,
		       updated_at, processed_at, next_retry_at
		FROM candidates WHERE `+where, arg)
	candidate, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return candidate, nil
}

// ListCandidates returns candidates matching the filter, newest first
func (s *SQLiteStorage) ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.CandidateEntry, error) {
	query := `
		SELECT id, repository_url, source_type, priority, status, attempt_count,
		       max_attempts, last_error, metadata, claimed_by, created_at,
		       updated_at, processed_at, next_retry_at
		FROM candidates`
	var args []interface{}
	var clauses []string

	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.SourceType != nil {
		clauses = append(clauses, "source_type = ?")
		args = append(args, *filter.SourceType)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*types.CandidateEntry
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

// GetCandidateEvents returns the audit trail for a candidate, newest first
func (s *SQLiteStorage) GetCandidateEvents(ctx context.Context, candidateID string, limit int) ([]*types.CandidateEvent, error) {
	query := `
		SELECT id, candidate_id, event_type, actor, detail, created_at
		FROM candidate_events
		WHERE candidate_id = ?
		ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate events: %w", err)
	}
	defer rows.Close()

	var events []*types.CandidateEvent
	for rows.Next() {
		var ev types.CandidateEvent
		if err := rows.Scan(&ev.ID, &ev.CandidateID, &ev.EventType, &ev.Actor, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for candidate scanning
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row scanner) (*types.CandidateEntry, error) {
	var (
		c           types.CandidateEntry
		metadataRaw string
		processedAt sql.NullTime
		nextRetryAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.RepositoryURL, &c.SourceType, &c.Priority, &c.Status,
		&c.AttemptCount, &c.MaxAttempts, &c.LastError, &metadataRaw,
		&c.ClaimedBy, &c.CreatedAt, &c.UpdatedAt, &processedAt, &nextRetryAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataRaw != "" && metadataRaw != "{}" {
		if err := json.Unmarshal([]byte(metadataRaw), &c.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", c.ID, err)
		}
	}
	c.ProcessedAt = scanNullTime(processedAt)
	c.NextRetryAt = scanNullTime(nextRetryAt)
	return &c, nil
}

func getCandidateConn(ctx context.Context, conn *sql.Conn, id string) (*types.CandidateEntry, error) {
	row := conn.QueryRowContext(ctx, `
		SELECT id, repository_url, source_type, priority, status, attempt_count,
		       max_attempts, last_error, metadata, claimed_by, created_at,
		       updated_at, processed_at, next_retry_at
		FROM candidates WHERE id = ?
	`, id)
	candidate, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	return candidate, nil
}

func recordEvent(ctx context.Context, conn *sql.Conn, candidateID string, event types.CandidateEventType, actor, detail string) error {
	if actor == "" {
		actor = "queue"
	}
	_, err := conn.ExecContext(ctx, `
		INSERT INTO candidate_events (candidate_id, event_type, actor, detail)
		VALUES (?, ?, ?, ?)
	`, candidateID, event, actor, detail)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
