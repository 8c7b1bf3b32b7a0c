package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/reposcout/reposcout/internal/types"
)

// RecomputeDailyStats rebuilds the rollup row for a date (YYYY-MM-DD) from
// the queue and validation-result tables and upserts it, replacing any
// previous values. Repeated runs for the same date converge on the same
// row, so the aggregator can be re-run freely.
func (s *SQLiteStorage) RecomputeDailyStats(ctx context.Context, date string) (*types.DailyStats, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", date, err)
	}

	stats := &types.DailyStats{
		Date:            date,
		SourceBreakdown: map[string]int{},
		ComputedAt:      time.Now(),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM candidates WHERE DATE(created_at) = ?
	`, date).Scan(&stats.Discovered)
	if err != nil {
		return nil, fmt.Errorf("failed to count discovered: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT candidate_id) FROM validation_results WHERE DATE(validated_at) = ?
	`, date).Scan(&stats.Validated)
	if err != nil {
		return nil, fmt.Errorf("failed to count validated: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registry_entries WHERE DATE(created_at) = ?
	`, date).Scan(&stats.Added)
	if err != nil {
		return nil, fmt.Errorf("failed to count added: %w", err)
	}

	// Rejected = candidates that reached a terminal non-promoted state that
	// day. Terminally failed rows have no retry time left.
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM candidates
		WHERE DATE(processed_at) = ?
		  AND (status = 'skipped' OR (status = 'failed' AND attempt_count >= max_attempts))
	`, date).Scan(&stats.Rejected)
	if err != nil {
		return nil, fmt.Errorf("failed to count rejected: %w", err)
	}

	var passRate sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(CASE WHEN passed THEN 1.0 ELSE 0.0 END)
		FROM validation_results WHERE DATE(validated_at) = ?
	`, date).Scan(&passRate)
	if err != nil {
		return nil, fmt.Errorf("failed to compute pass rate: %w", err)
	}
	if passRate.Valid {
		stats.PassRate = passRate.Float64
	}

	// Validation latency = claim to terminal outcome, averaged over
	// candidates finished that day.
	var latencyMs sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG((JULIANDAY(processed_at) - JULIANDAY(claimed_at)) * 86400000.0)
		FROM candidates
		WHERE DATE(processed_at) = ? AND claimed_at IS NOT NULL
	`, date).Scan(&latencyMs)
	if err != nil {
		return nil, fmt.Errorf("failed to compute validation latency: %w", err)
	}
	if latencyMs.Valid && latencyMs.Float64 > 0 {
		stats.AvgValidationLatencyMs = int(latencyMs.Float64)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_type, COUNT(*) FROM candidates
		WHERE DATE(created_at) = ?
		GROUP BY source_type
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to compute source breakdown: %w", err)
	}
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan source breakdown: %w", err)
		}
		stats.SourceBreakdown[source] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source breakdown: %w", err)
	}

	breakdown, err := json.Marshal(stats.SourceBreakdown)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal source breakdown: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_stats (date, discovered, validated, added, rejected, pass_rate, avg_validation_latency_ms, source_breakdown, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			discovered = excluded.discovered,
			validated = excluded.validated,
			added = excluded.added,
			rejected = excluded.rejected,
			pass_rate = excluded.pass_rate,
			avg_validation_latency_ms = excluded.avg_validation_latency_ms,
			source_breakdown = excluded.source_breakdown,
			computed_at = excluded.computed_at
	`, stats.Date, stats.Discovered, stats.Validated, stats.Added, stats.Rejected,
		stats.PassRate, stats.AvgValidationLatencyMs, string(breakdown), stats.ComputedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert daily stats: %w", err)
	}

	return stats, nil
}

// GetDailyStats retrieves the rollup row for a date
func (s *SQLiteStorage) GetDailyStats(ctx context.Context, date string) (*types.DailyStats, error) {
	var (
		stats        types.DailyStats
		breakdownRaw string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT date, discovered, validated, added, rejected, pass_rate, avg_validation_latency_ms, source_breakdown, computed_at
		FROM daily_stats WHERE date = ?
	`, date).Scan(&stats.Date, &stats.Discovered, &stats.Validated, &stats.Added,
		&stats.Rejected, &stats.PassRate, &stats.AvgValidationLatencyMs, &breakdownRaw, &stats.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}

	if breakdownRaw != "" && breakdownRaw != "{}" {
		if err := json.Unmarshal([]byte(breakdownRaw), &stats.SourceBreakdown); err != nil {
			return nil, fmt.Errorf("failed to decode source breakdown: %w", err)
		}
	}
	return &stats, nil
}
