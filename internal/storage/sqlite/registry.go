package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reposcout/reposcout/internal/types"
)

// PromoteCandidate performs the promotion step as one transaction: create
// the registry entry (verified=false), write the originating source's
// provenance record, persist the detector's relationship records, and mark
// the candidate completed. Everything commits or rolls back together; a
// rolled-back candidate stays processing and is picked up by the staleness
// sweep.
//
// If an entry already exists for the repository URL (re-discovery), no new
// entry is created; a provenance record is appended to the existing entry
// and the candidate still completes.
func (s *SQLiteStorage) PromoteCandidate(ctx context.Context, promotion *types.Promotion) (string, error) {
	if err := promotion.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	conn, release, err := s.beginImmediate(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	now := time.Now()

	var entryID string
	err = conn.QueryRowContext(ctx, `
		SELECT id FROM registry_entries WHERE repository_url = ?
	`, promotion.RepositoryURL).Scan(&entryID)

	switch {
	case err == sql.ErrNoRows:
		entryID = uuid.New().String()
		// Distinct repositories can land on the same slug (same owner/name
		// on different hosts), so a taken slug gets a numeric suffix rather
		// than failing the promotion.
		slug := promotion.Slug
		for n := 2; ; n++ {
			_, err = conn.ExecContext(ctx, `
				INSERT INTO registry_entries (id, slug, repository_url, verified, quality_score, created_at)
				VALUES (?, ?, ?, 0, ?, ?)
			`, entryID, slug, promotion.RepositoryURL, promotion.QualityScore, now)
			if err == nil {
				break
			}
			if !isUniqueConstraintError(err) {
				return "", fmt.Errorf("failed to create registry entry: %w", err)
			}
			slug = fmt.Sprintf("%s-%d", promotion.Slug, n)
		}
	case err != nil:
		return "", fmt.Errorf("failed to check for existing entry: %w", err)
	}

	sourceMetadata := promotion.SourceMetadata
	if sourceMetadata == "" {
		sourceMetadata = "{}"
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO provenance_records (registry_entry_id, source_type, source_metadata, discovered_at)
		VALUES (?, ?, ?, ?)
	`, entryID, promotion.SourceType, sourceMetadata, now)
	if err != nil {
		return "", fmt.Errorf("failed to record provenance: %w", err)
	}

	for _, rel := range promotion.Relationships {
		rel.RegistryEntryID = entryID
		if err := rel.Validate(); err != nil {
			return "", fmt.Errorf("invalid relationship: %w", err)
		}
		if err := insertRelationship(ctx, conn, rel); err != nil {
			return "", err
		}
	}

	// Complete the candidate inside the same transaction
	_, err = conn.ExecContext(ctx, `
		UPDATE candidates
		SET status = 'completed', processed_at = ?, updated_at = ?, last_error = '', claimed_by = ''
		WHERE id = ?
	`, now, now, promotion.CandidateID)
	if err != nil {
		return "", fmt.Errorf("failed to complete candidate: %w", err)
	}

	if err := recordEvent(ctx, conn, promotion.CandidateID, types.EventPromoted, "pipeline", entryID); err != nil {
		return "", err
	}

	if err := commitImmediate(ctx, conn); err != nil {
		return "", err
	}
	return entryID, nil
}

// RecordRelationship persists a single relationship record outside of a
// promotion, used when a duplicate candidate is skipped: the record points
// the skipped candidate at the surviving entry.
func (s *SQLiteStorage) RecordRelationship(ctx context.Context, rel *types.RelationshipRecord) error {
	if err := rel.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	conn, release, err := s.beginImmediate(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := insertRelationship(ctx, conn, rel); err != nil {
		return err
	}
	return commitImmediate(ctx, conn)
}

func insertRelationship(ctx context.Context, conn *sql.Conn, rel *types.RelationshipRecord) error {
	metadata := rel.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	// Re-running detection for the same pair refreshes the confidence
	// instead of erroring on the uniqueness constraint.
	_, err := conn.ExecContext(ctx, `
		INSERT INTO relationship_records (registry_entry_id, candidate_id, parent_entry_id, relationship_type, confidence_score, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(registry_entry_id, candidate_id, parent_entry_id, relationship_type)
		DO UPDATE SET confidence_score = excluded.confidence_score, metadata = excluded.metadata
	`, rel.RegistryEntryID, rel.CandidateID, rel.ParentEntryID, rel.Type, rel.ConfidenceScore, metadata)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}
	return nil
}

// GetRegistryEntry retrieves a registry entry by id
func (s *SQLiteStorage) GetRegistryEntry(ctx context.Context, id string) (*types.RegistryEntry, error) {
	return s.getEntryWhere(ctx, "id = ?", id)
}

// GetRegistryEntryByURL retrieves a registry entry by repository URL
func (s *SQLiteStorage) GetRegistryEntryByURL(ctx context.Context, repositoryURL string) (*types.RegistryEntry, error) {
	return s.getEntryWhere(ctx, "repository_url = ?", repositoryURL)
}

func (s *SQLiteStorage) getEntryWhere(ctx context.Context, where string, arg interface{}) (*types.RegistryEntry, error) {
	var e types.RegistryEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, repository_url, verified, quality_score, created_at
		FROM registry_entries WHERE `+where, arg).
		Scan(&e.ID, &e.Slug, &e.RepositoryURL, &e.Verified, &e.QualityScore, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get registry entry: %w", err)
	}
	return &e, nil
}

// ListRegistryEntries returns every registry entry; the relationship
// detector uses this as its comparison index.
func (s *SQLiteStorage) ListRegistryEntries(ctx context.Context) ([]*types.RegistryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, repository_url, verified, quality_score, created_at
		FROM registry_entries
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list registry entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.RegistryEntry
	for rows.Next() {
		var e types.RegistryEntry
		if err := rows.Scan(&e.ID, &e.Slug, &e.RepositoryURL, &e.Verified, &e.QualityScore, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan registry entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// GetProvenance returns a registry entry's provenance records, oldest first
func (s *SQLiteStorage) GetProvenance(ctx context.Context, registryEntryID string) ([]*types.ProvenanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registry_entry_id, source_type, source_metadata, discovered_at
		FROM provenance_records
		WHERE registry_entry_id = ?
		ORDER BY id ASC
	`, registryEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get provenance: %w", err)
	}
	defer rows.Close()

	var records []*types.ProvenanceRecord
	for rows.Next() {
		var p types.ProvenanceRecord
		if err := rows.Scan(&p.ID, &p.RegistryEntryID, &p.SourceType, &p.SourceMetadata, &p.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan provenance record: %w", err)
		}
		records = append(records, &p)
	}
	return records, rows.Err()
}

// GetRelationships returns relationship records where the entry appears on
// either side (as the entry itself or as the parent).
func (s *SQLiteStorage) GetRelationships(ctx context.Context, registryEntryID string) ([]*types.RelationshipRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, registry_entry_id, candidate_id, parent_entry_id, relationship_type, confidence_score, metadata, created_at
		FROM relationship_records
		WHERE registry_entry_id = ? OR parent_entry_id = ?
		ORDER BY id ASC
	`, registryEntryID, registryEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}
	defer rows.Close()

	var records []*types.RelationshipRecord
	for rows.Next() {
		var r types.RelationshipRecord
		if err := rows.Scan(&r.ID, &r.RegistryEntryID, &r.CandidateID, &r.ParentEntryID, &r.Type, &r.ConfidenceScore, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan relationship record: %w", err)
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
