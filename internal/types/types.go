package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// CandidateEntry represents a repository URL queued for discovery processing.
// One row exists per distinct repository URL; re-enqueuing merges into the
// existing row rather than creating a second one. Rows are never hard-deleted:
// terminal states are retained for audit.
type CandidateEntry struct {
	ID            string            `json:"id"`
	RepositoryURL string            `json:"repository_url"`
	SourceType    SourceType        `json:"source_type"`
	Priority      int               `json:"priority"`
	Status        CandidateStatus   `json:"status"`
	AttemptCount  int               `json:"attempt_count"`
	MaxAttempts   int               `json:"max_attempts"`
	LastError     string            `json:"last_error,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ClaimedBy     string            `json:"claimed_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
	NextRetryAt   *time.Time        `json:"next_retry_at,omitempty"`
}

// Validate checks if the candidate has valid field values
func (c *CandidateEntry) Validate() error {
	if c.RepositoryURL == "" {
		return fmt.Errorf("repository_url is required")
	}
	if c.Priority < 1 || c.Priority > 10 {
		return fmt.Errorf("priority must be between 1 and 10 (got %d)", c.Priority)
	}
	if !c.SourceType.IsValid() {
		return fmt.Errorf("invalid source type: %s", c.SourceType)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", c.Status)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1 (got %d)", c.MaxAttempts)
	}
	return nil
}

// Terminal reports whether the candidate can never be claimed again.
// A failed candidate is terminal once its retry budget is exhausted.
func (c *CandidateEntry) Terminal() bool {
	switch c.Status {
	case StatusCompleted, StatusSkipped:
		return true
	case StatusFailed:
		return c.AttemptCount >= c.MaxAttempts
	}
	return false
}

// SourceType identifies which discovery channel produced a candidate
type SourceType string

const (
	SourceAutomatedSearch     SourceType = "automated_search"
	SourceCommunitySubmission SourceType = "community_submission"
	SourceCuratedList         SourceType = "curated_list"
	SourceWebhook             SourceType = "webhook"
	SourceManual              SourceType = "manual"
)

// IsValid checks if the source type value is valid
func (s SourceType) IsValid() bool {
	switch s {
	case SourceAutomatedSearch, SourceCommunitySubmission, SourceCuratedList, SourceWebhook, SourceManual:
		return true
	}
	return false
}

// CandidateStatus represents the queue state of a candidate
type CandidateStatus string

const (
	StatusPending    CandidateStatus = "pending"
	StatusProcessing CandidateStatus = "processing"
	StatusFailed     CandidateStatus = "failed"
	StatusCompleted  CandidateStatus = "completed"
	StatusSkipped    CandidateStatus = "skipped"
)

// IsValid checks if the status value is valid
func (s CandidateStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusFailed, StatusCompleted, StatusSkipped:
		return true
	}
	return false
}

// RuleKind categorizes validation rules by the checker that executes them
type RuleKind string

const (
	KindFileStructure  RuleKind = "file_structure"
	KindDependency     RuleKind = "dependency"
	KindInstallTest    RuleKind = "install_test"
	KindFunctionalTest RuleKind = "functional_test"
)

// IsValid checks if the rule kind value is valid
func (k RuleKind) IsValid() bool {
	switch k {
	case KindFileStructure, KindDependency, KindInstallTest, KindFunctionalTest:
		return true
	}
	return false
}

// Deterministic reports whether a failure of this rule kind is structural
// and will not change on retry. Install and functional checks touch the
// network and external processes, so their failures are treated as transient.
func (k RuleKind) Deterministic() bool {
	return k == KindFileStructure || k == KindDependency
}

// ValidationRule is a configurable, weighted pass/fail criterion.
// Disabled rules are excluded from both gating and scoring.
type ValidationRule struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      RuleKind        `json:"kind"`
	Enabled   bool            `json:"enabled"`
	Required  bool            `json:"required"`
	Criteria  json.RawMessage `json:"criteria,omitempty"`
	Weight    int             `json:"weight"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Validate checks if the rule has valid field values
func (r *ValidationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid rule kind: %s", r.Kind)
	}
	if r.Weight <= 0 {
		return fmt.Errorf("weight must be positive (got %d)", r.Weight)
	}
	return nil
}

// ValidationResult is one rule execution against one candidate.
// Results are append-only: retries produce new rows, preserving the
// full evaluation history.
type ValidationResult struct {
	ID           int64     `json:"id"`
	CandidateID  string    `json:"candidate_id"`
	RuleName     string    `json:"rule_name"`
	Kind         RuleKind  `json:"kind"`
	Passed       bool      `json:"passed"`
	Score        int       `json:"score"`
	Details      string    `json:"details,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ValidatedAt  time.Time `json:"validated_at"`
}

// Validate checks if the result has valid field values
func (v *ValidationResult) Validate() error {
	if v.CandidateID == "" {
		return fmt.Errorf("candidate_id is required")
	}
	if !v.Kind.IsValid() {
		return fmt.Errorf("invalid rule kind: %s", v.Kind)
	}
	if v.Score < 0 || v.Score > 100 {
		return fmt.Errorf("score must be between 0 and 100 (got %d)", v.Score)
	}
	return nil
}

// RegistryEntry is a promoted candidate. Created exactly once per promoted
// repository URL; downstream browse/search reads these rows.
type RegistryEntry struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	RepositoryURL string    `json:"repository_url"`
	Verified      bool      `json:"verified"`
	QualityScore  int       `json:"quality_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProvenanceRecord ties a registry entry back to the discovery source that
// produced it. An entry accumulates one record per contributing source,
// so a re-discovered repository keeps its full discovery history.
type ProvenanceRecord struct {
	ID              int64      `json:"id"`
	RegistryEntryID string     `json:"registry_entry_id"`
	SourceType      SourceType `json:"source_type"`
	SourceMetadata  string     `json:"source_metadata,omitempty"`
	DiscoveredAt    time.Time  `json:"discovered_at"`
}

// RelationshipType classifies how a registry entry relates to another
type RelationshipType string

const (
	RelFork      RelationshipType = "fork"
	RelDuplicate RelationshipType = "duplicate"
	RelTemplate  RelationshipType = "template"
	RelRelated   RelationshipType = "related"
)

// IsValid checks if the relationship type value is valid
func (r RelationshipType) IsValid() bool {
	switch r {
	case RelFork, RelDuplicate, RelTemplate, RelRelated:
		return true
	}
	return false
}

// RelationshipRecord links a registry entry to a parent entry.
// Unique per (registry_entry_id, parent_entry_id, relationship_type).
// A duplicate suppression record carries the skipped candidate's ID and
// no registry entry, since no new entry is created for duplicates.
type RelationshipRecord struct {
	ID              int64            `json:"id"`
	RegistryEntryID string           `json:"registry_entry_id,omitempty"`
	CandidateID     string           `json:"candidate_id,omitempty"`
	ParentEntryID   string           `json:"parent_entry_id,omitempty"`
	Type            RelationshipType `json:"relationship_type"`
	ConfidenceScore float64          `json:"confidence_score"`
	Metadata        string           `json:"metadata,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Validate checks if the relationship has valid field values
func (r *RelationshipRecord) Validate() error {
	if r.RegistryEntryID == "" && r.CandidateID == "" {
		return fmt.Errorf("one of registry_entry_id or candidate_id is required")
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("invalid relationship type: %s", r.Type)
	}
	if r.ConfidenceScore < 0.0 || r.ConfidenceScore > 1.0 {
		return fmt.Errorf("confidence_score must be between 0.0 and 1.0 (got %.2f)", r.ConfidenceScore)
	}
	return nil
}

// DailyStats is a per-day rollup of pipeline outcomes. Rows are recomputed
// and replaced wholesale, never incremented, so repeated aggregation runs
// for the same date are idempotent.
type DailyStats struct {
	Date                   string         `json:"date"` // YYYY-MM-DD
	Discovered             int            `json:"discovered"`
	Validated              int            `json:"validated"`
	Added                  int            `json:"added"`
	Rejected               int            `json:"rejected"`
	PassRate               float64        `json:"pass_rate"`
	AvgValidationLatencyMs int            `json:"avg_validation_latency_ms"`
	SourceBreakdown        map[string]int `json:"source_breakdown,omitempty"`
	ComputedAt             time.Time      `json:"computed_at"`
}

// WorkerInstance tracks a running pipeline worker for multi-worker coordination
type WorkerInstance struct {
	InstanceID    string    `json:"instance_id"`
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// CandidateEvent is an audit trail entry for a candidate's lifecycle
type CandidateEvent struct {
	ID          int64              `json:"id"`
	CandidateID string             `json:"candidate_id"`
	EventType   CandidateEventType `json:"event_type"`
	Actor       string             `json:"actor"`
	Detail      string             `json:"detail,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// CandidateEventType categorizes audit trail events
type CandidateEventType string

const (
	EventEnqueued  CandidateEventType = "enqueued"
	EventMerged    CandidateEventType = "merged"
	EventClaimed   CandidateEventType = "claimed"
	EventCompleted CandidateEventType = "completed"
	EventFailed    CandidateEventType = "failed"
	EventSkipped   CandidateEventType = "skipped"
	EventReclaimed CandidateEventType = "reclaimed"
	EventPromoted  CandidateEventType = "promoted"
)

// CandidateFilter narrows candidate listings
type CandidateFilter struct {
	Status     *CandidateStatus
	SourceType *SourceType
	Limit      int
}

// EnqueueRequest is the enqueue operation's input. RepositoryURL must
// already be canonicalized by the caller.
type EnqueueRequest struct {
	RepositoryURL string            `json:"repository_url"`
	SourceType    SourceType        `json:"source_type"`
	Priority      int               `json:"priority"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	MaxAttempts   int               `json:"max_attempts,omitempty"`
}

// Validate checks if the request has valid field values
func (r *EnqueueRequest) Validate() error {
	if r.RepositoryURL == "" {
		return fmt.Errorf("repository_url is required")
	}
	if !r.SourceType.IsValid() {
		return fmt.Errorf("invalid source type: %s", r.SourceType)
	}
	if r.Priority < 1 || r.Priority > 10 {
		return fmt.Errorf("priority must be between 1 and 10 (got %d)", r.Priority)
	}
	return nil
}

// Promotion carries everything the single promotion transaction writes:
// the new registry entry, the originating source's provenance, and any
// relationship records the detector produced.
type Promotion struct {
	CandidateID    string
	RepositoryURL  string
	Slug           string
	QualityScore   int
	SourceType     SourceType
	SourceMetadata string
	Relationships  []*RelationshipRecord
}

// Validate checks if the promotion has valid field values
func (p *Promotion) Validate() error {
	if p.CandidateID == "" {
		return fmt.Errorf("candidate_id is required")
	}
	if p.RepositoryURL == "" {
		return fmt.Errorf("repository_url is required")
	}
	if p.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if !p.SourceType.IsValid() {
		return fmt.Errorf("invalid source type: %s", p.SourceType)
	}
	return nil
}
