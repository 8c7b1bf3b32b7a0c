package storage

import (
	"context"
	"time"

	"github.com/reposcout/reposcout/internal/storage/sqlite"
	"github.com/reposcout/reposcout/internal/types"
)

// Storage defines the interface for discovery pipeline storage backends.
// All queue mutation, validation history, and registry writes go through
// this interface; no component touches the tables directly.
type Storage interface {
	// Discovery Queue
	EnqueueCandidate(ctx context.Context, req *types.EnqueueRequest) (string, error)
	GetCandidate(ctx context.Context, id string) (*types.CandidateEntry, error)
	GetCandidateByURL(ctx context.Context, repositoryURL string) (*types.CandidateEntry, error)
	ListCandidates(ctx context.Context, filter types.CandidateFilter) ([]*types.CandidateEntry, error)
	DequeueNext(ctx context.Context, workerID string) (*types.CandidateEntry, error)
	CompleteSuccess(ctx context.Context, id string) error
	CompleteFailure(ctx context.Context, id string, cause string) error
	SkipCandidate(ctx context.Context, id string, reason string) error
	RecordCandidateError(ctx context.Context, id string, cause string) error
	ReclaimStale(ctx context.Context, staleThreshold time.Duration) (int, error)

	// Validation Rules
	CreateRule(ctx context.Context, rule *types.ValidationRule) error
	GetRule(ctx context.Context, name string) (*types.ValidationRule, error)
	ListRules(ctx context.Context, enabledOnly bool) ([]*types.ValidationRule, error)
	UpdateRule(ctx context.Context, name string, updates map[string]interface{}) error
	DeleteRule(ctx context.Context, name string) error

	// Validation Results (append-only)
	RecordValidationResult(ctx context.Context, result *types.ValidationResult) error
	GetValidationResults(ctx context.Context, candidateID string) ([]*types.ValidationResult, error)

	// Registry
	PromoteCandidate(ctx context.Context, promotion *types.Promotion) (string, error)
	RecordRelationship(ctx context.Context, rel *types.RelationshipRecord) error
	GetRegistryEntry(ctx context.Context, id string) (*types.RegistryEntry, error)
	GetRegistryEntryByURL(ctx context.Context, repositoryURL string) (*types.RegistryEntry, error)
	ListRegistryEntries(ctx context.Context) ([]*types.RegistryEntry, error)
	GetProvenance(ctx context.Context, registryEntryID string) ([]*types.ProvenanceRecord, error)
	GetRelationships(ctx context.Context, registryEntryID string) ([]*types.RelationshipRecord, error)

	// Daily Stats
	RecomputeDailyStats(ctx context.Context, date string) (*types.DailyStats, error)
	GetDailyStats(ctx context.Context, date string) (*types.DailyStats, error)

	// Worker Instances
	RegisterInstance(ctx context.Context, instance *types.WorkerInstance) error
	UpdateHeartbeat(ctx context.Context, instanceID string) error
	MarkInstanceStopped(ctx context.Context, instanceID string) error
	GetActiveInstances(ctx context.Context) ([]*types.WorkerInstance, error)

	// Candidate audit trail
	GetCandidateEvents(ctx context.Context, candidateID string, limit int) ([]*types.CandidateEvent, error)

	// Maintenance
	PruneEvents(ctx context.Context, olderThan time.Duration, perCandidateLimit int) (int, error)
	PruneStoppedInstances(ctx context.Context, olderThan time.Duration, keep int) (int, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".reposcout/reposcout.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".reposcout/reposcout.db",
	}
}

// New creates a new SQLite storage backend
func New(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = ".reposcout/reposcout.db"
	}

	return sqlite.New(cfg.Path)
}
