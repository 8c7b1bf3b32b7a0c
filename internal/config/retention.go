// Package config holds database maintenance configuration: how long
// candidate audit events and stopped worker instance rows are retained.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RetentionConfig bounds the growth of the audit trail and the worker
// instance table
type RetentionConfig struct {
	// EventRetentionDays is how long candidate events are kept.
	// Default: 30, Range: 1-365
	EventRetentionDays int

	// PerCandidateEventLimit caps events kept per candidate; the oldest
	// beyond the cap are deleted regardless of age. 0 = unlimited.
	// Default: 200, Range: 0 or 10-10000
	PerCandidateEventLimit int

	// InstanceCleanupAgeHours is how old a stopped worker instance row
	// must be before deletion. Default: 24, Range: 1-720
	InstanceCleanupAgeHours int

	// InstanceKeep is the minimum number of stopped instance rows kept
	// as history. Default: 10, Range: 0-1000
	InstanceKeep int
}

// DefaultRetentionConfig returns the default retention configuration
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		EventRetentionDays:      30,
		PerCandidateEventLimit:  200,
		InstanceCleanupAgeHours: 24,
		InstanceKeep:            10,
	}
}

// Validate checks if the configuration has valid values
func (c RetentionConfig) Validate() error {
	if c.EventRetentionDays < 1 || c.EventRetentionDays > 365 {
		return fmt.Errorf("event_retention_days must be between 1 and 365 (got %d)", c.EventRetentionDays)
	}
	if c.PerCandidateEventLimit != 0 && (c.PerCandidateEventLimit < 10 || c.PerCandidateEventLimit > 10000) {
		return fmt.Errorf("per_candidate_event_limit must be 0 or between 10 and 10000 (got %d)", c.PerCandidateEventLimit)
	}
	if c.InstanceCleanupAgeHours < 1 || c.InstanceCleanupAgeHours > 720 {
		return fmt.Errorf("instance_cleanup_age_hours must be between 1 and 720 (got %d)", c.InstanceCleanupAgeHours)
	}
	if c.InstanceKeep < 0 || c.InstanceKeep > 1000 {
		return fmt.Errorf("instance_keep must be between 0 and 1000 (got %d)", c.InstanceKeep)
	}
	return nil
}

// EventRetention returns the event age threshold as a duration
func (c RetentionConfig) EventRetention() time.Duration {
	return time.Duration(c.EventRetentionDays) * 24 * time.Hour
}

// InstanceCleanupAge returns the instance age threshold as a duration
func (c RetentionConfig) InstanceCleanupAge() time.Duration {
	return time.Duration(c.InstanceCleanupAgeHours) * time.Hour
}

// RetentionConfigFromEnv creates a RetentionConfig from environment
// variables, falling back to defaults.
//
// Environment variables:
//   - REPOSCOUT_EVENT_RETENTION_DAYS
//   - REPOSCOUT_PER_CANDIDATE_EVENT_LIMIT
//   - REPOSCOUT_INSTANCE_CLEANUP_AGE_HOURS
//   - REPOSCOUT_INSTANCE_KEEP
func RetentionConfigFromEnv() (RetentionConfig, error) {
	cfg := DefaultRetentionConfig()

	if err := parseEnvInt("REPOSCOUT_EVENT_RETENTION_DAYS", &cfg.EventRetentionDays); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("REPOSCOUT_PER_CANDIDATE_EVENT_LIMIT", &cfg.PerCandidateEventLimit); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("REPOSCOUT_INSTANCE_CLEANUP_AGE_HOURS", &cfg.InstanceCleanupAgeHours); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("REPOSCOUT_INSTANCE_KEEP", &cfg.InstanceKeep); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid retention configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvInt parses an integer environment variable into dst when set
func parseEnvInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", name, raw)
	}
	*dst = value
	return nil
}
