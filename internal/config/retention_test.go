package config

import (
	"testing"
	"time"
)

func TestDefaultRetentionConfigIsValid(t *testing.T) {
	cfg := DefaultRetentionConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if cfg.EventRetention() != 30*24*time.Hour {
		t.Errorf("event retention = %v, want 720h", cfg.EventRetention())
	}
	if cfg.InstanceCleanupAge() != 24*time.Hour {
		t.Errorf("instance cleanup age = %v, want 24h", cfg.InstanceCleanupAge())
	}
}

func TestRetentionConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RetentionConfig)
		valid  bool
	}{
		{"defaults", func(c *RetentionConfig) {}, true},
		{"zero event limit means unlimited", func(c *RetentionConfig) { c.PerCandidateEventLimit = 0 }, true},
		{"retention too short", func(c *RetentionConfig) { c.EventRetentionDays = 0 }, false},
		{"retention too long", func(c *RetentionConfig) { c.EventRetentionDays = 400 }, false},
		{"event limit below floor", func(c *RetentionConfig) { c.PerCandidateEventLimit = 5 }, false},
		{"instance age zero", func(c *RetentionConfig) { c.InstanceCleanupAgeHours = 0 }, false},
		{"instance keep negative", func(c *RetentionConfig) { c.InstanceKeep = -1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRetentionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRetentionConfigFromEnv(t *testing.T) {
	t.Setenv("REPOSCOUT_EVENT_RETENTION_DAYS", "7")
	t.Setenv("REPOSCOUT_INSTANCE_KEEP", "0")

	cfg, err := RetentionConfigFromEnv()
	if err != nil {
		t.Fatalf("from env failed: %v", err)
	}
	if cfg.EventRetentionDays != 7 {
		t.Errorf("event retention days = %d, want 7", cfg.EventRetentionDays)
	}
	if cfg.InstanceKeep != 0 {
		t.Errorf("instance keep = %d, want 0", cfg.InstanceKeep)
	}
	if cfg.PerCandidateEventLimit != DefaultRetentionConfig().PerCandidateEventLimit {
		t.Error("unset variable must keep its default")
	}
}

func TestRetentionConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("REPOSCOUT_EVENT_RETENTION_DAYS", "soon")
	if _, err := RetentionConfigFromEnv(); err == nil {
		t.Error("expected error for non-integer value")
	}

	t.Setenv("REPOSCOUT_EVENT_RETENTION_DAYS", "9999")
	if _, err := RetentionConfigFromEnv(); err == nil {
		t.Error("expected error for out-of-range value")
	}
}
