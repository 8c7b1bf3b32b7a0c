package sqlite

const schema = `
-- Candidates table (the discovery queue)
-- One row per distinct repository URL. Rows are never deleted; terminal
-- states are kept for audit.
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT PRIMARY KEY,
    repository_url TEXT NOT NULL UNIQUE,
    source_type TEXT NOT NULL CHECK(source_type IN ('automated_search', 'community_submission', 'curated_list', 'webhook', 'manual')),
    priority INTEGER NOT NULL DEFAULT 5 CHECK(priority >= 1 AND priority <= 10),
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'processing', 'failed', 'completed', 'skipped')),
    attempt_count INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL DEFAULT 3,
    last_error TEXT NOT NULL DEFAULT '',
    metadata TEXT NOT NULL DEFAULT '{}',
    claimed_by TEXT NOT NULL DEFAULT '',
    claimed_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    processed_at DATETIME,
    next_retry_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE INDEX IF NOT EXISTS idx_candidates_claim ON candidates(status, priority, created_at);
CREATE INDEX IF NOT EXISTS idx_candidates_retry ON candidates(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_candidates_claimed_at ON candidates(claimed_at);

-- Validation rules table
CREATE TABLE IF NOT EXISTS validation_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL CHECK(kind IN ('file_structure', 'dependency', 'install_test', 'functional_test')),
    enabled INTEGER NOT NULL DEFAULT 1,
    required INTEGER NOT NULL DEFAULT 0,
    criteria TEXT NOT NULL DEFAULT '{}',
    weight INTEGER NOT NULL CHECK(weight > 0),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Validation results table (append-only)
-- One row per rule execution. Never updated, so the full evaluation
-- history survives retries.
CREATE TABLE IF NOT EXISTS validation_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    candidate_id TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    passed INTEGER NOT NULL,
    score INTEGER NOT NULL CHECK(score >= 0 AND score <= 100),
    details TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    validated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (candidate_id) REFERENCES candidates(id)
);

CREATE INDEX IF NOT EXISTS idx_results_candidate ON validation_results(candidate_id);
CREATE INDEX IF NOT EXISTS idx_results_validated_at ON validation_results(validated_at);

-- Registry entries table (promotion output, read by the browse/search API)
CREATE TABLE IF NOT EXISTS registry_entries (
    id TEXT PRIMARY KEY,
    slug TEXT NOT NULL UNIQUE,
    repository_url TEXT NOT NULL UNIQUE,
    verified INTEGER NOT NULL DEFAULT 0,
    quality_score INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Provenance records table
-- One row per contributing discovery source; re-discovered entries
-- accumulate additional rows.
CREATE TABLE IF NOT EXISTS provenance_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    registry_entry_id TEXT NOT NULL,
    source_type TEXT NOT NULL,
    source_metadata TEXT NOT NULL DEFAULT '{}',
    discovered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (registry_entry_id) REFERENCES registry_entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_provenance_entry ON provenance_records(registry_entry_id);

-- Relationship records table
-- registry_entry_id is empty for duplicate-suppression records, which
-- carry the skipped candidate's id instead (no entry is created for
-- duplicates).
CREATE TABLE IF NOT EXISTS relationship_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    registry_entry_id TEXT NOT NULL DEFAULT '',
    candidate_id TEXT NOT NULL DEFAULT '',
    parent_entry_id TEXT NOT NULL DEFAULT '',
    relationship_type TEXT NOT NULL CHECK(relationship_type IN ('fork', 'duplicate', 'template', 'related')),
    confidence_score REAL NOT NULL CHECK(confidence_score >= 0.0 AND confidence_score <= 1.0),
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(registry_entry_id, candidate_id, parent_entry_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_entry ON relationship_records(registry_entry_id);
CREATE INDEX IF NOT EXISTS idx_relationships_parent ON relationship_records(parent_entry_id);

-- Daily stats table (recomputed and replaced, never incremented)
CREATE TABLE IF NOT EXISTS daily_stats (
    date TEXT PRIMARY KEY,
    discovered INTEGER NOT NULL DEFAULT 0,
    validated INTEGER NOT NULL DEFAULT 0,
    added INTEGER NOT NULL DEFAULT 0,
    rejected INTEGER NOT NULL DEFAULT 0,
    pass_rate REAL NOT NULL DEFAULT 0,
    avg_validation_latency_ms INTEGER NOT NULL DEFAULT 0,
    source_breakdown TEXT NOT NULL DEFAULT '{}',
    computed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Worker instances table
-- Tracks running pipeline workers for multi-worker coordination
CREATE TABLE IF NOT EXISTS worker_instances (
    instance_id TEXT PRIMARY KEY,
    hostname TEXT NOT NULL,
    pid INTEGER NOT NULL,
    status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'stopped')),
    version TEXT NOT NULL DEFAULT '',
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_heartbeat DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_instances_status ON worker_instances(status);
CREATE INDEX IF NOT EXISTS idx_instances_heartbeat ON worker_instances(last_heartbeat);

-- Candidate events table (audit trail)
CREATE TABLE IF NOT EXISTS candidate_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    candidate_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (candidate_id) REFERENCES candidates(id)
);

CREATE INDEX IF NOT EXISTS idx_events_candidate ON candidate_events(candidate_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON candidate_events(created_at);
`
