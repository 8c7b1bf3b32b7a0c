// Package relationships classifies candidates against existing registry
// entries as forks, duplicates, templates, or loosely related projects.
// The detector only reports signals; rejection policy lives in the
// pipeline coordinator.
package relationships

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

// RelationshipCandidate is one detected link from a queue candidate to an
// existing registry entry
type RelationshipCandidate struct {
	ParentID   string
	ParentURL  string
	Type       types.RelationshipType
	Confidence float64
	Heuristic  string
}

// minActionableConfidence is the floor below which fork and duplicate
// verdicts are downgraded to related, so weak signals can never trigger
// auto-rejection downstream.
const minActionableConfidence = 0.5

const registryIndexKey = "registry_entries"

// Config holds relationship detector configuration
type Config struct {
	Store storage.Storage

	// Heuristics to run per candidate/entry pair. Defaults to the
	// built-in set when empty.
	Heuristics []Heuristic

	// IndexTTL bounds how stale the cached registry index may get
	IndexTTL time.Duration
}

// DefaultConfig returns detector configuration with default values
func DefaultConfig(store storage.Storage) *Config {
	return &Config{
		Store:    store,
		IndexTTL: 30 * time.Second,
		Heuristics: []Heuristic{
			&ExactURLHeuristic{},
			&ForkAncestryHeuristic{},
			&TemplateHeuristic{},
			&NameSimilarityHeuristic{},
		},
	}
}

// Detector runs relationship heuristics over the registry index
type Detector struct {
	store      storage.Storage
	heuristics []Heuristic
	index      *gocache.Cache
}

// New creates a relationship detector
func New(cfg *Config) (*Detector, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	heuristics := cfg.Heuristics
	if len(heuristics) == 0 {
		heuristics = DefaultConfig(cfg.Store).Heuristics
	}
	ttl := cfg.IndexTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &Detector{
		store:      cfg.Store,
		heuristics: heuristics,
		index:      gocache.New(ttl, 2*ttl),
	}, nil
}

// Classify runs every heuristic against every indexed registry entry and
// returns the detected relationships, strongest first. At most one
// relationship is reported per (entry, type) pair, keeping the highest
// confidence. Verdicts below the actionable floor come back as related.
func (d *Detector) Classify(ctx context.Context, candidate *types.CandidateEntry) ([]*RelationshipCandidate, error) {
	entries, err := d.registryIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry index: %w", err)
	}

	best := make(map[string]*RelationshipCandidate)
	for _, entry := range entries {
		for _, h := range d.heuristics {
			relType, confidence, ok := h.Detect(candidate, entry)
			if !ok {
				continue
			}
			if confidence < minActionableConfidence && (relType == types.RelFork || relType == types.RelDuplicate) {
				relType = types.RelRelated
			}

			key := entry.ID + "/" + string(relType)
			if prev, exists := best[key]; exists && prev.Confidence >= confidence {
				continue
			}
			best[key] = &RelationshipCandidate{
				ParentID:   entry.ID,
				ParentURL:  entry.RepositoryURL,
				Type:       relType,
				Confidence: confidence,
				Heuristic:  h.Name(),
			}
		}
	}

	results := make([]*RelationshipCandidate, 0, len(best))
	for _, rc := range best {
		results = append(results, rc)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].ParentID < results[j].ParentID
	})
	return results, nil
}

// Invalidate drops the cached registry index. The coordinator calls this
// after a promotion so a freshly added entry is visible to the next
// classification without waiting out the TTL.
func (d *Detector) Invalidate() {
	d.index.Delete(registryIndexKey)
}

// registryIndex returns the registry entries, cached for the index TTL
func (d *Detector) registryIndex(ctx context.Context) ([]*types.RegistryEntry, error) {
	if cached, found := d.index.Get(registryIndexKey); found {
		return cached.([]*types.RegistryEntry), nil
	}

	entries, err := d.store.ListRegistryEntries(ctx)
	if err != nil {
		return nil, err
	}
	d.index.SetDefault(registryIndexKey, entries)
	return entries, nil
}
