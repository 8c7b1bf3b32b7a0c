// Package pipeline runs the discovery pipeline: workers dequeue
// candidates, validate them, check relationships against the registry,
// and promote or reject, with crash recovery via a staleness sweep.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/reposcout/reposcout/internal/relationships"
	"github.com/reposcout/reposcout/internal/repourl"
	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
	"github.com/reposcout/reposcout/internal/validation"
)

// Validator evaluates a candidate against the rule store
type Validator interface {
	Evaluate(ctx context.Context, candidate *types.CandidateEntry) (*validation.Outcome, error)
}

// Classifier detects relationships between a candidate and registry entries
type Classifier interface {
	Classify(ctx context.Context, candidate *types.CandidateEntry) ([]*relationships.RelationshipCandidate, error)
	Invalidate()
}

const (
	// DuplicateSkipThreshold is the confidence at or above which a
	// duplicate verdict suppresses promotion
	DuplicateSkipThreshold = 0.9

	DefaultWorkers           = 2
	DefaultPollInterval      = 2 * time.Second
	DefaultStaleThreshold    = 10 * time.Minute
	DefaultSweepInterval     = time.Minute
	DefaultHeartbeatInterval = 30 * time.Second
)

// Config holds pipeline coordinator configuration
type Config struct {
	Store      storage.Storage
	Validator  Validator
	Classifier Classifier

	// Workers is the number of concurrent dequeue loops
	Workers int

	// PollInterval is how long an idle worker waits between dequeues
	PollInterval time.Duration

	// StaleThreshold marks candidates stuck processing as crashed
	StaleThreshold time.Duration

	// SweepInterval is how often the staleness sweep runs
	SweepInterval time.Duration

	// HeartbeatInterval is how often the instance heartbeat is refreshed
	HeartbeatInterval time.Duration

	// Version is recorded on the worker instance row
	Version string
}

// DefaultConfig returns coordinator configuration with default values
func DefaultConfig(store storage.Storage, validator Validator, classifier Classifier) *Config {
	return &Config{
		Store:             store,
		Validator:         validator,
		Classifier:        classifier,
		Workers:           DefaultWorkers,
		PollInterval:      DefaultPollInterval,
		StaleThreshold:    DefaultStaleThreshold,
		SweepInterval:     DefaultSweepInterval,
		HeartbeatInterval: DefaultHeartbeatInterval,
	}
}

// Coordinator drives the pipeline state machine for one process
type Coordinator struct {
	cfg        *Config
	instanceID string
}

// New creates a pipeline coordinator
func New(cfg *Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return &Coordinator{
		cfg:        cfg,
		instanceID: uuid.New().String(),
	}, nil
}

// InstanceID returns this coordinator's worker instance id
func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Run registers the worker instance and drives the worker, heartbeat, and
// staleness-sweep loops until the context is canceled
func (c *Coordinator) Run(ctx context.Context) error {
	hostname, _ := os.Hostname()
	err := c.cfg.Store.RegisterInstance(ctx, &types.WorkerInstance{
		InstanceID: c.instanceID,
		Hostname:   hostname,
		PID:        os.Getpid(),
		Status:     "running",
		Version:    c.cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	fmt.Fprintf(os.Stderr, "[pipeline] instance %s starting %d workers (poll %s, stale threshold %s)\n",
		c.instanceID, c.cfg.Workers, c.cfg.PollInterval, c.cfg.StaleThreshold)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		workerID := fmt.Sprintf("%s/worker-%d", c.instanceID, i)
		g.Go(func() error { return c.workerLoop(gctx, workerID) })
	}
	g.Go(func() error { return c.heartbeatLoop(gctx) })
	g.Go(func() error { return c.sweepLoop(gctx) })

	runErr := g.Wait()

	// Best-effort deregistration with a fresh context; the run context
	// is already canceled on the shutdown path.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.cfg.Store.MarkInstanceStopped(stopCtx, c.instanceID); err != nil {
		fmt.Fprintf(os.Stderr, "[pipeline] instance %s: failed to mark stopped: %v\n", c.instanceID, err)
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// workerLoop drains the queue, sleeping only when it comes up empty
func (c *Coordinator) workerLoop(ctx context.Context, workerID string) error {
	for {
		processed, err := c.ProcessNext(ctx, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "[%s] %v\n", workerID, err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

// ProcessNext claims and fully processes one candidate. It reports whether
// a candidate was claimed; a returned error never means the claim was lost,
// only that processing it failed.
func (c *Coordinator) ProcessNext(ctx context.Context, workerID string) (bool, error) {
	candidate, err := c.cfg.Store.DequeueNext(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("dequeue failed: %w", err)
	}
	if candidate == nil {
		return false, nil
	}

	outcome, err := c.cfg.Validator.Evaluate(ctx, candidate)
	if err != nil {
		// Storage-level abort: treat as transient so the retry budget,
		// not a crash loop, decides the candidate's fate
		ferr := c.cfg.Store.CompleteFailure(ctx, candidate.ID, fmt.Sprintf("validation aborted: %v", err))
		if ferr != nil {
			return true, fmt.Errorf("candidate %s: %v (and failure not recorded: %v)", candidate.ID, err, ferr)
		}
		return true, nil
	}

	if !outcome.Passed {
		return true, c.handleRequiredFailure(ctx, candidate, outcome)
	}

	verdicts, err := c.cfg.Classifier.Classify(ctx, candidate)
	if err != nil {
		ferr := c.cfg.Store.CompleteFailure(ctx, candidate.ID, fmt.Sprintf("relationship detection failed: %v", err))
		if ferr != nil {
			return true, fmt.Errorf("candidate %s: %v (and failure not recorded: %v)", candidate.ID, err, ferr)
		}
		return true, nil
	}

	if dup := strongestDuplicate(verdicts); dup != nil {
		return true, c.suppressDuplicate(ctx, candidate, dup)
	}

	return true, c.promote(ctx, candidate, outcome, verdicts)
}

// handleRequiredFailure routes a failed candidate by the kinds of its
// failing required rules. A deterministic failure (file structure,
// dependency) will not change on retry and skips the candidate outright;
// install and functional failures consume retry budget instead.
func (c *Coordinator) handleRequiredFailure(ctx context.Context, candidate *types.CandidateEntry, outcome *validation.Outcome) error {
	var deterministic *types.ValidationRule
	for _, rule := range outcome.RequiredFailures {
		if rule.Kind.Deterministic() {
			deterministic = rule
			break
		}
	}

	if deterministic != nil {
		reason := fmt.Sprintf("failed required %s rule %q", deterministic.Kind, deterministic.Name)
		if err := c.cfg.Store.SkipCandidate(ctx, candidate.ID, reason); err != nil {
			return fmt.Errorf("candidate %s: skip failed: %w", candidate.ID, err)
		}
		fmt.Fprintf(os.Stderr, "[pipeline] skipped %s: %s\n", candidate.ID, reason)
		return nil
	}

	// The engine always names the failing rules, but the interface does
	// not guarantee that for other Validator implementations.
	cause := "validation failed"
	if len(outcome.RequiredFailures) > 0 {
		first := outcome.RequiredFailures[0]
		cause = fmt.Sprintf("failed required %s rule %q", first.Kind, first.Name)
	}
	if err := c.cfg.Store.CompleteFailure(ctx, candidate.ID, cause); err != nil {
		return fmt.Errorf("candidate %s: failure not recorded: %w", candidate.ID, err)
	}
	return nil
}

// suppressDuplicate skips a duplicate candidate, recording the
// relationship to the surviving entry without creating a new one
func (c *Coordinator) suppressDuplicate(ctx context.Context, candidate *types.CandidateEntry, dup *relationships.RelationshipCandidate) error {
	rel := &types.RelationshipRecord{
		CandidateID:     candidate.ID,
		ParentEntryID:   dup.ParentID,
		Type:            types.RelDuplicate,
		ConfidenceScore: dup.Confidence,
		Metadata:        fmt.Sprintf(`{"heuristic":%q}`, dup.Heuristic),
	}
	if err := c.cfg.Store.RecordRelationship(ctx, rel); err != nil {
		return fmt.Errorf("candidate %s: relationship not recorded: %w", candidate.ID, err)
	}

	reason := fmt.Sprintf("duplicate of %s (confidence %.2f)", dup.ParentID, dup.Confidence)
	if err := c.cfg.Store.SkipCandidate(ctx, candidate.ID, reason); err != nil {
		return fmt.Errorf("candidate %s: skip failed: %w", candidate.ID, err)
	}
	fmt.Fprintf(os.Stderr, "[pipeline] skipped %s: %s\n", candidate.ID, reason)
	return nil
}

// promote writes the registry entry, provenance, and relationships in one
// transaction. On failure the candidate stays processing and the staleness
// sweep requeues it.
func (c *Coordinator) promote(ctx context.Context, candidate *types.CandidateEntry, outcome *validation.Outcome, verdicts []*relationships.RelationshipCandidate) error {
	var rels []*types.RelationshipRecord
	for _, v := range verdicts {
		if v.Type == types.RelDuplicate {
			continue
		}
		rels = append(rels, &types.RelationshipRecord{
			ParentEntryID:   v.ParentID,
			Type:            v.Type,
			ConfidenceScore: v.Confidence,
			Metadata:        fmt.Sprintf(`{"heuristic":%q}`, v.Heuristic),
		})
	}

	sourceMetadata := ""
	if len(candidate.Metadata) > 0 {
		if data, err := json.Marshal(candidate.Metadata); err == nil {
			sourceMetadata = string(data)
		}
	}

	entryID, err := c.cfg.Store.PromoteCandidate(ctx, &types.Promotion{
		CandidateID:    candidate.ID,
		RepositoryURL:  candidate.RepositoryURL,
		Slug:           repourl.Slug(candidate.RepositoryURL),
		QualityScore:   outcome.Score,
		SourceType:     candidate.SourceType,
		SourceMetadata: sourceMetadata,
		Relationships:  rels,
	})
	if err != nil {
		// The candidate stays processing for the staleness sweep; record
		// the cause so it is visible on the row until then and in the
		// audit trail after.
		cause := fmt.Sprintf("promotion failed: %v", err)
		if recErr := c.cfg.Store.RecordCandidateError(ctx, candidate.ID, cause); recErr != nil {
			fmt.Fprintf(os.Stderr, "[pipeline] candidate %s: %v\n", candidate.ID, recErr)
		}
		return fmt.Errorf("candidate %s: promotion failed: %w", candidate.ID, err)
	}

	c.cfg.Classifier.Invalidate()
	fmt.Fprintf(os.Stderr, "[pipeline] promoted %s -> entry %s (score %d)\n", candidate.ID, entryID, outcome.Score)
	return nil
}

// heartbeatLoop refreshes the instance heartbeat until shutdown
func (c *Coordinator) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.cfg.Store.UpdateHeartbeat(ctx, c.instanceID); err != nil {
				fmt.Fprintf(os.Stderr, "[pipeline] heartbeat failed: %v\n", err)
			}
		}
	}
}

// sweepLoop periodically reclaims candidates stranded in processing by a
// crashed worker
func (c *Coordinator) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reclaimed, err := c.cfg.Store.ReclaimStale(ctx, c.cfg.StaleThreshold)
			if err != nil {
				fmt.Fprintf(os.Stderr, "[pipeline] staleness sweep failed: %v\n", err)
				continue
			}
			if reclaimed > 0 {
				fmt.Fprintf(os.Stderr, "[pipeline] staleness sweep reclaimed %d candidates\n", reclaimed)
			}
		}
	}
}

// strongestDuplicate returns the highest-confidence duplicate verdict at
// or above the skip threshold, or nil
func strongestDuplicate(verdicts []*relationships.RelationshipCandidate) *relationships.RelationshipCandidate {
	var best *relationships.RelationshipCandidate
	for _, v := range verdicts {
		if v.Type != types.RelDuplicate || v.Confidence < DuplicateSkipThreshold {
			continue
		}
		if best == nil || v.Confidence > best.Confidence {
			best = v
		}
	}
	return best
}
