// Package intake exposes the enqueue surface to discovery sources over
// HTTP: candidate submission, candidate status, and daily stats reads.
// The public browse/search API is a separate service and not served here.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/reposcout/reposcout/internal/repourl"
	"github.com/reposcout/reposcout/internal/stats"
	"github.com/reposcout/reposcout/internal/storage"
	"github.com/reposcout/reposcout/internal/types"
)

const (
	DefaultAddr          = ":8420"
	DefaultRatePerSecond = 20
	DefaultBurst         = 40

	defaultPriority = 5
	maxBodyBytes    = 64 * 1024
)

// Config holds intake server configuration
type Config struct {
	Store storage.Storage
	Addr  string

	// RatePerSecond and Burst bound the global submission rate
	RatePerSecond float64
	Burst         int
}

// DefaultConfig returns intake configuration with default values
func DefaultConfig(store storage.Storage) *Config {
	return &Config{
		Store:         store,
		Addr:          DefaultAddr,
		RatePerSecond: DefaultRatePerSecond,
		Burst:         DefaultBurst,
	}
}

// Server is the intake HTTP server
type Server struct {
	cfg     *Config
	limiter *rate.Limiter
	router  chi.Router
}

// New creates an intake server
func New(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = DefaultRatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}

	s := &Server{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/candidates", s.handleEnqueue)
		r.Get("/candidates/{id}", s.handleGetCandidate)
		r.Get("/stats/daily", s.handleDailyStats)
	})
	s.router = r

	return s, nil
}

// Handler returns the server's HTTP handler, used directly in tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is canceled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "[intake] listening on %s\n", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

// rateLimit rejects requests above the configured submission rate
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// enqueueRequest is the submission payload
type enqueueRequest struct {
	RepositoryURL string            `json:"repository_url"`
	SourceType    string            `json:"source_type"`
	Priority      int               `json:"priority"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	canonical, err := repourl.Normalize(req.RepositoryURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid repository_url: %v", err))
		return
	}

	priority := req.Priority
	if priority == 0 {
		priority = defaultPriority
	}

	enqueue := &types.EnqueueRequest{
		RepositoryURL: canonical,
		SourceType:    types.SourceType(req.SourceType),
		Priority:      priority,
		Metadata:      req.Metadata,
	}
	if err := enqueue.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.cfg.Store.EnqueueCandidate(r.Context(), enqueue)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		fmt.Fprintf(os.Stderr, "[intake] enqueue %s failed: %v\n", canonical, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"candidate_id":   id,
		"repository_url": canonical,
	})
}

func (s *Server) handleGetCandidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	candidate, err := s.cfg.Store.GetCandidate(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if candidate == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("candidate %s not found", id))
		return
	}

	events, err := s.cfg.Store.GetCandidateEvents(r.Context(), id, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidate": candidate,
		"events":    events,
	})
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format(stats.DateFormat)
	}
	if _, err := time.Parse(stats.DateFormat, date); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", date))
		return
	}

	daily, err := s.cfg.Store.GetDailyStats(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if daily == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no stats for %s", date))
		return
	}
	writeJSON(w, http.StatusOK, daily)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Fprintf(os.Stderr, "[intake] response encoding failed: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
