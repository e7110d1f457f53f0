package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jdziat/delayed/pkg/codec"
	"github.com/jdziat/delayed/pkg/core"
)

// MaxFailedLimit caps the limit parameter of GET /jobs/failed.
const MaxFailedLimit = 500

type server struct {
	store  core.Storage
	logger zerolog.Logger
	limit  int
}

// NewHandler returns the admin API for store.
func NewHandler(store core.Storage, opts ...Option) http.Handler {
	cfg := &config{defaultLimit: 50}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	s := &server{store: store, logger: log.Logger, limit: cfg.defaultLimit}
	if cfg.logger != nil {
		s.logger = *cfg.logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Use(cfg.middleware...)

	r.Get("/health", s.health)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/failed", s.failed)
		r.Get("/{id}", s.getJob)
		r.Post("/{id}/retry", s.retry)
	})
	return r
}

// jobView is the JSON form of a job row.
type jobView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Priority  int        `json:"priority"`
	Attempts  int        `json:"attempts"`
	Handler   string     `json:"handler"`
	LastError *string    `json:"last_error,omitempty"`
	RunAt     time.Time  `json:"run_at"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LockedBy  *string    `json:"locked_by,omitempty"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`
	UniqueKey *string    `json:"unique_key,omitempty"`
	Server    *string    `json:"server,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newJobView(j *core.Job) jobView {
	return jobView{
		ID:        j.ID,
		Name:      codec.TypeName(j.Handler),
		Priority:  j.Priority,
		Attempts:  j.Attempts,
		Handler:   j.Handler,
		LastError: j.LastError,
		RunAt:     j.RunAt,
		LockedAt:  j.LockedAt,
		LockedBy:  j.LockedBy,
		FailedAt:  j.FailedAt,
		UniqueKey: j.UniqueKey,
		Server:    j.Server,
		CreatedAt: j.CreatedAt,
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Now(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) failed(w http.ResponseWriter, r *http.Request) {
	limit := s.limit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxFailedLimit)
	}

	jobs, err := s.store.FailedJobs(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, newJobView(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, core.ErrJobNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *server) retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.Retry(r.Context(), id)
	switch {
	case errors.Is(err, core.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, core.ErrJobNotFailed):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.fail(w, r, err)
		return
	}

	s.logger.Info().Str("job_id", id).Msg("failed job queued for retry")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "retrying"})
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("admin request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
