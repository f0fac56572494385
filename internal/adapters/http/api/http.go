// Package api exposes the study workflow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/blindpair/internal/adapters/http/swagger"
	"github.com/okian/blindpair/internal/adapters/repository"
	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/pkg/logger"
	"github.com/okian/blindpair/pkg/metrics"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	CreateSession(ctx context.Context, studyID, participantID string) (model.Session, error)
	GetSession(ctx context.Context, sessionID string) (service.SessionView, error)
	ContinueSession(ctx context.Context, sessionID string) (service.SessionView, error)
	NextMatch(ctx context.Context, sessionID string) (*service.Match, error)
	SubmitVote(ctx context.Context, v service.Vote) (service.VoteReceipt, error)
	Rankings(ctx context.Context, categoryID string) ([]service.Ranking, error)
	Report(ctx context.Context, categoryID string) (service.CategoryReport, error)
}

var _ Dependencies = (*service.Service)(nil)

// Server wires HTTP routes for the study API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	sessionHandler  *SessionHandler
	categoryHandler *CategoryHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		sessionHandler:  NewSessionHandler(deps),
		categoryHandler: NewCategoryHandler(deps),
	}
}

// Routes returns the router with every endpoint attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	swagger.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(MetricsMiddleware)
		r.Get("/stats", s.statsHandler.HandleStats)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/studies/{studyID}/sessions", s.sessionHandler.HandleCreate)
			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", s.sessionHandler.HandleGet)
				r.Post("/continue", s.sessionHandler.HandleContinue)
				r.Get("/next", s.sessionHandler.HandleNext)
				r.Post("/votes", s.sessionHandler.HandleVote)
			})
			r.Route("/categories/{categoryID}", func(r chi.Router) {
				r.Get("/rankings", s.categoryHandler.HandleRankings)
				r.Get("/report", s.categoryHandler.HandleReport)
			})
		})
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps domain error kinds to status codes. Unmapped errors
// are logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidVote),
		errors.Is(err, repository.ErrInvalidVote),
		errors.Is(err, repository.ErrItemNotInCategory),
		errors.Is(err, service.ErrCategoryNotInStudy):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrDuplicateVote):
		writeError(w, http.StatusConflict, "duplicate_vote", err)
	case errors.Is(err, repository.ErrAlreadyCompared):
		writeError(w, http.StatusConflict, "already_compared", err)
	case errors.Is(err, repository.ErrSessionCompleted):
		writeError(w, http.StatusConflict, "session_completed", err)
	case errors.Is(err, service.ErrContinueNotAllowed):
		writeError(w, http.StatusConflict, "continue_not_allowed", err)
	case errors.Is(err, service.ErrNoCategories):
		writeError(w, http.StatusUnprocessableEntity, "no_categories", err)
	default:
		logger.Get().Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
