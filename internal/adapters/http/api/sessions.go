package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/blindpair/internal/app"
)

const maxBodyBytes = 1 << 16

// SessionHandler serves session and vote routes.
type SessionHandler struct {
	deps Dependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

type createSessionRequest struct {
	ParticipantID string `json:"participant_id"`
}

// decode reads an optional JSON body into v.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// HandleCreate handles POST /v1/studies/{studyID}/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	sess, err := h.deps.CreateSession(r.Context(), chi.URLParam(r, "studyID"), strings.TrimSpace(req.ParticipantID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// HandleGet handles GET /v1/sessions/{sessionID}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleContinue handles POST /v1/sessions/{sessionID}/continue.
func (h *SessionHandler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.ContinueSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleNext handles GET /v1/sessions/{sessionID}/next. It answers 204 when
// the session has nothing left to show.
func (h *SessionHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	m, err := h.deps.NextMatch(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleVote handles POST /v1/sessions/{sessionID}/votes.
func (h *SessionHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var v service.Vote
	if err := decode(r, &v); err != nil {
		writeServiceError(w, r, err)
		return
	}
	v.SessionID = chi.URLParam(r, "sessionID")
	receipt, err := h.deps.SubmitVote(r.Context(), v)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}
