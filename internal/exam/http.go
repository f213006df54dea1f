package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
	"github.com/gokatarajesh/exam-engine/internal/db/repository"
	httperrors "github.com/gokatarajesh/exam-engine/pkg/http/errors"
	ws "github.com/gokatarajesh/exam-engine/pkg/http/ws"
)

// ResultLookup reads persisted results for sessions that are no longer live.
type ResultLookup interface {
	Get(ctx context.Context, sessionID string) (repository.ExamResult, error)
}

// SnapshotMirror reads the last published snapshot of a session that may be
// running on another instance.
type SnapshotMirror interface {
	Get(ctx context.Context, sessionID string) (ws.SnapshotPayload, bool, error)
}

// HTTPHandlers provides REST endpoints for exam sessions.
type HTTPHandlers struct {
	manager *Manager
	results ResultLookup
	mirror  SnapshotMirror
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for exam endpoints. results may be nil.
func NewHTTPHandlers(manager *Manager, results ResultLookup, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		manager: manager,
		results: results,
		logger:  logger.With().Str("component", "exam_http").Logger(),
	}
}

// WithMirror enables the snapshot mirror lookup for sessions not held here.
func (h *HTTPHandlers) WithMirror(mirror SnapshotMirror) *HTTPHandlers {
	h.mirror = mirror
	return h
}

// CreateExamRequest is the POST /v1/exams body.
type CreateExamRequest struct {
	CandidateID string `json:"candidate_id"`
	Profile     string `json:"profile,omitempty"`
}

// CreateExamResponse describes a freshly created session.
type CreateExamResponse struct {
	SessionID   string             `json:"session_id"`
	CandidateID string             `json:"candidate_id"`
	Profile     string             `json:"profile"`
	Sections    []catalog.Section  `json:"sections"`
	Snapshot    ws.SnapshotPayload `json:"snapshot"`
}

// StoredResultResponse is returned for sessions that only exist in storage.
type StoredResultResponse struct {
	SessionID   string          `json:"session_id"`
	CandidateID string          `json:"candidate_id"`
	Profile     string          `json:"profile"`
	Phase       string          `json:"phase"`
	Composite   int             `json:"composite"`
	Buckets     json.RawMessage `json:"buckets"`
	Breakdown   json.RawMessage `json:"breakdown"`
	Trigger     string          `json:"trigger"`
	CompletedAt string          `json:"completed_at"`
}

// CreateExam handles POST /v1/exams
func (h *HTTPHandlers) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req CreateExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	session, err := h.manager.Create(r.Context(), req.CandidateID, req.Profile)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	snap, err := session.Snapshot(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	httperrors.RespondJSON(w, http.StatusCreated, CreateExamResponse{
		SessionID:   session.ID(),
		CandidateID: session.CandidateID(),
		Profile:     session.Profile(),
		Sections:    session.Catalog().Sections,
		Snapshot:    ToPayload(snap),
	})
}

// GetExam handles GET /v1/exams/{id}
func (h *HTTPHandlers) GetExam(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	session, err := h.manager.Get(id)
	if err == nil {
		snap, err := session.Snapshot(r.Context())
		if err == nil {
			httperrors.RespondJSON(w, http.StatusOK, ToPayload(snap))
			return
		}
		if !errors.Is(err, ErrClosed) {
			h.respondFailure(w, err)
			return
		}
	}

	if h.mirror != nil {
		payload, ok, err := h.mirror.Get(r.Context(), id)
		if err != nil {
			h.logger.Warn().Err(err).Str("session_id", id).Msg("snapshot mirror lookup failed")
		}
		if ok && (payload.Phase != string(PhaseCompleted) || h.results == nil) {
			httperrors.RespondJSON(w, http.StatusOK, payload)
			return
		}
	}

	if h.results == nil {
		h.respondFailure(w, ErrSessionNotFound)
		return
	}
	stored, err := h.results.Get(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		h.respondFailure(w, ErrSessionNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to load stored result")
		httperrors.RespondInternalError(w, "Failed to load result")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, StoredResultResponse{
		SessionID:   stored.SessionID,
		CandidateID: stored.CandidateID,
		Profile:     stored.Profile,
		Phase:       string(PhaseCompleted),
		Composite:   stored.Composite,
		Buckets:     stored.Buckets,
		Breakdown:   stored.Breakdown,
		Trigger:     stored.Trigger,
		CompletedAt: stored.CompletedAt.UTC().Format(time.RFC3339),
	})
}

// AbandonExam handles DELETE /v1/exams/{id}
func (h *HTTPHandlers) AbandonExam(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Remove(r.Context(), r.PathValue("id")) {
		h.respondFailure(w, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCatalog handles GET /v1/catalog?profile=
func (h *HTTPHandlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = h.manager.opts.DefaultProfile
	}
	cat, err := catalog.Lookup(profile)
	if err != nil {
		h.respondFailure(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, cat)
}

func (h *HTTPHandlers) respondFailure(w http.ResponseWriter, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("exam request failed")
	}
	httperrors.RespondError(w, status, code, err.Error())
}
