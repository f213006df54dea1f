package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/exam-engine/pkg/http/errors"
	ws "github.com/gokatarajesh/exam-engine/pkg/http/ws"
)

// Handler speaks the exam WebSocket protocol. It is also an Observer and a
// Reporter so session output reaches the candidate's connection.
type Handler struct {
	manager  *Manager
	hub      *ws.Hub
	validate *validator.Validate
	timeout  time.Duration
	logger   zerolog.Logger
}

var (
	_ Observer = (*Handler)(nil)
	_ Reporter = (*Handler)(nil)
)

// NewHandler creates an exam WebSocket handler.
func NewHandler(manager *Manager, hub *ws.Hub, logger zerolog.Logger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return &Handler{
		manager:  manager,
		hub:      hub,
		validate: v,
		timeout:  5 * time.Second,
		logger:   logger.With().Str("component", "exam_ws").Logger(),
	}
}

// SetManager binds the manager after construction. The manager needs the
// handler as its observer, so one side is wired late.
func (h *Handler) SetManager(m *Manager) {
	h.manager = m
}

// HandleConnection serves one candidate's socket until it closes.
func (h *Handler) HandleConnection(conn *websocket.Conn, candidateID string) {
	wsConn := ws.NewConnection(conn, h.logger.With().Str("candidate_id", candidateID).Logger())
	h.hub.RegisterConnection(candidateID, wsConn)

	if session, ok := h.manager.ForCandidate(candidateID); ok {
		h.hub.JoinSession(session.ID(), candidateID)
	}

	go wsConn.WritePump()

	wsConn.ReadPump(func(msg ws.Message) error {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		return h.handleMessage(ctx, candidateID, msg)
	})

	h.hub.UnregisterConnection(candidateID, wsConn)
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(ctx context.Context, candidateID string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeStartExam:
		return h.handleStartExam(ctx, candidateID, msg)
	case ws.TypeSelectAnswer:
		return h.handleSelectAnswer(ctx, candidateID, msg)
	case ws.TypeToggleFlag:
		return h.handleToggleFlag(ctx, candidateID, msg)
	case ws.TypeNavigate:
		return h.handleNavigate(ctx, candidateID, msg)
	case ws.TypeSubmitSection:
		return h.handleSubmitSection(ctx, candidateID, msg)
	case ws.TypeRequestSnapshot:
		return h.handleRequestSnapshot(ctx, candidateID, msg)
	default:
		return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleStartExam(ctx context.Context, candidateID string, msg ws.Message) error {
	var req ws.StartExamPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid start_exam payload")
		}
	}

	var session *Session
	var err error
	switch {
	case req.SessionID != "":
		session, err = h.owned(candidateID, req.SessionID)
	default:
		if existing, ok := h.manager.ForCandidate(candidateID); ok && existing.Phase() != PhaseCompleted {
			session = existing
		} else {
			session, err = h.manager.Create(ctx, candidateID, req.Profile)
		}
	}
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}

	h.hub.JoinSession(session.ID(), candidateID)
	snap, err := session.Start(ctx)
	if errors.Is(err, ErrAlreadyStarted) {
		// Reconnect: the candidate resumes where they were.
		return h.sendSnapshot(candidateID, msg.RequestID, snap)
	}
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	return nil
}

func (h *Handler) handleSelectAnswer(ctx context.Context, candidateID string, msg ws.Message) error {
	var req ws.SelectAnswerPayload
	if err := h.decode(msg.Payload, &req); err != nil {
		return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeInvalidPayload, err.Error())
	}
	session, err := h.owned(candidateID, req.SessionID)
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	_, err = session.SelectAnswer(ctx, req.SectionID, req.QuestionIndex, req.OptionIndex)
	return h.sendFailure(candidateID, msg.RequestID, err)
}

func (h *Handler) handleToggleFlag(ctx context.Context, candidateID string, msg ws.Message) error {
	var req ws.ToggleFlagPayload
	if err := h.decode(msg.Payload, &req); err != nil {
		return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeInvalidPayload, err.Error())
	}
	session, err := h.owned(candidateID, req.SessionID)
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	_, err = session.ToggleFlag(ctx, req.SectionID, req.QuestionIndex)
	return h.sendFailure(candidateID, msg.RequestID, err)
}

func (h *Handler) handleNavigate(ctx context.Context, candidateID string, msg ws.Message) error {
	var req ws.NavigatePayload
	if err := h.decode(msg.Payload, &req); err != nil {
		return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeInvalidPayload, err.Error())
	}
	session, err := h.owned(candidateID, req.SessionID)
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	if req.Direction == "goto" {
		_, err = session.GoTo(ctx, req.QuestionIndex)
	} else {
		_, err = session.Navigate(ctx, Direction(req.Direction))
	}
	return h.sendFailure(candidateID, msg.RequestID, err)
}

func (h *Handler) handleSubmitSection(ctx context.Context, candidateID string, msg ws.Message) error {
	var req ws.SubmitSectionPayload
	if err := h.decode(msg.Payload, &req); err != nil {
		return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeInvalidPayload, err.Error())
	}
	session, err := h.owned(candidateID, req.SessionID)
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	_, err = session.SubmitSection(ctx, req.SectionID)
	return h.sendFailure(candidateID, msg.RequestID, err)
}

func (h *Handler) handleRequestSnapshot(ctx context.Context, candidateID string, msg ws.Message) error {
	var req ws.RequestSnapshotPayload
	if err := h.decode(msg.Payload, &req); err != nil {
		return h.sendError(candidateID, msg.RequestID, httperrors.ErrCodeInvalidPayload, err.Error())
	}
	session, err := h.owned(candidateID, req.SessionID)
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	snap, err := session.Snapshot(ctx)
	if err != nil {
		return h.sendFailure(candidateID, msg.RequestID, err)
	}
	return h.sendSnapshot(candidateID, msg.RequestID, snap)
}

// OnSnapshot pushes state to everyone following the session.
func (h *Handler) OnSnapshot(_ context.Context, snap Snapshot) {
	msg, err := ws.NewMessage(ws.TypeExamSnapshot, ToPayload(snap))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode snapshot")
		return
	}
	h.broadcast(snap.SessionID, msg)
}

// OnSectionChange pushes a section_changed notice.
func (h *Handler) OnSectionChange(_ context.Context, change SectionChange) {
	msg, err := ws.NewMessage(ws.TypeSectionChanged, ws.SectionChangedPayload{
		SessionID:     change.SessionID,
		FromIndex:     change.FromIndex,
		ToIndex:       change.ToIndex,
		FromSectionID: change.FromSectionID,
		ToSectionID:   change.ToSectionID,
		Trigger:       string(change.Trigger),
		At:            change.At.Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode section change")
		return
	}
	h.broadcast(change.SessionID, msg)
}

// Report pushes the final result. A candidate who is offline reads it later
// over HTTP, so delivery failures are not errors.
func (h *Handler) Report(_ context.Context, report Report) error {
	result, err := json.Marshal(report.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	msg, err := ws.NewMessage(ws.TypeExamComplete, ws.ExamCompletePayload{
		SessionID:   report.SessionID,
		Trigger:     string(report.Trigger),
		CompletedAt: report.CompletedAt.Format(time.RFC3339),
		Result:      result,
	})
	if err != nil {
		return fmt.Errorf("encode exam_complete: %w", err)
	}
	h.broadcast(report.SessionID, msg)
	return nil
}

func (h *Handler) broadcast(sessionID string, msg ws.Message) {
	if err := h.hub.BroadcastToSession(sessionID, msg); err != nil {
		h.logger.Debug().Err(err).Str("session_id", sessionID).Str("type", msg.Type).Msg("push skipped")
	}
}

// owned resolves a session the candidate is allowed to drive.
func (h *Handler) owned(candidateID, sessionID string) (*Session, error) {
	session, err := h.manager.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if session.CandidateID() != candidateID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (h *Handler) decode(payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("field %s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	return nil
}

func (h *Handler) sendSnapshot(candidateID, requestID string, snap Snapshot) error {
	msg, err := ws.NewMessage(ws.TypeExamSnapshot, ToPayload(snap))
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return h.hub.SendToCandidate(candidateID, msg)
}

// sendFailure reports err to the candidate. A nil err sends nothing: accepted
// intents are answered by the session's own snapshot.
func (h *Handler) sendFailure(candidateID, requestID string, err error) error {
	if err == nil {
		return nil
	}
	_, code := errorCode(err)
	if IsRejection(err) {
		h.logger.Debug().Err(err).Str("candidate_id", candidateID).Msg("intent rejected")
	}
	return h.sendError(candidateID, requestID, code, err.Error())
}

func (h *Handler) sendError(candidateID, requestID, code, message string) error {
	msg, err := ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return h.hub.SendToCandidate(candidateID, msg)
}

// ToPayload converts a snapshot for the wire. The answer key stays
// hidden until the exam is completed.
func ToPayload(snap Snapshot) ws.SnapshotPayload {
	reveal := snap.Phase == PhaseCompleted
	questions := make([]ws.QuestionView, len(snap.Questions))
	for i, q := range snap.Questions {
		questions[i] = ws.QuestionView{ID: q.ID, Text: q.Text, Options: q.Options}
		if reveal {
			correct := q.CorrectOptionIndex
			questions[i].CorrectOptionIndex = &correct
			questions[i].Explanation = q.Explanation
		}
	}

	payload := ws.SnapshotPayload{
		SessionID:             snap.SessionID,
		Version:               snap.Version,
		Phase:                 string(snap.Phase),
		SectionIndex:          snap.SectionIndex,
		SectionCount:          snap.SectionCount,
		SectionID:             snap.SectionID,
		SectionName:           snap.SectionName,
		ExpectedQuestionCount: snap.ExpectedQuestionCount,
		QuestionIndex:         snap.QuestionIndex,
		TimeRemainingSeconds:  snap.TimeRemainingSeconds,
		TimerRunning:          snap.TimerRunning,
		Loading:               snap.Loading,
		FetchFailed:           snap.FetchFailed,
		Questions:             questions,
		Answers:               snap.Answers,
		Flags:                 snap.Flags,
	}
	if snap.Result != nil {
		if raw, err := json.Marshal(snap.Result); err == nil {
			payload.Result = raw
		}
	}
	return payload
}
